package dbmanager

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"querypilot/pkg/rediscache"
)

// SchemaEncryption seals schema blobs with AES-256-GCM before they leave the
// process. Wire format: random nonce, ciphertext, base64 over the whole
// thing.
type SchemaEncryption struct {
	key []byte
}

func NewSchemaEncryption(encryptionKey string) (*SchemaEncryption, error) {
	// AES-256 takes exactly a 32-byte key.
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes")
	}

	return &SchemaEncryption{
		key: []byte(encryptionKey),
	}, nil
}

func (se *SchemaEncryption) Encrypt(data []byte) (string, error) {
	block, err := aes.NewCipher(se.key)
	if err != nil {
		return "", err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := aesgcm.Seal(nonce, nonce, data, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (se *SchemaEncryption) Decrypt(encodedData string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encodedData)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(se.key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(data) < aesgcm.NonceSize() {
		return nil, fmt.Errorf("data too short")
	}

	nonce := data[:aesgcm.NonceSize()]
	ciphertext := data[aesgcm.NonceSize():]

	return aesgcm.Open(nil, nonce, ciphertext, nil)
}

// SchemaCache mirrors introspected schemas into redis so a restarted gateway
// does not have to re-introspect every connection. Cached blobs are encrypted
// because schemas can reveal table and column names across tenants.
//
// A nil *SchemaCache is valid and turns every operation into a no-op, which is
// how the gateway runs when redis is disabled.
type SchemaCache struct {
	repo       rediscache.Repository
	encryption *SchemaEncryption
	ttl        time.Duration
}

func NewSchemaCache(repo rediscache.Repository, encryption *SchemaEncryption, ttl time.Duration) *SchemaCache {
	if repo == nil {
		return nil
	}
	return &SchemaCache{
		repo:       repo,
		encryption: encryption,
		ttl:        ttl,
	}
}

func schemaKey(connectionID string) string {
	return fmt.Sprintf("schema:%s", connectionID)
}

// Store encrypts and writes the schema for a connection.
func (sc *SchemaCache) Store(ctx context.Context, connectionID string, schema *SchemaInfo) error {
	if sc == nil {
		return nil
	}

	data, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %v", err)
	}

	encrypted, err := sc.encryption.Encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt schema: %v", err)
	}

	return sc.repo.Set(ctx, schemaKey(connectionID), []byte(encrypted), sc.ttl)
}

// Load fetches and decrypts a cached schema. A cache miss returns (nil, nil).
func (sc *SchemaCache) Load(ctx context.Context, connectionID string) (*SchemaInfo, error) {
	if sc == nil {
		return nil, nil
	}

	encrypted, err := sc.repo.Get(ctx, schemaKey(connectionID))
	if err == rediscache.ErrKeyNotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	data, err := sc.encryption.Decrypt(encrypted)
	if err != nil {
		// A corrupt or stale blob is treated as a miss so the caller
		// falls back to live introspection.
		log.Printf("SchemaCache -> Load -> failed to decrypt cached schema for %s: %v", connectionID, err)
		return nil, nil
	}

	var schema SchemaInfo
	if err := json.Unmarshal(data, &schema); err != nil {
		log.Printf("SchemaCache -> Load -> failed to unmarshal cached schema for %s: %v", connectionID, err)
		return nil, nil
	}

	return &schema, nil
}

// Invalidate removes the cached schema for a connection.
func (sc *SchemaCache) Invalidate(ctx context.Context, connectionID string) error {
	if sc == nil {
		return nil
	}
	return sc.repo.Del(ctx, schemaKey(connectionID))
}
