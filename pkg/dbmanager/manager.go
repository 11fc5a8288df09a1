package dbmanager

import (
	"context"
	"fmt"
	"log"
	"time"

	"querypilot/config"
	"querypilot/pkg/rediscache"
)

// ConnectResult is what Connect hands back to the transport layer: the
// session token that stands in for the credentials from here on, plus the
// advisory read-only posture of the pool.
type ConnectResult struct {
	SessionToken   string `json:"session_token"`
	ReadOnlyStatus string `json:"read_only_status"`
}

// Manager is the facade over the registry, the session store and the idle
// reaper. Handlers talk to the Manager only; they never see a Pool.
type Manager struct {
	registry    *Registry
	store       *SessionStore
	reaper      *Reaper
	schemaCache *SchemaCache
	mirror      rediscache.Repository
}

// NewManager wires the facade and its reaper. The redis repository and
// schema cache may be nil, in which case the gateway runs purely in-memory.
func NewManager(registry *Registry, store *SessionStore, schemaCache *SchemaCache, mirror rediscache.Repository) *Manager {
	m := &Manager{
		registry:    registry,
		store:       store,
		schemaCache: schemaCache,
		mirror:      mirror,
	}
	m.reaper = NewReaper(store, registry, config.Env.IdleTimeout, config.Env.KeepAliveInterval, m.Disconnect)
	return m
}

// Start launches the background eviction and keepalive loops.
func (m *Manager) Start() {
	m.reaper.Start()
}

// Stop halts the background loops and closes every pool.
func (m *Manager) Stop() {
	m.reaper.Stop()
	m.registry.Close()
}

func sessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

// Connect opens (or reuses) the pool for a descriptor and mints a session
// token for it. The token is the only handle callers keep; credentials are
// never echoed back.
func (m *Manager) Connect(ctx context.Context, desc ConnectionDescriptor) (*ConnectResult, error) {
	pool, err := m.registry.Acquire(ctx, desc)
	if err != nil {
		return nil, err
	}

	session := m.store.CreateSession(desc.ID, pool.ReadOnlyStatus)
	log.Printf("Manager -> Connect -> Session %s created for connection %s (status: %s)",
		session.Token, desc.ID, pool.ReadOnlyStatus)

	if m.mirror != nil {
		if err := m.mirror.Set(ctx, sessionKey(session.Token), []byte(desc.ID), config.Env.IdleTimeout); err != nil {
			log.Printf("Manager -> Connect -> Failed to mirror session %s: %v", session.Token, err)
		}
	}

	return &ConnectResult{
		SessionToken:   session.Token,
		ReadOnlyStatus: pool.ReadOnlyStatus,
	}, nil
}

// TestConnection checks reachability of a descriptor without registering a
// pool or creating a session.
func (m *Manager) TestConnection(ctx context.Context, desc ConnectionDescriptor) error {
	return m.registry.TestConnection(ctx, desc)
}

// Disconnect tears down a session: the session itself, its chat sessions,
// the redis mirror entry and, when no other session shares the connection
// id, the pool. Unknown tokens are an error so callers can distinguish a
// double-disconnect.
func (m *Manager) Disconnect(token string) error {
	connectionID, existed := m.store.DeleteSession(token)
	if !existed {
		return fmt.Errorf("session not found: %s", token)
	}

	if m.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.mirror.Del(ctx, sessionKey(token)); err != nil {
			log.Printf("Manager -> Disconnect -> Failed to remove session mirror %s: %v", token, err)
		}
		cancel()
	}

	// The pool is shared by every session on the same connection id; it is
	// only released when the last of them goes.
	if remaining := m.store.SessionsForConnection(connectionID); remaining > 0 {
		log.Printf("Manager -> Disconnect -> Session %s closed, connection %s kept (%d live sessions)",
			token, connectionID, remaining)
		return nil
	}

	if err := m.registry.Release(connectionID); err != nil {
		return fmt.Errorf("failed to release connection %s: %v", connectionID, err)
	}

	log.Printf("Manager -> Disconnect -> Session %s closed, connection %s released", token, connectionID)
	return nil
}

// ValidateSession resolves a token to its connection id. With touch set the
// session's idle clock is extended and the redis mirror TTL refreshed;
// passive status checks pass touch=false.
func (m *Manager) ValidateSession(token string, touch bool) (string, bool) {
	connectionID, ok := m.store.Resolve(token, touch)
	if ok && touch && m.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.mirror.Expire(ctx, sessionKey(token), config.Env.IdleTimeout); err != nil {
			log.Printf("Manager -> ValidateSession -> Failed to refresh session mirror %s: %v", token, err)
		}
		cancel()
	}
	return connectionID, ok
}

// GetSchema returns the schema for a session's connection. Resolution order:
// the per-session cache, then the encrypted redis cache, then live
// introspection, with the result written back to both caches.
func (m *Manager) GetSchema(ctx context.Context, token string, namespaces []string) (*SchemaInfo, error) {
	connectionID, ok := m.store.Resolve(token, true)
	if !ok {
		return nil, fmt.Errorf("session not found: %s", token)
	}

	// An explicit namespace filter bypasses the caches, which always hold
	// the full schema.
	if len(namespaces) == 0 {
		if schema, ok := m.store.CachedSchema(token); ok {
			return schema, nil
		}
		if schema, err := m.schemaCache.Load(ctx, connectionID); err != nil {
			log.Printf("Manager -> GetSchema -> Schema cache read failed for %s: %v", connectionID, err)
		} else if schema != nil {
			m.store.CacheSchema(token, schema)
			return schema, nil
		}
	}

	pool, err := m.registry.AcquireExisting(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	driver, exists := m.registry.Driver(connectionID)
	if !exists {
		return nil, fmt.Errorf("no driver for connection %s", connectionID)
	}

	schema, err := driver.IntrospectSchema(ctx, pool, namespaces)
	if err != nil {
		return nil, fmt.Errorf("schema introspection failed: %v", err)
	}

	if len(namespaces) == 0 {
		m.store.CacheSchema(token, schema)
		if err := m.schemaCache.Store(ctx, connectionID, schema); err != nil {
			log.Printf("Manager -> GetSchema -> Schema cache write failed for %s: %v", connectionID, err)
		}
	}
	return schema, nil
}

// RefreshSchema drops every cached copy of a connection's schema and
// re-introspects it.
func (m *Manager) RefreshSchema(ctx context.Context, token string) (*SchemaInfo, error) {
	connectionID, ok := m.store.Resolve(token, true)
	if !ok {
		return nil, fmt.Errorf("session not found: %s", token)
	}
	if err := m.schemaCache.Invalidate(ctx, connectionID); err != nil {
		log.Printf("Manager -> RefreshSchema -> Failed to invalidate schema cache for %s: %v", connectionID, err)
	}

	pool, err := m.registry.AcquireExisting(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	driver, exists := m.registry.Driver(connectionID)
	if !exists {
		return nil, fmt.Errorf("no driver for connection %s", connectionID)
	}

	schema, err := driver.IntrospectSchema(ctx, pool, nil)
	if err != nil {
		return nil, fmt.Errorf("schema introspection failed: %v", err)
	}
	m.store.ReplaceCachedSchema(token, schema)
	if err := m.schemaCache.Store(ctx, connectionID, schema); err != nil {
		log.Printf("Manager -> RefreshSchema -> Schema cache write failed for %s: %v", connectionID, err)
	}
	return schema, nil
}

// SessionStatus reports a session's posture without extending its idle clock.
func (m *Manager) SessionStatus(token string) (map[string]interface{}, bool) {
	connectionID, ok := m.store.Resolve(token, false)
	if !ok {
		return nil, false
	}
	status := map[string]interface{}{
		"connection_id": connectionID,
		"active":        m.registry.Has(connectionID),
	}
	return status, true
}

// CacheKnowledgeBase stores knowledge-base entries on a session.
func (m *Manager) CacheKnowledgeBase(token string, entries []KnowledgeBaseEntry) {
	m.store.CacheKnowledgeBase(token, entries)
}

// KnowledgeBase returns a session's cached knowledge-base entries.
func (m *Manager) KnowledgeBase(token string) ([]KnowledgeBaseEntry, bool) {
	return m.store.CachedKnowledgeBase(token)
}

// CreateChat opens a chat session under a live connection session.
func (m *Manager) CreateChat(token string) (*ChatSession, error) {
	m.store.Touch(token)
	return m.store.CreateChat(token)
}

// AppendMessage records one message in a chat session's history.
func (m *Manager) AppendMessage(chatToken, role, content string) error {
	return m.store.AppendMessage(chatToken, role, content)
}

// ChatHistory returns the timestamp-stripped history of a chat session.
func (m *Manager) ChatHistory(chatToken string) ([]ChatMessageView, error) {
	return m.store.History(chatToken)
}

// ClearChatHistory empties a chat session's history, keeping its token.
func (m *Manager) ClearChatHistory(chatToken string) error {
	return m.store.ClearHistory(chatToken)
}

// ResetChat replaces a chat session with a fresh one under the same parent.
func (m *Manager) ResetChat(chatToken string) (*ChatSession, error) {
	return m.store.ResetChat(chatToken)
}

// Stats reports gateway counters for the monitoring endpoint.
func (m *Manager) Stats() map[string]interface{} {
	stats := m.registry.Stats()
	stats["sessions"] = m.store.SessionCount()
	stats["chats"] = m.store.ChatCount()
	return stats
}
