package dbmanager

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"querypilot/internal/constants"
	"querypilot/pkg/viz"

	"gorm.io/gorm"
)

// ConnectionDescriptor identifies one logical database connection. Config is
// a tagged union keyed by EngineKind: file engines carry a path, client/server
// engines carry host/port/credentials.
type ConnectionDescriptor struct {
	ID         string           `json:"id"`
	EngineKind string           `json:"engine_kind"`
	Config     ConnectionConfig `json:"config"`
}

// ConnectionConfig holds the engine-specific connection settings.
type ConnectionConfig struct {
	// File engines
	FilePath string `json:"file_path,omitempty"`

	// Client/server engines
	Host     string  `json:"host,omitempty"`
	Port     *string `json:"port,omitempty"`
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
	Database string  `json:"database,omitempty"`
	UseSSL   bool    `json:"use_ssl,omitempty"`
	SSLMode  *string `json:"ssl_mode,omitempty"` // disable, require, verify-ca, verify-full
}

// Validate checks the config shape matches the engine kind: a file path for
// file engines, host/database for server engines, never both.
func (d ConnectionDescriptor) Validate() error {
	if !constants.IsSupportedDatabaseType(d.EngineKind) {
		return fmt.Errorf("unsupported engine kind: %s", d.EngineKind)
	}

	switch d.EngineKind {
	case constants.DatabaseTypeSQLite:
		if d.Config.FilePath == "" {
			return fmt.Errorf("file engine requires a file path")
		}
		if d.Config.Host != "" || d.Config.Database != "" {
			return fmt.Errorf("file engine config must not carry host/database fields")
		}
	default:
		if d.Config.Host == "" || d.Config.Database == "" {
			return fmt.Errorf("%s engine requires host and database", d.EngineKind)
		}
		if d.Config.FilePath != "" {
			return fmt.Errorf("%s engine config must not carry a file path", d.EngineKind)
		}
	}
	return nil
}

// Pool is the live handle bound to one ConnectionDescriptor.ID. At most one
// Pool exists per id at any time; the Registry is its single owner.
type Pool struct {
	DB             *sql.DB
	GORMDB         *gorm.DB
	Descriptor     ConnectionDescriptor
	ReadOnlyStatus string
	OpenedAt       time.Time
}

// Driver is the per-engine capability set: open a read-only-verified pool,
// introspect schema, execute a statement, and report pool liveness.
type Driver interface {
	// OpenReadOnly opens a pool in the most restrictive mode the engine
	// offers and probes the resulting posture. The returned status is
	// advisory: a writable database with only a session hint applied
	// legitimately reports readwrite.
	OpenReadOnly(ctx context.Context, desc ConnectionDescriptor) (*Pool, string, error)

	// Close releases the pool's underlying resources.
	Close(pool *Pool) error

	// Ping issues a trivial read against the pool.
	Ping(ctx context.Context, pool *Pool) error

	// IsAlive reports pool liveness; engines that cannot report liveness
	// return false so the registry unconditionally recreates them.
	IsAlive(ctx context.Context, pool *Pool) bool

	// Restartable reports whether the engine is cheap to reopen. The
	// registry recreates restartable pools on every acquisition so the
	// latest on-disk state is honored.
	Restartable() bool

	// Execute runs one validated statement and returns shaped rows plus
	// normalized columns.
	Execute(ctx context.Context, pool *Pool, sqlText string) ([]map[string]interface{}, []viz.Column, error)

	// IntrospectSchema enumerates namespaces, tables and columns. A nil or
	// empty namespace list means all non-system namespaces; engines without
	// namespaces return one implicit namespace.
	IntrospectSchema(ctx context.Context, pool *Pool, namespaces []string) (*SchemaInfo, error)
}

// SchemaInfo is the engine-agnostic schema model handed to the prompt builder.
type SchemaInfo struct {
	EngineKind string            `json:"engine_kind"`
	Namespaces []NamespaceSchema `json:"namespaces"`
	FetchedAt  time.Time         `json:"fetched_at"`
}

type NamespaceSchema struct {
	Name   string        `json:"name"`
	Tables []TableSchema `json:"tables"`
}

type TableSchema struct {
	Name     string         `json:"name"`
	Columns  []ColumnSchema `json:"columns"`
	RowCount *int64         `json:"row_count,omitempty"` // best-effort, only when cheap
}

type ColumnSchema struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Nullable   bool           `json:"nullable"`
	PrimaryKey bool           `json:"primary_key"`
	References *ForeignKeyRef `json:"references,omitempty"`
}

type ForeignKeyRef struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// KnowledgeBaseEntry is an opaque note cached on a session for the prompt
// builder. The knowledge-base storage itself lives outside this package.
type KnowledgeBaseEntry struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Error kinds for failures past the validator.
const (
	ErrorKindConnectionNotFound   = "CONNECTION_NOT_FOUND"
	ErrorKindInvalidSQLParameters = "INVALID_SQL_PARAMETERS"
	ErrorKindExecutionError       = "EXECUTION_ERROR"
)

// QueryResult is the structured response of one query execution.
type QueryResult struct {
	Success         bool                     `json:"success"`
	SQL             string                   `json:"sql"`
	Data            []map[string]interface{} `json:"data"`
	Columns         []viz.Column             `json:"columns"`
	RowCount        int                      `json:"row_count"`
	ExecutionTimeMs int64                    `json:"execution_time_ms"`
	Visualization   *viz.Config              `json:"visualization,omitempty"`
	Error           string                   `json:"error,omitempty"`
	ErrorKind       string                   `json:"error_kind,omitempty"`
}
