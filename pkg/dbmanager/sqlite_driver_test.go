package dbmanager

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querypilot/internal/constants"
)

// seedSQLite creates a throwaway database file with a small orders table.
func seedSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE orders (
		id INTEGER PRIMARY KEY,
		customer_name TEXT NOT NULL,
		total_amount REAL,
		created_at TEXT
	)`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO orders (customer_name, total_amount, created_at) VALUES
		('alice', 120.50, '2025-01-01'),
		('bob', 42.00, '2025-01-02'),
		('carol', 99.99, '2025-01-03')`)
	require.NoError(t, err)
	return path
}

func sqliteDescriptor(id, path string) ConnectionDescriptor {
	return ConnectionDescriptor{
		ID:         id,
		EngineKind: constants.DatabaseTypeSQLite,
		Config:     ConnectionConfig{FilePath: path},
	}
}

func TestSQLiteOpenReadOnly(t *testing.T) {
	path := seedSQLite(t)
	driver := NewSQLiteDriver()

	pool, status, err := driver.OpenReadOnly(context.Background(), sqliteDescriptor("c1", path))
	require.NoError(t, err)
	defer driver.Close(pool)

	assert.Equal(t, constants.ReadOnlyStatusReadOnly, status)

	// Writes through the pool must fail.
	_, err = pool.DB.Exec("INSERT INTO orders (customer_name) VALUES ('mallory')")
	assert.Error(t, err)
}

func TestSQLiteExecute(t *testing.T) {
	path := seedSQLite(t)
	driver := NewSQLiteDriver()

	pool, _, err := driver.OpenReadOnly(context.Background(), sqliteDescriptor("c1", path))
	require.NoError(t, err)
	defer driver.Close(pool)

	rows, columns, err := driver.Execute(context.Background(),
		pool, "SELECT customer_name, total_amount FROM orders ORDER BY id")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "alice", rows[0]["customer_name"])

	require.Len(t, columns, 2)
	assert.Equal(t, "customer_name", columns[0].Key)
	assert.Equal(t, "Customer Name", columns[0].DisplayName)
	assert.Equal(t, ColumnTypeText, columns[0].Type)
	assert.Equal(t, ColumnTypeDecimal, columns[1].Type)
}

func TestSQLiteIntrospectSchema(t *testing.T) {
	path := seedSQLite(t)
	driver := NewSQLiteDriver()

	pool, _, err := driver.OpenReadOnly(context.Background(), sqliteDescriptor("c1", path))
	require.NoError(t, err)
	defer driver.Close(pool)

	schema, err := driver.IntrospectSchema(context.Background(), pool, nil)
	require.NoError(t, err)
	assert.Equal(t, constants.DatabaseTypeSQLite, schema.EngineKind)
	require.Len(t, schema.Namespaces, 1)
	assert.Equal(t, "main", schema.Namespaces[0].Name)

	require.Len(t, schema.Namespaces[0].Tables, 1)
	table := schema.Namespaces[0].Tables[0]
	assert.Equal(t, "orders", table.Name)
	require.Len(t, table.Columns, 4)
	assert.True(t, table.Columns[0].PrimaryKey)
}

func TestRegistryAcquireAndReuse(t *testing.T) {
	path := seedSQLite(t)
	registry := NewRegistry()
	defer registry.Close()

	desc := sqliteDescriptor("c1", path)
	first, err := registry.Acquire(context.Background(), desc)
	require.NoError(t, err)
	assert.True(t, registry.Has("c1"))

	// Restartable engines get a fresh pool on every acquisition.
	second, err := registry.Acquire(context.Background(), desc)
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	// Re-acquire by id alone uses the stored descriptor.
	third, err := registry.AcquireExisting(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, desc.ID, third.Descriptor.ID)

	_, err = registry.AcquireExisting(context.Background(), "no-such-id")
	assert.Error(t, err)

	require.NoError(t, registry.Release("c1"))
	assert.False(t, registry.Has("c1"))
}

func TestRegistryRejectsInvalidDescriptor(t *testing.T) {
	registry := NewRegistry()
	defer registry.Close()

	_, err := registry.Acquire(context.Background(), ConnectionDescriptor{
		ID:         "bad",
		EngineKind: "oracle",
	})
	assert.Error(t, err)

	// File engine with server config is a shape mismatch.
	_, err = registry.Acquire(context.Background(), ConnectionDescriptor{
		ID:         "bad2",
		EngineKind: constants.DatabaseTypeSQLite,
		Config:     ConnectionConfig{Host: "localhost", Database: "x"},
	})
	assert.Error(t, err)
}

func TestRegistryTestConnection(t *testing.T) {
	path := seedSQLite(t)
	registry := NewRegistry()
	defer registry.Close()

	require.NoError(t, registry.TestConnection(context.Background(), sqliteDescriptor("probe", path)))

	// No pool is registered by a connection test.
	assert.False(t, registry.Has("probe"))
}
