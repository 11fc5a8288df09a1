package dbmanager

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"querypilot/internal/constants"
	"querypilot/pkg/viz"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLiteDriver is the file-backed engine adapter. The file handle is opened
// in OS-level read-only mode whenever possible, and the pool is recreated on
// every acquisition so the latest on-disk content is honored.
type SQLiteDriver struct{}

func NewSQLiteDriver() Driver {
	return &SQLiteDriver{}
}

func (d *SQLiteDriver) OpenReadOnly(ctx context.Context, desc ConnectionDescriptor) (*Pool, string, error) {
	status := constants.ReadOnlyStatusUnknown

	// Most restrictive mode first: OS-level read-only file handle.
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", desc.Config.FilePath)
	db, err := sql.Open("sqlite3", dsn)
	if err == nil {
		err = db.PingContext(ctx)
	}
	if err != nil {
		if db != nil {
			db.Close()
		}
		log.Printf("SQLiteDriver -> OpenReadOnly -> Read-only open failed, falling back to read-write: %v", err)

		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000", desc.Config.FilePath)
		db, err = sql.Open("sqlite3", dsn)
		if err == nil {
			err = db.PingContext(ctx)
		}
		if err != nil {
			if db != nil {
				db.Close()
			}
			return nil, status, fmt.Errorf("failed to open sqlite file %s: %v", desc.Config.FilePath, err)
		}
	}

	// A single connection keeps session pragmas effective for the pool's
	// whole lifetime.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	// Defense in depth: force the session read-only even if the file handle
	// fell back to read-write mode. Failure is tolerated; the probe below
	// reports the real posture.
	if _, err := db.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		log.Printf("SQLiteDriver -> OpenReadOnly -> Failed to set query_only pragma: %v", err)
	}

	// Probe the actual posture rather than trusting the request succeeded.
	var queryOnly int
	if err := db.QueryRowContext(ctx, "PRAGMA query_only").Scan(&queryOnly); err != nil {
		log.Printf("SQLiteDriver -> OpenReadOnly -> Posture probe failed: %v", err)
		status = constants.ReadOnlyStatusUnknown
	} else if queryOnly == 1 {
		status = constants.ReadOnlyStatusReadOnly
	} else {
		status = constants.ReadOnlyStatusReadWrite
	}

	gormDB, err := gorm.Open(sqlite.New(sqlite.Config{Conn: db}), &gorm.Config{})
	if err != nil {
		db.Close()
		return nil, status, fmt.Errorf("failed to create GORM connection: %v", err)
	}

	pool := &Pool{
		DB:             db,
		GORMDB:         gormDB,
		Descriptor:     desc,
		ReadOnlyStatus: status,
		OpenedAt:       time.Now(),
	}
	return pool, status, nil
}

func (d *SQLiteDriver) Close(pool *Pool) error {
	if pool == nil || pool.DB == nil {
		return nil
	}
	if err := pool.DB.Close(); err != nil {
		return fmt.Errorf("failed to close sqlite pool: %v", err)
	}
	return nil
}

func (d *SQLiteDriver) Ping(ctx context.Context, pool *Pool) error {
	var one int
	return pool.DB.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

func (d *SQLiteDriver) IsAlive(ctx context.Context, pool *Pool) bool {
	// A file handle cannot report server-side liveness; the registry
	// recreates the pool on every acquisition anyway.
	return false
}

func (d *SQLiteDriver) Restartable() bool {
	return true
}

func (d *SQLiteDriver) Execute(ctx context.Context, pool *Pool, sqlText string) ([]map[string]interface{}, []viz.Column, error) {
	rows, err := pool.DB.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columnTypes, _ := rows.ColumnTypes()
	data, columnNames, err := scanRows(rows)
	if err != nil {
		return nil, nil, err
	}

	var firstRow map[string]interface{}
	if len(data) > 0 {
		firstRow = data[0]
	}
	return data, normalizeColumns(columnNames, columnTypes, firstRow), nil
}
