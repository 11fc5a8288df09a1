package dbmanager

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"querypilot/internal/constants"
	"querypilot/pkg/viz"

	_ "github.com/lib/pq" // PostgreSQL driver
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PostgresDriver is the connection-oriented client/server adapter. The
// read-only transaction default is pushed through startup options so every
// pooled connection inherits it.
type PostgresDriver struct{}

func NewPostgresDriver() Driver {
	return &PostgresDriver{}
}

func buildPostgresDSN(config ConnectionConfig) string {
	port := constants.DefaultPostgreSQLPort
	if config.Port != nil && *config.Port != "" {
		port = *config.Port
	}

	dsn := fmt.Sprintf("host=%s port=%s dbname=%s", config.Host, port, config.Database)
	if config.Username != nil {
		dsn += fmt.Sprintf(" user=%s", *config.Username)
	}
	if config.Password != nil {
		dsn += fmt.Sprintf(" password=%s", *config.Password)
	}

	if config.UseSSL {
		sslMode := "require"
		if config.SSLMode != nil {
			sslMode = *config.SSLMode
		}
		dsn += fmt.Sprintf(" sslmode=%s", sslMode)
	} else {
		dsn += " sslmode=disable"
	}

	// Session-scoped read-only default for every connection in the pool.
	dsn += " options='-c default_transaction_read_only=on'"
	return dsn
}

func (d *PostgresDriver) OpenReadOnly(ctx context.Context, desc ConnectionDescriptor) (*Pool, string, error) {
	db, err := sql.Open("postgres", buildPostgresDSN(desc.Config))
	if err != nil {
		return nil, constants.ReadOnlyStatusUnknown, fmt.Errorf("failed to create connection: %v", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, constants.ReadOnlyStatusUnknown, fmt.Errorf("failed to connect to PostgreSQL at %s: %v", desc.Config.Host, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	status := d.probeReadOnly(ctx, db)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
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

func (d *PostgresDriver) probeReadOnly(ctx context.Context, db *sql.DB) string {
	var setting string
	if err := db.QueryRowContext(ctx, "SHOW transaction_read_only").Scan(&setting); err != nil {
		log.Printf("PostgresDriver -> probeReadOnly -> Posture probe failed: %v", err)
		return constants.ReadOnlyStatusUnknown
	}
	if setting == "on" {
		return constants.ReadOnlyStatusReadOnly
	}
	return constants.ReadOnlyStatusReadWrite
}

func (d *PostgresDriver) Close(pool *Pool) error {
	if pool == nil || pool.DB == nil {
		return nil
	}
	if err := pool.DB.Close(); err != nil {
		return fmt.Errorf("failed to close PostgreSQL pool: %v", err)
	}
	return nil
}

func (d *PostgresDriver) Ping(ctx context.Context, pool *Pool) error {
	var one int
	return pool.DB.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

func (d *PostgresDriver) IsAlive(ctx context.Context, pool *Pool) bool {
	return pool.DB.PingContext(ctx) == nil
}

func (d *PostgresDriver) Restartable() bool {
	return false
}

func (d *PostgresDriver) Execute(ctx context.Context, pool *Pool, sqlText string) ([]map[string]interface{}, []viz.Column, error) {
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
