package dbmanager

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"querypilot/internal/constants"
	"querypilot/pkg/viz"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// MySQLDriver is the session-oriented client/server adapter. Every pooled
// connection carries the read-only transaction characteristic plus the most
// permissive-for-reads isolation level, both applied through DSN system
// variables so they survive pool churn.
type MySQLDriver struct{}

func NewMySQLDriver() Driver {
	return &MySQLDriver{}
}

func buildMySQLDSN(config ConnectionConfig) string {
	port := constants.DefaultMySQLPort
	if config.Port != nil && *config.Port != "" {
		port = *config.Port
	}

	auth := ""
	if config.Username != nil {
		auth = *config.Username
		if config.Password != nil {
			auth += ":" + *config.Password
		}
		auth += "@"
	}

	dsn := fmt.Sprintf("%stcp(%s:%s)/%s?parseTime=true", auth, config.Host, port, config.Database)

	// Session-scoped read-only characteristic and READ UNCOMMITTED isolation
	// as defense in depth, independent of true database-level read-only.
	dsn += "&transaction_read_only=1&transaction_isolation=%27READ-UNCOMMITTED%27"

	if config.UseSSL {
		if config.SSLMode != nil && *config.SSLMode == "require" {
			dsn += "&tls=skip-verify"
		} else {
			dsn += "&tls=true"
		}
	}
	return dsn
}

func (d *MySQLDriver) OpenReadOnly(ctx context.Context, desc ConnectionDescriptor) (*Pool, string, error) {
	db, err := sql.Open("mysql", buildMySQLDSN(desc.Config))
	if err != nil {
		return nil, constants.ReadOnlyStatusUnknown, fmt.Errorf("failed to create connection: %v", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, constants.ReadOnlyStatusUnknown, fmt.Errorf("failed to connect to MySQL at %s: %v", desc.Config.Host, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	status := d.probeReadOnly(ctx, db)

	gormDB, err := gorm.Open(mysql.New(mysql.Config{Conn: db}), &gorm.Config{})
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

// probeReadOnly asks the server for the effective posture instead of trusting
// that the DSN hint was honored.
func (d *MySQLDriver) probeReadOnly(ctx context.Context, db *sql.DB) string {
	var sessionReadOnly int
	if err := db.QueryRowContext(ctx, "SELECT @@session.transaction_read_only").Scan(&sessionReadOnly); err != nil {
		log.Printf("MySQLDriver -> probeReadOnly -> Posture probe failed: %v", err)
		return constants.ReadOnlyStatusUnknown
	}
	if sessionReadOnly == 1 {
		return constants.ReadOnlyStatusReadOnly
	}
	return constants.ReadOnlyStatusReadWrite
}

func (d *MySQLDriver) Close(pool *Pool) error {
	if pool == nil || pool.DB == nil {
		return nil
	}
	if err := pool.DB.Close(); err != nil {
		return fmt.Errorf("failed to close MySQL pool: %v", err)
	}
	return nil
}

func (d *MySQLDriver) Ping(ctx context.Context, pool *Pool) error {
	var one int
	return pool.DB.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

func (d *MySQLDriver) IsAlive(ctx context.Context, pool *Pool) bool {
	return pool.DB.PingContext(ctx) == nil
}

func (d *MySQLDriver) Restartable() bool {
	return false
}

func (d *MySQLDriver) Execute(ctx context.Context, pool *Pool, sqlText string) ([]map[string]interface{}, []viz.Column, error) {
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
