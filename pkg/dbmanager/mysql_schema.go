package dbmanager

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"querypilot/internal/constants"
)

// IntrospectSchema enumerates MySQL schemas through information_schema. With
// no allow-list every non-system schema is scanned; system schemas are never
// included even when named explicitly.
func (d *MySQLDriver) IntrospectSchema(ctx context.Context, pool *Pool, namespaces []string) (*SchemaInfo, error) {
	schemaNames, err := d.listSchemas(ctx, pool.DB, namespaces)
	if err != nil {
		return nil, err
	}

	info := &SchemaInfo{
		EngineKind: constants.DatabaseTypeMySQL,
		FetchedAt:  time.Now(),
	}
	for _, schemaName := range schemaNames {
		namespace, err := d.introspectNamespace(ctx, pool.DB, schemaName)
		if err != nil {
			return nil, err
		}
		info.Namespaces = append(info.Namespaces, namespace)
	}
	return info, nil
}

var mysqlSystemSchemas = map[string]bool{
	"information_schema": true,
	"performance_schema": true,
	"mysql":              true,
	"sys":                true,
}

func (d *MySQLDriver) listSchemas(ctx context.Context, db *sql.DB, allowList []string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT schema_name FROM information_schema.schemata ORDER BY schema_name")
	if err != nil {
		return nil, fmt.Errorf("failed to query schemas: %v", err)
	}
	defer rows.Close()

	allowed := make(map[string]bool, len(allowList))
	for _, name := range allowList {
		allowed[name] = true
	}

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan schema name: %v", err)
		}
		if mysqlSystemSchemas[strings.ToLower(name)] {
			continue
		}
		if len(allowed) > 0 && !allowed[name] {
			continue
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (d *MySQLDriver) introspectNamespace(ctx context.Context, db *sql.DB, schemaName string) (NamespaceSchema, error) {
	namespace := NamespaceSchema{Name: schemaName}

	// table_rows is a storage-engine estimate, which is exactly the
	// best-effort row count wanted here.
	tableRows, err := db.QueryContext(ctx, `
		SELECT table_name, table_rows
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name`, schemaName)
	if err != nil {
		return namespace, fmt.Errorf("failed to query tables for %s: %v", schemaName, err)
	}
	defer tableRows.Close()

	type tableEntry struct {
		name     string
		rowCount *int64
	}
	var entries []tableEntry
	for tableRows.Next() {
		var name string
		var rowCount sql.NullInt64
		if err := tableRows.Scan(&name, &rowCount); err != nil {
			return namespace, fmt.Errorf("failed to scan table for %s: %v", schemaName, err)
		}
		entry := tableEntry{name: name}
		if rowCount.Valid {
			entry.rowCount = &rowCount.Int64
		}
		entries = append(entries, entry)
	}
	if err := tableRows.Err(); err != nil {
		return namespace, err
	}

	foreignKeys, err := d.fetchForeignKeys(ctx, db, schemaName)
	if err != nil {
		return namespace, err
	}

	for _, entry := range entries {
		columns, err := d.fetchColumns(ctx, db, schemaName, entry.name, foreignKeys)
		if err != nil {
			return namespace, err
		}
		namespace.Tables = append(namespace.Tables, TableSchema{
			Name:     entry.name,
			Columns:  columns,
			RowCount: entry.rowCount,
		})
	}
	return namespace, nil
}

func (d *MySQLDriver) fetchColumns(ctx context.Context, db *sql.DB, schemaName, tableName string, foreignKeys map[string]*ForeignKeyRef) ([]ColumnSchema, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable, column_key
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns for %s.%s: %v", schemaName, tableName, err)
	}
	defer rows.Close()

	var columns []ColumnSchema
	for rows.Next() {
		var name, dataType, isNullable, columnKey string
		if err := rows.Scan(&name, &dataType, &isNullable, &columnKey); err != nil {
			return nil, fmt.Errorf("failed to scan column for %s.%s: %v", schemaName, tableName, err)
		}
		columns = append(columns, ColumnSchema{
			Name:       name,
			Type:       normalizeDeclaredType(dataType),
			Nullable:   strings.EqualFold(isNullable, "YES"),
			PrimaryKey: columnKey == "PRI",
			References: foreignKeys[tableName+"."+name],
		})
	}
	return columns, rows.Err()
}

// fetchForeignKeys loads all declared references for a schema in one pass,
// keyed by "table.column".
func (d *MySQLDriver) fetchForeignKeys(ctx context.Context, db *sql.DB, schemaName string) (map[string]*ForeignKeyRef, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_name, column_name, referenced_table_name, referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ? AND referenced_table_name IS NOT NULL`, schemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys for %s: %v", schemaName, err)
	}
	defer rows.Close()

	foreignKeys := make(map[string]*ForeignKeyRef)
	for rows.Next() {
		var tableName, columnName, refTable, refColumn string
		if err := rows.Scan(&tableName, &columnName, &refTable, &refColumn); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key for %s: %v", schemaName, err)
		}
		foreignKeys[tableName+"."+columnName] = &ForeignKeyRef{Table: refTable, Column: refColumn}
	}
	return foreignKeys, rows.Err()
}
