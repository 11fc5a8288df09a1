package dbmanager

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"querypilot/internal/constants"
)

// IntrospectSchema enumerates PostgreSQL schemas. With no allow-list every
// non-system schema is scanned. Row counts come from planner statistics
// (pg_class.reltuples), never from a table scan.
func (d *PostgresDriver) IntrospectSchema(ctx context.Context, pool *Pool, namespaces []string) (*SchemaInfo, error) {
	schemaNames, err := d.listSchemas(ctx, pool.DB, namespaces)
	if err != nil {
		return nil, err
	}

	info := &SchemaInfo{
		EngineKind: constants.DatabaseTypePostgreSQL,
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

func (d *PostgresDriver) listSchemas(ctx context.Context, db *sql.DB, allowList []string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT nspname FROM pg_catalog.pg_namespace
		WHERE nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		AND nspname NOT LIKE 'pg_temp_%'
		ORDER BY nspname`)
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
		if len(allowed) > 0 && !allowed[name] {
			continue
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (d *PostgresDriver) introspectNamespace(ctx context.Context, db *sql.DB, schemaName string) (NamespaceSchema, error) {
	namespace := NamespaceSchema{Name: schemaName}

	tableRows, err := db.QueryContext(ctx, `
		SELECT c.relname, c.reltuples::bigint
		FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relkind = 'r'
		ORDER BY c.relname`, schemaName)
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
		var relTuples int64
		if err := tableRows.Scan(&name, &relTuples); err != nil {
			return namespace, fmt.Errorf("failed to scan table for %s: %v", schemaName, err)
		}
		entry := tableEntry{name: name}
		// reltuples is -1 before the first analyze; report nothing then.
		if relTuples >= 0 {
			count := relTuples
			entry.rowCount = &count
		}
		entries = append(entries, entry)
	}
	if err := tableRows.Err(); err != nil {
		return namespace, err
	}

	primaryKeys, err := d.fetchPrimaryKeys(ctx, db, schemaName)
	if err != nil {
		return namespace, err
	}
	foreignKeys, err := d.fetchForeignKeys(ctx, db, schemaName)
	if err != nil {
		return namespace, err
	}

	for _, entry := range entries {
		columns, err := d.fetchColumns(ctx, db, schemaName, entry.name, primaryKeys, foreignKeys)
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

func (d *PostgresDriver) fetchColumns(ctx context.Context, db *sql.DB, schemaName, tableName string, primaryKeys, foreignKeys map[string]*ForeignKeyRef) ([]ColumnSchema, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns for %s.%s: %v", schemaName, tableName, err)
	}
	defer rows.Close()

	var columns []ColumnSchema
	for rows.Next() {
		var name, dataType, isNullable string
		if err := rows.Scan(&name, &dataType, &isNullable); err != nil {
			return nil, fmt.Errorf("failed to scan column for %s.%s: %v", schemaName, tableName, err)
		}
		key := tableName + "." + name
		_, isPrimary := primaryKeys[key]
		columns = append(columns, ColumnSchema{
			Name:       name,
			Type:       normalizeDeclaredType(dataType),
			Nullable:   strings.EqualFold(isNullable, "YES"),
			PrimaryKey: isPrimary,
			References: foreignKeys[key],
		})
	}
	return columns, rows.Err()
}

func (d *PostgresDriver) fetchPrimaryKeys(ctx context.Context, db *sql.DB, schemaName string) (map[string]*ForeignKeyRef, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT tc.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.table_schema = $1 AND tc.constraint_type = 'PRIMARY KEY'`, schemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to query primary keys for %s: %v", schemaName, err)
	}
	defer rows.Close()

	primaryKeys := make(map[string]*ForeignKeyRef)
	for rows.Next() {
		var tableName, columnName string
		if err := rows.Scan(&tableName, &columnName); err != nil {
			return nil, fmt.Errorf("failed to scan primary key for %s: %v", schemaName, err)
		}
		primaryKeys[tableName+"."+columnName] = &ForeignKeyRef{}
	}
	return primaryKeys, rows.Err()
}

func (d *PostgresDriver) fetchForeignKeys(ctx context.Context, db *sql.DB, schemaName string) (map[string]*ForeignKeyRef, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT tc.table_name, kcu.column_name, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.table_schema = $1 AND tc.constraint_type = 'FOREIGN KEY'`, schemaName)
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
