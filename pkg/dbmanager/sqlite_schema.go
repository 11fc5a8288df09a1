package dbmanager

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"querypilot/internal/constants"
)

// IntrospectSchema enumerates the single implicit namespace of a SQLite file.
// The namespace allow-list is ignored: a file engine has nowhere else to look.
func (d *SQLiteDriver) IntrospectSchema(ctx context.Context, pool *Pool, namespaces []string) (*SchemaInfo, error) {
	tableRows, err := pool.DB.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %v", err)
	}
	defer tableRows.Close()

	var tableNames []string
	for tableRows.Next() {
		var name string
		if err := tableRows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %v", err)
		}
		tableNames = append(tableNames, name)
	}
	if err := tableRows.Err(); err != nil {
		return nil, err
	}

	tables := make([]TableSchema, 0, len(tableNames))
	for _, name := range tableNames {
		table, err := d.introspectTable(ctx, pool.DB, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}

	return &SchemaInfo{
		EngineKind: constants.DatabaseTypeSQLite,
		Namespaces: []NamespaceSchema{{Name: "main", Tables: tables}},
		FetchedAt:  time.Now(),
	}, nil
}

func (d *SQLiteDriver) introspectTable(ctx context.Context, db *sql.DB, tableName string) (TableSchema, error) {
	table := TableSchema{Name: tableName}

	// Foreign keys first, keyed by source column.
	fkRows, err := db.QueryContext(ctx,
		`SELECT "from", "table", "to" FROM pragma_foreign_key_list(?)`, tableName)
	if err != nil {
		return table, fmt.Errorf("failed to query foreign keys for %s: %v", tableName, err)
	}
	foreignKeys := make(map[string]*ForeignKeyRef)
	for fkRows.Next() {
		var from, targetTable string
		var to sql.NullString
		if err := fkRows.Scan(&from, &targetTable, &to); err != nil {
			fkRows.Close()
			return table, fmt.Errorf("failed to scan foreign key for %s: %v", tableName, err)
		}
		foreignKeys[from] = &ForeignKeyRef{Table: targetTable, Column: to.String}
	}
	fkRows.Close()
	if err := fkRows.Err(); err != nil {
		return table, err
	}

	// Ordered columns with nullability and primary-key membership.
	colRows, err := db.QueryContext(ctx,
		`SELECT name, type, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`, tableName)
	if err != nil {
		return table, fmt.Errorf("failed to query columns for %s: %v", tableName, err)
	}
	defer colRows.Close()

	for colRows.Next() {
		var name, declaredType string
		var notNull, pk int
		if err := colRows.Scan(&name, &declaredType, &notNull, &pk); err != nil {
			return table, fmt.Errorf("failed to scan column for %s: %v", tableName, err)
		}
		table.Columns = append(table.Columns, ColumnSchema{
			Name:       name,
			Type:       normalizeDeclaredType(declaredType),
			Nullable:   notNull == 0,
			PrimaryKey: pk > 0,
			References: foreignKeys[name],
		})
	}
	if err := colRows.Err(); err != nil {
		return table, err
	}

	// Row counts are skipped: counting a table requires a full scan here,
	// which is not cheap on large files.
	return table, nil
}
