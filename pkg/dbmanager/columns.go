package dbmanager

import (
	"database/sql"
	"strings"
	"time"

	"querypilot/pkg/viz"
)

// Normalized column types shared across engines.
const (
	ColumnTypeInteger  = "integer"
	ColumnTypeDecimal  = "decimal"
	ColumnTypeText     = "text"
	ColumnTypeBoolean  = "boolean"
	ColumnTypeDateTime = "datetime"
	ColumnTypeBinary   = "binary"
	ColumnTypeUnknown  = "unknown"
)

// scanRows drains a result set into generic row maps. Byte slices are
// converted to strings so JSON encoding stays readable.
func scanRows(rows *sql.Rows) ([]map[string]interface{}, []string, error) {
	columnNames, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var result []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columnNames))
		pointers := make([]interface{}, len(columnNames))
		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, nil, err
		}

		row := make(map[string]interface{}, len(columnNames))
		for i, name := range columnNames {
			if b, ok := values[i].([]byte); ok {
				row[name] = string(b)
			} else {
				row[name] = values[i]
			}
		}
		result = append(result, row)
	}

	return result, columnNames, rows.Err()
}

// normalizeColumns builds the presentation columns for a result set. The
// engine-declared type wins; only an unreported type falls back to inference
// from the first row's runtime value.
func normalizeColumns(columnNames []string, columnTypes []*sql.ColumnType, firstRow map[string]interface{}) []viz.Column {
	columns := make([]viz.Column, len(columnNames))
	for i, name := range columnNames {
		declared := ColumnTypeUnknown
		if i < len(columnTypes) && columnTypes[i] != nil {
			declared = normalizeDeclaredType(columnTypes[i].DatabaseTypeName())
		}
		if declared == ColumnTypeUnknown && firstRow != nil {
			declared = inferTypeFromValue(firstRow[name])
		}

		columns[i] = viz.Column{
			DisplayName: displayName(name),
			Key:         name,
			Type:        declared,
		}
	}
	return columns
}

// normalizeDeclaredType maps an engine's declared column type onto the shared
// taxonomy. Declared names vary wildly across the three engines, so matching
// is by family keyword.
func normalizeDeclaredType(dbType string) string {
	t := strings.ToUpper(dbType)
	switch {
	case t == "":
		return ColumnTypeUnknown
	case strings.Contains(t, "INT") || t == "SERIAL" || t == "BIGSERIAL" || t == "YEAR":
		return ColumnTypeInteger
	case strings.Contains(t, "DOUBLE") || strings.Contains(t, "FLOAT") ||
		strings.Contains(t, "REAL") || strings.Contains(t, "DECIMAL") ||
		strings.Contains(t, "NUMERIC") || strings.Contains(t, "MONEY"):
		return ColumnTypeDecimal
	case strings.Contains(t, "BOOL") || t == "BIT":
		return ColumnTypeBoolean
	case strings.Contains(t, "TIMESTAMP") || strings.Contains(t, "DATE") || strings.Contains(t, "TIME"):
		return ColumnTypeDateTime
	case strings.Contains(t, "BLOB") || strings.Contains(t, "BYTEA") || strings.Contains(t, "BINARY"):
		return ColumnTypeBinary
	case strings.Contains(t, "CHAR") || strings.Contains(t, "TEXT") ||
		strings.Contains(t, "UUID") || strings.Contains(t, "JSON") || strings.Contains(t, "ENUM"):
		return ColumnTypeText
	}
	return ColumnTypeUnknown
}

// inferTypeFromValue classifies a runtime value when the engine reported no
// type. Fallback only, never an override of a declared type.
func inferTypeFromValue(value interface{}) string {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return ColumnTypeInteger
	case float32, float64:
		return ColumnTypeDecimal
	case bool:
		return ColumnTypeBoolean
	case time.Time:
		return ColumnTypeDateTime
	case []byte:
		return ColumnTypeBinary
	case string:
		return ColumnTypeText
	}
	return ColumnTypeUnknown
}

// displayName turns a raw column identifier into a human-readable label:
// snake_case becomes Title Case, the raw key stays untouched for lookups.
func displayName(key string) string {
	parts := strings.Split(key, "_")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, " ")
}
