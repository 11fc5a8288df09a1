package dbmanager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDeclaredType(t *testing.T) {
	cases := map[string]string{
		"INTEGER":          ColumnTypeInteger,
		"BIGINT":           ColumnTypeInteger,
		"smallint":         ColumnTypeInteger,
		"DECIMAL(10,2)":    ColumnTypeDecimal,
		"DOUBLE PRECISION": ColumnTypeDecimal,
		"REAL":             ColumnTypeDecimal,
		"VARCHAR(255)":     ColumnTypeText,
		"TEXT":             ColumnTypeText,
		"BOOLEAN":          ColumnTypeBoolean,
		"TIMESTAMP":        ColumnTypeDateTime,
		"DATE":             ColumnTypeDateTime,
		"BLOB":             ColumnTypeBinary,
		"GEOMETRY":         ColumnTypeUnknown,
	}
	for declared, want := range cases {
		assert.Equal(t, want, normalizeDeclaredType(declared), "declared type %q", declared)
	}
}

func TestInferTypeFromValue(t *testing.T) {
	assert.Equal(t, ColumnTypeInteger, inferTypeFromValue(int64(7)))
	assert.Equal(t, ColumnTypeDecimal, inferTypeFromValue(3.14))
	assert.Equal(t, ColumnTypeBoolean, inferTypeFromValue(true))
	assert.Equal(t, ColumnTypeDateTime, inferTypeFromValue(time.Now()))
	assert.Equal(t, ColumnTypeText, inferTypeFromValue("hello"))
	assert.Equal(t, ColumnTypeUnknown, inferTypeFromValue(nil))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Total Revenue", displayName("total_revenue"))
	assert.Equal(t, "Id", displayName("id"))
	assert.Equal(t, "Customer Name", displayName("customer_name"))
}
