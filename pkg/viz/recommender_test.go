package viz

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func col(key, colType string) Column {
	return Column{DisplayName: key, Key: key, Type: colType}
}

func TestRecommendEmptyResult(t *testing.T) {
	cfg := Recommend(nil, []Column{col("id", "integer")})

	assert.Equal(t, ChartTypeTable, cfg.Type)
	assert.Equal(t, "No data", cfg.Title)
}

func TestRecommendSingleValueIsKPI(t *testing.T) {
	rows := []map[string]interface{}{{"total": int64(42)}}
	cfg := Recommend(rows, []Column{col("total", "integer")})

	assert.Equal(t, ChartTypeKPI, cfg.Type)
	assert.Empty(t, cfg.Alternatives)
}

func TestRecommendSingleRowFewColumns(t *testing.T) {
	rows := []map[string]interface{}{{"orders": int64(10), "revenue": 99.5, "refunds": int64(1)}}
	columns := []Column{col("orders", "integer"), col("revenue", "decimal"), col("refunds", "integer")}

	cfg := Recommend(rows, columns)
	assert.Equal(t, ChartTypeKPI, cfg.Type)
	assert.Equal(t, []string{ChartTypeTable, ChartTypeBar}, cfg.Alternatives)
}

func TestRecommendDateAndNumericIsLine(t *testing.T) {
	rows := []map[string]interface{}{
		{"day": "2024-01-01", "count": int64(5)},
		{"day": "2024-01-02", "count": int64(7)},
	}
	columns := []Column{col("day", "text"), col("count", "integer")}

	cfg := Recommend(rows, columns)
	require.Equal(t, ChartTypeLine, cfg.Type)
	assert.Equal(t, "day", cfg.XAxis)
	assert.Equal(t, "count", cfg.YAxis)
	assert.Contains(t, cfg.Alternatives, ChartTypeArea)

	require.Len(t, cfg.Legend, 1)
	assert.Equal(t, "count", cfg.Legend[0].Key)
	assert.Equal(t, "line column: count", cfg.Legend[0].Description)
}

func TestRecommendCategoricalSmallCardinalityIsPie(t *testing.T) {
	rows := []map[string]interface{}{
		{"region": "north", "total": 10.0},
		{"region": "south", "total": 20.0},
		{"region": "east", "total": 15.0},
	}
	columns := []Column{col("region", "text"), col("total", "decimal")}

	cfg := Recommend(rows, columns)
	assert.Equal(t, ChartTypePie, cfg.Type)
	assert.Equal(t, "region", cfg.GroupBy)
}

func TestRecommendCategoricalLargeCardinalityIsBar(t *testing.T) {
	rows := make([]map[string]interface{}, 11)
	for i := range rows {
		rows[i] = map[string]interface{}{"sku": fmt.Sprintf("sku-%c", 'a'+i), "sold": int64(i)}
	}
	columns := []Column{col("sku", "text"), col("sold", "integer")}

	cfg := Recommend(rows, columns)
	assert.Equal(t, ChartTypeBar, cfg.Type)
	assert.Equal(t, "sku", cfg.XAxis)
	assert.Equal(t, "sold", cfg.YAxis)
}

func TestRecommendTwoNumericIsScatter(t *testing.T) {
	rows := []map[string]interface{}{
		{"height": 1.7, "weight": 70.0},
		{"height": 1.8, "weight": 80.0},
	}
	columns := []Column{col("height", "decimal"), col("weight", "decimal")}

	cfg := Recommend(rows, columns)
	assert.Equal(t, ChartTypeScatter, cfg.Type)
	assert.Equal(t, "height", cfg.XAxis)
	assert.Equal(t, "weight", cfg.YAxis)
}

func TestRecommendMultipleSeriesLegendColors(t *testing.T) {
	rows := []map[string]interface{}{
		{"day": "2024-01-01", "clicks": int64(5), "views": int64(50)},
		{"day": "2024-01-02", "clicks": int64(9), "views": int64(70)},
	}
	columns := []Column{col("day", "text"), col("clicks", "integer"), col("views", "integer")}

	cfg := Recommend(rows, columns)
	require.Equal(t, ChartTypeLine, cfg.Type)
	assert.Equal(t, []string{"clicks", "views"}, cfg.YAxis)

	require.Len(t, cfg.Legend, 2)
	assert.NotEqual(t, cfg.Legend[0].Color, cfg.Legend[1].Color)
}

func TestRecommendFallbackTable(t *testing.T) {
	rows := []map[string]interface{}{
		{"flag": true},
		{"flag": false},
	}
	columns := []Column{col("flag", "boolean")}

	cfg := Recommend(rows, columns)
	assert.Equal(t, ChartTypeTable, cfg.Type)
	assert.Equal(t, []string{ChartTypeBar}, cfg.Alternatives)
}

func TestRecommendIsDeterministic(t *testing.T) {
	rows := []map[string]interface{}{
		{"day": "2024-01-01", "count": int64(5)},
		{"day": "2024-01-02", "count": int64(7)},
	}
	columns := []Column{col("day", "text"), col("count", "integer")}

	first := Recommend(rows, columns)
	second := Recommend(rows, columns)
	assert.Equal(t, first, second)
}
