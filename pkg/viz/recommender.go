package viz

import (
	"fmt"
	"regexp"
	"time"
)

// Chart types the recommender can emit.
const (
	ChartTypeTable   = "table"
	ChartTypeKPI     = "kpi"
	ChartTypeLine    = "line"
	ChartTypeArea    = "area"
	ChartTypeBar     = "bar"
	ChartTypePie     = "pie"
	ChartTypeScatter = "scatter"
)

// Column is the shape the recommender needs from a result column.
type Column struct {
	DisplayName string `json:"display_name"`
	Key         string `json:"key"`
	Type        string `json:"type"`
}

// LegendEntry describes one Y-axis series.
type LegendEntry struct {
	Key         string `json:"key"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// Config is the chart recommendation derived from a result set.
type Config struct {
	Type         string        `json:"type"`
	Alternatives []string      `json:"alternatives"`
	XAxis        string        `json:"x_axis,omitempty"`
	YAxis        interface{}   `json:"y_axis,omitempty"` // string for one series, []string for several
	GroupBy      string        `json:"group_by,omitempty"`
	Title        string        `json:"title"`
	Legend       []LegendEntry `json:"legend,omitempty"`
}

// palette is cycled round-robin when assigning legend colors.
var palette = []string{
	"#4E79A7", "#F28E2B", "#E15759", "#76B7B2", "#59A14F",
	"#EDC948", "#B07AA1", "#FF9DA7", "#9C755F", "#BAB0AC",
}

var isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([T ]\d{2}:\d{2}(:\d{2})?)?`)

type columnClass int

const (
	classNumeric columnClass = iota
	classDate
	classCategorical
	classOther
)

// Recommend infers a chart configuration from a result shape. It is a pure
// function of (rows, columns): same input, same recommendation.
func Recommend(rows []map[string]interface{}, columns []Column) Config {
	if len(rows) == 0 {
		return Config{
			Type:         ChartTypeTable,
			Alternatives: []string{},
			Title:        "No data",
		}
	}

	if len(rows) == 1 {
		if len(columns) == 1 {
			return Config{
				Type:         ChartTypeKPI,
				Alternatives: []string{},
				Title:        columns[0].DisplayName,
			}
		}
		if len(columns) <= 5 {
			return Config{
				Type:         ChartTypeKPI,
				Alternatives: []string{ChartTypeTable, ChartTypeBar},
				Title:        "Summary",
			}
		}
		return Config{
			Type:         ChartTypeTable,
			Alternatives: []string{},
			Title:        "Result",
		}
	}

	// Classify each column by sampling the first row.
	classes := make([]columnClass, len(columns))
	var numeric, date, categorical []Column
	for i, col := range columns {
		classes[i] = classifyColumn(col, rows[0][col.Key])
		switch classes[i] {
		case classNumeric:
			numeric = append(numeric, col)
		case classDate:
			date = append(date, col)
		case classCategorical:
			categorical = append(categorical, col)
		}
	}

	switch {
	case len(date) > 0 && len(numeric) > 0:
		cfg := axisConfig(ChartTypeLine, date[0], numeric, "Trend over time")
		cfg.Alternatives = []string{ChartTypeArea, ChartTypeBar, ChartTypeTable}
		return cfg

	case len(categorical) > 0 && len(numeric) > 0:
		chartType := ChartTypeBar
		if len(rows) <= 10 {
			chartType = ChartTypePie
		}
		cfg := axisConfig(chartType, categorical[0], numeric, "Breakdown by "+categorical[0].DisplayName)
		cfg.Alternatives = []string{ChartTypeTable}
		if chartType == ChartTypePie {
			cfg.GroupBy = categorical[0].Key
		}
		return cfg

	case len(numeric) >= 2:
		cfg := axisConfig(ChartTypeScatter, numeric[0], numeric[1:2], "Correlation")
		cfg.Alternatives = []string{ChartTypeTable}
		return cfg

	default:
		alternatives := []string{}
		if len(rows) <= 20 {
			alternatives = append(alternatives, ChartTypeBar)
		}
		return Config{
			Type:         ChartTypeTable,
			Alternatives: alternatives,
			Title:        "Result",
		}
	}
}

// axisConfig assigns the X axis to the leading column and the remaining
// series to Y: a scalar key for one series, a list for several.
func axisConfig(chartType string, x Column, ySeries []Column, title string) Config {
	cfg := Config{
		Type:  chartType,
		XAxis: x.Key,
		Title: title,
	}

	if len(ySeries) == 1 {
		cfg.YAxis = ySeries[0].Key
	} else {
		keys := make([]string, len(ySeries))
		for i, col := range ySeries {
			keys[i] = col.Key
		}
		cfg.YAxis = keys
	}

	for i, col := range ySeries {
		cfg.Legend = append(cfg.Legend, LegendEntry{
			Key:         col.Key,
			Color:       palette[i%len(palette)],
			Description: fmt.Sprintf("%s column: %s", chartType, col.Key),
		})
	}

	return cfg
}

// classifyColumn prefers the declared column type and falls back to the
// sampled value from the first row when the type is unreported.
func classifyColumn(col Column, sample interface{}) columnClass {
	switch col.Type {
	case "integer", "decimal":
		return classNumeric
	case "datetime", "date":
		return classDate
	case "text":
		if s, ok := sample.(string); ok && isoDatePattern.MatchString(s) {
			return classDate
		}
		return classCategorical
	case "boolean", "binary":
		return classOther
	}

	switch v := sample.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return classNumeric
	case time.Time:
		return classDate
	case string:
		if isoDatePattern.MatchString(v) {
			return classDate
		}
		return classCategorical
	}
	return classOther
}
