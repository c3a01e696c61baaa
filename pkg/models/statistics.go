package models

import "time"

// MetricStats holds the aggregates of one numeric column over a window
type MetricStats struct {
	Avg *float64 `json:"avg"`
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

// Statistics is the response of the statistics endpoint
type Statistics struct {
	Temperature         MetricStats      `json:"temperature"`
	Humidity            MetricStats      `json:"humidity"`
	GasLevel            MetricStats      `json:"gas_level"`
	DustDensity         MetricStats      `json:"dust_density"`
	AQI                 MetricStats      `json:"aqi"`
	QualityDistribution map[Category]int `json:"quality_distribution"`
	TotalRecords        int              `json:"total_records"`
	TimeRangeHours      int              `json:"time_range_hours"`
}

// ChartData is the column-oriented series consumed by dashboard charts
type ChartData struct {
	Labels      []string  `json:"labels"`
	Temperature []float64 `json:"temperature"`
	Humidity    []float64 `json:"humidity"`
	GasLevel    []float64 `json:"gas_level"`
	DustDensity []float64 `json:"dust_density"`
	AQI         []int     `json:"aqi"`
}

// NewChartData converts readings (ascending by time) to chart series
func NewChartData(readings []SensorReading) ChartData {
	chart := ChartData{
		Labels:      make([]string, 0, len(readings)),
		Temperature: make([]float64, 0, len(readings)),
		Humidity:    make([]float64, 0, len(readings)),
		GasLevel:    make([]float64, 0, len(readings)),
		DustDensity: make([]float64, 0, len(readings)),
		AQI:         make([]int, 0, len(readings)),
	}
	for _, r := range readings {
		chart.Labels = append(chart.Labels, r.Timestamp.Format("15:04"))
		chart.Temperature = append(chart.Temperature, r.Temperature)
		chart.Humidity = append(chart.Humidity, r.Humidity)
		chart.GasLevel = append(chart.GasLevel, r.CorrectedGas)
		chart.DustDensity = append(chart.DustDensity, r.CorrectedDust)
		chart.AQI = append(chart.AQI, r.AQI)
	}
	return chart
}

// RealtimeSnapshot is the write-reduction cache as seen by dashboards
type RealtimeSnapshot struct {
	Latest      *SensorReading `json:"latest"`
	ReceivedAt  *time.Time     `json:"received_at"`
	LastSavedAt *time.Time     `json:"last_saved_at"`
	NextSaveDue *time.Time     `json:"next_save_due"`
}
