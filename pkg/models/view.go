package models

// ReadingView is a reading as served to dashboards and live consumers
type ReadingView struct {
	SensorReading
	CategoryLabel string `json:"air_quality_label"`
	AQIColor      string `json:"aqi_color"`
	LEDColor      string `json:"led_color"`
}
