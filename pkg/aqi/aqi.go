// Package aqi derives the air quality index and its category from a
// corrected particulate concentration. Classify is the only place where
// either value is computed.
package aqi

import (
	"math"

	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/models"
)

const (
	// MinAQI and MaxAQI bound every index produced by Classify
	MinAQI = 0
	MaxAQI = 500
)

// Classify maps a dust density in µg/m³ to an index in [0, 500] and the
// category of that clamped index.
func Classify(dust float64) (int, models.Category) {
	index := Index(dust)
	return index, CategoryFor(index)
}

// Index applies the piecewise linear breakpoints and clamps the result
func Index(dust float64) int {
	if math.IsNaN(dust) {
		return MinAQI
	}

	var value float64
	switch {
	case dust <= 50:
		value = dust
	case dust <= 100:
		value = 50 + (dust-50)*0.5
	default:
		value = 75 + (dust-100)*0.75
	}

	// clamp before converting so huge inputs cannot overflow int
	value = math.Floor(value)
	if value < MinAQI {
		return MinAQI
	}
	if value > MaxAQI {
		return MaxAQI
	}
	return int(value)
}

// CategoryFor returns the category of an already clamped index
func CategoryFor(index int) models.Category {
	switch {
	case index <= 50:
		return models.CategoryGood
	case index <= 100:
		return models.CategoryModerate
	case index <= 150:
		return models.CategoryUnhealthySensitive
	case index <= 200:
		return models.CategoryUnhealthy
	case index <= 300:
		return models.CategoryVeryUnhealthy
	default:
		return models.CategoryHazardous
	}
}

// Color returns the dashboard hex colour of a category
func Color(c models.Category) string {
	switch c {
	case models.CategoryGood:
		return "#00E400"
	case models.CategoryModerate:
		return "#FFFF00"
	case models.CategoryUnhealthySensitive:
		return "#FF7E00"
	case models.CategoryUnhealthy:
		return "#FF0000"
	case models.CategoryVeryUnhealthy:
		return "#8F3F97"
	default:
		return "#7E0023"
	}
}

// LEDColor returns the colour the device status LED should show for an index
func LEDColor(index int) string {
	switch {
	case index <= 100:
		return "GREEN"
	case index <= 200:
		return "YELLOW"
	default:
		return "RED"
	}
}

// View decorates a reading with its display label and colours
func View(r models.SensorReading) models.ReadingView {
	return models.ReadingView{
		SensorReading: r,
		CategoryLabel: r.Category.Label(),
		AQIColor:      Color(r.Category),
		LEDColor:      LEDColor(r.AQI),
	}
}
