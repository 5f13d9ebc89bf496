package form

import (
	"fmt"

	"github.com/couchcryptid/microsense/internal/domain"
)

// Axis names one of the five raw sensory slider values.
type Axis string

const (
	Intensity   Axis = "intensity"
	Visibility  Axis = "visibility"
	Humidity    Axis = "humidity"
	WindSpeed   Axis = "windSpeed"
	Temperature Axis = "temperature"
)

// Axes lists every raw axis.
var Axes = []Axis{Intensity, Visibility, Humidity, WindSpeed, Temperature}

// Slider describes how one raw axis is presented under a condition.
type Slider struct {
	Axis  Axis
	Label string
	Unit  string
	// Describe renders a raw 0-100 value as display text.
	Describe func(v int) string
}

// Layout is the condition-specific form configuration: four sliders and
// four odor options, the first of which is the default.
type Layout struct {
	Sliders []Slider
	Odors   []string
}

// LayoutFor returns the layout for c. Unknown conditions get the Sunny layout.
func LayoutFor(c domain.Condition) Layout {
	if l, ok := layouts[c]; ok {
		return l
	}
	return layouts[domain.Sunny]
}

func tiers(v int, labels []string, bounds ...int) string {
	for i, b := range bounds {
		if v < b {
			return labels[i]
		}
	}
	return labels[len(labels)-1]
}

func percent(v int) string { return fmt.Sprintf("%d%%", v) }

func km(maxKM float64) func(int) string {
	return func(v int) string {
		return domain.FormatFixed(float64(v)/100*maxKM, 1) + " km"
	}
}

func celsius(base, span float64) func(int) string {
	return func(v int) string {
		return domain.FormatFixed(base+float64(v)/100*span, 1) + "°C"
	}
}

func kmh(base, span float64) func(int) string {
	return func(v int) string {
		return domain.FormatFixed(base+float64(v)/100*span, 0) + " km/h"
	}
}

var layouts = map[domain.Condition]Layout{
	domain.Sunny: {
		Sliders: []Slider{
			{Intensity, "UV Index / Sun Intensity", "", func(v int) string {
				return tiers(v, []string{"Low (1-3)", "Moderate (4-6)", "High (7-9)", "Extreme (10+)"}, 30, 60, 80)
			}},
			{Temperature, "Temperature Feel", "°C", celsius(25, 12)},
			{Humidity, "Humidity", "%", percent},
			{Visibility, "Visibility", "km", km(10)},
		},
		Odors: []string{"Fresh", "Neutral", "Dusty", "Hot Air"},
	},
	domain.Cloudy: {
		Sliders: []Slider{
			{Intensity, "Cloud Coverage", "%", func(v int) string {
				return tiers(v, []string{"Partly Cloudy (25%)", "Mostly Cloudy (50%)", "Overcast (75%)", "Complete Cover (100%)"}, 25, 50, 75)
			}},
			{Humidity, "Humidity", "%", percent},
			{Temperature, "Temperature Feel", "°C", celsius(24, 10)},
			{Visibility, "Visibility", "km", km(10)},
		},
		Odors: []string{"Fresh", "Neutral", "Damp", "Earthy"},
	},
	domain.Rainy: {
		Sliders: []Slider{
			{Intensity, "Rainfall Intensity", "mm/h", func(v int) string {
				return tiers(v, []string{"Light (2 mm/h)", "Moderate (7 mm/h)", "Heavy (15 mm/h)", "Extreme (50+ mm/h)"}, 25, 50, 75)
			}},
			{Visibility, "Visibility", "km", km(5)},
			// Rain implies high humidity.
			{Humidity, "Humidity", "%", func(v int) string { return percent(max(70, v)) }},
			{WindSpeed, "Wind with Rain", "km/h", kmh(0, 40)},
		},
		Odors: []string{"Fresh Rain", "Wet Earth", "Neutral", "Damp"},
	},
	domain.Windy: {
		Sliders: []Slider{
			{WindSpeed, "Wind Speed", "km/h", func(v int) string {
				speed := domain.FormatFixed(float64(v)/100*60, 0)
				tier := tiers(v, []string{"Light", "Moderate", "Strong", "Gale Force"}, 25, 50, 75)
				return fmt.Sprintf("%s (%s km/h)", tier, speed)
			}},
			{Intensity, "Gust Intensity", "", func(v int) string {
				return tiers(v, []string{"Steady", "Gusty", "Very Gusty"}, 33, 66)
			}},
			{Visibility, "Visibility (Dust/Debris)", "km", km(8)},
			{Temperature, "Wind Chill Feel", "°C", celsius(22, 10)},
		},
		Odors: []string{"Fresh", "Neutral", "Dusty", "Salty Air"},
	},
	domain.Storm: {
		Sliders: []Slider{
			{Intensity, "Storm Intensity", "", func(v int) string {
				return tiers(v, []string{"Mild Thunderstorm", "Moderate Storm", "Severe Storm", "Dangerous Storm"}, 25, 50, 75)
			}},
			{WindSpeed, "Wind Speed", "km/h", kmh(20, 80)},
			{Visibility, "Visibility", "km", km(3)},
			{Humidity, "Rainfall Intensity", "", func(v int) string {
				return tiers(v, []string{"Heavy Rain", "Torrential Rain", "Extreme Downpour"}, 33, 66)
			}},
		},
		Odors: []string{"Wet Earth", "Ozone", "Fresh Rain", "Metallic"},
	},
	domain.Flooding: {
		Sliders: []Slider{
			{Intensity, "Water Level", "", func(v int) string {
				return tiers(v, []string{"Ankle Deep (10 cm)", "Knee Deep (40 cm)", "Waist Deep (80 cm)", "Chest+ Deep (120+ cm)"}, 25, 50, 75)
			}},
			{WindSpeed, "Water Flow Speed", "", func(v int) string {
				return tiers(v, []string{"Slow/Standing", "Moderate Flow", "Fast/Dangerous"}, 33, 66)
			}},
			{Visibility, "Visibility in Area", "km", km(4)},
			{Humidity, "Area Affected", "", func(v int) string {
				return tiers(v, []string{"Localized", "Widespread", "Major Area"}, 33, 66)
			}},
		},
		Odors: []string{"Muddy", "Sewage", "Stagnant", "Debris"},
	},
}
