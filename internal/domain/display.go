package domain

import (
	"fmt"
	"time"
)

// DefaultGlyph marks reports whose condition is not recognized.
const DefaultGlyph = "📍"

var glyphs = map[Condition]string{
	Sunny:    "☀️",
	Cloudy:   "☁️",
	Rainy:    "🌧️",
	Windy:    "🌬️",
	Storm:    "⛈️",
	Flooding: "🌊",
}

// Glyph returns the emoji used to draw a condition.
func Glyph(c Condition) string {
	if g, ok := glyphs[c]; ok {
		return g
	}
	return DefaultGlyph
}

// RelativeAge renders how long before now t happened, e.g. "5m ago".
// Future timestamps render as "0s ago".
func RelativeAge(now, t time.Time) string {
	s := int64(now.Sub(t) / time.Second)
	if s < 0 {
		s = 0
	}
	if s < 60 {
		return fmt.Sprintf("%ds ago", s)
	}
	m := s / 60
	if m < 60 {
		return fmt.Sprintf("%dm ago", m)
	}
	h := m / 60
	if h < 24 {
		return fmt.Sprintf("%dh ago", h)
	}
	return fmt.Sprintf("%dd ago", h/24)
}
