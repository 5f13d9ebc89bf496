package domain

import (
	"fmt"
	"time"
)

// Condition is the observed weather category of a report.
type Condition string

const (
	Sunny    Condition = "Sunny"
	Cloudy   Condition = "Cloudy"
	Rainy    Condition = "Rainy"
	Windy    Condition = "Windy"
	Storm    Condition = "Storm"
	Flooding Condition = "Flooding"
)

// Conditions lists the recognized conditions in picker order.
var Conditions = []Condition{Sunny, Cloudy, Rainy, Windy, Storm, Flooding}

// Known reports whether c is one of the six recognized conditions.
func (c Condition) Known() bool {
	switch c {
	case Sunny, Cloudy, Rainy, Windy, Storm, Flooding:
		return true
	}
	return false
}

// Severe reports whether c counts toward the severe-weather alert.
func (c Condition) Severe() bool {
	return c == Storm || c == Flooding
}

// ParseCondition maps a picker value to a Condition.
func ParseCondition(s string) (Condition, error) {
	c := Condition(s)
	if !c.Known() {
		return "", fmt.Errorf("unknown condition %q", s)
	}
	return c, nil
}

// Report is a single community weather observation as stored by the backend.
type Report struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Condition Condition `json:"condition"`
	Note      *string   `json:"note"`
	UserID    string    `json:"user_id,omitempty"`
	Location  string    `json:"location,omitempty"`

	// Visibility is optional telemetry; the default schema does not carry it.
	Visibility *float64 `json:"visibility,omitempty"`
}

// NoteText returns the note or "" when absent.
func (r Report) NoteText() string {
	if r.Note == nil {
		return ""
	}
	return *r.Note
}

// Submission is the user-provided content of a new report.
type Submission struct {
	Lat       float64
	Lng       float64
	Condition Condition
	Note      *string
}

// Session is an authenticated backend identity.
type Session struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// LocationFallback renders coordinates as a location label.
func LocationFallback(lat, lng float64) string {
	return FormatFixed(lat, 4) + ", " + FormatFixed(lng, 4)
}

// WithLocationFallback fills in the location label of every report that has none.
func WithLocationFallback(reports []Report) []Report {
	for i := range reports {
		if reports[i].Location == "" {
			reports[i].Location = LocationFallback(reports[i].Lat, reports[i].Lng)
		}
	}
	return reports
}
