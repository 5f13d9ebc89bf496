// Package domain models community weather reports and the rules shared by
// every component that reads or writes them.
//
// # Reports
//
// A report is a single observation posted by a signed-in user: a weather
// condition, a point (WGS84 latitude/longitude), an optional short note and
// a human-readable location label. Reports are created once by the backend
// (which assigns the numeric id and created_at timestamp) and never edited
// or deleted by clients.
//
// # Conditions
//
// The six recognized conditions are Sunny, Cloudy, Rainy, Windy, Storm and
// Flooding. The backend stores the condition as free text, so a record may
// carry a value outside that set. Such records are still listed and drawn,
// but aggregates only count recognized conditions. See [Condition.Known].
//
// # Location labels
//
// The stored location string is optional. When it is missing, or when
// reverse geocoding fails, the label is the coordinate pair rendered with
// four decimals:
//
//	"7.0701, 125.6085"
//
// See [LocationFallback]. A label derived from the geocoder never blocks or
// fails an operation; [ResolveLocation] always returns a usable string.
//
// # Time
//
// Timestamps are handled in UTC. Day buckets in the dashboard use the UTC
// calendar date of created_at; hour-of-day histograms use a configurable
// location. Tests freeze time through [SetClock].
package domain
