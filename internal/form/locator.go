package form

import (
	"context"
	"time"
)

// DefaultPosition is used whenever the device position is unavailable.
var DefaultPosition = Position{Lat: 7.070136, Lng: 125.608519}

// DefaultLocationLabel labels DefaultPosition.
const DefaultLocationLabel = "Davao City"

// Position is a device fix in WGS84 degrees.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Options are passed to the locator on each request.
type Options struct {
	Timeout time.Duration
	// MaximumAge is the oldest cached fix the locator may return; 0 forces a fresh fix.
	MaximumAge   time.Duration
	HighAccuracy bool
}

// Locator provides the device position. Failures should be returned as
// *domain.GeolocationError so the form can pick the matching message.
type Locator interface {
	CurrentPosition(ctx context.Context, opts Options) (Position, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context, opts Options) (Position, error)

func (f LocatorFunc) CurrentPosition(ctx context.Context, opts Options) (Position, error) {
	return f(ctx, opts)
}

// StaticLocator always reports the same position, e.g. a fixed station.
type StaticLocator Position

func (s StaticLocator) CurrentPosition(_ context.Context, _ Options) (Position, error) {
	return Position(s), nil
}
