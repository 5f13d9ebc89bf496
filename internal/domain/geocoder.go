package domain

import "context"

// GeocodingResult contains place data returned by a reverse geocoding provider.
type GeocodingResult struct {
	// PlaceName is the short label shown to users, e.g. "Poblacion, Davao City".
	PlaceName string
	// DisplayName is the provider's full formatted address.
	DisplayName string
}

// Geocoder resolves coordinates to place details.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (GeocodingResult, error)
}
