package domain

import (
	"context"
	"log/slog"
)

// ResolveLocation returns a location label for the coordinates. If geocoder is
// nil or geocoding fails the coordinate fallback is returned (graceful degradation).
func ResolveLocation(ctx context.Context, geocoder Geocoder, lat, lng float64, logger *slog.Logger) string {
	if geocoder == nil {
		return LocationFallback(lat, lng)
	}
	result, err := geocoder.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		logger.Warn("reverse geocoding failed", "lat", lat, "lng", lng, "error", err)
		return LocationFallback(lat, lng)
	}
	if result.PlaceName == "" {
		return LocationFallback(lat, lng)
	}
	return result.PlaceName
}

// EnrichWithGeocoding replaces the report's location label with a geocoded
// place name. On failure the coordinate fallback replaces it. Without a
// geocoder the stored label is kept.
func EnrichWithGeocoding(ctx context.Context, report Report, geocoder Geocoder, logger *slog.Logger) Report {
	if geocoder == nil {
		if report.Location == "" {
			report.Location = LocationFallback(report.Lat, report.Lng)
		}
		return report
	}

	result, err := geocoder.ReverseGeocode(ctx, report.Lat, report.Lng)
	if err != nil || result.PlaceName == "" {
		if err != nil {
			logger.Warn("reverse geocoding failed",
				"report_id", report.ID,
				"lat", report.Lat,
				"lng", report.Lng,
				"error", err,
			)
		}
		report.Location = LocationFallback(report.Lat, report.Lng)
		return report
	}

	report.Location = result.PlaceName
	return report
}
