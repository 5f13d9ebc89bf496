package nominatim

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/microsense/internal/domain"
	"github.com/couchcryptid/microsense/internal/observability"
	"github.com/patrickmn/go-cache"
)

// CachedGeocoder wraps a Geocoder with an in-memory TTL cache keyed by
// coordinates, so each poll does not re-geocode unchanged reports.
type CachedGeocoder struct {
	inner   domain.Geocoder
	cache   *cache.Cache
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder. Expired
// entries are pruned when new ones are stored, so no janitor goroutine runs.
func NewCachedGeocoder(inner domain.Geocoder, ttl time.Duration, metrics *observability.Metrics) *CachedGeocoder {
	return &CachedGeocoder{
		inner:   inner,
		cache:   cache.New(ttl, 0),
		metrics: metrics,
	}
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (domain.GeocodingResult, error) {
	key := fmt.Sprintf("rev:%.6f,%.6f", lat, lng)
	if v, ok := c.cache.Get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return v.(domain.GeocodingResult), nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	result, err := c.inner.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		return result, err
	}
	// Only cache non-empty results so transient failures can be retried.
	if result.PlaceName != "" {
		c.cache.DeleteExpired()
		c.cache.Set(key, result, cache.DefaultExpiration)
	}
	return result, nil
}

// Len returns the number of cached entries, including expired ones not yet pruned.
func (c *CachedGeocoder) Len() int {
	return c.cache.ItemCount()
}
