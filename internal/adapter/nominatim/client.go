package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/microsense/internal/domain"
	"github.com/couchcryptid/microsense/internal/observability"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public OpenStreetMap Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// Config configures a Nominatim client.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// RatePerSecond limits outgoing requests; 0 disables limiting.
	RatePerSecond float64
}

// Client implements domain.Geocoder using the Nominatim reverse endpoint.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Nominatim geocoding client.
func NewClient(cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: cfg.UserAgent,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		metrics: metrics,
		logger:  logger,
	}
	if cfg.RatePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return c
}

// ReverseGeocode converts coordinates to a short place name.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (domain.GeocodingResult, error) {
	params := url.Values{
		"format": {"json"},
		"lat":    {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":    {strconv.FormatFloat(lng, 'f', -1, 64)},
		"zoom":   {"16"},
	}

	result, err := c.doRequest(ctx, c.baseURL+"/reverse?"+params.Encode())
	switch {
	case err != nil:
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return domain.GeocodingResult{}, &domain.GeocodingError{Lat: lat, Lng: lng, Err: err}
	case result.PlaceName == "":
		c.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
		return domain.GeocodingResult{}, &domain.GeocodingError{Lat: lat, Lng: lng, Err: errEmptyResult}
	}
	c.metrics.GeocodeRequests.WithLabelValues("success").Inc()
	return result, nil
}

var errEmptyResult = errors.New("no place name in response")

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.GeocodingResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.GeocodingResult{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.GeocodeAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("reverse geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.GeocodingResult{}, fmt.Errorf("nominatim API error: status %d: %s", resp.StatusCode, body)
	}

	var nr response
	if err := json.NewDecoder(resp.Body).Decode(&nr); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("decode response: %w", err)
	}
	if nr.Error != "" {
		return domain.GeocodingResult{}, fmt.Errorf("nominatim: %s", nr.Error)
	}

	return domain.GeocodingResult{
		PlaceName:   shortName(nr),
		DisplayName: nr.DisplayName,
	}, nil
}

// shortName builds "<suburb>, <city>" from the address parts, falling back to
// the first two segments of display_name.
func shortName(nr response) string {
	var parts []string
	if s := firstNonEmpty(nr.Address.Suburb, nr.Address.Neighbourhood); s != "" {
		parts = append(parts, s)
	}
	if s := firstNonEmpty(nr.Address.City, nr.Address.Town, nr.Address.Municipality); s != "" {
		parts = append(parts, s)
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}

	segments := strings.Split(nr.DisplayName, ",")
	if len(segments) > 2 {
		segments = segments[:2]
	}
	return strings.Join(segments, ",")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Nominatim API response types.

type response struct {
	DisplayName string  `json:"display_name"`
	Address     address `json:"address"`
	Error       string  `json:"error"`
}

type address struct {
	Suburb        string `json:"suburb"`
	Neighbourhood string `json:"neighbourhood"`
	City          string `json:"city"`
	Town          string `json:"town"`
	Municipality  string `json:"municipality"`
}
