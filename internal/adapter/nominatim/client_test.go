package nominatim

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/microsense/internal/domain"
	"github.com/couchcryptid/microsense/internal/observability"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
	reverseURLPattern = `=~^https://nominatim\.openstreetmap\.org/reverse`
)

func testMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func testClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:   baseURL,
		UserAgent: "microsense-test",
		Timeout:   5 * time.Second,
	}, testMetrics(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

func TestClient_ReverseGeocode_SuburbAndCity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "7.0701", r.URL.Query().Get("lat"))
		assert.Equal(t, "125.6085", r.URL.Query().Get("lon"))
		assert.Equal(t, "16", r.URL.Query().Get("zoom"))
		assert.Equal(t, "microsense-test", r.Header.Get("User-Agent"))

		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{
			"display_name": "San Pedro Street, Poblacion, Davao City, Davao Region, Philippines",
			"address": {"suburb": "Poblacion", "neighbourhood": "Zone 1", "city": "Davao City", "town": "Ignored"}
		}`))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).ReverseGeocode(context.Background(), 7.0701, 125.6085)
	require.NoError(t, err)

	assert.Equal(t, "Poblacion, Davao City", result.PlaceName)
	assert.Contains(t, result.DisplayName, "San Pedro Street")
}

func TestClient_ReverseGeocode_FallbackFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"display_name": "x", "address": {"neighbourhood": "Bajada", "municipality": "Davao"}}`))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).ReverseGeocode(context.Background(), 7.09, 125.61)
	require.NoError(t, err)
	assert.Equal(t, "Bajada, Davao", result.PlaceName)
}

func TestClient_ReverseGeocode_CityOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"display_name": "x", "address": {"town": "Panabo"}}`))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).ReverseGeocode(context.Background(), 7.3, 125.68)
	require.NoError(t, err)
	assert.Equal(t, "Panabo", result.PlaceName)
}

func TestClient_ReverseGeocode_DisplayNameFallback(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", reverseURLPattern,
		httpmock.NewStringResponder(http.StatusOK, `{"display_name": "Samal Island, Davao del Norte, Philippines", "address": {}}`))

	result, err := testClient("").ReverseGeocode(context.Background(), 7.1, 125.7)
	require.NoError(t, err)

	// Segments are rejoined without re-adding the space.
	assert.Equal(t, "Samal Island, Davao del Norte", result.PlaceName)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestClient_ReverseGeocode_DisplayNameSingleSegment(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", reverseURLPattern,
		httpmock.NewStringResponder(http.StatusOK, `{"display_name": "Philippines"}`))

	result, err := testClient("").ReverseGeocode(context.Background(), 7.1, 125.7)
	require.NoError(t, err)
	assert.Equal(t, "Philippines", result.PlaceName)
}

func TestClient_ReverseGeocode_EmptyResult(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", reverseURLPattern,
		httpmock.NewStringResponder(http.StatusOK, `{}`))

	_, err := testClient("").ReverseGeocode(context.Background(), 0, 0)
	require.Error(t, err)

	var geoErr *domain.GeocodingError
	require.ErrorAs(t, err, &geoErr)
	assert.ErrorIs(t, err, errEmptyResult)
}

func TestClient_ReverseGeocode_ProviderError(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", reverseURLPattern,
		httpmock.NewStringResponder(http.StatusOK, `{"error": "Unable to geocode"}`))

	_, err := testClient("").ReverseGeocode(context.Background(), 5.0, 130.0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unable to geocode")
}

func TestClient_ReverseGeocode_APIError(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", reverseURLPattern,
		httpmock.NewStringResponder(http.StatusTooManyRequests, `rate limited`))

	_, err := testClient("").ReverseGeocode(context.Background(), 7.07, 125.6)
	require.Error(t, err)

	var geoErr *domain.GeocodingError
	require.ErrorAs(t, err, &geoErr)
	assert.InDelta(t, 7.07, geoErr.Lat, 1e-9)
	assert.Contains(t, err.Error(), "429")
}

func TestClient_ReverseGeocode_NotJSON(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", reverseURLPattern,
		httpmock.NewStringResponder(http.StatusOK, `<html>oops</html>`))

	_, err := testClient("").ReverseGeocode(context.Background(), 7.07, 125.6)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestClient_ReverseGeocode_NetworkError(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", reverseURLPattern,
		httpmock.NewErrorResponder(errors.New("connection reset")))

	_, err := testClient("").ReverseGeocode(context.Background(), 7.07, 125.6)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestClient_ReverseGeocode_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, testMetrics(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := c.ReverseGeocode(context.Background(), 7.07, 125.6)
	require.Error(t, err)
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("GET", reverseURLPattern,
		httpmock.NewStringResponder(http.StatusOK, `{"address": {"city": "Davao City"}}`))

	c := NewClient(Config{Timeout: time.Second, RatePerSecond: 0.001}, testMetrics(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := c.ReverseGeocode(context.Background(), 7.07, 125.6)
	require.NoError(t, err)

	// The single burst token is spent; the next call cannot wait that long.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.ReverseGeocode(ctx, 7.07, 125.6)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}
