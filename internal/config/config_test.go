package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSupabaseURL = "https://abc.supabase.co"
	testAnonKey     = "anon-key"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SUPABASE_URL", testSupabaseURL)
	t.Setenv("SUPABASE_ANON_KEY", testAnonKey)
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, testSupabaseURL, cfg.SupabaseURL)
	assert.Equal(t, testAnonKey, cfg.SupabaseAnonKey)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.RecentWindow)
	assert.Equal(t, 500, cfg.RecentLimit)
	assert.Equal(t, 100, cfg.UserLimit)
	assert.True(t, cfg.GeocodeEnabled)
	assert.Equal(t, "https://nominatim.openstreetmap.org", cfg.GeocodeURL)
	assert.Equal(t, 5*time.Second, cfg.GeocodeTimeout)
	assert.Zero(t, cfg.GeocodeRateLimit, "no client-side limit by default")
	assert.Equal(t, 24*time.Hour, cfg.GeocodeCacheTTL)
	assert.Equal(t, 8, cfg.GeocodeConcurrency)
	assert.Equal(t, 10*time.Second, cfg.GeocodeBudget)
	assert.Equal(t, 5*time.Second, cfg.GeolocationTimeout)
	assert.Nil(t, cfg.DeviceLat)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.KafkaEnabled())
	assert.Equal(t, "weather-reports", cfg.KafkaTopic)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_CustomEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("SUPABASE_URL", testSupabaseURL+"/")
	t.Setenv("MICROSENSE_EMAIL", "ana@example.com")
	t.Setenv("MICROSENSE_PASSWORD", "secret123")
	t.Setenv("POLL_INTERVAL", "10s")
	t.Setenv("RECENT_LIMIT", "50")
	t.Setenv("GEOCODE_ENABLED", "false")
	t.Setenv("GEOCODE_RATE_LIMIT", "2")
	t.Setenv("DEVICE_LAT", "7.07")
	t.Setenv("DEVICE_LNG", "125.61")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_TOPIC", "custom-topic")
	t.Setenv("DASHBOARD_TIMEZONE", "Asia/Manila")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, testSupabaseURL, cfg.SupabaseURL)
	assert.Equal(t, "ana@example.com", cfg.Email)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, 50, cfg.RecentLimit)
	assert.False(t, cfg.GeocodeEnabled)
	assert.InDelta(t, 2.0, cfg.GeocodeRateLimit, 0)
	require.NotNil(t, cfg.DeviceLat)
	assert.InDelta(t, 7.07, *cfg.DeviceLat, 1e-9)
	assert.InDelta(t, 125.61, *cfg.DeviceLng, 1e-9)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, "custom-topic", cfg.KafkaTopic)
	assert.Equal(t, "Asia/Manila", cfg.DashboardLocation.String())
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_MissingSupabaseURL(t *testing.T) {
	t.Setenv("SUPABASE_ANON_KEY", testAnonKey)
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUPABASE_URL")
}

func TestLoad_MissingAnonKey(t *testing.T) {
	t.Setenv("SUPABASE_URL", testSupabaseURL)
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUPABASE_ANON_KEY")
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	setRequired(t)
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidPollInterval(t *testing.T) {
	setRequired(t)
	t.Setenv("POLL_INTERVAL", "-5s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POLL_INTERVAL")
}

func TestLoad_InvalidRecentLimit(t *testing.T) {
	setRequired(t)
	t.Setenv("RECENT_LIMIT", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RECENT_LIMIT")
}

func TestLoad_InvalidRateLimit(t *testing.T) {
	setRequired(t)
	t.Setenv("GEOCODE_RATE_LIMIT", "fast")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEOCODE_RATE_LIMIT")
}

func TestLoad_InvalidTimezone(t *testing.T) {
	setRequired(t)
	t.Setenv("DASHBOARD_TIMEZONE", "Mars/Olympus")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DASHBOARD_TIMEZONE")
}

func TestLoad_PartialDevicePosition(t *testing.T) {
	setRequired(t)
	t.Setenv("DEVICE_LAT", "7.07")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEVICE_LNG")
}

func TestLoad_EmailWithoutPassword(t *testing.T) {
	setRequired(t)
	t.Setenv("MICROSENSE_EMAIL", "ana@example.com")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MICROSENSE_PASSWORD")
}
