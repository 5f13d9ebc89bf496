package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Backend (PostgREST + GoTrue) settings.
	SupabaseURL     string
	SupabaseAnonKey string

	// Credentials used to establish a session at startup. Either an
	// email/password pair or a refresh token may be given.
	Email        string
	Password     string
	RefreshToken string

	// Feed synchronizer settings.
	PollInterval time.Duration
	RecentWindow time.Duration
	RecentLimit  int
	UserLimit    int

	// Nominatim geocoding configuration.
	GeocodeEnabled     bool
	GeocodeURL         string
	GeocodeUserAgent   string
	GeocodeTimeout     time.Duration
	GeocodeRateLimit   float64
	GeocodeCacheTTL    time.Duration
	GeocodeConcurrency int
	GeocodeBudget      time.Duration

	// Device location. When DeviceLat/DeviceLng are unset the service has no
	// locator of its own and relies on positions pushed over the API.
	GeolocationTimeout time.Duration
	DeviceLat          *float64
	DeviceLng          *float64

	// Map widget bootstrap.
	MapsAPIKey    string
	MapsScriptURL string

	// New-report publishing. Disabled when KafkaBrokers is empty.
	KafkaBrokers []string
	KafkaTopic   string

	HTTPAddr          string
	ShellDir          string
	DashboardLocation *time.Location
	LogLevel          string
	LogFormat         string
	ShutdownTimeout   time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	pollInterval, err := parseDuration("POLL_INTERVAL", "30s")
	if err != nil {
		return nil, err
	}
	recentWindow, err := parseDuration("RECENT_WINDOW", "168h")
	if err != nil {
		return nil, err
	}
	geocodeTimeout, err := parseDuration("GEOCODE_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	geocodeCacheTTL, err := parseDuration("GEOCODE_CACHE_TTL", "24h")
	if err != nil {
		return nil, err
	}
	geocodeBudget, err := parseDuration("GEOCODE_CYCLE_BUDGET", "10s")
	if err != nil {
		return nil, err
	}
	geolocationTimeout, err := parseDuration("GEOLOCATION_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	recentLimit, err := parsePositiveInt("RECENT_LIMIT", 500)
	if err != nil {
		return nil, err
	}
	userLimit, err := parsePositiveInt("USER_LIMIT", 100)
	if err != nil {
		return nil, err
	}
	concurrency, err := parsePositiveInt("GEOCODE_CONCURRENCY", 8)
	if err != nil {
		return nil, err
	}

	rateLimit, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("GEOCODE_RATE_LIMIT", "0"), 64)
	if err != nil || rateLimit < 0 {
		return nil, errors.New("invalid GEOCODE_RATE_LIMIT")
	}

	loc, err := time.LoadLocation(sharedcfg.EnvOrDefault("DASHBOARD_TIMEZONE", "Local"))
	if err != nil {
		return nil, errors.New("invalid DASHBOARD_TIMEZONE")
	}

	deviceLat, deviceLng, err := parseDevicePosition()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		SupabaseURL:     strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
		SupabaseAnonKey: os.Getenv("SUPABASE_ANON_KEY"),
		Email:           os.Getenv("MICROSENSE_EMAIL"),
		Password:        os.Getenv("MICROSENSE_PASSWORD"),
		RefreshToken:    os.Getenv("MICROSENSE_REFRESH_TOKEN"),

		PollInterval: pollInterval,
		RecentWindow: recentWindow,
		RecentLimit:  recentLimit,
		UserLimit:    userLimit,

		GeocodeEnabled:     sharedcfg.EnvOrDefault("GEOCODE_ENABLED", "true") == "true",
		GeocodeURL:         sharedcfg.EnvOrDefault("GEOCODE_URL", "https://nominatim.openstreetmap.org"),
		GeocodeUserAgent:   sharedcfg.EnvOrDefault("GEOCODE_USER_AGENT", "microsense/1.0"),
		GeocodeTimeout:     geocodeTimeout,
		GeocodeRateLimit:   rateLimit,
		GeocodeCacheTTL:    geocodeCacheTTL,
		GeocodeConcurrency: concurrency,
		GeocodeBudget:      geocodeBudget,

		GeolocationTimeout: geolocationTimeout,
		DeviceLat:          deviceLat,
		DeviceLng:          deviceLng,

		MapsAPIKey:    os.Getenv("MAPS_API_KEY"),
		MapsScriptURL: sharedcfg.EnvOrDefault("MAPS_SCRIPT_URL", "https://maps.googleapis.com/maps/api/js"),

		KafkaTopic: sharedcfg.EnvOrDefault("KAFKA_TOPIC", "weather-reports"),

		HTTPAddr:          sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		ShellDir:          sharedcfg.EnvOrDefault("SHELL_DIR", "public"),
		DashboardLocation: loc,
		LogLevel:          sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:   shutdownTimeout,
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	if cfg.SupabaseURL == "" {
		return nil, errors.New("SUPABASE_URL is required")
	}
	if cfg.SupabaseAnonKey == "" {
		return nil, errors.New("SUPABASE_ANON_KEY is required")
	}
	if (cfg.Email == "") != (cfg.Password == "") {
		return nil, errors.New("MICROSENSE_EMAIL and MICROSENSE_PASSWORD must be set together")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// KafkaEnabled reports whether new-report publishing is configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}

func parseDevicePosition() (*float64, *float64, error) {
	latStr, lngStr := os.Getenv("DEVICE_LAT"), os.Getenv("DEVICE_LNG")
	if latStr == "" && lngStr == "" {
		return nil, nil, nil
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, nil, errors.New("invalid DEVICE_LAT")
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil || lng < -180 || lng > 180 {
		return nil, nil, errors.New("invalid DEVICE_LNG")
	}
	return &lat, &lng, nil
}
