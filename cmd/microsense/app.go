package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/couchcryptid/microsense/internal/adapter/nominatim"
	"github.com/couchcryptid/microsense/internal/adapter/supabase"
	"github.com/couchcryptid/microsense/internal/config"
	"github.com/couchcryptid/microsense/internal/domain"
	"github.com/couchcryptid/microsense/internal/form"
	"github.com/couchcryptid/microsense/internal/observability"
	"github.com/couchcryptid/microsense/internal/pipeline"
	"github.com/couchcryptid/microsense/internal/session"
)

const authTimeout = 10 * time.Second

var errNoCredentials = errors.New("set MICROSENSE_EMAIL/MICROSENSE_PASSWORD or MICROSENSE_REFRESH_TOKEN")

// app holds the components shared by every command.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	geocoder domain.Geocoder
	sessions *session.Manager
	repo     *supabase.Client
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return nil, err
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	// Geocoding is feature-flagged via GEOCODE_ENABLED.
	var geocoder domain.Geocoder
	if cfg.GeocodeEnabled {
		client := nominatim.NewClient(nominatim.Config{
			BaseURL:       cfg.GeocodeURL,
			UserAgent:     cfg.GeocodeUserAgent,
			Timeout:       cfg.GeocodeTimeout,
			RatePerSecond: cfg.GeocodeRateLimit,
		}, metrics, logger)
		geocoder = nominatim.NewCachedGeocoder(client, cfg.GeocodeCacheTTL, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("nominatim geocoding enabled", "url", cfg.GeocodeURL, "cache_ttl", cfg.GeocodeCacheTTL)
	} else {
		logger.Info("nominatim geocoding disabled")
	}

	auth := supabase.NewAuthClient(cfg.SupabaseURL, cfg.SupabaseAnonKey, authTimeout)
	sessions := session.NewManager(auth, logger)
	repo := supabase.NewClient(supabase.Config{
		BaseURL:      cfg.SupabaseURL,
		AnonKey:      cfg.SupabaseAnonKey,
		RecentWindow: cfg.RecentWindow,
		RecentLimit:  cfg.RecentLimit,
		UserLimit:    cfg.UserLimit,
	}, sessions, geocoder, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		geocoder: geocoder,
		sessions: sessions,
		repo:     repo,
	}, nil
}

// signIn establishes the configured session. A refresh token is tried first;
// email and password are the fallback.
func (a *app) signIn(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	if a.cfg.RefreshToken != "" {
		err := a.sessions.Restore(ctx, a.cfg.RefreshToken)
		if err == nil || a.cfg.Email == "" {
			return err
		}
	}
	if a.cfg.Email != "" {
		return a.sessions.SignIn(ctx, a.cfg.Email, a.cfg.Password)
	}
	return errNoCredentials
}

func (a *app) synchronizer(sinks ...pipeline.Sink) *pipeline.Synchronizer {
	return pipeline.New(a.repo, a.sessions, a.geocoder, a.logger, a.metrics, pipeline.Config{
		PollInterval:  a.cfg.PollInterval,
		Concurrency:   a.cfg.GeocodeConcurrency,
		EnrichTimeout: a.cfg.GeocodeBudget,
	}, sinks...)
}

func (a *app) locator() form.Locator {
	if a.cfg.DeviceLat == nil || a.cfg.DeviceLng == nil {
		return nil
	}
	return form.StaticLocator{Lat: *a.cfg.DeviceLat, Lng: *a.cfg.DeviceLng}
}
