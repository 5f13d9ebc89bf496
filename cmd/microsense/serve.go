package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	httpadapter "github.com/couchcryptid/microsense/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/microsense/internal/adapter/kafka"
	"github.com/couchcryptid/microsense/internal/domain"
	"github.com/couchcryptid/microsense/internal/form"
	"github.com/couchcryptid/microsense/internal/loader"
	"github.com/couchcryptid/microsense/internal/mapview"
	"github.com/couchcryptid/microsense/internal/pipeline"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	mapsScriptTimeout    = 10 * time.Second
	sessionRefreshLeeway = time.Minute
	sessionRetryInterval = 30 * time.Second
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Keep the report views in sync and serve them over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	var script *loader.Loader[[]byte]
	if cfg.MapsAPIKey != "" {
		script = loader.New(mapview.ScriptFetcher(cfg.MapsScriptURL, cfg.MapsAPIKey, mapsScriptTimeout))
	}
	widgets := mapview.WidgetLoader(script)
	widgets.OnLoad(func(mapview.Widget) { logger.Info("map widget ready") })
	reconciler := mapview.NewReconciler(widgets, a.metrics, logger)

	sinks := []pipeline.Sink{pipeline.SinkFunc(reconciler.Reconcile)}
	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled() {
		publisher = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, a.metrics, logger)
		sinks = append(sinks, publisher)
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic)
	}

	feed := a.synchronizer(sinks...)
	a.sessions.Subscribe(feed.OnSessionChange)

	engine := form.New(form.Deps{
		Writer:         a.repo,
		Geocoder:       a.geocoder,
		Locator:        a.locator(),
		Refresher:      feed,
		Status:         feed,
		Metrics:        a.metrics,
		Logger:         logger,
		LocatorTimeout: cfg.GeolocationTimeout,
	})
	engine.OnLocationChange(func(lat, lng float64) {
		if err := reconciler.SetUserLocation(ctx, lat, lng); err != nil {
			logger.Warn("user marker not placed", "error", err)
		}
	})

	shell := httpadapter.NewShellCache(http.FileServerFS(os.DirFS(cfg.ShellDir)), 0, logger)
	shell.Precache(httpadapter.ShellAssets)

	api := httpadapter.API{
		Feed:              feed,
		Sessions:          a.sessions,
		Auth:              a.sessions,
		Markers:           reconciler,
		Form:              engine,
		DashboardLocation: cfg.DashboardLocation,
	}
	if script != nil {
		api.Script = script
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, feed, api, shell, logger)

	if err := a.signIn(ctx); err != nil {
		// Users can still sign in over the API.
		logger.Warn("starting signed out", "error", err)
	}
	go engine.DetectLocation(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return feed.Run(gctx)
	})
	g.Go(func() error {
		a.sessions.KeepAlive(gctx, domain.Clock(), sessionRefreshLeeway, sessionRetryInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	err := g.Wait()
	engine.Wait()
	if publisher != nil {
		if cerr := publisher.Close(); cerr != nil {
			logger.Error("kafka publisher close error", "error", cerr)
		}
	}
	if err != nil {
		logger.Error("service error", "error", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

