package main

import (
	"context"
	"fmt"
	"io"

	"github.com/couchcryptid/microsense/internal/domain"
	"github.com/couchcryptid/microsense/internal/form"
	"github.com/spf13/cobra"
)

type submitOptions struct {
	condition string
	lat, lng  float64
	note      string
	odor      string
	sliders   map[string]int
}

func submitCommand() *cobra.Command {
	var opts submitOptions
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Post a weather report",
		Long: "Posts one report. Without --lat/--lng the device position from " +
			"DEVICE_LAT/DEVICE_LNG is used, falling back to Davao City.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := a.signIn(cmd.Context()); err != nil {
				return fmt.Errorf("sign in: %w", err)
			}
			hasPosition := cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng")
			return a.submit(cmd.Context(), cmd.OutOrStdout(), opts, hasPosition)
		},
	}

	cmd.Flags().StringVar(&opts.condition, "condition", string(domain.Sunny), "Sunny, Cloudy, Rainy, Windy, Storm or Flooding")
	cmd.Flags().Float64Var(&opts.lat, "lat", 0, "Latitude of the observation")
	cmd.Flags().Float64Var(&opts.lng, "lng", 0, "Longitude of the observation")
	cmd.Flags().StringVar(&opts.note, "note", "", "Optional note (up to 120 characters)")
	cmd.Flags().StringVar(&opts.odor, "odor", "", "Odor option offered by the chosen condition")
	cmd.Flags().StringToIntVar(&opts.sliders, "slider", nil, "Raw slider values, e.g. intensity=80,humidity=60")
	return cmd
}

// statusWriter prints status lines as they change.
type statusWriter struct{ w io.Writer }

func (s statusWriter) SetStatus(msg string) { fmt.Fprintln(s.w, msg) }

func (a *app) submit(ctx context.Context, out io.Writer, opts submitOptions, hasPosition bool) error {
	engine := form.New(form.Deps{
		Writer:         a.repo,
		Locator:        a.locator(),
		Status:         statusWriter{w: out},
		Metrics:        a.metrics,
		Logger:         a.logger,
		LocatorTimeout: a.cfg.GeolocationTimeout,
	})
	defer engine.Wait()

	if err := engine.SetCondition(domain.Condition(opts.condition)); err != nil {
		return err
	}
	for axis, v := range opts.sliders {
		engine.SetSlider(form.Axis(axis), v)
	}
	if opts.odor != "" {
		if err := engine.SetOdor(opts.odor); err != nil {
			return err
		}
	}
	engine.SetNote(opts.note)

	if hasPosition {
		engine.ApplyPosition(ctx, form.Position{Lat: opts.lat, Lng: opts.lng}, nil)
	} else {
		engine.DetectLocation(ctx)
	}
	view := engine.Snapshot()
	if view.Error != "" {
		fmt.Fprintln(out, view.Error)
	}

	if err := engine.Submit(ctx); err != nil {
		if msg := engine.Snapshot().Error; msg != "" {
			fmt.Fprintln(out, msg)
		}
		return err
	}
	fmt.Fprintf(out, "%s %s at %s\n", domain.Glyph(view.Condition), view.Condition, view.LocationLabel)
	return nil
}
