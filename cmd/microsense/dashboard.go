package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/couchcryptid/microsense/internal/dashboard"
	"github.com/couchcryptid/microsense/internal/domain"
	"github.com/spf13/cobra"
)

func dashboardCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Print analytics for the last seven days of reports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			vm, err := a.loadDashboard(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(vm)
			}
			printDashboard(cmd.OutOrStdout(), vm)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the view model as JSON")
	return cmd
}

func (a *app) loadDashboard(ctx context.Context) (dashboard.ViewModel, error) {
	if err := a.signIn(ctx); err != nil {
		return dashboard.ViewModel{}, fmt.Errorf("sign in: %w", err)
	}
	feed := a.synchronizer()
	if err := feed.Refresh(ctx); err != nil {
		return dashboard.ViewModel{}, fmt.Errorf("load reports: %w", err)
	}
	return dashboard.Compute(domain.Now(), a.cfg.DashboardLocation, feed.Reports()), nil
}

func printDashboard(w io.Writer, vm dashboard.ViewModel) {
	fmt.Fprintf(w, "Total reports:         %d\n", vm.TotalReports)
	fmt.Fprintf(w, "Reports today:         %d (%s)\n", vm.ReportsToday, vm.TopConditionsToday)
	fmt.Fprintf(w, "Severe weather (24h):  %d\n", vm.SevereLast24h)
	fmt.Fprintf(w, "Low visibility today:  %d\n", vm.LowVisibilityToday)
	fmt.Fprintf(w, "Peak hour:             %s\n", vm.PeakHour)

	fmt.Fprintln(w, "\nLast 7 days:")
	for i, d := range vm.Daily {
		var parts []string
		for _, c := range domain.Conditions {
			if n := d.Counts[c]; n > 0 {
				parts = append(parts, fmt.Sprintf("%s %d", domain.Glyph(c), n))
			}
		}
		fmt.Fprintf(w, "  %s %s  %3d  avg %3d  %s\n", d.Label, d.Date, vm.Trend[i].Reports, vm.Trend[i].Average, strings.Join(parts, " "))
	}

	if len(vm.Distribution) > 0 {
		fmt.Fprintln(w, "\nDistribution:")
		for _, s := range vm.Distribution {
			fmt.Fprintf(w, "  %s %-9s %3d  %5s%%\n", s.Glyph, s.Condition, s.Count, s.Percentage)
		}
	}
}
