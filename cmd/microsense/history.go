package main

import (
	"fmt"
	"io"

	"github.com/couchcryptid/microsense/internal/domain"
	"github.com/spf13/cobra"
)

func historyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List the signed-in user's reports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := a.signIn(cmd.Context()); err != nil {
				return fmt.Errorf("sign in: %w", err)
			}
			feed := a.synchronizer()
			if err := feed.Refresh(cmd.Context()); err != nil {
				a.logger.Warn("recent feed unavailable", "error", err)
			}
			printHistory(cmd.OutOrStdout(), feed.UserReports())
			return nil
		},
	}
}

func printHistory(w io.Writer, reports []domain.Report) {
	if len(reports) == 0 {
		fmt.Fprintln(w, "No reports yet")
		return
	}
	now := domain.Now()
	for _, r := range reports {
		line := fmt.Sprintf("%s %-9s %-10s %s", domain.Glyph(r.Condition), r.Condition, domain.RelativeAge(now, r.CreatedAt), r.Location)
		if note := r.NoteText(); note != "" {
			line += "  \"" + note + "\""
		}
		fmt.Fprintln(w, line)
	}
}
