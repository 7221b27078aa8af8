package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tract-series/internal/cache"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent crosswalk and series runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		db, err := initCache(ctx)
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := db.LastRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

func init() {
	runsCmd.Flags().Int("limit", 10, "max number of runs to display")
	rootCmd.AddCommand(runsCmd)
}

func formatRunsList(out io.Writer, runs []cache.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCOMMAND\tSTATUS\tSTARTED\tDURATION\tSKIPPED")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t-------\t--------\t-------")

	for _, r := range runs {
		dur := "-"
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		skipped := strings.Join(r.Failures, ", ")
		if len(skipped) > 40 {
			skipped = skipped[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Command,
			r.Status,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			dur,
			skipped,
		)
	}
	_ = w.Flush()
}

// truncateID shortens a UUID to its first 8 characters for display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
