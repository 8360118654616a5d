package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridian-lending/recon-cli/internal/monitoring"
)

var (
	statusLookback int
	statusJSON     bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a health snapshot of recent runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("status"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		snap, err := monitoring.NewCollector(st).Collect(ctx, statusLookback)
		if err != nil {
			return err
		}

		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}

		formatSnapshot(os.Stdout, snap)
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLookback, "hours", 24, "lookback window in hours")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the snapshot as JSON")
	rootCmd.AddCommand(statusCmd)
}

// formatSnapshot writes a tabular health snapshot to w.
func formatSnapshot(out io.Writer, snap *monitoring.MetricsSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Runs (last %dh):\t%d\n", snap.LookbackHours, snap.RunsTotal)
	_, _ = fmt.Fprintf(w, "  Completed:\t%d\n", snap.RunsCompleted)
	_, _ = fmt.Fprintf(w, "  Blocked:\t%d\n", snap.RunsBlocked)
	_, _ = fmt.Fprintf(w, "  Failed:\t%d\n", snap.RunsFailed)
	_, _ = fmt.Fprintf(w, "  Cancelled:\t%d\n", snap.RunsCancelled)
	_, _ = fmt.Fprintf(w, "  Active:\t%d\n", snap.RunsActive)
	_, _ = fmt.Fprintf(w, "Blocked rate:\t%.1f%%\n", snap.BlockedRate*100)
	_, _ = fmt.Fprintf(w, "Failure rate:\t%.1f%%\n", snap.FailRate*100)
	_, _ = fmt.Fprintf(w, "Mode split:\t%d demo / %d production\n", snap.DemoRuns, snap.ProductionRuns)
	_, _ = fmt.Fprintf(w, "Fields flagged:\t%d\n", snap.FieldsFlagged)
	_, _ = fmt.Fprintf(w, "Corrections proposed:\t%d\n", snap.CorrectionsProposed)
	_, _ = fmt.Fprintf(w, "Cure owed:\t$%s\n", snap.CureOwedUSD.StringFixed(2))
	if snap.LastRun != nil {
		loan := snap.LastRun.LoanNumber
		if loan == "" {
			loan = truncateID(snap.LastRun.ID)
		}
		_, _ = fmt.Fprintf(w, "Last run:\t%s (%s, %s)\n",
			loan, snap.LastRun.Status,
			snap.LastRun.CreatedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
