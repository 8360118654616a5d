package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridian-lending/recon-cli/internal/model"
	"github.com/meridian-lending/recon-cli/internal/pipeline"
)

var (
	runLoan    string
	runMode    string
	runSkip    []string
	runTimeout time.Duration
	runJSON    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reconcile a single loan",
	Long:  "Runs the full reconciliation pipeline for one loan and prints the run report. Exits non-zero when the run ends failed, blocked, or cancelled.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "run", runSkip)
		if err != nil {
			return err
		}
		defer env.Close()

		mode, err := pickMode(runMode)
		if err != nil {
			return err
		}

		timeout := runTimeout
		if timeout == 0 {
			timeout = cfg.Pipeline.RunTimeout()
		}
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		run, err := env.Pipeline.Run(runCtx, runLoan, mode)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		if runJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(run); err != nil {
				return eris.Wrap(err, "encode run")
			}
		} else {
			fmt.Print(pipeline.FormatReport(run.Report))
		}

		if run.Status != model.RunStatusCompleted {
			return eris.Errorf("run finished %s", run.Status)
		}
		return nil
	},
}

// pickMode resolves the effective run mode from the flag, falling back
// to the configured default.
func pickMode(flag string) (model.Mode, error) {
	if flag == "" {
		flag = cfg.Pipeline.Mode
	}
	switch mode := model.Mode(flag); mode {
	case model.ModeDemo, model.ModeProduction:
		return mode, nil
	default:
		return "", eris.Errorf("invalid mode %q (want demo or production)", flag)
	}
}

func init() {
	runCmd.Flags().StringVar(&runLoan, "loan", "", "loan number to reconcile (required)")
	runCmd.Flags().StringVar(&runMode, "mode", "", "demo or production (default from config)")
	runCmd.Flags().StringSliceVar(&runSkip, "skip", nil, "stage names to record as skipped (prepare, reconcile, tolerance, update, verify, order)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "whole-run timeout (default from config)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the persisted run as JSON instead of the report")
	_ = runCmd.MarkFlagRequired("loan")
	rootCmd.AddCommand(runCmd)
}
