package main

import (
	"fmt"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-lending/recon-cli/internal/feesheet"
)

var (
	baselineLoan     string
	baselineFile     string
	baselineSheet    string
	baselineSkipRows int
)

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Manage imported fee baselines",
	Long:  "A stored baseline anchors the tolerance stage instead of the loan system's baseline fee snapshot.",
}

var baselineImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a locked-disclosure fee worksheet as a loan's baseline",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("baseline"); err != nil {
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

		lines, err := feesheet.ReadBaseline(baselineFile, feesheet.Options{
			SheetName: baselineSheet,
			SkipRows:  baselineSkipRows,
		})
		if err != nil {
			return err
		}

		bl, err := st.SaveBaseline(ctx, baselineLoan, filepath.Base(baselineFile), lines)
		if err != nil {
			return eris.Wrap(err, "save baseline")
		}

		total := decimal.Zero
		for _, l := range lines {
			total = total.Add(l.Amount)
		}

		zap.L().Info("baseline imported",
			zap.String("loan", baselineLoan),
			zap.String("source", bl.Source),
			zap.Int("lines", len(lines)),
			zap.String("total", total.StringFixed(2)))

		fmt.Printf("Imported %d fee lines ($%s) for loan %s from %s\n",
			len(lines), total.StringFixed(2), baselineLoan, bl.Source)
		return nil
	},
}

func init() {
	baselineImportCmd.Flags().StringVar(&baselineLoan, "loan", "", "loan record id the baseline belongs to (required)")
	baselineImportCmd.Flags().StringVar(&baselineFile, "file", "", "fee worksheet path, .xlsx (required)")
	baselineImportCmd.Flags().StringVar(&baselineSheet, "sheet", "", "worksheet name (default: first sheet)")
	baselineImportCmd.Flags().IntVar(&baselineSkipRows, "skip-rows", 1, "header rows to skip")
	_ = baselineImportCmd.MarkFlagRequired("loan")
	_ = baselineImportCmd.MarkFlagRequired("file")

	baselineCmd.AddCommand(baselineImportCmd)
	rootCmd.AddCommand(baselineCmd)
}
