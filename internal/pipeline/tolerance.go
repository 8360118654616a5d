package pipeline

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-lending/recon-cli/internal/model"
	"github.com/meridian-lending/recon-cli/internal/store"
	"github.com/meridian-lending/recon-cli/pkg/loansystem"
)

// ToleranceStage evaluates the current fee schedule against the
// baseline disclosure. A stored baseline imported from a locked
// worksheet wins over the loan system's baseline snapshot. Any owed
// cure blocks the run: fee violations need a human decision, never an
// automatic write.
type ToleranceStage struct {
	loans LoanSystem
	store store.Store
}

// NewToleranceStage builds the tolerance stage. A nil store disables
// stored-baseline lookup.
func NewToleranceStage(loans LoanSystem, st store.Store) *ToleranceStage {
	return &ToleranceStage{loans: loans, store: st}
}

func (s *ToleranceStage) Name() string { return StageTolerance }

func (s *ToleranceStage) Run(ctx context.Context, sc *StageContext) (*StageOutput, error) {
	baseline, source, err := s.baseline(ctx, sc.Loan.ID)
	if err != nil {
		return nil, err
	}

	current, err := s.loans.ReadFees(ctx, sc.Loan.ID, loansystem.FeeSnapshotCurrent)
	if err != nil {
		return nil, eris.Wrap(err, "tolerance: read current fees")
	}

	cure := sc.Tolerance.Evaluate(baseline, current)
	out := &StageOutput{
		Cure: &cure,
		Metadata: map[string]any{
			"baseline_source": source,
			"baseline_lines":  len(baseline),
			"current_lines":   len(current),
			"cure_needed":     cure.TotalCureNeeded.StringFixed(2),
		},
	}

	if cure.HasViolations() {
		zap.L().Warn("pipeline: fee tolerance violated",
			zap.String("loan", sc.Loan.Number),
			zap.String("cure_needed", cure.TotalCureNeeded.StringFixed(2)),
			zap.Int("violations", len(cure.Violations)))
		return out, &BlockedError{Reasons: cureReasons(&cure)}
	}
	return out, nil
}

// baseline resolves the schedule to compare against: the most recently
// imported stored baseline when one exists, otherwise the loan system's
// baseline fee snapshot.
func (s *ToleranceStage) baseline(ctx context.Context, loanID string) ([]model.FeeLine, string, error) {
	if s.store != nil {
		stored, err := s.store.GetBaseline(ctx, loanID)
		if err != nil {
			return nil, "", eris.Wrap(err, "tolerance: load stored baseline")
		}
		if stored != nil {
			return stored.Lines, "stored:" + stored.Source, nil
		}
	}

	lines, err := s.loans.ReadFees(ctx, loanID, loansystem.FeeSnapshotBaseline)
	if err != nil {
		return nil, "", eris.Wrap(err, "tolerance: read baseline fees")
	}
	return lines, "loan_system", nil
}

// cureReasons renders one reviewer-facing line per violating fee plus
// the total owed.
func cureReasons(c *model.CureResult) []string {
	reasons := make([]string, 0, len(c.Violations)+1)
	for _, v := range c.Violations {
		reasons = append(reasons, fmt.Sprintf("%s increased by $%s (baseline $%s, current $%s)",
			v.Name, v.Violation.StringFixed(2), v.Baseline.StringFixed(2), v.Current.StringFixed(2)))
	}
	reasons = append(reasons, fmt.Sprintf("cure owed: $%s", c.TotalCureNeeded.StringFixed(2)))
	return reasons
}
