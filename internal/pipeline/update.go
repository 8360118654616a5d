package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-lending/recon-cli/internal/model"
)

// UpdateStage writes accumulated corrections to the loan system. Only a
// production run ever writes; any other mode records what would have
// been written and leaves the system untouched.
type UpdateStage struct {
	loans LoanSystem
}

// NewUpdateStage builds the update stage.
func NewUpdateStage(loans LoanSystem) *UpdateStage {
	return &UpdateStage{loans: loans}
}

func (s *UpdateStage) Name() string { return StageUpdate }

func (s *UpdateStage) Run(ctx context.Context, sc *StageContext) (*StageOutput, error) {
	out := &StageOutput{Metadata: map[string]any{
		"corrections": len(sc.Corrections),
		"written":     0,
	}}
	if len(sc.Corrections) == 0 {
		return out, nil
	}

	if sc.Mode != model.ModeProduction {
		out.Metadata["simulated"] = true
		zap.L().Info("pipeline: demo mode, corrections not written",
			zap.String("loan", sc.Loan.Number),
			zap.Int("corrections", len(sc.Corrections)))
		return out, nil
	}

	if err := s.loans.WriteCorrections(ctx, sc.Loan.ID, sc.Corrections); err != nil {
		return nil, eris.Wrap(err, "update: write corrections")
	}
	out.Metadata["written"] = len(sc.Corrections)
	return out, nil
}
