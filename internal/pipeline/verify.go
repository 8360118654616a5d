package pipeline

import (
	"context"
	"fmt"

	"github.com/meridian-lending/recon-cli/internal/reconcile"
)

// VerifyStage re-runs reconciliation over the post-update snapshot. In
// production that snapshot is a fresh system read taken after the write;
// in demo mode it is the simulated projection. Any field still
// mismatched after correction blocks the run.
type VerifyStage struct{}

// NewVerifyStage builds the verify stage.
func NewVerifyStage() *VerifyStage { return &VerifyStage{} }

func (s *VerifyStage) Name() string { return StageVerify }

func (s *VerifyStage) Run(ctx context.Context, sc *StageContext) (*StageOutput, error) {
	discs := reconcile.Reconcile(sc.Registry, sc.Extracted, sc.Snapshot)
	out := &StageOutput{
		Discrepancies: discs,
		Metadata: map[string]any{
			"outcomes": reconcile.CountByOutcome(discs),
		},
	}

	remaining := reconcile.Mismatches(discs)
	if len(remaining) == 0 {
		return out, nil
	}

	reasons := make([]string, 0, len(remaining))
	for _, d := range remaining {
		name := d.DisplayName
		if name == "" {
			name = d.FieldID
		}
		reasons = append(reasons, fmt.Sprintf("%s still reads %q after correction, documents show %q",
			name, d.System, d.Extracted))
	}
	return out, &BlockedError{Reasons: reasons}
}
