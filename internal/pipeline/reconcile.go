package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/meridian-lending/recon-cli/internal/model"
	"github.com/meridian-lending/recon-cli/internal/reconcile"
	"github.com/meridian-lending/recon-cli/pkg/advisor"
)

// ReconcileStage compares extracted document values against the system
// snapshot and proposes corrections. Unambiguous mismatches and fields
// the system is missing get the document value; when the documents
// disagree among themselves the correction advisor may pick a winner,
// and without one the field is left for a reviewer.
type ReconcileStage struct {
	advisor Advisor
}

// NewReconcileStage builds the reconcile stage. The advisor is optional.
func NewReconcileStage(adv Advisor) *ReconcileStage {
	return &ReconcileStage{advisor: adv}
}

func (s *ReconcileStage) Name() string { return StageReconcile }

func (s *ReconcileStage) Run(ctx context.Context, sc *StageContext) (*StageOutput, error) {
	discs := reconcile.Reconcile(sc.Registry, sc.Extracted, sc.Snapshot)
	corrections := reconcile.Proposals(discs)

	advised := 0
	if s.advisor != nil {
		for i := range discs {
			d := &discs[i]
			if d.Outcome != model.OutcomeMismatch || !d.Ambiguous() {
				continue
			}
			c, ok := s.suggest(ctx, d)
			if !ok {
				continue
			}
			corrections = append(corrections, c)
			advised++
		}
	}

	return &StageOutput{
		Discrepancies: discs,
		Corrections:   corrections,
		Metadata: map[string]any{
			"outcomes":    reconcile.CountByOutcome(discs),
			"corrections": len(corrections),
			"advised":     advised,
		},
	}, nil
}

// suggest asks the advisor to resolve an ambiguous mismatch. The chosen
// value is normalized through its candidate so the proposed write uses
// the same form a reconciler-sourced correction would.
func (s *ReconcileStage) suggest(ctx context.Context, d *model.Discrepancy) (model.Correction, bool) {
	sug, err := s.advisor.SuggestCorrection(ctx, advisor.SuggestionRequest{
		FieldID:     d.FieldID,
		DisplayName: d.DisplayName,
		Candidates:  d.Candidates,
	})
	if err != nil {
		// Advisory only. A declined or failed suggestion leaves the
		// field for human review rather than failing the stage.
		zap.L().Warn("pipeline: advisor gave no usable suggestion",
			zap.String("field_id", d.FieldID),
			zap.Error(err))
		return model.Correction{}, false
	}

	proposed := sug.Chosen
	for _, c := range d.Candidates {
		if c.Raw == sug.Chosen && c.Normalized != "" {
			proposed = c.Normalized
			break
		}
	}
	return model.Correction{
		FieldID:   d.FieldID,
		Proposed:  proposed,
		Rationale: sug.Rationale,
		Source:    "advisor",
	}, true
}
