package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-lending/recon-cli/internal/model"
)

// OrderStage triggers corrected-disclosure ordering in the loan system
// once every earlier gate has passed. Nothing is ordered when the run
// changed nothing, and a demo run only records what it would have done.
type OrderStage struct {
	loans LoanSystem
}

// NewOrderStage builds the order stage.
func NewOrderStage(loans LoanSystem) *OrderStage {
	return &OrderStage{loans: loans}
}

func (s *OrderStage) Name() string { return StageOrder }

func (s *OrderStage) Run(ctx context.Context, sc *StageContext) (*StageOutput, error) {
	out := &StageOutput{Metadata: map[string]any{"ordered": false}}
	if len(sc.Corrections) == 0 {
		out.Metadata["reason"] = "no corrections applied"
		return out, nil
	}

	if sc.Mode != model.ModeProduction {
		out.Metadata["reason"] = "demo mode"
		out.Metadata["would_order"] = true
		zap.L().Info("pipeline: demo mode, disclosure order not placed",
			zap.String("loan", sc.Loan.Number))
		return out, nil
	}

	id, err := s.loans.OrderDisclosures(ctx, sc.Loan.ID)
	if err != nil {
		return nil, eris.Wrap(err, "order: place disclosure order")
	}
	out.Metadata["ordered"] = true
	out.Metadata["disclosure_request_id"] = id
	return out, nil
}
