package loansystem

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-lending/recon-cli/internal/resilience"
)

// OrderDisclosures triggers disclosure ordering for the loan and
// returns the new request record's id. Callers gate this behind mode:
// demo runs must never reach it.
func (s *Service) OrderDisclosures(ctx context.Context, loanID string) (string, error) {
	id, err := resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) (string, error) {
		return s.client.InsertOne(ctx, s.objects.Order, map[string]any{
			"Loan__c":   loanID,
			"Status__c": "Requested",
		})
	})
	if err != nil {
		return "", eris.Wrapf(err, "loansystem: order disclosures for %s", loanID)
	}

	zap.L().Info("loansystem: disclosure order created",
		zap.String("loan_id", loanID),
		zap.String("order_id", id))
	return id, nil
}
