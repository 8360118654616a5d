package loansystem

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/meridian-lending/recon-cli/internal/model"
	"github.com/meridian-lending/recon-cli/internal/resilience"
)

// FeeSnapshot selects which fee schedule to read.
type FeeSnapshot string

const (
	// FeeSnapshotBaseline is the locked-disclosure schedule, the anchor
	// for tolerance checks when no imported baseline exists.
	FeeSnapshotBaseline FeeSnapshot = "baseline"
	// FeeSnapshotCurrent is the working estimate schedule.
	FeeSnapshotCurrent FeeSnapshot = "current"
)

type feeRecord struct {
	Name    string  `json:"Name"`
	Section string  `json:"Fee_Section__c"`
	Amount  float64 `json:"LLC_BI__Amount__c"`
}

// ReadFees reads one fee schedule for the loan, in name order.
func (s *Service) ReadFees(ctx context.Context, loanID string, snapshot FeeSnapshot) ([]model.FeeLine, error) {
	soql := fmt.Sprintf(
		"SELECT Name, Fee_Section__c, LLC_BI__Amount__c FROM %s WHERE LLC_BI__Loan__c = '%s' AND Snapshot_Type__c = '%s' ORDER BY Name",
		s.objects.Fee, escapeSoql(loanID), snapshot,
	)

	records, err := resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) ([]feeRecord, error) {
		var recs []feeRecord
		if err := s.client.Query(ctx, soql, &recs); err != nil {
			return nil, err
		}
		return recs, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "loansystem: read %s fees for %s", snapshot, loanID)
	}

	lines := make([]model.FeeLine, 0, len(records))
	for _, r := range records {
		lines = append(lines, model.FeeLine{
			Name:    r.Name,
			Section: strings.ToUpper(strings.TrimSpace(r.Section)),
			// Currency amounts at cent scale round-trip float64 exactly.
			Amount: decimal.NewFromFloat(r.Amount),
		})
	}
	return lines, nil
}
