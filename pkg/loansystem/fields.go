package loansystem

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-lending/recon-cli/internal/model"
	"github.com/meridian-lending/recon-cli/internal/resilience"
)

// loanRecord is the identity subset of the loan object.
type loanRecord struct {
	ID     string `json:"Id"`
	Number string `json:"Name"`
}

// GetLoan resolves a loan number to the loan's identity. A missing
// loan is an error: no later stage can do anything without one.
func (s *Service) GetLoan(ctx context.Context, loanNumber string) (*model.Loan, error) {
	soql := fmt.Sprintf("SELECT Id, Name FROM %s WHERE Name = '%s' LIMIT 1",
		s.objects.Loan, escapeSoql(loanNumber))

	records, err := resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) ([]loanRecord, error) {
		var recs []loanRecord
		if err := s.client.Query(ctx, soql, &recs); err != nil {
			return nil, err
		}
		return recs, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "loansystem: get loan %s", loanNumber)
	}
	if len(records) == 0 {
		return nil, eris.Errorf("loansystem: loan not found: %s", loanNumber)
	}

	return &model.Loan{ID: records[0].ID, Number: records[0].Number}, nil
}

// ReadFields reads the given loan fields and returns one SystemValue
// per requested field id, in request order. Absent or null fields come
// back with an empty Raw.
func (s *Service) ReadFields(ctx context.Context, loanID string, fieldIDs []string) ([]model.SystemValue, error) {
	if len(fieldIDs) == 0 {
		return nil, nil
	}

	soql := fmt.Sprintf("SELECT %s FROM %s WHERE Id = '%s' LIMIT 1",
		strings.Join(fieldIDs, ", "), s.objects.Loan, escapeSoql(loanID))

	records, err := resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) ([]map[string]any, error) {
		var recs []map[string]any
		if err := s.client.Query(ctx, soql, &recs); err != nil {
			return nil, err
		}
		return recs, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "loansystem: read fields for %s", loanID)
	}
	if len(records) == 0 {
		return nil, eris.Errorf("loansystem: loan not found: %s", loanID)
	}

	rec := records[0]
	values := make([]model.SystemValue, 0, len(fieldIDs))
	for _, id := range fieldIDs {
		values = append(values, model.SystemValue{FieldID: id, Raw: stringifyField(rec[id])})
	}
	return values, nil
}

// WriteCorrections applies accepted corrections to the loan record in
// one update.
func (s *Service) WriteCorrections(ctx context.Context, loanID string, corrections []model.Correction) error {
	if len(corrections) == 0 {
		return nil
	}

	fields := make(map[string]any, len(corrections))
	for _, c := range corrections {
		fields[c.FieldID] = c.Proposed
	}

	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.client.UpdateOne(ctx, s.objects.Loan, loanID, fields)
	})
	if err != nil {
		return eris.Wrapf(err, "loansystem: write corrections for %s", loanID)
	}

	zap.L().Info("loansystem: corrections written",
		zap.String("loan_id", loanID),
		zap.Int("fields", len(fields)))
	return nil
}

// stringifyField renders a decoded JSON field value the way the
// normalizer expects raw system values: numbers without exponent,
// null as empty.
func stringifyField(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
