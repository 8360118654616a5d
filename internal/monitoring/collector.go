// Package monitoring aggregates recent run history into a health
// snapshot for the status command and the serve health endpoint.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/meridian-lending/recon-cli/internal/model"
	"github.com/meridian-lending/recon-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of reconciliation activity.
type MetricsSnapshot struct {
	// Run tallies within the lookback window.
	RunsTotal     int     `json:"runs_total"`
	RunsCompleted int     `json:"runs_completed"`
	RunsBlocked   int     `json:"runs_blocked"`
	RunsFailed    int     `json:"runs_failed"`
	RunsCancelled int     `json:"runs_cancelled"`
	RunsActive    int     `json:"runs_active"`
	BlockedRate   float64 `json:"blocked_rate"`
	FailRate      float64 `json:"fail_rate"`

	// Mode split.
	DemoRuns       int `json:"demo_runs"`
	ProductionRuns int `json:"production_runs"`

	// Reconciliation volume, summed over runs that produced a report.
	FieldsFlagged       int             `json:"fields_flagged"`
	CorrectionsProposed int             `json:"corrections_proposed"`
	CureOwedUSD         decimal.Decimal `json:"cure_owed_usd"`

	// Most recent run in the window.
	LastRun *LastRunInfo `json:"last_run,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// LastRunInfo summarizes the newest run inside the window.
type LastRunInfo struct {
	ID         string          `json:"id"`
	LoanNumber string          `json:"loan_number,omitempty"`
	Status     model.RunStatus `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Collector gathers run metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a metrics collector over the given store.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		CureOwedUSD:   decimal.Zero,
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusCompleted:
			snap.RunsCompleted++
		case model.RunStatusBlocked:
			snap.RunsBlocked++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusCancelled:
			snap.RunsCancelled++
		default:
			snap.RunsActive++
		}

		if r.Mode == model.ModeProduction {
			snap.ProductionRuns++
		} else {
			snap.DemoRuns++
		}

		if r.Report != nil {
			snap.FieldsFlagged += r.Report.FlaggedFields()
			snap.CorrectionsProposed += len(r.Report.Corrections())
			if cure := r.Report.Cure(); cure != nil {
				snap.CureOwedUSD = snap.CureOwedUSD.Add(cure.TotalCureNeeded)
			}
		}
	}

	finished := snap.RunsCompleted + snap.RunsBlocked + snap.RunsFailed + snap.RunsCancelled
	if finished > 0 {
		snap.BlockedRate = float64(snap.RunsBlocked) / float64(finished)
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}

	// ListRuns orders newest first.
	if len(runs) > 0 {
		snap.LastRun = &LastRunInfo{
			ID:         runs[0].ID,
			LoanNumber: runs[0].Loan.Number,
			Status:     runs[0].Status,
			CreatedAt:  runs[0].CreatedAt,
		}
	}

	return snap, nil
}
