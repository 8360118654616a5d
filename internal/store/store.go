// Package store persists reconciliation runs and imported fee baselines.
// Two backends are provided: SQLite for single-operator use and Postgres
// for shared deployments.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/meridian-lending/recon-cli/internal/model"
)

// ErrRunNotFound is returned by GetRun when no run has the given id.
var ErrRunNotFound = eris.New("run not found")

// Store is the persistence interface used by the pipeline and the CLI.
type Store interface {
	// Run lifecycle
	CreateRun(ctx context.Context, loan model.Loan, mode model.Mode) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	SaveRunReport(ctx context.Context, runID string, report *model.RunReport) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Fee baselines imported from locked disclosure worksheets. GetBaseline
	// returns the most recently imported baseline for the loan, or nil.
	SaveBaseline(ctx context.Context, loanID, source string, lines []model.FeeLine) (*model.FeeBaseline, error)
	GetBaseline(ctx context.Context, loanID string) (*model.FeeBaseline, error)

	// Schema management
	Migrate(ctx context.Context) error
	Close() error
}

// RunFilter restricts ListRuns output. Zero values mean no filter.
type RunFilter struct {
	Status       model.RunStatus
	LoanID       string
	CreatedAfter time.Time
	Limit        int
	Offset       int
}
