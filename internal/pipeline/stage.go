// Package pipeline orchestrates a reconciliation run: a fixed sequence
// of stages that read the loan system, compare it against extracted
// document values, evaluate fee tolerance, apply corrections, and order
// corrected disclosures. Stages share state through a StageContext; the
// orchestrator owns status tracking, retries, and persistence.
package pipeline

import (
	"context"
	"strings"

	"github.com/meridian-lending/recon-cli/internal/model"
	"github.com/meridian-lending/recon-cli/internal/tolerance"
	"github.com/meridian-lending/recon-cli/pkg/advisor"
	"github.com/meridian-lending/recon-cli/pkg/loansystem"
)

// Stage names, in default execution order.
const (
	StagePrepare   = "prepare"
	StageReconcile = "reconcile"
	StageTolerance = "tolerance"
	StageUpdate    = "update"
	StageVerify    = "verify"
	StageOrder     = "order"
)

// StageOrderDefault is the canonical stage sequence.
var StageOrderDefault = []string{
	StagePrepare,
	StageReconcile,
	StageTolerance,
	StageUpdate,
	StageVerify,
	StageOrder,
}

// KnownStage reports whether name is a stage the pipeline runs.
func KnownStage(name string) bool {
	for _, s := range StageOrderDefault {
		if s == name {
			return true
		}
	}
	return false
}

// Stage is one unit of pipeline work. Run receives the accumulated
// context and returns its contribution; it must not mutate the context.
// A stage signals a business halt by returning *BlockedError, optionally
// alongside a partial output the orchestrator still records.
type Stage interface {
	Name() string
	Run(ctx context.Context, sc *StageContext) (*StageOutput, error)
}

// StageContext is the read-only view a stage receives: the loan under
// reconciliation, the run mode, static configuration, and everything
// earlier stages produced. The orchestrator rebuilds the snapshot
// between stages, so a stage always sees the freshest view its mode
// allows.
type StageContext struct {
	Loan      model.Loan
	Mode      model.Mode
	Registry  *model.MappingRegistry
	Tolerance *tolerance.Engine

	Snapshot      []model.SystemValue
	Documents     []model.Document
	Extracted     []model.ExtractedValue
	Discrepancies []model.Discrepancy
	Corrections   []model.Correction
	Cure          *model.CureResult
}

// StageOutput is what a stage hands back. Nil slices mean "no change";
// the orchestrator folds non-nil fields into the context for the stages
// that follow.
type StageOutput struct {
	Snapshot      []model.SystemValue
	Documents     []model.Document
	Extracted     []model.ExtractedValue
	Discrepancies []model.Discrepancy
	Corrections   []model.Correction
	Cure          *model.CureResult
	Metadata      map[string]any
}

// BlockedError halts the run for human review. It is a business gate,
// not a failure: the stage completed its work and concluded the loan
// cannot proceed automatically. Blocked errors are never retried.
type BlockedError struct {
	Reasons []string
}

func (e *BlockedError) Error() string {
	return "blocked: " + strings.Join(e.Reasons, "; ")
}

// LoanSystem is the system-of-record surface the pipeline depends on.
// *loansystem.Service satisfies it.
type LoanSystem interface {
	GetLoan(ctx context.Context, loanNumber string) (*model.Loan, error)
	ReadFields(ctx context.Context, loanID string, fieldIDs []string) ([]model.SystemValue, error)
	WriteCorrections(ctx context.Context, loanID string, corrections []model.Correction) error
	ReadFees(ctx context.Context, loanID string, snapshot loansystem.FeeSnapshot) ([]model.FeeLine, error)
	ListDocuments(ctx context.Context, loanID string) ([]model.Document, error)
	OrderDisclosures(ctx context.Context, loanID string) (string, error)
}

// Extractor pulls field values out of loan documents.
type Extractor interface {
	ExtractFields(ctx context.Context, docs []model.Document, fieldIDs []string) ([]model.ExtractedValue, error)
}

// Advisor suggests a winning value when source documents disagree.
type Advisor interface {
	SuggestCorrection(ctx context.Context, req advisor.SuggestionRequest) (*advisor.Suggestion, error)
}

// Inbox fetches partner-submitted documents outside the loan system.
type Inbox interface {
	FetchAll(ctx context.Context, loanNumber string) ([]model.Document, error)
}
