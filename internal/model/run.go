package model

import "time"

// Mode selects whether writes reach the loan system. In demo mode no
// write ever occurs; later stages observe a simulated snapshot instead.
type Mode string

const (
	ModeDemo       Mode = "demo"
	ModeProduction Mode = "production"
)

// Loan identifies the loan under reconciliation.
type Loan struct {
	ID          string `json:"id"`
	Number      string `json:"number,omitempty"`
	BoardPageID string `json:"board_page_id,omitempty"`
}

// StageStatus is the terminal (or in-flight) state of one stage.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusSuccess   StageStatus = "success"
	StageStatusBlocked   StageStatus = "blocked"
	StageStatusFailed    StageStatus = "failed"
	StageStatusSkipped   StageStatus = "skipped"
	StageStatusCancelled StageStatus = "cancelled"
)

// RunStatus is the state of the run as a whole.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusBlocked   RunStatus = "blocked"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusBlocked, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// StageResult records one stage's outcome inside a run report.
type StageResult struct {
	Stage         string         `json:"stage"`
	Status        StageStatus    `json:"status"`
	Attempts      int            `json:"attempts"`
	ElapsedMS     int64          `json:"elapsed_ms"`
	Discrepancies []Discrepancy  `json:"discrepancies,omitempty"`
	Cure          *CureResult    `json:"cure_result,omitempty"`
	Corrections   []Correction   `json:"corrections,omitempty"`
	Error         string         `json:"error,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// RunReport is the structured output of one pipeline run. It carries no
// row ids or wall-clock timestamps: with a fixed clock and identical
// collaborator data, marshaling the report is byte-identical across runs.
type RunReport struct {
	Loan            Loan          `json:"loan"`
	Mode            Mode          `json:"mode"`
	Status          RunStatus     `json:"run_status"`
	BlockingReasons []string      `json:"blocking_reasons,omitempty"`
	Stages          []StageResult `json:"stages"`
}

// BlockedStage returns the first blocked stage result, or nil.
func (r *RunReport) BlockedStage() *StageResult {
	for i := range r.Stages {
		if r.Stages[i].Status == StageStatusBlocked {
			return &r.Stages[i]
		}
	}
	return nil
}

// FieldComparison returns the most recent field-by-field comparison in
// the report. Verify supersedes reconcile when both ran.
func (r *RunReport) FieldComparison() []Discrepancy {
	for i := len(r.Stages) - 1; i >= 0; i-- {
		if len(r.Stages[i].Discrepancies) > 0 {
			return r.Stages[i].Discrepancies
		}
	}
	return nil
}

// FlaggedFields counts compared fields whose outcome was anything but
// a match.
func (r *RunReport) FlaggedFields() int {
	n := 0
	for _, d := range r.FieldComparison() {
		if d.Outcome != OutcomeMatch {
			n++
		}
	}
	return n
}

// Corrections returns every correction proposed across stages.
func (r *RunReport) Corrections() []Correction {
	var out []Correction
	for _, s := range r.Stages {
		out = append(out, s.Corrections...)
	}
	return out
}

// Cure returns the fee-tolerance evaluation, or nil when the run never
// reached the tolerance stage.
func (r *RunReport) Cure() *CureResult {
	for i := range r.Stages {
		if r.Stages[i].Cure != nil {
			return r.Stages[i].Cure
		}
	}
	return nil
}

// Run is the persisted envelope around a report.
type Run struct {
	ID        string     `json:"id"`
	Loan      Loan       `json:"loan"`
	Mode      Mode       `json:"mode"`
	Status    RunStatus  `json:"status"`
	Report    *RunReport `json:"report,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// FeeBaseline is a stored baseline fee schedule for a loan, imported
// from a locked disclosure worksheet. The tolerance stage prefers a
// stored baseline over re-deriving one from the loan system.
type FeeBaseline struct {
	ID         string    `json:"id"`
	LoanID     string    `json:"loan_id"`
	Source     string    `json:"source"`
	Lines      []FeeLine `json:"lines"`
	ImportedAt time.Time `json:"imported_at"`
}
