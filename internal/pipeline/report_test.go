package pipeline

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/meridian-lending/recon-cli/internal/model"
)

func blockedReport() *model.RunReport {
	cure := model.CureResult{
		TotalCureNeeded: decimal.NewFromInt(100),
		PerClass: []model.ClassBreakdown{{
			Class:         model.ToleranceZero,
			BaselineTotal: decimal.NewFromInt(500),
			CurrentTotal:  decimal.NewFromInt(600),
			Threshold:     decimal.NewFromInt(500),
			Violation:     decimal.NewFromInt(100),
		}},
		Violations: []model.FeeLineItem{{
			Name:      "Appraisal Fee",
			Class:     model.ToleranceZero,
			Baseline:  decimal.NewFromInt(500),
			Current:   decimal.NewFromInt(600),
			Violation: decimal.NewFromInt(100),
		}},
	}
	return &model.RunReport{
		Loan:            *testLoan(),
		Mode:            model.ModeDemo,
		Status:          model.RunStatusBlocked,
		BlockingReasons: []string{"Appraisal Fee increased by $100.00 (baseline $500.00, current $600.00)", "cure owed: $100.00"},
		Stages: []model.StageResult{
			{Stage: StagePrepare, Status: model.StageStatusSuccess, Attempts: 2, ElapsedMS: 840},
			{Stage: StageReconcile, Status: model.StageStatusSuccess, Attempts: 1, ElapsedMS: 12,
				Discrepancies: []model.Discrepancy{
					{FieldID: "Borrower_Phone__c", DisplayName: "Borrower Phone", Outcome: model.OutcomeMismatch,
						Extracted: "(555) 123-4567", System: "555-999-0000", SourceDoc: "Loan Estimate.pdf"},
					{FieldID: "Note_Date__c", DisplayName: "Note Date", Outcome: model.OutcomeMatch},
				},
				Corrections: []model.Correction{{FieldID: "Borrower_Phone__c", Proposed: "5551234567",
					Rationale: "document Loan Estimate.pdf shows a different phone", Source: "reconciler"}}},
			{Stage: StageTolerance, Status: model.StageStatusBlocked, Attempts: 1, ElapsedMS: 33, Cure: &cure},
		},
	}
}

func TestFormatReport_BlockedRun(t *testing.T) {
	got := FormatReport(blockedReport())

	assert.True(t, strings.HasPrefix(got, "# Reconciliation Report: L-2024-0042\n"))
	assert.Contains(t, got, "Mode: demo\n")
	assert.Contains(t, got, "Status: blocked\n")

	assert.Contains(t, got, "## Blocking Reasons\n")
	assert.Contains(t, got, "- Appraisal Fee increased by $100.00 (baseline $500.00, current $600.00)\n")

	assert.Contains(t, got, "## Stages\n")
	assert.Contains(t, got, "- prepare: success (840ms)\n  Attempts: 2\n")
	assert.Contains(t, got, "- tolerance: blocked (33ms)\n")

	assert.Contains(t, got, "## Field Comparison\n")
	assert.Contains(t, got, "- **Borrower Phone** (Borrower_Phone__c): mismatch\n")
	assert.Contains(t, got, `  Document: "(555) 123-4567" [Loan Estimate.pdf]`)
	assert.Contains(t, got, `  System: "555-999-0000"`)

	assert.Contains(t, got, "## Corrections\n")
	assert.Contains(t, got, `- **Borrower_Phone__c**: "5551234567" (reconciler)`)

	assert.Contains(t, got, "## Fee Tolerance\n")
	assert.Contains(t, got, "- zero: baseline $500.00, current $600.00, threshold $500.00, violation $100.00\n")
	assert.Contains(t, got, "- Appraisal Fee: $100.00 over (baseline $500.00, current $600.00)\n")
	assert.Contains(t, got, "Cure owed: $100.00\n")
}

func TestFormatReport_CleanRun(t *testing.T) {
	r := &model.RunReport{
		Loan:   *testLoan(),
		Mode:   model.ModeProduction,
		Status: model.RunStatusCompleted,
		Stages: []model.StageResult{
			{Stage: StagePrepare, Status: model.StageStatusSuccess, ElapsedMS: 700},
			{Stage: StageVerify, Status: model.StageStatusSuccess, ElapsedMS: 25,
				Discrepancies: []model.Discrepancy{
					{FieldID: "Borrower_Phone__c", Outcome: model.OutcomeMatch},
					{FieldID: "Note_Date__c", Outcome: model.OutcomeMatch},
					{FieldID: "Loan_Amount__c", Outcome: model.OutcomeMatch},
				}},
		},
	}

	got := FormatReport(r)
	assert.Contains(t, got, "All 3 mapped fields match.\n")
	assert.NotContains(t, got, "## Blocking Reasons")
	assert.NotContains(t, got, "## Corrections")
	assert.NotContains(t, got, "## Fee Tolerance")
}

func TestFormatReport_FailedStageShowsError(t *testing.T) {
	r := &model.RunReport{
		Loan:   *testLoan(),
		Mode:   model.ModeDemo,
		Status: model.RunStatusFailed,
		Stages: []model.StageResult{
			{Stage: StagePrepare, Status: model.StageStatusFailed, Attempts: 3, ElapsedMS: 1500,
				Error: "prepare: read field snapshot: connection reset"},
		},
	}

	got := FormatReport(r)
	assert.Contains(t, got, "- prepare: failed (1500ms)\n  Attempts: 3\n  Error: prepare: read field snapshot: connection reset\n")
	assert.Contains(t, got, "No fields compared.\n")
}

func TestFormatReport_FallsBackToLoanID(t *testing.T) {
	r := &model.RunReport{
		Loan:   model.Loan{ID: testLoanID},
		Mode:   model.ModeDemo,
		Status: model.RunStatusCompleted,
	}
	got := FormatReport(r)
	assert.True(t, strings.HasPrefix(got, "# Reconciliation Report: "+testLoanID+"\n"))
}
