package pipeline

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-lending/recon-cli/internal/model"
	"github.com/meridian-lending/recon-cli/internal/resilience"
)

const (
	testLoanID     = "a0B5e000001abcD"
	testLoanNumber = "L-2024-0042"
)

func testLoan() *model.Loan {
	return &model.Loan{ID: testLoanID, Number: testLoanNumber}
}

func testRegistry() *model.MappingRegistry {
	return model.NewMappingRegistry([]model.FieldMapping{
		{ID: "Borrower_Phone__c", DisplayName: "Borrower Phone", Kind: model.KindPhone},
		{ID: "Note_Date__c", DisplayName: "Note Date", Kind: model.KindDate},
		{ID: "Loan_Amount__c", DisplayName: "Loan Amount", Kind: model.KindCurrency},
	})
}

// testSnapshot has the phone wrong relative to the documents; the other
// two fields agree after normalization.
func testSnapshot() []model.SystemValue {
	return []model.SystemValue{
		{FieldID: "Borrower_Phone__c", Raw: "555-999-0000"},
		{FieldID: "Note_Date__c", Raw: "2024-03-15"},
		{FieldID: "Loan_Amount__c", Raw: "412500"},
	}
}

func correctedSnapshot() []model.SystemValue {
	return []model.SystemValue{
		{FieldID: "Borrower_Phone__c", Raw: "5551234567"},
		{FieldID: "Note_Date__c", Raw: "2024-03-15"},
		{FieldID: "Loan_Amount__c", Raw: "412500"},
	}
}

func testDocuments() []model.Document {
	return []model.Document{
		{Name: "Loan Estimate.pdf", Source: model.DocSourceLoanSystem, Content: []byte("le")},
		{Name: "Promissory Note.pdf", Source: model.DocSourceLoanSystem, Content: []byte("note")},
	}
}

func testExtracted() []model.ExtractedValue {
	return []model.ExtractedValue{
		{FieldID: "Borrower_Phone__c", Raw: "(555) 123-4567", SourceDoc: "Loan Estimate.pdf"},
		{FieldID: "Note_Date__c", Raw: "03/15/2024", SourceDoc: "Promissory Note.pdf"},
		{FieldID: "Loan_Amount__c", Raw: "$412,500.00", SourceDoc: "Loan Estimate.pdf"},
	}
}

func feeLines(amounts map[string]float64, class model.ToleranceClass) []model.FeeLine {
	out := make([]model.FeeLine, 0, len(amounts))
	// Deterministic order keeps report assertions simple.
	for _, name := range []string{"Appraisal Fee", "Credit Report", "Title Insurance", "Recording Fee"} {
		if amt, ok := amounts[name]; ok {
			out = append(out, model.FeeLine{
				Name:   name,
				Amount: decimal.NewFromFloat(amt),
				Class:  class,
			})
		}
	}
	return out
}

// fastRetry keeps retry-path tests quick.
func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

// scriptedStage drives orchestrator tests without real stage logic.
type scriptedStage struct {
	name string
	fn   func(ctx context.Context, sc *StageContext) (*StageOutput, error)
}

func (s *scriptedStage) Name() string { return s.name }

func (s *scriptedStage) Run(ctx context.Context, sc *StageContext) (*StageOutput, error) {
	return s.fn(ctx, sc)
}

func stageStatuses(report *model.RunReport) []model.StageStatus {
	out := make([]model.StageStatus, 0, len(report.Stages))
	for _, s := range report.Stages {
		out = append(out, s.Status)
	}
	return out
}
