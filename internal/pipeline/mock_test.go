package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/meridian-lending/recon-cli/internal/model"
	"github.com/meridian-lending/recon-cli/internal/store"
	"github.com/meridian-lending/recon-cli/pkg/advisor"
	"github.com/meridian-lending/recon-cli/pkg/loansystem"
)

var (
	_ LoanSystem  = (*mockLoanSystem)(nil)
	_ Extractor   = (*mockExtractor)(nil)
	_ Advisor     = (*mockAdvisor)(nil)
	_ Inbox       = (*mockInbox)(nil)
	_ store.Store = (*mockStore)(nil)
)

// --- Loan system mock ---

type mockLoanSystem struct {
	mock.Mock
}

func (m *mockLoanSystem) GetLoan(ctx context.Context, loanNumber string) (*model.Loan, error) {
	args := m.Called(ctx, loanNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Loan), args.Error(1)
}

func (m *mockLoanSystem) ReadFields(ctx context.Context, loanID string, fieldIDs []string) ([]model.SystemValue, error) {
	args := m.Called(ctx, loanID, fieldIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SystemValue), args.Error(1)
}

func (m *mockLoanSystem) WriteCorrections(ctx context.Context, loanID string, corrections []model.Correction) error {
	args := m.Called(ctx, loanID, corrections)
	return args.Error(0)
}

func (m *mockLoanSystem) ReadFees(ctx context.Context, loanID string, snapshot loansystem.FeeSnapshot) ([]model.FeeLine, error) {
	args := m.Called(ctx, loanID, snapshot)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FeeLine), args.Error(1)
}

func (m *mockLoanSystem) ListDocuments(ctx context.Context, loanID string) ([]model.Document, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Document), args.Error(1)
}

func (m *mockLoanSystem) OrderDisclosures(ctx context.Context, loanID string) (string, error) {
	args := m.Called(ctx, loanID)
	return args.String(0), args.Error(1)
}

// --- Extractor mock ---

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) ExtractFields(ctx context.Context, docs []model.Document, fieldIDs []string) ([]model.ExtractedValue, error) {
	args := m.Called(ctx, docs, fieldIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ExtractedValue), args.Error(1)
}

// --- Advisor mock ---

type mockAdvisor struct {
	mock.Mock
}

func (m *mockAdvisor) SuggestCorrection(ctx context.Context, req advisor.SuggestionRequest) (*advisor.Suggestion, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*advisor.Suggestion), args.Error(1)
}

// --- Inbox mock ---

type mockInbox struct {
	mock.Mock
}

func (m *mockInbox) FetchAll(ctx context.Context, loanNumber string) ([]model.Document, error) {
	args := m.Called(ctx, loanNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Document), args.Error(1)
}

// --- Store mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateRun(ctx context.Context, loan model.Loan, mode model.Mode) (*model.Run, error) {
	args := m.Called(ctx, loan, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	args := m.Called(ctx, runID, status)
	return args.Error(0)
}

func (m *mockStore) SaveRunReport(ctx context.Context, runID string, report *model.RunReport) error {
	args := m.Called(ctx, runID, report)
	return args.Error(0)
}

func (m *mockStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Run), args.Error(1)
}

func (m *mockStore) SaveBaseline(ctx context.Context, loanID, source string, lines []model.FeeLine) (*model.FeeBaseline, error) {
	args := m.Called(ctx, loanID, source, lines)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FeeBaseline), args.Error(1)
}

func (m *mockStore) GetBaseline(ctx context.Context, loanID string) (*model.FeeBaseline, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FeeBaseline), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
