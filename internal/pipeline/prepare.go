package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-lending/recon-cli/internal/model"
)

// PrepareStage gathers everything later stages compare: the loan-system
// field snapshot, attached and partner-inbox documents, and the values
// extraction pulls out of those documents.
type PrepareStage struct {
	loans     LoanSystem
	inbox     Inbox
	extractor Extractor
}

// NewPrepareStage builds the prepare stage. Inbox and extractor are
// optional; without an extractor every mapped field surfaces later as
// missing on the document side.
func NewPrepareStage(loans LoanSystem, inbox Inbox, extractor Extractor) *PrepareStage {
	return &PrepareStage{loans: loans, inbox: inbox, extractor: extractor}
}

func (s *PrepareStage) Name() string { return StagePrepare }

func (s *PrepareStage) Run(ctx context.Context, sc *StageContext) (*StageOutput, error) {
	snapshot, err := s.loans.ReadFields(ctx, sc.Loan.ID, sc.Registry.SystemFieldIDs())
	if err != nil {
		return nil, eris.Wrap(err, "prepare: read field snapshot")
	}

	docs, err := s.loans.ListDocuments(ctx, sc.Loan.ID)
	if err != nil {
		return nil, eris.Wrap(err, "prepare: list loan documents")
	}
	if s.inbox != nil {
		inboxDocs, err := s.inbox.FetchAll(ctx, sc.Loan.Number)
		if err != nil {
			return nil, eris.Wrap(err, "prepare: fetch inbox documents")
		}
		docs = append(docs, inboxDocs...)
	}

	fieldIDs := make([]string, 0, len(sc.Registry.Mappings))
	for _, m := range sc.Registry.Mappings {
		fieldIDs = append(fieldIDs, m.ID)
	}

	var extracted []model.ExtractedValue
	if s.extractor != nil && len(docs) > 0 {
		vals, err := s.extractor.ExtractFields(ctx, docs, fieldIDs)
		if err != nil {
			// Extraction is best-effort. A failed call degrades to an
			// empty set; affected fields surface as missing_extracted
			// instead of failing the run.
			zap.L().Warn("prepare: extraction failed, continuing without document values",
				zap.String("loan", sc.Loan.Number),
				zap.Error(err))
		} else {
			extracted = vals
		}
	}

	return &StageOutput{
		Snapshot:  snapshot,
		Documents: docs,
		Extracted: extracted,
		Metadata: map[string]any{
			"fields_read":      len(snapshot),
			"documents":        len(docs),
			"extracted_values": len(extracted),
		},
	}, nil
}
