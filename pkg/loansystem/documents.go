package loansystem

import (
	"context"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-lending/recon-cli/internal/model"
	"github.com/meridian-lending/recon-cli/internal/resilience"
)

type contentDocLink struct {
	ContentDocument struct {
		LatestPublishedVersionId string `json:"LatestPublishedVersionId"`
		Title                    string `json:"Title"`
		FileExtension            string `json:"FileExtension"`
	} `json:"ContentDocument"`
}

// ListDocuments fetches the loan's attached documents (latest published
// version of each file), sorted by name for deterministic reports.
func (s *Service) ListDocuments(ctx context.Context, loanID string) ([]model.Document, error) {
	soql := fmt.Sprintf(
		"SELECT ContentDocument.LatestPublishedVersionId, ContentDocument.Title, ContentDocument.FileExtension FROM ContentDocumentLink WHERE LinkedEntityId = '%s'",
		escapeSoql(loanID),
	)

	docs, err := resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) ([]model.Document, error) {
		var links []contentDocLink
		if err := s.client.Query(ctx, soql, &links); err != nil {
			return nil, err
		}

		out := make([]model.Document, 0, len(links))
		for _, l := range links {
			cd := l.ContentDocument
			if cd.LatestPublishedVersionId == "" {
				continue
			}
			body, err := s.client.GetBody(ctx, "/sobjects/ContentVersion/"+cd.LatestPublishedVersionId+"/VersionData")
			if err != nil {
				return nil, err
			}

			name := cd.Title
			if cd.FileExtension != "" {
				name += "." + cd.FileExtension
			}
			out = append(out, model.Document{
				Name:    name,
				Source:  model.DocSourceLoanSystem,
				Content: body,
			})
		}
		return out, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "loansystem: list documents for %s", loanID)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })

	zap.L().Debug("loansystem: documents fetched",
		zap.String("loan_id", loanID),
		zap.Int("count", len(docs)))
	return docs, nil
}
