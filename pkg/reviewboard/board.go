package reviewboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridian-lending/recon-cli/internal/model"
)

// QueuedLoan is one board row waiting for a reconciliation run.
type QueuedLoan struct {
	PageID     string
	LoanNumber string
	Mode       model.Mode
}

// Exception describes a blocked run posted to the exception database.
type Exception struct {
	LoanNumber string
	RunID      string
	Reasons    []string
	CureAmount decimal.Decimal
}

// QueryAll fetches all pages from a board database, handling pagination.
// Rate limiting is enforced by the Client (3 req/s by default).
// Uses prefetch: starts fetching page N+1 in a goroutine while processing
// page N, reducing effective latency for multi-page results.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	var all []notionapi.Page

	req := &notionapi.DatabaseQueryRequest{}
	if filter != nil {
		req.Filter = filter.Filter
		req.Sorts = filter.Sorts
		req.PageSize = filter.PageSize
	}

	// Prefetch state: holds the result of a prefetched next page.
	type prefetchResult struct {
		resp *notionapi.DatabaseQueryResponse
		err  error
	}
	var prefetchCh <-chan prefetchResult

	for {
		var resp *notionapi.DatabaseQueryResponse
		var err error

		if prefetchCh != nil {
			result := <-prefetchCh
			resp, err = result.resp, result.err
		} else {
			resp, err = c.QueryDatabase(ctx, dbID, req)
		}

		if err != nil {
			return nil, eris.Wrap(err, "reviewboard: query all page")
		}

		all = append(all, resp.Results...)

		if !resp.HasMore {
			break
		}

		nextReq := &notionapi.DatabaseQueryRequest{
			StartCursor: resp.NextCursor,
		}
		if filter != nil {
			nextReq.Filter = filter.Filter
			nextReq.Sorts = filter.Sorts
			nextReq.PageSize = filter.PageSize
		}

		ch := make(chan prefetchResult, 1)
		prefetchCh = ch
		go func() {
			r, e := c.QueryDatabase(ctx, dbID, nextReq)
			ch <- prefetchResult{resp: r, err: e}
		}()
	}

	return all, nil
}

// QueryQueuedLoans fetches every queue row with Status = "Queued" and
// maps it to a QueuedLoan. Rows without a loan number are skipped.
func QueryQueuedLoans(ctx context.Context, c Client, dbID string) ([]QueuedLoan, error) {
	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Status",
			Status: &notionapi.StatusFilterCondition{
				Equals: "Queued",
			},
		},
	}
	pages, err := QueryAll(ctx, c, dbID, filter)
	if err != nil {
		return nil, eris.Wrap(err, "reviewboard: query queued loans")
	}

	loans := make([]QueuedLoan, 0, len(pages))
	for _, page := range pages {
		loan := PageToQueuedLoan(page)
		if loan.LoanNumber == "" {
			zap.L().Warn("reviewboard: queue row has no loan number",
				zap.String("page_id", loan.PageID))
			continue
		}
		loans = append(loans, loan)
	}
	return loans, nil
}

// PageToQueuedLoan extracts a QueuedLoan from a queue database page.
// An unrecognized or absent Mode runs as demo: a board typo must never
// cause production writes.
func PageToQueuedLoan(page notionapi.Page) QueuedLoan {
	loan := QueuedLoan{
		PageID: string(page.ID),
		Mode:   model.ModeDemo,
	}

	if prop, ok := page.Properties["Loan"]; ok {
		if tp, ok := prop.(*notionapi.TitleProperty); ok {
			for _, rt := range tp.Title {
				loan.LoanNumber += rt.PlainText
			}
		}
	}
	loan.LoanNumber = strings.TrimSpace(loan.LoanNumber)

	if prop, ok := page.Properties["Mode"]; ok {
		if sp, ok := prop.(*notionapi.SelectProperty); ok {
			if strings.EqualFold(sp.Select.Name, string(model.ModeProduction)) {
				loan.Mode = model.ModeProduction
			}
		}
	}

	return loan
}

// UpdateQueueStatus moves a queue row to the given status and records
// the run's discrepancy count and completion time.
func UpdateQueueStatus(ctx context.Context, c Client, pageID, status string, discrepancies int) error {
	now := notionapi.Date(time.Now())
	_, err := c.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{
			"Status": notionapi.StatusProperty{
				Status: notionapi.Status{
					Name: status,
				},
			},
			"Discrepancies": notionapi.NumberProperty{
				Number: float64(discrepancies),
			},
			"Last Run": notionapi.DateProperty{
				Date: &notionapi.DateObject{
					Start: &now,
				},
			},
		},
	})
	if err != nil {
		return eris.Wrap(err, fmt.Sprintf("reviewboard: update queue row %s", pageID))
	}
	return nil
}

// PostException creates an exception page for a blocked run.
func PostException(ctx context.Context, c Client, dbID string, exc Exception) (string, error) {
	now := notionapi.Date(time.Now())
	page, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: notionapi.Properties{
			"Loan": notionapi.TitleProperty{
				Type: notionapi.PropertyTypeTitle,
				Title: []notionapi.RichText{
					{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: exc.LoanNumber}},
				},
			},
			"Run ID": notionapi.RichTextProperty{
				Type: notionapi.PropertyTypeRichText,
				RichText: []notionapi.RichText{
					{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: exc.RunID}},
				},
			},
			"Reasons": notionapi.RichTextProperty{
				Type: notionapi.PropertyTypeRichText,
				RichText: []notionapi.RichText{
					{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: strings.Join(exc.Reasons, "; ")}},
				},
			},
			"Cure Amount": notionapi.NumberProperty{
				Number: exc.CureAmount.InexactFloat64(),
			},
			"Status": notionapi.StatusProperty{
				Status: notionapi.Status{
					Name: "Open",
				},
			},
			"Raised": notionapi.DateProperty{
				Date: &notionapi.DateObject{
					Start: &now,
				},
			},
		},
	})
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("reviewboard: post exception for %s", exc.LoanNumber))
	}

	zap.L().Info("reviewboard: exception posted",
		zap.String("loan", exc.LoanNumber),
		zap.String("page_id", string(page.ID)),
	)
	return string(page.ID), nil
}
