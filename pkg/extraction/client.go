// Package extraction calls the document extraction service, which pulls
// typed field values out of loan document PDFs and images.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/meridian-lending/recon-cli/internal/model"
)

// Client defines the extraction service operations.
type Client interface {
	// ExtractFields sends the documents and returns one value per field
	// per document that carries it. Empty values are dropped; absence
	// and empty read the same downstream.
	ExtractFields(ctx context.Context, docs []model.Document, fieldIDs []string) ([]model.ExtractedValue, error)
}

// extractRequest is the body for POST /extract.
type extractRequest struct {
	Fields    []string          `json:"fields"`
	Documents []requestDocument `json:"documents"`
}

type requestDocument struct {
	Name    string `json:"name"`
	Content []byte `json:"content"` // base64 on the wire
}

// extractResponse is the response from POST /extract.
type extractResponse struct {
	Success bool            `json:"success"`
	Values  []responseValue `json:"values"`
}

type responseValue struct {
	FieldID   string `json:"field_id"`
	Value     string `json:"value"`
	SourceDoc string `json:"source_document"`
}

// APIError is returned when the service responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("extraction: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a new extraction service client. The service is an
// internal deployment, so the base URL is required rather than defaulted.
func NewClient(baseURL, apiKey string, opts ...Option) Client {
	c := &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) ExtractFields(ctx context.Context, docs []model.Document, fieldIDs []string) ([]model.ExtractedValue, error) {
	if len(docs) == 0 || len(fieldIDs) == 0 {
		return nil, nil
	}

	req := extractRequest{Fields: fieldIDs}
	for _, d := range docs {
		req.Documents = append(req.Documents, requestDocument{Name: d.Name, Content: d.Content})
	}

	var resp extractResponse
	if err := c.post(ctx, "/extract", req, &resp); err != nil {
		return nil, eris.Wrap(err, "extraction: extract")
	}
	if !resp.Success {
		return nil, eris.New("extraction: service reported failure")
	}

	values := make([]model.ExtractedValue, 0, len(resp.Values))
	for _, v := range resp.Values {
		if v.Value == "" {
			continue
		}
		values = append(values, model.ExtractedValue{
			FieldID:   v.FieldID,
			Raw:       v.Value,
			SourceDoc: v.SourceDoc,
		})
	}
	return values, nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}

	return nil
}
