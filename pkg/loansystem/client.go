// Package loansystem provides access to the Salesforce-hosted loan
// origination platform: mapped field reads and writes, fee schedule
// queries, document listing, and the disclosure-order action.
package loansystem

import (
	"context"
	"fmt"
	"io"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/meridian-lending/recon-cli/internal/resilience"
)

// Client defines the raw loan-system API operations the service uses.
type Client interface {
	Query(ctx context.Context, soql string, out any) error
	UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error
	InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error)
	GetBody(ctx context.Context, uri string) ([]byte, error)
}

// ClientOption configures the client.
type ClientOption func(*sfClient)

// WithRateLimit sets a per-second rate limit for API calls. A burst
// equal to the integer portion of rps is allowed unless overridden.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *sfClient) {
		if rps > 0 {
			if burst <= 0 {
				burst = max(int(rps), 1)
			}
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// sfClient wraps the go-salesforce/v3 Salesforce struct.
//
// NOTE: The underlying go-salesforce/v3 library does not accept
// context.Context, so all methods discard the ctx parameter for the
// platform call itself. However, the ctx is used for rate limiter
// waiting, so callers can still cancel that wait.
type sfClient struct {
	sf      *salesforce.Salesforce
	limiter *rate.Limiter
}

// NewClient creates a Client wrapping the given go-salesforce instance.
func NewClient(sf *salesforce.Salesforce, opts ...ClientOption) Client {
	c := &sfClient{sf: sf}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wait blocks until the rate limiter allows one event, or ctx is cancelled.
func (c *sfClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *sfClient) Query(ctx context.Context, soql string, out any) error {
	if err := c.wait(ctx); err != nil {
		return eris.Wrap(err, "loansystem: rate limit")
	}
	if err := c.sf.Query(soql, out); err != nil {
		return eris.Wrap(err, "loansystem: query")
	}
	return nil
}

func (c *sfClient) UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error {
	if err := c.wait(ctx); err != nil {
		return eris.Wrap(err, "loansystem: rate limit")
	}
	fields["Id"] = id
	if err := c.sf.UpdateOne(sObjectName, fields); err != nil {
		return eris.Wrap(err, fmt.Sprintf("loansystem: update %s %s", sObjectName, id))
	}
	return nil
}

func (c *sfClient) InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", eris.Wrap(err, "loansystem: rate limit")
	}
	result, err := c.sf.InsertOne(sObjectName, record)
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("loansystem: insert %s", sObjectName))
	}
	if !result.Success {
		return "", eris.New(fmt.Sprintf("loansystem: insert %s failed: %v", sObjectName, result.Errors))
	}
	return result.Id, nil
}

// GetBody performs a raw GET against the REST API and returns the
// response body. Used for binary resources such as document content.
func (c *sfClient) GetBody(ctx context.Context, uri string) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "loansystem: rate limit")
	}
	resp, err := c.sf.DoRequest("GET", uri, nil)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("loansystem: GET %s", uri))
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.Transientf(resp.StatusCode, "loansystem: GET %s: status %d", uri, resp.StatusCode)
		}
		return nil, eris.Errorf("loansystem: GET %s: status %d", uri, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("loansystem: read %s", uri))
	}
	return data, nil
}
