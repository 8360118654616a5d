// Package advisor asks a language model to arbitrate ambiguous field
// discrepancies. Suggestions are advisory only: every response is
// validated against the candidate set, and a suggestion that names a
// value outside it is rejected.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-lending/recon-cli/internal/model"
)

const defaultModel = "claude-sonnet-4-5-20250929"

const systemPrompt = `You review loan data discrepancies for a mortgage lender. Given several candidate values for one loan field, choose the candidate most likely to be correct. Respond with a valid JSON object: {"chosen": "<candidate value copied verbatim>", "rationale": "<one sentence>", "confidence": <0.0-1.0>}. The chosen value must be copied exactly from the candidate list; never invent a new value.`

const userPromptFmt = `Field: %s%s

Candidates:
%s
Which candidate value is correct?`

// Client defines the advisor operations used during reconciliation.
type Client interface {
	SuggestCorrection(ctx context.Context, req SuggestionRequest) (*Suggestion, error)
}

// SuggestionRequest carries one ambiguous field and its candidates.
type SuggestionRequest struct {
	FieldID     string
	DisplayName string
	Candidates  []model.Candidate
}

// Suggestion is a validated advisor verdict. Chosen is always the raw
// value of one of the request's candidates.
type Suggestion struct {
	Chosen     string
	Rationale  string
	Confidence float64
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client    sdk.Client
	model     string
	maxTokens int64
}

// NewClient creates an advisor backed by the Anthropic API.
func NewClient(apiKey, modelName string, maxTokens int64) Client {
	if modelName == "" {
		modelName = defaultModel
	}
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &sdkClient{
		client:    sdk.NewClient(option.WithAPIKey(apiKey)),
		model:     modelName,
		maxTokens: maxTokens,
	}
}

func (c *sdkClient) SuggestCorrection(ctx context.Context, req SuggestionRequest) (*Suggestion, error) {
	if len(req.Candidates) < 2 {
		return nil, eris.New("advisor: need at least two candidates")
	}

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(buildUserPrompt(req))),
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("advisor: suggest correction for %s", req.FieldID))
	}

	suggestion, err := parseSuggestion(extractText(msg), req.Candidates)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("advisor: suggestion accepted",
		zap.String("field_id", req.FieldID),
		zap.String("chosen", suggestion.Chosen),
		zap.Float64("confidence", suggestion.Confidence),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)
	return suggestion, nil
}

func buildUserPrompt(req SuggestionRequest) string {
	display := ""
	if req.DisplayName != "" {
		display = fmt.Sprintf(" (%s)", req.DisplayName)
	}

	var sb strings.Builder
	for i, c := range req.Candidates {
		fmt.Fprintf(&sb, "%d. %q from %s (normalized: %q)\n", i+1, c.Raw, c.Origin, c.Normalized)
	}

	return fmt.Sprintf(userPromptFmt, req.FieldID, display, sb.String())
}

// parseSuggestion decodes the model's JSON verdict and resolves it to a
// candidate. The chosen value may match a candidate's raw or normalized
// form; anything else is rejected.
func parseSuggestion(text string, candidates []model.Candidate) (*Suggestion, error) {
	var result struct {
		Chosen     string  `json:"chosen"`
		Rationale  string  `json:"rationale"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(text)), &result); err != nil {
		return nil, eris.Wrap(err, "advisor: parse suggestion")
	}

	chosen := strings.TrimSpace(result.Chosen)
	for _, c := range candidates {
		if chosen == strings.TrimSpace(c.Raw) || chosen == strings.TrimSpace(c.Normalized) {
			return &Suggestion{
				Chosen:     c.Raw,
				Rationale:  result.Rationale,
				Confidence: result.Confidence,
			}, nil
		}
	}
	return nil, eris.Errorf("advisor: suggestion %q not among candidates", result.Chosen)
}

// extractText concatenates all text content blocks from a message.
func extractText(msg *sdk.Message) string {
	if msg == nil {
		return ""
	}
	var parts []string
	for _, block := range msg.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
