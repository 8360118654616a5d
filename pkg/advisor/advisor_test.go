package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-lending/recon-cli/internal/model"
)

func testCandidates() []model.Candidate {
	return []model.Candidate{
		{Origin: "document:Loan Estimate.pdf", Raw: "(555) 123-4567", Normalized: "5551234567", Valid: true},
		{Origin: "system:Borrower_Phone__c", Raw: "555.123.9999", Normalized: "5551239999", Valid: true},
	}
}

func TestParseSuggestion(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantChosen string
		wantErr    string
	}{
		{
			name:       "raw match",
			text:       `{"chosen": "(555) 123-4567", "rationale": "matches the signed estimate", "confidence": 0.9}`,
			wantChosen: "(555) 123-4567",
		},
		{
			name:       "normalized match resolves to raw",
			text:       `{"chosen": "5551239999", "rationale": "system value", "confidence": 0.6}`,
			wantChosen: "555.123.9999",
		},
		{
			name:       "fenced JSON",
			text:       "```json\n{\"chosen\": \"(555) 123-4567\", \"confidence\": 0.8}\n```",
			wantChosen: "(555) 123-4567",
		},
		{
			name:       "surrounding prose",
			text:       `Looking at the candidates: {"chosen": "(555) 123-4567", "confidence": 0.7} is my answer.`,
			wantChosen: "(555) 123-4567",
		},
		{
			name:    "invented value rejected",
			text:    `{"chosen": "555-000-0000", "confidence": 0.9}`,
			wantErr: "not among candidates",
		},
		{
			name:    "not JSON",
			text:    "I cannot decide.",
			wantErr: "parse suggestion",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := parseSuggestion(tt.text, testCandidates())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantChosen, s.Chosen)
		})
	}
}

func TestBuildUserPrompt(t *testing.T) {
	prompt := buildUserPrompt(SuggestionRequest{
		FieldID:     "Borrower_Phone__c",
		DisplayName: "Borrower Phone",
		Candidates:  testCandidates(),
	})

	assert.Contains(t, prompt, "Borrower_Phone__c (Borrower Phone)")
	assert.Contains(t, prompt, `1. "(555) 123-4567" from document:Loan Estimate.pdf`)
	assert.Contains(t, prompt, `2. "555.123.9999" from system:Borrower_Phone__c`)
	assert.Contains(t, prompt, `normalized: "5551234567"`)
}

func TestBuildUserPrompt_NoDisplayName(t *testing.T) {
	prompt := buildUserPrompt(SuggestionRequest{
		FieldID:    "Note_Date__c",
		Candidates: testCandidates(),
	})
	assert.Contains(t, prompt, "Field: Note_Date__c\n")
	assert.NotContains(t, prompt, "()")
}

// newTestClient creates an sdkClient pointing at a local test server.
func newTestClient(baseURL string) *sdkClient {
	return &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey("test-key"),
			option.WithBaseURL(baseURL),
		),
		model:     defaultModel,
		maxTokens: 512,
	}
}

func messageResponse(text string) map[string]any {
	return map[string]any{
		"id":   "msg_test_001",
		"type": "message",
		"role": "assistant",
		"content": []map[string]any{
			{"type": "text", "text": text},
		},
		"model":       defaultModel,
		"stop_reason": "end_turn",
		"usage": map[string]any{
			"input_tokens":  120,
			"output_tokens": 40,
		},
	}
}

func TestSuggestCorrection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, defaultModel, req["model"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(messageResponse(
			`{"chosen": "(555) 123-4567", "rationale": "matches the signed estimate", "confidence": 0.9}`,
		))
	}))
	defer ts.Close()

	client := newTestClient(ts.URL)
	s, err := client.SuggestCorrection(context.Background(), SuggestionRequest{
		FieldID:    "Borrower_Phone__c",
		Candidates: testCandidates(),
	})
	require.NoError(t, err)
	assert.Equal(t, "(555) 123-4567", s.Chosen)
	assert.Equal(t, "matches the signed estimate", s.Rationale)
	assert.InDelta(t, 0.9, s.Confidence, 0.001)
}

func TestSuggestCorrection_InventedValueRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(messageResponse(
			`{"chosen": "555-000-0000", "confidence": 0.95}`,
		))
	}))
	defer ts.Close()

	client := newTestClient(ts.URL)
	_, err := client.SuggestCorrection(context.Background(), SuggestionRequest{
		FieldID:    "Borrower_Phone__c",
		Candidates: testCandidates(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not among candidates")
}

func TestSuggestCorrection_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type": "error",
			"error": map[string]any{
				"type":    "api_error",
				"message": "Internal server error",
			},
		})
	}))
	defer ts.Close()

	client := newTestClient(ts.URL)
	_, err := client.SuggestCorrection(context.Background(), SuggestionRequest{
		FieldID:    "Borrower_Phone__c",
		Candidates: testCandidates(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "suggest correction for Borrower_Phone__c")
}

func TestSuggestCorrection_TooFewCandidates(t *testing.T) {
	client := newTestClient("http://unused.invalid")
	_, err := client.SuggestCorrection(context.Background(), SuggestionRequest{
		FieldID:    "Borrower_Phone__c",
		Candidates: testCandidates()[:1],
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least two candidates")
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("key", "", 0).(*sdkClient)
	assert.Equal(t, defaultModel, c.model)
	assert.Equal(t, int64(512), c.maxTokens)
}
