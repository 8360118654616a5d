package model

import "strings"

// ExtractedValue is one field value pulled out of one source document.
// Extraction may produce several values for the same field id when the
// loan has multiple documents carrying it.
type ExtractedValue struct {
	FieldID   string `json:"field_id"`
	Raw       string `json:"raw_value"`
	SourceDoc string `json:"source_document_ref"`
}

// SystemValue is a loan-system field value read at run start. Snapshots
// are never mutated in place; a re-read produces a new snapshot.
type SystemValue struct {
	FieldID string `json:"field_id"`
	Raw     string `json:"raw_value"`
}

// Outcome classifies one field comparison.
type Outcome string

const (
	OutcomeMatch            Outcome = "match"
	OutcomeMismatch         Outcome = "mismatch"
	OutcomeMissingBoth      Outcome = "missing_both"
	OutcomeMissingExtracted Outcome = "missing_extracted"
	OutcomeMissingSystem    Outcome = "missing_system"
)

// Candidate is one value surfaced for human review when a comparison is
// ambiguous or mismatched. Origin is "document:<ref>" for extracted
// values and "system:<field_id>" for loan-system values.
type Candidate struct {
	Origin     string `json:"origin"`
	Raw        string `json:"raw_value"`
	Normalized string `json:"normalized"`
	Valid      bool   `json:"valid"`
}

// Discrepancy is the derived comparison result for one field mapping.
// Recomputed every run, never persisted as a source of truth.
type Discrepancy struct {
	FieldID     string  `json:"field_id"`
	DisplayName string  `json:"display_name,omitempty"`
	Section     string  `json:"section,omitempty"`
	Outcome     Outcome `json:"outcome"`

	Extracted      string `json:"extracted_value,omitempty"`
	System         string `json:"system_value,omitempty"`
	ExtractedNorm  string `json:"extracted_normalized,omitempty"`
	SystemNorm     string `json:"system_normalized,omitempty"`
	SourceDoc      string `json:"source_document_ref,omitempty"`
	MatchedFieldID string `json:"matched_field_id,omitempty"`

	// Candidates carries every value in play when the outcome is a
	// mismatch or an alias tie, so a reviewer sees all sides.
	Candidates []Candidate `json:"candidates,omitempty"`
}

// DocumentOrigin labels a candidate sourced from a loan document.
func DocumentOrigin(ref string) string { return "document:" + ref }

// SystemOrigin labels a candidate sourced from a loan-system field.
func SystemOrigin(fieldID string) string { return "system:" + fieldID }

// FromDocument reports whether the candidate came out of a document.
func (c Candidate) FromDocument() bool { return strings.HasPrefix(c.Origin, "document:") }

// Ambiguous reports whether the source documents disagree among
// themselves: two document-side candidates with different normalized
// values. Ambiguous discrepancies are never auto-corrected; they go to
// the correction advisor or a reviewer.
func (d *Discrepancy) Ambiguous() bool {
	var first string
	seen := false
	for _, c := range d.Candidates {
		if !c.FromDocument() {
			continue
		}
		if !seen {
			first, seen = c.Normalized, true
			continue
		}
		if !strings.EqualFold(c.Normalized, first) {
			return true
		}
	}
	return false
}

// Correction proposes a loan-system field update. Corrections are owned
// by the stage that produced them until the orchestrator folds them into
// the run report.
type Correction struct {
	FieldID   string `json:"field_id"`
	Proposed  string `json:"proposed_value"`
	Rationale string `json:"rationale"`
	Source    string `json:"source,omitempty"`
}
