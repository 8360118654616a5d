// Package reconcile classifies mapped loan fields by comparing values
// extracted from source documents against the loan system of record.
// Classification only; nothing here writes back to the loan system.
package reconcile

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/meridian-lending/recon-cli/internal/model"
	"github.com/meridian-lending/recon-cli/internal/normalize"
)

// sysCandidate is one loan-system value a mapping may match against,
// either its primary field or an alias.
type sysCandidate struct {
	fieldID string
	raw     string
	norm    normalize.Result
}

// Reconcile classifies every mapping in the registry against the
// extracted and system values. Output order is mapping declaration
// order, so identical inputs always produce an identical report. An
// empty or whitespace-only value counts as absent on either side.
func Reconcile(reg *model.MappingRegistry, extracted []model.ExtractedValue, system []model.SystemValue) []model.Discrepancy {
	sysByID := make(map[string]string, len(system))
	for _, sv := range system {
		if strings.TrimSpace(sv.Raw) != "" {
			sysByID[sv.FieldID] = sv.Raw
		}
	}
	extByField := make(map[string][]model.ExtractedValue, len(extracted))
	for _, ev := range extracted {
		if strings.TrimSpace(ev.Raw) != "" {
			extByField[ev.FieldID] = append(extByField[ev.FieldID], ev)
		}
	}

	out := make([]model.Discrepancy, 0, len(reg.Mappings))
	for i := range reg.Mappings {
		m := &reg.Mappings[i]
		d := classify(m, extByField[m.ID], sysByID)
		if d.Outcome != model.OutcomeMatch {
			zap.L().Debug("reconcile: field flagged",
				zap.String("field_id", d.FieldID),
				zap.String("outcome", string(d.Outcome)))
		}
		out = append(out, d)
	}
	return out
}

func classify(m *model.FieldMapping, ext []model.ExtractedValue, sysByID map[string]string) model.Discrepancy {
	d := model.Discrepancy{
		FieldID:     m.ID,
		DisplayName: m.DisplayName,
		Section:     m.Section,
	}

	var sys []sysCandidate
	for _, id := range m.CandidateIDs() {
		raw, ok := sysByID[id]
		if !ok {
			continue
		}
		sys = append(sys, sysCandidate{fieldID: id, raw: raw, norm: normalize.Field(m.Kind, raw)})
	}

	switch {
	case len(ext) == 0 && len(sys) == 0:
		d.Outcome = model.OutcomeMissingBoth
		return d
	case len(ext) == 0:
		d.Outcome = model.OutcomeMissingExtracted
		d.System = sys[0].raw
		d.SystemNorm = sys[0].norm.Value
		return d
	case len(sys) == 0:
		n := normalize.Field(m.Kind, ext[0].Raw)
		d.Outcome = model.OutcomeMissingSystem
		d.Extracted = ext[0].Raw
		d.ExtractedNorm = n.Value
		d.SourceDoc = ext[0].SourceDoc
		return d
	}

	norms := make([]normalize.Result, len(ext))
	for i, ev := range ext {
		norms[i] = normalize.Field(m.Kind, ev.Raw)
	}

	// Documents must agree among themselves before any of them can
	// count as the document-side truth.
	agreed := true
	for i := 1; i < len(norms); i++ {
		if !strings.EqualFold(norms[i].Value, norms[0].Value) {
			agreed = false
			break
		}
	}

	d.Extracted = ext[0].Raw
	d.ExtractedNorm = norms[0].Value
	d.SourceDoc = ext[0].SourceDoc
	d.System = sys[0].raw
	d.SystemNorm = sys[0].norm.Value

	if agreed {
		for _, sc := range sys {
			if strings.EqualFold(norms[0].Value, sc.norm.Value) {
				d.Outcome = model.OutcomeMatch
				d.MatchedFieldID = sc.fieldID
				d.System = sc.raw
				d.SystemNorm = sc.norm.Value
				return d
			}
		}
	}

	d.Outcome = model.OutcomeMismatch
	d.Candidates = candidates(ext, norms, sys)
	return d
}

// candidates lists every value in play, document side first in input
// order, then system side in candidate-id order.
func candidates(ext []model.ExtractedValue, norms []normalize.Result, sys []sysCandidate) []model.Candidate {
	out := make([]model.Candidate, 0, len(ext)+len(sys))
	for i, ev := range ext {
		out = append(out, model.Candidate{
			Origin:     model.DocumentOrigin(ev.SourceDoc),
			Raw:        ev.Raw,
			Normalized: norms[i].Value,
			Valid:      norms[i].Valid,
		})
	}
	for _, sc := range sys {
		out = append(out, model.Candidate{
			Origin:     model.SystemOrigin(sc.fieldID),
			Raw:        sc.raw,
			Normalized: sc.norm.Value,
			Valid:      sc.norm.Valid,
		})
	}
	return out
}

// Proposals derives corrections from a reconciliation pass: every
// unambiguous mismatch and every field the system is missing gets the
// document value proposed. Ambiguous mismatches are left for the
// correction advisor or a human reviewer.
func Proposals(discs []model.Discrepancy) []model.Correction {
	var out []model.Correction
	for i := range discs {
		d := &discs[i]
		var rationale string
		switch d.Outcome {
		case model.OutcomeMismatch:
			if d.Ambiguous() {
				continue
			}
			rationale = fmt.Sprintf("document %s shows %q, system has %q", d.SourceDoc, d.Extracted, d.System)
		case model.OutcomeMissingSystem:
			rationale = fmt.Sprintf("document %s shows %q, system field empty", d.SourceDoc, d.Extracted)
		default:
			continue
		}
		out = append(out, model.Correction{
			FieldID:   d.FieldID,
			Proposed:  d.ExtractedNorm,
			Rationale: rationale,
			Source:    "reconciler",
		})
	}
	return out
}

// Mismatches filters a reconciliation pass down to the mismatched
// fields. The verify stage blocks when this is non-empty.
func Mismatches(discs []model.Discrepancy) []model.Discrepancy {
	var out []model.Discrepancy
	for _, d := range discs {
		if d.Outcome == model.OutcomeMismatch {
			out = append(out, d)
		}
	}
	return out
}

// CountByOutcome tallies a reconciliation pass for stage metadata.
func CountByOutcome(discs []model.Discrepancy) map[string]int {
	out := make(map[string]int, 5)
	for _, d := range discs {
		out[string(d.Outcome)]++
	}
	return out
}
