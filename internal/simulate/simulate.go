// Package simulate projects corrections onto a loan-system snapshot
// without touching the system of record. Demo-mode runs feed the
// projection to the next stage in place of a fresh system read.
package simulate

import "github.com/meridian-lending/recon-cli/internal/model"

// Apply returns a new snapshot with each correction's proposed value in
// place. The input snapshot is never mutated. A correction for a field
// absent from the snapshot is appended in correction order, mirroring
// the field a production write would have populated.
func Apply(snapshot []model.SystemValue, corrections []model.Correction) []model.SystemValue {
	out := make([]model.SystemValue, len(snapshot), len(snapshot)+len(corrections))
	copy(out, snapshot)

	byID := make(map[string]int, len(out))
	for i, sv := range out {
		byID[sv.FieldID] = i
	}
	for _, c := range corrections {
		if i, ok := byID[c.FieldID]; ok {
			out[i].Raw = c.Proposed
			continue
		}
		byID[c.FieldID] = len(out)
		out = append(out, model.SystemValue{FieldID: c.FieldID, Raw: c.Proposed})
	}
	return out
}
