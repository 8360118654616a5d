package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/meridian-lending/recon-cli/internal/model"
)

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "6b3f0a1c", truncateID("6b3f0a1c-9d2e-4f5a-8b7c-1d2e3f4a5b6c"))
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "", truncateID(""))
}

func TestFormatRunsList(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "6b3f0a1c-9d2e-4f5a-8b7c-1d2e3f4a5b6c",
			Loan:      model.Loan{ID: "a0B000000001", Number: "ML-2024-0042"},
			Mode:      model.ModeDemo,
			Status:    model.RunStatusCompleted,
			Report:    &model.RunReport{},
			CreatedAt: created,
			UpdatedAt: created.Add(42 * time.Second),
		},
		{
			ID:        "9c8d7e6f-1a2b-3c4d-5e6f-7a8b9c0d1e2f",
			Loan:      model.Loan{ID: "a0B000000002"},
			Mode:      model.ModeProduction,
			Status:    model.RunStatusFailed,
			CreatedAt: created,
			UpdatedAt: created,
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "LOAN")
	assert.Contains(t, out, "6b3f0a1c")
	assert.NotContains(t, out, "6b3f0a1c-9d2e") // IDs are truncated
	assert.Contains(t, out, "ML-2024-0042")
	assert.Contains(t, out, "demo")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "2026-03-14 09:30")
	assert.Contains(t, out, "42s")

	// Loans without a number fall back to the record id.
	assert.Contains(t, out, "a0B000000002")
	assert.Contains(t, out, "failed")
}

func TestFormatRunsList_NoReportShowsDash(t *testing.T) {
	runs := []model.Run{{
		ID:     "run-1",
		Loan:   model.Loan{Number: "ML-2024-0001"},
		Mode:   model.ModeDemo,
		Status: model.RunStatusRunning,
	}}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	assert.Contains(t, buf.String(), "-")
}
