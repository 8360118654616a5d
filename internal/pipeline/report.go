package pipeline

import (
	"fmt"
	"strings"

	"github.com/meridian-lending/recon-cli/internal/model"
)

// FormatReport renders a run report as human-readable markdown. The
// output is a pure function of the report: rendering a stored report
// later produces the same text the run produced.
func FormatReport(r *model.RunReport) string {
	var b strings.Builder

	name := r.Loan.Number
	if name == "" {
		name = r.Loan.ID
	}
	fmt.Fprintf(&b, "# Reconciliation Report: %s\n", name)
	fmt.Fprintf(&b, "Mode: %s\n", r.Mode)
	fmt.Fprintf(&b, "Status: %s\n\n", r.Status)

	discs := r.FieldComparison()
	corrections := r.Corrections()
	cure := r.Cure()

	// Summary.
	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- Stages run: %d\n", len(r.Stages))
	fmt.Fprintf(&b, "- Fields compared: %d\n", len(discs))
	fmt.Fprintf(&b, "- Fields flagged: %d\n", r.FlaggedFields())
	fmt.Fprintf(&b, "- Corrections proposed: %d\n", len(corrections))
	if cure != nil {
		fmt.Fprintf(&b, "- Cure owed: $%s\n", cure.TotalCureNeeded.StringFixed(2))
	}
	b.WriteString("\n")

	if len(r.BlockingReasons) > 0 {
		b.WriteString("## Blocking Reasons\n")
		for _, reason := range r.BlockingReasons {
			fmt.Fprintf(&b, "- %s\n", reason)
		}
		b.WriteString("\n")
	}

	// Stage results.
	b.WriteString("## Stages\n")
	for _, s := range r.Stages {
		fmt.Fprintf(&b, "- %s: %s (%dms)\n", s.Stage, s.Status, s.ElapsedMS)
		if s.Attempts > 1 {
			fmt.Fprintf(&b, "  Attempts: %d\n", s.Attempts)
		}
		if s.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", s.Error)
		}
	}
	b.WriteString("\n")

	// Field comparison, latest pass.
	b.WriteString("## Field Comparison\n")
	if len(discs) == 0 {
		b.WriteString("No fields compared.\n\n")
	} else if r.FlaggedFields() == 0 {
		fmt.Fprintf(&b, "All %d mapped fields match.\n\n", len(discs))
	} else {
		for _, d := range discs {
			if d.Outcome == model.OutcomeMatch {
				continue
			}
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", displayName(&d), d.FieldID, d.Outcome)
			if d.Extracted != "" {
				fmt.Fprintf(&b, "  Document: %q", d.Extracted)
				if d.SourceDoc != "" {
					fmt.Fprintf(&b, " [%s]", d.SourceDoc)
				}
				b.WriteString("\n")
			}
			if d.System != "" {
				fmt.Fprintf(&b, "  System: %q\n", d.System)
			}
		}
		b.WriteString("\n")
	}

	// Corrections.
	if len(corrections) > 0 {
		b.WriteString("## Corrections\n")
		for _, c := range corrections {
			fmt.Fprintf(&b, "- **%s**: %q (%s)\n", c.FieldID, c.Proposed, c.Source)
			if c.Rationale != "" {
				fmt.Fprintf(&b, "  %s\n", c.Rationale)
			}
		}
		b.WriteString("\n")
	}

	// Fee tolerance.
	if cure != nil {
		b.WriteString("## Fee Tolerance\n")
		for _, cls := range cure.PerClass {
			fmt.Fprintf(&b, "- %s: baseline $%s, current $%s, threshold $%s, violation $%s\n",
				cls.Class,
				cls.BaselineTotal.StringFixed(2),
				cls.CurrentTotal.StringFixed(2),
				cls.Threshold.StringFixed(2),
				cls.Violation.StringFixed(2))
		}
		if len(cure.Violations) > 0 {
			b.WriteString("\nViolations:\n")
			for _, v := range cure.Violations {
				fmt.Fprintf(&b, "- %s: $%s over (baseline $%s, current $%s)\n",
					v.Name, v.Violation.StringFixed(2),
					v.Baseline.StringFixed(2), v.Current.StringFixed(2))
			}
		}
		fmt.Fprintf(&b, "\nCure owed: $%s\n", cure.TotalCureNeeded.StringFixed(2))
	}

	return b.String()
}

func displayName(d *model.Discrepancy) string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.FieldID
}
