package model

import "github.com/shopspring/decimal"

// ToleranceClass is the regulatory bucket governing how much a closing
// cost may increase between the baseline disclosure and the current
// schedule before a cure is owed.
type ToleranceClass string

const (
	ToleranceZero        ToleranceClass = "zero"
	ToleranceAggregate10 ToleranceClass = "aggregate_10pct"
	ToleranceNone        ToleranceClass = "none"
)

// FeeLine is a single line of one fee schedule (baseline or current).
type FeeLine struct {
	Name    string          `json:"name"`
	Section string          `json:"section,omitempty"`
	Amount  decimal.Decimal `json:"amount"`
	Class   ToleranceClass  `json:"tolerance_class"`
}

// FeeLineItem is a baseline/current pair joined by fee name. A side
// missing from its schedule is carried as zero, by policy, so the item
// still shows up in the breakdown.
type FeeLineItem struct {
	Name      string          `json:"name"`
	Class     ToleranceClass  `json:"tolerance_class"`
	Baseline  decimal.Decimal `json:"baseline_amount"`
	Current   decimal.Decimal `json:"current_amount"`
	Violation decimal.Decimal `json:"violation_amount"`
}

// ClassBreakdown aggregates a tolerance class across the joined schedule.
type ClassBreakdown struct {
	Class         ToleranceClass  `json:"class"`
	BaselineTotal decimal.Decimal `json:"baseline_total"`
	CurrentTotal  decimal.Decimal `json:"current_total"`
	Threshold     decimal.Decimal `json:"threshold"`
	Violation     decimal.Decimal `json:"violation"`
	Items         []FeeLineItem   `json:"items"`
}

// CureResult is the tolerance engine's verdict: how much must be cured
// and which items are in violation. How a cure is satisfied (lender
// credit vs. principal reduction) is downstream policy, not computed here.
type CureResult struct {
	TotalCureNeeded decimal.Decimal  `json:"total_cure_needed"`
	PerClass        []ClassBreakdown `json:"per_class_breakdown"`
	Violations      []FeeLineItem    `json:"violations"`
}

// HasViolations reports whether any cure is owed.
func (c *CureResult) HasViolations() bool {
	return len(c.Violations) > 0 && c.TotalCureNeeded.IsPositive()
}
