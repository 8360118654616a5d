package tolerance

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-lending/recon-cli/internal/model"
)

func line(name, section, amount string) model.FeeLine {
	return model.FeeLine{Name: name, Section: section, Amount: decimal.RequireFromString(amount)}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestClassify(t *testing.T) {
	e := New(nil)
	assert.Equal(t, model.ToleranceZero, e.Classify("A"))
	assert.Equal(t, model.ToleranceAggregate10, e.Classify("B"))
	assert.Equal(t, model.ToleranceNone, e.Classify("C"))
	assert.Equal(t, model.ToleranceZero, e.Classify(" a "))
	assert.Equal(t, model.ToleranceNone, e.Classify("Z"))

	custom := New(map[string]model.ToleranceClass{"e": model.ToleranceZero})
	assert.Equal(t, model.ToleranceZero, custom.Classify("E"))
	assert.Equal(t, model.ToleranceZero, custom.Classify("A"))
}

func TestEvaluateZeroToleranceIncrease(t *testing.T) {
	e := New(nil)
	res := e.Evaluate(
		[]model.FeeLine{line("Origination Fee", "A", "500.00")},
		[]model.FeeLine{line("Origination Fee", "A", "600.00")},
	)

	assert.True(t, res.TotalCureNeeded.Equal(dec("100.00")))
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "Origination Fee", res.Violations[0].Name)
	assert.True(t, res.Violations[0].Violation.Equal(dec("100")))
	assert.True(t, res.HasViolations())
}

func TestEvaluateZeroToleranceDecreaseIsClean(t *testing.T) {
	e := New(nil)
	res := e.Evaluate(
		[]model.FeeLine{line("Origination Fee", "A", "500.00")},
		[]model.FeeLine{line("Origination Fee", "A", "450.00")},
	)
	assert.True(t, res.TotalCureNeeded.IsZero())
	assert.Empty(t, res.Violations)
	assert.False(t, res.HasViolations())
}

func TestEvaluateAggregateWithinBand(t *testing.T) {
	e := New(nil)
	res := e.Evaluate(
		[]model.FeeLine{
			line("Recording Fee", "B", "300.00"),
			line("Appraisal Fee", "B", "700.00"),
		},
		[]model.FeeLine{
			line("Recording Fee", "B", "320.00"),
			line("Appraisal Fee", "B", "755.00"),
		},
	)

	require.Len(t, res.PerClass, 1)
	bd := res.PerClass[0]
	assert.Equal(t, model.ToleranceAggregate10, bd.Class)
	assert.True(t, bd.BaselineTotal.Equal(dec("1000")))
	assert.True(t, bd.CurrentTotal.Equal(dec("1075")))
	assert.True(t, bd.Threshold.Equal(dec("1100")))
	assert.True(t, res.TotalCureNeeded.IsZero())
	assert.Empty(t, res.Violations)
}

func TestEvaluateAggregateExcess(t *testing.T) {
	e := New(nil)
	res := e.Evaluate(
		[]model.FeeLine{
			line("Recording Fee", "B", "300.00"),
			line("Appraisal Fee", "B", "700.00"),
		},
		[]model.FeeLine{
			line("Recording Fee", "B", "320.00"),
			line("Appraisal Fee", "B", "820.00"),
		},
	)

	assert.True(t, res.TotalCureNeeded.Equal(dec("40.00")), "got %s", res.TotalCureNeeded)
	require.Len(t, res.Violations, 2)
	assert.Equal(t, "Recording Fee", res.Violations[0].Name)
	assert.True(t, res.Violations[0].Violation.Equal(dec("20")))
	assert.Equal(t, "Appraisal Fee", res.Violations[1].Name)
	assert.True(t, res.Violations[1].Violation.Equal(dec("120")))
}

func TestEvaluateAggregateOnlyIncreasedItemsListed(t *testing.T) {
	e := New(nil)
	res := e.Evaluate(
		[]model.FeeLine{
			line("Recording Fee", "B", "500.00"),
			line("Survey Fee", "B", "500.00"),
		},
		[]model.FeeLine{
			line("Recording Fee", "B", "1200.00"),
			line("Survey Fee", "B", "400.00"),
		},
	)

	// 1600 against a 1100 threshold: 500 excess, but only the
	// increased fee is named.
	assert.True(t, res.TotalCureNeeded.Equal(dec("500.00")))
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "Recording Fee", res.Violations[0].Name)
}

func TestEvaluateNoToleranceNeverViolates(t *testing.T) {
	e := New(nil)
	res := e.Evaluate(
		[]model.FeeLine{line("Prepaid Interest", "C", "100.00")},
		[]model.FeeLine{line("Prepaid Interest", "C", "900.00")},
	)
	assert.True(t, res.TotalCureNeeded.IsZero())
	assert.Empty(t, res.Violations)
	require.Len(t, res.PerClass, 1)
	assert.True(t, res.PerClass[0].Violation.IsZero())
}

func TestEvaluateJoinsByFoldedName(t *testing.T) {
	e := New(nil)
	res := e.Evaluate(
		[]model.FeeLine{line("recording  fee", "B", "100.00")},
		[]model.FeeLine{line("Recording Fee", "B", "105.00")},
	)
	require.Len(t, res.PerClass, 1)
	require.Len(t, res.PerClass[0].Items, 1)
	item := res.PerClass[0].Items[0]
	assert.True(t, item.Baseline.Equal(dec("100")))
	assert.True(t, item.Current.Equal(dec("105")))
}

func TestEvaluateMissingSidesCountAsZero(t *testing.T) {
	e := New(nil)
	res := e.Evaluate(
		[]model.FeeLine{line("Courier Fee", "A", "25.00")},
		[]model.FeeLine{line("Wire Fee", "A", "30.00")},
	)

	require.Len(t, res.PerClass, 1)
	items := res.PerClass[0].Items
	require.Len(t, items, 2)
	assert.Equal(t, "Courier Fee", items[0].Name)
	assert.True(t, items[0].Current.IsZero())
	assert.True(t, items[0].Violation.IsZero())
	assert.Equal(t, "Wire Fee", items[1].Name)
	assert.True(t, items[1].Baseline.IsZero())

	// A fee appearing only on the current schedule is a pure increase.
	assert.True(t, res.TotalCureNeeded.Equal(dec("30.00")))
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "Wire Fee", res.Violations[0].Name)
}

func TestEvaluateDuplicateLinesSummed(t *testing.T) {
	e := New(nil)
	res := e.Evaluate(
		[]model.FeeLine{
			line("Endorsement", "A", "40.00"),
			line("Endorsement", "A", "10.00"),
		},
		[]model.FeeLine{line("Endorsement", "A", "50.00")},
	)
	assert.True(t, res.TotalCureNeeded.IsZero())
	require.Len(t, res.PerClass, 1)
	require.Len(t, res.PerClass[0].Items, 1)
	assert.True(t, res.PerClass[0].Items[0].Baseline.Equal(dec("50")))
}

func TestEvaluateCurrentClassWinsOnSectionMove(t *testing.T) {
	e := New(nil)
	res := e.Evaluate(
		[]model.FeeLine{line("Pest Inspection", "B", "100.00")},
		[]model.FeeLine{line("Pest Inspection", "C", "180.00")},
	)
	require.Len(t, res.PerClass, 1)
	assert.Equal(t, model.ToleranceNone, res.PerClass[0].Class)
	assert.True(t, res.TotalCureNeeded.IsZero())
}

func TestEvaluateMixedClassesSumCure(t *testing.T) {
	e := New(nil)
	res := e.Evaluate(
		[]model.FeeLine{
			line("Origination Fee", "A", "500.00"),
			line("Recording Fee", "B", "1000.00"),
			line("Prepaid Interest", "C", "50.00"),
		},
		[]model.FeeLine{
			line("Origination Fee", "A", "600.00"),
			line("Recording Fee", "B", "1140.00"),
			line("Prepaid Interest", "C", "500.00"),
		},
	)

	// 100 zero-tolerance cure plus 40 aggregate excess.
	assert.True(t, res.TotalCureNeeded.Equal(dec("140.00")))
	require.Len(t, res.PerClass, 3)
	assert.Equal(t, model.ToleranceZero, res.PerClass[0].Class)
	assert.Equal(t, model.ToleranceAggregate10, res.PerClass[1].Class)
	assert.Equal(t, model.ToleranceNone, res.PerClass[2].Class)
	require.Len(t, res.Violations, 2)
}

func TestEvaluateRoundsFinalTotalOnly(t *testing.T) {
	e := New(nil)
	res := e.Evaluate(
		[]model.FeeLine{line("Recording Fee", "B", "100.05")},
		[]model.FeeLine{line("Recording Fee", "B", "110.06")},
	)

	// Threshold 110.055 keeps its full precision in the breakdown; the
	// 0.005 excess rounds half-up only at the total.
	require.Len(t, res.PerClass, 1)
	assert.True(t, res.PerClass[0].Threshold.Equal(dec("110.055")))
	assert.True(t, res.PerClass[0].Violation.Equal(dec("0.005")))
	assert.True(t, res.TotalCureNeeded.Equal(dec("0.01")))
}

func TestEvaluateEmptySchedules(t *testing.T) {
	e := New(nil)
	res := e.Evaluate(nil, nil)
	assert.True(t, res.TotalCureNeeded.IsZero())
	assert.Empty(t, res.PerClass)
	assert.Empty(t, res.Violations)
	assert.False(t, res.HasViolations())
}
