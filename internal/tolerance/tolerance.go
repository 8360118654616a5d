// Package tolerance evaluates fee schedules against regulatory cure
// rules. Zero-tolerance fees may not increase at all over the baseline
// disclosure; aggregate-class fees share a ten percent band over their
// combined baseline; no-tolerance fees may move freely.
//
// All arithmetic is exact decimal. Intermediate amounts keep full
// precision; only the final cure total is rounded, half up, to cents.
package tolerance

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/meridian-lending/recon-cli/internal/model"
)

// aggregateFactor is the 110% ceiling applied to an aggregate class's
// baseline total.
var aggregateFactor = decimal.New(110, -2)

// classOrder fixes breakdown ordering so reports are deterministic.
var classOrder = []model.ToleranceClass{
	model.ToleranceZero,
	model.ToleranceAggregate10,
	model.ToleranceNone,
}

// Engine maps fee-schedule sections onto tolerance classes and
// evaluates baseline/current schedule pairs.
type Engine struct {
	sections map[string]model.ToleranceClass
}

// New builds an engine over the default section table (A: zero,
// B: aggregate ten percent, C: none), overlaid with any registry
// overrides. Sections the table does not know fall into the
// no-tolerance class, so the engine never claims a violation it cannot
// ground in a known rule.
func New(overrides map[string]model.ToleranceClass) *Engine {
	sections := map[string]model.ToleranceClass{
		"A": model.ToleranceZero,
		"B": model.ToleranceAggregate10,
		"C": model.ToleranceNone,
	}
	for k, v := range overrides {
		sections[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return &Engine{sections: sections}
}

// Classify resolves a fee-schedule section letter to its tolerance class.
func (e *Engine) Classify(section string) model.ToleranceClass {
	if c, ok := e.sections[strings.ToUpper(strings.TrimSpace(section))]; ok {
		return c
	}
	return model.ToleranceNone
}

// classOf prefers the class stamped on the line; fee lines without one
// are classified by section.
func (e *Engine) classOf(l model.FeeLine) model.ToleranceClass {
	if l.Class != "" {
		return l.Class
	}
	return e.Classify(l.Section)
}

// joined is one fee name's baseline/current pair before breakdown.
type joined struct {
	name     string
	class    model.ToleranceClass
	baseline decimal.Decimal
	current  decimal.Decimal
}

// Evaluate joins the baseline and current schedules by fee name
// (case-insensitive, whitespace-collapsed) and computes the cure owed.
// A fee missing from one side counts as zero there and still appears in
// the breakdown. Duplicate lines for the same fee are summed. When a
// fee moved sections between schedules, the current schedule's class
// governs.
func (e *Engine) Evaluate(baseline, current []model.FeeLine) model.CureResult {
	index := make(map[string]int)
	var items []*joined

	upsert := func(l model.FeeLine) *joined {
		key := foldName(l.Name)
		if i, ok := index[key]; ok {
			return items[i]
		}
		j := &joined{
			name:  strings.Join(strings.Fields(l.Name), " "),
			class: e.classOf(l),
		}
		index[key] = len(items)
		items = append(items, j)
		return j
	}

	for _, l := range baseline {
		j := upsert(l)
		j.baseline = j.baseline.Add(l.Amount)
	}
	for _, l := range current {
		j := upsert(l)
		j.current = j.current.Add(l.Amount)
		if c := e.classOf(l); c != j.class {
			j.class = c
		}
	}

	var result model.CureResult
	total := decimal.Zero
	for _, class := range classOrder {
		bd := model.ClassBreakdown{Class: class}
		for _, j := range items {
			if j.class != class {
				continue
			}
			item := model.FeeLineItem{
				Name:     j.name,
				Class:    class,
				Baseline: j.baseline,
				Current:  j.current,
			}
			if class == model.ToleranceZero {
				if inc := j.current.Sub(j.baseline); inc.IsPositive() {
					item.Violation = inc
				}
			}
			bd.Items = append(bd.Items, item)
			bd.BaselineTotal = bd.BaselineTotal.Add(j.baseline)
			bd.CurrentTotal = bd.CurrentTotal.Add(j.current)
		}
		if len(bd.Items) == 0 {
			continue
		}

		switch class {
		case model.ToleranceZero:
			// No increase allowed; the class owes the sum of item increases.
			bd.Threshold = bd.BaselineTotal
			for _, it := range bd.Items {
				bd.Violation = bd.Violation.Add(it.Violation)
				if it.Violation.IsPositive() {
					result.Violations = append(result.Violations, it)
				}
			}
		case model.ToleranceAggregate10:
			bd.Threshold = bd.BaselineTotal.Mul(aggregateFactor)
			if excess := bd.CurrentTotal.Sub(bd.Threshold); excess.IsPositive() {
				bd.Violation = excess
				// Individual deltas never drive the cure amount, but a
				// violating class names every increased item for review.
				for _, it := range bd.Items {
					if it.Current.GreaterThan(it.Baseline) {
						it.Violation = it.Current.Sub(it.Baseline)
						result.Violations = append(result.Violations, it)
					}
				}
			}
		}

		total = total.Add(bd.Violation)
		result.PerClass = append(result.PerClass, bd)
	}

	result.TotalCureNeeded = total.Round(2)
	return result
}

func foldName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
