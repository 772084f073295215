package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Delta is one session's contribution to a period aggregate.
type Delta struct {
	Miles           decimal.Decimal
	DurationSeconds decimal.Decimal
	Earnings        decimal.Decimal
	Expenses        decimal.Decimal
	Count           int64
}

// DeltaOf returns the contribution of a single session.
func DeltaOf(s SessionSnapshot) Delta {
	return Delta{
		Miles:           s.Miles,
		DurationSeconds: s.DurationSeconds,
		Earnings:        s.Earnings,
		Expenses:        s.Expenses,
		Count:           1,
	}
}

// PeriodAggregate holds rolling totals for one window. All totals stay >= 0.
type PeriodAggregate struct {
	TotalMiles           decimal.Decimal `json:"totalMiles"`
	TotalDurationSeconds decimal.Decimal `json:"totalDurationSeconds"`
	TotalEarnings        decimal.Decimal `json:"totalEarnings"`
	TotalExpenses        decimal.Decimal `json:"totalExpenses"`
	SessionCount         int64           `json:"sessionCount"`
	PeriodStart          time.Time       `json:"periodStart"`
	PeriodEnd            time.Time       `json:"periodEnd"`
}

// EmptyAggregate returns zeroed totals for the window [start, end).
func EmptyAggregate(start, end time.Time) PeriodAggregate {
	return PeriodAggregate{
		TotalMiles:           decimal.Zero,
		TotalDurationSeconds: decimal.Zero,
		TotalEarnings:        decimal.Zero,
		TotalExpenses:        decimal.Zero,
		PeriodStart:          start,
		PeriodEnd:            end,
	}
}

// Add returns agg with d added elementwise.
func Add(agg PeriodAggregate, d Delta) PeriodAggregate {
	agg.TotalMiles = agg.TotalMiles.Add(d.Miles)
	agg.TotalDurationSeconds = agg.TotalDurationSeconds.Add(d.DurationSeconds)
	agg.TotalEarnings = agg.TotalEarnings.Add(d.Earnings)
	agg.TotalExpenses = agg.TotalExpenses.Add(d.Expenses)
	agg.SessionCount += d.Count
	return agg
}

// Subtract returns agg with d removed elementwise, each field floored at zero.
// The floor is lossy on purpose: a delete whose create was never counted is
// absorbed here and left for reconciliation to correct.
func Subtract(agg PeriodAggregate, d Delta) PeriodAggregate {
	agg.TotalMiles = floorZero(agg.TotalMiles.Sub(d.Miles))
	agg.TotalDurationSeconds = floorZero(agg.TotalDurationSeconds.Sub(d.DurationSeconds))
	agg.TotalEarnings = floorZero(agg.TotalEarnings.Sub(d.Earnings))
	agg.TotalExpenses = floorZero(agg.TotalExpenses.Sub(d.Expenses))
	agg.SessionCount = max(0, agg.SessionCount-d.Count)
	return agg
}

func floorZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// ApplyEvent folds a change event into the summary. Period membership of both
// snapshots is evaluated against now, so an edit that moves a session across a
// boundary is removed from the old window and added to the new one.
func ApplyEvent(summary UserSummary, event ChangeEvent, now time.Time, calc Calculator) UserSummary {
	if event.Before != nil && (event.Kind == ChangeUpdate || event.Kind == ChangeDelete) {
		delta := DeltaOf(*event.Before)
		for _, g := range Granularities {
			if !calc.InPeriod(event.Before.StartTime, now, g) {
				continue
			}
			agg := summary.Period(g)
			*agg = Subtract(currentAggregate(*agg, now, g, calc), delta)
		}
	}

	if event.After != nil && (event.Kind == ChangeCreate || event.Kind == ChangeUpdate) {
		delta := DeltaOf(*event.After)
		for _, g := range Granularities {
			if !calc.InPeriod(event.After.StartTime, now, g) {
				continue
			}
			agg := summary.Period(g)
			*agg = Add(currentAggregate(*agg, now, g, calc), delta)
		}
	}

	return summary
}

// currentAggregate returns agg when it still describes the g-period containing
// now, or an empty aggregate at the current boundary when it is absent or has
// rolled over.
func currentAggregate(agg PeriodAggregate, now time.Time, g Granularity, calc Calculator) PeriodAggregate {
	start := calc.PeriodStart(now, g)
	if agg.PeriodStart.IsZero() || !agg.PeriodStart.Equal(start) {
		return EmptyAggregate(start, calc.PeriodEnd(now, g))
	}
	return agg
}
