// Package xirr computes the annualized return of irregularly dated, signed
// cash flows. Negative amounts are investments, positive amounts are
// redemptions or the current value.
package xirr

import (
	"math"
	"sort"

	"fundlens/internal/dates"
)

// CashFlow is one signed, dated flow.
type CashFlow struct {
	Date   dates.Date
	Amount float64
}

const (
	initialGuess  = 0.10
	maxIterations = 100
	tolerance     = 1e-7
	rateFloor     = -0.99
	rateCeiling   = 10.0
)

// Calculate returns the XIRR as a percentage (10.0 means 10%), or nil when no
// meaningful rate exists: fewer than two flows, flows all of one sign, or no
// root in the search interval.
func Calculate(flows []CashFlow) *float64 {
	if len(flows) < 2 {
		return nil
	}

	sorted := make([]CashFlow, len(flows))
	copy(sorted, flows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	var invested, returned float64
	for _, cf := range sorted {
		if cf.Amount < 0 {
			invested += cf.Amount
		} else {
			returned += cf.Amount
		}
	}
	if invested == 0 || returned == 0 {
		return nil
	}

	base := sorted[0].Date

	sameDay := true
	for _, cf := range sorted[1:] {
		if !cf.Date.Equal(base) {
			sameDay = false
			break
		}
	}
	if sameDay {
		// No time span to annualize over; report the simple return.
		r := (returned + invested) / math.Abs(invested) * 100
		return &r
	}

	rate := initialGuess
	for i := 0; i < maxIterations; i++ {
		npv := xnpv(rate, sorted, base)
		deriv := xnpvDerivative(rate, sorted, base)

		if math.Abs(deriv) < 1e-10 {
			// Flat spot; nudge away and keep iterating.
			if rate > 0 {
				rate *= 0.5
			} else {
				rate = initialGuess
			}
			continue
		}

		next := rate - npv/deriv
		next = math.Max(rateFloor, math.Min(rateCeiling, next))

		if math.Abs(next-rate) < tolerance {
			r := next * 100
			return &r
		}
		rate = next
	}

	return bisect(sorted, base)
}

// xnpv is the net present value at the given rate, day counted over a
// 365-day year from the first flow.
func xnpv(rate float64, flows []CashFlow, base dates.Date) float64 {
	if rate <= -1 {
		return math.Inf(1)
	}
	var npv float64
	for _, cf := range flows {
		days := cf.Date.DaysSince(base)
		if days < 0 {
			days = 0
		}
		npv += cf.Amount / math.Pow(1+rate, float64(days)/365.0)
	}
	return npv
}

func xnpvDerivative(rate float64, flows []CashFlow, base dates.Date) float64 {
	if rate <= -1 {
		return math.Inf(1)
	}
	var deriv float64
	for _, cf := range flows {
		days := cf.Date.DaysSince(base)
		if days < 0 {
			days = 0
		}
		exp := float64(days) / 365.0
		deriv -= exp * cf.Amount / math.Pow(1+rate, exp+1)
	}
	return deriv
}

// bisect brackets a root over [rateFloor, rateCeiling]. Without a sign change
// there is nothing to solve, so it reports nil rather than guessing.
func bisect(flows []CashFlow, base dates.Date) *float64 {
	low, high := rateFloor, rateCeiling
	npvLow := xnpv(low, flows, base)
	npvHigh := xnpv(high, flows, base)

	if npvLow*npvHigh > 0 {
		return nil
	}

	for i := 0; i < maxIterations; i++ {
		mid := (low + high) / 2
		npvMid := xnpv(mid, flows, base)

		if math.Abs(npvMid) < 1e-6 || (high-low)/2 < 1e-6 {
			r := mid * 100
			return &r
		}
		if npvMid*npvLow < 0 {
			high = mid
			npvHigh = npvMid
		} else {
			low = mid
			npvLow = npvMid
		}
	}
	r := (low + high) / 2 * 100
	return &r
}
