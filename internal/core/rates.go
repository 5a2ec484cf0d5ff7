package core

import "errors"

// RateTable maps an ISO date (YYYY-MM-DD) to the Bs/USD exchange rate in
// effect that day. Every conversion looks up the rate of the transaction's
// own date; rates are never interpolated.
type RateTable map[string]float64

var ErrInvalidRate = errors.New("invalid exchange rate")

// Set records the rate for a date, replacing any previous value.
func (r RateTable) Set(d Date, rate float64) error {
	if rate <= 0 {
		return ErrInvalidRate
	}
	r[d.ISO()] = rate
	return nil
}

// Rate returns the rate for d and whether one is recorded.
func (r RateTable) Rate(d Date) (float64, bool) {
	v, ok := r[d.ISO()]
	return v, ok
}

// USDValue converts a bolivar amount at the rate of its date. Amounts on a
// date with no recorded rate convert to zero; callers that care log the gap
// and carry on, so one missing rate never blocks reconstruction.
func (r RateTable) USDValue(amountBs float64, d Date) float64 {
	rate, ok := r[d.ISO()]
	if !ok || rate <= 0 {
		return 0
	}
	return amountBs / rate
}

// MissingRateDates returns the distinct dates in h that have no recorded
// rate, oldest first.
func (r RateTable) MissingRateDates(h History) []Date {
	seen := make(map[string]struct{})
	var out []Date
	for i := len(h) - 1; i >= 0; i-- {
		d := h[i].Date
		if _, dup := seen[d.ISO()]; dup {
			continue
		}
		seen[d.ISO()] = struct{}{}
		if _, ok := r[d.ISO()]; !ok {
			out = append(out, d)
		}
	}
	return out
}
