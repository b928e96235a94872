package models

import "fmt"

// WeightFraction is a portfolio weight normalized to the 0-1 range at
// ingestion. Disclosure sheets report weights as 0-100 percentages while some
// feeds already use fractions; NewWeightFraction folds both into one
// representation so no downstream reader has to guess.
type WeightFraction float64

// NewWeightFraction normalizes v: values above 1 are treated as percentages
// and divided by 100, values in [0,1] pass through unchanged.
func NewWeightFraction(v float64) (WeightFraction, error) {
	if v < 0 || v > 100 {
		return 0, fmt.Errorf("weight %v out of range", v)
	}
	if v > 1 {
		v /= 100
	}
	return WeightFraction(v), nil
}

// Fraction returns the weight as a 0-1 float.
func (w WeightFraction) Fraction() float64 { return float64(w) }

// Percent returns the weight as a 0-100 float.
func (w WeightFraction) Percent() float64 { return float64(w) * 100 }
