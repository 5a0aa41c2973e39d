package models

import "math"

// Money is an amount in the smallest currency unit (centimes for MAD).
// All payment paths carry Money; conversion from major units happens in
// exactly one place, FromMajor.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// FromMajor converts a major-unit amount (e.g. 150.50 MAD) to Money.
func FromMajor(major float64, currency string) Money {
	return Money{
		Amount:   int64(math.Round(major * 100)),
		Currency: currency,
	}
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}

// LegacyMinorUnits reproduces the historical caller behavior where values
// below 1000 were treated as major units and multiplied by 100, while
// values >= 1000 were assumed to be minor units already. A 1000+ MAD
// booking passed through this path is undercharged by 100x, which is why
// new code must build Money via FromMajor instead. Kept only until the
// last caller migrates; behavior is pinned by tests.
func LegacyMinorUnits(amount float64) int64 {
	if amount >= 1000 {
		return int64(math.Round(amount))
	}
	return int64(math.Round(amount * 100))
}
