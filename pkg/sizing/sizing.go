// Package sizing converts available capital and price into a tradeable
// position size.
package sizing

import "math"

// Fractional allocates a fixed fraction of current capital per trade,
// floored to a minimum tradeable unit. The result is clamped, never
// rejected: notional exposure cannot exceed available capital.
type Fractional struct {
	// Fraction of capital to allocate per trade.
	Fraction float64
	// MinUnit is the smallest tradeable lot, e.g. 1 for whole shares.
	MinUnit float64
}

// DefaultFractional returns the default sizing policy: 2% of capital per
// trade in whole-share lots.
func DefaultFractional() Fractional {
	return Fractional{Fraction: 0.02, MinUnit: 1}
}

// Size returns the quantity to trade for the given capital and price.
// Quantities are multiples of MinUnit. When the fractional allocation is
// below one lot but capital affords one, a single lot is traded. Returns
// 0 when even one lot is unaffordable or inputs are not positive.
func (f Fractional) Size(capital, price float64) float64 {
	if capital <= 0 || price <= 0 || f.Fraction <= 0 || f.MinUnit <= 0 {
		return 0
	}

	quantity := math.Floor(capital*f.Fraction/price/f.MinUnit) * f.MinUnit
	if quantity < f.MinUnit {
		quantity = f.MinUnit
	}

	// Clamp so the notional never exceeds capital.
	affordable := math.Floor(capital/price/f.MinUnit) * f.MinUnit
	if quantity > affordable {
		quantity = affordable
	}
	return quantity
}
