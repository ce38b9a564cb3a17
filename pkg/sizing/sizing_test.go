package sizing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFractionalSize(t *testing.T) {
	tests := []struct {
		name    string
		sizer   Fractional
		capital float64
		price   float64
		want    float64
	}{
		{"basic fraction", Fractional{Fraction: 0.02, MinUnit: 1}, 100000, 50, 40},
		{"floors to whole units", Fractional{Fraction: 0.02, MinUnit: 1}, 100000, 30, 66},
		{"bumps to one lot when affordable", Fractional{Fraction: 0.02, MinUnit: 1}, 1000, 100, 1},
		{"zero when one lot unaffordable", Fractional{Fraction: 0.02, MinUnit: 1}, 50, 100, 0},
		{"clamped to capital", Fractional{Fraction: 1.5, MinUnit: 1}, 1000, 90, 11},
		{"fractional lots", Fractional{Fraction: 0.10, MinUnit: 0.5}, 10000, 350, 2.5},
		{"zero capital", Fractional{Fraction: 0.02, MinUnit: 1}, 0, 100, 0},
		{"zero price", Fractional{Fraction: 0.02, MinUnit: 1}, 1000, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.sizer.Size(tt.capital, tt.price), 1e-9)
		})
	}
}

func TestFractionalNeverExceedsCapital(t *testing.T) {
	sizer := Fractional{Fraction: 0.9, MinUnit: 1}
	for _, capital := range []float64{10, 100, 999, 12345, 100000} {
		for _, price := range []float64{0.5, 3, 99, 1234} {
			quantity := sizer.Size(capital, price)
			assert.LessOrEqual(t, quantity*price, capital,
				"capital %f price %f", capital, price)
		}
	}
}
