// Package strategy defines the signal-generation contract and the three
// built-in trading strategies. Generators are pure: given the same series
// and parameters they produce the same signal sequence.
package strategy

import (
	"fmt"
	"sort"

	"github.com/quantlab/stratbench/pkg/market"
)

// Generator produces one directional signal per bar, aligned by index.
type Generator interface {
	// Name returns the strategy kind this generator was built from.
	Name() string

	// MinBars returns the minimum series length the parameters require.
	// The warm-up policy guarantees the first MinBars()-1 signals are Flat.
	MinBars() int

	// Signals generates exactly one signal per bar of the series.
	Signals(s *market.Series) ([]Signal, error)
}

// builders maps strategy kind tags to their constructors. Dispatch happens
// over this explicit tag rather than an inheritance chain.
var builders = map[string]func(Params) (Generator, error){
	KindMomentum:      newMomentum,
	KindMeanReversion: newMeanReversion,
	KindBreakout:      newBreakout,
}

// Strategy kind tags recognized by New.
const (
	KindMomentum      = "momentum"
	KindMeanReversion = "mean_reversion"
	KindBreakout      = "breakout"
)

// New builds a generator for the given kind and validates both the
// parameters and the available history once, at construction.
func New(kind string, params Params, seriesLen int) (Generator, error) {
	build, ok := builders[kind]
	if !ok {
		return nil, fmt.Errorf("unknown strategy kind: %q (known: %v)", kind, Kinds())
	}

	gen, err := build(params)
	if err != nil {
		return nil, err
	}

	if seriesLen < gen.MinBars() {
		return nil, &InsufficientDataError{
			Strategy: kind,
			Required: gen.MinBars(),
			Got:      seriesLen,
		}
	}
	return gen, nil
}

// Kinds returns the registered strategy kind tags in sorted order.
func Kinds() []string {
	kinds := make([]string, 0, len(builders))
	for kind := range builders {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// DefaultParams returns the default parameters for a registered kind.
func DefaultParams(kind string) (Params, error) {
	switch kind {
	case KindMomentum:
		return Params{
			"fast_period": 10,
			"slow_period": 30,
			"ma_type":     "sma",
		}, nil
	case KindMeanReversion:
		return Params{
			"period":     20,
			"std_dev":    2.0,
			"rsi_period": 14,
			"oversold":   30.0,
			"overbought": 70.0,
		}, nil
	case KindBreakout:
		return Params{
			"lookback":            20,
			"threshold":           0.02,
			"volume_confirmation": true,
			"volume_multiplier":   1.5,
		}, nil
	default:
		return nil, fmt.Errorf("unknown strategy kind: %q", kind)
	}
}
