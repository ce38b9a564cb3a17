package strategy

import (
	"math"

	"github.com/quantlab/stratbench/pkg/indicator"
	"github.com/quantlab/stratbench/pkg/market"
)

// Momentum goes long while the fast moving average is above the slow one
// and short while it is below. The moving average type is selectable
// between simple and exponential.
type Momentum struct {
	fastPeriod int
	slowPeriod int
	maType     string
}

func newMomentum(params Params) (Generator, error) {
	fast, err := params.intValue("fast_period", 10)
	if err != nil {
		return nil, err
	}
	slow, err := params.intValue("slow_period", 30)
	if err != nil {
		return nil, err
	}
	maType, err := params.stringValue("ma_type", "sma")
	if err != nil {
		return nil, err
	}

	if fast <= 0 {
		return nil, &InvalidParameterError{Param: "fast_period", Value: fast, Reason: "must be positive"}
	}
	if slow <= fast {
		return nil, &InvalidParameterError{Param: "slow_period", Value: slow, Reason: "must be greater than fast_period"}
	}
	if maType != "sma" && maType != "ema" {
		return nil, &InvalidParameterError{Param: "ma_type", Value: maType, Reason: `must be "sma" or "ema"`}
	}

	return &Momentum{fastPeriod: fast, slowPeriod: slow, maType: maType}, nil
}

// Name returns the strategy kind tag.
func (m *Momentum) Name() string { return KindMomentum }

// MinBars returns max(fast_period, slow_period).
func (m *Momentum) MinBars() int { return m.slowPeriod }

// Signals emits Long while fast MA > slow MA and Short while fast < slow.
// The first MinBars()-1 bars are Flat: insufficient history is a policy
// decision here, not an error.
func (m *Momentum) Signals(s *market.Series) ([]Signal, error) {
	closes := s.Closes()

	var fastMA, slowMA []float64
	if m.maType == "ema" {
		fastMA = indicator.EMA(closes, m.fastPeriod)
		slowMA = indicator.EMA(closes, m.slowPeriod)
	} else {
		fastMA = indicator.SMA(closes, m.fastPeriod)
		slowMA = indicator.SMA(closes, m.slowPeriod)
	}

	signals := make([]Signal, len(closes))
	for i := range closes {
		if i < m.MinBars()-1 {
			continue
		}
		if math.IsNaN(fastMA[i]) || math.IsNaN(slowMA[i]) {
			continue
		}
		switch {
		case fastMA[i] > slowMA[i]:
			signals[i] = Long
		case fastMA[i] < slowMA[i]:
			signals[i] = Short
		}
	}
	return signals, nil
}
