package strategy

import (
	"math"

	"github.com/quantlab/stratbench/pkg/indicator"
	"github.com/quantlab/stratbench/pkg/market"
)

// Breakout trades channel breaks: Long when the close clears the prior
// rolling high by more than the threshold fraction, Short below the prior
// rolling low. With volume confirmation on, the bar's volume must also
// exceed the rolling average by the multiplier, which filters thin breaks.
type Breakout struct {
	lookback           int
	threshold          float64
	volumeConfirmation bool
	volumeMultiplier   float64
}

func newBreakout(params Params) (Generator, error) {
	lookback, err := params.intValue("lookback", 20)
	if err != nil {
		return nil, err
	}
	threshold, err := params.floatValue("threshold", 0.02)
	if err != nil {
		return nil, err
	}
	volumeConfirmation, err := params.boolValue("volume_confirmation", true)
	if err != nil {
		return nil, err
	}
	volumeMultiplier, err := params.floatValue("volume_multiplier", 1.5)
	if err != nil {
		return nil, err
	}

	if lookback <= 1 {
		return nil, &InvalidParameterError{Param: "lookback", Value: lookback, Reason: "must be greater than 1"}
	}
	if threshold < 0 {
		return nil, &InvalidParameterError{Param: "threshold", Value: threshold, Reason: "must not be negative"}
	}
	if volumeMultiplier <= 0 {
		return nil, &InvalidParameterError{Param: "volume_multiplier", Value: volumeMultiplier, Reason: "must be positive"}
	}

	return &Breakout{
		lookback:           lookback,
		threshold:          threshold,
		volumeConfirmation: volumeConfirmation,
		volumeMultiplier:   volumeMultiplier,
	}, nil
}

// Name returns the strategy kind tag.
func (b *Breakout) Name() string { return KindBreakout }

// MinBars returns lookback+1: the channel covers the lookback bars
// strictly before the current one, so a break needs one bar beyond it.
func (b *Breakout) MinBars() int { return b.lookback + 1 }

// Signals emits Long above the prior channel high and Short below the
// prior channel low, gated on volume confirmation when enabled.
func (b *Breakout) Signals(s *market.Series) ([]Signal, error) {
	closes := s.Closes()
	highs := indicator.RollingMax(s.Highs(), b.lookback)
	lows := indicator.RollingMin(s.Lows(), b.lookback)
	avgVolume := indicator.RollingMean(s.Volumes(), b.lookback)
	volumes := s.Volumes()

	signals := make([]Signal, len(closes))
	for i := b.MinBars() - 1; i < len(closes); i++ {
		// Channel values come from the window ending at the prior bar.
		priorHigh := highs[i-1]
		priorLow := lows[i-1]
		priorAvgVolume := avgVolume[i-1]
		if math.IsNaN(priorHigh) || math.IsNaN(priorLow) || math.IsNaN(priorAvgVolume) {
			continue
		}

		if b.volumeConfirmation && volumes[i] <= priorAvgVolume*b.volumeMultiplier {
			continue
		}

		switch {
		case closes[i] > priorHigh*(1+b.threshold):
			signals[i] = Long
		case closes[i] < priorLow*(1-b.threshold):
			signals[i] = Short
		}
	}
	return signals, nil
}
