package strategy

import (
	"math"

	"github.com/quantlab/stratbench/pkg/indicator"
	"github.com/quantlab/stratbench/pkg/market"
)

// MeanReversion trades band excursions confirmed by an RSI extreme. Both
// conditions must hold on the same bar: a single-signal trigger is
// rejected to reduce false entries.
type MeanReversion struct {
	period     int
	stdDev     float64
	rsiPeriod  int
	oversold   float64
	overbought float64
}

func newMeanReversion(params Params) (Generator, error) {
	period, err := params.intValue("period", 20)
	if err != nil {
		return nil, err
	}
	stdDev, err := params.floatValue("std_dev", 2.0)
	if err != nil {
		return nil, err
	}
	rsiPeriod, err := params.intValue("rsi_period", 14)
	if err != nil {
		return nil, err
	}
	oversold, err := params.floatValue("oversold", 30)
	if err != nil {
		return nil, err
	}
	overbought, err := params.floatValue("overbought", 70)
	if err != nil {
		return nil, err
	}

	if period <= 1 {
		return nil, &InvalidParameterError{Param: "period", Value: period, Reason: "must be greater than 1"}
	}
	if stdDev <= 0 {
		return nil, &InvalidParameterError{Param: "std_dev", Value: stdDev, Reason: "must be positive"}
	}
	if rsiPeriod <= 0 {
		return nil, &InvalidParameterError{Param: "rsi_period", Value: rsiPeriod, Reason: "must be positive"}
	}
	if oversold < 0 || oversold > 100 {
		return nil, &InvalidParameterError{Param: "oversold", Value: oversold, Reason: "must be within [0, 100]"}
	}
	if overbought <= oversold || overbought > 100 {
		return nil, &InvalidParameterError{Param: "overbought", Value: overbought, Reason: "must be greater than oversold and at most 100"}
	}

	return &MeanReversion{
		period:     period,
		stdDev:     stdDev,
		rsiPeriod:  rsiPeriod,
		oversold:   oversold,
		overbought: overbought,
	}, nil
}

// Name returns the strategy kind tag.
func (m *MeanReversion) Name() string { return KindMeanReversion }

// MinBars returns the longer of the band window and the RSI warm-up.
// The RSI needs rsi_period price changes, hence rsi_period+1 bars.
func (m *MeanReversion) MinBars() int {
	if m.rsiPeriod+1 > m.period {
		return m.rsiPeriod + 1
	}
	return m.period
}

// Signals emits Long when the close is below the lower Bollinger band and
// the RSI confirms oversold, and the symmetric Short on the upper band
// with overbought confirmation.
func (m *MeanReversion) Signals(s *market.Series) ([]Signal, error) {
	closes := s.Closes()

	mid := indicator.RollingMean(closes, m.period)
	sd := indicator.RollingStd(closes, m.period)
	rsi := indicator.RSI(closes, m.rsiPeriod)

	signals := make([]Signal, len(closes))
	for i := range closes {
		if i < m.MinBars()-1 {
			continue
		}
		if math.IsNaN(mid[i]) || math.IsNaN(sd[i]) || math.IsNaN(rsi[i]) {
			continue
		}

		lower := mid[i] - m.stdDev*sd[i]
		upper := mid[i] + m.stdDev*sd[i]

		switch {
		case closes[i] < lower && rsi[i] < m.oversold:
			signals[i] = Long
		case closes[i] > upper && rsi[i] > m.overbought:
			signals[i] = Short
		}
	}
	return signals, nil
}
