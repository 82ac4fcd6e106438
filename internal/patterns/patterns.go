// Package patterns is the deterministic pattern engine: every predicate
// is a pure function over a trailing window of OHLC bars and answers
// whether the pattern holds at the last bar.
package patterns

import (
	"math"
	"sort"

	"oracle-arena/internal/candles"
)

type entry struct {
	required int
	eval     func([]candles.Kline) bool
}

// registry is the single source of truth for the pattern whitelist, the
// minimum bar counts, and dispatch.
var registry = map[string]entry{
	"candle.bullish_engulfing.v1":    {2, bullishEngulfing},
	"candle.bearish_engulfing.v1":    {2, bearishEngulfing},
	"candle.hammer.v1":               {1, hammer},
	"candle.shooting_star.v1":        {1, shootingStar},
	"candle.doji.v1":                 {1, doji},
	"candle.inside_bar.v1":           {2, insideBar},
	"candle.outside_bar.v1":          {2, outsideBar},
	"candle.morning_star.v1":         {3, morningStar},
	"candle.evening_star.v1":         {3, eveningStar},
	"candle.three_white_soldiers.v1": {3, threeWhiteSoldiers},
	"candle.three_black_crows.v1":    {3, threeBlackCrows},

	"indicator.ema20_gt_ema50.v1":         {50, emaRelation(func(a, b float64) bool { return a > b })},
	"indicator.ema20_lt_ema50.v1":         {50, emaRelation(func(a, b float64) bool { return a < b })},
	"indicator.ema20_cross_up_ema50.v1":   {51, emaCross(true)},
	"indicator.ema20_cross_down_ema50.v1": {51, emaCross(false)},
	"indicator.rsi14_lt_30.v1":            {15, rsiThreshold(func(v float64) bool { return v < 30 })},
	"indicator.rsi14_gt_70.v1":            {15, rsiThreshold(func(v float64) bool { return v > 70 })},

	"breakout.close_gt_high_20.v1": {21, closeAboveHigh(20)},
	"breakout.close_lt_low_20.v1":  {21, closeBelowLow(20)},
	"breakout.close_gt_high_55.v1": {56, closeAboveHigh(55)},
	"breakout.close_lt_low_55.v1":  {56, closeBelowLow(55)},

	"structure.double_top_60.v1":                 {64, doubleTop},
	"structure.double_bottom_60.v1":              {64, doubleBottom},
	"structure.head_and_shoulders_90.v1":         {94, headAndShoulders},
	"structure.inverse_head_and_shoulders_90.v1": {94, inverseHeadAndShoulders},
}

// IsKnown reports whether id is in the whitelist.
func IsKnown(id string) bool {
	_, ok := registry[id]
	return ok
}

// Whitelist returns all pattern IDs, sorted.
func Whitelist() []string {
	out := make([]string, 0, len(registry))
	for id := range registry {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RequiredBars returns the minimum window length for a pattern. Unknown
// IDs are a programming error: callers validate against the whitelist
// first.
func RequiredBars(id string) int {
	e, ok := registry[id]
	if !ok {
		panic("patterns: unknown pattern id " + id)
	}
	return e.required
}

// Evaluate reports whether the pattern holds at the last bar. Too few
// bars yields false, not an error.
func Evaluate(id string, bars []candles.Kline) bool {
	e, ok := registry[id]
	if !ok {
		panic("patterns: unknown pattern id " + id)
	}
	if len(bars) < e.required {
		return false
	}
	return e.eval(bars)
}

func emaRelation(cmp func(a, b float64) bool) func([]candles.Kline) bool {
	return func(bars []candles.Kline) bool {
		e20 := emaSeries(bars, 20)
		e50 := emaSeries(bars, 50)
		last := len(bars) - 1
		if math.IsNaN(e20[last]) || math.IsNaN(e50[last]) {
			return false
		}
		return cmp(e20[last], e50[last])
	}
}

func emaCross(up bool) func([]candles.Kline) bool {
	return func(bars []candles.Kline) bool {
		e20 := emaSeries(bars, 20)
		e50 := emaSeries(bars, 50)
		last := len(bars) - 1
		prev := last - 1
		if math.IsNaN(e20[last]) || math.IsNaN(e50[last]) || math.IsNaN(e20[prev]) || math.IsNaN(e50[prev]) {
			return false
		}
		if up {
			return e20[prev] <= e50[prev] && e20[last] > e50[last]
		}
		return e20[prev] >= e50[prev] && e20[last] < e50[last]
	}
}

func rsiThreshold(cmp func(v float64) bool) func([]candles.Kline) bool {
	return func(bars []candles.Kline) bool {
		rsi := rsiSeries(bars, 14)
		last := rsi[len(rsi)-1]
		if math.IsNaN(last) {
			return false
		}
		return cmp(last)
	}
}
