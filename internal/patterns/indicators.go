package patterns

import (
	"math"

	"oracle-arena/internal/candles"
)

// emaSeries returns one EMA value per bar. Entries before the seed index
// are NaN. The seed is the simple average of the first period closes;
// later values use alpha = 2/(period+1).
func emaSeries(bars []candles.Kline, period int) []float64 {
	out := make([]float64, len(bars))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 || len(bars) < period {
		return out
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += bars[i].Close
	}
	prev := sum / float64(period)
	out[period-1] = prev
	alpha := 2.0 / float64(period+1)
	for i := period; i < len(bars); i++ {
		prev = bars[i].Close*alpha + prev*(1-alpha)
		out[i] = prev
	}
	return out
}

// rsiSeries computes Wilder's RSI. The first period deltas seed the
// average gain/loss; subsequent steps smooth with
// (prev*(period-1)+new)/period. Entries before the seed are NaN.
func rsiSeries(bars []candles.Kline, period int) []float64 {
	out := make([]float64, len(bars))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 || len(bars) < period+1 {
		return out
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		delta := bars[i].Close - bars[i-1].Close
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	out[period] = rsiValue(avgGain, avgLoss)
	for i := period + 1; i < len(bars); i++ {
		delta := bars[i].Close - bars[i-1].Close
		g, l := 0.0, 0.0
		if delta > 0 {
			g = delta
		} else {
			l = -delta
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	if avgGain == 0 {
		return 0
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

const pivotSpan = 2

type pivot struct {
	idx   int
	price float64
}

// pivotHighs finds local highs over a fixed two-bar span inside the last
// lookback bars, excluding the outermost span bars on each side. Indexes
// are absolute into bars.
func pivotHighs(bars []candles.Kline, lookback int) []pivot {
	return findPivots(bars, lookback, func(b candles.Kline) float64 { return b.High }, func(center, neighbour float64) bool {
		return center > neighbour
	})
}

func pivotLows(bars []candles.Kline, lookback int) []pivot {
	return findPivots(bars, lookback, func(b candles.Kline) float64 { return b.Low }, func(center, neighbour float64) bool {
		return center < neighbour
	})
}

func findPivots(bars []candles.Kline, lookback int, value func(candles.Kline) float64, better func(center, neighbour float64) bool) []pivot {
	n := len(bars)
	start := n - lookback
	if start < 0 {
		start = 0
	}
	lo := start + pivotSpan
	hi := n - 1 - pivotSpan
	var out []pivot
	for i := lo; i <= hi; i++ {
		v := value(bars[i])
		isPivot := true
		for d := 1; d <= pivotSpan; d++ {
			if !better(v, value(bars[i-d])) || !better(v, value(bars[i+d])) {
				isPivot = false
				break
			}
		}
		if isPivot {
			out = append(out, pivot{idx: i, price: v})
		}
	}
	return out
}
