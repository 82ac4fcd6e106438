package patterns

import (
	"math"
	"testing"

	"oracle-arena/internal/candles"
)

func closesToBars(closes []float64) []candles.Kline {
	out := make([]candles.Kline, len(closes))
	for i, c := range closes {
		out[i] = candles.Kline{Open: c, High: c, Low: c, Close: c}
	}
	return out
}

func TestEMASeedIsSimpleAverage(t *testing.T) {
	bars := closesToBars([]float64{1, 2, 3, 4, 5})
	ema := emaSeries(bars, 3)
	if !math.IsNaN(ema[0]) || !math.IsNaN(ema[1]) {
		t.Fatal("ema must be undefined before the seed")
	}
	if ema[2] != 2 {
		t.Fatalf("seed = %f, want simple average 2", ema[2])
	}
	// alpha = 2/(3+1) = 0.5
	if want := 4*0.5 + 2*0.5; ema[3] != want {
		t.Fatalf("ema[3] = %f, want %f", ema[3], want)
	}
}

func TestRSIAllGainsIsHundred(t *testing.T) {
	bars := closesToBars([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})
	rsi := rsiSeries(bars, 14)
	if got := rsi[len(rsi)-1]; got != 100 {
		t.Fatalf("rsi = %f, want 100 with zero losses", got)
	}
}

func TestRSIAllLossesIsZero(t *testing.T) {
	closes := make([]float64, 16)
	for i := range closes {
		closes[i] = 100 - float64(i)
	}
	rsi := rsiSeries(closesToBars(closes), 14)
	if got := rsi[len(rsi)-1]; got != 0 {
		t.Fatalf("rsi = %f, want 0 with zero gains", got)
	}
}

func TestRSIUndefinedBeforeSeed(t *testing.T) {
	rsi := rsiSeries(closesToBars([]float64{1, 2, 3}), 14)
	for i, v := range rsi {
		if !math.IsNaN(v) {
			t.Fatalf("rsi[%d] defined with too little history", i)
		}
	}
}

func TestPivotDetectionSpanTwo(t *testing.T) {
	bars := make([]candles.Kline, 11)
	for i := range bars {
		bars[i] = candles.Kline{Open: 100, High: 100, Low: 99, Close: 100}
	}
	bars[5].High = 105
	highs := pivotHighs(bars, len(bars))
	if len(highs) != 1 || highs[0].idx != 5 || highs[0].price != 105 {
		t.Fatalf("pivot highs = %+v, want single pivot at 5", highs)
	}

	// a tie with a neighbour kills the pivot
	bars[6].High = 105
	if got := pivotHighs(bars, len(bars)); len(got) != 0 {
		t.Fatalf("tied highs must not be pivots, got %+v", got)
	}
}

func TestPivotsExcludeWindowEdges(t *testing.T) {
	bars := make([]candles.Kline, 10)
	for i := range bars {
		bars[i] = candles.Kline{High: 100, Low: 99}
	}
	bars[9].High = 200 // spike on the last bar
	if got := pivotHighs(bars, len(bars)); len(got) != 0 {
		t.Fatalf("edge bars cannot be pivots, got %+v", got)
	}
}
