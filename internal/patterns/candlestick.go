package patterns

import "oracle-arena/internal/candles"

func body(b candles.Kline) float64 {
	if b.Close >= b.Open {
		return b.Close - b.Open
	}
	return b.Open - b.Close
}

func barRange(b candles.Kline) float64 { return b.High - b.Low }

func isGreen(b candles.Kline) bool { return b.Close > b.Open }
func isRed(b candles.Kline) bool   { return b.Close < b.Open }

func bodyTop(b candles.Kline) float64 {
	if b.Open > b.Close {
		return b.Open
	}
	return b.Close
}

func bodyBottom(b candles.Kline) float64 {
	if b.Open < b.Close {
		return b.Open
	}
	return b.Close
}

func bullishEngulfing(bars []candles.Kline) bool {
	prev, cur := bars[len(bars)-2], bars[len(bars)-1]
	return isRed(prev) && isGreen(cur) && cur.Open <= prev.Close && cur.Close >= prev.Open
}

func bearishEngulfing(bars []candles.Kline) bool {
	prev, cur := bars[len(bars)-2], bars[len(bars)-1]
	return isGreen(prev) && isRed(cur) && cur.Open >= prev.Close && cur.Close <= prev.Open
}

func hammer(bars []candles.Kline) bool {
	b := bars[len(bars)-1]
	rng := barRange(b)
	if rng <= 0 {
		return false
	}
	bd := body(b)
	lower := bodyBottom(b) - b.Low
	upper := b.High - bodyTop(b)
	return bd/rng <= 0.3 && lower >= 2*bd && upper <= 0.25*rng
}

func shootingStar(bars []candles.Kline) bool {
	b := bars[len(bars)-1]
	rng := barRange(b)
	if rng <= 0 {
		return false
	}
	bd := body(b)
	lower := bodyBottom(b) - b.Low
	upper := b.High - bodyTop(b)
	return bd/rng <= 0.3 && upper >= 2*bd && lower <= 0.25*rng
}

func doji(bars []candles.Kline) bool {
	b := bars[len(bars)-1]
	rng := barRange(b)
	if rng <= 0 {
		return false
	}
	return body(b)/rng <= 0.1
}

func insideBar(bars []candles.Kline) bool {
	prev, cur := bars[len(bars)-2], bars[len(bars)-1]
	return cur.High <= prev.High && cur.Low >= prev.Low
}

func outsideBar(bars []candles.Kline) bool {
	prev, cur := bars[len(bars)-2], bars[len(bars)-1]
	return cur.High >= prev.High && cur.Low <= prev.Low
}

func morningStar(bars []candles.Kline) bool {
	a, b, c := bars[len(bars)-3], bars[len(bars)-2], bars[len(bars)-1]
	ra, rb := barRange(a), barRange(b)
	if ra <= 0 || rb <= 0 {
		return false
	}
	if !isRed(a) || body(a)/ra < 0.5 {
		return false
	}
	if body(b)/rb > 0.3 {
		return false
	}
	mid := (a.Open + a.Close) / 2
	return isGreen(c) && c.Close >= mid
}

func eveningStar(bars []candles.Kline) bool {
	a, b, c := bars[len(bars)-3], bars[len(bars)-2], bars[len(bars)-1]
	ra, rb := barRange(a), barRange(b)
	if ra <= 0 || rb <= 0 {
		return false
	}
	if !isGreen(a) || body(a)/ra < 0.5 {
		return false
	}
	if body(b)/rb > 0.3 {
		return false
	}
	mid := (a.Open + a.Close) / 2
	return isRed(c) && c.Close <= mid
}

func threeWhiteSoldiers(bars []candles.Kline) bool {
	n := len(bars)
	for i := n - 3; i < n; i++ {
		if !isGreen(bars[i]) {
			return false
		}
	}
	for i := n - 2; i < n; i++ {
		prev := bars[i-1]
		if bars[i].Close <= prev.Close {
			return false
		}
		if bars[i].Open < bodyBottom(prev) || bars[i].Open > bodyTop(prev) {
			return false
		}
	}
	return true
}

func threeBlackCrows(bars []candles.Kline) bool {
	n := len(bars)
	for i := n - 3; i < n; i++ {
		if !isRed(bars[i]) {
			return false
		}
	}
	for i := n - 2; i < n; i++ {
		prev := bars[i-1]
		if bars[i].Close >= prev.Close {
			return false
		}
		if bars[i].Open < bodyBottom(prev) || bars[i].Open > bodyTop(prev) {
			return false
		}
	}
	return true
}
