package candles

import (
	"sort"
)

// Kline is one OHLC bar. CloseTime is the inclusive close of the bar.
type Kline struct {
	OpenTime    int64   `json:"open_time"`
	CloseTime   int64   `json:"close_time"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
	TradesCount int     `json:"trades_count"`
}

var intervalMs = map[string]int64{
	"1m":  60_000,
	"3m":  180_000,
	"5m":  300_000,
	"15m": 900_000,
	"30m": 1_800_000,
	"1h":  3_600_000,
	"4h":  14_400_000,
	"12h": 43_200_000,
	"1d":  86_400_000,
}

// PeriodMs returns the millisecond length of a whitelisted interval.
func PeriodMs(interval string) (int64, bool) {
	ms, ok := intervalMs[interval]
	return ms, ok
}

func IsSupportedInterval(interval string) bool {
	_, ok := intervalMs[interval]
	return ok
}

// SupportedIntervals lists the whitelist, shortest first.
func SupportedIntervals() []string {
	out := make([]string, 0, len(intervalMs))
	for k := range intervalMs {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return intervalMs[out[i]] < intervalMs[out[j]] })
	return out
}
