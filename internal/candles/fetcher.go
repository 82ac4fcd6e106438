package candles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrUnsupportedInterval = errors.New("unsupported_interval")
	ErrUnsupportedCoin     = errors.New("unsupported_coin")
)

// Fetcher pulls candle snapshots from an upstream info endpoint and
// normalizes them into Kline bars. Only BTC is supported. A short-TTL
// Redis cache keyed by the full request identity is advisory: when no
// cache client is configured every call goes upstream.
type Fetcher struct {
	infoURL      string
	coin         string
	httpClient   *http.Client
	cache        *redis.Client
	cacheTTL     time.Duration
	DefaultLimit int
	MaxLimit     int
}

type FetcherOptions struct {
	InfoURL      string
	Coin         string
	Cache        *redis.Client
	CacheSec     int
	DefaultLimit int
	MaxLimit     int
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	coin := opts.Coin
	if coin == "" {
		coin = "BTC"
	}
	defaultLimit := opts.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = 200
	}
	maxLimit := opts.MaxLimit
	if maxLimit <= 0 {
		maxLimit = 500
	}
	return &Fetcher{
		infoURL:      opts.InfoURL,
		coin:         coin,
		httpClient:   &http.Client{Timeout: 6 * time.Second},
		cache:        opts.Cache,
		cacheTTL:     time.Duration(opts.CacheSec) * time.Second,
		DefaultLimit: defaultLimit,
		MaxLimit:     maxLimit,
	}
}

// ClampLimit applies the default/max limit rules to a requested limit.
func (f *Fetcher) ClampLimit(limit int) int {
	if limit <= 0 {
		return f.DefaultLimit
	}
	if limit > f.MaxLimit {
		return f.MaxLimit
	}
	return limit
}

type snapshotRequest struct {
	Type string      `json:"type"`
	Req  snapshotReq `json:"req"`
}

type snapshotReq struct {
	Coin      string `json:"coin"`
	Interval  string `json:"interval"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
}

type rawCandle struct {
	T int64       `json:"t"`
	C int64       `json:"T"`
	O json.Number `json:"o"`
	H json.Number `json:"h"`
	L json.Number `json:"l"`
	X json.Number `json:"c"`
	V json.Number `json:"v"`
	N int         `json:"n"`
}

// Range fetches bars for [startMs, endMs] on one interval.
func (f *Fetcher) Range(ctx context.Context, coin, interval string, startMs, endMs int64) ([]Kline, error) {
	if coin != f.coin {
		return nil, ErrUnsupportedCoin
	}
	ms, ok := PeriodMs(interval)
	if !ok {
		return nil, ErrUnsupportedInterval
	}

	cacheKey := fmt.Sprintf("klines:%s:%s:%d:%d", coin, interval, startMs, endMs)
	if f.cache != nil && f.cacheTTL > 0 {
		if data, err := f.cache.Get(ctx, cacheKey).Result(); err == nil {
			var bars []Kline
			if json.Unmarshal([]byte(data), &bars) == nil {
				return bars, nil
			}
		}
	}

	body, err := json.Marshal(snapshotRequest{
		Type: "candleSnapshot",
		Req:  snapshotReq{Coin: coin, Interval: interval, StartTime: startMs, EndTime: endMs},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.infoURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch candles: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read candles: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("candle upstream status %d: %s", resp.StatusCode, string(payload))
	}

	var raw []rawCandle
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("parse candles: %w", err)
	}
	bars := make([]Kline, 0, len(raw))
	for _, rc := range raw {
		closeTime := rc.C
		if closeTime == 0 {
			closeTime = rc.T + ms
		}
		bars = append(bars, Kline{
			OpenTime:    rc.T,
			CloseTime:   closeTime,
			Open:        parseNum(rc.O),
			High:        parseNum(rc.H),
			Low:         parseNum(rc.L),
			Close:       parseNum(rc.X),
			Volume:      parseNum(rc.V),
			TradesCount: rc.N,
		})
	}

	if f.cache != nil && f.cacheTTL > 0 {
		if data, err := json.Marshal(bars); err == nil {
			_ = f.cache.Set(ctx, cacheKey, data, f.cacheTTL).Err()
		}
	}
	return bars, nil
}

// Window fetches up to limit trailing bars whose last inclusive close is
// endCloseMs.
func (f *Fetcher) Window(ctx context.Context, interval string, endCloseMs int64, limit int) ([]Kline, error) {
	ms, ok := PeriodMs(interval)
	if !ok {
		return nil, ErrUnsupportedInterval
	}
	limit = f.ClampLimit(limit)
	startMs := endCloseMs + 1 - int64(limit)*ms
	if startMs < 0 {
		startMs = 0
	}
	return f.Range(ctx, f.coin, interval, startMs, endCloseMs)
}

// Snapshot fetches several intervals at once. Failures are collected per
// interval so partial results survive a flaky upstream.
func (f *Fetcher) Snapshot(ctx context.Context, coin string, intervals []string, startMs, endMs int64) (map[string][]Kline, map[string]string) {
	out := make(map[string][]Kline, len(intervals))
	errs := map[string]string{}
	for _, iv := range intervals {
		bars, err := f.Range(ctx, coin, iv, startMs, endMs)
		if err != nil {
			errs[iv] = err.Error()
			continue
		}
		out[iv] = bars
	}
	return out, errs
}

func parseNum(n json.Number) float64 {
	v, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return 0
	}
	return v
}
