package main

import (
	"net/http"
	"testing"

	"oracle-arena/internal/candles"
	"oracle-arena/internal/config"
	"oracle-arena/internal/pricefeed"
	"oracle-arena/internal/reason"
	"oracle-arena/internal/round"
	"oracle-arena/internal/store"
	"oracle-arena/internal/testutil"
)

func newTestServer(t *testing.T) (http.Handler, *store.Store, func()) {
	return newTestServerWithUpstream(t, "http://127.0.0.1:1")
}

func newTestServerWithUpstream(t *testing.T, infoURL string) (http.Handler, *store.Store, func()) {
	t.Helper()
	st, cleanup := testutil.OpenTestStore(t)
	cfg := config.ServerConfig{
		PublicBaseURL:      "http://localhost:8080",
		AdminAPIToken:      "admin-test-token",
		RoundDurationMin:   30,
		LockWindowMin:      10,
		FlatThresholdPct:   0.2,
		SignatureWindowSec: 300,
		FeedCoin:           "BTC",
		KlineIntervals:     "1m,5m",
	}
	fetcher := candles.NewFetcher(candles.FetcherOptions{InfoURL: infoURL, Coin: "BTC"})
	reasonSvc := reason.NewService(fetcher, cfg.FlatThresholdPct)
	roundSvc := round.NewService(st, reasonSvc, round.Config{
		DurationMin:      cfg.RoundDurationMin,
		LockWindowMin:    cfg.LockWindowMin,
		FlatThresholdPct: cfg.FlatThresholdPct,
		RoundLimit:       200,
		JudgmentLimit:    800,
		VerdictLimit:     200,
		ScoreEventLimit:  1000,
		FeedLimit:        200,
	})
	feed := pricefeed.New("ws://127.0.0.1:1", "allMids", "BTC")
	srv := &server{
		st:       st,
		cfg:      cfg,
		rounds:   roundSvc,
		reason:   reasonSvc,
		advancer: round.NewAdvancer(st, roundSvc, reasonSvc, feed, 10_000, 30_000, 50),
		feed:     feed,
		fetcher:  fetcher,
	}
	return newRouter(srv), st, cleanup
}
