package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"oracle-arena/internal/candles"
	"oracle-arena/internal/config"
	"oracle-arena/internal/logging"
	"oracle-arena/internal/pricefeed"
	"oracle-arena/internal/reason"
	"oracle-arena/internal/round"
	"oracle-arena/internal/store"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

func main() {
	logCfg, err := config.LoadLog()
	if err != nil {
		panic(err)
	}
	logging.Init(logCfg)
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatal().Err(err).Msg("load server config failed")
	}

	st, err := store.New(cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	if err := st.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("db ping failed")
	}

	var cache *redis.Client
	if cfg.RedisAddr != "" {
		cache = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := cache.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, kline cache disabled")
			cache = nil
		}
		cancel()
	}

	fetcher := candles.NewFetcher(candles.FetcherOptions{
		InfoURL:      cfg.KlineInfoURL,
		Coin:         cfg.FeedCoin,
		Cache:        cache,
		CacheSec:     cfg.KlineCacheSec,
		DefaultLimit: cfg.KlineDefaultLimit,
		MaxLimit:     cfg.KlineMaxLimit,
	})
	feed := pricefeed.New(cfg.FeedWSURL, cfg.FeedMode, cfg.FeedCoin)
	feed.Start()

	reasonSvc := reason.NewService(fetcher, cfg.FlatThresholdPct)
	roundSvc := round.NewService(st, reasonSvc, round.Config{
		DurationMin:      cfg.RoundDurationMin,
		LockWindowMin:    cfg.LockWindowMin,
		FlatThresholdPct: cfg.FlatThresholdPct,
		RoundLimit:       cfg.RoundLimit,
		JudgmentLimit:    cfg.JudgmentLimit,
		VerdictLimit:     cfg.VerdictLimit,
		ScoreEventLimit:  cfg.ScoreEventLimit,
		FeedLimit:        cfg.FeedLimit,
	})
	advancer := round.NewAdvancer(st, roundSvc, reasonSvc, feed, cfg.PriceRefreshMs, cfg.PriceStaleMs, cfg.SweepMaxRows)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.AdvanceEvery, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := advancer.Tick(ctx); err != nil {
			log.Error().Err(err).Msg("advancer tick failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Str("spec", cfg.AdvanceEvery).Msg("schedule advancer failed")
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := &server{
		st:       st,
		cfg:      cfg,
		rounds:   roundSvc,
		reason:   reasonSvc,
		advancer: advancer,
		feed:     feed,
		fetcher:  fetcher,
	}
	r := newRouter(srv)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	log.Info().
		Str("addr", cfg.HTTPAddr).
		Str("coin", cfg.FeedCoin).
		Str("intervals", strings.TrimSpace(cfg.KlineIntervals)).
		Msg("http listening")
	log.Fatal().Err(httpServer.ListenAndServe()).Msg("server stopped")
}
