// Package config reads every knob from the environment. One struct per
// concern, one Load function each.
package config

import "github.com/caarlos0/env/v11"

type ServerConfig struct {
	PostgresDSN string `env:"POSTGRES_DSN,required,notEmpty"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	AdminAPIToken string `env:"ADMIN_API_TOKEN"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	RoundDurationMin   int     `env:"ROUND_DURATION_MIN" envDefault:"30"`
	LockWindowMin      int     `env:"LOCK_WINDOW_MIN" envDefault:"10"`
	PriceRefreshMs     int64   `env:"PRICE_REFRESH_MS" envDefault:"10000"`
	PriceStaleMs       int64   `env:"PRICE_STALE_MS" envDefault:"30000"`
	SignatureWindowSec int64   `env:"SIGNATURE_WINDOW_SEC" envDefault:"300"`
	FlatThresholdPct   float64 `env:"FLAT_THRESHOLD_PCT" envDefault:"0.2"`

	FeedLimit       int `env:"FEED_LIMIT" envDefault:"200"`
	VerdictLimit    int `env:"VERDICT_LIMIT" envDefault:"200"`
	JudgmentLimit   int `env:"JUDGMENT_LIMIT" envDefault:"800"`
	RoundLimit      int `env:"ROUND_LIMIT" envDefault:"200"`
	ScoreEventLimit int `env:"SCORE_EVENT_LIMIT" envDefault:"1000"`

	FeedWSURL string `env:"FEED_WS_URL" envDefault:"wss://api.hyperliquid.xyz/ws"`
	FeedMode  string `env:"FEED_MODE" envDefault:"allMids"`
	FeedCoin  string `env:"FEED_COIN" envDefault:"BTC"`

	KlineInfoURL      string `env:"KLINE_INFO_URL" envDefault:"https://api.hyperliquid.xyz/info"`
	KlineIntervals    string `env:"KLINE_DEFAULT_INTERVALS" envDefault:"1m,5m,15m,1h"`
	KlineDefaultLimit int    `env:"KLINE_DEFAULT_LIMIT" envDefault:"200"`
	KlineMaxLimit     int    `env:"KLINE_MAX_LIMIT" envDefault:"500"`
	KlineCacheSec     int    `env:"KLINE_CACHE_SEC" envDefault:"15"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	AdvanceEvery string `env:"ADVANCE_EVERY" envDefault:"@every 5s"`
	SweepMaxRows int    `env:"SWEEP_MAX_ROWS" envDefault:"50"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}

type LogConfig struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Pretty      bool   `env:"LOG_PRETTY" envDefault:"false"`
	SampleEvery int    `env:"LOG_SAMPLE_EVERY" envDefault:"0"`
	File        string `env:"LOG_FILE"`
	MaxMB       int    `env:"LOG_MAX_MB" envDefault:"10"`
}

func LoadLog() (LogConfig, error) {
	var cfg LogConfig
	err := env.Parse(&cfg)
	return cfg, err
}

// TestConfig points DB-backed tests at a disposable database; tests
// skip when it is absent.
type TestConfig struct {
	TestPostgresDSN string `env:"TEST_POSTGRES_DSN,required,notEmpty"`
}

func LoadTest() (TestConfig, error) {
	var cfg TestConfig
	err := env.Parse(&cfg)
	return cfg, err
}
