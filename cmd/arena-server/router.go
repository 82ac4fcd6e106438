package main

import (
	"log/slog"
	"net/http"

	"oracle-arena/internal/candles"
	"oracle-arena/internal/config"
	"oracle-arena/internal/logging"
	"oracle-arena/internal/pricefeed"
	"oracle-arena/internal/reason"
	"oracle-arena/internal/round"
	"oracle-arena/internal/store"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v3"
)

type server struct {
	st       *store.Store
	cfg      config.ServerConfig
	rounds   *round.Service
	reason   *reason.Service
	advancer *round.Advancer
	feed     *pricefeed.Feed
	fetcher  *candles.Fetcher
}

func newRouter(s *server) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(apiLogMiddleware())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.healthHandler)
		r.Get("/summary", s.summaryHandler)
		r.Post("/advance", s.advanceHandler)
		r.Get("/klines", s.klinesHandler)
		r.Get("/reason-stats", s.reasonStatsHandler)
		r.Get("/agents/{agent_id}/reason-stats", s.agentReasonStatsHandler)
		r.Get("/diagnostics/hyperliquid", s.feedDiagHandler)

		r.Route("/v1", func(r chi.Router) {
			r.Post("/agents/register", s.registerAgentHandler)
			r.Group(func(r chi.Router) {
				r.Use(s.agentAuthMiddleware)
				r.Get("/agents/status", s.agentStatusHandler)
				r.Get("/agents/me", s.agentMeHandler)
				r.Post("/judgments", s.submitJudgmentHandler)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminAuthMiddleware)
			r.Get("/agents", s.adminAgentsHandler)
			r.Post("/agents/{agent_id}/status", s.adminSetAgentStatusHandler)
			r.Post("/advance", s.advanceHandler)
		})
	})

	r.Get("/claim/{token}", s.claimHandler)
	return r
}

func apiLogMiddleware() func(http.Handler) http.Handler {
	return httplog.RequestLogger(
		slog.New(slog.NewJSONHandler(logging.Writer(), &slog.HandlerOptions{})),
		&httplog.Options{
			Level:  slog.LevelInfo,
			Schema: httplog.Schema{ResponseStatus: "status", ResponseDuration: "duration_ms"},
			LogExtraAttrs: func(req *http.Request, _ string, _ int) []slog.Attr {
				rc := chi.RouteContext(req.Context())
				route := req.URL.Path
				if rc != nil && rc.RoutePattern() != "" {
					route = rc.RoutePattern()
				}
				return []slog.Attr{
					slog.String("request_id", chimw.GetReqID(req.Context())),
					slog.String("method", req.Method),
					slog.String("route", route),
				}
			},
		},
	)
}
