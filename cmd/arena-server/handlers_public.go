package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"oracle-arena/internal/candles"
	"oracle-arena/internal/reason"
	"oracle-arena/internal/store"

	"github.com/go-chi/chi/v5"
)

func (s *server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.st.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "time": time.Now().UTC()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "time": time.Now().UTC()})
}

func (s *server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := s.rounds.BuildSummary(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *server) advanceHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.advancer.Tick(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// klinesHandler proxies candle snapshots. Per-interval failures are
// reported alongside the intervals that succeeded.
func (s *server) klinesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	coin := q.Get("coin")
	if coin == "" {
		coin = coinFromSymbol(q.Get("symbol"), s.cfg.FeedCoin)
	}
	if coin != s.cfg.FeedCoin {
		writeHTTPError(w, http.StatusBadRequest, candles.ErrUnsupportedCoin.Error())
		return
	}

	intervals := strings.Split(s.cfg.KlineIntervals, ",")
	if raw := q.Get("intervals"); raw != "" {
		intervals = strings.Split(raw, ",")
	}
	for _, iv := range intervals {
		if !candles.IsSupportedInterval(iv) {
			writeHTTPError(w, http.StatusBadRequest, candles.ErrUnsupportedInterval.Error())
			return
		}
	}

	limit := s.fetcher.ClampLimit(parseIntQuery(q.Get("limit"), 0))
	endMs := parseInt64Query(q.Get("end_time"), time.Now().UnixMilli())
	startOverride := parseInt64Query(q.Get("start_time"), 0)
	rawOut := q.Get("raw") == "true" || q.Get("raw") == "1"

	out := map[string]any{}
	errs := map[string]string{}
	for _, iv := range intervals {
		ms, _ := candles.PeriodMs(iv)
		startMs := startOverride
		if startMs == 0 {
			startMs = endMs - int64(limit)*ms
		}
		bars, err := s.fetcher.Range(r.Context(), coin, iv, startMs, endMs)
		if err != nil {
			errs[iv] = err.Error()
			continue
		}
		if rawOut {
			out[iv] = rawBars(bars)
		} else {
			out[iv] = bars
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":    q.Get("symbol"),
		"coin":      coin,
		"limit":     limit,
		"intervals": out,
		"errors":    errs,
	})
}

func rawBars(bars []candles.Kline) []map[string]any {
	out := make([]map[string]any, 0, len(bars))
	for _, b := range bars {
		out = append(out, map[string]any{
			"t": b.OpenTime,
			"T": b.CloseTime,
			"o": b.Open,
			"h": b.High,
			"l": b.Low,
			"c": b.Close,
			"v": b.Volume,
			"n": b.TradesCount,
		})
	}
	return out
}

func coinFromSymbol(symbol, fallback string) string {
	if symbol == "" {
		return fallback
	}
	return strings.TrimSuffix(strings.ToUpper(symbol), "USDT")
}

func (s *server) reasonStatsHandler(w http.ResponseWriter, r *http.Request) {
	s.writeReasonStats(w, r, "")
}

func (s *server) agentReasonStatsHandler(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent_id")
	if _, err := s.st.GetAgentByID(r.Context(), agentID); err != nil {
		writeServiceError(w, err)
		return
	}
	s.writeReasonStats(w, r, agentID)
}

func (s *server) writeReasonStats(w http.ResponseWriter, r *http.Request, agentID string) {
	q := r.URL.Query()
	query := reason.StatsQuery{
		AgentID: agentID,
		Limit:   parseIntQuery(q.Get("limit"), 0),
	}
	if ms := parseInt64Query(q.Get("since"), 0); ms > 0 {
		query.Since = time.UnixMilli(ms).UTC()
	}
	if ms := parseInt64Query(q.Get("until"), 0); ms > 0 {
		query.Until = time.UnixMilli(ms).UTC()
	}
	stats, err := reason.ComputeStats(r.Context(), s.st, query)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *server) claimHandler(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		writeHTTPError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	agent, err := s.st.GetAgentByClaimToken(r.Context(), token)
	if err != nil {
		writeHTTPError(w, http.StatusNotFound, "claim_not_found")
		return
	}
	if agent.Status != store.AgentStatusActive {
		if err := s.st.MarkAgentClaimed(r.Context(), agent.ID); err != nil {
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		agent.Status = store.AgentStatusActive
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"agent_id": agent.ID,
		"status":   agent.Status,
	})
}

func (s *server) feedDiagHandler(w http.ResponseWriter, r *http.Request) {
	diag := s.feed.Diag()
	if data, err := json.Marshal(diag); err == nil {
		if err := s.st.SaveFeedDiag(r.Context(), data); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, diag)
}

func parseIntQuery(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func parseInt64Query(raw string, def int64) int64 {
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}
