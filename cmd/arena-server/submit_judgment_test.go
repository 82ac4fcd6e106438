package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"oracle-arena/internal/candles"
	"oracle-arena/internal/store"
)

// candleUpstream answers candleSnapshot requests with a bullish
// engulfing pair at the end of every window.
func candleUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Req struct {
				Interval  string `json:"interval"`
				StartTime int64  `json:"startTime"`
				EndTime   int64  `json:"endTime"`
			} `json:"req"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		ms, _ := candles.PeriodMs(req.Req.Interval)
		opens := []int64{}
		for open := req.Req.StartTime - req.Req.StartTime%ms; open+ms-1 <= req.Req.EndTime; open += ms {
			opens = append(opens, open)
		}
		out := make([]map[string]any, 0, len(opens))
		for i, open := range opens {
			o, h, l, c := "10", "10", "7", "8"
			if i == len(opens)-1 {
				o, h, l, c = "7", "12", "6", "11"
			}
			out = append(out, map[string]any{
				"t": open, "T": open + ms - 1,
				"o": o, "h": h, "l": l, "c": c, "v": "1", "n": 1,
			})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
}

func registerActiveAgent(t *testing.T, h http.Handler, name string) string {
	t.Helper()
	_, body := doJSON(t, h, http.MethodPost, "/api/v1/agents/register", fmt.Sprintf(`{"name":%q}`, name), nil)
	apiKey, _ := body["api_key"].(string)
	claimURL, _ := body["claim_url"].(string)
	token := claimURL[len(claimURL)-32:]
	rec, _ := doJSON(t, h, http.MethodGet, "/claim/"+token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim: %d", rec.Code)
	}
	return apiKey
}

func startBettingRound(t *testing.T, st *store.Store) store.Round {
	t.Helper()
	now := time.Now().UTC()
	r := store.Round{
		RoundID: "r_" + now.Format("20060102_1504"), Symbol: "BTCUSDT",
		DurationMin: 30, StartPrice: 50000, Status: store.RoundStatusBetting,
		StartTime: now, EndTime: now.Add(30 * time.Minute),
	}
	if err := st.InsertRound(context.Background(), r); err != nil {
		t.Fatalf("insert round: %v", err)
	}
	return r
}

func judgmentBody(roundID string) string {
	nowMs := time.Now().UnixMilli()
	return fmt.Sprintf(`{
		"round_id": %q,
		"direction": "UP",
		"confidence": 80,
		"comment": "engulfing on the close",
		"intervals": ["1m","5m"],
		"analysis_start_time": %d,
		"analysis_end_time": %d,
		"reason_rule": {"timeframe":"1m","pattern":"candle.bullish_engulfing.v1","direction":"UP","horizon_bars":5}
	}`, roundID, nowMs-3_600_000, nowMs)
}

func TestSubmitJudgmentFlow(t *testing.T) {
	upstream := candleUpstream(t)
	defer upstream.Close()
	h, st, cleanup := newTestServerWithUpstream(t, upstream.URL)
	defer cleanup()

	apiKey := registerActiveAgent(t, h, "Submitter")
	r := startBettingRound(t, st)
	auth := map[string]string{"Authorization": "Bearer " + apiKey}

	rec, body := doJSON(t, h, http.MethodPost, "/api/v1/judgments", judgmentBody(r.RoundID), auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit = %d: %s", rec.Code, rec.Body.String())
	}
	reasonOut, _ := body["reason"].(map[string]any)
	if reasonOut == nil {
		t.Fatalf("no reason echo: %+v", body)
	}
	if holds, _ := reasonOut["pattern_holds"].(bool); !holds {
		t.Fatalf("pattern_holds = %v, want true for the engulfing tail", reasonOut["pattern_holds"])
	}
	tClose := int64(reasonOut["t_close_ms"].(float64))
	target := int64(reasonOut["target_close_ms"].(float64))
	if (tClose+1)%60_000 != 0 {
		t.Fatalf("t_close not aligned: %d", tClose)
	}
	if target != tClose+5*60_000 {
		t.Fatalf("target = %d, want t_close + 5 bars", target)
	}

	rows, err := st.ListJudgmentsByRound(context.Background(), r.RoundID)
	if err != nil || len(rows) != 1 {
		t.Fatalf("stored rows = %d err=%v", len(rows), err)
	}
	j := rows[0]
	if j.ReasonPattern != "candle.bullish_engulfing.v1" || j.ReasonTCloseMs != tClose {
		t.Fatalf("stored judgment = %+v", j)
	}
	if j.ReasonBaseClose != 11 {
		t.Fatalf("base close = %f, want the aligned bar close", j.ReasonBaseClose)
	}

	// resubmission replaces, not duplicates
	rec, _ = doJSON(t, h, http.MethodPost, "/api/v1/judgments", judgmentBody(r.RoundID), auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("resubmit = %d", rec.Code)
	}
	rows, _ = st.ListJudgmentsByRound(context.Background(), r.RoundID)
	if len(rows) != 1 {
		t.Fatalf("rows after resubmit = %d, want 1", len(rows))
	}
}

func TestSubmitJudgmentRejections(t *testing.T) {
	upstream := candleUpstream(t)
	defer upstream.Close()
	h, st, cleanup := newTestServerWithUpstream(t, upstream.URL)
	defer cleanup()
	apiKey := registerActiveAgent(t, h, "Rejected")
	auth := map[string]string{"Authorization": "Bearer " + apiKey}

	// unknown round
	rec, _ := doJSON(t, h, http.MethodPost, "/api/v1/judgments", judgmentBody("r_19990101_0000"), auth)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown round = %d", rec.Code)
	}

	// locked round
	r := startBettingRound(t, st)
	if err := st.LockRound(context.Background(), r.RoundID); err != nil {
		t.Fatalf("lock: %v", err)
	}
	rec, _ = doJSON(t, h, http.MethodPost, "/api/v1/judgments", judgmentBody(r.RoundID), auth)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("locked round submit = %d, want 400", rec.Code)
	}

	// direction mismatch between judgment and reason rule
	if _, err := st.Pool.Exec(context.Background(), `UPDATE rounds SET status = 'betting' WHERE round_id = $1`, r.RoundID); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	mismatch := strings.Replace(judgmentBody(r.RoundID), `"direction": "UP"`, `"direction": "DOWN"`, 1)
	rec, _ = doJSON(t, h, http.MethodPost, "/api/v1/judgments", mismatch, auth)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("direction mismatch = %d, want 400", rec.Code)
	}
}
