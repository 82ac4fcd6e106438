package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"oracle-arena/internal/store"
	"oracle-arena/internal/testutil"
)

func seedAgent(t *testing.T, st *store.Store, id string) store.Agent {
	t.Helper()
	a := store.Agent{
		ID:     id,
		Name:   id,
		Status: store.AgentStatusActive,
		Secret: "sk_" + id,
	}
	if err := st.CreateAgent(context.Background(), a); err != nil {
		t.Fatalf("create agent: %v", err)
	}
	if err := st.MarkAgentClaimed(context.Background(), id); err != nil {
		t.Fatalf("claim agent: %v", err)
	}
	return a
}

func seedRound(t *testing.T, st *store.Store, roundID string, status string) store.Round {
	t.Helper()
	now := time.Now().UTC()
	r := store.Round{
		RoundID:     roundID,
		Symbol:      "BTCUSDT",
		DurationMin: 30,
		StartPrice:  50000,
		Status:      status,
		StartTime:   now,
		EndTime:     now.Add(30 * time.Minute),
	}
	if err := st.InsertRound(context.Background(), r); err != nil {
		t.Fatalf("insert round: %v", err)
	}
	return r
}

func baseJudgment(roundID, agentID string) store.Judgment {
	holds := int16(1)
	return store.Judgment{
		ID:                  store.NewID(),
		RoundID:             roundID,
		AgentID:             agentID,
		Direction:           "UP",
		Confidence:          80,
		Comment:             "test",
		Timestamp:           time.Now().UTC(),
		Intervals:           "1m,5m",
		AnalysisStartMs:     1,
		AnalysisEndMs:       2,
		ReasonRuleJSON:      []byte(`{"timeframe":"1m","pattern":"candle.doji.v1","direction":"UP","horizon_bars":3}`),
		ReasonTimeframe:     "1m",
		ReasonPattern:       "candle.doji.v1",
		ReasonDirection:     "UP",
		ReasonHorizonBars:   3,
		ReasonTCloseMs:      59_999,
		ReasonTargetCloseMs: 239_999,
		ReasonBaseClose:     50000,
		ReasonPatternHolds:  &holds,
	}
}

func TestCreateAgentConflict(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	seedAgent(t, st, "dupe")
	err := st.CreateAgent(context.Background(), store.Agent{ID: "dupe", Name: "dupe", Status: store.AgentStatusPendingClaim, Secret: "other"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestAgentClaimIsIdempotent(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	a := store.Agent{ID: "claimme", Name: "claimme", Status: store.AgentStatusPendingClaim, Secret: "sk", ClaimToken: "tok"}
	if err := st.CreateAgent(context.Background(), a); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.MarkAgentClaimed(context.Background(), "claimme"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	first, err := st.GetAgentByID(context.Background(), "claimme")
	if err != nil || first.ClaimedAt == nil || first.Status != store.AgentStatusActive {
		t.Fatalf("after claim: %+v err=%v", first, err)
	}
	if err := st.MarkAgentClaimed(context.Background(), "claimme"); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	second, _ := st.GetAgentByID(context.Background(), "claimme")
	if !second.ClaimedAt.Equal(*first.ClaimedAt) {
		t.Fatal("claimed_at changed on repeat claim")
	}
}

func TestLiveRoundSingleton(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	seedRound(t, st, "r_20260204_0900", store.RoundStatusBetting)
	if err := st.InsertRound(context.Background(), store.Round{RoundID: "r_20260204_0900", Symbol: "BTCUSDT", StartTime: time.Now(), EndTime: time.Now()}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("duplicate round id: err = %v, want ErrConflict", err)
	}
	live, err := st.GetLiveRound(context.Background())
	if err != nil || live.RoundID != "r_20260204_0900" {
		t.Fatalf("live = %+v err=%v", live, err)
	}
}

func TestReplaceJudgmentKeepsOneRowPerAgent(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	seedAgent(t, st, "oracle")
	seedRound(t, st, "r_20260204_0900", store.RoundStatusBetting)

	first := baseJudgment("r_20260204_0900", "oracle")
	if err := st.ReplaceJudgment(context.Background(), first, 800); err != nil {
		t.Fatalf("insert: %v", err)
	}
	second := baseJudgment("r_20260204_0900", "oracle")
	second.Direction = "DOWN"
	second.ReasonDirection = "DOWN"
	if err := st.ReplaceJudgment(context.Background(), second, 800); err != nil {
		t.Fatalf("replace: %v", err)
	}

	rows, err := st.ListJudgmentsByRound(context.Background(), "r_20260204_0900")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1 after resubmission", len(rows))
	}
	if rows[0].ID != second.ID || rows[0].Direction != "DOWN" {
		t.Fatalf("surviving row = %+v, want the second submission", rows[0])
	}
}

func TestPendingReasonScan(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	seedAgent(t, st, "oracle")
	seedRound(t, st, "r_20260204_0900", store.RoundStatusBetting)

	due := baseJudgment("r_20260204_0900", "oracle")
	due.ReasonTargetCloseMs = 1000
	if err := st.ReplaceJudgment(context.Background(), due, 800); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rows, err := st.ListPendingReasonJudgments(context.Background(), 2000, 50)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("pending = %d, want 1", len(rows))
	}

	if err := st.SetReasonOutcome(context.Background(), due.ID, 50100, 0.2, "UP", true, time.Now()); err != nil {
		t.Fatalf("set outcome: %v", err)
	}
	rows, err = st.ListPendingReasonJudgments(context.Background(), 2000, 50)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("pending after evaluation = %d, want 0", len(rows))
	}
}

func TestApplySettlementIsAtomicAndScores(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	seedAgent(t, st, "oracle")
	seedRound(t, st, "r_20260204_0900", store.RoundStatusLocked)

	now := time.Now().UTC()
	verdict := store.Verdict{ID: store.NewID(), RoundID: "r_20260204_0900", Result: "UP", DeltaPct: 0.4, Timestamp: now}
	events := []store.ScoreEvent{{
		ID: store.NewID(), RoundID: "r_20260204_0900", AgentID: "oracle",
		Correct: true, Confidence: 80, ScoreChange: 80, Reason: "Correct", Timestamp: now,
	}}
	cards := []store.FlipCard{{
		ID: store.NewID(), RoundID: "r_20260204_0900", AgentID: "oracle", AgentName: "oracle",
		Direction: "UP", Confidence: 80, Result: "WIN", ScoreChange: 80, Title: "t", Text: "x", Timestamp: now,
	}}
	err := st.ApplySettlement(context.Background(), "r_20260204_0900", 50200, verdict, events, cards, store.SettlementLimits{Verdicts: 200, ScoreEvents: 1000, FlipCards: 200})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	r, err := st.GetRound(context.Background(), "r_20260204_0900")
	if err != nil || r.Status != store.RoundStatusSettled || r.EndPrice == nil || *r.EndPrice != 50200 {
		t.Fatalf("round after settle: %+v err=%v", r, err)
	}
	agent, _ := st.GetAgentByID(context.Background(), "oracle")
	if agent.Score != 80 {
		t.Fatalf("score = %d, want 80", agent.Score)
	}
	sum, _ := st.SumScoreEvents(context.Background(), "oracle")
	if sum != agent.Score {
		t.Fatalf("score %d != score event sum %d", agent.Score, sum)
	}
	card, err := st.GetFlipCard(context.Background(), "r_20260204_0900", "oracle")
	if err != nil || card.Result != "WIN" {
		t.Fatalf("card = %+v err=%v", card, err)
	}
	if _, err := st.GetLiveRound(context.Background()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("settled round still live: %v", err)
	}
}

func TestCancelRoundRemovesJudgments(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	seedAgent(t, st, "oracle")
	seedRound(t, st, "r_20260204_0900", store.RoundStatusBetting)
	if err := st.ReplaceJudgment(context.Background(), baseJudgment("r_20260204_0900", "oracle"), 800); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := st.CancelRound(context.Background(), "r_20260204_0900"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := st.GetRound(context.Background(), "r_20260204_0900"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("round survived cancel: %v", err)
	}
	count, _ := st.CountJudgments(context.Background(), "r_20260204_0900")
	if count != 0 {
		t.Fatalf("judgments survived cancel: %d", count)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	empty, err := st.GetMeta(context.Background())
	if err != nil || empty.CurrentPrice != nil {
		t.Fatalf("empty meta: %+v err=%v", empty, err)
	}
	price := 50123.45
	at := time.Now().UTC().Truncate(time.Millisecond)
	if err := st.UpsertMeta(context.Background(), store.MetaState{CurrentPrice: &price, LastPriceAt: &at}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := st.GetMeta(context.Background())
	if err != nil || got.CurrentPrice == nil || *got.CurrentPrice != price {
		t.Fatalf("meta after upsert: %+v err=%v", got, err)
	}
	if err := st.SaveFeedDiag(context.Background(), []byte(`{"state":"connected"}`)); err != nil {
		t.Fatalf("save diag: %v", err)
	}
	// diag write must not clobber prices
	got, _ = st.GetMeta(context.Background())
	if got.CurrentPrice == nil || *got.CurrentPrice != price {
		t.Fatalf("diag write clobbered meta: %+v", got)
	}
}

func TestTrimRounds(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	base := time.Date(2026, 2, 4, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		start := base.Add(time.Duration(i) * time.Hour)
		r := store.Round{
			RoundID: "r_" + start.Format("20060102_1504"), Symbol: "BTCUSDT",
			DurationMin: 30, StartPrice: 50000, Status: store.RoundStatusSettled,
			StartTime: start, EndTime: start.Add(30 * time.Minute),
		}
		if err := st.InsertRound(context.Background(), r); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if err := st.TrimRounds(context.Background(), 2); err != nil {
		t.Fatalf("trim: %v", err)
	}
	var count int
	if err := st.Pool.QueryRow(context.Background(), `SELECT COUNT(1) FROM rounds`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("rounds after trim = %d, want 2", count)
	}
	// the newest round must survive
	if _, err := st.GetRound(context.Background(), "r_20260204_1300"); err != nil {
		t.Fatalf("newest round trimmed: %v", err)
	}
}
