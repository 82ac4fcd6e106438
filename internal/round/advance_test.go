package round_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"oracle-arena/internal/candles"
	"oracle-arena/internal/pricefeed"
	"oracle-arena/internal/reason"
	"oracle-arena/internal/round"
	"oracle-arena/internal/store"
	"oracle-arena/internal/testutil"
)

// deadFeed never connects; ticks must run off the persisted meta price.
func deadFeed() *pricefeed.Feed {
	return pricefeed.New("ws://127.0.0.1:1", "allMids", "BTC")
}

func newAdvancer(st *store.Store) (*round.Advancer, *round.Service) {
	svc := newLifecycleService(st)
	deadCandles := candles.NewFetcher(candles.FetcherOptions{InfoURL: "http://127.0.0.1:1"})
	adv := round.NewAdvancer(st, svc, reason.NewService(deadCandles, 0.2), deadFeed(), 10_000, 30_000, 50)
	return adv, svc
}

func seedMeta(t *testing.T, st *store.Store, price float64) {
	t.Helper()
	now := time.Now().UTC()
	if err := st.UpsertMeta(context.Background(), store.MetaState{CurrentPrice: &price, LastPriceAt: &now}); err != nil {
		t.Fatalf("seed meta: %v", err)
	}
}

func rewind(t *testing.T, st *store.Store, roundID, column string, by time.Duration) {
	t.Helper()
	_, err := st.Pool.Exec(context.Background(),
		`UPDATE rounds SET `+column+` = `+column+` - ($1 * interval '1 minute') WHERE round_id = $2`,
		by.Minutes(), roundID)
	if err != nil {
		t.Fatalf("rewind %s: %v", column, err)
	}
}

func TestTickStartsRoundWhenNoneLive(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	activateAgent(t, st, "oracle_a")
	seedMeta(t, st, 50000)
	adv, _ := newAdvancer(st)

	if err := adv.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	live, err := st.GetLiveRound(context.Background())
	if err != nil || live.Status != store.RoundStatusBetting {
		t.Fatalf("live after tick: %+v err=%v", live, err)
	}

	// tick is idempotent while the round is inside its lock window
	if err := adv.Tick(context.Background()); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	again, _ := st.GetLiveRound(context.Background())
	if again.RoundID != live.RoundID {
		t.Fatal("second tick replaced the live round")
	}
}

func TestTickWithoutAgentsStartsNothing(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	seedMeta(t, st, 50000)
	adv, _ := newAdvancer(st)
	if err := adv.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if _, err := st.GetLiveRound(context.Background()); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("round started without active agents")
	}
}

func TestTickCancelsEmptyRoundPastLock(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	activateAgent(t, st, "oracle_a")
	seedMeta(t, st, 50000)
	adv, _ := newAdvancer(st)

	if err := adv.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	first, _ := st.GetLiveRound(context.Background())
	rewind(t, st, first.RoundID, "start_time", 11*time.Minute)

	if err := adv.Tick(context.Background()); err != nil {
		t.Fatalf("tick past lock: %v", err)
	}
	if _, err := st.GetRound(context.Background(), first.RoundID); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("empty round survived its lock time")
	}
	// a fresh round replaces it in the same tick
	if _, err := st.GetLiveRound(context.Background()); err != nil {
		t.Fatalf("no replacement round: %v", err)
	}
}

func TestTickLocksThenSettles(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	activateAgent(t, st, "oracle_a")
	seedMeta(t, st, 50000)
	adv, _ := newAdvancer(st)

	if err := adv.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	live, _ := st.GetLiveRound(context.Background())
	insertJudgment(t, st, live.RoundID, "oracle_a", "DOWN", 40)

	rewind(t, st, live.RoundID, "start_time", 11*time.Minute)
	if err := adv.Tick(context.Background()); err != nil {
		t.Fatalf("lock tick: %v", err)
	}
	locked, _ := st.GetRound(context.Background(), live.RoundID)
	if locked.Status != store.RoundStatusLocked {
		t.Fatalf("status = %s, want locked", locked.Status)
	}

	seedMeta(t, st, 49000) // -2%: DOWN verdict
	rewind(t, st, live.RoundID, "start_time", 31*time.Minute)
	rewind(t, st, live.RoundID, "end_time", 31*time.Minute)
	if err := adv.Tick(context.Background()); err != nil {
		t.Fatalf("settle tick: %v", err)
	}
	settled, _ := st.GetRound(context.Background(), live.RoundID)
	if settled.Status != store.RoundStatusSettled {
		t.Fatalf("status = %s, want settled", settled.Status)
	}
	verdict, err := st.GetLastVerdict(context.Background())
	if err != nil || verdict.Result != "DOWN" {
		t.Fatalf("verdict = %+v err=%v", verdict, err)
	}
	agent, _ := st.GetAgentByID(context.Background(), "oracle_a")
	if agent.Score != 40 {
		t.Fatalf("score = %d, want +40 for a correct DOWN call", agent.Score)
	}
}
