package round

import (
	"context"
	"errors"
	"sync"
	"time"

	"oracle-arena/internal/pricefeed"
	"oracle-arena/internal/reason"
	"oracle-arena/internal/store"

	"github.com/rs/zerolog/log"
)

// Advancer is the single entry point that reconciles the meta price,
// the live round state, and the pending reason evaluations. The host
// scheduler and the /api/advance handler both call Tick; a mutex keeps
// concurrent in-process invocations serialized.
type Advancer struct {
	mu     sync.Mutex
	store  *store.Store
	rounds *Service
	reason *reason.Service
	feed   *pricefeed.Feed

	priceRefresh time.Duration
	priceStale   time.Duration
	sweepMaxRows int
}

func NewAdvancer(st *store.Store, rounds *Service, rs *reason.Service, feed *pricefeed.Feed, priceRefreshMs, priceStaleMs int64, sweepMaxRows int) *Advancer {
	return &Advancer{
		store:        st,
		rounds:       rounds,
		reason:       rs,
		feed:         feed,
		priceRefresh: time.Duration(priceRefreshMs) * time.Millisecond,
		priceStale:   time.Duration(priceStaleMs) * time.Millisecond,
		sweepMaxRows: sweepMaxRows,
	}
}

func (a *Advancer) Tick(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	meta, err := a.store.GetMeta(ctx)
	if err != nil {
		return err
	}
	a.refreshPrice(meta)

	if err := a.advanceRound(ctx, meta); err != nil {
		return err
	}
	if err := a.store.UpsertMeta(ctx, *meta); err != nil {
		return err
	}

	if _, err := a.reason.SweepPending(ctx, a.store, a.sweepMaxRows); err != nil {
		log.Error().Err(err).Msg("pending reason sweep failed")
	}
	return nil
}

// refreshPrice pulls the latest feed sample into meta, refusing stale
// readings at this boundary.
func (a *Advancer) refreshPrice(meta *store.MetaState) {
	now := time.Now().UTC()
	if meta.LastPriceAt != nil && now.Sub(*meta.LastPriceAt) < a.priceRefresh {
		return
	}
	price, updatedAt, err := a.feed.Price()
	if err != nil {
		log.Warn().Err(err).Msg("price feed has no sample")
		return
	}
	if now.Sub(updatedAt) >= a.priceStale {
		log.Warn().Time("updated_at", updatedAt).Msg("price sample stale, meta not updated")
		return
	}
	if meta.CurrentPrice != nil {
		prev := *meta.CurrentPrice
		meta.LastPrice = &prev
		if prev != 0 {
			delta := (price - prev) / prev * 100
			meta.LastDeltaPct = &delta
		}
	}
	meta.CurrentPrice = &price
	meta.LastPriceAt = &now
}

func (a *Advancer) advanceRound(ctx context.Context, meta *store.MetaState) error {
	now := time.Now().UTC()

	live, err := a.store.GetLiveRound(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if live != nil && live.Status == store.RoundStatusBetting && !now.Before(a.rounds.LockTime(live)) {
		count, err := a.store.CountJudgments(ctx, live.RoundID)
		if err != nil {
			return err
		}
		if count == 0 {
			if err := a.rounds.CancelRound(ctx, live); err != nil {
				return err
			}
			live = nil
		} else {
			if err := a.rounds.LockRound(ctx, live); err != nil {
				return err
			}
			live.Status = store.RoundStatusLocked
		}
	}
	if live != nil && live.Status == store.RoundStatusLocked && !now.Before(live.EndTime) {
		if err := a.rounds.SettleRound(ctx, live, meta); err != nil {
			return err
		}
	}

	if _, err := a.store.GetLiveRound(ctx); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := a.rounds.StartRound(ctx, meta); err != nil {
			if errors.Is(err, ErrNoActiveAgents) || errors.Is(err, ErrNoPrice) {
				log.Debug().Err(err).Msg("round not started")
				return nil
			}
			return err
		}
	}
	return nil
}
