package reason

import (
	"context"
	"math"
	"time"

	"oracle-arena/internal/candles"
	"oracle-arena/internal/patterns"
	"oracle-arena/internal/store"

	"github.com/rs/zerolog/log"
)

// CandleSource provides trailing candle windows; the kline fetcher
// satisfies it.
type CandleSource interface {
	Window(ctx context.Context, interval string, endCloseMs int64, limit int) ([]candles.Kline, error)
}

type Service struct {
	candles          CandleSource
	flatThresholdPct float64
}

func NewService(src CandleSource, flatThresholdPct float64) *Service {
	return &Service{candles: src, flatThresholdPct: flatThresholdPct}
}

// SubmitEvaluation is the at-submit snapshot stored on the judgment.
type SubmitEvaluation struct {
	TCloseMs      int64
	TargetCloseMs int64
	BaseClose     float64
	PatternHolds  bool
}

// EvaluateAtSubmit aligns the analysis end to the candle grid, fetches
// the trailing window, and checks the claimed pattern against history.
func (s *Service) EvaluateAtSubmit(ctx context.Context, rule Rule, analysisEndMs int64) (*SubmitEvaluation, error) {
	intervalMs, ok := candles.PeriodMs(rule.Timeframe)
	if !ok {
		return nil, ErrUnsupportedTimeframe
	}
	aligned := AlignCloseMs(analysisEndMs, intervalMs)
	required := patterns.RequiredBars(rule.Pattern)

	bars, err := s.candles.Window(ctx, rule.Timeframe, aligned, required)
	if err != nil {
		return nil, err
	}
	if len(bars) < required {
		return nil, ErrInsufficientHistory
	}
	last := bars[len(bars)-1]
	if last.CloseTime != aligned {
		return nil, ErrMisalignment
	}
	holds := patterns.Evaluate(rule.Pattern, bars[len(bars)-required:])
	return &SubmitEvaluation{
		TCloseMs:      aligned,
		TargetCloseMs: TargetCloseMs(aligned, intervalMs, rule.HorizonBars),
		BaseClose:     last.Close,
		PatternHolds:  holds,
	}, nil
}

// Outcome classifies the realized move from base to target close.
func (s *Service) Outcome(baseClose, targetClose float64) (string, float64) {
	deltaPct := (targetClose - baseClose) / baseClose * 100
	if math.Abs(deltaPct) < s.flatThresholdPct {
		return DirectionFlat, deltaPct
	}
	if deltaPct > 0 {
		return DirectionUp, deltaPct
	}
	return DirectionDown, deltaPct
}

// SweepPending judges every horizon-reached, not-yet-evaluated judgment,
// bounded by maxRows per sweep. A missing target candle is a silent
// skip retried next sweep; any other failure is recorded on the row and
// never aborts the sweep.
func (s *Service) SweepPending(ctx context.Context, st *store.Store, maxRows int) (int, error) {
	if maxRows <= 0 {
		maxRows = 50
	}
	now := time.Now()
	rows, err := st.ListPendingReasonJudgments(ctx, now.UnixMilli(), maxRows)
	if err != nil {
		return 0, err
	}
	evaluated := 0
	for _, j := range rows {
		target, err := s.targetCandle(ctx, j.ReasonTimeframe, j.ReasonTargetCloseMs)
		if err != nil {
			if recErr := st.SetReasonEvalError(ctx, j.ID, err.Error()); recErr != nil {
				log.Error().Err(recErr).Str("judgment_id", j.ID).Msg("record sweep error failed")
			}
			continue
		}
		if target == nil {
			continue
		}
		outcome, deltaPct := s.Outcome(j.ReasonBaseClose, target.Close)
		deltaPct = roundTo(deltaPct, 6)
		correct := j.ReasonDirection == outcome
		if err := st.SetReasonOutcome(ctx, j.ID, target.Close, deltaPct, outcome, correct, time.Now()); err != nil {
			if recErr := st.SetReasonEvalError(ctx, j.ID, err.Error()); recErr != nil {
				log.Error().Err(recErr).Str("judgment_id", j.ID).Msg("record sweep error failed")
			}
			continue
		}
		evaluated++
	}
	return evaluated, nil
}

// targetCandle fetches the bar closing exactly at targetCloseMs; nil
// means the candle is not available yet.
func (s *Service) targetCandle(ctx context.Context, timeframe string, targetCloseMs int64) (*candles.Kline, error) {
	bars, err := s.candles.Window(ctx, timeframe, targetCloseMs, 2)
	if err != nil {
		return nil, err
	}
	for i := len(bars) - 1; i >= 0; i-- {
		if bars[i].CloseTime == targetCloseMs {
			return &bars[i], nil
		}
	}
	return nil, nil
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
