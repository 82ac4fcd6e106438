// Package round drives the prediction tournament lifecycle: rounds
// start, lock, settle or get cancelled; settled rounds score every
// judgment and emit the derived feed artifacts.
package round

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"oracle-arena/internal/reason"
	"oracle-arena/internal/store"

	"github.com/rs/zerolog/log"
)

const (
	ScoreReasonCorrect = "Correct"
	ScoreReasonFailure = "High confidence failure"
)

type Config struct {
	DurationMin      int
	LockWindowMin    int
	FlatThresholdPct float64

	RoundLimit      int
	JudgmentLimit   int
	VerdictLimit    int
	ScoreEventLimit int
	FeedLimit       int
}

type Service struct {
	store  *store.Store
	reason *reason.Service
	cfg    Config
}

func NewService(st *store.Store, rs *reason.Service, cfg Config) *Service {
	return &Service{store: st, reason: rs, cfg: cfg}
}

// RoundIDFor formats the canonical round ID from the round's UTC start.
func RoundIDFor(start time.Time) string {
	return "r_" + start.UTC().Format("20060102_1504")
}

// LockTime is the instant a betting round stops accepting submissions.
func (s *Service) LockTime(r *store.Round) time.Time {
	return r.StartTime.Add(time.Duration(s.cfg.LockWindowMin) * time.Minute)
}

// ScoreChange is the canonical scoring rule: a win pays the stated
// confidence, a loss costs one and a half times it.
func ScoreChange(correct bool, confidence int) int64 {
	if correct {
		return int64(confidence)
	}
	return -int64(math.Round(float64(confidence) * 1.5))
}

// Outcome classifies a settled round's move using the flat threshold.
func (s *Service) Outcome(deltaPct float64) string {
	if math.Abs(deltaPct) < s.cfg.FlatThresholdPct {
		return reason.DirectionFlat
	}
	if deltaPct > 0 {
		return reason.DirectionUp
	}
	return reason.DirectionDown
}

// StartRound opens a new betting round from the current meta price. It
// is a no-op while a non-settled round exists, and refuses to start
// without at least one claimable target: an active agent with a secret.
func (s *Service) StartRound(ctx context.Context, meta *store.MetaState) error {
	if _, err := s.store.GetLiveRound(ctx); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if meta.CurrentPrice == nil {
		return ErrNoPrice
	}
	active, err := s.store.CountActiveAgents(ctx)
	if err != nil {
		return err
	}
	if active == 0 {
		return ErrNoActiveAgents
	}

	now := time.Now().UTC()
	r := store.Round{
		RoundID:     RoundIDFor(now),
		Symbol:      Symbol,
		DurationMin: s.cfg.DurationMin,
		StartPrice:  roundTo(*meta.CurrentPrice, 2),
		Status:      store.RoundStatusBetting,
		StartTime:   now,
		EndTime:     now.Add(time.Duration(s.cfg.DurationMin) * time.Minute),
	}
	if err := s.store.InsertRound(ctx, r); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// another process won the race
			return nil
		}
		return err
	}
	log.Info().Str("round_id", r.RoundID).Float64("start_price", r.StartPrice).Msg("round started")
	return s.store.TrimRounds(ctx, s.cfg.RoundLimit)
}

// LockRound transitions betting → locked.
func (s *Service) LockRound(ctx context.Context, r *store.Round) error {
	if err := s.store.LockRound(ctx, r.RoundID); err != nil {
		return err
	}
	log.Info().Str("round_id", r.RoundID).Msg("round locked")
	return nil
}

// CancelRound deletes an empty round so a fresh one can start.
func (s *Service) CancelRound(ctx context.Context, r *store.Round) error {
	if err := s.store.CancelRound(ctx, r.RoundID); err != nil {
		return err
	}
	log.Info().Str("round_id", r.RoundID).Msg("round cancelled, no judgments")
	return nil
}

// SettleRound computes the verdict, scores every judgment, and writes
// the verdict, score events, score deltas, and flip cards as one atomic
// batch. Idempotent on an already settled round.
func (s *Service) SettleRound(ctx context.Context, r *store.Round, meta *store.MetaState) error {
	if r.Status == store.RoundStatusSettled {
		return nil
	}
	if meta.CurrentPrice == nil {
		return ErrNoPrice
	}
	endPrice := roundTo(*meta.CurrentPrice, 2)
	deltaPct := roundTo((endPrice-r.StartPrice)/r.StartPrice*100, 1)
	result := s.Outcome(deltaPct)
	now := time.Now().UTC()

	verdict := store.Verdict{
		ID:        store.NewID(),
		RoundID:   r.RoundID,
		Result:    result,
		DeltaPct:  deltaPct,
		Timestamp: now,
	}

	judgments, err := s.store.ListJudgmentsByRound(ctx, r.RoundID)
	if err != nil {
		return err
	}
	events := make([]store.ScoreEvent, 0, len(judgments))
	cards := make([]store.FlipCard, 0, len(judgments))
	for _, j := range judgments {
		agent, err := s.store.GetAgentByID(ctx, j.AgentID)
		if err != nil {
			return err
		}
		correct := j.Direction == result
		change := ScoreChange(correct, j.Confidence)
		scoreReason := ScoreReasonCorrect
		if !correct {
			scoreReason = ScoreReasonFailure
		}
		events = append(events, store.ScoreEvent{
			ID:          store.NewID(),
			RoundID:     r.RoundID,
			AgentID:     j.AgentID,
			Correct:     correct,
			Confidence:  j.Confidence,
			ScoreChange: change,
			Reason:      scoreReason,
			Timestamp:   now,
		})
		cards = append(cards, buildFlipCard(r.RoundID, agent.Name, &j, result, deltaPct, correct, change, now))
	}

	err = s.store.ApplySettlement(ctx, r.RoundID, endPrice, verdict, events, cards, store.SettlementLimits{
		Verdicts:    s.cfg.VerdictLimit,
		ScoreEvents: s.cfg.ScoreEventLimit,
		FlipCards:   s.cfg.FeedLimit,
	})
	if err != nil {
		return err
	}
	log.Info().
		Str("round_id", r.RoundID).
		Str("result", result).
		Float64("delta_pct", deltaPct).
		Int("judgments", len(judgments)).
		Msg("round settled")
	return nil
}

func buildFlipCard(roundID, agentName string, j *store.Judgment, result string, deltaPct float64, correct bool, change int64, now time.Time) store.FlipCard {
	cardResult := "FAIL"
	title := fmt.Sprintf("%s missed (%d)", agentName, change)
	if correct {
		cardResult = "WIN"
		title = fmt.Sprintf("%s nailed it (+%d)", agentName, change)
	}
	text := fmt.Sprintf("%s called %s at %d%% — %s closed %s (%+.1f%%)",
		agentName, j.Direction, j.Confidence, Symbol, result, deltaPct)
	return store.FlipCard{
		ID:          store.NewID(),
		RoundID:     roundID,
		AgentID:     j.AgentID,
		AgentName:   agentName,
		Direction:   j.Direction,
		Confidence:  j.Confidence,
		Result:      cardResult,
		ScoreChange: change,
		Title:       title,
		Text:        text,
		Timestamp:   now,
	}
}

// SubmitJudgment runs the full submission flow: payload validation,
// reason rule normalization, round state checks, the at-submit pattern
// evaluation, and the replace-previous-row write.
func (s *Service) SubmitJudgment(ctx context.Context, agentID string, payload JudgmentPayload) (*SubmitResult, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	rule, err := reason.Normalize(payload.ReasonRule, payload.Intervals, payload.Direction)
	if err != nil {
		return nil, err
	}

	r, err := s.store.GetRound(ctx, payload.RoundID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRoundNotFound
		}
		return nil, err
	}
	if r.Status != store.RoundStatusBetting {
		return nil, ErrRoundNotBetting
	}
	if !time.Now().Before(s.LockTime(r)) {
		return nil, ErrRoundLocked
	}

	eval, err := s.reason.EvaluateAtSubmit(ctx, rule, payload.AnalysisEndTime)
	if err != nil {
		return nil, err
	}

	ruleJSON, err := json.Marshal(rule)
	if err != nil {
		return nil, err
	}
	holds := int16(0)
	if eval.PatternHolds {
		holds = 1
	}
	j := store.Judgment{
		ID:                  store.NewID(),
		RoundID:             r.RoundID,
		AgentID:             agentID,
		Direction:           payload.Direction,
		Confidence:          payload.Confidence,
		Comment:             payload.Comment,
		Timestamp:           time.Now().UTC(),
		Intervals:           joinIntervals(payload.Intervals),
		AnalysisStartMs:     payload.AnalysisStartTime,
		AnalysisEndMs:       payload.AnalysisEndTime,
		ReasonRuleJSON:      ruleJSON,
		ReasonTimeframe:     rule.Timeframe,
		ReasonPattern:       rule.Pattern,
		ReasonDirection:     rule.Direction,
		ReasonHorizonBars:   rule.HorizonBars,
		ReasonTCloseMs:      eval.TCloseMs,
		ReasonTargetCloseMs: eval.TargetCloseMs,
		ReasonBaseClose:     eval.BaseClose,
		ReasonPatternHolds:  &holds,
	}
	if err := s.store.ReplaceJudgment(ctx, j, s.cfg.JudgmentLimit); err != nil {
		return nil, err
	}
	return &SubmitResult{
		TCloseMs:      eval.TCloseMs,
		TargetCloseMs: eval.TargetCloseMs,
		PatternHolds:  eval.PatternHolds,
	}, nil
}

func joinIntervals(intervals []string) string {
	return strings.Join(intervals, ",")
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
