package round

import (
	"context"
	"errors"
	"time"

	"oracle-arena/internal/store"
)

const (
	feedSize          = 30
	recentEventWindow = 5
	highConfThreshold = 80
)

type SummaryJudgment struct {
	AgentID    string    `json:"agent_id"`
	Direction  string    `json:"direction"`
	Confidence int       `json:"confidence"`
	Comment    string    `json:"comment"`
	Timestamp  time.Time `json:"timestamp"`
}

type SummaryRound struct {
	RoundID     string            `json:"round_id"`
	Symbol      string            `json:"symbol"`
	Status      string            `json:"status"`
	StartPrice  float64           `json:"start_price"`
	StartTime   time.Time         `json:"start_time"`
	LockTime    time.Time         `json:"lock_time"`
	EndTime     time.Time         `json:"end_time"`
	CountdownMs int64             `json:"countdown_ms"`
	Judgments   []SummaryJudgment `json:"judgments"`
}

type SummaryVerdict struct {
	RoundID   string    `json:"round_id"`
	Result    string    `json:"result"`
	DeltaPct  float64   `json:"delta_pct"`
	Timestamp time.Time `json:"timestamp"`
}

type SummaryCard struct {
	RoundID     string    `json:"round_id"`
	AgentID     string    `json:"agent_id"`
	AgentName   string    `json:"agent_name"`
	Direction   string    `json:"direction"`
	Confidence  int       `json:"confidence"`
	Result      string    `json:"result"`
	ScoreChange int64     `json:"score_change"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
}

type SummaryRoundResult struct {
	RoundID     string `json:"round_id"`
	Correct     bool   `json:"correct"`
	ScoreChange int64  `json:"score_change"`
}

type SummaryAgent struct {
	ID                     string               `json:"id"`
	Name                   string               `json:"name"`
	Persona                string               `json:"persona,omitempty"`
	Score                  int64                `json:"score"`
	RecentRounds           []SummaryRoundResult `json:"recent_rounds"`
	RecentHighConfFailures int                  `json:"recent_high_conf_failures"`
}

type Summary struct {
	ServerTime  time.Time       `json:"server_time"`
	Round       *SummaryRound   `json:"round"`
	LastVerdict *SummaryVerdict `json:"last_verdict"`
	Highlight   *SummaryCard    `json:"highlight"`
	Agents      []SummaryAgent  `json:"agents"`
	Feed        []SummaryCard   `json:"feed"`
}

// BuildSummary assembles the polling snapshot: the live round with its
// judgments and countdown, the last verdict with its highlight card, the
// leaderboard, and the recent flip-card feed.
func (s *Service) BuildSummary(ctx context.Context) (*Summary, error) {
	now := time.Now().UTC()
	out := &Summary{ServerTime: now}

	live, err := s.store.GetLiveRound(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if live != nil {
		judgments, err := s.store.ListJudgmentsByRound(ctx, live.RoundID)
		if err != nil {
			return nil, err
		}
		sj := make([]SummaryJudgment, 0, len(judgments))
		for _, j := range judgments {
			sj = append(sj, SummaryJudgment{
				AgentID:    j.AgentID,
				Direction:  j.Direction,
				Confidence: j.Confidence,
				Comment:    j.Comment,
				Timestamp:  j.Timestamp,
			})
		}
		countdown := live.EndTime.Sub(now).Milliseconds()
		if countdown < 0 {
			countdown = 0
		}
		out.Round = &SummaryRound{
			RoundID:     live.RoundID,
			Symbol:      live.Symbol,
			Status:      live.Status,
			StartPrice:  live.StartPrice,
			StartTime:   live.StartTime,
			LockTime:    s.LockTime(live),
			EndTime:     live.EndTime,
			CountdownMs: countdown,
			Judgments:   sj,
		}
	}

	verdict, err := s.store.GetLastVerdict(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if verdict != nil {
		out.LastVerdict = &SummaryVerdict{
			RoundID:   verdict.RoundID,
			Result:    verdict.Result,
			DeltaPct:  verdict.DeltaPct,
			Timestamp: verdict.Timestamp,
		}
		highlight, err := s.buildHighlight(ctx, verdict)
		if err != nil {
			return nil, err
		}
		out.Highlight = highlight
	}

	agents, err := s.store.ListAgentsByScore(ctx)
	if err != nil {
		return nil, err
	}
	out.Agents = make([]SummaryAgent, 0, len(agents))
	for _, a := range agents {
		events, err := s.store.ListScoreEventsByAgent(ctx, a.ID, recentEventWindow)
		if err != nil {
			return nil, err
		}
		recent := make([]SummaryRoundResult, 0, len(events))
		failures := 0
		for _, ev := range events {
			recent = append(recent, SummaryRoundResult{
				RoundID:     ev.RoundID,
				Correct:     ev.Correct,
				ScoreChange: ev.ScoreChange,
			})
			if !ev.Correct && ev.Confidence >= highConfThreshold {
				failures++
			}
		}
		out.Agents = append(out.Agents, SummaryAgent{
			ID:                     a.ID,
			Name:                   a.Name,
			Persona:                a.Persona,
			Score:                  a.Score,
			RecentRounds:           recent,
			RecentHighConfFailures: failures,
		})
	}

	feed, err := s.buildFeed(ctx)
	if err != nil {
		return nil, err
	}
	out.Feed = feed
	return out, nil
}

// buildHighlight prefers the persisted flip card for the top-confidence
// judgment of the last verdict; it reconstructs one from the scoring
// rule only when the card row is gone (retention).
func (s *Service) buildHighlight(ctx context.Context, verdict *store.Verdict) (*SummaryCard, error) {
	top, err := s.store.GetTopConfidenceJudgment(ctx, verdict.RoundID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	card, err := s.store.GetFlipCard(ctx, verdict.RoundID, top.AgentID)
	if err == nil {
		sc := toSummaryCard(*card)
		return &sc, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	agent, err := s.store.GetAgentByID(ctx, top.AgentID)
	if err != nil {
		return nil, err
	}
	correct := top.Direction == verdict.Result
	change := ScoreChange(correct, top.Confidence)
	rebuilt := buildFlipCard(verdict.RoundID, agent.Name, top, verdict.Result, verdict.DeltaPct, correct, change, verdict.Timestamp)
	sc := toSummaryCard(rebuilt)
	return &sc, nil
}

func (s *Service) buildFeed(ctx context.Context) ([]SummaryCard, error) {
	cards, err := s.store.ListHighConfFailCards(ctx, highConfThreshold, feedSize)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		cards, err = s.store.ListFlipCards(ctx, feedSize)
		if err != nil {
			return nil, err
		}
	}
	out := make([]SummaryCard, 0, len(cards))
	for _, c := range cards {
		out = append(out, toSummaryCard(c))
	}
	return out, nil
}

func toSummaryCard(c store.FlipCard) SummaryCard {
	return SummaryCard{
		RoundID:     c.RoundID,
		AgentID:     c.AgentID,
		AgentName:   c.AgentName,
		Direction:   c.Direction,
		Confidence:  c.Confidence,
		Result:      c.Result,
		ScoreChange: c.ScoreChange,
		Title:       c.Title,
		Text:        c.Text,
		Timestamp:   c.Timestamp,
	}
}
