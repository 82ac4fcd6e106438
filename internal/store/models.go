package store

import "time"

type Agent struct {
	ID               string
	Name             string
	Persona          string
	Prompt           string
	Score            int64
	Status           string
	Secret           string
	ClaimToken       string
	VerificationCode string
	ClaimedAt        *time.Time
	CreatedAt        time.Time
}

const (
	AgentStatusPendingClaim = "pending_claim"
	AgentStatusActive       = "active"
	AgentStatusInactive     = "inactive"
)

type Round struct {
	RoundID     string
	Symbol      string
	DurationMin int
	StartPrice  float64
	EndPrice    *float64
	Status      string
	StartTime   time.Time
	EndTime     time.Time
}

const (
	RoundStatusBetting = "betting"
	RoundStatusLocked  = "locked"
	RoundStatusSettled = "settled"
)

type Judgment struct {
	ID              string
	RoundID         string
	AgentID         string
	Direction       string
	Confidence      int
	Comment         string
	Timestamp       time.Time
	Intervals       string
	AnalysisStartMs int64
	AnalysisEndMs   int64

	ReasonRuleJSON    []byte
	ReasonTimeframe   string
	ReasonPattern     string
	ReasonDirection   string
	ReasonHorizonBars int

	ReasonTCloseMs      int64
	ReasonTargetCloseMs int64
	ReasonBaseClose     float64
	ReasonPatternHolds  *int16

	ReasonTargetClose *float64
	ReasonDeltaPct    *float64
	ReasonOutcome     *string
	ReasonCorrect     *int16
	ReasonEvaluatedAt *time.Time
	ReasonEvalError   *string
}

type Verdict struct {
	ID        string
	RoundID   string
	Result    string
	DeltaPct  float64
	Timestamp time.Time
}

type ScoreEvent struct {
	ID          string
	RoundID     string
	AgentID     string
	Correct     bool
	Confidence  int
	ScoreChange int64
	Reason      string
	Timestamp   time.Time
}

type FlipCard struct {
	ID          string
	RoundID     string
	AgentID     string
	AgentName   string
	Direction   string
	Confidence  int
	Result      string
	ScoreChange int64
	Title       string
	Text        string
	Timestamp   time.Time
}

type MetaState struct {
	LastPrice    *float64
	CurrentPrice *float64
	LastDeltaPct *float64
	LastPriceAt  *time.Time
}
