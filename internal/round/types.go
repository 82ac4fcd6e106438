package round

import (
	"strings"

	"oracle-arena/internal/candles"
	"oracle-arena/internal/reason"
)

const Symbol = "BTCUSDT"

const (
	minComment = 1
	maxComment = 140
)

// JudgmentPayload is the untyped submission body after JSON decoding.
// Validate turns it into something the core may touch.
type JudgmentPayload struct {
	RoundID           string      `json:"round_id"`
	Direction         string      `json:"direction"`
	Confidence        int         `json:"confidence"`
	Comment           string      `json:"comment"`
	Intervals         []string    `json:"intervals"`
	AnalysisStartTime int64       `json:"analysis_start_time"`
	AnalysisEndTime   int64       `json:"analysis_end_time"`
	ReasonRule        reason.Rule `json:"reason_rule"`
}

// Validate normalizes the payload in place and reports the first
// violation.
func (p *JudgmentPayload) Validate() error {
	if p.RoundID == "" {
		return invalid("round_id", "required")
	}
	if !reason.IsDirection(p.Direction) {
		return invalid("direction", "invalid")
	}
	if p.Confidence < 0 || p.Confidence > 100 {
		return invalid("confidence", "out_of_range")
	}
	p.Comment = strings.TrimSpace(p.Comment)
	if len(p.Comment) < minComment || len(p.Comment) > maxComment {
		return invalid("comment", "length")
	}
	if len(p.Intervals) == 0 {
		return invalid("intervals", "required")
	}
	for _, iv := range p.Intervals {
		if !candles.IsSupportedInterval(iv) {
			return invalid("intervals", "unsupported_interval")
		}
	}
	if p.AnalysisStartTime >= p.AnalysisEndTime {
		return invalid("analysis_end_time", "not_after_start")
	}
	return nil
}

// SubmitResult echoes the at-submit reason evaluation back to the agent.
type SubmitResult struct {
	TCloseMs      int64 `json:"t_close_ms"`
	TargetCloseMs int64 `json:"target_close_ms"`
	PatternHolds  bool  `json:"pattern_holds"`
}
