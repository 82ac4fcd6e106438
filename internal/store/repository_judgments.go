package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

const judgmentColumns = `id, round_id, agent_id, direction, confidence, comment, ts, intervals,
	analysis_start_ms, analysis_end_ms,
	reason_rule, reason_timeframe, reason_pattern, reason_direction, reason_horizon_bars,
	reason_t_close_ms, reason_target_close_ms, reason_base_close, reason_pattern_holds,
	reason_target_close, reason_delta_pct, reason_outcome, reason_correct, reason_evaluated_at, reason_eval_error`

func scanJudgment(row pgx.Row) (*Judgment, error) {
	var j Judgment
	err := row.Scan(
		&j.ID, &j.RoundID, &j.AgentID, &j.Direction, &j.Confidence, &j.Comment, &j.Timestamp, &j.Intervals,
		&j.AnalysisStartMs, &j.AnalysisEndMs,
		&j.ReasonRuleJSON, &j.ReasonTimeframe, &j.ReasonPattern, &j.ReasonDirection, &j.ReasonHorizonBars,
		&j.ReasonTCloseMs, &j.ReasonTargetCloseMs, &j.ReasonBaseClose, &j.ReasonPatternHolds,
		&j.ReasonTargetClose, &j.ReasonDeltaPct, &j.ReasonOutcome, &j.ReasonCorrect, &j.ReasonEvaluatedAt, &j.ReasonEvalError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// ReplaceJudgment deletes any prior row for (round, agent) and inserts
// the new one in a single batched transaction, then trims retention.
func (s *Store) ReplaceJudgment(ctx context.Context, j Judgment, keep int) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM judgments WHERE round_id = $1 AND agent_id = $2`, j.RoundID, j.AgentID)
	batch.Queue(`
		INSERT INTO judgments (id, round_id, agent_id, direction, confidence, comment, ts, intervals,
			analysis_start_ms, analysis_end_ms,
			reason_rule, reason_timeframe, reason_pattern, reason_direction, reason_horizon_bars,
			reason_t_close_ms, reason_target_close_ms, reason_base_close, reason_pattern_holds)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		j.ID, j.RoundID, j.AgentID, j.Direction, j.Confidence, j.Comment, j.Timestamp, j.Intervals,
		j.AnalysisStartMs, j.AnalysisEndMs,
		j.ReasonRuleJSON, j.ReasonTimeframe, j.ReasonPattern, j.ReasonDirection, j.ReasonHorizonBars,
		j.ReasonTCloseMs, j.ReasonTargetCloseMs, j.ReasonBaseClose, j.ReasonPatternHolds)
	if keep > 0 {
		batch.Queue(`
			DELETE FROM judgments WHERE id NOT IN (
				SELECT id FROM judgments ORDER BY ts DESC LIMIT $1
			)`, keep)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) CountJudgments(ctx context.Context, roundID string) (int, error) {
	var c int
	err := s.Pool.QueryRow(ctx, `SELECT COUNT(1) FROM judgments WHERE round_id = $1`, roundID).Scan(&c)
	return c, err
}

func (s *Store) ListJudgmentsByRound(ctx context.Context, roundID string) ([]Judgment, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+judgmentColumns+` FROM judgments WHERE round_id = $1 ORDER BY ts ASC`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJudgments(rows)
}

// ListPendingReasonJudgments returns rows whose reason horizon has been
// reached but not yet judged, oldest target first, bounded.
func (s *Store) ListPendingReasonJudgments(ctx context.Context, nowMs int64, maxRows int) ([]Judgment, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+judgmentColumns+` FROM judgments
		WHERE reason_target_close_ms <= $1 AND reason_correct IS NULL
		ORDER BY reason_target_close_ms ASC
		LIMIT $2`, nowMs, maxRows)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJudgments(rows)
}

// SetReasonOutcome records a horizon evaluation and clears any prior
// sweep error.
func (s *Store) SetReasonOutcome(ctx context.Context, id string, targetClose, deltaPct float64, outcome string, correct bool, evaluatedAt time.Time) error {
	correctFlag := int16(0)
	if correct {
		correctFlag = 1
	}
	_, err := s.Pool.Exec(ctx, `
		UPDATE judgments
		SET reason_target_close = $2, reason_delta_pct = $3, reason_outcome = $4,
		    reason_correct = $5, reason_evaluated_at = $6, reason_eval_error = NULL
		WHERE id = $1`,
		id, targetClose, deltaPct, outcome, correctFlag, evaluatedAt)
	return err
}

func (s *Store) SetReasonEvalError(ctx context.Context, id, message string) error {
	_, err := s.Pool.Exec(ctx, `UPDATE judgments SET reason_eval_error = $2 WHERE id = $1`, id, message)
	return err
}

func (s *Store) GetTopConfidenceJudgment(ctx context.Context, roundID string) (*Judgment, error) {
	return scanJudgment(s.Pool.QueryRow(ctx, `
		SELECT `+judgmentColumns+` FROM judgments
		WHERE round_id = $1 ORDER BY confidence DESC, ts ASC LIMIT 1`, roundID))
}

func collectJudgments(rows pgx.Rows) ([]Judgment, error) {
	out := []Judgment{}
	for rows.Next() {
		var j Judgment
		if err := rows.Scan(
			&j.ID, &j.RoundID, &j.AgentID, &j.Direction, &j.Confidence, &j.Comment, &j.Timestamp, &j.Intervals,
			&j.AnalysisStartMs, &j.AnalysisEndMs,
			&j.ReasonRuleJSON, &j.ReasonTimeframe, &j.ReasonPattern, &j.ReasonDirection, &j.ReasonHorizonBars,
			&j.ReasonTCloseMs, &j.ReasonTargetCloseMs, &j.ReasonBaseClose, &j.ReasonPatternHolds,
			&j.ReasonTargetClose, &j.ReasonDeltaPct, &j.ReasonOutcome, &j.ReasonCorrect, &j.ReasonEvaluatedAt, &j.ReasonEvalError); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
