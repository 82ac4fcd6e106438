package store

import (
	"context"
	"fmt"
	"time"
)

// ReasonStatRow is the slice of a judgment the accuracy aggregator
// needs. Only horizon-evaluated rows qualify.
type ReasonStatRow struct {
	AgentID      string
	Timeframe    string
	Pattern      string
	PatternHolds *int16
	Correct      int16
	DeltaPct     float64
}

func (s *Store) ListReasonStatRows(ctx context.Context, agentID string, since, until time.Time, limit int) ([]ReasonStatRow, error) {
	query := `
		SELECT agent_id, reason_timeframe, reason_pattern, reason_pattern_holds,
		       reason_correct, COALESCE(reason_delta_pct, 0)
		FROM judgments
		WHERE reason_correct IS NOT NULL AND ts >= $1 AND ts <= $2`
	args := []any{since, until}
	if agentID != "" {
		query += ` AND agent_id = $3`
		args = append(args, agentID)
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY ts DESC LIMIT $%d`, len(args))

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ReasonStatRow{}
	for rows.Next() {
		var r ReasonStatRow
		if err := rows.Scan(&r.AgentID, &r.Timeframe, &r.Pattern, &r.PatternHolds, &r.Correct, &r.DeltaPct); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
