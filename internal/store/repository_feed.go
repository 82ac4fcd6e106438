package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// SettlementLimits bounds the retention trims run inside the settlement
// transaction.
type SettlementLimits struct {
	Verdicts    int
	ScoreEvents int
	FlipCards   int
}

// ApplySettlement finalizes a round in one batched transaction: the
// round row flips to settled, the verdict is inserted, and every score
// event, agent score delta, and flip card lands together. Partial
// settlement is never observable.
func (s *Store) ApplySettlement(ctx context.Context, roundID string, endPrice float64, verdict Verdict, events []ScoreEvent, cards []FlipCard, limits SettlementLimits) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	batch.Queue(`UPDATE rounds SET status = 'settled', end_price = $2 WHERE round_id = $1`, roundID, endPrice)
	batch.Queue(`INSERT INTO verdicts (id, round_id, result, delta_pct, ts) VALUES ($1,$2,$3,$4,$5)`,
		verdict.ID, verdict.RoundID, verdict.Result, verdict.DeltaPct, verdict.Timestamp)
	for _, ev := range events {
		batch.Queue(`
			INSERT INTO score_events (id, round_id, agent_id, correct, confidence, score_change, reason, ts)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			ev.ID, ev.RoundID, ev.AgentID, ev.Correct, ev.Confidence, ev.ScoreChange, ev.Reason, ev.Timestamp)
		batch.Queue(`UPDATE agents SET score = score + $2 WHERE id = $1`, ev.AgentID, ev.ScoreChange)
	}
	for _, c := range cards {
		batch.Queue(`
			INSERT INTO flip_cards (id, round_id, agent_id, agent_name, direction, confidence, result, score_change, title, text, ts)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			c.ID, c.RoundID, c.AgentID, c.AgentName, c.Direction, c.Confidence, c.Result, c.ScoreChange, c.Title, c.Text, c.Timestamp)
	}
	if limits.Verdicts > 0 {
		batch.Queue(`DELETE FROM verdicts WHERE id NOT IN (SELECT id FROM verdicts ORDER BY ts DESC LIMIT $1)`, limits.Verdicts)
	}
	if limits.ScoreEvents > 0 {
		batch.Queue(`DELETE FROM score_events WHERE id NOT IN (SELECT id FROM score_events ORDER BY ts DESC LIMIT $1)`, limits.ScoreEvents)
	}
	if limits.FlipCards > 0 {
		batch.Queue(`DELETE FROM flip_cards WHERE id NOT IN (SELECT id FROM flip_cards ORDER BY ts DESC LIMIT $1)`, limits.FlipCards)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetLastVerdict(ctx context.Context) (*Verdict, error) {
	var v Verdict
	err := s.Pool.QueryRow(ctx, `SELECT id, round_id, result, delta_pct, ts FROM verdicts ORDER BY ts DESC LIMIT 1`).
		Scan(&v.ID, &v.RoundID, &v.Result, &v.DeltaPct, &v.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

const flipCardColumns = `id, round_id, agent_id, agent_name, direction, confidence, result, score_change, title, text, ts`

func (s *Store) GetFlipCard(ctx context.Context, roundID, agentID string) (*FlipCard, error) {
	var c FlipCard
	err := s.Pool.QueryRow(ctx, `SELECT `+flipCardColumns+` FROM flip_cards WHERE round_id = $1 AND agent_id = $2`, roundID, agentID).
		Scan(&c.ID, &c.RoundID, &c.AgentID, &c.AgentName, &c.Direction, &c.Confidence, &c.Result, &c.ScoreChange, &c.Title, &c.Text, &c.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListFlipCards(ctx context.Context, limit int) ([]FlipCard, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+flipCardColumns+` FROM flip_cards ORDER BY ts DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFlipCards(rows)
}

// ListHighConfFailCards returns recent FAIL cards at or above minConf.
func (s *Store) ListHighConfFailCards(ctx context.Context, minConf, limit int) ([]FlipCard, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+flipCardColumns+` FROM flip_cards
		WHERE result = 'FAIL' AND confidence >= $1
		ORDER BY ts DESC LIMIT $2`, minConf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFlipCards(rows)
}

func (s *Store) ListScoreEventsByAgent(ctx context.Context, agentID string, limit int) ([]ScoreEvent, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, round_id, agent_id, correct, confidence, score_change, reason, ts
		FROM score_events WHERE agent_id = $1 ORDER BY ts DESC LIMIT $2`, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ScoreEvent{}
	for rows.Next() {
		var ev ScoreEvent
		if err := rows.Scan(&ev.ID, &ev.RoundID, &ev.AgentID, &ev.Correct, &ev.Confidence, &ev.ScoreChange, &ev.Reason, &ev.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) SumScoreEvents(ctx context.Context, agentID string) (int64, error) {
	var sum int64
	err := s.Pool.QueryRow(ctx, `SELECT COALESCE(SUM(score_change), 0) FROM score_events WHERE agent_id = $1`, agentID).Scan(&sum)
	return sum, err
}

func collectFlipCards(rows pgx.Rows) ([]FlipCard, error) {
	out := []FlipCard{}
	for rows.Next() {
		var c FlipCard
		if err := rows.Scan(&c.ID, &c.RoundID, &c.AgentID, &c.AgentName, &c.Direction, &c.Confidence, &c.Result, &c.ScoreChange, &c.Title, &c.Text, &c.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
