package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

const roundColumns = `round_id, symbol, duration_min, start_price, end_price, status, start_time, end_time`

func scanRound(row pgx.Row) (*Round, error) {
	var r Round
	err := row.Scan(&r.RoundID, &r.Symbol, &r.DurationMin, &r.StartPrice, &r.EndPrice, &r.Status, &r.StartTime, &r.EndTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

// InsertRound relies on the round_id primary key to reject a concurrent
// duplicate start.
func (s *Store) InsertRound(ctx context.Context, r Round) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO rounds (round_id, symbol, duration_min, start_price, end_price, status, start_time, end_time)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.RoundID, r.Symbol, r.DurationMin, r.StartPrice, r.EndPrice, r.Status, r.StartTime, r.EndTime)
	return mapConflict(err)
}

// GetLiveRound returns the single non-settled round, or ErrNotFound.
func (s *Store) GetLiveRound(ctx context.Context) (*Round, error) {
	return scanRound(s.Pool.QueryRow(ctx, `
		SELECT `+roundColumns+` FROM rounds WHERE status <> 'settled' ORDER BY start_time DESC LIMIT 1`))
}

func (s *Store) GetRound(ctx context.Context, roundID string) (*Round, error) {
	return scanRound(s.Pool.QueryRow(ctx, `SELECT `+roundColumns+` FROM rounds WHERE round_id = $1`, roundID))
}

func (s *Store) LockRound(ctx context.Context, roundID string) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE rounds SET status = 'locked' WHERE round_id = $1 AND status = 'betting'`, roundID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelRound removes an empty round and any judgments it may have, in
// one transaction, so a fresh round can start immediately.
func (s *Store) CancelRound(ctx context.Context, roundID string) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM judgments WHERE round_id = $1`, roundID)
	batch.Queue(`DELETE FROM rounds WHERE round_id = $1`, roundID)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// TrimRounds keeps the most recent limit rounds by start_time.
func (s *Store) TrimRounds(ctx context.Context, limit int) error {
	if limit <= 0 {
		return nil
	}
	_, err := s.Pool.Exec(ctx, `
		DELETE FROM rounds WHERE round_id NOT IN (
			SELECT round_id FROM rounds ORDER BY start_time DESC LIMIT $1
		)`, limit)
	return err
}
