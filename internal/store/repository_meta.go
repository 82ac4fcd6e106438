package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// GetMeta reads the meta singleton. A missing row yields a zero state.
func (s *Store) GetMeta(ctx context.Context) (*MetaState, error) {
	var m MetaState
	err := s.Pool.QueryRow(ctx, `
		SELECT last_price, current_price, last_delta_pct, last_price_at FROM meta WHERE id = 1`).
		Scan(&m.LastPrice, &m.CurrentPrice, &m.LastDeltaPct, &m.LastPriceAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &MetaState{}, nil
		}
		return nil, err
	}
	return &m, nil
}

func (s *Store) UpsertMeta(ctx context.Context, m MetaState) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO meta (id, last_price, current_price, last_delta_pct, last_price_at, updated_at)
		VALUES (1, $1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE
		SET last_price = EXCLUDED.last_price,
		    current_price = EXCLUDED.current_price,
		    last_delta_pct = EXCLUDED.last_delta_pct,
		    last_price_at = EXCLUDED.last_price_at,
		    updated_at = now()`,
		m.LastPrice, m.CurrentPrice, m.LastDeltaPct, m.LastPriceAt)
	return err
}

// SaveFeedDiag stores the latest price feed diagnostics snapshot on the
// meta row.
func (s *Store) SaveFeedDiag(ctx context.Context, diagJSON []byte) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO meta (id, feed_diag, updated_at) VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET feed_diag = EXCLUDED.feed_diag, updated_at = now()`,
		diagJSON)
	return err
}
