package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

const agentColumns = `id, name, persona, prompt, score, status, secret, claim_token, verification_code, claimed_at, created_at`

func scanAgent(row pgx.Row) (*Agent, error) {
	var a Agent
	err := row.Scan(&a.ID, &a.Name, &a.Persona, &a.Prompt, &a.Score, &a.Status, &a.Secret, &a.ClaimToken, &a.VerificationCode, &a.ClaimedAt, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *Store) CreateAgent(ctx context.Context, a Agent) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO agents (id, name, persona, prompt, score, status, secret, claim_token, verification_code)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.Name, a.Persona, a.Prompt, a.Score, a.Status, a.Secret, a.ClaimToken, a.VerificationCode)
	return mapConflict(err)
}

func (s *Store) GetAgentByID(ctx context.Context, id string) (*Agent, error) {
	return scanAgent(s.Pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id))
}

func (s *Store) GetAgentBySecret(ctx context.Context, secret string) (*Agent, error) {
	return scanAgent(s.Pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE secret = $1`, secret))
}

func (s *Store) GetAgentByClaimToken(ctx context.Context, token string) (*Agent, error) {
	return scanAgent(s.Pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE claim_token = $1`, token))
}

// MarkAgentClaimed activates a pending agent. Idempotent: an already
// active agent stays active and keeps its original claimed_at.
func (s *Store) MarkAgentClaimed(ctx context.Context, id string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE agents
		SET status = 'active', claimed_at = COALESCE(claimed_at, now())
		WHERE id = $1`, id)
	return err
}

func (s *Store) SetAgentStatus(ctx context.Context, id, status string) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE agents SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CountActiveAgents(ctx context.Context) (int, error) {
	var c int
	err := s.Pool.QueryRow(ctx, `SELECT COUNT(1) FROM agents WHERE status = 'active' AND secret <> ''`).Scan(&c)
	return c, err
}

func (s *Store) ListAgentsByScore(ctx context.Context) ([]Agent, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY score DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Agent{}
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Persona, &a.Prompt, &a.Score, &a.Status, &a.Secret, &a.ClaimToken, &a.VerificationCode, &a.ClaimedAt, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
