package round

import "errors"

var (
	ErrRoundNotFound   = errors.New("round_not_found")
	ErrRoundNotBetting = errors.New("round_not_betting")
	ErrRoundLocked     = errors.New("round_locked")
	ErrNoActiveAgents  = errors.New("no_active_agents")
	ErrNoPrice         = errors.New("price_unavailable")
)

// ValidationError carries the field that failed payload validation.
type ValidationError struct {
	Field string
	Code  string
}

func (e *ValidationError) Error() string {
	return e.Code + ":" + e.Field
}

func invalid(field, code string) error {
	return &ValidationError{Field: field, Code: code}
}
