package reason

import "errors"

var (
	ErrUnsupportedTimeframe = errors.New("unsupported_timeframe")
	ErrTimeframeNotAllowed  = errors.New("timeframe_not_allowed")
	ErrUnknownPattern       = errors.New("unknown_pattern")
	ErrInvalidDirection     = errors.New("invalid_direction")
	ErrDirectionMismatch    = errors.New("direction_mismatch")
	ErrHorizonOutOfRange    = errors.New("horizon_out_of_range")
	ErrInsufficientHistory  = errors.New("insufficient_history")
	ErrMisalignment         = errors.New("analysis_end_misaligned")
)
