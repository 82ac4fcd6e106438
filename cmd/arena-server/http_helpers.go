package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"oracle-arena/internal/candles"
	"oracle-arena/internal/pricefeed"
	"oracle-arena/internal/reason"
	"oracle-arena/internal/round"
	"oracle-arena/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeHTTPError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]any{"error": code})
}

// writeServiceError maps service errors onto the HTTP boundary.
func writeServiceError(w http.ResponseWriter, err error) {
	var vErr *round.ValidationError
	if errors.As(err, &vErr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation_failed", "field": vErr.Field, "code": vErr.Code})
		return
	}
	switch {
	case errors.Is(err, reason.ErrUnsupportedTimeframe),
		errors.Is(err, reason.ErrTimeframeNotAllowed),
		errors.Is(err, reason.ErrUnknownPattern),
		errors.Is(err, reason.ErrInvalidDirection),
		errors.Is(err, reason.ErrDirectionMismatch),
		errors.Is(err, reason.ErrHorizonOutOfRange),
		errors.Is(err, candles.ErrUnsupportedInterval),
		errors.Is(err, candles.ErrUnsupportedCoin):
		writeHTTPError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, reason.ErrInsufficientHistory),
		errors.Is(err, reason.ErrMisalignment),
		errors.Is(err, round.ErrRoundNotBetting),
		errors.Is(err, round.ErrRoundLocked):
		writeHTTPError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, round.ErrRoundNotFound), errors.Is(err, store.ErrNotFound):
		writeHTTPError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict):
		writeHTTPError(w, http.StatusConflict, "conflict")
	case errors.Is(err, pricefeed.ErrNoSample), errors.Is(err, round.ErrNoPrice):
		writeHTTPError(w, http.StatusServiceUnavailable, "price_unavailable")
	default:
		writeHTTPError(w, http.StatusInternalServerError, "internal_error")
	}
}
