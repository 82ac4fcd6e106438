package main

import (
	"encoding/json"
	"net/http"

	"oracle-arena/internal/store"

	"github.com/go-chi/chi/v5"
)

func (s *server) adminAgentsHandler(w http.ResponseWriter, r *http.Request) {
	agents, err := s.st.ListAgentsByScore(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(agents))
	for _, a := range agents {
		out = append(out, map[string]any{
			"id":         a.ID,
			"name":       a.Name,
			"status":     a.Status,
			"score":      a.Score,
			"claimed_at": a.ClaimedAt,
			"created_at": a.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *server) adminSetAgentStatusHandler(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent_id")
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeHTTPError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	switch body.Status {
	case store.AgentStatusPendingClaim, store.AgentStatusActive, store.AgentStatusInactive:
	default:
		writeHTTPError(w, http.StatusBadRequest, "invalid_status")
		return
	}
	if err := s.st.SetAgentStatus(r.Context(), agentID, body.Status); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
