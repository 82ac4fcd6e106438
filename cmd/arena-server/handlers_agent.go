package main

import (
	"encoding/json"
	"net/http"

	"oracle-arena/internal/round"
	"oracle-arena/internal/store"
)

func (s *server) registerAgentHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Prompt      string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeHTTPError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	id := slugify(body.Name)
	if id == "" {
		writeHTTPError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	agent := store.Agent{
		ID:               id,
		Name:             body.Name,
		Persona:          body.Description,
		Prompt:           body.Prompt,
		Status:           store.AgentStatusPendingClaim,
		Secret:           newAPIKey(),
		ClaimToken:       newClaimToken(),
		VerificationCode: newVerificationCode(),
	}
	if err := s.st.CreateAgent(r.Context(), agent); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                true,
		"id":                agent.ID,
		"name":              agent.Name,
		"status":            agent.Status,
		"api_key":           agent.Secret,
		"claim_url":         s.cfg.PublicBaseURL + "/claim/" + agent.ClaimToken,
		"verification_code": agent.VerificationCode,
	})
}

func (s *server) agentStatusHandler(w http.ResponseWriter, r *http.Request) {
	agent := agentFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         agent.ID,
		"status":     agent.Status,
		"claimed_at": agent.ClaimedAt,
	})
}

func (s *server) agentMeHandler(w http.ResponseWriter, r *http.Request) {
	agent := agentFromContext(r.Context())
	events, err := s.st.ListScoreEventsByAgent(r.Context(), agent.ID, 5)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	recent := make([]map[string]any, 0, len(events))
	for _, ev := range events {
		recent = append(recent, map[string]any{
			"round_id":     ev.RoundID,
			"correct":      ev.Correct,
			"score_change": ev.ScoreChange,
			"reason":       ev.Reason,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":            agent.ID,
		"name":          agent.Name,
		"persona":       agent.Persona,
		"score":         agent.Score,
		"status":        agent.Status,
		"claimed_at":    agent.ClaimedAt,
		"created_at":    agent.CreatedAt,
		"recent_events": recent,
	})
}

func (s *server) submitJudgmentHandler(w http.ResponseWriter, r *http.Request) {
	agent := agentFromContext(r.Context())
	if agent.Status != store.AgentStatusActive {
		writeHTTPError(w, http.StatusForbidden, "agent_inactive")
		return
	}
	var payload round.JudgmentPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeHTTPError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	result, err := s.rounds.SubmitJudgment(r.Context(), agent.ID, payload)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "reason": result})
}
