package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/stepward/stepward/internal/logging"
	"github.com/stepward/stepward/pkg/schema"
)

// handleHumanDecision registers a decision request and blocks the caller
// until it is resolved or the wait bound elapses. The workflow side of the
// boundary: one request per gated step.
func (s *Server) handleHumanDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	id := s.deps.Broker.Request(ctx, body.Message)
	ctx = logging.WithDecisionID(ctx, id)
	s.deps.Logger.InfoContext(ctx, "decision requested, waiting",
		slog.String("message", body.Message),
	)

	outcome := s.deps.Broker.Await(ctx, id)
	s.deps.Logger.InfoContext(ctx, "decision wait finished",
		slog.String("outcome", string(outcome)),
	)

	if outcome == schema.OutcomeTimedOut {
		writeError(w, http.StatusRequestTimeout, "no decision received within the wait bound")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{
		"approved": outcome == schema.OutcomeApproved,
	})
}

// handlePendingDecisions lists decisions awaiting a human, in the order
// they were requested.
func (s *Server) handlePendingDecisions(w http.ResponseWriter, r *http.Request) {
	pending := s.deps.Broker.ListPending()

	items := make([]map[string]string, 0, len(pending))
	for _, rec := range pending {
		items = append(items, map[string]string{
			"id":      rec.ID,
			"message": rec.Message,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"pending_decisions": items})
}

// handleSubmitDecision resolves a pending decision. The operator side of
// the boundary.
func (s *Server) handleSubmitDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		DecisionID string `json:"decision_id"`
		Approved   bool   `json:"approved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.DecisionID == "" {
		writeError(w, http.StatusBadRequest, "decision_id is required")
		return
	}

	ctx = logging.WithDecisionID(ctx, body.DecisionID)
	if err := s.deps.Broker.Resolve(ctx, body.DecisionID, body.Approved); err != nil {
		var serr *schema.StepwardError
		if errors.As(err, &serr) && serr.Code == schema.ErrCodeNotFound {
			writeError(w, http.StatusNotFound, fmt.Sprintf("unknown decision id %q", body.DecisionID))
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("resolve decision: %v", err))
		return
	}

	verdict := "rejected"
	if body.Approved {
		verdict = "approved"
	}
	s.deps.Logger.InfoContext(ctx, "decision resolved", slog.String("verdict", verdict))
	writeJSON(w, http.StatusOK, map[string]string{
		"status": fmt.Sprintf("decision %s %s", body.DecisionID, verdict),
	})
}
