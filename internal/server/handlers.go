package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/desertthunder/rulemig/internal/models"
	"github.com/desertthunder/rulemig/internal/shared"
	"github.com/desertthunder/rulemig/internal/tasks"
	"github.com/go-chi/chi/v5"
)

// StartRequest is the body of POST /api/migrations/{id}/start. Every field is optional.
type StartRequest struct {
	Retry                     string `json:"retry,omitempty"`
	SkipPrebuiltRulesMatching bool   `json:"skip_prebuilt_rules_matching,omitempty"`
}

// StartResponse is the body returned by POST /api/migrations/{id}/start.
type StartResponse struct {
	Started bool   `json:"started"`
	Reason  string `json:"reason,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, withStats(s.orch.Latest()))
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	stats, err := s.orch.GetJobStats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, withStats(tasks.Snapshot{Known: true, Stats: stats}))
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	retry, err := models.ParseRetryFilter(req.Retry)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err))
		return
	}

	res, err := s.orch.StartMigration(r.Context(), id, tasks.StartOptions{
		Retry:                     retry,
		SkipPrebuiltRulesMatching: req.SkipPrebuiltRulesMatching,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StartResponse{Started: res.Started, Reason: string(res.Reason)})
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	stopped, err := s.orch.StopMigration(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

// withStats keeps "migrations" a list even for the unknown snapshot.
func withStats(snap tasks.Snapshot) tasks.Snapshot {
	if snap.Stats == nil {
		snap.Stats = []models.JobStats{}
	}
	return snap
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, shared.ErrMigrationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, shared.ErrInvalidArgument), errors.Is(err, shared.ErrMissingArgument):
		status = http.StatusBadRequest
	case errors.Is(err, shared.ErrAPIRequest):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
