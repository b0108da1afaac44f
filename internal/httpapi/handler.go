// Package httpapi implements the HTTP handlers for the matching service.
//
// All routes expect an x-user-id header forwarded by the Gateway.
//
// Routes:
//
//	POST /run-matching                → trigger a matching run (202/400/409)
//	GET  /matching-status             → poll current run status
//	GET  /matches                     → list scored matches for the user
//	GET  /match-explanation?jobId=…   → per-requirement match breakdown
//	POST /matches/{jobId}/status      → move a match through its lifecycle
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Inclusist/job-monitor-sub000/internal/errs"
	"github.com/Inclusist/job-monitor-sub000/internal/explain"
	"github.com/Inclusist/job-monitor-sub000/internal/matching"
	"github.com/Inclusist/job-monitor-sub000/internal/model"
	"github.com/Inclusist/job-monitor-sub000/internal/store"
)

// Handler holds shared dependencies.
type Handler struct {
	orchestrator *matching.Orchestrator
	resolver     *explain.Resolver
	profiles     *store.ProfileStore
	jobs         *store.JobStore
	matches      *store.MatchRecordStore
	logger       *zap.Logger
}

// NewHandler returns a configured Handler.
func NewHandler(
	orchestrator *matching.Orchestrator,
	resolver *explain.Resolver,
	profiles *store.ProfileStore,
	jobs *store.JobStore,
	matches *store.MatchRecordStore,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		resolver:     resolver,
		profiles:     profiles,
		jobs:         jobs,
		matches:      matches,
		logger:       logger,
	}
}

// RegisterRoutes mounts all matching-service routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/run-matching", h.handleRunMatching)
	mux.HandleFunc("/matching-status", h.handleMatchingStatus)
	mux.HandleFunc("/matches", h.handleMatches)
	mux.HandleFunc("/matches/", h.handleMatchAction)
	mux.HandleFunc("/match-explanation", h.handleMatchExplanation)
}

// ─── Individual handlers ──────────────────────────────────────────────────────

// handleRunMatching handles POST /run-matching. The run itself happens in
// the background; the response only acknowledges the trigger.
func (h *Handler) handleRunMatching(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	err := h.orchestrator.Start(r.Context(), userID)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		jsonError(w, "no primary profile found, complete your profile first", http.StatusBadRequest)
	case errors.Is(err, errs.ErrAlreadyRunning):
		jsonError(w, "a matching run is already in progress", http.StatusConflict)
	case err != nil:
		h.logger.Error("starting matching run failed", zap.String("user_id", userID), zap.Error(err))
		jsonError(w, "internal error", http.StatusInternalServerError)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "started"})
	}
}

// handleMatchingStatus handles GET /matching-status
func (h *Handler) handleMatchingStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	st, err := h.orchestrator.Status(r.Context(), userID)
	if err != nil {
		h.logger.Error("reading matching status failed", zap.String("user_id", userID), zap.Error(err))
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	jsonOK(w, st)
}

// handleMatches handles GET /matches with an optional ?status= filter.
func (h *Handler) handleMatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	var filter model.MatchStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := model.ParseMatchStatus(raw)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter = parsed
	}

	records, err := h.matches.ListMatches(r.Context(), userID, filter)
	if err != nil {
		h.logger.Error("listing matches failed", zap.String("user_id", userID), zap.Error(err))
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	jsonOK(w, records)
}

// handleMatchAction handles POST /matches/{jobId}/status
func (h *Handler) handleMatchAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	// Parse /matches/{jobId}/{action}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 {
		jsonError(w, "invalid path", http.StatusNotFound)
		return
	}
	jobID, err := uuid.Parse(parts[1])
	if err != nil {
		jsonError(w, "invalid job id", http.StatusBadRequest)
		return
	}
	if parts[2] != "status" {
		jsonError(w, fmt.Sprintf("unknown action %q", parts[2]), http.StatusNotFound)
		return
	}

	var body struct {
		NewStatus string `json:"newStatus"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.NewStatus == "" {
		jsonError(w, "body must contain newStatus", http.StatusBadRequest)
		return
	}

	newStatus, err := model.ParseMatchStatus(body.NewStatus)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	record, err := h.matches.UpdateStatus(r.Context(), userID, jobID, newStatus)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		jsonError(w, "match not found", http.StatusNotFound)
	case errors.Is(err, errs.ErrForbiddenTransition):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case err != nil:
		h.logger.Error("updating match status failed",
			zap.String("user_id", userID), zap.String("job_id", jobID.String()), zap.Error(err))
		jsonError(w, "database error", http.StatusInternalServerError)
	default:
		jsonOK(w, record)
	}
}

// handleMatchExplanation handles GET /match-explanation?jobId=…
//
// The breakdown is computed on read rather than stored: resolution is cheap
// except for the embedding tier, and profiles change between runs.
func (h *Handler) handleMatchExplanation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	jobID, err := uuid.Parse(r.URL.Query().Get("jobId"))
	if err != nil {
		jsonError(w, "missing or invalid jobId parameter", http.StatusBadRequest)
		return
	}

	profile, err := h.profiles.GetPrimaryProfile(r.Context(), userID)
	if errors.Is(err, errs.ErrNotFound) {
		jsonError(w, "no primary profile found", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.Error("loading profile failed", zap.String("user_id", userID), zap.Error(err))
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}

	record, err := h.matches.GetMatch(r.Context(), userID, jobID)
	if errors.Is(err, errs.ErrNotFound) {
		jsonError(w, "match not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("loading match failed", zap.String("user_id", userID), zap.Error(err))
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, errs.ErrNotFound) {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("loading job failed", zap.String("job_id", jobID.String()), zap.Error(err))
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}

	jsonOK(w, h.resolver.Explain(r.Context(), profile, job, record))
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func requireUser(w http.ResponseWriter, r *http.Request) string {
	userID := r.Header.Get("x-user-id")
	if userID == "" {
		jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
	}
	return userID
}

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
