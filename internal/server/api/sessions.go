// Package api provides HTTP API handlers for the session journal.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/pinchvol/internal/store"
)

// SessionHandler handles HTTP requests for journaled sessions.
type SessionHandler struct {
	store *store.Store
}

// NewSessionHandler creates a new SessionHandler with the given store.
func NewSessionHandler(s *store.Store) *SessionHandler {
	return &SessionHandler{store: s}
}

// ServeHTTP routes /api/sessions and /api/sessions/{id}.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, path)
	case http.MethodDelete:
		h.delete(w, path)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type sessionResponse struct {
	ID                  string  `json:"id"`
	StartedAt           string  `json:"started_at"`
	EndedAt             string  `json:"ended_at,omitempty"`
	Duration            string  `json:"duration"`
	Actuator            string  `json:"actuator"`
	RangeMin            float64 `json:"range_min"`
	RangeMax            float64 `json:"range_max"`
	DomainMin           float64 `json:"domain_min"`
	DomainMax           float64 `json:"domain_max"`
	Frames              uint64  `json:"frames"`
	HandsSeen           uint64  `json:"hands_seen"`
	Actuations          uint64  `json:"actuations"`
	ActuationErrors     uint64  `json:"actuation_errors"`
	AcquisitionFailures uint64  `json:"acquisition_failures"`
	ExitReason          string  `json:"exit_reason,omitempty"`
	Error               string  `json:"error,omitempty"`
}

type listSessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toResponse(s *store.Session) sessionResponse {
	result := sessionResponse{
		ID:                  s.ID,
		StartedAt:           s.StartedAt.Format(time.RFC3339),
		Duration:            s.Duration().Round(time.Millisecond).String(),
		Actuator:            s.Actuator,
		RangeMin:            s.RangeMin,
		RangeMax:            s.RangeMax,
		DomainMin:           s.DomainMin,
		DomainMax:           s.DomainMax,
		Frames:              s.Frames,
		HandsSeen:           s.HandsSeen,
		Actuations:          s.Actuations,
		ActuationErrors:     s.ActuationErrors,
		AcquisitionFailures: s.AcquisitionFailures,
		ExitReason:          string(s.ExitReason),
		Error:               s.Error,
	}
	if s.EndedAt != nil {
		result.EndedAt = s.EndedAt.Format(time.RFC3339)
	}
	return result
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// list handles GET /api/sessions?limit=n, newest first.
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	sessions, err := h.store.Sessions().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	response := listSessionsResponse{
		Sessions: make([]sessionResponse, 0, len(sessions)),
	}
	for _, s := range sessions {
		response.Sessions = append(response.Sessions, toResponse(s))
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *SessionHandler) get(w http.ResponseWriter, id string) {
	session, err := h.store.Sessions().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	writeJSON(w, http.StatusOK, toResponse(session))
}

func (h *SessionHandler) delete(w http.ResponseWriter, id string) {
	if err := h.store.Sessions().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
