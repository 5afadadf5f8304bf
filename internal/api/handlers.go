package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"tools.zach/dev/timetrack/internal/activity"
	"tools.zach/dev/timetrack/internal/tracker"
)

// confirmTimeout bounds how long a confirmation waits for queued writes.
const confirmTimeout = 15 * time.Second

type handlers struct {
	tracker  Tracker
	sessions Sessions
}

// ///////////////////////////////////////////////
// Response Types
// ///////////////////////////////////////////////

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Tracking       bool              `json:"tracking"`
	Current        *activity.Session `json:"current,omitempty"`
	RecentProjects []string          `json:"recentProjects"`
}

// TrackingState is the body of PUT /tracking and the reply of both tracking
// endpoints.
type TrackingState struct {
	Tracking bool `json:"tracking"`
}

// ConfirmRequest is the body of POST /sessions/{id}/confirm.
type ConfirmRequest struct {
	Code string `json:"code"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ///////////////////////////////////////////////
// Handlers
// ///////////////////////////////////////////////

func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Tracking:       h.tracker.Tracking(),
		RecentProjects: h.tracker.RecentProjects(),
	}
	if cur, ok := h.tracker.Current(); ok {
		resp.Current = &cur
	}
	if resp.RecentProjects == nil {
		resp.RecentProjects = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) toggle(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, TrackingState{Tracking: h.tracker.Toggle()})
}

func (h *handlers) setTracking(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tracking *bool `json:"tracking"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Tracking == nil {
		writeError(w, http.StatusBadRequest, `body must be {"tracking": true|false}`)
		return
	}
	writeJSON(w, http.StatusOK, TrackingState{Tracking: h.tracker.SetTracking(*body.Tracking)})
}

func (h *handlers) confirm(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), confirmTimeout)
	defer cancel()

	err := h.tracker.Confirm(ctx, id, body.Code)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, tracker.ErrInvalidCode):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tracker.ErrUnknownSession):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, tracker.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, new(*tracker.StoreWriteError)):
		slog.Warn("confirm failed, store unavailable", "session", id, "error", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "confirmation still queued")
	default:
		slog.Warn("confirm failed", "session", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *handlers) querySessions(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sessions, err := h.sessions.Query(r.Context(), f)
	if err != nil {
		slog.Warn("session query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if sessions == nil {
		sessions = []activity.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

// parseFilter reads from, to, project, and coded query parameters. Times are
// RFC 3339 or a local date (YYYY-MM-DD, meaning midnight).
func parseFilter(r *http.Request) (activity.Filter, error) {
	q := r.URL.Query()
	var f activity.Filter
	var err error

	if v := q.Get("from"); v != "" {
		if f.Range.From, err = ParseTime(v); err != nil {
			return f, fmt.Errorf("invalid from: %w", err)
		}
	}
	if v := q.Get("to"); v != "" {
		if f.Range.To, err = ParseTime(v); err != nil {
			return f, fmt.Errorf("invalid to: %w", err)
		}
	}
	if q.Has("project") {
		p := q.Get("project")
		f.Project = &p
	}
	if v := q.Get("coded"); v != "" {
		if f.CodedOnly, err = strconv.ParseBool(v); err != nil {
			return f, fmt.Errorf("invalid coded: %w", err)
		}
	}
	return f, nil
}

// ParseTime accepts RFC 3339 or a YYYY-MM-DD local date.
func ParseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation(time.DateOnly, v, time.Local)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
