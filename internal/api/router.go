// Package api serves the daemon's local HTTP control surface: tracking
// toggle, project confirmation callbacks, status, session queries for
// reporting, and Prometheus metrics.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tools.zach/dev/timetrack/internal/activity"
)

// Tracker is the part of tracker.Tracker the API drives.
type Tracker interface {
	Toggle() bool
	SetTracking(on bool) bool
	Tracking() bool
	Confirm(ctx context.Context, sessionID, code string) error
	Current() (activity.Session, bool)
	RecentProjects() []string
}

// Sessions answers reporting queries, normally the session store.
type Sessions interface {
	Query(ctx context.Context, f activity.Filter) ([]activity.Session, error)
}

// NewRouter wires every endpoint. gatherer may be nil to omit /metrics.
func NewRouter(tr Tracker, sessions Sessions, gatherer prometheus.Gatherer) *mux.Router {
	h := &handlers{tracker: tr, sessions: sessions}

	r := mux.NewRouter()
	r.Use(logRequests)

	r.HandleFunc("/status", h.status).Methods(http.MethodGet)

	r.HandleFunc("/tracking/toggle", h.toggle).Methods(http.MethodPost)
	r.HandleFunc("/tracking", h.setTracking).Methods(http.MethodPut)

	r.HandleFunc("/sessions", h.querySessions).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}/confirm", h.confirm).Methods(http.MethodPost)

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
