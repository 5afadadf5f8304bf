package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tools.zach/dev/timetrack/internal/activity"
	"tools.zach/dev/timetrack/internal/metrics"
	"tools.zach/dev/timetrack/internal/project"
	"tools.zach/dev/timetrack/internal/store"
	"tools.zach/dev/timetrack/internal/tracker"
)

type env struct {
	srv   *httptest.Server
	tr    *tracker.Tracker
	store *store.Memory

	mu  sync.Mutex
	now time.Time
}

func (e *env) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *env) advance(d time.Duration) {
	e.mu.Lock()
	e.now = e.now.Add(d)
	e.mu.Unlock()
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store: store.NewMemory(),
		now:   time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
	}
	m, err := project.NewMatcher(nil, 0)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	ids := 0
	e.tr = tracker.New(e.store, nil, m,
		tracker.WithClock(e.clock),
		tracker.WithMetrics(metrics.New(reg)),
		tracker.WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("s%d", ids)
		}),
	)
	e.srv = httptest.NewServer(NewRouter(e.tr, e.store, reg))
	t.Cleanup(func() {
		e.srv.Close()
		e.tr.Shutdown(context.Background())
	})
	return e
}

func (e *env) snap(app, title string) {
	e.tr.OnSnapshot(&activity.WindowSnapshot{Application: app, Title: title})
}

func (e *env) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// ///////////////////////////////////////////////
// Status and Tracking
// ///////////////////////////////////////////////

func TestStatus(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decodeBody[StatusResponse](t, resp)
	assert.True(t, st.Tracking)
	assert.Nil(t, st.Current)
	assert.Equal(t, []string{}, st.RecentProjects)

	e.snap("Word", "BMS 1180 draft")
	e.advance(30 * time.Second)

	st = decodeBody[StatusResponse](t, e.do(t, http.MethodGet, "/status", ""))
	require.NotNil(t, st.Current)
	assert.Equal(t, "Word", st.Current.Application)
	assert.Equal(t, 30.0, st.Current.Duration)
	assert.Equal(t, "BMS1180", st.Current.Code())
	assert.Equal(t, []string{"BMS1180"}, st.RecentProjects)
}

func TestToggleAndSet(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodPost, "/tracking/toggle", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decodeBody[TrackingState](t, resp).Tracking)

	resp = e.do(t, http.MethodPut, "/tracking", `{"tracking": true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeBody[TrackingState](t, resp).Tracking)
	assert.True(t, e.tr.Tracking())

	resp = e.do(t, http.MethodPut, "/tracking", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/tracking/toggle", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

// ///////////////////////////////////////////////
// Confirmation
// ///////////////////////////////////////////////

func TestConfirm(t *testing.T) {
	e := newEnv(t)
	e.snap("Word", "BMS 1180 draft")

	resp := e.do(t, http.MethodPost, "/sessions/s1/confirm", `{"code": "BMS 1190"}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	cur, ok := e.tr.Current()
	require.True(t, ok)
	assert.Equal(t, "BMS1190", cur.Code())
}

func TestConfirmErrors(t *testing.T) {
	e := newEnv(t)
	e.snap("Word", "Report")

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"blank code", "/sessions/s1/confirm", `{"code": "  "}`, http.StatusBadRequest},
		{"bad json", "/sessions/s1/confirm", `{`, http.StatusBadRequest},
		{"unknown session", "/sessions/nope/confirm", `{"code": "BMS1180"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := e.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, decodeBody[errorResponse](t, resp).Error)
		})
	}
}

// failingGetStore loses reads; writes go to the embedded memory store.
type failingGetStore struct {
	*store.Memory
}

func (failingGetStore) Get(context.Context, string) (activity.Session, error) {
	return activity.Session{}, errors.New("disk unavailable")
}

func TestConfirmStoreUnavailable(t *testing.T) {
	m, err := project.NewMatcher(nil, 0)
	require.NoError(t, err)
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	st := failingGetStore{store.NewMemory()}
	var reported []error
	var mu sync.Mutex
	tr := tracker.New(st, nil, m,
		tracker.WithClock(clock),
		tracker.WithErrorSink(func(err error) {
			mu.Lock()
			reported = append(reported, err)
			mu.Unlock()
		}),
		tracker.WithIDGenerator(func() string { return "closed" }),
	)
	defer tr.Shutdown(context.Background())
	srv := httptest.NewServer(NewRouter(tr, st, nil))
	defer srv.Close()

	// Open a session, then pause so it is no longer the open one.
	tr.OnSnapshot(&activity.WindowSnapshot{Application: "Word", Title: "Report"})
	now = now.Add(time.Minute)
	tr.SetTracking(false)

	resp, err := http.Post(srv.URL+"/sessions/closed/confirm", "application/json", strings.NewReader(`{"code": "BMS1180"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, decodeBody[errorResponse](t, resp).Error, "disk unavailable")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 1)
	assert.ErrorContains(t, reported[0], "store get session closed")
}

// ///////////////////////////////////////////////
// Sessions
// ///////////////////////////////////////////////

func TestQuerySessions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	bms := "BMS1180"
	for i, s := range []activity.Session{
		{ID: "a", Application: "Word", Title: "BMS 1180", ProjectCode: &bms, StartedAt: base, Duration: 60},
		{ID: "b", Application: "Mail", Title: "Inbox", StartedAt: base.Add(time.Hour), Duration: 60},
		{ID: "c", Application: "Word", Title: "BMS 1180", ProjectCode: &bms, StartedAt: base.Add(48 * time.Hour), Duration: 60},
	} {
		require.NoError(t, e.store.Upsert(ctx, s), "session %d", i)
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"all", "", []string{"a", "b", "c"}},
		{"range", "?from=2024-03-04T00:00:00Z&to=2024-03-05T00:00:00Z", []string{"a", "b"}},
		{"project", "?project=BMS1180", []string{"a", "c"}},
		{"coded", "?coded=true&to=2024-03-05T00:00:00Z", []string{"a"}},
		{"empty", "?from=2030-01-01T00:00:00Z", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := e.do(t, http.MethodGet, "/sessions"+tt.query, "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			got := decodeBody[[]activity.Session](t, resp)
			ids := []string{}
			for _, s := range got {
				ids = append(ids, s.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	resp := e.do(t, http.MethodGet, "/sessions?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = e.do(t, http.MethodGet, "/sessions?coded=maybe", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestParseTime(t *testing.T) {
	got, err := ParseTime("2024-03-04")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 3, 4, 0, 0, 0, 0, time.Local)))

	got, err = ParseTime("2024-03-04T10:00:00+02:00")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)))

	_, err = ParseTime("03/04/2024")
	assert.Error(t, err)
}

// ///////////////////////////////////////////////
// Metrics and Routing
// ///////////////////////////////////////////////

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t)
	e.snap("Word", "Report")

	resp := e.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "timetrack_sessions_opened_total 1")
	assert.Contains(t, string(body), "timetrack_tracking 1")
}

func TestUnknownRoute(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerServeAndShutdown(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", http.NotFoundHandler())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	resp, err := http.Get("http://" + srv.Addr() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
