// Package tracker folds polled window snapshots into activity sessions.
//
// The [Tracker] owns the one open session. Each snapshot either extends it,
// closes it and opens a new one, or is ignored. Sessions shorter than the
// minimum duration are discarded. Persistence runs on a background writer in
// the order the tracker produced the writes, so the poll path never waits on
// the store.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tools.zach/dev/timetrack/internal/activity"
	"tools.zach/dev/timetrack/internal/confirm"
	"tools.zach/dev/timetrack/internal/metrics"
	"tools.zach/dev/timetrack/internal/project"
)

// ///////////////////////////////////////////////
// Defaults
// ///////////////////////////////////////////////

// DefaultMinDuration is the shortest session worth keeping.
const DefaultMinDuration = 5 * time.Second

// DefaultStoreTimeout bounds each store call made by the writer.
const DefaultStoreTimeout = 10 * time.Second

// Store is the persistence the tracker writes through. Upsert and Delete must
// be idempotent. Get returns [activity.ErrNotFound] for unknown ids.
type Store interface {
	Upsert(ctx context.Context, sess activity.Session) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (activity.Session, error)
}

// ///////////////////////////////////////////////
// Options
// ///////////////////////////////////////////////

// Option configures a [Tracker].
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithMinDuration sets the discard threshold. Sessions closed with less
// elapsed time are deleted instead of finalized.
func WithMinDuration(d time.Duration) Option {
	return func(t *Tracker) { t.minDuration = d }
}

// WithErrorSink receives recoverable errors such as [*StoreWriteError]. The
// default logs them at WARN.
func WithErrorSink(fn func(error)) Option {
	return func(t *Tracker) { t.report = fn }
}

// WithIgnore registers a privacy filter. Ignored snapshots close the open
// session and open nothing.
func WithIgnore(fn func(activity.WindowSnapshot) bool) Option {
	return func(t *Tracker) { t.ignore = fn }
}

// WithMetrics records session and store events. Nil disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// WithStoreTimeout bounds each store call made by the writer.
func WithStoreTimeout(d time.Duration) Option {
	return func(t *Tracker) { t.storeTimeout = d }
}

// WithIDGenerator replaces the UUID session id generator.
func WithIDGenerator(fn func() string) Option {
	return func(t *Tracker) { t.newID = fn }
}

// ///////////////////////////////////////////////
// Tracker
// ///////////////////////////////////////////////

// Tracker is the session state machine. All methods are safe for concurrent
// use; they serialize on one mutex.
type Tracker struct {
	store   Store
	sink    confirm.Sink
	matcher *project.Matcher

	now          func() time.Time
	minDuration  time.Duration
	storeTimeout time.Duration
	report       func(error)
	ignore       func(activity.WindowSnapshot) bool
	metrics      *metrics.Metrics
	newID        func() string

	w *writer

	mu       sync.Mutex
	open     *activity.Session
	last     *activity.WindowSnapshot
	tracking bool
	closed   bool
}

// New returns a tracker with tracking enabled and no open session. sink may
// be nil, in which case inferred codes are applied without a confirmation
// request.
func New(store Store, sink confirm.Sink, matcher *project.Matcher, opts ...Option) *Tracker {
	t := &Tracker{
		store:        store,
		sink:         sink,
		matcher:      matcher,
		now:          time.Now,
		minDuration:  DefaultMinDuration,
		storeTimeout: DefaultStoreTimeout,
		report: func(err error) {
			slog.Warn("session store error", "error", err)
		},
		newID:    uuid.NewString,
		tracking: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.w = newWriter(store, t.storeTimeout, t.report, t.metrics, t.confirmed)
	t.metrics.SetTracking(true)
	return t
}

// OnSnapshot processes one poll result. A nil snapshot means no window could
// be determined and leaves the open session untouched.
func (t *Tracker) OnSnapshot(snap *activity.WindowSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || !t.tracking {
		return
	}
	if snap == nil {
		t.metrics.Skipped("no_window")
		return
	}
	s := *snap
	t.last = &s
	now := t.now()

	if t.ignore != nil && t.ignore(s) {
		if t.open != nil {
			slog.Debug("window ignored by privacy rules, closing session", "app", s.Application)
		}
		t.closeOpen(now)
		return
	}

	if s.SameWindow(t.open) {
		t.open.Duration = elapsed(t.open.StartedAt, now).Seconds()
		t.w.upsert(*t.open)
		return
	}

	t.closeOpen(now)
	t.openSession(s, now)
}

// Toggle flips tracking and returns the new state. Pausing closes the open
// session with its duration frozen at this instant. Resuming opens nothing;
// the next snapshot does.
func (t *Tracker) Toggle() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setTrackingLocked(!t.tracking)
}

// SetTracking sets tracking to on and returns the new state. Setting the
// current state is a no-op.
func (t *Tracker) SetTracking(on bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setTrackingLocked(on)
}

func (t *Tracker) setTrackingLocked(on bool) bool {
	if on == t.tracking {
		return on
	}
	t.tracking = on
	if !on && !t.closed {
		t.closeOpen(t.now())
	}
	t.metrics.SetTracking(on)
	slog.Info("tracking toggled", "tracking", on)
	return on
}

// Confirm applies a user-approved project code to a session. The code is
// stripped of whitespace. The open session is updated in memory; a closed
// session is updated through the writer after every earlier write, and
// Confirm waits for that (bounded by ctx). If the closed session cannot be
// read back from the store, the [*StoreWriteError] goes to both the error
// sink and the caller and nothing is applied.
func (t *Tracker) Confirm(ctx context.Context, sessionID, code string) error {
	code = project.Canonical(code)
	if code == "" {
		t.metrics.Confirmed("invalid")
		return ErrInvalidCode
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.open != nil && t.open.ID == sessionID {
		t.open.SetCode(code)
		t.w.upsert(*t.open)
		t.mu.Unlock()
		t.confirmed(sessionID, code)
		return nil
	}
	t.mu.Unlock()

	// The writer records the code in the recency cache once applied, even if
	// ctx expires first.
	err := t.w.confirm(ctx, sessionID, code)
	if errors.Is(err, ErrUnknownSession) {
		t.metrics.Confirmed("unknown")
		slog.Info("confirmation for unknown session ignored", "session", sessionID)
	}
	return err
}

// confirmed records an applied confirmation.
func (t *Tracker) confirmed(sessionID, code string) {
	t.matcher.Remember(code)
	t.metrics.Confirmed("applied")
	slog.Info("project confirmed", "session", sessionID, "project", code)
}

// Shutdown treats now as a final observation of the last known window: the
// open session is extended to now and persisted whatever its length, then
// pending writes are drained. Later calls are no-ops.
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	if t.tracking && t.open != nil {
		sess := t.open
		t.open = nil
		sess.Duration = elapsed(sess.StartedAt, t.now()).Seconds()
		t.w.upsert(*sess)
		t.metrics.Finalized()
		slog.Debug("session finalized at shutdown", "session", sess.ID, "duration", sess.Duration, "project", sess.Code())
	}
	t.closed = true
	t.mu.Unlock()

	return t.w.close(ctx)
}

// Flush waits until every write issued so far has reached the store or failed.
func (t *Tracker) Flush(ctx context.Context) error {
	return t.w.flush(ctx)
}

// Current returns a copy of the open session with its duration measured up
// to now.
func (t *Tracker) Current() (activity.Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.open == nil {
		return activity.Session{}, false
	}
	s := t.open.Clone()
	s.Duration = elapsed(s.StartedAt, t.now()).Seconds()
	return s, true
}

// Tracking reports whether snapshots are being recorded.
func (t *Tracker) Tracking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracking
}

// LastSnapshot returns the most recent non-nil snapshot seen while tracking.
func (t *Tracker) LastSnapshot() (activity.WindowSnapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return activity.WindowSnapshot{}, false
	}
	return *t.last, true
}

// RecentProjects returns the matcher's recency cache, most recent first.
func (t *Tracker) RecentProjects() []string {
	return t.matcher.Recent()
}

// ///////////////////////////////////////////////
// Session Lifecycle
// ///////////////////////////////////////////////

// openSession starts a session for s. It is persisted right away so a crash
// loses at most one poll interval; a later discard deletes it again.
func (t *Tracker) openSession(s activity.WindowSnapshot, now time.Time) {
	sess := activity.Session{
		ID:          t.newID(),
		Application: s.Application,
		Title:       s.Title,
		Path:        s.Path,
		StartedAt:   now,
	}
	code, ok := t.matcher.Infer(s.Title, s.Path)
	if ok {
		sess.SetCode(code)
	}
	t.open = &sess
	t.w.upsert(sess)
	t.metrics.Opened()

	slog.Debug("session opened", "session", sess.ID, "app", sess.Application, "title", sess.Title, "project", code)

	if ok && t.sink != nil {
		t.sink.Notify(activity.NewConfirmationRequest(sess, code))
	}
}

// closeOpen finalizes or discards the open session at now.
func (t *Tracker) closeOpen(now time.Time) {
	if t.open == nil {
		return
	}
	sess := t.open
	t.open = nil

	d := elapsed(sess.StartedAt, now)
	if d < t.minDuration {
		t.w.delete(sess.ID)
		t.metrics.Discarded()
		slog.Debug("session discarded", "session", sess.ID, "elapsed", d)
		return
	}
	sess.Duration = d.Seconds()
	t.w.upsert(*sess)
	t.metrics.Finalized()
	slog.Debug("session closed", "session", sess.ID, "app", sess.Application, "duration", d, "project", sess.Code())
}

// elapsed clamps clock skew to zero so durations are never negative.
func elapsed(start, now time.Time) time.Duration {
	if d := now.Sub(start); d > 0 {
		return d
	}
	return 0
}
