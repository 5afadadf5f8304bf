package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tools.zach/dev/timetrack/internal/activity"
	"tools.zach/dev/timetrack/internal/metrics"
)

// maxPending bounds the retry list. Beyond it the oldest failed write is
// dropped and reported.
const maxPending = 256

type jobKind int

const (
	jobUpsert jobKind = iota
	jobDelete
	jobConfirm
	jobBarrier
)

func (k jobKind) String() string {
	switch k {
	case jobUpsert:
		return "upsert"
	case jobDelete:
		return "delete"
	case jobConfirm:
		return "confirm"
	default:
		return "barrier"
	}
}

// job is one unit of work for the writer goroutine.
type job struct {
	kind jobKind
	sess activity.Session
	// code is the confirmed code for jobConfirm.
	code string
	// done receives the result of jobConfirm and is closed for jobBarrier.
	done chan error
}

// writer applies store operations on a single goroutine in enqueue order.
// Enqueueing never blocks: the queue is an unbounded slice and wake coalesces
// signals the same way the file watcher coalesces change events.
type writer struct {
	store   Store
	timeout time.Duration
	report  func(error)
	metrics *metrics.Metrics
	// applied runs on the writer goroutine after a confirmation is applied.
	applied func(id, code string)

	mu       sync.Mutex
	queue    []job
	stopping bool
	wake     chan struct{}
	done     chan struct{}

	// pending holds failed upserts and deletes in failure order. Only the
	// writer goroutine touches it.
	pending []job
}

func newWriter(store Store, timeout time.Duration, report func(error), m *metrics.Metrics, applied func(id, code string)) *writer {
	w := &writer{
		store:   store,
		timeout: timeout,
		report:  report,
		metrics: m,
		applied: applied,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// ///////////////////////////////////////////////
// Producer Side
// ///////////////////////////////////////////////

func (w *writer) upsert(sess activity.Session) {
	w.enqueue(job{kind: jobUpsert, sess: sess.Clone()})
}

func (w *writer) delete(id string) {
	w.enqueue(job{kind: jobDelete, sess: activity.Session{ID: id}})
}

// confirm queues a code change for a session no longer open and waits for the
// writer to apply it after every earlier write.
func (w *writer) confirm(ctx context.Context, id, code string) error {
	j := job{kind: jobConfirm, sess: activity.Session{ID: id}, code: code, done: make(chan error, 1)}
	if !w.enqueue(j) {
		return ErrClosed
	}
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// flush waits until every job queued before the call has been processed.
func (w *writer) flush(ctx context.Context) error {
	j := job{kind: jobBarrier, done: make(chan error)}
	if !w.enqueue(j) {
		return ErrClosed
	}
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close drains the queue and stops the goroutine. Jobs enqueued afterwards
// are rejected.
func (w *writer) close(ctx context.Context) error {
	w.mu.Lock()
	w.stopping = true
	w.mu.Unlock()
	w.signal()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain session writes: %w", ctx.Err())
	}
}

func (w *writer) enqueue(j job) bool {
	w.mu.Lock()
	if w.stopping {
		w.mu.Unlock()
		w.report(&StoreWriteError{Op: j.kind.String(), SessionID: j.sess.ID, Err: ErrClosed})
		return false
	}
	w.queue = append(w.queue, j)
	w.mu.Unlock()
	w.signal()
	return true
}

func (w *writer) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// ///////////////////////////////////////////////
// Consumer Side
// ///////////////////////////////////////////////

func (w *writer) run() {
	defer close(w.done)
	for {
		j, ok := w.next()
		if !ok {
			if len(w.pending) > 0 {
				slog.Warn("session writes still failing at shutdown", "pending", len(w.pending))
			}
			return
		}
		w.process(j)
	}
}

// next blocks until a job is available. It returns false once the writer is
// stopping and the queue is empty.
func (w *writer) next() (job, bool) {
	for {
		w.mu.Lock()
		if len(w.queue) > 0 {
			j := w.queue[0]
			w.queue[0] = job{}
			w.queue = w.queue[1:]
			w.mu.Unlock()
			return j, true
		}
		stopping := w.stopping
		w.mu.Unlock()
		if stopping {
			return job{}, false
		}
		<-w.wake
	}
}

func (w *writer) process(j job) {
	switch j.kind {
	case jobBarrier:
		close(j.done)
	case jobConfirm:
		w.replay()
		err := w.applyCode(j.sess.ID, j.code)
		if err == nil && w.applied != nil {
			w.applied(j.sess.ID, j.code)
		}
		j.done <- err
	default:
		w.replay()
		// A newer write for the same session supersedes a failed older one.
		w.dropPending(j.sess.ID)
		if err := w.exec(j); err != nil {
			w.fail(j, err)
		}
	}
}

// applyCode sets the project code on a closed session. A failed write for the
// session is still pending, so the code goes into the pending record.
func (w *writer) applyCode(id, code string) error {
	for i := range w.pending {
		p := &w.pending[i]
		if p.sess.ID != id {
			continue
		}
		if p.kind == jobDelete {
			return ErrUnknownSession
		}
		p.sess.SetCode(code)
		if err := w.exec(*p); err == nil {
			w.dropPending(id)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	sess, err := w.store.Get(ctx, id)
	cancel()
	if errors.Is(err, activity.ErrNotFound) {
		return ErrUnknownSession
	}
	if err != nil {
		w.metrics.StoreError("get")
		swe := &StoreWriteError{Op: "get", SessionID: id, Err: err}
		w.report(swe)
		return swe
	}

	sess.SetCode(code)
	up := job{kind: jobUpsert, sess: sess}
	if err := w.exec(up); err != nil {
		w.fail(up, err)
	}
	return nil
}

func (w *writer) exec(j job) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	switch j.kind {
	case jobUpsert:
		return w.store.Upsert(ctx, j.sess)
	case jobDelete:
		return w.store.Delete(ctx, j.sess.ID)
	default:
		return fmt.Errorf("unexpected job kind %s", j.kind)
	}
}

// fail reports err and keeps j for retry.
func (w *writer) fail(j job, err error) {
	w.metrics.StoreError(j.kind.String())
	w.report(&StoreWriteError{Op: j.kind.String(), SessionID: j.sess.ID, Err: err})

	w.pending = append(w.pending, j)
	if len(w.pending) > maxPending {
		dropped := w.pending[0]
		w.pending = w.pending[1:]
		w.report(&StoreWriteError{
			Op:        dropped.kind.String(),
			SessionID: dropped.sess.ID,
			Err:       errors.New("retry list full, write dropped"),
		})
	}
	w.metrics.Pending(len(w.pending))
}

// replay retries pending writes in order, stopping at the first failure since
// the store is most likely still unavailable.
func (w *writer) replay() {
	for len(w.pending) > 0 {
		p := w.pending[0]
		if err := w.exec(p); err != nil {
			slog.Debug("retry of session write failed", "op", p.kind.String(), "session", p.sess.ID, "error", err)
			break
		}
		slog.Debug("retried session write", "op", p.kind.String(), "session", p.sess.ID)
		w.pending = w.pending[1:]
	}
	w.metrics.Pending(len(w.pending))
}

func (w *writer) dropPending(id string) {
	kept := w.pending[:0]
	for _, p := range w.pending {
		if p.sess.ID != id {
			kept = append(kept, p)
		}
	}
	w.pending = kept
	w.metrics.Pending(len(w.pending))
}
