// Package store persists activity sessions. Every implementation satisfies
// [Store]: writes are idempotent upserts and deletes keyed by session id, and
// reads return sessions sorted by start time.
//
// Four backends are available through [Open]:
//
//   - "json": one file per local day under a directory, readable by hand and
//     compatible with files written by older releases (see [JSONStore])
//   - "sqlite": a single SQLite database file
//   - "postgres": a PostgreSQL database reached through a DSN
//   - "memory": process-local, for tests and dry runs
package store

import (
	"cmp"
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"tools.zach/dev/timetrack/internal/activity"
)

// ErrNotFound is returned by Get for unknown session ids.
var ErrNotFound = activity.ErrNotFound

// Store is a session store. Implementations are safe for concurrent use.
type Store interface {
	// Upsert inserts sess or replaces the stored session with the same id.
	Upsert(ctx context.Context, sess activity.Session) error
	// Delete removes the session with id. Unknown ids are not an error.
	Delete(ctx context.Context, id string) error
	// Get returns the session with id or [ErrNotFound].
	Get(ctx context.Context, id string) (activity.Session, error)
	// Query returns the sessions matching f ordered by start time.
	Query(ctx context.Context, f activity.Filter) ([]activity.Session, error)
	// Close releases the backend.
	Close() error
}

// ///////////////////////////////////////////////
// Open
// ///////////////////////////////////////////////

// Options selects and configures a backend. Built from config.StoreConfig.
type Options struct {
	// Driver is "json", "sqlite", "postgres", or "memory".
	Driver string
	// DSN is the directory (json), database file (sqlite), or connection
	// string (postgres). Empty uses a default under DataDir where possible.
	DSN string
	// DataDir is the base for default locations.
	DataDir string
	// WarnSizeMB is the json store size above which a warning is logged.
	// Zero disables the check.
	WarnSizeMB int
}

// Default file names under Options.DataDir.
const (
	DefaultJSONDir    = "sessions"
	DefaultSQLiteFile = "sessions.db"
)

// Open returns the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", "json":
		dir := opts.DSN
		if dir == "" {
			dir = filepath.Join(opts.DataDir, DefaultJSONDir)
		}
		return OpenJSON(dir, opts.WarnSizeMB)
	case "sqlite":
		path := opts.DSN
		if path == "" {
			path = filepath.Join(opts.DataDir, DefaultSQLiteFile)
		}
		return OpenSQLite(ctx, path)
	case "postgres":
		if opts.DSN == "" {
			return nil, fmt.Errorf("store driver postgres requires a dsn")
		}
		return OpenPostgres(ctx, opts.DSN)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

// sortSessions orders by start time, then id for a stable result.
func sortSessions(sessions []activity.Session) {
	slices.SortFunc(sessions, func(a, b activity.Session) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// filterSessions returns the clones of sessions that pass f, sorted.
func filterSessions(sessions []activity.Session, f activity.Filter) []activity.Session {
	out := make([]activity.Session, 0, len(sessions))
	for _, s := range sessions {
		if f.Match(s) {
			out = append(out, s.Clone())
		}
	}
	sortSessions(out)
	return out
}
