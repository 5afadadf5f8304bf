package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"tools.zach/dev/timetrack/internal/activity"
)

// SQLStore keeps sessions in one table of a SQLite or PostgreSQL database.
// Start times are stored as Unix nanoseconds so range queries behave the same
// on both engines.
type SQLStore struct {
	db       *sql.DB
	postgres bool
}

var _ Store = (*SQLStore)(nil)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		application TEXT NOT NULL,
		title TEXT NOT NULL,
		path TEXT NOT NULL,
		project_code TEXT,
		started_at BIGINT NOT NULL,
		duration DOUBLE PRECISION NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_code)`,
}

// OpenSQLite opens or creates the database file at path in WAL mode.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	dsn := path
	if !strings.Contains(path, "?") && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = path + "?_journal=WAL&_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite serializes writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return newSQLStore(ctx, db, false)
}

// OpenPostgres connects using a lib/pq connection string or URL.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return newSQLStore(ctx, db, true)
}

func newSQLStore(ctx context.Context, db *sql.DB, postgres bool) (*SQLStore, error) {
	s := &SQLStore{db: db, postgres: postgres}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, q := range schema {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// ///////////////////////////////////////////////
// Session Operations
// ///////////////////////////////////////////////

// Upsert inserts sess or replaces the row with its id.
func (s *SQLStore) Upsert(ctx context.Context, sess activity.Session) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO sessions (id, application, title, path, project_code, started_at, duration)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			application = excluded.application,
			title = excluded.title,
			path = excluded.path,
			project_code = excluded.project_code,
			started_at = excluded.started_at,
			duration = excluded.duration
	`), sess.ID, sess.Application, sess.Title, sess.Path, nullCode(sess.ProjectCode), sess.StartedAt.UnixNano(), sess.Duration)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// Delete removes the row for id.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM sessions WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

const selectSessions = `SELECT id, application, title, path, project_code, started_at, duration FROM sessions`

// Get returns the session with id or [ErrNotFound].
func (s *SQLStore) Get(ctx context.Context, id string) (activity.Session, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(selectSessions+` WHERE id = ?`), id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return activity.Session{}, ErrNotFound
	}
	if err != nil {
		return activity.Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// Query selects the sessions matching f ordered by start time.
func (s *SQLStore) Query(ctx context.Context, f activity.Filter) ([]activity.Session, error) {
	var (
		where []string
		args  []any
	)
	if !f.Range.From.IsZero() {
		where = append(where, "started_at >= ?")
		args = append(args, f.Range.From.UnixNano())
	}
	if !f.Range.To.IsZero() {
		where = append(where, "started_at < ?")
		args = append(args, f.Range.To.UnixNano())
	}
	if f.Project != nil {
		where = append(where, "project_code = ?")
		args = append(args, *f.Project)
	}
	if f.CodedOnly {
		where = append(where, "project_code IS NOT NULL")
	}

	q := selectSessions
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY started_at, id"

	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []activity.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (activity.Session, error) {
	var (
		sess      activity.Session
		code      sql.NullString
		startedAt int64
	)
	if err := sc.Scan(&sess.ID, &sess.Application, &sess.Title, &sess.Path, &code, &startedAt, &sess.Duration); err != nil {
		return activity.Session{}, err
	}
	if code.Valid {
		sess.SetCode(code.String)
	}
	sess.StartedAt = time.Unix(0, startedAt)
	return sess, nil
}

func nullCode(code *string) sql.NullString {
	if code == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *code, Valid: true}
}

// rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL.
func (s *SQLStore) rebind(q string) string {
	if !s.postgres {
		return q
	}
	return rebindDollar(q)
}

func rebindDollar(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
