package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"tools.zach/dev/timetrack/internal/activity"
	"tools.zach/dev/timetrack/internal/atomicfile"
	"tools.zach/dev/timetrack/internal/migrate"
)

// dayLayout names day files: 2024-03-04.json.
const dayLayout = "2006-01-02"

// sizeCheckInterval rate-limits the storage size warning.
const sizeCheckInterval = 10 * time.Minute

// dayFile is the on-disk shape of one day of sessions.
type dayFile struct {
	Version  int                `json:"version"`
	Sessions []activity.Session `json:"sessions"`
}

// JSONStore keeps one JSON file per local calendar day of session start.
// Files from older releases (a bare array per day) are upgraded in place on
// open, with a .bak copy of the original.
type JSONStore struct {
	dir       string
	warnBytes int64
	now       func() time.Time

	mu sync.Mutex
	// index maps session id to the day file that holds it.
	index         map[string]string
	lastSizeCheck time.Time
}

var _ Store = (*JSONStore)(nil)

// OpenJSON opens or creates a store in dir. Every day file is read once to
// build the id index, which also upgrades legacy files.
func OpenJSON(dir string, warnSizeMB int) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	s := &JSONStore{
		dir:       dir,
		warnBytes: int64(warnSizeMB) * 1_000_000,
		now:       time.Now,
		index:     make(map[string]string),
	}

	days, err := s.listDays()
	if err != nil {
		return nil, err
	}
	for _, day := range days {
		sessions, err := s.readDay(day)
		if err != nil {
			return nil, err
		}
		for _, sess := range sessions {
			s.index[sess.ID] = day
		}
	}
	slog.Debug("json session store opened", "dir", dir, "days", len(days), "sessions", len(s.index))
	s.checkSize()
	return s, nil
}

// Upsert writes sess into the day file already holding it, or else the file
// for the local date of its start.
func (s *JSONStore) Upsert(ctx context.Context, sess activity.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	day, ok := s.index[sess.ID]
	if !ok {
		day = sess.StartedAt.Local().Format(dayLayout)
	}
	sessions, err := s.readDay(day)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(sessions, func(x activity.Session) bool { return x.ID == sess.ID })
	if i >= 0 {
		sessions[i] = sess.Clone()
	} else {
		sessions = append(sessions, sess.Clone())
	}
	if err := s.writeDay(day, sessions); err != nil {
		return err
	}
	s.index[sess.ID] = day
	s.checkSize()
	return nil
}

// Delete removes id from its day file, removing the file once empty.
func (s *JSONStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	day, ok := s.index[id]
	if !ok {
		return nil
	}
	sessions, err := s.readDay(day)
	if err != nil {
		return err
	}
	sessions = slices.DeleteFunc(sessions, func(x activity.Session) bool { return x.ID == id })
	if err := s.writeDay(day, sessions); err != nil {
		return err
	}
	delete(s.index, id)
	return nil
}

// Get reads the session with id from its day file.
func (s *JSONStore) Get(ctx context.Context, id string) (activity.Session, error) {
	if err := ctx.Err(); err != nil {
		return activity.Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	day, ok := s.index[id]
	if !ok {
		return activity.Session{}, ErrNotFound
	}
	sessions, err := s.readDay(day)
	if err != nil {
		return activity.Session{}, err
	}
	for _, sess := range sessions {
		if sess.ID == id {
			return sess, nil
		}
	}
	return activity.Session{}, ErrNotFound
}

// Query reads only the day files that can hold sessions in f.Range. A file
// may hold sessions that started the day before it, when an older release
// filed them by end time.
func (s *JSONStore) Query(ctx context.Context, f activity.Filter) ([]activity.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	days, err := s.listDays()
	if err != nil {
		return nil, err
	}
	var all []activity.Session
	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !dayOverlaps(day, f.Range) {
			continue
		}
		sessions, err := s.readDay(day)
		if err != nil {
			return nil, err
		}
		all = append(all, sessions...)
	}
	return filterSessions(all, f), nil
}

// Close is a no-op; every write is already on disk.
func (s *JSONStore) Close() error { return nil }

// ///////////////////////////////////////////////
// Day Files
// ///////////////////////////////////////////////

func (s *JSONStore) dayPath(day string) string {
	return filepath.Join(s.dir, day+".json")
}

// listDays returns the day keys of all day files, oldest first.
func (s *JSONStore) listDays() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list session dir: %w", err)
	}
	var days []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		day := strings.TrimSuffix(name, ".json")
		if _, err := time.Parse(dayLayout, day); err != nil {
			continue
		}
		days = append(days, day)
	}
	slices.Sort(days)
	return days, nil
}

// readDay loads one day file, upgrading it on disk first if it is an older
// version. A missing file is an empty day.
func (s *JSONStore) readDay(day string) ([]activity.Session, error) {
	path := s.dayPath(day)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	version := peekDayVersion(data)
	if migrate.SessionFile.NeedsMigration(version) {
		migrate.Backup(path, data)
		upgraded, _, err := migrate.SessionFile.Run(data, version)
		if err != nil {
			return nil, fmt.Errorf("migrate %s: %w", filepath.Base(path), err)
		}
		if err := atomicfile.Write(path, upgraded, 0o644); err != nil {
			return nil, fmt.Errorf("write migrated %s: %w", filepath.Base(path), err)
		}
		slog.Info("upgraded session file", "file", filepath.Base(path), "from", version)
		data = upgraded
	}

	var f dayFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return f.Sessions, nil
}

// writeDay replaces a day file. An empty day removes the file.
func (s *JSONStore) writeDay(day string, sessions []activity.Session) error {
	path := s.dayPath(day)
	if len(sessions) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", filepath.Base(path), err)
		}
		return nil
	}
	sortSessions(sessions)
	f := dayFile{Version: migrate.SessionFile.CurrentVersion, Sessions: sessions}
	if err := atomicfile.WriteJSON(path, f, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// peekDayVersion returns 1 for a legacy bare array, otherwise the version
// field of the object (1 when absent).
func peekDayVersion(data []byte) int {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return 1
	}
	var v struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(trimmed, &v); err != nil || v.Version == 0 {
		return 1
	}
	return v.Version
}

// dayOverlaps reports whether the file for day can hold a session starting in
// r. The file covers starts from the previous local midnight up to the next.
func dayOverlaps(day string, r activity.Range) bool {
	start, err := time.ParseInLocation(dayLayout, day, time.Local)
	if err != nil {
		return false
	}
	earliest := start.AddDate(0, 0, -1)
	end := start.AddDate(0, 0, 1)
	if !r.From.IsZero() && !end.After(r.From) {
		return false
	}
	if !r.To.IsZero() && !earliest.Before(r.To) {
		return false
	}
	return true
}

// ///////////////////////////////////////////////
// Size Warning
// ///////////////////////////////////////////////

// checkSize logs a warning when the directory exceeds the configured size.
// It walks the directory at most once per sizeCheckInterval and reports
// whether it warned.
func (s *JSONStore) checkSize() bool {
	if s.warnBytes <= 0 {
		return false
	}
	now := s.now()
	if !s.lastSizeCheck.IsZero() && now.Sub(s.lastSizeCheck) < sizeCheckInterval {
		return false
	}
	s.lastSizeCheck = now

	size, err := dirSize(s.dir)
	if err != nil {
		slog.Debug("session dir size check failed", "error", err)
		return false
	}
	if size <= s.warnBytes {
		return false
	}
	slog.Warn("session storage is using significant space, consider archiving old days",
		"dir", s.dir,
		"size_mb", size/1_000_000,
		"warn_size_mb", s.warnBytes/1_000_000,
	)
	return true
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
