package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tools.zach/dev/timetrack/internal/activity"
)

func TestJSONStoreLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenJSON(dir, 0)
	require.NoError(t, err)
	ctx := context.Background()

	sess := session("a", 0, code("BMS1180"))
	require.NoError(t, s.Upsert(ctx, sess))

	path := filepath.Join(dir, base.Format(dayLayout)+".json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var f dayFile
	require.NoError(t, json.Unmarshal(data, &f))
	assert.Equal(t, 2, f.Version)
	require.Len(t, f.Sessions, 1)
	assert.Equal(t, "a", f.Sessions[0].ID)

	// Deleting the last session of a day removes the file.
	require.NoError(t, s.Delete(ctx, "a"))
	assert.NoFileExists(t, path)
}

func TestJSONStoreReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenJSON(dir, 0)
	require.NoError(t, err)
	want := session("a", 0, code("PJT4521"))
	require.NoError(t, s.Upsert(ctx, want))
	require.NoError(t, s.Upsert(ctx, session("b", 30*time.Hour, nil)))

	s2, err := OpenJSON(dir, 0)
	require.NoError(t, err)
	got, err := s2.Get(ctx, "a")
	require.NoError(t, err)
	requireSameSession(t, want, got)

	all, err := s2.Query(ctx, activity.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(all))
}

func TestJSONStoreMigratesLegacyDay(t *testing.T) {
	dir := t.TempDir()
	end := time.Date(2024, 1, 15, 10, 30, 0, 0, time.Local)
	legacy := []map[string]any{
		{"application": "Word", "title": "BMS 1180 draft", "path": "/Users/x/plan.docx", "duration": 600.0, "timestamp": float64(end.Unix())},
		{"application": "Mail", "title": "Inbox", "path": "", "duration": 30.0, "timestamp": float64(end.Add(time.Hour).Unix())},
	}
	data, err := json.MarshalIndent(legacy, "", "  ")
	require.NoError(t, err)
	path := filepath.Join(dir, "2024-01-15.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	s, err := OpenJSON(dir, 0)
	require.NoError(t, err)

	all, err := s.Query(context.Background(), activity.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	word := all[0]
	assert.Equal(t, "Word", word.Application)
	assert.Equal(t, "BMS 1180 draft", word.Title)
	assert.Equal(t, 600.0, word.Duration)
	assert.True(t, word.StartedAt.Equal(end.Add(-10*time.Minute)), "start = save time - duration, got %v", word.StartedAt)
	assert.False(t, word.HasCode())
	assert.NotEmpty(t, word.ID)

	got, err := s.Get(context.Background(), word.ID)
	require.NoError(t, err)
	assert.Equal(t, word.ID, got.ID)

	// The original is kept and the file is rewritten in the current format.
	backup, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, data, backup)
	assert.Equal(t, 2, peekDayVersion(mustRead(t, path)))
}

func TestLegacyIDsStable(t *testing.T) {
	data := []byte(`[{"application":"Word","title":"Report","path":"","duration":60,"timestamp":1705314600}]`)
	a, err := upgradeLegacyDay(data)
	require.NoError(t, err)
	b, err := upgradeLegacyDay(data)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPeekDayVersion(t *testing.T) {
	assert.Equal(t, 1, peekDayVersion([]byte("  [ ]")))
	assert.Equal(t, 2, peekDayVersion([]byte(`{"version":2,"sessions":[]}`)))
	assert.Equal(t, 1, peekDayVersion([]byte(`{"sessions":[]}`)))
}

func TestJSONStoreRejectsNewerFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2024-01-15.json"), []byte(`{"version":9,"sessions":[]}`), 0o644))
	_, err := OpenJSON(dir, 0)
	assert.Error(t, err)
}

func TestJSONStoreIgnoresStrayFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{nope"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2024-01-15.json.bak"), []byte("[]"), 0o644))
	_, err := OpenJSON(dir, 0)
	assert.NoError(t, err)
}

func TestDayOverlaps(t *testing.T) {
	day := "2024-03-04"
	midnight := time.Date(2024, 3, 4, 0, 0, 0, 0, time.Local)
	tests := []struct {
		name string
		r    activity.Range
		want bool
	}{
		{"unbounded", activity.Range{}, true},
		{"same day", activity.Range{From: midnight.Add(time.Hour), To: midnight.Add(2 * time.Hour)}, true},
		{"previous day (legacy spill)", activity.Range{From: midnight.Add(-2 * time.Hour), To: midnight.Add(-time.Hour)}, true},
		{"next day", activity.Range{From: midnight.AddDate(0, 0, 1)}, false},
		{"two days before", activity.Range{To: midnight.AddDate(0, 0, -1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dayOverlaps(day, tt.r))
		})
	}
}

func TestJSONStoreSizeWarning(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenJSON(dir, 1)
	require.NoError(t, err)

	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	s.lastSizeCheck = time.Time{}

	assert.False(t, s.checkSize(), "empty dir is under the limit")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.bin"), make([]byte, 1_500_000), 0o644))
	now = now.Add(time.Minute)
	assert.False(t, s.checkSize(), "rate limited")

	now = now.Add(sizeCheckInterval)
	assert.True(t, s.checkSize())
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}
