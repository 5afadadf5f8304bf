package store

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"tools.zach/dev/timetrack/internal/activity"
	"tools.zach/dev/timetrack/internal/migrate"
)

func init() {
	migrate.SessionFile.Register(migrate.Migration{
		Version:     2,
		Description: "wrap legacy day array, assign ids and start times",
		Upgrade:     upgradeLegacyDay,
	})
}

// legacyRecord is one entry of a version 1 day file. Timestamp is the save
// time in Unix seconds, which was when the activity ended.
type legacyRecord struct {
	Application string  `json:"application"`
	Title       string  `json:"title"`
	Path        string  `json:"path"`
	Duration    float64 `json:"duration"`
	Timestamp   float64 `json:"timestamp"`
}

// legacyNamespace derives stable ids for legacy records so an interrupted
// upgrade that runs again produces the same ids.
var legacyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("timetrack:legacy-session"))

func upgradeLegacyDay(data []byte) ([]byte, error) {
	var records []legacyRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse legacy day: %w", err)
	}

	sessions := make([]activity.Session, 0, len(records))
	for i, r := range records {
		sec, frac := math.Modf(r.Timestamp)
		end := time.Unix(int64(sec), int64(frac*1e9))
		dur := max(r.Duration, 0)
		name := fmt.Sprintf("%d|%d|%s|%s", i, end.UnixNano(), r.Application, r.Title)
		sessions = append(sessions, activity.Session{
			ID:          uuid.NewSHA1(legacyNamespace, []byte(name)).String(),
			Application: r.Application,
			Title:       r.Title,
			Path:        r.Path,
			StartedAt:   end.Add(-activity.Seconds(dur)),
			Duration:    dur,
		})
	}
	sortSessions(sessions)
	return json.MarshalIndent(dayFile{Version: 2, Sessions: sessions}, "", "  ")
}
