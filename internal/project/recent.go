package project

import (
	"encoding/json"
	"fmt"
	"os"

	"tools.zach/dev/timetrack/internal/atomicfile"
)

// recentFile is the on-disk shape of the durable recency cache.
type recentFile struct {
	Recent []string `json:"recent"`
}

// LoadRecent reads a persisted recency cache. A missing file yields an empty
// cache and no error.
func LoadRecent(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read recent projects: %w", err)
	}
	var rf recentFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse recent projects: %w", err)
	}
	return rf.Recent, nil
}

// SaveRecent atomically writes the recency cache to path.
func SaveRecent(path string, codes []string) error {
	if codes == nil {
		codes = []string{}
	}
	return atomicfile.WriteJSON(path, recentFile{Recent: codes}, 0o600)
}
