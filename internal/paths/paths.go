// Package paths names every file the daemon keeps under its data directory.
package paths

import (
	"os"
	"path/filepath"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	ConfigFile  = "config.toml"
	LogFile     = "daemon.log"
	PIDFile     = "daemon.pid"
	SessionsDir = "sessions"
	SQLiteFile  = "sessions.db"
	RecentFile  = "recent.json"
	ProbeFile   = "window.json"
	EnvFile     = ".env"
)

const (
	BinaryName = "timetrack"
	DataDirRel = ".timetrack" // relative to $HOME
)

// EnvDataDir overrides the default data directory when set.
const EnvDataDir = "TIMETRACK_HOME"

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir builds paths rooted at a data directory.
type DataDir struct {
	Root string
}

// Default returns $TIMETRACK_HOME, or ~/.timetrack when unset.
func Default() (DataDir, error) {
	if root := os.Getenv(EnvDataDir); root != "" {
		return DataDir{Root: root}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return DataDir{}, err
	}
	return DataDir{Root: filepath.Join(home, DataDirRel)}, nil
}

// Ensure creates the root directory if it is missing.
func (d DataDir) Ensure() error { return os.MkdirAll(d.Root, 0o755) }

// Config, Log, and PID are the daemon's own files.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }
func (d DataDir) Log() string    { return filepath.Join(d.Root, LogFile) }
func (d DataDir) PID() string    { return filepath.Join(d.Root, PIDFile) }

// Sessions is the JSON store's day-file directory.
func (d DataDir) Sessions() string { return filepath.Join(d.Root, SessionsDir) }

// SQLite is the default sqlite database when the store DSN is empty.
func (d DataDir) SQLite() string { return filepath.Join(d.Root, SQLiteFile) }

// Recent persists the matcher's recency cache across restarts.
func (d DataDir) Recent() string { return filepath.Join(d.Root, RecentFile) }

// Probe is the default window snapshot file for the file source.
func (d DataDir) Probe() string { return filepath.Join(d.Root, ProbeFile) }

// Env is the optional dotenv file loaded before env overrides.
func (d DataDir) Env() string { return filepath.Join(d.Root, EnvFile) }
