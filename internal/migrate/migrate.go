// Package migrate upgrades versioned on-disk files one schema version at a
// time. Each file kind has its own [Registry]: [Config] for config.toml and
// [SessionFile] for the per-day session files written by the JSON store.
package migrate

import (
	"cmp"
	"fmt"
	"log/slog"
	"os"
	"slices"
)

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Migration upgrades data to Version from the version before it.
type Migration struct {
	// Version is the schema version this migration produces.
	Version int
	// Description is a short label for log output.
	Description string
	// Upgrade transforms data from the prior version to [Migration.Version].
	Upgrade func(data []byte) ([]byte, error)
}

// Registry holds the current version and the upgrade chain for one file kind.
type Registry struct {
	// Name identifies the file kind in log output.
	Name string
	// CurrentVersion is the version written by this build.
	CurrentVersion int
	// Migrations is exported so tests can swap the chain for one registry.
	Migrations []Migration
}

// Config is the registry for config.toml.
var Config = &Registry{Name: "config", CurrentVersion: 1}

// SessionFile is the registry for the JSON store's day files. Version 1 is the
// legacy bare array; the upgrade is registered by the store package.
var SessionFile = &Registry{Name: "session file", CurrentVersion: 2}

// ///////////////////////////////////////////////
// Registry
// ///////////////////////////////////////////////

// Register adds m. It panics on a duplicate version.
func (r *Registry) Register(m Migration) {
	for _, existing := range r.Migrations {
		if existing.Version == m.Version {
			panic(fmt.Sprintf("migrate: duplicate %s migration version %d (description: %q)", r.Name, m.Version, m.Description))
		}
	}
	r.Migrations = append(r.Migrations, m)
}

// NeedsMigration reports whether a file at fileVersion is not current.
func (r *Registry) NeedsMigration(fileVersion int) bool {
	return fileVersion != r.CurrentVersion
}

// Run applies every registered migration newer than fromVersion in version
// order. It returns the upgraded data and the version reached. A file newer
// than CurrentVersion is an error: this build cannot read it.
func (r *Registry) Run(data []byte, fromVersion int) ([]byte, int, error) {
	if fromVersion > r.CurrentVersion {
		return nil, fromVersion, fmt.Errorf("%s version %d is newer than supported version %d", r.Name, fromVersion, r.CurrentVersion)
	}

	sorted := slices.SortedFunc(slices.Values(r.Migrations), func(a, b Migration) int {
		return cmp.Compare(a.Version, b.Version)
	})

	version := fromVersion
	for _, m := range sorted {
		if m.Version <= version || m.Version > r.CurrentVersion {
			continue
		}
		slog.Info("applying migration", "target", r.Name, "version", m.Version, "description", m.Description)
		next, err := m.Upgrade(data)
		if err != nil {
			return nil, version, fmt.Errorf("%s migration to v%d failed: %w", r.Name, m.Version, err)
		}
		data, version = next, m.Version
	}
	if version != r.CurrentVersion {
		return nil, version, fmt.Errorf("no %s migration path from v%d to v%d", r.Name, version, r.CurrentVersion)
	}
	return data, version, nil
}

// ///////////////////////////////////////////////
// Backups
// ///////////////////////////////////////////////

// Backup writes data to path+".bak" so a migration can be undone by hand.
// A failure is logged and otherwise ignored.
func Backup(path string, data []byte) {
	if err := os.WriteFile(path+".bak", data, 0o644); err != nil {
		slog.Warn("failed to write backup before migration", "path", path, "error", err)
	}
}
