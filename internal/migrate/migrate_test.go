// Tests for [Registry]: ordered upgrades, skipped versions, error
// propagation, missing paths, and backups.
package migrate

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func appendStep(suffix string) func([]byte) ([]byte, error) {
	return func(d []byte) ([]byte, error) {
		return append(d, suffix...), nil
	}
}

// ///////////////////////////////////////////////
// Run
// ///////////////////////////////////////////////

func TestRunAppliesInVersionOrder(t *testing.T) {
	r := &Registry{Name: "test", CurrentVersion: 3}
	r.Register(Migration{Version: 3, Description: "v2->v3", Upgrade: appendStep("-v3")})
	r.Register(Migration{Version: 2, Description: "v1->v2", Upgrade: appendStep("-v2")})

	out, version, err := r.Run([]byte("data"), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != 3 {
		t.Fatalf("expected version 3, got %d", version)
	}
	if string(out) != "data-v2-v3" {
		t.Fatalf("expected data-v2-v3, got %q", out)
	}
}

func TestRunSkipsAppliedVersions(t *testing.T) {
	r := &Registry{Name: "test", CurrentVersion: 3}
	r.Register(Migration{Version: 2, Description: "already applied", Upgrade: func([]byte) ([]byte, error) {
		t.Fatal("v2 migration must be skipped")
		return nil, nil
	}})
	r.Register(Migration{Version: 3, Description: "v2->v3", Upgrade: appendStep("-v3")})

	out, version, err := r.Run([]byte("data"), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != 3 || string(out) != "data-v3" {
		t.Fatalf("got (%q, %d), want (data-v3, 3)", out, version)
	}
}

func TestRunCurrentIsNoop(t *testing.T) {
	r := &Registry{Name: "test", CurrentVersion: 1}
	out, version, err := r.Run([]byte("original"), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != 1 || string(out) != "original" {
		t.Fatalf("got (%q, %d), want (original, 1)", out, version)
	}
}

func TestRunStopsOnError(t *testing.T) {
	r := &Registry{Name: "test", CurrentVersion: 3}
	r.Register(Migration{Version: 2, Description: "v1->v2", Upgrade: appendStep("-v2")})
	r.Register(Migration{Version: 3, Description: "v2->v3 fails", Upgrade: func([]byte) ([]byte, error) {
		return nil, errors.New("boom")
	}})

	_, version, err := r.Run([]byte("data"), 1)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "test migration to v3 failed") || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("unexpected error message: %v", err)
	}
	if version != 2 {
		t.Fatalf("expected version 2 (stopped before v3), got %d", version)
	}
}

func TestRunMissingPath(t *testing.T) {
	r := &Registry{Name: "test", CurrentVersion: 3}
	r.Register(Migration{Version: 2, Description: "v1->v2", Upgrade: appendStep("-v2")})

	if _, _, err := r.Run([]byte("data"), 1); err == nil {
		t.Fatal("expected error for gap in migration chain")
	}
}

func TestRunRejectsNewerFile(t *testing.T) {
	r := &Registry{Name: "test", CurrentVersion: 1}
	if _, _, err := r.Run([]byte("data"), 2); err == nil {
		t.Fatal("expected error for file newer than build")
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	r := &Registry{Name: "test", CurrentVersion: 2}
	r.Register(Migration{Version: 2, Description: "first"})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate version")
		}
	}()
	r.Register(Migration{Version: 2, Description: "second"})
}

func TestNeedsMigration(t *testing.T) {
	r := &Registry{Name: "test", CurrentVersion: 2}
	if !r.NeedsMigration(1) {
		t.Error("v1 should need migration to v2")
	}
	if r.NeedsMigration(2) {
		t.Error("current version should not need migration")
	}
}

// ///////////////////////////////////////////////
// Backup
// ///////////////////////////////////////////////

func TestBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	Backup(path, []byte("version = 1\n"))

	got, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(got) != "version = 1\n" {
		t.Fatalf("backup = %q", got)
	}
}

func TestRegistryDefaults(t *testing.T) {
	if Config.CurrentVersion != 1 {
		t.Errorf("Config.CurrentVersion = %d, want 1", Config.CurrentVersion)
	}
	if SessionFile.CurrentVersion != 2 {
		t.Errorf("SessionFile.CurrentVersion = %d, want 2", SessionFile.CurrentVersion)
	}
}
