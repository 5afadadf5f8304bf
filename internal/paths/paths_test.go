package paths

import (
	"path/filepath"
	"testing"
)

// ///////////////////////////////////////////////
// Constant Value Tests
// ///////////////////////////////////////////////

func TestConstantValues(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DataDirRel", DataDirRel, ".timetrack"},
		{"BinaryName", BinaryName, "timetrack"},
		{"ConfigFile", ConfigFile, "config.toml"},
		{"LogFile", LogFile, "daemon.log"},
		{"PIDFile", PIDFile, "daemon.pid"},
		{"SessionsDir", SessionsDir, "sessions"},
		{"SQLiteFile", SQLiteFile, "sessions.db"},
		{"RecentFile", RecentFile, "recent.json"},
		{"ProbeFile", ProbeFile, "window.json"},
		{"EnvFile", EnvFile, ".env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// DataDir Method Tests
// ///////////////////////////////////////////////

func TestDataDirMethods(t *testing.T) {
	root := filepath.Join("home", "user", ".timetrack")
	d := DataDir{Root: root}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Config", d.Config(), filepath.Join(root, "config.toml")},
		{"Log", d.Log(), filepath.Join(root, "daemon.log")},
		{"PID", d.PID(), filepath.Join(root, "daemon.pid")},
		{"Sessions", d.Sessions(), filepath.Join(root, "sessions")},
		{"SQLite", d.SQLite(), filepath.Join(root, "sessions.db")},
		{"Recent", d.Recent(), filepath.Join(root, "recent.json")},
		{"Probe", d.Probe(), filepath.Join(root, "window.json")},
		{"Env", d.Env(), filepath.Join(root, ".env")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestDataDirEmptyRoot(t *testing.T) {
	d := DataDir{}
	if got := d.Config(); got != "config.toml" {
		t.Errorf("Config() with empty root = %q, want %q", got, "config.toml")
	}
}

func TestDefaultHonorsEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)
	d, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if d.Root != dir {
		t.Errorf("Root = %q, want %q", d.Root, dir)
	}
}

func TestDefaultUsesHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvDataDir, "")
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	d, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if want := filepath.Join(home, DataDirRel); d.Root != want {
		t.Errorf("Root = %q, want %q", d.Root, want)
	}
}

func TestEnsureCreatesRoot(t *testing.T) {
	d := DataDir{Root: filepath.Join(t.TempDir(), "nested", ".timetrack")}
	if err := d.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := d.Ensure(); err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
}
