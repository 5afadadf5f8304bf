package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc annotates one config field in the generated config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps dot-separated TOML paths (e.g. "store.driver") to their
// [FieldDoc]. Section keys ("store") annotate the section header.
var ConfigDocs = map[string]FieldDoc{
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	// ── Tracker ──────────────────────────────────────────────────
	"tracker": {
		Comment: "How often the frontmost window is sampled and which sessions are kept.",
	},
	"tracker.poll_interval_seconds": {
		Comment: "Seconds between snapshots. A session's duration is accurate to about one interval.",
	},
	"tracker.min_session_seconds": {
		Comment: "Sessions shorter than this are discarded when they close.",
	},
	"tracker.store_timeout_seconds": {
		Comment: "Upper bound on a single store write. Failed writes are retried on the next one.",
	},

	// ── Matcher ──────────────────────────────────────────────────
	"matcher": {
		Comment: "Project code inference from window titles and document paths.",
	},
	"matcher.prefixes": {
		Comment: "Code prefixes, 2-4 uppercase letters each. \"BMS\" matches \"BMS 1180\" and \"bms1180\".",
		Alternatives: []string{
			`prefixes = ["ACME", "INT"]`,
		},
	},
	"matcher.recent_size": {
		Comment: "How many confirmed codes to remember as a fallback guess.",
	},
	"matcher.persist_recent": {
		Comment: "Keep remembered codes in recent.json across restarts.",
	},

	// ── Source ───────────────────────────────────────────────────
	"source": {
		Comment: "Where window snapshots come from.\n  file:    a JSON probe file rewritten by an external helper\n  command: a program that prints one JSON snapshot per run",
	},
	"source.kind": {
		Alternatives: []string{
			`kind = "command"`,
		},
	},
	"source.file": {
		Comment: "Probe file for kind = \"file\". Defaults to window.json in the data directory.",
		Alternatives: []string{
			`# file = "/tmp/frontmost.json"`,
		},
	},
	"source.command": {
		Comment: "Program and arguments for kind = \"command\".",
		Alternatives: []string{
			`# command = ["osascript", "/usr/local/share/timetrack/frontmost.applescript"]`,
		},
	},
	"source.command_timeout_seconds": {
		Comment: "A command run longer than this is killed and the poll skipped.",
	},
	"source.watch": {
		Comment: "Also take a snapshot as soon as the probe file changes (kind = \"file\" only).",
	},

	// ── Store ────────────────────────────────────────────────────
	"store": {
		Comment: "Session persistence.\n  json:     one file per day under sessions/\n  sqlite:   a single database file\n  postgres: a shared database (dsn required)\n  memory:   nothing survives a restart",
	},
	"store.driver": {
		Alternatives: []string{
			`driver = "sqlite"`,
			`driver = "postgres"`,
		},
	},
	"store.dsn": {
		Comment: "Directory, database file, or connection string. Also read from TIMETRACK_STORE_DSN.",
		Alternatives: []string{
			`# dsn = "postgres://timetrack@localhost/timetrack?sslmode=disable"`,
		},
	},
	"store.warn_size_mb": {
		Comment: "Log a warning when the json store grows past this many megabytes. 0 disables.",
	},

	// ── Confirm ──────────────────────────────────────────────────
	"confirm": {
		Comment: "Where project confirmation requests go.\n  log:     written to daemon.log\n  webhook: POSTed as JSON to webhook_url\n  none:    inferred codes are applied silently",
	},
	"confirm.mode": {
		Alternatives: []string{
			`mode = "webhook"`,
			`mode = "none"`,
		},
	},
	"confirm.webhook_url": {
		Comment: "Also read from TIMETRACK_WEBHOOK_URL.",
		Alternatives: []string{
			`# webhook_url = "http://127.0.0.1:9000/timetrack/confirm"`,
		},
	},

	// ── API ──────────────────────────────────────────────────────
	"api": {
		Comment: "Local HTTP control API used by the timetrack CLI.",
	},
	"api.enabled": {},
	"api.listen": {
		Comment: "Address to bind. Also read from TIMETRACK_API_LISTEN.",
	},

	// ── Privacy ──────────────────────────────────────────────────
	"privacy": {
		Comment: "Windows that are never recorded. Patterns are globs; ** crosses directories.",
	},
	"privacy.ignore_apps": {
		Comment: "Matched against the application name.",
	},
	"privacy.ignore_paths": {
		Comment: "Matched against the document path.",
	},

	// ── Log ──────────────────────────────────────────────────────
	"log": {
		Comment: "Logging configuration",
	},
	"log.level": {
		Comment: "Minimum log level. Options: \"trace\", \"debug\", \"info\", \"warn\", \"error\"",
		Alternatives: []string{
			`level = "debug"`,
			`level = "warn"`,
		},
	},
	"log.max_size_mb": {
		Comment: "Maximum log file size in megabytes before rotation.",
	},
}
