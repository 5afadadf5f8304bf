// Package timetrack embeds the generated default configuration.
//
// The root package exists solely to embed [config.default.toml] via
// [DefaultConfigTOML]. The daemon copies it into the data directory on first
// run so the user starts from a documented file.
package timetrack

import _ "embed"

// DefaultConfigTOML holds config.default.toml, regenerated by
// `go generate ./internal/config`.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte
