// Package snapshot reads the frontmost window from an external probe. The
// daemon does not enumerate windows itself: a platform helper either keeps a
// JSON file up to date ([FileSource]) or prints JSON when run
// ([CommandSource]). Both yield an [activity.WindowSnapshot], or nil when no
// window is active.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"

	"tools.zach/dev/timetrack/internal/activity"
)

// Source produces one snapshot per call. A nil snapshot with a nil error
// means no active window.
type Source interface {
	Snapshot(ctx context.Context) (*activity.WindowSnapshot, error)
}

// Options selects and configures a source. Built from config.SourceConfig.
type Options struct {
	// Kind is "file" or "command".
	Kind string
	// File is the probe file path for kind "file".
	File string
	// Command is the program and arguments for kind "command".
	Command []string
	// Timeout bounds one command run.
	Timeout time.Duration
}

// New returns the source for opts.Kind.
func New(opts Options) (Source, error) {
	switch opts.Kind {
	case "", "file":
		if opts.File == "" {
			return nil, errors.New("source kind file requires a file path")
		}
		return &FileSource{Path: opts.File}, nil
	case "command":
		if len(opts.Command) == 0 || opts.Command[0] == "" {
			return nil, errors.New("source kind command requires a command")
		}
		return &CommandSource{Args: opts.Command, Timeout: opts.Timeout}, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", opts.Kind)
	}
}

// ///////////////////////////////////////////////
// FileSource
// ///////////////////////////////////////////////

// FileSource reads a probe file holding one JSON snapshot. A missing or empty
// file, or the literal null, means no active window.
type FileSource struct {
	Path string
}

// Snapshot reads and decodes the probe file.
func (s *FileSource) Snapshot(ctx context.Context) (*activity.WindowSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read probe file: %w", err)
	}
	snap, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("probe file %s: %w", s.Path, err)
	}
	if snap != nil && snap.ObservedAt.IsZero() {
		if info, err := os.Stat(s.Path); err == nil {
			snap.ObservedAt = info.ModTime()
		}
	}
	return snap, nil
}

// ///////////////////////////////////////////////
// CommandSource
// ///////////////////////////////////////////////

// DefaultCommandTimeout bounds a probe command when none is configured.
const DefaultCommandTimeout = 5 * time.Second

// CommandSource runs a probe program and decodes its standard output.
type CommandSource struct {
	// Args is the program followed by its arguments.
	Args []string
	// Timeout bounds one run. Zero uses DefaultCommandTimeout.
	Timeout time.Duration
}

// Snapshot runs the probe command once and decodes its output.
func (s *CommandSource) Snapshot(ctx context.Context) (*activity.WindowSnapshot, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.Args[0], s.Args[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("probe command %s: %w: %s", s.Args[0], err, msg)
		}
		return nil, fmt.Errorf("probe command %s: %w", s.Args[0], err)
	}

	snap, err := decode(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("probe command %s: %w", s.Args[0], err)
	}
	if snap != nil && snap.ObservedAt.IsZero() {
		snap.ObservedAt = time.Now()
	}
	return snap, nil
}

// ///////////////////////////////////////////////
// Decoding
// ///////////////////////////////////////////////

// decode parses probe output. Blank input, null, or a snapshot without an
// application decode to nil.
func decode(data []byte) (*activity.WindowSnapshot, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	var snap activity.WindowSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Application == "" {
		return nil, nil
	}
	return &snap, nil
}
