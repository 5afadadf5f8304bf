package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"tools.zach/dev/timetrack/internal/paths"
)

// ///////////////////////////////////////////////
// PID File
// ///////////////////////////////////////////////

// The PID file holds "PID:TOKEN" and stays locked while the daemon runs. The
// token lets removePID leave alone a file another instance rewrote.

func pidToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// writePID locks the PID file and records this process in it. Keep the
// returned file open until exit and hand it to removePID.
func writePID(dp paths.DataDir, token string) (*os.File, error) {
	f, err := os.OpenFile(dp.PID(), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	fail := func(step string, err error) (*os.File, error) {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("%s PID file: %w", step, err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock PID file: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		return fail("truncate", err)
	}
	if _, err := f.WriteString(fmt.Sprintf("%d:%s", os.Getpid(), token)); err != nil {
		return fail("write", err)
	}
	return f, nil
}

// removePID unlocks and closes f, then deletes the PID file if it still
// carries token.
func removePID(dp paths.DataDir, token string, f *os.File) {
	if f != nil {
		_ = unlockFile(f)
		f.Close()
	}
	data, err := os.ReadFile(dp.PID())
	if err != nil {
		return
	}
	if _, got, ok := strings.Cut(string(data), ":"); ok && got == token {
		os.Remove(dp.PID())
	}
}

// runningPID reports whether another daemon holds the PID file lock, and its
// pid when readable. A stale unlocked file is removed.
func runningPID(dp paths.DataDir) (alive bool, pid int) {
	f, err := os.OpenFile(dp.PID(), os.O_RDWR, 0o600)
	if err != nil {
		return false, 0
	}
	if lockErr := lockFile(f); lockErr != nil {
		f.Close()
		data, _ := os.ReadFile(dp.PID())
		head, _, _ := strings.Cut(string(data), ":")
		p, _ := strconv.Atoi(head)
		return true, p
	}
	_ = unlockFile(f)
	f.Close()
	os.Remove(dp.PID())
	return false, 0
}
