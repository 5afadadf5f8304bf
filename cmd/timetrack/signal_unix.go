//go:build !windows

package main

import (
	"os"
	"syscall"
)

// shutdownSignals stop the daemon: Ctrl+C and the SIGTERM sent by launchd
// and systemd.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
