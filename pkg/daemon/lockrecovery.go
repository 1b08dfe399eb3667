package daemon

import (
	"os"
	"path/filepath"

	"github.com/jamesainslie/spectra/pkg/spectra/logging"
)

// RecoverFromStaleDaemon cleans up after a daemon that died without
// shutting down: its PID file, socket, status file and the catalog's
// directory lock. It returns ErrDaemonAlreadyRunning if the recorded
// process is still alive and nil when there is nothing to recover.
func RecoverFromStaleDaemon(p Paths) error {
	pid, err := ReadPIDFile(p.PID)
	if err != nil {
		return nil //nolint:nilerr // missing or unreadable PID file means no previous daemon
	}
	if pid == os.Getpid() {
		return nil
	}
	if IsProcessRunning(pid) {
		return ErrDaemonAlreadyRunning
	}

	logging.Get("daemon").Warn("cleaning up stale daemon files", "stale_pid", pid)

	_ = os.Remove(p.PID)
	_ = os.Remove(p.Socket)
	_ = os.Remove(p.Status())
	if p.DB != "" {
		_ = os.Remove(filepath.Join(p.DB, "LOCK"))
	}
	return nil
}
