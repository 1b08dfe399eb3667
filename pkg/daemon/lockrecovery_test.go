package daemon_test

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/jamesainslie/spectra/pkg/daemon"
)

func testPaths(t *testing.T) daemon.Paths {
	t.Helper()
	dir := t.TempDir()
	return daemon.Paths{
		PID:    filepath.Join(dir, "spectra.pid"),
		Socket: filepath.Join(dir, "spectra.sock"),
		DB:     filepath.Join(dir, "catalog.db"),
	}
}

func TestRecoverFromStaleDaemon_NoPIDFile(t *testing.T) {
	if err := daemon.RecoverFromStaleDaemon(testPaths(t)); err != nil {
		t.Errorf("Expected nil when no PID file exists, got %v", err)
	}
}

func TestRecoverFromStaleDaemon_ProcessRunning(t *testing.T) {
	p := testPaths(t)
	if err := os.WriteFile(p.PID, []byte(strconv.Itoa(os.Getppid())), 0o644); err != nil {
		t.Fatalf("Failed to write PID file: %v", err)
	}

	err := daemon.RecoverFromStaleDaemon(p)
	if !errors.Is(err, daemon.ErrDaemonAlreadyRunning) {
		t.Errorf("Expected ErrDaemonAlreadyRunning when process is running, got %v", err)
	}
	if _, err := os.Stat(p.PID); os.IsNotExist(err) {
		t.Error("PID file should not have been removed when process is running")
	}
}

func TestRecoverFromStaleDaemon_StaleProcess(t *testing.T) {
	p := testPaths(t)
	if err := os.MkdirAll(p.DB, 0o755); err != nil {
		t.Fatalf("Failed to create catalog directory: %v", err)
	}
	lockPath := filepath.Join(p.DB, "LOCK")

	stale := map[string]string{
		p.PID:      "999999999",
		p.Socket:   "fake socket",
		p.Status(): `{"status":"ready"}`,
		lockPath:   "fake lock",
	}
	for path, content := range stale {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to write %s: %v", path, err)
		}
	}

	if err := daemon.RecoverFromStaleDaemon(p); err != nil {
		t.Errorf("Expected nil after cleaning up stale daemon, got %v", err)
	}
	for path := range stale {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("File %s should have been removed after recovery", path)
		}
	}
	if _, err := os.Stat(p.DB); err != nil {
		t.Errorf("Catalog directory should be kept: %v", err)
	}
}

func TestRecoverFromStaleDaemon_PartialStaleFiles(t *testing.T) {
	p := testPaths(t)
	if err := os.WriteFile(p.PID, []byte("999999999"), 0o644); err != nil {
		t.Fatalf("Failed to write PID file: %v", err)
	}

	if err := daemon.RecoverFromStaleDaemon(p); err != nil {
		t.Errorf("Expected nil when cleaning up partial stale files, got %v", err)
	}
	if _, err := os.Stat(p.PID); !os.IsNotExist(err) {
		t.Error("PID file should have been removed")
	}
}

func TestRecoverFromStaleDaemon_InvalidPIDFile(t *testing.T) {
	p := testPaths(t)
	if err := os.WriteFile(p.PID, []byte("not-a-number"), 0o644); err != nil {
		t.Fatalf("Failed to write PID file: %v", err)
	}
	if err := daemon.RecoverFromStaleDaemon(p); err != nil {
		t.Errorf("Expected nil for invalid PID file, got %v", err)
	}
}

func TestRecoverFromStaleDaemon_OwnPID(t *testing.T) {
	p := testPaths(t)
	if err := daemon.WritePIDFile(p.PID); err != nil {
		t.Fatal(err)
	}
	if err := daemon.RecoverFromStaleDaemon(p); err != nil {
		t.Errorf("Own PID file should not block recovery, got %v", err)
	}
	if _, err := os.Stat(p.PID); err != nil {
		t.Error("Own PID file should be kept")
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !daemon.IsProcessRunning(os.Getpid()) {
		t.Error("Expected current process to be running")
	}
	if daemon.IsProcessRunning(999999999) {
		t.Error("Expected non-existent PID to not be running")
	}
}
