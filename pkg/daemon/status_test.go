package daemon_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jamesainslie/spectra/pkg/daemon"
)

func TestWriteStatusReady(t *testing.T) {
	dir := t.TempDir()
	statusPath := filepath.Join(dir, "spectra.status")

	if err := daemon.WriteStatusReady(statusPath, "/run/spectra.sock", "SIM-0001"); err != nil {
		t.Fatalf("WriteStatusReady failed: %v", err)
	}

	data, err := os.ReadFile(statusPath)
	if err != nil {
		t.Fatalf("Failed to read status file: %v", err)
	}
	var status map[string]any
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("Failed to parse status JSON: %v", err)
	}

	if status["status"] != "ready" {
		t.Errorf("Expected status 'ready', got %v", status["status"])
	}
	pid, ok := status["pid"].(float64)
	if !ok {
		t.Fatalf("Expected pid to be a number, got %T", status["pid"])
	}
	if int(pid) != os.Getpid() {
		t.Errorf("Expected PID %d, got %d", os.Getpid(), int(pid))
	}
	if status["socket"] != "/run/spectra.sock" || status["serial"] != "SIM-0001" {
		t.Errorf("Unexpected socket/serial: %v %v", status["socket"], status["serial"])
	}
	if _, exists := status["error"]; exists {
		t.Error("Error field should not be present in ready status")
	}
	if _, err := os.Stat(statusPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temporary file should have been renamed")
	}
}

func TestWriteStatusError(t *testing.T) {
	dir := t.TempDir()
	statusPath := filepath.Join(dir, "spectra.status")

	testErr := errors.New("opening instrument: device not found")
	if err := daemon.WriteStatusError(statusPath, testErr); err != nil {
		t.Fatalf("WriteStatusError failed: %v", err)
	}

	status, err := daemon.ReadStatus(statusPath)
	if err != nil {
		t.Fatalf("ReadStatus failed: %v", err)
	}
	if status.Status != daemon.StatusError {
		t.Errorf("Expected status 'error', got %s", status.Status)
	}
	if status.Error != testErr.Error() {
		t.Errorf("Expected error '%s', got %s", testErr.Error(), status.Error)
	}
	if status.PID != 0 {
		t.Errorf("Expected PID 0, got %d", status.PID)
	}
}

func TestReadStatus(t *testing.T) {
	dir := t.TempDir()
	statusPath := filepath.Join(dir, "spectra.status")

	t.Run("ready status", func(t *testing.T) {
		if err := daemon.WriteStatusReady(statusPath, "s.sock", "X"); err != nil {
			t.Fatalf("WriteStatusReady failed: %v", err)
		}
		status, err := daemon.ReadStatus(statusPath)
		if err != nil {
			t.Fatalf("ReadStatus failed: %v", err)
		}
		if status.Status != daemon.StatusReady || status.PID != os.Getpid() || status.Serial != "X" {
			t.Errorf("Unexpected status %+v", status)
		}
		if status.Time.IsZero() {
			t.Error("Expected a timestamp")
		}
	})

	t.Run("non-existent file", func(t *testing.T) {
		if _, err := daemon.ReadStatus(filepath.Join(dir, "nonexistent.status")); err == nil {
			t.Error("Expected error when reading non-existent file")
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		invalidPath := filepath.Join(dir, "invalid.status")
		if err := os.WriteFile(invalidPath, []byte("not json"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := daemon.ReadStatus(invalidPath); err == nil {
			t.Error("Expected error when reading invalid JSON")
		}
	})
}

func TestRemoveStatus(t *testing.T) {
	dir := t.TempDir()
	statusPath := filepath.Join(dir, "spectra.status")

	if err := daemon.WriteStatusReady(statusPath, "", ""); err != nil {
		t.Fatalf("WriteStatusReady failed: %v", err)
	}
	if err := daemon.RemoveStatus(statusPath); err != nil {
		t.Fatalf("RemoveStatus failed: %v", err)
	}
	if _, err := os.Stat(statusPath); !os.IsNotExist(err) {
		t.Error("Status file should have been removed")
	}
	if err := daemon.RemoveStatus(statusPath); err != nil {
		t.Errorf("Removing a missing status file should succeed, got %v", err)
	}
}

func TestStatusPath(t *testing.T) {
	cases := map[string]string{
		"/home/user/.local/share/spectra/spectra.sock": "/home/user/.local/share/spectra/spectra.status",
		"/tmp/custom":                                  "/tmp/custom.status",
	}
	for socket, want := range cases {
		if got := daemon.StatusPath(socket); got != want {
			t.Errorf("StatusPath(%q) = %s, want %s", socket, got, want)
		}
	}

	p := daemon.Paths{Socket: "/run/spectra.sock"}
	if p.Status() != "/run/spectra.status" {
		t.Errorf("Paths.Status() = %s", p.Status())
	}
}
