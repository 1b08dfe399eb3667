package daemon

import (
	"encoding/json"
	"os"
	"strings"
	"time"
)

// Startup states written to the status file.
const (
	StatusReady = "ready"
	StatusError = "error"
)

// StatusFile reports the outcome of daemon startup to the process that
// launched it.
type StatusFile struct {
	Status string    `json:"status"`
	PID    int       `json:"pid,omitempty"`
	Socket string    `json:"socket,omitempty"`
	Serial string    `json:"serial,omitempty"`
	Error  string    `json:"error,omitempty"`
	Time   time.Time `json:"time"`
}

// WriteStatusReady records a successful start.
func WriteStatusReady(path, socket, serial string) error {
	return writeStatus(path, &StatusFile{
		Status: StatusReady,
		PID:    os.Getpid(),
		Socket: socket,
		Serial: serial,
		Time:   time.Now(),
	})
}

// WriteStatusError records a failed start.
func WriteStatusError(path string, err error) error {
	return writeStatus(path, &StatusFile{
		Status: StatusError,
		Error:  err.Error(),
		Time:   time.Now(),
	})
}

func writeStatus(path string, status *StatusFile) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadStatus reads a status file.
func ReadStatus(path string) (*StatusFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var status StatusFile
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// RemoveStatus removes the status file. A missing file is not an error.
func RemoveStatus(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// StatusPath returns the status file belonging to a socket path.
func StatusPath(socketPath string) string {
	return strings.TrimSuffix(socketPath, ".sock") + ".status"
}
