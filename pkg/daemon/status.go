package daemon

import (
	"encoding/json"
	"os"
	"strings"
)

// Startup states written to the status file.
const (
	StatusReady = "ready"
	StatusError = "error"
)

// StatusFile is the startup report resweepd leaves for the process that
// launched it.
type StatusFile struct {
	Status string `json:"status"`
	PID    int    `json:"pid,omitempty"`
	Error  string `json:"error,omitempty"`
}

// WriteStatusReady records a successful start by the current process.
func WriteStatusReady(path string) error {
	return writeStatus(path, &StatusFile{Status: StatusReady, PID: os.Getpid()})
}

// WriteStatusError records a failed start.
func WriteStatusError(path string, err error) error {
	return writeStatus(path, &StatusFile{Status: StatusError, Error: err.Error()})
}

func writeStatus(path string, status *StatusFile) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
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

// RemoveStatus removes the status file.
func RemoveStatus(path string) error {
	return os.Remove(path)
}

// StatusPath returns the status file that sits next to socket:
// resweepd.sock becomes resweepd.status.
func StatusPath(socket string) string {
	return strings.TrimSuffix(socket, ".sock") + ".status"
}
