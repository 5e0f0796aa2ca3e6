package daemon

import (
	"os"
	"path/filepath"

	"github.com/jamesainslie/resweep/pkg/resweep/logging"
)

// RecoverFromStaleDaemon removes the PID file, socket and store lock left by
// a daemon that died without cleaning up. It returns ErrDaemonAlreadyRunning
// when the recorded process is still alive.
func RecoverFromStaleDaemon(pidPath, socketPath, dataDir string) error {
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		return nil //nolint:nilerr // a missing or unreadable PID file leaves nothing to recover
	}

	if IsProcessRunning(pid) {
		return ErrDaemonAlreadyRunning
	}

	logging.Get("daemon").Warn("cleaning up stale daemon files", "stale_pid", pid)

	_ = os.Remove(pidPath)
	_ = os.Remove(socketPath)
	_ = os.Remove(StatusPath(socketPath))
	_ = os.Remove(filepath.Join(StorePath(dataDir), "LOCK"))

	return nil
}
