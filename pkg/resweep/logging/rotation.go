package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// RotationConfig controls when the log file is rotated and how many old
// files are kept.
type RotationConfig struct {
	// MaxSize is the size in bytes that triggers rotation. Zero uses 10 MiB.
	MaxSize int64

	// MaxBackups is how many rotated files (path.1 .. path.N) are kept.
	// Zero uses 5.
	MaxBackups int

	// MaxAge removes rotated files older than this many days. Zero keeps them.
	MaxAge int
}

// DefaultRotationConfig returns 10 MiB files, five backups, thirty days.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSize:    10 << 20,
		MaxBackups: 5,
		MaxAge:     30,
	}
}

// RotatingWriter is an io.WriteCloser that rotates its file by size. Rotated
// files are shifted to path.1, path.2 and so on. Writes take an advisory
// flock so the CLI and daemon can share a log file.
type RotatingWriter struct {
	path string
	cfg  RotationConfig

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewRotatingWriter opens path for appending, creating parent directories.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	defaults := DefaultRotationConfig()
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = defaults.MaxSize
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = defaults.MaxBackups
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	w := &RotatingWriter{path: path, cfg: cfg}
	if err := w.open(); err != nil {
		return nil, err
	}
	w.prune()
	return w, nil
}

// Write appends p, rotating first if p would push the file past MaxSize.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.size > 0 && w.size+int64(len(p)) > w.cfg.MaxSize {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotating log file: %w", err)
		}
	}

	fd := int(w.file.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return 0, fmt.Errorf("locking log file: %w", err)
	}
	defer func() { _ = unix.Flock(fd, unix.LOCK_UN) }()

	n, err := w.file.Write(p)
	w.size += int64(n)
	if err != nil {
		return n, fmt.Errorf("writing log file: %w", err)
	}
	return n, nil
}

// Close syncs and closes the file. Further writes fail with os.ErrClosed.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	syncErr := w.file.Sync()
	closeErr := w.file.Close()
	w.file = nil
	if syncErr != nil {
		return fmt.Errorf("syncing log file: %w", syncErr)
	}
	return closeErr
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// backup returns the path of the n-th rotated file.
func (w *RotatingWriter) backup(n int) string {
	return fmt.Sprintf("%s.%d", w.path, n)
}

func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing current file: %w", err)
	}
	w.file = nil

	_ = os.Remove(w.backup(w.cfg.MaxBackups))
	for n := w.cfg.MaxBackups - 1; n >= 1; n-- {
		if _, err := os.Stat(w.backup(n)); err == nil {
			if err := os.Rename(w.backup(n), w.backup(n+1)); err != nil {
				return fmt.Errorf("shifting %s: %w", w.backup(n), err)
			}
		}
	}
	if err := os.Rename(w.path, w.backup(1)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("renaming log file: %w", err)
	}

	if err := w.open(); err != nil {
		return err
	}
	w.prune()
	return nil
}

// prune removes backups beyond MaxBackups or older than MaxAge days.
func (w *RotatingWriter) prune() {
	matches, err := filepath.Glob(w.path + ".*")
	if err != nil {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -w.cfg.MaxAge)
	for _, m := range matches {
		var n int
		if _, err := fmt.Sscanf(m[len(w.path)+1:], "%d", &n); err != nil || fmt.Sprint(n) != m[len(w.path)+1:] {
			continue
		}
		if n > w.cfg.MaxBackups {
			_ = os.Remove(m)
			continue
		}
		if w.cfg.MaxAge > 0 {
			if info, err := os.Stat(m); err == nil && info.ModTime().Before(cutoff) {
				_ = os.Remove(m)
			}
		}
	}
}
