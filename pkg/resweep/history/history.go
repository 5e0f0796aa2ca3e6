package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/resweep/pkg/resweep/output"
)

// ErrNotFound is returned when no record matches an ID.
var ErrNotFound = errors.New("sweep record not found")

// ErrAmbiguousID is returned when an ID prefix matches several records.
var ErrAmbiguousID = errors.New("ambiguous sweep ID")

// Store saves records as one JSON file each in a directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New returns a store rooted at dir. The directory is created on first save.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("history directory cannot be empty")
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// EnsureDir creates the history directory if it does not exist.
func (s *Store) EnsureDir() error {
	return os.MkdirAll(s.dir, 0o755)
}

// Save records report and returns the new record. A report without a run
// ID is given one.
func (s *Store) Save(report *output.Result) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if report.RunID == "" {
		report.RunID = NewID(now)
	}
	if report.Started.IsZero() {
		report.Started = now.Add(-report.Elapsed)
	}
	rec := &Record{
		ID:        report.RunID,
		Timestamp: now,
		Status:    StatusOf(report),
		Report:    report,
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	if err := s.write(rec); err != nil {
		return nil, fmt.Errorf("failed to write sweep record: %w", err)
	}
	return rec, nil
}

// write stores rec atomically through a temp file and rename.
func (s *Store) write(rec *Record) error {
	path := filepath.Join(s.dir, rec.ID+".json")

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// List returns records newest first. A limit of zero or less returns all.
// Unreadable files are skipped.
func (s *Store) List(limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.names()
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(names))
	for _, name := range names {
		rec, err := s.read(name)
		if err != nil {
			continue
		}
		records = append(records, *rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Latest returns the newest record.
func (s *Store) Latest() (*Record, error) {
	records, err := s.List(1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return &records[0], nil
}

// Get returns the record whose ID equals id or, failing that, the only
// record whose ID starts with id.
func (s *Store) Get(id string) (*Record, error) {
	if id == "" {
		return nil, errors.New("sweep ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.names()
	if err != nil {
		return nil, err
	}

	var matches []string
	for _, name := range names {
		recID := strings.TrimSuffix(name, ".json")
		if recID == id {
			return s.read(name)
		}
		if strings.HasPrefix(recID, id) {
			matches = append(matches, name)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return s.read(matches[0])
	default:
		return nil, fmt.Errorf("%w: %s matches %d records", ErrAmbiguousID, id, len(matches))
	}
}

// Delete removes the record with exactly the given ID.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(filepath.Join(s.dir, id+".json"))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}

// Cleanup removes records older than retentionDays and returns how many
// were removed. A retention of zero keeps everything.
func (s *Store) Cleanup(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.names()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, name := range names {
		path := filepath.Join(s.dir, name)
		info, err := os.Stat(path)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err == nil {
			removed++
		}
	}
	return removed, nil
}

// names lists the record files in the directory.
func (s *Store) names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func (s *Store) read(name string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	if rec.Report == nil {
		return nil, fmt.Errorf("record %s has no report", name)
	}
	return &rec, nil
}

// NewID returns an ID like "20261018T101500-1b4e28ba". IDs sort by time.
func NewID(t time.Time) string {
	return fmt.Sprintf("%s-%s", t.UTC().Format("20060102T150405"), uuid.NewString()[:8])
}
