// Package store provides Badger DB-backed storage for solver configurations
// and their run results, so solved setups survive a daemon restart.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/jamesainslie/resweep/pkg/resweep/solver"
)

// Key prefixes for different record types.
const (
	prefixConfig = "c:" // Configuration records by name
	prefixRun    = "r:" // Run results by configuration name
	prefixMeta   = "m:" // Metadata (schema version)
)

// ErrNotFound is returned when no record exists for a name.
var ErrNotFound = errors.New("record not found")

// ConfigRecord is a stored configuration.
type ConfigRecord struct {
	Name          string               `json:"name"`
	Configuration solver.Configuration `json:"configuration"`
	Created       time.Time            `json:"created"`
}

// RunRecord is the stored outcome of one run.
type RunRecord struct {
	Name      string              `json:"name"`
	Passes    int                 `json:"passes"`
	Converged bool                `json:"converged"`
	Modes     []solver.ModeSample `json:"modes"`
	Finished  time.Time           `json:"finished"`
	Elapsed   time.Duration       `json:"elapsed"`
}

// Store is the configuration storage backed by Badger DB.
type Store struct {
	db *badger.DB
}

// Open opens or creates a store at the given path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening in-memory store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutConfiguration stores a configuration, replacing any record of the
// same name and dropping its stale run.
func (s *Store) PutConfiguration(rec *ConfigRecord) error {
	if rec.Created.IsZero() {
		rec.Created = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(prefixRun + rec.Name)); err != nil {
			return err
		}
		return txn.Set([]byte(prefixConfig+rec.Name), data)
	})
}

// GetConfiguration retrieves a configuration by name.
func (s *Store) GetConfiguration(name string) (*ConfigRecord, error) {
	var rec ConfigRecord
	if err := s.get(prefixConfig+name, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// PutRun stores the result of a run.
func (s *Store) PutRun(rec *RunRecord) error {
	if rec.Finished.IsZero() {
		rec.Finished = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixRun+rec.Name), data)
	})
}

// GetRun retrieves the run result of a configuration.
func (s *Store) GetRun(name string) (*RunRecord, error) {
	var rec RunRecord
	if err := s.get(prefixRun+name, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete removes a configuration and its run.
func (s *Store) Delete(name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(prefixConfig + name)); err != nil {
			return err
		}
		return txn.Delete([]byte(prefixRun + name))
	})
}

// ListConfigurations returns every stored configuration ordered by
// creation time.
func (s *Store) ListConfigurations() ([]*ConfigRecord, error) {
	var out []*ConfigRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixConfig)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec ConfigRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return nil //nolint:nilerr // skip records from an older layout
				}
				out = append(out, &rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Created.Before(out[j].Created)
	})
	return out, err
}

// Count returns the number of stored configurations and runs.
func (s *Store) Count() (configs, runs int, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		configs = countPrefix(it, prefixConfig)
		runs = countPrefix(it, prefixRun)
		return nil
	})
	return configs, runs, err
}

// Clear removes every configuration and run, keeping metadata. It returns
// the number of configurations removed.
func (s *Store) Clear() (int, error) {
	configs, _, err := s.Count()
	if err != nil {
		return 0, err
	}
	if err := s.db.DropPrefix([]byte(prefixConfig), []byte(prefixRun)); err != nil {
		return 0, err
	}
	return configs, nil
}

func countPrefix(it *badger.Iterator, prefix string) int {
	var n int
	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		n++
	}
	return n
}

func (s *Store) get(key string, v any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, key[len(prefixConfig):])
	}
	return err
}
