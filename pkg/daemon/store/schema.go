package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Schema versions:
// 1 - Configurations (c:) and runs (r:) as JSON records
const CurrentSchemaVersion = 1

const schemaKey = prefixMeta + "__schema__"

// ErrSchemaTooNew is returned when the database was written by a newer daemon.
var ErrSchemaTooNew = errors.New("store schema is newer than this build")

// Schema holds database schema information.
type Schema struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetSchema returns the current schema, or nil if not set.
func (s *Store) GetSchema() *Schema {
	var schema *Schema

	_ = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			schema = &Schema{}
			return json.Unmarshal(val, schema)
		})
	})

	return schema
}

// SetSchema stores the schema version.
func (s *Store) SetSchema(schema *Schema) error {
	data, err := json.Marshal(schema)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(schemaKey), data)
	})
}

// Migrate stamps a fresh database with the current schema. A database from
// a newer build is refused so its records are not misread. It reports
// whether the schema was written.
func (s *Store) Migrate() (bool, error) {
	schema := s.GetSchema()
	switch {
	case schema == nil:
	case schema.Version > CurrentSchemaVersion:
		return false, fmt.Errorf("%w: version %d, supported %d", ErrSchemaTooNew, schema.Version, CurrentSchemaVersion)
	case schema.Version == CurrentSchemaVersion:
		return false, nil
	}

	if err := s.SetSchema(&Schema{Version: CurrentSchemaVersion, UpdatedAt: time.Now()}); err != nil {
		return false, err
	}
	return true, nil
}
