package store_test

import (
	"errors"
	"testing"
	"time"

	"github.com/jamesainslie/resweep/pkg/daemon/store"
)

func TestSchemaGetSet(t *testing.T) {
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if schema := s.GetSchema(); schema != nil {
		t.Errorf("Expected nil schema initially, got %+v", schema)
	}

	if err := s.SetSchema(&store.Schema{Version: 1, UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("SetSchema failed: %v", err)
	}

	schema := s.GetSchema()
	if schema == nil {
		t.Fatal("Expected schema to exist")
	}
	if schema.Version != 1 {
		t.Errorf("Expected version 1, got %d", schema.Version)
	}
}

func TestMigrate(t *testing.T) {
	t.Run("fresh database is stamped", func(t *testing.T) {
		s, err := store.OpenInMemory()
		if err != nil {
			t.Fatalf("OpenInMemory failed: %v", err)
		}
		defer s.Close()

		wrote, err := s.Migrate()
		if err != nil || !wrote {
			t.Fatalf("Migrate() = %v, %v; want true, nil", wrote, err)
		}
		if got := s.GetSchema(); got == nil || got.Version != store.CurrentSchemaVersion {
			t.Errorf("schema = %+v, want version %d", got, store.CurrentSchemaVersion)
		}

		wrote, err = s.Migrate()
		if err != nil || wrote {
			t.Errorf("second Migrate() = %v, %v; want false, nil", wrote, err)
		}
	})

	t.Run("newer database is refused", func(t *testing.T) {
		s, err := store.OpenInMemory()
		if err != nil {
			t.Fatalf("OpenInMemory failed: %v", err)
		}
		defer s.Close()

		if err := s.SetSchema(&store.Schema{Version: store.CurrentSchemaVersion + 1}); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Migrate(); !errors.Is(err, store.ErrSchemaTooNew) {
			t.Errorf("Migrate() error = %v, want ErrSchemaTooNew", err)
		}
	})
}
