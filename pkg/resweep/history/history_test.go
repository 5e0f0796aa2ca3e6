package history

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jamesainslie/resweep/pkg/resweep/freq"
	"github.com/jamesainslie/resweep/pkg/resweep/output"
)

func sample(complete bool, n int) *output.Result {
	r := &output.Result{
		FMin:      1 * freq.GHz,
		FMax:      2 * freq.GHz,
		ModeCount: 6,
		Threshold: 10,
		Complete:  complete,
		Elapsed:   3 * time.Second,
	}
	for i := 0; i < n; i++ {
		f := freq.Frequency(1.1+0.1*float64(i)) * freq.GHz
		r.Resonances = append(r.Resonances, output.Resonance{
			Index: i + 1, Setup: "em_setup1", Mode: i + 1, Frequency: f, Display: f.Display(), Q: 100,
		})
	}
	if !complete {
		r.Error = "solver unavailable"
	}
	return r
}

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("New(\"\") error = nil, want error")
	}
	s, err := New(t.TempDir())
	if err != nil || s == nil {
		t.Fatalf("New() = %v, %v", s, err)
	}
}

func TestSaveAndGet(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "history")
	s, _ := New(dir)

	rec, err := s.Save(sample(true, 3))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if rec.ID == "" || rec.Report.RunID != rec.ID {
		t.Errorf("Save() ID = %q, report RunID = %q", rec.ID, rec.Report.RunID)
	}
	if rec.Status != StatusComplete {
		t.Errorf("Status = %s, want complete", rec.Status)
	}
	if rec.Report.Started.IsZero() {
		t.Error("Started not filled in")
	}
	if _, err := os.Stat(filepath.Join(dir, rec.ID+".json")); err != nil {
		t.Errorf("record file missing: %v", err)
	}
	if matches, _ := filepath.Glob(filepath.Join(dir, "*.tmp")); len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}

	got, err := s.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.Report.Resonances) != 3 || got.Report.Resonances[2].Display != "1.3 GHz" {
		t.Errorf("Get() resonances = %+v", got.Report.Resonances)
	}
	if got.Report.FMax != 2*freq.GHz || got.Report.Elapsed != 3*time.Second {
		t.Errorf("Get() report = %+v", got.Report)
	}
}

func TestSaveKeepsRunID(t *testing.T) {
	t.Parallel()
	s, _ := New(t.TempDir())

	r := sample(true, 1)
	r.RunID = "fixed-id"
	rec, err := s.Save(r)
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID != "fixed-id" {
		t.Errorf("ID = %q, want fixed-id", rec.ID)
	}
}

func TestStatusOf(t *testing.T) {
	t.Parallel()
	tests := []struct {
		r    *output.Result
		want Status
	}{
		{sample(true, 0), StatusComplete},
		{sample(false, 2), StatusPartial},
		{sample(false, 0), StatusFailed},
	}
	for _, tt := range tests {
		if got := StatusOf(tt.r); got != tt.want {
			t.Errorf("StatusOf() = %s, want %s", got, tt.want)
		}
	}
}

func TestGetByPrefix(t *testing.T) {
	t.Parallel()
	s, _ := New(t.TempDir())

	for _, id := range []string{"20260101T000000-aaaa1111", "20260101T000000-aaaa2222", "20260102T000000-bbbb0000"} {
		r := sample(true, 1)
		r.RunID = id
		if _, err := s.Save(r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Get("20260102")
	if err != nil || got.ID != "20260102T000000-bbbb0000" {
		t.Errorf("Get(unique prefix) = %v, %v", got, err)
	}
	if _, err := s.Get("20260101T000000-aaaa"); !errors.Is(err, ErrAmbiguousID) {
		t.Errorf("Get(ambiguous) error = %v, want ErrAmbiguousID", err)
	}
	if _, err := s.Get("2025"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(""); err == nil {
		t.Error("Get(\"\") error = nil")
	}
}

func TestListAndLatest(t *testing.T) {
	t.Parallel()
	s, _ := New(t.TempDir())

	if _, err := s.Latest(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Latest() on empty store error = %v, want ErrNotFound", err)
	}

	var ids []string
	for i := 0; i < 3; i++ {
		rec, err := s.Save(sample(true, i))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, rec.ID)
		time.Sleep(5 * time.Millisecond)
	}
	// Garbage is skipped.
	if err := os.WriteFile(filepath.Join(s.Dir(), "junk.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}

	all, err := s.List(0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List(0) = %d records, want 3", len(all))
	}
	if all[0].ID != ids[2] || all[2].ID != ids[0] {
		t.Errorf("List() order = %s, %s, %s; want newest first", all[0].ID, all[1].ID, all[2].ID)
	}

	two, _ := s.List(2)
	if len(two) != 2 {
		t.Errorf("List(2) = %d records", len(two))
	}

	latest, err := s.Latest()
	if err != nil || latest.ID != ids[2] {
		t.Errorf("Latest() = %v, %v", latest, err)
	}
}

func TestListMissingDir(t *testing.T) {
	t.Parallel()
	s, _ := New(filepath.Join(t.TempDir(), "nope"))
	got, err := s.List(0)
	if err != nil || len(got) != 0 {
		t.Errorf("List() = %v, %v; want empty", got, err)
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()
	s, _ := New(t.TempDir())
	rec, _ := s.Save(sample(true, 1))

	if err := s.Delete(rec.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestCleanup(t *testing.T) {
	t.Parallel()
	s, _ := New(t.TempDir())

	old, _ := s.Save(sample(true, 1))
	fresh, _ := s.Save(sample(true, 1))
	past := time.Now().AddDate(0, 0, -100)
	if err := os.Chtimes(filepath.Join(s.Dir(), old.ID+".json"), past, past); err != nil {
		t.Fatal(err)
	}

	if n, _ := s.Cleanup(0); n != 0 {
		t.Errorf("Cleanup(0) removed %d, want 0", n)
	}
	n, err := s.Cleanup(90)
	if err != nil || n != 1 {
		t.Fatalf("Cleanup(90) = %d, %v; want 1", n, err)
	}
	if _, err := s.Get(fresh.ID); err != nil {
		t.Errorf("fresh record removed: %v", err)
	}
	if _, err := s.Get(old.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("old record kept: %v", err)
	}
}

func TestConcurrentSaves(t *testing.T) {
	t.Parallel()
	s, _ := New(t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Save(sample(true, 1)); err != nil {
				t.Errorf("Save() error = %v", err)
			}
		}()
	}
	wg.Wait()

	all, _ := s.List(0)
	if len(all) != 10 {
		t.Errorf("List() = %d records, want 10", len(all))
	}
}

func TestNewID(t *testing.T) {
	t.Parallel()
	ts := time.Date(2026, 10, 18, 10, 15, 0, 0, time.UTC)
	id := NewID(ts)
	if len(id) != len("20261018T101500-")+8 || id[:16] != "20261018T101500-" {
		t.Errorf("NewID() = %q", id)
	}
	if NewID(ts) == id {
		t.Error("NewID() not unique")
	}
}
