// Package replay implements solver.Service by replaying eigenmodes from a
// YAML catalog. Each run returns the next ModeCount catalog modes strictly
// above the configuration's minimum frequency, which is how an eigenmode
// solver behaves when asked for the lowest modes above a bound.
package replay

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/resweep/pkg/resweep/freq"
)

// ErrEmptyCatalog is returned when a catalog lists no modes.
var ErrEmptyCatalog = errors.New("catalog has no modes")

// Mode is one catalog entry.
type Mode struct {
	Frequency freq.Frequency
	Q         float64
}

// Catalog is an immutable, frequency-ordered list of modes.
type Catalog struct {
	// Source is the file the catalog was read from, if any.
	Source string

	// Passes is the number of adaptive passes reported per run. Zero reports
	// each configuration's MinPasses.
	Passes int

	// Latency delays every run.
	Latency time.Duration

	// Loaded is when the catalog was parsed.
	Loaded time.Time

	modes []Mode
}

type catalogFile struct {
	Passes  int    `yaml:"passes"`
	Latency string `yaml:"latency"`
	Modes   []struct {
		Frequency string  `yaml:"frequency"`
		Q         float64 `yaml:"q"`
	} `yaml:"modes"`
}

// Load reads and parses a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}
	cat.Source = path
	return cat, nil
}

// Parse decodes a YAML catalog:
//
//	passes: 4
//	latency: 250ms
//	modes:
//	  - {frequency: 1.1GHz, q: 5}
//	  - {frequency: 1.3GHz, q: 12}
func Parse(data []byte) (*Catalog, error) {
	var raw catalogFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	cat := &Catalog{Passes: raw.Passes, Loaded: time.Now()}
	if raw.Passes < 0 {
		return nil, fmt.Errorf("passes must not be negative, got %d", raw.Passes)
	}
	if raw.Latency != "" {
		d, err := time.ParseDuration(raw.Latency)
		if err != nil {
			return nil, fmt.Errorf("latency: %w", err)
		}
		cat.Latency = d
	}

	for i, m := range raw.Modes {
		f, err := freq.Parse(m.Frequency)
		if err != nil {
			return nil, fmt.Errorf("mode %d: %w", i+1, err)
		}
		if m.Q < 0 {
			return nil, fmt.Errorf("mode %d: negative quality factor %g", i+1, m.Q)
		}
		cat.modes = append(cat.modes, Mode{Frequency: f, Q: m.Q})
	}
	return newCatalog(cat)
}

// New builds a catalog from modes given in any order.
func New(modes ...Mode) (*Catalog, error) {
	return newCatalog(&Catalog{modes: append([]Mode(nil), modes...), Loaded: time.Now()})
}

func newCatalog(cat *Catalog) (*Catalog, error) {
	if len(cat.modes) == 0 {
		return nil, ErrEmptyCatalog
	}
	sort.SliceStable(cat.modes, func(i, j int) bool {
		return cat.modes[i].Frequency < cat.modes[j].Frequency
	})
	return cat, nil
}

// Len returns the number of modes.
func (c *Catalog) Len() int { return len(c.modes) }

// Modes returns a copy of the modes in ascending frequency order.
func (c *Catalog) Modes() []Mode {
	return append([]Mode(nil), c.modes...)
}

// Above returns up to n modes strictly above floor, lowest first.
func (c *Catalog) Above(floor freq.Frequency, n int) []Mode {
	i := sort.Search(len(c.modes), func(i int) bool { return c.modes[i].Frequency > floor })
	end := min(i+n, len(c.modes))
	return append([]Mode(nil), c.modes[i:end]...)
}

// DefaultCatalog is written when the daemon starts without a catalog.
const DefaultCatalog = `# resweepd mode catalog.
# Each run returns the lowest modes above the requested minimum frequency.
passes: 4
latency: 0s
modes:
  - {frequency: 1.1GHz, q: 5}
  - {frequency: 1.3GHz, q: 12}
  - {frequency: 1.5GHz, q: 8}
  - {frequency: 1.7GHz, q: 15}
  - {frequency: 1.9GHz, q: 20}
  - {frequency: 2.1GHz, q: 3}
`

// WriteDefault writes DefaultCatalog to path unless a file already exists
// there. It reports whether it wrote the file.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("checking catalog: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("creating catalog directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(DefaultCatalog), 0o644); err != nil {
		return false, fmt.Errorf("writing default catalog: %w", err)
	}
	return true, nil
}
