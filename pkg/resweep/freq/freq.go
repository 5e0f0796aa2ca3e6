// Package freq provides the frequency type used throughout resweep, along with
// parsing of human-entered frequency strings and the display formats used in
// sweep reports.
package freq

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Frequency is a frequency in hertz.
type Frequency float64

// Frequency unit multipliers (SI).
const (
	Hz  Frequency = 1
	KHz Frequency = 1e3 * Hz
	MHz Frequency = 1e3 * KHz
	GHz Frequency = 1e3 * MHz
	THz Frequency = 1e3 * GHz
)

// frequencyPattern matches strings like "1", "2.5GHz", "250 MHz", "3g", "1e9".
var frequencyPattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]*)?(?:e[+-]?[0-9]+)?)\s*([kmgt]?)(hz)?\s*$`)

// ErrInvalidFrequency indicates that the frequency string could not be parsed.
var ErrInvalidFrequency = errors.New("invalid frequency format")

// ErrNegativeFrequency indicates that a negative frequency was provided.
var ErrNegativeFrequency = errors.New("frequency cannot be negative")

// Parse parses a human-readable frequency string and returns it in hertz.
// Accepted forms:
//   - Plain hertz: "1000", "1e9"
//   - With unit: "100Hz", "100 hz"
//   - Prefixed: "500k", "500kHz", "250MHz", "1.5GHz", "2g", "1THz"
//
// Prefixes are case-insensitive, so "m" means mega; there is no milli.
func Parse(s string) (Frequency, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidFrequency)
	}
	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeFrequency
	}

	matches := frequencyPattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFrequency, s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFrequency, s)
	}

	var multiplier Frequency
	switch strings.ToLower(matches[2]) {
	case "":
		multiplier = Hz
	case "k":
		multiplier = KHz
	case "m":
		multiplier = MHz
	case "g":
		multiplier = GHz
	case "t":
		multiplier = THz
	}

	return Frequency(value) * multiplier, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Frequency {
	f, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return f
}

// Hertz returns the frequency as a plain float64.
func (f Frequency) Hertz() float64 {
	return float64(f)
}

// GHz returns the frequency in gigahertz.
func (f Frequency) GHz() float64 {
	return float64(f / GHz)
}

// Valid reports whether f is a finite, non-negative frequency.
func (f Frequency) Valid() bool {
	v := float64(f)
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// String formats the frequency with an automatically chosen SI prefix,
// e.g. "1.3 GHz" or "250 MHz".
func (f Frequency) String() string {
	return humanize.SIWithDigits(float64(f), 3, "Hz")
}

// Display formats the frequency in gigahertz with five significant digits,
// the format used for resonance listings: "1.3 GHz", "2.4569 GHz". Whole
// values keep one decimal place, so 2 GHz displays as "2.0 GHz".
func (f Frequency) Display() string {
	s := strconv.FormatFloat(f.GHz(), 'g', 5, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s + " GHz"
}

// Setting formats the frequency in the form solver configurations expect,
// e.g. "1.3GHz".
func (f Frequency) Setting() string {
	return strconv.FormatFloat(f.GHz(), 'g', -1, 64) + "GHz"
}
