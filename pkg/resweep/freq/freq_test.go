package freq

import (
	"errors"
	"math"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Frequency
		wantErr bool
	}{
		{name: "plain hertz", input: "1000", want: 1000},
		{name: "zero", input: "0", want: 0},
		{name: "hertz suffix", input: "50Hz", want: 50},
		{name: "hertz lowercase", input: "50hz", want: 50},
		{name: "scientific", input: "1e9", want: 1e9},

		{name: "kilohertz", input: "500k", want: 500e3},
		{name: "kilohertz with unit", input: "500kHz", want: 500e3},
		{name: "megahertz", input: "250MHz", want: 250e6},
		{name: "megahertz lowercase", input: "250m", want: 250e6},
		{name: "gigahertz", input: "2GHz", want: 2e9},
		{name: "gigahertz short", input: "2g", want: 2e9},
		{name: "gigahertz decimal", input: "1.5GHz", want: 1.5e9},
		{name: "gigahertz spaced", input: "1.3 GHz", want: 1.3e9},
		{name: "terahertz", input: "1THz", want: 1e12},

		{name: "leading whitespace", input: "  1GHz", want: 1e9},
		{name: "trailing whitespace", input: "1GHz  ", want: 1e9},

		{name: "empty string", input: "", wantErr: true},
		{name: "only whitespace", input: "   ", wantErr: true},
		{name: "unknown prefix", input: "100X", wantErr: true},
		{name: "negative", input: "-1GHz", wantErr: true},
		{name: "letters only", input: "abc", wantErr: true},
		{name: "unit only", input: "GHz", wantErr: true},
		{name: "trailing garbage", input: "1GHz2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if math.Abs(float64(got-tt.want)) > 1e-6*math.Max(1, float64(tt.want)) {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, float64(got), float64(tt.want))
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse("-5"); !errors.Is(err, ErrNegativeFrequency) {
		t.Errorf("Parse(-5) error = %v, want ErrNegativeFrequency", err)
	}
	if _, err := Parse("five"); !errors.Is(err, ErrInvalidFrequency) {
		t.Errorf("Parse(five) error = %v, want ErrInvalidFrequency", err)
	}
}

func TestDisplay(t *testing.T) {
	tests := []struct {
		in   Frequency
		want string
	}{
		{1.3e9, "1.3 GHz"},
		{1.9e9, "1.9 GHz"},
		{2e9, "2.0 GHz"},
		{1e9, "1.0 GHz"},
		{12e9, "12.0 GHz"},
		{0, "0.0 GHz"},
		{1.23456789e9, "1.2346 GHz"},
		{12.345678e9, "12.346 GHz"},
		{850e6, "0.85 GHz"},
	}

	for _, tt := range tests {
		if got := tt.in.Display(); got != tt.want {
			t.Errorf("Frequency(%g).Display() = %q, want %q", float64(tt.in), got, tt.want)
		}
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		in   Frequency
		want string
	}{
		{0, "0 Hz"},
		{1.3e9, "1.3 GHz"},
		{250e6, "250 MHz"},
		{1500, "1.5 kHz"},
	}

	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("Frequency(%g).String() = %q, want %q", float64(tt.in), got, tt.want)
		}
	}
}

func TestSettingRoundTrip(t *testing.T) {
	for _, f := range []Frequency{1e9, 1.3e9, 2.123456789e9} {
		got, err := Parse(f.Setting())
		if err != nil {
			t.Fatalf("Parse(%q): %v", f.Setting(), err)
		}
		if math.Abs(float64(got-f)) > 1 {
			t.Errorf("round trip of %v through %q gave %v", float64(f), f.Setting(), float64(got))
		}
	}
}

func TestValid(t *testing.T) {
	if !Frequency(1).Valid() {
		t.Error("1 Hz should be valid")
	}
	for _, f := range []Frequency{-1, Frequency(math.NaN()), Frequency(math.Inf(1))} {
		if f.Valid() {
			t.Errorf("%v should not be valid", float64(f))
		}
	}
}
