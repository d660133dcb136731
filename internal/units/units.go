// Package units parses the CSS-style lengths, percentages and angles used by
// filter functions and preview sizing.
package units

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Pixels per absolute unit at the CSS reference density of 96dpi.
var absoluteLengths = map[string]float64{
	"px": 1,
	"in": 96,
	"cm": 96 / 2.54,
	"mm": 96 / 25.4,
	"Q":  96 / 101.6,
	"pt": 96.0 / 72.0,
	"pc": 16,
}

// ParseLength converts an absolute CSS length ("20px", "1in", "0") to pixels.
func ParseLength(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty length")
	}
	if s == "0" {
		return 0, nil
	}
	num, unit := splitUnit(s)
	factor, ok := absoluteLengths[unit]
	if !ok {
		factor, ok = absoluteLengths[strings.ToLower(unit)]
	}
	if !ok {
		if unit == "" {
			return 0, errors.Errorf("length %q is missing a unit", s)
		}
		return 0, errors.Errorf("unsupported length unit %q in %q", unit, s)
	}
	v, err := parseFloat(num)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid length %q", s)
	}
	return v * factor, nil
}

// ParseAmount parses a number or percentage ("0.5", "50%") into a factor
// where 100% == 1.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "%") {
		v, err := parseFloat(strings.TrimSuffix(s, "%"))
		if err != nil {
			return 0, errors.Wrapf(err, "invalid percentage %q", s)
		}
		return v / 100, nil
	}
	v, err := parseFloat(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid number %q", s)
	}
	return v, nil
}

// ParsePercentage parses "50%" into 0.5. Bare numbers are rejected.
func ParsePercentage(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "%") {
		return 0, false
	}
	v, err := parseFloat(strings.TrimSuffix(s, "%"))
	if err != nil {
		return 0, false
	}
	return v / 100, true
}

// ParseAngle converts a CSS angle to degrees. Unitless zero is accepted.
func ParseAngle(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "0" {
		return 0, nil
	}
	num, unit := splitUnit(s)
	v, err := parseFloat(num)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid angle %q", s)
	}
	switch strings.ToLower(unit) {
	case "deg":
		return v, nil
	case "grad":
		return v * 0.9, nil
	case "rad":
		return v * 180 / math.Pi, nil
	case "turn":
		return v * 360, nil
	default:
		return 0, errors.Errorf("unsupported angle unit %q in %q", unit, s)
	}
}

func splitUnit(s string) (string, string) {
	i := len(s)
	for i > 0 {
		c := s[i-1]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			i--
			continue
		}
		break
	}
	return s[:i], s[i:]
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.Errorf("non-finite value %q", s)
	}
	return v, nil
}
