package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses raw as a non-negative Go duration. Empty is 0.
// path names the key in error messages.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero values.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Range is a parsed RangeConfig.
type Range struct {
	Min, Max time.Duration
}

// ParseRange parses both bounds and requires min <= max.
func ParseRange(path string, rc RangeConfig, def Range) (Range, error) {
	lo, err := ParseDurationOrDefault(path+".min", rc.Min, def.Min)
	if err != nil {
		return Range{}, err
	}
	hi, err := ParseDurationOrDefault(path+".max", rc.Max, def.Max)
	if err != nil {
		return Range{}, err
	}
	if hi < lo {
		return Range{}, fmt.Errorf("%s: max %v is below min %v", path, hi, lo)
	}
	return Range{Min: lo, Max: hi}, nil
}
