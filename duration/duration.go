// Package duration parses durations with day and week units, e.g. "30d" or "2w12h".
package duration

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	Day  = 24 * time.Hour
	Week = 7 * Day
)

var units = map[string]time.Duration{
	"ns": time.Nanosecond,
	"us": time.Microsecond,
	"µs": time.Microsecond,
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  Day,
	"w":  Week,
}

// ParseDuration behaves like time.ParseDuration but also accepts "d" and "w".
// Fractions are only accepted on the standard units.
func ParseDuration(s string) (time.Duration, error) {
	orig := s
	if s == "" {
		return 0, fmt.Errorf("duration: empty string")
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "0" {
		return 0, nil
	}
	if s == "" {
		return 0, fmt.Errorf("duration: invalid %q", orig)
	}

	var total time.Duration
	for s != "" {
		i := 0
		for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
			i++
		}
		if i == 0 {
			return 0, fmt.Errorf("duration: invalid %q", orig)
		}
		num := s[:i]
		s = s[i:]

		j := 0
		for j < len(s) && !(s[j] >= '0' && s[j] <= '9' || s[j] == '.') {
			j++
		}
		unit := s[:j]
		s = s[j:]

		mult, ok := units[unit]
		if !ok {
			return 0, fmt.Errorf("duration: unknown unit %q in %q", unit, orig)
		}

		if strings.Contains(num, ".") {
			if mult >= Day {
				return 0, fmt.Errorf("duration: fractional %s not supported in %q", unit, orig)
			}
			d, err := time.ParseDuration(num + unit)
			if err != nil {
				return 0, fmt.Errorf("duration: invalid %q: %w", orig, err)
			}
			if total > math.MaxInt64-d {
				return 0, fmt.Errorf("duration: %q overflows", orig)
			}
			total += d
			continue
		}

		n, err := strconv.ParseInt(num, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("duration: invalid %q: %w", orig, err)
		}
		if n > int64(math.MaxInt64/mult) {
			return 0, fmt.Errorf("duration: %q overflows", orig)
		}
		d := time.Duration(n) * mult
		if total > math.MaxInt64-d {
			return 0, fmt.Errorf("duration: %q overflows", orig)
		}
		total += d
	}

	if neg {
		total = -total
	}
	return total, nil
}
