package duration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"0":      0,
		"30d":    30 * Day,
		"10d":    10 * 24 * time.Hour,
		"-5d":    -5 * Day,
		"2w":     14 * Day,
		"1d12h":  36 * time.Hour,
		"90m":    90 * time.Minute,
		"1.5h":   90 * time.Minute,
		"+1w1d":  8 * Day,
		"250ms":  250 * time.Millisecond,
		"1d30s":  Day + 30*time.Second,
		"-1h30m": -(time.Hour + 30*time.Minute),
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseDurationErrors(t *testing.T) {
	for _, in := range []string{"", "-", "d", "10", "10x", "1.5d", "abc",
		"99999999999w", "15251w", "9223372036854775807h", "15000w1000w", "2562047h2562047h"} {
		_, err := ParseDuration(in)
		assert.Error(t, err, in)
	}
}

func TestParseDurationLargestWeeks(t *testing.T) {
	d, err := ParseDuration("15250w")
	require.NoError(t, err)
	assert.Equal(t, 15250*Week, d)
}
