package core

import (
	"math"
	"strings"
	"time"
)

// NowFunc returns the current UTC time; tests may replace it.
var NowFunc = func() time.Time {
	return time.Now().UTC()
}

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// ClampPoints bounds p to [0, max].
func ClampPoints(p, max float64) float64 {
	return math.Min(math.Max(0, p), max)
}
