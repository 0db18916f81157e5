// Package timeutils is a thin wrapper over the standard time library so that
// components can take an injectable clock and tests can substitute a
// deterministic one.
package timeutils

import "time"

// Now returns the current local time.
func Now() time.Time {
	return time.Now()
}

// Since returns the duration elapsed since t.
func Since(t time.Time) time.Duration {
	return time.Since(t)
}
