// Package mono provides a cheap monotonic clock reading, the way
// tailscale.com/tstime/mono does: a single int64 of nanoseconds since
// an arbitrary process-local epoch, safe to compare and subtract
// without the wall-clock jump hazards of time.Time.
//
// The event scheduler (package sched) and every timer-driven piece of
// the neighbor cache and RPL engine key their deadlines off Time
// rather than time.Time for exactly that reason: NTP step corrections
// or a local clock change must never perturb a Trickle timer or a
// reachability deadline.
package mono

import (
	"encoding/json"
	"time"
)

var processStart = time.Now()

// Time is a point in time measured in nanoseconds since process start.
// The zero Time is not "now"; it is IsZero's sentinel for "unset".
type Time int64

// Now returns the current monotonic time.
func Now() Time {
	return Time(time.Since(processStart))
}

// Since returns the elapsed duration since t.
func Since(t Time) time.Duration {
	return time.Duration(Now() - t)
}

// Add returns t+d.
func (t Time) Add(d time.Duration) Time {
	return t + Time(d)
}

// Sub returns the duration t-u.
func (t Time) Sub(u Time) time.Duration {
	return time.Duration(t - u)
}

// Before reports whether t is strictly before u.
func (t Time) Before(u Time) bool { return t < u }

// After reports whether t is strictly after u.
func (t Time) After(u Time) bool { return t > u }

// IsZero reports whether t is the unset zero value.
func (t Time) IsZero() bool { return t == 0 }

// MarshalJSON encodes t as the equivalent wall-clock time.Time, so
// that snapshots written by package store remain meaningful across
// process restarts (a raw process-relative Time would not).
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return json.Marshal(time.Time{})
	}
	return json.Marshal(processStart.Add(time.Duration(t)))
}

// UnmarshalJSON decodes a wall-clock time.Time back into a Time
// relative to this process's start. A zero wall time unmarshals to
// the zero Time, matching MarshalJSON's encoding of IsZero.
func (t *Time) UnmarshalJSON(b []byte) error {
	var wall time.Time
	if err := json.Unmarshal(b, &wall); err != nil {
		return err
	}
	if wall.IsZero() {
		*t = 0
		return nil
	}
	*t = Time(wall.Sub(processStart))
	return nil
}
