// Package logger defines the daemon's logging function type, the way
// tailscale.com/types/logger does: a plain closure threaded explicitly
// through constructors rather than a package-level global logger.
package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Logf is the basic logger type: a printf-like func.
//
// Functions that wrap a Logf must pass through the original format
// and args rather than pre-formatting with fmt.Sprintf, so that
// rate limiting downstream still sees a stable format string to key
// on.
type Logf func(format string, args ...any)

// Discard throws away everything logged to it.
func Discard(string, ...any) {}

// WithPrefix returns a Logf that prefixes every format string with prefix.
func WithPrefix(f Logf, prefix string) Logf {
	return func(format string, args ...any) {
		f(prefix+format, args...)
	}
}

// StdLogger adapts f to the standard library's *log.Logger.
func StdLogger(f Logf) *log.Logger {
	return log.New(funcWriter{f}, "", 0)
}

type funcWriter struct{ f Logf }

func (w funcWriter) Write(p []byte) (int, error) {
	w.f("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

var _ io.Writer = funcWriter{}

// RateLimitedFn wraps f so that repeats of the same format string are
// capped: at most burst occurrences are logged before the format
// string is suppressed, refilling at one every interval.
//
// This mirrors the token-bucket construction the ICMPv6 error
// responder (see package icmpengine) uses for outbound error frames,
// built on the same golang.org/x/time/rate package.
func RateLimitedFn(f Logf, interval time.Duration, burst int) Logf {
	var mu sync.Mutex
	lims := make(map[string]*rate.Limiter)

	return func(format string, args ...any) {
		mu.Lock()
		lim, ok := lims[format]
		if !ok {
			lim = rate.NewLimiter(rate.Every(interval), burst)
			lims[format] = lim
		}
		allow := lim.Allow()
		mu.Unlock()
		if allow {
			f(format, args...)
		}
	}
}

// Sprintf is a convenience matching fmt.Sprintf, useful for building
// one-off strings to pass as a %s argument to a Logf without pulling
// in fmt at call sites that otherwise don't need it.
func Sprintf(format string, args ...any) string { return fmt.Sprintf(format, args...) }
