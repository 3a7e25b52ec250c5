// Package stats wires the error taxonomy (spec §7) to
// github.com/prometheus/client_golang counters, the observability
// library the broader retrieved corpus reaches for, rather than a
// hand-rolled counter map.
package stats

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wisun-fan/wsrouterd/wserr"
)

// Registry groups every counter this core exports. Construct one per
// process and pass it down to the engines that need it; a nil
// *Registry is valid and every method on it becomes a no-op, so tests
// and callers that don't care about metrics can skip wiring it.
type Registry struct {
	errors *prometheus.CounterVec
}

// NewRegistry builds and registers the core's counters against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsrouterd",
			Name:      "errors_total",
			Help:      "Count of handled failures, labeled by taxonomy kind (spec §7).",
		}, []string{"kind"}),
	}
	reg.MustRegister(r.errors)
	return r
}

// CountError increments the counter for err's taxonomy Kind, if any.
func (r *Registry) CountError(err error) {
	if r == nil || err == nil {
		return
	}
	kind, ok := wserr.KindOf(err)
	if !ok {
		return
	}
	r.errors.WithLabelValues(kind.String()).Inc()
}
