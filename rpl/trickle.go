package rpl

import (
	"math/rand/v2"
	"time"

	"github.com/wisun-fan/wsrouterd/tstime/mono"
)

// Trickle implements the RFC 6206 Trickle algorithm pacing outbound
// DIOs (spec §4.4.4): interval doubles from I_min up to I_max on
// consistency, resets to I_min on inconsistency, and suppresses
// transmission once the consistency counter reaches the redundancy
// constant k.
type Trickle struct {
	IMin time.Duration
	IMax time.Duration
	K    int // redundancy constant

	interval      time.Duration
	intervalStart mono.Time
	txTime        mono.Time // randomly chosen point within [I/2, I) to transmit
	counter       int       // consistent-DIO counter 'c'
	firedThisInterval bool
}

// NewTrickle constructs a Trickle timer from an RPL Configuration
// option's dio_interval_min/dio_interval_doublings/dio_redundancy
// fields (spec §4.4.4): I_min = 2^dio_interval_min ms, I_max = I_min
// << dio_interval_doublings.
func NewTrickle(dioIntervalMin, dioIntervalDoublings, dioRedundancy uint8, now mono.Time) *Trickle {
	iMin := time.Duration(1<<dioIntervalMin) * time.Millisecond
	iMax := iMin << dioIntervalDoublings
	tr := &Trickle{IMin: iMin, IMax: iMax, K: int(dioRedundancy)}
	tr.reset(now)
	return tr
}

// reset restarts the timer at I_min with a fresh random transmission
// point and a zeroed consistency counter.
func (tr *Trickle) reset(now mono.Time) {
	tr.interval = tr.IMin
	tr.start(now)
}

func (tr *Trickle) start(now mono.Time) {
	tr.intervalStart = now
	tr.counter = 0
	tr.firedThisInterval = false
	// Transmission time t is uniform in [I/2, I).
	half := tr.interval / 2
	jitter := time.Duration(0)
	if tr.interval > half {
		jitter = time.Duration(rand.Int64N(int64(tr.interval - half)))
	}
	tr.txTime = now.Add(half + jitter)
}

// Inconsistency resets the timer to I_min, per RFC 6206 §6 rule 6.
func (tr *Trickle) Inconsistency(now mono.Time) {
	if tr.interval == tr.IMin {
		return // already at minimum; nothing to reset
	}
	tr.reset(now)
}

// Consistency increments the consistency counter c, per RFC 6206 §6.1 rule 2.
func (tr *Trickle) Consistency() {
	tr.counter++
}

// NextDeadline returns the next time Tick should be called: either
// the transmission point (if not yet passed) or the end of the
// current interval.
func (tr *Trickle) NextDeadline() mono.Time {
	if tr.txTime.After(mono.Now()) {
		return tr.txTime
	}
	return tr.intervalStart.Add(tr.interval)
}

// Tick advances the Trickle timer at now, returning true exactly when
// a DIO should be transmitted: at the chosen txTime, provided the
// consistency counter is below k (RFC 6206 §6.1 rule 4/5).
func (tr *Trickle) Tick(now mono.Time) (transmit bool) {
	if !now.Before(tr.txTime) && !tr.firedThisInterval {
		tr.firedThisInterval = true
		if tr.counter < tr.K {
			transmit = true
		}
	}
	if !now.Before(tr.intervalStart.Add(tr.interval)) {
		// Interval elapsed: double toward I_max and start a new interval.
		next := tr.interval * 2
		if next > tr.IMax {
			next = tr.IMax
		}
		tr.interval = next
		tr.start(now)
	}
	return transmit
}
