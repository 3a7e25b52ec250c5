package rpl

import (
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/wisun-fan/wsrouterd/tstime/mono"
)

// daoMaxTries is the retry budget of spec §4.4.3: "abandon after 8 tries".
const daoMaxTries = 8

// newDAOBackoff builds the exponential backoff schedule spec §4.4.3
// specifies — 1s, 2s, 4s, ... capped at 60s — using
// github.com/cenkalti/backoff/v5, the one retry/backoff primitive
// present anywhere in the retrieved corpus (sakateka-yanet2's go.mod,
// used the same way: construct, then call NextBackOff() per attempt).
func newDAOBackoff() *backoff.ExponentialBackOff {
	bo := &backoff.ExponentialBackOff{
		InitialInterval:     time.Second,
		Multiplier:          2,
		RandomizationFactor: 0,
		MaxInterval:         60 * time.Second,
	}
	bo.Reset()
	return bo
}

// emitDAO sends (or re-sends) a DAO to parent, scheduling the next
// retry deadline per the backoff schedule above (spec §4.4.3).
func (e *Engine) emitDAO(parent *Neighbor, now mono.Time) {
	if e.SendDAO != nil {
		if err := e.SendDAO(parent); err != nil {
			e.logf("rpl: DAO send to %x failed: %v", parent.EUI64, err)
		}
	}
	if parent.daoBackoff == nil {
		parent.daoBackoff = newDAOBackoff()
	}
	parent.daoNextDeadline = now.Add(parent.daoBackoff.NextBackOff())
}

// DAOAckTimeout is called by the scheduler when parent.daoNextDeadline
// elapses without a matching DAO-ACK (spec §4.4.3): retransmit with
// the next backoff step, or demote the parent after daoMaxTries.
func (e *Engine) DAOAckTimeout(parent *Neighbor, now mono.Time) {
	if parent.DAOAckRecv {
		return
	}
	parent.daoTries++
	if parent.daoTries >= daoMaxTries {
		e.logf("rpl: DAO to %x exhausted retries, demoting parent", parent.EUI64)
		if parent.IsPreferredParent {
			e.loseParent(now)
		}
		return
	}
	e.emitDAO(parent, now)
}

// DAOAckReceived records a DAO-ACK from parent, stopping retransmission.
func (e *Engine) DAOAckReceived(parent *Neighbor) {
	parent.DAOAckRecv = true
	parent.daoTries = 0
	parent.daoBackoff = nil
}
