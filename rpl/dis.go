package rpl

import "github.com/wisun-fan/wsrouterd/tstime/mono"

// HandleDIS resets the Trickle timer to I_min on receipt of a DIS
// (DODAG Information Solicitation), per RFC 6206 §6 — a neighbor
// soliciting state means our cached state may be inconsistent with
// what it needs (SPEC_FULL §4.4's added DIS coverage).
func (e *Engine) HandleDIS(now mono.Time) {
	e.trickle.Inconsistency(now)
}

// ShouldSendDIS reports whether this engine should solicit a DIO: it
// has no RPL neighbors at all (RFC 6550 §8.3). The scheduler is
// expected to call this only after 2*I_min of silence since boot or
// the last DIS, per SPEC_FULL §4.4 — see NextDISDeadline.
func (e *Engine) ShouldSendDIS() bool {
	return e.Table.Len() == 0
}

// NextDISDeadline reports when this engine may next solicit a DIO via
// SendDIS: 2*I_min of silence (RFC 6550 §8.3) measured from boot or
// the last DIS sent, using the current Trickle timer's I_min.
func (e *Engine) NextDISDeadline() mono.Time {
	return e.lastDIS.Add(2 * e.trickle.IMin)
}

// SendDIS solicits an immediate DIO from neighbors when this engine
// has no RPL neighbors after 2*I_min of silence (SPEC_FULL §4.4, RFC
// 6550 §8.3). The scheduler calls this once ShouldSendDIS reports
// true and now is past NextDISDeadline; the actual wire transmission
// is delegated to TransmitDIS, wired by package iface.
func (e *Engine) SendDIS(now mono.Time) error {
	e.lastDIS = now
	if e.TransmitDIS == nil {
		return nil
	}
	if err := e.TransmitDIS(); err != nil {
		e.logf("rpl: DIS send failed: %v", err)
		return err
	}
	return nil
}
