package rpl

import (
	"time"

	"github.com/wisun-fan/wsrouterd/tstime/mono"
	"github.com/wisun-fan/wsrouterd/types/logger"
	"github.com/wisun-fan/wsrouterd/wsnet/addr"
	"github.com/wisun-fan/wsrouterd/wsnet/icmp6"
)

// AttachState is the explicit state machine spec §9 calls for in
// place of the original's nested-callback DHCPv6-acquire → ARO-
// register → DAO-emit flow.
type AttachState int

const (
	Booting AttachState = iota
	AttachingParent
	AddressAcquiring
	Registering
	Registered
)

func (s AttachState) String() string {
	switch s {
	case Booting:
		return "Booting"
	case AttachingParent:
		return "AttachingParent"
	case AddressAcquiring:
		return "AddressAcquiring"
	case Registering:
		return "Registering"
	case Registered:
		return "Registered"
	default:
		return "?"
	}
}

// Engine is the RPL engine (spec §4.4): MOP 1 (non-storing) router
// behavior. It owns the RPL neighbor table and the current DODAG
// membership (rank, version, instance) this node computed for itself.
type Engine struct {
	logf logger.Logf

	Table *Table

	SelfEUI64 addr.EUI64

	instanceID uint8
	dodagID    [16]byte
	version    uint8
	selfRank   uint16
	hasDODAG   bool

	attach AttachState

	// trickle is never nil: it starts as a pre-attach bootstrap timer
	// (defaultBootIMin/Doublings/Redundancy) so the scheduler always
	// has a deadline to arm, and gets replaced with the preferred
	// parent's real Configuration-option parameters the first time a
	// DODAG is joined (see selectParent). trickleAttached tracks
	// whether that replacement has happened for the current parent.
	trickle         *Trickle
	trickleAttached bool

	// OnPreferredParentChange fires exactly once per preferred-parent
	// change (spec §4.4.2's pref_parent_change callback); package iface
	// forwards it to Context.OnPrimaryParentChange.
	OnPreferredParentChange func(n *Neighbor)

	// OnParentLost fires when the preferred parent is demoted (spec §4.4.5).
	OnParentLost func()

	// SendDAO is invoked by the engine to emit a DAO to the given
	// parent. Package iface does not set it; while it is nil, emitDAO
	// only advances the retry schedule. Returning an error counts as a DAO-ACK timeout for
	// retry-accounting purposes only if the caller also reports no ACK.
	SendDAO func(parent *Neighbor) error

	// BroadcastInfiniteRankDIO emits an infinite-rank DIO on parent
	// loss (spec §4.4.5's "poisoning"). Package iface does not set it;
	// while it is nil, loseParent broadcasts nothing.
	BroadcastInfiniteRankDIO func()

	// TransmitDIS is invoked by SendDIS to actually transmit a DIS
	// Control Message; wired by package iface to the wire encoder,
	// mirroring SendDAO.
	TransmitDIS func() error

	lastDIS mono.Time
}

// defaultBootIMin/Doublings/Redundancy parameterize the bootstrap
// Trickle timer an Engine runs before it has ever heard a DIO, so
// ShouldSendDIS's "2*I_min of silence" window and the scheduler's
// periodic rearm both have a well-defined deadline from process start.
// Values match the Configuration option spec.md's own worked example
// uses (dio_interval_min=15, dio_interval_doublings=2, dio_redundancy=0).
const (
	defaultBootIMin       uint8 = 15
	defaultBootDoublings  uint8 = 2
	defaultBootRedundancy uint8 = 0
)

// NewEngine constructs an RPL engine for the node identified by selfEUI64.
func NewEngine(logf logger.Logf, selfEUI64 addr.EUI64) *Engine {
	if logf == nil {
		logf = logger.Discard
	}
	now := mono.Now()
	return &Engine{
		logf:      logf,
		Table:     NewTable(),
		SelfEUI64: selfEUI64,
		attach:    Booting,
		trickle:   NewTrickle(defaultBootIMin, defaultBootDoublings, defaultBootRedundancy, now),
		lastDIS:   now,
	}
}

// AttachState reports the current attach state.
func (e *Engine) AttachState() AttachState { return e.attach }

// rankIncrease computes the OF0 step-of-rank formula (spec §4.4.1):
// rank_factor * step_of_rank + stretch, with step_of_rank
// approximated as 3*ETX-2, clamped to minHopRankIncrease. rankFactor
// and stretch are both 1 and 0 respectively for the default OF0
// (RFC 6552 §5); etx is the MAC-level ETX estimate for the neighbor.
func rankIncrease(etx float64, minHopRankIncrease uint16) uint16 {
	step := 3*etx - 2
	if step < 1 {
		step = 1
	}
	inc := uint16(step * float64(minHopRankIncrease))
	if inc < minHopRankIncrease {
		inc = minHopRankIncrease
	}
	return inc
}

// DIO carries the fields of a received DIO message, after wire
// decoding by package icmpengine.
type DIO struct {
	Base       DIOBase
	Config     icmp6.RPLConfig
	SrcLL      [16]byte // link-local source address
	SrcEUI64   addr.EUI64
	// ETX is the MAC-level ETX estimate for the neighbor that sent
	// this DIO, maintained by the neighbor table's success-ratio
	// tracking (out of scope here; supplied by the caller).
	ETX float64
}

// HandleDIO processes a validated inbound DIO (spec §4.4.1), updating
// or creating the RPL neighbor table entry, computing path cost, and
// re-running parent selection. now is the current monotonic time.
func (e *Engine) HandleDIO(d DIO, now mono.Time) {
	n, existed := e.Table.Lookup(d.SrcEUI64)
	if !existed {
		n = &Neighbor{EUI64: d.SrcEUI64, LinkLocal: d.SrcLL, Candidate: now}
		e.Table.Add(n)
	}
	n.DIOBase = d.Base
	n.Config = d.Config

	inc := rankIncrease(d.ETX, d.Config.MinHopRankIncrease)
	n.PathCost = addSaturating(d.Base.Rank, inc)

	e.trickle.Consistency()

	e.selectParent(now)
}

// addSaturating adds a and b, saturating at InfiniteRank rather than wrapping.
func addSaturating(a, inc uint16) uint16 {
	sum := uint32(a) + uint32(inc)
	if sum >= uint32(InfiniteRank) {
		return InfiniteRank
	}
	return uint16(sum)
}

// admissible reports whether n may be considered as a parent, per
// spec §4.4.1 step 4's four rejection rules.
func (e *Engine) admissible(n *Neighbor, maxRankIncrease uint16) bool {
	if e.hasDODAG && n.DIOBase.Version != e.version {
		return false
	}
	if n.DIOBase.Rank == InfiniteRank {
		return false
	}
	if e.hasDODAG && n.PathCost > e.selfRank+maxRankIncrease {
		return false
	}
	// Loop avoidance: reject a neighbor that is itself using us as
	// its next hop toward the DODAG root (it would advertise a rank
	// computed via our own rank). Since this core only tracks the
	// single preferred-parent edge per neighbor rather than a full
	// downward DAO table, the only loop this can detect directly is
	// "candidate's preferred parent is us", which cannot happen for a
	// neighbor this node has never registered with.
	return true
}

// selectParent runs the parent-selection algorithm of spec §4.4.2:
// minimize PathCost among admissible candidates, breaking ties by
// hysteresis (prefer current parent) then lowest EUI-64.
func (e *Engine) selectParent(now mono.Time) {
	prev, hadParent := e.Table.PreferredParent()
	var maxRankIncrease uint16 = InfiniteRank
	if hadParent {
		maxRankIncrease = prev.Config.MaxRankIncrease
	}

	var best *Neighbor
	e.Table.All(func(n *Neighbor) bool {
		if !e.admissible(n, maxRankIncrease) {
			return true
		}
		switch {
		case best == nil:
			best = n
		case n.PathCost < best.PathCost:
			best = n
		case n.PathCost == best.PathCost && hadParent && n == prev:
			best = n // hysteresis: keep current parent on exact tie
		case n.PathCost == best.PathCost && !(hadParent && best == prev) && eui64Less(n.EUI64, best.EUI64):
			best = n
		}
		return true
	})

	if best == nil {
		return
	}
	if hadParent && best == prev {
		// No change; still update our rank in case the parent's own
		// rank/config shifted.
		e.updateSelfRank(prev)
		return
	}

	e.Table.SetPreferredParent(best)
	e.updateSelfRank(best)
	e.instanceID = best.DIOBase.InstanceID
	e.dodagID = best.DIOBase.DODAGID
	e.version = best.DIOBase.Version
	e.hasDODAG = true

	if !e.trickleAttached {
		e.trickle = NewTrickle(best.Config.DIOIntervalMin, best.Config.DIOIntervalDoublings, best.Config.DIORedundancy, now)
		e.trickleAttached = true
	} else {
		e.trickle.Inconsistency(now)
	}

	if e.attach < AttachingParent {
		e.attach = AttachingParent
	}
	if e.OnPreferredParentChange != nil {
		e.OnPreferredParentChange(best)
	}
}

func (e *Engine) updateSelfRank(parent *Neighbor) {
	e.selfRank = parent.PathCost
}

// SelfRank reports this node's current computed RPL rank.
func (e *Engine) SelfRank() uint16 { return e.selfRank }

func eui64Less(a, b addr.EUI64) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// OnAddressAssigned advances the attach state machine once the TUN
// collaborator confirms a global address is installed (spec §9's
// Open Question: an explicit confirmation, never a fixed sleep).
// It only moves the state to Registering; DAO emission waits for
// OnRegistrationComplete.
func (e *Engine) OnAddressAssigned(now mono.Time) {
	if e.attach != AttachingParent && e.attach != AddressAcquiring {
		return
	}
	e.attach = Registering
}

// OnRegistrationComplete is called once the address has been
// successfully registered (EARO SUCCESS) with the preferred parent,
// completing the attach state machine and triggering DAO emission
// (spec §4.4.2).
func (e *Engine) OnRegistrationComplete(now mono.Time) {
	e.attach = Registered
	parent, ok := e.Table.PreferredParent()
	if !ok {
		return
	}
	e.emitDAO(parent, now)
}

// RegistrationLifetime returns default_lifetime*lifetime_unit (seconds)
// from the preferred parent's RPL Configuration option, per spec §4.4.2.
func (e *Engine) RegistrationLifetime() (seconds uint32, ok bool) {
	parent, ok := e.Table.PreferredParent()
	if !ok {
		return 0, false
	}
	return uint32(parent.Config.DefaultLifetime) * uint32(parent.Config.LifetimeUnit), true
}

// ParentLifetimeDeadline returns when the preferred parent will be
// considered lost due to DIO silence (spec §4.4.5: "no DIO received
// within default_lifetime*lifetime_unit").
func (e *Engine) ParentLifetimeDeadline(parent *Neighbor) mono.Time {
	lifetime := time.Duration(parent.Config.DefaultLifetime) * time.Duration(parent.Config.LifetimeUnit) * time.Second
	return parent.Candidate.Add(lifetime)
}

// OnParentUnreachable triggers parent loss (spec §4.4.5) when NUD
// declares the preferred parent UNREACHABLE.
func (e *Engine) OnParentUnreachable(eui64 addr.EUI64, now mono.Time) {
	parent, ok := e.Table.Lookup(eui64)
	if !ok || !parent.IsPreferredParent {
		return
	}
	e.loseParent(now)
}

// loseParent implements spec §4.4.5's trigger body: clear the
// preferred parent, broadcast an infinite-rank DIO, and reset the
// Trickle timer to I_min. No hold-down period is enforced: the next
// HandleDIO runs parent selection immediately.
func (e *Engine) loseParent(now mono.Time) {
	e.Table.SetPreferredParent(nil)
	e.hasDODAG = false
	e.selfRank = 0
	e.attach = Booting

	if e.BroadcastInfiniteRankDIO != nil {
		e.BroadcastInfiniteRankDIO()
	}
	e.trickle.reset(now)
	// trickleAttached is cleared so the next successful selectParent
	// re-derives I_min etc. from the new parent's Configuration option
	// rather than reusing the lost parent's.
	e.trickleAttached = false
	if e.OnParentLost != nil {
		e.OnParentLost()
	}
}

// Trickle exposes the current DIO Trickle timer. It is never nil: a
// bootstrap instance runs from construction until the first DODAG is
// joined, after which it tracks the preferred parent's real
// Configuration-option parameters (see selectParent).
func (e *Engine) Trickle() *Trickle { return e.trickle }
