package neighbor

import (
	"math/rand/v2"
	"net/netip"
	"time"

	"golang.org/x/time/rate"

	"github.com/wisun-fan/wsrouterd/tstime/mono"
	"github.com/wisun-fan/wsrouterd/types/logger"
	"github.com/wisun-fan/wsrouterd/wserr"
	"github.com/wisun-fan/wsrouterd/wsnet/addr"
)

// delayFirstProbeTime is RFC 4861 §10's DELAY_FIRST_PROBE_TIME, how
// long an entry stays in DELAY before Tick moves it to PROBE.
const delayFirstProbeTime = 5 * time.Second

// Cache is the neighbor cache: an IPv6-address-keyed table of
// Entries, insertion-ordered so NeighborTableFull eviction (spec §7)
// can find the oldest STALE/UNREACHABLE entry in a single scan.
type Cache struct {
	logf logger.Logf

	byAddr map[netip.Addr]*Entry
	order  []netip.Addr // insertion order, for eviction scans

	maxEntries int

	baseReachableMs int64
	reachableMs     int64
	lastReroll      mono.Time

	retransTimerMs    int64
	maxMulticastSolicit int

	// ICMPTokens is the token bucket RFC 4443 §2.4(f) requires for
	// outbound ICMPv6 error replies: capacity 10, refill 10/s,
	// constructed the same way tailscale.com/wgengine/filter builds
	// its accept/drop logging buckets on golang.org/x/time/rate.
	ICMPTokens *rate.Limiter
}

// NewCache builds an empty cache. baseReachableMs is the initial base
// for the reachable-time reroll (spec §4.2); maxEntries bounds table
// size before NeighborTableFull eviction kicks in.
func NewCache(logf logger.Logf, baseReachableMs int64, maxEntries int) *Cache {
	if logf == nil {
		logf = logger.Discard
	}
	c := &Cache{
		logf:                logf,
		byAddr:              make(map[netip.Addr]*Entry),
		maxEntries:          maxEntries,
		baseReachableMs:     baseReachableMs,
		retransTimerMs:      1000,
		maxMulticastSolicit: 3,
		ICMPTokens:          rate.NewLimiter(rate.Limit(10), 10),
	}
	c.rerollReachableTime(mono.Now())
	return c
}

// Each calls fn for every entry in insertion order, for package
// store's snapshot support.
func (c *Cache) Each(fn func(*Entry)) {
	for _, a := range c.order {
		if e, ok := c.byAddr[a]; ok {
			fn(e)
		}
	}
}

// Restore inserts e as-is (bypassing eviction), for package store's
// snapshot-load support: a loaded snapshot should never itself be
// rejected for being "full" when the live table is still empty.
func (c *Cache) Restore(e *Entry) {
	if _, ok := c.byAddr[e.Addr]; ok {
		return
	}
	c.byAddr[e.Addr] = e
	c.order = append(c.order, e.Addr)
}

// Lookup returns the entry for addr, if any.
func (c *Cache) Lookup(a netip.Addr) (*Entry, bool) {
	e, ok := c.byAddr[a]
	return e, ok
}

// Len reports the number of entries.
func (c *Cache) Len() int { return len(c.byAddr) }

// insert adds a brand-new entry, evicting the oldest STALE/UNREACHABLE
// entry first if the table is full (spec §7 NeighborTableFull: "drop
// oldest STALE/UNREACHABLE entry, retry once").
func (c *Cache) insert(e *Entry) error {
	if c.maxEntries > 0 && len(c.byAddr) >= c.maxEntries {
		if !c.evictOldestStaleOrUnreachable() {
			return wserr.ErrNeighborTableFull
		}
	}
	c.byAddr[e.Addr] = e
	c.order = append(c.order, e.Addr)
	return nil
}

func (c *Cache) evictOldestStaleOrUnreachable() bool {
	for i, a := range c.order {
		e, ok := c.byAddr[a]
		if !ok {
			continue
		}
		if e.State == Stale || e.State == Unreachable {
			delete(c.byAddr, a)
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			return true
		}
	}
	return false
}

// EnsureIncomplete returns the existing entry for a, or creates a new
// INCOMPLETE one (spec §4.2: "sending an NS creates an INCOMPLETE
// entry if none exists"). The bool reports whether an entry was
// freshly created.
func (c *Cache) EnsureIncomplete(a netip.Addr) (*Entry, bool, error) {
	if e, ok := c.byAddr[a]; ok {
		return e, false, nil
	}
	e := &Entry{Addr: a, State: Incomplete}
	if err := c.insert(e); err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// Register creates or updates the entry for a as a registered address
// (spec §4.3.3's EARO REGISTER path): the registering node's
// link-layer address and requested lifetime are recorded, and the
// entry is marked reachable.
func (c *Cache) Register(a netip.Addr, ll addr.EUI64, lifetimeSeconds uint16) (*Entry, error) {
	e, ok := c.byAddr[a]
	if !ok {
		e = &Entry{Addr: a, State: Incomplete}
		if err := c.insert(e); err != nil {
			return nil, err
		}
	}
	e.LLAddr = ll
	e.HaveLL = true
	e.RegistrationLifetime = lifetimeSeconds
	e.RegistrationOwner = false
	c.setReachable(e)
	return e, nil
}

// Remove deletes the entry for addr, if present.
func (c *Cache) Remove(a netip.Addr) {
	if _, ok := c.byAddr[a]; !ok {
		return
	}
	delete(c.byAddr, a)
	for i, cand := range c.order {
		if cand == a {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
}

// UpdateUnsolicited implements RFC 4861 §7.2.3: processing of a
// link-layer address learned from a source other than a solicited NA
// (e.g. an SLLAO on an NS or RS). Creates a STALE entry if absent; if
// present with a differing link-layer address, marks it STALE.
func (c *Cache) UpdateUnsolicited(a netip.Addr, ll addr.EUI64) error {
	e, ok := c.byAddr[a]
	if !ok {
		e = &Entry{Addr: a, LLAddr: ll, HaveLL: true, State: Stale}
		return c.insert(e)
	}
	if e.HaveLL && e.LLAddr != ll {
		e.LLAddr = ll
		e.State = Stale
	} else if !e.HaveLL {
		e.LLAddr = ll
		e.HaveLL = true
	}
	return nil
}

// NAFlags mirrors icmp6.NAFlags without importing that package, to
// keep neighbor free of the wire-format dependency; icmpengine
// translates between the two.
type NAFlags struct {
	Router    bool
	Solicited bool
	Override  bool
}

// UpdateFromNA implements RFC 4861 §7.2.5's neighbor cache update
// rules upon receipt of a Neighbor Advertisement, exactly as spec
// §4.2 enumerates them.
func (c *Cache) UpdateFromNA(e *Entry, flags NAFlags, ll addr.EUI64, llKnown bool) {
	if e.State == Incomplete {
		if llKnown {
			e.LLAddr = ll
			e.HaveLL = true
		}
		if flags.Solicited && llKnown {
			c.setReachable(e)
		} else {
			e.State = Stale
		}
		e.IsRouter = flags.Router
		return
	}

	// Not INCOMPLETE: RFC 4861 §7.2.5's table, collapsed to the three
	// rules spec §4.2 states.
	diffLL := llKnown && e.HaveLL && e.LLAddr != ll
	if diffLL && !flags.Override {
		// Differing link-layer address reported without O: keep the
		// old address, no reachability change (RFC 4861 §7.2.5 case
		// where S may be set but the conflicting address is ignored).
		e.IsRouter = flags.Router
		return
	}
	if llKnown && (flags.Override || !e.HaveLL) {
		e.LLAddr = ll
		e.HaveLL = true
	}

	switch {
	case flags.Solicited:
		c.setReachable(e)
	case diffLL:
		e.State = Stale
	}
	e.IsRouter = flags.Router
}

func (c *Cache) setReachable(e *Entry) {
	e.State = Reachable
	e.ReachableUntil = mono.Now().Add(time.Duration(c.reachableMs) * time.Millisecond)
	e.probeCount = 0
}

// MarkDelay transitions a STALE entry to DELAY when traffic is sent
// to it, per RFC 4861 §7.3.3: Tick will advance it to PROBE after 5s
// if no upper-layer reachability confirmation arrives first.
func (c *Cache) MarkDelay(e *Entry) {
	if e.State != Stale {
		return
	}
	e.State = Delay
	e.ReachableUntil = mono.Now().Add(delayFirstProbeTime)
}

// Tick drives the per-entry reachability state machine (spec §4.2):
// REACHABLE → STALE on timeout; DELAY → PROBE after 5s; PROBE expires
// after maxMulticastSolicit*retransTimer. It also rerolls
// reachableMs every 600s. now is the current monotonic time.
func (c *Cache) Tick(now mono.Time) {
	if now.Sub(c.lastReroll) >= 600*time.Second {
		c.rerollReachableTime(now)
	}
	probeExpiry := time.Duration(c.maxMulticastSolicit) * time.Duration(c.retransTimerMs) * time.Millisecond
	for _, a := range c.order {
		e, ok := c.byAddr[a]
		if !ok {
			continue
		}
		switch e.State {
		case Reachable:
			if now.After(e.ReachableUntil) {
				e.State = Stale
			}
		case Delay:
			if now.After(e.ReachableUntil) {
				e.State = Probe
				e.ReachableUntil = now.Add(probeExpiry)
			}
		case Probe:
			if now.After(e.ReachableUntil) {
				e.State = Unreachable
			}
		}
	}
}

// SetBaseReachableTime updates the base used for the next reroll and
// rerolls immediately (spec §4.2: "re-rolled ... every 600s or on
// base change").
func (c *Cache) SetBaseReachableTime(baseMs int64, now mono.Time) {
	c.baseReachableMs = baseMs
	c.rerollReachableTime(now)
}

func (c *Cache) rerollReachableTime(now mono.Time) {
	lo := c.baseReachableMs / 2
	hi := c.baseReachableMs * 3 / 2
	c.reachableMs = lo + rand.Int64N(hi-lo+1)
	c.lastReroll = now
}

// ReachableMs returns the current reachable-time value, for tests
// verifying the §8 "Reachable-time range" property.
func (c *Cache) ReachableMs() int64 { return c.reachableMs }
