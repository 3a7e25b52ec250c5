// Package mgmt defines the management surface's contract types (spec
// §6): read-only D-Bus property and signal shapes. No transport is
// implemented here or in cmd/wsrouterd; these are the types a D-Bus
// binding (e.g. github.com/godbus/dbus) would export and emit.
package mgmt

import "github.com/wisun-fan/wsrouterd/wsnet/addr"

// Properties are the read-only projections of the data model the
// core exposes over D-Bus (spec §6).
type Properties struct {
	// HwAddress is the interface's EUI-64 (D-Bus signature "ay", 8 bytes).
	HwAddress addr.EUI64
	// PanID is the Wi-SUN PAN identifier (D-Bus signature "q").
	PanID uint16
	// Gaks are the currently installed Group Authentication Keys
	// (D-Bus signature "aay"), index implied by position.
	Gaks [][16]byte
}

// Signals is the set of D-Bus signals the core emits. PrimaryParent
// fires on every preferred-parent change (spec §6), carrying the new
// parent's EUI-64, or the zero EUI64 if the parent was lost.
type Signals struct {
	PrimaryParent func(eui64 addr.EUI64)
}
