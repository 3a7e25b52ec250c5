// Package rcpbus defines the RCP bus contract (spec §6): the request
// primitives the core issues to the radio co-processor and the
// indications it receives back, modeled as a narrow interface plus an
// indication channel so package sched can multiplex it alongside the
// other collaborators without knowing its transport.
package rcpbus

import "context"

// TxStatus is the outcome of a data_tx request, reported via a
// matching TxConfirm indication.
type TxStatus int

const (
	TxSuccess TxStatus = iota
	TxNoAck
	TxChannelAccessFail
	TxTimedOut
)

// FHSSType selects the frequency-hopping mode for a DataTX request.
type FHSSType int

const (
	FHSSUnicast FHSSType = iota
	FHSSAsync
	FHSSNone
)

// DataTXRequest is the data_tx primitive of spec §6.
type DataTXRequest struct {
	Frame            []byte
	Handle           uint8
	FHSSType         FHSSType
	NeighborSchedule []byte
	FrameCounterHint uint32
	RateList         []uint8
	ModeSwitch       bool
}

// RadioConfig carries the set_radio primitive's parameters; its shape
// is RCP-firmware specific and kept opaque to this core.
type RadioConfig struct {
	ChannelPlan   uint8
	ChannelMask   []byte
	PhyModeID     uint8
}

// RxIndication is the rx_ind primitive: a received 802.15.4 frame.
type RxIndication struct {
	Frame       []byte
	LQI         uint8
	RSSI        int8
	TimestampUs uint64
}

// TxConfirm is the tx_cnf primitive, correlated to a DataTXRequest by Handle.
type TxConfirm struct {
	Handle      uint8
	Status      TxStatus
	Frame       []byte // echoed back only on some firmware revisions
	TimestampUs uint64
}

// ResetIndication is the reset_ind primitive announcing a (re)boot of
// the RCP, including the firmware/API versions spec §6 requires the
// core to check (api >= 2.0.0).
type ResetIndication struct {
	VersionFW  string
	VersionAPI string
	RFList     []uint8
}

// Indication is a tagged union of the three indication kinds above,
// used on the single Indications() channel so the scheduler need only
// multiplex one channel per collaborator (spec §4.5).
type Indication struct {
	Rx    *RxIndication
	Tx    *TxConfirm
	Reset *ResetIndication
}

// MinAPIVersion is the minimum RCP API version the core requires
// (spec §6: "The core requires api >= 2.0.0").
const MinAPIVersion = "2.0.0"

// Bus is the RCP bus contract (spec §6's "Request primitives
// consumed" / "Indications produced"). All methods must return
// promptly; blocking operations are modeled via ctx cancellation, not
// by the bus itself suspending the single dispatch loop.
type Bus interface {
	DataTX(ctx context.Context, req DataTXRequest) error
	SetSecKey(ctx context.Context, index uint8, gak [16]byte, frameCounter uint32) error
	SetRadio(ctx context.Context, cfg RadioConfig) error
	SetFHSSUnicast(ctx context.Context, dwellMs uint8, chanMask []byte) error
	SetFHSSAsync(ctx context.Context, dwellMs uint8, chanMask []byte) error
	ReqRadioEnable(ctx context.Context) error
	ReqRadioReset(ctx context.Context) error

	// Indications returns the channel the scheduler binds to
	// sched.SourceRCP; it is closed when the bus shuts down.
	Indications() <-chan Indication
}
