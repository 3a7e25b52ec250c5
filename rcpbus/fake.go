package rcpbus

import (
	"context"
	"sync"
)

// Fake is an in-memory Bus implementation for tests: DataTX records
// every request it is given and immediately synthesizes a TxSuccess
// confirm, the way a loopback RCP would.
type Fake struct {
	mu   sync.Mutex
	sent []DataTXRequest
	ind  chan Indication

	// AutoConfirm, when true (the default), emits a TxSuccess
	// TxConfirm indication synchronously from DataTX. Tests that need
	// to control confirm timing/status set it false and call
	// InjectConfirm directly.
	AutoConfirm bool
}

// NewFake constructs a ready-to-use Fake bus.
func NewFake() *Fake {
	return &Fake{ind: make(chan Indication, 64), AutoConfirm: true}
}

func (f *Fake) DataTX(ctx context.Context, req DataTXRequest) error {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	f.mu.Unlock()
	if f.AutoConfirm {
		f.InjectConfirm(TxConfirm{Handle: req.Handle, Status: TxSuccess})
	}
	return nil
}

func (f *Fake) SetSecKey(ctx context.Context, index uint8, gak [16]byte, frameCounter uint32) error {
	return nil
}

func (f *Fake) SetRadio(ctx context.Context, cfg RadioConfig) error        { return nil }
func (f *Fake) SetFHSSUnicast(ctx context.Context, dwellMs uint8, chanMask []byte) error {
	return nil
}
func (f *Fake) SetFHSSAsync(ctx context.Context, dwellMs uint8, chanMask []byte) error {
	return nil
}
func (f *Fake) ReqRadioEnable(ctx context.Context) error { return nil }
func (f *Fake) ReqRadioReset(ctx context.Context) error  { return nil }

func (f *Fake) Indications() <-chan Indication { return f.ind }

// InjectRx delivers a synthetic rx_ind, as when a test feeds an
// inbound frame into the engine under test.
func (f *Fake) InjectRx(rx RxIndication) {
	f.ind <- Indication{Rx: &rx}
}

// InjectConfirm delivers a synthetic tx_cnf.
func (f *Fake) InjectConfirm(tx TxConfirm) {
	f.ind <- Indication{Tx: &tx}
}

// InjectReset delivers a synthetic reset_ind.
func (f *Fake) InjectReset(reset ResetIndication) {
	f.ind <- Indication{Reset: &reset}
}

// Sent returns every DataTXRequest recorded so far.
func (f *Fake) Sent() []DataTXRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]DataTXRequest, len(f.sent))
	copy(out, f.sent)
	return out
}
