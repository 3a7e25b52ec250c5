package rpl

import (
	"errors"

	"github.com/wisun-fan/wsrouterd/wsnet/addr"
	"github.com/wisun-fan/wsrouterd/wsnet/icmp6"
)

// ErrMalformedDIO is returned by DecodeDIO for a DIO message lacking a
// usable RPL Configuration option; such a DIO carries no ICMPv6 DIO
// interval/redundancy parameters for the engine to adopt and is
// dropped (spec §4.4.1's common validation, generalized from §4.3.1's
// ND rules to RPL Control Messages).
var ErrMalformedDIO = errors.New("rpl: DIO missing RPL Configuration option")

// DecodeDIO parses a raw DIO message body (the ICMPv6 payload
// following the 4-octet type/code/checksum header) into a DIO ready
// for HandleDIO. srcLL/srcEUI64/etx are supplied by the caller from
// the link layer, since the DIO message itself carries neither.
func DecodeDIO(body []byte, srcLL [16]byte, srcEUI64 addr.EUI64, etx float64) (DIO, error) {
	base, rest, err := icmp6.ParseDIOBase(body)
	if err != nil {
		return DIO{}, err
	}
	opts, err := icmp6.ParseOptions(rest)
	if err != nil {
		return DIO{}, err
	}
	var cfg icmp6.RPLConfig
	found := false
	for _, o := range opts {
		if o.Type == icmp6.OptRPLConfig {
			cfg, err = icmp6.ParseRPLConfig(o.Value)
			if err != nil {
				return DIO{}, err
			}
			found = true
			break
		}
	}
	if !found {
		return DIO{}, ErrMalformedDIO
	}
	return DIO{
		Base: DIOBase{
			InstanceID: base.InstanceID,
			DODAGID:    base.DODAGID,
			Version:    base.Version,
			Rank:       base.Rank,
			Grounded:   base.Grounded,
			MOP:        base.MOP,
			PRF:        base.PRF,
			DTSN:       base.DTSN,
		},
		Config:   cfg,
		SrcLL:    srcLL,
		SrcEUI64: srcEUI64,
		ETX:      etx,
	}, nil
}
