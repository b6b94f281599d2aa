// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"context"

	"github.com/juju/errors"
)

// Transport exchanges fixed size reports with a probe. Write sends one
// report, Read returns the next report received from the probe.
type Transport interface {
	Open() error
	Close() error
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error

	// PacketSize is the payload size of one report, without any report id.
	PacketSize() int
}

type TransportKind uint8

const (
	TransportAuto TransportKind = 0
	TransportHid  TransportKind = 1 // CMSIS-DAP v1
	TransportBulk TransportKind = 2 // CMSIS-DAP v2
)

func (k TransportKind) String() string {
	switch k {
	case TransportHid:
		return "hid"
	case TransportBulk:
		return "bulk"
	default:
		return "auto"
	}
}

func ParseTransportKind(name string) (TransportKind, error) {
	switch name {
	case "", "auto":
		return TransportAuto, nil
	case "hid", "v1":
		return TransportHid, nil
	case "bulk", "v2":
		return TransportBulk, nil
	default:
		return TransportAuto, errors.Errorf("unknown transport '%s'", name)
	}
}
