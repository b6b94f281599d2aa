// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"context"

	"github.com/juju/errors"
)

// ConnectMode selects the wire protocol used by DAP_Connect.
type ConnectMode uint8

const (
	ConnectModeDefault ConnectMode = 0
	ConnectModeSwd     ConnectMode = 1
	ConnectModeJtag    ConnectMode = 2
)

func (m ConnectMode) String() string {
	switch m {
	case ConnectModeSwd:
		return "SWD"
	case ConnectModeJtag:
		return "JTAG"
	default:
		return "default"
	}
}

// ParseConnectMode accepts the names used on the command line.
func ParseConnectMode(name string) (ConnectMode, error) {
	switch name {
	case "", "default", "DEFAULT":
		return ConnectModeDefault, nil
	case "swd", "SWD":
		return ConnectModeSwd, nil
	case "jtag", "JTAG":
		return ConnectModeJtag, nil
	default:
		return ConnectModeDefault, errors.Errorf("unknown connect mode '%s'", name)
	}
}

// sequences leaving JTAG and entering SWD: line reset, the 16 bit
// JTAG-to-SWD select value 0xe79e sent lsb first, line reset, idle cycles
var jtagToSwdSequence = []struct {
	bits int
	data []byte
}{
	{56, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
	{16, []byte{0x9e, 0xe7}},
	{56, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
	{8, []byte{0x00}},
}

func (d *Dap) jtagToSwd(ctx context.Context) error {
	for _, seq := range jtagToSwdSequence {
		if err := d.SwjSequence(ctx, seq.bits, seq.data); err != nil {
			return errors.Annotate(err, "jtag to swd switch failed")
		}
	}

	return nil
}
