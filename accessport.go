// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"context"

	"github.com/juju/errors"
)

const maxAccessPorts = 256

// ScanAccessPorts reads the IDR of access ports 0..last and remembers the
// ones answering with a non-zero id. It stops at the first empty slot
// after a present one, the way access ports are numbered contiguously.
func (d *Dap) ScanAccessPorts(ctx context.Context, last uint8) (map[uint8]uint32, error) {
	if !d.connected {
		return nil, ErrNotConnected
	}

	found := make(map[uint8]uint32)

	for apSel := 0; apSel <= int(last); apSel++ {
		idr, err := d.ReadAp(ctx, ApIdr.OnAccessPort(uint8(apSel)))

		if err != nil {
			return found, errors.Annotatef(err, "failed to scan access port %d", apSel)
		}

		d.accessPorts.Set(apSel, idr != 0)

		if idr == 0 {
			if len(found) > 0 {
				break
			}

			continue
		}

		logger.Debugf("AP %d present, IDR 0x%08x", apSel, idr)
		found[uint8(apSel)] = idr
	}

	// leave SELECT on the default access port
	if err := d.WriteDp(ctx, DpSelect, 0); err != nil {
		return found, errors.Trace(err)
	}

	return found, nil
}

// AccessPortPresent reports whether the last scan found apSel.
func (d *Dap) AccessPortPresent(apSel uint8) bool {
	return d.accessPorts.Get(int(apSel))
}
