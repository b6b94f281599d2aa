// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"context"
)

// ReadRepeat reads reg count times in one DAP_Transfer and returns the
// words in the order the probe sampled them. The bank of an AP register
// must already be selected.
func (d *Dap) ReadRepeat(ctx context.Context, reg Register, count int) ([]uint32, error) {
	if count > maxTransferOperations {
		return nil, ErrTooManyOperations
	}

	if count <= 0 {
		return nil, nil
	}

	ops := make([]transferOperation, count)

	for i := range ops {
		ops[i] = transferOperation{reg: reg}
	}

	response, err := d.exchangeTransfer(ctx, ops)

	if err != nil {
		return nil, err
	}

	if err := response.validate(count, true); err != nil {
		return nil, err
	}

	return response.words(count)
}

// WriteRepeat writes all values to reg in one DAP_Transfer, in order.
// Only the status is checked, the executed count of a write batch is not.
func (d *Dap) WriteRepeat(ctx context.Context, reg Register, values []uint32) error {
	if len(values) > maxTransferOperations {
		return ErrTooManyOperations
	}

	if len(values) == 0 {
		return nil
	}

	ops := make([]transferOperation, len(values))

	for i, value := range values {
		ops[i] = transferOperation{reg: reg, write: true, value: value}
	}

	response, err := d.exchangeTransfer(ctx, ops)

	if err != nil {
		return err
	}

	return response.validate(len(values), false)
}

// MaxReadRepeat is the largest count ReadRepeat accepts with the current
// packet size.
func (d *Dap) MaxReadRepeat() int {
	return clampOperations((d.channel.packetSize - transferHeaderSize) / 4)
}

// MaxWriteRepeat is the largest batch WriteRepeat can fit into one packet:
// every write carries a request byte and four value bytes.
func (d *Dap) MaxWriteRepeat() int {
	return clampOperations((d.channel.maxArgs() - 2) / 5)
}

func clampOperations(n int) int {
	if n > maxTransferOperations {
		return maxTransferOperations
	}

	if n < 1 {
		return 1
	}

	return n
}
