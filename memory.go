// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"context"

	"github.com/juju/errors"
)

type MemoryBlockSize int // access size for single memory reads and writes

const (
	Memory8BitBlock  MemoryBlockSize = 1
	Memory16BitBlock MemoryBlockSize = 2
	Memory32BitBlock MemoryBlockSize = 4
)

func (s MemoryBlockSize) csw() uint32 {
	switch s {
	case Memory8BitBlock:
		return cswValueBase | cswSize8
	case Memory16BitBlock:
		return cswValueBase | cswSize16
	default:
		return cswValueBase | cswSize32
	}
}

// byte lane shift of addr inside a 32 bit DRW transfer
func laneShift(addr uint32, size MemoryBlockSize) uint {
	return uint(addr&(4-uint32(size))) * 8
}

func (d *Dap) readMem(ctx context.Context, addr uint32, size MemoryBlockSize) (uint32, error) {
	if addr%uint32(size) != 0 {
		return 0, errors.Errorf("unaligned %d byte read at 0x%08x", size, addr)
	}

	var value uint32

	err := withWaitRetry(ctx, func() error {
		if err := d.WriteAp(ctx, ApCsw, size.csw()); err != nil {
			return err
		}

		if err := d.WriteAp(ctx, ApTar, addr); err != nil {
			return err
		}

		v, err := d.ReadAp(ctx, ApDrw)
		value = v
		return err
	})

	if err != nil {
		return 0, errors.Annotatef(err, "failed to read memory at 0x%08x", addr)
	}

	value >>= laneShift(addr, size)

	switch size {
	case Memory8BitBlock:
		value &= 0xff
	case Memory16BitBlock:
		value &= 0xffff
	}

	return value, nil
}

func (d *Dap) writeMem(ctx context.Context, addr uint32, size MemoryBlockSize, value uint32) error {
	if addr%uint32(size) != 0 {
		return errors.Errorf("unaligned %d byte write at 0x%08x", size, addr)
	}

	value <<= laneShift(addr, size)

	err := withWaitRetry(ctx, func() error {
		if err := d.WriteAp(ctx, ApCsw, size.csw()); err != nil {
			return err
		}

		if err := d.WriteAp(ctx, ApTar, addr); err != nil {
			return err
		}

		return d.WriteAp(ctx, ApDrw, value)
	})

	return errors.Annotatef(err, "failed to write memory at 0x%08x", addr)
}

func (d *Dap) ReadMem32(ctx context.Context, addr uint32) (uint32, error) {
	return d.readMem(ctx, addr, Memory32BitBlock)
}

func (d *Dap) ReadMem16(ctx context.Context, addr uint32) (uint16, error) {
	value, err := d.readMem(ctx, addr, Memory16BitBlock)
	return uint16(value), err
}

func (d *Dap) ReadMem8(ctx context.Context, addr uint32) (uint8, error) {
	value, err := d.readMem(ctx, addr, Memory8BitBlock)
	return uint8(value), err
}

func (d *Dap) WriteMem32(ctx context.Context, addr uint32, value uint32) error {
	return d.writeMem(ctx, addr, Memory32BitBlock, value)
}

func (d *Dap) WriteMem16(ctx context.Context, addr uint32, value uint16) error {
	return d.writeMem(ctx, addr, Memory16BitBlock, uint32(value))
}

func (d *Dap) WriteMem8(ctx context.Context, addr uint32, value uint8) error {
	return d.writeMem(ctx, addr, Memory8BitBlock, uint32(value))
}

// words left until the TAR auto-increment wraps
func wordsToBoundary(addr uint32) int {
	return int((tarAutoIncrementMax - addr&(tarAutoIncrementMax-1)) / 4)
}

// ReadBlock reads count words starting at the word aligned addr.
func (d *Dap) ReadBlock(ctx context.Context, addr uint32, count int) ([]uint32, error) {
	if addr%4 != 0 {
		return nil, errors.Errorf("addr must be word-aligned, got 0x%08x", addr)
	}

	result := make([]uint32, 0, count)

	for count > 0 {
		chunk := wordsToBoundary(addr)

		if chunk > count {
			chunk = count
		}

		var words []uint32

		err := withWaitRetry(ctx, func() error {
			var err error
			words, err = d.readSequence(ctx, addr, chunk)
			return err
		})

		if err != nil {
			return nil, errors.Annotatef(err, "failed to read %d words at 0x%08x", chunk, addr)
		}

		result = append(result, words...)
		addr += uint32(chunk * 4)
		count -= chunk
	}

	return result, nil
}

// readSequence reads words that do not cross an auto-increment boundary.
func (d *Dap) readSequence(ctx context.Context, addr uint32, count int) ([]uint32, error) {
	if err := d.WriteAp(ctx, ApCsw, Memory32BitBlock.csw()); err != nil {
		return nil, err
	}

	if err := d.WriteAp(ctx, ApTar, addr); err != nil {
		return nil, err
	}

	if err := d.selectBank(ctx, ApDrw); err != nil {
		return nil, err
	}

	words := make([]uint32, 0, count)
	batch := d.MaxReadRepeat()

	for len(words) < count {
		n := count - len(words)

		if n > batch {
			n = batch
		}

		values, err := d.ReadRepeat(ctx, ApReg(ApDrw), n)

		if err != nil {
			return nil, err
		}

		words = append(words, values...)
	}

	return words, nil
}

// WriteBlock writes words starting at the word aligned addr.
func (d *Dap) WriteBlock(ctx context.Context, addr uint32, values []uint32) error {
	if addr%4 != 0 {
		return errors.Errorf("addr must be word-aligned, got 0x%08x", addr)
	}

	for len(values) > 0 {
		chunk := wordsToBoundary(addr)

		if chunk > len(values) {
			chunk = len(values)
		}

		err := withWaitRetry(ctx, func() error {
			return d.writeSequence(ctx, addr, values[:chunk])
		})

		if err != nil {
			return errors.Annotatef(err, "failed to write %d words at 0x%08x", chunk, addr)
		}

		addr += uint32(chunk * 4)
		values = values[chunk:]
	}

	return nil
}

func (d *Dap) writeSequence(ctx context.Context, addr uint32, values []uint32) error {
	if err := d.WriteAp(ctx, ApCsw, Memory32BitBlock.csw()); err != nil {
		return err
	}

	if err := d.WriteAp(ctx, ApTar, addr); err != nil {
		return err
	}

	if err := d.selectBank(ctx, ApDrw); err != nil {
		return err
	}

	batch := d.MaxWriteRepeat()

	for len(values) > 0 {
		n := len(values)

		if n > batch {
			n = batch
		}

		if err := d.WriteRepeat(ctx, ApReg(ApDrw), values[:n]); err != nil {
			return err
		}

		values = values[n:]
	}

	return nil
}

// ReadBytes reads count bytes at any alignment.
func (d *Dap) ReadBytes(ctx context.Context, addr uint32, count int) ([]byte, error) {
	if count <= 0 {
		return []byte{}, nil
	}

	start := addr &^ 3
	end := (addr + uint32(count) + 3) &^ 3

	words, err := d.ReadBlock(ctx, start, int(end-start)/4)

	if err != nil {
		return nil, err
	}

	offset := addr - start
	return wordsToBytes(words)[offset : offset+uint32(count)], nil
}

// WriteBytes writes data at any alignment: unaligned head and tail bytes
// one by one, the aligned middle as word block.
func (d *Dap) WriteBytes(ctx context.Context, addr uint32, data []byte) error {
	for len(data) > 0 && addr%4 != 0 {
		if err := d.WriteMem8(ctx, addr, data[0]); err != nil {
			return err
		}

		addr++
		data = data[1:]
	}

	aligned := len(data) &^ 3

	if aligned > 0 {
		if err := d.WriteBlock(ctx, addr, bytesToWords(data[:aligned])); err != nil {
			return err
		}

		addr += uint32(aligned)
		data = data[aligned:]
	}

	for _, b := range data {
		if err := d.WriteMem8(ctx, addr, b); err != nil {
			return err
		}

		addr++
	}

	return nil
}
