// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"context"
	"fmt"
)

// DpRegister is the byte offset of a debug port register.
type DpRegister uint8

const (
	DpIdCode   DpRegister = 0x00 // read
	DpAbort    DpRegister = 0x00 // write
	DpCtrlStat DpRegister = 0x04
	DpSelect   DpRegister = 0x08
	DpRdBuff   DpRegister = 0x0c
)

func (r DpRegister) String() string {
	switch r {
	case DpIdCode:
		return "IDCODE/ABORT"
	case DpCtrlStat:
		return "CTRL/STAT"
	case DpSelect:
		return "SELECT"
	case DpRdBuff:
		return "RDBUFF"
	}

	return fmt.Sprintf("DP 0x%x", uint8(r))
}

// ApRegister addresses an access port register: bits 31-24 select the
// access port, bits 7-4 the register bank and bits 3-2 the register
// inside the bank.
type ApRegister uint32

const (
	ApCsw  ApRegister = 0x00
	ApTar  ApRegister = 0x04
	ApDrw  ApRegister = 0x0c
	ApBd0  ApRegister = 0x10
	ApBd1  ApRegister = 0x14
	ApBd2  ApRegister = 0x18
	ApBd3  ApRegister = 0x1c
	ApCfg  ApRegister = 0xf4
	ApBase ApRegister = 0xf8
	ApIdr  ApRegister = 0xfc
)

// OnAccessPort returns the same register on access port apSel.
func (r ApRegister) OnAccessPort(apSel uint8) ApRegister {
	return (r &^ selectApSel) | ApRegister(apSel)<<24
}

func (r ApRegister) ApSel() uint8 {
	return uint8(uint32(r) >> 24)
}

// bank is the SELECT value needed before accessing the register.
func (r ApRegister) bank() uint32 {
	return uint32(r) & (selectApSel | selectApBankSel)
}

func (r ApRegister) String() string {
	var name string

	switch r &^ selectApSel {
	case ApCsw:
		name = "CSW"
	case ApTar:
		name = "TAR"
	case ApDrw:
		name = "DRW"
	case ApBd0:
		name = "BD0"
	case ApBd1:
		name = "BD1"
	case ApBd2:
		name = "BD2"
	case ApBd3:
		name = "BD3"
	case ApCfg:
		name = "CFG"
	case ApBase:
		name = "BASE"
	case ApIdr:
		name = "IDR"
	default:
		name = fmt.Sprintf("0x%02x", uint8(r))
	}

	return fmt.Sprintf("AP%d %s", r.ApSel(), name)
}

// Register is the port and offset a single transfer request addresses,
// relative to the bank currently selected.
type Register struct {
	Ap     bool
	Offset uint8
}

func DpReg(r DpRegister) Register {
	return Register{Ap: false, Offset: uint8(r) & 0x0c}
}

func ApReg(r ApRegister) Register {
	return Register{Ap: true, Offset: uint8(r) & 0x0c}
}

func (r Register) request(write bool) byte {
	request := r.Offset & 0x0c

	if r.Ap {
		request |= requestAp
	} else {
		request |= requestDp
	}

	if write {
		request |= requestWrite
	} else {
		request |= requestRead
	}

	return request
}

func (r Register) String() string {
	if r.Ap {
		return fmt.Sprintf("AP 0x%x", r.Offset)
	}

	return fmt.Sprintf("DP 0x%x", r.Offset)
}

type transferOperation struct {
	reg   Register
	write bool
	value uint32
}

type transferResponse struct {
	executed int
	status   uint8
	payload  []byte
}

// encodeTransfer builds the DAP_Transfer arguments:
// [dap index, count, (request, [value le32])...]
func encodeTransfer(dapIndex uint8, ops []transferOperation) []byte {
	args := NewBuffer(2 + len(ops)*5)

	args.WriteByte(dapIndex)
	args.WriteByte(byte(len(ops)))

	for _, op := range ops {
		args.WriteByte(op.reg.request(op.write))

		if op.write {
			args.WriteUint32LE(op.value)
		}
	}

	return args.Bytes()
}

func parseTransferResponse(response []byte) (*transferResponse, error) {
	if len(response) < transferHeaderSize {
		return nil, newProtocolError("transfer response too short (%d bytes)", len(response))
	}

	if response[0] != cmdTransfer {
		return nil, newProtocolError("response to wrong command (want 0x%02x, got 0x%02x)", cmdTransfer, response[0])
	}

	return &transferResponse{
		executed: int(response[1]),
		status:   response[2],
		payload:  response[transferHeaderSize:],
	}, nil
}

// exchangeTransfer issues one DAP_Transfer and returns the parsed, not yet
// validated response.
func (d *Dap) exchangeTransfer(ctx context.Context, ops []transferOperation) (*transferResponse, error) {
	if len(ops) > maxTransferOperations {
		return nil, ErrTooManyOperations
	}

	response, err := d.channel.send(ctx, cmdTransfer, encodeTransfer(d.dapIndex, ops))

	if err != nil {
		return nil, err
	}

	return parseTransferResponse(response)
}

// validate checks status before count so that a WAIT, which leaves the
// failing operation uncounted, stays distinguishable from a short reply.
func (t *transferResponse) validate(requested int, checkCount bool) error {
	if err := checkTransferStatus(t.status, t.executed); err != nil {
		return err
	}

	if checkCount && t.executed != requested {
		return newProtocolError("count mismatch (want %d, got %d)", requested, t.executed)
	}

	return nil
}

// words returns count read results from the payload.
func (t *transferResponse) words(count int) ([]uint32, error) {
	if len(t.payload) < count*4 {
		return nil, newProtocolError("transfer response holds %d bytes, want %d", len(t.payload), count*4)
	}

	return bytesToWords(t.payload[:count*4]), nil
}

// regOp performs a single register read (value == nil) or write.
func (d *Dap) regOp(ctx context.Context, reg Register, value *uint32) (uint32, error) {
	op := transferOperation{reg: reg}

	if value != nil {
		op.write = true
		op.value = *value
	}

	response, err := d.exchangeTransfer(ctx, []transferOperation{op})

	if err != nil {
		return 0, err
	}

	if err := response.validate(1, true); err != nil {
		if IsProtocolError(err) {
			logger.Error("make sure the DAP connection has been initialised")
		}

		return 0, err
	}

	if op.write {
		return 0, nil
	}

	words, err := response.words(1)

	if err != nil {
		return 0, err
	}

	return words[0], nil
}

func (d *Dap) readReg(ctx context.Context, reg Register) (uint32, error) {
	return d.regOp(ctx, reg, nil)
}

func (d *Dap) writeReg(ctx context.Context, reg Register, value uint32) error {
	_, err := d.regOp(ctx, reg, &value)
	return err
}
