// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// fakeAccess is one register operation seen by the simulated probe.
type fakeAccess struct {
	ap    bool
	write bool
	addr  uint32 // DP offset, or full AP address including APSEL and bank
	value uint32
}

// fakeProbe simulates a DAPLink probe with one MEM-AP in front of a
// sparse target memory. It implements Transport.
type fakeProbe struct {
	mu sync.Mutex

	packetSize     int
	infoPacketSize uint16
	capabilities   byte

	pending  []byte
	requests [][]byte
	accesses []fakeAccess

	writeErr error
	readErr  error

	// next write of this command fails, zero disables
	failCommand byte

	// DP state
	idCode      uint32
	ctrlStat    uint32
	selectReg   uint32
	abortWrites []uint32
	ctrlReads   int

	// reads without acknowledge after a power-up request, -1 never acks
	powerUpPolls int

	refuseConnect bool

	// AP state
	apIdr  map[uint8]uint32
	apRegs map[uint32]uint32
	csw    uint32
	tar    uint32
	memory map[uint32]byte

	// one entry per DAP_Transfer, consumed in order
	statusQueue []uint8
	// executed count reported one too low for the next transfer
	shortCount bool

	// DAPLink vendor state
	clearAborts   []uint32
	flashPages    [][]byte
	flashFailPage int
	flashStatus   byte
	baudrate      uint32
	serialRx      []byte
	serialTx      [][]byte
	serialRaw     [][]byte
}

func newFakeProbe() *fakeProbe {
	return &fakeProbe{
		packetSize:     64,
		infoPacketSize: 64,
		capabilities:   0x01 | 0x80,
		idCode:         0x2ba01477,
		apIdr:          map[uint8]uint32{0: 0x24770011},
		apRegs:         make(map[uint32]uint32),
		memory:         make(map[uint32]byte),
		baudrate:       DefaultBaudrate,
	}
}

// newTestLink returns a link to a fresh fake probe with library logging
// reduced to warnings.
func newTestLink(t *testing.T) (*DapLink, *fakeProbe) {
	t.Helper()

	quiet := logrus.New()
	quiet.SetLevel(logrus.WarnLevel)
	SetLogger(quiet)

	fake := newFakeProbe()
	config := NewDapConfig(AllSupportedVIds, AllSupportedPIds, ConnectModeDefault, "", 0)
	config.PowerUpTimeout = 200 * time.Millisecond

	return NewDapLink(fake, config), fake
}

// initTestLink is newTestLink with Init done and the request log cleared.
func initTestLink(t *testing.T) (*DapLink, *fakeProbe) {
	t.Helper()

	link, fake := newTestLink(t)
	require.NoError(t, link.Init(context.Background()))

	fake.reset()
	return link, fake
}

func (f *fakeProbe) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = nil
	f.accesses = nil
}

func (f *fakeProbe) Open() error  { return nil }
func (f *fakeProbe) Close() error { return nil }

func (f *fakeProbe) PacketSize() int {
	return f.packetSize
}

func (f *fakeProbe) Write(ctx context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writeErr != nil {
		err := f.writeErr
		f.writeErr = nil
		return err
	}

	if f.failCommand != 0 && len(data) > 0 && data[0] == f.failCommand {
		f.failCommand = 0
		return errors.New("usb stall")
	}

	if len(data) == 0 || len(data) > f.packetSize {
		return fmt.Errorf("report of %d bytes, want at most %d", len(data), f.packetSize)
	}

	request := make([]byte, len(data))
	copy(request, data)
	f.requests = append(f.requests, request)

	response, err := f.handle(request)

	if err != nil {
		return err
	}

	f.pending = response
	return nil
}

func (f *fakeProbe) Read(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.readErr != nil {
		err := f.readErr
		f.readErr = nil
		return nil, err
	}

	if f.pending == nil {
		return nil, errors.New("no response pending")
	}

	response := f.pending
	f.pending = nil

	return response, nil
}

// commands returns the command byte of every request.
func (f *fakeProbe) commands() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	cmds := make([]byte, len(f.requests))

	for i, r := range f.requests {
		cmds[i] = r[0]
	}

	return cmds
}

func (f *fakeProbe) countCommand(cmd byte) int {
	n := 0

	for _, c := range f.commands() {
		if c == cmd {
			n++
		}
	}

	return n
}

func (f *fakeProbe) dpWrites(addr DpRegister) []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()

	var values []uint32

	for _, a := range f.accesses {
		if !a.ap && a.write && a.addr == uint32(addr) {
			values = append(values, a.value)
		}
	}

	return values
}

func (f *fakeProbe) apAccesses() []fakeAccess {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []fakeAccess

	for _, a := range f.accesses {
		if a.ap {
			result = append(result, a)
		}
	}

	return result
}

func (f *fakeProbe) setMemory(addr uint32, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, b := range data {
		f.memory[addr+uint32(i)] = b
	}
}

func (f *fakeProbe) getMemory(addr uint32, count int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	data := make([]byte, count)

	for i := range data {
		data[i] = f.memory[addr+uint32(i)]
	}

	return data
}

func (f *fakeProbe) pad(response ...byte) []byte {
	out := make([]byte, f.packetSize)
	copy(out, response)
	return out
}

func (f *fakeProbe) handle(request []byte) ([]byte, error) {
	cmd := request[0]

	switch cmd {
	case cmdInfo:
		return f.info(request[1]), nil

	case cmdConnect:
		if f.refuseConnect {
			return f.pad(cmdConnect, 0), nil
		}

		port := byte(ConnectModeSwd)

		if request[1] == byte(ConnectModeJtag) {
			port = byte(ConnectModeJtag)
		}

		return f.pad(cmdConnect, port), nil

	case cmdHostStatus, cmdDisconnect, cmdTransferConfigure, cmdDelay,
		cmdSwjClock, cmdSwjSequence, cmdSwdConfigure:
		return f.pad(cmd, dapOk), nil

	case cmdResetTarget:
		return f.pad(cmd, dapOk, 1), nil

	case cmdWriteAbort:
		f.clearAborts = append(f.clearAborts, convertToUint32(request[2:]))
		return f.pad(cmd, dapOk), nil

	case cmdTransfer:
		return f.transfer(request), nil

	case vendorSerialReadSettings:
		return f.pad(cmd, byte(f.baudrate), byte(f.baudrate>>8), byte(f.baudrate>>16), byte(f.baudrate>>24)), nil

	case vendorSerialWriteSettings:
		f.baudrate = convertToUint32(request[1:])
		return f.pad(cmd, dapOk), nil

	case vendorSerialRead:
		if len(f.serialRaw) > 0 {
			raw := f.serialRaw[0]
			f.serialRaw = f.serialRaw[1:]
			return raw, nil
		}

		n := len(f.serialRx)

		if n > f.packetSize-2 {
			n = f.packetSize - 2
		}

		response := append([]byte{cmd, byte(n)}, f.serialRx[:n]...)
		f.serialRx = f.serialRx[n:]

		return f.pad(response...), nil

	case vendorSerialWrite:
		n := int(request[1])
		chunk := make([]byte, n)
		copy(chunk, request[2:2+n])
		f.serialTx = append(f.serialTx, chunk)

		return f.pad(cmd, byte(n)), nil

	case vendorFlashOpen, vendorFlashClose:
		return f.pad(cmd, f.flashStatus), nil

	case vendorFlashReset:
		return f.pad(cmd, dapOk), nil

	case vendorFlashWrite:
		if f.flashFailPage == len(f.flashPages)+1 {
			return nil, errors.New("usb stall")
		}

		n := int(request[1])
		page := make([]byte, n)
		copy(page, request[2:2+n])
		f.flashPages = append(f.flashPages, page)

		return f.pad(cmd, dapOk), nil
	}

	return f.pad(dapError), nil
}

func (f *fakeProbe) info(id byte) []byte {
	str := func(s string) []byte {
		return f.pad(append([]byte{cmdInfo, byte(len(s) + 1)}, append([]byte(s), 0)...)...)
	}

	switch id {
	case infoVendor:
		return str("ARM")
	case infoProduct:
		return str("DAPLink CMSIS-DAP")
	case infoSerialNumber:
		return str("0240000034544e45")
	case infoFirmware:
		return str("0254")
	case infoCapabilities:
		return f.pad(cmdInfo, 1, f.capabilities)
	case infoPacketCount:
		return f.pad(cmdInfo, 1, 4)
	case infoPacketSize:
		return f.pad(cmdInfo, 2, byte(f.infoPacketSize), byte(f.infoPacketSize>>8))
	}

	return f.pad(cmdInfo, 0)
}

func (f *fakeProbe) transfer(request []byte) []byte {
	count := int(request[2])

	if len(f.statusQueue) > 0 {
		status := f.statusQueue[0]
		f.statusQueue = f.statusQueue[1:]

		if status != transferStatusOk {
			return f.pad(cmdTransfer, 0, status)
		}
	}

	response := []byte{cmdTransfer, 0, transferStatusOk}
	pos := 3

	for i := 0; i < count; i++ {
		req := request[pos]
		pos++

		ap := req&requestAp != 0
		read := req&requestRead != 0
		offset := uint32(req & 0x0c)

		var value uint32

		if !read {
			value = convertToUint32(request[pos:])
			pos += 4
		}

		if ap {
			addr := f.selectReg&(selectApSel|selectApBankSel) | offset

			if read {
				value = f.apRead(addr)
			} else {
				f.apWrite(addr, value)
			}

			f.accesses = append(f.accesses, fakeAccess{ap: true, write: !read, addr: addr, value: value})
		} else {
			if read {
				value = f.dpRead(offset)
			} else {
				f.dpWrite(offset, value)
			}

			f.accesses = append(f.accesses, fakeAccess{ap: false, write: !read, addr: offset, value: value})
		}

		if read {
			response = append(response, byte(value), byte(value>>8), byte(value>>16), byte(value>>24))
		}
	}

	response[1] = byte(count)

	if f.shortCount {
		f.shortCount = false
		response[1] = byte(count - 1)
	}

	return f.pad(response...)
}

func (f *fakeProbe) dpRead(offset uint32) uint32 {
	switch offset {
	case uint32(DpIdCode):
		return f.idCode

	case uint32(DpCtrlStat):
		if f.ctrlStat&ctrlPwrUpReq == ctrlPwrUpReq {
			f.ctrlReads++

			if f.powerUpPolls >= 0 && f.ctrlReads > f.powerUpPolls {
				return f.ctrlStat | ctrlPwrUpAck
			}
		}

		return f.ctrlStat &^ ctrlPwrUpAck

	case uint32(DpSelect):
		return f.selectReg
	}

	return 0
}

func (f *fakeProbe) dpWrite(offset uint32, value uint32) {
	switch offset {
	case uint32(DpAbort):
		f.abortWrites = append(f.abortWrites, value)
	case uint32(DpCtrlStat):
		f.ctrlStat = value
	case uint32(DpSelect):
		f.selectReg = value
	}
}

func (f *fakeProbe) apRead(addr uint32) uint32 {
	apSel := uint8(addr >> 24)
	reg := addr & 0xff

	switch {
	case reg == uint32(ApIdr):
		return f.apIdr[apSel]

	case apSel == 0 && reg == uint32(ApCsw):
		return f.csw

	case apSel == 0 && reg == uint32(ApTar):
		return f.tar

	case apSel == 0 && reg == uint32(ApDrw):
		base := f.tar &^ 3
		value := uint32(f.memory[base]) | uint32(f.memory[base+1])<<8 |
			uint32(f.memory[base+2])<<16 | uint32(f.memory[base+3])<<24

		f.increment()
		return value
	}

	return f.apRegs[addr]
}

func (f *fakeProbe) apWrite(addr uint32, value uint32) {
	apSel := uint8(addr >> 24)
	reg := addr & 0xff

	switch {
	case apSel == 0 && reg == uint32(ApCsw):
		f.csw = value

	case apSel == 0 && reg == uint32(ApTar):
		f.tar = value

	case apSel == 0 && reg == uint32(ApDrw):
		size := f.accessSize()
		lane := f.tar & (4 - size)

		for i := uint32(0); i < size; i++ {
			f.memory[f.tar&^3+lane+i] = byte(value >> ((lane + i) * 8))
		}

		f.increment()

	default:
		f.apRegs[addr] = value
	}
}

func (f *fakeProbe) accessSize() uint32 {
	switch f.csw & cswSize {
	case cswSize8:
		return 1
	case cswSize16:
		return 2
	}

	return 4
}

// increment advances TAR inside its 1 KiB auto-increment window.
func (f *fakeProbe) increment() {
	if f.csw&cswAddrInc != cswSAddrInc {
		return
	}

	window := uint32(tarAutoIncrementMax - 1)
	f.tar = f.tar&^window | (f.tar+f.accessSize())&window
}
