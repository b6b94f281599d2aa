// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"context"
	"time"

	"github.com/boljen/go-bitmap"
	"github.com/google/gousb"
	"github.com/juju/errors"
)

const AllSupportedVIds = 0xFFFF
const AllSupportedPIds = 0xFFFF

// DapInterfaceConfig describes which probe to open and how to talk to it.
type DapInterfaceConfig struct {
	Vid     gousb.ID
	Pid     gousb.ID
	Serial  string
	Mode    ConnectMode
	ClockHz uint32
	Kind    TransportKind

	// PowerUpTimeout bounds the wait for the debug and system power-up
	// acknowledge during Init. Zero waits until the context is done.
	PowerUpTimeout time.Duration

	// bulk transport (CMSIS-DAP v2) interface and endpoint numbers, -1
	// takes them from the device descriptors
	Interface   int
	EndpointIn  int
	EndpointOut int
}

func NewDapConfig(vid gousb.ID, pid gousb.ID, mode ConnectMode,
	serial string, clockHz uint32) *DapInterfaceConfig {

	if clockHz == 0 {
		clockHz = defaultClockHz
	}

	config := &DapInterfaceConfig{
		Vid:            vid,
		Pid:            pid,
		Serial:         serial,
		Mode:           mode,
		ClockHz:        clockHz,
		Kind:           TransportAuto,
		PowerUpTimeout: defaultPowerUpTimeout,
		Interface:      usbAutoDetect,
		EndpointIn:     usbAutoDetect,
		EndpointOut:    usbAutoDetect,
	}

	return config
}

// Dap is the register access engine of one probe connection. It is not
// safe for concurrent use: the SELECT and CSW caches assume that every
// register write goes through this value, one after another.
type Dap struct {
	transport Transport
	channel   *commandChannel
	config    *DapInterfaceConfig

	dapIndex        uint8
	connected       bool
	packetSizeKnown bool
	idCode          uint32

	// nil means the value latched in the probe is unknown
	selectCache *uint32
	cswCache    *uint32

	accessPorts bitmap.Bitmap
}

// NewDap wraps an already opened transport.
func NewDap(transport Transport, config *DapInterfaceConfig) *Dap {
	if config == nil {
		config = NewDapConfig(AllSupportedVIds, AllSupportedPIds, ConnectModeDefault, "", defaultClockHz)
	}

	return &Dap{
		transport:   transport,
		channel:     newCommandChannel(transport),
		config:      config,
		accessPorts: bitmap.New(maxAccessPorts),
	}
}

func (d *Dap) IdCode() uint32 {
	return d.idCode
}

func (d *Dap) Connected() bool {
	return d.connected
}

// PacketSize is the report size currently used for commands.
func (d *Dap) PacketSize() int {
	return d.channel.packetSize
}

func (d *Dap) invalidateCaches() {
	d.selectCache = nil
	d.cswCache = nil
}

func (d *Dap) ReadDp(ctx context.Context, addr DpRegister) (uint32, error) {
	value, err := d.readReg(ctx, DpReg(addr))

	if err != nil {
		return 0, errors.Annotatef(err, "failed to read %s", addr)
	}

	logger.Debugf("%s == 0x%08x", addr, value)
	return value, nil
}

// WriteDp writes a debug port register. Writing SELECT with the value
// already latched is a no-op.
func (d *Dap) WriteDp(ctx context.Context, addr DpRegister, value uint32) error {
	if addr == DpSelect && d.selectCache != nil && *d.selectCache == value {
		return nil
	}

	logger.Debugf("%s = 0x%08x", addr, value)

	if err := d.writeReg(ctx, DpReg(addr), value); err != nil {
		return errors.Annotatef(err, "failed to write %s", addr)
	}

	if addr == DpSelect {
		d.selectCache = &value
	}

	return nil
}

func (d *Dap) selectBank(ctx context.Context, addr ApRegister) error {
	return d.WriteDp(ctx, DpSelect, addr.bank())
}

// ReadAp selects the bank of addr and reads it. Reads are never cached.
func (d *Dap) ReadAp(ctx context.Context, addr ApRegister) (uint32, error) {
	if err := d.selectBank(ctx, addr); err != nil {
		return 0, errors.Trace(err)
	}

	value, err := d.readReg(ctx, ApReg(addr))

	if err != nil {
		return 0, errors.Annotatef(err, "failed to read %s", addr)
	}

	logger.Debugf("%s == 0x%08x", addr, value)
	return value, nil
}

// WriteAp selects the bank of addr and writes it. Writing CSW with the
// value already latched is a no-op.
func (d *Dap) WriteAp(ctx context.Context, addr ApRegister, value uint32) error {
	if err := d.selectBank(ctx, addr); err != nil {
		return errors.Trace(err)
	}

	if addr == ApCsw && d.cswCache != nil && *d.cswCache == value {
		return nil
	}

	logger.Debugf("%s = 0x%08x", addr, value)

	if err := d.writeReg(ctx, ApReg(addr), value); err != nil {
		return errors.Annotatef(err, "failed to write %s", addr)
	}

	if addr == ApCsw {
		d.cswCache = &value
	}

	return nil
}

// Init connects the probe and powers up the debug domain of the target.
// The power-up acknowledge is awaited for at most PowerUpTimeout; on
// expiry a TimeoutError is returned and the power-up request stays set.
func (d *Dap) Init(ctx context.Context) error {
	if err := d.Connect(ctx); err != nil {
		return errors.Annotate(err, "could not connect to probe")
	}

	d.invalidateCaches()

	idCode, err := d.ReadDp(ctx, DpIdCode)

	if err != nil {
		return errors.Annotate(err, "could not read id code")
	}

	d.idCode = idCode
	logger.Infof("got id code: %08x", idCode)

	// clear sticky error
	if err := d.WriteDp(ctx, DpAbort, abortStkErrClr); err != nil {
		return errors.Trace(err)
	}

	if err := d.WriteDp(ctx, DpSelect, 0); err != nil {
		return errors.Trace(err)
	}

	if err := d.WriteDp(ctx, DpCtrlStat, ctrlPwrUpReq); err != nil {
		return errors.Trace(err)
	}

	if err := d.waitPowerUp(ctx); err != nil {
		return err
	}

	if err := d.WriteDp(ctx, DpCtrlStat, ctrlPwrUpReq|ctrlTrnNormal|ctrlMaskLane); err != nil {
		return errors.Trace(err)
	}

	if err := d.WriteDp(ctx, DpSelect, 0); err != nil {
		return errors.Trace(err)
	}

	if _, err := d.ReadAp(ctx, ApIdr); err != nil {
		return errors.Annotate(err, "could not read access port id")
	}

	logger.Debug("debug port powered up")
	return nil
}

func (d *Dap) waitPowerUp(ctx context.Context) error {
	var deadline time.Time

	if d.config.PowerUpTimeout > 0 {
		deadline = time.Now().Add(d.config.PowerUpTimeout)
	}

	for polls := 1; ; polls++ {
		status, err := d.ReadDp(ctx, DpCtrlStat)

		if err != nil {
			return errors.Annotate(err, "could not read power-up status")
		}

		if status&ctrlPwrUpAck == ctrlPwrUpAck {
			logger.Debugf("power-up acknowledged after %d polls", polls)
			return nil
		}

		if err := ctx.Err(); err != nil {
			return errors.Annotate(err, "waiting for power-up acknowledge")
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return &TimeoutError{Op: "debug power-up acknowledge"}
		}
	}
}

// Reconnect drops the link, waits for it to settle and runs Init again.
func (d *Dap) Reconnect(ctx context.Context) error {
	if err := d.Disconnect(ctx); err != nil {
		return errors.Trace(err)
	}

	if err := sleepContext(ctx, reconnectSettleDelay); err != nil {
		return errors.Trace(err)
	}

	return d.Init(ctx)
}

func (d *Dap) Close() error {
	logger.Debug("closing probe transport")

	if err := d.transport.Close(); err != nil {
		return &TransportError{Op: "close", Err: err}
	}

	return nil
}

func sleepContext(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
