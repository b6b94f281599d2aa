// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"context"
	"time"

	"github.com/juju/errors"
)

// exec sends one command and checks that the probe answered that command.
func (d *Dap) exec(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	response, err := d.channel.send(ctx, cmd, args)

	if err != nil {
		return nil, err
	}

	if len(response) == 0 {
		return nil, newProtocolError("empty response to command 0x%02x", cmd)
	}

	if response[0] != cmd {
		return nil, newProtocolError("response to wrong command (want 0x%02x, got 0x%02x)", cmd, response[0])
	}

	return response, nil
}

// execCheckStatus is exec for commands answering with a DAP_OK status byte.
func (d *Dap) execCheckStatus(ctx context.Context, cmd byte, args []byte) error {
	response, err := d.exec(ctx, cmd, args)

	if err != nil {
		return err
	}

	if len(response) < 2 {
		return newProtocolError("response to command 0x%02x too short", cmd)
	}

	if response[1] != dapOk {
		return &FaultError{Code: response[1]}
	}

	return nil
}

// Connect establishes the link level connection: clock, port, transfer
// parameters and, for SWD, the JTAG-to-SWD switch.
func (d *Dap) Connect(ctx context.Context) error {
	if !d.packetSizeKnown {
		// probes may use smaller reports than the transport allows
		if size, err := d.infoUint16(ctx, infoPacketSize); err == nil {
			d.channel.setPacketSize(int(size))
		} else {
			logger.Debugf("could not query packet size: %v", err)
		}

		d.packetSizeKnown = true
	}

	if err := d.SetClock(ctx, d.config.ClockHz); err != nil {
		return errors.Trace(err)
	}

	response, err := d.exec(ctx, cmdConnect, []byte{byte(d.config.Mode)})

	if err != nil {
		return errors.Annotate(err, "connect command failed")
	}

	if len(response) < 2 || response[1] == 0 {
		return errors.Errorf("probe refused %s mode connect", d.config.Mode)
	}

	port := ConnectMode(response[1])
	logger.Debugf("connected in %s mode", port)

	if err := d.SetClock(ctx, d.config.ClockHz); err != nil {
		return errors.Trace(err)
	}

	if err := d.TransferConfigure(ctx, 0, defaultWaitRetry, 0); err != nil {
		return errors.Trace(err)
	}

	if port == ConnectModeSwd {
		if err := d.SwdConfigure(ctx, 0); err != nil {
			return errors.Trace(err)
		}

		if err := d.jtagToSwd(ctx); err != nil {
			return err
		}
	}

	d.connected = true
	return nil
}

func (d *Dap) Disconnect(ctx context.Context) error {
	d.connected = false
	d.invalidateCaches()

	return errors.Annotate(d.execCheckStatus(ctx, cmdDisconnect, nil), "disconnect failed")
}

// ClearAbort writes the DP ABORT register through DAP_WriteABORT, which
// works even while a transfer is stuck.
func (d *Dap) ClearAbort(ctx context.Context, mask uint32) error {
	args := NewBuffer(5)
	args.WriteByte(d.dapIndex)
	args.WriteUint32LE(mask)

	logger.Debugf("clear abort 0x%02x", mask)
	return errors.Annotate(d.execCheckStatus(ctx, cmdWriteAbort, args.Bytes()), "write abort failed")
}

func (d *Dap) SetClock(ctx context.Context, clockHz uint32) error {
	args := NewBuffer(4)
	args.WriteUint32LE(clockHz)

	return errors.Annotatef(d.execCheckStatus(ctx, cmdSwjClock, args.Bytes()), "failed to set clock to %d Hz", clockHz)
}

func (d *Dap) TransferConfigure(ctx context.Context, idleCycles uint8, waitRetry uint16, matchRetry uint16) error {
	args := NewBuffer(5)
	args.WriteByte(idleCycles)
	args.WriteUint16LE(waitRetry)
	args.WriteUint16LE(matchRetry)

	return errors.Annotate(d.execCheckStatus(ctx, cmdTransferConfigure, args.Bytes()), "transfer configure failed")
}

func (d *Dap) SwdConfigure(ctx context.Context, config uint8) error {
	return errors.Annotate(d.execCheckStatus(ctx, cmdSwdConfigure, []byte{config}), "swd configure failed")
}

// SwjSequence clocks out numBits bits of data on SWDIO/TMS, lsb first.
func (d *Dap) SwjSequence(ctx context.Context, numBits int, data []byte) error {
	if numBits < 1 || numBits > 256 {
		return errors.Errorf("sequence length must be between 1 and 256 (got %d)", numBits)
	}

	if len(data) < (numBits+7)/8 {
		return errors.Errorf("sequence of %d bits needs %d bytes (got %d)", numBits, (numBits+7)/8, len(data))
	}

	args := NewBuffer(1 + len(data))

	// 256 is encoded as 0
	args.WriteByte(byte(numBits))
	args.Write(data[:(numBits+7)/8])

	return d.execCheckStatus(ctx, cmdSwjSequence, args.Bytes())
}

func (d *Dap) ResetTarget(ctx context.Context) error {
	response, err := d.exec(ctx, cmdResetTarget, nil)

	if err != nil {
		return errors.Annotate(err, "reset target failed")
	}

	if len(response) < 2 || response[1] != dapOk {
		return errors.New("target reset not confirmed by probe")
	}

	return nil
}

type HostStatus uint8

const (
	HostStatusConnected HostStatus = 0x00
	HostStatusRunning   HostStatus = 0x01
)

// SetHostStatus drives the connect/running LEDs of the probe.
func (d *Dap) SetHostStatus(ctx context.Context, status HostStatus, on bool) error {
	var value byte

	if on {
		value = 1
	}

	return d.execCheckStatus(ctx, cmdHostStatus, []byte{byte(status), value})
}

// Delay asks the probe to wait, up to 65535 microseconds.
func (d *Dap) Delay(ctx context.Context, delay time.Duration) error {
	micros := delay.Microseconds()

	if micros < 0 || micros > 0xffff {
		return errors.Errorf("delay too large (%d us)", micros)
	}

	args := NewBuffer(2)
	args.WriteUint16LE(uint16(micros))

	return d.execCheckStatus(ctx, cmdDelay, args.Bytes())
}

// Vendor issues a vendor specific command and returns the whole response,
// command echo included.
func (d *Dap) Vendor(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if cmd < 0x80 || cmd > 0x9f {
		return nil, errors.Errorf("0x%02x is not a vendor command", cmd)
	}

	return d.channel.send(ctx, cmd, args)
}
