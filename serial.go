// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"context"
	"time"

	"github.com/juju/errors"
)

// GetSerialBaudrate reads the baud rate of the virtual UART.
func (l *DapLink) GetSerialBaudrate(ctx context.Context) (uint32, error) {
	response, err := l.vendorCommand(ctx, vendorSerialReadSettings, nil)

	if err != nil {
		return 0, errors.Annotate(err, "could not read serial settings")
	}

	if len(response) < 5 {
		err = newProtocolError("serial settings response too short (%d bytes)", len(response))
		l.clearAbortAfter(ctx, err)
		return 0, err
	}

	return convertToUint32(response[1:]), nil
}

// SetSerialBaudrate sets the baud rate of the virtual UART, DefaultBaudrate
// if rate is zero.
func (l *DapLink) SetSerialBaudrate(ctx context.Context, rate uint32) error {
	if rate == 0 {
		rate = DefaultBaudrate
	}

	args := NewBuffer(4)
	args.WriteUint32LE(rate)

	_, err := l.vendorCommand(ctx, vendorSerialWriteSettings, args.Bytes())
	return errors.Annotatef(err, "could not set baud rate %d", rate)
}

// SerialWrite sends text to the target, one byte per character. Text
// longer than a packet goes out in several length prefixed commands, empty
// text as a single command of length zero.
func (l *DapLink) SerialWrite(ctx context.Context, text string) error {
	data := make([]byte, 0, len(text))

	for _, r := range text {
		data = append(data, byte(r))
	}

	return l.SerialWriteBytes(ctx, data)
}

// SerialWriteBytes is SerialWrite for raw bytes.
func (l *DapLink) SerialWriteBytes(ctx context.Context, data []byte) error {
	chunkSize := l.channel.packetSize - 2

	if chunkSize > maxPageSize {
		chunkSize = maxPageSize
	}

	// empty data still goes out as one zero length frame
	for first := true; first || len(data) > 0; first = false {
		n := len(data)

		if n > chunkSize {
			n = chunkSize
		}

		args := make([]byte, n+1)
		args[0] = byte(n)
		copy(args[1:], data[:n])

		if _, err := l.vendorCommand(ctx, vendorSerialWrite, args); err != nil {
			return errors.Annotate(err, "serial write failed")
		}

		data = data[n:]
	}

	return nil
}

// SerialRead fetches pending UART data. A nil result without error means
// the probe had nothing to deliver.
func (l *DapLink) SerialRead(ctx context.Context) ([]byte, error) {
	response, err := l.Vendor(ctx, vendorSerialRead, nil)

	if err != nil {
		l.clearAbortAfter(ctx, err)
		return nil, errors.Annotate(err, "serial read failed")
	}

	if len(response) == 0 {
		return nil, nil
	}

	// first byte echoes the command
	if response[0] != vendorSerialRead {
		return nil, nil
	}

	if len(response) < 2 || response[1] == 0 {
		return nil, nil
	}

	length := int(response[1])

	if len(response) < 2+length {
		length = len(response) - 2
	}

	data := make([]byte, length)
	copy(data, response[2:2+length])

	return data, nil
}

// SerialPolling reports whether StartSerialRead is looping.
func (l *DapLink) SerialPolling() bool {
	return l.serialPolling.Load()
}

// StartSerialRead polls the virtual UART every interval and hands data to
// the serial listeners. Without listeners the probe is left alone. With
// autoConnect an unconnected link is connected for the read and
// disconnected again afterwards.
//
// It blocks until StopSerialRead is seen at the start of an iteration,
// ctx is done, or a read fails. A read in flight is never interrupted.
func (l *DapLink) StartSerialRead(ctx context.Context, interval time.Duration, autoConnect bool) error {
	if interval <= 0 {
		interval = DefaultSerialDelay
	}

	l.serialPolling.Store(true)
	defer l.serialPolling.Store(false)

	logger.Debugf("serial polling started, interval %v", interval)

	for l.serialPolling.Load() {
		if l.serialListeners.Load() {
			if err := l.pollSerial(ctx, autoConnect); err != nil {
				return err
			}
		}

		if err := sleepContext(ctx, interval); err != nil {
			return err
		}
	}

	logger.Debug("serial polling stopped")
	return nil
}

func (l *DapLink) pollSerial(ctx context.Context, autoConnect bool) error {
	wasConnected := l.connected

	if !wasConnected && autoConnect {
		if err := l.Connect(ctx); err != nil {
			return errors.Annotate(err, "serial auto connect failed")
		}
	}

	data, err := l.SerialRead(ctx)

	if err != nil {
		if !wasConnected && autoConnect {
			if derr := l.Disconnect(ctx); derr != nil {
				logger.Warnf("could not disconnect after failed serial read: %v", derr)
			}
		}

		return err
	}

	if !wasConnected && autoConnect {
		if err := l.Disconnect(ctx); err != nil {
			return errors.Trace(err)
		}
	}

	if data != nil {
		l.serialData.emit(string(data))
	}

	return nil
}

// StopSerialRead ends polling at the next loop check.
func (l *DapLink) StopSerialRead() {
	l.serialPolling.Store(false)
}
