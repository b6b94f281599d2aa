// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"sync/atomic"
)

// ProgressFunc receives the fraction of a flash image written so far.
type ProgressFunc func(progress float64)

// SerialDataFunc receives text read from the virtual UART.
type SerialDataFunc func(data string)

// DapLink adds the DAPLink firmware vendor commands, drag-and-drop style
// flashing and the virtual serial port, to the register engine.
type DapLink struct {
	*Dap

	progress   observers[float64]
	serialData observers[string]

	serialPolling   atomic.Bool
	serialListeners atomic.Bool
}

func NewDapLink(transport Transport, config *DapInterfaceConfig) *DapLink {
	return &DapLink{
		Dap: NewDap(transport, config),
	}
}

// SubscribeProgress registers fn for flash progress and returns its id
// together with the number of progress listeners.
func (l *DapLink) SubscribeProgress(fn ProgressFunc) (ListenerId, int) {
	return l.progress.subscribe(fn)
}

func (l *DapLink) UnsubscribeProgress(id ListenerId) int {
	return l.progress.unsubscribe(id)
}

// SubscribeSerial registers fn for serial data. The first subscriber
// enables reading in the serial polling loop.
func (l *DapLink) SubscribeSerial(fn SerialDataFunc) (ListenerId, int) {
	id, count := l.serialData.subscribe(fn)

	if count == 1 {
		l.serialListeners.Store(true)
	}

	return id, count
}

// UnsubscribeSerial removes a serial listener. Without listeners the
// polling loop stops talking to the probe.
func (l *DapLink) UnsubscribeSerial(id ListenerId) int {
	count := l.serialData.unsubscribe(id)

	if count == 0 {
		l.serialListeners.Store(false)
	}

	return count
}
