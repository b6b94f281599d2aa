// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"context"
	"encoding/hex"
	"sync"
)

// commandChannel frames one command into a transport report and returns
// the raw response. One write and one read per call, nothing is retried.
type commandChannel struct {
	transport  Transport
	packetSize int

	// only one exchange may be in flight on a transport
	mu sync.Mutex
}

func newCommandChannel(transport Transport) *commandChannel {
	packetSize := transport.PacketSize()

	if packetSize <= 0 {
		packetSize = defaultPacketSize
	}

	return &commandChannel{
		transport:  transport,
		packetSize: packetSize,
	}
}

// maxArgs is the number of argument bytes that fit behind the command byte.
func (c *commandChannel) maxArgs() int {
	return c.packetSize - 1
}

func (c *commandChannel) setPacketSize(size int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if size > 0 && size < c.packetSize {
		logger.Debugf("limiting packet size to %d bytes", size)
		c.packetSize = size
	}
}

func (c *commandChannel) send(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if len(args) > c.maxArgs() {
		return nil, newProtocolError("packet too long (max %d, got %d)", c.packetSize, len(args)+1)
	}

	packet := make([]byte, c.packetSize)
	packet[0] = cmd
	copy(packet[1:], args)

	c.mu.Lock()
	defer c.mu.Unlock()

	logger.Tracef(" => %s", hex.EncodeToString(packet[:len(args)+1]))

	if err := c.transport.Write(ctx, packet); err != nil {
		return nil, &TransportError{Op: "write", Err: err}
	}

	response, err := c.transport.Read(ctx)

	if err != nil {
		return nil, &TransportError{Op: "read", Err: err}
	}

	logger.Tracef("<=  %s", hex.EncodeToString(response))

	return response, nil
}
