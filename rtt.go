// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// based on https://github.com/phryniszak/strtt

package godap

import (
	"bytes"
	"context"

	"github.com/juju/errors"
)

type RttDataCb func(int, []byte) error

const (
	DefaultRamStart = 0x20000000
)

// hold size of data structs to avoid working with sizeof (from unsafe package)
const (
	seggerRttBufferSize       = 24
	seggerRttControlBlockSize = 24

	seggerRttNameLength = 64
	seggerRttMaxBuffers = 32
)

var seggerRttId = []byte("SEGGER RTT")

// MemoryRange is a part of the target address space searched for the RTT
// control block.
type MemoryRange struct {
	Start uint32
	Size  uint32
}

// all data that belongs to a Segger RTT channel (up- or down stream)
type seggerRttChannel struct {
	name         uint32 // pointer to name
	buffer       uint32 // pointer to start of buffer
	sizeOfBuffer uint32
	wrOff        uint32
	rdOff        uint32
	flags        uint32

	channelName string
}

// RttSession reads and writes the Segger RTT channels of a target through
// the MEM-AP. Up channels come first, followed by the down channels.
type RttSession struct {
	dap *Dap

	address           uint32
	maxNumUpBuffers   uint32
	maxNumDownBuffers uint32
	channels          []*seggerRttChannel
}

// InitializeRtt searches the given ranges for the RTT control block.
func (d *Dap) InitializeRtt(ctx context.Context, ranges []MemoryRange) (*RttSession, error) {
	if !d.connected {
		return nil, ErrNotConnected
	}

	logger.Debug("Initializing Segger RTT...")

	for _, r := range ranges {
		logger.Infof("Searching for SeggerRTT control block in [0x%08x, 0x%08x]...", r.Start, r.Start+r.Size)

		ram, err := d.ReadBytes(ctx, r.Start, int(r.Size))

		if err != nil {
			return nil, errors.Annotatef(err, "could not read ram at 0x%08x", r.Start)
		}

		occ := bytes.Index(ram, seggerRttId)

		if occ == -1 || occ+seggerRttControlBlockSize > len(ram) {
			continue
		}

		session := &RttSession{
			dap:               d,
			address:           r.Start + uint32(occ),
			maxNumUpBuffers:   convertToUint32(ram[occ+16:]),
			maxNumDownBuffers: convertToUint32(ram[occ+20:]),
		}

		logger.Infof("Found RTT control block at address: 0x%08x", session.address)

		if session.maxNumUpBuffers == 0 || session.maxNumDownBuffers == 0 {
			return nil, errors.New("could not find up or downstream buffers in rtt block")
		}

		if session.maxNumUpBuffers+session.maxNumDownBuffers > seggerRttMaxBuffers {
			return nil, errors.Errorf("implausible rtt buffer count %d/%d", session.maxNumUpBuffers, session.maxNumDownBuffers)
		}

		logger.Debugf("MaxNumUpBuffers: %d, MaxNumDownBuffers: %d", session.maxNumUpBuffers, session.maxNumDownBuffers)

		session.channels = make([]*seggerRttChannel, session.maxNumUpBuffers+session.maxNumDownBuffers)
		return session, nil
	}

	return nil, errors.New("could not find SEGGER RTT control block id")
}

func (s *RttSession) Address() uint32 {
	return s.address
}

func (s *RttSession) UpChannels() int {
	return int(s.maxNumUpBuffers)
}

func (s *RttSession) DownChannels() int {
	return int(s.maxNumDownBuffers)
}

// ChannelName is only known after UpdateRttChannels with names.
func (s *RttSession) ChannelName(idx int) string {
	if idx < 0 || idx >= len(s.channels) || s.channels[idx] == nil {
		return ""
	}

	return s.channels[idx].channelName
}

func (s *RttSession) channelAddress(idx int) uint32 {
	return s.address + seggerRttControlBlockSize + uint32(idx)*seggerRttBufferSize
}

// UpdateRttChannels reloads the buffer descriptors from the target.
func (s *RttSession) UpdateRttChannels(ctx context.Context, readChannelNames bool) error {
	size := len(s.channels) * seggerRttBufferSize
	ramBytes, err := s.dap.ReadBytes(ctx, s.channelAddress(0), size)

	if err != nil {
		return errors.Annotate(err, "could not read rtt buffer descriptors")
	}

	for i := range s.channels {
		descriptor := ramBytes[i*seggerRttBufferSize:]

		rttBuffer := &seggerRttChannel{
			name:         convertToUint32(descriptor[0:]),
			buffer:       convertToUint32(descriptor[4:]),
			sizeOfBuffer: convertToUint32(descriptor[8:]),
			wrOff:        convertToUint32(descriptor[12:]),
			rdOff:        convertToUint32(descriptor[16:]),
			flags:        convertToUint32(descriptor[20:]),
		}

		if old := s.channels[i]; old != nil {
			rttBuffer.channelName = old.channelName
		}

		if rttBuffer.name != 0 && readChannelNames {
			nameBytes, err := s.dap.ReadBytes(ctx, rttBuffer.name, seggerRttNameLength)

			if err == nil {
				if end := bytes.IndexByte(nameBytes, 0); end >= 0 {
					nameBytes = nameBytes[:end]
				}

				rttBuffer.channelName = string(nameBytes)
			}

			logger.Debugf("%d. Channel Name: %s, \tsize: %d, flags: %d, pBuffer 0x%08x, rdOff: %d, wrOff: %d", i,
				rttBuffer.channelName, rttBuffer.sizeOfBuffer, rttBuffer.flags, rttBuffer.buffer, rttBuffer.rdOff, rttBuffer.wrOff)
		}

		s.channels[i] = rttBuffer
	}

	return nil
}

// ReadRttChannels drains every up channel holding data and passes it to
// callback. The read offset on the target is advanced afterwards.
func (s *RttSession) ReadRttChannels(ctx context.Context, callback RttDataCb) error {
	if s.maxNumUpBuffers == 0 {
		return errors.New("no channels for reading configured on target")
	}

	for i := 0; i < int(s.maxNumUpBuffers); i++ {
		channel := s.channels[i]

		if channel == nil || channel.sizeOfBuffer == 0 || channel.rdOff == channel.wrOff {
			continue
		}

		data, err := s.readDataFromRttChannelBuffer(ctx, i)

		if err != nil {
			return err
		}

		if len(data) > 0 && callback != nil {
			if err := callback(i, data); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *RttSession) readDataFromRttChannelBuffer(ctx context.Context, idx int) ([]byte, error) {
	channel := s.channels[idx]

	if channel.rdOff >= channel.sizeOfBuffer || channel.wrOff >= channel.sizeOfBuffer {
		return nil, errors.Errorf("rtt channel %d offsets out of range (rd %d, wr %d, size %d)",
			idx, channel.rdOff, channel.wrOff, channel.sizeOfBuffer)
	}

	var data []byte

	if channel.wrOff > channel.rdOff {
		chunk, err := s.dap.ReadBytes(ctx, channel.buffer+channel.rdOff, int(channel.wrOff-channel.rdOff))

		if err != nil {
			return nil, err
		}

		data = chunk
	} else {
		// data wraps around the end of the ring buffer
		tail, err := s.dap.ReadBytes(ctx, channel.buffer+channel.rdOff, int(channel.sizeOfBuffer-channel.rdOff))

		if err != nil {
			return nil, err
		}

		head, err := s.dap.ReadBytes(ctx, channel.buffer, int(channel.wrOff))

		if err != nil {
			return nil, err
		}

		data = append(tail, head...)
	}

	// 16 bytes into the descriptor is rdOff
	if err := s.dap.WriteMem32(ctx, s.channelAddress(idx)+16, channel.wrOff); err != nil {
		return nil, errors.Annotate(err, "could not update rtt read offset")
	}

	channel.rdOff = channel.wrOff
	return data, nil
}

// WriteRttChannel puts data into down channel idx (counted from zero) as
// far as there is room and returns the number of bytes written.
func (s *RttSession) WriteRttChannel(ctx context.Context, idx int, data []byte) (int, error) {
	if idx < 0 || idx >= int(s.maxNumDownBuffers) {
		return 0, errors.Errorf("no rtt down channel %d", idx)
	}

	channelIdx := int(s.maxNumUpBuffers) + idx

	// the target moves rdOff, reload it first
	if err := s.UpdateRttChannels(ctx, false); err != nil {
		return 0, err
	}

	channel := s.channels[channelIdx]

	if channel.sizeOfBuffer == 0 {
		return 0, errors.Errorf("rtt down channel %d has no buffer", idx)
	}

	// one slot stays empty to tell a full buffer from an empty one
	free := int(channel.rdOff) - int(channel.wrOff) - 1

	if free < 0 {
		free += int(channel.sizeOfBuffer)
	}

	if len(data) > free {
		data = data[:free]
	}

	wrOff := channel.wrOff

	for len(data) > 0 {
		n := int(channel.sizeOfBuffer - wrOff)

		if n > len(data) {
			n = len(data)
		}

		if err := s.dap.WriteBytes(ctx, channel.buffer+wrOff, data[:n]); err != nil {
			return 0, err
		}

		wrOff = (wrOff + uint32(n)) % channel.sizeOfBuffer
		data = data[n:]
	}

	written := int((wrOff + channel.sizeOfBuffer - channel.wrOff) % channel.sizeOfBuffer)

	if written == 0 {
		return 0, nil
	}

	// 12 bytes into the descriptor is wrOff
	if err := s.dap.WriteMem32(ctx, s.channelAddress(channelIdx)+12, wrOff); err != nil {
		return 0, errors.Annotate(err, "could not update rtt write offset")
	}

	channel.wrOff = wrOff
	return written, nil
}
