// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"bytes"
	"math"
)

// Buffer collects command arguments in wire order.
type Buffer struct {
	bytes.Buffer
}

func NewBuffer(initSize int) *Buffer {
	b := &Buffer{}

	b.Grow(initSize)

	return b
}

func (buf *Buffer) WriteUint32LE(value uint32) {
	buf.WriteByte(byte(value))
	buf.WriteByte(byte(value >> 8))
	buf.WriteByte(byte(value >> 16))
	buf.WriteByte(byte(value >> 24))
}

func (buf *Buffer) WriteUint16LE(value uint16) {
	buf.WriteByte(byte(value))
	buf.WriteByte(byte(value >> 8))
}

func convertToUint16(buf []byte) uint16 {
	if len(buf) > 1 {
		return uint16(buf[0]) | (uint16(buf[1]) << 8)
	} else {
		logger.Error("could not read uint16 from given buffer")
		return math.MaxUint16
	}
}

func convertToUint32(buf []byte) uint32 {
	if len(buf) > 3 {
		return uint32(buf[0]) | (uint32(buf[1]) << 8) | (uint32(buf[2]) << 16) | (uint32(buf[3]) << 24)
	} else {
		logger.Error("could not read uint32 from given buffer")
		return math.MaxUint32
	}
}

func uint32ToLittleEndian(buffer []byte, value uint32) {
	buffer[3] = byte(value >> 24)
	buffer[2] = byte(value >> 16)
	buffer[1] = byte(value >> 8)
	buffer[0] = byte(value >> 0)
}

// wordsToBytes flattens words in little endian order.
func wordsToBytes(words []uint32) []byte {
	out := make([]byte, len(words)*4)

	for i, w := range words {
		uint32ToLittleEndian(out[i*4:], w)
	}

	return out
}

// bytesToWords expects len(data) to be a multiple of four.
func bytesToWords(data []byte) []uint32 {
	words := make([]uint32, len(data)/4)

	for i := range words {
		words[i] = convertToUint32(data[i*4:])
	}

	return words
}
