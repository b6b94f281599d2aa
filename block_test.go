// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prepareDrw(t *testing.T, link *DapLink, addr uint32) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, link.WriteAp(ctx, ApCsw, Memory32BitBlock.csw()))
	require.NoError(t, link.WriteAp(ctx, ApTar, addr))
}

func TestReadRepeatTooManyOperations(t *testing.T) {
	link, fake := initTestLink(t)

	_, err := link.ReadRepeat(context.Background(), ApReg(ApDrw), 16)

	assert.Equal(t, ErrTooManyOperations, err)
	assert.Empty(t, fake.commands())
}

func TestWriteRepeatTooManyOperations(t *testing.T) {
	link, fake := initTestLink(t)

	err := link.WriteRepeat(context.Background(), ApReg(ApDrw), make([]uint32, 16))

	assert.Equal(t, ErrTooManyOperations, err)
	assert.Empty(t, fake.commands())
}

func TestReadRepeatOrder(t *testing.T) {
	link, fake := initTestLink(t)
	fake.setMemory(0x20000000, []byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0})

	prepareDrw(t, link, 0x20000000)
	fake.reset()

	values, err := link.ReadRepeat(context.Background(), ApReg(ApDrw), 3)

	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3}, values)
	assert.Equal(t, []byte{cmdTransfer}, fake.commands())

	// one request byte per read
	request := fake.requests[0]
	assert.Equal(t, []byte{0, 3, 0x0f, 0x0f, 0x0f}, request[1:6])
}

func TestReadRepeatCountMismatch(t *testing.T) {
	link, fake := initTestLink(t)
	prepareDrw(t, link, 0x20000000)

	fake.shortCount = true
	_, err := link.ReadRepeat(context.Background(), ApReg(ApDrw), 4)

	require.Error(t, err)
	assert.True(t, IsProtocolError(err))
}

func TestWriteRepeatIgnoresCount(t *testing.T) {
	link, fake := initTestLink(t)
	prepareDrw(t, link, 0x20000100)

	fake.shortCount = true
	require.NoError(t, link.WriteRepeat(context.Background(), ApReg(ApDrw), []uint32{0x11111111, 0x22222222}))

	assert.Equal(t, []byte{0x11, 0x11, 0x11, 0x11, 0x22, 0x22, 0x22, 0x22}, fake.getMemory(0x20000100, 8))
}

func TestWriteRepeatStatusChecked(t *testing.T) {
	link, fake := initTestLink(t)
	prepareDrw(t, link, 0x20000100)

	fake.statusQueue = []uint8{transferStatusWait}
	err := link.WriteRepeat(context.Background(), ApReg(ApDrw), []uint32{1})

	assert.True(t, IsWaitError(err))
}

func TestRepeatEmpty(t *testing.T) {
	link, fake := initTestLink(t)
	ctx := context.Background()

	values, err := link.ReadRepeat(ctx, ApReg(ApDrw), 0)
	require.NoError(t, err)
	assert.Empty(t, values)

	require.NoError(t, link.WriteRepeat(ctx, ApReg(ApDrw), nil))
	assert.Empty(t, fake.commands())
}

func TestEncodeTransfer(t *testing.T) {
	ops := []transferOperation{
		{reg: DpReg(DpSelect), write: true, value: 0x010000f0},
		{reg: ApReg(ApIdr)},
	}

	assert.Equal(t, []byte{0, 2, 0x08, 0xf0, 0x00, 0x00, 0x01, 0x0f}, encodeTransfer(0, ops))
}

func TestParseTransferResponse(t *testing.T) {
	_, err := parseTransferResponse([]byte{cmdTransfer, 1})
	assert.True(t, IsProtocolError(err))

	_, err = parseTransferResponse([]byte{cmdTransferBlock, 1, 1})
	assert.True(t, IsProtocolError(err))

	response, err := parseTransferResponse([]byte{cmdTransfer, 1, 1, 0x78, 0x56, 0x34, 0x12})
	require.NoError(t, err)

	words, err := response.words(1)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x12345678}, words)

	_, err = response.words(2)
	assert.True(t, IsProtocolError(err))
}

func TestApRegisterBank(t *testing.T) {
	assert.Equal(t, uint32(0x000000f0), ApIdr.bank())
	assert.Equal(t, uint32(0x02000000), ApDrw.OnAccessPort(2).bank())
	assert.Equal(t, uint8(2), ApDrw.OnAccessPort(2).ApSel())
	assert.Equal(t, Register{Ap: true, Offset: 0x0c}, ApReg(ApIdr))
	assert.Equal(t, "AP2 DRW", ApDrw.OnAccessPort(2).String())
}
