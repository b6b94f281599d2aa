// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"context"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordProgress(link *DapLink) *[]float64 {
	var progress []float64

	link.SubscribeProgress(func(p float64) {
		progress = append(progress, p)
	})

	return &progress
}

func TestFlashPages(t *testing.T) {
	link, fake := newTestLink(t)
	progress := recordProgress(link)
	image := testPattern(150)

	require.NoError(t, link.Flash(context.Background(), image, DefaultPageSize))

	require.Len(t, fake.flashPages, 3)
	assert.Len(t, fake.flashPages[0], 62)
	assert.Len(t, fake.flashPages[1], 62)
	assert.Len(t, fake.flashPages[2], 26)
	assert.Equal(t, image[124:], fake.flashPages[2])

	// length prefix in front of every page
	assert.Equal(t, []byte{vendorFlashWrite, 62}, fake.requests[0][:2])
	assert.Equal(t, []byte{vendorFlashWrite, 26}, fake.requests[2][:2])

	assert.Equal(t, []float64{0, 62.0 / 150, 124.0 / 150, 1.0}, *progress)
	assert.Empty(t, fake.clearAborts)
}

func TestFlashFailureClearsAbort(t *testing.T) {
	link, fake := newTestLink(t)
	progress := recordProgress(link)
	fake.flashFailPage = 2

	err := link.Flash(context.Background(), testPattern(150), DefaultPageSize)

	require.Error(t, err)
	assert.True(t, IsTransportError(err))

	assert.Len(t, fake.flashPages, 1)
	assert.Equal(t, []uint32{AbortClearAll}, fake.clearAborts)
	assert.Equal(t, 2, fake.countCommand(vendorFlashWrite))
	assert.Equal(t, []float64{0}, *progress)
}

func TestFlashEmptyImage(t *testing.T) {
	link, fake := newTestLink(t)
	progress := recordProgress(link)

	require.NoError(t, link.Flash(context.Background(), nil, DefaultPageSize))

	assert.Empty(t, fake.commands())
	assert.Equal(t, []float64{1.0}, *progress)
}

func TestFlashExactPages(t *testing.T) {
	link, fake := newTestLink(t)
	progress := recordProgress(link)

	require.NoError(t, link.Flash(context.Background(), testPattern(124), DefaultPageSize))

	assert.Len(t, fake.flashPages, 2)
	assert.Equal(t, []float64{0, 0.5, 1.0}, *progress)
}

func TestFlashInvalidPageSize(t *testing.T) {
	link, fake := newTestLink(t)

	for _, size := range []int{0, -1, 63, 256} {
		err := link.Flash(context.Background(), testPattern(10), size)
		assert.Equal(t, ErrInvalidPageSize, errors.Cause(err), "page size %d", size)
	}

	assert.Empty(t, fake.commands())
}

func TestFlashSmallPages(t *testing.T) {
	link, fake := newTestLink(t)

	require.NoError(t, link.Flash(context.Background(), testPattern(10), 4))
	assert.Len(t, fake.flashPages, 3)
}

func TestProgram(t *testing.T) {
	link, fake := newTestLink(t)

	require.NoError(t, link.Program(context.Background(), testPattern(70), DefaultPageSize))

	assert.Equal(t, []byte{vendorFlashOpen, vendorFlashWrite, vendorFlashWrite, vendorFlashClose, vendorFlashReset}, fake.commands())
}

func TestProgramOpenFault(t *testing.T) {
	link, fake := newTestLink(t)
	fake.flashStatus = 0x01

	err := link.Program(context.Background(), testPattern(70), DefaultPageSize)

	require.Error(t, err)
	assert.True(t, IsFaultError(err))
	assert.Equal(t, []byte{vendorFlashOpen, cmdWriteAbort}, fake.commands())
}

func TestProgressUnsubscribe(t *testing.T) {
	link, _ := newTestLink(t)
	calls := 0

	id, count := link.SubscribeProgress(func(float64) { calls++ })
	assert.Equal(t, 1, count)
	assert.Equal(t, 0, link.UnsubscribeProgress(id))

	require.NoError(t, link.Flash(context.Background(), testPattern(10), DefaultPageSize))
	assert.Equal(t, 0, calls)
}
