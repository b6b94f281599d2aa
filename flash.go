// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"context"

	"github.com/juju/errors"
)

// vendorCommand sends a DAPLink vendor command and checks the echo.
// Any failure clears the sticky abort state of the link before the
// original error is returned.
func (l *DapLink) vendorCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	response, err := l.Vendor(ctx, cmd, args)

	if err == nil && (len(response) < 1 || response[0] != cmd) {
		err = newProtocolError("bad response for vendor command 0x%02x", cmd)
	}

	if err != nil {
		l.clearAbortAfter(ctx, err)
		return nil, err
	}

	return response, nil
}

// vendorCommandStatus is vendorCommand for commands that report a
// status in the second response byte, zero meaning success.
func (l *DapLink) vendorCommandStatus(ctx context.Context, cmd byte, args []byte) error {
	response, err := l.vendorCommand(ctx, cmd, args)

	if err != nil {
		return err
	}

	if len(response) > 1 && response[1] != dapOk {
		err = &FaultError{Code: response[1]}
		l.clearAbortAfter(ctx, err)
		return err
	}

	return nil
}

// clearAbortAfter is best effort: its own failure is logged, the caller
// keeps reporting the error that caused it.
func (l *DapLink) clearAbortAfter(ctx context.Context, cause error) {
	logger.Debugf("clearing abort after: %v", cause)

	if err := l.ClearAbort(ctx, AbortClearAll); err != nil {
		logger.Warnf("could not clear abort: %v", err)
	}
}

func (l *DapLink) checkPageSize(pageSize int) error {
	// command byte and length byte share the packet with the page
	max := l.channel.packetSize - 2

	if max > maxPageSize {
		max = maxPageSize
	}

	if pageSize < 1 || pageSize > max {
		return errors.Annotatef(ErrInvalidPageSize, "page size %d not within 1..%d", pageSize, max)
	}

	return nil
}

// Flash writes buffer page by page through the DAPLink flash write
// command. After every page the fraction written before that page is
// reported, after the last page exactly 1.0. Pass DefaultPageSize unless
// the probe needs smaller pages.
func (l *DapLink) Flash(ctx context.Context, buffer []byte, pageSize int) error {
	if err := l.checkPageSize(pageSize); err != nil {
		return err
	}

	total := len(buffer)

	for offset := 0; offset < total; {
		end := offset + pageSize

		if end > total {
			end = total
		}

		page := buffer[offset:end]

		data := make([]byte, len(page)+1)
		data[0] = byte(len(page))
		copy(data[1:], page)

		if _, err := l.vendorCommand(ctx, vendorFlashWrite, data); err != nil {
			return errors.Annotatef(err, "flash write of page at offset %d failed", offset)
		}

		l.progress.emit(float64(offset) / float64(total))
		offset = end
	}

	l.progress.emit(1.0)
	return nil
}

// FlashOpen prepares the DAPLink firmware for a new image.
func (l *DapLink) FlashOpen(ctx context.Context) error {
	return errors.Annotate(l.vendorCommandStatus(ctx, vendorFlashOpen, nil), "flash open failed")
}

// FlashClose finishes the image written since FlashOpen.
func (l *DapLink) FlashClose(ctx context.Context) error {
	return errors.Annotate(l.vendorCommandStatus(ctx, vendorFlashClose, nil), "flash close failed")
}

// FlashReset resets the target through the DAPLink firmware.
func (l *DapLink) FlashReset(ctx context.Context) error {
	_, err := l.vendorCommand(ctx, vendorFlashReset, nil)
	return errors.Annotate(err, "flash reset failed")
}

// Program runs a complete update: open, write all pages, close and
// reset the target.
func (l *DapLink) Program(ctx context.Context, image []byte, pageSize int) error {
	logger.Infof("programming %d bytes in pages of %d bytes", len(image), pageSize)

	if err := l.FlashOpen(ctx); err != nil {
		return err
	}

	if err := l.Flash(ctx, image, pageSize); err != nil {
		return err
	}

	if err := l.FlashClose(ctx); err != nil {
		return err
	}

	return l.FlashReset(ctx)
}
