// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"context"

	"github.com/cesanta/hid"
	"github.com/juju/errors"
)

// hidTransport talks to CMSIS-DAP v1 probes through HID reports.
type hidTransport struct {
	info   *hid.DeviceInfo
	device hid.Device

	packetSize int
}

func newHidTransport(info *hid.DeviceInfo) *hidTransport {
	return &hidTransport{
		info:       info,
		packetSize: defaultPacketSize,
	}
}

func hidFindDevices(vids []uint16, pids []uint16) ([]*hid.DeviceInfo, error) {
	devices, err := hid.Devices()

	if err != nil {
		return nil, errors.Annotate(err, "failed to enumerate HID devices")
	}

	var found []*hid.DeviceInfo

	for _, di := range devices {
		if !uint16Exists(vids, di.VendorID) || !uint16Exists(pids, di.ProductID) {
			continue
		}

		logger.Infof("Found HID device [%04x:%04x] at %s", di.VendorID, di.ProductID, di.Path)
		found = append(found, di)
	}

	return found, nil
}

func uint16Exists(slice []uint16, item uint16) bool {
	for _, element := range slice {
		if element == item {
			return true
		}
	}

	return false
}

func (t *hidTransport) Open() error {
	device, err := t.info.Open()

	if err != nil {
		return errors.Annotatef(err, "failed to open device %04x:%04x (%s)", t.info.VendorID, t.info.ProductID, t.info.Path)
	}

	t.device = device
	logger.Debugf("Opened %04x:%04x (%s)", t.info.VendorID, t.info.ProductID, t.info.Path)

	return nil
}

func (t *hidTransport) Close() error {
	if t.device != nil {
		t.device.Close()
		t.device = nil
	}

	return nil
}

// Write sends data as one output report behind the unused report id.
func (t *hidTransport) Write(ctx context.Context, data []byte) error {
	if t.device == nil {
		return errors.New("hid device not open")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	size := t.packetSize

	if len(data) > size {
		size = len(data)
	}

	report := make([]byte, size+1)
	report[0] = hidReportId
	copy(report[1:], data)

	return t.device.Write(report)
}

func (t *hidTransport) Read(ctx context.Context) ([]byte, error) {
	if t.device == nil {
		return nil, errors.New("hid device not open")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()

	case report, ok := <-t.device.ReadCh():
		if !ok {
			return nil, errors.Annotate(t.device.ReadError(), "device read failed")
		}

		return report, nil
	}
}

func (t *hidTransport) PacketSize() int {
	return t.packetSize
}
