// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"context"
	"fmt"
	"strings"

	"github.com/boljen/go-bitmap"
	"github.com/juju/errors"
)

// probe capability bits reported by DAP_Info 0xF0
const (
	CapabilitySwd            = 0
	CapabilityJtag           = 1
	CapabilitySwoUart        = 2
	CapabilitySwoManchester  = 3
	CapabilityAtomicCommands = 4
	CapabilityTestDomainTime = 5
	CapabilitySwoStreaming   = 6
	CapabilityUartComPort    = 7
)

var capabilityNames = []string{"SWD", "JTAG", "SWO-UART", "SWO-Manchester", "atomic", "timer", "SWO-stream", "UART"}

type ProbeInfo struct {
	Vendor          string
	Product         string
	SerialNumber    string
	FirmwareVersion string
	TargetVendor    string
	TargetName      string
	PacketCount     int
	PacketSize      int

	capabilities bitmap.Bitmap
}

func (i *ProbeInfo) HasCapability(capability int) bool {
	if i.capabilities == nil || capability >= i.capabilities.Len() {
		return false
	}

	return i.capabilities.Get(capability)
}

func (i *ProbeInfo) String() string {
	var caps []string

	for bit, name := range capabilityNames {
		if i.HasCapability(bit) {
			caps = append(caps, name)
		}
	}

	return fmt.Sprintf("%s %s [%s] fw %s, %d x %d byte packets, caps: %s",
		i.Vendor, i.Product, i.SerialNumber, i.FirmwareVersion, i.PacketCount, i.PacketSize, strings.Join(caps, ","))
}

// infoRaw returns the data part of a DAP_Info response, without the
// command echo and the length byte.
func (d *Dap) infoRaw(ctx context.Context, id byte) ([]byte, error) {
	response, err := d.exec(ctx, cmdInfo, []byte{id})

	if err != nil {
		return nil, err
	}

	if len(response) < 2 {
		return nil, newProtocolError("info response for 0x%02x too short", id)
	}

	length := int(response[1])

	if len(response) < 2+length {
		return nil, newProtocolError("info 0x%02x declares %d bytes, got %d", id, length, len(response)-2)
	}

	return response[2 : 2+length], nil
}

func (d *Dap) infoString(ctx context.Context, id byte) (string, error) {
	data, err := d.infoRaw(ctx, id)

	if err != nil {
		return "", err
	}

	return strings.TrimRight(string(data), "\x00"), nil
}

func (d *Dap) infoUint16(ctx context.Context, id byte) (uint16, error) {
	data, err := d.infoRaw(ctx, id)

	if err != nil {
		return 0, err
	}

	if len(data) != 2 {
		return 0, newProtocolError("info 0x%02x: want 2 bytes, got %d", id, len(data))
	}

	return convertToUint16(data), nil
}

// Info queries the identification and capabilities of the probe.
func (d *Dap) Info(ctx context.Context) (*ProbeInfo, error) {
	info := &ProbeInfo{}

	strs := []struct {
		id  byte
		dst *string
	}{
		{infoVendor, &info.Vendor},
		{infoProduct, &info.Product},
		{infoSerialNumber, &info.SerialNumber},
		{infoFirmware, &info.FirmwareVersion},
		{infoTargetVendor, &info.TargetVendor},
		{infoTargetName, &info.TargetName},
	}

	for _, s := range strs {
		value, err := d.infoString(ctx, s.id)

		if err != nil {
			return nil, errors.Annotatef(err, "failed to get info 0x%02x", s.id)
		}

		*s.dst = value
	}

	caps, err := d.infoRaw(ctx, infoCapabilities)

	if err != nil {
		return nil, errors.Annotate(err, "failed to get capabilities")
	}

	info.capabilities = bitmap.New(len(caps) * 8)

	for i, b := range caps {
		for bit := 0; bit < 8; bit++ {
			info.capabilities.Set(i*8+bit, b&(1<<uint(bit)) != 0)
		}
	}

	if data, err := d.infoRaw(ctx, infoPacketCount); err != nil {
		return nil, errors.Annotate(err, "failed to get packet count")
	} else if len(data) > 0 {
		info.PacketCount = int(data[0])
	}

	size, err := d.infoUint16(ctx, infoPacketSize)

	if err != nil {
		return nil, errors.Annotate(err, "failed to get packet size")
	}

	info.PacketSize = int(size)

	logger.Debugf("probe info: %s", info)
	return info, nil
}
