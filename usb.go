// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"context"

	"github.com/google/gousb"
	"github.com/juju/errors"
)

// interface and endpoint numbers of a CMSIS-DAP v2 probe are taken from
// its descriptors unless configured
const usbAutoDetect = -1

var usbCtx *gousb.Context = nil

func InitializeUSB() error {
	if usbCtx == nil {
		usbCtx = gousb.NewContext()

		if usbCtx != nil {
			logger.Debug("Initialized libusb...")
			return nil
		} else {
			return errors.New("could not initialize libusb")
		}
	} else {
		logger.Warn("USB already initialized!")
		return nil
	}
}

func CloseUSB() {
	if usbCtx != nil {
		usbCtx.Close()
		usbCtx = nil
	} else {
		logger.Warn("Could not close uninitialized usb context")
	}
}

func idExists(slice []gousb.ID, item gousb.ID) bool {
	for _, element := range slice {
		if element == item {
			return true
		}
	}

	return false
}

func usbFindDevices(vids []gousb.ID, pids []gousb.ID) ([]*gousb.Device, error) {
	if usbCtx == nil {
		if err := InitializeUSB(); err != nil {
			return nil, err
		}
	}

	devices, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if idExists(vids, desc.Vendor) && idExists(pids, desc.Product) {
			logger.Infof("Found USB device [%04x:%04x] on bus %03d:%03d", uint16(desc.Vendor), uint16(desc.Product), desc.Bus, desc.Address)
			return true
		}

		return false
	})

	// OpenDevices may fail for single devices and still return the others
	if err != nil && len(devices) == 0 {
		return nil, errors.Annotate(err, "usb device scan failed")
	}

	logger.Debugf("Found %d matching devices based on vendor and product id list", len(devices))
	return devices, nil
}

// bulkInterface finds the vendor specific interface with one bulk in and
// one bulk out endpoint.
func bulkInterface(desc *gousb.DeviceDesc, config int) (intf int, in int, out int, ok bool) {
	cfg, found := desc.Configs[config]

	if !found {
		return 0, 0, 0, false
	}

	for _, i := range cfg.Interfaces {
		for _, alt := range i.AltSettings {
			if alt.Alternate != 0 || alt.Class != gousb.ClassVendorSpec {
				continue
			}

			in, out = usbAutoDetect, usbAutoDetect

			for _, ep := range alt.Endpoints {
				if ep.TransferType != gousb.TransferTypeBulk {
					continue
				}

				if ep.Direction == gousb.EndpointDirectionIn && in == usbAutoDetect {
					in = ep.Number
				} else if ep.Direction == gousb.EndpointDirectionOut && out == usbAutoDetect {
					out = ep.Number
				}
			}

			if in != usbAutoDetect && out != usbAutoDetect {
				return alt.Number, in, out, true
			}
		}
	}

	return 0, 0, 0, false
}

// usbTransport talks to CMSIS-DAP v2 probes over bulk endpoints.
type usbTransport struct {
	device *gousb.Device
	config *DapInterfaceConfig

	usbConfig    *gousb.Config
	usbInterface *gousb.Interface
	rxEp         *gousb.InEndpoint
	txEp         *gousb.OutEndpoint

	packetSize int
}

func newUsbTransport(device *gousb.Device, config *DapInterfaceConfig) *usbTransport {
	return &usbTransport{
		device:     device,
		config:     config,
		packetSize: defaultPacketSize,
	}
}

func (t *usbTransport) Open() error {
	if err := t.device.SetAutoDetach(true); err != nil {
		logger.Debugf("could not enable kernel driver auto detach: %v", err)
	}

	configNum, err := t.device.ActiveConfigNum()

	if err != nil {
		logger.Debug(err)
		configNum = 1
	}

	intf, in, out := t.config.Interface, t.config.EndpointIn, t.config.EndpointOut

	if intf == usbAutoDetect || in == usbAutoDetect || out == usbAutoDetect {
		var ok bool

		if intf, in, out, ok = bulkInterface(t.device.Desc, configNum); !ok {
			return errors.Errorf("no CMSIS-DAP bulk interface on device %04x:%04x", uint16(t.device.Desc.Vendor), uint16(t.device.Desc.Product))
		}
	}

	t.usbConfig, err = t.device.Config(configNum)

	if err != nil {
		return errors.Annotatef(err, "could not request configuration #%d", configNum)
	}

	t.usbInterface, err = t.usbConfig.Interface(intf, 0)

	if err != nil {
		t.Close()
		return errors.Annotatef(err, "could not claim interface %d,0", intf)
	}

	if t.rxEp, err = t.usbInterface.InEndpoint(in); err != nil {
		t.Close()
		return errors.Annotatef(err, "could not open in endpoint %d", in)
	}

	if t.txEp, err = t.usbInterface.OutEndpoint(out); err != nil {
		t.Close()
		return errors.Annotatef(err, "could not open out endpoint %d", out)
	}

	if size := t.rxEp.Desc.MaxPacketSize; size > 0 {
		t.packetSize = size
	}

	logger.Debugf("opened bulk interface %d (in %d, out %d, %d byte packets)", intf, in, out, t.packetSize)
	return nil
}

func (t *usbTransport) Close() error {
	if t.usbInterface != nil {
		t.usbInterface.Close()
		t.usbInterface = nil
	}

	if t.usbConfig != nil {
		t.usbConfig.Close()
		t.usbConfig = nil
	}

	if t.device == nil {
		return nil
	}

	err := t.device.Close()
	t.device = nil

	return err
}

func (t *usbTransport) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	written, err := t.txEp.Write(data)

	if err != nil {
		return err
	}

	logger.Tracef("Wrote %d bytes to endpoint", written)
	return nil
}

func (t *usbTransport) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buffer := make([]byte, t.packetSize)
	read, err := t.rxEp.Read(buffer)

	if err != nil {
		return nil, err
	}

	logger.Tracef("Read %d byte from in endpoint", read)
	return buffer[:read], nil
}

func (t *usbTransport) PacketSize() int {
	return t.packetSize
}
