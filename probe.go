// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"fmt"

	"github.com/google/gousb"
	"github.com/juju/errors"
)

// vendor and product ids of common CMSIS-DAP probes (DAPLink, Keil ULINK,
// NXP LPC-Link2, Atmel EDBG, Raspberry Pi debugprobe)
var dapSupportedVids = []gousb.ID{0x0d28, 0xc251, 0x1fc9, 0x03eb, 0x2e8a}
var dapSupportedPids = []gousb.ID{0x0204, 0xf001, 0xf002, 0x2722, 0x0090, 0x0143, 0x2111, 0x000c}

// ProbeDescription identifies a probe found by FindProbes.
type ProbeDescription struct {
	Kind    TransportKind
	Vid     gousb.ID
	Pid     gousb.ID
	Serial  string
	Product string
	Path    string
}

func (p ProbeDescription) String() string {
	return fmt.Sprintf("[%04x:%04x] %s %s (%s, %s)", uint16(p.Vid), uint16(p.Pid), p.Product, p.Serial, p.Kind, p.Path)
}

func probeIds(config *DapInterfaceConfig) ([]gousb.ID, []gousb.ID) {
	if config.Vid == AllSupportedVIds && config.Pid == AllSupportedPIds {
		return dapSupportedVids, dapSupportedPids

	} else if config.Vid == AllSupportedVIds && config.Pid != AllSupportedPIds {
		return dapSupportedVids, []gousb.ID{config.Pid}

	} else if config.Vid != AllSupportedVIds && config.Pid == AllSupportedPIds {
		return []gousb.ID{config.Vid}, dapSupportedPids
	}

	return []gousb.ID{config.Vid}, []gousb.ID{config.Pid}
}

func toUint16(ids []gousb.ID) []uint16 {
	out := make([]uint16, len(ids))

	for i, id := range ids {
		out[i] = uint16(id)
	}

	return out
}

// bulkProbes returns the devices with a CMSIS-DAP v2 interface matching
// config. Devices not returned are closed.
func bulkProbes(config *DapInterfaceConfig) ([]*gousb.Device, error) {
	vids, pids := probeIds(config)
	devices, err := usbFindDevices(vids, pids)

	if err != nil {
		return nil, err
	}

	var matching []*gousb.Device

	for _, dev := range devices {
		configNum, err := dev.ActiveConfigNum()

		if err != nil {
			configNum = 1
		}

		if _, _, _, ok := bulkInterface(dev.Desc, configNum); !ok {
			logger.Debugf("device %s has no bulk interface", dev)
			dev.Close()
			continue
		}

		if config.Serial != "" {
			devSerialNo, _ := dev.SerialNumber()

			logger.Debugf("Compare serial no %s with number %s", devSerialNo, config.Serial)

			if devSerialNo != config.Serial {
				dev.Close()
				continue
			}
		}

		matching = append(matching, dev)
	}

	return matching, nil
}

// FindProbes lists the probes matching the vendor, product and serial
// number of config.
func FindProbes(config *DapInterfaceConfig) ([]ProbeDescription, error) {
	var probes []ProbeDescription

	if config.Kind != TransportHid {
		devices, err := bulkProbes(config)

		if err != nil {
			return nil, errors.Trace(err)
		}

		for _, dev := range devices {
			serial, _ := dev.SerialNumber()
			product, _ := dev.Product()

			probes = append(probes, ProbeDescription{
				Kind:    TransportBulk,
				Vid:     dev.Desc.Vendor,
				Pid:     dev.Desc.Product,
				Serial:  serial,
				Product: product,
				Path:    fmt.Sprintf("%03d:%03d", dev.Desc.Bus, dev.Desc.Address),
			})

			dev.Close()
		}
	}

	if config.Kind != TransportBulk {
		vids, pids := probeIds(config)
		devices, err := hidFindDevices(toUint16(vids), toUint16(pids))

		if err != nil {
			return probes, errors.Trace(err)
		}

		for _, di := range devices {
			probes = append(probes, ProbeDescription{
				Kind: TransportHid,
				Vid:  gousb.ID(di.VendorID),
				Pid:  gousb.ID(di.ProductID),
				Path: di.Path,
			})
		}
	}

	return probes, nil
}

func openBulkTransport(config *DapInterfaceConfig) (Transport, error) {
	devices, err := bulkProbes(config)

	if err != nil {
		return nil, err
	}

	if len(devices) == 0 {
		return nil, nil
	}

	if len(devices) > 1 {
		for _, dev := range devices {
			dev.Close()
		}

		return nil, errors.New("could not identify exact probe by given parameters. (Perhaps a serial no is missing?)")
	}

	return newUsbTransport(devices[0], config), nil
}

func openHidTransport(config *DapInterfaceConfig) (Transport, error) {
	vids, pids := probeIds(config)
	devices, err := hidFindDevices(toUint16(vids), toUint16(pids))

	if err != nil {
		return nil, err
	}

	if len(devices) == 0 {
		return nil, nil
	}

	if config.Serial != "" {
		logger.Warnf("serial number %s can not be checked on HID probes, ignoring it", config.Serial)
	}

	if len(devices) > 1 {
		return nil, errors.New("could not identify exact probe by given parameters. (Perhaps vid and pid are missing?)")
	}

	return newHidTransport(devices[0]), nil
}

// OpenTransport finds and opens the one probe matching config. With
// TransportAuto bulk probes are preferred over HID probes.
func OpenTransport(config *DapInterfaceConfig) (Transport, error) {
	var transport Transport
	var err error

	if config.Kind != TransportHid {
		if transport, err = openBulkTransport(config); err != nil {
			return nil, errors.Trace(err)
		}
	}

	if transport == nil && config.Kind != TransportBulk {
		if transport, err = openHidTransport(config); err != nil {
			return nil, errors.Trace(err)
		}
	}

	if transport == nil {
		return nil, errors.New("could not find any CMSIS-DAP probe connected to computer")
	}

	if err := transport.Open(); err != nil {
		transport.Close()
		return nil, errors.Annotate(err, "could not open probe")
	}

	return transport, nil
}

// OpenDapLink opens the probe matching config. The link is not connected
// yet, call Init or Connect next.
func OpenDapLink(config *DapInterfaceConfig) (*DapLink, error) {
	if config == nil {
		config = NewDapConfig(AllSupportedVIds, AllSupportedPIds, ConnectModeDefault, "", defaultClockHz)
	}

	transport, err := OpenTransport(config)

	if err != nil {
		return nil, err
	}

	return NewDapLink(transport, config), nil
}
