// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import "strings"

type TargetInfo struct {
	RamStart uint32
	RamSize  uint32
}

// targets commonly found behind DAPLink probes
var supportedTargets = map[string]TargetInfo{
	"STM32F030R8": {0x20000000, 0x2000},
	"STM32F070RB": {0x20000000, 0x4000},
	"STM32F103RB": {0x20000000, 0x5000},
	"STM32F401RE": {0x20000000, 0x18000},
	"STM32F411RE": {0x20000000, 0x20000},
	"STM32L476RG": {0x20000000, 0x18000},
	"NRF51822":    {0x20000000, 0x4000},
	"NRF52832":    {0x20000000, 0x10000},
	"NRF52840":    {0x20000000, 0x40000},
	"LPC1768":     {0x10000000, 0x8000},
	"LPC11U24":    {0x10000000, 0x2000},
	"MK64FN1M0":   {0x1fff0000, 0x40000},
	"MKL25Z128":   {0x1ffff000, 0x4000},
	"RP2040":      {0x20000000, 0x42000},
}

// GetTargetInformation looks up a target by name, ignoring case.
func GetTargetInformation(name string) *TargetInfo {
	if val, ok := supportedTargets[strings.ToUpper(name)]; ok {
		return &val
	} else {
		return nil
	}
}

// SearchRange is the RAM of the target as RTT search range.
func (t *TargetInfo) SearchRange() MemoryRange {
	return MemoryRange{Start: t.RamStart, Size: t.RamSize}
}
