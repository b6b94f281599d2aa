// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// command and register values follow the CMSIS-DAP and ARM debug
// interface (ADIv5) documentation, for details see

// https://arm-software.github.io/CMSIS_5/DAP/html/group__DAP__Commands__gr.html

package godap

import "time"

// CMSIS-DAP command ids
const (
	cmdInfo              = 0x00
	cmdHostStatus        = 0x01
	cmdConnect           = 0x02
	cmdDisconnect        = 0x03
	cmdTransferConfigure = 0x04
	cmdTransfer          = 0x05
	cmdTransferBlock     = 0x06
	cmdTransferAbort     = 0x07
	cmdWriteAbort        = 0x08
	cmdDelay             = 0x09
	cmdResetTarget       = 0x0a
	cmdSwjPins           = 0x10
	cmdSwjClock          = 0x11
	cmdSwjSequence       = 0x12
	cmdSwdConfigure      = 0x13
)

// DAPLink vendor commands
const (
	vendorSerialReadSettings  = 0x81
	vendorSerialWriteSettings = 0x82
	vendorSerialRead          = 0x83
	vendorSerialWrite         = 0x84

	vendorFlashReset = 0x89
	vendorFlashOpen  = 0x8a
	vendorFlashClose = 0x8b
	vendorFlashWrite = 0x8c
)

// generic command status (second response byte)
const (
	dapOk    = 0x00
	dapError = 0xff
)

// DAP_Transfer acknowledge values
const (
	transferStatusOk   = 0x01
	transferStatusWait = 0x02
)

// transfer request byte
const (
	requestAp         = 1 << 0
	requestDp         = 0 << 0
	requestRead       = 1 << 1
	requestWrite      = 0 << 1
	requestValueMatch = 1 << 4
	requestMatchMask  = 1 << 5
)

// DP CTRL/STAT bits
const (
	ctrlCsysPwrUpAck = 0x80000000
	ctrlCsysPwrUpReq = 0x40000000
	ctrlCdbgPwrUpAck = 0x20000000
	ctrlCdbgPwrUpReq = 0x10000000
	ctrlTrnNormal    = 0x00000000
	ctrlMaskLane     = 0x00000f00

	ctrlPwrUpReq = ctrlCsysPwrUpReq | ctrlCdbgPwrUpReq
	ctrlPwrUpAck = ctrlCsysPwrUpAck | ctrlCdbgPwrUpAck
)

// DP ABORT bits
const (
	abortDapAbort   = 1 << 0
	abortStkCmpClr  = 1 << 1
	abortStkErrClr  = 1 << 2
	abortWdErrClr   = 1 << 3
	abortOrunErrClr = 1 << 4

	// AbortClearAll clears every sticky error flag without aborting the
	// current AP transaction.
	AbortClearAll = abortStkCmpClr | abortStkErrClr | abortWdErrClr | abortOrunErrClr
)

// SELECT fields
const (
	selectApSel     = 0xff000000
	selectApBankSel = 0x000000f0
)

// MEM-AP CSW bits
const (
	cswSize      = 0x00000007
	cswSize8     = 0x00000000
	cswSize16    = 0x00000001
	cswSize32    = 0x00000002
	cswAddrInc   = 0x00000030
	cswNAddrInc  = 0x00000000
	cswSAddrInc  = 0x00000010
	cswPAddrInc  = 0x00000020
	cswDbgStat   = 0x00000040
	cswTInProg   = 0x00000080
	cswHProt     = 0x02000000
	cswMstrType  = 0x20000000
	cswMstrCore  = 0x00000000
	cswMstrDbg   = 0x20000000
	cswReserved  = 0x01000000
	cswValueBase = cswReserved | cswMstrDbg | cswHProt | cswDbgStat | cswSAddrInc
)

// DAP_Info ids
const (
	infoVendor       = 0x01
	infoProduct      = 0x02
	infoSerialNumber = 0x03
	infoFirmware     = 0x04
	infoTargetVendor = 0x05
	infoTargetName   = 0x06
	infoCapabilities = 0xf0
	infoPacketCount  = 0xfe
	infoPacketSize   = 0xff
)

const (
	// maximum register operations in one DAP_Transfer issued by the engine
	maxTransferOperations = 15

	// transfer response header: command echo, executed count, status
	transferHeaderSize = 3

	defaultPacketSize     = 64
	defaultClockHz        = 10000000
	defaultWaitRetry      = 0x50
	defaultPowerUpTimeout = time.Second
	reconnectSettleDelay  = 100 * time.Millisecond

	DefaultPageSize     = 62
	DefaultBaudrate     = 9600
	DefaultSerialDelay  = 100 * time.Millisecond
	maxPageSize         = 255
	tarAutoIncrementMax = 1 << 10

	maximumWaitRetries = 8
	hidReportId        = 0x00
)
