// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bbnote/godap"
	"github.com/bbnote/godap/toolflags"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

var (
	logger *logrus.Logger
)

func main() {
	var probeFlags toolflags.ProbeFlags

	fs := flag.NewFlagSet("dapInfo", flag.ExitOnError)
	probeFlags.Register(fs)

	flagList := fs.BoolP("list", "l", false, "only list connected probes")
	flagScan := fs.Bool("scan", true, "power up the target and scan its access ports")
	flagReset := fs.Bool("reset", false, "reset the target when done")
	flagTimeout := fs.Duration("timeout", 10*time.Second, "overall timeout")

	if err := toolflags.Parse(fs, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var err error

	logger, err = toolflags.NewLogger(probeFlags.LogLevel)

	if err != nil {
		logger.Fatal(err)
	}

	config, err := probeFlags.Config()

	if err != nil {
		logger.Fatal(err)
	}

	logger.Info("Starting CMSIS-DAP probe test-software...")

	probes, err := godap.FindProbes(config)

	if err != nil {
		logger.Fatal(err)
	}

	for i, probe := range probes {
		fmt.Printf("%d: %s\n", i, probe)
	}

	if len(probes) == 0 {
		logger.Fatal("Could not find any CMSIS-DAP probe on your computer")
	}

	if *flagList {
		godap.CloseUSB()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *flagTimeout)
	defer cancel()

	link, err := godap.OpenDapLink(config)

	if err != nil {
		logger.Fatal(err)
	}

	err = inspect(ctx, link, *flagScan, *flagReset)

	link.Close()
	godap.CloseUSB()

	if err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func inspect(ctx context.Context, link *godap.DapLink, scan bool, reset bool) error {
	info, err := link.Info(ctx)

	if err != nil {
		return err
	}

	fmt.Printf("probe:    %s\n", info)

	if info.TargetName != "" {
		fmt.Printf("target:   %s %s\n", info.TargetVendor, info.TargetName)
	}

	if !scan {
		return nil
	}

	if err := link.Init(ctx); err != nil {
		return err
	}

	defer link.Disconnect(context.Background())

	fmt.Printf("id code:  %08x\n", link.IdCode())

	ports, err := link.ScanAccessPorts(ctx, 255)

	if err != nil {
		return err
	}

	for apSel := 0; apSel < 256; apSel++ {
		if idr, ok := ports[uint8(apSel)]; ok {
			fmt.Printf("AP %3d:   IDR %08x\n", apSel, idr)
		}
	}

	if info.HasCapability(godap.CapabilityUartComPort) {
		if rate, err := link.GetSerialBaudrate(ctx); err == nil {
			fmt.Printf("uart:     %d baud\n", rate)
		}
	}

	if reset {
		logger.Info("resetting target")
		return link.ResetTarget(ctx)
	}

	return nil
}
