// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bbnote/godap"
	"github.com/bbnote/godap/toolflags"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

var (
	flagChannel *int
	fileHandle  *os.File

	logger *logrus.Logger
)

func rttDataHandler(channel int, data []byte) error {
	if channel != *flagChannel {
		return nil
	}

	if fileHandle != nil {
		_, err := fileHandle.Write(data)
		return err
	}

	fmt.Print(string(data))
	return nil
}

func setUpSignalHandler(cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)

	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-signals
		cancel()
	}()
}

func parseSearchRanges(value string) []godap.MemoryRange {
	var rttSearchRanges []godap.MemoryRange

	ranges := strings.Split(value, ",")
	for _, r := range ranges {
		var rttStart uint64 = math.MaxUint64
		var rttRange uint64 = math.MaxUint64

		fmt.Sscanf(strings.TrimSpace(r), "%v %v", &rttStart, &rttRange)

		if rttStart <= math.MaxUint32 && rttRange <= math.MaxUint32 {
			logger.Debugf("adding search range [0x%x, 0x%x]", rttStart, rttRange)
			rttSearchRanges = append(rttSearchRanges, godap.MemoryRange{Start: uint32(rttStart), Size: uint32(rttRange)})
		} else {
			logger.Warnf("discarding invalid search range '%s'...", r)
		}
	}

	return rttSearchRanges
}

func main() {
	var probeFlags toolflags.ProbeFlags

	fs := flag.NewFlagSet("dapRttLogger", flag.ExitOnError)
	probeFlags.Register(fs)

	flagDevice := fs.String("device", "", "target device type")
	flagChannel = fs.Int("rtt-channel", 0, "RTT channel to interface with")
	flagRTTAddress := fs.Uint32("rtt-address", 0, "address of the RTT control block")
	flagRTTSearchRanges := fs.String("rtt-search-ranges", "", "<RangeAddr> <RangeSize> [, <RangeAddr1> <RangeSize1>, ..]")
	flagInterval := fs.Duration("interval", 50*time.Millisecond, "poll interval")

	if err := toolflags.Parse(fs, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var err error

	logger, err = toolflags.NewLogger(probeFlags.LogLevel)

	if err != nil {
		logger.Fatal(err)
	}

	logger.Info("Welcome to godap rtt logger...")

	var rttSearchRanges []godap.MemoryRange

	if fs.NArg() == 1 {
		file, err := os.OpenFile(fs.Arg(0), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)

		if err != nil {
			logger.Fatal(err)
		}

		fileHandle = file

		defer fileHandle.Close()
	}

	if *flagDevice != "" {
		targetInfo := godap.GetTargetInformation(*flagDevice)

		if targetInfo != nil {
			logger.Infof("found device information for %s [0x%x, 0x%x]", *flagDevice, targetInfo.RamStart, targetInfo.RamSize)
			rttSearchRanges = append(rttSearchRanges, targetInfo.SearchRange())

		} else {
			logger.Fatalf("could not find device information for %s", *flagDevice)
		}
	} else if *flagRTTAddress != 0 {
		rttSearchRanges = append(rttSearchRanges, godap.MemoryRange{Start: *flagRTTAddress, Size: 24})

	} else if *flagRTTSearchRanges != "" {
		rttSearchRanges = parseSearchRanges(*flagRTTSearchRanges)

	} else {
		logger.Fatal("could not find valid device description")
	}

	config, err := probeFlags.Config()

	if err != nil {
		logger.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	setUpSignalHandler(cancel)

	logger.Debugf("searching for target %s (%s, %d Hz) with RTT on channel %d...", *flagDevice, probeFlags.Mode,
		probeFlags.ClockHz, *flagChannel)

	link, err := godap.OpenDapLink(config)

	if err != nil {
		logger.Fatal("error while scanning for probes on your computer: ", err)
	}

	err = run(ctx, link.Dap, rttSearchRanges, *flagInterval)

	link.Close()
	godap.CloseUSB()

	if err != nil && err != context.Canceled {
		logger.Error(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dap *godap.Dap, ranges []godap.MemoryRange, interval time.Duration) error {
	if err := dap.Init(ctx); err != nil {
		return err
	}

	defer dap.Disconnect(context.Background())

	logger.Infof("got id code: %08x", dap.IdCode())

	session, err := dap.InitializeRtt(ctx, ranges)

	if err != nil {
		return err
	}

	if err := session.UpdateRttChannels(ctx, true); err != nil {
		return err
	}

	logger.Infof("reading RTT channel %d (%s)", *flagChannel, session.ChannelName(*flagChannel))

	for {
		if err := session.UpdateRttChannels(ctx, false); err != nil {
			logger.Error(err)
		} else if err := session.ReadRttChannels(ctx, rttDataHandler); err != nil {
			logger.Error(err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
