// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bbnote/godap"
	"github.com/bbnote/godap/toolflags"
	flag "github.com/spf13/pflag"
)

func setUpSignalHandler(cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)

	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-signals
		cancel()
	}()
}

func main() {
	var probeFlags toolflags.ProbeFlags

	fs := flag.NewFlagSet("dapFlash", flag.ExitOnError)
	probeFlags.Register(fs)

	flagPageSize := fs.Int("page-size", godap.DefaultPageSize, "bytes per flash write command")
	flagNoReset := fs.Bool("no-reset", false, "do not reset the target after programming")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: dapFlash [flags] <image.bin>\n")
		fs.PrintDefaults()
	}

	if err := toolflags.Parse(fs, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := toolflags.NewLogger(probeFlags.LogLevel)

	if err != nil {
		logger.Fatal(err)
	}

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	image, err := os.ReadFile(fs.Arg(0))

	if err != nil {
		logger.Fatal(err)
	}

	config, err := probeFlags.Config()

	if err != nil {
		logger.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	setUpSignalHandler(cancel)

	link, err := godap.OpenDapLink(config)

	if err != nil {
		logger.Fatal("error while scanning for probes on your computer: ", err)
	}

	logger.Infof("writing %d bytes in pages of %d bytes", len(image), *flagPageSize)

	link.SubscribeProgress(func(progress float64) {
		fmt.Printf("\rflashing %s: %3.0f%%", fs.Arg(0), progress*100)

		if progress >= 1.0 {
			fmt.Println()
		}
	})

	err = flash(ctx, link, image, *flagPageSize, !*flagNoReset)

	link.Close()
	godap.CloseUSB()

	if err != nil {
		logger.Error("flashing failed: ", err)
		os.Exit(1)
	}

	logger.Info("done")
}

func flash(ctx context.Context, link *godap.DapLink, image []byte, pageSize int, reset bool) error {
	if err := link.Connect(ctx); err != nil {
		return err
	}

	defer link.Disconnect(ctx)

	if reset {
		return link.Program(ctx, image, pageSize)
	}

	if err := link.FlashOpen(ctx); err != nil {
		return err
	}

	if err := link.Flash(ctx, image, pageSize); err != nil {
		return err
	}

	return link.FlashClose(ctx)
}
