// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bbnote/godap"
	"github.com/bbnote/godap/toolflags"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

var (
	logger *logrus.Logger
)

func setUpSignalHandler(cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)

	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-signals
		cancel()
	}()
}

func listPorts() error {
	ports, err := enumerator.GetDetailedPortsList()

	if err != nil {
		return err
	}

	for _, port := range ports {
		if port.IsUSB {
			fmt.Printf("%s\t[%s:%s] %s\n", port.Name, port.VID, port.PID, port.SerialNumber)
		} else {
			fmt.Println(port.Name)
		}
	}

	return nil
}

// forward copies everything received on the host port to the target.
func forward(ctx context.Context, port serial.Port, link *godap.DapLink, errs chan<- error) {
	buf := make([]byte, 256)

	for ctx.Err() == nil {
		n, err := port.Read(buf)

		if err != nil {
			errs <- err
			return
		}

		if n == 0 {
			continue
		}

		if err := link.SerialWriteBytes(ctx, buf[:n]); err != nil {
			errs <- err
			return
		}
	}
}

// forwardStdin sends every line typed on stdin to the target.
func forwardStdin(ctx context.Context, link *godap.DapLink, errs chan<- error) {
	scanner := bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		if err := link.SerialWrite(ctx, scanner.Text()+"\n"); err != nil {
			errs <- err
			return
		}
	}
}

func main() {
	var probeFlags toolflags.ProbeFlags

	fs := flag.NewFlagSet("dapSerial", flag.ExitOnError)
	probeFlags.Register(fs)

	flagBaudrate := fs.Uint32P("baud", "b", godap.DefaultBaudrate, "baud rate of the target UART")
	flagInterval := fs.Duration("interval", godap.DefaultSerialDelay, "poll interval")
	flagBridge := fs.String("bridge", "", "host serial port mirroring the target UART")
	flagListPorts := fs.Bool("list-ports", false, "list host serial ports and exit")
	flagNoStdin := fs.Bool("no-stdin", false, "do not forward stdin to the target")

	if err := toolflags.Parse(fs, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var err error

	logger, err = toolflags.NewLogger(probeFlags.LogLevel)

	if err != nil {
		logger.Fatal(err)
	}

	if *flagListPorts {
		if err := listPorts(); err != nil {
			logger.Fatal(err)
		}

		return
	}

	config, err := probeFlags.Config()

	if err != nil {
		logger.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	setUpSignalHandler(cancel)

	var bridge serial.Port

	if *flagBridge != "" {
		bridge, err = serial.Open(*flagBridge, &serial.Mode{
			BaudRate: int(*flagBaudrate),
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})

		if err != nil {
			logger.Fatalf("could not open bridge port %s: %v", *flagBridge, err)
		}

		defer bridge.Close()
	}

	link, err := godap.OpenDapLink(config)

	if err != nil {
		logger.Fatal("error while scanning for probes on your computer: ", err)
	}

	err = run(ctx, link, bridge, *flagBaudrate, *flagInterval, !*flagNoStdin)

	link.Close()
	godap.CloseUSB()

	if err != nil && err != context.Canceled {
		logger.Error(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, link *godap.DapLink, bridge serial.Port, baudrate uint32,
	interval time.Duration, stdin bool) error {

	if err := link.Connect(ctx); err != nil {
		return err
	}

	defer link.Disconnect(context.Background())

	if err := link.SetSerialBaudrate(ctx, baudrate); err != nil {
		return err
	}

	if rate, err := link.GetSerialBaudrate(ctx); err == nil {
		logger.Infof("target UART running at %d baud", rate)
	}

	link.SubscribeSerial(func(data string) {
		fmt.Print(data)

		if bridge != nil {
			if _, err := bridge.Write([]byte(data)); err != nil {
				logger.Warnf("bridge write failed: %v", err)
			}
		}
	})

	errs := make(chan error, 3)

	if bridge != nil {
		go forward(ctx, bridge, link, errs)
	}

	if stdin {
		go forwardStdin(ctx, link, errs)
	}

	go func() {
		errs <- link.StartSerialRead(ctx, interval, false)
	}()

	select {
	case err := <-errs:
		link.StopSerialRead()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
