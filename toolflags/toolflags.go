// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package toolflags holds the command line handling shared by the godap
// tools: probe selection flags, environment defaults and log output.
package toolflags

import (
	"fmt"
	"os"
	"strings"

	"github.com/bbnote/godap"
	"github.com/google/gousb"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// EnvPrefix is prepended to the upper cased flag name to find the
// environment variable used for a flag not given on the command line.
const EnvPrefix = "GODAP_"

// ProbeFlags selects and configures the probe to open.
type ProbeFlags struct {
	Vid      uint16
	Pid      uint16
	Serial   string
	Kind     string
	Mode     string
	ClockHz  uint32
	LogLevel string
}

// Register adds the probe flags to fs.
func (p *ProbeFlags) Register(fs *pflag.FlagSet) {
	fs.Uint16Var(&p.Vid, "vid", godap.AllSupportedVIds, "USB vendor id of the probe")
	fs.Uint16Var(&p.Pid, "pid", godap.AllSupportedPIds, "USB product id of the probe")
	fs.StringVar(&p.Serial, "serial", "", "serial number of the probe")
	fs.StringVar(&p.Kind, "transport", "auto", "probe transport: auto, hid (CMSIS-DAP v1) or bulk (CMSIS-DAP v2)")
	fs.StringVar(&p.Mode, "mode", "swd", "debug port: default, swd or jtag")
	fs.Uint32Var(&p.ClockHz, "clock", 1000000, "SWJ clock in Hz")
	fs.StringVarP(&p.LogLevel, "log-level", "v", "info", "logging verbosity (panic, fatal, error, warn, info, debug, trace)")
}

// Config turns the flags into a probe configuration.
func (p *ProbeFlags) Config() (*godap.DapInterfaceConfig, error) {
	mode, err := godap.ParseConnectMode(p.Mode)

	if err != nil {
		return nil, err
	}

	kind, err := godap.ParseTransportKind(p.Kind)

	if err != nil {
		return nil, err
	}

	config := godap.NewDapConfig(gousb.ID(p.Vid), gousb.ID(p.Pid), mode, p.Serial, p.ClockHz)
	config.Kind = kind

	return config, nil
}

// Parse parses the command line into fs and fills every flag not given
// there from its environment variable.
func Parse(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}

	nonset := make(map[string]*pflag.Flag)

	fs.VisitAll(func(f *pflag.Flag) {
		nonset[f.Name] = f
	})
	fs.Visit(func(f *pflag.Flag) {
		delete(nonset, f.Name)
	})

	for name, f := range nonset {
		envVar := os.Getenv(EnvName(name))

		if envVar == "" {
			continue
		}

		if err := f.Value.Set(envVar); err != nil {
			return fmt.Errorf("invalid value '%s' in %s: %v", envVar, EnvName(name), err)
		}

		f.Changed = true
	}

	return nil
}

func EnvName(flagName string) string {
	flagName = strings.ToUpper(flagName)
	flagName = strings.Replace(flagName, "-", "_", -1)
	return EnvPrefix + flagName
}

// NewLogger returns a logger writing prefixed, time stamped lines to
// stdout and hands it to the library.
func NewLogger(level string) (*logrus.Logger, error) {
	formatter := &prefixed.TextFormatter{
		DisableColors:   false,
		TimestampFormat: "15:04:05",
		FullTimestamp:   true,
		ForceFormatting: true,
	}

	logger := logrus.New()

	logger.SetFormatter(formatter)
	logger.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(level)

	if err != nil {
		return logger, err
	}

	logger.SetLevel(lvl)
	godap.SetLogger(logger)

	return logger, nil
}
