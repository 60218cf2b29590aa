// Command obdcat is a minimal sample CLI over package obd: open a
// serial port, auto-detect baud, negotiate a bus protocol, and print
// the decoded response to a single Service $01 PID query.
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/obdtool/goobd2/config"
	"github.com/obdtool/goobd2/decode"
	"github.com/obdtool/goobd2/obd"
	"github.com/obdtool/goobd2/protocol"
	"github.com/obdtool/goobd2/request"
	"github.com/obdtool/goobd2/serial"

	"github.com/spf13/pflag"
)

func main() {
	var (
		port       = pflag.StringP("port", "p", "", "Serial device the scan tool is attached to (required).")
		protoName  = pflag.String("protocol", "", "Force a bus protocol instead of auto-detecting: pwm, vpw, iso9141, kwp-fast, kwp-5baud, can11-500, can11-250, can29-500, can29-250.")
		baud       = pflag.IntP("baud", "b", 38400, "Serial port baud rate to open the device at.")
		timeout    = pflag.Duration("timeout", 0, "Override the serial read timeout from the config file.")
		configPath = pflag.StringP("config", "c", "", "Path to a goobd2.yaml config file. If unset, the usual search locations are tried.")
		pid        = pflag.StringP("pid", "P", "0C", "Service $01 PID to query, in hex (e.g. 0C for engine RPM).")
		help       = pflag.BoolP("help", "h", false, "Display help text.")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: obdcat --port PORT [flags]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		return
	}
	if *port == "" {
		fmt.Fprintln(os.Stderr, "obdcat: --port is required")
		pflag.Usage()
		os.Exit(2)
	}

	if err := run(*port, *protoName, *baud, *timeout, *configPath, *pid); err != nil {
		fmt.Fprintf(os.Stderr, "obdcat: %v\n", err)
		os.Exit(1)
	}
}

func run(portName, protoName string, baud int, timeout time.Duration, configPath, pidHex string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if timeout > 0 {
		cfg.SerialOverallTimeout = timeout
	}

	pidByte, err := strconv.ParseUint(pidHex, 16, 8)
	if err != nil {
		return fmt.Errorf("parse --pid %q: %w", pidHex, err)
	}

	dev, err := serial.Open(portName, baud)
	if err != nil {
		return fmt.Errorf("open %s: %w", portName, err)
	}
	defer dev.Close()
	dev.SetTimeout(cfg.SerialOverallTimeout, cfg.SerialPollInterval)

	iface, err := obd.Open(dev, nil, cfg.CandidateBauds)
	if err != nil {
		return fmt.Errorf("open interface: %w", err)
	}
	defer iface.Close()
	iface.SetResetTokenTTL(cfg.ResetTokenTTL)

	if protoName != "" {
		desc, err := parseProtocolFlag(protoName)
		if err != nil {
			return err
		}
		if err := iface.SetProtocol(desc); err != nil {
			return fmt.Errorf("set protocol: %w", err)
		}
	}

	desc, err := iface.Connect(func(line string) {
		fmt.Fprintf(os.Stderr, "obdcat: %s\n", line)
	})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	fmt.Fprintf(os.Stderr, "obdcat: connected on %s\n", desc.Name())
	defer iface.Disconnect()

	result, err := iface.SendRequest(request.NewOBDRequestPID(0x01, byte(pidByte)), obd.ModeResponses, nil)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	responses, ok := result.([]decode.Response)
	if !ok {
		return fmt.Errorf("unexpected result type %T", result)
	}
	for _, r := range responses {
		for _, v := range r.Values() {
			fmt.Printf("%s: %s\n", v.Label, v.String())
		}
	}
	return nil
}

// parseProtocolFlag maps a --protocol flag value to its protocol.Descriptor.
func parseProtocolFlag(name string) (protocol.Descriptor, error) {
	switch name {
	case "pwm":
		return protocol.J1850PWM(), nil
	case "vpw":
		return protocol.J1850VPW(), nil
	case "iso9141":
		return protocol.ISO9141_2(), nil
	case "kwp-fast":
		return protocol.ISO14230_4Fast(), nil
	case "kwp-5baud":
		return protocol.ISO14230_4FiveBaud(), nil
	case "can11-500":
		return protocol.ISO15765_4(11, 500000)
	case "can11-250":
		return protocol.ISO15765_4(11, 250000)
	case "can29-500":
		return protocol.ISO15765_4(29, 500000)
	case "can29-250":
		return protocol.ISO15765_4(29, 250000)
	default:
		return protocol.Descriptor{}, fmt.Errorf("unknown --protocol %q", name)
	}
}
