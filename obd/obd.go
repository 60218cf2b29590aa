// Package obd is the public interface façade (C10) and reset-confirmation
// guard (C11) spec.md §4.7 describes: open → set_protocol → connect →
// send_request* → disconnect → close, layering reassembly (package
// reassembly) and response decoding (package decode) on top of the raw
// ELM327 driver (package elm).
package obd

import (
	"errors"
	"fmt"
	"time"

	"github.com/obdtool/goobd2/config"
	"github.com/obdtool/goobd2/decode"
	"github.com/obdtool/goobd2/elm"
	"github.com/obdtool/goobd2/internal/obdlog"
	"github.com/obdtool/goobd2/protocol"
	"github.com/obdtool/goobd2/reassembly"
	"github.com/obdtool/goobd2/request"
	"github.com/obdtool/goobd2/serial"

	"github.com/charmbracelet/log"
)

// Mode selects send_request's output granularity (spec.md §4.7).
type Mode int

const (
	// ModeRawFrames returns the raw byte vectors the ELM driver
	// decoded from each response line, unmodified.
	ModeRawFrames Mode = iota
	// ModeBusMessages returns the reassembled []reassembly.BusMessage.
	ModeBusMessages
	// ModeResponses returns the decoded []decode.Response.
	ModeResponses
	// ModeTransform hands the reassembled bus messages to a
	// caller-supplied Transform.
	ModeTransform
)

// ErrIncompleteMessage is raised whenever a bus message reassembled
// from the current RPC cycle was left incomplete (a placeholder frame
// at flush time) — spec.md §4.7: "data-error if any bus message is
// incomplete". ModeTransform is the exception: there the incomplete
// messages are passed to the Transform and this error is not raised.
var ErrIncompleteMessage = errors.New("obd: incomplete bus message")

// Transform reduces a cycle's reassembled bus messages to whatever
// shape the caller wants; the fourth send_request output mode.
type Transform func(msgs []reassembly.BusMessage) (any, error)

// Interface is the façade handle: one serial port, one ELM driver, one
// reassembler (rebuilt whenever the protocol changes), one response
// registry, and the reset-confirmation guard's process-local state.
type Interface struct {
	port        serial.Port
	driver      *elm.Driver
	registry    *decode.Registry
	log         *log.Logger
	reassembler *reassembly.Reassembler
	protocol    protocol.Descriptor
	haveProto   bool
	guard       resetGuard
}

// Open performs the façade's "open" step: baud-rate detection over
// candidateBauds (nil selects elm.BaudCandidates) followed by a full
// cold reset and bring-up (ATZ/ATE0/ATL0/ATH1). port must already be
// open at the ELM's boot baud rate (spec.md §6: 38400, 8N1). logger may
// be nil.
func Open(port serial.Port, logger *log.Logger, candidateBauds []int) (*Interface, error) {
	l := obdlog.Or(logger)
	d := elm.Open(port, l)

	baud, err := d.DetectBaud(candidateBauds)
	if err != nil {
		return nil, fmt.Errorf("obd: open: %w", err)
	}
	l.Debug("obd: detected baud", "baud", baud)

	if err := d.Configure(true); err != nil {
		return nil, fmt.Errorf("obd: open: %w", err)
	}

	return &Interface{
		port:     port,
		driver:   d,
		registry: decode.NewRegistry(),
		log:      l,
		guard:    resetGuard{ttl: config.Default().ResetTokenTTL},
	}, nil
}

// SetResetTokenTTL overrides how long a Service $04 reset-confirmation
// token stays valid before a pending confirmation expires, replacing
// the default Open sets from config.Default().ResetTokenTTL — typically
// with the ResetTokenTTL from a loaded config.Config. ttl <= 0 disables
// expiry.
func (i *Interface) SetResetTokenTTL(ttl time.Duration) {
	i.guard.ttl = ttl
}

// Registry returns the response registry backing ModeResponses, so
// callers can register additional or overriding decoders (spec.md
// §4.5's "registering a decoder is explicit").
func (i *Interface) Registry() *decode.Registry { return i.registry }

// SetProtocol forces the scan tool onto desc and tears down any
// reassembler left over from a previous protocol.
func (i *Interface) SetProtocol(desc protocol.Descriptor) error {
	if err := i.driver.SetProtocol(desc); err != nil {
		return err
	}
	i.adoptProtocol(desc)
	return nil
}

// Connect performs the façade's "connect" step: if a protocol was
// already fixed via SetProtocol, it connects on that protocol;
// otherwise it runs the automatic search order. A silent protocol
// change detected mid-connect is still a successful connect (spec.md
// §9: "preserve it but surface a warning") — callers that care can
// check errors.Is(err, elm.ErrSilentProtocolChange).
func (i *Interface) Connect(onStatus elm.StatusFunc) (protocol.Descriptor, error) {
	var desc protocol.Descriptor
	var err error
	if i.haveProto {
		desc, err = i.driver.Connect(onStatus)
	} else {
		desc, err = i.driver.AutoConnect()
	}
	if err != nil && !errors.Is(err, elm.ErrSilentProtocolChange) {
		return protocol.Descriptor{}, err
	}
	i.adoptProtocol(desc)
	return desc, err
}

// adoptProtocol installs desc as the active protocol and rebuilds the
// reassembler for it, discarding any partially-assembled state from a
// prior protocol.
func (i *Interface) adoptProtocol(desc protocol.Descriptor) {
	i.protocol = desc
	i.haveProto = true
	i.reassembler = reassembly.New(desc, i.log)
}

// Disconnect releases the scan tool's current protocol session (ATPC)
// and discards reassembly state, without closing the serial port.
func (i *Interface) Disconnect() error {
	if i.reassembler != nil {
		i.reassembler.Reset()
	}
	i.haveProto = false
	return i.driver.CloseProtocol()
}

// Close releases the underlying serial port. The Interface must not be
// used afterward.
func (i *Interface) Close() error {
	return i.port.Close()
}

// SendRequest implements send_request: it runs the reset-confirmation
// guard, transmits req, reassembles the resulting frames into this
// cycle's bus messages, and renders them per mode. transform is used
// only for ModeTransform and may be nil otherwise.
func (i *Interface) SendRequest(req request.Request, mode Mode, transform Transform) (any, error) {
	if err := i.guard.check(req); err != nil {
		return nil, err
	}
	if !i.haveProto || i.reassembler == nil {
		return nil, fmt.Errorf("obd: send_request: %w", errNotConnected)
	}

	rawFrames, err := i.driver.SendOBDRequest(req)
	if err != nil {
		return nil, err
	}

	for _, raw := range rawFrames {
		f, err := protocol.ParseFrame(i.protocol, raw)
		if err != nil {
			if errors.Is(err, protocol.ErrIgnorableFrame) {
				continue
			}
			return nil, fmt.Errorf("obd: parse frame: %w", err)
		}
		if err := i.reassembler.Feed(f); err != nil {
			return nil, fmt.Errorf("obd: reassemble: %w", err)
		}
	}
	i.reassembler.Flush()
	msgs := i.reassembler.Drain()

	for _, m := range msgs {
		if m.Incomplete {
			if mode != ModeTransform {
				return nil, ErrIncompleteMessage
			}
			break
		}
	}

	switch mode {
	case ModeRawFrames:
		return rawFrames, nil
	case ModeBusMessages:
		return msgs, nil
	case ModeResponses:
		isCAN := i.protocol.Family == protocol.FamilyISO15765
		responses := make([]decode.Response, 0, len(msgs))
		for _, m := range msgs {
			r, err := i.registry.Create(m.DataBytes, isCAN)
			if err != nil {
				return nil, fmt.Errorf("obd: decode response: %w", err)
			}
			responses = append(responses, r)
		}
		return responses, nil
	case ModeTransform:
		if transform == nil {
			return nil, fmt.Errorf("obd: ModeTransform requires a non-nil Transform")
		}
		return transform(msgs)
	default:
		return nil, fmt.Errorf("obd: unrecognized mode %d", mode)
	}
}

// errNotConnected is returned by SendRequest when called before
// Connect/SetProtocol has established an active protocol.
var errNotConnected = errors.New("obd: not connected")
