// Package elm drives an ELM327-family scan tool's ASCII command/response
// dialect over a [serial.Port]: AT command framing, baud-rate detection,
// the connect-time state machine, and the per-line error taxonomy
// spec.md §4.6 (C9) describes.
package elm

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/obdtool/goobd2/internal/obdlog"
	"github.com/obdtool/goobd2/protocol"
	"github.com/obdtool/goobd2/request"
	"github.com/obdtool/goobd2/serial"

	"github.com/charmbracelet/log"
)

// prompt is the ELM327 command-prompt delimiter every response ends
// with.
var prompt = []byte(">")

// BaudCandidates is the order Driver.DetectBaud tries candidate baud
// rates in, per spec.md §4.6.
var BaudCandidates = []int{38400, 9600, 230400, 115200, 57600, 19200}

// baudProbeTimeout is the short per-candidate timeout spec.md §4.6
// gives baud detection ("≈30 ms").
const baudProbeTimeout = 30 * time.Millisecond

// defaultATTimeout is the overall/interval budget for ordinary AT
// commands, which spec.md §6 doesn't pin down beyond the connect
// sequence's own timeouts.
const defaultATTimeout = 2 * time.Second

// obdOverallTimeout/obdPollInterval are the timeouts spec.md §4.6
// requires for "Send OBD message".
const (
	obdOverallTimeout = 9900 * time.Millisecond
	obdPollInterval   = 3000 * time.Millisecond
)

// connectOverallTimeout/connectPollInterval bound the initial "0100"
// probe; spec.md doesn't name an exact figure, so this uses the same
// budget as a normal OBD request, generous enough to cover ELM bus
// auto-init searches.
const (
	connectOverallTimeout = 9900 * time.Millisecond
	connectPollInterval   = 3000 * time.Millisecond
)

// searchEntry is one candidate in the automatic protocol search order
// of spec.md §4.6, with its minimum inter-attempt delay.
type searchEntry struct {
	Descriptor protocol.Descriptor
	Delay      time.Duration
}

// autoSearchOrder is spec.md §4.6's automatic search order.
func autoSearchOrder() []searchEntry {
	iso11500, _ := protocol.ISO15765_4(11, 500000)
	iso11250, _ := protocol.ISO15765_4(11, 250000)
	iso29500, _ := protocol.ISO15765_4(29, 500000)
	iso29250, _ := protocol.ISO15765_4(29, 250000)
	return []searchEntry{
		{protocol.J1850PWM(), time.Second},
		{protocol.J1850VPW(), 0},
		{protocol.ISO9141_2(), 5 * time.Second},
		{protocol.ISO14230_4FiveBaud(), 5 * time.Second},
		{protocol.ISO14230_4Fast(), 0},
		{iso11500, 0},
		{iso11250, 0},
		{iso29500, 0},
		{iso29250, 0},
	}
}

// Driver is the ELM327 ASCII command/response driver (C9). It holds no
// knowledge of reassembly or decoding — those are layered on top by
// package obd — only the AT dialect, connect/search state machine, and
// the raw byte frames a "Send OBD message" cycle produces.
type Driver struct {
	port       serial.Port
	log        *log.Logger
	sleep      func(time.Duration)
	configured bool
	protocol   *protocol.Descriptor
}

// Open wraps an already-open serial.Port with the ELM driver. logger may
// be nil.
func Open(port serial.Port, logger *log.Logger) *Driver {
	return &Driver{
		port:  port,
		log:   obdlog.Or(logger),
		sleep: time.Sleep,
	}
}

// Configured reports whether Configure last completed successfully.
func (d *Driver) Configured() bool { return d.configured }

// Protocol returns the last protocol descriptor QueryProtocol or
// Connect observed, if any.
func (d *Driver) Protocol() (protocol.Descriptor, bool) {
	if d.protocol == nil {
		return protocol.Descriptor{}, false
	}
	return *d.protocol, true
}

// SendATCommand sends cmd (without its CR) and returns the response
// with the trailing prompt and surrounding CRs stripped, per spec.md
// §4.6's "AT command dialect".
func (d *Driver) SendATCommand(cmd string) (string, error) {
	raw, err := d.writeAndRead(cmd, defaultATTimeout, defaultATTimeout)
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSuffix(string(raw), ">"), "\r\n "), nil
}

// DetectBaud tries each candidate baud rate in order, sending the
// two-sentinel-byte probe spec.md §4.6 describes (guarding against a
// partial eaten byte on the previous baud) and accepting the first
// candidate whose response ends with "\r\r>".
func (d *Driver) DetectBaud(candidates []int) (int, error) {
	if candidates == nil {
		candidates = BaudCandidates
	}
	for _, baud := range candidates {
		if err := d.port.SetBaudrate(baud); err != nil {
			continue
		}
		if err := d.port.ClearRx(); err != nil {
			continue
		}
		if err := d.port.ClearTx(); err != nil {
			continue
		}
		if _, err := d.port.Write([]byte("\x7F\x7F\r")); err != nil {
			continue
		}
		resp, err := d.port.ReadUntil(prompt, baudProbeTimeout, baudProbeTimeout)
		if err != nil {
			continue
		}
		if strings.HasSuffix(string(resp), "\r\r>") {
			return baud, nil
		}
	}
	return 0, ErrBaudNotDetected
}

// Configure runs the post-baud-lock bring-up sequence: a reset (ATZ for
// a full/cold reset, ATWS for a warm reset), then echo off, linefeed
// off, headers on. Configure is idempotent; a partial failure leaves
// Configured() false so callers can retry.
func (d *Driver) Configure(fullReset bool) error {
	d.configured = false
	resetCmd := "ATWS"
	if fullReset {
		resetCmd = "ATZ"
	}
	for _, cmd := range []string{resetCmd, "ATE0", "ATL0", "ATH1"} {
		if _, err := d.SendATCommand(cmd); err != nil {
			return fmt.Errorf("elm: configure %s: %w", cmd, err)
		}
	}
	d.configured = true
	return nil
}

// StatusFunc receives the transient status lines ("SEARCHING...",
// "BUS INIT: ...") spec.md §4.6 says Connect must surface to the
// caller.
type StatusFunc func(line string)

// Connect transmits Service $01 PID $00 (mandatory on every OBD-II
// vehicle) and interprets the response: status prefixes are forwarded
// to onStatus (which may be nil), terminal failure tokens are mapped to
// the appropriate interface/vehicle error, and on success the
// negotiated protocol is queried via ATDPN and cached.
func (d *Driver) Connect(onStatus StatusFunc) (protocol.Descriptor, error) {
	raw, err := d.writeAndRead("0100", connectOverallTimeout, connectPollInterval)
	if err != nil {
		return protocol.Descriptor{}, err
	}
	for _, line := range splitLines(raw) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "SEARCHING..." {
			if onStatus != nil {
				onStatus(line)
			}
			continue
		}
		if strings.HasPrefix(line, "BUS INIT:") {
			if onStatus != nil {
				onStatus(line)
			}
			if !strings.HasSuffix(line, "OK") {
				return protocol.Descriptor{}, fmt.Errorf("elm: %s: %w", line, ErrBusError)
			}
			continue
		}
		if line == "UNABLE TO CONNECT" {
			return protocol.Descriptor{}, fmt.Errorf("elm: %w", ErrConnectionError)
		}
		if err := classifyLine(line); err != nil {
			return protocol.Descriptor{}, err
		}
		// Any other non-empty line is the 0100 response itself; its
		// content isn't needed here, only the fact that it arrived
		// without triggering an error above.
	}
	return d.QueryProtocol()
}

// QueryProtocol asks the scan tool which protocol it negotiated (ATDPN)
// and caches it. If a protocol was already cached and ATDPN now reports
// something different, the new descriptor is still returned (and
// cached) but wrapped in ErrSilentProtocolChange so callers can decide
// whether that's fatal.
func (d *Driver) QueryProtocol() (protocol.Descriptor, error) {
	resp, err := d.SendATCommand("ATDPN")
	if err != nil {
		return protocol.Descriptor{}, err
	}
	desc, err := parseProtocolCode(strings.TrimSpace(resp))
	if err != nil {
		return protocol.Descriptor{}, err
	}
	if d.protocol != nil && !d.protocol.Equal(desc) {
		old := d.protocol.Name()
		d.log.Warn("elm: scan tool protocol changed without request",
			"was", old, "now", desc.Name())
		d.protocol = &desc
		return desc, fmt.Errorf("elm: was %s, now %s: %w", old, desc.Name(), ErrSilentProtocolChange)
	}
	d.protocol = &desc
	return desc, nil
}

// SetProtocol forces the scan tool onto desc via ATSP, the command
// spec.md's C10 façade "set_protocol" operation actually transmits
// (supplemented from original_source/pyobd2; see SPEC_FULL.md).
func (d *Driver) SetProtocol(desc protocol.Descriptor) error {
	code, err := protocolNumber(desc)
	if err != nil {
		return err
	}
	if _, err := d.SendATCommand("ATSP" + code); err != nil {
		return fmt.Errorf("elm: set protocol %s: %w", desc.Name(), err)
	}
	return nil
}

// Identify sends ATI, the scan tool's chip/firmware identification
// string (e.g. "ELM327 v2.1").
func (d *Driver) Identify() (string, error) {
	return d.SendATCommand("ATI")
}

// ExtendedIdentify sends STI, the extended identification string some
// ELM-compatible clones report in place of (or alongside) ATI.
func (d *Driver) ExtendedIdentify() (string, error) {
	return d.SendATCommand("STI")
}

// SetBaudDivisor sends ATBRD, requesting the scan tool switch to the
// baud rate divisor divisor encodes (spec.md §6's AT subset). The scan
// tool echoes "OK" to accept the new rate at its next command; callers
// must then call port.SetBaudrate themselves to match.
func (d *Driver) SetBaudDivisor(divisor byte) error {
	resp, err := d.SendATCommand(fmt.Sprintf("ATBRD%02X", divisor))
	if err != nil {
		return err
	}
	if !strings.Contains(resp, "OK") {
		return fmt.Errorf("elm: set baud divisor: unexpected response %q", resp)
	}
	return nil
}

// CloseProtocol sends ATPC, releasing the scan tool's current protocol
// session without closing the serial port itself — the counterpart to
// Connect/AutoConnect in the façade's connect/disconnect lifecycle.
func (d *Driver) CloseProtocol() error {
	if _, err := d.SendATCommand("ATPC"); err != nil {
		return fmt.Errorf("elm: close protocol: %w", err)
	}
	d.protocol = nil
	return nil
}

// AutoConnect tries every protocol in spec.md §4.6's automatic search
// order, using ATTP (try-protocol, not persisted) for each attempt. On
// a ConnectionError it sleeps the listed inter-attempt delay and
// advances; any other error is returned immediately.
func (d *Driver) AutoConnect() (protocol.Descriptor, error) {
	for _, entry := range autoSearchOrder() {
		code, err := protocolNumber(entry.Descriptor)
		if err != nil {
			continue
		}
		if _, err := d.SendATCommand("ATTP" + code); err != nil {
			return protocol.Descriptor{}, err
		}
		desc, err := d.Connect(nil)
		if err == nil {
			return desc, nil
		}
		if errors.Is(err, ErrConnectionError) {
			if entry.Delay > 0 {
				d.sleep(entry.Delay)
			}
			continue
		}
		return protocol.Descriptor{}, err
	}
	return protocol.Descriptor{}, ErrProtocolNotDetected
}

// SendOBDRequest serializes req as uppercase hex bytes and transmits it
// per spec.md §4.6's "Send OBD message", returning the raw byte vector
// decoded from each non-empty response line. A line matching the error
// taxonomy of spec.md §4.6 aborts with the corresponding error; any
// frames already parsed from earlier lines in the same response are
// still returned alongside it so a caller doing partial recovery has
// something to flush.
func (d *Driver) SendOBDRequest(req request.Request) ([][]byte, error) {
	line := hexLine(req.Bytes())
	raw, err := d.writeAndRead(line, obdOverallTimeout, obdPollInterval)
	if err != nil {
		return nil, err
	}
	var frames [][]byte
	for _, l := range splitLines(raw) {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if err := classifyLine(l); err != nil {
			return frames, err
		}
		b, err := LineToBytes(l)
		if err != nil {
			return frames, fmt.Errorf("elm: parse response line %q: %w", l, err)
		}
		frames = append(frames, b)
	}
	return frames, nil
}

// writeAndRead sends cmd+CR and reads until the prompt, with the given
// timeouts.
func (d *Driver) writeAndRead(cmd string, overall, interval time.Duration) ([]byte, error) {
	if _, err := d.port.Write([]byte(cmd + "\r")); err != nil {
		return nil, fmt.Errorf("elm: write %q: %w", cmd, err)
	}
	resp, err := d.port.ReadUntil(prompt, overall, interval)
	if err != nil {
		return resp, err
	}
	return resp, nil
}

// hexLine renders data as the uppercase, space-separated hex ELM327
// requests use.
func hexLine(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

// splitLines splits a raw ELM response (CR-delimited lines, trailing
// prompt) into its constituent lines, dropping the prompt itself.
func splitLines(raw []byte) []string {
	s := strings.TrimSuffix(string(raw), ">")
	return strings.Split(s, "\r")
}

// LineToBytes decodes one ASCII response line into raw bytes: spaces
// stripped, and if the resulting hex-digit count is odd, left-padded
// with five zero nibbles (spec.md §4.6) — this is what pads an 11-bit
// CAN header's 3 hex digits out to the 4-byte (8 nibble) form every
// header in the system carries.
func LineToBytes(line string) ([]byte, error) {
	s := strings.ReplaceAll(line, " ", "")
	if len(s)%2 != 0 {
		s = "00000" + s
	}
	b := make([]byte, len(s)/2)
	for i := 0; i < len(b); i++ {
		v, err := strconv.ParseUint(s[2*i:2*i+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("elm: invalid hex %q: %w", s, err)
		}
		b[i] = byte(v)
	}
	return b, nil
}

var errCodePattern = regexp.MustCompile(`^ERR\d\d$`)

// classifyLine maps one response line to the spec.md §4.6 error
// taxonomy, or returns nil if the line carries no error condition (a
// plain hex data line, or a line classifyLine has no opinion about).
func classifyLine(line string) error {
	switch {
	case line == "?":
		return fmt.Errorf("elm: %w", ErrCommandNotSupported)
	case line == "NO DATA":
		return fmt.Errorf("elm: no data: %w", ErrDataError)
	case line == "BUS BUSY", line == "DATA ERROR", strings.Contains(line, "<DATA ERROR"):
		return fmt.Errorf("elm: %s: %w", line, ErrDataError)
	case line == "BUS ERROR", line == "FB ERROR", line == "LV RESET":
		return fmt.Errorf("elm: %s: %w", line, ErrBusError)
	case line == "CAN ERROR", line == "RX ERROR":
		return fmt.Errorf("elm: %s: %w", line, ErrProtocolError)
	case line == "BUFFER FULL":
		return fmt.Errorf("elm: %w", ErrBufferOverflow)
	case line == "ERR94":
		return fmt.Errorf("elm: %w", ErrFatalCANBus)
	case errCodePattern.MatchString(line):
		return fmt.Errorf("elm: %s: %w", line, ErrELMInternal)
	case strings.HasPrefix(line, "STOPPED"):
		return fmt.Errorf("elm: %w", ErrInterfaceBusy)
	case line == "ERROR":
		return fmt.Errorf("elm: %w", ErrELMInternal)
	default:
		return nil
	}
}

// parseProtocolCode maps an ATDPN result (one hex digit, optionally
// prefixed "A" for an automatically-selected protocol) to a protocol
// descriptor, per spec.md §4.6.
func parseProtocolCode(code string) (protocol.Descriptor, error) {
	code = strings.TrimPrefix(code, "A")
	switch code {
	case "1":
		return protocol.J1850PWM(), nil
	case "2":
		return protocol.J1850VPW(), nil
	case "3":
		return protocol.ISO9141_2(), nil
	case "4":
		return protocol.ISO14230_4FiveBaud(), nil
	case "5":
		return protocol.ISO14230_4Fast(), nil
	case "6":
		return protocol.ISO15765_4(11, 500000)
	case "7":
		return protocol.ISO15765_4(29, 500000)
	case "8":
		return protocol.ISO15765_4(11, 250000)
	case "9":
		return protocol.ISO15765_4(29, 250000)
	case "A":
		return protocol.J1939(), nil
	default:
		return protocol.Descriptor{}, fmt.Errorf("elm: unrecognized ATDPN code %q", code)
	}
}

// protocolNumber is the inverse of parseProtocolCode, for ATSP/ATTP.
func protocolNumber(d protocol.Descriptor) (string, error) {
	switch d.Family {
	case protocol.FamilyJ1850:
		if d.Variant == protocol.VariantPWM {
			return "1", nil
		}
		return "2", nil
	case protocol.FamilyISO9141:
		return "3", nil
	case protocol.FamilyISO14230:
		if d.Variant == protocol.Variant5Baud {
			return "4", nil
		}
		return "5", nil
	case protocol.FamilyISO15765:
		switch {
		case d.IDLength == 11 && d.Baud == 500000:
			return "6", nil
		case d.IDLength == 29 && d.Baud == 500000:
			return "7", nil
		case d.IDLength == 11 && d.Baud == 250000:
			return "8", nil
		case d.IDLength == 29 && d.Baud == 250000:
			return "9", nil
		}
	case protocol.FamilyJ1939:
		return "A", nil
	}
	return "", fmt.Errorf("elm: no ELM protocol number for %s", d.Name())
}
