// Package serial provides the byte-stream transport between the host and
// an ELM327-family scan tool: configurable baud, a read-until-delimiter
// operation with independent polling and overall timeouts, and buffer
// flushing between commands.
//
// It is built on github.com/pkg/term the same way the reference TNC
// driver this stack is modeled on opens and speaks to its serial link —
// a thin os-independent wrapper around a raw-mode tty.
package serial

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pkg/term"
)

// MinPollInterval is the smallest interval shrink we allow (ε in spec
// terms) before giving up on shrinking further and just using whatever
// time remains.
const MinPollInterval = time.Millisecond

// ErrIntervalTimeout is returned when the polling interval elapses with
// no byte received.
var ErrIntervalTimeout = errors.New("serial: interval timeout")

// ErrReadTimeout is returned when the overall deadline elapses before the
// delimiter was seen, regardless of how recently a byte arrived.
var ErrReadTimeout = errors.New("serial: read timeout")

// TimeoutError carries whatever partial response had accumulated when a
// ReadUntil call failed, per spec.md §7 (timeout errors "carry whatever
// partial response accumulated").
type TimeoutError struct {
	Err     error
	Partial []byte
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s (partial=%q)", e.Err, e.Partial)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Port is the minimal contract the rest of the stack needs from a serial
// transport. Port is satisfied both by *Device and by the pty-backed test
// double in serial/serialtest.
type Port interface {
	Write(data []byte) (int, error)
	ReadUntil(delimiter []byte, overall, interval time.Duration) ([]byte, error)
	SetTimeout(overall time.Duration, interval ...time.Duration)
	SetBaudrate(baud int) error
	Baudrate() int
	ClearRx() error
	ClearTx() error
	Close() error
}

// timedReader is the subset of *term.Term that ReadUntil drives. It is
// factored out so the pty-backed test double in serial/serialtest can
// reuse the exact same polling algorithm.
type timedReader interface {
	SetReadTimeout(d time.Duration) error
	Read(p []byte) (int, error)
}

// Device is a real serial port reached through github.com/pkg/term.
type Device struct {
	name    string
	t       *term.Term
	baud    int
	overall time.Duration
	poll    time.Duration
}

// Open opens devicename (e.g. "/dev/ttyUSB0") at the given initial baud
// (38400 is the ELM327 power-on default per spec.md §6) with an overall
// timeout of 2s, matching the default external interface in spec.md §6.
func Open(devicename string, baud int) (*Device, error) {
	t, err := term.Open(devicename, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", devicename, err)
	}
	d := &Device{
		name:    devicename,
		t:       t,
		baud:    baud,
		overall: 2 * time.Second,
		poll:    2 * time.Second,
	}
	if baud != 0 {
		if err := d.SetBaudrate(baud); err != nil {
			t.Close()
			return nil, err
		}
	}
	return d, nil
}

// Write flushes both buffers, then transmits data in full. The caller
// never observes a partial write: on short writes we retry until data is
// exhausted or an error occurs.
func (d *Device) Write(data []byte) (int, error) {
	if err := d.ClearRx(); err != nil {
		return 0, err
	}
	if err := d.ClearTx(); err != nil {
		return 0, err
	}
	total := 0
	for total < len(data) {
		n, err := d.t.Write(data[total:])
		if err != nil {
			return total, fmt.Errorf("serial: write: %w", err)
		}
		if n == 0 {
			return total, fmt.Errorf("serial: write: no progress")
		}
		total += n
	}
	return total, nil
}

// SetTimeout sets the overall deadline and, optionally, the polling
// interval (defaults to the overall deadline when omitted).
func (d *Device) SetTimeout(overall time.Duration, interval ...time.Duration) {
	d.overall = overall
	if len(interval) > 0 {
		d.poll = interval[0]
	} else {
		d.poll = overall
	}
}

// SetBaudrate changes the line speed.
func (d *Device) SetBaudrate(baud int) error {
	if err := d.t.SetSpeed(baud); err != nil {
		return fmt.Errorf("serial: set baud %d: %w", baud, err)
	}
	d.baud = baud
	return nil
}

// Baudrate returns the last baud rate successfully set.
func (d *Device) Baudrate() int { return d.baud }

// ClearRx discards any unread input.
func (d *Device) ClearRx() error {
	if err := d.t.Flush(); err != nil {
		return fmt.Errorf("serial: flush rx: %w", err)
	}
	return nil
}

// ClearTx discards any unsent output. pkg/term exposes a single combined
// flush; we call it from both ClearRx and ClearTx so callers can reason
// about the two independently even though the underlying tcflush call is
// shared.
func (d *Device) ClearTx() error {
	if err := d.t.Flush(); err != nil {
		return fmt.Errorf("serial: flush tx: %w", err)
	}
	return nil
}

// Close releases the underlying file descriptor. Any reader blocked in
// ReadUntil observes the resulting error as an interface error, giving
// callers cancellation-via-close as described in spec.md §5.
func (d *Device) Close() error {
	return d.t.Close()
}

// ReadUntil accumulates bytes until the tail of the buffer equals
// delimiter, honoring two independent time budgets: overall is the total
// wall-clock budget for the whole call; interval is the maximum time
// that may elapse without receiving any byte. 0x00 bytes are discarded
// from the stream per the ELM327 datasheet (they appear spuriously after
// some resets).
func (d *Device) ReadUntil(delimiter []byte, overall, interval time.Duration) ([]byte, error) {
	return readUntil(d.t, delimiter, overall, interval)
}

// readUntil implements the shared polling algorithm described in
// spec.md §4.1: to avoid overshooting the overall deadline by a full
// polling interval, once the remaining deadline drops below interval
// (and remains >= MinPollInterval) the effective interval for that
// attempt is shrunk to half the remaining time. The caller's configured
// interval is never mutated; shrinking only affects the per-attempt
// SetReadTimeout call.
func readUntil(r timedReader, delimiter []byte, overall, interval time.Duration) ([]byte, error) {
	if len(delimiter) == 0 {
		return nil, fmt.Errorf("serial: empty delimiter")
	}

	deadline := time.Now().Add(overall)
	buf := make([]byte, 0, 64)
	one := make([]byte, 1)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return buf, &TimeoutError{Err: ErrReadTimeout, Partial: append([]byte(nil), buf...)}
		}

		effectiveInterval := interval
		if remaining < interval {
			if remaining >= MinPollInterval {
				effectiveInterval = remaining / 2
				if effectiveInterval < MinPollInterval {
					effectiveInterval = MinPollInterval
				}
			} else {
				effectiveInterval = remaining
			}
		}

		if err := r.SetReadTimeout(effectiveInterval); err != nil {
			return buf, fmt.Errorf("serial: set read timeout: %w", err)
		}

		n, err := r.Read(one)
		if n == 0 {
			if err != nil {
				return buf, fmt.Errorf("serial: read: %w", err)
			}
			// SetReadTimeout elapsed with nothing received.
			if time.Now().After(deadline) {
				return buf, &TimeoutError{Err: ErrReadTimeout, Partial: append([]byte(nil), buf...)}
			}
			return buf, &TimeoutError{Err: ErrIntervalTimeout, Partial: append([]byte(nil), buf...)}
		}

		if one[0] == 0x00 {
			continue
		}

		buf = append(buf, one[0])
		if hasSuffix(buf, delimiter) {
			return buf, nil
		}
	}
}

// fileDeadlineReader adapts an *os.File (as used by a pty pair) to the
// timedReader contract via SetReadDeadline, the portable equivalent of
// pkg/term's VTIME-based SetReadTimeout for a file that isn't a real
// tty. ReadUntilForTest wraps it so serial/serialtest can drive the
// identical ReadUntil algorithm against a pty double.
type fileDeadlineReader struct{ f *os.File }

func (r fileDeadlineReader) SetReadTimeout(d time.Duration) error {
	return r.f.SetReadDeadline(time.Now().Add(d))
}

func (r fileDeadlineReader) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	if err != nil && os.IsTimeout(err) {
		return n, nil
	}
	return n, err
}

// ReadUntilForTest runs the same ReadUntil algorithm as Device.ReadUntil
// against an arbitrary *os.File (typically one end of a pty pair). It
// exists for serial/serialtest, which has no access to the unexported
// readUntil helper.
func ReadUntilForTest(f *os.File, delimiter []byte, overall, interval time.Duration) ([]byte, error) {
	return readUntil(fileDeadlineReader{f: f}, delimiter, overall, interval)
}

func hasSuffix(buf, delim []byte) bool {
	if len(buf) < len(delim) {
		return false
	}
	for i := range delim {
		if buf[len(buf)-len(delim)+i] != delim[i] {
			return false
		}
	}
	return true
}
