// Package serialtest provides an in-process scan-tool double for testing
// the elm and obd packages without real hardware. It opens a pty pair
// with github.com/creack/pty — the same role the reference TNC driver's
// own pty-based serial harness plays, kept here as a test collaborator
// rather than promoted into the core per spec.md §1.
package serialtest

import (
	"fmt"
	"os"
	"time"

	"github.com/creack/pty"

	"github.com/obdtool/goobd2/serial"
)

// Pair is a connected (host, scanTool) pty pair. Host implements
// serial.Port and is what you hand to elm.Open; ScanTool is the
// in-test fake ELM327 end: write the bytes you want the driver to
// "receive", read the bytes the driver sends.
type Pair struct {
	Host     *HostSide
	ScanTool *os.File

	ptmx, pts *os.File
}

// New allocates a connected pty pair.
func New() (*Pair, error) {
	ptmx, pts, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("serialtest: open pty: %w", err)
	}
	return &Pair{
		Host:     &HostSide{f: ptmx, overall: 2 * time.Second, poll: 2 * time.Second},
		ScanTool: pts,
		ptmx:     ptmx,
		pts:      pts,
	}, nil
}

// Close releases both ends of the pty pair.
func (p *Pair) Close() error {
	err1 := p.ptmx.Close()
	err2 := p.pts.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// HostSide implements serial.Port over the host end of a pty pair. It
// deliberately does not implement real baud changes (a pty has no line
// speed) so SetBaudrate is a no-op that only records the requested
// value — this is sufficient for driver logic tests, which only
// observe Baudrate() to confirm the driver believes it switched.
type HostSide struct {
	f       *os.File
	baud    int
	overall time.Duration
	poll    time.Duration
}

func (h *HostSide) Write(data []byte) (int, error) { return h.f.Write(data) }

func (h *HostSide) ReadUntil(delimiter []byte, overall, interval time.Duration) ([]byte, error) {
	return serial.ReadUntilForTest(h.f, delimiter, overall, interval)
}

func (h *HostSide) SetTimeout(overall time.Duration, interval ...time.Duration) {
	h.overall = overall
	if len(interval) > 0 {
		h.poll = interval[0]
	} else {
		h.poll = overall
	}
}

func (h *HostSide) SetBaudrate(baud int) error { h.baud = baud; return nil }
func (h *HostSide) Baudrate() int              { return h.baud }
func (h *HostSide) ClearRx() error             { return nil }
func (h *HostSide) ClearTx() error             { return nil }
func (h *HostSide) Close() error               { return h.f.Close() }
