// Package reassembly groups the frames a [protocol.Frame] stream
// produces into complete bus messages, one pending entry per sequence
// key, and drains them as a FIFO queue the way the caller's single ELM
// RPC cycle expects (feed every line, flush, drain).
package reassembly

import (
	"fmt"

	"github.com/obdtool/goobd2/internal/obdlog"
	"github.com/obdtool/goobd2/protocol"

	"github.com/charmbracelet/log"
)

// BusMessage is a complete (or, after Flush, possibly incomplete)
// reassembled payload. Immutable after construction.
type BusMessage struct {
	Header     protocol.Header
	DataBytes  []byte
	Frames     []protocol.Frame // originating frames, in sequence order; nil slots are missing
	Protocol   protocol.Descriptor
	Incomplete bool
}

// SID returns the service ID this message carries, stripping the
// positive-response reply bit.
func (m BusMessage) SID() byte {
	if len(m.DataBytes) == 0 {
		return 0
	}
	return m.DataBytes[0] & 0xBF
}

// IsResponse reports whether DataBytes[0] carries the positive-response
// reply bit (request SID with 0x40 set).
func (m BusMessage) IsResponse() bool {
	return len(m.DataBytes) > 0 && m.DataBytes[0]&0x40 != 0
}

// pendingEntry is the reassembler's per-sequence-key working state.
type pendingEntry struct {
	frames             []protocol.Frame // ordered, possibly sparse (nil = placeholder)
	lastSequenceNumber int              // -1 if none seen yet
	sequenceLength     int
	haveLength         bool
}

// Reassembler implements the C5 reassembly engine: a mapping from
// sequence key to pending entry, plus a completed-message queue drained
// once per RPC cycle.
type Reassembler struct {
	descriptor protocol.Descriptor
	pending    map[string]*pendingEntry
	completed  []BusMessage
	log        *log.Logger
}

// New creates a Reassembler for the given bus protocol. logger may be
// nil, in which case obdlog.Default is used.
func New(d protocol.Descriptor, logger *log.Logger) *Reassembler {
	return &Reassembler{
		descriptor: d,
		pending:    make(map[string]*pendingEntry),
		log:        obdlog.Or(logger),
	}
}

// Feed parses nothing itself — the caller has already turned an ASCII
// line into a protocol.Frame via protocol.ParseFrame — and applies the
// per-frame algorithm of spec.md §4.3: locate or create the pending
// entry for the frame's sequence key, update the recorded sequence
// length and highest sequence number seen, grow the slot list as
// needed, insert the frame, and if the entry is now fully populated,
// assemble and enqueue its bus message.
func (r *Reassembler) Feed(f protocol.Frame) error {
	key := string(f.SequenceKey())
	e, ok := r.pending[key]
	if !ok {
		e = &pendingEntry{lastSequenceNumber: -1}
		r.pending[key] = e
	}

	sn, snOK := f.SequenceNumber(e.lastSequenceNumber)
	length, lenOK := f.SequenceLength()
	if lenOK && !e.haveLength {
		e.sequenceLength = length
		e.haveLength = true
	}

	framesNeeded := 0
	switch {
	case e.haveLength:
		framesNeeded = e.sequenceLength
	case snOK:
		framesNeeded = sn + 1
	}
	for len(e.frames) < framesNeeded {
		e.frames = append(e.frames, nil)
	}

	switch {
	case snOK:
		for sn >= len(e.frames) {
			e.frames = append(e.frames, nil)
		}
		e.frames[sn] = f
		if sn > e.lastSequenceNumber {
			e.lastSequenceNumber = sn
		}
	default:
		if idx := firstPlaceholder(e.frames); idx >= 0 {
			e.frames[idx] = f
		} else {
			e.frames = append(e.frames, f)
		}
	}

	if e.haveLength && len(e.frames) == e.sequenceLength && firstPlaceholder(e.frames) < 0 {
		msg, err := e.frames[0].AssembleMessage(e.frames)
		if err != nil {
			return fmt.Errorf("reassembly: assemble message for key %x: %w", f.SequenceKey(), err)
		}
		r.completed = append(r.completed, BusMessage{
			Header:    e.frames[0].Header(),
			DataBytes: msg,
			Frames:    e.frames,
			Protocol:  r.descriptor,
		})
		delete(r.pending, key)
	}

	return nil
}

// Flush is called at the end of an RPC cycle: every remaining pending
// entry is emitted as a bus message (incomplete if it still has
// placeholders), and the pending map is cleared unconditionally
// afterward, per spec.md §4.3.
func (r *Reassembler) Flush() {
	for key, e := range r.pending {
		if len(e.frames) == 0 {
			continue
		}
		donor := firstDonor(e.frames)
		if donor == nil {
			continue
		}
		incomplete := firstPlaceholder(e.frames) >= 0
		if !incomplete && e.haveLength && len(e.frames) == e.sequenceLength {
			r.log.Warn("reassembly: entry was full at flush time, should have auto-completed",
				"key", fmt.Sprintf("%x", key))
		}
		msg, err := donor.AssembleMessage(e.frames)
		if err != nil {
			r.log.Warn("reassembly: flush assemble failed", "key", fmt.Sprintf("%x", key), "err", err)
			continue
		}
		r.completed = append(r.completed, BusMessage{
			Header:     donor.Header(),
			DataBytes:  msg,
			Frames:     e.frames,
			Protocol:   r.descriptor,
			Incomplete: incomplete,
		})
	}
	r.pending = make(map[string]*pendingEntry)
}

// Drain returns and clears the completed-message queue.
func (r *Reassembler) Drain() []BusMessage {
	out := r.completed
	r.completed = nil
	return out
}

// Reset discards all pending and completed state, for use when the
// underlying interface is closed (spec.md §3: "pending-reassembly map
// is cleared on each flush and on interface close").
func (r *Reassembler) Reset() {
	r.pending = make(map[string]*pendingEntry)
	r.completed = nil
}

func firstPlaceholder(frames []protocol.Frame) int {
	for i, f := range frames {
		if f == nil {
			return i
		}
	}
	return -1
}

func firstDonor(frames []protocol.Frame) protocol.Frame {
	for _, f := range frames {
		if f != nil {
			return f
		}
	}
	return nil
}
