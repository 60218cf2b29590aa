package obd

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/obdtool/goobd2/request"
)

// serviceClearDTCs is the Service $04 SID the reset guard watches for
// (spec.md §4.7's "Reset guard").
const serviceClearDTCs = 0x04

// ResetRequiresConfirmation is returned the first time an Interface is
// asked to send a Service $04 (clear DTCs) request. It carries the
// single-use token the caller must echo back on its retry.
type ResetRequiresConfirmation struct {
	Token uint32
}

func (e *ResetRequiresConfirmation) Error() string {
	return fmt.Sprintf("obd: clearing DTCs requires confirmation (token %08X)", e.Token)
}

// resetGuard implements C11: the first Service $04 attempt is rejected
// with a freshly generated token; the guard accepts a matching retry
// exactly once, then clears the stored token. Tokens are process-local
// and do not survive an Interface restart (spec.md §3 invariant,
// §9 "Token-based reset confirmation"). A pending token older than ttl
// is treated as expired (config.Config.ResetTokenTTL): the caller must
// restart the handshake rather than confirm a stale one.
type resetGuard struct {
	pending  *uint32
	issuedAt time.Time
	ttl      time.Duration
}

// check inspects req: for any SID other than Service $04 it is a no-op.
// For Service $04 it either rejects with a fresh token (no pending
// token, the pending token expired, or req isn't a ConfirmedRequest
// carrying that token back) or consumes the pending token and allows the request
// through.
func (g *resetGuard) check(req request.Request) error {
	if req.SID() != serviceClearDTCs {
		return nil
	}

	if g.pending != nil && g.ttl > 0 && time.Since(g.issuedAt) > g.ttl {
		g.pending = nil
	}

	confirmed, ok := req.(ConfirmedRequest)
	if ok && g.pending != nil && confirmed.ConfirmationToken() == *g.pending {
		g.pending = nil
		return nil
	}

	token, err := newResetToken()
	if err != nil {
		return fmt.Errorf("obd: generate reset token: %w", err)
	}
	g.pending = &token
	g.issuedAt = time.Now()
	return &ResetRequiresConfirmation{Token: token}
}

// ConfirmedRequest is implemented by a Request that carries back the
// token from a prior ResetRequiresConfirmation, so the reset guard can
// recognize a confirmed retry without the caller needing to special-case
// any other request shape.
type ConfirmedRequest interface {
	request.Request
	ConfirmationToken() uint32
}

// ConfirmReset wraps a Service $04 request with the token from a prior
// ResetRequiresConfirmation, producing a request the reset guard will
// let through exactly once.
func ConfirmReset(token uint32) ConfirmedRequest {
	return confirmedClearDTCs{token: token}
}

type confirmedClearDTCs struct {
	token uint32
}

func (c confirmedClearDTCs) SID() byte                 { return serviceClearDTCs }
func (c confirmedClearDTCs) Bytes() []byte             { return []byte{serviceClearDTCs} }
func (c confirmedClearDTCs) ConfirmationToken() uint32 { return c.token }

// newResetToken generates a cryptographically-unpredictable 32-bit
// token (spec.md §9: "generation uses a cryptographically-unpredictable
// RNG but equality check is exact").
func newResetToken() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
