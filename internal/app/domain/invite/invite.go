// Package invite holds the watchlist invitation model and its lifecycle
// rules: expiry windows, bounded uses and code generation.
package invite

import (
	"crypto/rand"
	"fmt"
	"time"
)

// ExpiryOptionsHours are the only accepted invite lifetimes.
var ExpiryOptionsHours = []int{1, 6, 24, 168}

const (
	codeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	codeLength   = 13
)

// Invite grants membership on a watchlist to whoever redeems its code. A
// watchlist carries at most one live invite.
type Invite struct {
	Code        string
	WatchlistID string
	ValidUntil  time.Time
	MaxUses     *int
	Uses        int
	CreatedAt   time.Time
}

// Expired reports whether the invite's window has passed. An invite is still
// valid at exactly ValidUntil.
func (i Invite) Expired(now time.Time) bool {
	return i.ValidUntil.Before(now)
}

// Exhausted reports whether the invite has no uses left. A nil MaxUses means
// unlimited.
func (i Invite) Exhausted() bool {
	return i.MaxUses != nil && i.Uses >= *i.MaxUses
}

// IsValidAt reports whether the invite can still be redeemed at now.
func (i Invite) IsValidAt(now time.Time) bool {
	return !i.Expired(now) && !i.Exhausted()
}

// RemainingUses returns the uses left, or nil for unlimited invites.
func (i Invite) RemainingUses() *int {
	if i.MaxUses == nil {
		return nil
	}
	remaining := *i.MaxUses - i.Uses
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// CreateInput is the request to create an invite.
type CreateInput struct {
	WatchlistID       string
	ExpiresAfterHours int
	MaxUses           *int
}

// ValidateCreateInput returns the violations for an invite creation request.
func ValidateCreateInput(in CreateInput) []string {
	var violations []string
	valid := false
	for _, h := range ExpiryOptionsHours {
		if in.ExpiresAfterHours == h {
			valid = true
			break
		}
	}
	if !valid {
		violations = append(violations, fmt.Sprintf("expiresAfterHours must be one of %v", ExpiryOptionsHours))
	}
	if in.MaxUses != nil && *in.MaxUses < 1 {
		violations = append(violations, "maxUses must be at least 1")
	}
	return violations
}

// NewCode generates a random lowercase base36 invite code.
func NewCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invite code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
