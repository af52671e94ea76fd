// Package approval implements the human-approval protocol: ticket-level
// receipts and proposal-level one-time tokens.
//
// Tokens are high-entropy secrets shown to the caller exactly once; only the
// SHA-256 digest is persisted. Redemption and revocation are append-only
// events layered over the issuance record, so a token's history is fully
// auditable.
package approval

import (
	"strings"
	"time"

	"github.com/Mindburn-Labs/warden/pkg/faults"
	"github.com/Mindburn-Labs/warden/pkg/risk"
)

// Method identifies how the human confirmed.
type Method string

const (
	MethodSingleClick   Method = "single_click"
	MethodDoubleConfirm Method = "double_confirm"
	MethodTyped         Method = "typed"
	MethodTypedPhrase   Method = "typed_phrase"
)

// strength maps a confirmation method onto the risk ladder. typed_phrase is
// the phrase-carrying variant of typed.
func (m Method) strength() int {
	switch m {
	case MethodSingleClick:
		return 1
	case MethodDoubleConfirm:
		return 2
	case MethodTyped, MethodTypedPhrase:
		return 3
	default:
		return 0
	}
}

// Receipt proves a human approved a specific ticket.
type Receipt struct {
	TicketHash  string     `json:"ticket_hash"`
	ConfirmedAt time.Time  `json:"user_confirmed_at"`
	Method      Method     `json:"confirm_method"`
	TypedPhrase string     `json:"typed_phrase,omitempty"`
	Scope       string     `json:"scope"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// ValidateReceipt fails closed unless the receipt matches the ticket hash,
// is unexpired, meets the tier's required strength, and carries a non-empty
// phrase when typed confirmation is demanded.
func ValidateReceipt(ticketHash string, receipt *Receipt, requiredTier risk.Tier) error {
	if receipt == nil {
		return faults.Verify("approval receipt required")
	}
	if receipt.TicketHash != ticketHash {
		return faults.Verify("approval receipt does not match ticket hash")
	}
	if receipt.ExpiresAt != nil && time.Now().UTC().After(*receipt.ExpiresAt) {
		return faults.Verify("approval receipt expired")
	}
	required := risk.RequiredConfirmation(requiredTier)
	if receipt.Method.strength() < required.Strength() {
		return faults.Verify("approval confirmation strength too low")
	}
	if required == risk.ConfirmTyped && receipt.Method == MethodTypedPhrase {
		if strings.TrimSpace(receipt.TypedPhrase) == "" {
			return faults.Verify("typed confirmation requires a non-empty phrase")
		}
	}
	return nil
}
