package approval

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Mindburn-Labs/warden/pkg/proposal"
	"github.com/Mindburn-Labs/warden/pkg/store"
)

// Reason codes returned by Validate. Validation fails closed: any record
// inconsistency maps to a specific, structured reason.
const (
	ReasonOK           = "ok"
	ReasonTokenMissing = "token_missing"
	ReasonMismatch     = "proposal_mismatch"
	ReasonRevoked      = "token_revoked"
	ReasonExpired      = "token_expired"
	ReasonAlreadyUsed  = "token_already_used"
)

// Event row types in the token log.
const (
	rowIssued   = "approval_token"
	rowRedeemed = "approval_token_redeem"
	rowRevoked  = "revoked_token"
)

// TokenRecord is the persisted metadata of an approval token. The plaintext
// secret never appears here.
type TokenRecord struct {
	Type        string         `json:"type"`
	TokenID     string         `json:"token_id,omitempty"`
	TokenDigest string         `json:"token_digest"`
	ProposalID  string         `json:"proposal_id,omitempty"`
	Capability  string         `json:"capability,omitempty"`
	Scope       proposal.Scope `json:"scope,omitempty"`
	IssuedAt    time.Time      `json:"issued_at,omitempty"`
	ExpiresAt   time.Time      `json:"expires_at,omitempty"`
	OneTime     bool           `json:"one_time,omitempty"`
	Revoked     bool           `json:"revoked,omitempty"`
	RedeemedAt  *time.Time     `json:"redeemed_at,omitempty"`
	RevokedAt   *time.Time     `json:"revoked_at,omitempty"`
	Reason      string         `json:"reason,omitempty"`
}

// IssuedToken is the one-time response to Issue. Secret is shown exactly
// once and never persisted.
type IssuedToken struct {
	TokenRecord
	Secret string `json:"token"`
}

// TokenStore issues and validates approval tokens over an append-only JSONL
// log. Redeem and revoke layer events over the issuance record instead of
// editing it.
type TokenStore struct {
	log   *store.LineLog
	clock func() time.Time
}

// NewTokenStore creates a store rooted at dir (tokens.jsonl inside it).
func NewTokenStore(dir string) *TokenStore {
	return &TokenStore{
		log:   store.NewLineLog(filepath.Join(dir, "tokens.jsonl")),
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock for deterministic testing.
func (s *TokenStore) WithClock(clock func() time.Time) *TokenStore {
	s.clock = clock
	return s
}

// Digest returns the SHA-256 hex digest of a token secret.
func Digest(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// Issue mints a token for the proposal, persists only its digest and
// metadata, and returns the plaintext secret exactly once.
func (s *TokenStore) Issue(p proposal.Proposal, ttl time.Duration, oneTime bool) (IssuedToken, error) {
	secretBytes := make([]byte, 24)
	if _, err := rand.Read(secretBytes); err != nil {
		return IssuedToken{}, fmt.Errorf("approval: entropy: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)

	idBytes := make([]byte, 8)
	if _, err := rand.Read(idBytes); err != nil {
		return IssuedToken{}, fmt.Errorf("approval: entropy: %w", err)
	}

	if ttl < time.Second {
		ttl = time.Second
	}
	now := s.clock()
	record := TokenRecord{
		Type:        rowIssued,
		TokenID:     hex.EncodeToString(idBytes),
		TokenDigest: Digest(secret),
		ProposalID:  p.ProposalID,
		Capability:  p.Capability,
		Scope:       p.Scope,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
		OneTime:     oneTime,
	}
	if err := s.log.Append(record); err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{TokenRecord: record, Secret: secret}, nil
}

// Validate checks a presented secret against the log for the given proposal.
// Digest comparison is constant-time. Returns (ok, reason, issuance record).
func (s *TokenStore) Validate(secret, proposalID string) (bool, string, *TokenRecord) {
	digest := Digest(secret)
	rows, err := s.all()
	if err != nil {
		return false, ReasonTokenMissing, nil
	}

	var base *TokenRecord
	var redeemedAt *time.Time
	revoked := false
	for i := range rows {
		r := &rows[i]
		if subtle.ConstantTimeCompare([]byte(r.TokenDigest), []byte(digest)) != 1 {
			continue
		}
		switch r.Type {
		case rowIssued:
			if base == nil && r.ProposalID != "" {
				base = r
			}
		case rowRedeemed:
			if r.RedeemedAt != nil {
				redeemedAt = r.RedeemedAt
			}
		case rowRevoked:
			revoked = true
		}
	}
	if base == nil {
		return false, ReasonTokenMissing, nil
	}
	if base.ProposalID != proposalID {
		return false, ReasonMismatch, base
	}
	if revoked || base.Revoked {
		return false, ReasonRevoked, base
	}
	if !s.clock().Before(base.ExpiresAt) {
		return false, ReasonExpired, base
	}
	if base.OneTime && (redeemedAt != nil || base.RedeemedAt != nil) {
		return false, ReasonAlreadyUsed, base
	}
	return true, ReasonOK, base
}

// Redeem appends a redemption event for the digest.
func (s *TokenStore) Redeem(tokenDigest string) error {
	now := s.clock()
	return s.log.Append(TokenRecord{
		Type:        rowRedeemed,
		TokenDigest: tokenDigest,
		RedeemedAt:  &now,
	})
}

// RevokeQuery selects which tokens a revocation targets.
type RevokeQuery struct {
	TokenDigest string
	ProposalID  string
	All         bool
	Reason      string
}

// Revoke appends revocation events for every issuance the query matches and
// returns them.
func (s *TokenStore) Revoke(q RevokeQuery) ([]TokenRecord, error) {
	rows, err := s.all()
	if err != nil {
		return nil, err
	}
	reason := q.Reason
	if reason == "" {
		reason = "user_request"
	}

	seen := map[string]bool{}
	var revoked []TokenRecord
	for _, r := range rows {
		if r.Type != rowIssued || r.TokenDigest == "" || seen[r.TokenDigest] {
			continue
		}
		hit := q.All ||
			(q.TokenDigest != "" && r.TokenDigest == q.TokenDigest) ||
			(q.ProposalID != "" && r.ProposalID == q.ProposalID)
		if !hit {
			continue
		}
		now := s.clock()
		event := TokenRecord{
			Type:        rowRevoked,
			TokenDigest: r.TokenDigest,
			RevokedAt:   &now,
			Reason:      reason,
		}
		if err := s.log.Append(event); err != nil {
			return revoked, err
		}
		revoked = append(revoked, event)
		seen[r.TokenDigest] = true
	}
	return revoked, nil
}

func (s *TokenStore) all() ([]TokenRecord, error) {
	raw, err := s.log.ReadAll()
	if err != nil {
		return nil, err
	}
	out := make([]TokenRecord, 0, len(raw))
	for _, line := range raw {
		var r TokenRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("approval: decode token row: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}
