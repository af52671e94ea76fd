// Package proposal defines capability-scoped action proposals and their
// append-only pending store.
//
// A proposal's identity is deterministic: the first 20 hex characters of the
// SHA-256 digest over the canonical form of {capability, summary, scope,
// steps}. Proposals are persisted append-only and never mutated; state
// (pending/approved/rejected/expired) is tracked externally.
package proposal

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/Mindburn-Labs/warden/pkg/canonicalize"
	"github.com/Mindburn-Labs/warden/pkg/capability"
	"github.com/Mindburn-Labs/warden/pkg/store"
)

// Scope declares the paths and commands a proposal is allowed to touch.
// Commands are stored normalized (single-space-joined argv).
type Scope struct {
	Paths    []string `json:"paths,omitempty"`
	Commands []string `json:"commands,omitempty"`
}

// StepParams carries the per-step parameters; fields are populated per
// capability kind.
type StepParams struct {
	Path    string   `json:"path,omitempty"`
	Content string   `json:"content,omitempty"`
	Command []string `json:"command,omitempty"`
	Cwd     string   `json:"cwd,omitempty"`
}

// Step is one ordered unit of a proposal.
type Step struct {
	StepID     string     `json:"step_id"`
	Action     string     `json:"action,omitempty"`
	Parameters StepParams `json:"parameters"`
}

// Proposal is a richer, capability-scoped variant of a ticket requiring
// explicit human approval before execution.
type Proposal struct {
	Type             string   `json:"type"`
	ProposalID       string   `json:"proposal_id"`
	Capability       string   `json:"capability"`
	RiskTier         string   `json:"risk_tier"`
	Summary          string   `json:"summary"`
	Justification    []string `json:"justification,omitempty"`
	Scope            Scope    `json:"scope"`
	Steps            []Step   `json:"steps"`
	Preconditions    []string `json:"preconditions,omitempty"`
	RequiresApproval bool     `json:"requires_approval"`
	ExpiresInSeconds int      `json:"expires_in_s"`
	RelatedArtifacts []string `json:"related_artifact_ids,omitempty"`
}

const (
	maxJustifications    = 8
	maxJustificationLen  = 240
	maxRelatedArtifacts  = 20
	defaultExpirySeconds = 300
)

// truncate caps s at max bytes, backing up so a multi-byte rune is never
// split.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// NormalizeCommand joins an argv into the single normalized command line
// used for scope comparison.
func NormalizeCommand(argv []string) string {
	parts := make([]string, 0, len(argv))
	for _, a := range argv {
		a = strings.TrimSpace(a)
		if a != "" {
			parts = append(parts, a)
		}
	}
	return strings.Join(parts, " ")
}

// BuildInput is the caller-supplied material for Build.
type BuildInput struct {
	Capability       string
	Summary          string
	Justification    []string
	Scope            Scope
	Steps            []Step
	RiskTier         string
	ExpiresInSeconds int
	RelatedArtifacts []string
}

// Build constructs a proposal with a deterministic content-derived ID.
func Build(in BuildInput) (Proposal, error) {
	stable := struct {
		Capability string `json:"capability"`
		Summary    string `json:"summary"`
		Scope      Scope  `json:"scope"`
		Steps      []Step `json:"steps"`
	}{in.Capability, in.Summary, in.Scope, in.Steps}

	digest, err := canonicalize.CanonicalHash(stable)
	if err != nil {
		return Proposal{}, fmt.Errorf("proposal: id hash: %w", err)
	}

	justification := make([]string, 0, len(in.Justification))
	for _, j := range in.Justification {
		justification = append(justification, truncate(j, maxJustificationLen))
		if len(justification) == maxJustifications {
			break
		}
	}
	related := in.RelatedArtifacts
	if len(related) > maxRelatedArtifacts {
		related = related[:maxRelatedArtifacts]
	}

	expiry := in.ExpiresInSeconds
	if expiry < 1 {
		expiry = defaultExpirySeconds
	}
	tier := in.RiskTier
	if tier == "" {
		tier = "tier2"
	}

	return Proposal{
		Type:             "proposal_action",
		ProposalID:       digest[:20],
		Capability:       in.Capability,
		RiskTier:         tier,
		Summary:          in.Summary,
		Justification:    justification,
		Scope:            in.Scope,
		Steps:            in.Steps,
		Preconditions:    preconditionsFor(in.Capability),
		RequiresApproval: true,
		ExpiresInSeconds: expiry,
		RelatedArtifacts: related,
	}, nil
}

func preconditionsFor(capabilityID string) []string {
	switch capability.KindOf(capabilityID) {
	case capability.KindFileWrite:
		return []string{"diff preview will be shown"}
	case capability.KindShellExec:
		return []string{"command preview shown"}
	default:
		return nil
	}
}

// Store is the append-only pending-proposal list.
type Store struct {
	log *store.LineLog
}

// NewStore creates a store rooted at dir (pending_proposals.jsonl inside it).
func NewStore(dir string) *Store {
	return &Store{log: store.NewLineLog(filepath.Join(dir, "pending_proposals.jsonl"))}
}

// Append persists the proposal.
func (s *Store) Append(p Proposal) error {
	return s.log.Append(p)
}

// ListPending returns every persisted proposal in append order.
func (s *Store) ListPending() ([]Proposal, error) {
	raw, err := s.log.ReadAll()
	if err != nil {
		return nil, err
	}
	out := make([]Proposal, 0, len(raw))
	for _, line := range raw {
		var p Proposal
		if err := json.Unmarshal(line, &p); err != nil {
			return nil, fmt.Errorf("proposal: decode row: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

// Find returns the most recent proposal with the given ID, or nil.
func (s *Store) Find(proposalID string) (*Proposal, error) {
	all, err := s.ListPending()
	if err != nil {
		return nil, err
	}
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].ProposalID == proposalID {
			return &all[i], nil
		}
	}
	return nil, nil
}
