// Package gate is the governed-execution facade: proposals come in, risk is
// assessed, approval tokens are issued, and execution only happens after
// policy enforcement and token validation both pass.
//
// Every decision is audited. Denials are structured results, not errors;
// errors are reserved for infrastructure failures and contract violations.
package gate

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Mindburn-Labs/warden/pkg/approval"
	"github.com/Mindburn-Labs/warden/pkg/audit"
	"github.com/Mindburn-Labs/warden/pkg/capability"
	"github.com/Mindburn-Labs/warden/pkg/config"
	"github.com/Mindburn-Labs/warden/pkg/faults"
	"github.com/Mindburn-Labs/warden/pkg/job"
	"github.com/Mindburn-Labs/warden/pkg/observability"
	"github.com/Mindburn-Labs/warden/pkg/policy"
	"github.com/Mindburn-Labs/warden/pkg/proposal"
	"github.com/Mindburn-Labs/warden/pkg/ratelimit"
	"github.com/Mindburn-Labs/warden/pkg/sandbox"
	"github.com/Mindburn-Labs/warden/pkg/toolreg"
)

// TrustLevel classifies the requesting principal. Untrusted principals may
// propose and inspect but never cross the execution boundary.
type TrustLevel string

const (
	TrustTrusted   TrustLevel = "trusted"
	TrustUntrusted TrustLevel = "untrusted"
)

// Execution outcome statuses.
const (
	StatusExecuted = "executed"
	StatusDenied   = "denied"
)

// Options wires a Gate. Registry, Profile, and DataDir are required.
type Options struct {
	Registry           *capability.Registry
	Profile            *config.Profile
	DataDir            string
	WorkspaceRoot      string
	Observability      *observability.Provider
	AuditSink          audit.Sink
	Tools              *toolreg.Loader
	ApprovalsPerMinute int
}

// Gate is the single entry point for governed actions.
type Gate struct {
	registry  *capability.Registry
	enforcer  *policy.Enforcer
	proposals *proposal.Store
	tokens    *approval.TokenStore
	auditLog  *audit.Log
	queue     *job.Queue
	profile   *config.Profile
	workspace *sandbox.Workspace
	runner    *sandbox.Runner
	limiter   *ratelimit.Limiter
	obs       *observability.Provider
	tools     *toolreg.Loader
}

// New builds a gate rooted at opts.DataDir.
func New(opts Options) (*Gate, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("gate: capability registry required")
	}
	if opts.Profile == nil {
		return nil, fmt.Errorf("gate: profile required")
	}
	if opts.DataDir == "" {
		return nil, fmt.Errorf("gate: data dir required")
	}
	if err := opts.Profile.Validate(); err != nil {
		return nil, err
	}

	wsRoot := opts.WorkspaceRoot
	if wsRoot == "" {
		wsRoot = filepath.Join(opts.DataDir, "workspace")
	}
	workspace, err := sandbox.NewWorkspace(wsRoot)
	if err != nil {
		return nil, err
	}

	pre, err := capability.NewPreconditionEvaluator()
	if err != nil {
		return nil, err
	}

	obs := opts.Observability
	if obs == nil {
		obs, err = observability.New(context.Background(), &observability.Config{Enabled: false})
		if err != nil {
			return nil, err
		}
	}

	auditLog := audit.NewLog(filepath.Join(opts.DataDir, "audit"))
	if opts.AuditSink != nil {
		auditLog = auditLog.WithSink(opts.AuditSink)
	}

	perMinute := opts.ApprovalsPerMinute
	if perMinute <= 0 {
		perMinute = 30
	}

	return &Gate{
		registry:  opts.Registry,
		enforcer:  policy.NewEnforcer(opts.Registry, pre),
		proposals: proposal.NewStore(opts.DataDir),
		tokens:    approval.NewTokenStore(opts.DataDir),
		auditLog:  auditLog,
		queue:     job.NewQueue(filepath.Join(opts.DataDir, "queue")),
		profile:   opts.Profile,
		workspace: workspace,
		runner:    sandbox.NewRunner(workspace),
		limiter:   ratelimit.New("approvals", perMinute, 60),
		obs:       obs,
		tools:     opts.Tools,
	}, nil
}

// AuditLog exposes the gate's audit log for inspection.
func (g *Gate) AuditLog() *audit.Log { return g.auditLog }

// Queue exposes the durable intent queue.
func (g *Gate) Queue() *job.Queue { return g.queue }

// Workspace exposes the jail root for callers staging content.
func (g *Gate) Workspace() *sandbox.Workspace { return g.workspace }

// Propose validates the capability, builds a content-addressed proposal,
// persists it pending, and audits its creation.
func (g *Gate) Propose(ctx context.Context, in proposal.BuildInput) (proposal.Proposal, error) {
	ctx, done := g.obs.TrackOperation(ctx, "gate.propose",
		attribute.String("capability", in.Capability))
	var opErr error
	defer func() { done(opErr) }()

	c, err := g.registry.Get(in.Capability)
	if err != nil {
		opErr = faults.Capability("unknown capability: %s", in.Capability)
		return proposal.Proposal{}, opErr
	}
	if in.RiskTier == "" {
		in.RiskTier = c.RiskTier
	}

	p, err := proposal.Build(in)
	if err != nil {
		opErr = err
		return proposal.Proposal{}, err
	}
	if err := g.proposals.Append(p); err != nil {
		opErr = err
		return proposal.Proposal{}, err
	}
	if err := g.queue.Push(job.Item{IntentID: p.ProposalID, Summary: p.Summary, State: "pending"}); err != nil {
		opErr = err
		return proposal.Proposal{}, err
	}
	_, _ = g.auditLog.Append(audit.Entry{
		EventType:  audit.EventProposalCreated,
		ProposalID: p.ProposalID,
		Capability: p.Capability,
		Summary:    p.Summary,
	})
	return p, nil
}

// IssueApproval mints a token for a pending proposal. Issuance is
// rate-limited and audited by token digest only.
func (g *Gate) IssueApproval(ctx context.Context, proposalID string, ttl time.Duration, oneTime bool) (approval.IssuedToken, error) {
	_, done := g.obs.TrackOperation(ctx, "gate.issue_approval")
	var opErr error
	defer func() { done(opErr) }()

	if err := g.limiter.Hit(); err != nil {
		opErr = err
		return approval.IssuedToken{}, err
	}
	p, err := g.proposals.Find(proposalID)
	if err != nil {
		opErr = err
		return approval.IssuedToken{}, err
	}
	if p == nil {
		opErr = faults.Verify("proposal not found: %s", proposalID)
		return approval.IssuedToken{}, opErr
	}

	issued, err := g.tokens.Issue(*p, ttl, oneTime)
	if err != nil {
		opErr = err
		return approval.IssuedToken{}, err
	}
	_, _ = g.auditLog.Append(audit.Entry{
		EventType:   audit.EventTokenIssued,
		ProposalID:  proposalID,
		Capability:  p.Capability,
		TokenDigest: issued.TokenDigest,
	})
	return issued, nil
}

// Revoke invalidates tokens matching the query and audits each revocation.
func (g *Gate) Revoke(ctx context.Context, q approval.RevokeQuery) ([]approval.TokenRecord, error) {
	revoked, err := g.tokens.Revoke(q)
	if err != nil {
		return nil, err
	}
	for _, r := range revoked {
		_, _ = g.auditLog.Append(audit.Entry{
			EventType:   audit.EventTokenRevoked,
			TokenDigest: r.TokenDigest,
			Summary:     r.Reason,
		})
	}
	return revoked, nil
}

// ListPending returns every persisted proposal.
func (g *Gate) ListPending() ([]proposal.Proposal, error) {
	return g.proposals.ListPending()
}

// Status summarizes the gate for operators.
type Status struct {
	Mode             string `json:"mode"`
	PendingProposals int    `json:"pending_proposals"`
	QueueDepth       int    `json:"queue_depth"`
	Capabilities     int    `json:"capabilities"`
}

// Status reports mode and queue depth. Reading the queue heals corruption
// as a side effect.
func (g *Gate) Status() (Status, error) {
	pending, err := g.proposals.ListPending()
	if err != nil {
		return Status{}, err
	}
	items, err := g.queue.List()
	if err != nil {
		return Status{}, err
	}
	return Status{
		Mode:             g.profile.NormalizedMode(),
		PendingProposals: len(pending),
		QueueDepth:       len(items),
		Capabilities:     len(g.registry.List()),
	}, nil
}
