package gate

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Mindburn-Labs/warden/pkg/approval"
	"github.com/Mindburn-Labs/warden/pkg/faults"
	"github.com/Mindburn-Labs/warden/pkg/risk"
	"github.com/Mindburn-Labs/warden/pkg/ticket"
)

// ToolProposal is an assessed, approval-ready tool invocation. The caller
// shows the prompt, collects confirmation at the required strength, and
// presents the resulting receipt to ExecuteTool.
type ToolProposal struct {
	Ticket         ticket.ExecutionTicket `json:"ticket"`
	TicketHash     string                 `json:"ticket_hash"`
	Risk           risk.Report            `json:"risk"`
	ApprovalPrompt string                 `json:"approval_prompt"`
}

// Assess classifies a ticket under the gate's active profile.
func (g *Gate) Assess(t ticket.ExecutionTicket) risk.Report {
	return risk.Assess(t, nil, &risk.Settings{ProtectedPaths: g.profile.ProtectedPaths})
}

// ProposeTool verifies the named tool, validates its arguments, and returns
// the assessed execution ticket. Requires a tool loader to be wired.
func (g *Gate) ProposeTool(ctx context.Context, name string, args map[string]any, jobID string) (ToolProposal, error) {
	_, done := g.obs.TrackOperation(ctx, "gate.propose_tool",
		attribute.String("tool", name))
	var opErr error
	defer func() { done(opErr) }()

	if g.tools == nil {
		opErr = faults.Verify("tool loader not configured")
		return ToolProposal{}, opErr
	}
	if err := g.limiter.Hit(); err != nil {
		opErr = err
		return ToolProposal{}, err
	}

	t, err := g.tools.ProposeExec(name, args, jobID)
	if err != nil {
		opErr = err
		return ToolProposal{}, err
	}
	hash, err := ticket.Hash(t)
	if err != nil {
		opErr = err
		return ToolProposal{}, err
	}
	report := g.Assess(t)
	return ToolProposal{
		Ticket:     t,
		TicketHash: hash,
		Risk:       report,
		ApprovalPrompt: fmt.Sprintf("%s confirmation required to run %s (risk %s)",
			report.RequiredConfirm, name, report.Tier),
	}, nil
}

// ExecuteTool runs an approved tool ticket. Untrusted principals are blocked
// here regardless of the receipt they present.
func (g *Gate) ExecuteTool(ctx context.Context, trust TrustLevel, t ticket.ExecutionTicket, receipt *approval.Receipt) (map[string]any, error) {
	if g.tools == nil {
		return nil, faults.Verify("tool loader not configured")
	}
	if trust == TrustUntrusted {
		g.obs.RecordDenial(ctx, ReasonUntrusted)
		return nil, faults.Policy("untrusted principal cannot execute")
	}
	return g.tools.ExecuteWithApproval(ctx, t, receipt)
}
