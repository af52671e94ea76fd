package gate

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Mindburn-Labs/warden/pkg/audit"
	"github.com/Mindburn-Labs/warden/pkg/capability"
	"github.com/Mindburn-Labs/warden/pkg/config"
	"github.com/Mindburn-Labs/warden/pkg/faults"
	"github.com/Mindburn-Labs/warden/pkg/policy"
	"github.com/Mindburn-Labs/warden/pkg/proposal"
	"github.com/Mindburn-Labs/warden/pkg/sandbox"
)

// Denial reasons produced at the execution boundary, beyond the token
// validation reasons the approval package defines.
const (
	ReasonUntrusted       = "untrusted_principal"
	ReasonSafeMode        = "safe_mode_proposal_only"
	ReasonPolicyViolation = "policy_violation"
)

// ExecuteRequest presents a proposal and its approval for execution.
type ExecuteRequest struct {
	ProposalID   string
	TokenSecret  string
	Trust        TrustLevel
	PreviewReady bool
}

// StepOutput is the result of one executed step.
type StepOutput struct {
	StepID   string `json:"step_id"`
	Kind     string `json:"kind"`
	Path     string `json:"path,omitempty"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode int    `json:"exit_code"`
}

// ExecuteResult reports the outcome. A denial is a normal result, not an
// error; Violations is populated only for policy denials.
type ExecuteResult struct {
	Status     string             `json:"status"`
	Reason     string             `json:"reason,omitempty"`
	Violations []policy.Violation `json:"violations,omitempty"`
	Outputs    []StepOutput       `json:"outputs,omitempty"`
}

// Execute runs an approved proposal. The boundary checks, in order: trust
// level, operating mode, token validity, and policy enforcement. Only after
// all pass do the steps run, and a one-time token is redeemed only after a
// successful run.
func (g *Gate) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	ctx, done := g.obs.TrackOperation(ctx, "gate.execute",
		attribute.String("proposal_id", req.ProposalID))
	var opErr error
	defer func() { done(opErr) }()

	if req.Trust == TrustUntrusted {
		return g.deny(ctx, req.ProposalID, "", ReasonUntrusted, nil), nil
	}
	if g.profile.NormalizedMode() == config.ModeSafe {
		return g.deny(ctx, req.ProposalID, "", ReasonSafeMode, nil), nil
	}

	p, err := g.proposals.Find(req.ProposalID)
	if err != nil {
		opErr = err
		return ExecuteResult{}, err
	}
	if p == nil {
		opErr = faults.Verify("proposal not found: %s", req.ProposalID)
		return ExecuteResult{}, opErr
	}

	ok, reason, record := g.tokens.Validate(req.TokenSecret, req.ProposalID)
	if !ok {
		digest := ""
		if record != nil {
			digest = record.TokenDigest
		}
		return g.deny(ctx, req.ProposalID, digest, reason, nil), nil
	}

	allowed, violations := g.enforcer.Enforce(*p, record, req.PreviewReady)
	if !allowed {
		return g.deny(ctx, req.ProposalID, record.TokenDigest, ReasonPolicyViolation, violations), nil
	}

	_, _ = g.auditLog.Append(audit.Entry{
		EventType:   audit.EventExecStarted,
		ProposalID:  p.ProposalID,
		Capability:  p.Capability,
		TokenDigest: record.TokenDigest,
		Summary:     p.Summary,
	})
	_, _ = g.queue.SetState(p.ProposalID, "executing")

	outputs, execErr := g.executeSteps(ctx, *p)

	meta := map[string]any{"steps": len(outputs)}
	if execErr != nil {
		meta["error"] = execErr.Error()
	}
	_, _ = g.auditLog.Append(audit.Entry{
		EventType:   audit.EventExecFinished,
		ProposalID:  p.ProposalID,
		Capability:  p.Capability,
		TokenDigest: record.TokenDigest,
		Metadata:    meta,
	})
	if execErr != nil {
		_, _ = g.queue.SetState(p.ProposalID, "failed")
		opErr = execErr
		return ExecuteResult{}, execErr
	}

	if record.OneTime {
		if err := g.tokens.Redeem(record.TokenDigest); err != nil {
			opErr = err
			return ExecuteResult{}, err
		}
	}
	_, _ = g.queue.SetState(p.ProposalID, "executed")
	return ExecuteResult{Status: StatusExecuted, Outputs: outputs}, nil
}

// deny records the denial in the audit log and metrics and returns the
// structured result.
func (g *Gate) deny(ctx context.Context, proposalID, tokenDigest, reason string, violations []policy.Violation) ExecuteResult {
	meta := map[string]any{"reason": reason}
	if len(violations) > 0 {
		codes := make([]string, 0, len(violations))
		for _, v := range violations {
			codes = append(codes, v.Code)
		}
		meta["violations"] = codes
	}
	_, _ = g.auditLog.Append(audit.Entry{
		EventType:   audit.EventPolicyDenied,
		ProposalID:  proposalID,
		TokenDigest: tokenDigest,
		Summary:     "execution denied: " + reason,
		Metadata:    meta,
	})
	g.obs.RecordDenial(ctx, reason, attribute.String("proposal_id", proposalID))
	return ExecuteResult{Status: StatusDenied, Reason: reason, Violations: violations}
}

// executeSteps dispatches on the capability class. Scope agreement was
// already enforced, so steps run exactly what the approver saw.
func (g *Gate) executeSteps(ctx context.Context, p proposal.Proposal) ([]StepOutput, error) {
	switch capability.KindOf(p.Capability) {
	case capability.KindFileWrite:
		return g.executeFileWrites(p)
	case capability.KindShellExec:
		return g.executeShellSteps(ctx, p)
	case capability.KindMessageSend:
		return nil, faults.Verify("message transport not configured")
	default:
		return nil, faults.Verify("no executor for capability: %s", p.Capability)
	}
}

func (g *Gate) executeFileWrites(p proposal.Proposal) ([]StepOutput, error) {
	outputs := make([]StepOutput, 0, len(p.Steps))
	for _, step := range p.Steps {
		target, err := g.workspace.WriteFile(step.Parameters.Path, []byte(step.Parameters.Content))
		if err != nil {
			return outputs, err
		}
		outputs = append(outputs, StepOutput{
			StepID: step.StepID,
			Kind:   "file_write",
			Path:   target,
		})
	}
	return outputs, nil
}

func (g *Gate) executeShellSteps(ctx context.Context, p proposal.Proposal) ([]StepOutput, error) {
	outputs := make([]StepOutput, 0, len(p.Steps))
	for _, step := range p.Steps {
		if len(step.Parameters.Command) == 0 {
			return outputs, faults.Verify("step %s carries no command", step.StepID)
		}
		cwd := strings.TrimSpace(step.Parameters.Cwd)
		if cwd == "" {
			cwd = g.workspace.Root()
		}
		res, err := g.runner.Run(ctx, sandbox.CommandSpec{
			Argv:           step.Parameters.Command,
			Cwd:            cwd,
			TimeoutSeconds: g.profile.ExecTimeoutSeconds,
			OutputCapKB:    g.profile.MaxOutputKB,
			AllowNetwork:   g.profile.AllowNetwork,
		})
		if err != nil {
			return outputs, fmt.Errorf("step %s: %w", step.StepID, err)
		}
		outputs = append(outputs, StepOutput{
			StepID:   step.StepID,
			Kind:     "shell_exec",
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
			ExitCode: res.ExitCode,
		})
	}
	return outputs, nil
}
