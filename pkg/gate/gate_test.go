package gate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/warden/pkg/approval"
	"github.com/Mindburn-Labs/warden/pkg/audit"
	"github.com/Mindburn-Labs/warden/pkg/capability"
	"github.com/Mindburn-Labs/warden/pkg/config"
	"github.com/Mindburn-Labs/warden/pkg/faults"
	"github.com/Mindburn-Labs/warden/pkg/policy"
	"github.com/Mindburn-Labs/warden/pkg/privilege"
	"github.com/Mindburn-Labs/warden/pkg/proposal"
	"github.com/Mindburn-Labs/warden/pkg/sandbox"
	"github.com/Mindburn-Labs/warden/pkg/toolreg"
)

// harness wires a gate over temp directories with a workspace-scoped
// capability set.
type harness struct {
	gate    *Gate
	dataDir string
	wsRoot  string
}

func guidedProfile() *config.Profile {
	p := config.DefaultProfile()
	p.Mode = config.ModeGuided
	return p
}

func newHarness(t *testing.T, profile *config.Profile) *harness {
	t.Helper()
	dataDir := t.TempDir()

	wsRoot, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	registry, err := capability.NewRegistry(
		capability.Capability{
			ID:             capability.IDFileWriteScoped,
			RiskTier:       "tier2",
			Enabled:        true,
			AllowedRoots:   []string{wsRoot},
			ProtectedPaths: []string{filepath.Join(wsRoot, "secrets")},
		},
		capability.Capability{
			ID:            capability.IDShellExecScoped,
			RiskTier:      "tier3",
			Enabled:       true,
			AllowedRoots:  []string{wsRoot},
			AllowCommands: []string{"echo", "true"},
			DenyPatterns:  []string{`rm\s+-rf`},
		},
	)
	require.NoError(t, err)

	if profile == nil {
		profile = guidedProfile()
	}
	g, err := New(Options{
		Registry:      registry,
		Profile:       profile,
		DataDir:       dataDir,
		WorkspaceRoot: wsRoot,
	})
	require.NoError(t, err)
	return &harness{gate: g, dataDir: dataDir, wsRoot: wsRoot}
}

func (h *harness) fileWriteProposal(t *testing.T, rel, content string) proposal.Proposal {
	t.Helper()
	target := filepath.Join(h.wsRoot, rel)
	p, err := h.gate.Propose(context.Background(), proposal.BuildInput{
		Capability:    capability.IDFileWriteScoped,
		Summary:       "write " + rel,
		Justification: []string{"requested in session"},
		Scope:         proposal.Scope{Paths: []string{target}},
		Steps: []proposal.Step{{
			StepID:     "s1",
			Action:     "write_file",
			Parameters: proposal.StepParams{Path: target, Content: content},
		}},
	})
	require.NoError(t, err)
	return p
}

func TestOneTimeTokenLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	p := h.fileWriteProposal(t, "notes/hello.txt", "hello governed world\n")

	issued, err := h.gate.IssueApproval(context.Background(), p.ProposalID, time.Minute, true)
	require.NoError(t, err)
	require.NotEmpty(t, issued.Secret)

	res, err := h.gate.Execute(context.Background(), ExecuteRequest{
		ProposalID:   p.ProposalID,
		TokenSecret:  issued.Secret,
		Trust:        TrustTrusted,
		PreviewReady: true,
	})
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, res.Status)
	require.Len(t, res.Outputs, 1)

	data, err := os.ReadFile(filepath.Join(h.wsRoot, "notes", "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello governed world\n", string(data))

	// The token was one-time; replay is denied, not errored.
	res, err = h.gate.Execute(context.Background(), ExecuteRequest{
		ProposalID:   p.ProposalID,
		TokenSecret:  issued.Secret,
		Trust:        TrustTrusted,
		PreviewReady: true,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusDenied, res.Status)
	assert.Equal(t, approval.ReasonAlreadyUsed, res.Reason)
	assert.Empty(t, res.Outputs)

	events, err := h.gate.AuditLog().ByProposal(p.ProposalID)
	require.NoError(t, err)
	// created, issued, started, finished, denied replay
	assert.GreaterOrEqual(t, len(events), 5)
}

func TestProtectedPathRejected(t *testing.T) {
	h := newHarness(t, nil)
	p := h.fileWriteProposal(t, "secrets/api_key.txt", "sk-should-never-land")

	issued, err := h.gate.IssueApproval(context.Background(), p.ProposalID, time.Minute, false)
	require.NoError(t, err)

	res, err := h.gate.Execute(context.Background(), ExecuteRequest{
		ProposalID:   p.ProposalID,
		TokenSecret:  issued.Secret,
		Trust:        TrustTrusted,
		PreviewReady: true,
	})
	require.NoError(t, err)
	require.Equal(t, StatusDenied, res.Status)
	assert.Equal(t, ReasonPolicyViolation, res.Reason)

	codes := make([]string, 0, len(res.Violations))
	for _, v := range res.Violations {
		codes = append(codes, v.Code)
	}
	assert.Contains(t, codes, policy.CodeProtectedPath)

	// Nothing was written.
	_, statErr := os.Stat(filepath.Join(h.wsRoot, "secrets", "api_key.txt"))
	assert.True(t, os.IsNotExist(statErr))

	// The denial is in the audit trail.
	events, err := h.gate.AuditLog().Events()
	require.NoError(t, err)
	var denied bool
	for _, e := range events {
		if e.EventType == audit.EventPolicyDenied && e.ProposalID == p.ProposalID {
			denied = true
		}
	}
	assert.True(t, denied)
}

func TestQueueCorruptionRecovery(t *testing.T) {
	h := newHarness(t, nil)
	h.fileWriteProposal(t, "a.txt", "a")

	// Clobber the queue document out from under the gate.
	queuePath := filepath.Join(h.dataDir, "queue", "queue.json")
	require.NoError(t, os.WriteFile(queuePath, []byte("{definitely not a list"), 0o644))

	status, err := h.gate.Status()
	require.NoError(t, err)
	assert.Equal(t, 0, status.QueueDepth)
	assert.Equal(t, config.ModeGuided, status.Mode)

	broken, err := filepath.Glob(queuePath + ".*.broken")
	require.NoError(t, err)
	assert.Len(t, broken, 1)

	history, err := h.gate.Queue().History()
	require.NoError(t, err)
	var recovered bool
	for _, e := range history {
		if e["event"] == "queue_recovered" {
			recovered = true
		}
	}
	assert.True(t, recovered)

	// The queue keeps working after recovery.
	h.fileWriteProposal(t, "b.txt", "b")
	status, err = h.gate.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, status.QueueDepth)
}

func TestUntrustedBlockedAtBoundary(t *testing.T) {
	h := newHarness(t, nil)
	p := h.fileWriteProposal(t, "x.txt", "x")
	issued, err := h.gate.IssueApproval(context.Background(), p.ProposalID, time.Minute, false)
	require.NoError(t, err)

	res, err := h.gate.Execute(context.Background(), ExecuteRequest{
		ProposalID:   p.ProposalID,
		TokenSecret:  issued.Secret,
		Trust:        TrustUntrusted,
		PreviewReady: true,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusDenied, res.Status)
	assert.Equal(t, ReasonUntrusted, res.Reason)
}

func TestSafeModeIsProposalOnly(t *testing.T) {
	h := newHarness(t, config.DefaultProfile())
	p := h.fileWriteProposal(t, "x.txt", "x")
	issued, err := h.gate.IssueApproval(context.Background(), p.ProposalID, time.Minute, false)
	require.NoError(t, err)

	res, err := h.gate.Execute(context.Background(), ExecuteRequest{
		ProposalID:   p.ProposalID,
		TokenSecret:  issued.Secret,
		Trust:        TrustTrusted,
		PreviewReady: true,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusDenied, res.Status)
	assert.Equal(t, ReasonSafeMode, res.Reason)
}

func TestShellExecutionThroughGate(t *testing.T) {
	h := newHarness(t, nil)

	cmd := []string{"echo", "governed"}
	p, err := h.gate.Propose(context.Background(), proposal.BuildInput{
		Capability: capability.IDShellExecScoped,
		Summary:    "run echo",
		Scope:      proposal.Scope{Commands: []string{proposal.NormalizeCommand(cmd)}},
		Steps: []proposal.Step{{
			StepID:     "s1",
			Action:     "run_command",
			Parameters: proposal.StepParams{Command: cmd, Cwd: h.wsRoot},
		}},
	})
	require.NoError(t, err)

	issued, err := h.gate.IssueApproval(context.Background(), p.ProposalID, time.Minute, true)
	require.NoError(t, err)

	res, err := h.gate.Execute(context.Background(), ExecuteRequest{
		ProposalID:   p.ProposalID,
		TokenSecret:  issued.Secret,
		Trust:        TrustTrusted,
		PreviewReady: true,
	})
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, res.Status)
	require.Len(t, res.Outputs, 1)
	assert.Equal(t, "governed\n", res.Outputs[0].Stdout)
	assert.Equal(t, 0, res.Outputs[0].ExitCode)
}

func TestRevokedTokenDenied(t *testing.T) {
	h := newHarness(t, nil)
	p := h.fileWriteProposal(t, "y.txt", "y")
	issued, err := h.gate.IssueApproval(context.Background(), p.ProposalID, time.Minute, false)
	require.NoError(t, err)

	revoked, err := h.gate.Revoke(context.Background(), approval.RevokeQuery{ProposalID: p.ProposalID})
	require.NoError(t, err)
	require.Len(t, revoked, 1)

	res, err := h.gate.Execute(context.Background(), ExecuteRequest{
		ProposalID:   p.ProposalID,
		TokenSecret:  issued.Secret,
		Trust:        TrustTrusted,
		PreviewReady: true,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusDenied, res.Status)
	assert.Equal(t, approval.ReasonRevoked, res.Reason)
}

func TestProposeRejectsUnknownCapability(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.gate.Propose(context.Background(), proposal.BuildInput{
		Capability: "time.travel_scoped",
		Summary:    "nope",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, faults.ErrCapability))
}

func TestProposeToolRequiresLoader(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.gate.ProposeTool(context.Background(), "greeter", nil, "job1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, faults.ErrVerify))
}

func TestToolPathThroughGate(t *testing.T) {
	toolsDir := t.TempDir()
	src := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "manifest.json"),
		[]byte(`{"name":"greeter","version":"1.0.0"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "tool.py"),
		[]byte("def run(args, ctx):\n    return {\"ok\": True}\n"), 0o644))

	reg := toolreg.NewRegistry(filepath.Join(toolsDir, "registry.json"))
	inst := toolreg.NewInstaller(reg, toolsDir)
	pctx := privilege.NewContext(privilege.Active,
		privilege.CapFSRead, privilege.CapFSWrite, privilege.CapToolInstall)
	_, err := inst.Install(src, "greeter", "1.0.0", pctx, "job1")
	require.NoError(t, err)

	profile := config.DefaultProfile()
	profile.Mode = config.ModeSystemAgent
	profile.EnableSystemAgent = true
	profile.SystemAgentAccept = config.SystemAgentPhrase

	ws, err := sandbox.NewWorkspace(toolsDir)
	require.NoError(t, err)
	loader := toolreg.NewLoader(reg, sandbox.NewRunner(ws), profile,
		audit.NewLog(filepath.Join(toolsDir, "audit")), filepath.Join(toolsDir, "staging"))

	registry, err := capability.NewRegistry(capability.Capability{
		ID: capability.IDShellExecScoped, RiskTier: "tier3", Enabled: true,
	})
	require.NoError(t, err)
	g, err := New(Options{
		Registry: registry,
		Profile:  profile,
		DataDir:  t.TempDir(),
		Tools:    loader,
	})
	require.NoError(t, err)

	tp, err := g.ProposeTool(context.Background(), "greeter", map[string]any{}, "job1")
	require.NoError(t, err)
	assert.NotEmpty(t, tp.TicketHash)
	assert.NotEmpty(t, tp.ApprovalPrompt)

	receipt := &approval.Receipt{
		TicketHash:  tp.TicketHash,
		ConfirmedAt: time.Now().UTC(),
		Method:      approval.MethodTyped,
		Scope:       "job1",
	}

	_, err = g.ExecuteTool(context.Background(), TrustUntrusted, tp.Ticket, receipt)
	require.Error(t, err)
	assert.True(t, errors.Is(err, faults.ErrPolicy))

	out, err := g.ExecuteTool(context.Background(), TrustTrusted, tp.Ticket, receipt)
	require.NoError(t, err)
	assert.Equal(t, true, out["ok"])
}

func TestExecuteUnknownProposal(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.gate.Execute(context.Background(), ExecuteRequest{
		ProposalID:  "deadbeefdeadbeefdead",
		TokenSecret: "whatever",
		Trust:       TrustTrusted,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, faults.ErrVerify))
}
