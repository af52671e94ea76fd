// Package policy enforces a proposal's declared scope and steps against the
// owning capability's rules.
//
// Enforce accumulates every violation rather than short-circuiting, and it
// never panics for expected policy failures: a denied proposal is an
// expected outcome, reported as structured violations.
//
// Step parameters must agree with the declared scope, so a proposal's steps
// cannot silently drift from what was shown to the approver.
package policy

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/Mindburn-Labs/warden/pkg/approval"
	"github.com/Mindburn-Labs/warden/pkg/capability"
	"github.com/Mindburn-Labs/warden/pkg/pathsafe"
	"github.com/Mindburn-Labs/warden/pkg/proposal"
)

// Violation codes.
const (
	CodeCapabilityDisabled  = "capability_disabled"
	CodeApprovalRequired    = "approval_required"
	CodeProposalMismatch    = "proposal_mismatch"
	CodePathTraversal       = "path_traversal"
	CodeOutsideAllowedRoots = "outside_allowed_roots"
	CodeProtectedPath       = "protected_path"
	CodeCommandNotAllowed   = "command_not_allowlisted"
	CodeCommandDenied       = "command_denylisted"
	CodeDiffPreviewMissing  = "diff_preview_missing"
	CodeStepPathMissing     = "step_path_missing"
	CodeScopeStepPath       = "scope_step_path_mismatch"
	CodeCmdPreviewMissing   = "command_preview_missing"
	CodeStepCommandMissing  = "step_command_missing"
	CodeScopeStepCommand    = "scope_step_command_mismatch"
	CodePreconditionFailed  = "precondition_failed"
	CodeCapabilityUnknown   = "capability_unknown"
)

// Violation is one structured policy error.
type Violation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Enforcer checks proposals against the capability registry.
type Enforcer struct {
	registry      *capability.Registry
	preconditions *capability.PreconditionEvaluator

	mu      sync.Mutex
	regexps map[string]*regexp.Regexp
}

// NewEnforcer creates an enforcer over the registry. The precondition
// evaluator is optional; without it, declared preconditions are skipped.
func NewEnforcer(registry *capability.Registry, pre *capability.PreconditionEvaluator) *Enforcer {
	return &Enforcer{
		registry:      registry,
		preconditions: pre,
		regexps:       make(map[string]*regexp.Regexp),
	}
}

// Enforce validates the proposal and its token against the owning
// capability. It returns ok plus every violation found.
func (e *Enforcer) Enforce(p proposal.Proposal, token *approval.TokenRecord, previewReady bool) (bool, []Violation) {
	var errs []Violation
	add := func(code, message string) {
		errs = append(errs, Violation{Code: code, Message: message})
	}

	c, err := e.registry.Get(p.Capability)
	if err != nil {
		add(CodeCapabilityUnknown, p.Capability)
		return false, errs
	}

	if !c.Enabled {
		add(CodeCapabilityDisabled, c.ID)
	}
	if c.RequiresApproval && token == nil {
		add(CodeApprovalRequired, "missing token")
	}
	tokenProposal := ""
	if token != nil {
		tokenProposal = token.ProposalID
	}
	if tokenProposal != p.ProposalID {
		add(CodeProposalMismatch, "token mismatch")
	}

	scopePaths := p.Scope.Paths
	scopeCommands := make([]string, 0, len(p.Scope.Commands))
	for _, c := range p.Scope.Commands {
		if n := strings.TrimSpace(c); n != "" {
			scopeCommands = append(scopeCommands, normalizeSpaces(n))
		}
	}

	for _, path := range scopePaths {
		if ok, reason := e.pathOK(path, c); !ok {
			add(reason, path)
		}
	}
	for _, cmd := range scopeCommands {
		e.checkCommand(cmd, c, add)
	}

	if e.preconditions != nil && len(c.Preconditions) > 0 {
		failed, err := e.preconditions.Evaluate(c, capability.Input{
			ScopePaths:    scopePaths,
			ScopeCommands: scopeCommands,
			Summary:       p.Summary,
			RiskTier:      p.RiskTier,
		})
		if err != nil {
			add(CodePreconditionFailed, err.Error())
		} else if failed != "" {
			add(CodePreconditionFailed, failed)
		}
	}

	switch c.Kind() {
	case capability.KindFileWrite:
		if !previewReady {
			add(CodeDiffPreviewMissing, "preview required")
		}
		for _, step := range p.Steps {
			stepPath := strings.TrimSpace(step.Parameters.Path)
			if stepPath == "" {
				add(CodeStepPathMissing, step.StepID)
				continue
			}
			if len(scopePaths) > 0 && !containsString(scopePaths, stepPath) {
				add(CodeScopeStepPath, stepPath)
			}
			if ok, reason := e.pathOK(stepPath, c); !ok {
				add(reason, stepPath)
			}
		}

	case capability.KindShellExec:
		if !previewReady {
			add(CodeCmdPreviewMissing, "preview required")
		}
		for _, step := range p.Steps {
			cmd := proposal.NormalizeCommand(step.Parameters.Command)
			if cmd == "" {
				add(CodeStepCommandMissing, step.StepID)
				continue
			}
			if len(scopeCommands) > 0 && !containsString(scopeCommands, cmd) {
				add(CodeScopeStepCommand, cmd)
			}
			e.checkCommand(cmd, c, add)

			cwd := strings.TrimSpace(step.Parameters.Cwd)
			if cwd == "" {
				cwd = "."
			}
			if ok, reason := e.pathOK(cwd, c); !ok {
				add("cwd_"+reason, cwd)
			}
		}

	case capability.KindMessageSend, capability.KindUnknown:
		// No step-level path/command agreement beyond scope checks.
	}

	return len(errs) == 0, errs
}

// pathOK rejects traversal, then requires canonical containment in the
// capability's allowed roots and outside its protected paths.
func (e *Enforcer) pathOK(path string, c capability.Capability) (bool, string) {
	if pathsafe.HasTraversal(path) {
		return false, CodePathTraversal
	}
	if len(c.AllowedRoots) > 0 && !pathsafe.ContainsAny(c.AllowedRoots, path) {
		return false, CodeOutsideAllowedRoots
	}
	for _, prot := range c.ProtectedPaths {
		if pathsafe.Contains(prot, path) {
			return false, CodeProtectedPath
		}
	}
	return true, ""
}

// checkCommand verifies the head token against the allowlist and the full
// command against every deny pattern (case-insensitive).
func (e *Enforcer) checkCommand(cmd string, c capability.Capability, add func(code, message string)) {
	head := cmd
	if idx := strings.IndexByte(cmd, ' '); idx >= 0 {
		head = cmd[:idx]
	}
	if len(c.AllowCommands) > 0 && !containsString(c.AllowCommands, head) {
		add(CodeCommandNotAllowed, cmd)
	}
	for _, pat := range c.DenyPatterns {
		re, err := e.compile(pat)
		if err != nil {
			add(CodeCommandDenied, fmt.Sprintf("bad deny pattern %q", pat))
			continue
		}
		if re.MatchString(cmd) {
			add(CodeCommandDenied, cmd)
		}
	}
}

func (e *Enforcer) compile(pattern string) (*regexp.Regexp, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if re, ok := e.regexps[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}
	e.regexps[pattern] = re
	return re, nil
}

func containsString(list []string, needle string) bool {
	for _, s := range list {
		if s == needle {
			return true
		}
	}
	return false
}

func normalizeSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
