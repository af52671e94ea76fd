package toolreg

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Mindburn-Labs/warden/pkg/approval"
	"github.com/Mindburn-Labs/warden/pkg/audit"
	"github.com/Mindburn-Labs/warden/pkg/canonicalize"
	"github.com/Mindburn-Labs/warden/pkg/config"
	"github.com/Mindburn-Labs/warden/pkg/faults"
	"github.com/Mindburn-Labs/warden/pkg/pathsafe"
	"github.com/Mindburn-Labs/warden/pkg/risk"
	"github.com/Mindburn-Labs/warden/pkg/sandbox"
	"github.com/Mindburn-Labs/warden/pkg/ticket"
)

// runContract matches a module-level Python function definition
// run(args, ctx, ...). Static presence of the contract is checked before any
// execution is proposed.
var runContract = regexp.MustCompile(`(?m)^def\s+run\s*\(\s*args\s*,\s*ctx\b`)

// execBootstrap loads tool.py from the working directory and prints the JSON
// result of run(args, ctx).
const execBootstrap = `import json,importlib.util
args=json.loads(__import__('sys').argv[1])
spec=importlib.util.spec_from_file_location('tool_runtime', 'tool.py')
mod=importlib.util.module_from_spec(spec)
spec.loader.exec_module(mod)
print(json.dumps(mod.run(args, {'approved': True})))
`

// Loader verifies installed tools and turns invocations into governed
// execution tickets.
type Loader struct {
	registry    *Registry
	runner      *sandbox.Runner
	profile     *config.Profile
	auditLog    *audit.Log
	stagingBase string
}

// NewLoader builds a loader. stagingBase is the per-job staging area GUIDED
// mode confines execution to.
func NewLoader(registry *Registry, runner *sandbox.Runner, profile *config.Profile, auditLog *audit.Log, stagingBase string) *Loader {
	return &Loader{
		registry:    registry,
		runner:      runner,
		profile:     profile,
		auditLog:    auditLog,
		stagingBase: stagingBase,
	}
}

// Verify re-checks the installed tool against its registered hashes: the
// file set must match exactly and every hash must agree.
func (l *Loader) Verify(entry *Entry) error {
	expected := make([]string, 0, len(entry.Hashes))
	for rel := range entry.Hashes {
		expected = append(expected, rel)
	}
	sort.Strings(expected)

	var actual []string
	err := filepath.WalkDir(entry.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if hashIgnoreDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(entry.Path, path)
		if err != nil {
			return err
		}
		actual = append(actual, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return faults.VerifyWrap(err, "walk installed tool %s", entry.Name)
	}
	sort.Strings(actual)

	if len(actual) != len(expected) {
		return faults.Verify("installed file set mismatch for %s", entry.Name)
	}
	for i := range actual {
		if actual[i] != expected[i] {
			return faults.Verify("installed file set mismatch for %s", entry.Name)
		}
	}
	for rel, want := range entry.Hashes {
		got, err := canonicalize.HashFile(filepath.Join(entry.Path, filepath.FromSlash(rel)))
		if err != nil {
			return faults.Verify("missing hashed file: %s", rel)
		}
		if got != want {
			return faults.Verify("hash mismatch for %s", rel)
		}
	}
	return nil
}

// ValidateContract statically checks that tool.py defines run(args, ctx).
func ValidateContract(toolPath string) error {
	source, err := os.ReadFile(toolPath)
	if err != nil {
		return faults.Verify("tool.py unreadable: %v", err)
	}
	if !runContract.Match(source) {
		return faults.Verify("tool.py missing callable run(args, ctx)")
	}
	return nil
}

// validateArgs checks args against the tool's declared input schema, when
// one exists.
func validateArgs(entry *Entry, args map[string]any) error {
	if len(entry.InputSchema) == 0 {
		return nil
	}
	schema, err := jsonschema.CompileString(entry.Name+".schema.json", string(entry.InputSchema))
	if err != nil {
		return faults.Verify("invalid input schema for %s: %v", entry.Name, err)
	}
	// The validator wants plain decoded JSON.
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("toolreg: encode args: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("toolreg: decode args: %w", err)
	}
	if err := schema.Validate(decoded); err != nil {
		return faults.Verify("args rejected by input schema: %v", err)
	}
	return nil
}

// ProposeExec verifies the named tool end-to-end and returns the execution
// ticket that must be approved before ExecuteWithApproval will run it.
func (l *Loader) ProposeExec(name string, args map[string]any, jobID string) (ticket.ExecutionTicket, error) {
	entry, err := l.registry.Find(name)
	if err != nil {
		return ticket.ExecutionTicket{}, err
	}
	if entry == nil {
		return ticket.ExecutionTicket{}, faults.Verify("tool not found: %s", name)
	}
	if err := l.Verify(entry); err != nil {
		return ticket.ExecutionTicket{}, err
	}
	if err := ValidateContract(filepath.Join(entry.Path, "tool.py")); err != nil {
		return ticket.ExecutionTicket{}, err
	}
	if err := validateArgs(entry, args); err != nil {
		return ticket.ExecutionTicket{}, err
	}

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return ticket.ExecutionTicket{}, fmt.Errorf("toolreg: encode args: %w", err)
	}
	code := execBootstrap
	if !l.profile.AllowNetwork {
		code = sandbox.NetworkGuard + code
	}

	t := ticket.New(jobID, "execute", [][]string{
		{"python3", "-I", "-c", code, string(argsJSON)},
	}, entry.Path)
	t.AllowNetwork = l.profile.AllowNetwork
	t.AllowExternalApps = l.profile.AllowExternalApps
	t.AllowDelete = l.profile.AllowDelete
	t.AllowSystemWide = l.profile.AllowSystemWide
	t.PathsRW = []string{entry.Path}
	t.TimeoutSeconds = l.profile.ExecTimeoutSeconds
	t.OutputCapKB = l.profile.MaxOutputKB
	return t, nil
}

// ExecuteWithApproval runs an approved ticket. The receipt must match the
// ticket's current hash at the required strength; mode guards are checked
// after approval so a stale receipt can never bypass a tightened profile.
func (l *Loader) ExecuteWithApproval(ctx context.Context, t ticket.ExecutionTicket, receipt *approval.Receipt) (map[string]any, error) {
	th, err := ticket.Hash(t)
	if err != nil {
		return nil, err
	}
	report := risk.Assess(t, nil, &risk.Settings{ProtectedPaths: l.profile.ProtectedPaths})
	if err := approval.ValidateReceipt(th, receipt, report.Tier); err != nil {
		return nil, err
	}
	if err := ticket.ValidateIntegrity(t, receipt.TicketHash); err != nil {
		return nil, err
	}
	_, _ = l.auditLog.Append(audit.Entry{
		EventType: audit.EventExecStarted,
		Summary:   fmt.Sprintf("approval granted for job %s", t.JobID),
		Metadata:  map[string]any{"ticket_hash": th, "risk": string(report.Tier)},
	})

	if l.profile.NormalizedMode() == config.ModeSafe {
		return nil, faults.Policy("SAFE mode cannot execute")
	}
	if err := l.runtimeGuards(t); err != nil {
		return nil, err
	}

	if len(t.Commands) == 0 {
		return nil, faults.Verify("ticket carries no commands")
	}
	res, runErr := l.runner.Run(ctx, sandbox.CommandSpec{
		Argv:           t.Commands[0],
		Cwd:            t.Cwd,
		EnvOverrides:   t.EnvOverrides,
		TimeoutSeconds: t.TimeoutSeconds,
		OutputCapKB:    t.OutputCapKB,
		AllowNetwork:   t.AllowNetwork,
	})
	_, _ = l.auditLog.Append(audit.Entry{
		EventType: audit.EventExecFinished,
		Summary:   fmt.Sprintf("execution ended for job %s", t.JobID),
		Metadata:  map[string]any{"ticket_hash": th, "exit_code": res.ExitCode},
	})
	if runErr != nil {
		return nil, runErr
	}

	out := strings.TrimSpace(res.Stdout)
	if out == "" {
		return map[string]any{}, nil
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		return nil, faults.Verify("tool produced non-JSON output")
	}
	return payload, nil
}

// runtimeGuards applies the mode-dependent execution policy.
func (l *Loader) runtimeGuards(t ticket.ExecutionTicket) error {
	mode := l.profile.NormalizedMode()

	if mode != config.ModeSystemAgent {
		var lines []string
		for _, cmd := range t.Commands {
			lines = append(lines, strings.ToLower(strings.Join(cmd, " ")))
		}
		cmdText := strings.Join(lines, "\n")
		for _, pat := range l.profile.NeverDoPatterns {
			if strings.Contains(cmdText, strings.ToLower(pat)) {
				return faults.Policy("command pattern blocked by never-do policy: %s", pat)
			}
		}
		if t.AllowSystemWide {
			return faults.Policy("system-wide execution requires SYSTEM_AGENT mode")
		}
		for _, rw := range t.PathsRW {
			if pathsafe.ContainsAny(l.profile.ProtectedPaths, rw) {
				return faults.Policy("protected path blocked: %s", rw)
			}
		}
	}

	if mode == config.ModeGuided {
		stagingRoot := filepath.Join(l.stagingBase, t.JobID, "staging_repo")
		if !pathsafe.Contains(stagingRoot, t.Cwd) {
			return faults.Policy("GUIDED mode allows execution only in the staging workspace")
		}
	}
	return nil
}
