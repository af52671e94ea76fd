package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/Mindburn-Labs/warden/pkg/faults"
)

// NetworkGuard is prepended to sandboxed Python entrypoints when the ticket
// does not allow network access. It replaces socket construction before any
// tool code runs.
const NetworkGuard = `import socket as _socket
def _deny(*a, **k):
    raise OSError("network access disabled")
_socket.socket = _deny
_socket.create_connection = _deny
`

// CommandSpec describes one sandboxed process invocation.
type CommandSpec struct {
	Argv           []string
	Cwd            string
	EnvOverrides   map[string]string
	TimeoutSeconds int
	OutputCapKB    int
	AllowNetwork   bool
	Limits         *Limits
}

// Result is the captured outcome of a sandboxed process.
type Result struct {
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	ExitCode  int           `json:"exit_code"`
	Truncated bool          `json:"truncated"`
	Duration  time.Duration `json:"duration"`
	TimedOut  bool          `json:"timed_out"`
}

// Runner executes processes confined to a workspace.
type Runner struct {
	workspace *Workspace
}

// NewRunner creates a runner over the workspace jail.
func NewRunner(w *Workspace) *Runner {
	return &Runner{workspace: w}
}

// Run executes the spec. The child gets a minimal environment, its cwd must
// resolve inside the workspace, output is capped, and the deadline is
// enforced with a hard kill.
func (r *Runner) Run(ctx context.Context, spec CommandSpec) (Result, error) {
	if len(spec.Argv) == 0 {
		return Result{}, faults.Verify("empty command")
	}
	cwd := spec.Cwd
	if cwd == "" {
		cwd = r.workspace.Root()
	}
	resolvedCwd, err := r.workspace.Resolve(cwd)
	if err != nil {
		return Result{}, err
	}

	timeout := time.Duration(spec.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = resolvedCwd
	cmd.Env = minimalEnv(spec.EnvOverrides)
	cmd.WaitDelay = 2 * time.Second

	capBytes := spec.OutputCapKB * 1024
	if capBytes <= 0 {
		capBytes = 512 * 1024
	}
	stdout := newCapWriter(capBytes)
	stderr := newCapWriter(capBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, faults.VerifyWrap(err, "start %s", spec.Argv[0])
	}
	limits := DefaultLimits
	if spec.Limits != nil {
		limits = *spec.Limits
	}
	_ = applyLimits(cmd.Process.Pid, limits)

	waitErr := cmd.Wait()
	res := Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.truncated || stderr.truncated,
		Duration:  time.Since(start),
	}
	if ctx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = -1
		return res, faults.Verify("command timed out after %s", timeout)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		res.ExitCode = -1
		return res, faults.Cancelled("command cancelled")
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, faults.Verify("command exited %d", res.ExitCode)
		}
		return res, faults.VerifyWrap(waitErr, "wait %s", spec.Argv[0])
	}
	return res, nil
}

// RunTool executes a Python tool script under the jail and decodes its JSON
// stdout. Tools receive their arguments as a single JSON argv element.
func (r *Runner) RunTool(ctx context.Context, scriptPath string, args map[string]any, spec CommandSpec) (map[string]any, Result, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, Result{}, fmt.Errorf("sandbox: encode args: %w", err)
	}

	bootstrap := ""
	if !spec.AllowNetwork {
		bootstrap = NetworkGuard
	}
	bootstrap += fmt.Sprintf(`import runpy, sys
sys.argv = [%q, %q]
runpy.run_path(%q, run_name="__main__")
`, scriptPath, string(argsJSON), scriptPath)

	spec.Argv = []string{pythonBinary(), "-c", bootstrap}
	res, err := r.Run(ctx, spec)
	if err != nil {
		return nil, res, err
	}

	out := strings.TrimSpace(res.Stdout)
	var payload map[string]any
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		return nil, res, faults.Verify("tool produced non-JSON output")
	}
	return payload, res, nil
}

// minimalEnv builds the child environment: PATH and HOME plus explicit
// overrides. Nothing else leaks from the parent.
func minimalEnv(overrides map[string]string) []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + os.Getenv("HOME"),
	}
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}

func pythonBinary() string {
	if p, err := exec.LookPath("python3"); err == nil {
		return p
	}
	return "python"
}

// capWriter buffers up to cap bytes and discards the rest, recording that
// truncation happened.
type capWriter struct {
	buf       bytes.Buffer
	cap       int
	truncated bool
}

func newCapWriter(capBytes int) *capWriter {
	return &capWriter{cap: capBytes}
}

func (w *capWriter) Write(p []byte) (int, error) {
	remaining := w.cap - w.buf.Len()
	if remaining <= 0 {
		w.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		w.truncated = true
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}

func (w *capWriter) String() string { return w.buf.String() }
