// Package sandbox confines side-effecting work to a workspace directory and
// runs external processes under resource limits.
//
// The workspace is a jail: every file operation resolves its target
// canonically and refuses anything outside the root. Process execution gets
// a minimal environment, a hard timeout, capped output, and a best-effort
// network guard when the ticket does not allow network access.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Mindburn-Labs/warden/pkg/faults"
	"github.com/Mindburn-Labs/warden/pkg/pathsafe"
)

// DefaultMaxFileBytes caps a single workspace write.
const DefaultMaxFileBytes = 10 << 20

// Workspace jails file operations under a root directory.
type Workspace struct {
	root         string
	maxFileBytes int64
}

// NewWorkspace canonicalizes root, creates it if needed, and returns the
// jail.
func NewWorkspace(root string) (*Workspace, error) {
	canonical, err := pathsafe.Canonical(root)
	if err != nil {
		return nil, fmt.Errorf("sandbox: resolve root: %w", err)
	}
	if err := os.MkdirAll(canonical, 0o755); err != nil {
		return nil, fmt.Errorf("sandbox: create root: %w", err)
	}
	return &Workspace{root: canonical, maxFileBytes: DefaultMaxFileBytes}, nil
}

// WithMaxFileBytes overrides the per-write size cap.
func (w *Workspace) WithMaxFileBytes(n int64) *Workspace {
	w.maxFileBytes = n
	return w
}

// Root returns the canonical jail root.
func (w *Workspace) Root() string { return w.root }

// Resolve canonicalizes path (absolute or workspace-relative) and rejects
// anything outside the jail.
func (w *Workspace) Resolve(path string) (string, error) {
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(w.root, p)
	}
	canonical, err := pathsafe.Canonical(p)
	if err != nil {
		return "", faults.Sandbox("unresolvable path: %s", path)
	}
	if !pathsafe.Contains(w.root, canonical) {
		return "", faults.Sandbox("path escapes workspace: %s", path)
	}
	return canonical, nil
}

// WriteFile writes content inside the jail, enforcing the size cap and
// creating parent directories.
func (w *Workspace) WriteFile(path string, content []byte) (string, error) {
	if int64(len(content)) > w.maxFileBytes {
		return "", faults.Sandbox("write of %d bytes exceeds cap of %d", len(content), w.maxFileBytes)
	}
	target, err := w.Resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("sandbox: mkdir: %w", err)
	}
	if err := os.WriteFile(target, content, 0o644); err != nil {
		return "", fmt.Errorf("sandbox: write %s: %w", target, err)
	}
	return target, nil
}

// ReadFile reads a file inside the jail.
func (w *Workspace) ReadFile(path string) ([]byte, error) {
	target, err := w.Resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("sandbox: read %s: %w", target, err)
	}
	return data, nil
}
