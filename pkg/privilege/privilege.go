// Package privilege defines the ordered privilege ladder and the named
// capabilities an execution context may hold.
package privilege

import "github.com/Mindburn-Labs/warden/pkg/faults"

// Level is an ordered privilege tier.
type Level int

const (
	Safe Level = iota
	Active
)

func (l Level) String() string {
	switch l {
	case Active:
		return "ACTIVE"
	default:
		return "SAFE"
	}
}

// Named execution-context capabilities.
const (
	CapFSRead      = "fs.read"
	CapFSWrite     = "fs.write"
	CapShellExec   = "shell.exec"
	CapToolInstall = "tool.install"
	CapToolRun     = "tool.run"
)

// Context carries the privilege state of one job run.
type Context struct {
	Level        Level
	Capabilities map[string]bool
}

// NewContext builds a context holding the given capabilities.
func NewContext(level Level, caps ...string) *Context {
	m := make(map[string]bool, len(caps))
	for _, c := range caps {
		m[c] = true
	}
	return &Context{Level: level, Capabilities: m}
}

// Require fails unless the context reaches the given level.
func (c *Context) Require(level Level) error {
	if c == nil || c.Level < level {
		current := Safe
		if c != nil {
			current = c.Level
		}
		return faults.Privilege("privilege %s too low; requires %s", current, level)
	}
	return nil
}

// RequireCapability fails unless the context holds the named capability.
func (c *Context) RequireCapability(name string) error {
	if c == nil || !c.Capabilities[name] {
		return faults.Capability("missing capability: %s", name)
	}
	return nil
}
