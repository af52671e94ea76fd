// Package capability declares named, policy-scoped classes of permitted
// action and the registry they are loaded from.
//
// Capability kinds are a closed enumeration: enforcement and execution sites
// switch over Kind, so adding a capability class is a compile-time-checked
// exercise rather than open-ended string dispatch.
package capability

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Well-known capability IDs.
const (
	IDFileWriteScoped   = "file.write_scoped"
	IDShellExecScoped   = "shell.exec_scoped"
	IDMessageSendScoped = "message.send_scoped"
)

// Kind is the closed set of capability classes.
type Kind int

const (
	KindUnknown Kind = iota
	KindFileWrite
	KindShellExec
	KindMessageSend
)

// KindOf maps a capability ID to its class.
func KindOf(id string) Kind {
	switch id {
	case IDFileWriteScoped:
		return KindFileWrite
	case IDShellExecScoped:
		return KindShellExec
	case IDMessageSendScoped:
		return KindMessageSend
	default:
		return KindUnknown
	}
}

func (k Kind) String() string {
	switch k {
	case KindFileWrite:
		return "file_write"
	case KindShellExec:
		return "shell_exec"
	case KindMessageSend:
		return "message_send"
	default:
		return "unknown"
	}
}

// Valid risk tiers for capabilities. tier2 and above require approval.
var riskTiers = map[string]bool{
	"tier0": true, "tier1": true, "tier2": true, "tier3": true, "tier4": true,
}

// Capability governs one class of scoped action.
type Capability struct {
	ID               string   `json:"id"`
	RiskTier         string   `json:"risk_tier"`
	Enabled          bool     `json:"enabled"`
	RequiresApproval bool     `json:"requires_approval"`
	AllowedRoots     []string `json:"allowed_roots,omitempty"`
	ProtectedPaths   []string `json:"protected_paths,omitempty"`
	AllowCommands    []string `json:"command_allowlist,omitempty"`
	DenyPatterns     []string `json:"command_denylist_patterns,omitempty"`
	Preconditions    []string `json:"preconditions,omitempty"`
}

// Kind returns the capability's class.
func (c Capability) Kind() Kind { return KindOf(c.ID) }

// registryFile is the on-disk document shape.
type registryFile struct {
	Capabilities []Capability `json:"capabilities"`
}

// Registry holds the declarative capability set, loaded once per process
// construction.
type Registry struct {
	capabilities map[string]Capability
}

// LoadRegistry reads and validates the capability registry JSON document.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("capability: read registry: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry builds a registry from raw JSON.
func ParseRegistry(data []byte) (*Registry, error) {
	var doc registryFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("capability: decode registry: %w", err)
	}
	caps := make(map[string]Capability, len(doc.Capabilities))
	for _, c := range doc.Capabilities {
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			return nil, fmt.Errorf("capability: id required")
		}
		if !riskTiers[c.RiskTier] {
			return nil, fmt.Errorf("capability: invalid tier %q for %s", c.RiskTier, c.ID)
		}
		// tier2+ always demands approval regardless of the declared flag.
		switch c.RiskTier {
		case "tier2", "tier3", "tier4":
			c.RequiresApproval = true
		}
		caps[c.ID] = c
	}
	return &Registry{capabilities: caps}, nil
}

// NewRegistry builds a registry from in-memory capabilities (tests, embedded
// defaults).
func NewRegistry(caps ...Capability) (*Registry, error) {
	doc := registryFile{Capabilities: caps}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return ParseRegistry(data)
}

// Get returns the capability or an error when absent.
func (r *Registry) Get(id string) (Capability, error) {
	c, ok := r.capabilities[id]
	if !ok {
		return Capability{}, fmt.Errorf("capability not found: %s", id)
	}
	return c, nil
}

// List returns all capability IDs.
func (r *Registry) List() []string {
	out := make([]string, 0, len(r.capabilities))
	for id := range r.capabilities {
		out = append(out, id)
	}
	return out
}
