package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Operating modes, in increasing order of permitted blast radius.
const (
	ModeSafe        = "SAFE"
	ModeGuided      = "GUIDED"
	ModeSystemAgent = "SYSTEM_AGENT"
)

// SystemAgentPhrase is the exact typed acknowledgement SYSTEM_AGENT mode
// demands.
const SystemAgentPhrase = "I ACKNOWLEDGE SYSTEM_AGENT RISK"

// Profile is the YAML safety profile governing execution policy.
type Profile struct {
	Mode string `yaml:"mode" json:"mode"`

	EnableSystemAgent bool   `yaml:"enable_system_agent" json:"enable_system_agent"`
	SystemAgentAccept string `yaml:"system_agent_accept_risk" json:"system_agent_accept_risk"`

	AllowNetwork      bool `yaml:"allow_network" json:"allow_network"`
	AllowExternalApps bool `yaml:"allow_external_apps" json:"allow_external_apps"`
	AllowDelete       bool `yaml:"allow_delete_actions" json:"allow_delete_actions"`
	AllowSystemWide   bool `yaml:"allow_system_wide_actions" json:"allow_system_wide_actions"`

	ProtectedPaths  []string `yaml:"protected_paths" json:"protected_paths"`
	SafeCommands    []string `yaml:"safe_allowed_commands" json:"safe_allowed_commands"`
	NeverDoPatterns []string `yaml:"never_do_patterns" json:"never_do_patterns"`

	ExecTimeoutSeconds int `yaml:"exec_timeout_seconds" json:"exec_timeout_seconds"`
	MaxOutputKB        int `yaml:"max_output_kb" json:"max_output_kb"`
	MaxBulkItems       int `yaml:"max_bulk_items" json:"max_bulk_items"`
}

// DefaultProfile is the fail-safe policy used when no profile file exists.
func DefaultProfile() *Profile {
	return &Profile{
		Mode: ModeSafe,
		ProtectedPaths: []string{
			"~",
			"~/Documents",
			"~/Desktop",
			"~/Downloads",
			"~/.ssh",
			"~/.gnupg",
			"/etc",
			"/usr",
			"/var",
		},
		NeverDoPatterns: []string{
			"rm -rf /",
			"mkfs",
			"dd if=",
			"shutdown",
			"reboot",
		},
		ExecTimeoutSeconds: 30,
		MaxOutputKB:        512,
		MaxBulkItems:       200,
	}
}

// LoadProfile reads and validates the profile at path. A missing file yields
// the default SAFE profile.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultProfile(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read profile: %w", err)
	}

	p := DefaultProfile()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("config: parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// NormalizedMode returns the upper-cased mode, defaulting to SAFE.
func (p *Profile) NormalizedMode() string {
	m := strings.ToUpper(strings.TrimSpace(p.Mode))
	if m == "" {
		return ModeSafe
	}
	return m
}

// Validate enforces the high-friction SYSTEM_AGENT opt-in: the mode is
// unusable without both the enable flag and the exact typed phrase.
func (p *Profile) Validate() error {
	switch p.NormalizedMode() {
	case ModeSafe, ModeGuided:
		return nil
	case ModeSystemAgent:
		if !p.EnableSystemAgent {
			return fmt.Errorf("config: SYSTEM_AGENT mode requires enable_system_agent: true")
		}
		if p.SystemAgentAccept != SystemAgentPhrase {
			return fmt.Errorf("config: SYSTEM_AGENT mode requires the exact typed risk phrase")
		}
		return nil
	default:
		return fmt.Errorf("config: unknown mode %q", p.Mode)
	}
}
