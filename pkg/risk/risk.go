// Package risk classifies execution tickets into ordered risk tiers.
//
// Assessment walks a fixed, additive rule set: each rule can only raise the
// tier, never lower it, so adding a triggering condition to a ticket is
// guaranteed to be monotone. The required confirmation strength is a pure
// function of the final tier.
package risk

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Mindburn-Labs/warden/pkg/pathsafe"
	"github.com/Mindburn-Labs/warden/pkg/ticket"
)

// Tier is an ordered severity classification.
type Tier string

const (
	TierLow      Tier = "LOW"
	TierMedium   Tier = "MEDIUM"
	TierHigh     Tier = "HIGH"
	TierCritical Tier = "CRITICAL"
)

// Rank returns the ordinal of the tier for monotonic comparison.
func (t Tier) Rank() int {
	switch t {
	case TierLow:
		return 0
	case TierMedium:
		return 1
	case TierHigh:
		return 2
	case TierCritical:
		return 3
	default:
		return 0
	}
}

// Confirmation is the approval strength a tier demands.
type Confirmation string

const (
	ConfirmSingleClick   Confirmation = "single_click"
	ConfirmDoubleConfirm Confirmation = "double_confirm"
	ConfirmTyped         Confirmation = "typed"
)

// Strength returns the ordinal of the confirmation method.
func (c Confirmation) Strength() int {
	switch c {
	case ConfirmSingleClick:
		return 1
	case ConfirmDoubleConfirm:
		return 2
	case ConfirmTyped:
		return 3
	default:
		return 0
	}
}

// RequiredConfirmation maps a final tier to the minimum approval strength.
func RequiredConfirmation(t Tier) Confirmation {
	switch t {
	case TierMedium:
		return ConfirmDoubleConfirm
	case TierHigh, TierCritical:
		return ConfirmTyped
	default:
		return ConfirmSingleClick
	}
}

// Report is the derived classification of a ticket. It is never persisted
// standalone; always recomputed from the ticket plus active settings.
type Report struct {
	Tier              Tier         `json:"tier"`
	Reasons           []string     `json:"reasons"`
	PotentialOutcomes []string     `json:"potential_outcomes"`
	RequiredConfirm   Confirmation `json:"required_confirm"`
}

// TargetSet is the subset of bulk-target metadata assessment needs.
type TargetSet struct {
	ID             string `json:"id"`
	EstimatedCount int    `json:"estimated_count"`
}

// Settings carries the policy inputs assessment depends on.
type Settings struct {
	ProtectedPaths []string
}

var destructivePatterns = []string{
	"rm",
	"del",
	"rmdir",
	"git clean -fdx",
	"git reset --hard",
	"curl|sh",
	"powershell",
	"iex",
}

var installPatterns = [][2]string{
	{"pip", "install"},
	{"npm", "install"},
}

// Assess classifies a ticket. Unknown or empty commands default to LOW with
// no reasons.
func Assess(t ticket.ExecutionTicket, targetSet *TargetSet, settings *Settings) Report {
	tier := TierLow
	raise := func(to Tier) {
		if to.Rank() > tier.Rank() {
			tier = to
		}
	}
	reasons := map[string]struct{}{}
	outcomes := map[string]struct{}{}

	flat := make([]string, 0, len(t.Commands))
	for _, cmd := range t.Commands {
		flat = append(flat, strings.ToLower(strings.Join(cmd, " ")))
	}

	for _, line := range flat {
		for _, pat := range destructivePatterns {
			if strings.Contains(line, pat) {
				raise(TierCritical)
				reasons["destructive command pattern detected"] = struct{}{}
				outcomes["data loss"] = struct{}{}
			}
		}
	}

	for _, cmd := range t.Commands {
		if len(cmd) < 2 {
			continue
		}
		for _, pat := range installPatterns {
			if cmd[0] == pat[0] && cmd[1] == pat[1] {
				raise(TierHigh)
				reasons["dependency install requested"] = struct{}{}
				outcomes["environment changes"] = struct{}{}
			}
		}
	}

	if t.AllowNetwork {
		raise(TierHigh)
		reasons["network enabled"] = struct{}{}
	}
	if t.AllowExternalApps {
		raise(TierHigh)
		reasons["external app access"] = struct{}{}
	}
	if t.AllowDelete {
		raise(TierCritical)
		reasons["delete actions enabled"] = struct{}{}
	}
	if t.AllowSystemWide {
		raise(TierCritical)
		reasons["system-wide actions enabled"] = struct{}{}
	}

	if settings != nil {
		for _, p := range t.PathsRW {
			for _, prot := range settings.ProtectedPaths {
				if pathsafe.Contains(prot, p) {
					raise(TierCritical)
					reasons[fmt.Sprintf("touches protected path: %s", p)] = struct{}{}
				}
			}
		}
	}

	if targetSet != nil && targetSet.EstimatedCount > 0 {
		raise(TierHigh)
		reasons["bulk operation"] = struct{}{}
	}

	return Report{
		Tier:              tier,
		Reasons:           sortedKeys(reasons),
		PotentialOutcomes: sortedKeys(outcomes),
		RequiredConfirm:   RequiredConfirmation(tier),
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
