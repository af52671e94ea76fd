// Package job tracks governed work through an explicit phase lattice, a
// durable intent queue, and a journaled engine driver.
//
// Phase transitions are validated against a fixed adjacency table. Entering
// EXECUTING additionally demands a present approval receipt; no transition
// can skip the approval gate.
package job

import "github.com/Mindburn-Labs/warden/pkg/faults"

// Phase is a job's position in the governed lifecycle.
type Phase string

const (
	PhaseNew              Phase = "NEW"
	PhasePursuit          Phase = "PURSUIT"
	PhasePlanReady        Phase = "PLAN_READY"
	PhaseSimDone          Phase = "SIM_DONE"
	PhasePatchReady       Phase = "PATCH_READY"
	PhaseAwaitingApproval Phase = "AWAITING_APPROVAL"
	PhaseExecuting        Phase = "EXECUTING"
	PhaseDone             Phase = "DONE"
	PhaseFailed           Phase = "FAILED"
	PhaseRolledBack       Phase = "ROLLED_BACK"
)

var allowedTransitions = map[Phase][]Phase{
	PhaseNew:              {PhasePursuit, PhaseFailed},
	PhasePursuit:          {PhasePlanReady, PhaseFailed},
	PhasePlanReady:        {PhaseSimDone, PhaseFailed},
	PhaseSimDone:          {PhasePatchReady, PhaseFailed},
	PhasePatchReady:       {PhaseAwaitingApproval, PhaseFailed},
	PhaseAwaitingApproval: {PhaseExecuting, PhaseFailed},
	PhaseExecuting:        {PhaseDone, PhaseFailed, PhaseRolledBack},
	PhaseFailed:           {PhaseRolledBack},
	PhaseRolledBack:       nil,
	PhaseDone:             nil,
}

// ValidateTransition rejects edges outside the lattice. EXECUTING is only
// reachable with a receipt present.
func ValidateTransition(current, next Phase, hasReceipt bool) error {
	allowed, ok := allowedTransitions[current]
	if !ok {
		return faults.Verify("unknown phase %q", current)
	}
	found := false
	for _, p := range allowed {
		if p == next {
			found = true
			break
		}
	}
	if !found {
		return faults.Verify("invalid transition %s -> %s", current, next)
	}
	if next == PhaseExecuting && !hasReceipt {
		return faults.Verify("EXECUTING requires a valid approval receipt")
	}
	return nil
}

// Terminal reports whether the phase has no outgoing edges.
func Terminal(p Phase) bool {
	return len(allowedTransitions[p]) == 0
}
