package job

import "strings"

// Plan is the linted unit: ordered free-text steps plus the mode they will
// run under.
type Plan struct {
	Steps []string `json:"steps"`
}

// LintPlan applies the plan hygiene rules and returns every finding. An
// empty slice means the plan is acceptable for its mode.
func LintPlan(plan Plan, mode string, autonomy bool) []string {
	var errs []string
	low := strings.ToLower(strings.Join(plan.Steps, "\n"))
	modeUp := strings.ToUpper(mode)

	if modeUp == "SAFE" || autonomy {
		if containsAnyOf(low, "execute", "run", "install", "apply now") {
			errs = append(errs, "attempts execution in SAFE/autonomy mode")
		}
	}
	if containsAnyOf(low, "high risk", "critical", "delete", "system-wide") && !strings.Contains(low, "rollback") {
		errs = append(errs, "high-risk plans must include rollback")
	}
	if strings.Contains(low, "bulk") && !containsAllOf(low, "criteria", "sample", "dry run", "checkpoint") {
		errs = append(errs, "bulk actions require safeguards (criteria/sample/dry-run/checkpoint)")
	}
	if strings.Contains(low, "network") && !strings.Contains(low, "justification") {
		errs = append(errs, "network enablement requires justification")
	}
	return errs
}

func containsAnyOf(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func containsAllOf(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
