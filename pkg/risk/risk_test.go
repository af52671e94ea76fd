package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Mindburn-Labs/warden/pkg/ticket"
)

func plain() ticket.ExecutionTicket {
	return ticket.New("job", "execute", [][]string{{"echo", "hello"}}, ".")
}

func TestEmptyCommandsDefaultLow(t *testing.T) {
	tk := ticket.New("job", "execute", nil, ".")
	report := Assess(tk, nil, nil)
	assert.Equal(t, TierLow, report.Tier)
	assert.Empty(t, report.Reasons)
	assert.Equal(t, ConfirmSingleClick, report.RequiredConfirm)
}

func TestDestructiveCommandCritical(t *testing.T) {
	tk := ticket.New("job", "execute", [][]string{{"rm", "-rf", "build"}}, ".")
	report := Assess(tk, nil, nil)
	assert.Equal(t, TierCritical, report.Tier)
	assert.Contains(t, report.Reasons, "destructive command pattern detected")
	assert.Contains(t, report.PotentialOutcomes, "data loss")
	assert.Equal(t, ConfirmTyped, report.RequiredConfirm)
}

func TestDependencyInstallHigh(t *testing.T) {
	tk := ticket.New("job", "execute", [][]string{{"pip", "install", "requests"}}, ".")
	report := Assess(tk, nil, nil)
	assert.Equal(t, TierHigh, report.Tier)
	assert.Contains(t, report.Reasons, "dependency install requested")
	assert.Contains(t, report.PotentialOutcomes, "environment changes")
}

func TestFlagRules(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ticket.ExecutionTicket)
		tier   Tier
		reason string
	}{
		{"network", func(x *ticket.ExecutionTicket) { x.AllowNetwork = true }, TierHigh, "network enabled"},
		{"external_apps", func(x *ticket.ExecutionTicket) { x.AllowExternalApps = true }, TierHigh, "external app access"},
		{"delete", func(x *ticket.ExecutionTicket) { x.AllowDelete = true }, TierCritical, "delete actions enabled"},
		{"system_wide", func(x *ticket.ExecutionTicket) { x.AllowSystemWide = true }, TierCritical, "system-wide actions enabled"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tk := plain()
			tc.mutate(&tk)
			report := Assess(tk, nil, nil)
			assert.Equal(t, tc.tier, report.Tier)
			assert.Contains(t, report.Reasons, tc.reason)
		})
	}
}

func TestProtectedPathCritical(t *testing.T) {
	tk := plain()
	tk.PathsRW = []string{"/protected/data/file.txt"}
	report := Assess(tk, nil, &Settings{ProtectedPaths: []string{"/protected/data"}})
	assert.Equal(t, TierCritical, report.Tier)
}

func TestProtectedPathSiblingNotMatched(t *testing.T) {
	// /protected/data2 is a sibling, not a child, of /protected/data.
	tk := plain()
	tk.PathsRW = []string{"/protected/data2/file.txt"}
	report := Assess(tk, nil, &Settings{ProtectedPaths: []string{"/protected/data"}})
	assert.Equal(t, TierLow, report.Tier)
}

func TestBulkTargetSetHigh(t *testing.T) {
	report := Assess(plain(), &TargetSet{ID: "ts-1", EstimatedCount: 40}, nil)
	assert.Equal(t, TierHigh, report.Tier)
	assert.Contains(t, report.Reasons, "bulk operation")
}

func TestTierOnlyRaises(t *testing.T) {
	// A CRITICAL trigger plus additional HIGH triggers must stay CRITICAL.
	tk := ticket.New("job", "execute", [][]string{{"rm", "-rf", "/tmp/x"}}, ".")
	base := Assess(tk, nil, nil)
	assert.Equal(t, TierCritical, base.Tier)

	tk.AllowNetwork = true
	tk.AllowDelete = true
	more := Assess(tk, &TargetSet{EstimatedCount: 10}, nil)
	assert.Equal(t, TierCritical, more.Tier)
	assert.GreaterOrEqual(t, len(more.Reasons), len(base.Reasons))
}

func TestConfirmationLadder(t *testing.T) {
	assert.Equal(t, ConfirmSingleClick, RequiredConfirmation(TierLow))
	assert.Equal(t, ConfirmDoubleConfirm, RequiredConfirmation(TierMedium))
	assert.Equal(t, ConfirmTyped, RequiredConfirmation(TierHigh))
	assert.Equal(t, ConfirmTyped, RequiredConfirmation(TierCritical))
}
