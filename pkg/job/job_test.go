package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/warden/pkg/faults"
)

func TestValidateTransition(t *testing.T) {
	cases := []struct {
		current, next Phase
		hasReceipt    bool
		ok            bool
	}{
		{PhaseNew, PhasePursuit, false, true},
		{PhaseNew, PhaseExecuting, true, false},
		{PhasePursuit, PhasePlanReady, false, true},
		{PhasePlanReady, PhasePatchReady, false, false},
		{PhaseAwaitingApproval, PhaseExecuting, true, true},
		{PhaseAwaitingApproval, PhaseExecuting, false, false},
		{PhaseExecuting, PhaseDone, false, true},
		{PhaseExecuting, PhaseRolledBack, false, true},
		{PhaseFailed, PhaseRolledBack, false, true},
		{PhaseDone, PhaseFailed, false, false},
		{PhaseRolledBack, PhaseNew, false, false},
	}
	for _, tc := range cases {
		err := ValidateTransition(tc.current, tc.next, tc.hasReceipt)
		if tc.ok {
			assert.NoError(t, err, "%s -> %s", tc.current, tc.next)
		} else {
			assert.Error(t, err, "%s -> %s", tc.current, tc.next)
		}
	}
}

func TestTerminalPhases(t *testing.T) {
	assert.True(t, Terminal(PhaseDone))
	assert.True(t, Terminal(PhaseRolledBack))
	assert.False(t, Terminal(PhaseFailed))
	assert.False(t, Terminal(PhaseNew))
}

func TestQueuePushAndSetState(t *testing.T) {
	q := NewQueue(t.TempDir())

	require.NoError(t, q.Push(Item{IntentID: "i1", Summary: "first", State: "pending"}))
	require.NoError(t, q.Push(Item{IntentID: "i2", Summary: "second", State: "pending"}))

	items, err := q.List()
	require.NoError(t, err)
	require.Len(t, items, 2)

	updated, err := q.SetState("i1", "approved")
	require.NoError(t, err)
	assert.Equal(t, "approved", updated.State)

	_, err = q.SetState("missing", "x")
	assert.Error(t, err)
}

func TestQueueRecoversFromCorruption(t *testing.T) {
	dir := t.TempDir()
	q := NewQueue(dir)
	require.NoError(t, q.Push(Item{IntentID: "i1", State: "pending"}))

	// Truncate the document mid-write.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "queue.json"), []byte(`[{"intent_id": "i1",`), 0o644))

	items, err := q.List()
	require.NoError(t, err)
	assert.Empty(t, items)

	broken, err := filepath.Glob(filepath.Join(dir, "queue.json.*.broken"))
	require.NoError(t, err)
	assert.Len(t, broken, 1)

	history, err := q.History()
	require.NoError(t, err)
	var events []string
	for _, h := range history {
		events = append(events, h["event"].(string))
	}
	assert.Contains(t, events, "queue_recovered")

	// The queue keeps working after recovery.
	require.NoError(t, q.Push(Item{IntentID: "i2", State: "pending"}))
	items, err = q.List()
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestLintPlan(t *testing.T) {
	t.Run("safe mode blocks execution verbs", func(t *testing.T) {
		errs := LintPlan(Plan{Steps: []string{"install the package"}}, "safe", false)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0], "SAFE")
	})

	t.Run("high risk needs rollback", func(t *testing.T) {
		errs := LintPlan(Plan{Steps: []string{"delete old records"}}, "guided", false)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0], "rollback")

		errs = LintPlan(Plan{Steps: []string{"delete old records", "rollback: restore from backup"}}, "guided", false)
		assert.Empty(t, errs)
	})

	t.Run("bulk needs safeguards", func(t *testing.T) {
		errs := LintPlan(Plan{Steps: []string{"bulk update entries"}}, "guided", false)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0], "safeguards")

		errs = LintPlan(Plan{Steps: []string{
			"bulk update entries matching criteria",
			"show sample and dry run results",
			"checkpoint before applying",
		}}, "guided", false)
		assert.Empty(t, errs)
	})

	t.Run("network needs justification", func(t *testing.T) {
		errs := LintPlan(Plan{Steps: []string{"enable network access"}}, "guided", false)
		require.Len(t, errs, 1)

		errs = LintPlan(Plan{Steps: []string{"enable network access", "justification: fetch docs"}}, "guided", false)
		assert.Empty(t, errs)
	})
}

func TestEnginePrepare(t *testing.T) {
	e := NewEngine(t.TempDir())
	j := NewJob("job1", "update notes")

	plan := Plan{Steps: []string{"draft patch for notes file"}}
	require.NoError(t, e.Prepare(context.Background(), &j, plan, "guided", false))
	assert.Equal(t, PhaseAwaitingApproval, j.Phase)
	assert.Equal(t, StateRunning, j.State)

	entries, err := e.JournalEntries("job1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(entries), 6)
}

func TestEnginePrepareLintFailure(t *testing.T) {
	e := NewEngine(t.TempDir())
	j := NewJob("job2", "risky work")

	plan := Plan{Steps: []string{"delete everything"}}
	err := e.Prepare(context.Background(), &j, plan, "guided", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, faults.ErrPolicy))
	assert.Equal(t, PhaseFailed, j.Phase)
	assert.Equal(t, StateFailed, j.State)
}

func TestEnginePrepareCancelled(t *testing.T) {
	e := NewEngine(t.TempDir())
	j := NewJob("job3", "work")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.Prepare(ctx, &j, Plan{Steps: []string{"step"}}, "guided", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, faults.ErrCancelled))
	assert.Equal(t, StateCancelled, j.State)
}

func TestEngineExecutionLifecycle(t *testing.T) {
	e := NewEngine(t.TempDir())
	j := NewJob("job4", "work")
	require.NoError(t, e.Prepare(context.Background(), &j, Plan{Steps: []string{"patch"}}, "guided", false))

	// No receipt, no execution.
	err := e.BeginExecution(&j, false)
	require.Error(t, err)
	assert.Equal(t, PhaseAwaitingApproval, j.Phase)

	require.NoError(t, e.BeginExecution(&j, true))
	assert.Equal(t, PhaseExecuting, j.Phase)

	require.NoError(t, e.Complete(&j, nil))
	assert.Equal(t, PhaseDone, j.Phase)
	assert.Equal(t, StateCompleted, j.State)
}

func TestEngineFailureAndRollback(t *testing.T) {
	e := NewEngine(t.TempDir())
	j := NewJob("job5", "work")
	require.NoError(t, e.Prepare(context.Background(), &j, Plan{Steps: []string{"patch"}}, "guided", false))
	require.NoError(t, e.BeginExecution(&j, true))

	require.NoError(t, e.Complete(&j, errors.New("tool exploded")))
	assert.Equal(t, PhaseFailed, j.Phase)
	assert.Equal(t, "tool exploded", j.Error)

	require.NoError(t, e.Rollback(&j))
	assert.Equal(t, PhaseRolledBack, j.Phase)
}
