package job

import (
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/Mindburn-Labs/warden/pkg/faults"
	"github.com/Mindburn-Labs/warden/pkg/store"
)

// JournalEntry is one journaled engine step.
type JournalEntry struct {
	Timestamp time.Time `json:"ts"`
	JobID     string    `json:"job_id"`
	Phase     Phase     `json:"phase"`
	Note      string    `json:"note,omitempty"`
}

// Engine drives a job from NEW to the approval gate, journaling every phase
// change. Execution beyond AWAITING_APPROVAL is the approval holder's move,
// never the engine's.
type Engine struct {
	journalDir string
	clock      func() time.Time
}

// NewEngine creates an engine writing per-job journals under journalDir.
func NewEngine(journalDir string) *Engine {
	return &Engine{
		journalDir: journalDir,
		clock:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock for deterministic testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

func (e *Engine) journal(jobID string) *store.LineLog {
	return store.NewLineLog(filepath.Join(e.journalDir, jobID+".jsonl"))
}

func (e *Engine) record(j *Job, log *store.LineLog, note string) error {
	return log.Append(JournalEntry{Timestamp: e.clock(), JobID: j.JobID, Phase: j.Phase, Note: note})
}

// Prepare walks the job from NEW to AWAITING_APPROVAL. The plan is linted at
// PLAN_READY; lint findings fail the job. Context cancellation between
// phases lands the job in CANCELLED.
func (e *Engine) Prepare(ctx context.Context, j *Job, plan Plan, mode string, autonomy bool) error {
	log := e.journal(j.JobID)
	j.State = StateRunning
	if err := e.record(j, log, "job started"); err != nil {
		return err
	}

	advance := func(next Phase, note string) error {
		if err := ctx.Err(); err != nil {
			j.State = StateCancelled
			_ = e.record(j, log, "cancelled")
			return faults.Cancelled("job %s cancelled", j.JobID)
		}
		if err := j.Advance(next, false); err != nil {
			j.State = StateFailed
			j.Error = err.Error()
			_ = e.record(j, log, err.Error())
			return err
		}
		return e.record(j, log, note)
	}

	if err := advance(PhasePursuit, "gathering context"); err != nil {
		return err
	}
	if err := advance(PhasePlanReady, "plan drafted"); err != nil {
		return err
	}

	if findings := LintPlan(plan, mode, autonomy); len(findings) > 0 {
		j.State = StateFailed
		j.Error = findings[0]
		_ = j.Advance(PhaseFailed, false)
		_ = e.record(j, log, "plan lint failed: "+findings[0])
		return faults.Policy("plan lint: %s", findings[0])
	}

	if err := advance(PhaseSimDone, "simulation complete"); err != nil {
		return err
	}
	if err := advance(PhasePatchReady, "patch staged"); err != nil {
		return err
	}
	if err := advance(PhaseAwaitingApproval, "awaiting approval"); err != nil {
		return err
	}
	return nil
}

// BeginExecution crosses the approval gate. The receipt flag must reflect a
// validated approval; the lattice enforces its presence.
func (e *Engine) BeginExecution(j *Job, hasReceipt bool) error {
	log := e.journal(j.JobID)
	if err := j.Advance(PhaseExecuting, hasReceipt); err != nil {
		return err
	}
	return e.record(j, log, "executing")
}

// Complete finishes an executing job. A nil execErr lands in DONE; anything
// else in FAILED with the error recorded.
func (e *Engine) Complete(j *Job, execErr error) error {
	log := e.journal(j.JobID)
	if execErr == nil {
		if err := j.Advance(PhaseDone, false); err != nil {
			return err
		}
		j.State = StateCompleted
		return e.record(j, log, "done")
	}
	if err := j.Advance(PhaseFailed, false); err != nil {
		return err
	}
	j.State = StateFailed
	j.Error = execErr.Error()
	return e.record(j, log, "failed: "+execErr.Error())
}

// Rollback moves a failed or executing job to ROLLED_BACK.
func (e *Engine) Rollback(j *Job) error {
	log := e.journal(j.JobID)
	if err := j.Advance(PhaseRolledBack, false); err != nil {
		return err
	}
	return e.record(j, log, "rolled back")
}

// JournalEntries returns the journal rows for a job.
func (e *Engine) JournalEntries(jobID string) ([]JournalEntry, error) {
	raw, err := e.journal(jobID).ReadAll()
	if err != nil {
		return nil, err
	}
	out := make([]JournalEntry, 0, len(raw))
	for _, line := range raw {
		var entry JournalEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}
