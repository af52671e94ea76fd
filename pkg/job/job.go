package job

import "time"

// State is the coarse lifecycle of one engine run, orthogonal to the phase
// lattice that governs execution gating.
type State string

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateVerified  State = "VERIFIED"
	StateInstalled State = "INSTALLED"
	StateCompleted State = "COMPLETED"
	StateCancelled State = "CANCELLED"
	StateFailed    State = "FAILED"
)

// Job is one unit of governed work.
type Job struct {
	JobID     string    `json:"job_id"`
	Objective string    `json:"objective"`
	State     State     `json:"state"`
	Phase     Phase     `json:"phase"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     string    `json:"error,omitempty"`
}

// NewJob constructs a pending job at phase NEW.
func NewJob(jobID, objective string) Job {
	now := time.Now().UTC()
	return Job{
		JobID:     jobID,
		Objective: objective,
		State:     StatePending,
		Phase:     PhaseNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance moves the job to next after lattice validation.
func (j *Job) Advance(next Phase, hasReceipt bool) error {
	if err := ValidateTransition(j.Phase, next, hasReceipt); err != nil {
		return err
	}
	j.Phase = next
	j.UpdatedAt = time.Now().UTC()
	return nil
}
