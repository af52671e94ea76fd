// Package ticket defines the immutable, content-addressed description of a
// proposed side-effecting action.
//
// A ticket's identity is a SHA-256 digest over its canonical serialization:
// two independently constructed tickets with the same semantic content hash
// identically, and any field mutation changes the hash, invalidating prior
// approvals.
package ticket

import (
	"sort"
	"time"

	"github.com/Mindburn-Labs/warden/pkg/canonicalize"
	"github.com/Mindburn-Labs/warden/pkg/faults"
)

// ExecutionTicket describes a fully-specified action awaiting approval.
// Treat as immutable after construction; mutation is detected by hash.
type ExecutionTicket struct {
	JobID               string            `json:"job_id"`
	Action              string            `json:"action"`
	Commands            [][]string        `json:"commands"`
	Cwd                 string            `json:"cwd"`
	AllowedCapabilities []string          `json:"allowed_capabilities,omitempty"`
	EnvOverrides        map[string]string `json:"env_overrides,omitempty"`
	TimeoutSeconds      int               `json:"timeout_seconds"`
	OutputCapKB         int               `json:"output_size_cap_kb"`
	CreatedAt           time.Time         `json:"created_timestamp"`

	AllowNetwork      bool `json:"allow_network"`
	AllowDelete       bool `json:"allow_delete"`
	AllowExternalApps bool `json:"allow_external_apps"`
	AllowSystemWide   bool `json:"allow_system_wide"`

	PathsRW         []string `json:"paths_rw,omitempty"`
	PathsRO         []string `json:"paths_ro,omitempty"`
	BulkTargetSetID string   `json:"bulk_targetset_id,omitempty"`
}

// New constructs a ticket with defaults applied.
func New(jobID, action string, commands [][]string, cwd string) ExecutionTicket {
	return ExecutionTicket{
		JobID:          jobID,
		Action:         action,
		Commands:       commands,
		Cwd:            cwd,
		TimeoutSeconds: 30,
		OutputCapKB:    512,
		CreatedAt:      time.Now().UTC(),
	}
}

// Canonical is the stable hashing form: list fields sorted, creation
// time excluded so semantically identical tickets hash identically across
// turns.
type Canonical struct {
	JobID               string            `json:"job_id"`
	Action              string            `json:"action"`
	Commands            [][]string        `json:"commands"`
	Cwd                 string            `json:"cwd"`
	AllowedCapabilities []string          `json:"allowed_capabilities"`
	EnvOverrides        map[string]string `json:"env_overrides"`
	TimeoutSeconds      int               `json:"timeout_seconds"`
	OutputCapKB         int               `json:"output_size_cap_kb"`
	AllowNetwork        bool              `json:"allow_network"`
	AllowDelete         bool              `json:"allow_delete"`
	AllowExternalApps   bool              `json:"allow_external_apps"`
	AllowSystemWide     bool              `json:"allow_system_wide"`
	PathsRW             []string          `json:"paths_rw"`
	PathsRO             []string          `json:"paths_ro"`
	BulkTargetSetID     string            `json:"bulk_targetset_id"`
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

// Normalize returns the canonical hashing payload of t.
func Normalize(t ExecutionTicket) Canonical {
	commands := make([][]string, 0, len(t.Commands))
	for _, cmd := range t.Commands {
		c := make([]string, len(cmd))
		copy(c, cmd)
		commands = append(commands, c)
	}
	env := make(map[string]string, len(t.EnvOverrides))
	for k, v := range t.EnvOverrides {
		env[k] = v
	}
	return Canonical{
		JobID:               t.JobID,
		Action:              t.Action,
		Commands:            commands,
		Cwd:                 t.Cwd,
		AllowedCapabilities: sortedCopy(t.AllowedCapabilities),
		EnvOverrides:        env,
		TimeoutSeconds:      t.TimeoutSeconds,
		OutputCapKB:         t.OutputCapKB,
		AllowNetwork:        t.AllowNetwork,
		AllowDelete:         t.AllowDelete,
		AllowExternalApps:   t.AllowExternalApps,
		AllowSystemWide:     t.AllowSystemWide,
		PathsRW:             sortedCopy(t.PathsRW),
		PathsRO:             sortedCopy(t.PathsRO),
		BulkTargetSetID:     t.BulkTargetSetID,
	}
}

// Hash returns the stable SHA-256 hex identity of t.
func Hash(t ExecutionTicket) (string, error) {
	return canonicalize.CanonicalHash(Normalize(t))
}

// MustHash is Hash for tickets known to be serializable (all are; the payload
// is plain data). It panics only on a programming error.
func MustHash(t ExecutionTicket) string {
	h, err := Hash(t)
	if err != nil {
		panic("ticket: canonical hash failed: " + err.Error())
	}
	return h
}

// ValidateIntegrity confirms the ticket still matches the hash it was
// approved under. Any drift between proposal and execution is a
// verification fault.
func ValidateIntegrity(t ExecutionTicket, expectedHash string) error {
	h, err := Hash(t)
	if err != nil {
		return faults.VerifyWrap(err, "ticket hash")
	}
	if h != expectedHash {
		return faults.Verify("execution ticket mutation detected")
	}
	return nil
}
