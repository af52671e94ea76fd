// Package bulk guards multi-target operations: bounded scope, a sample
// preview before anything runs, and periodic checkpoints while it does.
package bulk

import (
	"time"

	"github.com/Mindburn-Labs/warden/pkg/faults"
)

// DefaultMaxItems caps a single bulk operation unless settings override it.
const DefaultMaxItems = 200

// DefaultBatchSize is the checkpoint interval.
const DefaultBatchSize = 50

// TargetSet names the objects a bulk operation will touch.
type TargetSet struct {
	ID             string           `json:"id"`
	Criteria       map[string]any   `json:"criteria"`
	EstimatedCount int              `json:"estimated_count"`
	SamplePreview  []map[string]any `json:"sample_preview,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// DryRunResult is the predicted effect of a bulk operation, shown before
// approval.
type DryRunResult struct {
	PredictedChanges map[string]int `json:"predicted_changes"`
	AffectedRanges   []string       `json:"affected_ranges,omitempty"`
	Warnings         []string       `json:"warnings,omitempty"`
}

// ValidateRequest rejects unbounded, unsampled, or oversize target sets.
func ValidateRequest(ts TargetSet, maxItems int) error {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	if len(ts.Criteria) == 0 {
		return faults.Policy("refuse empty criteria")
	}
	if ts.EstimatedCount <= 0 {
		return faults.Policy("refuse unlimited/empty scope")
	}
	if ts.EstimatedCount > maxItems {
		return faults.Policy("bulk operations capped at %d items; use batched checkpoints", maxItems)
	}
	if len(ts.SamplePreview) == 0 {
		return faults.Policy("sample preview required before bulk execution")
	}
	return nil
}

// RequireCheckpoint reports whether processing must pause for confirmation
// at this batch index.
func RequireCheckpoint(batchIndex, batchSize int) bool {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return batchIndex > 0 && batchIndex%batchSize == 0
}
