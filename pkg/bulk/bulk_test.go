package bulk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Mindburn-Labs/warden/pkg/faults"
)

func validSet() TargetSet {
	return TargetSet{
		ID:             "ts1",
		Criteria:       map[string]any{"folder": "inbox"},
		EstimatedCount: 10,
		SamplePreview:  []map[string]any{{"id": "m1"}},
	}
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(validSet(), 0))

	ts := validSet()
	ts.Criteria = nil
	err := ValidateRequest(ts, 0)
	assert.True(t, errors.Is(err, faults.ErrPolicy))

	ts = validSet()
	ts.EstimatedCount = 0
	assert.Error(t, ValidateRequest(ts, 0))

	ts = validSet()
	ts.EstimatedCount = 500
	assert.Error(t, ValidateRequest(ts, 0))
	assert.NoError(t, ValidateRequest(ts, 1000))

	ts = validSet()
	ts.SamplePreview = nil
	assert.Error(t, ValidateRequest(ts, 0))
}

func TestRequireCheckpoint(t *testing.T) {
	assert.False(t, RequireCheckpoint(0, 50))
	assert.False(t, RequireCheckpoint(49, 50))
	assert.True(t, RequireCheckpoint(50, 50))
	assert.True(t, RequireCheckpoint(100, 50))
	assert.False(t, RequireCheckpoint(51, 50))
	assert.True(t, RequireCheckpoint(50, 0))
}
