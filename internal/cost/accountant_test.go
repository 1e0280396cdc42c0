package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRecordCostAccumulates(t *testing.T) {
	a := NewAccountant(zap.NewNop())
	a.RecordCost("openai/gpt-4", 0.5)
	a.RecordCost("openai/gpt-4", 0.25)
	a.RecordCost("local/llama3", 0.1)

	assert.InDelta(t, 0.75, a.Total("openai/gpt-4"), 1e-9)
	assert.InDelta(t, 0.85, a.TotalAll(), 1e-9)
}

func TestRecordCostRejectsNegative(t *testing.T) {
	a := NewAccountant(zap.NewNop())
	a.RecordCost("a", 1.0)
	a.RecordCost("a", -0.5)

	assert.InDelta(t, 1.0, a.Total("a"), 1e-9)
}

func TestReset(t *testing.T) {
	a := NewAccountant(zap.NewNop())
	a.RecordCost("a", 1.0)
	a.Reset()

	assert.Equal(t, 0.0, a.TotalAll())
	assert.Empty(t, a.Snapshot())
}

func TestSnapshotIsACopy(t *testing.T) {
	a := NewAccountant(zap.NewNop())
	a.RecordCost("a", 1.0)

	snap := a.Snapshot()
	snap["a"] = 99

	assert.InDelta(t, 1.0, a.Total("a"), 1e-9)
}

func TestWithinBudget(t *testing.T) {
	tests := []struct {
		name  string
		total float64
		limit float64
		want  bool
	}{
		{name: "zero limit disables enforcement", total: 100, limit: 0, want: true},
		{name: "negative limit disables enforcement", total: 100, limit: -1, want: true},
		{name: "under budget", total: 0.5, limit: 1.0, want: true},
		{name: "at budget", total: 1.0, limit: 1.0, want: false},
		{name: "over budget", total: 1.5, limit: 1.0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WithinBudget(tt.total, tt.limit))
		})
	}
}
