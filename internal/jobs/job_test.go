package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobTransitions(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr error
	}{
		{"queued to running", StatusQueued, StatusRunning, nil},
		{"queued to cancelled", StatusQueued, StatusCancelled, nil},
		{"running to completed", StatusRunning, StatusCompleted, nil},
		{"running to failed", StatusRunning, StatusFailed, nil},
		{"running to cancelled", StatusRunning, StatusCancelled, nil},
		{"queued to completed", StatusQueued, StatusCompleted, errBadTransition},
		{"completed to cancelled", StatusCompleted, StatusCancelled, ErrJobTerminal},
		{"failed to running", StatusFailed, StatusRunning, ErrJobTerminal},
		{"cancelled to cancelled", StatusCancelled, StatusCancelled, ErrJobTerminal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{ID: "j", Status: tt.from}
			err := job.transition(tt.to, now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.from, job.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, job.Status)
		})
	}
}

func TestJobTimestampsAndCompletion(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	job := &Job{ID: "j", Status: StatusQueued, ItemsTotal: 2}

	require.NoError(t, job.transition(StatusRunning, now))
	require.NotNil(t, job.StartedAt)
	assert.Nil(t, job.FinishedAt)

	job.record(ItemResult{URL: "a", Status: ItemSaved})
	job.record(ItemResult{URL: "b", Status: ItemSaved})
	assert.Equal(t, 99, job.ProgressPercent)

	require.NoError(t, job.transition(StatusCompleted, now.Add(time.Minute)))
	assert.Equal(t, 100, job.ProgressPercent)
	require.NotNil(t, job.FinishedAt)
	assert.Equal(t, now.Add(time.Minute), *job.FinishedAt)
}

func TestJobProgressNeverDecreases(t *testing.T) {
	job := &Job{Status: StatusRunning, ItemsTotal: 4}

	job.record(ItemResult{Status: ItemSaved})
	assert.Equal(t, 25, job.ProgressPercent)

	job.ItemsTotal = 10
	job.record(ItemResult{Status: ItemFailed})
	assert.Equal(t, 25, job.ProgressPercent)

	job.record(ItemResult{Status: ItemDuplicate})
	assert.Equal(t, 30, job.ProgressPercent)

	assert.Equal(t, Counts{Saved: 1, Failed: 1, Duplicate: 1}, job.Counts)
	assert.Equal(t, 3, job.ItemsProcessed)
}

func TestJobSettleMovesCounts(t *testing.T) {
	job := &Job{Status: StatusRunning, ItemsTotal: 2}
	i := job.record(ItemResult{URL: "a", Status: ItemPendingBatch})
	assert.Equal(t, Counts{}, job.Counts)

	id := int64(9)
	job.settle(i, ItemSaved, &id, "")
	assert.Equal(t, Counts{Saved: 1}, job.Counts)
	assert.Equal(t, ItemSaved, job.Results[i].Status)
	assert.Equal(t, int64(9), *job.Results[i].PerfumeID)
}

func TestJobCloneIsIndependent(t *testing.T) {
	job := &Job{ID: "j", Results: []ItemResult{{URL: "a", Status: ItemFailed}}}
	c := job.clone()
	c.Results[0].Status = ItemSaved
	c.Results = append(c.Results, ItemResult{URL: "b"})

	assert.Equal(t, ItemFailed, job.Results[0].Status)
	assert.Len(t, job.Results, 1)
	assert.Len(t, job.failedItems(), 1)
}
