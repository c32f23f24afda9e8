package ingestion

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLastPage(t *testing.T) {
	tests := []struct {
		total, pageSize, want int
	}{
		{0, 100, 0},
		{1, 100, 1},
		{2, 100, 1},
		{100, 100, 1},
		{101, 100, 2},
		{250, 100, 3},
		{10, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, lastPage(tt.total, tt.pageSize), "total=%d pageSize=%d", tt.total, tt.pageSize)
	}
}

func TestCategoryStats_Record(t *testing.T) {
	var stats CategoryStats

	stats.record(PersistResult{Kind: ResultStored, Stored: 3})
	stats.record(PersistResult{Kind: ResultDuplicateConflict})
	stats.record(PersistResult{Kind: ResultFailure, Err: errors.New("boom")})

	assert.Equal(t, 3, stats.RecordsStored)
	assert.Equal(t, 1, stats.DuplicateConflicts)
	assert.Equal(t, 1, stats.PersistFailures)
}

func TestCategoryStats_Progress(t *testing.T) {
	stats := CategoryStats{Total: 400, LastPage: 1}
	assert.InDelta(t, 25.0, stats.progress(100), 0.001)

	stats.LastPage = 9
	assert.InDelta(t, 100.0, stats.progress(100), 0.001)

	assert.Zero(t, CategoryStats{LastPage: 3}.progress(100))
}

func TestSweepStats_Totals(t *testing.T) {
	stats := SweepStats{Categories: []CategoryStats{
		{Category: "science", PagesProcessed: 2, RecordsFetched: 200, RecordsStored: 150, FetchFailures: 1},
		{Category: "biology", PagesProcessed: 1, RecordsFetched: 100, DuplicateConflicts: 1, PersistFailures: 1},
	}}

	totals := stats.Totals()
	assert.Equal(t, 3, totals.PagesProcessed)
	assert.Equal(t, 300, totals.RecordsFetched)
	assert.Equal(t, 150, totals.RecordsStored)
	assert.Equal(t, 1, totals.DuplicateConflicts)
	assert.Equal(t, 1, totals.PersistFailures)
	assert.Equal(t, 1, totals.FetchFailures)

	biology, ok := stats.Category("biology")
	assert.True(t, ok)
	assert.Equal(t, 100, biology.RecordsFetched)

	_, ok = stats.Category("chemistry")
	assert.False(t, ok)
}

func TestStats_LogValue(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	stats := SweepStats{Categories: []CategoryStats{
		{Category: "science", RecordsStored: 7, Outcome: OutcomeExhausted},
	}}
	logger.Info("sweep finished", "stats", stats)
	logger.Info("category finished", "stats", stats.Categories[0])

	out := buf.String()
	assert.Contains(t, out, "stats.stored=7")
	assert.Contains(t, out, "stats.category=science")
	assert.Contains(t, out, "stats.outcome=exhausted")
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "completed", OutcomeCompleted.String())
	assert.Equal(t, "exhausted", OutcomeExhausted.String())
	assert.Equal(t, "abandoned", OutcomeAbandoned.String())
	assert.Equal(t, "checkpoint-failed", OutcomeCheckpointFailed.String())
	assert.Equal(t, "cancelled", OutcomeCancelled.String())
	assert.Equal(t, "unknown", Outcome(99).String())
}
