package ingestion

import (
	"log/slog"
	"time"

	"github.com/poiesic/doajsync/core"
)

// Outcome describes how a category's pass ended within a sweep.
type Outcome int

const (
	// OutcomeCompleted means the page loop reached the source-reported total.
	OutcomeCompleted Outcome = iota
	// OutcomeExhausted means the source returned an empty page.
	OutcomeExhausted
	// OutcomeAbandoned means too many consecutive fetches failed.
	OutcomeAbandoned
	// OutcomeCheckpointFailed means the cursor could not be loaded or advanced.
	OutcomeCheckpointFailed
	// OutcomeCancelled means the context ended during the category.
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeAbandoned:
		return "abandoned"
	case OutcomeCheckpointFailed:
		return "checkpoint-failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// CategoryStats counts the work done for one category in one sweep.
type CategoryStats struct {
	Category           core.Category
	StartPage          int
	LastPage           int // Last page whose cursor was advanced, 0 if none
	Total              int // Last total reported by the source
	PagesProcessed     int
	RecordsFetched     int
	RecordsStored      int
	DuplicateConflicts int
	PersistFailures    int
	FetchFailures      int
	Outcome            Outcome
	Err                error
}

// LogValue implements slog.LogValuer.
func (c CategoryStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("category", string(c.Category)),
		slog.String("outcome", c.Outcome.String()),
		slog.Int("startPage", c.StartPage),
		slog.Int("lastPage", c.LastPage),
		slog.Int("total", c.Total),
		slog.Int("pages", c.PagesProcessed),
		slog.Int("fetched", c.RecordsFetched),
		slog.Int("stored", c.RecordsStored),
		slog.Int("duplicateConflicts", c.DuplicateConflicts),
		slog.Int("persistFailures", c.PersistFailures),
		slog.Int("fetchFailures", c.FetchFailures),
	}
	if c.Err != nil {
		attrs = append(attrs, slog.String("err", c.Err.Error()))
	}
	return slog.GroupValue(attrs...)
}

// SweepStats summarizes one pass over every category.
type SweepStats struct {
	Started    time.Time
	Elapsed    time.Duration
	Categories []CategoryStats
}

// Totals sums the counters of every category. Category, pages and outcome
// fields of the result are left zero.
func (s SweepStats) Totals() CategoryStats {
	var totals CategoryStats
	for _, c := range s.Categories {
		totals.PagesProcessed += c.PagesProcessed
		totals.RecordsFetched += c.RecordsFetched
		totals.RecordsStored += c.RecordsStored
		totals.DuplicateConflicts += c.DuplicateConflicts
		totals.PersistFailures += c.PersistFailures
		totals.FetchFailures += c.FetchFailures
	}
	return totals
}

// Category returns the stats recorded for category.
func (s SweepStats) Category(category core.Category) (CategoryStats, bool) {
	for _, c := range s.Categories {
		if c.Category == category {
			return c, true
		}
	}
	return CategoryStats{}, false
}

// LogValue implements slog.LogValuer.
func (s SweepStats) LogValue() slog.Value {
	totals := s.Totals()
	return slog.GroupValue(
		slog.Int("categories", len(s.Categories)),
		slog.Duration("elapsed", s.Elapsed),
		slog.Int("pages", totals.PagesProcessed),
		slog.Int("fetched", totals.RecordsFetched),
		slog.Int("stored", totals.RecordsStored),
		slog.Int("duplicateConflicts", totals.DuplicateConflicts),
		slog.Int("persistFailures", totals.PersistFailures),
		slog.Int("fetchFailures", totals.FetchFailures),
	)
}

// record folds a persist result into the category counters.
func (c *CategoryStats) record(result PersistResult) {
	c.RecordsStored += result.Stored
	switch result.Kind {
	case ResultDuplicateConflict:
		c.DuplicateConflicts++
	case ResultFailure:
		c.PersistFailures++
	}
}

// progress reports how far through the source-reported total the category is,
// as a percentage. It returns 0 when the total is unknown.
func (c CategoryStats) progress(pageSize int) float64 {
	last := lastPage(c.Total, pageSize)
	if last <= 0 {
		return 0
	}
	percent := float64(c.LastPage) / float64(last) * 100.0
	if percent > 100 {
		percent = 100
	}
	return percent
}

// lastPage is ceil(total / pageSize).
func lastPage(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
