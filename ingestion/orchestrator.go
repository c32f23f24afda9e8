// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/doajsync/core"
	"github.com/poiesic/doajsync/prioritize"
	"github.com/poiesic/doajsync/source"
	"github.com/poiesic/doajsync/storage"
)

// Defaults applied when no option overrides them.
const (
	DefaultPageDelay            = 500 * time.Millisecond
	DefaultSweepDelay           = time.Hour
	DefaultMaxConsecutiveErrors = 5

	defaultAdvanceAttempts = 3
	defaultAdvanceBackoff  = 100 * time.Millisecond
)

// Orchestrator walks categories page by page, persisting each page and
// advancing the category cursor once the page has been handed to the Gateway.
type Orchestrator struct {
	categories           []core.Category
	fetcher              source.Fetcher
	checkpoints          storage.CheckpointRepository
	gateway              *Gateway
	prioritizer          *prioritize.Prioritizer
	transform            func(core.RawRecord) core.Article
	pool                 *ants.Pool
	pageSize             int
	pageDelay            time.Duration
	sweepDelay           time.Duration
	maxConsecutiveErrors int
	advanceAttempts      int
	advanceBackoff       time.Duration
	logger               *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// WithPageSize sets the number of records requested per page.
// Default is source.DefaultPageSize.
func WithPageSize(size int) Option {
	return func(o *Orchestrator) error {
		if size <= 0 {
			return fmt.Errorf("%w: %d", core.ErrInvalidPageSize, size)
		}
		o.pageSize = size
		return nil
	}
}

// WithPageDelay sets the pause between successfully processed pages.
// Default is DefaultPageDelay.
func WithPageDelay(delay time.Duration) Option {
	return func(o *Orchestrator) error {
		if delay < 0 {
			return ErrNegativeDelay
		}
		o.pageDelay = delay
		return nil
	}
}

// WithSweepDelay sets the pause between sweeps in Run.
// Default is DefaultSweepDelay.
func WithSweepDelay(delay time.Duration) Option {
	return func(o *Orchestrator) error {
		if delay < 0 {
			return ErrNegativeDelay
		}
		o.sweepDelay = delay
		return nil
	}
}

// WithMaxConsecutiveErrors sets how many back-to-back fetch failures abandon
// a category. Values below 1 are treated as 1.
// Default is DefaultMaxConsecutiveErrors.
func WithMaxConsecutiveErrors(limit int) Option {
	return func(o *Orchestrator) error {
		if limit < 1 {
			limit = 1
		}
		o.maxConsecutiveErrors = limit
		return nil
	}
}

// WithAdvanceRetry sets how often a failed cursor advance is retried and the
// initial backoff between attempts.
func WithAdvanceRetry(attempts int, backoff time.Duration) Option {
	return func(o *Orchestrator) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		if backoff < 0 {
			return ErrNegativeDelay
		}
		o.advanceAttempts = attempts
		o.advanceBackoff = backoff
		return nil
	}
}

// WithPoolSize sets the worker pool size used to transform records.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(o *Orchestrator) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if o.pool != nil {
			o.pool.Release()
		}
		o.pool = pool
		return nil
	}
}

// WithTransformer replaces core.Transform as the record mapping.
func WithTransformer(transform func(core.RawRecord) core.Article) Option {
	return func(o *Orchestrator) error {
		if transform != nil {
			o.transform = transform
		}
		return nil
	}
}

// NewOrchestrator creates an orchestrator that sweeps categories in the
// given order.
func NewOrchestrator(
	categories []core.Category,
	fetcher source.Fetcher,
	checkpoints storage.CheckpointRepository,
	gateway *Gateway,
	prioritizer *prioritize.Prioritizer,
	opts ...Option,
) (*Orchestrator, error) {
	if len(categories) == 0 {
		return nil, ErrNoCategories
	}
	for _, category := range categories {
		if category == "" {
			return nil, core.ErrEmptyCategory
		}
	}
	if fetcher == nil {
		return nil, ErrFetcherRequired
	}
	if checkpoints == nil {
		return nil, ErrCheckpointRepositoryRequired
	}
	if gateway == nil {
		return nil, ErrGatewayRequired
	}
	if prioritizer == nil {
		return nil, ErrPrioritizerRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		categories:           slices.Clone(categories),
		fetcher:              fetcher,
		checkpoints:          checkpoints,
		gateway:              gateway,
		prioritizer:          prioritizer,
		transform:            core.Transform,
		pool:                 pool,
		pageSize:             source.DefaultPageSize,
		pageDelay:            DefaultPageDelay,
		sweepDelay:           DefaultSweepDelay,
		maxConsecutiveErrors: DefaultMaxConsecutiveErrors,
		advanceAttempts:      defaultAdvanceAttempts,
		advanceBackoff:       defaultAdvanceBackoff,
		logger:               slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(o); optErr != nil {
			o.Release()
			return nil, optErr
		}
	}

	return o, nil
}

// Run sweeps all categories, waits the sweep delay and repeats until ctx is
// cancelled. It always returns the context's error.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		o.Sweep(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}

		o.logger.Info("completed one sweep, waiting before the next", "delay", o.sweepDelay)
		if err := wait(ctx, o.sweepDelay); err != nil {
			return err
		}
	}
}

// Sweep makes one pass over every category in order.
func (o *Orchestrator) Sweep(ctx context.Context) SweepStats {
	stats := SweepStats{Started: time.Now()}

	for _, category := range o.categories {
		if ctx.Err() != nil {
			stats.Categories = append(stats.Categories, CategoryStats{
				Category: category,
				Outcome:  OutcomeCancelled,
				Err:      ctx.Err(),
			})
			continue
		}
		stats.Categories = append(stats.Categories, o.syncCategory(ctx, category))
	}

	stats.Elapsed = time.Since(stats.Started)
	o.logger.Info("sweep finished", "stats", stats)
	return stats
}

// syncCategory runs the page loop for one category.
func (o *Orchestrator) syncCategory(ctx context.Context, category core.Category) (stats CategoryStats) {
	logger := o.logger.With("category", category)
	stats.Category = category
	defer func() {
		logger.Info("category finished", "stats", stats)
	}()

	cursor, err := o.checkpoints.LoadCursor(ctx, category)
	if err != nil {
		logger.Error("can't load cursor, skipping category", "err", err)
		stats.Outcome = OutcomeCheckpointFailed
		stats.Err = err
		return stats
	}

	page := cursor.Next()
	stats.StartPage = page
	totalKnown := false
	consecutiveErrors := 0

	for !totalKnown || page <= lastPage(stats.Total, o.pageSize) {
		if err := ctx.Err(); err != nil {
			stats.Outcome, stats.Err = OutcomeCancelled, err
			return stats
		}

		result, err := o.fetcher.FetchPage(ctx, category, page, o.pageSize)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				stats.Outcome, stats.Err = OutcomeCancelled, ctxErr
				return stats
			}
			stats.FetchFailures++
			consecutiveErrors++
			if consecutiveErrors >= o.maxConsecutiveErrors {
				logger.Warn("skipping further pages due to consecutive fetch errors", "page", page, "errors", consecutiveErrors)
				stats.Outcome, stats.Err = OutcomeAbandoned, err
				return stats
			}
			page++
			continue
		}

		if len(result.Records) == 0 {
			logger.Info("no more articles, moving to the next category", "page", page)
			stats.Outcome = OutcomeExhausted
			return stats
		}

		consecutiveErrors = 0
		totalKnown = true
		stats.Total = result.Total
		stats.RecordsFetched += len(result.Records)
		logger.Info("total articles", "total", result.Total, "page", page)

		articles, err := o.transformAll(ctx, result.Records)
		if err != nil {
			stats.Outcome, stats.Err = OutcomeCancelled, err
			return stats
		}

		stats.record(o.gateway.Persist(ctx, o.prioritizer.Prioritize(articles)))
		stats.PagesProcessed++

		if err := o.advance(ctx, logger, category, page); err != nil {
			stats.Err = err
			if ctx.Err() != nil {
				stats.Outcome = OutcomeCancelled
			} else {
				stats.Outcome = OutcomeCheckpointFailed
			}
			return stats
		}
		stats.LastPage = page
		logger.Info("processed articles from page", "page", page, "progress", fmt.Sprintf("%.1f%%", stats.progress(o.pageSize)))

		if err := wait(ctx, o.pageDelay); err != nil {
			stats.Outcome, stats.Err = OutcomeCancelled, err
			return stats
		}
		page++
	}

	stats.Outcome = OutcomeCompleted
	return stats
}

// advance moves the category cursor to page, retrying transient failures.
func (o *Orchestrator) advance(ctx context.Context, logger *slog.Logger, category core.Category, page int) error {
	err := retryWithBackoff(ctx, logger, o.advanceAttempts, o.advanceBackoff, func() error {
		_, err := o.checkpoints.Advance(ctx, category, page)
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("can't advance cursor, skipping category", "page", page, "err", err)
	}
	return err
}

// transformAll maps raws onto the worker pool. Results keep input order.
func (o *Orchestrator) transformAll(ctx context.Context, raws []core.RawRecord) ([]core.Article, error) {
	articles := make([]core.Article, len(raws))

	var wg sync.WaitGroup
	for i := range raws {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}

		wg.Add(1)
		task := func() {
			defer wg.Done()
			articles[i] = o.transform(raws[i])
		}
		if err := o.pool.Submit(task); err != nil {
			o.logger.Debug("transform pool unavailable, running inline", "err", err)
			task()
		}
	}
	wg.Wait()

	return articles, nil
}

// Release releases the worker pool.
// The orchestrator should not be used after calling Release.
func (o *Orchestrator) Release() {
	if o.pool != nil {
		o.pool.Release()
	}
}
