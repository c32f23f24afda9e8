package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/poiesic/doajsync/core"
	"github.com/poiesic/doajsync/prioritize"
	"github.com/poiesic/doajsync/source"
	"github.com/poiesic/doajsync/storage"
	"github.com/poiesic/doajsync/storage/badger"
	"github.com/stretchr/testify/require"
)

// pageKey identifies one scripted response.
type pageKey struct {
	category core.Category
	page     int
}

type fetchCall struct {
	category core.Category
	page     int
	pageSize int
}

// scriptedFetcher implements source.Fetcher from a fixed script.
// Unscripted pages return an empty page.
type scriptedFetcher struct {
	mu     sync.Mutex
	pages  map[pageKey]*source.Page
	errors map[pageKey]error
	calls  []fetchCall
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{
		pages:  make(map[pageKey]*source.Page),
		errors: make(map[pageKey]error),
	}
}

func (f *scriptedFetcher) respond(category core.Category, page int, total int, records ...core.RawRecord) {
	f.pages[pageKey{category, page}] = &source.Page{Records: records, Total: total}
}

func (f *scriptedFetcher) fail(category core.Category, page int) {
	f.errors[pageKey{category, page}] = &source.FetchError{
		Category:   category,
		Page:       page,
		StatusCode: 503,
		Err:        errors.New("service unavailable"),
	}
}

func (f *scriptedFetcher) FetchPage(ctx context.Context, category core.Category, page, pageSize int) (*source.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, fetchCall{category, page, pageSize})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := pageKey{category, page}
	if err, ok := f.errors[key]; ok {
		return nil, err
	}
	if p, ok := f.pages[key]; ok {
		return p, nil
	}
	return &source.Page{Records: []core.RawRecord{}}, nil
}

func (f *scriptedFetcher) pagesFor(category core.Category) []int {
	f.mu.Lock()
	defer f.mu.Unlock()

	var pages []int
	for _, call := range f.calls {
		if call.category == category {
			pages = append(pages, call.page)
		}
	}
	return pages
}

// memoryArticles implements storage.ArticleRepository with unordered insert
// semantics and a unique constraint on non-empty uniqueIDs.
type memoryArticles struct {
	mu      sync.Mutex
	stored  []core.Article
	ids     map[string]struct{}
	batches [][]core.Article
	failErr error
}

var _ storage.ArticleRepository = (*memoryArticles)(nil)

func newMemoryArticles(existing ...string) *memoryArticles {
	m := &memoryArticles{ids: make(map[string]struct{})}
	for _, id := range existing {
		m.ids[id] = struct{}{}
	}
	return m
}

func (m *memoryArticles) InsertArticles(ctx context.Context, articles []core.Article) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batches = append(m.batches, articles)
	if m.failErr != nil {
		return 0, m.failErr
	}

	var dups []string
	inserted := 0
	for _, article := range articles {
		if article.UniqueID != "" {
			if _, exists := m.ids[article.UniqueID]; exists {
				dups = append(dups, article.UniqueID)
				continue
			}
			m.ids[article.UniqueID] = struct{}{}
		}
		m.stored = append(m.stored, article)
		inserted++
	}
	if len(dups) > 0 {
		return inserted, &storage.DuplicateKeyError{Keys: dups}
	}
	return inserted, nil
}

func (m *memoryArticles) CountArticles(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.stored)), nil
}

func (m *memoryArticles) Close(ctx context.Context) error {
	return nil
}

// flakyCheckpoints wraps a repository and fails the first advances.
type flakyCheckpoints struct {
	storage.CheckpointRepository
	mu           sync.Mutex
	failAdvances int
	failLoad     error
	advances     int
}

func (f *flakyCheckpoints) LoadCursor(ctx context.Context, category core.Category) (core.Cursor, error) {
	if f.failLoad != nil {
		return core.Cursor{}, f.failLoad
	}
	return f.CheckpointRepository.LoadCursor(ctx, category)
}

func (f *flakyCheckpoints) Advance(ctx context.Context, category core.Category, page int) (core.Cursor, error) {
	f.mu.Lock()
	f.advances++
	fail := f.advances <= f.failAdvances
	f.mu.Unlock()

	if fail {
		return core.Cursor{}, storage.ErrStorageClosed
	}
	return f.CheckpointRepository.Advance(ctx, category, page)
}

func newCheckpoints(t *testing.T) *badger.CheckpointRepository {
	t.Helper()
	repo, backend, err := badger.NewMemoryCheckpointRepository()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = repo.Close()
		_ = backend.Close()
	})
	return repo
}

func record(id, doi, title string) core.RawRecord {
	return core.RawRecord{
		ID: id,
		Bibjson: &core.Bibjson{
			Title:      title,
			Identifier: []core.RawIdentifier{{Type: "doi", ID: doi}},
		},
	}
}

func records(prefix string, n int) []core.RawRecord {
	out := make([]core.RawRecord, n)
	for i := range out {
		id := fmt.Sprintf("%s-%d", prefix, i)
		out[i] = record(id, "10.1/"+id, "title "+id)
	}
	return out
}

type harness struct {
	fetcher     *scriptedFetcher
	articles    *memoryArticles
	checkpoints storage.CheckpointRepository
	prioritizer *prioritize.Prioritizer
	logs        *bytes.Buffer
	logger      *slog.Logger
}

func newHarness(t *testing.T) *harness {
	logs := &bytes.Buffer{}
	return &harness{
		fetcher:     newScriptedFetcher(),
		articles:    newMemoryArticles(),
		checkpoints: newCheckpoints(t),
		prioritizer: prioritize.New(nil, nil),
		logs:        logs,
		logger:      slog.New(slog.NewTextHandler(logs, nil)),
	}
}

func (h *harness) orchestrator(t *testing.T, categories []core.Category, opts ...Option) *Orchestrator {
	t.Helper()

	gateway, err := NewGateway(h.articles, h.prioritizer, h.logger)
	require.NoError(t, err)

	defaults := []Option{WithLogger(h.logger), WithPageDelay(0), WithSweepDelay(0), WithAdvanceRetry(3, 0), WithPoolSize(2)}
	o, err := NewOrchestrator(categories, h.fetcher, h.checkpoints, gateway, h.prioritizer, append(defaults, opts...)...)
	require.NoError(t, err)
	t.Cleanup(o.Release)
	return o
}
