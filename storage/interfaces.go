package storage

import (
	"context"

	"github.com/poiesic/doajsync/core"
)

// CheckpointRepository stores the per-category progress cursor.
// Implementations must be thread-safe and support concurrent access.
type CheckpointRepository interface {
	// LoadCursors returns every stored cursor keyed by category.
	// Categories that were never advanced are absent from the map.
	LoadCursors(ctx context.Context) (map[core.Category]core.Cursor, error)

	// LoadCursor returns the cursor of a single category.
	// A category that was never advanced yields a zero cursor (Page 0) and no error.
	LoadCursor(ctx context.Context, category core.Category) (core.Cursor, error)

	// Advance records page as the last processed page of category.
	// The read and the write happen in one transaction.
	// Returns ErrCursorRegression if page is below the stored value;
	// advancing to the stored value again is allowed and refreshes UpdatedAt.
	Advance(ctx context.Context, category core.Category, page int) (core.Cursor, error)

	// Reset overwrites the cursor of category unconditionally.
	// It is an operator action and bypasses the regression check.
	Reset(ctx context.Context, category core.Category, page int) (core.Cursor, error)

	// Close releases resources held by the repository.
	Close() error
}

// ArticleRepository is the write side of the article document store.
type ArticleRepository interface {
	// InsertArticles bulk-inserts articles in the given order.
	// Non-conflicting articles are stored even when others collide.
	// On unique-key collisions it returns the number of stored articles
	// together with a *DuplicateKeyError naming the colliding keys.
	InsertArticles(ctx context.Context, articles []core.Article) (int, error)

	// CountArticles returns the number of stored articles.
	CountArticles(ctx context.Context) (int64, error)

	// Close closes the storage backend and releases resources.
	Close(ctx context.Context) error
}
