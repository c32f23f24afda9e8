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

package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/doajsync/core"
	"github.com/poiesic/doajsync/storage"
)

// CheckpointRepository implements storage.CheckpointRepository for BadgerDB.
type CheckpointRepository struct {
	backend *Backend
	now     func() time.Time
}

var _ storage.CheckpointRepository = (*CheckpointRepository)(nil)

// NewCheckpointRepository creates a new CheckpointRepository.
func NewCheckpointRepository(backend *Backend) *CheckpointRepository {
	return &CheckpointRepository{
		backend: backend,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Close is a no-op; the backend is owned and closed by the caller.
func (r *CheckpointRepository) Close() error {
	return nil
}

// LoadCursors returns every stored cursor keyed by category.
func (r *CheckpointRepository) LoadCursors(ctx context.Context) (map[core.Category]core.Cursor, error) {
	cursors := make(map[core.Category]core.Cursor)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(cursorPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := iter.Item()
			category := categoryFromCursorKey(item.KeyCopy(nil))
			err := item.Value(func(val []byte) error {
				cursor, err := storage.UnmarshalCursor(category, val)
				if err != nil {
					return fmt.Errorf("cursor %s: %w", category, err)
				}
				cursors[category] = *cursor
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return cursors, nil
}

// LoadCursor retrieves the cursor for a category.
// Returns a zero cursor if the category has never been advanced.
func (r *CheckpointRepository) LoadCursor(ctx context.Context, category core.Category) (core.Cursor, error) {
	cursor := core.Cursor{Category: category}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		stored, err := readCursor(tx, category)
		if err != nil {
			return err
		}
		if stored != nil {
			cursor = *stored
		}
		return nil
	}, false)
	return cursor, err
}

// Advance persists page as the last processed page of category.
func (r *CheckpointRepository) Advance(ctx context.Context, category core.Category, page int) (core.Cursor, error) {
	return r.write(category, page, true)
}

// Reset overwrites the cursor of a category, bypassing the regression check.
func (r *CheckpointRepository) Reset(ctx context.Context, category core.Category, page int) (core.Cursor, error) {
	return r.write(category, page, false)
}

func (r *CheckpointRepository) write(category core.Category, page int, monotonic bool) (core.Cursor, error) {
	cursor := core.Cursor{Category: category, Page: page}
	if err := core.ValidateCursor(&cursor); err != nil {
		return core.Cursor{}, err
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if monotonic {
			stored, err := readCursor(tx, category)
			if err != nil {
				return err
			}
			if stored != nil && page < stored.Page {
				return fmt.Errorf("%w: %s at page %d, requested %d", storage.ErrCursorRegression, category, stored.Page, page)
			}
		}

		cursor.UpdatedAt = r.now()
		if err := tx.Set(makeCursorKey(category), storage.MarshalCursor(&cursor)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return core.Cursor{}, err
	}
	return cursor, nil
}

// readCursor returns nil, nil when no cursor is stored for category.
func readCursor(tx *badger.Txn, category core.Category) (*core.Cursor, error) {
	item, err := tx.Get(makeCursorKey(category))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var cursor *core.Cursor
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		cursor, unmarshalErr = storage.UnmarshalCursor(category, val)
		return unmarshalErr
	})
	return cursor, err
}
