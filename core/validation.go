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


package core

import "fmt"

// ValidatePageRequest validates the arguments of a single page fetch.
//
// Validation rules:
//   - Category must not be empty
//   - Page must be >= 1
//   - PageSize must be > 0
func ValidatePageRequest(category Category, page, pageSize int) error {
	if category == "" {
		return fmt.Errorf("%w: %w", ErrInvalidPageRequest, ErrEmptyCategory)
	}
	if page < 1 {
		return fmt.Errorf("%w: %w", ErrInvalidPageRequest, ErrInvalidPage)
	}
	if pageSize < 1 {
		return fmt.Errorf("%w: %w", ErrInvalidPageRequest, ErrInvalidPageSize)
	}
	return nil
}

// ValidateCursor validates a Cursor before it is persisted.
//
// Validation rules:
//   - Category must not be empty
//   - Page must be >= 0 (0 means nothing processed yet)
func ValidateCursor(cursor *Cursor) error {
	if cursor == nil {
		return fmt.Errorf("%w: cursor is nil", ErrInvalidCursor)
	}
	if cursor.Category == "" {
		return fmt.Errorf("%w: %w", ErrInvalidCursor, ErrEmptyCategory)
	}
	if cursor.Page < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidCursor, ErrNegativeCursorPage)
	}
	return nil
}
