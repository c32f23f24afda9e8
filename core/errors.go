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

import "errors"

// Domain validation errors
var (
	// ErrInvalidPageRequest indicates a page request outside the accepted bounds.
	ErrInvalidPageRequest = errors.New("invalid page request")

	// ErrInvalidPage indicates a page number below 1.
	ErrInvalidPage = errors.New("page must be at least 1")

	// ErrInvalidPageSize indicates a non-positive page size.
	ErrInvalidPageSize = errors.New("page size must be positive")

	// ErrEmptyCategory indicates the category name is empty.
	ErrEmptyCategory = errors.New("category cannot be empty")

	// ErrInvalidCursor indicates a Cursor failed validation.
	ErrInvalidCursor = errors.New("invalid cursor")

	// ErrNegativeCursorPage indicates a cursor page below zero.
	ErrNegativeCursorPage = errors.New("cursor page cannot be negative")
)
