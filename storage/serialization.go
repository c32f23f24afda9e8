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


package storage

import (
	"fmt"

	"github.com/poiesic/doajsync/core"
)

// MarshalCursor serializes a Cursor to bytes.
func MarshalCursor(cursor *core.Cursor) []byte {
	buf := make([]byte, core.CursorMUS.Size(*cursor))
	core.CursorMUS.Marshal(*cursor, buf)
	return buf
}

// UnmarshalCursor deserializes a Cursor from bytes.
// The storage key is authoritative for the category, so category replaces
// whatever name the value carries.
func UnmarshalCursor(category core.Category, data []byte) (*core.Cursor, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, ErrTruncatedData)
	}
	cursor, _, err := core.CursorMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	cursor.Category = category
	cursor.UpdatedAt = cursor.UpdatedAt.UTC()
	return &cursor, nil
}
