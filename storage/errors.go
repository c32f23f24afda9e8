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
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateKey indicates a duplicate key violation.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrCursorRegression indicates an attempt to move a cursor backwards.
	ErrCursorRegression = errors.New("cursor cannot move backwards")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrTruncatedData indicates that data was truncated during reading.
	ErrTruncatedData = errors.New("truncated data")
)

// DuplicateKeyError reports the unique keys that collided during a bulk insert.
type DuplicateKeyError struct {
	Keys []string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%v: %s", ErrDuplicateKey, strings.Join(e.Keys, ", "))
}

// Is lets errors.Is(err, ErrDuplicateKey) match any DuplicateKeyError.
func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey
}
