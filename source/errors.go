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


package source

import (
	"errors"
	"fmt"

	"github.com/poiesic/doajsync/core"
)

var (
	// ErrFetchFailed is matched by every FetchError.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrBaseURLRequired is returned when the client has no base URL.
	ErrBaseURLRequired = errors.New("base URL required")
)

// FetchError describes a failed page request. A FetchError is never returned
// for an empty page; an empty page is a successful result.
type FetchError struct {
	Category   core.Category
	Page       int
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s page %d: status %d: %v", e.Category, e.Page, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s page %d: %v", e.Category, e.Page, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrFetchFailed) match any FetchError.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}
