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

// Package storage provides the storage abstraction layer for doajsync.
//
// This package defines repository interfaces that decouple storage implementation
// from the ingestion logic. Two kinds of state are kept:
//
//   - CheckpointRepository: the per-category progress cursor (BadgerDB)
//   - ArticleRepository: the canonical article documents (MongoDB)
//
// # Duplicate keys
//
// ArticleRepository implementations enforce uniqueness of the article
// uniqueID (the DOI). A bulk insert that collides returns a *DuplicateKeyError
// carrying the colliding keys; errors.Is(err, ErrDuplicateKey) matches it.
// Articles with an empty uniqueID never collide with each other.
//
// # Cursor monotonicity
//
// CheckpointRepository.Advance never moves a cursor backwards and returns
// ErrCursorRegression instead. Reset is the only way to rewind a cursor.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support. Pass context.Background() for operations
// without specific timeout requirements.
package storage
