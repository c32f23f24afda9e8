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
	"log/slog"
	"slices"

	"github.com/poiesic/doajsync/core"
	"github.com/poiesic/doajsync/prioritize"
	"github.com/poiesic/doajsync/storage"
)

// ResultKind classifies the outcome of a Persist call.
type ResultKind int

const (
	// ResultStored means every article in the batch was inserted.
	ResultStored ResultKind = iota
	// ResultDuplicateConflict means at least one article collided on uniqueID.
	ResultDuplicateConflict
	// ResultFailure means the batch was rejected for any other reason.
	ResultFailure
)

func (k ResultKind) String() string {
	switch k {
	case ResultStored:
		return "stored"
	case ResultDuplicateConflict:
		return "duplicate-conflict"
	case ResultFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// PersistResult is the outcome of persisting one batch.
//
// Stored counts the articles credited to the batch. It is len(batch) for
// ResultStored and 0 otherwise, even when an unordered insert stored the
// non-colliding articles.
type PersistResult struct {
	Kind         ResultKind
	Stored       int
	DuplicateIDs []string
	Err          error
}

// Gateway persists prioritized batches and classifies the outcome.
type Gateway struct {
	articles    storage.ArticleRepository
	prioritizer *prioritize.Prioritizer
	logger      *slog.Logger
}

// NewGateway creates a gateway over an article repository. The prioritizer
// is used to report which stored articles came from reputed sources.
func NewGateway(articles storage.ArticleRepository, prioritizer *prioritize.Prioritizer, logger *slog.Logger) (*Gateway, error) {
	if articles == nil {
		return nil, ErrArticleRepositoryRequired
	}
	if prioritizer == nil {
		return nil, ErrPrioritizerRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		articles:    articles,
		prioritizer: prioritizer,
		logger:      logger,
	}, nil
}

// Persist stores batch with a single bulk insert.
func (g *Gateway) Persist(ctx context.Context, batch []core.Article) PersistResult {
	if len(batch) == 0 {
		g.logger.Error("no articles to insert")
		return PersistResult{Kind: ResultFailure, Err: ErrEmptyBatch}
	}

	inserted, err := g.articles.InsertArticles(ctx, batch)
	if err == nil {
		g.logger.Info("inserted articles", "count", len(batch))
		for _, article := range batch {
			if g.prioritizer.IsReputed(article) {
				g.logger.Info("inserted reputed article", "title", article.Title, "publisher", article.Publisher, "journal", article.Journal)
			}
		}
		return PersistResult{Kind: ResultStored, Stored: len(batch)}
	}

	var dupErr *storage.DuplicateKeyError
	if errors.As(err, &dupErr) {
		g.logger.Warn("some articles were duplicates and were not inserted",
			"duplicateIDs", dupErr.Keys,
			"titles", titlesFor(batch, dupErr.Keys),
			"inserted", inserted)
		return PersistResult{Kind: ResultDuplicateConflict, DuplicateIDs: dupErr.Keys, Err: err}
	}

	g.logger.Error("error inserting articles", "count", len(batch), "err", err)
	return PersistResult{Kind: ResultFailure, Err: err}
}

// titlesFor returns the titles of batch articles whose uniqueID is in ids.
func titlesFor(batch []core.Article, ids []string) []string {
	titles := make([]string, 0, len(ids))
	for _, article := range batch {
		if slices.Contains(ids, article.UniqueID) {
			titles = append(titles, article.Title)
		}
	}
	return titles
}
