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

package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/doajsync/core"
	"github.com/poiesic/doajsync/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// UniqueIDIndexName names the partial unique index on uniqueID.
	UniqueIDIndexName = "uniqueID_nonempty_unique"

	defaultTimeout = 10 * time.Second
)

// duplicateKeyCodes are the server error codes for unique index violations.
var duplicateKeyCodes = map[int]struct{}{
	11000: {},
	11001: {},
	12582: {},
}

// Config describes where articles are stored.
type Config struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration // Applied to connect, ping and every write
}

// ArticleRepository implements storage.ArticleRepository on a MongoDB collection.
type ArticleRepository struct {
	client   *mongo.Client
	articles *mongo.Collection
	timeout  time.Duration
	logger   *slog.Logger
}

var _ storage.ArticleRepository = (*ArticleRepository)(nil)

// NewArticleRepository connects to MongoDB, verifies the connection and
// ensures the uniqueID index exists.
func NewArticleRepository(ctx context.Context, cfg Config, logger *slog.Logger) (*ArticleRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("can't ping MongoDB: %w", err)
	}

	r := &ArticleRepository{
		client:   client,
		articles: client.Database(cfg.Database).Collection(cfg.Collection),
		timeout:  timeout,
		logger:   logger,
	}

	if err := r.EnsureIndexes(ctx); err != nil {
		// An existing conflicting index must not prevent ingestion
		logger.Error("can't ensure uniqueID index", "index", UniqueIDIndexName, "err", err)
	}

	return r, nil
}

// EnsureIndexes drops any legacy full unique index on uniqueID and creates
// the partial one.
//
// The index is partial: only documents with a non-empty string uniqueID take
// part in it, so articles without a DOI never collide with each other. A
// legacy full index would still make them collide, hence the drop.
func (r *ArticleRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	indexes := r.articles.Indexes()
	cursor, err := indexes.List(ctx)
	if err != nil {
		return fmt.Errorf("list indexes: %w", err)
	}
	var specs []indexSpec
	if err := cursor.All(ctx, &specs); err != nil {
		return fmt.Errorf("read indexes: %w", err)
	}

	for _, spec := range specs {
		if !isLegacyUniqueIDIndex(spec) {
			continue
		}
		if _, err := indexes.DropOne(ctx, spec.Name); err != nil {
			return fmt.Errorf("drop index %s: %w", spec.Name, err)
		}
		r.logger.Info("dropped legacy uniqueID index", "index", spec.Name)
	}

	_, err = indexes.CreateOne(ctx, uniqueIDIndex())
	return err
}

// indexSpec is the part of a listIndexes entry EnsureIndexes looks at.
type indexSpec struct {
	Name    string   `bson:"name"`
	Key     bson.D   `bson:"key"`
	Unique  bool     `bson:"unique"`
	Partial bson.Raw `bson:"partialFilterExpression,omitempty"`
}

// isLegacyUniqueIDIndex reports whether spec is a unique, non-partial index
// keyed on uniqueID alone, such as the "uniqueID_1" index older deployments
// created.
func isLegacyUniqueIDIndex(spec indexSpec) bool {
	if !spec.Unique || spec.Partial != nil || spec.Name == UniqueIDIndexName {
		return false
	}
	return len(spec.Key) == 1 && spec.Key[0].Key == "uniqueID"
}

func uniqueIDIndex() mongo.IndexModel {
	return mongo.IndexModel{
		Keys: bson.D{{Key: "uniqueID", Value: 1}},
		Options: options.Index().
			SetName(UniqueIDIndexName).
			SetUnique(true).
			SetPartialFilterExpression(bson.M{
				"uniqueID": bson.M{"$type": "string", "$gt": ""},
			}),
	}
}

// InsertArticles bulk-inserts articles with an unordered InsertMany so that
// one collision does not stop the rest of the batch.
func (r *ArticleRepository) InsertArticles(ctx context.Context, articles []core.Article) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	docs := make([]interface{}, len(articles))
	for i := range articles {
		docs[i] = articles[i]
	}

	result, err := r.articles.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return len(result.InsertedIDs), nil
	}
	return classifyInsertError(err, articles)
}

// CountArticles returns the estimated number of stored articles.
func (r *ArticleRepository) CountArticles(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.articles.EstimatedDocumentCount(ctx)
}

// Close disconnects the client.
func (r *ArticleRepository) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.client.Disconnect(ctx)
}

// classifyInsertError converts an InsertMany error into the storage error
// contract. When every write error is a unique-key violation it returns the
// number of stored articles and a *storage.DuplicateKeyError with the
// colliding uniqueIDs in batch order.
func classifyInsertError(err error, articles []core.Article) (int, error) {
	writeErrors, concernErr, ok := bulkWriteErrors(err)
	if !ok {
		return 0, fmt.Errorf("insert articles: %w", err)
	}

	keys := make([]string, 0, len(writeErrors))
	for _, we := range writeErrors {
		if _, dup := duplicateKeyCodes[we.Code]; !dup {
			return 0, fmt.Errorf("insert articles: %w", err)
		}
		if we.Index >= 0 && we.Index < len(articles) {
			keys = append(keys, articles[we.Index].UniqueID)
		}
	}

	if concernErr != nil {
		return 0, fmt.Errorf("insert articles: %w", err)
	}

	return len(articles) - len(writeErrors), &storage.DuplicateKeyError{Keys: keys}
}

func bulkWriteErrors(err error) ([]mongo.BulkWriteError, *mongo.WriteConcernError, bool) {
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		return bwe.WriteErrors, bwe.WriteConcernError, len(bwe.WriteErrors) > 0
	}
	var bwePtr *mongo.BulkWriteException
	if errors.As(err, &bwePtr) && bwePtr != nil {
		return bwePtr.WriteErrors, bwePtr.WriteConcernError, len(bwePtr.WriteErrors) > 0
	}
	return nil, nil, false
}
