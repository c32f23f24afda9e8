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

package doajsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/doajsync/config"
	"github.com/poiesic/doajsync/core"
	"github.com/poiesic/doajsync/ingestion"
	"github.com/poiesic/doajsync/prioritize"
	"github.com/poiesic/doajsync/source"
	"github.com/poiesic/doajsync/storage"
	"github.com/poiesic/doajsync/storage/badger"
	"github.com/poiesic/doajsync/storage/jsonfile"
	"github.com/poiesic/doajsync/storage/mongo"
)

// ErrArticlesUnavailable is returned when a checkpoint-only service is asked
// to ingest.
var ErrArticlesUnavailable = errors.New("article repository not opened")

// Service owns the stores and clients configured for one process.
type Service struct {
	cfg         *config.Config
	backend     *badger.Backend
	checkpoints *badger.CheckpointRepository
	articles    storage.ArticleRepository
	fetcher     source.Fetcher
	prioritizer *prioritize.Prioritizer
	logger      *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	logger          *slog.Logger
	articles        storage.ArticleRepository
	fetcher         source.Fetcher
	checkpointsOnly bool
}

// WithLogger sets the logger handed to every component.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithArticleRepository uses repo instead of connecting to MongoDB.
func WithArticleRepository(repo storage.ArticleRepository) ServiceOption {
	return func(o *serviceOptions) {
		o.articles = repo
	}
}

// WithFetcher uses fetcher instead of an HTTP client for the configured API.
func WithFetcher(fetcher source.Fetcher) ServiceOption {
	return func(o *serviceOptions) {
		o.fetcher = fetcher
	}
}

// WithCheckpointsOnly opens only the checkpoint store. Operator commands use
// it to inspect or edit cursors without a document store.
func WithCheckpointsOnly() ServiceOption {
	return func(o *serviceOptions) {
		o.checkpointsOnly = true
	}
}

// NewService opens the checkpoint store and, unless WithCheckpointsOnly is
// given, the document store and source client described by cfg.
func NewService(ctx context.Context, cfg *config.Config, opts ...ServiceOption) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &serviceOptions{}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger
	if logger == nil {
		logger = slog.Default()
	}

	backend, err := badger.OpenBackendWithLogger(cfg.Checkpoint.Dir, cfg.Checkpoint.InMemory, logger)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}

	s := &Service{
		cfg:         cfg,
		backend:     backend,
		checkpoints: badger.NewCheckpointRepository(backend),
		prioritizer: prioritize.New(cfg.Reputed.Publishers, cfg.Reputed.Journals),
		logger:      logger,
	}

	if options.checkpointsOnly {
		return s, nil
	}

	s.fetcher = options.fetcher
	if s.fetcher == nil {
		client, err := source.NewClient(cfg.Source.BaseURL,
			source.WithTimeout(cfg.Source.Timeout()),
			source.WithUserAgent(cfg.Source.UserAgent),
			source.WithLogger(logger.With("component", "source")))
		if err != nil {
			s.closeCheckpoints()
			return nil, err
		}
		s.fetcher = client
	}

	s.articles = options.articles
	if s.articles == nil {
		repo, err := mongo.NewArticleRepository(ctx, mongo.Config{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
			Timeout:    cfg.Mongo.Timeout(),
		}, logger.With("component", "mongo"))
		if err != nil {
			s.closeCheckpoints()
			return nil, err
		}
		s.articles = repo
	}

	return s, nil
}

// Close releases the document store and the checkpoint store.
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	if s.articles != nil {
		if err := s.articles.Close(ctx); err != nil {
			s.logger.Error("error closing article repository", "err", err)
			errs = append(errs, err)
		}
	}
	if err := s.closeCheckpoints(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Service) closeCheckpoints() error {
	if err := s.checkpoints.Close(); err != nil {
		s.logger.Error("error closing checkpoint repository", "err", err)
		return err
	}
	if err := s.backend.Close(); err != nil {
		s.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// CheckpointRepository returns the cursor store.
func (s *Service) CheckpointRepository() storage.CheckpointRepository {
	return s.checkpoints
}

// ArticleRepository returns the document store, or nil for a
// checkpoint-only service.
func (s *Service) ArticleRepository() storage.ArticleRepository {
	return s.articles
}

// Categories returns the configured categories in sweep order.
func (s *Service) Categories() []core.Category {
	categories := make([]core.Category, len(s.cfg.Categories))
	for i, name := range s.cfg.Categories {
		categories[i] = core.Category(name)
	}
	return categories
}

// NewOrchestrator builds an orchestrator from the configuration. opts are
// applied after the configured settings.
func (s *Service) NewOrchestrator(opts ...ingestion.Option) (*ingestion.Orchestrator, error) {
	if s.articles == nil || s.fetcher == nil {
		return nil, ErrArticlesUnavailable
	}

	gateway, err := ingestion.NewGateway(s.articles, s.prioritizer, s.logger.With("component", "gateway"))
	if err != nil {
		return nil, err
	}

	ingest := s.cfg.Ingest
	configured := []ingestion.Option{
		ingestion.WithLogger(s.logger.With("component", "orchestrator")),
		ingestion.WithPageSize(s.cfg.Source.PageSize),
		ingestion.WithPageDelay(ingest.PageDelay()),
		ingestion.WithSweepDelay(ingest.SweepDelay()),
		ingestion.WithMaxConsecutiveErrors(ingest.MaxConsecutiveErrors),
	}
	if ingest.TransformWorkers > 0 {
		configured = append(configured, ingestion.WithPoolSize(ingest.TransformWorkers))
	}

	return ingestion.NewOrchestrator(s.Categories(), s.fetcher, s.checkpoints, gateway, s.prioritizer, append(configured, opts...)...)
}

// ImportCheckpoints overwrites cursors with the pages recorded in a legacy
// checkpoint file and returns how many categories were written.
func (s *Service) ImportCheckpoints(ctx context.Context, path string) (int, error) {
	pages, err := jsonfile.Load(path)
	if err != nil {
		return 0, err
	}

	for category, page := range pages {
		if _, err := s.checkpoints.Reset(ctx, category, page); err != nil {
			return 0, fmt.Errorf("import cursor for %q: %w", category, err)
		}
		s.logger.Info("imported cursor", "category", category, "page", page)
	}
	return len(pages), nil
}

// ExportCheckpoints writes every stored cursor to a legacy checkpoint file.
func (s *Service) ExportCheckpoints(ctx context.Context, path string) (int, error) {
	cursors, err := s.checkpoints.LoadCursors(ctx)
	if err != nil {
		return 0, err
	}

	pages := make(map[core.Category]int, len(cursors))
	for category, cursor := range cursors {
		pages[category] = cursor.Page
	}
	if err := jsonfile.Save(path, pages); err != nil {
		return 0, err
	}
	return len(pages), nil
}
