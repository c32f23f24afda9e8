package ingestion

import "errors"

var (
	// ErrFetcherRequired is returned when a page fetcher is not provided.
	ErrFetcherRequired = errors.New("fetcher required")

	// ErrArticleRepositoryRequired is returned when an article repository is not provided.
	ErrArticleRepositoryRequired = errors.New("article repository required")

	// ErrCheckpointRepositoryRequired is returned when a checkpoint repository is not provided.
	ErrCheckpointRepositoryRequired = errors.New("checkpoint repository required")

	// ErrGatewayRequired is returned when a persistence gateway is not provided.
	ErrGatewayRequired = errors.New("persistence gateway required")

	// ErrPrioritizerRequired is returned when a prioritizer is not provided.
	ErrPrioritizerRequired = errors.New("prioritizer required")

	// ErrNoCategories is returned when the orchestrator has nothing to sweep.
	ErrNoCategories = errors.New("at least one category required")

	// ErrEmptyBatch is reported when persistence is asked to store nothing.
	ErrEmptyBatch = errors.New("no articles to insert")

	// ErrInvalidMaxAttempts is returned when retry attempts is not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrNegativeDelay is returned when a configured delay is negative.
	ErrNegativeDelay = errors.New("delay must not be negative")
)
