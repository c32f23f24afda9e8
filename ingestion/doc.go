// Package ingestion drives the checkpointed synchronization of article
// categories into the document store.
//
// The Orchestrator sweeps every configured category in order. For each
// category it resumes from the page after the stored cursor and walks forward
// until the source runs out of records, the source-reported total is reached,
// or too many consecutive fetches fail. Each page is:
//   - Transformed into canonical articles on a bounded worker pool
//   - Prioritized so reputed publishers and journals are stored first
//   - Handed to the Gateway as a single bulk insert
//   - Recorded by advancing the category cursor
//
// No page-level error stops a sweep. Run repeats sweeps until its context is
// cancelled.
package ingestion
