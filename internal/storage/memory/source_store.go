// Package memory provides in-memory store implementations for development
// and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/truthscan/feedd/internal/ingest"
)

// SourceStore keeps sources in a map. Health counters follow the same
// increment semantics as the Postgres store.
type SourceStore struct {
	mu      sync.Mutex
	sources map[string]ingest.Source
}

// NewSourceStore constructs a SourceStore, optionally pre-seeded.
func NewSourceStore(seed ...ingest.Source) *SourceStore {
	s := &SourceStore{sources: make(map[string]ingest.Source)}
	for _, src := range seed {
		s.sources[src.ID] = src
	}
	return s
}

// UpsertSource creates or replaces a source row.
func (s *SourceStore) UpsertSource(src ingest.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[src.ID] = src
}

// GetSource loads one source by id.
func (s *SourceStore) GetSource(_ context.Context, sourceID string) (ingest.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[sourceID]
	if !ok {
		return ingest.Source{}, fmt.Errorf("source %s: %w", sourceID, ingest.ErrNotFound)
	}
	return src, nil
}

// ListActiveSources returns active sources ordered by id.
func (s *SourceStore) ListActiveSources(context.Context) ([]ingest.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ingest.Source
	for _, src := range s.sources {
		if src.IsActive {
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RecordFetchSuccess bumps the success counter and resets consecutive_failures.
func (s *SourceStore) RecordFetchSuccess(_ context.Context, sourceID string, at time.Time, etag, lastModified string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[sourceID]
	if !ok {
		return fmt.Errorf("source %s: %w", sourceID, ingest.ErrNotFound)
	}
	src.FetchSuccessCount++
	src.ConsecutiveFailures = 0
	src.LastFetchedAt = &at
	src.LastSuccessfulFetchAt = &at
	src.ETag = etag
	src.LastModified = lastModified
	s.sources[sourceID] = src
	return nil
}

// RecordFetchFailure bumps both failure counters.
func (s *SourceStore) RecordFetchFailure(_ context.Context, sourceID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[sourceID]
	if !ok {
		return fmt.Errorf("source %s: %w", sourceID, ingest.ErrNotFound)
	}
	src.FetchFailureCount++
	src.ConsecutiveFailures++
	src.LastFetchedAt = &at
	s.sources[sourceID] = src
	return nil
}

// TouchLastFetched records a fetch attempt with no health effect.
func (s *SourceStore) TouchLastFetched(_ context.Context, sourceID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[sourceID]
	if !ok {
		return fmt.Errorf("source %s: %w", sourceID, ingest.ErrNotFound)
	}
	src.LastFetchedAt = &at
	s.sources[sourceID] = src
	return nil
}
