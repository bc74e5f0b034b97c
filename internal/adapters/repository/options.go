package repository

import "time"

// Option applies a configuration option to the ArtifactStore.
type Option func(*ArtifactStore)

// WithRunID stamps written artifacts with the pipeline run id.
func WithRunID(id string) Option {
	return func(s *ArtifactStore) {
		s.runID = id
	}
}

// WithClock sets the time source for artifact timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *ArtifactStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLoadWorkers bounds the goroutines used to sort neighbor lists on load.
func WithLoadWorkers(n int) Option {
	return func(s *ArtifactStore) {
		if n > 0 {
			s.workers = n
		}
	}
}
