package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/joshphelan/nba-player-similarity/internal/domain/distance"
	"github.com/joshphelan/nba-player-similarity/internal/domain/errs"
	"github.com/joshphelan/nba-player-similarity/internal/domain/model"
	"github.com/joshphelan/nba-player-similarity/pkg/metrics"
)

// Artifact name prefixes.
const (
	StatsPrefix     = "stats/"
	DistancesPrefix = "distances/"
	artifactExt     = ".parquet"
)

// StatsName is the artifact name of a scope's stat table.
func StatsName(scope string) string { return StatsPrefix + scope + artifactExt }

// DistancesName is the artifact name of a scope's distance index.
func DistancesName(scope string) string { return DistancesPrefix + scope + artifactExt }

// Store reads and writes scope artifacts.
type Store interface {
	SaveStats(ctx context.Context, t *model.StatTable) error
	LoadStats(ctx context.Context, scope string) (*model.StatTable, error)
	SaveIndex(ctx context.Context, ix *distance.Index) error
	LoadIndex(ctx context.Context, scope string, ids []string) (*distance.Index, error)
	Scopes(ctx context.Context) ([]string, error)
	DeleteScope(ctx context.Context, scope string) error
}

// ArtifactStore implements Store over a Backend using the parquet codec.
type ArtifactStore struct {
	backend Backend
	runID   string
	now     func() time.Time
	workers int
}

// NewArtifactStore creates an ArtifactStore with configuration options.
func NewArtifactStore(backend Backend, opts ...Option) *ArtifactStore {
	s := &ArtifactStore{backend: backend, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the underlying blob store.
func (s *ArtifactStore) Backend() Backend { return s.backend }

func (s *ArtifactStore) meta() Meta {
	return Meta{RunID: s.runID, CreatedAt: s.now().UTC().Format(time.RFC3339)}
}

// SaveStats encodes t fully and writes it in one call.
func (s *ArtifactStore) SaveStats(ctx context.Context, t *model.StatTable) error {
	data, err := EncodeStats(t, s.meta())
	if err != nil {
		return err
	}
	metrics.ObserveArtifactBytes(kindStats, len(data))
	if err := s.backend.Write(ctx, StatsName(t.Scope), data); err != nil {
		return fmt.Errorf("save stats %s: %w", t.Scope, err)
	}
	return nil
}

// LoadStats reads a scope's stat table.
func (s *ArtifactStore) LoadStats(ctx context.Context, scope string) (*model.StatTable, error) {
	data, err := s.read(ctx, StatsName(scope), scope)
	if err != nil {
		return nil, err
	}
	t, _, err := DecodeStats(data)
	if err != nil {
		return nil, fmt.Errorf("load stats %s: %w", scope, err)
	}
	if t.Scope != scope {
		return nil, fmt.Errorf("load stats %s: artifact is for scope %q: %w", scope, t.Scope, ErrCorrupt)
	}
	return t, nil
}

// SaveIndex encodes ix fully and writes it in one call.
func (s *ArtifactStore) SaveIndex(ctx context.Context, ix *distance.Index) error {
	data, err := EncodeIndex(ix, s.meta())
	if err != nil {
		return err
	}
	metrics.ObserveArtifactBytes(kindDistances, len(data))
	if err := s.backend.Write(ctx, DistancesName(ix.Scope()), data); err != nil {
		return fmt.Errorf("save index %s: %w", ix.Scope(), err)
	}
	return nil
}

// LoadIndex reads a scope's distance index for the given members.
func (s *ArtifactStore) LoadIndex(ctx context.Context, scope string, ids []string) (*distance.Index, error) {
	data, err := s.read(ctx, DistancesName(scope), scope)
	if err != nil {
		return nil, err
	}
	var opts []distance.Option
	if s.workers > 0 {
		opts = append(opts, distance.WithWorkers(s.workers))
	}
	ix, _, err := DecodeIndex(ctx, data, ids, opts...)
	if err != nil {
		return nil, fmt.Errorf("load index %s: %w", scope, err)
	}
	return ix, nil
}

// Scopes lists scopes that have both artifacts.
func (s *ArtifactStore) Scopes(ctx context.Context) ([]string, error) {
	stats, err := s.scopesUnder(ctx, StatsPrefix)
	if err != nil {
		return nil, err
	}
	dists, err := s.scopesUnder(ctx, DistancesPrefix)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, sc := range stats {
		if _, ok := slices.BinarySearch(dists, sc); ok {
			out = append(out, sc)
		}
	}
	return out, nil
}

// DeleteScope removes both artifacts of a scope.
func (s *ArtifactStore) DeleteScope(ctx context.Context, scope string) error {
	return errors.Join(
		s.backend.Delete(ctx, DistancesName(scope)),
		s.backend.Delete(ctx, StatsName(scope)),
	)
}

func (s *ArtifactStore) scopesUnder(ctx context.Context, prefix string) ([]string, error) {
	names, err := s.backend.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		base := strings.TrimPrefix(n, prefix)
		if path.Ext(base) != artifactExt || strings.Contains(base, "/") {
			continue
		}
		out = append(out, strings.TrimSuffix(base, artifactExt))
	}
	slices.Sort(out)
	return out, nil
}

func (s *ArtifactStore) read(ctx context.Context, name, scope string) ([]byte, error) {
	rc, err := s.backend.Read(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("scope %s: %w: %w", scope, errs.ErrUnknownScope, err)
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}
