// Package scope lazily loads and memoizes the query structures of each scope.
package scope

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/joshphelan/nba-player-similarity/internal/adapters/repository"
	"github.com/joshphelan/nba-player-similarity/internal/domain/distance"
	"github.com/joshphelan/nba-player-similarity/internal/domain/model"
	"github.com/joshphelan/nba-player-similarity/internal/domain/similarity"
	"github.com/joshphelan/nba-player-similarity/pkg/logger"
	"github.com/joshphelan/nba-player-similarity/pkg/metrics"
)

// DefaultCapacity is the number of scopes kept in memory.
const DefaultCapacity = 16

// Scope is a fully loaded, read-only scope.
type Scope struct {
	ID       string
	Table    *model.StatTable
	Index    *distance.Index
	Service  *similarity.Service
	LoadedAt time.Time
}

// Loader loads scopes from a repository.Store once and serves them from an LRU.
// Concurrent first loads of the same scope share a single read.
type Loader struct {
	store    repository.Store
	capacity int
	log      logger.Logger

	cache *lru.Cache[string, *Scope]
	group singleflight.Group
	gen   atomic.Uint64
}

// Option applies a configuration option to the Loader.
type Option func(*Loader)

// WithCapacity bounds the number of cached scopes.
func WithCapacity(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithLogger sets the loader's logger.
func WithLogger(log logger.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLoader creates a Loader over store.
func NewLoader(store repository.Store, opts ...Option) (*Loader, error) {
	l := &Loader{store: store, capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(l)
	}
	cache, err := lru.New[string, *Scope](l.capacity)
	if err != nil {
		return nil, fmt.Errorf("scope loader: %w", err)
	}
	l.cache = cache
	return l, nil
}

// Load returns the scope, reading it from the store on first use.
func (l *Loader) Load(ctx context.Context, id string) (*Scope, error) {
	if s, ok := l.cache.Get(id); ok {
		metrics.RecordScopeCacheHit()
		return s, nil
	}
	metrics.RecordScopeCacheMiss()

	gen := l.gen.Load()
	// The shared read must not be cut short by whichever caller started it.
	ch := l.group.DoChan(id, func() (any, error) {
		return l.read(context.WithoutCancel(ctx), id, gen)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load scope %s: %w", id, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Scope), nil //nolint:forcetypeassert // only *Scope is stored
	}
}

func (l *Loader) read(ctx context.Context, id string, gen uint64) (*Scope, error) {
	start := time.Now()
	table, err := l.store.LoadStats(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load scope %s: %w", id, err)
	}
	index, err := l.store.LoadIndex(ctx, id, table.IDs())
	if err != nil {
		return nil, fmt.Errorf("load scope %s: %w", id, err)
	}
	svc, err := similarity.New(table, index)
	if err != nil {
		return nil, fmt.Errorf("load scope %s: %w", id, err)
	}
	s := &Scope{ID: id, Table: table, Index: index, Service: svc, LoadedAt: time.Now()}

	// A scope invalidated mid-read is returned to its callers but not cached.
	if l.gen.Load() == gen {
		l.cache.Add(id, s)
	}
	took := time.Since(start)
	metrics.ObserveScopeLoad(took)
	metrics.UpdateScopeCacheEntries(l.cache.Len())
	if l.log != nil {
		l.log.Info(ctx, "scope loaded",
			logger.String("scope", id),
			logger.Int("players", table.Len()),
			logger.Duration("took", took),
		)
	}
	return s, nil
}

// Invalidate drops one scope so the next Load reads it again.
func (l *Loader) Invalidate(id string) {
	l.gen.Add(1)
	l.group.Forget(id)
	l.cache.Remove(id)
	metrics.UpdateScopeCacheEntries(l.cache.Len())
}

// Purge drops every cached scope.
func (l *Loader) Purge() {
	l.gen.Add(1)
	l.cache.Purge()
	metrics.UpdateScopeCacheEntries(0)
}

// Peek returns a cached scope without loading it or touching its recency.
func (l *Loader) Peek(id string) (*Scope, bool) {
	return l.cache.Peek(id)
}

// Cached returns the ids currently held in memory, oldest first.
func (l *Loader) Cached() []string {
	return l.cache.Keys()
}
