// Package service provides the query facade used by the HTTP API and the MCP tools.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/joshphelan/nba-player-similarity/internal/adapters/repository"
	"github.com/joshphelan/nba-player-similarity/internal/adapters/scope"
	"github.com/joshphelan/nba-player-similarity/internal/domain/errs"
	"github.com/joshphelan/nba-player-similarity/internal/domain/model"
	"github.com/joshphelan/nba-player-similarity/internal/domain/similarity"
	"github.com/joshphelan/nba-player-similarity/internal/domain/types"
	"github.com/joshphelan/nba-player-similarity/pkg/logger"
	"github.com/joshphelan/nba-player-similarity/pkg/metrics"
)

// DefaultMaxNeighbors caps k when WithMaxNeighbors is not given.
const DefaultMaxNeighbors = 50

// Query kinds, used as metric labels.
const (
	QuerySimilarity = "similarity"
	QueryNeighbors  = "neighbors"
	QueryCrossEra   = "neighbors_cross_era"
	QueryCompare    = "compare"
	QueryResolve    = "resolve"
	QueryPlayer     = "player"
	QueryPlayers    = "players"
	QueryScopes     = "scopes"
)

const queryErrorSeverity = "warning"

var (
	// ErrNotStarted is returned by queries issued before Start.
	ErrNotStarted = errors.New("service not started")
	// ErrNoStore is returned by Start when no artifact store was configured.
	ErrNoStore = errors.New("no artifact store configured")
)

// Service answers similarity queries for any persisted scope.
type Service struct {
	mu sync.RWMutex

	store  repository.Store
	loader *scope.Loader

	// Configuration
	scopeCacheSize int
	maxNeighbors   int

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the artifact store scopes are read from.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithLoader sets a prebuilt scope loader. It takes precedence over WithScopeCacheSize.
func WithLoader(l *scope.Loader) Option {
	return func(s *Service) {
		if l != nil {
			s.loader = l
		}
	}
}

// WithScopeCacheSize bounds the number of scopes held in memory.
func WithScopeCacheSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.scopeCacheSize = n
		}
	}
}

// WithMaxNeighbors caps the k of neighbor queries.
func WithMaxNeighbors(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxNeighbors = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		scopeCacheSize: scope.DefaultCapacity,
		maxNeighbors:   DefaultMaxNeighbors,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start prepares the scope loader.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.store == nil {
		return ErrNoStore
	}

	s.logger.Info(ctx, "starting similarity service...")
	if s.loader == nil {
		l, err := scope.NewLoader(s.store,
			scope.WithCapacity(s.scopeCacheSize),
			scope.WithLogger(s.logger.Named("scope")),
		)
		if err != nil {
			return fmt.Errorf("start service: %w", err)
		}
		s.loader = l
	}

	s.started = true
	s.logger.Info(ctx, "similarity service started",
		logger.Int("scopeCacheSize", s.scopeCacheSize),
		logger.Int("maxNeighbors", s.maxNeighbors),
	)
	return nil
}

// Stop drops every cached scope.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.loader.Purge()
	s.started = false
	s.logger.Info(context.Background(), "similarity service stopped")
}

// Similarity scores a pair within a scope and reports it against the scope average.
func (s *Service) Similarity(ctx context.Context, scopeID, a, b string) (res types.SimilarityResult, err error) {
	defer s.observe(ctx, QuerySimilarity, time.Now(), &err)

	svc, err := s.scope(ctx, scopeID)
	if err != nil {
		return res, err
	}
	ra, err := lookup(svc, a)
	if err != nil {
		return res, err
	}
	rb, err := lookup(svc, b)
	if err != nil {
		return res, err
	}
	score, err := svc.Similarity(ra.ID, rb.ID)
	if err != nil {
		return res, err
	}
	d, err := svc.Index().Distance(ra.ID, rb.ID)
	if err != nil {
		return res, err
	}
	avg, err := svc.AverageSimilarity()
	if err != nil {
		return res, err
	}
	return types.SimilarityResult{
		Scope:      svc.Scope(),
		A:          player(ra),
		B:          player(rb),
		Distance:   d,
		Similarity: score,
		Average:    avg,
		Delta:      score - avg,
	}, nil
}

// SimilarPlayers returns the k nearest player-seasons within a scope.
func (s *Service) SimilarPlayers(ctx context.Context, scopeID, ref string, k int) (res types.Neighbors, err error) {
	defer s.observe(ctx, QueryNeighbors, time.Now(), &err)
	return s.neighbors(ctx, scopeID, ref, k, false)
}

// SimilarPlayersAllYears returns the k nearest players across every season,
// keeping one season per player. It always queries the all-years scope.
func (s *Service) SimilarPlayersAllYears(ctx context.Context, ref string, k int) (res types.Neighbors, err error) {
	defer s.observe(ctx, QueryCrossEra, time.Now(), &err)
	return s.neighbors(ctx, model.ScopeAll, ref, k, true)
}

func (s *Service) neighbors(ctx context.Context, scopeID, ref string, k int, crossEra bool) (types.Neighbors, error) {
	svc, err := s.scope(ctx, scopeID)
	if err != nil {
		return types.Neighbors{}, err
	}
	r, err := lookup(svc, ref)
	if err != nil {
		return types.Neighbors{}, err
	}
	k = min(k, s.maxNeighbors)

	var matches []similarity.Match
	if crossEra {
		matches, err = svc.TopKCrossEra(r.ID, k)
	} else {
		matches, err = svc.TopK(r.ID, k)
	}
	if err != nil {
		return types.Neighbors{}, err
	}

	out := types.Neighbors{
		Scope:    svc.Scope(),
		Query:    player(r),
		CrossEra: crossEra,
		Results:  make([]types.Neighbor, len(matches)),
	}
	for i, m := range matches {
		rec, err := svc.Record(m.ID)
		if err != nil {
			return types.Neighbors{}, err
		}
		out.Results[i] = types.Neighbor{
			Rank:       i + 1,
			Player:     player(rec),
			Distance:   m.Distance,
			Similarity: m.Similarity,
		}
	}
	return out, nil
}

// Compare lines up raw stats of two players with each one's share of the pair
// total. An empty stat list compares every column of the scope.
func (s *Service) Compare(ctx context.Context, scopeID, a, b string, stats []string) (res types.Comparison, err error) {
	defer s.observe(ctx, QueryCompare, time.Now(), &err)

	svc, err := s.scope(ctx, scopeID)
	if err != nil {
		return res, err
	}
	ra, err := lookup(svc, a)
	if err != nil {
		return res, err
	}
	rb, err := lookup(svc, b)
	if err != nil {
		return res, err
	}
	if ra.ID == rb.ID {
		return res, fmt.Errorf("compare %s: %w", ra.ID, errs.ErrSamePlayer)
	}

	table := svc.Table()
	if len(stats) == 0 {
		stats = table.Columns
	}
	res = types.Comparison{
		Scope: svc.Scope(),
		A:     player(ra),
		B:     player(rb),
		Stats: make([]types.StatShare, 0, len(stats)),
	}
	for _, stat := range stats {
		j, ok := table.ColumnIndex(stat)
		if !ok {
			return types.Comparison{}, fmt.Errorf("compare stat %q: %w", stat, errs.ErrUnknownIdentifier)
		}
		res.Stats = append(res.Stats, types.NewStatShare(stat, ra.Stats[j], rb.Stats[j]))
	}
	return res, nil
}

// Resolve maps a display name to its player-season.
func (s *Service) Resolve(ctx context.Context, scopeID, name string) (res types.Player, err error) {
	defer s.observe(ctx, QueryResolve, time.Now(), &err)

	svc, err := s.scope(ctx, scopeID)
	if err != nil {
		return res, err
	}
	id, err := svc.Resolve(name)
	if err != nil {
		return res, err
	}
	r, err := svc.Record(id)
	if err != nil {
		return res, err
	}
	return player(r), nil
}

// Player returns the raw stat line of a player-season, looked up by id or display name.
func (s *Service) Player(ctx context.Context, scopeID, ref string) (res types.PlayerStats, err error) {
	defer s.observe(ctx, QueryPlayer, time.Now(), &err)

	svc, err := s.scope(ctx, scopeID)
	if err != nil {
		return res, err
	}
	r, err := lookup(svc, ref)
	if err != nil {
		return res, err
	}
	cols := svc.Table().Columns
	stats := make(map[string]float64, len(cols))
	for j, c := range cols {
		stats[c] = r.Stats[j]
	}
	return types.PlayerStats{Player: player(r), Stats: stats}, nil
}

// Players lists every player-season of a scope in table order.
func (s *Service) Players(ctx context.Context, scopeID string) (res []types.Player, err error) {
	defer s.observe(ctx, QueryPlayers, time.Now(), &err)

	svc, err := s.scope(ctx, scopeID)
	if err != nil {
		return nil, err
	}
	recs := svc.Table().Records
	res = make([]types.Player, len(recs))
	for i, r := range recs {
		res[i] = player(r)
	}
	return res, nil
}

// Scopes lists the persisted scopes and whether each is loaded.
func (s *Service) Scopes(ctx context.Context) (res []types.ScopeInfo, err error) {
	defer s.observe(ctx, QueryScopes, time.Now(), &err)

	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	ids, err := s.store.Scopes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}
	res = make([]types.ScopeInfo, len(ids))
	for i, id := range ids {
		res[i] = types.ScopeInfo{ID: id}
		if sc, ok := s.loader.Peek(id); ok {
			res[i].Loaded = true
			res[i].Players = sc.Table.Len()
		}
	}
	return res, nil
}

// Invalidate drops a cached scope so the next query reads fresh artifacts.
func (s *Service) Invalidate(scopeID string) {
	if !s.isStarted() {
		return
	}
	s.loader.Invalidate(scopeID)
	s.logger.Info(context.Background(), "scope invalidated", logger.String("scope", scopeID))
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":        s.started,
		"scopeCacheSize": s.scopeCacheSize,
		"maxNeighbors":   s.maxNeighbors,
	}
	if s.started {
		cached := s.loader.Cached()
		stats["cachedScopes"] = cached
		stats["cachedScopeCount"] = len(cached)
		metrics.UpdateScopeCacheEntries(len(cached))
	}
	return stats
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

func (s *Service) scope(ctx context.Context, id string) (*similarity.Service, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	sc, err := s.loader.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return sc.Service, nil
}

func (s *Service) observe(ctx context.Context, kind string, start time.Time, errp *error) {
	metrics.RecordQuery(kind, time.Since(start))
	err := *errp
	if err == nil {
		return
	}
	k := errs.Kind(err)
	metrics.RecordQueryError(kind, k)
	if errs.IsQueryError(err) {
		s.log().Debug(ctx, "query rejected", logger.String("kind", kind), logger.Error(err))
		return
	}
	metrics.RecordErrorByType(k, queryErrorSeverity)
	s.log().Warn(ctx, "query failed", logger.String("kind", kind), logger.Error(err))
}

func (s *Service) log() logger.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.logger == nil {
		return logger.Get()
	}
	return s.logger
}

// lookup accepts either a record id or an exact display name.
func lookup(svc *similarity.Service, ref string) (model.Record, error) {
	if r, err := svc.Record(ref); err == nil {
		return r, nil
	}
	id, err := svc.Resolve(ref)
	if err != nil {
		return model.Record{}, err
	}
	return svc.Record(id)
}

func player(r model.Record) types.Player {
	return types.Player{
		ID:       r.ID,
		Code:     r.Code,
		Season:   r.Season,
		Name:     r.Player,
		Team:     r.Team,
		Position: r.Position,
	}
}
