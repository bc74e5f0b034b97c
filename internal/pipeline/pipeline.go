// Package pipeline runs the batch steps that turn raw season CSVs into
// persisted stat tables and distance indexes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joshphelan/nba-player-similarity/internal/adapters/mq/queue"
	"github.com/joshphelan/nba-player-similarity/internal/adapters/mq/worker"
	"github.com/joshphelan/nba-player-similarity/internal/adapters/repository"
	"github.com/joshphelan/nba-player-similarity/internal/domain/aggregate"
	"github.com/joshphelan/nba-player-similarity/internal/domain/cleaner"
	"github.com/joshphelan/nba-player-similarity/internal/domain/distance"
	"github.com/joshphelan/nba-player-similarity/internal/domain/model"
	"github.com/joshphelan/nba-player-similarity/internal/domain/standardize"
	"github.com/joshphelan/nba-player-similarity/pkg/logger"
	"github.com/joshphelan/nba-player-similarity/pkg/metrics"
)

// Stage names, used in logs and metric labels.
const (
	StageClean       = "clean"
	StageCombine     = "combine"
	StageStandardize = "standardize"
	StageDistance    = "distance"
	StagePersist     = "persist"
)

const (
	outcomeOK     = "ok"
	outcomeFailed = "failed"
)

// Config holds the knobs of one pipeline run.
type Config struct {
	Seasons         []string
	MinGames        int
	DistanceWorkers int
	BuildWorkers    int
	JobQueueSize    int
	DropConstant    bool
}

// ScopeReport summarizes one built or cleaned scope.
type ScopeReport struct {
	Scope   string
	Players int
	Columns int
	Dropped []string
	Took    time.Duration
}

// Report summarizes a run.
type Report struct {
	RunID  string
	Scopes []ScopeReport
	Took   time.Duration
}

// Pipeline wires a raw Source to an artifact Store.
type Pipeline struct {
	source cleaner.Source
	store  repository.Store
	cfg    Config
	runID  string
	log    logger.Logger
}

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(p *Pipeline) {
		if id != "" {
			p.runID = id
		}
	}
}

// WithLogger sets the pipeline's logger.
func WithLogger(log logger.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// New creates a Pipeline. A run id is generated unless WithRunID is given.
func New(src cleaner.Source, store repository.Store, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{source: src, store: store, cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	if p.runID == "" {
		p.runID = uuid.NewString()
	}
	if p.log == nil {
		p.log = logger.Get().Named("pipeline")
	}
	p.log = p.log.With(logger.String("run_id", p.runID))
	return p
}

// RunID returns the id stamped on this run's logs and artifacts.
func (p *Pipeline) RunID() string { return p.runID }

// All cleans and builds every season, then combines them and builds the
// all-years scope. It stops before combining if any season fails.
func (p *Pipeline) All(ctx context.Context) (*Report, error) {
	return p.run(ctx, "all", func(ctx context.Context, rep *Report) error {
		tables, err := p.seasons(ctx, rep, true)
		if err != nil {
			return err
		}
		all, err := p.combine(ctx, tables)
		if err != nil {
			return err
		}
		sr, err := p.build(ctx, all, true)
		if err != nil {
			return err
		}
		rep.Scopes = append(rep.Scopes, sr)
		return nil
	})
}

// Clean cleans every season and persists the stat tables only.
func (p *Pipeline) Clean(ctx context.Context) (*Report, error) {
	return p.run(ctx, StageClean, func(ctx context.Context, rep *Report) error {
		_, err := p.seasons(ctx, rep, false)
		return err
	})
}

// Combine reads the persisted season tables and persists the all-years table.
func (p *Pipeline) Combine(ctx context.Context) (*Report, error) {
	return p.run(ctx, StageCombine, func(ctx context.Context, rep *Report) error {
		tables := make([]*model.StatTable, 0, len(p.cfg.Seasons))
		for _, s := range p.cfg.Seasons {
			t, err := p.store.LoadStats(ctx, s)
			if err != nil {
				return fmt.Errorf("combine: %w", err)
			}
			tables = append(tables, t)
		}
		all, err := p.combine(ctx, tables)
		if err != nil {
			return err
		}
		if err := p.store.SaveStats(ctx, all); err != nil {
			return err
		}
		rep.Scopes = append(rep.Scopes, ScopeReport{Scope: all.Scope, Players: all.Len(), Columns: len(all.Columns)})
		return nil
	})
}

// Build computes and persists the distance index of each persisted scope.
func (p *Pipeline) Build(ctx context.Context, scopes ...string) (*Report, error) {
	return p.run(ctx, "build", func(ctx context.Context, rep *Report) error {
		for _, sc := range scopes {
			t, err := p.store.LoadStats(ctx, sc)
			if err != nil {
				return fmt.Errorf("build: %w", err)
			}
			sr, err := p.build(ctx, t, false)
			if err != nil {
				return err
			}
			rep.Scopes = append(rep.Scopes, sr)
		}
		return nil
	})
}

func (p *Pipeline) run(ctx context.Context, name string, fn func(context.Context, *Report) error) (*Report, error) {
	start := time.Now()
	rep := &Report{RunID: p.runID}
	p.log.Info(ctx, "pipeline started",
		logger.String("command", name),
		logger.Strings("seasons", p.cfg.Seasons),
	)

	err := fn(ctx, rep)
	rep.Took = time.Since(start)
	if err != nil {
		metrics.RecordPipelineRun(outcomeFailed)
		p.log.Error(ctx, "pipeline failed", logger.String("command", name), logger.Error(err))
		return rep, err
	}
	metrics.RecordPipelineRun(outcomeOK)
	p.log.Info(ctx, "pipeline finished",
		logger.String("command", name),
		logger.Int("scopes", len(rep.Scopes)),
		logger.Duration("took", rep.Took),
	)
	return rep, nil
}

// seasons processes every configured season on the worker pool and returns
// the cleaned tables in configured order. With build set each season's index
// is computed and both artifacts are persisted; otherwise only the table is.
func (p *Pipeline) seasons(ctx context.Context, rep *Report, build bool) ([]*model.StatTable, error) {
	var (
		mu      sync.Mutex
		tables  = make(map[string]*model.StatTable, len(p.cfg.Seasons))
		reports = make(map[string]ScopeReport, len(p.cfg.Seasons))
	)
	handler := worker.HandlerFunc(func(ctx context.Context, job queue.Job) error {
		t, err := p.clean(ctx, job.Season)
		if err != nil {
			return err
		}
		var sr ScopeReport
		if build {
			sr, err = p.build(ctx, t, true)
		} else {
			sr, err = p.persistStats(ctx, t)
		}
		if err != nil {
			return err
		}
		mu.Lock()
		tables[job.Season] = t
		reports[job.Season] = sr
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	size := max(p.cfg.JobQueueSize, len(p.cfg.Seasons))
	q := queue.NewInMemoryQueue(queue.WithCapacity(size))
	pool := worker.NewPool(p.cfg.BuildWorkers, q, handler, worker.WithPoolLogger(p.log))
	pool.Start(ctx)

	for _, s := range p.cfg.Seasons {
		if err := q.Enqueue(ctx, queue.Job{ID: uuid.NewString(), RunID: p.runID, Season: s}); err != nil {
			cancel()
			_ = q.Close()
			for range pool.Results() {
			}
			return nil, err
		}
	}
	_ = q.Close()

	var errs []error
	for res := range pool.Results() {
		if res.Err != nil {
			errs = append(errs, res.Err)
			// One failed season fails the step; stop the rest.
			cancel()
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]*model.StatTable, 0, len(p.cfg.Seasons))
	for _, s := range p.cfg.Seasons {
		t, ok := tables[s]
		if !ok {
			return nil, fmt.Errorf("season %s: no result", s)
		}
		out = append(out, t)
		rep.Scopes = append(rep.Scopes, reports[s])
	}
	return out, nil
}

func (p *Pipeline) clean(ctx context.Context, season string) (*model.StatTable, error) {
	start := time.Now()
	opts := []cleaner.Option{cleaner.WithMinGames(p.cfg.MinGames)}
	t, cr, err := cleaner.New(p.source, opts...).Clean(ctx, season)
	took := time.Since(start)
	metrics.ObservePipelineStage(StageClean, season, took)
	if err != nil {
		return nil, fmt.Errorf("clean %s: %w", season, err)
	}

	metrics.RecordRecordsCleaned(season, cr.Records)
	metrics.RecordRecordsFiltered(season, "traded", cr.TradedDropped)
	metrics.RecordRecordsFiltered(season, "min_games", cr.LowGames)
	metrics.RecordRecordsFiltered(season, "unmatched", cr.Unmatched)
	p.log.Info(ctx, "season cleaned",
		logger.String("season", season),
		logger.Int("perGameRows", cr.PerGameRows),
		logger.Int("advancedRows", cr.AdvancedRows),
		logger.Int("tradedDropped", cr.TradedDropped),
		logger.Int("lowGames", cr.LowGames),
		logger.Int("unmatched", cr.Unmatched),
		logger.Int("zeroFilled", cr.ZeroFilled),
		logger.Int("records", cr.Records),
		logger.Duration("took", took),
	)
	return t, nil
}

func (p *Pipeline) combine(ctx context.Context, tables []*model.StatTable) (*model.StatTable, error) {
	start := time.Now()
	all, err := aggregate.Combine(tables...)
	took := time.Since(start)
	metrics.ObservePipelineStage(StageCombine, model.ScopeAll, took)
	if err != nil {
		return nil, fmt.Errorf("combine: %w", err)
	}
	p.log.Info(ctx, "seasons combined",
		logger.Int("seasons", len(tables)),
		logger.Int("records", all.Len()),
		logger.Duration("took", took),
	)
	return all, nil
}

// build standardizes t, computes its index and persists the index, and the
// table too when withStats is set. A failed write removes both artifacts.
func (p *Pipeline) build(ctx context.Context, t *model.StatTable, withStats bool) (ScopeReport, error) {
	start := time.Now()

	var sopts []standardize.Option
	if p.cfg.DropConstant {
		sopts = append(sopts, standardize.WithDropConstant())
	}
	m, err := standardize.FitTransform(t, sopts...)
	metrics.ObservePipelineStage(StageStandardize, t.Scope, time.Since(start))
	if err != nil {
		return ScopeReport{}, fmt.Errorf("standardize %s: %w", t.Scope, err)
	}
	if len(m.Dropped) > 0 {
		p.log.Warn(ctx, "constant columns dropped",
			logger.String("scope", t.Scope),
			logger.Strings("columns", m.Dropped),
		)
	}

	distStart := time.Now()
	var dopts []distance.Option
	if p.cfg.DistanceWorkers > 0 {
		dopts = append(dopts, distance.WithWorkers(p.cfg.DistanceWorkers))
	}
	ix, err := distance.Build(ctx, m, dopts...)
	distTook := time.Since(distStart)
	metrics.ObservePipelineStage(StageDistance, t.Scope, distTook)
	if err != nil {
		return ScopeReport{}, fmt.Errorf("distance %s: %w", t.Scope, err)
	}
	metrics.ObserveIndexBuild(distTook)
	metrics.UpdateIndexSize(t.Scope, ix.Len())

	persistStart := time.Now()
	if err := p.persist(ctx, t, ix, withStats); err != nil {
		return ScopeReport{}, err
	}
	metrics.ObservePipelineStage(StagePersist, t.Scope, time.Since(persistStart))

	sr := ScopeReport{
		Scope:   t.Scope,
		Players: t.Len(),
		Columns: len(m.Columns),
		Dropped: slices.Clone(m.Dropped),
		Took:    time.Since(start),
	}
	p.log.Info(ctx, "scope built",
		logger.String("scope", sr.Scope),
		logger.Int("players", sr.Players),
		logger.Int("features", sr.Columns),
		logger.Duration("distanceTook", distTook),
		logger.Duration("took", sr.Took),
	)
	return sr, nil
}

func (p *Pipeline) persist(ctx context.Context, t *model.StatTable, ix *distance.Index, withStats bool) error {
	var err error
	if withStats {
		err = p.store.SaveStats(ctx, t)
	}
	if err == nil {
		err = p.store.SaveIndex(ctx, ix)
	}
	if err == nil {
		return nil
	}
	// Only a table written by this call is removed; a table read from the
	// store keeps its previous index, which writes replace atomically.
	if withStats {
		if derr := p.store.DeleteScope(context.WithoutCancel(ctx), t.Scope); derr != nil {
			p.log.Warn(ctx, "cleanup after failed write", logger.String("scope", t.Scope), logger.Error(derr))
		}
	}
	return fmt.Errorf("persist %s: %w", t.Scope, err)
}

func (p *Pipeline) persistStats(ctx context.Context, t *model.StatTable) (ScopeReport, error) {
	start := time.Now()
	if err := p.store.SaveStats(ctx, t); err != nil {
		return ScopeReport{}, fmt.Errorf("persist %s: %w", t.Scope, err)
	}
	took := time.Since(start)
	metrics.ObservePipelineStage(StagePersist, t.Scope, took)
	return ScopeReport{Scope: t.Scope, Players: t.Len(), Columns: len(t.Columns), Took: took}, nil
}
