package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/joshphelan/nba-player-similarity/internal/adapters/analytics"
	"github.com/joshphelan/nba-player-similarity/internal/adapters/repository"
	"github.com/joshphelan/nba-player-similarity/internal/adapters/source"
	"github.com/joshphelan/nba-player-similarity/internal/config"
	"github.com/joshphelan/nba-player-similarity/internal/domain/model"
	"github.com/joshphelan/nba-player-similarity/internal/pipeline"
	"github.com/joshphelan/nba-player-similarity/pkg/logger"
)

const defaultRunTimeout = 30 * time.Minute

func main() {
	var (
		seasons = flag.String("seasons", "", "Comma separated season tags (default from config)")
		scopes  = flag.String("scope", model.ScopeAll, "Comma separated scopes for build, or the scope for query")
		query   = flag.String("sql", "", "SQL to run for the query command")
		logFile = flag.String("log", "", "Also write logs to this file")
		help    = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		pipeline.ShowHelp(os.Stdout)
		return
	}
	if err := run(flag.Arg(0), *seasons, *scopes, *query, *logFile); err != nil {
		os.Stderr.WriteString("pipeline failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(command, seasons, scopes, query, logFile string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if seasons != "" {
		cfg.Seasons = splitList(seasons)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	closer, err := pipeline.SetupLogging(cfg.LogFormat, cfg.LogLevel, logFile)
	if err != nil {
		return err
	}
	defer closer.Close()
	log := logger.Get().Named("pipeline")

	backend, err := repository.NewBackend(ctx, repository.BackendConfig{
		Kind:        cfg.StoreBackend,
		Dir:         cfg.StoreDir,
		RedisURL:    cfg.RedisURL,
		RedisPrefix: cfg.RedisPrefix,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if c, ok := backend.(io.Closer); ok {
		defer c.Close()
	}

	if command == "query" {
		if query == "" {
			return errors.New("query needs -sql")
		}
		res, err := analytics.New(backend, "").Query(ctx, scopes, query)
		if err != nil {
			return err
		}
		return pipeline.PrintResult(os.Stdout, res)
	}

	runID := uuid.NewString()
	store := repository.NewArtifactStore(backend, repository.WithRunID(runID))
	p := pipeline.New(source.NewFileSource(cfg.RawDir), store, pipeline.Config{
		Seasons:         cfg.Seasons,
		MinGames:        cfg.MinGames,
		DistanceWorkers: cfg.DistanceWorkers,
		BuildWorkers:    cfg.BuildWorkers,
		JobQueueSize:    cfg.JobQueueSize,
		DropConstant:    cfg.DropConstantColumns,
	}, pipeline.WithLogger(log), pipeline.WithRunID(runID))

	var rep *pipeline.Report
	switch command {
	case "", "all":
		rep, err = p.All(ctx)
	case "clean":
		rep, err = p.Clean(ctx)
	case "combine":
		rep, err = p.Combine(ctx)
	case "build":
		rep, err = p.Build(ctx, splitList(scopes)...)
	default:
		pipeline.ShowHelp(os.Stderr)
		return fmt.Errorf("unknown command %q", command)
	}
	if err != nil {
		return err
	}
	return pipeline.PrintReport(os.Stdout, rep)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
