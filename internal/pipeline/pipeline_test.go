package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joshphelan/nba-player-similarity/internal/adapters/analytics"
	"github.com/joshphelan/nba-player-similarity/internal/adapters/repository"
	"github.com/joshphelan/nba-player-similarity/internal/adapters/source"
	"github.com/joshphelan/nba-player-similarity/internal/domain/distance"
	"github.com/joshphelan/nba-player-similarity/internal/domain/errs"
	"github.com/joshphelan/nba-player-similarity/internal/domain/model"
	"github.com/joshphelan/nba-player-similarity/internal/pipeline"
	"github.com/joshphelan/nba-player-similarity/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const (
	perGameHeader  = "Rk,Player,Pos,Age,Tm,G,MP,PTS,AST,TRB,Player-additional"
	advancedHeader = "Rk,Player,Pos,Age,Tm,G,MP,PER,WS,Player-additional"
)

var seasons = map[string][2][]string{
	"1984": {
		{
			"1,Larry Bird*,SF,27,BOS,79,38.3,24.2,6.6,10.1,birdla01",
			"2,Magic Johnson*,PG,24,LAL,67,38.3,17.6,13.1,7.3,johnsma02",
			"3,Moses Malone*,C,28,PHI,71,36.8,22.7,1.4,13.4,malonmo01",
			"4,Bench Guy,PG,22,BOS,10,6.0,1.5,0.9,0.8,benchgu01",
		},
		{
			"1,Larry Bird*,SF,27,BOS,79,3028,24.2,13.6,birdla01",
			"2,Magic Johnson*,PG,24,LAL,67,2567,23.0,11.8,johnsma02",
			"3,Moses Malone*,C,28,PHI,71,2613,22.3,9.4,malonmo01",
			"4,Bench Guy,PG,22,BOS,10,60,5.0,0.0,benchgu01",
		},
	},
	"1988": {
		{
			"1,Larry Bird*,SF,31,BOS,76,39.0,29.9,6.1,9.3,birdla01",
			"2,Magic Johnson*,PG,28,LAL,72,36.6,19.6,11.9,6.2,johnsma02",
			"3,Michael Jordan*,SG,24,CHI,82,40.4,35.0,5.9,5.5,jordami01",
			"4,Hakeem Olajuwon*,C,25,HOU,79,36.8,22.8,2.1,12.1,olajuha01",
		},
		{
			"1,Larry Bird*,SF,31,BOS,76,2965,27.8,15.0,birdla01",
			"2,Magic Johnson*,PG,28,LAL,72,2637,22.7,11.4,johnsma02",
			"3,Michael Jordan*,SG,24,CHI,82,3311,31.7,21.2,jordami01",
			"4,Hakeem Olajuwon*,C,25,HOU,79,2825,22.7,11.8,olajuha01",
		},
	},
}

func writeSeasons(t *testing.T, dir string, tags ...string) {
	t.Helper()
	for _, tag := range tags {
		rows := seasons[tag]
		pg := perGameHeader + "\n" + strings.Join(rows[0], "\n") + "\n"
		adv := advancedHeader + "\n" + strings.Join(rows[1], "\n") + "\n"
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf(source.DefaultPerGamePattern, tag)), []byte(pg), 0o600); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf(source.DefaultAdvancedPattern, tag)), []byte(adv), 0o600); err != nil {
			t.Fatal(err)
		}
	}
}

func newStore(t *testing.T) *repository.ArtifactStore {
	t.Helper()
	backend, err := repository.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return repository.NewArtifactStore(backend, repository.WithRunID("test-run"))
}

func config(tags ...string) pipeline.Config {
	return pipeline.Config{
		Seasons:         tags,
		MinGames:        30,
		DistanceWorkers: 2,
		BuildWorkers:    2,
		JobQueueSize:    4,
	}
}

func TestPipelineAll(t *testing.T) {
	_ = logger.Init(logger.WithOutput(io.Discard))
	ctx := context.Background()

	Convey("Given two seasons of raw tables", t, func() {
		raw := t.TempDir()
		writeSeasons(t, raw, "1984", "1988")
		store := newStore(t)
		p := pipeline.New(source.NewFileSource(raw), store, config("1984", "1988"), pipeline.WithRunID("run-1"))

		Convey("When the full pipeline runs", func() {
			rep, err := p.All(ctx)
			So(err, ShouldBeNil)

			Convey("Then every season and the combined scope should be reported", func() {
				So(rep.RunID, ShouldEqual, "run-1")
				So(len(rep.Scopes), ShouldEqual, 3)
				So(rep.Scopes[0].Scope, ShouldEqual, "1984")
				So(rep.Scopes[0].Players, ShouldEqual, 3)
				So(rep.Scopes[1].Scope, ShouldEqual, "1988")
				So(rep.Scopes[1].Players, ShouldEqual, 4)
				So(rep.Scopes[2].Scope, ShouldEqual, model.ScopeAll)
				So(rep.Scopes[2].Players, ShouldEqual, 7)
			})

			Convey("Then both artifacts should exist for every scope", func() {
				scopes, err := store.Scopes(ctx)
				So(err, ShouldBeNil)
				So(scopes, ShouldResemble, []string{"1984", "1988", "all"})

				all, err := store.LoadStats(ctx, model.ScopeAll)
				So(err, ShouldBeNil)
				r, ok := all.Get(model.SeasonID("birdla01", "1988"))
				So(ok, ShouldBeTrue)
				So(r.Player, ShouldEqual, "Larry Bird (1988)")

				ix, err := store.LoadIndex(ctx, model.ScopeAll, all.IDs())
				So(err, ShouldBeNil)
				So(ix.Len(), ShouldEqual, 7)
			})

			Convey("Then the low-games player should be filtered out", func() {
				t84, err := store.LoadStats(ctx, "1984")
				So(err, ShouldBeNil)
				_, ok := t84.Get("benchgu01")
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When one season is missing its files", func() {
			p := pipeline.New(source.NewFileSource(raw), store, config("1984", "1992"))
			_, err := p.All(ctx)

			Convey("Then the run should fail before the combined scope is written", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "1992")
				scopes, err := store.Scopes(ctx)
				So(err, ShouldBeNil)
				So(scopes, ShouldNotContain, model.ScopeAll)
			})
		})
	})
}

func TestPipelineSteps(t *testing.T) {
	_ = logger.Init(logger.WithOutput(io.Discard))
	ctx := context.Background()

	Convey("Given a pipeline over two seasons", t, func() {
		raw := t.TempDir()
		writeSeasons(t, raw, "1984", "1988")
		store := newStore(t)
		p := pipeline.New(source.NewFileSource(raw), store, config("1984", "1988"))

		Convey("Then a run id should be generated", func() {
			So(p.RunID(), ShouldNotBeEmpty)
		})

		Convey("When only cleaning", func() {
			rep, err := p.Clean(ctx)
			So(err, ShouldBeNil)
			So(len(rep.Scopes), ShouldEqual, 2)

			Convey("Then stats should exist but no scope is complete", func() {
				_, err := store.LoadStats(ctx, "1988")
				So(err, ShouldBeNil)
				scopes, err := store.Scopes(ctx)
				So(err, ShouldBeNil)
				So(scopes, ShouldBeEmpty)
			})

			Convey("And combining then building every scope", func() {
				_, err := p.Combine(ctx)
				So(err, ShouldBeNil)
				rep, err := p.Build(ctx, "1984", "1988", model.ScopeAll)
				So(err, ShouldBeNil)

				Convey("Then every scope should be complete", func() {
					So(len(rep.Scopes), ShouldEqual, 3)
					scopes, err := store.Scopes(ctx)
					So(err, ShouldBeNil)
					So(scopes, ShouldResemble, []string{"1984", "1988", "all"})
				})
			})
		})

		Convey("When building a scope that was never cleaned", func() {
			_, err := p.Build(ctx, "2022")

			Convey("Then it should report a missing scope", func() {
				So(errors.Is(err, errs.ErrUnknownScope), ShouldBeTrue)
			})
		})

		Convey("When the parent context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := p.All(cctx)

			Convey("Then the run should fail", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

var errDiskFull = errors.New("disk full")

// failingIndexStore rejects every index write.
type failingIndexStore struct {
	*repository.ArtifactStore
}

func (failingIndexStore) SaveIndex(context.Context, *distance.Index) error { return errDiskFull }

func TestPipelineFailedIndexWrite(t *testing.T) {
	_ = logger.Init(logger.WithOutput(io.Discard))
	ctx := context.Background()

	Convey("Given seasons that were already cleaned", t, func() {
		raw := t.TempDir()
		writeSeasons(t, raw, "1984", "1988")
		store := newStore(t)
		_, err := pipeline.New(source.NewFileSource(raw), store, config("1984", "1988")).Clean(ctx)
		So(err, ShouldBeNil)
		failing := failingIndexStore{store}

		Convey("When building an index fails to persist", func() {
			_, err := pipeline.New(source.NewFileSource(raw), failing, config("1984", "1988")).Build(ctx, "1988")

			Convey("Then the cleaned table should survive", func() {
				So(errors.Is(err, errDiskFull), ShouldBeTrue)
				tbl, err := store.LoadStats(ctx, "1988")
				So(err, ShouldBeNil)
				So(tbl.Len(), ShouldEqual, 4)
			})
		})

		Convey("When a full run fails to persist an index", func() {
			_, err := pipeline.New(source.NewFileSource(raw), failing, config("1988")).All(ctx)

			Convey("Then the table it rewrote should be removed", func() {
				So(errors.Is(err, errDiskFull), ShouldBeTrue)
				_, err := store.LoadStats(ctx, "1988")
				So(errors.Is(err, errs.ErrUnknownScope), ShouldBeTrue)
			})
		})
	})
}

func TestPipelineConstantColumns(t *testing.T) {
	_ = logger.Init(logger.WithOutput(io.Discard))
	ctx := context.Background()

	Convey("Given a season where every player has the same age", t, func() {
		raw := t.TempDir()
		pg := perGameHeader + "\n" +
			"1,A One,SF,30,BOS,70,30.0,20.0,3.0,5.0,aone01\n" +
			"2,B Two,PG,30,LAL,60,32.0,15.0,9.0,4.0,btwo01\n"
		adv := advancedHeader + "\n" +
			"1,A One,SF,30,BOS,70,2100,18.0,8.0,aone01\n" +
			"2,B Two,PG,30,LAL,60,1920,16.0,6.0,btwo01\n"
		So(os.WriteFile(filepath.Join(raw, "NBA 2000 Per Game.csv"), []byte(pg), 0o600), ShouldBeNil)
		So(os.WriteFile(filepath.Join(raw, "NBA 2000 Advanced.csv"), []byte(adv), 0o600), ShouldBeNil)
		store := newStore(t)

		Convey("When constant columns are not dropped", func() {
			p := pipeline.New(source.NewFileSource(raw), store, config("2000"))
			_, err := p.Clean(ctx)
			So(err, ShouldBeNil)
			_, err = p.Build(ctx, "2000")

			Convey("Then the build should fail as degenerate", func() {
				So(errors.Is(err, errs.ErrDegenerateScope), ShouldBeTrue)
			})
		})

		Convey("When constant columns are dropped", func() {
			cfg := config("2000")
			cfg.DropConstant = true
			p := pipeline.New(source.NewFileSource(raw), store, cfg)
			_, err := p.Clean(ctx)
			So(err, ShouldBeNil)
			rep, err := p.Build(ctx, "2000")

			Convey("Then the age column should be reported as dropped", func() {
				So(err, ShouldBeNil)
				So(rep.Scopes[0].Dropped, ShouldResemble, []string{"Age"})
			})
		})
	})
}

func TestShowHelp(t *testing.T) {
	Convey("Given the help text", t, func() {
		var buf bytes.Buffer
		pipeline.ShowHelp(&buf)

		Convey("Then it should list every command", func() {
			for _, cmd := range []string{"all", "clean", "combine", "build", "query"} {
				So(buf.String(), ShouldContainSubstring, "  "+cmd+" ")
			}
		})
	})
}

func TestSetupLogging(t *testing.T) {
	Convey("Given a log file path", t, func() {
		path := filepath.Join(t.TempDir(), "pipeline.log")

		Convey("When logging is set up", func() {
			closer, err := pipeline.SetupLogging("json", "info", path)
			So(err, ShouldBeNil)
			logger.Get().Info(context.Background(), "hello")
			So(closer.Close(), ShouldBeNil)

			Convey("Then entries should reach the file", func() {
				data, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				So(string(data), ShouldContainSubstring, `"msg":"hello"`)
			})
		})

		Convey("When the level is unknown", func() {
			_, err := pipeline.SetupLogging("text", "loud", "")

			Convey("Then it should fail", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestPrinters(t *testing.T) {
	Convey("Given a report and a query result", t, func() {
		var buf bytes.Buffer

		Convey("When the report is printed", func() {
			rep := &pipeline.Report{RunID: "r1", Scopes: []pipeline.ScopeReport{
				{Scope: "1988", Players: 4, Columns: 8, Dropped: []string{"Age"}},
			}}
			So(pipeline.PrintReport(&buf, rep), ShouldBeNil)

			Convey("Then it should show the scope row and the run id", func() {
				So(buf.String(), ShouldContainSubstring, "1988")
				So(buf.String(), ShouldContainSubstring, "Age")
				So(buf.String(), ShouldContainSubstring, "run r1")
			})
		})

		Convey("When a result with a null cell is printed", func() {
			res := &analytics.Result{
				Columns: []string{"player", "PTS"},
				Rows:    [][]any{{"Michael Jordan", 35.0}, {"Unknown", nil}},
			}
			So(pipeline.PrintResult(&buf, res), ShouldBeNil)

			Convey("Then every row should be written", func() {
				lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
				So(len(lines), ShouldEqual, 3)
				So(lines[1], ShouldContainSubstring, "35")
			})
		})
	})
}
