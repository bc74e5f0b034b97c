package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/joshphelan/nba-player-similarity/internal/adapters/repository"
	app "github.com/joshphelan/nba-player-similarity/internal/app"
	"github.com/joshphelan/nba-player-similarity/internal/config"
	"github.com/joshphelan/nba-player-similarity/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func startedService(t *testing.T) *app.Service {
	t.Helper()
	backend, err := repository.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	svc := app.New(app.WithStore(repository.NewArtifactStore(backend)))
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(svc.Stop)
	return svc
}

func TestMainFunction(t *testing.T) {
	_ = logger.Init(logger.WithOutput(io.Discard))

	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("NBASIM_ADDR", ":8080")
			_ = os.Setenv("NBASIM_SCOPE_CACHE_SIZE", "4")
			_ = os.Setenv("NBASIM_MAX_NEIGHBORS", "20")
			defer func() {
				_ = os.Unsetenv("NBASIM_ADDR")
				_ = os.Unsetenv("NBASIM_SCOPE_CACHE_SIZE")
				_ = os.Unsetenv("NBASIM_MAX_NEIGHBORS")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.ScopeCacheSize, convey.ShouldEqual, 4)
				convey.So(cfg.MaxNeighbors, convey.ShouldEqual, 20)
			})
		})

		convey.Convey("When testing invalid configuration", func() {
			_ = os.Setenv("NBASIM_ADDR", "")
			defer func() { _ = os.Unsetenv("NBASIM_ADDR") }()

			convey.Convey("Then configuration loading should fail", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestNewMux(t *testing.T) {
	_ = logger.Init(logger.WithOutput(io.Discard))

	convey.Convey("Given a mux over a started service with an empty store", t, func() {
		ctx := context.Background()
		svc := startedService(t)
		mux := newMux(ctx, svc, config.New(), logger.Get())

		convey.Convey("When listing scopes", func() {
			req := httptest.NewRequest(http.MethodGet, "/scopes", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			convey.Convey("Then it should return an empty list", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				var scopes []map[string]any
				convey.So(json.NewDecoder(w.Body).Decode(&scopes), convey.ShouldBeNil)
				convey.So(scopes, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When querying a scope that was never built", func() {
			req := httptest.NewRequest(http.MethodGet, "/neighbors?scope=1988&player=birdla01", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			convey.Convey("Then it should return not found", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusNotFound)
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "unknown_scope")
			})
		})

		convey.Convey("When fetching the docs and metrics", func() {
			for _, target := range []string{"/openapi.yaml", "/api-docs", "/healthz", "/metrics", "/stats"} {
				convey.Convey("Then "+target+" should be served", func() {
					req := httptest.NewRequest(http.MethodGet, target, nil)
					w := httptest.NewRecorder()
					mux.ServeHTTP(w, req)
					convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				})
			}
		})

		convey.Convey("When initializing an MCP session", func() {
			body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`
			req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "application/json, text/event-stream")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			convey.Convey("Then the server should answer with its identity", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "nba-player-similarity")
			})
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	_ = logger.Init(logger.WithOutput(io.Discard))

	convey.Convey("Given main application components", t, func() {
		convey.Convey("When testing system metrics updater", func() {
			convey.Convey("Then it should return once the context ends", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()

				convey.So(func() {
					startSystemMetricsUpdater(ctx)
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When testing service metrics updater", func() {
			svc := startedService(t)

			convey.Convey("Then it should return once the context ends", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()

				convey.So(func() {
					startServiceMetricsUpdater(ctx, svc)
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When updating metrics directly", func() {
			convey.Convey("Then neither update should panic", func() {
				convey.So(updateSystemMetrics, convey.ShouldNotPanic)
				convey.So(func() { updateServiceMetrics(app.New()) }, convey.ShouldNotPanic)
			})
		})
	})
}
