package config_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/joshphelan/nba-player-similarity/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
			convey.So(cfg.StoreBackend, convey.ShouldEqual, config.BackendFile)
			convey.So(cfg.MinGames, convey.ShouldEqual, 30)
			convey.So(cfg.DistanceWorkers, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.ScopeCacheSize, convey.ShouldEqual, 16)
			convey.So(cfg.DropConstantColumns, convey.ShouldBeFalse)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the season catalogue should run every four years then 2022", func() {
			convey.So(cfg.Seasons, convey.ShouldResemble, []string{
				"1980", "1984", "1988", "1992", "1996", "2000", "2004", "2008", "2012", "2016", "2022",
			})
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a valid config", t, func() {
		cases := []struct {
			name   string
			mutate func(*config.Config)
		}{
			{"empty addr", func(c *config.Config) { c.Addr = "" }},
			{"unknown log format", func(c *config.Config) { c.LogFormat = "xml" }},
			{"unknown backend", func(c *config.Config) { c.StoreBackend = "s3" }},
			{"file backend without dir", func(c *config.Config) { c.StoreDir = "" }},
			{"redis backend without url", func(c *config.Config) { c.StoreBackend = config.BackendRedis }},
			{"no seasons", func(c *config.Config) { c.Seasons = nil }},
			{"duplicate season", func(c *config.Config) { c.Seasons = []string{"1988", "1988"} }},
			{"blank season", func(c *config.Config) { c.Seasons = []string{"1988", ""} }},
			{"negative min games", func(c *config.Config) { c.MinGames = -1 }},
			{"no distance workers", func(c *config.Config) { c.DistanceWorkers = 0 }},
			{"no build workers", func(c *config.Config) { c.BuildWorkers = 0 }},
			{"empty scope cache", func(c *config.Config) { c.ScopeCacheSize = 0 }},
			{"no neighbors", func(c *config.Config) { c.MaxNeighbors = 0 }},
		}

		for _, tc := range cases {
			convey.Convey("When it has "+tc.name, func() {
				cfg := config.New()
				tc.mutate(cfg)

				convey.Convey("Then validation should fail with ErrInvalidConfig", func() {
					convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
				})
			})
		}

		convey.Convey("When the redis backend has a url", func() {
			cfg := config.New()
			cfg.StoreBackend = config.BackendRedis
			cfg.RedisURL = "redis://localhost:6379/0"
			cfg.StoreDir = ""

			convey.Convey("Then it should be valid", func() {
				convey.So(cfg.Validate(), convey.ShouldBeNil)
			})
		})
	})
}
