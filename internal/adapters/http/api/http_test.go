package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/joshphelan/nba-player-similarity/internal/adapters/http/api"
	service "github.com/joshphelan/nba-player-similarity/internal/app"
	"github.com/joshphelan/nba-player-similarity/internal/domain/errs"
	"github.com/joshphelan/nba-player-similarity/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing
type call struct {
	scope, a, b string
	k           int
	stats       []string
}

type mockDependencies struct {
	err  error
	last call
}

var (
	bird    = types.Player{ID: "birdla01", Code: "birdla01", Season: "1988", Name: "Larry Bird"}
	johnson = types.Player{ID: "johnsma02", Code: "johnsma02", Season: "1988", Name: "Magic Johnson"}
)

func (m *mockDependencies) Similarity(_ context.Context, scopeID, a, b string) (types.SimilarityResult, error) {
	m.last = call{scope: scopeID, a: a, b: b}
	if m.err != nil {
		return types.SimilarityResult{}, m.err
	}
	return types.SimilarityResult{Scope: scopeID, A: bird, B: johnson, Similarity: 0.8, Average: 0.6, Delta: 0.2}, nil
}

func (m *mockDependencies) SimilarPlayers(_ context.Context, scopeID, ref string, k int) (types.Neighbors, error) {
	m.last = call{scope: scopeID, a: ref, k: k}
	if m.err != nil {
		return types.Neighbors{}, m.err
	}
	return types.Neighbors{Scope: scopeID, Query: bird, Results: []types.Neighbor{{Rank: 1, Player: johnson}}}, nil
}

func (m *mockDependencies) SimilarPlayersAllYears(_ context.Context, ref string, k int) (types.Neighbors, error) {
	m.last = call{scope: "all", a: ref, k: k}
	if m.err != nil {
		return types.Neighbors{}, m.err
	}
	return types.Neighbors{Scope: "all", Query: bird, CrossEra: true}, nil
}

func (m *mockDependencies) Compare(_ context.Context, scopeID, a, b string, stats []string) (types.Comparison, error) {
	m.last = call{scope: scopeID, a: a, b: b, stats: stats}
	if m.err != nil {
		return types.Comparison{}, m.err
	}
	return types.Comparison{Scope: scopeID, A: bird, B: johnson, Stats: []types.StatShare{types.NewStatShare("PTS", 30, 20)}}, nil
}

func (m *mockDependencies) Scopes(context.Context) ([]types.ScopeInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []types.ScopeInfo{{ID: "1988"}, {ID: "all", Loaded: true, Players: 2}}, nil
}

func (m *mockDependencies) Players(_ context.Context, scopeID string) ([]types.Player, error) {
	m.last = call{scope: scopeID}
	if m.err != nil {
		return nil, m.err
	}
	return []types.Player{bird, johnson}, nil
}

func (m *mockDependencies) Player(_ context.Context, scopeID, ref string) (types.PlayerStats, error) {
	m.last = call{scope: scopeID, a: ref}
	if m.err != nil {
		return types.PlayerStats{}, m.err
	}
	return types.PlayerStats{Player: bird, Stats: map[string]float64{"PTS": 29.9}}, nil
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newMux(deps *mockDependencies) *http.ServeMux {
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"started": true}}, 10)
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func get(mux *http.ServeMux, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) map[string]string {
	var body map[string]string
	So(json.NewDecoder(w.Body).Decode(&body), ShouldBeNil)
	return body
}

func TestServer_Register(t *testing.T) {
	Convey("Given a new API server", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("When requesting every registered route", func() {
			for _, target := range []string{
				"/healthz",
				"/metrics",
				"/stats",
				"/scopes",
				"/players?scope=1988",
				"/players/birdla01?scope=1988",
				"/similarity?scope=1988&a=birdla01&b=johnsma02",
				"/neighbors?scope=1988&player=birdla01",
				"/neighbors/cross-era?player=birdla01",
				"/compare?scope=1988&a=birdla01&b=johnsma02",
			} {
				Convey("Then "+target+" should be accessible", func() {
					So(get(mux, target).Code, ShouldEqual, http.StatusOK)
				})
			}
		})

		Convey("When requesting an unknown path", func() {
			w := get(mux, "/unknown")

			Convey("Then it should return not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When posting to a read endpoint", func() {
			req := httptest.NewRequest(http.MethodPost, "/similarity?a=x&b=y", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then it should return not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestSimilarityHandler_HandleGetSimilarity(t *testing.T) {
	Convey("Given a similarity handler", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("When both players are given", func() {
			w := get(mux, "/similarity?scope=1988&a=birdla01&b=johnsma02")

			Convey("Then it should return the scored pair", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var res types.SimilarityResult
				So(json.NewDecoder(w.Body).Decode(&res), ShouldBeNil)
				So(res.Similarity, ShouldEqual, 0.8)
				So(res.Delta, ShouldEqual, 0.2)
				So(deps.last, ShouldResemble, call{scope: "1988", a: "birdla01", b: "johnsma02"})
			})
		})

		Convey("When the scope is omitted", func() {
			get(mux, "/similarity?a=birdla01_1988&b=johnsma02_1988")

			Convey("Then the all-seasons scope should be queried", func() {
				So(deps.last.scope, ShouldEqual, "all")
			})
		})

		Convey("When a player is missing", func() {
			w := get(mux, "/similarity?scope=1988&a=birdla01")

			Convey("Then it should return bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				body := decodeError(w)
				So(body["code"], ShouldEqual, "bad_request")
				So(body["message"], ShouldContainSubstring, "missing b")
			})
		})

		Convey("When the query layer rejects the pair", func() {
			cases := []struct {
				err    error
				status int
				code   string
			}{
				{errs.ErrSamePlayer, http.StatusBadRequest, "same_player"},
				{errs.ErrEmptyIndex, http.StatusBadRequest, "empty_index"},
				{errs.ErrUnknownIdentifier, http.StatusNotFound, "unknown_identifier"},
				{errs.ErrUnknownScope, http.StatusNotFound, "unknown_scope"},
				{service.ErrNotStarted, http.StatusServiceUnavailable, "not_started"},
				{fmt.Errorf("disk on fire"), http.StatusInternalServerError, "internal_error"},
			}
			for _, tc := range cases {
				Convey("Then "+tc.code+" should map to its status", func() {
					deps.err = fmt.Errorf("similarity: %w", tc.err)
					w := get(mux, "/similarity?scope=1988&a=birdla01&b=birdla01")
					So(w.Code, ShouldEqual, tc.status)
					So(decodeError(w)["code"], ShouldEqual, tc.code)
				})
			}
		})
	})
}

func TestNeighborsHandler(t *testing.T) {
	Convey("Given a neighbors handler with a limit of 10", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("When k is omitted", func() {
			w := get(mux, "/neighbors?scope=1988&player=birdla01")

			Convey("Then the default k should be used", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.last.k, ShouldEqual, api.DefaultNeighbors)
			})
		})

		Convey("When k is given", func() {
			w := get(mux, "/neighbors?scope=1988&player=birdla01&k=3")

			Convey("Then it should be passed through", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.last.k, ShouldEqual, 3)
				var res types.Neighbors
				So(json.NewDecoder(w.Body).Decode(&res), ShouldBeNil)
				So(len(res.Results), ShouldEqual, 1)
			})
		})

		Convey("When k is invalid or too large", func() {
			for _, k := range []string{"0", "-1", "abc", "11"} {
				Convey("Then k="+k+" should be rejected", func() {
					w := get(mux, "/neighbors?scope=1988&player=birdla01&k="+k)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
				})
			}
		})

		Convey("When the player is missing", func() {
			w := get(mux, "/neighbors?scope=1988")

			Convey("Then it should return bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When asking across eras", func() {
			w := get(mux, "/neighbors/cross-era?player=birdla01_1988&k=2&scope=1988")

			Convey("Then the all-seasons query should run regardless of scope", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.last, ShouldResemble, call{scope: "all", a: "birdla01_1988", k: 2})
			})
		})

		Convey("When the player is unknown", func() {
			deps.err = errs.ErrUnknownPlayer
			w := get(mux, "/neighbors/cross-era?player=nobody")

			Convey("Then it should return not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestCompareHandler_HandleGetCompare(t *testing.T) {
	Convey("Given a compare handler", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("When stats are listed", func() {
			w := get(mux, "/compare?scope=1988&a=birdla01&b=johnsma02&stats=PTS,%20AST,")

			Convey("Then the trimmed list should be passed through", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.last.stats, ShouldResemble, []string{"PTS", "AST"})
				var res types.Comparison
				So(json.NewDecoder(w.Body).Decode(&res), ShouldBeNil)
				So(res.Stats[0].ShareA, ShouldEqual, 0.6)
			})
		})

		Convey("When stats are omitted", func() {
			get(mux, "/compare?scope=1988&a=birdla01&b=johnsma02")

			Convey("Then every stat should be compared", func() {
				So(deps.last.stats, ShouldBeNil)
			})
		})

		Convey("When a stat is unknown", func() {
			deps.err = errs.ErrUnknownIdentifier
			w := get(mux, "/compare?scope=1988&a=birdla01&b=johnsma02&stats=XYZ")

			Convey("Then it should return not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestPlayersHandler(t *testing.T) {
	Convey("Given a players handler", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("When listing scopes", func() {
			w := get(mux, "/scopes")

			Convey("Then every scope should be returned", func() {
				var res []types.ScopeInfo
				So(json.NewDecoder(w.Body).Decode(&res), ShouldBeNil)
				So(len(res), ShouldEqual, 2)
				So(res[1].Loaded, ShouldBeTrue)
			})
		})

		Convey("When getting a player by display name", func() {
			w := get(mux, "/players/Larry%20Bird?scope=1988")

			Convey("Then the name should be unescaped", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.last, ShouldResemble, call{scope: "1988", a: "Larry Bird"})
			})
		})

		Convey("When the player path is empty or nested", func() {
			for _, target := range []string{"/players/", "/players/a/b"} {
				Convey("Then "+target+" should be rejected", func() {
					So(get(mux, target).Code, ShouldEqual, http.StatusBadRequest)
				})
			}
		})

		Convey("When the scope does not exist", func() {
			deps.err = errs.ErrUnknownScope
			w := get(mux, "/players?scope=1950")

			Convey("Then it should return not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestHealthHandler_HandleHealth(t *testing.T) {
	Convey("Given a health handler", t, func() {
		handler := api.NewHealthHandler()

		Convey("When handling health check request", func() {
			req := httptest.NewRequest("GET", "/healthz", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return OK status", func() {
				handler.HandleHealth(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestStatsHandler_HandleStats(t *testing.T) {
	Convey("Given a stats handler", t, func() {
		mockStats := &mockStatsProvider{
			stats: map[string]interface{}{
				"started":          true,
				"cachedScopeCount": 3,
			},
		}
		handler := api.NewStatsHandler(mockStats)

		Convey("When handling stats request", func() {
			req := httptest.NewRequest("GET", "/stats", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return stats", func() {
				handler.HandleStats(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)

				var response map[string]interface{}
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response["started"], ShouldEqual, true)
				So(response["cachedScopeCount"], ShouldEqual, 3)
			})
		})
	})
}
