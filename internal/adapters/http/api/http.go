// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/joshphelan/nba-player-similarity/internal/domain/model"
	"github.com/joshphelan/nba-player-similarity/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SimilarityDependencies
	NeighborsDependencies
	CompareDependencies
	PlayersDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	similarityHandler *SimilarityHandler
	neighborsHandler  *NeighborsHandler
	compareHandler    *CompareHandler
	playersHandler    *PlayersHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxNeighbors int) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(statsProvider),
		similarityHandler: NewSimilarityHandler(deps),
		neighborsHandler:  NewNeighborsHandler(deps, maxNeighbors),
		compareHandler:    NewCompareHandler(deps),
		playersHandler:    NewPlayersHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", MetricsMiddleware(s.healthHandler.HandleHealth, "metrics"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/scopes", MetricsMiddleware(s.playersHandler.HandleListScopes, "scopes"))
	mux.HandleFunc("/players", MetricsMiddleware(s.playersHandler.HandleListPlayers, "players"))
	mux.HandleFunc("/players/", MetricsMiddleware(s.playersHandler.HandleGetPlayer, "player"))
	mux.HandleFunc("/similarity", MetricsMiddleware(s.similarityHandler.HandleGetSimilarity, "similarity"))
	mux.HandleFunc("/neighbors", MetricsMiddleware(s.neighborsHandler.HandleGetNeighbors, "neighbors"))
	mux.HandleFunc("/neighbors/cross-era", MetricsMiddleware(s.neighborsHandler.HandleGetCrossEra, "neighbors_cross_era"))
	mux.HandleFunc("/compare", MetricsMiddleware(s.compareHandler.HandleGetCompare, "compare"))
}

// Aliases for the read shapes returned by the query layer.
type (
	Player           = types.Player
	PlayerStats      = types.PlayerStats
	Neighbors        = types.Neighbors
	SimilarityResult = types.SimilarityResult
	Comparison       = types.Comparison
	ScopeInfo        = types.ScopeInfo
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeQueryError translates a query layer error to its HTTP status.
func writeQueryError(w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	writeError(w, status, code, err)
}

// scopeParam reads ?scope=, defaulting to the all-seasons scope.
func scopeParam(r *http.Request) string {
	if s := strings.TrimSpace(r.URL.Query().Get("scope")); s != "" {
		return s
	}
	return model.ScopeAll
}

// requiredParam reads a non-blank query parameter.
func requiredParam(op string, r *http.Request, name string) (string, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return "", WrapKind(op, ErrBadRequest, missingParamError(name))
	}
	return v, nil
}

// limitParam reads ?k= within [1, maxLimit], defaulting to def.
func limitParam(op string, r *http.Request, def, maxLimit int) (int, error) {
	raw := r.URL.Query().Get("k")
	if raw == "" {
		return min(def, maxLimit), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, WrapKind(op, ErrBadRequest, invalidParamError("k"))
	}
	if n > maxLimit {
		return 0, WrapKind(op, ErrBadRequest, limitExceededError(maxLimit))
	}
	return n, nil
}

// listParam splits a comma separated query parameter.
func listParam(r *http.Request, name string) []string {
	var out []string
	for _, part := range strings.Split(r.URL.Query().Get(name), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type paramError string

func (e paramError) Error() string { return string(e) }

func missingParamError(name string) error { return paramError("missing " + name) }
func invalidParamError(name string) error { return paramError("invalid " + name) }
func limitExceededError(maxLimit int) error {
	return paramError("k must not exceed " + strconv.Itoa(maxLimit))
}
