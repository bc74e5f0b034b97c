// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
)

// DefaultNeighbors is the k used when a request does not give one.
const DefaultNeighbors = 5

// NeighborsDependencies defines the interface for similar-player lookups.
type NeighborsDependencies interface {
	SimilarPlayers(ctx context.Context, scopeID, ref string, k int) (Neighbors, error)
	SimilarPlayersAllYears(ctx context.Context, ref string, k int) (Neighbors, error)
}

// NeighborsHandler handles similar-player requests.
type NeighborsHandler struct {
	deps     NeighborsDependencies
	maxLimit int
}

// NewNeighborsHandler creates a new neighbors handler.
func NewNeighborsHandler(deps NeighborsDependencies, maxLimit int) *NeighborsHandler {
	if maxLimit < 1 {
		maxLimit = DefaultNeighbors
	}
	return &NeighborsHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetNeighbors handles GET /neighbors?scope=S&player=ID&k=N requests.
func (h *NeighborsHandler) HandleGetNeighbors(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_neighbors"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	ref, k, err := h.params(op, r)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	res, err := h.deps.SimilarPlayers(r.Context(), scopeParam(r), ref, k)
	if err != nil {
		writeQueryError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleGetCrossEra handles GET /neighbors/cross-era?player=ID&k=N requests.
// The query always runs against the all-seasons scope.
func (h *NeighborsHandler) HandleGetCrossEra(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_neighbors_cross_era"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	ref, k, err := h.params(op, r)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	res, err := h.deps.SimilarPlayersAllYears(r.Context(), ref, k)
	if err != nil {
		writeQueryError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *NeighborsHandler) params(op string, r *http.Request) (string, int, error) {
	ref, err := requiredParam(op, r, "player")
	if err != nil {
		return "", 0, err
	}
	k, err := limitParam(op, r, DefaultNeighbors, h.maxLimit)
	if err != nil {
		return "", 0, err
	}
	return ref, k, nil
}
