// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
)

// SimilarityDependencies defines the interface for pairwise scoring.
type SimilarityDependencies interface {
	Similarity(ctx context.Context, scopeID, a, b string) (SimilarityResult, error)
}

// SimilarityHandler handles similarity requests.
type SimilarityHandler struct {
	deps SimilarityDependencies
}

// NewSimilarityHandler creates a new similarity handler.
func NewSimilarityHandler(deps SimilarityDependencies) *SimilarityHandler {
	return &SimilarityHandler{deps: deps}
}

// HandleGetSimilarity handles GET /similarity?scope=S&a=ID&b=ID requests.
func (h *SimilarityHandler) HandleGetSimilarity(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_similarity"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	a, err := requiredParam(op, r, "a")
	if err != nil {
		writeQueryError(w, err)
		return
	}
	b, err := requiredParam(op, r, "b")
	if err != nil {
		writeQueryError(w, err)
		return
	}
	res, err := h.deps.Similarity(r.Context(), scopeParam(r), a, b)
	if err != nil {
		writeQueryError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}
