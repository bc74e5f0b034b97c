// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
)

// CompareDependencies defines the interface for stat comparisons.
type CompareDependencies interface {
	Compare(ctx context.Context, scopeID, a, b string, stats []string) (Comparison, error)
}

// CompareHandler handles comparison requests.
type CompareHandler struct {
	deps CompareDependencies
}

// NewCompareHandler creates a new compare handler.
func NewCompareHandler(deps CompareDependencies) *CompareHandler {
	return &CompareHandler{deps: deps}
}

// HandleGetCompare handles GET /compare?scope=S&a=ID&b=ID&stats=PTS,AST requests.
// Without stats every column of the scope is compared.
func (h *CompareHandler) HandleGetCompare(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_compare"
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
	res, err := h.deps.Compare(r.Context(), scopeParam(r), a, b, listParam(r, "stats"))
	if err != nil {
		writeQueryError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}
