// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// PlayersDependencies defines the interface for catalogue reads.
type PlayersDependencies interface {
	Scopes(ctx context.Context) ([]ScopeInfo, error)
	Players(ctx context.Context, scopeID string) ([]Player, error)
	Player(ctx context.Context, scopeID, ref string) (PlayerStats, error)
}

// PlayersHandler handles scope and player catalogue requests.
type PlayersHandler struct {
	deps PlayersDependencies
}

// NewPlayersHandler creates a new players handler.
func NewPlayersHandler(deps PlayersDependencies) *PlayersHandler {
	return &PlayersHandler{deps: deps}
}

// HandleListScopes handles GET /scopes requests.
func (h *PlayersHandler) HandleListScopes(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_scopes"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	scopes, err := h.deps.Scopes(r.Context())
	if err != nil {
		writeQueryError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, scopes)
}

// HandleListPlayers handles GET /players?scope=S requests.
func (h *PlayersHandler) HandleListPlayers(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_players"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	players, err := h.deps.Players(r.Context(), scopeParam(r))
	if err != nil {
		writeQueryError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, players)
}

// HandleGetPlayer handles GET /players/{id}?scope=S requests. The path
// segment may also be an exact display name.
func (h *PlayersHandler) HandleGetPlayer(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_player"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	// Extract path parameter after /players/
	path := strings.TrimPrefix(r.URL.EscapedPath(), "/players/")
	ref, err := url.PathUnescape(path)
	if err != nil || ref == "" || strings.Contains(path, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	p, err := h.deps.Player(r.Context(), scopeParam(r), ref)
	if err != nil {
		writeQueryError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, p)
}
