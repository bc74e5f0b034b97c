// Package mcp exposes the similarity queries as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/joshphelan/nba-player-similarity/internal/domain/errs"
	"github.com/joshphelan/nba-player-similarity/internal/domain/model"
	"github.com/joshphelan/nba-player-similarity/internal/domain/types"
	"github.com/joshphelan/nba-player-similarity/pkg/logger"
	"github.com/joshphelan/nba-player-similarity/pkg/metrics"
)

// Server identity and defaults.
const (
	ServerName    = "nba-player-similarity"
	ServerVersion = "1.0.0"
	Path          = "/mcp"

	defaultK = 5
)

// Tool names.
const (
	ToolSimilarPlayers         = "similar_players"
	ToolSimilarPlayersAllYears = "similar_players_all_years"
	ToolPlayerSimilarity       = "player_similarity"
	ToolResolvePlayer          = "resolve_player"
	ToolComparePlayers         = "compare_players"
	ToolListScopes             = "list_scopes"
)

// Dependencies is the query surface the tools call.
type Dependencies interface {
	Similarity(ctx context.Context, scopeID, a, b string) (types.SimilarityResult, error)
	SimilarPlayers(ctx context.Context, scopeID, ref string, k int) (types.Neighbors, error)
	SimilarPlayersAllYears(ctx context.Context, ref string, k int) (types.Neighbors, error)
	Compare(ctx context.Context, scopeID, a, b string, stats []string) (types.Comparison, error)
	Resolve(ctx context.Context, scopeID, name string) (types.Player, error)
	Scopes(ctx context.Context) ([]types.ScopeInfo, error)
}

// SimilarPlayersArgs is the input schema for similar_players.
type SimilarPlayersArgs struct {
	Scope  string `json:"scope,omitempty" jsonschema:"Season tag such as 1988, or all (default all)"`
	Player string `json:"player" jsonschema:"Player id or exact display name (required)"`
	K      int    `json:"k,omitempty" jsonschema:"Number of neighbors (default 5)"`
}

// AllYearsArgs is the input schema for similar_players_all_years.
type AllYearsArgs struct {
	Player string `json:"player" jsonschema:"Player-season id such as jordami01_1988 or display name such as Michael Jordan (1988) (required)"`
	K      int    `json:"k,omitempty" jsonschema:"Number of neighbors (default 5)"`
}

// PairArgs is the input schema for player_similarity.
type PairArgs struct {
	Scope string `json:"scope,omitempty" jsonschema:"Season tag such as 1988, or all (default all)"`
	A     string `json:"a" jsonschema:"First player id or display name (required)"`
	B     string `json:"b" jsonschema:"Second player id or display name (required)"`
}

// CompareArgs is the input schema for compare_players.
type CompareArgs struct {
	Scope string   `json:"scope,omitempty" jsonschema:"Season tag such as 1988, or all (default all)"`
	A     string   `json:"a" jsonschema:"First player id or display name (required)"`
	B     string   `json:"b" jsonschema:"Second player id or display name (required)"`
	Stats []string `json:"stats,omitempty" jsonschema:"Stat columns to compare (default all)"`
}

// ResolveArgs is the input schema for resolve_player.
type ResolveArgs struct {
	Scope string `json:"scope,omitempty" jsonschema:"Season tag such as 1988, or all (default all)"`
	Name  string `json:"name" jsonschema:"Exact display name (required)"`
}

// ListScopesArgs is the input schema for list_scopes (no parameters).
type ListScopesArgs struct{}

// ToolInfo describes one registered tool.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Server owns the MCP server and its tool registry.
type Server struct {
	deps     Dependencies
	server   *gomcp.Server
	registry []ToolInfo
	maxK     int
	logger   logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxNeighbors caps k of the neighbor tools.
func WithMaxNeighbors(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxK = n
		}
	}
}

// WithLogger sets the server's logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Server with every tool registered.
func New(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps: deps,
		server: gomcp.NewServer(&gomcp.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		}, nil),
		maxK: 50,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("mcp")
	}
	s.registerTools()
	return s
}

// MCP returns the underlying protocol server.
func (s *Server) MCP() *gomcp.Server { return s.server }

// Tools lists the registered tools in registration order.
func (s *Server) Tools() []ToolInfo {
	out := make([]ToolInfo, len(s.registry))
	copy(out, s.registry)
	return out
}

// Handler serves the tools over streamable HTTP with plain JSON responses.
func (s *Server) Handler() http.Handler {
	return gomcp.NewStreamableHTTPHandler(func(*http.Request) *gomcp.Server {
		return s.server
	}, &gomcp.StreamableHTTPOptions{JSONResponse: true})
}

func (s *Server) registerTools() {
	addTool(s, &gomcp.Tool{
		Name:        ToolSimilarPlayers,
		Description: "Most similar player-seasons to a player within one season or the all scope",
	}, func(ctx context.Context, _ *gomcp.CallToolRequest, args SimilarPlayersArgs) (*gomcp.CallToolResult, any, error) {
		if strings.TrimSpace(args.Player) == "" {
			return toolError(errors.New("player is required")), nil, nil
		}
		k, err := s.limit(args.K)
		if err != nil {
			return toolError(err), nil, nil
		}
		return toolJSON(s.deps.SimilarPlayers(ctx, scopeOrAll(args.Scope), args.Player, k))
	})

	addTool(s, &gomcp.Tool{
		Name:        ToolSimilarPlayersAllYears,
		Description: "Most similar players across every season, keeping each other player's closest season and skipping the player's own seasons",
	}, func(ctx context.Context, _ *gomcp.CallToolRequest, args AllYearsArgs) (*gomcp.CallToolResult, any, error) {
		if strings.TrimSpace(args.Player) == "" {
			return toolError(errors.New("player is required")), nil, nil
		}
		k, err := s.limit(args.K)
		if err != nil {
			return toolError(err), nil, nil
		}
		return toolJSON(s.deps.SimilarPlayersAllYears(ctx, args.Player, k))
	})

	addTool(s, &gomcp.Tool{
		Name:        ToolPlayerSimilarity,
		Description: "Similarity score of two player-seasons with the scope average and the delta from it",
	}, func(ctx context.Context, _ *gomcp.CallToolRequest, args PairArgs) (*gomcp.CallToolResult, any, error) {
		if strings.TrimSpace(args.A) == "" || strings.TrimSpace(args.B) == "" {
			return toolError(errors.New("a and b are required")), nil, nil
		}
		return toolJSON(s.deps.Similarity(ctx, scopeOrAll(args.Scope), args.A, args.B))
	})

	addTool(s, &gomcp.Tool{
		Name:        ToolResolvePlayer,
		Description: "Look up a player-season by exact display name",
	}, func(ctx context.Context, _ *gomcp.CallToolRequest, args ResolveArgs) (*gomcp.CallToolResult, any, error) {
		if strings.TrimSpace(args.Name) == "" {
			return toolError(errors.New("name is required")), nil, nil
		}
		return toolJSON(s.deps.Resolve(ctx, scopeOrAll(args.Scope), args.Name))
	})

	addTool(s, &gomcp.Tool{
		Name:        ToolComparePlayers,
		Description: "Raw stats of two player-seasons side by side with each player's share of the pair total",
	}, func(ctx context.Context, _ *gomcp.CallToolRequest, args CompareArgs) (*gomcp.CallToolResult, any, error) {
		if strings.TrimSpace(args.A) == "" || strings.TrimSpace(args.B) == "" {
			return toolError(errors.New("a and b are required")), nil, nil
		}
		return toolJSON(s.deps.Compare(ctx, scopeOrAll(args.Scope), args.A, args.B, args.Stats))
	})

	addTool(s, &gomcp.Tool{
		Name:        ToolListScopes,
		Description: "Persisted scopes and whether each is loaded",
	}, func(ctx context.Context, _ *gomcp.CallToolRequest, _ ListScopesArgs) (*gomcp.CallToolResult, any, error) {
		return toolJSON(s.deps.Scopes(ctx))
	})
}

func (s *Server) limit(k int) (int, error) {
	switch {
	case k == 0:
		return min(defaultK, s.maxK), nil
	case k < 0:
		return 0, fmt.Errorf("k %d: %w", k, errs.ErrInvalidLimit)
	case k > s.maxK:
		return 0, fmt.Errorf("k must not exceed %d: %w", s.maxK, errs.ErrInvalidLimit)
	}
	return k, nil
}

func addTool[T any](s *Server, tool *gomcp.Tool, handler func(context.Context, *gomcp.CallToolRequest, T) (*gomcp.CallToolResult, any, error)) {
	s.registry = append(s.registry, ToolInfo{Name: tool.Name, Description: tool.Description})
	name := tool.Name
	gomcp.AddTool(s.server, tool, func(ctx context.Context, req *gomcp.CallToolRequest, args T) (*gomcp.CallToolResult, any, error) {
		start := time.Now()
		res, out, err := handler(ctx, req, args)
		status := "ok"
		if err != nil || (res != nil && res.IsError) {
			status = "error"
		}
		metrics.RecordHTTPRequest("mcp_"+name, http.MethodPost, status)
		metrics.RecordHTTPRequestDuration("mcp_"+name, http.MethodPost, status, float64(time.Since(start).Milliseconds()))
		s.logger.Debug(ctx, "tool called",
			logger.String("tool", name),
			logger.String("status", status),
			logger.Duration("took", time.Since(start)),
		)
		return res, out, err
	})
}

func scopeOrAll(scope string) string {
	if scope = strings.TrimSpace(scope); scope != "" {
		return scope
	}
	return model.ScopeAll
}

// toolJSON renders v, or the query error, as the tool result.
func toolJSON[T any](v T, err error) (*gomcp.CallToolResult, any, error) {
	if err != nil {
		return toolError(err), nil, nil
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError(err), nil, nil
	}
	return toolJSONBytes(b), nil, nil
}

func toolJSONBytes(res []byte) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{
			&gomcp.TextContent{Text: string(res)},
		},
	}
}

// toolError reports err in-band so the model can read it. Query errors are
// prefixed with their kind.
func toolError(err error) *gomcp.CallToolResult {
	text := fmt.Sprintf("error: %v", err)
	if errs.IsQueryError(err) {
		text = fmt.Sprintf("error: %s: %v", errs.Kind(err), err)
	}
	return &gomcp.CallToolResult{
		IsError: true,
		Content: []gomcp.Content{
			&gomcp.TextContent{Text: text},
		},
	}
}
