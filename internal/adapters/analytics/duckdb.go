// Package analytics runs ad-hoc SQL over persisted stat-table artifacts with DuckDB.
package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // registers the duckdb driver

	"github.com/joshphelan/nba-player-similarity/internal/adapters/repository"
	"github.com/joshphelan/nba-player-similarity/internal/domain/errs"
)

// View names available to queries.
const (
	PlayersView   = "players"
	DistancesView = "distances"
)

// Result is a fully materialized query result.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Engine queries the artifacts of one backend.
type Engine struct {
	backend repository.Backend
	tmpDir  string
}

// New creates an Engine. Artifacts not on local disk are copied to tmpDir
// (os.TempDir when empty) for the duration of a query.
func New(backend repository.Backend, tmpDir string) *Engine {
	return &Engine{backend: backend, tmpDir: tmpDir}
}

// Query exposes the scope as view "players", with one column per stat, and
// its distance index as view "distances" (key, other, distance) when present.
func (e *Engine) Query(ctx context.Context, scope, query string) (*Result, error) {
	statsPath, cleanup, err := e.localPath(ctx, repository.StatsName(scope))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("query %s: %w: %w", scope, errs.ErrUnknownScope, err)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", scope, err)
	}
	defer cleanup()

	data, err := os.ReadFile(statsPath) //nolint:gosec // path from backend
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", scope, err)
	}
	tbl, _, err := repository.DecodeStats(data)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", scope, err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	defer db.Close()
	// Views are per connection for an in-memory database.
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open conn: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, playersViewSQL(statsPath, tbl.Columns)); err != nil {
		return nil, fmt.Errorf("failed to create view for %s: %w", scope, err)
	}

	distPath, distCleanup, err := e.localPath(ctx, repository.DistancesName(scope))
	switch {
	case err == nil:
		defer distCleanup()
		view := fmt.Sprintf(`CREATE VIEW %s AS SELECT "key", "other", "distance" FROM read_parquet(%s)`,
			DistancesView, quoteLiteral(distPath))
		if _, err := conn.ExecContext(ctx, view); err != nil {
			return nil, fmt.Errorf("failed to create distances view for %s: %w", scope, err)
		}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("query %s: %w", scope, err)
	}

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

func playersViewSQL(path string, columns []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE VIEW %s AS SELECT id, code, season, player, team, position", PlayersView)
	for i, c := range columns {
		// DuckDB lists are 1-indexed.
		fmt.Fprintf(&b, ", stats[%d] AS %s", i+1, quoteIdent(c))
	}
	fmt.Fprintf(&b, " FROM read_parquet(%s)", quoteLiteral(path))
	return b.String()
}

func quoteIdent(s string) string   { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }
func quoteLiteral(s string) string { return `'` + strings.ReplaceAll(s, `'`, `''`) + `'` }

// localPath returns a file path for name, spilling non-file backends to a temp file.
func (e *Engine) localPath(ctx context.Context, name string) (string, func(), error) {
	if fb, ok := e.backend.(*repository.FileBackend); ok {
		p, err := fb.Path(name)
		if err != nil {
			return "", nil, err
		}
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			return "", nil, &repository.NotFoundError{Name: name}
		}
		return p, func() {}, nil
	}

	rc, err := e.backend.Read(ctx, name)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()
	f, err := os.CreateTemp(e.tmpDir, "nbasim-*.parquet")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return f.Name(), cleanup, nil
}

func collect(rows *sql.Rows) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, vals)
	}
	return res, rows.Err()
}
