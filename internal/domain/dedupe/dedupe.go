// Package dedupe collapses the per-team rows of traded players to one row per player.
//
// A traded player appears once per team plus once as a season total. The total
// row is recognised by its team marker rather than by its position in the file.
package dedupe

import (
	"context"
	"fmt"
	"regexp"

	"github.com/joshphelan/nba-player-similarity/internal/domain/errs"
	"github.com/joshphelan/nba-player-similarity/internal/domain/model"
)

// Default column names of the raw season tables.
const (
	DefaultKeyColumn  = "Player-additional"
	DefaultTeamColumn = "Tm"
)

var defaultTotalPattern = regexp.MustCompile(`^(TOT|\d+TM)$`)

// Result summarises one dedupe pass.
type Result struct {
	Kept    int // rows in the output
	Dropped int // partial-team rows removed
	Totals  int // players resolved through an explicit total row
}

// Deduper picks one row per player key.
type Deduper struct {
	keyColumn    string
	teamColumn   string
	totalPattern *regexp.Regexp
}

// New creates a Deduper with configuration options.
func New(opts ...Option) *Deduper {
	d := &Deduper{
		keyColumn:    DefaultKeyColumn,
		teamColumn:   DefaultTeamColumn,
		totalPattern: defaultTotalPattern,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// IsTotal reports whether a team cell marks a season-total row.
func (d *Deduper) IsTotal(team string) bool {
	return d.totalPattern.MatchString(team)
}

type choice struct {
	row   int
	total bool
}

// Dedupe returns a table with one row per key. A total row always wins; for
// players without one the first row wins. Output keeps first-appearance order.
func (d *Deduper) Dedupe(ctx context.Context, t *model.RawTable) (*model.RawTable, Result, error) {
	keyCol := t.ColumnIndex(d.keyColumn)
	if keyCol < 0 {
		return nil, Result{}, fmt.Errorf("dedupe %s: missing column %q: %w", t.Name, d.keyColumn, errs.ErrDataIntegrity)
	}
	teamCol := t.ColumnIndex(d.teamColumn)
	if teamCol < 0 {
		return nil, Result{}, fmt.Errorf("dedupe %s: missing column %q: %w", t.Name, d.teamColumn, errs.ErrDataIntegrity)
	}

	seen := make(map[string]*choice, len(t.Rows))
	order := make([]string, 0, len(t.Rows))
	var res Result

	for i := range t.Rows {
		if err := ctx.Err(); err != nil {
			return nil, Result{}, err
		}
		key := t.Cell(i, keyCol)
		if key == "" {
			return nil, Result{}, fmt.Errorf("dedupe %s: row %d has no player key: %w", t.Name, i+1, errs.ErrDataIntegrity)
		}
		total := d.IsTotal(t.Cell(i, teamCol))

		c, exists := seen[key]
		switch {
		case !exists:
			seen[key] = &choice{row: i, total: total}
			order = append(order, key)
		case total && !c.total:
			c.row, c.total = i, true
			res.Dropped++
		default:
			res.Dropped++
		}
	}

	out := &model.RawTable{Name: t.Name, Header: t.Header, Rows: make([][]string, 0, len(order))}
	for _, key := range order {
		c := seen[key]
		if c.total {
			res.Totals++
		}
		out.Rows = append(out.Rows, t.Rows[c.row])
	}
	res.Kept = len(out.Rows)
	return out, res, nil
}
