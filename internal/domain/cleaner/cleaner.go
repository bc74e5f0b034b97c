// Package cleaner turns a season's raw per-game and advanced tables into one
// stat table with a single numeric record per qualifying player.
package cleaner

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/joshphelan/nba-player-similarity/internal/domain/dedupe"
	"github.com/joshphelan/nba-player-similarity/internal/domain/errs"
	"github.com/joshphelan/nba-player-similarity/internal/domain/model"
)

// Default cleaning configuration constants.
const (
	DefaultMinGames = 30

	colKey    = dedupe.DefaultKeyColumn
	colPlayer = "Player"
	colPos    = "Pos"
	colTeam   = dedupe.DefaultTeamColumn
	colGames  = "G"
)

// Source provides the raw tables for a season.
type Source interface {
	Table(ctx context.Context, season string, kind model.TableKind) (*model.RawTable, error)
}

// Report describes what a Clean call removed.
type Report struct {
	PerGameRows   int // raw per-game rows read
	AdvancedRows  int // raw advanced rows read
	TradedDropped int // partial-team rows collapsed
	LowGames      int // per-game rows at or below the games threshold
	Unmatched     int // qualifying players missing from the advanced table
	ZeroFilled    int // empty percentage cells set to 0
	Records       int
}

// Cleaner builds season stat tables from a Source.
type Cleaner struct {
	source     Source
	deduper    *dedupe.Deduper
	minGames   float64
	zeroFill   map[string]struct{}
	dropAlways map[string]struct{}
	advDupes   map[string]struct{}
}

// New creates a Cleaner reading from src.
func New(src Source, opts ...Option) *Cleaner {
	c := &Cleaner{
		source:   src,
		deduper:  dedupe.New(),
		minGames: DefaultMinGames,
		zeroFill: toSet("3P%", "FT%", "FG%", "2P%", "eFG%", "TS%", "3PAr", "FTr"),
		// GS is missing for early seasons.
		dropAlways: toSet("Rk", "GS"),
		// Kept from the per-game table only; MP is season total in advanced.
		advDupes: toSet(colPlayer, "Age", colPos, colTeam, colGames, "MP"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Clean reads, deduplicates, filters and joins the raw tables for season.
func (c *Cleaner) Clean(ctx context.Context, season string) (*model.StatTable, Report, error) {
	var rep Report

	perGame, err := c.source.Table(ctx, season, model.PerGame)
	if err != nil {
		return nil, rep, fmt.Errorf("clean %s: %w", season, err)
	}
	advanced, err := c.source.Table(ctx, season, model.Advanced)
	if err != nil {
		return nil, rep, fmt.Errorf("clean %s: %w", season, err)
	}
	rep.PerGameRows, rep.AdvancedRows = len(perGame.Rows), len(advanced.Rows)

	perGame, pgRes, err := c.deduper.Dedupe(ctx, perGame)
	if err != nil {
		return nil, rep, fmt.Errorf("clean %s: %w", season, err)
	}
	advanced, advRes, err := c.deduper.Dedupe(ctx, advanced)
	if err != nil {
		return nil, rep, fmt.Errorf("clean %s: %w", season, err)
	}
	rep.TradedDropped = pgRes.Dropped + advRes.Dropped

	perGame, rep.LowGames, err = c.filterGames(perGame)
	if err != nil {
		return nil, rep, fmt.Errorf("clean %s: %w", season, err)
	}

	pg, err := c.project(perGame, nil)
	if err != nil {
		return nil, rep, fmt.Errorf("clean %s: %w", season, err)
	}
	adv, err := c.project(advanced, c.advDupes)
	if err != nil {
		return nil, rep, fmt.Errorf("clean %s: %w", season, err)
	}
	for _, name := range adv.columns {
		if _, clash := pg.colSet[name]; clash {
			return nil, rep, fmt.Errorf("clean %s: column %q in both tables: %w", season, name, errs.ErrDataIntegrity)
		}
	}
	rep.ZeroFilled = pg.zeroFilled + adv.zeroFilled

	columns := make([]string, 0, len(pg.columns)+len(adv.columns))
	columns = append(columns, pg.columns...)
	columns = append(columns, adv.columns...)

	records := make([]model.Record, 0, len(pg.rows))
	for _, row := range pg.rows {
		other, ok := adv.byKey[row.key]
		if !ok {
			rep.Unmatched++
			continue
		}
		stats := make([]float64, 0, len(columns))
		stats = append(stats, row.values...)
		stats = append(stats, adv.rows[other].values...)
		records = append(records, model.Record{
			ID:       row.key,
			Code:     row.key,
			Season:   season,
			Player:   strings.TrimSpace(strings.ReplaceAll(row.player, "*", "")),
			Team:     row.team,
			Position: row.pos,
			Stats:    stats,
		})
	}
	if len(records) == 0 {
		return nil, rep, fmt.Errorf("clean %s: join produced no rows: %w", season, errs.ErrDataIntegrity)
	}
	rep.Records = len(records)

	tbl, err := model.NewStatTable(season, columns, records)
	if err != nil {
		return nil, rep, fmt.Errorf("clean %s: %w", season, err)
	}
	return tbl, rep, nil
}

// filterGames keeps rows with more than minGames games played.
func (c *Cleaner) filterGames(t *model.RawTable) (*model.RawTable, int, error) {
	g := t.ColumnIndex(colGames)
	if g < 0 {
		return nil, 0, fmt.Errorf("%s: missing column %q: %w", t.Name, colGames, errs.ErrDataIntegrity)
	}
	out := &model.RawTable{Name: t.Name, Header: t.Header, Rows: make([][]string, 0, len(t.Rows))}
	removed := 0
	for i := range t.Rows {
		games, err := strconv.ParseFloat(t.Cell(i, g), 64)
		if err != nil {
			return nil, 0, fmt.Errorf("%s row %d: games %q: %w", t.Name, i+1, t.Cell(i, g), errs.ErrDataIntegrity)
		}
		if games <= c.minGames {
			removed++
			continue
		}
		out.Rows = append(out.Rows, t.Rows[i])
	}
	return out, removed, nil
}

type projectedRow struct {
	key    string
	player string
	team   string
	pos    string
	values []float64
}

type projection struct {
	columns    []string
	colSet     map[string]struct{}
	rows       []projectedRow
	byKey      map[string]int
	zeroFilled int
}

// project parses the numeric columns of t, skipping blank, empty, identity
// and excluded columns.
func (c *Cleaner) project(t *model.RawTable, exclude map[string]struct{}) (*projection, error) {
	keyCol := t.ColumnIndex(colKey)
	if keyCol < 0 {
		return nil, fmt.Errorf("%s: missing column %q: %w", t.Name, colKey, errs.ErrDataIntegrity)
	}
	playerCol, teamCol, posCol := t.ColumnIndex(colPlayer), t.ColumnIndex(colTeam), t.ColumnIndex(colPos)
	if exclude == nil && (playerCol < 0 || teamCol < 0 || posCol < 0) {
		return nil, fmt.Errorf("%s: missing identity columns: %w", t.Name, errs.ErrDataIntegrity)
	}

	p := &projection{colSet: make(map[string]struct{}), byKey: make(map[string]int, len(t.Rows))}
	var numeric []int
	for i, h := range t.Header {
		name := strings.TrimSpace(h)
		_, fill := c.zeroFill[name]
		switch {
		case isBlankHeader(name), allEmpty(t, i) && !fill:
			continue
		case i == keyCol, i == playerCol, i == teamCol, i == posCol:
			continue
		}
		if _, skip := c.dropAlways[name]; skip {
			continue
		}
		if _, skip := exclude[name]; skip {
			continue
		}
		if _, dup := p.colSet[name]; dup {
			return nil, fmt.Errorf("%s: duplicate column %q: %w", t.Name, name, errs.ErrDataIntegrity)
		}
		p.colSet[name] = struct{}{}
		p.columns = append(p.columns, name)
		numeric = append(numeric, i)
	}

	for r := range t.Rows {
		row := projectedRow{key: t.Cell(r, keyCol), values: make([]float64, len(numeric))}
		if exclude == nil {
			row.player, row.team, row.pos = t.Cell(r, playerCol), t.Cell(r, teamCol), t.Cell(r, posCol)
		}
		for j, col := range numeric {
			cell := t.Cell(r, col)
			if cell == "" {
				if _, ok := c.zeroFill[p.columns[j]]; !ok {
					return nil, fmt.Errorf("%s: %s has no %s: %w", t.Name, row.key, p.columns[j], errs.ErrDataIntegrity)
				}
				p.zeroFilled++
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: %s %s %q: %w", t.Name, row.key, p.columns[j], cell, errs.ErrDataIntegrity)
			}
			row.values[j] = v
		}
		p.byKey[row.key] = len(p.rows)
		p.rows = append(p.rows, row)
	}
	return p, nil
}

// isBlankHeader matches empty headers and the placeholders spreadsheet exports
// give them.
func isBlankHeader(name string) bool {
	return name == "" || strings.HasPrefix(name, "Unnamed:")
}

func allEmpty(t *model.RawTable, col int) bool {
	for r := range t.Rows {
		if t.Cell(r, col) != "" {
			return false
		}
	}
	return true
}

func toSet(items ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}
