// Package aggregate merges per-season stat tables into the combined all-seasons scope.
package aggregate

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/joshphelan/nba-player-similarity/internal/domain/errs"
	"github.com/joshphelan/nba-player-similarity/internal/domain/model"
)

// Combine concatenates tables in season order. Every record is re-keyed to
// code_season and its display name gains the season in parentheses. All
// tables must share one column schema.
func Combine(tables ...*model.StatTable) (*model.StatTable, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("combine: no tables: %w", errs.ErrDataIntegrity)
	}
	ordered := slices.Clone(tables)
	slices.SortStableFunc(ordered, func(a, b *model.StatTable) int {
		return cmp.Compare(a.Scope, b.Scope)
	})

	columns := ordered[0].Columns
	total := 0
	for _, t := range ordered {
		if !t.SameSchema(ordered[0]) {
			return nil, fmt.Errorf("combine: season %s schema differs from %s: %w",
				t.Scope, ordered[0].Scope, errs.ErrDataIntegrity)
		}
		total += t.Len()
	}

	records := make([]model.Record, 0, total)
	for _, t := range ordered {
		for _, r := range t.Records {
			season := r.Season
			if season == "" {
				season = t.Scope
			}
			code := r.Code
			if code == "" {
				code = r.ID
			}
			records = append(records, model.Record{
				ID:       model.SeasonID(code, season),
				Code:     code,
				Season:   season,
				Player:   fmt.Sprintf("%s (%s)", r.Player, season),
				Team:     r.Team,
				Position: r.Position,
				Stats:    slices.Clone(r.Stats),
			})
		}
	}

	// NewStatTable rejects duplicate ids.
	all, err := model.NewStatTable(model.ScopeAll, slices.Clone(columns), records)
	if err != nil {
		return nil, fmt.Errorf("combine: %w", err)
	}
	return all, nil
}
