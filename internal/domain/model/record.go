// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"slices"

	"github.com/joshphelan/nba-player-similarity/internal/domain/errs"
)

// ScopeAll is the scope id of the combined multi-season table.
const ScopeAll = "all"

// Record is one player's statistics for one season.
type Record struct {
	ID       string    // unique within its table
	Code     string    // source player code, shared by every season of the same player
	Season   string    // season tag, e.g. "1988"
	Player   string    // display name
	Team     string    // team abbreviation, "TOT" for traded players
	Position string    // listed position
	Stats    []float64 // aligned to StatTable.Columns
}

// SeasonID builds the identifier a record carries in the combined scope.
func SeasonID(code, season string) string {
	return code + "_" + season
}

// StatTable is an ordered, immutable set of records sharing one column schema.
type StatTable struct {
	Scope   string
	Columns []string
	Records []Record

	byID  map[string]int
	byCol map[string]int
}

// NewStatTable validates and indexes records. Every record must have one
// value per column and IDs must be unique.
func NewStatTable(scope string, columns []string, records []Record) (*StatTable, error) {
	t := &StatTable{
		Scope:   scope,
		Columns: columns,
		Records: records,
		byID:    make(map[string]int, len(records)),
		byCol:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if _, dup := t.byCol[c]; dup {
			return nil, fmt.Errorf("stat table %s: duplicate column %q: %w", scope, c, errs.ErrDataIntegrity)
		}
		t.byCol[c] = i
	}
	for i, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("stat table %s: row %d has empty id: %w", scope, i, errs.ErrDataIntegrity)
		}
		if len(r.Stats) != len(columns) {
			return nil, fmt.Errorf("stat table %s: record %s has %d values for %d columns: %w",
				scope, r.ID, len(r.Stats), len(columns), errs.ErrDataIntegrity)
		}
		if _, dup := t.byID[r.ID]; dup {
			return nil, fmt.Errorf("stat table %s: duplicate id %s: %w", scope, r.ID, errs.ErrDataIntegrity)
		}
		t.byID[r.ID] = i
	}
	return t, nil
}

// Len returns the number of records.
func (t *StatTable) Len() int { return len(t.Records) }

// Get returns the record with the given id.
func (t *StatTable) Get(id string) (Record, bool) {
	i, ok := t.byID[id]
	if !ok {
		return Record{}, false
	}
	return t.Records[i], true
}

// ColumnIndex returns the position of a numeric column.
func (t *StatTable) ColumnIndex(name string) (int, bool) {
	i, ok := t.byCol[name]
	return i, ok
}

// IDs returns record ids in table order.
func (t *StatTable) IDs() []string {
	ids := make([]string, len(t.Records))
	for i, r := range t.Records {
		ids[i] = r.ID
	}
	return ids
}

// SameSchema reports whether both tables carry identical columns in the same order.
func (t *StatTable) SameSchema(o *StatTable) bool {
	return slices.Equal(t.Columns, o.Columns)
}
