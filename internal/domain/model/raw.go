package model

import "strings"

// RawTable is an untyped tabular source as read from disk: a header row and
// string cells. Empty cells are missing values.
type RawTable struct {
	Name   string
	Header []string
	Rows   [][]string
}

// ColumnIndex returns the position of a header, or -1.
func (t *RawTable) ColumnIndex(name string) int {
	for i, h := range t.Header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}

// Cell returns the trimmed cell at row r, column c. Short rows read as empty.
func (t *RawTable) Cell(r, c int) string {
	row := t.Rows[r]
	if c < 0 || c >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[c])
}

// TableKind names one of the two raw tables published per season.
type TableKind string

// Raw table kinds.
const (
	PerGame  TableKind = "per_game"
	Advanced TableKind = "advanced"
)
