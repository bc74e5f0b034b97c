// Package types contains the result shapes returned by the query layer.
package types

// Player is the display view of one player-season.
type Player struct {
	ID       string `json:"id"`
	Code     string `json:"code"`
	Season   string `json:"season"`
	Name     string `json:"name"`
	Team     string `json:"team,omitempty"`
	Position string `json:"position,omitempty"`
}

// PlayerStats is a player with its raw stat line keyed by column.
type PlayerStats struct {
	Player
	Stats map[string]float64 `json:"stats"`
}

// Neighbor is one ranked entry of a similar-players list.
type Neighbor struct {
	Rank       int     `json:"rank"`
	Player     Player  `json:"player"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
}

// Neighbors is the answer to a similar-players query.
type Neighbors struct {
	Scope    string     `json:"scope"`
	Query    Player     `json:"query"`
	CrossEra bool       `json:"cross_era"`
	Results  []Neighbor `json:"results"`
}

// SimilarityResult scores one pair against the scope average.
type SimilarityResult struct {
	Scope      string  `json:"scope"`
	A          Player  `json:"a"`
	B          Player  `json:"b"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
	Average    float64 `json:"average"`
	Delta      float64 `json:"delta"`
}

// StatShare holds both raw values of one stat and each player's share of the pair total.
type StatShare struct {
	Stat   string  `json:"stat"`
	A      float64 `json:"a"`
	B      float64 `json:"b"`
	ShareA float64 `json:"share_a"`
	ShareB float64 `json:"share_b"`
}

// Comparison is a side-by-side stat breakdown of two players.
type Comparison struct {
	Scope string      `json:"scope"`
	A     Player      `json:"a"`
	B     Player      `json:"b"`
	Stats []StatShare `json:"stats"`
}

// ScopeInfo describes one persisted scope.
type ScopeInfo struct {
	ID      string `json:"id"`
	Loaded  bool   `json:"loaded"`
	Players int    `json:"players,omitempty"`
}

// NewStatShare splits a pair of values into shares of their total.
// A zero total is split evenly.
func NewStatShare(stat string, a, b float64) StatShare {
	s := StatShare{Stat: stat, A: a, B: b, ShareA: 0.5, ShareB: 0.5}
	if total := a + b; total != 0 {
		s.ShareA = a / total
		s.ShareB = b / total
	}
	return s
}
