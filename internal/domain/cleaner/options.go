package cleaner

import "github.com/joshphelan/nba-player-similarity/internal/domain/dedupe"

// Option applies a configuration option to the Cleaner.
type Option func(*Cleaner)

// WithMinGames sets the games-played threshold; rows at or below it are removed.
func WithMinGames(n int) Option {
	return func(c *Cleaner) {
		if n >= 0 {
			c.minGames = float64(n)
		}
	}
}

// WithZeroFillColumns replaces the set of columns whose empty cells mean zero attempts.
func WithZeroFillColumns(cols ...string) Option {
	return func(c *Cleaner) {
		c.zeroFill = toSet(cols...)
	}
}

// WithDeduper sets the traded-player deduper.
func WithDeduper(d *dedupe.Deduper) Option {
	return func(c *Cleaner) {
		if d != nil {
			c.deduper = d
		}
	}
}
