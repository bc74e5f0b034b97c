package dedupe

import "regexp"

// Option applies a configuration option to the Deduper.
type Option func(*Deduper)

// WithKeyColumn sets the column holding the player key.
func WithKeyColumn(name string) Option {
	return func(d *Deduper) {
		if name != "" {
			d.keyColumn = name
		}
	}
}

// WithTeamColumn sets the column holding the team marker.
func WithTeamColumn(name string) Option {
	return func(d *Deduper) {
		if name != "" {
			d.teamColumn = name
		}
	}
}

// WithTotalPattern overrides the team pattern that marks season-total rows.
func WithTotalPattern(re *regexp.Regexp) Option {
	return func(d *Deduper) {
		if re != nil {
			d.totalPattern = re
		}
	}
}
