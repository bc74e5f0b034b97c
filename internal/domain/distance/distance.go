// Package distance builds the pairwise Euclidean distance index of a scope.
//
// Distances live in one flat row-major N×N slice. Each unordered pair is
// computed once and mirrored, so Distance(a, b) == Distance(b, a) exactly.
// Every row also carries its neighbor order, ascending by distance with ties
// broken by identifier.
package distance

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"math"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/joshphelan/nba-player-similarity/internal/domain/errs"
	"github.com/joshphelan/nba-player-similarity/internal/domain/standardize"
)

// Neighbor is one entry of a neighbor list.
type Neighbor struct {
	ID       string
	Distance float64
}

// Entry is one directed (key, other) distance, the persisted row format.
type Entry struct {
	Key      string
	Other    string
	Distance float64
}

// Index is a read-only distance index. It is safe for concurrent use.
type Index struct {
	scope string
	ids   []string
	pos   map[string]int
	dist  []float64 // n*n, diagonal unused
	order [][]int32 // per row, positions of the other members in neighbor order
	max   float64
}

type buildOptions struct {
	workers int
}

// Option configures Build and FromEntries.
type Option func(*buildOptions)

// WithWorkers bounds the goroutines computing rows. Results do not depend on it.
func WithWorkers(n int) Option {
	return func(o *buildOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

func newOptions(opts []Option) buildOptions {
	o := buildOptions{workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Build computes the full index for a standardized matrix.
func Build(ctx context.Context, m *standardize.Matrix, opts ...Option) (*Index, error) {
	o := newOptions(opts)
	ix, err := newIndex(m.Scope, m.IDs)
	if err != nil {
		return nil, fmt.Errorf("distance.Build %s: %w", m.Scope, err)
	}
	n := len(ix.ids)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a := m.Row(i)
			for j := i + 1; j < n; j++ {
				d := euclidean(a, m.Row(j))
				ix.dist[i*n+j] = d
				ix.dist[j*n+i] = d
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("distance.Build %s: %w", m.Scope, err)
	}

	if err := ix.finish(ctx, o.workers); err != nil {
		return nil, fmt.Errorf("distance.Build %s: %w", m.Scope, err)
	}
	return ix, nil
}

// FromEntries rebuilds an index from persisted entries. Every id must have
// exactly N-1 entries, one per other member, and both directions must agree.
func FromEntries(ctx context.Context, scope string, ids []string, entries []Entry, opts ...Option) (*Index, error) {
	a, err := NewAssembler(scope, ids)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := a.Add(e); err != nil {
			return nil, err
		}
	}
	return a.Index(ctx, opts...)
}

// Assembler rebuilds an index one persisted entry at a time.
type Assembler struct {
	ix    *Index
	set   []bool
	added int
}

// NewAssembler prepares an index for the given members.
func NewAssembler(scope string, ids []string) (*Assembler, error) {
	ix, err := newIndex(scope, ids)
	if err != nil {
		return nil, fmt.Errorf("distance.FromEntries %s: %w", scope, err)
	}
	return &Assembler{ix: ix, set: make([]bool, len(ix.dist))}, nil
}

// Add records one directed entry.
func (a *Assembler) Add(e Entry) error {
	ix := a.ix
	n := len(ix.ids)
	i, ok := ix.pos[e.Key]
	if !ok {
		return fmt.Errorf("distance.FromEntries %s: key %q: %w", ix.scope, e.Key, errs.ErrDataIntegrity)
	}
	j, ok := ix.pos[e.Other]
	if !ok {
		return fmt.Errorf("distance.FromEntries %s: other %q: %w", ix.scope, e.Other, errs.ErrDataIntegrity)
	}
	if i == j || a.set[i*n+j] {
		return fmt.Errorf("distance.FromEntries %s: repeated pair %s/%s: %w", ix.scope, e.Key, e.Other, errs.ErrDataIntegrity)
	}
	if e.Distance < 0 || math.IsNaN(e.Distance) || math.IsInf(e.Distance, 0) {
		return fmt.Errorf("distance.FromEntries %s: bad distance %v: %w", ix.scope, e.Distance, errs.ErrDataIntegrity)
	}
	a.set[i*n+j] = true
	ix.dist[i*n+j] = e.Distance
	a.added++
	return nil
}

// Index validates completeness and symmetry and finishes the index.
func (a *Assembler) Index(ctx context.Context, opts ...Option) (*Index, error) {
	o := newOptions(opts)
	ix := a.ix
	n := len(ix.ids)
	if want := n * (n - 1); a.added != want {
		return nil, fmt.Errorf("distance.FromEntries %s: %d entries for %d members, want %d: %w",
			ix.scope, a.added, n, want, errs.ErrDataIntegrity)
	}
	// No repeats and the right count means every off-diagonal cell is set.
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if ix.dist[i*n+j] != ix.dist[j*n+i] {
				return nil, fmt.Errorf("distance.FromEntries %s: %s/%s is asymmetric: %w",
					ix.scope, ix.ids[i], ix.ids[j], errs.ErrDataIntegrity)
			}
		}
	}
	if err := ix.finish(ctx, o.workers); err != nil {
		return nil, fmt.Errorf("distance.FromEntries %s: %w", ix.scope, err)
	}
	a.set = nil
	return ix, nil
}

func newIndex(scope string, ids []string) (*Index, error) {
	n := len(ids)
	ix := &Index{
		scope: scope,
		ids:   slices.Clone(ids),
		pos:   make(map[string]int, n),
		dist:  make([]float64, n*n),
		order: make([][]int32, n),
	}
	for i, id := range ix.ids {
		if _, dup := ix.pos[id]; dup {
			return nil, fmt.Errorf("duplicate id %q: %w", id, errs.ErrDataIntegrity)
		}
		ix.pos[id] = i
	}
	return ix, nil
}

// finish sorts every row's neighbors and records the global maximum.
func (ix *Index) finish(ctx context.Context, workers int) error {
	n := len(ix.ids)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			row := ix.dist[i*n : (i+1)*n]
			ord := make([]int32, 0, n-1)
			for j := 0; j < n; j++ {
				if j != i {
					ord = append(ord, int32(j)) //nolint:gosec // n fits in int32
				}
			}
			slices.SortFunc(ord, func(a, b int32) int {
				if c := cmp.Compare(row[a], row[b]); c != 0 {
					return c
				}
				return cmp.Compare(ix.ids[a], ix.ids[b])
			})
			ix.order[i] = ord
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			ix.max = max(ix.max, ix.dist[i*n+j])
		}
	}
	return nil
}

func euclidean(a, b []float64) float64 {
	var ss float64
	for k := range a {
		d := a[k] - b[k]
		ss += d * d
	}
	return math.Sqrt(ss)
}

// Scope returns the scope id the index was built for.
func (ix *Index) Scope() string { return ix.scope }

// Len returns the population size.
func (ix *Index) Len() int { return len(ix.ids) }

// IDs returns member ids in build order.
func (ix *Index) IDs() []string { return slices.Clone(ix.ids) }

// Has reports whether id is a member.
func (ix *Index) Has(id string) bool {
	_, ok := ix.pos[id]
	return ok
}

// Distance returns the distance between two members.
func (ix *Index) Distance(a, b string) (float64, error) {
	i, ok := ix.pos[a]
	if !ok {
		return 0, fmt.Errorf("distance %q: %w", a, errs.ErrUnknownIdentifier)
	}
	j, ok := ix.pos[b]
	if !ok {
		return 0, fmt.Errorf("distance %q: %w", b, errs.ErrUnknownIdentifier)
	}
	if i == j {
		return 0, fmt.Errorf("distance %q: %w", a, errs.ErrSamePlayer)
	}
	return ix.dist[i*len(ix.ids)+j], nil
}

// MaxDistance returns the largest distance in the index.
func (ix *Index) MaxDistance() (float64, error) {
	if len(ix.ids) < 2 {
		return 0, fmt.Errorf("max distance %s: %w", ix.scope, errs.ErrEmptyIndex)
	}
	return ix.max, nil
}

// MeanDistance returns the mean over all stored distances.
func (ix *Index) MeanDistance() (float64, error) {
	n := len(ix.ids)
	if n < 2 {
		return 0, fmt.Errorf("mean distance %s: %w", ix.scope, errs.ErrEmptyIndex)
	}
	var sum float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += ix.dist[i*n+j]
		}
	}
	return sum / float64(n*(n-1)/2), nil
}

// Neighbors returns every other member of the scope in neighbor order.
func (ix *Index) Neighbors(id string) ([]Neighbor, error) {
	i, ok := ix.pos[id]
	if !ok {
		return nil, fmt.Errorf("neighbors %q: %w", id, errs.ErrUnknownIdentifier)
	}
	out := make([]Neighbor, 0, len(ix.order[i]))
	for nb := range ix.walk(i) {
		out = append(out, nb)
	}
	return out, nil
}

// Walk yields id's neighbors in order until the caller stops.
func (ix *Index) Walk(id string) (iter.Seq[Neighbor], error) {
	i, ok := ix.pos[id]
	if !ok {
		return nil, fmt.Errorf("neighbors %q: %w", id, errs.ErrUnknownIdentifier)
	}
	return ix.walk(i), nil
}

func (ix *Index) walk(i int) iter.Seq[Neighbor] {
	n := len(ix.ids)
	return func(yield func(Neighbor) bool) {
		for _, j := range ix.order[i] {
			if !yield(Neighbor{ID: ix.ids[j], Distance: ix.dist[i*n+int(j)]}) {
				return
			}
		}
	}
}

// Entries yields every directed entry, key by key in build order and each
// key's entries in neighbor order.
func (ix *Index) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for i, key := range ix.ids {
			for nb := range ix.walk(i) {
				if !yield(Entry{Key: key, Other: nb.ID, Distance: nb.Distance}) {
					return
				}
			}
		}
	}
}
