// Package standardize z-scores the numeric columns of a stat table over its scope.
package standardize

import (
	"fmt"
	"math"
	"slices"

	"github.com/joshphelan/nba-player-similarity/internal/domain/errs"
	"github.com/joshphelan/nba-player-similarity/internal/domain/model"
)

// Scaler holds the per-column parameters fitted on one scope.
type Scaler struct {
	Columns []string
	Mean    []float64
	Std     []float64 // population standard deviation
}

// Matrix is a standardized, row-major feature matrix.
type Matrix struct {
	Scope   string
	IDs     []string
	Columns []string
	Data    []float64 // len(IDs) * len(Columns)
	Scaler  Scaler
	Dropped []string // constant columns removed under WithDropConstant
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return len(m.IDs) }

// Cols returns the number of features.
func (m *Matrix) Cols() int { return len(m.Columns) }

// Row returns a view of row i.
func (m *Matrix) Row(i int) []float64 {
	f := len(m.Columns)
	return m.Data[i*f : (i+1)*f : (i+1)*f]
}

type options struct {
	dropConstant bool
	exclude      map[string]struct{}
}

// Option configures FitTransform.
type Option func(*options)

// WithDropConstant drops zero-variance columns instead of failing.
func WithDropConstant() Option {
	return func(o *options) { o.dropConstant = true }
}

// WithExclude leaves the named columns out of the feature set.
func WithExclude(cols ...string) Option {
	return func(o *options) {
		for _, c := range cols {
			o.exclude[c] = struct{}{}
		}
	}
}

// FitTransform fits mean and population std per column over every record in
// t and returns the scaled matrix. A zero-variance column is an
// ErrDegenerateScope unless WithDropConstant is given.
func FitTransform(t *model.StatTable, opts ...Option) (*Matrix, error) {
	o := options{exclude: map[string]struct{}{}}
	for _, opt := range opts {
		opt(&o)
	}
	n := t.Len()
	if n == 0 {
		return nil, fmt.Errorf("standardize %s: empty table: %w", t.Scope, errs.ErrDegenerateScope)
	}

	m := &Matrix{Scope: t.Scope, IDs: t.IDs()}
	var keep []int
	for j, col := range t.Columns {
		if _, skip := o.exclude[col]; skip {
			continue
		}
		mean, std := fit(t.Records, j)
		if math.IsNaN(mean) || math.IsInf(mean, 0) || math.IsNaN(std) || math.IsInf(std, 0) {
			return nil, fmt.Errorf("standardize %s: column %s is not finite: %w", t.Scope, col, errs.ErrDataIntegrity)
		}
		if std == 0 {
			if !o.dropConstant {
				return nil, fmt.Errorf("standardize %s: column %s has zero variance: %w", t.Scope, col, errs.ErrDegenerateScope)
			}
			m.Dropped = append(m.Dropped, col)
			continue
		}
		keep = append(keep, j)
		m.Columns = append(m.Columns, col)
		m.Scaler.Mean = append(m.Scaler.Mean, mean)
		m.Scaler.Std = append(m.Scaler.Std, std)
	}
	if len(keep) == 0 {
		return nil, fmt.Errorf("standardize %s: no features left: %w", t.Scope, errs.ErrDegenerateScope)
	}
	m.Scaler.Columns = slices.Clone(m.Columns)

	f := len(keep)
	m.Data = make([]float64, n*f)
	for i, r := range t.Records {
		row := m.Data[i*f : (i+1)*f]
		for k, j := range keep {
			row[k] = (r.Stats[j] - m.Scaler.Mean[k]) / m.Scaler.Std[k]
		}
	}
	return m, nil
}

// fit computes mean and population std of column j with two passes.
func fit(recs []model.Record, j int) (float64, float64) {
	var sum float64
	for _, r := range recs {
		sum += r.Stats[j]
	}
	mean := sum / float64(len(recs))
	var ss float64
	for _, r := range recs {
		d := r.Stats[j] - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(recs)))
}
