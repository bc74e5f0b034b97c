// Package similarity answers similarity and nearest-neighbor queries over one scope.
package similarity

import (
	"fmt"
	"sync"

	"github.com/joshphelan/nba-player-similarity/internal/domain/distance"
	"github.com/joshphelan/nba-player-similarity/internal/domain/errs"
	"github.com/joshphelan/nba-player-similarity/internal/domain/model"
)

// Match is one ranked neighbor.
type Match struct {
	ID         string
	Player     string
	Season     string
	Distance   float64
	Similarity float64
}

// Service scores pairs against the scope's global maximum distance.
// It is read-only after New and safe for concurrent use.
type Service struct {
	table  *model.StatTable
	index  *distance.Index
	byName map[string]string

	avgOnce sync.Once
	avg     float64
	avgErr  error
}

// New pairs a stat table with its distance index. Both must hold the same members.
func New(table *model.StatTable, index *distance.Index) (*Service, error) {
	if table.Len() != index.Len() {
		return nil, fmt.Errorf("similarity.New %s: table has %d records, index %d: %w",
			table.Scope, table.Len(), index.Len(), errs.ErrDataIntegrity)
	}
	s := &Service{table: table, index: index, byName: make(map[string]string, table.Len())}
	for _, r := range table.Records {
		if !index.Has(r.ID) {
			return nil, fmt.Errorf("similarity.New %s: %s missing from index: %w", table.Scope, r.ID, errs.ErrDataIntegrity)
		}
		if _, taken := s.byName[r.Player]; !taken {
			s.byName[r.Player] = r.ID
		}
	}
	return s, nil
}

// Scope returns the scope id.
func (s *Service) Scope() string { return s.table.Scope }

// Table returns the underlying stat table.
func (s *Service) Table() *model.StatTable { return s.table }

// Index returns the underlying distance index.
func (s *Service) Index() *distance.Index { return s.index }

// Len returns the population size.
func (s *Service) Len() int { return s.table.Len() }

// Record returns the record for id.
func (s *Service) Record(id string) (model.Record, error) {
	r, ok := s.table.Get(id)
	if !ok {
		return model.Record{}, fmt.Errorf("record %q: %w", id, errs.ErrUnknownIdentifier)
	}
	return r, nil
}

// Resolve returns the id of the first record whose display name is name.
func (s *Service) Resolve(name string) (string, error) {
	id, ok := s.byName[name]
	if !ok {
		return "", fmt.Errorf("resolve %q: %w", name, errs.ErrUnknownPlayer)
	}
	return id, nil
}

// Similarity returns 1 - d(a,b)/max over the scope.
func (s *Service) Similarity(a, b string) (float64, error) {
	if a == b {
		return 0, fmt.Errorf("similarity %q: %w", a, errs.ErrSamePlayer)
	}
	d, err := s.index.Distance(a, b)
	if err != nil {
		return 0, fmt.Errorf("similarity: %w", err)
	}
	mx, err := s.index.MaxDistance()
	if err != nil {
		return 0, fmt.Errorf("similarity: %w", err)
	}
	return score(d, mx), nil
}

// AverageSimilarity returns 1 - mean(d)/max. It is computed on first call.
func (s *Service) AverageSimilarity() (float64, error) {
	s.avgOnce.Do(func() {
		mean, err := s.index.MeanDistance()
		if err != nil {
			s.avgErr = fmt.Errorf("average similarity: %w", err)
			return
		}
		mx, _ := s.index.MaxDistance()
		s.avg = score(mean, mx)
	})
	return s.avg, s.avgErr
}

// TopK returns the min(k, N-1) nearest neighbors of id.
func (s *Service) TopK(id string, k int) ([]Match, error) {
	return s.collect(id, k, func(model.Record) bool { return true })
}

// TopKCrossEra returns up to k nearest neighbors of id that are distinct
// players: other seasons of id's own player are skipped, and only the closest
// season of every other player is kept.
func (s *Service) TopKCrossEra(id string, k int) ([]Match, error) {
	q, err := s.Record(id)
	if err != nil {
		return nil, fmt.Errorf("top k cross era: %w", err)
	}
	seen := map[string]struct{}{q.Code: {}}
	return s.collect(id, k, func(r model.Record) bool {
		if _, dup := seen[r.Code]; dup {
			return false
		}
		seen[r.Code] = struct{}{}
		return true
	})
}

func (s *Service) collect(id string, k int, keep func(model.Record) bool) ([]Match, error) {
	if k < 1 {
		return nil, fmt.Errorf("top k %d: %w", k, errs.ErrInvalidLimit)
	}
	seq, err := s.index.Walk(id)
	if err != nil {
		return nil, fmt.Errorf("top k: %w", err)
	}
	if s.index.Len() < 2 {
		return []Match{}, nil
	}
	mx, err := s.index.MaxDistance()
	if err != nil {
		return nil, fmt.Errorf("top k: %w", err)
	}
	out := make([]Match, 0, min(k, s.index.Len()-1))
	for nb := range seq {
		r, _ := s.table.Get(nb.ID)
		if !keep(r) {
			continue
		}
		out = append(out, Match{
			ID:         nb.ID,
			Player:     r.Player,
			Season:     r.Season,
			Distance:   nb.Distance,
			Similarity: score(nb.Distance, mx),
		})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// score maps a distance onto [0, 1]. A scope whose members all coincide scores 1.
func score(d, mx float64) float64 {
	if mx == 0 {
		return 1
	}
	return 1 - d/mx
}
