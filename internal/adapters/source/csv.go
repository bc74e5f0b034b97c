// Package source reads the raw season tables published as CSV exports.
package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joshphelan/nba-player-similarity/internal/domain/errs"
	"github.com/joshphelan/nba-player-similarity/internal/domain/model"
)

// Default file name patterns; %s is the season.
const (
	DefaultPerGamePattern  = "NBA %s Per Game.csv"
	DefaultAdvancedPattern = "NBA %s Advanced.csv"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// FileSource reads raw tables from a directory.
type FileSource struct {
	dir      string
	patterns map[model.TableKind]string
}

// Option applies a configuration option to the FileSource.
type Option func(*FileSource)

// WithPattern overrides the file name pattern for one table kind.
func WithPattern(kind model.TableKind, pattern string) Option {
	return func(s *FileSource) {
		if pattern != "" {
			s.patterns[kind] = pattern
		}
	}
}

// NewFileSource creates a FileSource rooted at dir.
func NewFileSource(dir string, opts ...Option) *FileSource {
	s := &FileSource{
		dir: dir,
		patterns: map[model.TableKind]string{
			model.PerGame:  DefaultPerGamePattern,
			model.Advanced: DefaultAdvancedPattern,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the file a table is read from.
func (s *FileSource) Path(season string, kind model.TableKind) (string, error) {
	pattern, ok := s.patterns[kind]
	if !ok {
		return "", fmt.Errorf("source: unknown table kind %q: %w", kind, errs.ErrDataIntegrity)
	}
	return filepath.Join(s.dir, fmt.Sprintf(pattern, season)), nil
}

// Table reads one raw table.
func (s *FileSource) Table(ctx context.Context, season string, kind model.TableKind) (*model.RawTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.Path(season, kind)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path) //nolint:gosec // path built from configured directory
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w: %w", path, errs.ErrDataIntegrity, err)
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("source: %s: %w", path, err)
	}
	t.Name = filepath.Base(path)
	return t, nil
}

// Parse reads a CSV table with a header row. Ragged rows are allowed and read
// as empty trailing cells.
func Parse(r io.Reader) (*model.RawTable, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read: %w: %w", errs.ErrDataIntegrity, err)
	}
	cr := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty table: %w", errs.ErrDataIntegrity)
	}
	if err != nil {
		return nil, fmt.Errorf("header: %w: %w", errs.ErrDataIntegrity, err)
	}

	t := &model.RawTable{Header: header}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse: %w: %w", errs.ErrDataIntegrity, err)
		}
		if len(rec) > len(header) {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d has %d fields for %d columns: %w", line, len(rec), len(header), errs.ErrDataIntegrity)
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}
