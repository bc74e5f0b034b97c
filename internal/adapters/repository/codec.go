package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/joshphelan/nba-player-similarity/internal/domain/distance"
	"github.com/joshphelan/nba-player-similarity/internal/domain/model"
)

// Parquet key/value metadata written on every artifact.
const (
	metaKind      = "nbasim.kind"
	metaScope     = "nbasim.scope"
	metaColumns   = "nbasim.columns"
	metaMembers   = "nbasim.members"
	metaRunID     = "nbasim.run_id"
	metaCreatedAt = "nbasim.created_at"

	kindStats     = "stats"
	kindDistances = "distances"

	rowBatch = 8192
)

// statRow is one persisted player-season.
type statRow struct {
	ID       string    `parquet:"id"`
	Code     string    `parquet:"code"`
	Season   string    `parquet:"season,dict"`
	Player   string    `parquet:"player"`
	Team     string    `parquet:"team,dict"`
	Position string    `parquet:"position,dict"`
	Stats    []float64 `parquet:"stats"`
}

// distanceRow is one directed distance.
type distanceRow struct {
	Key      string  `parquet:"key,dict"`
	Other    string  `parquet:"other,dict"`
	Distance float64 `parquet:"distance"`
}

// Meta is the provenance stamped on an artifact.
type Meta struct {
	RunID     string
	CreatedAt string
}

func (m Meta) options(kind, scope string) []parquet.WriterOption {
	opts := []parquet.WriterOption{
		parquet.Compression(&parquet.Zstd),
		parquet.KeyValueMetadata(metaKind, kind),
		parquet.KeyValueMetadata(metaScope, scope),
	}
	if m.RunID != "" {
		opts = append(opts, parquet.KeyValueMetadata(metaRunID, m.RunID))
	}
	if m.CreatedAt != "" {
		opts = append(opts, parquet.KeyValueMetadata(metaCreatedAt, m.CreatedAt))
	}
	return opts
}

// EncodeStats serializes a stat table. Column names travel in the file metadata.
func EncodeStats(t *model.StatTable, meta Meta) ([]byte, error) {
	cols, err := json.Marshal(t.Columns)
	if err != nil {
		return nil, fmt.Errorf("encode stats %s: %w", t.Scope, err)
	}
	var buf bytes.Buffer
	opts := append(meta.options(kindStats, t.Scope), parquet.KeyValueMetadata(metaColumns, string(cols)))
	w := parquet.NewGenericWriter[statRow](&buf, opts...)

	rows := make([]statRow, 0, min(rowBatch, t.Len()))
	for _, r := range t.Records {
		rows = append(rows, statRow{
			ID: r.ID, Code: r.Code, Season: r.Season, Player: r.Player,
			Team: r.Team, Position: r.Position, Stats: r.Stats,
		})
		if len(rows) == rowBatch {
			if _, err := w.Write(rows); err != nil {
				_ = w.Close()
				return nil, fmt.Errorf("encode stats %s: %w", t.Scope, err)
			}
			rows = rows[:0]
		}
	}
	if _, err := w.Write(rows); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("encode stats %s: %w", t.Scope, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("encode stats %s: %w", t.Scope, err)
	}
	return buf.Bytes(), nil
}

// DecodeStats parses a stat-table artifact.
func DecodeStats(data []byte) (*model.StatTable, Meta, error) {
	f, err := openArtifact(data, kindStats)
	if err != nil {
		return nil, Meta{}, err
	}
	scope, _ := f.Lookup(metaScope)
	raw, ok := f.Lookup(metaColumns)
	if !ok {
		return nil, Meta{}, fmt.Errorf("decode stats %s: no column metadata: %w", scope, ErrCorrupt)
	}
	var columns []string
	if err := json.Unmarshal([]byte(raw), &columns); err != nil {
		return nil, Meta{}, fmt.Errorf("decode stats %s: columns: %w: %w", scope, ErrCorrupt, err)
	}

	rows, err := readAll[statRow](f)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("decode stats %s: %w: %w", scope, ErrCorrupt, err)
	}
	records := make([]model.Record, len(rows))
	for i, r := range rows {
		records[i] = model.Record{
			ID: r.ID, Code: r.Code, Season: r.Season, Player: r.Player,
			Team: r.Team, Position: r.Position, Stats: r.Stats,
		}
	}
	t, err := model.NewStatTable(scope, columns, records)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("decode stats %s: %w", scope, err)
	}
	return t, metaOf(f), nil
}

// EncodeIndex serializes every directed entry of an index.
func EncodeIndex(ix *distance.Index, meta Meta) ([]byte, error) {
	var buf bytes.Buffer
	opts := append(meta.options(kindDistances, ix.Scope()),
		parquet.KeyValueMetadata(metaMembers, strconv.Itoa(ix.Len())))
	w := parquet.NewGenericWriter[distanceRow](&buf, opts...)

	rows := make([]distanceRow, 0, rowBatch)
	for e := range ix.Entries() {
		rows = append(rows, distanceRow{Key: e.Key, Other: e.Other, Distance: e.Distance})
		if len(rows) == rowBatch {
			if _, err := w.Write(rows); err != nil {
				_ = w.Close()
				return nil, fmt.Errorf("encode index %s: %w", ix.Scope(), err)
			}
			rows = rows[:0]
		}
	}
	if _, err := w.Write(rows); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("encode index %s: %w", ix.Scope(), err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("encode index %s: %w", ix.Scope(), err)
	}
	return buf.Bytes(), nil
}

// DecodeIndex parses a distance artifact for the given members, normally the
// ids of the scope's stat table.
func DecodeIndex(ctx context.Context, data []byte, ids []string, opts ...distance.Option) (*distance.Index, Meta, error) {
	f, err := openArtifact(data, kindDistances)
	if err != nil {
		return nil, Meta{}, err
	}
	scope, _ := f.Lookup(metaScope)
	if raw, ok := f.Lookup(metaMembers); ok {
		if n, err := strconv.Atoi(raw); err != nil || n != len(ids) {
			return nil, Meta{}, fmt.Errorf("decode index %s: %s members recorded, %d expected: %w",
				scope, raw, len(ids), ErrCorrupt)
		}
	}

	asm, err := distance.NewAssembler(scope, ids)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("decode index %s: %w", scope, err)
	}
	r := parquet.NewGenericReader[distanceRow](f)
	defer r.Close()
	batch := make([]distanceRow, rowBatch)
	for {
		if err := ctx.Err(); err != nil {
			return nil, Meta{}, err
		}
		n, err := r.Read(batch)
		for _, row := range batch[:n] {
			if aerr := asm.Add(distance.Entry{Key: row.Key, Other: row.Other, Distance: row.Distance}); aerr != nil {
				return nil, Meta{}, fmt.Errorf("decode index %s: %w", scope, aerr)
			}
		}
		if errors.Is(err, io.EOF) || (err == nil && n == 0) {
			break
		}
		if err != nil {
			return nil, Meta{}, fmt.Errorf("decode index %s: %w: %w", scope, ErrCorrupt, err)
		}
	}
	ix, err := asm.Index(ctx, opts...)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("decode index %s: %w", scope, err)
	}
	return ix, metaOf(f), nil
}

func openArtifact(data []byte, kind string) (*parquet.File, error) {
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open %s artifact: %w: %w", kind, ErrCorrupt, err)
	}
	if got, _ := f.Lookup(metaKind); got != kind {
		return nil, fmt.Errorf("open %s artifact: kind is %q: %w", kind, got, ErrCorrupt)
	}
	return f, nil
}

func metaOf(f *parquet.File) Meta {
	var m Meta
	m.RunID, _ = f.Lookup(metaRunID)
	m.CreatedAt, _ = f.Lookup(metaCreatedAt)
	return m
}

func readAll[T any](f *parquet.File) ([]T, error) {
	r := parquet.NewGenericReader[T](f)
	defer r.Close()
	rows := make([]T, r.NumRows())
	total := 0
	for total < len(rows) {
		n, err := r.Read(rows[total:])
		total += n
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
	}
	return rows[:total], nil
}
