package operators

import (
	"context"
	"fmt"

	"tomydb/pkg/engine/buffer"
	"tomydb/pkg/engine/cost"
	"tomydb/pkg/engine/expr"
	"tomydb/pkg/engine/types"
)

// Scan reads the row groups of one or more files sharing a schema, one
// batch per file row group. With a predicate it skips row groups whose
// statistics rule out every match; it does not filter rows.
type Scan struct {
	base
	handles   []*buffer.FileHandle
	columns   []int
	predicate expr.Expression

	candidates [][]int // per file, row groups left after pruning
	file       int
	pos        int
}

// NewScan takes ownership of handles and releases them on Close. columns
// lists the file columns to read (all when nil); predicate refers to output
// ordinals and may be nil.
func NewScan(env *Env, handles []*buffer.FileHandle, columns []int, predicate expr.Expression) (*Scan, error) {
	if len(handles) == 0 {
		return nil, fmt.Errorf("scan needs at least one file")
	}
	fileSchema := handles[0].Schema()
	if columns == nil {
		columns = make([]int, len(fileSchema))
		for i := range columns {
			columns[i] = i
		}
	}
	for _, h := range handles[1:] {
		if err := sameSchema(fileSchema, h.Schema()); err != nil {
			return nil, fmt.Errorf("scan of %s and %s: %w", handles[0].Path, h.Path, err)
		}
	}

	schema := make([]buffer.ColumnSchema, len(columns))
	for i, c := range columns {
		if c < 0 || c >= len(fileSchema) {
			return nil, fmt.Errorf("scan: file has no column %d", c)
		}
		schema[i] = fileSchema[c]
		schema[i].ID = c
	}
	if predicate != nil && predicate.ResultType() != types.ColumnTypeBoolean {
		return nil, fmt.Errorf("scan predicate must be BOOLEAN, got %s", predicate.ResultType())
	}

	return &Scan{
		base:      newBase(env, "scan", schema),
		handles:   handles,
		columns:   columns,
		predicate: predicate,
	}, nil
}

// NewEmptyScan stands for a table without files: it has a schema but
// never produces a batch.
func NewEmptyScan(env *Env, schema []buffer.ColumnSchema) *Scan {
	return &Scan{base: newBase(env, "scan", copySchema(schema))}
}

func sameSchema(a, b []buffer.ColumnSchema) error {
	if len(a) != len(b) {
		return fmt.Errorf("%d columns against %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Type != b[i].Type {
			return fmt.Errorf("column %d is %s against %s", i, a[i], b[i])
		}
	}
	return nil
}

func (s *Scan) Handles() []*buffer.FileHandle { return s.handles }

func (s *Scan) Next(ctx context.Context) (*buffer.RowGroup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.state == Exhausted {
		return nil, nil
	}
	if s.candidates == nil {
		if err := s.prune(); err != nil {
			return nil, err
		}
	}

	for s.file < len(s.handles) {
		if s.pos >= len(s.candidates[s.file]) {
			s.file++
			s.pos = 0
			continue
		}
		rg := s.candidates[s.file][s.pos]
		s.pos++
		return s.produced(s.handles[s.file].RowGroup(rg, s.columns))
	}
	return s.produced(nil)
}

func (s *Scan) prune() error {
	s.candidates = make([][]int, len(s.handles))
	for f, h := range s.handles {
		all := make([]int, 0, h.NumRowGroups())
		for rg := range h.NumRowGroups() {
			if h.RowGroupRows(rg) > 0 {
				all = append(all, rg)
			}
		}
		s.candidates[f] = all
		if s.predicate == nil || len(all) == 0 {
			continue
		}

		rewritten, ok := expr.RewriteForStatistics(s.predicate, func(col int, kind buffer.StatKind) (int, bool) {
			if col < 0 || col >= len(s.columns) {
				return 0, false
			}
			return buffer.StatColumnIndex(s.columns[col], kind), true
		})
		if !ok {
			continue
		}
		stats, err := s.env.Pool.StatisticsTable(h)
		if err != nil {
			return err
		}
		mask, err := rewritten.Evaluate(s.batch(stats.RowGroups()[0]))
		if err != nil {
			return fmt.Errorf("zone map of %s: %w", h.Path, err)
		}
		keep := mask.(*types.BoolColumn)
		kept := all[:0]
		for _, rg := range all {
			if keep.Truthy(rg) {
				kept = append(kept, rg)
			}
		}
		s.candidates[f] = kept
		s.env.logger().Debug("zone map pruning",
			"file", h.Path,
			"predicate", rewritten.String(),
			"row_groups", h.NumRowGroups(),
			"pruned", h.NumRowGroups()-len(kept))
	}
	return nil
}

func (s *Scan) Reset() error {
	s.resetBase()
	s.file, s.pos = 0, 0
	return nil
}

func (s *Scan) EstimateCost() cost.Cost {
	var rows uint64
	rowGroups := 0
	for _, h := range s.handles {
		rows += h.NumRows()
		rowGroups += h.NumRowGroups()
	}
	return cost.Scan(rows, rowGroups)
}

func (s *Scan) Close() {
	for _, h := range s.handles {
		if err := s.env.Pool.Release(h); err != nil {
			s.env.logger().Warn("failed to release file", "file", h.Path, "error", err)
		}
	}
	s.handles = nil
	s.closeBase()
}
