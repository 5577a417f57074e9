package operators

import (
	"context"
	"fmt"
	"sort"

	"tomydb/pkg/engine/buffer"
	"tomydb/pkg/engine/cost"
	"tomydb/pkg/engine/expr"
	"tomydb/pkg/engine/types"
)

type OrderBy struct {
	Expr       expr.Expression
	Descending bool
}

// Sort materialises its whole input, orders it stably and emits it in
// chunks. Nulls come first in ascending order.
type Sort struct {
	base
	Child      Operator
	SortFields []OrderBy

	sorted *chunker
}

func NewSort(env *Env, child Operator, fields []OrderBy) (*Sort, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("sort needs at least one key")
	}
	return &Sort{
		base:       newBase(env, "sort", copySchema(child.Columns())),
		Child:      child,
		SortFields: fields,
	}, nil
}

func (op *Sort) Next(ctx context.Context) (*buffer.RowGroup, error) {
	if op.state == Exhausted {
		return nil, nil
	}
	if op.sorted == nil {
		if err := op.sortInput(ctx); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cols := op.sorted.next(op.env.chunkSize())
	if cols == nil {
		return op.produced(nil)
	}
	return op.emit(cols)
}

func (op *Sort) sortInput(ctx context.Context) error {
	var dataParts, keyParts [][]types.Column
	err := drain(ctx, op.Child, func(rg *buffer.RowGroup) error {
		cols, err := op.env.Pool.Columns(rg)
		if err != nil {
			return err
		}
		keys := make([]types.Column, len(op.SortFields))
		for i, f := range op.SortFields {
			if keys[i], err = f.Expr.Evaluate(op.batch(rg)); err != nil {
				return fmt.Errorf("sort key %s: %w", f.Expr, err)
			}
		}
		dataParts = append(dataParts, cols)
		keyParts = append(keyParts, keys)
		return nil
	})
	if err != nil {
		return err
	}
	if len(dataParts) == 0 {
		op.sorted = newChunker(nil)
		return nil
	}

	data, err := concatParts(dataParts)
	if err != nil {
		return err
	}
	keys, err := concatParts(keyParts)
	if err != nil {
		return err
	}

	totalRows := data[0].Len()
	perm := make([]int, totalRows)
	for i := range perm {
		perm[i] = i
	}
	sorter := &batchPermutationSorter{keys: keys, perm: perm, sortFields: op.SortFields}
	sort.Stable(sorter)

	for i, c := range data {
		data[i] = c.Gather(perm)
	}
	op.sorted = newChunker(data)
	return nil
}

// concatParts glues per batch column lists into one column per position.
func concatParts(parts [][]types.Column) ([]types.Column, error) {
	out := make([]types.Column, len(parts[0]))
	for i := range out {
		col := make([]types.Column, len(parts))
		for j, p := range parts {
			col[j] = p[i]
		}
		var err error
		if out[i], err = types.Concat(col); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type batchPermutationSorter struct {
	keys       []types.Column
	perm       []int
	sortFields []OrderBy
}

func (s *batchPermutationSorter) Len() int { return len(s.perm) }
func (s *batchPermutationSorter) Swap(i, j int) {
	s.perm[i], s.perm[j] = s.perm[j], s.perm[i]
}

func (s *batchPermutationSorter) Less(i, j int) bool {
	idxI := s.perm[i]
	idxJ := s.perm[j]

	for k, sf := range s.sortFields {
		res := types.CompareAt(s.keys[k], idxI, s.keys[k], idxJ)
		if res == 0 {
			continue
		}

		if sf.Descending {
			return res > 0
		}
		return res < 0
	}
	return false
}

func (op *Sort) Reset() error {
	op.resetBase()
	op.sorted = nil
	return op.Child.Reset()
}

func (op *Sort) EstimateCost() cost.Cost { return cost.Sort(op.Child.EstimateCost()) }

func (op *Sort) Close() {
	if op.Child != nil {
		op.Child.Close()
		op.Child = nil
	}
	op.sorted = nil
	op.closeBase()
}
