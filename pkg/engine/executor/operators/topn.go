package operators

import (
	"context"
	"fmt"

	"tomydb/pkg/engine/buffer"
	"tomydb/pkg/engine/cost"
	"tomydb/pkg/engine/topk"
	"tomydb/pkg/engine/types"
)

// TopNSort keeps the first K rows of the ordering as row refs and gathers
// them from the pool once the input ends.
type TopNSort struct {
	base
	Child      Operator
	SortFields []OrderBy
	K          int

	output *chunker
}

func NewTopNSort(env *Env, child Operator, fields []OrderBy, k int) (*TopNSort, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("top-n sort needs at least one key")
	}
	if k < 0 {
		return nil, fmt.Errorf("top-n sort with negative limit %d", k)
	}
	return &TopNSort{
		base:       newBase(env, "top-n sort", copySchema(child.Columns())),
		Child:      child,
		SortFields: fields,
		K:          k,
	}, nil
}

func (op *TopNSort) Next(ctx context.Context) (*buffer.RowGroup, error) {
	if op.state == Exhausted {
		return nil, nil
	}
	if op.output == nil {
		if err := op.collect(ctx); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cols := op.output.next(op.env.chunkSize())
	if cols == nil {
		return op.produced(nil)
	}
	return op.emit(cols)
}

func (op *TopNSort) collect(ctx context.Context) error {
	descending := make([]bool, len(op.SortFields))
	for i, f := range op.SortFields {
		descending[i] = f.Descending
	}
	top := topk.New[buffer.RowRef](op.K, descending)
	batches := make(map[buffer.RowGroupRef]*buffer.RowGroup)

	err := drain(ctx, op.Child, func(rg *buffer.RowGroup) error {
		keys := make([]types.Column, len(op.SortFields))
		var err error
		for i, f := range op.SortFields {
			if keys[i], err = f.Expr.Evaluate(op.batch(rg)); err != nil {
				return fmt.Errorf("sort key %s: %w", f.Expr, err)
			}
		}
		refs := make([]buffer.RowRef, rg.RowCount)
		for i := range refs {
			refs[i] = buffer.RowRef{RowGroup: rg.Ref, Offset: i}
		}
		batches[rg.Ref] = rg
		return top.Insert(keys, refs)
	})
	if err != nil {
		return err
	}

	refs := top.ToArray()
	if len(refs) == 0 {
		op.output = newChunker(nil)
		return nil
	}
	cols := make([]types.Column, len(op.schema))
	for i := range cols {
		if cols[i], err = op.env.Pool.GatherRows(batches, refs, i); err != nil {
			return err
		}
	}
	op.output = newChunker(cols)
	return nil
}

func (op *TopNSort) Reset() error {
	op.resetBase()
	op.output = nil
	return op.Child.Reset()
}

func (op *TopNSort) EstimateCost() cost.Cost { return cost.TopN(op.Child.EstimateCost(), op.K) }

func (op *TopNSort) Close() {
	if op.Child != nil {
		op.Child.Close()
		op.Child = nil
	}
	op.output = nil
	op.closeBase()
}
