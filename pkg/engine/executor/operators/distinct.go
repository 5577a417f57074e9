package operators

import (
	"context"

	"tomydb/pkg/engine/buffer"
	"tomydb/pkg/engine/cost"
	"tomydb/pkg/engine/hashtable"
)

// Distinct drops repeated rows. Duplicates may arrive in any batch, so the
// whole input is read before the unique rows are emitted in order of first
// appearance.
type Distinct struct {
	base
	Child Operator

	output *chunker
}

func NewDistinct(env *Env, child Operator) *Distinct {
	return &Distinct{
		base:  newBase(env, "distinct", copySchema(child.Columns())),
		Child: child,
	}
}

func (op *Distinct) Next(ctx context.Context) (*buffer.RowGroup, error) {
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

func (op *Distinct) collect(ctx context.Context) error {
	seen := hashtable.New[int](cost.HashCapacity(op.EstimateCost().OutputRows))
	n := 0
	err := drain(ctx, op.Child, func(rg *buffer.RowGroup) error {
		cols, err := op.env.Pool.Columns(rg)
		if err != nil {
			return err
		}
		_, err = seen.GetOrAdd(cols, func() int {
			n++
			return n - 1
		})
		return err
	})
	if err != nil {
		return err
	}

	rows, order := seen.KeyValuePairs()
	if rows == nil {
		op.output = newChunker(nil)
		return nil
	}
	perm := make([]int, len(order))
	for slot, seq := range order {
		perm[seq] = slot
	}
	for i, c := range rows {
		rows[i] = c.Gather(perm)
	}
	op.output = newChunker(rows)
	return nil
}

func (op *Distinct) Reset() error {
	op.resetBase()
	op.output = nil
	return op.Child.Reset()
}

func (op *Distinct) EstimateCost() cost.Cost { return cost.Distinct(op.Child.EstimateCost()) }

func (op *Distinct) Close() {
	if op.Child != nil {
		op.Child.Close()
		op.Child = nil
	}
	op.output = nil
	op.closeBase()
}
