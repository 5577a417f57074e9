package operators

import (
	"context"
	"fmt"

	"tomydb/pkg/engine/buffer"
	"tomydb/pkg/engine/cost"
	"tomydb/pkg/engine/expr"
	"tomydb/pkg/engine/types"
)

// Filter keeps the rows for which the predicate is true. Batches without a
// surviving row are skipped, a batch that survives whole is passed through.
type Filter struct {
	base
	Child     Operator
	Predicate expr.Expression
}

func NewFilter(env *Env, child Operator, predicate expr.Expression) (*Filter, error) {
	if predicate.ResultType() != types.ColumnTypeBoolean {
		return nil, fmt.Errorf("filter predicate must be BOOLEAN, got %s", predicate.ResultType())
	}
	return &Filter{
		base:      newBase(env, "filter", copySchema(child.Columns())),
		Child:     child,
		Predicate: predicate,
	}, nil
}

func (op *Filter) Next(ctx context.Context) (*buffer.RowGroup, error) {
	if op.state == Exhausted {
		return nil, nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := op.Child.Next(ctx)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			return op.produced(nil)
		}

		predCol, err := op.Predicate.Evaluate(op.batch(batch))
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		passIndices := types.MaskToIndices(predCol.(*types.BoolColumn))

		if len(passIndices) == 0 {
			continue
		}
		if len(passIndices) == batch.RowCount {
			return op.produced(batch)
		}

		cols, err := op.env.Pool.Columns(batch)
		if err != nil {
			return nil, err
		}
		for i, c := range cols {
			cols[i] = c.Gather(passIndices)
		}
		return op.emit(cols)
	}
}

func (op *Filter) Reset() error {
	op.resetBase()
	return op.Child.Reset()
}

func (op *Filter) EstimateCost() cost.Cost { return cost.Filter(op.Child.EstimateCost()) }

func (op *Filter) Close() {
	if op.Child != nil {
		op.Child.Close()
		op.Child = nil
	}
	op.closeBase()
}
