package operators

import (
	"context"
	"fmt"

	"tomydb/pkg/engine/buffer"
	"tomydb/pkg/engine/cost"
	"tomydb/pkg/engine/expr"
)

// Projection evaluates one expression per output column.
type Projection struct {
	base
	Child       Operator
	Expressions []expr.Expression
}

func NewProjection(env *Env, child Operator, names []string, exprs []expr.Expression) (*Projection, error) {
	if len(names) != len(exprs) {
		return nil, fmt.Errorf("projection has %d names for %d expressions", len(names), len(exprs))
	}
	return &Projection{
		base:        newBase(env, "projection", SchemaOf(names, exprs)),
		Child:       child,
		Expressions: exprs,
	}, nil
}

func (op *Projection) Next(ctx context.Context) (*buffer.RowGroup, error) {
	if op.state == Exhausted {
		return nil, nil
	}
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

	newColumns, err := expr.EvaluateAll(op.Expressions, op.batch(batch))
	if err != nil {
		return nil, fmt.Errorf("projection: %w", err)
	}
	return op.emitRows(batch.RowCount, newColumns)
}

func (op *Projection) Reset() error {
	op.resetBase()
	return op.Child.Reset()
}

func (op *Projection) EstimateCost() cost.Cost {
	return cost.Projection(op.Child.EstimateCost(), len(op.Expressions))
}

func (op *Projection) Close() {
	if op.Child != nil {
		op.Child.Close()
		op.Child = nil
	}
	op.closeBase()
}
