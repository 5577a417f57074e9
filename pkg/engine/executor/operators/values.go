package operators

import (
	"context"

	"tomydb/pkg/engine/buffer"
	"tomydb/pkg/engine/cost"
)

// Values produces a single row without columns. Queries made only of
// literals project over it.
type Values struct {
	base
}

func NewValues(env *Env) *Values {
	return &Values{base: newBase(env, "values", nil)}
}

func (op *Values) Next(ctx context.Context) (*buffer.RowGroup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if op.state != NotStarted {
		return op.produced(nil)
	}
	return op.emitRows(1, nil)
}

func (op *Values) Reset() error {
	op.resetBase()
	return nil
}

func (op *Values) EstimateCost() cost.Cost { return cost.New(1, 0, 0) }

func (op *Values) Close() { op.closeBase() }
