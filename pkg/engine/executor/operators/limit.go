package operators

import (
	"context"

	"tomydb/pkg/engine/buffer"
	"tomydb/pkg/engine/cost"
)

// Limit skips Offset rows and then passes at most Limit rows.
type Limit struct {
	base
	Child  Operator
	Limit  uint64
	Offset uint64

	skipped uint64
	count   uint64
}

func NewLimit(env *Env, child Operator, limit, offset uint64) *Limit {
	return &Limit{
		base:   newBase(env, "limit", copySchema(child.Columns())),
		Child:  child,
		Limit:  limit,
		Offset: offset,
	}
}

func (op *Limit) Next(ctx context.Context) (*buffer.RowGroup, error) {
	for {
		if op.state == Exhausted || op.count >= op.Limit {
			return op.produced(nil)
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

		rows := uint64(batch.RowCount)
		start := uint64(0)
		if op.skipped < op.Offset {
			start = min(op.Offset-op.skipped, rows)
			op.skipped += start
			if start == rows {
				continue
			}
		}

		take := min(rows-start, op.Limit-op.count)
		op.count += take
		if start == 0 && take == rows {
			return op.produced(batch)
		}

		cols, err := op.env.Pool.Columns(batch)
		if err != nil {
			return nil, err
		}
		for i, c := range cols {
			cols[i] = c.Slice(int(start), int(start+take))
		}
		return op.emitRows(int(take), cols)
	}
}

func (op *Limit) Reset() error {
	op.resetBase()
	op.skipped, op.count = 0, 0
	return op.Child.Reset()
}

func (op *Limit) EstimateCost() cost.Cost {
	return cost.Limit(op.Child.EstimateCost(), op.Limit)
}

func (op *Limit) Close() {
	if op.Child != nil {
		op.Child.Close()
		op.Child = nil
	}
	op.closeBase()
}
