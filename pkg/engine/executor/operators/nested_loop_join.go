package operators

import (
	"context"
	"fmt"
	"math/bits"

	"tomydb/pkg/engine/buffer"
	"tomydb/pkg/engine/cost"
	"tomydb/pkg/engine/expr"
	"tomydb/pkg/engine/types"
)

// NestedLoopJoin pairs every left row with every right row. The right side
// is materialised once; left batches stream. An optional residual predicate
// over the combined columns (left ++ right) filters the pairs.
type NestedLoopJoin struct {
	base
	Left     Operator
	Right    Operator
	Residual expr.Expression

	right     []types.Column
	rightRows int
	loaded    bool
	scratch   *buffer.MemoryTable

	pending *buffer.RowGroup // left batch being paired
	leftCol []types.Column
	nextRow int // first left row of pending not yet paired
}

func NewNestedLoopJoin(env *Env, left, right Operator, residual expr.Expression) (*NestedLoopJoin, error) {
	if residual != nil && residual.ResultType() != types.ColumnTypeBoolean {
		return nil, fmt.Errorf("join condition must be BOOLEAN, got %s", residual.ResultType())
	}
	schema := append(copySchema(left.Columns()), right.Columns()...)
	return &NestedLoopJoin{
		base:     newBase(env, "nested loop join", schema),
		Left:     left,
		Right:    right,
		Residual: residual,
	}, nil
}

// CrossRows multiplies row counts, failing instead of wrapping around.
func CrossRows(left, right int) (int, error) {
	if left < 0 || right < 0 {
		return 0, fmt.Errorf("negative row count")
	}
	hi, lo := bits.Mul64(uint64(left), uint64(right))
	if hi != 0 || lo > uint64(int(^uint(0)>>1)) {
		return 0, fmt.Errorf("cross product of %d and %d rows overflows", left, right)
	}
	return int(lo), nil
}

func (op *NestedLoopJoin) Next(ctx context.Context) (*buffer.RowGroup, error) {
	if op.state == Exhausted {
		return nil, nil
	}
	if !op.loaded {
		cols, _, err := materialize(ctx, op.env, op.Right)
		if err != nil {
			return nil, err
		}
		op.right = cols
		op.rightRows = 0
		if len(cols) > 0 {
			op.rightRows = cols[0].Len()
		}
		op.loaded = true
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if op.pending == nil {
			batch, err := op.Left.Next(ctx)
			if err != nil {
				return nil, err
			}
			if batch == nil {
				return op.produced(nil)
			}
			if op.rightRows == 0 {
				continue
			}
			if op.leftCol, err = op.env.Pool.Columns(batch); err != nil {
				return nil, err
			}
			op.pending, op.nextRow = batch, 0
		}

		// pair as many left rows as fit into one chunk, at least one
		leftRows := max(1, op.env.chunkSize()/op.rightRows)
		start := op.nextRow
		end := min(start+leftRows, op.pending.RowCount)
		op.nextRow = end
		if end >= op.pending.RowCount {
			op.pending = nil
		}

		out, err := op.pair(start, end)
		if err != nil {
			return nil, err
		}
		if out == nil {
			continue
		}
		return op.emit(out)
	}
}

// pair builds the cross product of left rows [start, end) with the right
// side and applies the residual predicate. Nil when nothing survives.
func (op *NestedLoopJoin) pair(start, end int) ([]types.Column, error) {
	n, err := CrossRows(end-start, op.rightRows)
	if err != nil {
		return nil, err
	}
	leftIdx := make([]int, 0, n)
	rightIdx := make([]int, 0, n)
	for l := start; l < end; l++ {
		for r := range op.rightRows {
			leftIdx = append(leftIdx, l)
			rightIdx = append(rightIdx, r)
		}
	}

	out := make([]types.Column, 0, len(op.schema))
	for _, c := range op.leftCol {
		out = append(out, c.Gather(leftIdx))
	}
	for _, c := range op.right {
		out = append(out, c.Gather(rightIdx))
	}
	if op.Residual == nil {
		return out, nil
	}

	if op.scratch == nil {
		op.scratch = op.env.Pool.OpenMemoryTable(op.schema)
	}
	op.scratch.Truncate()
	rg, err := op.scratch.AppendRowGroup(out)
	if err != nil {
		return nil, err
	}
	mask, err := op.Residual.Evaluate(op.batch(rg))
	if err != nil {
		return nil, fmt.Errorf("join condition: %w", err)
	}
	keep := types.MaskToIndices(mask.(*types.BoolColumn))
	if len(keep) == 0 {
		return nil, nil
	}
	if len(keep) < n {
		for i, c := range out {
			out[i] = c.Gather(keep)
		}
	}
	return out, nil
}

func (op *NestedLoopJoin) Reset() error {
	op.resetBase()
	op.right, op.loaded = nil, false
	op.pending, op.leftCol = nil, nil
	if err := op.Left.Reset(); err != nil {
		return err
	}
	return op.Right.Reset()
}

func (op *NestedLoopJoin) EstimateCost() cost.Cost {
	return cost.NestedLoopJoin(op.Left.EstimateCost(), op.Right.EstimateCost())
}

func (op *NestedLoopJoin) Close() {
	for _, child := range []Operator{op.Left, op.Right} {
		if child != nil {
			child.Close()
		}
	}
	op.Left, op.Right = nil, nil
	if op.scratch != nil {
		op.env.Pool.DropMemoryTable(op.scratch)
		op.scratch = nil
	}
	op.right, op.pending, op.leftCol = nil, nil, nil
	op.closeBase()
}
