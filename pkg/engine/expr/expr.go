package expr

import (
	"slices"

	"tomydb/pkg/engine/buffer"
	"tomydb/pkg/engine/types"
)

type Expression interface {
	Evaluate(batch *Batch) (types.Column, error)
	ResultType() types.ColumnType
	GetUsedColumns() []int
	String() string
}

// Batch is one input row group seen by expressions. Columns are resolved
// through the pool once per batch.
type Batch struct {
	RowGroup *buffer.RowGroup

	pool     *buffer.Pool
	resolved []types.Column
}

func NewBatch(pool *buffer.Pool, rg *buffer.RowGroup) *Batch {
	return &Batch{RowGroup: rg, pool: pool, resolved: make([]types.Column, len(rg.Columns))}
}

func (b *Batch) RowCount() int { return b.RowGroup.RowCount }

func (b *Batch) Column(i int) (types.Column, error) {
	if i < 0 || i >= len(b.resolved) {
		return nil, &types.InvariantError{Operator: "column reference", Expected: "ordinal below " + itoa(len(b.resolved)), Found: i}
	}
	if b.resolved[i] == nil {
		col, err := b.pool.GetColumn(b.RowGroup.Columns[i])
		if err != nil {
			return nil, err
		}
		b.resolved[i] = col
	}
	return b.resolved[i], nil
}

func GetUsedColumnsFromExpressions(exprs []Expression) []int {
	var used []int
	for _, e := range exprs {
		if e == nil {
			continue
		}
		used = append(used, e.GetUsedColumns()...)
	}
	slices.Sort(used)
	return slices.Compact(used)
}

// EvaluateAll evaluates every expression against one batch.
func EvaluateAll(exprs []Expression, batch *Batch) ([]types.Column, error) {
	out := make([]types.Column, len(exprs))
	for i, e := range exprs {
		col, err := e.Evaluate(batch)
		if err != nil {
			return nil, err
		}
		out[i] = col
	}
	return out, nil
}
