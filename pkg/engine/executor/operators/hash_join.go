package operators

import (
	"context"
	"fmt"

	"tomydb/pkg/engine/buffer"
	"tomydb/pkg/engine/cost"
	"tomydb/pkg/engine/expr"
	"tomydb/pkg/engine/hashtable"
	"tomydb/pkg/engine/types"
)

type JoinKind int

const (
	InnerJoin JoinKind = iota
	SemiJoin
)

func (k JoinKind) String() string {
	if k == SemiJoin {
		return "SEMI"
	}
	return "INNER"
}

// HashJoin loads the build side into a hash table of row refs and streams
// the probe side against it. An inner join outputs the left columns followed
// by the right ones, whichever side is built. A semi join builds the right
// side and outputs the probe rows that have a match.
type HashJoin struct {
	base
	Kind        JoinKind
	Build       Operator
	Probe       Operator
	BuildKeys   []expr.Expression
	ProbeKeys   []expr.Expression
	BuildIsLeft bool

	table       *hashtable.HashTable[buffer.RowRef]
	buildGroups map[buffer.RowGroupRef]*buffer.RowGroup
}

func NewHashJoin(env *Env, kind JoinKind, build, probe Operator, buildKeys, probeKeys []expr.Expression, buildIsLeft bool) (*HashJoin, error) {
	if len(buildKeys) == 0 || len(buildKeys) != len(probeKeys) {
		return nil, fmt.Errorf("hash join needs matching key lists, got %d and %d", len(buildKeys), len(probeKeys))
	}
	for i := range buildKeys {
		if buildKeys[i].ResultType() != probeKeys[i].ResultType() {
			return nil, fmt.Errorf("hash join key %d compares %s with %s", i, buildKeys[i].ResultType(), probeKeys[i].ResultType())
		}
	}
	if kind == SemiJoin && buildIsLeft {
		return nil, types.Unsupported("semi join", "building the left side")
	}

	var schema []buffer.ColumnSchema
	switch {
	case kind == SemiJoin:
		schema = copySchema(probe.Columns())
	case buildIsLeft:
		schema = append(copySchema(build.Columns()), probe.Columns()...)
	default:
		schema = append(copySchema(probe.Columns()), build.Columns()...)
	}

	return &HashJoin{
		base:        newBase(env, "hash join", schema),
		Kind:        kind,
		Build:       build,
		Probe:       probe,
		BuildKeys:   buildKeys,
		ProbeKeys:   probeKeys,
		BuildIsLeft: buildIsLeft,
	}, nil
}

func (op *HashJoin) Next(ctx context.Context) (*buffer.RowGroup, error) {
	if op.state == Exhausted {
		return nil, nil
	}
	if op.table == nil {
		if err := op.build(ctx); err != nil {
			return nil, err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := op.Probe.Next(ctx)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			return op.produced(nil)
		}
		if op.table.Len() == 0 {
			continue
		}

		keys, err := expr.EvaluateAll(op.ProbeKeys, op.batch(batch))
		if err != nil {
			return nil, fmt.Errorf("hash join probe keys: %w", err)
		}
		rows := nonNullKeyRows(keys, batch.RowCount)
		if len(rows) == 0 {
			continue
		}
		if len(rows) < batch.RowCount {
			for i, k := range keys {
				keys[i] = k.Gather(rows)
			}
		}

		var out []types.Column
		if op.Kind == SemiJoin {
			out, err = op.semi(batch, keys, rows)
		} else {
			out, err = op.inner(batch, keys, rows)
		}
		if err != nil {
			return nil, err
		}
		if out == nil {
			continue
		}
		return op.emit(out)
	}
}

func (op *HashJoin) build(ctx context.Context) error {
	capacity := cost.HashCapacity(op.Build.EstimateCost().OutputRows)
	op.table = hashtable.New[buffer.RowRef](capacity)
	op.buildGroups = make(map[buffer.RowGroupRef]*buffer.RowGroup)
	op.env.logger().Debug("hash join build",
		"kind", op.Kind.String(),
		"build_is_left", op.BuildIsLeft,
		"capacity", capacity)

	return drain(ctx, op.Build, func(rg *buffer.RowGroup) error {
		keys, err := expr.EvaluateAll(op.BuildKeys, op.batch(rg))
		if err != nil {
			return fmt.Errorf("hash join build keys: %w", err)
		}
		rows := nonNullKeyRows(keys, rg.RowCount)
		if len(rows) == 0 {
			return nil
		}
		refs := make([]buffer.RowRef, len(rows))
		for i, r := range rows {
			refs[i] = buffer.RowRef{RowGroup: rg.Ref, Offset: r}
		}
		if len(rows) < rg.RowCount {
			for i, k := range keys {
				keys[i] = k.Gather(rows)
			}
		}
		op.buildGroups[rg.Ref] = rg
		return op.table.Append(keys, refs)
	})
}

// inner returns nil when no probe row matched. keys hold only the probe
// rows listed in rows.
func (op *HashJoin) inner(batch *buffer.RowGroup, keys []types.Column, rows []int) ([]types.Column, error) {
	offsets, refs, err := op.table.Get(keys)
	if err != nil {
		return nil, err
	}
	if len(offsets) == 0 {
		return nil, nil
	}
	for i, o := range offsets {
		offsets[i] = rows[o]
	}

	probeCols, err := op.env.Pool.Columns(batch)
	if err != nil {
		return nil, err
	}
	for i, c := range probeCols {
		probeCols[i] = c.Gather(offsets)
	}
	buildCols := make([]types.Column, len(op.Build.Columns()))
	for i := range buildCols {
		if buildCols[i], err = op.env.Pool.GatherRows(op.buildGroups, refs, i); err != nil {
			return nil, err
		}
	}

	if op.BuildIsLeft {
		return append(buildCols, probeCols...), nil
	}
	return append(probeCols, buildCols...), nil
}

func (op *HashJoin) semi(batch *buffer.RowGroup, keys []types.Column, rows []int) ([]types.Column, error) {
	found, err := op.table.Contains(keys)
	if err != nil {
		return nil, err
	}
	var indices []int
	for i, f := range found {
		if f {
			indices = append(indices, rows[i])
		}
	}
	if len(indices) == 0 {
		return nil, nil
	}
	cols, err := op.env.Pool.Columns(batch)
	if err != nil {
		return nil, err
	}
	if len(indices) < batch.RowCount {
		for i, c := range cols {
			cols[i] = c.Gather(indices)
		}
	}
	return cols, nil
}

// nonNullKeyRows lists the rows whose key has no null part; a null never
// joins.
func nonNullKeyRows(keys []types.Column, rowCount int) []int {
	rows := make([]int, 0, rowCount)
	for r := range rowCount {
		ok := true
		for _, k := range keys {
			if k.IsNull(r) {
				ok = false
				break
			}
		}
		if ok {
			rows = append(rows, r)
		}
	}
	return rows
}

func (op *HashJoin) Reset() error {
	op.resetBase()
	op.table = nil
	op.buildGroups = nil
	if err := op.Build.Reset(); err != nil {
		return err
	}
	return op.Probe.Reset()
}

func (op *HashJoin) EstimateCost() cost.Cost {
	if op.Kind == SemiJoin {
		return cost.SemiJoin(op.Build.EstimateCost(), op.Probe.EstimateCost())
	}
	return cost.HashJoin(op.Build.EstimateCost(), op.Probe.EstimateCost())
}

func (op *HashJoin) Close() {
	for _, child := range []Operator{op.Build, op.Probe} {
		if child != nil {
			child.Close()
		}
	}
	op.Build, op.Probe = nil, nil
	op.table = nil
	op.buildGroups = nil
	op.closeBase()
}
