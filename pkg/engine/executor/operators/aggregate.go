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

// HashAggregate groups its input by the key expressions in one pass. The
// hash table maps each key to a group id, the id indexes the state arena of
// every accumulator. Without keys the whole input is one group and exactly
// one row is produced, even for empty input.
type HashAggregate struct {
	base
	Child      Operator
	Keys       []expr.Expression
	Aggregates []*expr.AggregateExpr

	groups       *hashtable.HashTable[int]
	accumulators []expr.Accumulator
	numGroups    int
	output       *chunker
}

// NewHashAggregate outputs the key columns followed by the aggregates.
func NewHashAggregate(env *Env, child Operator, keyNames []string, keys []expr.Expression, aggNames []string, aggs []*expr.AggregateExpr) (*HashAggregate, error) {
	if len(keyNames) != len(keys) || len(aggNames) != len(aggs) {
		return nil, fmt.Errorf("aggregate: names do not match expressions")
	}
	schema := SchemaOf(keyNames, keys)
	for i, a := range aggs {
		schema = append(schema, buffer.ColumnSchema{ID: len(schema), Name: aggNames[i], Type: a.ResultType(), Source: a.String()})
	}
	return &HashAggregate{
		base:       newBase(env, "aggregate", schema),
		Child:      child,
		Keys:       keys,
		Aggregates: aggs,
	}, nil
}

func (op *HashAggregate) Next(ctx context.Context) (*buffer.RowGroup, error) {
	if op.state == Exhausted {
		return nil, nil
	}
	if op.state == NotStarted && op.output == nil {
		if err := op.consume(ctx); err != nil {
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

func (op *HashAggregate) consume(ctx context.Context) error {
	op.accumulators = make([]expr.Accumulator, len(op.Aggregates))
	for i, a := range op.Aggregates {
		op.accumulators[i] = a.NewAccumulator()
	}
	op.numGroups = 0
	if len(op.Keys) == 0 {
		op.grow(1)
	} else {
		capacity := cost.HashCapacity(op.EstimateCost().OutputRows)
		op.groups = hashtable.New[int](capacity)
		op.env.logger().Debug("hash aggregate", "keys", len(op.Keys), "capacity", capacity)
	}

	err := drain(ctx, op.Child, func(rg *buffer.RowGroup) error {
		batch := op.batch(rg)
		groupIDs, err := op.groupIDs(batch)
		if err != nil {
			return err
		}
		for i, a := range op.Aggregates {
			var arg types.Column
			if a.Arg != nil {
				if arg, err = a.Arg.Evaluate(batch); err != nil {
					return fmt.Errorf("aggregate %s: %w", a, err)
				}
			}
			if err := op.accumulators[i].Update(groupIDs, arg); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	var keyCols []types.Column
	ids := make([]int, op.numGroups)
	for i := range ids {
		ids[i] = i
	}
	if len(op.Keys) > 0 {
		keyCols, ids = op.groups.KeyValuePairs()
		if keyCols == nil {
			keyCols = make([]types.Column, len(op.Keys))
			for i, k := range op.Keys {
				keyCols[i] = types.EmptyColumn(op.schema[i].Name, k.ResultType())
			}
		}
	}
	out := keyCols
	for i, acc := range op.accumulators {
		out = append(out, acc.Result(ids, op.schema[len(op.Keys)+i].Name))
	}
	op.output = newChunker(out)
	op.groups = nil
	return nil
}

func (op *HashAggregate) groupIDs(batch *expr.Batch) ([]int, error) {
	rows := batch.RowCount()
	if len(op.Keys) == 0 {
		return make([]int, rows), nil
	}
	keyCols, err := expr.EvaluateAll(op.Keys, batch)
	if err != nil {
		return nil, fmt.Errorf("aggregate keys: %w", err)
	}
	ids, err := op.groups.GetOrAdd(keyCols, func() int {
		op.numGroups++
		return op.numGroups - 1
	})
	if err != nil {
		return nil, err
	}
	op.grow(op.numGroups)
	return ids, nil
}

func (op *HashAggregate) grow(n int) {
	op.numGroups = max(op.numGroups, n)
	for _, acc := range op.accumulators {
		acc.Grow(op.numGroups)
	}
}

func (op *HashAggregate) Reset() error {
	op.resetBase()
	op.output = nil
	op.groups = nil
	op.accumulators = nil
	return op.Child.Reset()
}

func (op *HashAggregate) EstimateCost() cost.Cost {
	return cost.Aggregate(op.Child.EstimateCost(), len(op.Keys), len(op.Aggregates))
}

func (op *HashAggregate) Close() {
	if op.Child != nil {
		op.Child.Close()
		op.Child = nil
	}
	op.output = nil
	op.closeBase()
}
