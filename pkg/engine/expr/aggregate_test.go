package expr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tomydb/pkg/engine/expr"
	"tomydb/pkg/engine/types"
)

func TestAggregatesPerGroup(t *testing.T) {
	qty := column(t, "qty", types.ColumnTypeInt64, int64(5), int64(1), nil, int64(7), int64(3))
	price := column(t, "price", types.ColumnTypeDecimal, types.Decimal(1000), types.Decimal(250), types.Decimal(100), nil, types.Decimal(333))
	name := column(t, "name", types.ColumnTypeVarchar, "b", "z", "a", "c", nil)
	groups := []int{0, 1, 0, 1, 0}
	out := []int{0, 1}

	run := func(fn expr.AggregateFunction, arg types.Column) types.Column {
		t.Helper()
		var argExpr expr.Expression
		if arg != nil {
			argExpr = ref(0, arg)
		}
		agg, err := expr.NewAggregate(fn, argExpr)
		require.NoError(t, err)
		acc := agg.NewAccumulator()
		acc.Grow(2)
		// two updates exercise folding across batches
		require.NoError(t, acc.Update(groups[:2], slice(arg, 0, 2)))
		require.NoError(t, acc.Update(groups[2:], slice(arg, 2, 5)))
		res := acc.Result(out, "r")
		assert.Equal(t, agg.ResultType(), res.GetType())
		return res
	}

	assert.Equal(t, []any{int64(3), int64(2)}, types.ColumnValues(run(expr.CountStar, nil)))
	assert.Equal(t, []any{int64(2), int64(2)}, types.ColumnValues(run(expr.Count, qty)))
	assert.Equal(t, []any{int64(8), int64(8)}, types.ColumnValues(run(expr.Sum, qty)))
	assert.Equal(t, []any{int64(3), int64(1)}, types.ColumnValues(run(expr.Min, qty)))
	assert.Equal(t, []any{int64(5), int64(7)}, types.ColumnValues(run(expr.Max, qty)))
	assert.Equal(t, []any{4.0, 4.0}, types.ColumnValues(run(expr.Avg, qty)))
	assert.Equal(t, []any{"14.33", "2.50"}, types.ColumnValues(run(expr.Sum, price)))
	assert.Equal(t, []any{"4.77", "2.50"}, types.ColumnValues(run(expr.Avg, price)))
	assert.Equal(t, []any{"a", "c"}, types.ColumnValues(run(expr.Min, name)))
	assert.Equal(t, []any{"b", "z"}, types.ColumnValues(run(expr.Max, name)))
}

func slice(c types.Column, start, end int) types.Column {
	if c == nil {
		return nil
	}
	return c.Slice(start, end)
}

func TestAggregateOfEmptyGroupIsNull(t *testing.T) {
	qty := types.NewInt64Column("qty", []int64{})
	for _, fn := range []expr.AggregateFunction{expr.Sum, expr.Min, expr.Max, expr.Avg} {
		agg, err := expr.NewAggregate(fn, ref(0, qty))
		require.NoError(t, err)
		acc := agg.NewAccumulator()
		acc.Grow(1)
		require.NoError(t, acc.Update(nil, qty))
		assert.Equal(t, []any{nil}, types.ColumnValues(acc.Result([]int{0}, "r")), fn.String())
	}

	count, err := expr.NewAggregate(expr.Count, ref(0, qty))
	require.NoError(t, err)
	acc := count.NewAccumulator()
	acc.Grow(1)
	assert.Equal(t, []any{int64(0)}, types.ColumnValues(acc.Result([]int{0}, "r")))
}

func TestAggregateTypeChecks(t *testing.T) {
	name := types.VarcharColumnFromStrings("name", nil)
	flag := types.NewBooleanColumn("flag", nil)

	_, err := expr.NewAggregate(expr.Sum, ref(0, name))
	assert.Error(t, err)
	_, err = expr.NewAggregate(expr.Min, ref(0, flag))
	assert.Error(t, err)
	_, err = expr.NewAggregate(expr.Count, nil)
	assert.Error(t, err)

	fn, err := expr.AggregateFunctionFromString("count")
	require.NoError(t, err)
	assert.Equal(t, expr.Count, fn)
}
