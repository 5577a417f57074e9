package operators

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tomydb/pkg/engine/buffer"
	"tomydb/pkg/engine/expr"
	"tomydb/pkg/engine/types"
)

// rows transposes collected columns into rows.
func rows(cols [][]any) [][]any {
	if len(cols) == 0 {
		return nil
	}
	out := make([][]any, len(cols[0]))
	for r := range out {
		out[r] = make([]any, len(cols))
		for c := range cols {
			out[r][c] = cols[c][r]
		}
	}
	return out
}

func TestFilterSkipsBatchesWithoutMatches(t *testing.T) {
	env := newTestEnv(t)
	src := newSource(env,
		[]types.Column{ints("x", 1, 2)},
		[]types.Column{ints("x", 3, 4)},
		[]types.Column{ints("x", 5, 6)},
		[]types.Column{ints("x", 10, 11)},
	)
	filter, err := NewFilter(env, src, binary(t, colRef(src, 0), intLit(9), expr.GreaterThan))
	require.NoError(t, err)
	defer filter.Close()

	rg, err := filter.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rg)
	assert.Equal(t, 4, src.calls, "one Next of the filter pulls every empty batch")
	assert.Same(t, src.last, rg, "a batch that survives whole is passed through")

	rg, err = filter.Next(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rg)
	assert.Equal(t, Exhausted, filter.State())
}

func TestFilterGathersSurvivingRows(t *testing.T) {
	env := newTestEnv(t)
	src := newSource(env,
		[]types.Column{ints("x", 1, 12, 3), strs("s", "a", "b", "c")},
		[]types.Column{ints("x", 14, 5), strs("s", "d", "e")},
	)
	filter, err := NewFilter(env, src, binary(t, colRef(src, 0), intLit(9), expr.GreaterThan))
	require.NoError(t, err)
	defer filter.Close()

	out, batches := collect(t, env, filter)
	assert.Equal(t, 2, batches)
	assert.Equal(t, []any{int64(12), int64(14)}, out[0])
	assert.Equal(t, []any{"b", "d"}, out[1])
}

func TestFilterTreatsNullAsFalse(t *testing.T) {
	env := newTestEnv(t)
	x := types.NewNumericColumn("x", []int64{10, 0, 20}, []bool{false, true, false})
	src := newSource(env, []types.Column{x})
	filter, err := NewFilter(env, src, binary(t, colRef(src, 0), intLit(5), expr.GreaterThan))
	require.NoError(t, err)
	defer filter.Close()

	out, _ := collect(t, env, filter)
	assert.Equal(t, []any{int64(10), int64(20)}, out[0])
}

func TestScanSkipsRowGroupsRuledOutByStatistics(t *testing.T) {
	env := newTestEnv(t)
	h, err := env.Pool.Open(writeIDs(t, 10, 4))
	require.NoError(t, err)
	require.Equal(t, 3, h.NumRowGroups())

	id := &expr.ColumnRefExpr{Index: 0, ColName: "id", ColType: types.ColumnTypeInt64}
	scan, err := NewScan(env, []*buffer.FileHandle{h}, nil, binary(t, id, intLit(3), expr.LessThan))
	require.NoError(t, err)
	defer scan.Close()

	out, batches := collect(t, env, scan)
	assert.Equal(t, 1, batches)
	// pruning works on row groups, the rows themselves are not filtered
	assert.Equal(t, []any{int64(0), int64(1), int64(2), int64(3)}, out[0])
	assert.Equal(t, []any{"a", "b", "c", "d"}, out[1])
}

func TestScanProjectsColumnsAndPrunesOnThem(t *testing.T) {
	env := newTestEnv(t)
	h, err := env.Pool.Open(writeIDs(t, 10, 4))
	require.NoError(t, err)

	// output ordinal 1 is file column 0
	id := &expr.ColumnRefExpr{Index: 1, ColName: "id", ColType: types.ColumnTypeInt64}
	scan, err := NewScan(env, []*buffer.FileHandle{h}, []int{1, 0}, binary(t, id, intLit(7), expr.GreaterEqual))
	require.NoError(t, err)
	defer scan.Close()

	assert.Equal(t, "name", scan.Columns()[0].Name)
	out, batches := collect(t, env, scan)
	assert.Equal(t, 2, batches)
	assert.Equal(t, []any{int64(4), int64(5), int64(6), int64(7), int64(8), int64(9)}, out[1])
}

func TestScanWithoutPredicateReadsEverything(t *testing.T) {
	env := newTestEnv(t)
	h, err := env.Pool.Open(writeIDs(t, 10, 4))
	require.NoError(t, err)
	scan, err := NewScan(env, []*buffer.FileHandle{h}, nil, nil)
	require.NoError(t, err)

	out, batches := collect(t, env, scan)
	assert.Equal(t, 3, batches)
	assert.Len(t, out[0], 10)

	scan.Close()
	assert.Equal(t, 0, h.RefCount())
}

func TestCostIsAdditiveAlongThePlan(t *testing.T) {
	env := newTestEnv(t)
	h, err := env.Pool.Open(writeIDs(t, 10, 4))
	require.NoError(t, err)
	scan, err := NewScan(env, []*buffer.FileHandle{h}, nil, nil)
	require.NoError(t, err)
	defer scan.Close()

	id := &expr.ColumnRefExpr{Index: 0, ColName: "id", ColType: types.ColumnTypeInt64}
	filter, err := NewFilter(env, scan, binary(t, id, intLit(5), expr.LessThan))
	require.NoError(t, err)
	count, err := expr.NewAggregate(expr.CountStar, nil)
	require.NoError(t, err)
	agg, err := NewHashAggregate(env, filter, nil, nil, []string{"n"}, []*expr.AggregateExpr{count})
	require.NoError(t, err)

	s, f, a := scan.EstimateCost(), filter.EstimateCost(), agg.EstimateCost()
	assert.Equal(t, 10.0, s.TotalCpuOperations)
	assert.Equal(t, 3.0, s.TotalDiskOperations)
	assert.Equal(t, s.TotalCpuOperations+f.CpuOperations, f.TotalCpuOperations)
	assert.Equal(t, f.TotalCpuOperations+a.CpuOperations, a.TotalCpuOperations)
	assert.Equal(t, 3.0, a.TotalDiskOperations)
	assert.Equal(t, 1.0, a.OutputRows)

	out, _ := collect(t, env, agg)
	assert.Equal(t, []any{int64(5)}, out[0])
}

func TestHashJoinMatchesKeysWhicheverSideIsBuilt(t *testing.T) {
	for _, buildIsLeft := range []bool{false, true} {
		env := newTestEnv(t)
		left := newSource(env,
			[]types.Column{ints("l_id", 0, 1, 2, 3, 4)},
			[]types.Column{ints("l_id", 5, 6, 7, 8, 9)},
		)
		right := newSource(env,
			[]types.Column{ints("r_id", 5, 7, 7, 14), strs("r_name", "five", "seven", "SEVEN", "fourteen")},
		)
		lk := []expr.Expression{colRef(left, 0)}
		rk := []expr.Expression{colRef(right, 0)}

		var join *HashJoin
		var err error
		if buildIsLeft {
			join, err = NewHashJoin(env, InnerJoin, left, right, lk, rk, true)
		} else {
			join, err = NewHashJoin(env, InnerJoin, right, left, rk, lk, false)
		}
		require.NoError(t, err)

		names := []string{}
		for _, c := range join.Columns() {
			names = append(names, c.Name)
		}
		assert.Equal(t, []string{"l_id", "r_id", "r_name"}, names)

		out, _ := collect(t, env, join)
		assert.ElementsMatch(t, [][]any{
			{int64(5), int64(5), "five"},
			{int64(7), int64(7), "seven"},
			{int64(7), int64(7), "SEVEN"},
		}, rows(out), "build left: %v", buildIsLeft)
		join.Close()
	}
}

func TestHashJoinRowCountMatchesKeyMultiplicities(t *testing.T) {
	env := newTestEnv(t)
	left := newSource(env, []types.Column{ints("a", 1, 1, 2, 3)})
	right := newSource(env, []types.Column{ints("b", 1, 1, 1, 3, 4)})
	join, err := NewHashJoin(env, InnerJoin, right, left,
		[]expr.Expression{colRef(right, 0)}, []expr.Expression{colRef(left, 0)}, false)
	require.NoError(t, err)
	defer join.Close()

	out, _ := collect(t, env, join)
	// 2*3 for key 1, 1*1 for key 3
	assert.Len(t, out[0], 7)
}

func TestHashJoinNullKeysNeverMatch(t *testing.T) {
	env := newTestEnv(t)
	left := newSource(env, []types.Column{types.NewNumericColumn("a", []int64{1, 0}, []bool{false, true})})
	right := newSource(env, []types.Column{types.NewNumericColumn("b", []int64{0, 1}, []bool{true, false})})
	join, err := NewHashJoin(env, InnerJoin, right, left,
		[]expr.Expression{colRef(right, 0)}, []expr.Expression{colRef(left, 0)}, false)
	require.NoError(t, err)
	defer join.Close()

	out, _ := collect(t, env, join)
	assert.Equal(t, [][]any{{int64(1), int64(1)}}, rows(out))
}

func TestSemiJoinOutputsEachProbeRowOnce(t *testing.T) {
	env := newTestEnv(t)
	left := newSource(env, []types.Column{ints("a", 1, 2, 3, 1), strs("s", "x", "y", "z", "w")})
	right := newSource(env, []types.Column{ints("b", 1, 1, 3)})
	join, err := NewHashJoin(env, SemiJoin, right, left,
		[]expr.Expression{colRef(right, 0)}, []expr.Expression{colRef(left, 0)}, false)
	require.NoError(t, err)
	defer join.Close()

	require.Len(t, join.Columns(), 2)
	out, _ := collect(t, env, join)
	assert.Equal(t, []any{int64(1), int64(3), int64(1)}, out[0])
	assert.Equal(t, []any{"x", "z", "w"}, out[1])

	_, err = NewHashJoin(env, SemiJoin, left, right,
		[]expr.Expression{colRef(left, 0)}, []expr.Expression{colRef(right, 0)}, true)
	var unsupported *types.UnsupportedError
	assert.ErrorAs(t, err, &unsupported)
}

func TestNestedLoopJoinCrossProduct(t *testing.T) {
	env := newTestEnv(t)
	left := newSource(env, []types.Column{ints("l", 1, 2, 3)})
	right := newSource(env, []types.Column{ints("r", 1, 2, 3, 4)})
	join, err := NewNestedLoopJoin(env, left, right, nil)
	require.NoError(t, err)
	defer join.Close()

	out, batches := collect(t, env, join)
	assert.Len(t, out[0], 12)
	assert.Equal(t, 3, batches, "chunk size 4 fits one left row per batch")
}

func TestNestedLoopJoinResidual(t *testing.T) {
	env := newTestEnv(t)
	left := newSource(env, []types.Column{ints("l", 1, 2, 3)})
	right := newSource(env, []types.Column{ints("r", 1, 2, 3, 4)})
	residual := binary(t,
		&expr.ColumnRefExpr{Index: 0, ColName: "l", ColType: types.ColumnTypeInt64},
		&expr.ColumnRefExpr{Index: 1, ColName: "r", ColType: types.ColumnTypeInt64},
		expr.GreaterThan)
	join, err := NewNestedLoopJoin(env, left, right, residual)
	require.NoError(t, err)
	defer join.Close()

	out, _ := collect(t, env, join)
	assert.ElementsMatch(t, [][]any{
		{int64(2), int64(1)},
		{int64(3), int64(1)},
		{int64(3), int64(2)},
	}, rows(out))
}

func TestCrossRowsDetectsOverflow(t *testing.T) {
	n, err := CrossRows(3, 4)
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	_, err = CrossRows(math.MaxInt, 2)
	assert.Error(t, err)
	_, err = CrossRows(1<<32, 1<<32)
	assert.Error(t, err)
}

func TestHashAggregateGroups(t *testing.T) {
	env := newTestEnv(t)
	src := newSource(env,
		[]types.Column{strs("k", "a", "b", "a"), ints("v", 1, 2, 3)},
		[]types.Column{strs("k", "c", "a", "b"), ints("v", 10, 20, 30)},
	)
	sum, err := expr.NewAggregate(expr.Sum, colRef(src, 1))
	require.NoError(t, err)
	count, err := expr.NewAggregate(expr.CountStar, nil)
	require.NoError(t, err)
	agg, err := NewHashAggregate(env, src,
		[]string{"k"}, []expr.Expression{colRef(src, 0)},
		[]string{"total", "n"}, []*expr.AggregateExpr{sum, count})
	require.NoError(t, err)
	defer agg.Close()

	out, _ := collect(t, env, agg)
	assert.ElementsMatch(t, [][]any{
		{"a", int64(24), int64(3)},
		{"b", int64(32), int64(2)},
		{"c", int64(10), int64(1)},
	}, rows(out))
}

func TestHashAggregateWithoutKeysOnEmptyInput(t *testing.T) {
	env := newTestEnv(t)
	src := newSource(env, []types.Column{ints("v")})
	sum, err := expr.NewAggregate(expr.Sum, colRef(src, 0))
	require.NoError(t, err)
	count, err := expr.NewAggregate(expr.CountStar, nil)
	require.NoError(t, err)
	agg, err := NewHashAggregate(env, src, nil, nil, []string{"s", "n"}, []*expr.AggregateExpr{sum, count})
	require.NoError(t, err)
	defer agg.Close()

	out, batches := collect(t, env, agg)
	assert.Equal(t, 1, batches)
	assert.Equal(t, [][]any{{nil, int64(0)}}, rows(out))
}

func TestLimitWithOffsetAcrossBatches(t *testing.T) {
	cases := []struct {
		limit, offset uint64
		want          []any
	}{
		{3, 2, []any{int64(2), int64(3), int64(4)}},
		{5, 9, []any{int64(9)}},
		{4, 4, []any{int64(4), int64(5), int64(6), int64(7)}},
		{0, 0, nil},
		{2, 20, nil},
	}
	for _, tc := range cases {
		env := newTestEnv(t)
		src := newSource(env,
			[]types.Column{ints("x", 0, 1, 2, 3)},
			[]types.Column{ints("x", 4, 5, 6, 7)},
			[]types.Column{ints("x", 8, 9)},
		)
		limit := NewLimit(env, src, tc.limit, tc.offset)
		out, _ := collect(t, env, limit)
		assert.Equal(t, tc.want, out[0], "limit %d offset %d", tc.limit, tc.offset)
		limit.Close()
	}
}

func sortInput(env *Env) *source {
	x := types.NewNumericColumn("x", []int64{3, 0, 1}, []bool{false, true, false})
	return newSource(env,
		[]types.Column{x, strs("s", "c", "null", "b")},
		[]types.Column{ints("x", 2, 1), strs("s", "d", "e")},
	)
}

func TestSortOrdersNullsFirstAscendingAndIsStable(t *testing.T) {
	env := newTestEnv(t)
	src := sortInput(env)
	sorter, err := NewSort(env, src, []OrderBy{{Expr: colRef(src, 0)}})
	require.NoError(t, err)
	defer sorter.Close()

	out, _ := collect(t, env, sorter)
	assert.Equal(t, []any{nil, int64(1), int64(1), int64(2), int64(3)}, out[0])
	assert.Equal(t, []any{"null", "b", "e", "d", "c"}, out[1])
}

func TestSortDescendingPutsNullsLast(t *testing.T) {
	env := newTestEnv(t)
	src := sortInput(env)
	sorter, err := NewSort(env, src, []OrderBy{{Expr: colRef(src, 0), Descending: true}})
	require.NoError(t, err)
	defer sorter.Close()

	out, _ := collect(t, env, sorter)
	assert.Equal(t, []any{int64(3), int64(2), int64(1), int64(1), nil}, out[0])
	assert.Equal(t, []any{"c", "d", "b", "e", "null"}, out[1])
}

func TestTopNSortKeepsTheFirstK(t *testing.T) {
	env := newTestEnv(t)
	src := sortInput(env)
	top, err := NewTopNSort(env, src, []OrderBy{{Expr: colRef(src, 0)}}, 2)
	require.NoError(t, err)
	out, _ := collect(t, env, top)
	assert.Equal(t, []any{nil, int64(1)}, out[0])
	top.Close()

	env = newTestEnv(t)
	src = sortInput(env)
	top, err = NewTopNSort(env, src, []OrderBy{{Expr: colRef(src, 0), Descending: true}}, 3)
	require.NoError(t, err)
	out, _ = collect(t, env, top)
	assert.Equal(t, []any{int64(3), int64(2), int64(1)}, out[0])
	top.Close()

	env = newTestEnv(t)
	src = sortInput(env)
	top, err = NewTopNSort(env, src, []OrderBy{{Expr: colRef(src, 0)}}, 0)
	require.NoError(t, err)
	_, batches := collect(t, env, top)
	assert.Zero(t, batches)
	top.Close()
}

func TestDistinctKeepsFirstAppearanceOrder(t *testing.T) {
	env := newTestEnv(t)
	src := newSource(env,
		[]types.Column{ints("x", 1, 2, 1), strs("s", "a", "b", "a")},
		[]types.Column{ints("x", 3, 2, 1), strs("s", "c", "b", "z")},
	)
	distinct := NewDistinct(env, src)
	defer distinct.Close()

	out, _ := collect(t, env, distinct)
	assert.Equal(t, [][]any{
		{int64(1), "a"},
		{int64(2), "b"},
		{int64(3), "c"},
		{int64(1), "z"},
	}, rows(out))
}

func TestProjectionOverValues(t *testing.T) {
	env := newTestEnv(t)
	values := NewValues(env)
	sum := binary(t, intLit(40), intLit(2), expr.Add)
	proj, err := NewProjection(env, values, []string{"answer"}, []expr.Expression{sum})
	require.NoError(t, err)
	defer proj.Close()

	assert.Equal(t, "answer", proj.Columns()[0].Name)
	out, batches := collect(t, env, proj)
	assert.Equal(t, 1, batches)
	assert.Equal(t, []any{int64(42)}, out[0])
}

func TestResetReplaysTheSubtree(t *testing.T) {
	env := newTestEnv(t)
	src := newSource(env,
		[]types.Column{ints("x", 5, 1)},
		[]types.Column{ints("x", 7, 3)},
	)
	filter, err := NewFilter(env, src, binary(t, colRef(src, 0), intLit(4), expr.GreaterThan))
	require.NoError(t, err)
	sorter, err := NewSort(env, filter, []OrderBy{{Expr: colRef(filter, 0), Descending: true}})
	require.NoError(t, err)
	defer sorter.Close()

	first, _ := collect(t, env, sorter)
	require.NoError(t, sorter.Reset())
	assert.Equal(t, NotStarted, sorter.State())
	second, _ := collect(t, env, sorter)
	assert.Equal(t, first, second)
	assert.Equal(t, []any{int64(7), int64(5)}, second[0])
}

func TestOperatorsStopOnCanceledContext(t *testing.T) {
	env := newTestEnv(t)
	src := newSource(env, []types.Column{ints("x", 1, 2)})
	filter, err := NewFilter(env, src, binary(t, colRef(src, 0), intLit(0), expr.GreaterThan))
	require.NoError(t, err)
	defer filter.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = filter.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmptyScanEndsImmediately(t *testing.T) {
	env := newTestEnv(t)
	scan := NewEmptyScan(env, []buffer.ColumnSchema{{Name: "id", Type: types.ColumnTypeInt64}})
	defer scan.Close()

	rg, err := scan.Next(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rg)
	assert.Zero(t, scan.EstimateCost().OutputRows)
}
