package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tomydb/pkg/engine/buffer"
	"tomydb/pkg/engine/executor"
	"tomydb/pkg/engine/executor/operators"
	"tomydb/pkg/engine/types"
	"tomydb/pkg/metadata"
	"tomydb/pkg/tomy_file"
)

type fixture struct {
	ms      *metadata.Metastore
	env     *operators.Env
	planner *Planner
	dir     string
}

// newFixture registers customers(id, name) with 3 rows and
// orders(id, cust, amount, day) with 10 rows in row groups of 4.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ms, err := metadata.Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ms.Close() })
	pool, err := buffer.NewPool(buffer.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	f := &fixture{ms: ms, env: &operators.Env{Pool: pool, ChunkSize: 3}, dir: t.TempDir()}
	f.planner = NewPlanner(ms, f.env)

	f.addTable(t, "customers", 4,
		&tomy_file.Int64Column{Name: "id", Values: []int64{1, 2, 3}},
		tomy_file.VarcharColumnFromStrings("name", []string{"ann", "bob", "cid"}),
	)

	ids := make([]int64, 10)
	custs := make([]int64, 10)
	amounts := make([]int64, 10)
	days := make([]int64, 10)
	for i := range ids {
		ids[i] = int64(i)
		custs[i] = int64(i%3) + 1
		amounts[i] = int64(i) * 150 // i * 1.50
		days[i] = int64(types.DateOf(2024, 1, 1+i))
	}
	f.addTable(t, "orders", 4,
		&tomy_file.Int64Column{Name: "id", Values: ids},
		&tomy_file.Int64Column{Name: "cust", Values: custs},
		&tomy_file.Int64Column{Name: "amount", Type: tomy_file.TypeDecimal, Values: amounts},
		&tomy_file.Int64Column{Name: "day", Type: tomy_file.TypeDate, Values: days},
	)
	return f
}

func (f *fixture) addTable(t *testing.T, name string, rowGroupSize int, cols ...tomy_file.AnyColumn) {
	t.Helper()
	defs := make([]metadata.ColumnDef, len(cols))
	for i, c := range cols {
		typ, err := types.ColumnTypeFromTomy(c.GetType())
		require.NoError(t, err)
		defs[i] = metadata.ColumnDef{Name: c.GetName(), Type: typ}
	}
	_, err := f.ms.CreateTable(name, defs)
	require.NoError(t, err)

	path := filepath.Join(f.dir, name+".tomy")
	table := &tomy_file.ColumnarTable{NumRows: uint64(cols[0].GetNumRows()), Columns: cols}
	require.NoError(t, tomy_file.NewWriter(rowGroupSize).Write(path, table))
	require.NoError(t, f.ms.AddFile(name, path))
}

func parsePlan(t *testing.T, js string) *PlanNode {
	t.Helper()
	var plan PlanNode
	require.NoError(t, json.Unmarshal([]byte(js), &plan))
	return &plan
}

func (f *fixture) build(t *testing.T, js string) *Plan {
	t.Helper()
	node, err := Bind(f.ms, parsePlan(t, js))
	require.NoError(t, err)
	plan, err := f.planner.Build(node)
	require.NoError(t, err)
	t.Cleanup(plan.Close)
	return plan
}

func (f *fixture) run(t *testing.T, js string) *types.ColumnarResult {
	t.Helper()
	plan := f.build(t, js)
	res, err := executor.Collect(context.Background(), f.env.Pool, plan.Root, 0)
	require.NoError(t, err)
	return res
}

func col(name string) string { return fmt.Sprintf(`{"type":"column","column":%q}`, name) }

func qcol(table, name string) string {
	return fmt.Sprintf(`{"type":"column","table":%q,"column":%q}`, table, name)
}

func bin(op, l, r string) string {
	return fmt.Sprintf(`{"type":"binary","operator":%q,"left":%s,"right":%s}`, op, l, r)
}

func lit(v string) string { return fmt.Sprintf(`{"type":"literal","value":%s}`, v) }

func TestBindReportsEveryProblem(t *testing.T) {
	f := newFixture(t)
	_, err := Bind(f.ms, parsePlan(t, `{"type":"project","input":{"type":"scan","table":"orders"},
		"projections":[{"expr":`+col("nope")+`},{"expr":`+col("missing")+`}]}`))
	problems := types.ToProblems(err)
	require.Len(t, problems, 2)
	assert.Contains(t, problems[0].Error, "nope")
	assert.Contains(t, problems[0].Context, "plan.projections[0]")

	_, err = Bind(f.ms, parsePlan(t, `{"type":"scan","table":"ghosts"}`))
	assert.ErrorContains(t, err, "ghosts")

	_, err = Bind(f.ms, parsePlan(t, `{"type":"filter","input":{"type":"scan","table":"orders"},"predicate":`+col("id")+`}`))
	assert.ErrorContains(t, err, "BOOLEAN")

	_, err = Bind(f.ms, parsePlan(t, `{"type":"limit","input":{"type":"values"},"limit":-1}`))
	assert.ErrorContains(t, err, "non-negative")
}

func TestBindCoercesLiteralsToTheColumnType(t *testing.T) {
	f := newFixture(t)
	node, err := Bind(f.ms, parsePlan(t, `{"type":"scan","table":"orders","filter":`+
		bin("AND", bin("LESS_THAN", col("day"), lit(`"2024-01-04"`)), bin("GREATER_EQUAL", col("amount"), lit("1.5")))+`}`))
	require.NoError(t, err)
	assert.Contains(t, node.(*ScanNode).Filter.String(), "2024-01-04")

	_, err = Bind(f.ms, parsePlan(t, `{"type":"scan","table":"orders","filter":`+bin("EQUAL", col("day"), lit(`"yesterday"`))+`}`))
	assert.ErrorContains(t, err, "DATE")
}

func TestAmbiguousColumnsNeedATable(t *testing.T) {
	f := newFixture(t)
	join := `{"type":"join","left":{"type":"scan","table":"orders"},"right":{"type":"scan","table":"customers"},"condition":%s}`

	_, err := Bind(f.ms, parsePlan(t, fmt.Sprintf(join, bin("EQUAL", col("id"), col("id")))))
	assert.ErrorContains(t, err, "ambiguous")
	problems := types.ToProblems(err)
	require.Len(t, problems, 2, "both sides of the equality are ambiguous")
	for _, p := range problems {
		assert.Contains(t, p.Error, "column reference id is ambiguous")
	}

	node, err := Bind(f.ms, parsePlan(t, fmt.Sprintf(join, bin("EQUAL", qcol("orders", "cust"), qcol("customers", "id")))))
	require.NoError(t, err)
	j := node.(*JoinNode)
	require.Len(t, j.LeftKeys, 1)
	assert.Equal(t, []int{1}, j.LeftKeys[0].GetUsedColumns())
	assert.Equal(t, []int{0}, j.RightKeys[0].GetUsedColumns())
	assert.Nil(t, j.Residual)
}

func TestJoinConditionSplitsIntoKeysAndResidual(t *testing.T) {
	f := newFixture(t)
	cond := bin("AND",
		bin("EQUAL", qcol("customers", "id"), qcol("orders", "cust")),
		bin("GREATER_THAN", qcol("orders", "id"), qcol("customers", "id")))
	node, err := Bind(f.ms, parsePlan(t, `{"type":"join","left":{"type":"scan","table":"orders"},
		"right":{"type":"scan","table":"customers"},"condition":`+cond+`}`))
	require.NoError(t, err)
	j := node.(*JoinNode)
	require.Len(t, j.LeftKeys, 1, "mirrored equality is still a key")
	assert.Equal(t, []int{1}, j.LeftKeys[0].GetUsedColumns())
	require.NotNil(t, j.Residual)
}

func TestInnerJoinBuildsTheSmallerSide(t *testing.T) {
	f := newFixture(t)
	cond := bin("EQUAL", qcol("orders", "cust"), qcol("customers", "id"))

	plan := f.build(t, `{"type":"join","left":{"type":"scan","table":"orders"},"right":{"type":"scan","table":"customers"},"condition":`+cond+`}`)
	join := plan.Root.(*operators.HashJoin)
	assert.False(t, join.BuildIsLeft, "customers is smaller and on the right")

	plan = f.build(t, `{"type":"join","left":{"type":"scan","table":"customers"},"right":{"type":"scan","table":"orders"},"condition":`+
		bin("EQUAL", qcol("customers", "id"), qcol("orders", "cust"))+`}`)
	join = plan.Root.(*operators.HashJoin)
	assert.True(t, join.BuildIsLeft)

	res, err := executor.Collect(context.Background(), f.env.Pool, plan.Root, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), res.RowCount, "every order has one customer")
	assert.Equal(t, []string{"id", "name", "id", "cust", "amount", "day"}, res.ColumnNames)
}

func TestJoinWithoutEqualityUsesNestedLoop(t *testing.T) {
	f := newFixture(t)
	plan := f.build(t, `{"type":"join","left":{"type":"scan","table":"orders"},"right":{"type":"scan","table":"customers"},"condition":`+
		bin("LESS_THAN", qcol("orders", "id"), qcol("customers", "id"))+`}`)
	_, ok := plan.Root.(*operators.NestedLoopJoin)
	require.True(t, ok)

	res, err := executor.Collect(context.Background(), f.env.Pool, plan.Root, 0)
	require.NoError(t, err)
	// pairs (0,1) (0,2) (0,3) (1,2) (1,3) (2,3)
	assert.Equal(t, uint64(6), res.RowCount)
}

func TestJoinSidesOfEqualSizeBuildRight(t *testing.T) {
	f := newFixture(t)
	f.addTable(t, "other", 4,
		&tomy_file.Int64Column{Name: "cid", Values: []int64{1, 2, 2}},
	)
	plan := f.build(t, `{"type":"join","left":{"type":"scan","table":"customers"},"right":{"type":"scan","table":"other"},"condition":`+
		bin("EQUAL", col("id"), col("cid"))+`}`)
	assert.False(t, plan.Root.(*operators.HashJoin).BuildIsLeft)

	res, err := executor.Collect(context.Background(), f.env.Pool, plan.Root, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"ann", "bob", "bob"}, res.Columns[1])
}

func TestSemiJoinBuildsTheRightSide(t *testing.T) {
	f := newFixture(t)
	plan := f.build(t, `{"type":"join","joinKind":"semi","left":{"type":"scan","table":"customers"},
		"right":{"type":"scan","table":"orders","filter":`+bin("GREATER_THAN", col("id"), lit("6"))+`},
		"condition":`+bin("EQUAL", qcol("customers", "id"), qcol("orders", "cust"))+`}`)
	join := plan.Root.(*operators.HashJoin)
	assert.Equal(t, operators.SemiJoin, join.Kind)
	assert.False(t, join.BuildIsLeft)

	res, err := executor.Collect(context.Background(), f.env.Pool, plan.Root, 0)
	require.NoError(t, err)
	// orders 7, 8, 9 belong to customers 2, 3, 1
	assert.ElementsMatch(t, []any{"ann", "bob", "cid"}, res.Columns[1])

	_, err = Bind(f.ms, parsePlan(t, `{"type":"join","joinKind":"semi","left":{"type":"values"},"right":{"type":"values"}}`))
	assert.ErrorContains(t, err, "semi join")
}

func TestSortWithLimitBecomesTopN(t *testing.T) {
	f := newFixture(t)
	plan := f.build(t, `{"type":"sort","input":{"type":"scan","table":"orders"},"orderBy":[{"expr":`+col("amount")+`,"descending":true}],"limit":2}`)
	top, ok := plan.Root.(*operators.TopNSort)
	require.True(t, ok)
	assert.Equal(t, 2, top.K)

	res, err := executor.Collect(context.Background(), f.env.Pool, plan.Root, 0)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(9), int64(8)}, res.Columns[0])

	plan = f.build(t, `{"type":"limit","limit":2,"offset":3,"input":{"type":"sort","input":{"type":"scan","table":"orders"},"orderBy":[{"expr":`+col("id")+`}]}}`)
	limit, ok := plan.Root.(*operators.Limit)
	require.True(t, ok)
	assert.Equal(t, 5, limit.Child.(*operators.TopNSort).K)
	res, err = executor.Collect(context.Background(), f.env.Pool, plan.Root, 0)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(3), int64(4)}, res.Columns[0])

	plan = f.build(t, `{"type":"sort","input":{"type":"scan","table":"orders"},"orderBy":[{"expr":`+col("id")+`}]}`)
	_, ok = plan.Root.(*operators.Sort)
	assert.True(t, ok)
}

func TestHugeLimitsReturnEveryRow(t *testing.T) {
	f := newFixture(t)
	plan := f.build(t, `{"type":"sort","input":{"type":"scan","table":"orders"},"orderBy":[{"expr":`+col("id")+`}],"limit":17592186044416}`)
	assert.Equal(t, 1<<44, plan.Root.(*operators.TopNSort).K)
	res, err := executor.Collect(context.Background(), f.env.Pool, plan.Root, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), res.RowCount)

	plan = f.build(t, `{"type":"limit","limit":9223372036854775807,"offset":5,"input":{"type":"sort","input":{"type":"scan","table":"orders"},"orderBy":[{"expr":`+col("id")+`}]}}`)
	limit, ok := plan.Root.(*operators.Limit)
	require.True(t, ok)
	assert.Equal(t, math.MaxInt, limit.Child.(*operators.TopNSort).K)
	res, err = executor.Collect(context.Background(), f.env.Pool, plan.Root, 0)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(5), int64(6), int64(7), int64(8), int64(9)}, res.Columns[0])
}

func TestScanFilterPrunesAndFilters(t *testing.T) {
	f := newFixture(t)
	plan := f.build(t, `{"type":"scan","table":"orders","filter":`+bin("LESS_THAN", col("id"), lit("2"))+`}`)
	filter, ok := plan.Root.(*operators.Filter)
	require.True(t, ok)
	_, ok = filter.Child.(*operators.Scan)
	assert.True(t, ok)

	res, err := executor.Collect(context.Background(), f.env.Pool, plan.Root, 0)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(0), int64(1)}, res.Columns[0])

	explain := plan.Explain()
	assert.Contains(t, explain, "Filter")
	assert.Contains(t, explain, "  Scan orders")
	assert.Contains(t, explain, "total=")
}

func TestAggregateQuery(t *testing.T) {
	f := newFixture(t)
	res := f.run(t, `{"type":"sort","orderBy":[{"expr":`+col("cust")+`}],"input":
		{"type":"aggregate","input":{"type":"scan","table":"orders"},
		 "groupBy":[{"expr":`+col("cust")+`}],
		 "aggregates":[{"name":"total","function":"SUM","arg":`+col("amount")+`},{"name":"n","function":"COUNT"}]}}`)

	assert.Equal(t, []string{"cust", "total", "n"}, res.ColumnNames)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, res.Columns[0])
	// cust 1: ids 0,3,6,9 -> 27 * 1.50
	assert.Equal(t, []any{"27.00", "18.00", "22.50"}, res.Columns[1])
	assert.Equal(t, []any{int64(4), int64(3), int64(3)}, res.Columns[2])
}

func TestLiteralOnlyQuery(t *testing.T) {
	f := newFixture(t)
	res := f.run(t, `{"type":"project","input":{"type":"values"},"projections":[
		{"name":"x","expr":`+bin("MULTIPLY", lit("6"), lit("7"))+`},
		{"name":"s","expr":{"type":"function","function":"upper","arguments":[`+lit(`"abc"`)+`]}}]}`)
	assert.Equal(t, uint64(1), res.RowCount)
	assert.Equal(t, []any{int64(42)}, res.Columns[0])
	assert.Equal(t, []any{"ABC"}, res.Columns[1])
}

func TestDistinctQuery(t *testing.T) {
	f := newFixture(t)
	res := f.run(t, `{"type":"distinct","input":{"type":"project","input":{"type":"scan","table":"orders"},"projections":[{"expr":`+col("cust")+`}]}}`)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, res.Columns[0])
}

func TestEmptyTableScansNothing(t *testing.T) {
	f := newFixture(t)
	_, err := f.ms.CreateTable("empty", []metadata.ColumnDef{{Name: "x", Type: types.ColumnTypeInt64}})
	require.NoError(t, err)

	res := f.run(t, `{"type":"scan","table":"empty"}`)
	assert.Zero(t, res.RowCount)
	assert.Equal(t, []string{"x"}, res.ColumnNames)
}

func TestClosingThePlanUnpinsFiles(t *testing.T) {
	f := newFixture(t)
	node, err := Bind(f.ms, parsePlan(t, `{"type":"scan","table":"customers"}`))
	require.NoError(t, err)
	plan, err := f.planner.Build(node)
	require.NoError(t, err)

	table, _ := f.ms.GetTable("customers")
	assert.Equal(t, 1, table.Files[0].RefCount())
	plan.Close()
	assert.Equal(t, 0, table.Files[0].RefCount())
}
