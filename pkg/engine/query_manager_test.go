package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tomydb/pkg/engine/buffer"
	"tomydb/pkg/engine/executor"
	"tomydb/pkg/engine/planner"
	"tomydb/pkg/engine/types"
	"tomydb/pkg/metadata"
)

func newManager(t *testing.T) (*QueryManager, *metadata.Metastore) {
	t.Helper()
	ms, err := metadata.Open("", nil)
	require.NoError(t, err)
	pool, err := buffer.NewPool(buffer.Options{})
	require.NoError(t, err)
	qm := NewQueryManager(ms, pool, Options{ChunkSize: 4, TablesDir: t.TempDir()})
	t.Cleanup(func() {
		qm.Close()
		_ = pool.Close()
		_ = ms.Close()
	})

	_, err = ms.CreateTable("people", []metadata.ColumnDef{
		{Name: "id", Type: types.ColumnTypeInt64},
		{Name: "name", Type: types.ColumnTypeVarchar},
	})
	require.NoError(t, err)
	return qm, ms
}

// loadPeople copies n rows into people through a COPY query.
func loadPeople(t *testing.T, qm *QueryManager, rows string) {
	t.Helper()
	csvPath := filepath.Join(t.TempDir(), "people.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(rows), 0o644))
	id, err := qm.SubmitCopy(executor.CopyRequest{TableName: "people", CsvFilePath: csvPath})
	require.NoError(t, err)
	info := waitDone(t, qm, id)
	require.Equal(t, QueryStateFinished, info.State, "copy error: %v", info.Error)
}

func waitDone(t *testing.T, qm *QueryManager, id string) QueryInfo {
	t.Helper()
	var info QueryInfo
	require.Eventually(t, func() bool {
		var ok bool
		info, ok = qm.Get(id)
		return ok && info.State.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	return info
}

func plan(t *testing.T, js string) *planner.PlanNode {
	t.Helper()
	var p planner.PlanNode
	require.NoError(t, json.Unmarshal([]byte(js), &p))
	return &p
}

func TestSelectLifecycle(t *testing.T) {
	qm, _ := newManager(t)
	loadPeople(t, qm, "1,ann\n2,bob\n3,cid\n4,dan\n5,eve\n")

	id, err := qm.SubmitSelect(plan(t, `{"type":"filter","input":{"type":"scan","table":"people"},
		"predicate":{"type":"binary","operator":"GREATER_THAN","left":{"type":"column","column":"id"},"right":{"type":"literal","value":1}}}`))
	require.NoError(t, err)

	info := waitDone(t, qm, id)
	require.Equal(t, QueryStateFinished, info.State, "error: %v", info.Error)
	assert.Equal(t, QueryKindSelect, info.Kind)
	require.NotNil(t, info.Cost)
	assert.Positive(t, info.Cost.TotalCost())

	res, err := qm.Result(id, 2, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.RowCount)
	assert.Equal(t, []any{"bob", "cid"}, res.Columns[1])

	res, err = qm.Result(id, 0, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), res.RowCount)

	_, err = qm.Result(id, 0, false)
	assert.ErrorIs(t, err, ErrQueryNotFound)
}

func TestInvalidSelectCreatesNoQuery(t *testing.T) {
	qm, _ := newManager(t)
	_, err := qm.SubmitSelect(plan(t, `{"type":"scan","table":"people","columns":["id","age"]}`))
	require.Error(t, err)
	problems := types.ToProblems(err)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0].Error, "age")
	assert.Empty(t, qm.List())
}

func TestCopyHasNoResult(t *testing.T) {
	qm, _ := newManager(t)
	csvPath := filepath.Join(t.TempDir(), "people.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("1,ann\n"), 0o644))

	id, err := qm.SubmitCopy(executor.CopyRequest{TableName: "people", CsvFilePath: csvPath})
	require.NoError(t, err)
	waitDone(t, qm, id)

	_, err = qm.Result(id, 0, false)
	assert.ErrorIs(t, err, ErrNoResult)

	_, err = qm.SubmitCopy(executor.CopyRequest{TableName: "ghosts", CsvFilePath: csvPath})
	assert.ErrorContains(t, err, "ghosts")
}

func TestFailedCopy(t *testing.T) {
	qm, _ := newManager(t)
	csvPath := filepath.Join(t.TempDir(), "people.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("x,ann\n"), 0o644))

	id, err := qm.SubmitCopy(executor.CopyRequest{TableName: "people", CsvFilePath: csvPath})
	require.NoError(t, err)
	info := waitDone(t, qm, id)
	assert.Equal(t, QueryStateFailed, info.State)
	assert.Error(t, info.Error)
}

func TestCancelRunningQuery(t *testing.T) {
	qm, _ := newManager(t)
	started := make(chan struct{})
	id := qm.start(QueryKindSelect, nil, func(ctx context.Context, q *QueryInfo) error {
		qm.updateState(q.ID, QueryStateRunning)
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started

	info, ok := qm.Get(id)
	require.True(t, ok)
	assert.Equal(t, QueryStateRunning, info.State)

	require.NoError(t, qm.Cancel(id))
	info = waitDone(t, qm, id)
	assert.Equal(t, QueryStateCanceled, info.State)
	assert.ErrorIs(t, info.Error, context.Canceled)

	assert.ErrorIs(t, qm.Cancel(id), ErrQueryDone)
	assert.ErrorIs(t, qm.Cancel("nope"), ErrQueryNotFound)

	_, err := qm.Result(id, 0, false)
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestPanicFailsTheQuery(t *testing.T) {
	qm, _ := newManager(t)
	id := qm.start(QueryKindSelect, nil, func(ctx context.Context, q *QueryInfo) error {
		panic("boom")
	})
	info := waitDone(t, qm, id)
	assert.Equal(t, QueryStateFailed, info.State)
	assert.ErrorContains(t, info.Error, "boom")
}

func TestCloseCancelsEverything(t *testing.T) {
	qm, _ := newManager(t)
	id := qm.start(QueryKindSelect, nil, func(ctx context.Context, q *QueryInfo) error {
		<-ctx.Done()
		return ctx.Err()
	})
	qm.Close()
	info, ok := qm.Get(id)
	require.True(t, ok)
	assert.Equal(t, QueryStateCanceled, info.State)
}

func TestListIsOrderedBySubmission(t *testing.T) {
	qm, _ := newManager(t)
	var ids []string
	for range 3 {
		ids = append(ids, qm.start(QueryKindSelect, nil, func(context.Context, *QueryInfo) error { return nil }))
		time.Sleep(time.Millisecond)
	}
	for _, id := range ids {
		waitDone(t, qm, id)
	}
	list := qm.List()
	require.Len(t, list, 3)
	for i, q := range list {
		assert.Equal(t, ids[i], q.ID)
	}
}

func TestExplain(t *testing.T) {
	qm, _ := newManager(t)
	loadPeople(t, qm, "1,ann\n2,bob\n")
	before := qm.List()

	text, c, err := qm.Explain(plan(t, `{"type":"limit","limit":1,"input":{"type":"sort","input":{"type":"scan","table":"people"},"orderBy":[{"expr":{"type":"column","column":"name"},"descending":true}]}}`))
	require.NoError(t, err)
	assert.Contains(t, text, "Limit")
	assert.Contains(t, text, "Scan people")
	assert.Equal(t, float64(1), c.OutputRows)
	assert.Len(t, qm.List(), len(before), "explain must not register a query")

	_, _, err = qm.Explain(plan(t, `{"type":"scan","table":"ghosts"}`))
	assert.Error(t, err)
}
