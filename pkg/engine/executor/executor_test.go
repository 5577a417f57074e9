package executor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tomydb/pkg/engine/buffer"
	"tomydb/pkg/engine/executor/operators"
	"tomydb/pkg/engine/types"
	"tomydb/pkg/metadata"
)

func newEnv(t *testing.T) *operators.Env {
	t.Helper()
	pool, err := buffer.NewPool(buffer.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return &operators.Env{Pool: pool, ChunkSize: 2}
}

// copyCSV creates table t(id INT64, name VARCHAR, price DECIMAL, day DATE)
// and loads csv into it.
func copyCSV(t *testing.T, csv string, mapping []string) (*metadata.Metastore, string, error) {
	t.Helper()
	dir := t.TempDir()
	ms, err := metadata.Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ms.Close() })

	_, err = ms.CreateTable("t", []metadata.ColumnDef{
		{Name: "id", Type: types.ColumnTypeInt64},
		{Name: "name", Type: types.ColumnTypeVarchar},
		{Name: "price", Type: types.ColumnTypeDecimal},
		{Name: "day", Type: types.ColumnTypeDate},
	})
	require.NoError(t, err)

	csvPath := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(csv), 0644))
	path, _, err := Copy(context.Background(), ms, dir, CopyRequest{
		TableName:         "t",
		CsvFilePath:       csvPath,
		CsvContainsHeader: true,
		ColumnsMapping:    mapping,
		RowGroupSize:      2,
	})
	return ms, path, err
}

func scanAll(t *testing.T, env *operators.Env, path string) operators.Operator {
	t.Helper()
	h, err := env.Pool.Open(path)
	require.NoError(t, err)
	scan, err := operators.NewScan(env, []*buffer.FileHandle{h}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(scan.Close)
	return scan
}

const sample = `id,name,price,day
1,apple,1.50,2024-01-02
2,pear,,2024-02-03
3,,10,
`

func TestCopyAndCollect(t *testing.T) {
	ms, path, err := copyCSV(t, sample, nil)
	require.NoError(t, err)

	table, ok := ms.GetTable("t")
	require.True(t, ok)
	assert.Equal(t, []string{path}, metadata.FileNames(table.Files))

	env := newEnv(t)
	res, err := Collect(context.Background(), env.Pool, scanAll(t, env, path), 0)
	require.NoError(t, err)

	assert.Equal(t, uint64(3), res.RowCount)
	assert.Equal(t, []string{"id", "name", "price", "day"}, res.ColumnNames)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, res.Columns[0])
	assert.Equal(t, []any{"apple", "pear", ""}, res.Columns[1])
	assert.Equal(t, []any{"1.50", nil, "10.00"}, res.Columns[2])
	assert.Equal(t, []any{"2024-01-02", "2024-02-03", nil}, res.Columns[3])
}

func TestCopyWithMappingLeavesOtherColumnsNull(t *testing.T) {
	_, path, err := copyCSV(t, "day,id\n2024-05-06,7\n", []string{"day", "id"})
	require.NoError(t, err)

	env := newEnv(t)
	res, err := Collect(context.Background(), env.Pool, scanAll(t, env, path), 0)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(7)}, res.Columns[0])
	assert.Equal(t, []any{nil}, res.Columns[1])
	assert.Equal(t, []any{"2024-05-06"}, res.Columns[3])
}

func TestCopyRejectsBadInput(t *testing.T) {
	_, _, err := copyCSV(t, "id,name,price,day\nx,a,1,2024-01-01\n", nil)
	assert.ErrorContains(t, err, "col id")

	_, _, err = copyCSV(t, "id,name,price,day\n", nil)
	assert.ErrorContains(t, err, "empty CSV")

	_, _, err = copyCSV(t, "a\n1\n", []string{"missing"})
	assert.ErrorContains(t, err, "not found")
}

func TestCollectStopsAtRowLimit(t *testing.T) {
	_, path, err := copyCSV(t, sample, nil)
	require.NoError(t, err)

	env := newEnv(t)
	res, err := Collect(context.Background(), env.Pool, scanAll(t, env, path), 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.RowCount)
	assert.Equal(t, []any{int64(1), int64(2)}, res.Columns[0])
}

func TestExecuteReportsCancellation(t *testing.T) {
	_, path, err := copyCSV(t, sample, nil)
	require.NoError(t, err)
	env := newEnv(t)
	scan := scanAll(t, env, path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	batches := 0
	var last error
	for rg, err := range Execute(ctx, scan) {
		if err != nil {
			last = err
			break
		}
		require.NotNil(t, rg)
		batches++
		cancel()
	}
	assert.Equal(t, 1, batches)
	assert.ErrorIs(t, last, context.Canceled)
}

func TestFormatResult(t *testing.T) {
	res := &types.ColumnarResult{
		RowCount:    2,
		ColumnNames: []string{"name", "qty"},
		Columns:     []any{[]any{"a|b", nil}, []any{int64(3), int64(4)}},
	}
	var buf bytes.Buffer
	require.NoError(t, FormatResult(&buf, res))

	out := buf.String()
	assert.Contains(t, out, "name")
	assert.Contains(t, out, `a\|b`)
	assert.Contains(t, out, "NULL")
	assert.Contains(t, out, "_2 rows_")
}
