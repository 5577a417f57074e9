package operators

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tomydb/pkg/engine/buffer"
	"tomydb/pkg/engine/cost"
	"tomydb/pkg/engine/expr"
	"tomydb/pkg/engine/types"
	"tomydb/pkg/tomy_file"
)

func newTestEnv(t *testing.T) *Env {
	t.Helper()
	pool, err := buffer.NewPool(buffer.Options{CacheBytes: 1 << 20})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return &Env{Pool: pool, ChunkSize: 4}
}

// source emits prepared batches and counts how often it was pulled.
type source struct {
	base
	batches [][]types.Column
	pos     int
	calls   int
}

func newSource(env *Env, batches ...[]types.Column) *source {
	schema := make([]buffer.ColumnSchema, len(batches[0]))
	for i, c := range batches[0] {
		schema[i] = buffer.ColumnSchema{ID: i, Name: c.GetName(), Type: c.GetType()}
	}
	return &source{base: newBase(env, "source", schema), batches: batches}
}

func (s *source) Next(ctx context.Context) (*buffer.RowGroup, error) {
	s.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for s.pos < len(s.batches) {
		b := s.batches[s.pos]
		s.pos++
		if b[0].Len() > 0 {
			return s.emit(b)
		}
	}
	return s.produced(nil)
}

func (s *source) Reset() error {
	s.resetBase()
	s.pos = 0
	return nil
}

func (s *source) EstimateCost() cost.Cost {
	rows := 0
	for _, b := range s.batches {
		rows += b[0].Len()
	}
	return cost.New(float64(rows), float64(rows), 0)
}

func (s *source) Close() { s.closeBase() }

func ints(name string, values ...int64) types.Column { return types.NewInt64Column(name, values) }

func strs(name string, values ...string) types.Column {
	return types.VarcharColumnFromStrings(name, values)
}

func colRef(op Operator, idx int) *expr.ColumnRefExpr {
	c := op.Columns()[idx]
	return &expr.ColumnRefExpr{Index: idx, ColName: c.Name, ColType: c.Type}
}

func intLit(v int64) *expr.LiteralExpr {
	return &expr.LiteralExpr{Value: v, Type: types.ColumnTypeInt64}
}

func binary(t *testing.T, l, r expr.Expression, op expr.BinaryOperator) expr.Expression {
	t.Helper()
	e, err := expr.NewBinaryOp(l, r, op)
	require.NoError(t, err)
	return e
}

// collect drains op and returns its output values column by column, plus
// the number of batches seen.
func collect(t *testing.T, env *Env, op Operator) ([][]any, int) {
	t.Helper()
	out := make([][]any, len(op.Columns()))
	batches := 0
	for {
		rg, err := op.Next(context.Background())
		require.NoError(t, err)
		if rg == nil {
			return out, batches
		}
		require.Positive(t, rg.RowCount, "operators never emit empty batches")
		batches++
		cols, err := env.Pool.Columns(rg)
		require.NoError(t, err)
		for i, c := range cols {
			out[i] = append(out[i], types.ColumnValues(c)...)
		}
	}
}

// writeIDs writes a file with an id column 0..rows-1 and a name column.
func writeIDs(t *testing.T, rows, rowGroupSize int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ids.tomy")
	ids := make([]int64, rows)
	names := make([]string, rows)
	for i := range ids {
		ids[i] = int64(i)
		names[i] = string(rune('a' + i%26))
	}
	table := &tomy_file.ColumnarTable{
		NumRows: uint64(rows),
		Columns: []tomy_file.AnyColumn{
			&tomy_file.Int64Column{Name: "id", Values: ids},
			tomy_file.VarcharColumnFromStrings("name", names),
		},
	}
	require.NoError(t, tomy_file.NewWriter(rowGroupSize).Write(path, table))
	return path
}
