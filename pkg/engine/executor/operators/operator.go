package operators

import (
	"context"
	"log/slog"

	"tomydb/pkg/engine/buffer"
	"tomydb/pkg/engine/cost"
	"tomydb/pkg/engine/expr"
	"tomydb/pkg/engine/types"
)

const DefaultChunkSize = 8192

// Operator is a pull based physical operator. Next returns nil, nil at the
// end of the stream and never returns an empty batch.
type Operator interface {
	Columns() []buffer.ColumnSchema
	// ColumnRefs addresses the columns of the batch returned last.
	ColumnRefs() []buffer.ColumnRef
	Next(ctx context.Context) (*buffer.RowGroup, error)
	// Reset rewinds the subtree so the next Next starts over.
	Reset() error
	EstimateCost() cost.Cost
	Close()
}

type State int

const (
	NotStarted State = iota
	Producing
	Exhausted
)

func (s State) String() string {
	return [...]string{"NotStarted", "Producing", "Exhausted"}[s]
}

// Env is what every operator of one query shares.
type Env struct {
	Pool      *buffer.Pool
	Logger    *slog.Logger
	ChunkSize int
}

func (e *Env) chunkSize() int {
	if e.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return e.ChunkSize
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// base carries the state machine and the output memory table of an operator.
type base struct {
	env    *Env
	name   string
	state  State
	schema []buffer.ColumnSchema
	out    *buffer.MemoryTable
	last   *buffer.RowGroup
}

func newBase(env *Env, name string, schema []buffer.ColumnSchema) base {
	for i := range schema {
		schema[i].Index = i
	}
	return base{env: env, name: name, schema: schema}
}

func (b *base) State() State { return b.state }

func (b *base) Columns() []buffer.ColumnSchema { return b.schema }

func (b *base) ColumnRefs() []buffer.ColumnRef {
	if b.last == nil {
		return nil
	}
	return b.last.Columns
}

// produced records a batch handed to the parent; nil ends the stream.
func (b *base) produced(rg *buffer.RowGroup) (*buffer.RowGroup, error) {
	if rg == nil {
		b.state = Exhausted
		return nil, nil
	}
	b.state = Producing
	b.last = rg
	return rg, nil
}

// emit stores freshly computed columns as a new row group of the operator's
// own memory table.
func (b *base) emit(cols []types.Column) (*buffer.RowGroup, error) {
	if len(cols) == 0 {
		return nil, &types.InvariantError{Operator: b.name, Expected: "at least one column", Found: 0}
	}
	return b.emitRows(cols[0].Len(), cols)
}

// emitRows is emit for batches that may have no columns at all.
func (b *base) emitRows(rows int, cols []types.Column) (*buffer.RowGroup, error) {
	if err := types.CheckRowCounts(b.name, rows, cols); err != nil {
		return nil, err
	}
	if b.out == nil {
		b.out = b.env.Pool.OpenMemoryTable(b.schema)
	}
	if len(cols) == 0 {
		return b.produced(&buffer.RowGroup{RowCount: rows, Ref: b.out.AllocateRowGroup(rows)})
	}
	named := make([]types.Column, len(cols))
	for i, c := range cols {
		named[i] = c.WithName(b.schema[i].Name)
	}
	rg, err := b.out.AppendRowGroup(named)
	if err != nil {
		return nil, err
	}
	return b.produced(rg)
}

func (b *base) resetBase() {
	b.state = NotStarted
	b.last = nil
	if b.out != nil {
		b.out.Truncate()
	}
}

func (b *base) closeBase() {
	if b.out != nil {
		b.env.Pool.DropMemoryTable(b.out)
		b.out = nil
	}
	b.last = nil
	b.state = Exhausted
}

func (b *base) batch(rg *buffer.RowGroup) *expr.Batch { return expr.NewBatch(b.env.Pool, rg) }

// SchemaOf builds output columns named after expressions.
func SchemaOf(names []string, exprs []expr.Expression) []buffer.ColumnSchema {
	out := make([]buffer.ColumnSchema, len(exprs))
	for i, e := range exprs {
		out[i] = buffer.ColumnSchema{ID: i, Name: names[i], Type: e.ResultType(), Source: e.String()}
	}
	return out
}

func copySchema(schema []buffer.ColumnSchema) []buffer.ColumnSchema {
	out := make([]buffer.ColumnSchema, len(schema))
	copy(out, schema)
	return out
}

// drain pulls every remaining batch of op.
func drain(ctx context.Context, op Operator, fn func(rg *buffer.RowGroup) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rg, err := op.Next(ctx)
		if err != nil {
			return err
		}
		if rg == nil {
			return nil
		}
		if err := fn(rg); err != nil {
			return err
		}
	}
}

// chunker hands out materialised columns ChunkSize rows at a time.
type chunker struct {
	cols   []types.Column
	rows   int
	offset int
}

func newChunker(cols []types.Column) *chunker {
	rows := 0
	if len(cols) > 0 {
		rows = cols[0].Len()
	}
	return &chunker{cols: cols, rows: rows}
}

func (c *chunker) next(size int) []types.Column {
	if c == nil || c.offset >= c.rows {
		return nil
	}
	end := min(c.offset+size, c.rows)
	out := make([]types.Column, len(c.cols))
	for i, col := range c.cols {
		if c.offset == 0 && end == c.rows {
			out[i] = col
		} else {
			out[i] = col.Slice(c.offset, end)
		}
	}
	c.offset = end
	return out
}

// materialize drains op into one column per output column.
func materialize(ctx context.Context, env *Env, op Operator) ([]types.Column, []*buffer.RowGroup, error) {
	parts := make([][]types.Column, len(op.Columns()))
	var batches []*buffer.RowGroup
	err := drain(ctx, op, func(rg *buffer.RowGroup) error {
		cols, err := env.Pool.Columns(rg)
		if err != nil {
			return err
		}
		for i, c := range cols {
			parts[i] = append(parts[i], c)
		}
		batches = append(batches, rg)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	out := make([]types.Column, len(parts))
	for i, p := range parts {
		if len(p) == 0 {
			out[i] = types.EmptyColumn(op.Columns()[i].Name, op.Columns()[i].Type)
			continue
		}
		if out[i], err = types.Concat(p); err != nil {
			return nil, nil, err
		}
	}
	return out, batches, nil
}
