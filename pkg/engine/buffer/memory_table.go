package buffer

import (
	"fmt"
	"slices"
	"sync"

	"tomydb/pkg/engine/types"
)

// MemoryTable is an append-only list of row groups. Every (row group, column)
// cell is written exactly once.
type MemoryTable struct {
	Ref TableRef

	pool   *Pool
	schema []ColumnSchema

	mu        sync.RWMutex
	rowGroups map[int64]*memoryRowGroup
	order     []int64
}

type memoryRowGroup struct {
	rows    int
	columns []types.Column
}

func (t *MemoryTable) Schema() []ColumnSchema { return t.schema }

// AllocateRowGroup reserves an empty row group of the given size.
func (t *MemoryTable) AllocateRowGroup(rows int) RowGroupRef {
	id := t.pool.nextRowGroupID.Add(-1)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rowGroups[id] = &memoryRowGroup{rows: rows, columns: make([]types.Column, len(t.schema))}
	t.order = append(t.order, id)
	return RowGroupRef{Table: t.Ref, ID: id}
}

func (t *MemoryTable) WriteColumn(ref ColumnRef, col types.Column) error {
	if ref.Table != t.Ref {
		return addrErr("write", ref, ErrNotFound, "table is %s", t.Ref)
	}
	if ref.Column < 0 || ref.Column >= len(t.schema) {
		return addrErr("write", ref, ErrNotFound, "table has %d columns", len(t.schema))
	}
	if want := t.schema[ref.Column].Type; col.GetType() != want {
		return addrErr("write", ref, ErrTypeMismatch, "column %s is %s, got %s", t.schema[ref.Column].Name, want, col.GetType())
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rg, ok := t.rowGroups[ref.RowGroup]
	if !ok {
		return addrErr("write", ref, ErrNotFound, "")
	}
	if rg.columns[ref.Column] != nil {
		return addrErr("write", ref, ErrConflict, "")
	}
	if col.Len() != rg.rows {
		return &types.InvariantError{
			Operator: "memory table write",
			Expected: fmt.Sprintf("%d rows in %s", rg.rows, ref),
			Found:    fmt.Sprintf("%d rows in %s", col.Len(), col.GetName()),
		}
	}
	rg.columns[ref.Column] = col
	return nil
}

// AppendRowGroup allocates a row group and fills every column of it.
func (t *MemoryTable) AppendRowGroup(cols []types.Column) (*RowGroup, error) {
	if len(cols) != len(t.schema) {
		return nil, &types.InvariantError{Operator: "memory table append", Expected: fmt.Sprintf("%d columns", len(t.schema)), Found: len(cols)}
	}
	rows := 0
	if len(cols) > 0 {
		rows = cols[0].Len()
	}
	rgRef := t.AllocateRowGroup(rows)
	out := &RowGroup{RowCount: rows, Ref: rgRef, Columns: make([]ColumnRef, len(cols))}
	for i, col := range cols {
		out.Columns[i] = rgRef.Column(i)
		if err := t.WriteColumn(out.Columns[i], col); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (t *MemoryTable) column(ref ColumnRef) (types.Column, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rg, ok := t.rowGroups[ref.RowGroup]
	if !ok {
		return nil, addrErr("read", ref, ErrNotFound, "no such row group")
	}
	if ref.Column < 0 || ref.Column >= len(rg.columns) || rg.columns[ref.Column] == nil {
		return nil, addrErr("read", ref, ErrNotFound, "no such column")
	}
	return rg.columns[ref.Column], nil
}

// RowGroups lists the row groups in allocation order.
func (t *MemoryTable) RowGroups() []*RowGroup {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*RowGroup, 0, len(t.order))
	for _, id := range t.order {
		ref := RowGroupRef{Table: t.Ref, ID: id}
		rg := &RowGroup{RowCount: t.rowGroups[id].rows, Ref: ref, Columns: make([]ColumnRef, len(t.schema))}
		for i := range rg.Columns {
			rg.Columns[i] = ref.Column(i)
		}
		out = append(out, rg)
	}
	return out
}

func (t *MemoryTable) NumRows() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := 0
	for _, rg := range t.rowGroups {
		total += rg.rows
	}
	return total
}

// Truncate drops every row group; ids are never reused.
func (t *MemoryTable) Truncate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.rowGroups)
	t.order = t.order[:0]
}

func (t *MemoryTable) SizeInBytes() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var size uint64
	for _, rg := range t.rowGroups {
		for _, c := range rg.columns {
			if c != nil {
				size += c.SizeInBytes()
			}
		}
	}
	return size
}

func cloneSchema(ref TableRef, columns []ColumnSchema) []ColumnSchema {
	schema := slices.Clone(columns)
	for i := range schema {
		schema[i].Table = ref
		schema[i].Index = i
	}
	return schema
}
