package buffer

import (
	"fmt"

	"tomydb/pkg/engine/types"
)

type TableKind uint8

const (
	MemoryTableKind TableKind = iota
	FileTableKind
)

func (k TableKind) String() string {
	if k == FileTableKind {
		return "file"
	}
	return "memory"
}

// TableRef is the storage location of a table. For files ID is the slot in
// the pool and Generation is bumped when the slot is released, so refs to a
// released file stop resolving instead of pointing at whatever reuses it.
type TableRef struct {
	Kind       TableKind
	ID         uint32
	Generation uint32
}

func (t TableRef) String() string {
	if t.Kind == FileTableKind {
		return fmt.Sprintf("file#%d.%d", t.ID, t.Generation)
	}
	return fmt.Sprintf("memory#%d", t.ID)
}

// RowGroupRef names one batch of one table. File row groups use their
// position in the file (>= 0), memory row groups use ids handed out by a
// decrementing counter (< 0), so both can live side by side.
type RowGroupRef struct {
	Table TableRef
	ID    int64
}

func (r RowGroupRef) Column(idx int) ColumnRef {
	return ColumnRef{Table: r.Table, RowGroup: r.ID, Column: idx}
}

func (r RowGroupRef) String() string { return fmt.Sprintf("%s/rg%d", r.Table, r.ID) }

// ColumnRef is a comparable address of one column of one row group.
type ColumnRef struct {
	Table    TableRef
	RowGroup int64
	Column   int
}

func (c ColumnRef) RowGroupRef() RowGroupRef { return RowGroupRef{Table: c.Table, ID: c.RowGroup} }

func (c ColumnRef) String() string { return fmt.Sprintf("%s/rg%d/c%d", c.Table, c.RowGroup, c.Column) }

type RowRef struct {
	RowGroup RowGroupRef
	Offset   int
}

// RowGroup is a batch handed between operators. It points at columns owned by
// the pool; it never holds data itself.
type RowGroup struct {
	RowCount int
	Ref      RowGroupRef
	Columns  []ColumnRef
}

// ColumnSchema describes one column of a table. Table and Index locate it,
// ID is the plan-wide identity, Source names the table the values came from.
type ColumnSchema struct {
	Table  TableRef
	Index  int
	ID     int
	Name   string
	Type   types.ColumnType
	Source string
}

func (s ColumnSchema) String() string { return fmt.Sprintf("%s %s", s.Name, s.Type) }
