package buffer

import (
	"sync"
	"sync/atomic"

	"tomydb/pkg/engine/types"
	"tomydb/pkg/tomy_file"
)

// FileHandle is a shared, reference counted, memory mapped Tomy file.
type FileHandle struct {
	Path string
	Ref  TableRef

	file     *tomy_file.MappedFile
	schema   []ColumnSchema
	refCount atomic.Int32 // incremented under Pool.mu read lock, dropped under its write lock

	statsOnce  sync.Once
	statsTable *MemoryTable
	statsErr   error
}

func (h *FileHandle) Schema() []ColumnSchema { return h.schema }

func (h *FileHandle) NumRowGroups() int { return h.file.NumRowGroups() }

func (h *FileHandle) NumRows() uint64 { return h.file.Metadata().NumRows }

func (h *FileHandle) RowGroupRows(rg int) int { return int(h.file.RowGroupRows(rg)) }

func (h *FileHandle) Statistics(rg, col int) tomy_file.Statistics { return h.file.Statistics(rg, col) }

// RowGroup addresses row group rg, restricted to the given file columns
// (all of them when columns is nil).
func (h *FileHandle) RowGroup(rg int, columns []int) *RowGroup {
	ref := RowGroupRef{Table: h.Ref, ID: int64(rg)}
	if columns == nil {
		columns = make([]int, len(h.schema))
		for i := range columns {
			columns[i] = i
		}
	}
	out := &RowGroup{RowCount: h.RowGroupRows(rg), Ref: ref, Columns: make([]ColumnRef, len(columns))}
	for i, c := range columns {
		out.Columns[i] = ref.Column(c)
	}
	return out
}

// ColumnIndex finds a file column by name, -1 when absent.
func (h *FileHandle) ColumnIndex(name string) int {
	for i, s := range h.schema {
		if s.Name == name {
			return i
		}
	}
	return -1
}

func fileSchema(ref TableRef, path string, mf *tomy_file.MappedFile) ([]ColumnSchema, error) {
	meta := mf.Schema()
	schema := make([]ColumnSchema, len(meta))
	for i, c := range meta {
		typ, err := types.ColumnTypeFromTomy(c.Type)
		if err != nil {
			return nil, err
		}
		schema[i] = ColumnSchema{Table: ref, Index: i, ID: i, Name: c.Name, Type: typ, Source: path}
	}
	return schema, nil
}

func (h *FileHandle) RefCount() int { return int(h.refCount.Load()) }
