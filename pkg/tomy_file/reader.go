package tomy_file

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

var ErrClosed = errors.New("tomy file is closed")

// MappedFile is a read-only view of a Tomy file. The footer is parsed once on
// open; chunks are decoded on demand straight from the mapping.
type MappedFile struct {
	path string
	meta *FileMetaData

	mu     sync.RWMutex
	data   []byte
	unmap  func() error
	closed bool
}

func OpenMapped(path string) (*MappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("can't open the file: %w", err)
	}
	// the mapping stays valid after the descriptor is closed
	defer f.Close()

	data, unmap, err := mapFile(f)
	if err != nil {
		return nil, err
	}

	meta, err := readMetadata(data)
	if err != nil {
		_ = unmap()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &MappedFile{path: path, meta: meta, data: data, unmap: unmap}, nil
}

func (m *MappedFile) Path() string { return m.path }

func (m *MappedFile) Metadata() *FileMetaData { return m.meta }

func (m *MappedFile) Schema() []ColumnMetaData { return m.meta.Columns }

func (m *MappedFile) NumRowGroups() int { return len(m.meta.RowGroups) }

func (m *MappedFile) RowGroupRows(rg int) uint64 { return m.meta.RowGroups[rg].NumRows }

func (m *MappedFile) Statistics(rg, col int) Statistics {
	return m.meta.RowGroups[rg].Chunks[col].Stats
}

func (m *MappedFile) ReadColumn(rg, col int) (AnyColumn, error) {
	if rg < 0 || rg >= len(m.meta.RowGroups) {
		return nil, fmt.Errorf("row group %d out of range [0, %d)", rg, len(m.meta.RowGroups))
	}
	if col < 0 || col >= len(m.meta.Columns) {
		return nil, fmt.Errorf("column %d out of range [0, %d)", col, len(m.meta.Columns))
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	group := m.meta.RowGroups[rg]
	chunk := group.Chunks[col]
	raw := m.data[chunk.DataOffset : chunk.DataOffset+chunk.CompressedSize]
	return decodeChunk(raw, m.meta.Columns[col], group.NumRows)
}

func (m *MappedFile) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.data = nil
	return m.unmap()
}
