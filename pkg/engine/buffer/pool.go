package buffer

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/ristretto"

	"tomydb/pkg/engine/types"
	"tomydb/pkg/tomy_file"
)

const DefaultCacheBytes = 256 << 20

type Options struct {
	// CacheBytes bounds the decoded file chunks kept in memory. Zero means
	// DefaultCacheBytes, negative disables the cache.
	CacheBytes int64
	Logger     *slog.Logger
}

// Pool owns every column the engine reads or produces. Files are opened once
// per path and shared; memory tables are private to the operator that
// created them.
type Pool struct {
	logger *slog.Logger
	cache  *ristretto.Cache

	mu          sync.RWMutex
	byPath      map[string]*FileHandle
	slots       []*FileHandle
	generations []uint32
	freeSlots   []uint32

	tablesMu    sync.RWMutex
	tables      map[uint32]*MemoryTable
	nextTableID atomic.Uint32

	nextRowGroupID atomic.Int64
}

func NewPool(opts Options) (*Pool, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		logger: logger.With("component", "buffer_pool"),
		byPath: make(map[string]*FileHandle),
		tables: make(map[uint32]*MemoryTable),
	}

	if opts.CacheBytes >= 0 {
		maxCost := opts.CacheBytes
		if maxCost == 0 {
			maxCost = DefaultCacheBytes
		}
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters:        1 << 16,
			MaxCost:            maxCost,
			BufferItems:        64,
			IgnoreInternalCost: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create column cache: %w", err)
		}
		p.cache = cache
	}
	return p, nil
}

// Open maps the file on the first call for a path and hands out the shared
// handle afterwards, counting references.
func (p *Pool) Open(path string) (*FileHandle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	p.mu.RLock()
	if h, ok := p.byPath[abs]; ok {
		h.refCount.Add(1)
		p.mu.RUnlock()
		return h, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.byPath[abs]; ok {
		h.refCount.Add(1)
		return h, nil
	}

	mf, err := tomy_file.OpenMapped(abs)
	if err != nil {
		return nil, err
	}

	var slot uint32
	if n := len(p.freeSlots); n > 0 {
		slot = p.freeSlots[n-1]
		p.freeSlots = p.freeSlots[:n-1]
	} else {
		slot = uint32(len(p.slots))
		p.slots = append(p.slots, nil)
		p.generations = append(p.generations, 0)
	}
	ref := TableRef{Kind: FileTableKind, ID: slot, Generation: p.generations[slot]}

	schema, err := fileSchema(ref, abs, mf)
	if err != nil {
		_ = mf.Close()
		p.freeSlots = append(p.freeSlots, slot)
		return nil, err
	}

	h := &FileHandle{Path: abs, Ref: ref, file: mf, schema: schema}
	h.refCount.Store(1)
	p.byPath[abs] = h
	p.slots[slot] = h
	p.logger.Debug("opened file", "path", abs, "table", ref.String(), "row_groups", mf.NumRowGroups())
	return h, nil
}

// Release drops one reference. The last one unmaps the file; refs into it
// resolve to ErrNotFound from then on.
func (p *Pool) Release(h *FileHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.byPath[h.Path] != h {
		return addrErr("release", h.Ref, ErrNotFound, "")
	}
	if h.refCount.Add(-1) > 0 {
		return nil
	}

	delete(p.byPath, h.Path)
	p.slots[h.Ref.ID] = nil
	p.generations[h.Ref.ID]++
	p.freeSlots = append(p.freeSlots, h.Ref.ID)
	if h.statsTable != nil {
		p.DropMemoryTable(h.statsTable)
	}
	p.logger.Debug("released file", "path", h.Path, "table", h.Ref.String())
	return h.file.Close()
}

func (p *Pool) resolveFile(ref TableRef) (*FileHandle, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if int(ref.ID) >= len(p.slots) || p.generations[ref.ID] != ref.Generation {
		return nil, false
	}
	h := p.slots[ref.ID]
	return h, h != nil
}

func (p *Pool) OpenMemoryTable(columns []ColumnSchema) *MemoryTable {
	ref := TableRef{Kind: MemoryTableKind, ID: p.nextTableID.Add(1)}
	t := &MemoryTable{
		Ref:       ref,
		pool:      p,
		schema:    cloneSchema(ref, columns),
		rowGroups: make(map[int64]*memoryRowGroup),
	}
	p.tablesMu.Lock()
	p.tables[ref.ID] = t
	p.tablesMu.Unlock()
	return t
}

// DropMemoryTable forgets the table; its columns become garbage once no
// batch references them.
func (p *Pool) DropMemoryTable(t *MemoryTable) {
	p.tablesMu.Lock()
	delete(p.tables, t.Ref.ID)
	p.tablesMu.Unlock()
}

func (p *Pool) MemoryTable(ref TableRef) (*MemoryTable, error) {
	p.tablesMu.RLock()
	defer p.tablesMu.RUnlock()
	t, ok := p.tables[ref.ID]
	if !ok || ref.Kind != MemoryTableKind {
		return nil, addrErr("lookup", ref, ErrNotFound, "")
	}
	return t, nil
}

func (p *Pool) GetColumn(ref ColumnRef) (types.Column, error) {
	if ref.Table.Kind == MemoryTableKind {
		t, err := p.MemoryTable(ref.Table)
		if err != nil {
			return nil, err
		}
		return t.column(ref)
	}

	h, ok := p.resolveFile(ref.Table)
	if !ok {
		return nil, addrErr("read", ref, ErrNotFound, "file is not open")
	}
	if ref.RowGroup < 0 || ref.RowGroup >= int64(h.NumRowGroups()) {
		return nil, addrErr("read", ref, ErrNotFound, "file has %d row groups", h.NumRowGroups())
	}
	if ref.Column < 0 || ref.Column >= len(h.schema) {
		return nil, addrErr("read", ref, ErrNotFound, "file has %d columns", len(h.schema))
	}

	key := cacheKey(ref)
	if p.cache != nil {
		if v, ok := p.cache.Get(key); ok {
			return v.(types.Column), nil
		}
	}

	raw, err := h.file.ReadColumn(int(ref.RowGroup), ref.Column)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	col, err := types.ColumnFromTomy(raw)
	if err != nil {
		return nil, err
	}
	if p.cache != nil {
		p.cache.Set(key, col, int64(col.SizeInBytes()))
	}
	return col, nil
}

func cacheKey(ref ColumnRef) string {
	return fmt.Sprintf("%d.%d/%d/%d", ref.Table.ID, ref.Table.Generation, ref.RowGroup, ref.Column)
}

// WriteColumn stores a column into a memory table cell.
func (p *Pool) WriteColumn(ref ColumnRef, col types.Column) error {
	if ref.Table.Kind != MemoryTableKind {
		return addrErr("write", ref, ErrConflict, "files are read-only")
	}
	t, err := p.MemoryTable(ref.Table)
	if err != nil {
		return err
	}
	return t.WriteColumn(ref, col)
}

// Columns resolves every column of a batch.
func (p *Pool) Columns(rg *RowGroup) ([]types.Column, error) {
	cols := make([]types.Column, len(rg.Columns))
	for i, ref := range rg.Columns {
		col, err := p.GetColumn(ref)
		if err != nil {
			return nil, err
		}
		if col.Len() != rg.RowCount {
			return nil, &types.InvariantError{
				Operator: "row group " + rg.Ref.String(),
				Expected: fmt.Sprintf("%d rows", rg.RowCount),
				Found:    fmt.Sprintf("%d rows in %s", col.Len(), ref),
			}
		}
		cols[i] = col
	}
	return cols, nil
}

// GatherRows assembles output column `column` of the rows in refs, in refs
// order. The rows may come from any number of row groups; rowGroups maps each
// of them to the batch it was read from, since a batch's column ordinals need
// not match the table's. Row groups missing from the map use table ordinals.
func (p *Pool) GatherRows(rowGroups map[RowGroupRef]*RowGroup, refs []RowRef, column int) (types.Column, error) {
	var groups []RowGroupRef
	perGroup := make(map[RowGroupRef][]int)
	for _, r := range refs {
		if _, ok := perGroup[r.RowGroup]; !ok {
			groups = append(groups, r.RowGroup)
		}
		perGroup[r.RowGroup] = append(perGroup[r.RowGroup], r.Offset)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("gather of zero rows has no type")
	}

	base := make(map[RowGroupRef]int, len(groups))
	parts := make([]types.Column, len(groups))
	total := 0
	for i, g := range groups {
		ref := g.Column(column)
		if rg, ok := rowGroups[g]; ok {
			if column < 0 || column >= len(rg.Columns) {
				return nil, addrErr("gather", g, ErrNotFound, "batch has %d columns", len(rg.Columns))
			}
			ref = rg.Columns[column]
		}
		col, err := p.GetColumn(ref)
		if err != nil {
			return nil, err
		}
		parts[i] = col.Gather(perGroup[g])
		base[g] = total
		total += len(perGroup[g])
	}

	all, err := types.Concat(parts)
	if err != nil {
		return nil, err
	}
	if len(groups) == 1 {
		return all, nil
	}

	seen := make(map[RowGroupRef]int, len(groups))
	perm := make([]int, len(refs))
	for i, r := range refs {
		perm[i] = base[r.RowGroup] + seen[r.RowGroup]
		seen[r.RowGroup]++
	}
	return all.Gather(perm), nil
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for path, h := range p.byPath {
		if err := h.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.byPath, path)
		p.slots[h.Ref.ID] = nil
		p.generations[h.Ref.ID]++
	}
	if p.cache != nil {
		p.cache.Close()
	}
	return firstErr
}
