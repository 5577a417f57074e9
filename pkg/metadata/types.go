package metadata

import (
	"log/slog"
	"os"
	"sync"

	"tomydb/pkg/engine/types"
)

// FileEntry is a data file of a table. A file dropped from the catalog
// is removed from disk once no running query holds it.
type FileEntry struct {
	Path     string
	refCount int
	deleted  bool
	mu       sync.Mutex
	logger   *slog.Logger
}

func (f *FileEntry) IncRef() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refCount++
}

func (f *FileEntry) DecRef() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refCount--
	f.tryCleanup()
}

func (f *FileEntry) MarkDeleted() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = true
	f.tryCleanup()
}

func (f *FileEntry) RefCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refCount
}

// must be called with the mutex held
func (f *FileEntry) tryCleanup() {
	if f.deleted && f.refCount == 0 {
		err := os.Remove(f.Path)
		if err != nil && !os.IsNotExist(err) {
			f.logger.Error("failed to delete data file", "file", f.Path, "error", err)
			return
		}
		f.logger.Debug("deleted data file", "file", f.Path)
	}
}

func FileNames(files []*FileEntry) []string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Path
	}
	return names
}

type ColumnDef struct {
	Name string           `json:"name"`
	Type types.ColumnType `json:"type"`
}

type TableDef struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Columns []ColumnDef  `json:"columns"`
	Files   []*FileEntry `json:"-"`
}

// storedTable is the value kept in badger under tableKey(name).
type storedTable struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Columns []ColumnDef `json:"columns"`
	Files   []string    `json:"files"`
}

// Snapshot pins the files of a table for the duration of one query.
type Snapshot struct {
	Table   string
	Columns []ColumnDef
	Files   []*FileEntry
}

func (s *Snapshot) Paths() []string { return FileNames(s.Files) }

// Release unpins the files; it must be called exactly once.
func (s *Snapshot) Release() {
	for _, f := range s.Files {
		f.DecRef()
	}
	s.Files = nil
}
