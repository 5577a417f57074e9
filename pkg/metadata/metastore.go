package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

var (
	ErrTableExists   = errors.New("table already exists")
	ErrTableNotFound = errors.New("table does not exist")
)

const tablePrefix = "table/"

func tableKey(name string) []byte { return []byte(tablePrefix + name) }

// Metastore maps table names to schemas and data files. Every change is
// written to badger before it becomes visible.
type Metastore struct {
	db     *badger.DB
	logger *slog.Logger

	mu     sync.RWMutex
	tables map[string]*TableDef
}

// Open loads the catalog kept in dir. An empty dir keeps it in memory only.
func Open(dir string, logger *slog.Logger) (*Metastore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open metastore: %w", err)
	}

	m := &Metastore{
		db:     db,
		logger: logger.With("component", "metastore"),
		tables: make(map[string]*TableDef),
	}
	if err := m.load(); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func (m *Metastore) load() error {
	return m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(tablePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var st storedTable
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &st)
			})
			if err != nil {
				return fmt.Errorf("failed to decode %s: %w", it.Item().Key(), err)
			}
			table := &TableDef{ID: st.ID, Name: st.Name, Columns: st.Columns}
			for _, path := range st.Files {
				table.Files = append(table.Files, m.newEntry(path))
			}
			m.tables[st.Name] = table
		}
		m.logger.Debug("catalog loaded", "tables", len(m.tables))
		return nil
	})
}

func (m *Metastore) Close() error { return m.db.Close() }

func (m *Metastore) newEntry(path string) *FileEntry {
	return &FileEntry{Path: path, logger: m.logger}
}

// Assumes write lock is held
func (m *Metastore) save(table *TableDef) error {
	data, err := json.Marshal(storedTable{
		ID:      table.ID,
		Name:    table.Name,
		Columns: table.Columns,
		Files:   FileNames(table.Files),
	})
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(tableKey(table.Name), data)
	})
}

func (m *Metastore) CreateTable(name string, columns []ColumnDef) (string, error) {
	if name == "" {
		return "", errors.New("table name is empty")
	}
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if c.Name == "" {
			return "", fmt.Errorf("table %s has a column without a name", name)
		}
		if seen[c.Name] {
			return "", fmt.Errorf("table %s has column %s twice", name, c.Name)
		}
		seen[c.Name] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tables[name]; exists {
		return "", fmt.Errorf("%w: %s", ErrTableExists, name)
	}
	table := &TableDef{
		ID:      fmt.Sprintf("%s_%d", name, time.Now().UnixNano()),
		Name:    name,
		Columns: slices.Clone(columns),
	}
	if err := m.save(table); err != nil {
		return "", fmt.Errorf("failed to persist table %s: %w", name, err)
	}
	m.tables[name] = table
	m.logger.Info("table created", "table", name, "columns", len(columns))
	return table.ID, nil
}

// GetTable returns a copy of the table definition.
func (m *Metastore) GetTable(name string) (*TableDef, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[name]
	if !ok {
		return nil, false
	}
	return &TableDef{ID: t.ID, Name: t.Name, Columns: slices.Clone(t.Columns), Files: slices.Clone(t.Files)}, true
}

func (m *Metastore) ListTables() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.tables))
	for name := range m.tables {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DropTable forgets the table. Its files go away once the queries reading
// them finish.
func (m *Metastore) DropTable(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, exists := m.tables[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	err := m.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(tableKey(name))
	})
	if err != nil {
		return fmt.Errorf("failed to drop table %s: %w", name, err)
	}
	delete(m.tables, name)
	for _, f := range table.Files {
		f.MarkDeleted()
	}
	m.logger.Info("table dropped", "table", name)
	return nil
}

func (m *Metastore) AddFile(tableName string, filePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, exists := m.tables[tableName]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTableNotFound, tableName)
	}
	for _, f := range table.Files {
		if f.Path == filePath {
			return fmt.Errorf("file %s already belongs to table %s", filePath, tableName)
		}
	}

	table.Files = append(table.Files, m.newEntry(filePath))
	if err := m.save(table); err != nil {
		table.Files = table.Files[:len(table.Files)-1]
		return fmt.Errorf("failed to persist file of %s: %w", tableName, err)
	}
	m.logger.Debug("file added", "table", tableName, "file", filePath)
	return nil
}

// Snapshot pins the current files of a table; the caller releases it.
func (m *Metastore) Snapshot(tableName string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	table, exists := m.tables[tableName]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, tableName)
	}

	files := make([]*FileEntry, 0, len(table.Files))
	for _, f := range table.Files {
		f.IncRef()
		files = append(files, f)
	}
	return &Snapshot{
		Table:   table.Name,
		Columns: slices.Clone(table.Columns),
		Files:   files,
	}, nil
}
