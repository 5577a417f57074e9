package service

import (
	"context"
	"errors"
	"net/http"

	"tomydb/pkg/engine/types"
	"tomydb/pkg/metadata"
)

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type TableSchema struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

type ShallowTable struct {
	TableId string `json:"tableId"`
	Name    string `json:"name"`
}

type TableDetails struct {
	TableId string   `json:"tableId"`
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
	Files   []string `json:"files"`
}

// SchemaAPIService serves the table catalog.
type SchemaAPIService struct {
	metastore *metadata.Metastore
}

func NewSchemaAPIService(m *metadata.Metastore) *SchemaAPIService {
	return &SchemaAPIService{metastore: m}
}

// GetTables - list of tables with their ids
func (s *SchemaAPIService) GetTables(ctx context.Context) (ImplResponse, error) {
	tables := []ShallowTable{}
	for _, name := range s.metastore.ListTables() {
		if def, ok := s.metastore.GetTable(name); ok {
			tables = append(tables, ShallowTable{TableId: def.ID, Name: def.Name})
		}
	}
	return Response(http.StatusOK, tables), nil
}

// GetTable - schema and data files of one table
func (s *SchemaAPIService) GetTable(ctx context.Context, name string) (ImplResponse, error) {
	def, ok := s.metastore.GetTable(name)
	if !ok {
		return Response(http.StatusNotFound, Error{Message: "Table not found"}), nil
	}
	cols := make([]Column, len(def.Columns))
	for i, c := range def.Columns {
		cols[i] = Column{Name: c.Name, Type: c.Type.String()}
	}
	return Response(http.StatusOK, TableDetails{
		TableId: def.ID,
		Name:    def.Name,
		Columns: cols,
		Files:   metadata.FileNames(def.Files),
	}), nil
}

// DeleteTable - files still read by running queries are removed when those finish
func (s *SchemaAPIService) DeleteTable(ctx context.Context, name string) (ImplResponse, error) {
	err := s.metastore.DropTable(name)
	if errors.Is(err, metadata.ErrTableNotFound) {
		return Response(http.StatusNotFound, Error{Message: err.Error()}), nil
	}
	if err != nil {
		return ImplResponse{}, err
	}
	return Response(http.StatusOK, nil), nil
}

// CreateTable - every schema problem is reported at once
func (s *SchemaAPIService) CreateTable(ctx context.Context, schema TableSchema) (ImplResponse, error) {
	ve := &types.ValidationError{}
	if schema.Name == "" {
		ve.Add("Table name is empty", "name")
	}
	if len(schema.Columns) == 0 {
		ve.Add("Table must have at least one column", "columns")
	}

	cols := make([]metadata.ColumnDef, 0, len(schema.Columns))
	seen := make(map[string]bool)
	for _, c := range schema.Columns {
		typ, err := types.ColumnTypeFromString(c.Type)
		if err != nil {
			ve.Add("Invalid column type: "+c.Type, "column "+c.Name)
		}
		if seen[c.Name] {
			ve.Add("Duplicate column name: "+c.Name, "columns")
		}
		seen[c.Name] = true
		cols = append(cols, metadata.ColumnDef{Name: c.Name, Type: typ})
	}
	if ve.HasProblems() {
		return Response(http.StatusBadRequest, problems(ve)), nil
	}

	tableId, err := s.metastore.CreateTable(schema.Name, cols)
	if errors.Is(err, metadata.ErrTableExists) {
		return Response(http.StatusConflict, problems(err)), nil
	}
	if err != nil {
		return Response(http.StatusBadRequest, problems(err)), nil
	}
	return Response(http.StatusOK, ShallowTable{TableId: tableId, Name: schema.Name}), nil
}
