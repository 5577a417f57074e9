package executor

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"tomydb/pkg/engine/types"
	"tomydb/pkg/metadata"
	"tomydb/pkg/tomy_file"
)

// CopyRequest loads a CSV file into a table.
type CopyRequest struct {
	TableName         string
	CsvFilePath       string
	CsvContainsHeader bool
	// ColumnsMapping names the table column of every CSV column; nil means
	// the CSV columns follow the table order.
	ColumnsMapping []string
	RowGroupSize   int
}

// Copy writes the CSV rows as a new data file under tablesDir and adds it
// to the table. An empty field is NULL for every type but VARCHAR; table
// columns the mapping leaves out are NULL.
func Copy(ctx context.Context, ms *metadata.Metastore, tablesDir string, req CopyRequest) (string, uint64, error) {
	tableDef, exists := ms.GetTable(req.TableName)
	if !exists {
		return "", 0, fmt.Errorf("%w: %s", metadata.ErrTableNotFound, req.TableName)
	}

	csvToTableMap, err := createCsvToTableMap(req.ColumnsMapping, tableDef.Columns)
	if err != nil {
		return "", 0, err
	}

	builders := make([]*columnBuilder, len(tableDef.Columns))
	for i, colDef := range tableDef.Columns {
		if builders[i], err = newColumnBuilder(colDef); err != nil {
			return "", 0, err
		}
	}

	f, err := os.Open(req.CsvFilePath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.ReuseRecord = true
	if req.CsvContainsHeader {
		if _, err := reader.Read(); err != nil {
			return "", 0, fmt.Errorf("failed to read CSV header: %w", err)
		}
	}

	var numRows uint64
	for {
		if numRows%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return "", 0, err
			}
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", 0, fmt.Errorf("failed to read CSV: %w", err)
		}
		if len(record) != len(csvToTableMap) {
			return "", 0, fmt.Errorf("row %d has %d columns, expected %d", numRows, len(record), len(csvToTableMap))
		}

		filled := make([]bool, len(builders))
		for csvColIdx, value := range record {
			tableColIdx := csvToTableMap[csvColIdx]
			if err := builders[tableColIdx].append(value); err != nil {
				return "", 0, fmt.Errorf("row %d, col %s: %w", numRows, tableDef.Columns[tableColIdx].Name, err)
			}
			filled[tableColIdx] = true
		}
		for i, b := range builders {
			if !filled[i] {
				b.appendNull()
			}
		}
		numRows++
	}
	if numRows == 0 {
		return "", 0, fmt.Errorf("empty CSV, no data imported")
	}

	table := &tomy_file.ColumnarTable{NumRows: numRows, Columns: make([]tomy_file.AnyColumn, len(builders))}
	for i, b := range builders {
		table.Columns[i] = b.build()
	}

	fileName := fmt.Sprintf("%s_%d.tomy", req.TableName, time.Now().UnixNano())
	outPath := filepath.Join(tablesDir, fileName)
	if err := tomy_file.NewWriter(req.RowGroupSize).Write(outPath, table); err != nil {
		os.Remove(outPath)
		return "", 0, fmt.Errorf("failed to serialize data: %w", err)
	}

	if err := ms.AddFile(req.TableName, outPath); err != nil {
		os.Remove(outPath)
		return "", 0, fmt.Errorf("copy into %s: %w", req.TableName, err)
	}
	return outPath, numRows, nil
}

func createCsvToTableMap(columnsMapping []string, schemaColumns []metadata.ColumnDef) (map[int]int, error) {
	csvToTableMap := make(map[int]int)
	if columnsMapping == nil {
		for i := range schemaColumns {
			csvToTableMap[i] = i
		}
		return csvToTableMap, nil
	}

	tableColToIndex := make(map[string]int)
	for i, col := range schemaColumns {
		tableColToIndex[col.Name] = i
	}

	used := make(map[int]bool)
	for csvIdx, colName := range columnsMapping {
		targetIdx, ok := tableColToIndex[colName]
		if !ok {
			return nil, fmt.Errorf("column %s from CSV mapping not found in table definition", colName)
		}
		if used[targetIdx] {
			return nil, fmt.Errorf("column %s is mapped twice", colName)
		}
		used[targetIdx] = true
		csvToTableMap[csvIdx] = targetIdx
	}
	return csvToTableMap, nil
}

// columnBuilder accumulates parsed CSV values of one table column.
type columnBuilder struct {
	def      metadata.ColumnDef
	fileType tomy_file.ColumnType
	ints     []int64
	floats   []float64
	bools    []bool
	strs     []string
	nulls    []bool
	anyNull  bool
}

func newColumnBuilder(def metadata.ColumnDef) (*columnBuilder, error) {
	fileType, err := types.ColumnTypeToTomy(def.Type)
	if err != nil {
		return nil, err
	}
	return &columnBuilder{def: def, fileType: fileType}, nil
}

func (b *columnBuilder) appendNull() {
	b.nulls = append(b.nulls, true)
	b.anyNull = true
	switch b.def.Type {
	case types.ColumnTypeFloat32, types.ColumnTypeFloat64:
		b.floats = append(b.floats, 0)
	case types.ColumnTypeBoolean:
		b.bools = append(b.bools, false)
	case types.ColumnTypeVarchar:
		b.strs = append(b.strs, "")
	default:
		b.ints = append(b.ints, 0)
	}
}

func (b *columnBuilder) append(value string) error {
	if value == "" && b.def.Type != types.ColumnTypeVarchar {
		b.appendNull()
		return nil
	}

	switch b.def.Type {
	case types.ColumnTypeInt64, types.ColumnTypeInt32:
		bitSize := 64
		if b.def.Type == types.ColumnTypeInt32 {
			bitSize = 32
		}
		v, err := strconv.ParseInt(strings.TrimSpace(value), 10, bitSize)
		if err != nil {
			return fmt.Errorf("invalid %s %q", b.def.Type, value)
		}
		b.ints = append(b.ints, v)
	case types.ColumnTypeDate:
		d, err := types.ParseDate(strings.TrimSpace(value))
		if err != nil {
			return err
		}
		b.ints = append(b.ints, int64(d))
	case types.ColumnTypeDateTime:
		d, err := types.ParseDateTime(strings.TrimSpace(value))
		if err != nil {
			return err
		}
		b.ints = append(b.ints, int64(d))
	case types.ColumnTypeDecimal:
		d, err := types.ParseDecimal(value)
		if err != nil {
			return err
		}
		b.ints = append(b.ints, int64(d))
	case types.ColumnTypeFloat32, types.ColumnTypeFloat64:
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q", b.def.Type, value)
		}
		b.floats = append(b.floats, v)
	case types.ColumnTypeBoolean:
		v, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("invalid BOOLEAN %q", value)
		}
		b.bools = append(b.bools, v)
	case types.ColumnTypeVarchar:
		b.strs = append(b.strs, value)
	}
	b.nulls = append(b.nulls, false)
	return nil
}

func (b *columnBuilder) build() tomy_file.AnyColumn {
	var nulls []bool
	if b.anyNull {
		nulls = b.nulls
	}
	switch b.fileType {
	case tomy_file.TypeFloat32, tomy_file.TypeFloat64:
		return &tomy_file.Float64Column{Name: b.def.Name, Type: b.fileType, Values: b.floats, Nulls: nulls}
	case tomy_file.TypeBoolean:
		return &tomy_file.BoolColumn{Name: b.def.Name, Values: b.bools, Nulls: nulls}
	case tomy_file.TypeVarchar:
		col := tomy_file.VarcharColumnFromStrings(b.def.Name, b.strs)
		col.Nulls = nulls
		return col
	}
	return &tomy_file.Int64Column{Name: b.def.Name, Type: b.fileType, Values: b.ints, Nulls: nulls}
}
