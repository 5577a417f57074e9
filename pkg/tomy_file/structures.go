package tomy_file

import "io"

// In memory data structures

type AnyColumn interface {
	GetName() string
	GetType() ColumnType
	GetNumRows() int
	IsNull(i int) bool
	SerializeData(w io.Writer) (compressedSize int64, err error) // implemented in serialize.go
}

type ColumnarTable struct {
	NumRows uint64
	Columns []AnyColumn
}

// Int64Column holds every integer-backed type: INT32, INT64, DATE,
// DATETIME and DECIMAL. Type tells them apart.
type Int64Column struct {
	Name   string
	Type   ColumnType
	Values []int64
	Nulls  []bool // nil when the column has no nulls
}

func (c *Int64Column) GetName() string { return c.Name }

func (c *Int64Column) GetType() ColumnType {
	if c.Type == 0 {
		return TypeInt64
	}
	return c.Type
}

func (c *Int64Column) GetNumRows() int { return len(c.Values) }

func (c *Int64Column) IsNull(i int) bool { return c.Nulls != nil && c.Nulls[i] }

// Float64Column holds FLOAT32 and FLOAT64.
type Float64Column struct {
	Name   string
	Type   ColumnType
	Values []float64
	Nulls  []bool
}

func (c *Float64Column) GetName() string { return c.Name }

func (c *Float64Column) GetType() ColumnType {
	if c.Type == 0 {
		return TypeFloat64
	}
	return c.Type
}

func (c *Float64Column) GetNumRows() int { return len(c.Values) }

func (c *Float64Column) IsNull(i int) bool { return c.Nulls != nil && c.Nulls[i] }

type BoolColumn struct {
	Name   string
	Values []bool
	Nulls  []bool
}

func (c *BoolColumn) GetName() string     { return c.Name }
func (c *BoolColumn) GetType() ColumnType { return TypeBoolean }
func (c *BoolColumn) GetNumRows() int     { return len(c.Values) }
func (c *BoolColumn) IsNull(i int) bool   { return c.Nulls != nil && c.Nulls[i] }

// VarcharColumn stores start offsets into Data; the end of row i is the
// start of row i+1 (or len(Data) for the last row).
type VarcharColumn struct {
	Name    string
	Offsets []uint64
	Data    []byte
	Nulls   []bool
}

func (c *VarcharColumn) GetName() string     { return c.Name }
func (c *VarcharColumn) GetType() ColumnType { return TypeVarchar }
func (c *VarcharColumn) GetNumRows() int     { return len(c.Offsets) }
func (c *VarcharColumn) IsNull(i int) bool   { return c.Nulls != nil && c.Nulls[i] }

func (c *VarcharColumn) NextOffset(idx int) uint64 {
	if idx == len(c.Offsets)-1 {
		return uint64(len(c.Data))
	}
	return c.Offsets[idx+1]
}

func (c *VarcharColumn) Value(idx int) string {
	return string(c.Data[c.Offsets[idx]:c.NextOffset(idx)])
}

func VarcharColumnFromStrings(name string, values []string) *VarcharColumn {
	col := &VarcharColumn{Name: name, Offsets: make([]uint64, len(values))}
	for i, s := range values {
		col.Offsets[i] = uint64(len(col.Data))
		col.Data = append(col.Data, s...)
	}
	return col
}

// File format constants and structures

const (
	BeginMagic = "Tomy" // 4B
	EndMagic   = "EndT" // 4B

	DefaultRowGroupSize = 122880
)

type ColumnType byte

const (
	TypeInt64    ColumnType = 0x01
	TypeVarchar  ColumnType = 0x02
	TypeInt32    ColumnType = 0x03
	TypeFloat32  ColumnType = 0x04
	TypeFloat64  ColumnType = 0x05
	TypeBoolean  ColumnType = 0x06
	TypeDate     ColumnType = 0x07 // days since unix epoch
	TypeDateTime ColumnType = 0x08 // microseconds since unix epoch
	TypeDecimal  ColumnType = 0x09 // unscaled int64, scale 2
)

func (t ColumnType) String() string {
	switch t {
	case TypeInt64:
		return "INT64"
	case TypeVarchar:
		return "VARCHAR"
	case TypeInt32:
		return "INT32"
	case TypeFloat32:
		return "FLOAT32"
	case TypeFloat64:
		return "FLOAT64"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeDate:
		return "DATE"
	case TypeDateTime:
		return "DATETIME"
	case TypeDecimal:
		return "DECIMAL"
	}
	return "UNKNOWN"
}

func (t ColumnType) isIntegerFamily() bool {
	switch t {
	case TypeInt64, TypeInt32, TypeDate, TypeDateTime, TypeDecimal:
		return true
	}
	return false
}

func (t ColumnType) isFloatFamily() bool {
	return t == TypeFloat32 || t == TypeFloat64
}

type ColumnMetaData struct {
	Name string
	Type ColumnType
}

// Statistics of one column inside one row group. Min and Max hold an int64,
// float64, bool or string depending on the column type and are nil when
// every value is null.
type Statistics struct {
	NullCount     uint64
	DistinctCount uint64
	Min           any
	Max           any
}

func (s Statistics) HasMinMax() bool { return s.Min != nil && s.Max != nil }

type ChunkMetaData struct {
	DataOffset     int64
	CompressedSize int64
	Stats          Statistics
}

type RowGroupMetaData struct {
	NumRows uint64
	Chunks  []ChunkMetaData
}

type FileMetaData struct {
	NumRows   uint64 // assuming there won't be more than 2^64 rows, with a single column and (2^64)-1 rows this would result in a huuuuge file.
	Columns   []ColumnMetaData
	RowGroups []RowGroupMetaData
}
