package types

import (
	"fmt"
	"unsafe"
)

type ColumnType int

const (
	ColumnTypeInt64 ColumnType = iota
	ColumnTypeVarchar
	ColumnTypeBoolean
	ColumnTypeInt32
	ColumnTypeFloat32
	ColumnTypeFloat64
	ColumnTypeDate
	ColumnTypeDateTime
	ColumnTypeDecimal
)

var columnTypeNames = map[ColumnType]string{
	ColumnTypeInt64:    "INT64",
	ColumnTypeVarchar:  "VARCHAR",
	ColumnTypeBoolean:  "BOOLEAN",
	ColumnTypeInt32:    "INT32",
	ColumnTypeFloat32:  "FLOAT32",
	ColumnTypeFloat64:  "FLOAT64",
	ColumnTypeDate:     "DATE",
	ColumnTypeDateTime: "DATETIME",
	ColumnTypeDecimal:  "DECIMAL",
}

func (t ColumnType) String() string {
	if s, ok := columnTypeNames[t]; ok {
		return s
	}
	return "UNKNOWN"
}

func ColumnTypeFromString(s string) (ColumnType, error) {
	for t, name := range columnTypeNames {
		if name == s {
			return t, nil
		}
	}
	return -1, fmt.Errorf("unknown column type: %s", s)
}

func (t ColumnType) MarshalText() ([]byte, error) {
	if _, ok := columnTypeNames[t]; !ok {
		return nil, fmt.Errorf("unknown column type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *ColumnType) UnmarshalText(text []byte) error {
	parsed, err := ColumnTypeFromString(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t ColumnType) IsNumeric() bool {
	switch t {
	case ColumnTypeInt32, ColumnTypeInt64, ColumnTypeFloat32, ColumnTypeFloat64, ColumnTypeDecimal:
		return true
	}
	return false
}

// IsOrdered reports whether values of the type can be compared with < and >.
func (t ColumnType) IsOrdered() bool {
	return t != ColumnTypeBoolean
}

// Column is an immutable, named, typed array. The set of implementations is
// closed: *NumericColumn[T] for every Numeric T, *BoolColumn and *VarcharColumn.
type Column interface {
	GetName() string
	GetType() ColumnType
	Len() int
	IsNull(i int) bool
	HasNulls() bool
	GetValueAny(i int) any // nil for null
	SizeInBytes() uint64
	Gather(indices []int) Column
	Slice(start, end int) Column
	WithName(name string) Column

	compareAt(i int, other Column, j int) int
	appendKey(i int, buf []byte) []byte
	concat(others []Column) (Column, error)
	newVector(capacity int) Vector
}

type Numeric interface {
	~int32 | ~int64 | ~float32 | ~float64
}

type NumericColumn[T Numeric] struct {
	Name   string
	Values []T
	Nulls  []bool // nil when there are no nulls
}

func NewNumericColumn[T Numeric](name string, values []T, nulls []bool) *NumericColumn[T] {
	return &NumericColumn[T]{Name: name, Values: values, Nulls: normalizeNulls(nulls)}
}

func NewInt64Column(name string, values []int64) *NumericColumn[int64] {
	return NewNumericColumn(name, values, nil)
}

func NewInt32Column(name string, values []int32) *NumericColumn[int32] {
	return NewNumericColumn(name, values, nil)
}

func NewFloat64Column(name string, values []float64) *NumericColumn[float64] {
	return NewNumericColumn(name, values, nil)
}

func NewDateColumn(name string, values []Date) *NumericColumn[Date] {
	return NewNumericColumn(name, values, nil)
}

func NewDecimalColumn(name string, values []Decimal) *NumericColumn[Decimal] {
	return NewNumericColumn(name, values, nil)
}

func NumericTypeOf[T Numeric]() ColumnType {
	var zero T
	switch any(zero).(type) {
	case int32:
		return ColumnTypeInt32
	case int64:
		return ColumnTypeInt64
	case float32:
		return ColumnTypeFloat32
	case float64:
		return ColumnTypeFloat64
	case Date:
		return ColumnTypeDate
	case DateTime:
		return ColumnTypeDateTime
	case Decimal:
		return ColumnTypeDecimal
	}
	panic(fmt.Sprintf("unsupported numeric column element %T", zero))
}

func (c *NumericColumn[T]) GetName() string     { return c.Name }
func (c *NumericColumn[T]) GetType() ColumnType { return NumericTypeOf[T]() }
func (c *NumericColumn[T]) Len() int            { return len(c.Values) }
func (c *NumericColumn[T]) IsNull(i int) bool   { return c.Nulls != nil && c.Nulls[i] }
func (c *NumericColumn[T]) HasNulls() bool      { return c.Nulls != nil }

func (c *NumericColumn[T]) GetValueAny(i int) any {
	if c.IsNull(i) {
		return nil
	}
	return c.Values[i]
}

func (c *NumericColumn[T]) SizeInBytes() uint64 {
	var zero T
	return uint64(len(c.Values))*uint64(unsafe.Sizeof(zero)) + uint64(len(c.Nulls))
}

func (c *NumericColumn[T]) Gather(indices []int) Column {
	return &NumericColumn[T]{Name: c.Name, Values: gather(c.Values, indices), Nulls: gatherNulls(c.Nulls, indices)}
}

func (c *NumericColumn[T]) Slice(start, end int) Column {
	values := make([]T, end-start)
	copy(values, c.Values[start:end])
	return &NumericColumn[T]{Name: c.Name, Values: values, Nulls: sliceNulls(c.Nulls, start, end)}
}

func (c *NumericColumn[T]) WithName(name string) Column {
	return &NumericColumn[T]{Name: name, Values: c.Values, Nulls: c.Nulls}
}

type BoolColumn struct {
	Name   string
	Values []bool
	Nulls  []bool
}

func NewBooleanColumn(name string, values []bool) *BoolColumn {
	return &BoolColumn{Name: name, Values: values}
}

func (c *BoolColumn) GetName() string     { return c.Name }
func (c *BoolColumn) GetType() ColumnType { return ColumnTypeBoolean }
func (c *BoolColumn) Len() int            { return len(c.Values) }
func (c *BoolColumn) IsNull(i int) bool   { return c.Nulls != nil && c.Nulls[i] }
func (c *BoolColumn) HasNulls() bool      { return c.Nulls != nil }

func (c *BoolColumn) GetValueAny(i int) any {
	if c.IsNull(i) {
		return nil
	}
	return c.Values[i]
}

func (c *BoolColumn) SizeInBytes() uint64 { return uint64(len(c.Values) + len(c.Nulls)) }

func (c *BoolColumn) Gather(indices []int) Column {
	return &BoolColumn{Name: c.Name, Values: gather(c.Values, indices), Nulls: gatherNulls(c.Nulls, indices)}
}

func (c *BoolColumn) Slice(start, end int) Column {
	values := make([]bool, end-start)
	copy(values, c.Values[start:end])
	return &BoolColumn{Name: c.Name, Values: values, Nulls: sliceNulls(c.Nulls, start, end)}
}

func (c *BoolColumn) WithName(name string) Column {
	return &BoolColumn{Name: name, Values: c.Values, Nulls: c.Nulls}
}

// Truthy is true only for non-null true values.
func (c *BoolColumn) Truthy(i int) bool { return c.Values[i] && !c.IsNull(i) }

type VarcharColumn struct {
	Name    string
	Offsets []uint64
	Data    []byte
	Nulls   []bool
}

func (c *VarcharColumn) GetName() string     { return c.Name }
func (c *VarcharColumn) GetType() ColumnType { return ColumnTypeVarchar }
func (c *VarcharColumn) Len() int            { return len(c.Offsets) }
func (c *VarcharColumn) IsNull(i int) bool   { return c.Nulls != nil && c.Nulls[i] }
func (c *VarcharColumn) HasNulls() bool      { return c.Nulls != nil }

func (c *VarcharColumn) GetValueAny(i int) any {
	if c.IsNull(i) {
		return nil
	}
	return c.Value(i)
}

func (c *VarcharColumn) SizeInBytes() uint64 {
	return uint64(len(c.Offsets)*8 + len(c.Data) + len(c.Nulls))
}

func (c *VarcharColumn) NextOffset(idx int) uint64 {
	if idx == len(c.Offsets)-1 {
		return uint64(len(c.Data))
	}
	return c.Offsets[idx+1]
}

func (c *VarcharColumn) Bytes(idx int) []byte {
	return c.Data[c.Offsets[idx]:c.NextOffset(idx)]
}

func (c *VarcharColumn) Value(idx int) string {
	return string(c.Bytes(idx))
}

func (c *VarcharColumn) GetValuesAsString() []string {
	res := make([]string, len(c.Offsets))
	for i := range res {
		res[i] = c.Value(i)
	}
	return res
}

func (c *VarcharColumn) Gather(indices []int) Column {
	totalDataSize := 0
	for _, idx := range indices {
		totalDataSize += int(c.NextOffset(idx) - c.Offsets[idx])
	}

	newData := make([]byte, 0, totalDataSize)
	newOffsets := make([]uint64, len(indices))
	for j, idx := range indices {
		newOffsets[j] = uint64(len(newData))
		newData = append(newData, c.Bytes(idx)...)
	}
	return &VarcharColumn{Name: c.Name, Offsets: newOffsets, Data: newData, Nulls: gatherNulls(c.Nulls, indices)}
}

func (c *VarcharColumn) Slice(start, end int) Column {
	if start == end {
		return &VarcharColumn{Name: c.Name, Offsets: []uint64{}}
	}
	startByte := c.Offsets[start]
	endByte := c.NextOffset(end - 1)

	newData := make([]byte, endByte-startByte)
	copy(newData, c.Data[startByte:endByte])

	newOffsets := make([]uint64, end-start)
	for j := range newOffsets {
		newOffsets[j] = c.Offsets[start+j] - startByte
	}
	return &VarcharColumn{Name: c.Name, Offsets: newOffsets, Data: newData, Nulls: sliceNulls(c.Nulls, start, end)}
}

func (c *VarcharColumn) WithName(name string) Column {
	return &VarcharColumn{Name: name, Offsets: c.Offsets, Data: c.Data, Nulls: c.Nulls}
}

func VarcharColumnFromStrings(name string, values []string) *VarcharColumn {
	totalSize := 0
	for _, str := range values {
		totalSize += len(str)
	}
	dataBytes := make([]byte, 0, totalSize)
	offsets := make([]uint64, len(values))
	for i, str := range values {
		offsets[i] = uint64(len(dataBytes))
		dataBytes = append(dataBytes, str...)
	}
	return &VarcharColumn{Name: name, Offsets: offsets, Data: dataBytes}
}

func gather[T any](slice []T, indices []int) []T {
	newVals := make([]T, len(indices))
	for j, idx := range indices {
		newVals[j] = slice[idx]
	}
	return newVals
}

func gatherNulls(nulls []bool, indices []int) []bool {
	if nulls == nil {
		return nil
	}
	return normalizeNulls(gather(nulls, indices))
}

func sliceNulls(nulls []bool, start, end int) []bool {
	if nulls == nil {
		return nil
	}
	out := make([]bool, end-start)
	copy(out, nulls[start:end])
	return normalizeNulls(out)
}

// normalizeNulls drops a validity mask without any null in it.
func normalizeNulls(nulls []bool) []bool {
	for _, n := range nulls {
		if n {
			return nulls
		}
	}
	return nil
}
