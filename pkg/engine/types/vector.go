package types

import (
	"bytes"
	"cmp"
	"fmt"
	"slices"
	"unsafe"
)

// CompareAt orders a[i] against b[j]; both columns must have the same type.
// Nulls sort before every value and equal each other.
func CompareAt(a Column, i int, b Column, j int) int {
	an, bn := a.IsNull(i), b.IsNull(j)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	}
	return a.compareAt(i, b, j)
}

func EqualAt(a Column, i int, b Column, j int) bool {
	return CompareAt(a, i, b, j) == 0
}

// AppendKeyBytes appends the raw bytes of a non-null value. Strings are cut
// at maxString bytes; callers only use the bytes for hashing.
func AppendKeyBytes(c Column, i int, buf []byte, maxString int) []byte {
	if v, ok := c.(*VarcharColumn); ok {
		b := v.Bytes(i)
		if len(b) > maxString {
			b = b[:maxString]
		}
		return append(buf, b...)
	}
	return c.appendKey(i, buf)
}

func Concat(cols []Column) (Column, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("concat of zero columns")
	}
	if len(cols) == 1 {
		return cols[0], nil
	}
	for _, c := range cols[1:] {
		if c.GetType() != cols[0].GetType() {
			return nil, &InvariantError{Operator: "concat", Expected: cols[0].GetType(), Found: c.GetType()}
		}
	}
	return cols[0].concat(cols[1:])
}

func MaskToIndices(mask *BoolColumn) []int {
	indices := make([]int, 0, mask.Len())
	for i := range mask.Values {
		if mask.Truthy(i) {
			indices = append(indices, i)
		}
	}
	return indices
}

func (c *NumericColumn[T]) compareAt(i int, other Column, j int) int {
	return cmp.Compare(c.Values[i], other.(*NumericColumn[T]).Values[j])
}

func (c *BoolColumn) compareAt(i int, other Column, j int) int {
	return compareBool(c.Values[i], other.(*BoolColumn).Values[j])
}

func (c *VarcharColumn) compareAt(i int, other Column, j int) int {
	return bytes.Compare(c.Bytes(i), other.(*VarcharColumn).Bytes(j))
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

func (c *NumericColumn[T]) appendKey(i int, buf []byte) []byte {
	v := c.Values[i]
	if v == 0 {
		v = 0 // folds -0.0 into +0.0
	}
	return append(buf, unsafe.Slice((*byte)(unsafe.Pointer(&v)), unsafe.Sizeof(v))...)
}

func (c *BoolColumn) appendKey(i int, buf []byte) []byte {
	if c.Values[i] {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func (c *VarcharColumn) appendKey(i int, buf []byte) []byte {
	return append(buf, c.Bytes(i)...)
}

func (c *NumericColumn[T]) concat(others []Column) (Column, error) {
	out := &NumericColumn[T]{Name: c.Name, Values: slices.Clone(c.Values)}
	for _, o := range others {
		out.Values = append(out.Values, o.(*NumericColumn[T]).Values...)
	}
	out.Nulls = concatNulls(append([]Column{c}, others...))
	return out, nil
}

func (c *BoolColumn) concat(others []Column) (Column, error) {
	out := &BoolColumn{Name: c.Name, Values: slices.Clone(c.Values)}
	for _, o := range others {
		out.Values = append(out.Values, o.(*BoolColumn).Values...)
	}
	out.Nulls = concatNulls(append([]Column{c}, others...))
	return out, nil
}

func (c *VarcharColumn) concat(others []Column) (Column, error) {
	all := append([]Column{c}, others...)
	totalRows, totalData := 0, 0
	for _, o := range all {
		totalRows += o.Len()
		totalData += len(o.(*VarcharColumn).Data)
	}
	out := &VarcharColumn{
		Name:    c.Name,
		Offsets: make([]uint64, 0, totalRows),
		Data:    make([]byte, 0, totalData),
	}
	for _, o := range all {
		vc := o.(*VarcharColumn)
		base := uint64(len(out.Data))
		for _, off := range vc.Offsets {
			out.Offsets = append(out.Offsets, base+off)
		}
		out.Data = append(out.Data, vc.Data...)
	}
	out.Nulls = concatNulls(all)
	return out, nil
}

func concatNulls(cols []Column) []bool {
	hasAny := false
	total := 0
	for _, c := range cols {
		hasAny = hasAny || c.HasNulls()
		total += c.Len()
	}
	if !hasAny {
		return nil
	}
	nulls := make([]bool, 0, total)
	for _, c := range cols {
		for i := range c.Len() {
			nulls = append(nulls, c.IsNull(i))
		}
	}
	return nulls
}

// Vector is a mutable typed array used by structures that keep rows of
// columns in parallel slots (hash table buckets, top-k entries). Values are
// copied in from a Column of the same type.
type Vector interface {
	Type() ColumnType
	Len() int
	Append(src Column, j int)
	Set(i int, src Column, j int)
	Insert(i int, src Column, j int)
	Truncate(n int)
	Compare(i int, src Column, j int) int // nulls first
	Column(name string) Column
}

// NewVector builds an empty vector holding values of the same type as c.
func NewVector(c Column, capacity int) Vector { return c.newVector(capacity) }

// NewVectorOfSize builds a vector of n null slots.
func NewVectorOfSize(c Column, n int) Vector {
	v := c.newVector(n)
	v.(interface{ grow(int) }).grow(n)
	return v
}

func (c *NumericColumn[T]) newVector(capacity int) Vector {
	return &sliceVector[T]{
		typ:    c.GetType(),
		values: make([]T, 0, capacity),
		nulls:  make([]bool, 0, capacity),
		get:    func(src Column, j int) T { return src.(*NumericColumn[T]).Values[j] },
		cmp:    cmp.Compare[T],
		build: func(name string, values []T, nulls []bool) Column {
			return &NumericColumn[T]{Name: name, Values: values, Nulls: nulls}
		},
	}
}

func (c *BoolColumn) newVector(capacity int) Vector {
	return &sliceVector[bool]{
		typ:    ColumnTypeBoolean,
		values: make([]bool, 0, capacity),
		nulls:  make([]bool, 0, capacity),
		get:    func(src Column, j int) bool { return src.(*BoolColumn).Values[j] },
		cmp:    compareBool,
		build: func(name string, values []bool, nulls []bool) Column {
			return &BoolColumn{Name: name, Values: values, Nulls: nulls}
		},
	}
}

func (c *VarcharColumn) newVector(capacity int) Vector {
	return &sliceVector[string]{
		typ:    ColumnTypeVarchar,
		values: make([]string, 0, capacity),
		nulls:  make([]bool, 0, capacity),
		get:    func(src Column, j int) string { return src.(*VarcharColumn).Value(j) },
		cmp:    cmp.Compare[string],
		build: func(name string, values []string, nulls []bool) Column {
			col := VarcharColumnFromStrings(name, values)
			col.Nulls = nulls
			return col
		},
	}
}

type sliceVector[E any] struct {
	typ    ColumnType
	values []E
	nulls  []bool
	get    func(src Column, j int) E
	cmp    func(a, b E) int
	build  func(name string, values []E, nulls []bool) Column
}

func (v *sliceVector[E]) Type() ColumnType { return v.typ }
func (v *sliceVector[E]) Len() int         { return len(v.values) }

func (v *sliceVector[E]) grow(n int) {
	var zero E
	for range n {
		v.values = append(v.values, zero)
		v.nulls = append(v.nulls, true)
	}
}

func (v *sliceVector[E]) read(src Column, j int) (E, bool) {
	if src.IsNull(j) {
		var zero E
		return zero, true
	}
	return v.get(src, j), false
}

func (v *sliceVector[E]) Append(src Column, j int) {
	val, null := v.read(src, j)
	v.values = append(v.values, val)
	v.nulls = append(v.nulls, null)
}

func (v *sliceVector[E]) Set(i int, src Column, j int) {
	v.values[i], v.nulls[i] = v.read(src, j)
}

func (v *sliceVector[E]) Insert(i int, src Column, j int) {
	val, null := v.read(src, j)
	v.values = slices.Insert(v.values, i, val)
	v.nulls = slices.Insert(v.nulls, i, null)
}

func (v *sliceVector[E]) Truncate(n int) {
	v.values = v.values[:n]
	v.nulls = v.nulls[:n]
}

func (v *sliceVector[E]) Compare(i int, src Column, j int) int {
	sn := src.IsNull(j)
	switch {
	case v.nulls[i] && sn:
		return 0
	case v.nulls[i]:
		return -1
	case sn:
		return 1
	}
	return v.cmp(v.values[i], v.get(src, j))
}

// Column returns a snapshot; later writes to the vector do not show through.
func (v *sliceVector[E]) Column(name string) Column {
	return v.build(name, slices.Clone(v.values), normalizeNulls(slices.Clone(v.nulls)))
}
