package types

import (
	"fmt"

	"tomydb/pkg/tomy_file"
)

// ColumnFromValues builds a column of the given type from native Go values;
// nil marks a null. Used for small, row-wise assembled columns (statistics,
// literals, aggregate results).
func ColumnFromValues(name string, typ ColumnType, values []any) (Column, error) {
	switch typ {
	case ColumnTypeInt32:
		return numericFromValues[int32](name, values)
	case ColumnTypeInt64:
		return numericFromValues[int64](name, values)
	case ColumnTypeFloat32:
		return numericFromValues[float32](name, values)
	case ColumnTypeFloat64:
		return numericFromValues[float64](name, values)
	case ColumnTypeDate:
		return numericFromValues[Date](name, values)
	case ColumnTypeDateTime:
		return numericFromValues[DateTime](name, values)
	case ColumnTypeDecimal:
		return numericFromValues[Decimal](name, values)
	case ColumnTypeBoolean:
		col := &BoolColumn{Name: name, Values: make([]bool, len(values)), Nulls: make([]bool, len(values))}
		for i, v := range values {
			if v == nil {
				col.Nulls[i] = true
				continue
			}
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("column %s: value %v (%T) is not BOOLEAN", name, v, v)
			}
			col.Values[i] = b
		}
		col.Nulls = normalizeNulls(col.Nulls)
		return col, nil
	case ColumnTypeVarchar:
		strs := make([]string, len(values))
		nulls := make([]bool, len(values))
		for i, v := range values {
			if v == nil {
				nulls[i] = true
				continue
			}
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("column %s: value %v (%T) is not VARCHAR", name, v, v)
			}
			strs[i] = s
		}
		col := VarcharColumnFromStrings(name, strs)
		col.Nulls = normalizeNulls(nulls)
		return col, nil
	}
	return nil, Unsupported("column builder", "type %s", typ)
}

func numericFromValues[T Numeric](name string, values []any) (Column, error) {
	col := &NumericColumn[T]{Name: name, Values: make([]T, len(values)), Nulls: make([]bool, len(values))}
	for i, v := range values {
		if v == nil {
			col.Nulls[i] = true
			continue
		}
		t, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("column %s: value %v (%T) is not %s", name, v, v, NumericTypeOf[T]())
		}
		col.Values[i] = t
	}
	col.Nulls = normalizeNulls(col.Nulls)
	return col, nil
}

// Repeat builds a column holding the same value n times.
func Repeat(name string, typ ColumnType, value any, n int) (Column, error) {
	values := make([]any, n)
	for i := range values {
		values[i] = value
	}
	return ColumnFromValues(name, typ, values)
}

func EmptyColumn(name string, typ ColumnType) Column {
	col, err := ColumnFromValues(name, typ, nil)
	if err != nil {
		panic(err)
	}
	return col
}

func ColumnTypeFromTomy(t tomy_file.ColumnType) (ColumnType, error) {
	switch t {
	case tomy_file.TypeInt64:
		return ColumnTypeInt64, nil
	case tomy_file.TypeVarchar:
		return ColumnTypeVarchar, nil
	case tomy_file.TypeInt32:
		return ColumnTypeInt32, nil
	case tomy_file.TypeFloat32:
		return ColumnTypeFloat32, nil
	case tomy_file.TypeFloat64:
		return ColumnTypeFloat64, nil
	case tomy_file.TypeBoolean:
		return ColumnTypeBoolean, nil
	case tomy_file.TypeDate:
		return ColumnTypeDate, nil
	case tomy_file.TypeDateTime:
		return ColumnTypeDateTime, nil
	case tomy_file.TypeDecimal:
		return ColumnTypeDecimal, nil
	}
	return -1, fmt.Errorf("couldn't resolve column type from tomy type: %v", t)
}

func ColumnTypeToTomy(t ColumnType) (tomy_file.ColumnType, error) {
	switch t {
	case ColumnTypeInt64:
		return tomy_file.TypeInt64, nil
	case ColumnTypeVarchar:
		return tomy_file.TypeVarchar, nil
	case ColumnTypeInt32:
		return tomy_file.TypeInt32, nil
	case ColumnTypeFloat32:
		return tomy_file.TypeFloat32, nil
	case ColumnTypeFloat64:
		return tomy_file.TypeFloat64, nil
	case ColumnTypeBoolean:
		return tomy_file.TypeBoolean, nil
	case ColumnTypeDate:
		return tomy_file.TypeDate, nil
	case ColumnTypeDateTime:
		return tomy_file.TypeDateTime, nil
	case ColumnTypeDecimal:
		return tomy_file.TypeDecimal, nil
	}
	return 0, fmt.Errorf("no file type for column type %s", t)
}

func ColumnFromTomy(tomyCol tomy_file.AnyColumn) (Column, error) {
	switch col := tomyCol.(type) {
	case *tomy_file.Int64Column:
		switch col.GetType() {
		case tomy_file.TypeInt64:
			return NewNumericColumn(col.Name, col.Values, col.Nulls), nil
		case tomy_file.TypeInt32:
			return NewNumericColumn(col.Name, convertSlice[int64, int32](col.Values), col.Nulls), nil
		case tomy_file.TypeDate:
			return NewNumericColumn(col.Name, convertSlice[int64, Date](col.Values), col.Nulls), nil
		case tomy_file.TypeDateTime:
			return NewNumericColumn(col.Name, convertSlice[int64, DateTime](col.Values), col.Nulls), nil
		case tomy_file.TypeDecimal:
			return NewNumericColumn(col.Name, convertSlice[int64, Decimal](col.Values), col.Nulls), nil
		}
	case *tomy_file.Float64Column:
		if col.GetType() == tomy_file.TypeFloat32 {
			return NewNumericColumn(col.Name, convertSlice[float64, float32](col.Values), col.Nulls), nil
		}
		return NewNumericColumn(col.Name, col.Values, col.Nulls), nil
	case *tomy_file.BoolColumn:
		return &BoolColumn{Name: col.Name, Values: col.Values, Nulls: normalizeNulls(col.Nulls)}, nil
	case *tomy_file.VarcharColumn:
		return &VarcharColumn{Name: col.Name, Offsets: col.Offsets, Data: col.Data, Nulls: normalizeNulls(col.Nulls)}, nil
	}
	return nil, fmt.Errorf("unsupported tomy column type: %T (%s)", tomyCol, tomyCol.GetType())
}

func convertSlice[From, To Numeric](in []From) []To {
	out := make([]To, len(in))
	for i, v := range in {
		out[i] = To(v)
	}
	return out
}

// StatValue converts a file statistic (int64, float64, bool or string) into
// the engine's value for the column type.
func StatValue(typ ColumnType, v any) any {
	if v == nil {
		return nil
	}
	switch typ {
	case ColumnTypeInt32:
		return int32(v.(int64))
	case ColumnTypeDate:
		return Date(v.(int64))
	case ColumnTypeDateTime:
		return DateTime(v.(int64))
	case ColumnTypeDecimal:
		return Decimal(v.(int64))
	case ColumnTypeFloat32:
		return float32(v.(float64))
	}
	return v
}
