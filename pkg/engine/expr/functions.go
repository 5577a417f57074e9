package expr

import (
	"bytes"
	"fmt"
	"strings"

	"tomydb/pkg/engine/types"
)

type FunctionName string

const (
	StrLen     FunctionName = "STRLEN"
	Concat     FunctionName = "CONCAT"
	Replace    FunctionName = "REPLACE"
	Upper      FunctionName = "UPPER"
	Lower      FunctionName = "LOWER"
	Year       FunctionName = "YEAR"
	StartsWith FunctionName = "STARTS_WITH"
)

func FunctionNameFromString(name string) (FunctionName, error) {
	switch fn := FunctionName(strings.ToUpper(name)); fn {
	case StrLen, Concat, Replace, Upper, Lower, Year, StartsWith:
		return fn, nil
	}
	return "", fmt.Errorf("unknown function: %s", name)
}

type FunctionExpr struct {
	Name      FunctionName
	Arguments []Expression
	resType   types.ColumnType
}

func NewFunction(name FunctionName, args []Expression) (*FunctionExpr, error) {
	var resType types.ColumnType

	allVarchar := func() error {
		for i, arg := range args {
			if arg.ResultType() != types.ColumnTypeVarchar {
				return fmt.Errorf("%s argument %d must be VARCHAR, got %s", name, i, arg.ResultType())
			}
		}
		return nil
	}

	switch name {
	case StrLen:
		if len(args) != 1 {
			return nil, fmt.Errorf("STRLEN expects 1 argument, got %d", len(args))
		}
		resType = types.ColumnTypeInt64

	case Concat:
		if len(args) < 2 {
			return nil, fmt.Errorf("CONCAT expects at least 2 arguments")
		}
		resType = types.ColumnTypeVarchar

	case Upper, Lower:
		if len(args) != 1 {
			return nil, fmt.Errorf("%s expects 1 VARCHAR argument", name)
		}
		resType = types.ColumnTypeVarchar

	case Replace:
		if len(args) != 3 {
			return nil, fmt.Errorf("REPLACE expects 3 arguments (source, old, new)")
		}
		resType = types.ColumnTypeVarchar

	case StartsWith:
		if len(args) != 2 {
			return nil, fmt.Errorf("STARTS_WITH expects 2 arguments (value, prefix)")
		}
		resType = types.ColumnTypeBoolean

	case Year:
		if len(args) != 1 || args[0].ResultType() != types.ColumnTypeDate {
			return nil, fmt.Errorf("YEAR expects 1 DATE argument")
		}
		return &FunctionExpr{Name: name, Arguments: args, resType: types.ColumnTypeInt32}, nil

	default:
		return nil, fmt.Errorf("unsupported function: %s", name)
	}

	if err := allVarchar(); err != nil {
		return nil, err
	}
	return &FunctionExpr{
		Name:      name,
		Arguments: args,
		resType:   resType,
	}, nil
}

func (e *FunctionExpr) ResultType() types.ColumnType { return e.resType }

func (e *FunctionExpr) GetUsedColumns() []int {
	var cols []int
	for _, arg := range e.Arguments {
		cols = append(cols, arg.GetUsedColumns()...)
	}
	return cols
}

func (e *FunctionExpr) String() string {
	args := make([]string, len(e.Arguments))
	for i, a := range e.Arguments {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", e.Name, strings.Join(args, ", "))
}

func (e *FunctionExpr) Evaluate(batch *Batch) (types.Column, error) {
	argColumns := make([]types.Column, len(e.Arguments))
	for i, argExpr := range e.Arguments {
		col, err := argExpr.Evaluate(batch)
		if err != nil {
			return nil, err
		}
		argColumns[i] = col
	}
	if err := types.CheckRowCounts(string(e.Name), batch.RowCount(), argColumns); err != nil {
		return nil, err
	}
	nulls := mergeNulls(argColumns...)

	switch e.Name {
	case StrLen:
		return e.evalStrLen(batch, argColumns, nulls)
	case Concat:
		return e.evalConcat(batch, argColumns, nulls)
	case Upper, Lower:
		return e.evalUpperLower(batch, argColumns, nulls)
	case Replace:
		return e.evalReplace(batch, argColumns, nulls)
	case StartsWith:
		return e.evalStartsWith(batch, argColumns, nulls)
	case Year:
		return e.evalYear(argColumns, nulls)
	default:
		return nil, fmt.Errorf("runtime error: function %s not implemented", e.Name)
	}
}

func (e *FunctionExpr) evalStrLen(batch *Batch, args []types.Column, nulls []bool) (types.Column, error) {
	col := args[0].(*types.VarcharColumn)
	res := make([]int64, batch.RowCount())
	for i := range res {
		res[i] = int64(col.NextOffset(i) - col.Offsets[i])
	}
	return types.NewNumericColumn("strlen", res, nulls), nil
}

func (e *FunctionExpr) evalConcat(batch *Batch, args []types.Column, nulls []bool) (types.Column, error) {
	var totalSize int
	for _, arg := range args {
		vc := arg.(*types.VarcharColumn)
		totalSize += len(vc.Data)
	}

	resCol := &types.VarcharColumn{
		Name:    "concat",
		Offsets: make([]uint64, batch.RowCount()),
		Data:    make([]byte, 0, totalSize),
		Nulls:   nulls,
	}

	for i := range resCol.Offsets {
		resCol.Offsets[i] = uint64(len(resCol.Data))
		if nulls != nil && nulls[i] {
			continue
		}
		for _, arg := range args {
			resCol.Data = append(resCol.Data, arg.(*types.VarcharColumn).Bytes(i)...)
		}
	}
	return resCol, nil
}

func (e *FunctionExpr) evalUpperLower(batch *Batch, args []types.Column, nulls []bool) (types.Column, error) {
	col := args[0].(*types.VarcharColumn)

	resCol := &types.VarcharColumn{
		Name:    strings.ToLower(string(e.Name)),
		Offsets: make([]uint64, batch.RowCount()),
		Data:    make([]byte, 0, len(col.Data)),
		Nulls:   nulls,
	}

	for i := range resCol.Offsets {
		resCol.Offsets[i] = uint64(len(resCol.Data))
		val := col.Bytes(i)
		if e.Name == Upper {
			resCol.Data = append(resCol.Data, bytes.ToUpper(val)...)
		} else {
			resCol.Data = append(resCol.Data, bytes.ToLower(val)...)
		}
	}
	return resCol, nil
}

func (e *FunctionExpr) evalReplace(batch *Batch, args []types.Column, nulls []bool) (types.Column, error) {
	srcCol := args[0].(*types.VarcharColumn)
	oldCol := args[1].(*types.VarcharColumn)
	newCol := args[2].(*types.VarcharColumn)
	rowCount := batch.RowCount()

	var totalSize int
	for i := range rowCount {
		srcVal, oldVal, newVal := srcCol.Bytes(i), oldCol.Bytes(i), newCol.Bytes(i)
		if len(oldVal) == 0 {
			totalSize += len(srcVal)
		} else {
			count := bytes.Count(srcVal, oldVal)
			totalSize += len(srcVal) + count*(len(newVal)-len(oldVal))
		}
	}

	resCol := &types.VarcharColumn{
		Name:    "replace",
		Offsets: make([]uint64, rowCount),
		Data:    make([]byte, 0, max(totalSize, 0)),
		Nulls:   nulls,
	}

	for i := range rowCount {
		resCol.Offsets[i] = uint64(len(resCol.Data))
		if nulls != nil && nulls[i] {
			continue
		}
		currentSrc, oldVal, newVal := srcCol.Bytes(i), oldCol.Bytes(i), newCol.Bytes(i)

		if len(oldVal) == 0 {
			resCol.Data = append(resCol.Data, currentSrc...)
			continue
		}
		for {
			idx := bytes.Index(currentSrc, oldVal)
			if idx == -1 {
				resCol.Data = append(resCol.Data, currentSrc...)
				break
			}
			resCol.Data = append(resCol.Data, currentSrc[:idx]...)
			resCol.Data = append(resCol.Data, newVal...)
			currentSrc = currentSrc[idx+len(oldVal):]
		}
	}
	return resCol, nil
}

func (e *FunctionExpr) evalStartsWith(batch *Batch, args []types.Column, nulls []bool) (types.Column, error) {
	valCol := args[0].(*types.VarcharColumn)
	prefixCol := args[1].(*types.VarcharColumn)
	res := make([]bool, batch.RowCount())
	for i := range res {
		res[i] = (nulls == nil || !nulls[i]) && bytes.HasPrefix(valCol.Bytes(i), prefixCol.Bytes(i))
	}
	return &types.BoolColumn{Name: "starts_with", Values: res, Nulls: nulls}, nil
}

func (e *FunctionExpr) evalYear(args []types.Column, nulls []bool) (types.Column, error) {
	col, ok := args[0].(*types.NumericColumn[types.Date])
	if !ok {
		return nil, &types.InvariantError{Operator: "YEAR", Expected: types.ColumnTypeDate, Found: args[0].GetType()}
	}
	res := make([]int32, len(col.Values))
	for i, d := range col.Values {
		if nulls == nil || !nulls[i] {
			res[i] = d.Year()
		}
	}
	return types.NewNumericColumn("year", res, nulls), nil
}
