package expr

import (
	"fmt"

	"tomydb/pkg/engine/types"
)

type UnaryOperator int

const (
	Not UnaryOperator = iota
	Minus
)

func (o UnaryOperator) String() string {
	var toString = map[UnaryOperator]string{
		Not:   "NOT",
		Minus: "MINUS",
	}
	stringVal, ok := toString[o]
	if !ok {
		return "UNKNOWN"
	}
	return stringVal
}

func UnaryOpFromString(op string) (UnaryOperator, error) {
	var fromString = map[string]UnaryOperator{
		"NOT":   Not,
		"MINUS": Minus,
	}
	operator, ok := fromString[op]
	if !ok {
		return 0, fmt.Errorf("unknown unary operator: %s", op)
	}
	return operator, nil
}

type UnaryOpExpr struct {
	Operand  Expression
	Operator UnaryOperator
	resType  types.ColumnType
}

func NewUnaryOp(operand Expression, op UnaryOperator) (*UnaryOpExpr, error) {
	ot := operand.ResultType()

	switch op {
	case Not:
		if ot != types.ColumnTypeBoolean {
			return nil, fmt.Errorf("NOT operator requires BOOLEAN, got %s", ot)
		}
	case Minus:
		if !ot.IsNumeric() {
			return nil, fmt.Errorf("MINUS operator requires a numeric operand, got %s", ot)
		}
	default:
		return nil, fmt.Errorf("unsupported unary operator: %s", op)
	}

	return &UnaryOpExpr{
		Operand:  operand,
		Operator: op,
		resType:  ot,
	}, nil
}

func (e *UnaryOpExpr) ResultType() types.ColumnType { return e.resType }

func (e *UnaryOpExpr) GetUsedColumns() []int {
	return e.Operand.GetUsedColumns()
}

func (e *UnaryOpExpr) String() string {
	return fmt.Sprintf("%s(%s)", e.Operator, e.Operand)
}

func (e *UnaryOpExpr) Evaluate(batch *Batch) (types.Column, error) {
	col, err := e.Operand.Evaluate(batch)
	if err != nil {
		return nil, err
	}

	switch e.Operator {
	case Not:
		bCol, ok := col.(*types.BoolColumn)
		if !ok {
			return nil, fmt.Errorf("operand of NOT is %T, not a BoolColumn", col)
		}
		// NOT NULL stays NULL, the validity mask is shared.
		res := make([]bool, len(bCol.Values))
		for i, v := range bCol.Values {
			res[i] = !v && !bCol.IsNull(i)
		}
		return &types.BoolColumn{Name: "result", Values: res, Nulls: bCol.Nulls}, nil

	case Minus:
		switch c := col.(type) {
		case *types.NumericColumn[int32]:
			return negate(c), nil
		case *types.NumericColumn[int64]:
			return negate(c), nil
		case *types.NumericColumn[float32]:
			return negate(c), nil
		case *types.NumericColumn[float64]:
			return negate(c), nil
		case *types.NumericColumn[types.Decimal]:
			return negate(c), nil
		}
		return nil, types.Unsupported("MINUS", "operand type %s", col.GetType())
	}

	return nil, fmt.Errorf("execution for %s not implemented", e.Operator)
}

func negate[T types.Numeric](c *types.NumericColumn[T]) types.Column {
	res := make([]T, len(c.Values))
	for i, v := range c.Values {
		res[i] = -v
	}
	return types.NewNumericColumn("result", res, c.Nulls)
}
