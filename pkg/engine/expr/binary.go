package expr

import (
	"bytes"
	"cmp"
	"fmt"

	"tomydb/pkg/engine/types"
)

type BinaryOperator int

const (
	Add BinaryOperator = iota
	Subtract
	Multiply
	Divide
	And
	Or
	Equal
	NotEqual
	LessThan
	LessEqual
	GreaterThan
	GreaterEqual
)

func (o BinaryOperator) String() string {
	var toString = map[BinaryOperator]string{
		Add:          "ADD",
		Subtract:     "SUBTRACT",
		Multiply:     "MULTIPLY",
		Divide:       "DIVIDE",
		And:          "AND",
		Or:           "OR",
		Equal:        "=",
		NotEqual:     "!=",
		LessThan:     "<",
		LessEqual:    "<=",
		GreaterThan:  ">",
		GreaterEqual: ">=",
	}
	stringVal, ok := toString[o]
	if !ok {
		return "UNKNOWN"
	}
	return stringVal
}

func BinaryOpFromString(op string) (BinaryOperator, error) {
	var fromString = map[string]BinaryOperator{
		"ADD":           Add,
		"SUBTRACT":      Subtract,
		"MULTIPLY":      Multiply,
		"DIVIDE":        Divide,
		"AND":           And,
		"OR":            Or,
		"EQUAL":         Equal,
		"NOT_EQUAL":     NotEqual,
		"LESS_THAN":     LessThan,
		"LESS_EQUAL":    LessEqual,
		"GREATER_THAN":  GreaterThan,
		"GREATER_EQUAL": GreaterEqual,
	}
	operator, ok := fromString[op]
	if !ok {
		return 0, fmt.Errorf("unknown binary operator: %s", op)
	}
	return operator, nil
}

func (o BinaryOperator) IsComparison() bool { return o >= Equal && o <= GreaterEqual }

// Mirror gives the operator to use when both operands swap sides.
func (o BinaryOperator) Mirror() BinaryOperator {
	switch o {
	case LessThan:
		return GreaterThan
	case LessEqual:
		return GreaterEqual
	case GreaterThan:
		return LessThan
	case GreaterEqual:
		return LessEqual
	}
	return o
}

type BinaryOpExpr struct {
	Left     Expression
	Right    Expression
	Operator BinaryOperator
	resType  types.ColumnType
}

func NewBinaryOp(left, right Expression, op BinaryOperator) (*BinaryOpExpr, error) {
	lt := left.ResultType()
	rt := right.ResultType()

	var resType types.ColumnType

	switch op {
	case Add, Subtract, Multiply, Divide:
		if lt != rt || !lt.IsNumeric() {
			return nil, fmt.Errorf("operator %s requires two operands of one numeric type, got %s and %s", op, lt, rt)
		}
		resType = lt

	case Equal, NotEqual, LessThan, LessEqual, GreaterThan, GreaterEqual:
		if lt != rt {
			return nil, fmt.Errorf("comparison %s requires the same types, got %s and %s", op, lt, rt)
		}
		if !lt.IsOrdered() && op != Equal && op != NotEqual {
			return nil, fmt.Errorf("comparison %s is not defined for %s", op, lt)
		}
		resType = types.ColumnTypeBoolean

	case And, Or:
		if lt != types.ColumnTypeBoolean || rt != types.ColumnTypeBoolean {
			return nil, fmt.Errorf("logical operator %s requires BOOLEAN", op)
		}
		resType = types.ColumnTypeBoolean
	default:
		return nil, fmt.Errorf("unsupported binary operator: %s", op)
	}

	return &BinaryOpExpr{
		Left:     left,
		Right:    right,
		Operator: op,
		resType:  resType,
	}, nil
}

func (e *BinaryOpExpr) ResultType() types.ColumnType { return e.resType }

func (e *BinaryOpExpr) GetUsedColumns() []int {
	return append(e.Left.GetUsedColumns(), e.Right.GetUsedColumns()...)
}

func (e *BinaryOpExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Operator, e.Right)
}

func (e *BinaryOpExpr) Evaluate(batch *Batch) (types.Column, error) {
	leftCol, err := e.Left.Evaluate(batch)
	if err != nil {
		return nil, err
	}
	rightCol, err := e.Right.Evaluate(batch)
	if err != nil {
		return nil, err
	}
	if leftCol.Len() != rightCol.Len() {
		return nil, &types.InvariantError{Operator: e.Operator.String(), Expected: fmt.Sprintf("%d rows", leftCol.Len()), Found: rightCol.Len()}
	}

	switch e.Operator {
	case Add, Subtract, Multiply, Divide:
		return e.evaluateArithmetic(leftCol, rightCol)
	case And, Or:
		return e.evaluateLogical(leftCol, rightCol)
	case Equal, NotEqual, LessThan, LessEqual, GreaterThan, GreaterEqual:
		return e.evaluateComparison(leftCol, rightCol)
	}

	return nil, types.Unsupported("binary expression", "operator %s", e.Operator)
}

func mergeNulls(cols ...types.Column) []bool {
	var nulls []bool
	for _, c := range cols {
		if !c.HasNulls() {
			continue
		}
		if nulls == nil {
			nulls = make([]bool, c.Len())
		}
		for i := range nulls {
			nulls[i] = nulls[i] || c.IsNull(i)
		}
	}
	return nulls
}

func (e *BinaryOpExpr) evaluateArithmetic(leftCol, rightCol types.Column) (types.Column, error) {
	nulls := mergeNulls(leftCol, rightCol)

	switch l := leftCol.(type) {
	case *types.NumericColumn[int32]:
		return arithmetic(e.Operator, l, rightCol, nulls, true)
	case *types.NumericColumn[int64]:
		return arithmetic(e.Operator, l, rightCol, nulls, true)
	case *types.NumericColumn[float32]:
		return arithmetic(e.Operator, l, rightCol, nulls, false)
	case *types.NumericColumn[float64]:
		return arithmetic(e.Operator, l, rightCol, nulls, false)
	case *types.NumericColumn[types.Decimal]:
		return decimalArithmetic(e.Operator, l, rightCol.(*types.NumericColumn[types.Decimal]), nulls)
	}
	return nil, types.Unsupported("arithmetic", "operand type %s", leftCol.GetType())
}

func arithmetic[T types.Numeric](op BinaryOperator, l *types.NumericColumn[T], right types.Column, nulls []bool, integral bool) (types.Column, error) {
	r := right.(*types.NumericColumn[T])
	res := make([]T, len(l.Values))
	for i := range res {
		if nulls != nil && nulls[i] {
			continue
		}
		a, b := l.Values[i], r.Values[i]
		switch op {
		case Add:
			res[i] = a + b
		case Subtract:
			res[i] = a - b
		case Multiply:
			res[i] = a * b
		case Divide:
			if integral && b == 0 {
				return nil, fmt.Errorf("division by zero at row %d", i)
			}
			res[i] = a / b
		}
	}
	return types.NewNumericColumn("result", res, nulls), nil
}

func decimalArithmetic(op BinaryOperator, l, r *types.NumericColumn[types.Decimal], nulls []bool) (types.Column, error) {
	res := make([]types.Decimal, len(l.Values))
	for i := range res {
		if nulls != nil && nulls[i] {
			continue
		}
		a, b := l.Values[i], r.Values[i]
		switch op {
		case Add:
			res[i] = a + b
		case Subtract:
			res[i] = a - b
		case Multiply:
			res[i] = a.Mul(b)
		case Divide:
			if b == 0 {
				return nil, fmt.Errorf("division by zero at row %d", i)
			}
			res[i] = a.Div(b)
		}
	}
	return types.NewNumericColumn("result", res, nulls), nil
}

// evaluateLogical uses three valued logic: FALSE AND NULL is FALSE,
// TRUE OR NULL is TRUE, anything else involving NULL is NULL.
func (e *BinaryOpExpr) evaluateLogical(leftCol, rightCol types.Column) (types.Column, error) {
	lCol, ok1 := leftCol.(*types.BoolColumn)
	rCol, ok2 := rightCol.(*types.BoolColumn)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("one of the operands is not a BoolColumn")
	}

	rowCount := lCol.Len()
	res := make([]bool, rowCount)
	var nulls []bool
	if lCol.HasNulls() || rCol.HasNulls() {
		nulls = make([]bool, rowCount)
	}

	for i := range rowCount {
		ln, rn := lCol.IsNull(i), rCol.IsNull(i)
		lv, rv := lCol.Values[i] && !ln, rCol.Values[i] && !rn
		switch e.Operator {
		case And:
			res[i] = lv && rv
			if (ln || rn) && !(!ln && !lv) && !(!rn && !rv) {
				nulls[i] = true
			}
		case Or:
			res[i] = lv || rv
			if (ln || rn) && !res[i] {
				nulls[i] = true
			}
		}
	}
	return &types.BoolColumn{Name: "result", Values: res, Nulls: normalize(nulls)}, nil
}

func normalize(nulls []bool) []bool {
	for _, n := range nulls {
		if n {
			return nulls
		}
	}
	return nil
}

func (e *BinaryOpExpr) evaluateComparison(leftCol, rightCol types.Column) (types.Column, error) {
	nulls := mergeNulls(leftCol, rightCol)
	var res []bool

	switch l := leftCol.(type) {
	case *types.NumericColumn[int32]:
		res = compareNumeric(e.Operator, l, rightCol)
	case *types.NumericColumn[int64]:
		res = compareNumeric(e.Operator, l, rightCol)
	case *types.NumericColumn[float32]:
		res = compareNumeric(e.Operator, l, rightCol)
	case *types.NumericColumn[float64]:
		res = compareNumeric(e.Operator, l, rightCol)
	case *types.NumericColumn[types.Date]:
		res = compareNumeric(e.Operator, l, rightCol)
	case *types.NumericColumn[types.DateTime]:
		res = compareNumeric(e.Operator, l, rightCol)
	case *types.NumericColumn[types.Decimal]:
		res = compareNumeric(e.Operator, l, rightCol)
	case *types.VarcharColumn:
		r := rightCol.(*types.VarcharColumn)
		res = make([]bool, l.Len())
		for i := range res {
			res[i] = comparisonHolds(e.Operator, bytes.Compare(l.Bytes(i), r.Bytes(i)))
		}
	case *types.BoolColumn:
		r := rightCol.(*types.BoolColumn)
		res = make([]bool, l.Len())
		for i := range res {
			res[i] = comparisonHolds(e.Operator, types.CompareAt(l, i, r, i))
		}
	default:
		return nil, types.Unsupported("comparison", "operand type %s", leftCol.GetType())
	}

	if nulls != nil {
		for i, n := range nulls {
			if n {
				res[i] = false
			}
		}
	}
	return &types.BoolColumn{Name: "result", Values: res, Nulls: nulls}, nil
}

func compareNumeric[T types.Numeric](op BinaryOperator, l *types.NumericColumn[T], right types.Column) []bool {
	r := right.(*types.NumericColumn[T])
	res := make([]bool, len(l.Values))
	for i := range res {
		res[i] = comparisonHolds(op, cmp.Compare(l.Values[i], r.Values[i]))
	}
	return res
}

func comparisonHolds(op BinaryOperator, c int) bool {
	switch op {
	case Equal:
		return c == 0
	case NotEqual:
		return c != 0
	case LessThan:
		return c < 0
	case LessEqual:
		return c <= 0
	case GreaterThan:
		return c > 0
	case GreaterEqual:
		return c >= 0
	}
	return false
}
