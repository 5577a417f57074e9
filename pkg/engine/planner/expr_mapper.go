package planner

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"tomydb/pkg/engine/expr"
	"tomydb/pkg/engine/types"
)

// Mapper binds JSON expressions to the output columns of an input node.
type Mapper struct {
	columns []Column
}

func NewMapper(columns []Column) *Mapper {
	return &Mapper{columns: columns}
}

func (m *Mapper) MapExpression(apiExpr *ExprNode) (expr.Expression, error) {
	if apiExpr == nil {
		return nil, fmt.Errorf("expression cannot be nil")
	}

	switch apiExpr.Type {
	case ExprColumn:
		return m.mapColumnReference(apiExpr)
	case ExprLiteral:
		return mapLiteral(apiExpr)
	case ExprBinary:
		return m.mapBinaryOp(apiExpr)
	case ExprUnary:
		return m.mapUnaryOp(apiExpr)
	case ExprFunction:
		return m.mapFunction(apiExpr)
	default:
		return nil, fmt.Errorf("unsupported expression type: %q", apiExpr.Type)
	}
}

func (m *Mapper) mapColumnReference(apiColRef *ExprNode) (expr.Expression, error) {
	found := -1
	for i, c := range m.columns {
		if c.Name != apiColRef.Column || (apiColRef.Table != "" && c.Table != apiColRef.Table) {
			continue
		}
		if found >= 0 {
			return nil, types.NewVErr(fmt.Sprintf("column reference %s is ambiguous", qualified(apiColRef)), "")
		}
		found = i
	}
	if found < 0 {
		return nil, types.NewVErr(fmt.Sprintf("column %s not found", qualified(apiColRef)), "")
	}

	return &expr.ColumnRefExpr{
		Index:   found,
		ColName: apiColRef.Column,
		ColType: m.columns[found].Type,
	}, nil
}

func qualified(e *ExprNode) string {
	if e.Table == "" {
		return e.Column
	}
	return e.Table + "." + e.Column
}

func mapLiteral(lit *ExprNode) (*expr.LiteralExpr, error) {
	if lit.ValueType != "" {
		typ, err := types.ColumnTypeFromString(strings.ToUpper(lit.ValueType))
		if err != nil {
			return nil, types.NewVErr(err.Error(), "literal")
		}
		return coerceLiteral(&expr.LiteralExpr{Value: lit.Value, Type: inferType(lit.Value)}, typ)
	}

	switch v := lit.Value.(type) {
	case nil:
		return nil, types.NewVErr("NULL literal needs a valueType", "literal")
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return &expr.LiteralExpr{Value: i, Type: types.ColumnTypeInt64}, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, types.NewVErr(fmt.Sprintf("invalid number %s", v), "literal")
		}
		return &expr.LiteralExpr{Value: f, Type: types.ColumnTypeFloat64}, nil
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return &expr.LiteralExpr{Value: int64(v), Type: types.ColumnTypeInt64}, nil
		}
		return &expr.LiteralExpr{Value: v, Type: types.ColumnTypeFloat64}, nil
	case int64:
		return &expr.LiteralExpr{Value: v, Type: types.ColumnTypeInt64}, nil
	case int:
		return &expr.LiteralExpr{Value: int64(v), Type: types.ColumnTypeInt64}, nil
	case string:
		return &expr.LiteralExpr{Value: v, Type: types.ColumnTypeVarchar}, nil
	case bool:
		return &expr.LiteralExpr{Value: v, Type: types.ColumnTypeBoolean}, nil
	default:
		return nil, types.NewVErr(fmt.Sprintf("unsupported literal type: %T (value: %v)", v, v), "literal")
	}
}

// inferType is the type a raw JSON value is read as before coercion.
func inferType(v any) types.ColumnType {
	switch v.(type) {
	case string:
		return types.ColumnTypeVarchar
	case bool:
		return types.ColumnTypeBoolean
	case float64, json.Number:
		return types.ColumnTypeFloat64
	}
	return types.ColumnTypeInt64
}

// coerceLiteral converts a literal to typ: numbers to any numeric type,
// strings to dates, datetimes and decimals, NULL to anything.
func coerceLiteral(lit *expr.LiteralExpr, typ types.ColumnType) (*expr.LiteralExpr, error) {
	if lit.Value == nil {
		return &expr.LiteralExpr{Type: typ}, nil
	}
	fail := func(err error) (*expr.LiteralExpr, error) {
		msg := fmt.Sprintf("cannot use %s as %s", lit, typ)
		if err != nil {
			msg += ": " + err.Error()
		}
		return nil, types.NewVErr(msg, "literal")
	}

	if s, ok := lit.Value.(string); ok {
		var v any
		var err error
		switch typ {
		case types.ColumnTypeVarchar:
			v = s
		case types.ColumnTypeDate:
			v, err = types.ParseDate(s)
		case types.ColumnTypeDateTime:
			v, err = types.ParseDateTime(s)
		case types.ColumnTypeDecimal:
			v, err = types.ParseDecimal(s)
		default:
			return fail(nil)
		}
		if err != nil {
			return fail(err)
		}
		return &expr.LiteralExpr{Value: v, Type: typ}, nil
	}

	if b, ok := lit.Value.(bool); ok {
		if typ != types.ColumnTypeBoolean {
			return fail(nil)
		}
		return &expr.LiteralExpr{Value: b, Type: typ}, nil
	}

	f, isInt, i, ok := numericValue(lit.Value)
	if !ok {
		return fail(nil)
	}
	switch typ {
	case types.ColumnTypeInt64:
		if !isInt {
			return fail(nil)
		}
		return &expr.LiteralExpr{Value: i, Type: typ}, nil
	case types.ColumnTypeInt32:
		if !isInt || i < math.MinInt32 || i > math.MaxInt32 {
			return fail(nil)
		}
		return &expr.LiteralExpr{Value: int32(i), Type: typ}, nil
	case types.ColumnTypeFloat64:
		return &expr.LiteralExpr{Value: f, Type: typ}, nil
	case types.ColumnTypeFloat32:
		return &expr.LiteralExpr{Value: float32(f), Type: typ}, nil
	case types.ColumnTypeDecimal:
		if isInt {
			return &expr.LiteralExpr{Value: types.Decimal(i * types.DecimalFactor), Type: typ}, nil
		}
		return &expr.LiteralExpr{Value: types.DecimalFromFloat(f), Type: typ}, nil
	}
	return fail(nil)
}

func numericValue(v any) (f float64, isInt bool, i int64, ok bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true, x, true
	case int32:
		return float64(x), true, int64(x), true
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return x, true, int64(x), true
		}
		return x, false, 0, true
	case float32:
		return float64(x), false, 0, true
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return float64(n), true, n, true
		}
		if n, err := x.Float64(); err == nil {
			return n, false, 0, true
		}
	}
	return 0, false, 0, false
}

func (m *Mapper) mapBinaryOp(apiOpExpr *ExprNode) (expr.Expression, error) {
	ve := &types.ValidationError{}

	left, lErr := m.MapExpression(apiOpExpr.Left)
	if lErr != nil {
		ve.Extend(lErr)
	}

	right, rErr := m.MapExpression(apiOpExpr.Right)
	if rErr != nil {
		ve.Extend(rErr)
	}

	op, err := expr.BinaryOpFromString(strings.ToUpper(apiOpExpr.Operator))
	if err != nil {
		ve.Add(err.Error(), "binary operation")
	}

	if ve.HasProblems() {
		return nil, ve
	}

	left, right, err = alignLiterals(left, right)
	if err != nil {
		return nil, err
	}

	binExpr, err := expr.NewBinaryOp(left, right, op)
	if err != nil {
		return nil, types.NewVErr(err.Error(), "binary operation")
	}

	return binExpr, nil
}

// alignLiterals converts a literal operand to the type of the other side.
func alignLiterals(left, right expr.Expression) (expr.Expression, expr.Expression, error) {
	if left.ResultType() == right.ResultType() {
		return left, right, nil
	}
	if lit, ok := right.(*expr.LiteralExpr); ok {
		converted, err := coerceLiteral(lit, left.ResultType())
		if err != nil {
			return nil, nil, err
		}
		return left, converted, nil
	}
	if lit, ok := left.(*expr.LiteralExpr); ok {
		converted, err := coerceLiteral(lit, right.ResultType())
		if err != nil {
			return nil, nil, err
		}
		return converted, right, nil
	}
	return left, right, nil
}

func (m *Mapper) mapUnaryOp(apiOpExpr *ExprNode) (expr.Expression, error) {
	operand, valErr := m.MapExpression(apiOpExpr.Operand)
	if valErr != nil {
		return nil, valErr
	}

	op, err := expr.UnaryOpFromString(strings.ToUpper(apiOpExpr.Operator))
	if err != nil {
		return nil, types.NewVErr(err.Error(), "unary operation")
	}

	unExpr, err := expr.NewUnaryOp(operand, op)
	if err != nil {
		return nil, types.NewVErr(err.Error(), "unary operation")
	}
	return unExpr, nil
}

func (m *Mapper) mapFunction(apiFnExpr *ExprNode) (expr.Expression, error) {
	ve := &types.ValidationError{}
	mappedArgs := make([]expr.Expression, len(apiFnExpr.Arguments))

	for i, arg := range apiFnExpr.Arguments {
		mArg, err := m.MapExpression(arg)
		if err != nil {
			ve.Extend(err)
		} else {
			mappedArgs[i] = mArg
		}
	}

	funcName, err := expr.FunctionNameFromString(apiFnExpr.Function)
	if err != nil {
		ve.Add(err.Error(), "function")
	}

	if ve.HasProblems() {
		return nil, ve
	}

	fnExpr, err := expr.NewFunction(funcName, mappedArgs)
	if err != nil {
		return nil, types.NewVErr(err.Error(), "function "+apiFnExpr.Function)
	}
	return fnExpr, nil
}
