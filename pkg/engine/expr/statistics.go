package expr

import (
	"tomydb/pkg/engine/buffer"
)

// StatColumnFunc locates a statistic of an input column in the statistics
// table. It returns false when the statistic is not available.
type StatColumnFunc func(col int, kind buffer.StatKind) (int, bool)

// RewriteForStatistics turns a row predicate into a predicate over the
// per-row-group statistics table. A row group whose rewritten predicate is
// false cannot contain a matching row. The second result is false when
// nothing of the predicate could be rewritten.
func RewriteForStatistics(e Expression, statColumn StatColumnFunc) (Expression, bool) {
	b, ok := e.(*BinaryOpExpr)
	if !ok {
		return nil, false
	}

	switch b.Operator {
	case And:
		l, lok := RewriteForStatistics(b.Left, statColumn)
		r, rok := RewriteForStatistics(b.Right, statColumn)
		switch {
		case lok && rok:
			return mustBinary(l, r, And), true
		case lok:
			return l, true
		case rok:
			return r, true
		}
		return nil, false

	case Or:
		l, lok := RewriteForStatistics(b.Left, statColumn)
		r, rok := RewriteForStatistics(b.Right, statColumn)
		if !lok || !rok {
			return nil, false
		}
		return mustBinary(l, r, Or), true

	case Equal, LessThan, LessEqual, GreaterThan, GreaterEqual:
		op := b.Operator
		col, colOK := b.Left.(*ColumnRefExpr)
		lit, litOK := b.Right.(*LiteralExpr)
		if !colOK || !litOK {
			col, colOK = b.Right.(*ColumnRefExpr)
			lit, litOK = b.Left.(*LiteralExpr)
			op = op.Mirror()
		}
		if !colOK || !litOK || lit.Value == nil || !col.ColType.IsOrdered() {
			return nil, false
		}

		bound := func(kind buffer.StatKind, cmpOp BinaryOperator) (Expression, bool) {
			idx, ok := statColumn(col.Index, kind)
			if !ok {
				return nil, false
			}
			ref := &ColumnRefExpr{Index: idx, ColName: buffer.StatColumnName(col.ColName, kind), ColType: col.ColType}
			return mustBinary(ref, lit, cmpOp), true
		}

		switch op {
		case LessThan, LessEqual:
			return bound(buffer.StatMin, op)
		case GreaterThan, GreaterEqual:
			return bound(buffer.StatMax, op)
		case Equal:
			lo, lok := bound(buffer.StatMin, LessEqual)
			hi, hok := bound(buffer.StatMax, GreaterEqual)
			if !lok || !hok {
				return nil, false
			}
			return mustBinary(lo, hi, And), true
		}
	}
	return nil, false
}

// mustBinary builds an operator whose operand types are already known to fit.
func mustBinary(l, r Expression, op BinaryOperator) Expression {
	e, err := NewBinaryOp(l, r, op)
	if err != nil {
		panic(err)
	}
	return e
}
