package expr

import "fmt"

// RemapColumns returns a copy of e whose column references point at
// mapping(old ordinal). Expressions other than references are rebuilt, the
// result types stay as they were.
func RemapColumns(e Expression, mapping func(int) int) (Expression, error) {
	switch x := e.(type) {
	case *ColumnRefExpr:
		return &ColumnRefExpr{Index: mapping(x.Index), ColName: x.ColName, ColType: x.ColType}, nil
	case *LiteralExpr:
		return x, nil
	case *BinaryOpExpr:
		l, err := RemapColumns(x.Left, mapping)
		if err != nil {
			return nil, err
		}
		r, err := RemapColumns(x.Right, mapping)
		if err != nil {
			return nil, err
		}
		return &BinaryOpExpr{Left: l, Right: r, Operator: x.Operator, resType: x.resType}, nil
	case *UnaryOpExpr:
		o, err := RemapColumns(x.Operand, mapping)
		if err != nil {
			return nil, err
		}
		return &UnaryOpExpr{Operand: o, Operator: x.Operator, resType: x.resType}, nil
	case *FunctionExpr:
		args := make([]Expression, len(x.Arguments))
		for i, a := range x.Arguments {
			var err error
			if args[i], err = RemapColumns(a, mapping); err != nil {
				return nil, err
			}
		}
		return &FunctionExpr{Name: x.Name, Arguments: args, resType: x.resType}, nil
	}
	return nil, fmt.Errorf("cannot remap columns of %T", e)
}

// Conjuncts flattens nested ANDs.
func Conjuncts(e Expression) []Expression {
	if b, ok := e.(*BinaryOpExpr); ok && b.Operator == And {
		return append(Conjuncts(b.Left), Conjuncts(b.Right)...)
	}
	return []Expression{e}
}

// Conjunction joins predicates with AND; nil when there are none.
func Conjunction(preds []Expression) (Expression, error) {
	var out Expression
	for _, p := range preds {
		if out == nil {
			out = p
			continue
		}
		joined, err := NewBinaryOp(out, p, And)
		if err != nil {
			return nil, err
		}
		out = joined
	}
	return out, nil
}
