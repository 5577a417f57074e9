package expr

import (
	"fmt"

	"tomydb/pkg/engine/types"
)

// LiteralExpr is a typed constant. A nil Value is NULL.
type LiteralExpr struct {
	Value any
	Type  types.ColumnType
}

func (e *LiteralExpr) ResultType() types.ColumnType { return e.Type }

func (e *LiteralExpr) GetUsedColumns() []int { return nil }

func (e *LiteralExpr) String() string {
	if e.Value == nil {
		return "NULL"
	}
	if s, ok := e.Value.(string); ok {
		return fmt.Sprintf("'%s'", s)
	}
	return fmt.Sprint(e.Value)
}

func (e *LiteralExpr) Evaluate(batch *Batch) (types.Column, error) {
	col, err := types.Repeat("literal", e.Type, e.Value, batch.RowCount())
	if err != nil {
		return nil, fmt.Errorf("unsupported literal %v: %w", e.Value, err)
	}
	return col, nil
}
