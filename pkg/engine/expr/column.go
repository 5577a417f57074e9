package expr

import (
	"fmt"
	"strconv"

	"tomydb/pkg/engine/types"
)

// ColumnRefExpr reads the column at Index of the input batch.
type ColumnRefExpr struct {
	Index   int
	ColName string
	ColType types.ColumnType
}

func (e *ColumnRefExpr) ResultType() types.ColumnType { return e.ColType }

func (e *ColumnRefExpr) GetUsedColumns() []int { return []int{e.Index} }

func (e *ColumnRefExpr) String() string { return fmt.Sprintf("%s#%d", e.ColName, e.Index) }

func (e *ColumnRefExpr) Evaluate(batch *Batch) (types.Column, error) {
	col, err := batch.Column(e.Index)
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", e.ColName, err)
	}
	if col.GetType() != e.ColType {
		return nil, &types.InvariantError{Operator: "column " + e.ColName, Expected: e.ColType, Found: col.GetType()}
	}
	return col, nil
}

func itoa(i int) string { return strconv.Itoa(i) }
