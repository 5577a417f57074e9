package expr

import (
	"fmt"
	"strings"

	"tomydb/pkg/engine/types"
)

type AggregateFunction int

const (
	Count AggregateFunction = iota
	CountStar
	Sum
	Min
	Max
	Avg
)

func (f AggregateFunction) String() string {
	return [...]string{"COUNT", "COUNT_STAR", "SUM", "MIN", "MAX", "AVG"}[f]
}

func AggregateFunctionFromString(name string) (AggregateFunction, error) {
	switch strings.ToUpper(name) {
	case "COUNT":
		return Count, nil
	case "COUNT_STAR", "COUNT(*)":
		return CountStar, nil
	case "SUM":
		return Sum, nil
	case "MIN":
		return Min, nil
	case "MAX":
		return Max, nil
	case "AVG":
		return Avg, nil
	}
	return 0, fmt.Errorf("unknown aggregate function: %s", name)
}

// AggregateExpr is one aggregate of a group by. Arg is nil for COUNT(*).
type AggregateExpr struct {
	Func    AggregateFunction
	Arg     Expression
	resType types.ColumnType
}

func NewAggregate(fn AggregateFunction, arg Expression) (*AggregateExpr, error) {
	if fn == CountStar {
		return &AggregateExpr{Func: fn, resType: types.ColumnTypeInt64}, nil
	}
	if arg == nil {
		return nil, fmt.Errorf("%s needs an argument", fn)
	}

	at := arg.ResultType()
	var resType types.ColumnType
	switch fn {
	case Count:
		resType = types.ColumnTypeInt64
	case Sum:
		switch at {
		case types.ColumnTypeInt32, types.ColumnTypeInt64:
			resType = types.ColumnTypeInt64
		case types.ColumnTypeFloat32, types.ColumnTypeFloat64:
			resType = types.ColumnTypeFloat64
		case types.ColumnTypeDecimal:
			resType = types.ColumnTypeDecimal
		default:
			return nil, fmt.Errorf("SUM is not defined for %s", at)
		}
	case Avg:
		switch at {
		case types.ColumnTypeInt32, types.ColumnTypeInt64, types.ColumnTypeFloat32, types.ColumnTypeFloat64:
			resType = types.ColumnTypeFloat64
		case types.ColumnTypeDecimal:
			resType = types.ColumnTypeDecimal
		default:
			return nil, fmt.Errorf("AVG is not defined for %s", at)
		}
	case Min, Max:
		if !at.IsOrdered() {
			return nil, fmt.Errorf("%s is not defined for %s", fn, at)
		}
		resType = at
	default:
		return nil, fmt.Errorf("unsupported aggregate function: %s", fn)
	}
	return &AggregateExpr{Func: fn, Arg: arg, resType: resType}, nil
}

func (a *AggregateExpr) ResultType() types.ColumnType { return a.resType }

func (a *AggregateExpr) GetUsedColumns() []int {
	if a.Arg == nil {
		return nil
	}
	return a.Arg.GetUsedColumns()
}

func (a *AggregateExpr) String() string {
	if a.Arg == nil {
		return "COUNT(*)"
	}
	return fmt.Sprintf("%s(%s)", a.Func, a.Arg)
}

// Accumulator keeps one state slot per group. Group ids index the slots.
type Accumulator interface {
	// Grow makes room for groups [0, n).
	Grow(n int)
	// Update folds one batch; groupIDs[i] is the group of row i. col is nil
	// for COUNT(*).
	Update(groupIDs []int, col types.Column) error
	// Result materialises the listed groups in order.
	Result(groupIDs []int, name string) types.Column
}

func (a *AggregateExpr) NewAccumulator() Accumulator {
	switch a.Func {
	case CountStar:
		return &countAcc{star: true}
	case Count:
		return &countAcc{}
	case Min, Max:
		return &minMaxAcc{typ: a.Arg.ResultType(), max: a.Func == Max}
	case Sum:
		switch a.Arg.ResultType() {
		case types.ColumnTypeInt32:
			return &sumAcc[int32, int64]{}
		case types.ColumnTypeInt64:
			return &sumAcc[int64, int64]{}
		case types.ColumnTypeFloat32:
			return &sumAcc[float32, float64]{}
		case types.ColumnTypeFloat64:
			return &sumAcc[float64, float64]{}
		case types.ColumnTypeDecimal:
			return &sumAcc[types.Decimal, types.Decimal]{}
		}
	case Avg:
		switch a.Arg.ResultType() {
		case types.ColumnTypeInt32:
			return &sumAcc[int32, float64]{avg: true}
		case types.ColumnTypeInt64:
			return &sumAcc[int64, float64]{avg: true}
		case types.ColumnTypeFloat32:
			return &sumAcc[float32, float64]{avg: true}
		case types.ColumnTypeFloat64:
			return &sumAcc[float64, float64]{avg: true}
		case types.ColumnTypeDecimal:
			return &sumAcc[types.Decimal, types.Decimal]{avg: true}
		}
	}
	panic(fmt.Sprintf("no accumulator for %s", a))
}

type countAcc struct {
	star   bool
	counts []int64
}

func (c *countAcc) Grow(n int) {
	for len(c.counts) < n {
		c.counts = append(c.counts, 0)
	}
}

func (c *countAcc) Update(groupIDs []int, col types.Column) error {
	if c.star || !col.HasNulls() {
		for _, g := range groupIDs {
			c.counts[g]++
		}
		return nil
	}
	for i, g := range groupIDs {
		if !col.IsNull(i) {
			c.counts[g]++
		}
	}
	return nil
}

func (c *countAcc) Result(groupIDs []int, name string) types.Column {
	res := make([]int64, len(groupIDs))
	for i, g := range groupIDs {
		res[i] = c.counts[g]
	}
	return types.NewInt64Column(name, res)
}

// sumAcc serves SUM and AVG. A group that saw no value yields NULL.
type sumAcc[In, Out types.Numeric] struct {
	avg    bool
	sums   []Out
	counts []int64
}

func (s *sumAcc[In, Out]) Grow(n int) {
	for len(s.sums) < n {
		s.sums = append(s.sums, 0)
		s.counts = append(s.counts, 0)
	}
}

func (s *sumAcc[In, Out]) Update(groupIDs []int, col types.Column) error {
	nc, ok := col.(*types.NumericColumn[In])
	if !ok {
		return &types.InvariantError{Operator: "aggregate", Expected: types.NumericTypeOf[In](), Found: col.GetType()}
	}
	for i, g := range groupIDs {
		if nc.IsNull(i) {
			continue
		}
		s.sums[g] += Out(nc.Values[i])
		s.counts[g]++
	}
	return nil
}

func (s *sumAcc[In, Out]) Result(groupIDs []int, name string) types.Column {
	res := make([]Out, len(groupIDs))
	nulls := make([]bool, len(groupIDs))
	for i, g := range groupIDs {
		if s.counts[g] == 0 {
			nulls[i] = true
			continue
		}
		res[i] = s.sums[g]
		if s.avg {
			res[i] /= Out(s.counts[g])
		}
	}
	return types.NewNumericColumn(name, res, nulls)
}

type minMaxAcc struct {
	typ    types.ColumnType
	max    bool
	values types.Vector
	seen   []bool
	null   types.Column
}

func (m *minMaxAcc) Grow(n int) {
	if m.values == nil {
		m.null, _ = types.Repeat("", m.typ, nil, 1)
		m.values = types.NewVector(m.null, n)
	}
	for m.values.Len() < n {
		m.values.Append(m.null, 0)
		m.seen = append(m.seen, false)
	}
}

func (m *minMaxAcc) Update(groupIDs []int, col types.Column) error {
	if col.GetType() != m.typ {
		return &types.InvariantError{Operator: "aggregate", Expected: m.typ, Found: col.GetType()}
	}
	for i, g := range groupIDs {
		if col.IsNull(i) {
			continue
		}
		if !m.seen[g] {
			m.values.Set(g, col, i)
			m.seen[g] = true
			continue
		}
		c := m.values.Compare(g, col, i)
		if (m.max && c < 0) || (!m.max && c > 0) {
			m.values.Set(g, col, i)
		}
	}
	return nil
}

func (m *minMaxAcc) Result(groupIDs []int, name string) types.Column {
	if m.values == nil {
		m.Grow(0)
	}
	return m.values.Column(name).Gather(groupIDs)
}
