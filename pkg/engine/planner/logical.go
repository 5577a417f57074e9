package planner

import (
	"fmt"
	"strings"

	"tomydb/pkg/engine/executor/operators"
	"tomydb/pkg/engine/expr"
	"tomydb/pkg/engine/types"
)

// Column is one output column of a logical node. Table is set for columns
// read straight from a table and empty for computed ones.
type Column struct {
	Table string
	Name  string
	Type  types.ColumnType
}

func (c Column) String() string {
	if c.Table == "" {
		return c.Name
	}
	return c.Table + "." + c.Name
}

// Node is a bound logical plan node. Column references inside its
// expressions are ordinals into the output of its input (for joins, the
// left output followed by the right one).
type Node interface {
	Output() []Column
	Inputs() []Node
	Describe() string
}

type ScanNode struct {
	Table string
	// Columns are ordinals into the table schema.
	Columns []int
	// Filter refers to the output ordinals of the scan.
	Filter expr.Expression
	out    []Column
}

func (n *ScanNode) Output() []Column { return n.out }
func (n *ScanNode) Inputs() []Node   { return nil }
func (n *ScanNode) Describe() string {
	s := fmt.Sprintf("Scan %s %v", n.Table, n.out)
	if n.Filter != nil {
		s += " filter " + n.Filter.String()
	}
	return s
}

type FilterNode struct {
	Input     Node
	Predicate expr.Expression
}

func (n *FilterNode) Output() []Column { return n.Input.Output() }
func (n *FilterNode) Inputs() []Node   { return []Node{n.Input} }
func (n *FilterNode) Describe() string { return "Filter " + n.Predicate.String() }

type ProjectNode struct {
	Input Node
	Names []string
	Exprs []expr.Expression
}

func (n *ProjectNode) Output() []Column { return computed(n.Names, n.Exprs) }
func (n *ProjectNode) Inputs() []Node   { return []Node{n.Input} }
func (n *ProjectNode) Describe() string { return "Project " + namedList(n.Names, n.Exprs) }

type AggregateNode struct {
	Input    Node
	KeyNames []string
	Keys     []expr.Expression
	AggNames []string
	Aggs     []*expr.AggregateExpr
}

func (n *AggregateNode) Output() []Column {
	out := computed(n.KeyNames, n.Keys)
	for i, a := range n.Aggs {
		out = append(out, Column{Name: n.AggNames[i], Type: a.ResultType()})
	}
	return out
}

func (n *AggregateNode) Inputs() []Node { return []Node{n.Input} }

func (n *AggregateNode) Describe() string {
	aggs := make([]string, len(n.Aggs))
	for i, a := range n.Aggs {
		aggs[i] = n.AggNames[i] + "=" + a.String()
	}
	return fmt.Sprintf("Aggregate keys [%s] aggs [%s]", namedList(n.KeyNames, n.Keys), strings.Join(aggs, ", "))
}

// JoinNode with keys is an equi join: LeftKeys are bound to the left
// output, RightKeys to the right output, pairwise equal. Residual is bound
// to the combined output.
type JoinNode struct {
	Kind      operators.JoinKind
	Left      Node
	Right     Node
	LeftKeys  []expr.Expression
	RightKeys []expr.Expression
	Residual  expr.Expression
}

func (n *JoinNode) Output() []Column {
	if n.Kind == operators.SemiJoin {
		return n.Left.Output()
	}
	return append(append([]Column{}, n.Left.Output()...), n.Right.Output()...)
}

func (n *JoinNode) Inputs() []Node { return []Node{n.Left, n.Right} }

func (n *JoinNode) Describe() string {
	keys := make([]string, len(n.LeftKeys))
	for i := range keys {
		keys[i] = n.LeftKeys[i].String() + "=" + n.RightKeys[i].String()
	}
	s := fmt.Sprintf("Join %s on [%s]", n.Kind, strings.Join(keys, ", "))
	if n.Residual != nil {
		s += " residual " + n.Residual.String()
	}
	return s
}

type SortNode struct {
	Input   Node
	OrderBy []operators.OrderBy
	// Limit keeps only the first rows; nil sorts everything.
	Limit *uint64
}

func (n *SortNode) Output() []Column { return n.Input.Output() }
func (n *SortNode) Inputs() []Node   { return []Node{n.Input} }
func (n *SortNode) Describe() string {
	fields := make([]string, len(n.OrderBy))
	for i, f := range n.OrderBy {
		fields[i] = f.Expr.String()
		if f.Descending {
			fields[i] += " DESC"
		}
	}
	s := "Sort " + strings.Join(fields, ", ")
	if n.Limit != nil {
		s += fmt.Sprintf(" limit %d", *n.Limit)
	}
	return s
}

type LimitNode struct {
	Input  Node
	Limit  uint64
	Offset uint64
}

func (n *LimitNode) Output() []Column { return n.Input.Output() }
func (n *LimitNode) Inputs() []Node   { return []Node{n.Input} }
func (n *LimitNode) Describe() string { return fmt.Sprintf("Limit %d offset %d", n.Limit, n.Offset) }

type DistinctNode struct {
	Input Node
}

func (n *DistinctNode) Output() []Column { return n.Input.Output() }
func (n *DistinctNode) Inputs() []Node   { return []Node{n.Input} }
func (n *DistinctNode) Describe() string { return "Distinct" }

// ValuesNode is the single empty row literal-only queries project from.
type ValuesNode struct{}

func (n *ValuesNode) Output() []Column { return nil }
func (n *ValuesNode) Inputs() []Node   { return nil }
func (n *ValuesNode) Describe() string { return "Values" }

func computed(names []string, exprs []expr.Expression) []Column {
	out := make([]Column, len(exprs))
	for i, e := range exprs {
		out[i] = Column{Name: names[i], Type: e.ResultType()}
	}
	return out
}

func namedList(names []string, exprs []expr.Expression) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = names[i] + "=" + e.String()
	}
	return strings.Join(parts, ", ")
}

// Format prints the plan as an indented tree.
func Format(n Node) string {
	var sb strings.Builder
	var walk func(n Node, depth int)
	walk = func(n Node, depth int) {
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(n.Describe())
		sb.WriteByte('\n')
		for _, in := range n.Inputs() {
			walk(in, depth+1)
		}
	}
	walk(n, 0)
	return sb.String()
}
