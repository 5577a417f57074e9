package planner

// JSON form of a query plan as accepted over HTTP. Every node names its
// kind in Type; only the fields of that kind are read.
type PlanNode struct {
	Type string `json:"type"`

	// scan
	Table   string    `json:"table,omitempty"`
	Columns []string  `json:"columns,omitempty"`
	Filter  *ExprNode `json:"filter,omitempty"`

	// single input nodes
	Input *PlanNode `json:"input,omitempty"`

	// filter
	Predicate *ExprNode `json:"predicate,omitempty"`

	// project
	Projections []NamedExpr `json:"projections,omitempty"`

	// aggregate
	GroupBy    []NamedExpr     `json:"groupBy,omitempty"`
	Aggregates []AggregateSpec `json:"aggregates,omitempty"`

	// join; the condition sees the left columns followed by the right ones
	JoinKind  string    `json:"joinKind,omitempty"`
	Left      *PlanNode `json:"left,omitempty"`
	Right     *PlanNode `json:"right,omitempty"`
	Condition *ExprNode `json:"condition,omitempty"`

	// sort
	OrderBy []OrderBySpec `json:"orderBy,omitempty"`

	// sort and limit
	Limit  *int64 `json:"limit,omitempty"`
	Offset int64  `json:"offset,omitempty"`
}

const (
	NodeScan      = "scan"
	NodeFilter    = "filter"
	NodeProject   = "project"
	NodeAggregate = "aggregate"
	NodeJoin      = "join"
	NodeSort      = "sort"
	NodeLimit     = "limit"
	NodeDistinct  = "distinct"
	NodeValues    = "values"
)

type NamedExpr struct {
	Name string    `json:"name"`
	Expr *ExprNode `json:"expr"`
}

type AggregateSpec struct {
	Name     string    `json:"name"`
	Function string    `json:"function"`
	Arg      *ExprNode `json:"arg,omitempty"`
}

type OrderBySpec struct {
	Expr       *ExprNode `json:"expr"`
	Descending bool      `json:"descending,omitempty"`
}

// ExprNode is a scalar expression. Literals carry an optional ValueType;
// without one numbers become INT64 or FLOAT64 and strings VARCHAR.
type ExprNode struct {
	Type string `json:"type"`

	Table  string `json:"table,omitempty"`
	Column string `json:"column,omitempty"`

	Value     any    `json:"value,omitempty"`
	ValueType string `json:"valueType,omitempty"`

	Operator string    `json:"operator,omitempty"`
	Left     *ExprNode `json:"left,omitempty"`
	Right    *ExprNode `json:"right,omitempty"`
	Operand  *ExprNode `json:"operand,omitempty"`

	Function  string      `json:"function,omitempty"`
	Arguments []*ExprNode `json:"arguments,omitempty"`
}

const (
	ExprColumn   = "column"
	ExprLiteral  = "literal"
	ExprBinary   = "binary"
	ExprUnary    = "unary"
	ExprFunction = "function"
)
