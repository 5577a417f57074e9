package planner

import (
	"fmt"
	"slices"
	"strings"

	"tomydb/pkg/engine/executor/operators"
	"tomydb/pkg/engine/expr"
	"tomydb/pkg/engine/types"
	"tomydb/pkg/metadata"
)

// TableCatalog resolves table schemas while binding.
type TableCatalog interface {
	GetTable(name string) (*metadata.TableDef, bool)
}

// Bind validates a JSON plan and binds it to the catalog. Problems of
// independent subtrees are all reported in one *types.ValidationError.
func Bind(catalog TableCatalog, plan *PlanNode) (Node, error) {
	b := &binder{catalog: catalog}
	return b.bind(plan, "plan")
}

type binder struct {
	catalog TableCatalog
}

func (b *binder) bind(n *PlanNode, path string) (Node, error) {
	if n == nil {
		return nil, types.NewVErr("missing plan node", path)
	}

	switch n.Type {
	case NodeScan:
		return b.bindScan(n, path)
	case NodeFilter:
		return b.bindFilter(n, path)
	case NodeProject:
		return b.bindProject(n, path)
	case NodeAggregate:
		return b.bindAggregate(n, path)
	case NodeJoin:
		return b.bindJoin(n, path)
	case NodeSort:
		return b.bindSort(n, path)
	case NodeLimit:
		return b.bindLimit(n, path)
	case NodeDistinct:
		input, err := b.bind(n.Input, path+".input")
		if err != nil {
			return nil, err
		}
		return &DistinctNode{Input: input}, nil
	case NodeValues:
		return &ValuesNode{}, nil
	}
	return nil, types.NewVErr(fmt.Sprintf("unknown node type %q", n.Type), path)
}

// withContext prefixes the context of every problem of err with path.
func withContext(err error, path string) error {
	ve := &types.ValidationError{}
	for _, p := range types.ToProblems(err) {
		ctx := path
		if p.Context != "" {
			ctx += ": " + p.Context
		}
		ve.Add(p.Error, ctx)
	}
	return ve
}

func (b *binder) bindScan(n *PlanNode, path string) (Node, error) {
	table, ok := b.catalog.GetTable(n.Table)
	if !ok {
		return nil, types.NewVErr(fmt.Sprintf("table %s does not exist", n.Table), path)
	}

	ve := &types.ValidationError{}
	scan := &ScanNode{Table: table.Name}
	if len(n.Columns) == 0 {
		for i := range table.Columns {
			scan.Columns = append(scan.Columns, i)
		}
	}
	for _, name := range n.Columns {
		idx := slices.IndexFunc(table.Columns, func(c metadata.ColumnDef) bool { return c.Name == name })
		if idx < 0 {
			ve.Add(fmt.Sprintf("column %s not found in table %s", name, table.Name), path)
			continue
		}
		scan.Columns = append(scan.Columns, idx)
	}
	if ve.HasProblems() {
		return nil, ve
	}
	for _, idx := range scan.Columns {
		c := table.Columns[idx]
		scan.out = append(scan.out, Column{Table: table.Name, Name: c.Name, Type: c.Type})
	}

	if n.Filter != nil {
		filter, err := bindPredicate(scan.out, n.Filter)
		if err != nil {
			return nil, withContext(err, path+".filter")
		}
		scan.Filter = filter
	}
	return scan, nil
}

func bindPredicate(columns []Column, e *ExprNode) (expr.Expression, error) {
	pred, err := NewMapper(columns).MapExpression(e)
	if err != nil {
		return nil, err
	}
	if pred.ResultType() != types.ColumnTypeBoolean {
		return nil, types.NewVErr(fmt.Sprintf("predicate must return BOOLEAN, got %s", pred.ResultType()), "")
	}
	return pred, nil
}

func (b *binder) bindFilter(n *PlanNode, path string) (Node, error) {
	input, err := b.bind(n.Input, path+".input")
	if err != nil {
		return nil, err
	}
	pred, err := bindPredicate(input.Output(), n.Predicate)
	if err != nil {
		return nil, withContext(err, path+".predicate")
	}
	return &FilterNode{Input: input, Predicate: pred}, nil
}

func bindNamed(columns []Column, named []NamedExpr, path string) ([]string, []expr.Expression, error) {
	ve := &types.ValidationError{}
	mapper := NewMapper(columns)
	names := make([]string, len(named))
	exprs := make([]expr.Expression, len(named))
	for i, ne := range named {
		e, err := mapper.MapExpression(ne.Expr)
		if err != nil {
			ve.Extend(withContext(err, fmt.Sprintf("%s[%d]", path, i)))
			continue
		}
		exprs[i] = e
		names[i] = ne.Name
		if names[i] == "" {
			names[i] = defaultName(ne.Expr, i)
		}
	}
	if ve.HasProblems() {
		return nil, nil, ve
	}
	return names, exprs, nil
}

func defaultName(e *ExprNode, i int) string {
	if e.Type == ExprColumn {
		return e.Column
	}
	return fmt.Sprintf("col%d", i)
}

func (b *binder) bindProject(n *PlanNode, path string) (Node, error) {
	input, err := b.bind(n.Input, path+".input")
	if err != nil {
		return nil, err
	}
	if len(n.Projections) == 0 {
		return nil, types.NewVErr("projection needs at least one expression", path)
	}
	names, exprs, err := bindNamed(input.Output(), n.Projections, path+".projections")
	if err != nil {
		return nil, err
	}
	return &ProjectNode{Input: input, Names: names, Exprs: exprs}, nil
}

func (b *binder) bindAggregate(n *PlanNode, path string) (Node, error) {
	input, err := b.bind(n.Input, path+".input")
	if err != nil {
		return nil, err
	}
	if len(n.GroupBy)+len(n.Aggregates) == 0 {
		return nil, types.NewVErr("aggregate needs a key or an aggregate", path)
	}

	ve := &types.ValidationError{}
	node := &AggregateNode{Input: input}
	if node.KeyNames, node.Keys, err = bindNamed(input.Output(), n.GroupBy, path+".groupBy"); err != nil {
		ve.Extend(err)
	}

	mapper := NewMapper(input.Output())
	for i, spec := range n.Aggregates {
		ctx := fmt.Sprintf("%s.aggregates[%d]", path, i)
		fn, err := expr.AggregateFunctionFromString(spec.Function)
		if err != nil {
			ve.Add(err.Error(), ctx)
			continue
		}
		var arg expr.Expression
		if spec.Arg != nil {
			if arg, err = mapper.MapExpression(spec.Arg); err != nil {
				ve.Extend(withContext(err, ctx))
				continue
			}
		} else if fn == expr.Count {
			fn = expr.CountStar
		}
		agg, err := expr.NewAggregate(fn, arg)
		if err != nil {
			ve.Add(err.Error(), ctx)
			continue
		}
		name := spec.Name
		if name == "" {
			name = strings.ToLower(fn.String())
		}
		node.AggNames = append(node.AggNames, name)
		node.Aggs = append(node.Aggs, agg)
	}
	if ve.HasProblems() {
		return nil, ve
	}
	return node, nil
}

func (b *binder) bindJoin(n *PlanNode, path string) (Node, error) {
	ve := &types.ValidationError{}
	left, err := b.bind(n.Left, path+".left")
	if err != nil {
		ve.Extend(err)
	}
	right, err := b.bind(n.Right, path+".right")
	if err != nil {
		ve.Extend(err)
	}

	node := &JoinNode{Left: left, Right: right}
	switch strings.ToUpper(n.JoinKind) {
	case "", "INNER":
		node.Kind = operators.InnerJoin
	case "SEMI":
		node.Kind = operators.SemiJoin
	default:
		ve.Add(fmt.Sprintf("unknown join kind %q", n.JoinKind), path)
	}
	if ve.HasProblems() {
		return nil, ve
	}

	if n.Condition != nil {
		combined := append(append([]Column{}, left.Output()...), right.Output()...)
		cond, err := bindPredicate(combined, n.Condition)
		if err != nil {
			return nil, withContext(err, path+".condition")
		}
		if err := splitJoinCondition(node, cond, len(left.Output())); err != nil {
			return nil, withContext(err, path+".condition")
		}
	}

	if node.Kind == operators.SemiJoin {
		if len(node.LeftKeys) == 0 {
			return nil, types.NewVErr("semi join needs an equality between the two sides", path)
		}
		if node.Residual != nil {
			return nil, types.NewVErr("semi join supports equality conditions only", path)
		}
	}
	return node, nil
}

// splitJoinCondition moves same-typed equalities between a left and a right
// expression into the join keys; whatever remains is the residual.
func splitJoinCondition(node *JoinNode, cond expr.Expression, leftWidth int) error {
	var residual []expr.Expression
	for _, part := range expr.Conjuncts(cond) {
		l, r, ok := equiKeys(part, leftWidth)
		if !ok {
			residual = append(residual, part)
			continue
		}
		rebased, err := expr.RemapColumns(r, func(i int) int { return i - leftWidth })
		if err != nil {
			return err
		}
		node.LeftKeys = append(node.LeftKeys, l)
		node.RightKeys = append(node.RightKeys, rebased)
	}
	var err error
	node.Residual, err = expr.Conjunction(residual)
	return err
}

func equiKeys(e expr.Expression, leftWidth int) (expr.Expression, expr.Expression, bool) {
	bin, ok := e.(*expr.BinaryOpExpr)
	if !ok || bin.Operator != expr.Equal || bin.Left.ResultType() != bin.Right.ResultType() {
		return nil, nil, false
	}
	side := func(e expr.Expression) int {
		used := e.GetUsedColumns()
		if len(used) == 0 {
			return 0
		}
		if slices.Max(used) < leftWidth {
			return -1
		}
		if slices.Min(used) >= leftWidth {
			return 1
		}
		return 0
	}
	switch {
	case side(bin.Left) < 0 && side(bin.Right) > 0:
		return bin.Left, bin.Right, true
	case side(bin.Left) > 0 && side(bin.Right) < 0:
		return bin.Right, bin.Left, true
	}
	return nil, nil, false
}

func bindOrderBy(columns []Column, specs []OrderBySpec, path string) ([]operators.OrderBy, error) {
	if len(specs) == 0 {
		return nil, types.NewVErr("sort needs at least one key", path)
	}
	ve := &types.ValidationError{}
	mapper := NewMapper(columns)
	fields := make([]operators.OrderBy, 0, len(specs))
	for i, spec := range specs {
		e, err := mapper.MapExpression(spec.Expr)
		if err != nil {
			ve.Extend(withContext(err, fmt.Sprintf("%s.orderBy[%d]", path, i)))
			continue
		}
		fields = append(fields, operators.OrderBy{Expr: e, Descending: spec.Descending})
	}
	if ve.HasProblems() {
		return nil, ve
	}
	return fields, nil
}

func (b *binder) bindSort(n *PlanNode, path string) (Node, error) {
	input, err := b.bind(n.Input, path+".input")
	if err != nil {
		return nil, err
	}
	fields, err := bindOrderBy(input.Output(), n.OrderBy, path)
	if err != nil {
		return nil, err
	}
	node := &SortNode{Input: input, OrderBy: fields}
	if n.Limit != nil {
		if *n.Limit < 0 {
			return nil, types.NewVErr("limit must be non-negative", path)
		}
		limit := uint64(*n.Limit)
		node.Limit = &limit
	}
	return node, nil
}

func (b *binder) bindLimit(n *PlanNode, path string) (Node, error) {
	input, err := b.bind(n.Input, path+".input")
	if err != nil {
		return nil, err
	}
	ve := &types.ValidationError{}
	if n.Limit == nil || *n.Limit < 0 {
		ve.Add("limit must be non-negative", path)
	}
	if n.Offset < 0 {
		ve.Add("offset must be non-negative", path)
	}
	if ve.HasProblems() {
		return nil, ve
	}
	return &LimitNode{Input: input, Limit: uint64(*n.Limit), Offset: uint64(n.Offset)}, nil
}
