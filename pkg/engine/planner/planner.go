package planner

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"tomydb/pkg/engine/buffer"
	"tomydb/pkg/engine/cost"
	"tomydb/pkg/engine/executor/operators"
	"tomydb/pkg/metadata"
)

// Catalog is what the planner needs from the metastore.
type Catalog interface {
	TableCatalog
	Snapshot(name string) (*metadata.Snapshot, error)
}

// Planner turns bound logical plans into operator trees.
type Planner struct {
	catalog Catalog
	env     *operators.Env
	logger  *slog.Logger
}

func NewPlanner(catalog Catalog, env *operators.Env) *Planner {
	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{catalog: catalog, env: env, logger: logger.With("component", "planner")}
}

// Plan is an operator tree together with the table snapshots it reads.
type Plan struct {
	Root      operators.Operator
	explain   *explainNode
	snapshots []*metadata.Snapshot
}

// Close closes the operators and then unpins the table files.
func (p *Plan) Close() {
	if p.Root != nil {
		p.Root.Close()
		p.Root = nil
	}
	for _, s := range p.snapshots {
		s.Release()
	}
	p.snapshots = nil
}

func (p *Plan) Cost() cost.Cost { return p.explain.op.EstimateCost() }

// Explain prints the operator tree with the cost estimate of every node.
func (p *Plan) Explain() string {
	var sb strings.Builder
	p.explain.write(&sb, 0)
	return sb.String()
}

type explainNode struct {
	desc     string
	op       operators.Operator
	children []*explainNode
}

func (n *explainNode) write(sb *strings.Builder, depth int) {
	c := n.op.EstimateCost()
	fmt.Fprintf(sb, "%s%s (rows=%.0f cpu=%.0f disk=%.0f total=%.3f)\n",
		strings.Repeat("  ", depth), n.desc, c.OutputRows, c.TotalCpuOperations, c.TotalDiskOperations, c.TotalCost())
	for _, child := range n.children {
		child.write(sb, depth+1)
	}
}

func (p *Planner) Build(node Node) (*Plan, error) {
	plan := &Plan{}
	ex, err := p.build(node, plan)
	if err != nil {
		plan.Close()
		return nil, err
	}
	plan.Root = ex.op
	plan.explain = ex
	return plan, nil
}

func leaf(desc string, op operators.Operator, children ...*explainNode) *explainNode {
	return &explainNode{desc: desc, op: op, children: children}
}

func (p *Planner) build(node Node, plan *Plan) (*explainNode, error) {
	switch n := node.(type) {
	case *ScanNode:
		return p.buildScan(n, plan)

	case *FilterNode:
		child, err := p.build(n.Input, plan)
		if err != nil {
			return nil, err
		}
		op, err := operators.NewFilter(p.env, child.op, n.Predicate)
		if err != nil {
			child.op.Close()
			return nil, err
		}
		return leaf(n.Describe(), op, child), nil

	case *ProjectNode:
		child, err := p.build(n.Input, plan)
		if err != nil {
			return nil, err
		}
		op, err := operators.NewProjection(p.env, child.op, n.Names, n.Exprs)
		if err != nil {
			child.op.Close()
			return nil, err
		}
		return leaf(n.Describe(), op, child), nil

	case *AggregateNode:
		child, err := p.build(n.Input, plan)
		if err != nil {
			return nil, err
		}
		op, err := operators.NewHashAggregate(p.env, child.op, n.KeyNames, n.Keys, n.AggNames, n.Aggs)
		if err != nil {
			child.op.Close()
			return nil, err
		}
		p.logger.Debug("hash aggregate", "keys", len(n.Keys), "hash_capacity", cost.HashCapacity(op.EstimateCost().OutputRows))
		return leaf(n.Describe(), op, child), nil

	case *JoinNode:
		return p.buildJoin(n, plan)

	case *SortNode:
		child, err := p.build(n.Input, plan)
		if err != nil {
			return nil, err
		}
		var op operators.Operator
		if n.Limit != nil {
			op, err = operators.NewTopNSort(p.env, child.op, n.OrderBy, topLimit(*n.Limit, 0))
		} else {
			op, err = operators.NewSort(p.env, child.op, n.OrderBy)
		}
		if err != nil {
			child.op.Close()
			return nil, err
		}
		return leaf(n.Describe(), op, child), nil

	case *LimitNode:
		if sort, ok := n.Input.(*SortNode); ok && sort.Limit == nil {
			return p.buildSortedLimit(n, sort, plan)
		}
		child, err := p.build(n.Input, plan)
		if err != nil {
			return nil, err
		}
		return leaf(n.Describe(), operators.NewLimit(p.env, child.op, n.Limit, n.Offset), child), nil

	case *DistinctNode:
		child, err := p.build(n.Input, plan)
		if err != nil {
			return nil, err
		}
		return leaf(n.Describe(), operators.NewDistinct(p.env, child.op), child), nil

	case *ValuesNode:
		return leaf(n.Describe(), operators.NewValues(p.env)), nil
	}
	return nil, fmt.Errorf("planner: unknown logical node %T", node)
}

func (p *Planner) buildScan(n *ScanNode, plan *Plan) (*explainNode, error) {
	snap, err := p.catalog.Snapshot(n.Table)
	if err != nil {
		return nil, err
	}
	plan.snapshots = append(plan.snapshots, snap)

	schema := make([]buffer.ColumnSchema, len(n.Columns))
	for i, c := range n.Columns {
		def := snap.Columns[c]
		schema[i] = buffer.ColumnSchema{ID: c, Name: def.Name, Type: def.Type, Source: n.Table}
	}
	if len(snap.Files) == 0 {
		return leaf(n.Describe(), operators.NewEmptyScan(p.env, schema)), nil
	}

	handles := make([]*buffer.FileHandle, 0, len(snap.Files))
	release := func() {
		for _, h := range handles {
			_ = p.env.Pool.Release(h)
		}
	}
	for _, path := range snap.Paths() {
		h, err := p.env.Pool.Open(path)
		if err != nil {
			release()
			return nil, fmt.Errorf("table %s: %w", n.Table, err)
		}
		handles = append(handles, h)
		if err := matchesCatalog(h, snap.Columns); err != nil {
			release()
			return nil, fmt.Errorf("table %s: file %s: %w", n.Table, path, err)
		}
	}

	scan, err := operators.NewScan(p.env, handles, n.Columns, n.Filter)
	if err != nil {
		release()
		return nil, err
	}
	ex := leaf(n.Describe(), scan)
	if n.Filter == nil {
		return ex, nil
	}
	// the scan only prunes row groups, rows still need the filter
	filter, err := operators.NewFilter(p.env, scan, n.Filter)
	if err != nil {
		scan.Close()
		return nil, err
	}
	return leaf("Filter "+n.Filter.String(), filter, ex), nil
}

func matchesCatalog(h *buffer.FileHandle, columns []metadata.ColumnDef) error {
	schema := h.Schema()
	if len(schema) != len(columns) {
		return fmt.Errorf("file has %d columns, table has %d", len(schema), len(columns))
	}
	for i, c := range columns {
		if schema[i].Name != c.Name || schema[i].Type != c.Type {
			return fmt.Errorf("file column %d is %s, table column is %s %s", i, schema[i], c.Name, c.Type)
		}
	}
	return nil
}

func (p *Planner) buildJoin(n *JoinNode, plan *Plan) (*explainNode, error) {
	left, err := p.build(n.Left, plan)
	if err != nil {
		return nil, err
	}
	right, err := p.build(n.Right, plan)
	if err != nil {
		left.op.Close()
		return nil, err
	}
	fail := func(err error) (*explainNode, error) {
		left.op.Close()
		right.op.Close()
		return nil, err
	}

	if len(n.LeftKeys) == 0 {
		op, err := operators.NewNestedLoopJoin(p.env, left.op, right.op, n.Residual)
		if err != nil {
			return fail(err)
		}
		p.logger.Debug("join strategy", "strategy", "nested loop", "kind", n.Kind)
		return leaf("NestedLoop"+n.Describe(), op, left, right), nil
	}

	var join *operators.HashJoin
	if n.Kind == operators.SemiJoin {
		join, err = operators.NewHashJoin(p.env, operators.SemiJoin, right.op, left.op, n.RightKeys, n.LeftKeys, false)
		if err != nil {
			return fail(err)
		}
		p.logger.Debug("join strategy", "strategy", "hash", "kind", n.Kind, "build", "right")
	} else {
		lc, rc := left.op.EstimateCost(), right.op.EstimateCost()
		buildIsLeft := lc.OutputRows < rc.OutputRows
		if buildIsLeft {
			join, err = operators.NewHashJoin(p.env, operators.InnerJoin, left.op, right.op, n.LeftKeys, n.RightKeys, true)
		} else {
			join, err = operators.NewHashJoin(p.env, operators.InnerJoin, right.op, left.op, n.RightKeys, n.LeftKeys, false)
		}
		if err != nil {
			return fail(err)
		}
		build := "right"
		buildRows := rc.OutputRows
		if buildIsLeft {
			build, buildRows = "left", lc.OutputRows
		}
		p.logger.Debug("join strategy",
			"strategy", "hash",
			"kind", n.Kind,
			"build", build,
			"left_rows", lc.OutputRows,
			"right_rows", rc.OutputRows,
			"hash_capacity", cost.HashCapacity(buildRows))
	}

	ex := leaf("Hash"+n.Describe(), join, left, right)
	if n.Residual == nil || n.Kind == operators.SemiJoin {
		return ex, nil
	}
	filter, err := operators.NewFilter(p.env, join, n.Residual)
	if err != nil {
		join.Close()
		return nil, err
	}
	return leaf("Filter "+n.Residual.String(), filter, ex), nil
}

// buildSortedLimit plans Limit over an unbounded Sort as a top-n of
// limit+offset rows followed by the limit.
func (p *Planner) buildSortedLimit(n *LimitNode, sort *SortNode, plan *Plan) (*explainNode, error) {
	child, err := p.build(sort.Input, plan)
	if err != nil {
		return nil, err
	}
	k := topLimit(n.Limit, n.Offset)
	top, err := operators.NewTopNSort(p.env, child.op, sort.OrderBy, k)
	if err != nil {
		child.op.Close()
		return nil, err
	}
	topEx := leaf(fmt.Sprintf("%s top %d", sort.Describe(), k), top, child)
	return leaf(n.Describe(), operators.NewLimit(p.env, top, n.Limit, n.Offset), topEx), nil
}

// topLimit is limit+offset saturated at MaxInt.
func topLimit(limit, offset uint64) int {
	sum := limit + offset
	if sum < limit || sum > math.MaxInt {
		return math.MaxInt
	}
	return int(sum)
}
