package cost

import (
	"fmt"
	"math"
)

// Cost is one operator's own estimate plus the totals of its subtree,
// the operator's own share included.
type Cost struct {
	OutputRows     float64
	CpuOperations  float64
	DiskOperations float64

	TotalOutputRows     float64
	TotalCpuOperations  float64
	TotalDiskOperations float64
}

// New makes a leaf cost; its totals equal its own figures.
func New(rows, cpu, disk float64) Cost {
	return Cost{
		OutputRows:          rows,
		CpuOperations:       cpu,
		DiskOperations:      disk,
		TotalOutputRows:     rows,
		TotalCpuOperations:  cpu,
		TotalDiskOperations: disk,
	}
}

// Add folds a child's subtree totals into c.
func (c Cost) Add(child Cost) Cost {
	c.TotalOutputRows += child.TotalOutputRows
	c.TotalCpuOperations += child.TotalCpuOperations
	c.TotalDiskOperations += child.TotalDiskOperations
	return c
}

// TotalCost ranks plans: disk operations weigh a hundred times more than
// cpu operations.
func (c Cost) TotalCost() float64 {
	return c.TotalCpuOperations/1000 + c.TotalDiskOperations/10
}

func (c Cost) String() string {
	return fmt.Sprintf("rows=%.0f cpu=%.0f disk=%.0f total=%.3f", c.OutputRows, c.CpuOperations, c.DiskOperations, c.TotalCost())
}

// HashCapacity sizes a hash table for the estimated number of entries.
func HashCapacity(estimatedRows float64) int {
	switch {
	case math.IsNaN(estimatedRows) || estimatedRows < 7:
		return 7
	case estimatedRows >= math.MaxInt:
		return math.MaxInt
	}
	return int(estimatedRows)
}

func Scan(rows uint64, rowGroups int) Cost {
	return New(float64(rows), float64(rows), float64(rowGroups))
}

func Filter(input Cost) Cost {
	return New(input.OutputRows*0.5, input.OutputRows, 0).Add(input)
}

func Projection(input Cost, exprs int) Cost {
	return New(input.OutputRows, input.OutputRows*float64(exprs), 0).Add(input)
}

func Aggregate(input Cost, keys, aggs int) Cost {
	rows := 1.0
	if keys > 0 {
		rows = math.Max(1, input.OutputRows/10)
	}
	return New(rows, input.OutputRows*float64(keys+aggs), 0).Add(input)
}

func HashJoin(build, probe Cost) Cost {
	rows := math.Max(build.OutputRows, probe.OutputRows)
	return New(rows, build.OutputRows+probe.OutputRows, 0).Add(build).Add(probe)
}

func SemiJoin(build, probe Cost) Cost {
	return New(probe.OutputRows*0.5, build.OutputRows+probe.OutputRows, 0).Add(build).Add(probe)
}

func NestedLoopJoin(left, right Cost) Cost {
	n := left.OutputRows * right.OutputRows
	return New(n, n, 0).Add(left).Add(right)
}

func TopN(input Cost, k int) Cost {
	return New(math.Min(float64(k), input.OutputRows), input.OutputRows*math.Log2(float64(k)+1), 0).Add(input)
}

func Sort(input Cost) Cost {
	n := input.OutputRows
	return New(n, n*math.Log2(n+1), 0).Add(input)
}

func Distinct(input Cost) Cost {
	return New(math.Max(1, input.OutputRows/2), input.OutputRows, 0).Add(input)
}

func Limit(input Cost, limit uint64) Cost {
	return New(math.Min(float64(limit), input.OutputRows), 0, 0).Add(input)
}
