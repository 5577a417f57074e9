package topk

import (
	"fmt"
	"slices"

	"tomydb/pkg/engine/types"
)

const initialCapacity = 1024

// TopK keeps the K smallest entries under a composite ordering, sorted at
// all times. Keys live in parallel vectors, one per order-by column.
// Entries equal on every key keep their arrival order.
type TopK[V any] struct {
	k          int
	descending []bool
	keyNames   []string
	keys       []types.Vector
	values     []V
}

// New builds a structure for k entries ordered by len(descending) keys.
// Nulls sort first on ascending keys and last on descending ones.
// Storage grows with the entries actually held; k only bounds it.
func New[V any](k int, descending []bool) *TopK[V] {
	return &TopK[V]{k: k, descending: descending}
}

func (t *TopK[V]) Len() int { return len(t.values) }

func (t *TopK[V]) Full() bool { return len(t.values) >= t.k }

func (t *TopK[V]) init(keys []types.Column) error {
	if len(keys) != len(t.descending) {
		return &types.InvariantError{Operator: "top-k", Expected: fmt.Sprintf("%d key columns", len(t.descending)), Found: len(keys)}
	}
	if t.keys != nil {
		for i, k := range keys {
			if k.GetType() != t.keys[i].Type() {
				return &types.InvariantError{Operator: "top-k", Expected: t.keys[i].Type(), Found: fmt.Sprintf("%s for key %d", k.GetType(), i)}
			}
		}
		return nil
	}
	capacity := min(max(t.k, 0), initialCapacity)
	t.keys = make([]types.Vector, len(keys))
	t.keyNames = make([]string, len(keys))
	for i, k := range keys {
		t.keys[i] = types.NewVector(k, capacity)
		t.keyNames[i] = k.GetName()
	}
	t.values = make([]V, 0, capacity)
	return nil
}

// compare orders the stored entry at idx against row of the key columns
// for key column c, taking the direction into account.
func (t *TopK[V]) compare(c, idx int, keys []types.Column, row int) int {
	d := t.keys[c].Compare(idx, keys[c], row)
	if t.descending[c] {
		return -d
	}
	return d
}

// position finds where row belongs: after every entry that is less than or
// equal to it. Each key column narrows the range of entries equal so far.
func (t *TopK[V]) position(keys []types.Column, row int) int {
	lo, hi := 0, len(t.values)
	for c := range keys {
		// first entry >= row within [lo, hi)
		lower := lo + sortSearch(hi-lo, func(i int) bool { return t.compare(c, lo+i, keys, row) >= 0 })
		// first entry > row within [lower, hi)
		upper := lower + sortSearch(hi-lower, func(i int) bool { return t.compare(c, lower+i, keys, row) > 0 })
		lo, hi = lower, upper
		if lo == hi {
			break
		}
	}
	return hi
}

func sortSearch(n int, f func(int) bool) int {
	lo, hi := 0, n
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if !f(mid) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// beforeLast reports whether row sorts strictly before the last entry.
func (t *TopK[V]) beforeLast(keys []types.Column, row int) bool {
	last := len(t.values) - 1
	for c := range keys {
		if d := t.compare(c, last, keys, row); d != 0 {
			return d > 0
		}
	}
	return false
}

// Insert offers every row of the key columns with its value.
func (t *TopK[V]) Insert(keys []types.Column, values []V) error {
	if err := t.init(keys); err != nil {
		return err
	}
	rows := 0
	if len(keys) > 0 {
		rows = keys[0].Len()
	}
	if len(values) != rows {
		return &types.InvariantError{Operator: "top-k insert", Expected: fmt.Sprintf("%d values", rows), Found: len(values)}
	}
	if t.k <= 0 {
		return nil
	}

	for row := range rows {
		if t.Full() && !t.beforeLast(keys, row) {
			continue
		}
		pos := t.position(keys, row)
		if t.Full() {
			last := len(t.values) - 1
			for _, v := range t.keys {
				v.Truncate(last)
			}
			t.values = t.values[:last]
		}
		for c, v := range t.keys {
			v.Insert(pos, keys[c], row)
		}
		t.values = slices.Insert(t.values, pos, values[row])
	}
	return nil
}

// ToArray returns the surviving values in sorted order.
func (t *TopK[V]) ToArray() []V {
	return slices.Clone(t.values)
}

// GetKeys returns key column i of the surviving entries in sorted order.
func (t *TopK[V]) GetKeys(i int) types.Column {
	return t.keys[i].Column(t.keyNames[i])
}
