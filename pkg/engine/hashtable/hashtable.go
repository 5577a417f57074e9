package hashtable

import (
	"errors"
	"fmt"
	"math/bits"

	"tomydb/pkg/engine/types"
)

const (
	MinCapacity        = 7
	MaxInitialCapacity = 1 << 20
	maxLoad            = 0.7
)

var ErrProbeWraparound = errors.New("hash table probe wrapped around without finding a slot")

// HashTable maps composite keys to values with open addressing and linear
// probing. Key columns are stored in parallel vectors, one per key column.
// A key may be present several times when inserted through Append.
type HashTable[V any] struct {
	capacity int
	size     int
	keyNames []string
	keyTypes []types.ColumnType
	keys     []types.Vector
	values   []V
	occupied []uint64
	hasher   hasher
}

// New sizes the table for capacity entries. The first allocation is capped
// at MaxInitialCapacity; larger tables get there by resizing.
func New[V any](capacity int) *HashTable[V] {
	return &HashTable[V]{capacity: min(max(capacity, MinCapacity), MaxInitialCapacity)}
}

func (t *HashTable[V]) Len() int      { return t.size }
func (t *HashTable[V]) Capacity() int { return t.capacity }

func (t *HashTable[V]) isOccupied(slot int) bool {
	return t.occupied[slot/64]&(1<<(slot%64)) != 0
}

func (t *HashTable[V]) markOccupied(slot int) {
	t.occupied[slot/64] |= 1 << (slot % 64)
}

// init lays out storage on first use, when the key types become known.
func (t *HashTable[V]) init(keys []types.Column) error {
	if t.keys != nil {
		if len(keys) != len(t.keyTypes) {
			return &types.InvariantError{Operator: "hash table", Expected: fmt.Sprintf("%d key columns", len(t.keyTypes)), Found: len(keys)}
		}
		for i, k := range keys {
			if k.GetType() != t.keyTypes[i] {
				return &types.InvariantError{Operator: "hash table", Expected: t.keyTypes[i], Found: fmt.Sprintf("%s for key %d", k.GetType(), i)}
			}
		}
		return nil
	}
	if len(keys) == 0 {
		return &types.InvariantError{Operator: "hash table", Expected: "at least one key column", Found: 0}
	}
	t.keyNames = make([]string, len(keys))
	t.keyTypes = make([]types.ColumnType, len(keys))
	for i, k := range keys {
		t.keyNames[i] = k.GetName()
		t.keyTypes[i] = k.GetType()
	}
	t.allocate(keys, t.capacity)
	return nil
}

func (t *HashTable[V]) allocate(templates []types.Column, capacity int) {
	t.capacity = capacity
	t.keys = make([]types.Vector, len(templates))
	for i, k := range templates {
		t.keys[i] = types.NewVectorOfSize(k, capacity)
	}
	t.values = make([]V, capacity)
	t.occupied = make([]uint64, (capacity+63)/64)
}

func rowCount(keys []types.Column) int {
	if len(keys) == 0 {
		return 0
	}
	return keys[0].Len()
}

func (t *HashTable[V]) keysEqual(slot int, keys []types.Column, row int) bool {
	for i, k := range keys {
		if t.keys[i].Compare(slot, k, row) != 0 {
			return false
		}
	}
	return true
}

// probe walks from the key's bucket to the first empty slot or, when
// matchKey is set, the first slot holding the same key.
func (t *HashTable[V]) probe(keys []types.Column, row int, matchKey bool) (slot int, found bool, err error) {
	start := int(t.hasher.rowHash(keys, row) % uint32(t.capacity))
	for step := range t.capacity {
		slot = start + step
		if slot >= t.capacity {
			slot -= t.capacity
		}
		if !t.isOccupied(slot) {
			return slot, false, nil
		}
		if matchKey && t.keysEqual(slot, keys, row) {
			return slot, true, nil
		}
	}
	return 0, false, fmt.Errorf("%w (capacity %d, size %d)", ErrProbeWraparound, t.capacity, t.size)
}

func (t *HashTable[V]) store(slot int, keys []types.Column, row int, value V) error {
	for i, k := range keys {
		t.keys[i].Set(slot, k, row)
	}
	t.values[slot] = value
	t.markOccupied(slot)
	t.size++
	if float64(t.size) > maxLoad*float64(t.capacity) {
		return t.resize(2 * t.capacity)
	}
	return nil
}

// Add inserts each row unless its key is already present, in which case the
// stored value is kept.
func (t *HashTable[V]) Add(keys []types.Column, values []V) error {
	return t.insert(keys, values, true)
}

// Append inserts each row even when the key is already present, so Get
// returns every value stored under a key.
func (t *HashTable[V]) Append(keys []types.Column, values []V) error {
	return t.insert(keys, values, false)
}

func (t *HashTable[V]) insert(keys []types.Column, values []V, unique bool) error {
	if err := t.init(keys); err != nil {
		return err
	}
	rows := rowCount(keys)
	if len(values) != rows {
		return &types.InvariantError{Operator: "hash table insert", Expected: fmt.Sprintf("%d values", rows), Found: len(values)}
	}
	for row := range rows {
		slot, found, err := t.probe(keys, row, unique)
		if err != nil {
			return err
		}
		if found {
			continue
		}
		if err := t.store(slot, keys, row, values[row]); err != nil {
			return err
		}
	}
	return nil
}

// Get returns, for every stored entry matching a probe row, the probe row
// index and the stored value. Probe rows without a match contribute nothing.
func (t *HashTable[V]) Get(keys []types.Column) (offsets []int, values []V, err error) {
	if t.size == 0 {
		return nil, nil, nil
	}
	if err := t.init(keys); err != nil {
		return nil, nil, err
	}
	for row := range rowCount(keys) {
		start := int(t.hasher.rowHash(keys, row) % uint32(t.capacity))
		for step := range t.capacity {
			slot := (start + step) % t.capacity
			if !t.isOccupied(slot) {
				break
			}
			if t.keysEqual(slot, keys, row) {
				offsets = append(offsets, row)
				values = append(values, t.values[slot])
			}
			if step == t.capacity-1 {
				return nil, nil, fmt.Errorf("%w (capacity %d, size %d)", ErrProbeWraparound, t.capacity, t.size)
			}
		}
	}
	return offsets, values, nil
}

func (t *HashTable[V]) Contains(keys []types.Column) ([]bool, error) {
	out := make([]bool, rowCount(keys))
	if t.size == 0 {
		return out, nil
	}
	if err := t.init(keys); err != nil {
		return nil, err
	}
	for row := range out {
		_, found, err := t.probe(keys, row, true)
		if err != nil {
			return nil, err
		}
		out[row] = found
	}
	return out, nil
}

// GetOrAdd returns the value stored under each row's key, inserting the
// result of factory for keys seen for the first time.
func (t *HashTable[V]) GetOrAdd(keys []types.Column, factory func() V) ([]V, error) {
	if err := t.init(keys); err != nil {
		return nil, err
	}
	out := make([]V, rowCount(keys))
	for row := range out {
		slot, found, err := t.probe(keys, row, true)
		if err != nil {
			return nil, err
		}
		if found {
			out[row] = t.values[slot]
			continue
		}
		v := factory()
		if err := t.store(slot, keys, row, v); err != nil {
			return nil, err
		}
		out[row] = v
	}
	return out, nil
}

// KeyValuePairs enumerates every occupied slot in slot order.
func (t *HashTable[V]) KeyValuePairs() ([]types.Column, []V) {
	if t.keys == nil {
		return nil, nil
	}
	slots := make([]int, 0, t.size)
	for w, word := range t.occupied {
		for word != 0 {
			b := bits.TrailingZeros64(word)
			slots = append(slots, w*64+b)
			word &= word - 1
		}
	}

	keys := make([]types.Column, len(t.keys))
	for i, v := range t.keys {
		keys[i] = v.Column(t.keyNames[i]).Gather(slots)
	}
	values := make([]V, len(slots))
	for i, s := range slots {
		values[i] = t.values[s]
	}
	return keys, values
}

func (t *HashTable[V]) resize(capacity int) error {
	oldKeys := make([]types.Column, len(t.keys))
	for i, v := range t.keys {
		oldKeys[i] = v.Column(t.keyNames[i])
	}
	oldValues := t.values
	oldOccupied := t.occupied
	oldCapacity := t.capacity

	t.allocate(oldKeys, capacity)
	t.size = 0

	for slot := range oldCapacity {
		if oldOccupied[slot/64]&(1<<(slot%64)) == 0 {
			continue
		}
		// entries are already distinct or deliberately duplicated, never merge them
		newSlot, _, err := t.probe(oldKeys, slot, false)
		if err != nil {
			return err
		}
		for i, k := range oldKeys {
			t.keys[i].Set(newSlot, k, slot)
		}
		t.values[newSlot] = oldValues[slot]
		t.markOccupied(newSlot)
		t.size++
	}
	return nil
}
