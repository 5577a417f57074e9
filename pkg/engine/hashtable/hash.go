package hashtable

import (
	"github.com/cespare/xxhash/v2"

	"tomydb/pkg/engine/types"
)

const (
	prime1 uint64 = 11400714785074694791
	prime2 uint64 = 14029467366897019727
	prime3 uint64 = 1609587929392839161

	nullHash uint64 = 0x9e3779b97f4a7c15

	// MaxHashedString bounds how many bytes of a string feed the hash.
	// Equality still compares whole strings.
	MaxHashedString = 256
)

func avalanche(h uint64) uint64 {
	h ^= h >> 33
	h *= prime2
	h ^= h >> 29
	h *= prime3
	h ^= h >> 32
	return h
}

func mix(a, b uint64) uint64 {
	return avalanche((a + prime1) ^ b)
}

// hasher carries only a scratch buffer, each table owns one.
type hasher struct {
	buf []byte
}

func (h *hasher) valueHash(col types.Column, row int) uint64 {
	if col.IsNull(row) {
		return nullHash
	}
	h.buf = types.AppendKeyBytes(col, row, h.buf[:0], MaxHashedString)
	return xxhash.Sum64(h.buf)
}

// rowHash folds the per column hashes left to right and truncates the
// finalized result to 32 bits.
func (h *hasher) rowHash(keys []types.Column, row int) uint32 {
	var acc uint64
	for i, col := range keys {
		v := h.valueHash(col, row)
		if i == 0 {
			acc = v
		} else {
			acc = mix(acc, v)
		}
	}
	return uint32(avalanche(acc))
}
