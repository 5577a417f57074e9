package tomy_file

import "cmp"

// ComputeStatistics scans a column once. Nulls are counted but take no part
// in min, max or the distinct count.
func ComputeStatistics(col AnyColumn) Statistics {
	switch c := col.(type) {
	case *Int64Column:
		return orderedStats(c.Values, c.IsNull)
	case *Float64Column:
		return orderedStats(c.Values, c.IsNull)
	case *VarcharColumn:
		values := make([]string, c.GetNumRows())
		for i := range values {
			values[i] = c.Value(i)
		}
		return orderedStats(values, c.IsNull)
	case *BoolColumn:
		var s Statistics
		seen := [2]bool{}
		for i, v := range c.Values {
			if c.IsNull(i) {
				s.NullCount++
				continue
			}
			if v {
				seen[1] = true
			} else {
				seen[0] = true
			}
		}
		if seen[0] {
			s.DistinctCount++
			s.Min = false
		}
		if seen[1] {
			s.DistinctCount++
			s.Max = true
		}
		if s.Min == nil && s.Max != nil {
			s.Min = true
		}
		if s.Max == nil && s.Min != nil {
			s.Max = false
		}
		return s
	}
	return Statistics{}
}

func orderedStats[T cmp.Ordered](values []T, isNull func(int) bool) Statistics {
	var s Statistics
	var lo, hi T
	found := false
	distinct := make(map[T]struct{})

	for i, v := range values {
		if isNull(i) {
			s.NullCount++
			continue
		}
		distinct[v] = struct{}{}
		if !found {
			lo, hi, found = v, v, true
			continue
		}
		if cmp.Less(v, lo) {
			lo = v
		}
		if cmp.Less(hi, v) {
			hi = v
		}
	}

	s.DistinctCount = uint64(len(distinct))
	if found {
		s.Min, s.Max = lo, hi
	}
	return s
}
