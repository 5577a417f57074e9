package buffer

import (
	"fmt"

	"tomydb/pkg/engine/types"
)

type StatKind int

const (
	StatMin StatKind = iota
	StatMax
	StatDistinct
	StatNulls

	statsPerColumn = 4
)

func (k StatKind) String() string {
	return [...]string{"min", "max", "distinct", "nulls"}[k]
}

// StatColumnIndex locates a statistic of file column col in the table
// returned by StatisticsTable.
func StatColumnIndex(col int, kind StatKind) int { return col*statsPerColumn + int(kind) }

func StatColumnName(name string, kind StatKind) string { return name + "$" + kind.String() }

// StatisticsTable exposes the footer statistics of a file as a memory table
// with one row per row group. Built once per handle.
func (p *Pool) StatisticsTable(h *FileHandle) (*MemoryTable, error) {
	h.statsOnce.Do(func() {
		h.statsTable, h.statsErr = p.buildStatisticsTable(h)
	})
	return h.statsTable, h.statsErr
}

func (p *Pool) buildStatisticsTable(h *FileHandle) (*MemoryTable, error) {
	schema := make([]ColumnSchema, 0, len(h.schema)*statsPerColumn)
	for _, c := range h.schema {
		for kind := StatMin; kind <= StatNulls; kind++ {
			typ := c.Type
			if kind == StatDistinct || kind == StatNulls {
				typ = types.ColumnTypeInt64
			}
			schema = append(schema, ColumnSchema{
				ID:     StatColumnIndex(c.Index, kind),
				Name:   StatColumnName(c.Name, kind),
				Type:   typ,
				Source: h.Path,
			})
		}
	}

	table := p.OpenMemoryTable(schema)
	numGroups := h.NumRowGroups()
	cols := make([]types.Column, len(schema))

	for c, cs := range h.schema {
		mins := make([]any, numGroups)
		maxs := make([]any, numGroups)
		distinct := make([]any, numGroups)
		nulls := make([]any, numGroups)
		for rg := range numGroups {
			st := h.Statistics(rg, c)
			if st.HasMinMax() {
				mins[rg] = types.StatValue(cs.Type, st.Min)
				maxs[rg] = types.StatValue(cs.Type, st.Max)
			}
			distinct[rg] = int64(st.DistinctCount)
			nulls[rg] = int64(st.NullCount)
		}
		for kind, values := range [][]any{mins, maxs, distinct, nulls} {
			idx := StatColumnIndex(c, StatKind(kind))
			col, err := types.ColumnFromValues(schema[idx].Name, schema[idx].Type, values)
			if err != nil {
				return nil, fmt.Errorf("statistics of %s: %w", h.Path, err)
			}
			cols[idx] = col
		}
	}

	if _, err := table.AppendRowGroup(cols); err != nil {
		return nil, err
	}
	return table, nil
}
