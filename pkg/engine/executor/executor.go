package executor

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"tomydb/pkg/engine/buffer"
	"tomydb/pkg/engine/executor/operators"
	"tomydb/pkg/engine/types"
)

// Execute pulls root to the end. Iteration stops at the first error, which
// is yielded with a nil batch.
func Execute(ctx context.Context, root operators.Operator) iter.Seq2[*buffer.RowGroup, error] {
	return func(yield func(*buffer.RowGroup, error) bool) {
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			rg, err := root.Next(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if rg == nil {
				return
			}
			if !yield(rg, nil) {
				return
			}
		}
	}
}

// Collect runs root and converts its output to a ColumnarResult holding at
// most rowLimit rows; zero or less means no limit.
func Collect(ctx context.Context, pool *buffer.Pool, root operators.Operator, rowLimit int) (*types.ColumnarResult, error) {
	schema := root.Columns()
	res := &types.ColumnarResult{
		ColumnNames: make([]string, len(schema)),
		Columns:     make([]any, len(schema)),
	}
	values := make([][]any, len(schema))
	for i, c := range schema {
		res.ColumnNames[i] = c.Name
		values[i] = []any{}
	}

	for rg, err := range Execute(ctx, root) {
		if err != nil {
			return nil, err
		}
		take := rg.RowCount
		if rowLimit > 0 {
			take = min(take, rowLimit-int(res.RowCount))
		}
		cols, err := pool.Columns(rg)
		if err != nil {
			return nil, fmt.Errorf("failed to read result batch: %w", err)
		}
		for i, c := range cols {
			if take < c.Len() {
				c = c.Slice(0, take)
			}
			values[i] = append(values[i], types.ColumnValues(c)...)
		}
		res.RowCount += uint64(take)
		if rowLimit > 0 && int(res.RowCount) >= rowLimit {
			break
		}
	}

	for i := range values {
		res.Columns[i] = values[i]
	}
	return res, nil
}

// FormatResult renders a result as a markdown table.
func FormatResult(w io.Writer, res *types.ColumnarResult) error {
	if len(res.ColumnNames) == 0 {
		_, err := fmt.Fprintf(w, "_%d rows, no columns_\n", res.RowCount)
		return err
	}

	alignment := make([]tw.Align, len(res.ColumnNames))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}
	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(res.ColumnNames)

	for r := range int(res.RowCount) {
		row := make([]string, len(res.Columns))
		for c, col := range res.Columns {
			row[c] = formatValue(col.([]any)[r])
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n_%d rows_\n", res.RowCount)
	return err
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return strings.ReplaceAll(x, "|", "\\|")
	case float32, float64:
		return fmt.Sprintf("%.4g", x)
	}
	return fmt.Sprint(v)
}
