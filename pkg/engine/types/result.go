package types

type ColumnarResult struct {
	RowCount    uint64   `json:"rowCount"`
	ColumnNames []string `json:"columnNames"`
	Columns     []any    `json:"columns"`
}

// ColumnValues renders a column for JSON: a slice of native values with nil
// for nulls. Dates, datetimes and decimals become strings.
func ColumnValues(c Column) []any {
	out := make([]any, c.Len())
	for i := range out {
		v := c.GetValueAny(i)
		switch x := v.(type) {
		case Date:
			v = x.String()
		case DateTime:
			v = x.String()
		case Decimal:
			v = x.String()
		}
		out[i] = v
	}
	return out
}
