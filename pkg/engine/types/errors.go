package types

import (
	"fmt"
	"strings"
)

// InvariantError reports an engine bug: data that should line up does not.
type InvariantError struct {
	Operator string
	Expected any
	Found    any
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: invariant violated: expected %v, found %v", e.Operator, e.Expected, e.Found)
}

type UnsupportedError struct {
	Operator string
	What     string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s: unsupported %s", e.Operator, e.What)
}

func Unsupported(operator string, format string, args ...any) error {
	return &UnsupportedError{Operator: operator, What: fmt.Sprintf(format, args...)}
}

// CheckRowCounts fails when the columns of one batch disagree on length.
func CheckRowCounts(operator string, rows int, cols []Column) error {
	for _, c := range cols {
		if c.Len() != rows {
			names := make([]string, len(cols))
			for i, col := range cols {
				names[i] = fmt.Sprintf("%s(%d)", col.GetName(), col.Len())
			}
			return &InvariantError{
				Operator: operator,
				Expected: fmt.Sprintf("%d rows", rows),
				Found:    strings.Join(names, ", "),
			}
		}
	}
	return nil
}
