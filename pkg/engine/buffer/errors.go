package buffer

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("cell already written")
	ErrTypeMismatch = errors.New("type mismatch")
)

type AddressError struct {
	Op  string
	Ref any
	Err error
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("%s %v: %v", e.Op, e.Ref, e.Err)
}

func (e *AddressError) Unwrap() error { return e.Err }

func addrErr(op string, ref any, err error, format string, args ...any) error {
	if format != "" {
		err = fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...))
	}
	return &AddressError{Op: op, Ref: ref, Err: err}
}
