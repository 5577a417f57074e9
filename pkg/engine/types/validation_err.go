package types

import (
	"errors"
	"fmt"
	"strings"
)

type ValidationError struct {
	Problems []ErrWithCtx
}

type ErrWithCtx struct {
	Error   string `json:"error"`
	Context string `json:"context,omitempty"`
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("validation failed: %s (%s)", e.Problems[0].Error, e.Problems[0].Context)
	}
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error
		if p.Context != "" {
			msgs[i] += " (" + p.Context + ")"
		}
	}
	return fmt.Sprintf("validation failed with %d problems: %s", len(e.Problems), strings.Join(msgs, "; "))
}

func (e *ValidationError) Add(err string, context string) {
	e.Problems = append(e.Problems, ErrWithCtx{
		Error:   err,
		Context: context,
	})
}

func (e *ValidationError) Extend(other error) {
	var vErr *ValidationError
	if errors.As(other, &vErr) {
		e.Problems = append(e.Problems, vErr.Problems...)
		return
	}
	e.Add(other.Error(), "")
}

func (e *ValidationError) HasProblems() bool {
	return len(e.Problems) > 0
}

// OrNil returns the error only when it carries problems.
func (e *ValidationError) OrNil() error {
	if e.HasProblems() {
		return e
	}
	return nil
}

func NewVErr(err string, context string) error {
	return &ValidationError{
		Problems: []ErrWithCtx{
			{
				Error:   err,
				Context: context,
			},
		},
	}
}

// ToProblems flattens any error into the problem list served over HTTP.
func ToProblems(err error) []ErrWithCtx {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr.Problems
	}
	return []ErrWithCtx{{Error: err.Error()}}
}
