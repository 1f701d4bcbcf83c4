package ingest

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by the pipeline wraps exactly one.
var (
	ErrProvider     = errors.New("embedding provider failure")
	ErrIndex        = errors.New("vector index failure")
	ErrAudit        = errors.New("audit log failure")
	ErrInvalidScope = errors.New("invalid scope")
)

// kindError tags a cause with a failure kind while keeping both visible to errors.Is.
type kindError struct {
	kind error
	op   string
	err  error
}

func (e *kindError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.op, e.kind, e.err)
}

func (e *kindError) Unwrap() []error { return []error{e.kind, e.err} }

func wrap(kind error, op string, err error) error {
	return &kindError{kind: kind, op: op, err: err}
}
