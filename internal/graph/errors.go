package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors for the shared taxonomy. Callers dispatch with errors.Is;
// typed wrappers below carry the offending field where one exists.
var (
	// ErrUnknownLabel is returned when a mutation or query references a
	// label or relationship type absent from the schema registry.
	ErrUnknownLabel = errors.New("unknown label")

	// ErrSchemaViolation is returned for undeclared or mistyped properties
	// under strict schema mode, and for missing required properties.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrDanglingReference is returned when an edge operation references a
	// node present in neither the store nor earlier in the batch.
	ErrDanglingReference = errors.New("dangling reference")

	// ErrConflict is returned after the concurrent-update retry budget is
	// exhausted. The whole batch is safe to resubmit: all mutations are
	// idempotent via deterministic ids.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrUnsupportedShape is returned for queries whose RETURN clause does
	// not yield exactly one expression.
	ErrUnsupportedShape = errors.New("unsupported result shape")

	// ErrQueryRejected is returned for queries that fail validation before
	// execution: write clauses, unlabeled patterns, unparseable text.
	ErrQueryRejected = errors.New("query rejected")

	// ErrQueryTimeout is returned when execution exceeds the wall-clock
	// bound. Partial results are discarded.
	ErrQueryTimeout = errors.New("query timeout")

	// ErrStorageUnavailable is returned when the underlying store cannot be
	// reached. The caller owns the retry decision; nothing is queued.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrNotFound is returned by point lookups for absent records.
	ErrNotFound = errors.New("not found")
)

// BatchError wraps the first failing operation of a mutation batch with its
// zero-based index. The batch as a whole was not applied.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch operation %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// ViolationError carries the offending label/property for schema failures.
type ViolationError struct {
	Label    string
	Property string
	Reason   string
	Sentinel error // ErrUnknownLabel or ErrSchemaViolation
}

func (e *ViolationError) Error() string {
	if e.Property != "" {
		return fmt.Sprintf("%v: %s on %s.%s", e.Sentinel, e.Reason, e.Label, e.Property)
	}
	return fmt.Sprintf("%v: %s on %s", e.Sentinel, e.Reason, e.Label)
}

func (e *ViolationError) Unwrap() error { return e.Sentinel }
