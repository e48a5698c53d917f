package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the pipeline.
var (
	// ErrInvalidInput marks empty or malformed input to chunking or
	// embedding. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyIndex is the precondition failure for querying before any
	// document has been ingested.
	ErrEmptyIndex = errors.New("no documents indexed")

	// ErrCorruptSnapshot marks a snapshot whose index and record files
	// disagree and cannot be loaded.
	ErrCorruptSnapshot = errors.New("corrupt index snapshot")
)

// UpstreamError wraps a non-success response or timeout from an external
// call (embedding endpoint, LLM, vector index). Read-only operations are
// safe to retry.
type UpstreamError struct {
	Op     string // "embed", "generate", "search", ...
	Status int    // HTTP status, 0 for transport errors
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s: status %d: %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// DimensionMismatchError is a fatal configuration error: an index exists
// with a vector dimension different from the active embedding provider's.
// It is never recovered automatically.
type DimensionMismatchError struct {
	Index string
	Want  int
	Got   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("index %s: dimension mismatch: provider has %d, index has %d", e.Index, e.Want, e.Got)
}

// IsDimensionMismatch reports whether err is a DimensionMismatchError.
func IsDimensionMismatch(err error) bool {
	var dm *DimensionMismatchError
	return errors.As(err, &dm)
}
