package bedreport

import (
	"fmt"
)

// FetchError is returned when the upstream document could not be retrieved after all retries.
type FetchError struct {
	Url string
	// Status is the last HTTP status seen, 0 when no response was received.
	Status   int
	Attempts int
	Cause    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s)", e.Url, e.Status, e.Attempts)
	}
	return fmt.Sprintf("fetch %s: %v (after %d attempt(s))", e.Url, e.Cause, e.Attempts)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// ExtractionError means the document did not yield any usable rows, this usually means the
// upstream structure has changed.
type ExtractionError struct {
	Reason string
	Cause  error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Cause)
	}
	return e.Reason
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

const reasonNoRows = "no rows found"

func errNoRows(detail string) *ExtractionError {
	return &ExtractionError{Reason: reasonNoRows, Cause: fmt.Errorf("%s", detail)}
}

// RowError describes a single row that was dropped or repaired, it never aborts a cycle.
type RowError struct {
	Row    int
	Reason string
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}
