package pipeline

import (
	"fmt"
	"time"
)

// InputError marks a malformed or unsupported input document. Fatal: it is
// reported before any page is processed.
type InputError struct {
	Err error
}

func (e *InputError) Error() string { return fmt.Sprintf("input: %v", e.Err) }
func (e *InputError) Unwrap() error { return e.Err }

// TimeoutError marks a job that exceeded its deadline. Fatal: partial
// results are discarded rather than returned silently.
type TimeoutError struct {
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("job timed out after %s", e.Limit)
	}
	return "job timed out"
}

// Diagnostic kinds recorded for non-fatal conditions.
const (
	DiagOCRUnavailable = "ocr_unavailable"
	DiagPageEdit       = "page_edit"
	DiagVerification   = "verification_failed"
)

// Diagnostic records one non-fatal condition the job survived. Nothing is
// silently swallowed: every degradation lands here.
type Diagnostic struct {
	Page int
	Kind string
	Err  error
}

func (d Diagnostic) String() string {
	if d.Page > 0 {
		return fmt.Sprintf("%s (page %d): %v", d.Kind, d.Page, d.Err)
	}
	return fmt.Sprintf("%s: %v", d.Kind, d.Err)
}
