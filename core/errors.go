package core

import (
	"errors"
	"fmt"
)

// ErrInvalidConfiguration is returned by constructors when supplied options
// cannot produce a working component (e.g. chunk overlap >= chunk size).
// Configuration errors are the only errors allowed to abort a whole run.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// ErrCallBudgetExhausted is returned by CallLimiter.Acquire once a run has
// spent its generative call budget. Workers treat it like any other degraded
// call: the branch yields its accumulated findings and stops issuing calls.
var ErrCallBudgetExhausted = errors.New("generative call budget exhausted")

// TransientError marks a provider failure that is safe to retry. After the
// retry budget is exhausted the worker that hit it degrades to an empty
// partial result; it never aborts sibling workers or the research tree.
type TransientError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient %s failure: %v", e.Provider, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *TransientError) Unwrap() error { return e.Err }

// FormatError reports generative output that never parsed, even after the
// single repair pass. Callers receive it alongside a safe default value; it
// must not propagate past the worker boundary.
type FormatError struct {
	Raw string // offending raw response, kept for logging/audit
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	return fmt.Sprintf("unrecoverable output format (%d bytes of raw text)", len(e.Raw))
}

// CacheError wraps a cache get/set failure. Always non-fatal: callers treat
// the operation as a miss and report the error through their logger.
type CacheError struct {
	Op  string // "get", "set" or "fingerprint"
	Err error
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s failed: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *CacheError) Unwrap() error { return e.Err }
