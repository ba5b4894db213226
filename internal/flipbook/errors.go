package flipbook

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited means admission was denied for the current window.
	ErrRateLimited = errors.New("rate limit exceeded, try again later")

	// ErrQuotaExceeded means the identifier already owns the maximum
	// number of flipbooks.
	ErrQuotaExceeded = errors.New("flipbook limit reached for this session")

	// ErrUnauthorized means the caller does not own the record.
	ErrUnauthorized = errors.New("not the owner of this flipbook")

	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("flipbook not found")
)

// RejectReason names why the validator refused an upload.
type RejectReason string

const (
	ReasonTooLarge        RejectReason = "TooLarge"
	ReasonUnsupportedType RejectReason = "UnsupportedType"
)

// ValidationError is returned when a stored upload fails the post-store
// checks. By the time the caller sees it the offending blob has already
// been deleted.
type ValidationError struct {
	Reason  RejectReason
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewTooLarge builds the rejection for an upload over the byte limit.
func NewTooLarge(limit int64) *ValidationError {
	return &ValidationError{
		Reason:  ReasonTooLarge,
		Message: fmt.Sprintf("file size exceeds %dMB limit", limit>>20),
	}
}

// NewUnsupportedType builds the rejection for a non-PDF upload.
func NewUnsupportedType(mimeType string) *ValidationError {
	return &ValidationError{
		Reason:  ReasonUnsupportedType,
		Message: fmt.Sprintf("only PDF files are allowed, got %q", mimeType),
	}
}

// TransportError wraps a network-level failure during byte transfer.
// Transient by nature, but never retried automatically; retry is a fresh
// user-initiated attempt.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "upload transfer failed: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports malformed or unsupported PDF content. Not retried;
// a failed decode aborts the whole page sequence.
type DecodeError struct {
	Page int // 0 when the document itself failed to open
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("failed to decode page %d: %v", e.Page, e.Err)
	}
	return fmt.Sprintf("failed to decode PDF: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
