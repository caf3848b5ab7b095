package rag

import (
	"fmt"
	"time"
)

// Kind classifies an Error into the machine-readable taxonomy every
// component in the RAG core uses to report failures.
type Kind string

const (
	// KindValidation marks bad caller input: missing title, empty
	// question, oversized upload.
	KindValidation Kind = "ValidationError"
	// KindExtractFailed marks a PDF that could not be parsed or that
	// yielded no text.
	KindExtractFailed Kind = "ExtractFailed"
	// KindEmbeddingPartial marks an ingestion where some chunks embedded
	// and some did not.
	KindEmbeddingPartial Kind = "EmbeddingPartial"
	// KindModelRateLimited marks a provider-signaled throttle response.
	KindModelRateLimited Kind = "ModelRateLimited"
	// KindModelTransient marks a 5xx or connection-reset response from
	// the model provider, eligible for retry.
	KindModelTransient Kind = "ModelTransient"
	// KindModelQueueFull marks Model Client backpressure: the bounded
	// request queue is at capacity.
	KindModelQueueFull Kind = "ModelQueueFull"
	// KindModelTimeout marks a request that was removed from the Model
	// Client's queue after its deadline expired.
	KindModelTimeout Kind = "ModelTimeout"
	// KindStoreError marks a database or transaction failure.
	KindStoreError Kind = "StoreError"
	// KindNotFound marks an unknown document id.
	KindNotFound Kind = "NotFound"
	// KindInternal marks anything else; logged in detail internally,
	// surfaced generically to callers.
	KindInternal Kind = "Internal"
)

// Error is the error type returned by every exported RAG core operation.
// It preserves a machine-readable Kind alongside a human message and an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	// RetryAfter is the provider-supplied hint for how long to wait before
	// trying again. Only meaningful for KindModelRateLimited; zero means
	// the provider gave no hint.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	switch {
	case e.RetryAfter > 0:
		return fmt.Sprintf("%s: %s (retry after %s)", e.Kind, e.Message, e.RetryAfter)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// newError constructs an *Error of the given kind.
func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func NewValidationError(message string) *Error {
	return newError(KindValidation, message, nil)
}

func NewExtractFailed(message string, cause error) *Error {
	return newError(KindExtractFailed, message, cause)
}

func NewEmbeddingPartial(message string) *Error {
	return newError(KindEmbeddingPartial, message, nil)
}

// NewModelRateLimited reports a provider-signaled throttle. retryAfter
// carries the provider's hint, if any; zero means none was given.
func NewModelRateLimited(message string, retryAfter time.Duration) *Error {
	err := newError(KindModelRateLimited, message, nil)
	err.RetryAfter = retryAfter
	return err
}

func NewModelTransient(message string, cause error) *Error {
	return newError(KindModelTransient, message, cause)
}

func NewModelQueueFull(message string) *Error {
	return newError(KindModelQueueFull, message, nil)
}

func NewModelTimeout(message string) *Error {
	return newError(KindModelTimeout, message, nil)
}

func NewStoreError(message string, cause error) *Error {
	return newError(KindStoreError, message, cause)
}

func NewNotFound(message string) *Error {
	return newError(KindNotFound, message, nil)
}

func NewInternal(message string, cause error) *Error {
	return newError(KindInternal, message, cause)
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error,
// otherwise it returns KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var rerr *Error
	if as(err, &rerr) {
		return rerr.Kind
	}
	return KindInternal
}

// as walks err's single-cause Unwrap chain and stores the first *Error it
// finds in target, reporting whether one was found. It does not call
// errors.As and does not follow Unwrap() []error.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
