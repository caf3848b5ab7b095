package rag

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindNotFound, KindOf(NewNotFound("missing")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain error")))
}

func TestKindOf_UnwrapsWrappedError(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", NewStoreError("db down", errors.New("conn refused")))
	assert.Equal(t, KindStoreError, KindOf(wrapped))
}

func TestError_MessageIncludesCause(t *testing.T) {
	cause := errors.New("boom")
	err := NewExtractFailed("could not parse", cause)
	assert.Contains(t, err.Error(), "ExtractFailed")
	assert.Contains(t, err.Error(), "could not parse")
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestError_MessageWithoutCause(t *testing.T) {
	err := NewValidationError("title is required")
	assert.Equal(t, "ValidationError: title is required", err.Error())
}
