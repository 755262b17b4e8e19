package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamStatus, "image service failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("image")

	assert.Equal(t, ErrUpstreamStatus, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, root)
	assert.Contains(t, err.Error(), "UPSTREAM_STATUS")
}

func TestError_FoundThroughWrapping(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("node llm: %w", NewError(ErrRecursionLimit, "limit 3 reached"))

	e, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrRecursionLimit, e.Code)
	assert.True(t, IsErrorCode(wrapped, ErrRecursionLimit))
	assert.False(t, IsErrorCode(wrapped, ErrUpstreamTimeout))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}
