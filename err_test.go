package liveq

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBackendError(t *testing.T) {
	t.Run("message is the error text", func(t *testing.T) {
		err := &BackendError{Status: 400, Message: "invalid filter"}
		assert.Equal(t, "invalid filter", err.Error())
	})

	t.Run("status-only fallback", func(t *testing.T) {
		err := &BackendError{Status: 500}
		assert.Equal(t, "backend error (status 500)", err.Error())
	})

	t.Run("404 matches ErrNotFound", func(t *testing.T) {
		assert.ErrorIs(t, &BackendError{Status: 404}, ErrNotFound)
		assert.ErrorIs(t, fmt.Errorf("one: %w", &BackendError{Status: 404}), ErrNotFound)
		assert.NotErrorIs(t, &BackendError{Status: 500}, ErrNotFound)
	})
}

func TestIsCancellation(t *testing.T) {
	assert.True(t, isCancellation(ErrCancelled))
	assert.True(t, isCancellation(fmt.Errorf("fetch: %w", ErrCancelled)))
	assert.True(t, isCancellation(context.Canceled))
	assert.False(t, isCancellation(context.DeadlineExceeded), "a timeout is a real failure")
	assert.False(t, isCancellation(errors.New("boom")))
	assert.False(t, isCancellation(nil))
}

func TestErrorMessage(t *testing.T) {
	assert.Empty(t, errorMessage(nil))
	assert.Equal(t, "boom", errorMessage(errors.New("boom")))
	assert.Equal(t, "no rows", errorMessage(&BackendError{Status: 404, Message: "no rows"}))
	assert.Equal(t, "no rows", errorMessage(fmt.Errorf("first: %w", &BackendError{Status: 404, Message: "no rows"})))
	assert.Equal(t, "something went wrong", errorMessage(errors.New("")))
}
