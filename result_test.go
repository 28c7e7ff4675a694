package liveq

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exclusive[T any](t *testing.T, r Result[T]) {
	t.Helper()
	states := 0
	for _, set := range []bool{r.IsLoading, r.IsSuccess, r.IsError} {
		if set {
			states++
		}
	}
	require.Equal(t, 1, states, "result must be in exactly one state: %+v", r)
}

func TestDeriveResult(t *testing.T) {
	t.Run("no data and no error is loading", func(t *testing.T) {
		r := deriveResult[[]Record](nil, nil, false)
		exclusive(t, r)
		assert.True(t, r.IsLoading)
		assert.Empty(t, r.Error)
		assert.Nil(t, r.Data)
	})

	t.Run("data without error is success", func(t *testing.T) {
		r := deriveResult(nil, []Record{{"id": "r1"}}, true)
		exclusive(t, r)
		assert.True(t, r.IsSuccess)
		assert.Len(t, r.Data, 1)
	})

	t.Run("empty data is still success", func(t *testing.T) {
		r := deriveResult(nil, []Record{}, true)
		exclusive(t, r)
		assert.True(t, r.IsSuccess)
	})

	t.Run("error wins over data", func(t *testing.T) {
		r := deriveResult(errors.New("boom"), []Record{{"id": "r1"}}, true)
		exclusive(t, r)
		assert.True(t, r.IsError)
		assert.Equal(t, "boom", r.Error)
		assert.Nil(t, r.Data, "an error result never carries data")
	})

	t.Run("backend message is used verbatim", func(t *testing.T) {
		err := &BackendError{Status: 500, Message: "Something went wrong while processing your request."}
		r := deriveResult[Record](err, nil, false)
		assert.Equal(t, "Something went wrong while processing your request.", r.Error)
	})

	t.Run("deleted record message", func(t *testing.T) {
		r := deriveResult[Record](ErrRecordDeleted, nil, false)
		assert.True(t, r.IsError)
		assert.Equal(t, "Record has been deleted", r.Error)
	})
}
