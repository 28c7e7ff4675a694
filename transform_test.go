package liveq

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liveq/liveq.go/pkg/logger"
)

func upperTitle(rec Record) (Record, error) {
	if s, ok := rec["title"].(string); ok {
		rec["title"] = strings.ToUpper(s)
	}
	return rec, nil
}

func TestApplyTransformers(t *testing.T) {
	log := logger.Nop()

	t.Run("stages run left to right", func(t *testing.T) {
		first := func(rec Record) (Record, error) {
			rec["trail"] = "first"
			return rec, nil
		}
		second := func(rec Record) (Record, error) {
			rec["trail"] = rec["trail"].(string) + ",second"
			return rec, nil
		}

		out := applyTransformers(Record{"id": "r1"}, []Transformer{first, second}, log)
		assert.Equal(t, "first,second", out["trail"])
	})

	t.Run("empty pipeline returns the record untouched", func(t *testing.T) {
		rec := Record{"id": "r1"}
		out := applyTransformers(rec, nil, log)
		assert.Equal(t, rec, out)
	})

	t.Run("input record is never mutated", func(t *testing.T) {
		rec := Record{"id": "r1", "title": "hello"}
		out := applyTransformers(rec, []Transformer{upperTitle}, log)

		assert.Equal(t, "HELLO", out["title"])
		assert.Equal(t, "hello", rec["title"])
	})

	t.Run("failing stage is skipped, not the pipeline", func(t *testing.T) {
		// The failing stage mutates its input before erroring; the next
		// stage must still see the record as it was before that stage.
		failing := func(rec Record) (Record, error) {
			rec["title"] = "corrupted"
			return nil, errors.New("boom")
		}

		out := applyTransformers(Record{"id": "r1", "title": "hello"}, []Transformer{failing, upperTitle}, log)
		require.Equal(t, "HELLO", out["title"])
	})

	t.Run("panicking stage is contained", func(t *testing.T) {
		panicking := func(Record) (Record, error) {
			panic("transformer bug")
		}

		var out Record
		require.NotPanics(t, func() {
			out = applyTransformers(Record{"id": "r1", "title": "hello"}, []Transformer{panicking, upperTitle}, log)
		})
		assert.Equal(t, "HELLO", out["title"])
	})

	t.Run("nil result counts as a failure", func(t *testing.T) {
		vanish := func(Record) (Record, error) {
			return nil, nil
		}

		out := applyTransformers(Record{"id": "r1", "title": "hello"}, []Transformer{vanish, upperTitle}, log)
		require.NotNil(t, out)
		assert.Equal(t, "HELLO", out["title"])
	})
}

func TestNormalizeDates(t *testing.T) {
	t.Run("default fields", func(t *testing.T) {
		rec := Record{
			"id":      "r1",
			"created": "2024-05-01 10:30:00.123Z",
			"updated": "2024-05-02T08:00:00Z",
			"title":   "2024-05-01 10:30:00.123Z",
		}

		out, err := NormalizeDates()(rec)
		require.NoError(t, err)

		created, ok := out["created"].(time.Time)
		require.True(t, ok, "created should parse to time.Time, got %T", out["created"])
		assert.Equal(t, 2024, created.Year())
		_, ok = out["updated"].(time.Time)
		assert.True(t, ok)
		// Untargeted fields stay strings even when they look like dates.
		_, ok = out["title"].(string)
		assert.True(t, ok)
	})

	t.Run("explicit fields", func(t *testing.T) {
		rec := Record{"id": "r1", "due": "2024-12-31", "created": "2024-05-01"}

		out, err := NormalizeDates("due")(rec)
		require.NoError(t, err)

		_, ok := out["due"].(time.Time)
		assert.True(t, ok)
		_, ok = out["created"].(string)
		assert.True(t, ok)
	})

	t.Run("unparseable and non-string values pass through", func(t *testing.T) {
		rec := Record{"id": "r1", "created": "not a date", "updated": 12345}

		out, err := NormalizeDates()(rec)
		require.NoError(t, err)

		assert.Equal(t, "not a date", out["created"])
		assert.Equal(t, 12345, out["updated"])
	})
}
