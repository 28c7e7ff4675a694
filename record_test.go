package liveq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordID(t *testing.T) {
	assert.Equal(t, "p1", Record{"id": "p1"}.ID())
	assert.Empty(t, Record{}.ID())
	assert.Empty(t, Record{"id": 42}.ID(), "a non-string identifier reads as absent")
	assert.Empty(t, Record(nil).ID())
}

func TestRecordClone(t *testing.T) {
	t.Run("nil clones to nil", func(t *testing.T) {
		assert.Nil(t, Record(nil).Clone())
	})

	t.Run("nested values are copied, not aliased", func(t *testing.T) {
		rec := Record{
			"id":   "r1",
			"meta": map[string]any{"tags": []any{"a", "b"}},
		}

		clone := rec.Clone()
		clone["id"] = "r2"
		clone["meta"].(map[string]any)["tags"].([]any)[0] = "z"

		assert.Equal(t, "r1", rec.ID())
		assert.Equal(t, "a", rec["meta"].(map[string]any)["tags"].([]any)[0])
		assert.Equal(t, "z", clone["meta"].(map[string]any)["tags"].([]any)[0])
	})
}
