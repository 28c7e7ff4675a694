package liveq

import (
	"github.com/tiendc/go-deepcopy"
)

// IDField is the record field holding the unique identifier. Every record
// handled by the sync core carries one.
const IDField = "id"

// Record is an opaque field-name-to-value mapping. The core never
// interprets field semantics beyond the identifier, the sort field, and
// whatever fields transformers target.
type Record map[string]any

// ID returns the record identifier, or "" when the field is absent or not a
// string.
func (r Record) ID() string {
	id, _ := r[IDField].(string)
	return id
}

// Clone returns a deep copy of the record. The transformer pipeline hands
// each stage a clone it owns, so a stage may mutate its input freely
// without aliasing anything held elsewhere.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}

	var out Record
	if err := deepcopy.Copy(&out, &r); err != nil {
		// Records are plain decoded maps; copying one cannot fail.
		panic(err)
	}
	return out
}
