package wsclient

import (
	"github.com/liveq/liveq.go"
)

// eventBuffer is the per-subscription event queue depth. Events beyond it
// are dropped with a warning rather than blocking the read loop.
const eventBuffer = 256

// subscription is one live change-event feed. Events are drained by a
// dedicated goroutine so delivery order within a subscription is preserved
// and a slow callback never stalls the connection's read loop.
type subscription struct {
	id         string
	collection string
	scope      string
	params     liveq.FetchParams

	events chan liveq.Event
	stop   chan struct{}
}

func newSubscription(id, collection, scope string, params liveq.FetchParams) *subscription {
	return &subscription{
		id:         id,
		collection: collection,
		scope:      scope,
		params:     params,
		events:     make(chan liveq.Event, eventBuffer),
		stop:       make(chan struct{}),
	}
}

func (s *subscription) run(fn func(liveq.Event)) {
	for {
		select {
		case <-s.stop:
			return
		case ev := <-s.events:
			fn(ev)
		}
	}
}
