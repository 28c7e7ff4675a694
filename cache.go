package liveq

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/liveq/liveq.go/pkg/logger"
)

// QueryCache deduplicates in-flight fetches by query key and fans each
// successful value out to the key's observers. It holds no global state:
// every Sync owns one, and several Sync instances may share one to widen
// the deduplication domain.
//
// Entries are created lazily by the first fetch or subscription for a key
// and evicted the moment the key has no observers and no fetch in flight,
// so an unused cache holds nothing.
type QueryCache struct {
	mu      sync.Mutex
	group   singleflight.Group
	entries map[string]*cacheEntry
	nextID  uint64
	log     logger.Logger
}

type cacheEntry struct {
	// inflight counts fetches currently running for the key: 0 or 1, with
	// joiners sharing the one flight.
	inflight int
	// value and err are the settled outcome of the most recent fetch.
	value    any
	hasValue bool
	err      error

	observers map[uint64]func(any)
}

// NewQueryCache returns an empty cache. A nil log discards cache logging.
func NewQueryCache(log logger.Logger) *QueryCache {
	if log == nil {
		log = logger.Nop()
	}
	return &QueryCache{
		entries: make(map[string]*cacheEntry),
		log:     log,
	}
}

// FetchOrJoin returns the outcome of the single fetch in flight for key,
// invoking producer only when none is: concurrent callers share one
// producer run and all receive its value or error. A successful value is
// stored and broadcast to every observer of key before any caller resumes;
// a failure is stored and returned to callers but never broadcast.
//
// Cancelling ctx detaches only the caller. The flight keeps running, and
// its successful value is still stored and broadcast, so a fetch is never
// lost to an impatient caller.
func (c *QueryCache) FetchOrJoin(ctx context.Context, key string, producer func() (any, error)) (any, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		c.beginFlight(key)
		value, err := producer()
		c.settle(key, value, err)
		return value, err
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// Subscribe registers fn to receive every future successful value stored
// for key. Registering never triggers a fetch; it only arranges delivery.
// The returned cancel function is idempotent and releases the entry once
// nothing else holds it.
func (c *QueryCache) Subscribe(key string, fn func(any)) func() {
	c.mu.Lock()
	e := c.entryLocked(key)
	id := c.nextID
	c.nextID++
	e.observers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			e, ok := c.entries[key]
			if !ok {
				return
			}
			delete(e.observers, id)
			c.evictLocked(key, e)
		})
	}
}

// Clear drops every entry and detaches running flights from their keys.
// Meant for owner shutdown and test teardown, after queries are closed.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		c.group.Forget(key)
	}
	c.entries = make(map[string]*cacheEntry)
}

func (c *QueryCache) beginFlight(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entryLocked(key).inflight++
}

// settle records a flight's outcome and broadcasts successful values.
// Observer callbacks run outside the cache lock but before the flight
// resolves for its callers, so no observer ever sees a half-stored value.
func (c *QueryCache) settle(key string, value any, err error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.inflight--

	var observers []func(any)
	if err != nil {
		e.err = err
	} else {
		e.value = value
		e.hasValue = true
		e.err = nil
		observers = make([]func(any), 0, len(e.observers))
		for _, fn := range e.observers {
			observers = append(observers, fn)
		}
	}
	c.evictLocked(key, e)
	c.mu.Unlock()

	if len(observers) > 0 {
		c.log.Debug("broadcasting fetched value", "key", key, "observers", len(observers))
	}
	for _, fn := range observers {
		fn(value)
	}
}

func (c *QueryCache) entryLocked(key string) *cacheEntry {
	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry{observers: make(map[uint64]func(any))}
		c.entries[key] = e
	}
	return e
}

// evictLocked drops the entry once nothing references it. The inflight
// check is <= so that a flight settling after Clear cleans up the entry it
// recreated.
func (c *QueryCache) evictLocked(key string, e *cacheEntry) {
	if e.inflight <= 0 && len(e.observers) == 0 {
		delete(c.entries, key)
		c.log.Debug("evicted idle query", "key", key)
	}
}
