package liveq

import (
	"context"
	"errors"
	"sync"
)

// Address selects which record a record query tracks: an exact identifier
// or the first record matching a backend filter. The two modes are stated
// explicitly by the caller; nothing is inferred from the shape of the
// string. The zero Address is the valid no-query state.
type Address struct {
	id     string
	filter string
}

// ByID addresses a record by its identifier.
func ByID(id string) Address {
	return Address{id: id}
}

// ByFilter addresses the first record matching a backend filter expression.
func ByFilter(filter string) Address {
	return Address{filter: filter}
}

// IsZero reports whether the address selects nothing.
func (a Address) IsZero() bool {
	return a.id == "" && a.filter == ""
}

func (a Address) key(collection string, opts RecordOptions) string {
	if opts.QueryKey != "" {
		return opts.QueryKey
	}
	params := map[string]any{
		"one":    true,
		"expand": opts.Expand,
		"fields": opts.Fields,
	}
	if a.id != "" {
		params["id"] = a.id
	} else {
		params["filter"] = a.filter
	}
	return queryKey(collection, params)
}

// RecordOptions parameterize a record query.
type RecordOptions struct {
	// Expand and Fields pass through to the backend.
	Expand string
	Fields string

	// Realtime keeps the held record reconciled with change events until
	// Close.
	Realtime bool

	// QueryKey overrides the derived cache key.
	QueryKey string

	// Transformers overrides the Sync-level pipeline for this query.
	Transformers []Transformer

	// Default is the record published when the address is zero.
	Default Record
}

// RecordQuery tracks a single record: one deduplicated fetch, then
// change-event reconciliation scoped to the addressed record. Deleting the
// held record moves the query into a terminal error state carrying
// ErrRecordDeleted.
type RecordQuery struct {
	owner      *Sync
	collection string

	mu      sync.Mutex
	addr    Address
	opts    RecordOptions
	started bool
	closed  bool
	gen     uint64

	state   QueryState
	rec     Record
	hasData bool
	err     error
	pending []Event

	cacheCancel  func()
	unsubscribe  func() error
	observers    map[uint64]func(Result[Record])
	nextObserver uint64
}

// Start begins the query. A zero address resolves immediately to the
// default record with no backend traffic; otherwise the record is fetched
// and, when realtime is on, kept reconciled. Calling Start more than once
// has no effect.
func (q *RecordQuery) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started || q.closed {
		q.mu.Unlock()
		return
	}
	q.started = true
	gen := q.gen
	addr := q.addr
	opts := q.opts
	q.mu.Unlock()

	q.launch(ctx, gen, addr, opts)
}

// Restart supersedes the current generation with a new address and options,
// discarding the running fetch's effects and starting over from Loading.
func (q *RecordQuery) Restart(ctx context.Context, addr Address, opts RecordOptions) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.gen++
	gen := q.gen
	q.addr = addr
	q.opts = opts
	q.state = StateIdle
	q.rec = nil
	q.hasData = false
	q.err = nil
	q.pending = nil
	cacheCancel := q.cacheCancel
	q.cacheCancel = nil
	unsubscribe := q.unsubscribe
	q.unsubscribe = nil
	q.mu.Unlock()

	if cacheCancel != nil {
		cacheCancel()
	}
	if unsubscribe != nil {
		if err := unsubscribe(); err != nil {
			q.owner.log.Debug("unsubscribe failed during restart",
				"collection", q.collection, "error", err)
		}
	}

	q.publish()
	q.launch(ctx, gen, addr, opts)
}

// Close ends the caller's interest. A closed query cannot be restarted.
func (q *RecordQuery) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.gen++
	cacheCancel := q.cacheCancel
	q.cacheCancel = nil
	unsubscribe := q.unsubscribe
	q.unsubscribe = nil
	q.observers = nil
	q.mu.Unlock()

	if cacheCancel != nil {
		cacheCancel()
	}
	if unsubscribe != nil {
		if err := unsubscribe(); err != nil {
			q.owner.log.Debug("unsubscribe failed during close",
				"collection", q.collection, "error", err)
		}
	}
}

// Subscribe registers fn for every published Result from now on. The
// returned cancel function is idempotent.
func (q *RecordQuery) Subscribe(fn func(Result[Record])) func() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return func() {}
	}
	id := q.nextObserver
	q.nextObserver++
	q.observers[id] = fn
	q.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			q.mu.Lock()
			defer q.mu.Unlock()
			if q.observers != nil {
				delete(q.observers, id)
			}
		})
	}
}

// Current returns the query's result as of now.
func (q *RecordQuery) Current() Result[Record] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.resultLocked()
}

// State returns the fetch lifecycle state.
func (q *RecordQuery) State() QueryState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

func (q *RecordQuery) launch(ctx context.Context, gen uint64, addr Address, opts RecordOptions) {
	if addr.IsZero() {
		q.mu.Lock()
		if q.stale(gen) {
			q.mu.Unlock()
			return
		}
		q.readyLocked(opts.Default)
		q.mu.Unlock()
		q.publish()
		return
	}

	key := addr.key(q.collection, opts)

	cancel := q.owner.cache.Subscribe(key, func(v any) {
		q.adoptBroadcast(gen, v)
	})
	q.mu.Lock()
	if q.stale(gen) {
		q.mu.Unlock()
		cancel()
		return
	}
	q.cacheCancel = cancel
	q.state = StateFetching
	q.mu.Unlock()

	go q.fetch(ctx, gen, key, addr, opts)

	if opts.Realtime {
		go q.subscribe(ctx, gen, addr, opts)
	}
}

func (q *RecordQuery) fetch(ctx context.Context, gen uint64, key string, addr Address, opts RecordOptions) {
	value, err := q.owner.cache.FetchOrJoin(ctx, key, func() (any, error) {
		rec, err := q.fetchRecord(ctx, addr, opts)
		if err != nil {
			return nil, err
		}
		return applyTransformers(rec, q.pipeline(opts), q.owner.log), nil
	})

	if err != nil {
		if isCancellation(err) {
			q.owner.log.Debug("record fetch cancelled",
				"collection", q.collection, "key", key)
			return
		}
		q.mu.Lock()
		if q.stale(gen) {
			q.mu.Unlock()
			return
		}
		q.state = StateFailed
		q.err = err
		q.rec = nil
		q.hasData = false
		pending := q.pending
		q.pending = nil
		// A by-filter query that found nothing is an empty result, not a
		// dead one: a matching create can still fill it, including one
		// buffered while the fetch was in flight.
		if q.recoverableLocked() {
			for _, ev := range pending {
				q.processEventLocked(ev)
			}
		}
		q.mu.Unlock()
		if !errors.Is(err, ErrNotFound) {
			q.owner.log.Error("record fetch failed",
				"collection", q.collection, "key", key, "error", err)
		}
		q.publish()
		return
	}

	rec, _ := value.(Record)
	q.mu.Lock()
	if q.stale(gen) || q.state != StateFetching {
		q.mu.Unlock()
		return
	}
	q.readyLocked(rec)
	q.mu.Unlock()
	q.publish()
}

func (q *RecordQuery) fetchRecord(ctx context.Context, addr Address, opts RecordOptions) (Record, error) {
	params := FetchParams{Expand: opts.Expand, Fields: opts.Fields}
	if addr.id != "" {
		return q.owner.backend.One(ctx, q.collection, addr.id, params)
	}
	return q.owner.backend.First(ctx, q.collection, addr.filter, params)
}

// subscribe opens the change-event feed: scoped to the identifier for by-id
// addresses, to the filter across the collection for by-filter ones.
func (q *RecordQuery) subscribe(ctx context.Context, gen uint64, addr Address, opts RecordOptions) {
	scope := addr.id
	params := FetchParams{Expand: opts.Expand, Fields: opts.Fields}
	if scope == "" {
		scope = Wildcard
		params.Filter = addr.filter
	}

	unsubscribe, err := q.owner.backend.Subscribe(ctx, q.collection, scope, func(ev Event) {
		q.onEvent(gen, ev)
	}, params)
	if err != nil {
		q.owner.log.Error("record subscribe failed",
			"collection", q.collection, "error", err)
		return
	}

	q.mu.Lock()
	if q.stale(gen) {
		q.mu.Unlock()
		if err := unsubscribe(); err != nil {
			q.owner.log.Debug("unsubscribe failed for superseded subscription",
				"collection", q.collection, "error", err)
		}
		return
	}
	q.unsubscribe = unsubscribe
	q.mu.Unlock()
}

func (q *RecordQuery) onEvent(gen uint64, ev Event) {
	q.mu.Lock()
	if q.stale(gen) {
		q.mu.Unlock()
		return
	}

	mutated := false
	switch {
	case q.state == StateReady || q.recoverableLocked():
		mutated = q.processEventLocked(ev)
	case q.state == StateIdle || q.state == StateFetching:
		q.pending = append(q.pending, ev)
	}
	q.mu.Unlock()

	if mutated {
		q.publish()
	}
}

// processEventLocked folds one change event into the held record.
//
// By-id queries replace the record on update, and on create in case the
// backend replays one after a reconnect. By-filter queries guard every
// action by identifier: creates adopt only when nothing is held or the
// identifier differs, updates apply only to the held record, and deletes of
// unrelated records are ignored. Deleting the held record is terminal.
func (q *RecordQuery) processEventLocked(ev Event) bool {
	byID := q.addr.id != ""

	switch ev.Action {
	case ActionCreate:
		if !byID && q.hasData && q.rec.ID() == ev.Record.ID() {
			return false
		}
		q.holdLocked(ev.Record)
		return true

	case ActionUpdate:
		if !byID && (!q.hasData || q.rec.ID() != ev.Record.ID()) {
			return false
		}
		q.holdLocked(ev.Record)
		return true

	case ActionDelete:
		if !byID && (!q.hasData || q.rec.ID() != ev.Record.ID()) {
			return false
		}
		q.state = StateFailed
		q.err = ErrRecordDeleted
		q.rec = nil
		q.hasData = false
		q.pending = nil
		return true
	}
	return false
}

func (q *RecordQuery) holdLocked(rec Record) {
	q.state = StateReady
	q.rec = q.transformLocked(rec)
	q.hasData = true
	q.err = nil
}

func (q *RecordQuery) readyLocked(rec Record) {
	q.state = StateReady
	q.rec = rec
	q.hasData = true
	q.err = nil

	pending := q.pending
	q.pending = nil
	for _, ev := range pending {
		q.processEventLocked(ev)
	}
}

// recoverableLocked reports whether the failed state can still be revived
// by events: only a by-filter fetch that matched nothing.
func (q *RecordQuery) recoverableLocked() bool {
	return q.state == StateFailed && q.addr.filter != "" && errors.Is(q.err, ErrNotFound)
}

func (q *RecordQuery) adoptBroadcast(gen uint64, v any) {
	rec, ok := v.(Record)
	if !ok {
		return
	}

	q.mu.Lock()
	if q.stale(gen) || q.state == StateFetching {
		q.mu.Unlock()
		return
	}
	q.readyLocked(rec)
	q.mu.Unlock()
	q.publish()
}

func (q *RecordQuery) transformLocked(rec Record) Record {
	return applyTransformers(rec, q.pipeline(q.opts), q.owner.log)
}

func (q *RecordQuery) pipeline(opts RecordOptions) []Transformer {
	if opts.Transformers != nil {
		return opts.Transformers
	}
	return q.owner.transformers
}

func (q *RecordQuery) stale(gen uint64) bool {
	return q.closed || gen != q.gen
}

func (q *RecordQuery) resultLocked() Result[Record] {
	return deriveResult(q.err, q.rec, q.hasData)
}

func (q *RecordQuery) publish() {
	q.mu.Lock()
	res := q.resultLocked()
	fns := make([]func(Result[Record]), 0, len(q.observers))
	for _, fn := range q.observers {
		fns = append(fns, fn)
	}
	q.mu.Unlock()

	for _, fn := range fns {
		fn(res)
	}
}
