package liveq

import (
	"context"
	"slices"
	"sync"
)

// QueryState tracks where a query is in its fetch lifecycle. Realtime
// subscription state is tracked separately: a query can be Subscribed while
// still Fetching.
type QueryState int

const (
	StateIdle QueryState = iota
	StateFetching
	StateReady
	StateFailed
)

// String implements fmt.Stringer.
func (s QueryState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateFetching:
		return "Fetching"
	case StateReady:
		return "Ready"
	case StateFailed:
		return "Failed"
	default:
		return "InvalidState"
	}
}

const (
	defaultPage    = 1
	defaultPerPage = 30
)

// CollectionOptions parameterize a collection query. The zero value fetches
// the first page of the collection with no realtime updates.
type CollectionOptions struct {
	// Filter, Sort, Expand and Fields pass through to the backend and scope
	// the change-event subscription. Sort additionally drives local
	// re-sorting during reconciliation; see parseSortSpec for its shape.
	Filter string
	Sort   string
	Expand string
	Fields string

	// Page and PerPage select one page when FullList is false. They
	// default to 1 and 30.
	Page    int
	PerPage int

	// FullList fetches the entire collection instead of one page.
	FullList bool

	// Disabled short-circuits the query: no fetch, no subscription, result
	// immediately successful with Default. A disabled query is a valid
	// terminal configuration, not an error.
	Disabled bool

	// Realtime opens a change-event subscription that keeps the fetched
	// list reconciled until Close.
	Realtime bool

	// SkipFetch starts from Default without an initial fetch. Combined
	// with Realtime the query is purely event-driven.
	SkipFetch bool

	// QueryKey overrides the derived cache key for callers that manage
	// request identity manually.
	QueryKey string

	// Transformers overrides the Sync-level pipeline for this query. An
	// empty non-nil slice disables transformation.
	Transformers []Transformer

	// Default is the list published while no fetched data exists, for
	// disabled and skip-fetch queries.
	Default []Record
}

func (o CollectionOptions) key(collection string) string {
	if o.QueryKey != "" {
		return o.QueryKey
	}
	params := map[string]any{
		"filter": o.Filter,
		"sort":   o.Sort,
		"expand": o.Expand,
		"fields": o.Fields,
	}
	if !o.FullList {
		params["page"] = o.page()
		params["perPage"] = o.perPage()
	}
	return queryKey(collection, params)
}

func (o CollectionOptions) page() int {
	if o.Page < 1 {
		return defaultPage
	}
	return o.Page
}

func (o CollectionOptions) perPage() int {
	if o.PerPage < 1 {
		return defaultPerPage
	}
	return o.PerPage
}

func (o CollectionOptions) fetchParams() FetchParams {
	return FetchParams{
		Filter: o.Filter,
		Sort:   o.Sort,
		Expand: o.Expand,
		Fields: o.Fields,
	}
}

// CollectionQuery keeps a collection query result synchronized against the
// backend: one deduplicated fetch through the query cache, then change-event
// reconciliation until Close.
//
// The lifecycle is owned by the caller: Start once when interest begins,
// Restart when the parameters change, Close when interest ends. Results are
// read with Current or pushed through Subscribe.
type CollectionQuery struct {
	owner      *Sync
	collection string

	mu      sync.Mutex
	opts    CollectionOptions
	started bool
	closed  bool

	// gen is bumped by Restart and Close. Every asynchronous effect
	// captures the generation it was started under and is discarded when
	// the generations no longer match, which is how superseded fetches and
	// subscriptions die without being chased.
	gen uint64

	state   QueryState
	items   []Record
	hasData bool
	err     error

	// pending buffers events that arrive while the initial fetch is still
	// in flight; they replay in order once it lands.
	pending []Event

	cacheCancel  func()
	unsubscribe  func() error
	observers    map[uint64]func(Result[[]Record])
	nextObserver uint64
}

// Start begins the query: the initial fetch, unless disabled or skipped,
// and the change-event subscription when realtime is on. ctx bounds
// establishment of both; the subscription itself lives until Close. Calling
// Start more than once has no effect.
func (q *CollectionQuery) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started || q.closed {
		q.mu.Unlock()
		return
	}
	q.started = true
	gen := q.gen
	opts := q.opts
	q.mu.Unlock()

	q.launch(ctx, gen, opts)
}

// Restart supersedes the current generation with new options. The running
// fetch, if any, keeps going, but its effects are discarded when it lands;
// the subscription is torn down; and the query begins again from Loading.
func (q *CollectionQuery) Restart(ctx context.Context, opts CollectionOptions) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.gen++
	gen := q.gen
	q.opts = opts
	q.state = StateIdle
	q.items = nil
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
	q.launch(ctx, gen, opts)
}

// Close ends the caller's interest: the subscription and the cache
// registration are released and any in-flight completion is discarded. A
// closed query cannot be restarted.
func (q *CollectionQuery) Close() {
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
func (q *CollectionQuery) Subscribe(fn func(Result[[]Record])) func() {
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
func (q *CollectionQuery) Current() Result[[]Record] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.resultLocked()
}

// State returns the fetch lifecycle state.
func (q *CollectionQuery) State() QueryState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// launch drives one generation: disabled short-circuit, cache registration,
// subscription, fetch. Each asynchronous leg re-checks the generation
// before touching query state.
func (q *CollectionQuery) launch(ctx context.Context, gen uint64, opts CollectionOptions) {
	if opts.Disabled {
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

	key := opts.key(q.collection)

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

	if opts.SkipFetch {
		q.readyLocked(opts.Default)
		q.mu.Unlock()
		q.publish()
	} else {
		q.state = StateFetching
		q.mu.Unlock()
		go q.fetch(ctx, gen, key, opts)
	}

	if opts.Realtime {
		go q.subscribe(ctx, gen, opts)
	}
}

// fetch resolves the initial list through the query cache, so concurrent
// queries with the same key share one backend call.
func (q *CollectionQuery) fetch(ctx context.Context, gen uint64, key string, opts CollectionOptions) {
	value, err := q.owner.cache.FetchOrJoin(ctx, key, func() (any, error) {
		items, err := q.fetchItems(ctx, opts)
		if err != nil {
			return nil, err
		}
		out := make([]Record, 0, len(items))
		for _, rec := range items {
			out = append(out, applyTransformers(rec, q.pipeline(opts), q.owner.log))
		}
		return out, nil
	})

	if err != nil {
		if isCancellation(err) {
			q.owner.log.Debug("collection fetch cancelled",
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
		q.items = nil
		q.hasData = false
		q.pending = nil
		q.mu.Unlock()
		q.owner.log.Error("collection fetch failed",
			"collection", q.collection, "key", key, "error", err)
		q.publish()
		return
	}

	items, _ := value.([]Record)
	q.mu.Lock()
	if q.stale(gen) || q.state != StateFetching {
		q.mu.Unlock()
		return
	}
	q.readyLocked(items)
	q.mu.Unlock()
	q.publish()
}

func (q *CollectionQuery) fetchItems(ctx context.Context, opts CollectionOptions) ([]Record, error) {
	if opts.FullList {
		return q.owner.backend.List(ctx, q.collection, opts.fetchParams())
	}
	page, err := q.owner.backend.Page(ctx, q.collection, opts.page(), opts.perPage(), opts.fetchParams())
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// subscribe opens the change-event feed. It runs concurrently with the
// initial fetch so no event in the gap is missed; events that arrive before
// the fetch lands are buffered by onEvent.
func (q *CollectionQuery) subscribe(ctx context.Context, gen uint64, opts CollectionOptions) {
	unsubscribe, err := q.owner.backend.Subscribe(ctx, q.collection, Wildcard, func(ev Event) {
		q.onEvent(gen, ev)
	}, opts.fetchParams())
	if err != nil {
		// Fetched data stays usable without the feed; this is a
		// degradation, not a query failure.
		q.owner.log.Error("collection subscribe failed",
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

func (q *CollectionQuery) onEvent(gen uint64, ev Event) {
	q.mu.Lock()
	if q.stale(gen) {
		q.mu.Unlock()
		return
	}

	mutated := false
	switch q.state {
	case StateReady:
		q.reconcileLocked(ev)
		mutated = true
	case StateIdle, StateFetching:
		q.pending = append(q.pending, ev)
	case StateFailed:
		// Nothing to reconcile against.
	}
	q.mu.Unlock()

	if mutated {
		q.publish()
	}
}

// reconcileLocked folds one change event into the current list: create
// appends, update replaces the record in place or appends when the record
// only now entered scope, delete removes. The fold always reads the list as
// it is now, never a snapshot, and the list is re-sorted after every event
// so local order never goes stale.
func (q *CollectionQuery) reconcileLocked(ev Event) {
	switch ev.Action {
	case ActionCreate:
		q.items = append(q.items, q.transformLocked(ev.Record))
	case ActionUpdate:
		rec := q.transformLocked(ev.Record)
		replaced := false
		for i, cur := range q.items {
			if cur.ID() == rec.ID() {
				q.items[i] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			q.items = append(q.items, rec)
		}
	case ActionDelete:
		id := ev.Record.ID()
		for i, cur := range q.items {
			if cur.ID() == id {
				q.items = append(q.items[:i], q.items[i+1:]...)
				break
			}
		}
	}

	if spec, ok := parseSortSpec(q.opts.Sort); ok {
		sortRecords(q.items, spec)
	}
}

// readyLocked installs items as the current list and replays any events
// buffered during the fetch, in arrival order. The slice is copied because
// reconciliation splices it in place and the source may be shared with
// other observers of the same cache key.
func (q *CollectionQuery) readyLocked(items []Record) {
	q.state = StateReady
	q.items = slices.Clone(items)
	q.hasData = true
	q.err = nil

	pending := q.pending
	q.pending = nil
	for _, ev := range pending {
		q.reconcileLocked(ev)
	}
}

// adoptBroadcast applies a successful fetch performed by another observer
// of the same cache key: shared keys stay consistent without extra backend
// calls. Values are ignored while this query's own fetch is in flight,
// because that fetch delivers the same value through fetch.
func (q *CollectionQuery) adoptBroadcast(gen uint64, v any) {
	items, ok := v.([]Record)
	if !ok {
		return
	}

	q.mu.Lock()
	if q.stale(gen) || q.state == StateFetching {
		q.mu.Unlock()
		return
	}
	q.readyLocked(items)
	q.mu.Unlock()
	q.publish()
}

func (q *CollectionQuery) transformLocked(rec Record) Record {
	return applyTransformers(rec, q.pipeline(q.opts), q.owner.log)
}

func (q *CollectionQuery) pipeline(opts CollectionOptions) []Transformer {
	if opts.Transformers != nil {
		return opts.Transformers
	}
	return q.owner.transformers
}

func (q *CollectionQuery) stale(gen uint64) bool {
	return q.closed || gen != q.gen
}

func (q *CollectionQuery) resultLocked() Result[[]Record] {
	return deriveResult(q.err, slices.Clone(q.items), q.hasData)
}

// publish delivers the current result to every observer. Callbacks run
// outside the query lock, so an observer may call back into the query.
func (q *CollectionQuery) publish() {
	q.mu.Lock()
	res := q.resultLocked()
	fns := make([]func(Result[[]Record]), 0, len(q.observers))
	for _, fn := range q.observers {
		fns = append(fns, fn)
	}
	q.mu.Unlock()

	for _, fn := range fns {
		fn(res)
	}
}
