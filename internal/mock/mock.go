// Package mock provides an in-memory record backend for tests and
// examples: a seedable store, manual event injection, and call counters for
// asserting what the sync layer touched.
//
// Filters are treated as opaque: fetches return the seeded records as-is
// and subscriptions match on scope only. Tests control scoping by seeding
// exactly what a query should see.
package mock

import (
	"context"
	"sync"

	"github.com/liveq/liveq.go"
)

// Backend is an in-memory liveq.Backend. The zero value is not usable; use
// New.
type Backend struct {
	// FetchGate, when non-nil, blocks every fetch until the test sends on
	// (or closes) it, making in-flight windows deterministic.
	FetchGate chan struct{}

	mu      sync.Mutex
	store   map[string][]liveq.Record
	subs    map[int]*sub
	nextSub int
	calls   map[string]int
	fail    map[string]error
}

type sub struct {
	collection string
	scope      string
	fn         func(liveq.Event)
}

func New() *Backend {
	return &Backend{
		store: make(map[string][]liveq.Record),
		subs:  make(map[int]*sub),
		calls: make(map[string]int),
		fail:  make(map[string]error),
	}
}

// Seed appends records to a collection's store without emitting events.
func (b *Backend) Seed(collection string, recs ...liveq.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, rec := range recs {
		b.store[collection] = append(b.store[collection], rec.Clone())
	}
}

// Records returns a snapshot of a collection's store.
func (b *Backend) Records(collection string) []liveq.Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]liveq.Record, 0, len(b.store[collection]))
	for _, rec := range b.store[collection] {
		out = append(out, rec.Clone())
	}
	return out
}

// FailWith makes the named method return err until cleared with a nil err.
func (b *Backend) FailWith(method string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.fail, method)
		return
	}
	b.fail[method] = err
}

// Calls returns how many times the named method was invoked.
func (b *Backend) Calls(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method]
}

// SubscriberCount returns the number of open subscriptions for a
// collection.
func (b *Backend) SubscriberCount(collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.subs {
		if s.collection == collection {
			n++
		}
	}
	return n
}

// Push delivers an event to every subscription whose scope matches,
// synchronously in the caller's goroutine.
func (b *Backend) Push(collection string, ev liveq.Event) {
	for _, fn := range b.matching(collection, ev) {
		fn(ev)
	}
}

func (b *Backend) matching(collection string, ev liveq.Event) []func(liveq.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var fns []func(liveq.Event)
	for _, s := range b.subs {
		if s.collection != collection {
			continue
		}
		if s.scope != liveq.Wildcard && s.scope != ev.Record.ID() {
			continue
		}
		fns = append(fns, s.fn)
	}
	return fns
}

func (b *Backend) begin(ctx context.Context, method string, gated bool) error {
	b.mu.Lock()
	b.calls[method]++
	err := b.fail[method]
	gate := b.FetchGate
	b.mu.Unlock()

	if err != nil {
		return err
	}
	if gated && gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ctx.Err()
}

func (b *Backend) List(ctx context.Context, collection string, _ liveq.FetchParams) ([]liveq.Record, error) {
	if err := b.begin(ctx, "list", true); err != nil {
		return nil, err
	}
	return b.Records(collection), nil
}

func (b *Backend) Page(ctx context.Context, collection string, page, perPage int, _ liveq.FetchParams) (liveq.ListResult, error) {
	if err := b.begin(ctx, "page", true); err != nil {
		return liveq.ListResult{}, err
	}

	all := b.Records(collection)
	total := len(all)
	from := (page - 1) * perPage
	if from > total {
		from = total
	}
	to := from + perPage
	if to > total {
		to = total
	}

	totalPages := 0
	if perPage > 0 {
		totalPages = (total + perPage - 1) / perPage
	}
	return liveq.ListResult{
		Items:      all[from:to],
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

func (b *Backend) One(ctx context.Context, collection, id string, _ liveq.FetchParams) (liveq.Record, error) {
	if err := b.begin(ctx, "one", true); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, rec := range b.store[collection] {
		if rec.ID() == id {
			return rec.Clone(), nil
		}
	}
	return nil, liveq.ErrNotFound
}

func (b *Backend) First(ctx context.Context, collection, _ string, _ liveq.FetchParams) (liveq.Record, error) {
	if err := b.begin(ctx, "first", true); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	recs := b.store[collection]
	if len(recs) == 0 {
		return nil, liveq.ErrNotFound
	}
	return recs[0].Clone(), nil
}

func (b *Backend) Create(ctx context.Context, collection string, data liveq.Record) (liveq.Record, error) {
	if err := b.begin(ctx, "create", false); err != nil {
		return nil, err
	}

	rec := data.Clone()
	b.mu.Lock()
	b.store[collection] = append(b.store[collection], rec)
	b.mu.Unlock()

	b.Push(collection, liveq.Event{Action: liveq.ActionCreate, Record: rec.Clone()})
	return rec.Clone(), nil
}

func (b *Backend) Update(ctx context.Context, collection, id string, data liveq.Record) (liveq.Record, error) {
	if err := b.begin(ctx, "update", false); err != nil {
		return nil, err
	}

	rec := data.Clone()
	rec[liveq.IDField] = id

	b.mu.Lock()
	found := false
	for i, cur := range b.store[collection] {
		if cur.ID() == id {
			b.store[collection][i] = rec
			found = true
			break
		}
	}
	b.mu.Unlock()
	if !found {
		return nil, liveq.ErrNotFound
	}

	b.Push(collection, liveq.Event{Action: liveq.ActionUpdate, Record: rec.Clone()})
	return rec.Clone(), nil
}

func (b *Backend) Delete(ctx context.Context, collection, id string) error {
	if err := b.begin(ctx, "delete", false); err != nil {
		return err
	}

	b.mu.Lock()
	var removed liveq.Record
	recs := b.store[collection]
	for i, cur := range recs {
		if cur.ID() == id {
			removed = cur
			b.store[collection] = append(recs[:i], recs[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	if removed == nil {
		return liveq.ErrNotFound
	}

	b.Push(collection, liveq.Event{Action: liveq.ActionDelete, Record: removed.Clone()})
	return nil
}

func (b *Backend) Subscribe(ctx context.Context, collection, scope string, fn func(liveq.Event), _ liveq.FetchParams) (func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.calls["subscribe"]++
	if err := b.fail["subscribe"]; err != nil {
		b.mu.Unlock()
		return nil, err
	}
	id := b.nextSub
	b.nextSub++
	b.subs[id] = &sub{collection: collection, scope: scope, fn: fn}
	b.mu.Unlock()

	return func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
		return nil
	}, nil
}
