package liveq

import (
	"context"

	"github.com/liveq/liveq.go/pkg/logger"
)

// Params configures a Sync. Backend is required; everything else has
// working defaults.
type Params struct {
	Backend Backend

	// Logger receives engine and cache diagnostics. Defaults to a no-op.
	Logger logger.Logger

	// Cache overrides the query cache, letting several Sync instances
	// share one deduplication domain. A private cache is created when nil.
	Cache *QueryCache

	// Transformers is the pipeline applied to fetched and event records
	// when a query does not supply its own. Defaults to NormalizeDates().
	// Pass an empty non-nil slice to disable transformation entirely.
	Transformers []Transformer
}

// Sync is the explicitly-owned root of the synchronization layer: the
// backend, the query cache and the logger that every query created through
// it shares. There is deliberately no process-wide instance; construct one
// and pass it where it is needed.
type Sync struct {
	backend      Backend
	cache        *QueryCache
	log          logger.Logger
	transformers []Transformer
}

// New validates p and builds a Sync around it.
func New(p Params) (*Sync, error) {
	if p.Backend == nil {
		return nil, ErrNoBackend
	}

	log := p.Logger
	if log == nil {
		log = logger.Nop()
	}
	cache := p.Cache
	if cache == nil {
		cache = NewQueryCache(log)
	}
	transformers := p.Transformers
	if transformers == nil {
		transformers = []Transformer{NormalizeDates()}
	}

	return &Sync{
		backend:      p.Backend,
		cache:        cache,
		log:          log,
		transformers: transformers,
	}, nil
}

// Cache exposes the query cache, primarily so a second Sync can share it.
func (s *Sync) Cache() *QueryCache {
	return s.cache
}

// Close drops the cache. Queries created from this Sync should be closed
// first; Close does not chase them.
func (s *Sync) Close() {
	s.cache.Clear()
}

// Collection builds a query over a whole collection or one page of it. The
// query does nothing until Start.
func (s *Sync) Collection(collection string, opts CollectionOptions) *CollectionQuery {
	return &CollectionQuery{
		owner:      s,
		collection: collection,
		opts:       opts,
		observers:  make(map[uint64]func(Result[[]Record])),
	}
}

// Record builds a query tracking a single record addressed by identifier or
// by filter. The query does nothing until Start.
func (s *Sync) Record(collection string, addr Address, opts RecordOptions) *RecordQuery {
	return &RecordQuery{
		owner:      s,
		collection: collection,
		addr:       addr,
		opts:       opts,
		observers:  make(map[uint64]func(Result[Record])),
	}
}

// Create inserts data and returns the stored record, transformed by the
// default pipeline. Open subscriptions observe the resulting event; local
// query state is never touched directly.
func (s *Sync) Create(ctx context.Context, collection string, data Record) (Record, error) {
	rec, err := s.backend.Create(ctx, collection, data)
	if err != nil {
		return nil, err
	}
	return applyTransformers(rec, s.transformers, s.log), nil
}

// Update rewrites the record with the given identifier.
func (s *Sync) Update(ctx context.Context, collection, id string, data Record) (Record, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	rec, err := s.backend.Update(ctx, collection, id, data)
	if err != nil {
		return nil, err
	}
	return applyTransformers(rec, s.transformers, s.log), nil
}

// Delete removes the record with the given identifier.
func (s *Sync) Delete(ctx context.Context, collection, id string) error {
	if id == "" {
		return ErrMissingID
	}
	return s.backend.Delete(ctx, collection, id)
}
