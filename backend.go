package liveq

import (
	"context"
)

// Wildcard subscribes to every record in a collection.
const Wildcard = "*"

// FetchParams are the backend-visible query parameters shared by fetches
// and change-event subscriptions.
type FetchParams struct {
	// Filter is a backend-evaluated predicate expression.
	Filter string `json:"filter,omitempty"`
	// Sort is a comma-separated field list, each optionally prefixed with
	// "-" for descending or "+" for ascending.
	Sort string `json:"sort,omitempty"`
	// Expand names relation fields the backend should inline.
	Expand string `json:"expand,omitempty"`
	// Fields trims the returned records to the named fields.
	Fields string `json:"fields,omitempty"`
}

// ListResult is one page of a paginated fetch.
type ListResult struct {
	Items      []Record `json:"items"`
	Page       int      `json:"page"`
	PerPage    int      `json:"perPage"`
	TotalItems int      `json:"totalItems"`
	TotalPages int      `json:"totalPages"`
}

// Backend is the record-backend contract the sync core consumes. The
// wsclient package provides the production implementation; tests use an
// in-memory one.
//
// Fetches return ErrNotFound (possibly wrapped in a BackendError) when
// nothing matches, and honor ctx cancellation. Subscribe delivers events
// for records matching scope: either one record identifier or Wildcard,
// optionally narrowed further by p.Filter. Events for one subscription
// arrive in order, and records passed to fn are owned by the receiver. The
// returned function tears the subscription down.
type Backend interface {
	List(ctx context.Context, collection string, p FetchParams) ([]Record, error)
	Page(ctx context.Context, collection string, page, perPage int, p FetchParams) (ListResult, error)
	One(ctx context.Context, collection, id string, p FetchParams) (Record, error)
	First(ctx context.Context, collection, filter string, p FetchParams) (Record, error)

	Create(ctx context.Context, collection string, data Record) (Record, error)
	Update(ctx context.Context, collection, id string, data Record) (Record, error)
	Delete(ctx context.Context, collection, id string) error

	Subscribe(ctx context.Context, collection, scope string, fn func(Event), p FetchParams) (func() error, error)
}
