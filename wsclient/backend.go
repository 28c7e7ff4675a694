package wsclient

import (
	"context"

	"github.com/gofrs/uuid"

	"github.com/liveq/liveq.go"
)

var _ liveq.Backend = (*Client)(nil)

// List fetches every record matching p.
func (c *Client) List(ctx context.Context, collection string, p liveq.FetchParams) ([]liveq.Record, error) {
	var res struct {
		Result []liveq.Record `json:"result"`
	}
	err := c.call(ctx, "list", collectionParams{Collection: collection, FetchParams: p}, &res)
	if err != nil {
		return nil, err
	}
	return res.Result, nil
}

// Page fetches one page of records matching p.
func (c *Client) Page(ctx context.Context, collection string, page, perPage int, p liveq.FetchParams) (liveq.ListResult, error) {
	var res struct {
		Result liveq.ListResult `json:"result"`
	}
	err := c.call(ctx, "page", pageParams{
		Collection:  collection,
		Page:        page,
		PerPage:     perPage,
		FetchParams: p,
	}, &res)
	if err != nil {
		return liveq.ListResult{}, err
	}
	return res.Result, nil
}

// One fetches the record with the given identifier.
func (c *Client) One(ctx context.Context, collection, id string, p liveq.FetchParams) (liveq.Record, error) {
	var res struct {
		Result liveq.Record `json:"result"`
	}
	err := c.call(ctx, "one", recordParams{Collection: collection, ID: id, FetchParams: p}, &res)
	if err != nil {
		return nil, err
	}
	return res.Result, nil
}

// First fetches the first record matching filter.
func (c *Client) First(ctx context.Context, collection, filter string, p liveq.FetchParams) (liveq.Record, error) {
	p.Filter = filter
	var res struct {
		Result liveq.Record `json:"result"`
	}
	err := c.call(ctx, "first", collectionParams{Collection: collection, FetchParams: p}, &res)
	if err != nil {
		return nil, err
	}
	return res.Result, nil
}

// Create inserts data and returns the stored record.
func (c *Client) Create(ctx context.Context, collection string, data liveq.Record) (liveq.Record, error) {
	var res struct {
		Result liveq.Record `json:"result"`
	}
	err := c.call(ctx, "create", mutateParams{Collection: collection, Data: data}, &res)
	if err != nil {
		return nil, err
	}
	return res.Result, nil
}

// Update rewrites the record with the given identifier and returns the
// stored state.
func (c *Client) Update(ctx context.Context, collection, id string, data liveq.Record) (liveq.Record, error) {
	var res struct {
		Result liveq.Record `json:"result"`
	}
	err := c.call(ctx, "update", mutateParams{Collection: collection, ID: id, Data: data}, &res)
	if err != nil {
		return nil, err
	}
	return res.Result, nil
}

// Delete removes the record with the given identifier.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return c.call(ctx, "delete", mutateParams{Collection: collection, ID: id}, nil)
}

// Subscribe opens a change-event feed for records in collection matching
// scope and returns its teardown function. The subscription id is generated
// client side so the feed can be restored verbatim after a reconnect.
func (c *Client) Subscribe(ctx context.Context, collection, scope string, fn func(liveq.Event), p liveq.FetchParams) (func() error, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}

	sub := newSubscription(id.String(), collection, scope, p)
	c.subsMu.Lock()
	c.subs[sub.id] = sub
	c.subsMu.Unlock()
	go sub.run(fn)

	err = c.call(ctx, "subscribe", subscribeParams{
		Sub:         sub.id,
		Collection:  collection,
		Scope:       scope,
		FetchParams: p,
	}, nil)
	if err != nil {
		c.dropSubscription(sub.id)
		return nil, err
	}

	return func() error {
		return c.unsubscribe(sub.id)
	}, nil
}

func (c *Client) unsubscribe(id string) error {
	if !c.dropSubscription(id) {
		return nil
	}
	if c.IsClosed() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.conf.Timeout)
	defer cancel()
	return c.call(ctx, "unsubscribe", subscribeParams{Sub: id}, nil)
}

func (c *Client) dropSubscription(id string) bool {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	sub, ok := c.subs[id]
	if !ok {
		return false
	}
	delete(c.subs, id)
	close(sub.stop)
	return true
}
