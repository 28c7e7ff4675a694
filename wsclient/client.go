// Package wsclient implements the production record backend over a single
// WebSocket connection.
//
// One connection multiplexes request/response RPCs and server-pushed change
// events. Requests are correlated by short random ids; change events are
// routed by client-generated subscription ids, which lets subscriptions be
// restored verbatim after a reconnect. Frames are encoded with a pluggable
// codec, JSON by default.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/buger/jsonparser"
	gorilla "github.com/gorilla/websocket"

	"github.com/liveq/liveq.go/internal/codec"
	"github.com/liveq/liveq.go/internal/rand"
	"github.com/liveq/liveq.go/pkg/logger"
)

const (
	requestIDLength  = 16
	closeMessageCode = 1000

	// DefaultTimeout bounds each RPC round trip when Config.Timeout is
	// zero. A lost response must never hang a caller forever.
	DefaultTimeout = 30 * time.Second
)

var (
	// ErrClosed is returned by calls issued after the connection closed.
	ErrClosed = errors.New("connection closed")

	// ErrNotConnected is returned while the connection is down and a
	// reconnect is still in progress.
	ErrNotConnected = errors.New("not connected")

	errIDInUse = errors.New("request id already in use")
)

// Config parameterizes Connect. URL is required.
type Config struct {
	// URL is the WebSocket endpoint, e.g. "ws://localhost:8090/sync".
	URL string

	// Codec selects the wire encoding: JSON() when nil, or CBOR().
	Codec codec.Codec

	// Logger receives connection diagnostics. Defaults to a no-op.
	Logger logger.Logger

	// Timeout bounds each RPC round trip. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Reconnect redials and restores subscriptions after a lost
	// connection instead of failing the client.
	Reconnect bool

	// Retry paces reconnection attempts. Defaults to
	// NewExponentialBackoff().
	Retry Retryer
}

// Client is a liveq.Backend over one WebSocket connection. It is safe for
// concurrent use.
type Client struct {
	conf  Config
	codec codec.Codec
	log   logger.Logger

	// connMu guards conn for writes; it is held only per message, never
	// across a reconnect, so writers fail fast while the link is down.
	connMu sync.Mutex
	conn   *gorilla.Conn

	waitersMu sync.Mutex
	waiters   map[string]chan []byte

	subsMu sync.RWMutex
	subs   map[string]*subscription

	closeMu  sync.Mutex
	closed   bool
	closeErr error
	closeCh  chan struct{}
}

// Connect dials conf.URL and starts the read loop.
func Connect(ctx context.Context, conf Config) (*Client, error) {
	if conf.URL == "" {
		return nil, errors.New("wsclient: Config.URL is required")
	}

	c := &Client{
		conf:    conf,
		codec:   conf.Codec,
		log:     conf.Logger,
		waiters: make(map[string]chan []byte),
		subs:    make(map[string]*subscription),
		closeCh: make(chan struct{}),
	}
	if c.codec == nil {
		c.codec = JSON()
	}
	if c.log == nil {
		c.log = logger.Nop()
	}
	if c.conf.Timeout == 0 {
		c.conf.Timeout = DefaultTimeout
	}
	if c.conf.Retry == nil {
		c.conf.Retry = NewExponentialBackoff()
	}

	if err := c.dial(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// IsClosed reports whether the client is terminally closed. A client in the
// middle of a reconnect is not closed.
func (c *Client) IsClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

func (c *Client) dial(ctx context.Context) error {
	dialer := &gorilla.Dialer{
		Proxy:             gorilla.DefaultDialer.Proxy,
		HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
		EnableCompression: true,
		Subprotocols:      []string{c.codec.Name()},
	}

	conn, res, err := dialer.DialContext(ctx, c.conf.URL, nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	go c.readLoop(conn)
	return nil
}

// readLoop pumps one connection until it dies. Routing runs inline: the
// per-subscription buffers keep a slow consumer from stalling it.
func (c *Client) readLoop(conn *gorilla.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}
		c.route(data)
	}
}

func (c *Client) handleDisconnect(conn *gorilla.Conn, err error) {
	if c.IsClosed() {
		return
	}

	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connMu.Unlock()

	if !c.conf.Reconnect {
		c.closeWithError(err)
		return
	}

	c.log.Warn("connection lost, reconnecting", "error", err)
	go c.reconnect(err)
}

func (c *Client) reconnect(lastErr error) {
	for attempt := 0; ; attempt++ {
		delay, ok := c.conf.Retry.NextDelay(attempt, lastErr)
		if !ok {
			c.log.Error("giving up on reconnection", "attempts", attempt, "error", lastErr)
			c.closeWithError(lastErr)
			return
		}

		select {
		case <-c.closeCh:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.conf.Timeout)
		err := c.dial(ctx)
		cancel()
		if err != nil {
			lastErr = err
			c.log.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
			continue
		}

		c.conf.Retry.Reset()
		c.restoreSubscriptions()
		c.log.Info("connection restored", "attempts", attempt+1)
		return
	}
}

// restoreSubscriptions replays the subscribe call for every feed that was
// live before the connection dropped. Subscription ids are client
// generated, so feeds resume under their existing ids and no event is
// misrouted across the reconnect.
func (c *Client) restoreSubscriptions() {
	c.subsMu.RLock()
	subs := make([]*subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.subsMu.RUnlock()

	for _, sub := range subs {
		ctx, cancel := context.WithTimeout(context.Background(), c.conf.Timeout)
		err := c.call(ctx, "subscribe", subscribeParams{
			Sub:         sub.id,
			Collection:  sub.collection,
			Scope:       sub.scope,
			FetchParams: sub.params,
		}, nil)
		cancel()
		if err != nil {
			c.log.Error("failed to restore subscription",
				"sub", sub.id, "collection", sub.collection, "error", err)
			continue
		}
		c.log.Debug("subscription restored", "sub", sub.id, "collection", sub.collection)
	}
}

// route hands one inbound frame to its consumer: change events to their
// subscription, responses to the caller waiting on the correlation id.
func (c *Client) route(data []byte) {
	id, sub := c.peek(data)
	switch {
	case sub != "":
		c.dispatchEvent(sub, data)
	case id != "":
		ch, ok := c.takeWaiter(id)
		if !ok {
			c.log.Error("response for unknown request", "id", id)
			return
		}
		ch <- data
	default:
		// Errors without a correlation id cannot reach a caller; log them
		// so a protocol bug is not silently swallowed.
		var env envelope
		if err := c.codec.Unmarshal(data, &env); err == nil && env.Error != nil {
			c.log.Error("server error without correlation id", "error", env.Error)
			return
		}
		c.log.Error("unroutable frame received")
	}
}

// peek extracts routing identifiers without decoding the payload. JSON
// frames are sniffed in place; other codecs decode the envelope.
func (c *Client) peek(data []byte) (id, sub string) {
	if _, ok := c.codec.(codec.JSON); ok {
		id, _ = jsonparser.GetString(data, "id")
		sub, _ = jsonparser.GetString(data, "sub")
		return id, sub
	}

	var env envelope
	if err := c.codec.Unmarshal(data, &env); err != nil {
		c.log.Error("failed to decode frame envelope", "error", err)
		return "", ""
	}
	return env.ID, env.Sub
}

func (c *Client) dispatchEvent(subID string, data []byte) {
	var frame eventFrame
	if err := c.codec.Unmarshal(data, &frame); err != nil {
		c.log.Error("failed to decode event frame", "sub", subID, "error", err)
		return
	}

	c.subsMu.RLock()
	sub, ok := c.subs[subID]
	c.subsMu.RUnlock()
	if !ok {
		c.log.Debug("event for unknown subscription", "sub", subID)
		return
	}

	select {
	case sub.events <- frame.Event:
	default:
		c.log.Warn("subscription event buffer full, dropping event",
			"sub", subID, "collection", sub.collection)
	}
}

// call performs one request/response round trip, capped by the configured
// timeout.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	if c.conf.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.conf.Timeout)
		defer cancel()
	}

	select {
	case <-c.closeCh:
		return c.closeError()
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	id := rand.RequestID(requestIDLength)
	ch, err := c.addWaiter(id)
	if err != nil {
		return err
	}
	defer c.removeWaiter(id)

	if err := c.write(request{ID: id, Method: method, Params: params}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closeCh:
		return c.closeError()
	case data := <-ch:
		var env envelope
		if err := c.codec.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("decoding response envelope: %w", err)
		}
		if env.Error != nil {
			return env.Error
		}
		if result != nil {
			if err := c.codec.Unmarshal(data, result); err != nil {
				return fmt.Errorf("decoding %s result: %w", method, err)
			}
		}
		return nil
	}
}

func (c *Client) write(v any) error {
	data, err := c.codec.Marshal(v)
	if err != nil {
		return err
	}

	messageType := gorilla.BinaryMessage
	if c.codec.Name() == "json" {
		messageType = gorilla.TextMessage
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	err = c.conn.WriteMessage(messageType, data)
	if errors.Is(err, gorilla.ErrCloseSent) {
		err = ErrClosed
	}
	return err
}

func (c *Client) addWaiter(id string) (chan []byte, error) {
	c.waitersMu.Lock()
	defer c.waitersMu.Unlock()
	if _, ok := c.waiters[id]; ok {
		return nil, errIDInUse
	}
	ch := make(chan []byte, 1)
	c.waiters[id] = ch
	return ch, nil
}

func (c *Client) takeWaiter(id string) (chan []byte, bool) {
	c.waitersMu.Lock()
	defer c.waitersMu.Unlock()
	ch, ok := c.waiters[id]
	if ok {
		delete(c.waiters, id)
	}
	return ch, ok
}

func (c *Client) removeWaiter(id string) {
	c.waitersMu.Lock()
	defer c.waitersMu.Unlock()
	delete(c.waiters, id)
}

func (c *Client) closeError() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closeErr != nil {
		return c.closeErr
	}
	return ErrClosed
}

func (c *Client) closeWithError(err error) {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = err
	close(c.closeCh)
	c.closeMu.Unlock()

	c.stopSubscriptions()
}

func (c *Client) stopSubscriptions() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for id, sub := range c.subs {
		close(sub.stop)
		delete(c.subs, id)
	}
}

// Close tears the connection down in two phases: a close frame is written
// under the context's deadline to let the server end the session cleanly,
// then the socket and every subscription loop are shut down. A canceled ctx
// abandons the handshake but still closes locally.
func (c *Client) Close(ctx context.Context) error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil
	}
	c.closed = true
	c.closeErr = ErrClosed
	close(c.closeCh)
	c.closeMu.Unlock()

	c.stopSubscriptions()

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()
	if conn == nil {
		return nil
	}

	writeErr := make(chan error, 1)
	go func() {
		if deadline, ok := ctx.Deadline(); ok {
			if err := conn.SetWriteDeadline(deadline); err != nil {
				writeErr <- err
				return
			}
		}
		err := conn.WriteMessage(gorilla.CloseMessage,
			gorilla.FormatCloseMessage(closeMessageCode, ""))
		select {
		case writeErr <- err:
		case <-ctx.Done():
		}
	}()

	select {
	case err := <-writeErr:
		if err != nil {
			c.log.Error("failed to write close message", "error", err)
		}
	case <-ctx.Done():
	}

	return conn.Close()
}
