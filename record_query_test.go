package liveq_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liveq/liveq.go"
	"github.com/liveq/liveq.go/internal/mock"
)

func waitRecord(t *testing.T, q *liveq.RecordQuery, cond func(liveq.Result[liveq.Record]) bool) liveq.Result[liveq.Record] {
	t.Helper()
	var last liveq.Result[liveq.Record]
	require.Eventually(t, func() bool {
		last = q.Current()
		return cond(last)
	}, waitFor, tick)
	return last
}

func recordSucceeded(r liveq.Result[liveq.Record]) bool { return r.IsSuccess }
func recordFailed(r liveq.Result[liveq.Record]) bool    { return r.IsError }

func TestAddress(t *testing.T) {
	assert.True(t, liveq.Address{}.IsZero())
	assert.False(t, liveq.ByID("p1").IsZero())
	assert.False(t, liveq.ByFilter("title != ''").IsZero())
}

func TestRecordQueryByID(t *testing.T) {
	b := mock.New()
	b.Seed("posts", liveq.Record{"id": "p1", "title": "first", "created": "2024-05-01 10:00:00.000Z"})
	s := newTestSync(t, b)

	q := s.Record("posts", liveq.ByID("p1"), liveq.RecordOptions{})
	t.Cleanup(q.Close)
	q.Start(context.Background())

	res := waitRecord(t, q, recordSucceeded)
	assert.Equal(t, "p1", res.Data.ID())
	assert.Equal(t, liveq.StateReady, q.State())

	_, ok := res.Data["created"].(time.Time)
	assert.True(t, ok, "the default pipeline applies to record fetches too")

	assert.Equal(t, 1, b.Calls("one"))
	assert.Zero(t, b.Calls("first"))
}

func TestRecordQueryByIDNotFound(t *testing.T) {
	b := mock.New()
	s := newTestSync(t, b)

	q := s.Record("posts", liveq.ByID("p1"), liveq.RecordOptions{Realtime: true})
	t.Cleanup(q.Close)
	q.Start(context.Background())

	res := waitRecord(t, q, recordFailed)
	assert.Equal(t, "record not found", res.Error)
	assert.Equal(t, liveq.StateFailed, q.State())

	// Unlike a by-filter query, a missing identifier is not revived by a
	// create replay.
	waitSubscribers(t, b, "posts", 1)
	b.Push("posts", liveq.Event{Action: liveq.ActionCreate, Record: liveq.Record{"id": "p1"}})
	time.Sleep(20 * time.Millisecond)
	assert.True(t, q.Current().IsError)
}

func TestRecordQueryByIDUpdate(t *testing.T) {
	b := mock.New()
	b.Seed("posts", liveq.Record{"id": "p1", "title": "old"})
	s := newTestSync(t, b)

	q := s.Record("posts", liveq.ByID("p1"), liveq.RecordOptions{Realtime: true})
	t.Cleanup(q.Close)
	q.Start(context.Background())

	waitRecord(t, q, recordSucceeded)
	waitSubscribers(t, b, "posts", 1)

	b.Push("posts", liveq.Event{Action: liveq.ActionUpdate, Record: liveq.Record{"id": "p1", "title": "new"}})
	res := q.Current()
	require.True(t, res.IsSuccess)
	assert.Equal(t, "new", res.Data["title"])
}

func TestRecordQueryByIDDeleteIsTerminal(t *testing.T) {
	b := mock.New()
	b.Seed("posts", liveq.Record{"id": "p1", "title": "doomed"})
	s := newTestSync(t, b)

	q := s.Record("posts", liveq.ByID("p1"), liveq.RecordOptions{Realtime: true})
	t.Cleanup(q.Close)
	q.Start(context.Background())

	waitRecord(t, q, recordSucceeded)
	waitSubscribers(t, b, "posts", 1)

	b.Push("posts", liveq.Event{Action: liveq.ActionDelete, Record: liveq.Record{"id": "p1", "title": "doomed"}})
	res := q.Current()
	require.True(t, res.IsError)
	assert.Equal(t, "Record has been deleted", res.Error)
	assert.Nil(t, res.Data)
	assert.Equal(t, liveq.StateFailed, q.State())

	// Nothing brings the record back.
	b.Push("posts", liveq.Event{Action: liveq.ActionUpdate, Record: liveq.Record{"id": "p1", "title": "revenant"}})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "Record has been deleted", q.Current().Error)
}

func TestRecordQueryByFilter(t *testing.T) {
	b := mock.New()
	b.Seed("posts", liveq.Record{"id": "p1", "title": "match"})
	s := newTestSync(t, b)

	q := s.Record("posts", liveq.ByFilter("title='match'"), liveq.RecordOptions{})
	t.Cleanup(q.Close)
	q.Start(context.Background())

	res := waitRecord(t, q, recordSucceeded)
	assert.Equal(t, "p1", res.Data.ID())
	assert.Equal(t, 1, b.Calls("first"))
	assert.Zero(t, b.Calls("one"))
}

func TestRecordQueryByFilterGuards(t *testing.T) {
	b := mock.New()
	b.Seed("posts", liveq.Record{"id": "p1", "title": "held"})
	s := newTestSync(t, b)

	q := s.Record("posts", liveq.ByFilter("title != ''"), liveq.RecordOptions{Realtime: true})
	t.Cleanup(q.Close)
	q.Start(context.Background())

	waitRecord(t, q, recordSucceeded)
	waitSubscribers(t, b, "posts", 1)

	// Updates and deletes of other records pass by.
	b.Push("posts", liveq.Event{Action: liveq.ActionUpdate, Record: liveq.Record{"id": "p2", "title": "other"}})
	b.Push("posts", liveq.Event{Action: liveq.ActionDelete, Record: liveq.Record{"id": "p2", "title": "other"}})
	res := q.Current()
	require.True(t, res.IsSuccess)
	assert.Equal(t, "held", res.Data["title"])

	// A create for the identifier already held is a duplicate, not a
	// replacement.
	b.Push("posts", liveq.Event{Action: liveq.ActionCreate, Record: liveq.Record{"id": "p1", "title": "duplicate"}})
	assert.Equal(t, "held", q.Current().Data["title"])

	// The held record itself still updates.
	b.Push("posts", liveq.Event{Action: liveq.ActionUpdate, Record: liveq.Record{"id": "p1", "title": "edited"}})
	assert.Equal(t, "edited", q.Current().Data["title"])

	// A create for a different identifier takes over the slot.
	b.Push("posts", liveq.Event{Action: liveq.ActionCreate, Record: liveq.Record{"id": "p9", "title": "newcomer"}})
	assert.Equal(t, "p9", q.Current().Data.ID())

	// Deleting the now-held record is terminal.
	b.Push("posts", liveq.Event{Action: liveq.ActionDelete, Record: liveq.Record{"id": "p9", "title": "newcomer"}})
	res = q.Current()
	require.True(t, res.IsError)
	assert.Equal(t, "Record has been deleted", res.Error)
}

func TestRecordQueryByFilterCreateRevives(t *testing.T) {
	b := mock.New()
	s := newTestSync(t, b)

	q := s.Record("posts", liveq.ByFilter("title='pending'"), liveq.RecordOptions{Realtime: true})
	t.Cleanup(q.Close)
	q.Start(context.Background())

	res := waitRecord(t, q, recordFailed)
	assert.Equal(t, "record not found", res.Error)

	waitSubscribers(t, b, "posts", 1)
	b.Push("posts", liveq.Event{Action: liveq.ActionCreate, Record: liveq.Record{"id": "p5", "title": "pending"}})

	res = q.Current()
	require.True(t, res.IsSuccess, "a matching create fills an empty filter query")
	assert.Equal(t, "p5", res.Data.ID())
	assert.Equal(t, liveq.StateReady, q.State())
}

func TestRecordQueryByFilterCreateBufferedDuringFetch(t *testing.T) {
	b := mock.New()
	b.FetchGate = make(chan struct{})
	s := newTestSync(t, b)

	q := s.Record("posts", liveq.ByFilter("title='pending'"), liveq.RecordOptions{Realtime: true})
	t.Cleanup(q.Close)

	var mu sync.Mutex
	var sawError bool
	cancel := q.Subscribe(func(r liveq.Result[liveq.Record]) {
		mu.Lock()
		if r.IsError {
			sawError = true
		}
		mu.Unlock()
	})
	defer cancel()

	q.Start(context.Background())
	require.Eventually(t, func() bool { return b.Calls("first") == 1 }, waitFor, tick)
	waitSubscribers(t, b, "posts", 1)

	// The record comes into existence while the fetch is still out.
	b.Push("posts", liveq.Event{Action: liveq.ActionCreate, Record: liveq.Record{"id": "p5", "title": "pending"}})
	close(b.FetchGate)

	res := waitRecord(t, q, recordSucceeded)
	assert.Equal(t, "p5", res.Data.ID())

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, sawError, "the buffered create absorbs the not-found outcome")
}

func TestRecordQueryZeroAddress(t *testing.T) {
	b := mock.New()
	s := newTestSync(t, b)

	q := s.Record("posts", liveq.Address{}, liveq.RecordOptions{
		Realtime: true,
		Default:  liveq.Record{"id": "placeholder"},
	})
	t.Cleanup(q.Close)
	q.Start(context.Background())

	res := q.Current()
	require.True(t, res.IsSuccess, "an empty address resolves synchronously from Default")
	assert.Equal(t, "placeholder", res.Data.ID())

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, b.Calls("one"))
	assert.Zero(t, b.Calls("first"))
	assert.Zero(t, b.SubscriberCount("posts"))
}

func TestRecordQueryRestart(t *testing.T) {
	b := mock.New()
	b.Seed("posts",
		liveq.Record{"id": "p1", "title": "first"},
		liveq.Record{"id": "p2", "title": "second"},
	)
	s := newTestSync(t, b)

	q := s.Record("posts", liveq.ByID("p1"), liveq.RecordOptions{Realtime: true})
	t.Cleanup(q.Close)
	q.Start(context.Background())
	waitRecord(t, q, recordSucceeded)
	waitSubscribers(t, b, "posts", 1)

	q.Restart(context.Background(), liveq.ByID("p2"), liveq.RecordOptions{})
	res := waitRecord(t, q, recordSucceeded)
	assert.Equal(t, "p2", res.Data.ID())
	assert.Equal(t, 2, b.Calls("one"))

	// The old generation's subscription is gone.
	waitSubscribers(t, b, "posts", 0)
}

func TestRecordQueryConcurrentQueriesShareOneFetch(t *testing.T) {
	b := mock.New()
	b.Seed("posts", liveq.Record{"id": "p1"})
	b.FetchGate = make(chan struct{})
	s := newTestSync(t, b)

	q1 := s.Record("posts", liveq.ByID("p1"), liveq.RecordOptions{})
	t.Cleanup(q1.Close)
	q2 := s.Record("posts", liveq.ByID("p1"), liveq.RecordOptions{})
	t.Cleanup(q2.Close)

	q1.Start(context.Background())
	q2.Start(context.Background())

	require.Eventually(t, func() bool { return b.Calls("one") == 1 }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, b.Calls("one"))

	close(b.FetchGate)
	waitRecord(t, q1, recordSucceeded)
	waitRecord(t, q2, recordSucceeded)
	assert.Equal(t, 1, b.Calls("one"))
}
