// The [liveq] package keeps client-side query results synchronized with a
// record backend: fetch once, deduplicate aggressively, then reconcile
// change events into the held data until interest ends.
//
// # Queries
//
// A [Sync] owns the backend, the [QueryCache] and the logger. Build one
// with [New], then create queries from it: [Sync.Collection] tracks a list
// of records, [Sync.Record] tracks a single record addressed with [ByID] or
// [ByFilter].
//
// Queries are caller-driven: Start begins the initial fetch and, when
// realtime is enabled, the change-event subscription; Restart supersedes
// the running generation when parameters change; Close ends interest.
// Results are read with Current or pushed through Subscribe, and every
// result is exactly one of loading, success or error.
//
// # Deduplication
//
// Concurrent fetches for the same canonical query key share one backend
// call through the [QueryCache], and every successful fetch is broadcast to
// all current observers of its key, so two views of the same query can
// never disagree about the last fetched value.
//
// # Reconciliation
//
// While subscribed, create events append, update events replace in place,
// and delete events remove; the list is re-sorted after every event per the
// query's sort parameter. Events that arrive before the initial fetch lands
// are buffered and replayed in order, so nothing observed is lost.
//
// # Backends
//
// The sync core speaks to any [Backend]. The production implementation is
// [github.com/liveq/liveq.go/wsclient], one WebSocket connection carrying
// RPCs and server-pushed change events with automatic reconnection and
// subscription restoration.
package liveq
