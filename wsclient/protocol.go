package wsclient

import (
	"github.com/liveq/liveq.go"
	"github.com/liveq/liveq.go/internal/codec"
)

// The wire protocol is a minimal RPC framing over one WebSocket connection.
//
// Requests carry a correlation id, a method name and a method-specific
// params object. Responses echo the id and carry either a result or a
// structured error. Server-pushed change events carry the subscription id
// they belong to instead of a correlation id:
//
//	{"id":"abc123","method":"list","params":{"collection":"posts"}}
//	{"id":"abc123","result":[{"id":"p1",...}]}
//	{"sub":"6f1c...","event":{"action":"create","record":{"id":"p2",...}}}

// JSON returns the default text codec.
func JSON() codec.Codec {
	return codec.JSON{}
}

// CBOR returns the binary codec for backends that negotiate the "cbor"
// subprotocol.
func CBOR() codec.Codec {
	return codec.CBOR{}
}

type request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// envelope is the routing view of an inbound frame: the correlation id of a
// response, or the subscription id of an event. The result payload is
// decoded separately by whoever knows its type.
type envelope struct {
	ID    string              `json:"id,omitempty"`
	Sub   string              `json:"sub,omitempty"`
	Error *liveq.BackendError `json:"error,omitempty"`
}

type eventFrame struct {
	Sub   string      `json:"sub"`
	Event liveq.Event `json:"event"`
}

type collectionParams struct {
	Collection string `json:"collection"`
	liveq.FetchParams
}

type pageParams struct {
	Collection string `json:"collection"`
	Page       int    `json:"page"`
	PerPage    int    `json:"perPage"`
	liveq.FetchParams
}

type recordParams struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	liveq.FetchParams
}

type mutateParams struct {
	Collection string       `json:"collection"`
	ID         string       `json:"id,omitempty"`
	Data       liveq.Record `json:"data"`
}

type subscribeParams struct {
	Sub        string `json:"sub"`
	Collection string `json:"collection,omitempty"`
	Scope      string `json:"scope,omitempty"`
	liveq.FetchParams
}
