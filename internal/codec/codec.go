// Package codec defines the wire encodings used between the sync layer and
// a record backend.
//
// Two codecs are provided: JSON, the default, and CBOR for deployments that
// prefer a binary framing. Both decode record payloads into
// map[string]any-compatible values so the rest of the module never depends
// on the chosen encoding.
package codec

// Marshaler encodes request frames and record payloads for the wire.
type Marshaler interface {
	Marshal(v any) ([]byte, error)
}

// Unmarshaler decodes wire frames into Go values.
type Unmarshaler interface {
	Unmarshal(data []byte, dst any) error
}

// Codec is both halves of a wire encoding plus the subprotocol token
// advertised during the WebSocket handshake.
type Codec interface {
	Marshaler
	Unmarshaler
	Name() string
}
