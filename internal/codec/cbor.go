package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// cborDec forces untyped maps to decode as map[string]any instead of the
// CBOR default map[any]any, so record payloads look the same regardless of
// the wire encoding.
var cborDec = func() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

var cborEnc = func() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// CBOR is a binary wire codec for backends that negotiate the "cbor"
// subprotocol.
type CBOR struct{}

func (CBOR) Marshal(v any) ([]byte, error) {
	return cborEnc.Marshal(v)
}

func (CBOR) Unmarshal(data []byte, dst any) error {
	return cborDec.Unmarshal(data, dst)
}

func (CBOR) Name() string {
	return "cbor"
}
