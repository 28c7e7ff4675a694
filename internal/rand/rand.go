// Package rand generates short correlation identifiers for RPC frames.
package rand

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var (
	mut sync.Mutex
	rng = newRNG()
)

func newRNG() *rand.Rand {
	var seed [16]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		panic("unreachable")
	}

	//nolint:gosec // correlation ids are not security sensitive
	return rand.New(rand.NewSource(int64(
		binary.LittleEndian.Uint64(seed[:8]) ^ binary.LittleEndian.Uint64(seed[8:]),
	)))
}

// RequestID returns a base62 identifier of the given length, used to match
// responses to the requests that produced them.
func RequestID(length int) string {
	buf := make([]byte, length)

	mut.Lock()
	for i := range buf {
		buf[i] = alphabet[rng.Intn(len(alphabet))]
	}
	mut.Unlock()

	return string(buf)
}
