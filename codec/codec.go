// Package codec converts the values an access.Delegate caches to the payload
// bytes it stores in a provider.Provider. The payload is wrapped in a wire
// entry (load timestamp + payload) by the delegate, so codecs only ever see the
// value itself.
package codec

// Codec is the value format of one cache region.
//
// Decode must fail, not guess, on bytes it did not produce: the delegate treats
// a decode error as a damaged entry, deletes it and reports a miss. Encode and
// Decode are called concurrently and must not share mutable state.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
