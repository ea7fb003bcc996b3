package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack stores values as MessagePack. Field names follow `msgpack` struct
// tags, not `json` ones, so a region switching from JSON needs its entries
// dropped (RemoveAll) rather than read back.
type Msgpack[V any] struct{}

var _ Codec[struct{}] = Msgpack[struct{}]{}

func (Msgpack[V]) Encode(v V) ([]byte, error) { return msgpack.Marshal(v) }

func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	if err := msgpack.Unmarshal(b, &v); err != nil {
		return v, err
	}
	return v, nil
}
