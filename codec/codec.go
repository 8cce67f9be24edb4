// Package codec turns cached values into bytes and back.
//
// Drivers only ever see the encoded bytes. A codec must round-trip every value
// it accepts: Decode(Encode(v)) yields a value equal to v.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
