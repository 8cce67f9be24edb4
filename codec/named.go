package codec

import (
	"fmt"
	"strings"
)

// Serialization mode names accepted by ByName.
const (
	ModeJSON       = "json"
	ModeJSONObject = "json_object"
	ModeMsgpack    = "msgpack"
	ModeCBOR       = "cbor"
	ModeRaw        = "raw"
	ModeNil        = "nil"
)

// ByName returns the codec for a configured serialization mode. An empty mode
// selects JSON. The raw and nil modes only work when V is []byte or string.
func ByName[V any](mode string) (Codec[V], error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeJSON, ModeJSONObject:
		return JSON[V]{}, nil
	case ModeMsgpack:
		return Msgpack[V]{}, nil
	case ModeCBOR:
		c, err := NewCBOR[V](false)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ModeRaw, ModeNil:
		if c, ok := any(Bytes{}).(Codec[V]); ok {
			return c, nil
		}
		if c, ok := any(String{}).(Codec[V]); ok {
			return c, nil
		}
		var zero V
		return nil, fmt.Errorf("codec: mode %q needs []byte or string values, got %T", mode, zero)
	default:
		return nil, fmt.Errorf("codec: unknown serialization mode %q", mode)
	}
}
