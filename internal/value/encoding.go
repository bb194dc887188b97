package value

import (
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

// canonicalHandle configures go-msgpack to sort map keys by byte order on
// encode, which is how this package satisfies the "maps are serialized
// with keys in lexicographic byte order" requirement without a
// hand-rolled MessagePack writer. WriteExt selects the msgpack str/bin
// split, so strings and bytes stay distinct through a round trip.
func canonicalHandle() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.Canonical = true
	h.WriteExt = true
	return h
}

// Encode produces the canonical binary encoding of v: a deterministic,
// self-describing tagged format (MessagePack, canonical mode) with
// fixed tags for each grammar alternative, IEEE-754 float bit patterns,
// and UTF-8 strings.
func Encode(v Value) ([]byte, error) {
	native, err := toNative(v)
	if err != nil {
		return nil, err
	}
	var out []byte
	enc := codec.NewEncoderBytes(&out, canonicalHandle())
	if err := enc.Encode(native); err != nil {
		return nil, fmt.Errorf("value: encode: %w", err)
	}
	return out, nil
}

// Decode inverts Encode. Decoding is strict: trailing bytes after a
// complete value are rejected.
func Decode(data []byte) (Value, error) {
	dec := codec.NewDecoderBytes(data, canonicalHandle())
	var native interface{}
	if err := dec.Decode(&native); err != nil {
		return Value{}, fmt.Errorf("value: decode: %w", err)
	}
	if n := dec.NumBytesRead(); n != len(data) {
		return Value{}, fmt.Errorf("value: decode: %d trailing bytes", len(data)-n)
	}
	return fromNative(native)
}

// toNative converts a Value into the plain interface{} shape go-msgpack
// expects, preserving the unit/bool/f64/string/bytes/sequence/map split:
// unit becomes nil (msgpack nil), everything else maps directly onto
// msgpack's own bool/float64/string/[]byte/[]interface{}/map alternatives.
func toNative(v Value) (interface{}, error) {
	switch v.kind {
	case KindUnit:
		return nil, nil
	case KindBool:
		return v.b, nil
	case KindFloat:
		return v.f, nil
	case KindString:
		return v.s, nil
	case KindBytes:
		return v.by, nil
	case KindSequence:
		out := make([]interface{}, len(v.seq))
		for i, item := range v.seq {
			n, err := toNative(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case KindMap:
		out := make(map[string]interface{}, len(v.m))
		for k, item := range v.m {
			n, err := toNative(item)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value: unknown kind %d", v.kind)
	}
}

func fromNative(n interface{}) (Value, error) {
	switch x := n.(type) {
	case nil:
		return Unit(), nil
	case bool:
		return Bool(x), nil
	case float64:
		return Float(x), nil
	case float32:
		return Float(float64(x)), nil
	case int64:
		return Float(float64(x)), nil
	case uint64:
		return Float(float64(x)), nil
	case string:
		return String(x), nil
	case []byte:
		return Bytes(x), nil
	case []interface{}:
		seq := make([]Value, len(x))
		for i, item := range x {
			v, err := fromNative(item)
			if err != nil {
				return Value{}, err
			}
			seq[i] = v
		}
		return Sequence(seq...), nil
	case map[string]interface{}:
		m := make(map[string]Value, len(x))
		for k, item := range x {
			v, err := fromNative(item)
			if err != nil {
				return Value{}, err
			}
			m[k] = v
		}
		return Map(m), nil
	case map[interface{}]interface{}:
		m := make(map[string]Value, len(x))
		for k, item := range x {
			ks, ok := k.(string)
			if !ok {
				return Value{}, fmt.Errorf("value: non-string map key %v", k)
			}
			v, err := fromNative(item)
			if err != nil {
				return Value{}, err
			}
			m[ks] = v
		}
		return Map(m), nil
	default:
		return Value{}, fmt.Errorf("value: undecodable native type %T", n)
	}
}
