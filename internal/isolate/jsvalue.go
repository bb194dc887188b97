package isolate

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/voidmerge/voidmerge/internal/value"
)

// jsValue is the JSON shape used to move a value.Value across the V8
// boundary (via JSON.stringify/JSON.parse in the bootstrap script).
// This is a transport convenience distinct from the canonical binary
// encoding the guest gets explicitly via vmEncode/vmDecode: JSON can't
// natively distinguish bytes from strings, so bytes travel base64-encoded
// in their own "bytesB64" field.
type jsValue struct {
	Unit     bool               `json:"unit,omitempty"`
	Bool     *bool              `json:"bool,omitempty"`
	Float    *float64           `json:"float,omitempty"`
	Str      *string            `json:"str,omitempty"`
	BytesB64 *string            `json:"bytesB64,omitempty"`
	Seq      []jsValue          `json:"seq,omitempty"`
	Map      map[string]jsValue `json:"map,omitempty"`
}

func toJSValue(v value.Value) jsValue {
	switch v.Kind() {
	case value.KindBool:
		b, _ := v.AsBool()
		return jsValue{Bool: &b}
	case value.KindFloat:
		f, _ := v.AsFloat()
		return jsValue{Float: &f}
	case value.KindString:
		s, _ := v.AsString()
		return jsValue{Str: &s}
	case value.KindBytes:
		b, _ := v.AsBytes()
		enc := base64.StdEncoding.EncodeToString(b)
		return jsValue{BytesB64: &enc}
	case value.KindSequence:
		items, _ := v.AsSequence()
		out := make([]jsValue, len(items))
		for i, it := range items {
			out[i] = toJSValue(it)
		}
		return jsValue{Seq: out}
	case value.KindMap:
		m, _ := v.AsMap()
		out := make(map[string]jsValue, len(m))
		for k, it := range m {
			out[k] = toJSValue(it)
		}
		return jsValue{Map: out}
	default:
		return jsValue{Unit: true}
	}
}

func fromJSValue(j jsValue) value.Value {
	switch {
	case j.Bool != nil:
		return value.Bool(*j.Bool)
	case j.Float != nil:
		return value.Float(*j.Float)
	case j.Str != nil:
		return value.String(*j.Str)
	case j.BytesB64 != nil:
		b, err := base64.StdEncoding.DecodeString(*j.BytesB64)
		if err != nil {
			return value.Bytes(nil)
		}
		return value.Bytes(b)
	case j.Seq != nil:
		seq := make([]value.Value, len(j.Seq))
		for i, it := range j.Seq {
			seq[i] = fromJSValue(it)
		}
		return value.Sequence(seq...)
	case j.Map != nil:
		m := make(map[string]value.Value, len(j.Map))
		for k, it := range j.Map {
			m[k] = fromJSValue(it)
		}
		return value.Map(m)
	default:
		return value.Unit()
	}
}

// encodeValueJSON and decodeValueJSON cross the JSON/JS boundary for a
// single value.Value.
func encodeValueJSON(v value.Value) (string, error) {
	b, err := json.Marshal(toJSValue(v))
	if err != nil {
		return "", fmt.Errorf("isolate: marshal value: %w", err)
	}
	return string(b), nil
}

func decodeValueJSON(s string) (value.Value, error) {
	var j jsValue
	if err := json.Unmarshal([]byte(s), &j); err != nil {
		return value.Value{}, fmt.Errorf("isolate: unmarshal value: %w", err)
	}
	return fromJSValue(j), nil
}
