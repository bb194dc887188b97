// Package value implements the language-neutral value grammar that
// crosses the host/guest boundary: unit, bool, f64, string, bytes, an
// ordered sequence, and a string-keyed map. It mirrors the original
// implementation's Value enum (types/value.rs) field for field.
package value

import "fmt"

// Kind tags which alternative of the grammar a Value holds.
type Kind int

const (
	KindUnit Kind = iota
	KindBool
	KindFloat
	KindString
	KindBytes
	KindSequence
	KindMap
)

// Value is a single node of the exchange grammar. The zero Value is Unit.
type Value struct {
	kind Kind
	b    bool
	f    float64
	s    string
	by   []byte
	seq  []Value
	m    map[string]Value
}

func Unit() Value                 { return Value{kind: KindUnit} }
func Bool(b bool) Value           { return Value{kind: KindBool, b: b} }
func Float(f float64) Value       { return Value{kind: KindFloat, f: f} }
func String(s string) Value       { return Value{kind: KindString, s: s} }
func Bytes(b []byte) Value        { return Value{kind: KindBytes, by: b} }
func Sequence(vs ...Value) Value  { return Value{kind: KindSequence, seq: vs} }
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMap, m: m}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsUnit() bool { return v.kind == KindUnit }

// AsBool returns the bool alternative and whether v held one.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsFloat returns the f64 alternative and whether v held one.
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }

// AsString returns the string alternative and whether v held one.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsBytes returns the bytes alternative and whether v held one.
func (v Value) AsBytes() ([]byte, bool) { return v.by, v.kind == KindBytes }

// AsSequence returns the sequence alternative and whether v held one.
func (v Value) AsSequence() ([]Value, bool) { return v.seq, v.kind == KindSequence }

// AsMap returns the map alternative and whether v held one.
func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == KindMap }

func (v Value) String() string {
	switch v.kind {
	case KindUnit:
		return "unit"
	case KindBool:
		return fmt.Sprintf("bool(%v)", v.b)
	case KindFloat:
		return fmt.Sprintf("f64(%v)", v.f)
	case KindString:
		return fmt.Sprintf("string(%q)", v.s)
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.by))
	case KindSequence:
		return fmt.Sprintf("sequence(%d)", len(v.seq))
	case KindMap:
		return fmt.Sprintf("map(%d)", len(v.m))
	default:
		return "unknown"
	}
}
