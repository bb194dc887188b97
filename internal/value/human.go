// Human/template value transform for bootstrapping fixtures, ported
// narrowly from the original implementation's types/value.rs
// ValueTxFromHuman: a human-authored JSON document becomes a Value tree
// whose string leaves may carry `{{cmd arg}}` template tags that are
// resolved against a root directory before use. Only the From-human
// direction is implemented; nothing in this repository needs the
// inverse (ValueTxToHuman) since it exists upstream only for rendering
// fixtures back out for humans to read.
package value

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/voidmerge/voidmerge/internal/verror"
)

// FromJSON parses a human-authored JSON document into a Value tree
// (objects become Map, arrays become Sequence, scalars map directly),
// without resolving any template tags.
func FromJSON(data []byte) (Value, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return Value{}, verror.Wrap(verror.InvalidArgument, "parsing human value JSON", err)
	}
	return valueFromJSON(v), nil
}

func valueFromJSON(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return Unit()
	case bool:
		return Bool(t)
	case float64:
		return Float(t)
	case string:
		return String(t)
	case []interface{}:
		seq := make([]Value, len(t))
		for i, item := range t {
			seq[i] = valueFromJSON(item)
		}
		return Sequence(seq...)
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			m[k] = valueFromJSON(item)
		}
		return Map(m)
	default:
		return Unit()
	}
}

// FromHuman resolves every `{{cmd arg}}`-tagged string leaf in v against
// root, recognizing the same four tags as the original's
// ValueTxFromHuman: inc-str/inc-bin read a file relative to root (text
// or raw bytes), b64-str/b64-bin decode a base64url-no-pad literal
// (text or raw bytes). Untagged strings pass through unchanged.
func FromHuman(v Value, root string) (Value, error) {
	switch v.Kind() {
	case KindString:
		s, _ := v.AsString()
		return resolveTag(s, root)
	case KindSequence:
		seq, _ := v.AsSequence()
		out := make([]Value, len(seq))
		for i, item := range seq {
			r, err := FromHuman(item, root)
			if err != nil {
				return Value{}, err
			}
			out[i] = r
		}
		return Sequence(out...), nil
	case KindMap:
		m, _ := v.AsMap()
		out := make(map[string]Value, len(m))
		for k, item := range m {
			r, err := FromHuman(item, root)
			if err != nil {
				return Value{}, err
			}
			out[k] = r
		}
		return Map(out), nil
	default:
		return v, nil
	}
}

func resolveTag(s, root string) (Value, error) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{{") || !strings.HasSuffix(trimmed, "}}") {
		return String(s), nil
	}
	inner := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
	cmd, rest, ok := strings.Cut(inner, " ")
	if !ok {
		return String(s), nil
	}
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "inc-str", "inc-bin":
		data, err := os.ReadFile(filepath.Join(root, rest))
		if err != nil {
			return Value{}, verror.Wrap(verror.InvalidArgument, "resolving inc-* template tag", err)
		}
		if cmd == "inc-str" {
			return String(string(data)), nil
		}
		return Bytes(data), nil

	case "b64-str", "b64-bin":
		data, err := base64.RawURLEncoding.DecodeString(rest)
		if err != nil {
			return Value{}, verror.Wrap(verror.InvalidArgument, "resolving b64-* template tag", err)
		}
		if cmd == "b64-str" {
			return String(string(data)), nil
		}
		return Bytes(data), nil

	default:
		return String(s), nil
	}
}
