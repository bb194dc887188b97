package isolate

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/voidmerge/voidmerge/internal/objmeta"
	"github.com/voidmerge/voidmerge/internal/value"
	"github.com/voidmerge/voidmerge/internal/vlog"
)

// systemEnvelope is the JSON shape the bootstrap script's VM() function
// sends to the native __vm_system trampoline for every call tagged
// "system". Which fields are populated depends on Type (objPut carries
// Meta and Data, objList carries Prefix, CreatedGt and Limit).
type systemEnvelope struct {
	Type       string   `json:"type"`
	Data       *jsValue `json:"data,omitempty"`
	Meta       string   `json:"meta,omitempty"`
	Prefix     string   `json:"prefix,omitempty"`
	CreatedGt  float64  `json:"createdGt,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	ByteLength int       `json:"byteLength,omitempty"`
}

// systemResult is what dispatchSystem returns to JS, JSON-encoded: at
// most one of Error/Value/List is set.
type systemResult struct {
	Error string    `json:"error,omitempty"`
	Value *jsValue  `json:"value,omitempty"`
	List  []string  `json:"list,omitempty"`
}

const maxRandomBytes = 65536

// dispatchSystem implements every "system" call tag in the table: it is
// the native body of __vm_system, called synchronously on the worker's
// own goroutine — a host exception here is returned as {"error": ...}
// and becomes a guest exception, matching the error-propagation rule.
func dispatchSystem(host Host, ctxID string, raw string) string {
	var env systemEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return encodeError(fmt.Errorf("malformed system call: %w", err))
	}

	switch env.Type {
	case "trace":
		if env.Data != nil {
			vlog.WithContextID(ctxID).Debug().Interface("trace", fromJSValue(*env.Data)).Send()
		}
		return encodeValueResult(value.Unit())

	case "vmEncode":
		v := value.Unit()
		if env.Data != nil {
			v = fromJSValue(*env.Data)
		}
		enc, err := value.Encode(v)
		if err != nil {
			return encodeError(err)
		}
		return encodeValueResult(value.Bytes(enc))

	case "vmDecode":
		if env.Data == nil || env.Data.BytesB64 == nil {
			return encodeError(fmt.Errorf("vmDecode requires bytes"))
		}
		raw, err := base64.StdEncoding.DecodeString(*env.Data.BytesB64)
		if err != nil {
			return encodeError(err)
		}
		v, err := value.Decode(raw)
		if err != nil {
			return encodeError(err)
		}
		return encodeValueResult(v)

	case "utf8Encode":
		if env.Data == nil || env.Data.Str == nil {
			return encodeError(fmt.Errorf("utf8Encode requires a string"))
		}
		return encodeValueResult(value.Bytes([]byte(*env.Data.Str)))

	case "utf8Decode":
		if env.Data == nil || env.Data.BytesB64 == nil {
			return encodeError(fmt.Errorf("utf8Decode requires bytes"))
		}
		raw, err := base64.StdEncoding.DecodeString(*env.Data.BytesB64)
		if err != nil {
			return encodeError(err)
		}
		return encodeValueResult(value.String(string(raw)))

	case "randomBytes":
		if env.ByteLength < 0 || env.ByteLength > maxRandomBytes {
			return encodeError(fmt.Errorf("byteLength must be in [0, %d]", maxRandomBytes))
		}
		buf := make([]byte, env.ByteLength)
		if _, err := rand.Read(buf); err != nil {
			return encodeError(err)
		}
		return encodeValueResult(value.Bytes(buf))

	case "objPut":
		meta, err := objmeta.Parse(env.Meta)
		if err != nil {
			return encodeError(err)
		}
		if meta.Ctx != ctxID {
			return encodeError(fmt.Errorf("objPut: meta.ctx does not match this context"))
		}
		var data []byte
		if env.Data != nil && env.Data.BytesB64 != nil {
			data, err = base64.StdEncoding.DecodeString(*env.Data.BytesB64)
			if err != nil {
				return encodeError(err)
			}
		}
		ok, err := host.ObjPut(meta, data)
		if err != nil {
			return encodeError(err)
		}
		return encodeValueResult(value.Bool(ok))

	case "objGet":
		meta, err := objmeta.Parse(env.Meta)
		if err != nil {
			return encodeError(err)
		}
		if meta.Ctx != ctxID {
			return encodeError(fmt.Errorf("objGet: meta.ctx does not match this context"))
		}
		data, ok, err := host.ObjGet(meta)
		if err != nil {
			return encodeError(err)
		}
		if !ok {
			return encodeValueResult(value.Unit())
		}
		return encodeValueResult(value.Bytes(data))

	case "objList":
		list := host.ObjList(env.Prefix, env.CreatedGt, env.Limit)
		b, err := json.Marshal(systemResult{List: list})
		if err != nil {
			return encodeError(err)
		}
		return string(b)

	default:
		return encodeError(fmt.Errorf("unknown system call type %q", env.Type))
	}
}

func encodeValueResult(v value.Value) string {
	jv := toJSValue(v)
	b, err := json.Marshal(systemResult{Value: &jv})
	if err != nil {
		return encodeError(err)
	}
	return string(b)
}

func encodeError(err error) string {
	b, marshalErr := json.Marshal(systemResult{Error: err.Error()})
	if marshalErr != nil {
		return `{"error":"internal: failed to encode error"}`
	}
	return string(b)
}
