package isolate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/voidmerge/voidmerge/internal/objmeta"
)

type fakeHost struct {
	objs map[string][]byte
}

func newFakeHost() *fakeHost { return &fakeHost{objs: map[string][]byte{}} }

func (h *fakeHost) ObjPut(meta objmeta.Meta, data []byte) (bool, error) {
	h.objs[meta.Key()] = data
	return true, nil
}

func (h *fakeHost) ObjGet(meta objmeta.Meta) ([]byte, bool, error) {
	d, ok := h.objs[meta.Key()]
	return d, ok, nil
}

func (h *fakeHost) ObjList(prefix string, createdGt float64, limit int) []string {
	return nil
}

func TestDispatchSystemUtf8RoundTrip(t *testing.T) {
	host := newFakeHost()

	encEnv, _ := json.Marshal(systemEnvelope{Type: "utf8Encode", Data: &jsValue{Str: strPtr("hi")}})
	encResultRaw := dispatchSystem(host, "ctx-a", string(encEnv))
	var encResult systemResult
	require.NoError(t, json.Unmarshal([]byte(encResultRaw), &encResult))
	require.NotNil(t, encResult.Value)
	require.NotNil(t, encResult.Value.BytesB64)

	decEnv, _ := json.Marshal(systemEnvelope{Type: "utf8Decode", Data: encResult.Value})
	decResultRaw := dispatchSystem(host, "ctx-a", string(decEnv))
	var decResult systemResult
	require.NoError(t, json.Unmarshal([]byte(decResultRaw), &decResult))
	require.Equal(t, "hi", *decResult.Value.Str)
}

func TestDispatchSystemRandomBytesRejectsOversize(t *testing.T) {
	host := newFakeHost()
	env, _ := json.Marshal(systemEnvelope{Type: "randomBytes", ByteLength: maxRandomBytes + 1})
	raw := dispatchSystem(host, "ctx-a", string(env))
	var result systemResult
	require.NoError(t, json.Unmarshal([]byte(raw), &result))
	require.NotEmpty(t, result.Error)
}

func TestDispatchSystemObjPutRejectsForeignContext(t *testing.T) {
	host := newFakeHost()
	meta := objmeta.Meta{SysPrefix: "c", Ctx: "other-ctx", AppPath: "k", CreatedSecs: 1}
	env, _ := json.Marshal(systemEnvelope{Type: "objPut", Meta: objmeta.Encode(meta)})
	raw := dispatchSystem(host, "ctx-a", string(env))
	var result systemResult
	require.NoError(t, json.Unmarshal([]byte(raw), &result))
	require.NotEmpty(t, result.Error)
}

func strPtr(s string) *string { return &s }
