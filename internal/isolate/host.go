package isolate

import "github.com/voidmerge/voidmerge/internal/objmeta"

// Host is the set of services the bridge's "system" calls delegate to.
// A worker is handed one Host per Setup.ContextID; the object-store
// calls it makes are implicitly scoped to that context by the meta the
// guest supplies (the guest cannot address another context's objects
// since ObjMeta.Ctx is taken from the call args and the store itself
// enforces nothing beyond visibility rules — scoping is enforced by
// dispatchSystem in bridge.go, which rejects an objPut/objGet meta whose
// Ctx does not match the worker's ContextID).
type Host interface {
	ObjPut(meta objmeta.Meta, data []byte) (bool, error)
	ObjGet(meta objmeta.Meta) ([]byte, bool, error)
	ObjList(prefix string, createdGt float64, limit int) []string
}
