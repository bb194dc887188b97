package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voidmerge/voidmerge/internal/isolate"
	"github.com/voidmerge/voidmerge/internal/objmeta"
	"github.com/voidmerge/voidmerge/internal/objstore"
	"github.com/voidmerge/voidmerge/internal/supervisor"
)

func emptyFnReq() isolate.FnReq { return isolate.FnReq{} }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	root, err := objstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { root.Close() })

	newStore := func(ctxID string) (*objstore.Store, error) {
		return objstore.Open(t.TempDir())
	}
	return New(nil, root, newStore)
}

func TestCtxSetupPutRequiresSysAdminToken(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.SetSysAdmin([]string{"root-token"}))

	err := s.CtxSetupPut("wrong-token", supervisor.CtxSetup{ID: "tenant-a"})
	require.Error(t, err)

	require.NoError(t, s.CtxSetupPut("root-token", supervisor.CtxSetup{ID: "tenant-a"}))
}

func TestCtxConfigPutAcceptsCtxAdminToken(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.SetSysAdmin([]string{"root-token"}))
	require.NoError(t, s.CtxSetupPut("root-token", supervisor.CtxSetup{
		ID:          "tenant-a",
		AdminTokens: []string{"tenant-a-admin"},
	}))

	// config.Code left empty so CtxConfigPut never builds a live
	// supervisor.Context (which would require a real isolate pool).
	err := s.CtxConfigPut("wrong-token", supervisor.CtxConfig{ID: "tenant-a"})
	require.Error(t, err)

	require.NoError(t, s.CtxConfigPut("tenant-a-admin", supervisor.CtxConfig{ID: "tenant-a"}))
}

func TestFnReqUnknownContextReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	_, err := s.FnReq(nil, "missing-tenant", emptyFnReq())
	require.Error(t, err)
}

func TestLoadAllRebuildsTenantTableFromPersistedSetup(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.SetSysAdmin([]string{"root-token"}))
	require.NoError(t, s.CtxSetupPut("root-token", supervisor.CtxSetup{
		ID:          "tenant-a",
		TimeoutSecs: 5,
	}))

	s2 := New(nil, s.rootStore, s.newStore)
	require.NoError(t, s2.LoadAll())

	s2.tenMu.RLock()
	ten, ok := s2.tenants["tenant-a"]
	s2.tenMu.RUnlock()
	require.True(t, ok)
	require.Equal(t, "tenant-a", ten.setup.ID)
	require.Equal(t, float64(5), ten.setup.TimeoutSecs)
}

func TestHealthGetAlwaysOK(t *testing.T) {
	s := newTestServer(t)
	require.True(t, s.HealthGet())
}

// TestObjListGetReadsTenantOwnStore guards against regressing into
// searching rootStore (which never receives a guest's objPut writes)
// instead of the tenant's own per-context store.
func TestObjListGetReadsTenantOwnStore(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.SetSysAdmin([]string{"root-token"}))
	require.NoError(t, s.CtxSetupPut("root-token", supervisor.CtxSetup{ID: "tenant-a"}))

	s.tenMu.RLock()
	ten := s.tenants["tenant-a"]
	s.tenMu.RUnlock()
	require.NotNil(t, ten.store)

	meta := objmeta.Meta{SysPrefix: objmeta.SysPrefixContext, Ctx: "tenant-a", AppPath: "k1", CreatedSecs: 10}
	_, err := ten.store.Put(meta, []byte("hello"))
	require.NoError(t, err)

	keys, err := s.ObjListGet("root-token", "tenant-a", "", 0, 10)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	// Confirms the object never lands in rootStore either.
	require.Empty(t, s.rootStore.List(objmeta.SysPrefixContext, 0, 10))
}

func TestObjListGetUnknownContextReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.SetSysAdmin([]string{"root-token"}))
	_, err := s.ObjListGet("root-token", "missing-tenant", "", 0, 10)
	require.Error(t, err)
}

// TestMeterAllAggregatesTenantStoresNotRootStore guards against
// regressing into metering rootStore (near-constant-size setup/config
// blobs) instead of the actual per-tenant object data.
func TestMeterAllAggregatesTenantStoresNotRootStore(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.SetSysAdmin([]string{"root-token"}))
	require.NoError(t, s.CtxSetupPut("root-token", supervisor.CtxSetup{ID: "tenant-a"}))

	s.tenMu.RLock()
	ten := s.tenants["tenant-a"]
	s.tenMu.RUnlock()

	meta := objmeta.Meta{SysPrefix: objmeta.SysPrefixContext, Ctx: "tenant-a", AppPath: "k1", CreatedSecs: 10}
	_, err := ten.store.Put(meta, []byte("hello"))
	require.NoError(t, err)

	totals := s.MeterAll()
	require.Equal(t, uint64(len("hello")), totals["tenant-a"])
}
