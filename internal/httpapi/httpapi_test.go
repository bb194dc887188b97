package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voidmerge/voidmerge/internal/objstore"
	"github.com/voidmerge/voidmerge/internal/server"
	"github.com/voidmerge/voidmerge/internal/supervisor"
	"github.com/voidmerge/voidmerge/internal/value"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	root, err := objstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { root.Close() })

	newStore := func(ctxID string) (*objstore.Store, error) {
		return objstore.Open(t.TempDir())
	}
	return New(server.New(nil, root, newStore))
}

func TestHandleHealthReturnsOK(t *testing.T) {
	a := newTestAdapter(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleCtxSetupPutRejectsUnauthorized(t *testing.T) {
	a := newTestAdapter(t)
	require.NoError(t, a.core.SetSysAdmin([]string{"root-token"}))

	body, err := value.Encode(supervisor.CtxSetup{ID: "tenant-a"}.ToValue())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPut, "/ctx-setup", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleFnUnknownContextReturns404(t *testing.T) {
	a := newTestAdapter(t)
	req := httptest.NewRequest(http.MethodGet, "/missing-tenant", nil)
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	a := newTestAdapter(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}
