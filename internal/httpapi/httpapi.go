// Package httpapi adapts internal/server.Server onto the HTTP surface
// named in spec.md §6, grounded on fyrsmithlabs-contextd's
// internal/http/server.go (echo.Echo + middleware.Recover/RequestID,
// a request-logging middleware around zerolog instead of zap, and a
// promhttp.Handler() mounted at /metrics).
package httpapi

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voidmerge/voidmerge/internal/isolate"
	"github.com/voidmerge/voidmerge/internal/server"
	"github.com/voidmerge/voidmerge/internal/supervisor"
	"github.com/voidmerge/voidmerge/internal/value"
	"github.com/voidmerge/voidmerge/internal/verror"
	"github.com/voidmerge/voidmerge/internal/vlog"
)

// Adapter owns the echo.Echo instance and a reference to the core
// server.Server it fronts.
type Adapter struct {
	echo *echo.Echo
	core *server.Server
}

// New builds the echo router with every route spec.md §6 names.
func New(core *server.Server) *Adapter {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	}))
	e.Use(requestLogger)

	a := &Adapter{echo: e, core: core}

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/", a.handleHealth)
	e.PUT("/ctx-setup", a.handleCtxSetupPut)
	e.PUT("/:ctx/_vm_/config", a.handleCtxConfigPut)
	e.GET("/:ctx", a.handleFn)
	e.PUT("/:ctx", a.handleFn)
	e.GET("/:ctx/*", a.handleFn)
	e.PUT("/:ctx/*", a.handleFn)

	return a
}

func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		vlog.WithRequestID(c.Response().Header().Get(echo.HeaderXRequestID)).Info().
			Str("method", c.Request().Method).
			Str("path", c.Request().URL.Path).
			Int("status", c.Response().Status).
			Dur("duration", time.Since(start)).
			Msg("http request")
		return err
	}
}

// Start runs the HTTP listener at addr, emitting the spec.md §6 startup
// marker line to stdout once the socket is bound.
func (a *Adapter) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return verror.Wrap(verror.Internal, "binding http listener", err)
	}
	fmt.Printf("#vm#listening#%s#\n", ln.Addr().String())
	return a.echo.Server.Serve(ln)
}

// Shutdown gracefully stops the HTTP listener within ctx's deadline.
func (a *Adapter) Shutdown(ctx context.Context) error {
	return a.echo.Shutdown(ctx)
}

func bearerToken(c echo.Context) string {
	h := c.Request().Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

func (a *Adapter) handleHealth(c echo.Context) error {
	if !a.core.HealthGet() {
		return c.NoContent(http.StatusServiceUnavailable)
	}
	return c.NoContent(http.StatusOK)
}

func (a *Adapter) handleCtxSetupPut(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return writeError(c, verror.Wrap(verror.InvalidArgument, "reading request body", err))
	}
	v, err := value.Decode(body)
	if err != nil {
		return writeError(c, verror.Wrap(verror.InvalidArgument, "decoding ctx setup", err))
	}
	m, ok := v.AsMap()
	if !ok {
		return writeError(c, verror.New(verror.InvalidArgument, "ctx setup must be a map"))
	}
	idVal, ok := m["id"]
	if !ok {
		return writeError(c, verror.New(verror.InvalidArgument, "ctx setup missing id"))
	}
	id, _ := idVal.AsString()
	setup, err := supervisor.CtxSetupFromValue(id, v)
	if err != nil {
		return writeError(c, err)
	}
	if err := a.core.CtxSetupPut(bearerToken(c), setup); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (a *Adapter) handleCtxConfigPut(c echo.Context) error {
	ctxID := c.Param("ctx")
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return writeError(c, verror.Wrap(verror.InvalidArgument, "reading request body", err))
	}
	v, err := value.Decode(body)
	if err != nil {
		return writeError(c, verror.Wrap(verror.InvalidArgument, "decoding ctx config", err))
	}
	config, err := supervisor.CtxConfigFromValue(ctxID, v)
	if err != nil {
		return writeError(c, err)
	}
	if err := a.core.CtxConfigPut(bearerToken(c), config); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (a *Adapter) handleFn(c echo.Context) error {
	ctxID := c.Param("ctx")
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return writeError(c, verror.Wrap(verror.InvalidArgument, "reading request body", err))
	}

	headers := make(map[string]string, len(c.Request().Header))
	for k := range c.Request().Header {
		headers[k] = c.Request().Header.Get(k)
	}

	req := isolate.FnReq{
		Method:  c.Request().Method,
		Path:    c.Param("*"),
		Body:    body,
		Headers: headers,
	}

	res, err := a.core.FnReq(c.Request().Context(), ctxID, req)
	if err != nil {
		return writeError(c, err)
	}

	for k, v := range res.Headers {
		c.Response().Header().Set(k, v)
	}
	status := res.Status
	if status < 100 || status >= 600 {
		status = http.StatusOK
	}
	return c.Blob(status, "application/octet-stream", res.Body)
}

// statusFor maps a core error Kind to the HTTP status spec.md §6 names.
// Kinds the taxonomy doesn't name (Timeout, HeapExhausted, GuestError,
// StorageError) fall through to "anything else -> 500", except
// GuestError, which is reported as 500 but with the guest's message text
// per spec.md §7's "guest exceptions include the message text."
func statusFor(kind verror.Kind) int {
	switch kind {
	case verror.NotFound:
		return http.StatusNotFound
	case verror.PermissionDenied:
		return http.StatusUnauthorized
	case verror.InvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c echo.Context, err error) error {
	kind := verror.KindOf(err)
	status := statusFor(kind)
	if kind == verror.GuestError {
		return c.String(status, err.Error())
	}
	if status == http.StatusInternalServerError {
		return c.NoContent(status)
	}
	return c.String(status, err.Error())
}
