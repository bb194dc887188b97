package supervisor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/voidmerge/voidmerge/internal/isolate"
	"github.com/voidmerge/voidmerge/internal/metering"
	"github.com/voidmerge/voidmerge/internal/objmeta"
	"github.com/voidmerge/voidmerge/internal/objstore"
	"github.com/voidmerge/voidmerge/internal/verror"
	"github.com/voidmerge/voidmerge/internal/vlog"
)

// Context binds one tenant's isolate-pool access and object-store
// handle, and owns its cron schedule. Construction issues a synthetic
// CodeConfigReq so the guest can self-register a cron interval; if one
// is registered, a periodic task sends CronReq until the Context is
// closed.
type Context struct {
	id       string
	setup    CtxSetup
	config   CtxConfig
	pool     *isolate.Pool
	store    *objstore.Store
	host     isolate.Host
	codeHash string

	cancel context.CancelFunc
}

// objStoreHost adapts this tenant's own *objstore.Store to isolate.Host.
// Its methods pass calls straight to the store; the meta ctx check is
// done by the isolate bridge before they are reached.
type objStoreHost struct {
	ctxID string
	store *objstore.Store
}

func (h objStoreHost) ObjPut(meta objmeta.Meta, data []byte) (bool, error) {
	res, err := h.store.Put(meta, data)
	if err != nil {
		return false, err
	}
	return res == objstore.PutOK, nil
}

func (h objStoreHost) ObjGet(meta objmeta.Meta) ([]byte, bool, error) {
	data, err := h.store.Get(meta)
	if err != nil {
		if verror.Is(err, verror.NotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (h objStoreHost) ObjList(prefix string, createdGt float64, limit int) []string {
	return h.store.List(prefix, createdGt, limit)
}

func codeHashOf(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// New constructs a Context, issues the synthetic CodeConfigReq, and
// starts its cron task if the guest registered one.
func New(setup CtxSetup, config CtxConfig, store *objstore.Store, pool *isolate.Pool) (*Context, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Context{
		id:       setup.ID,
		setup:    setup,
		config:   config,
		pool:     pool,
		store:    store,
		host:     objStoreHost{ctxID: setup.ID, store: store},
		codeHash: codeHashOf(config.Code),
		cancel:   cancel,
	}

	res, err := pool.Execute(context.Background(), c.isolateSetup(), c.host, isolate.Request{Kind: isolate.KindCodeConfig})
	if err != nil {
		cancel()
		return nil, verror.WithInfo("issuing code-config request during context construction", err)
	}

	if res.CodeConfig.HasCron {
		interval := time.Duration(res.CodeConfig.CronIntervalSecs * float64(time.Second))
		if interval <= 0 || interval > MaxCronInterval {
			interval = MaxCronInterval
		}
		go c.cronLoop(ctx, interval)
	}

	return c, nil
}

func (c *Context) isolateSetup() isolate.Setup {
	return isolate.Setup{
		ContextID: c.id,
		CodeHash:  c.codeHash,
		Code:      c.config.Code,
		HeapCap:   c.setup.HeapCap(),
		Timeout:   c.setup.Timeout(),
	}
}

// Close cancels the cron task. In-flight isolate requests complete or
// time out independently; they are not interrupted.
func (c *Context) Close() {
	c.cancel()
}

// HandleFn forwards req to this context's isolate, returning FnRes. It
// records fn_gib_sec regardless of outcome and egress_gib for successful
// invocations only; metering never gates admission.
func (c *Context) HandleFn(ctx context.Context, req isolate.FnReq) (isolate.FnRes, error) {
	start := time.Now()
	res, err := c.pool.Execute(ctx, c.isolateSetup(), c.host, isolate.Request{Kind: isolate.KindFn, Fn: req})
	metering.RecordInvocation(c.id, c.setup.HeapCap(), time.Since(start))
	if err != nil {
		return isolate.FnRes{}, err
	}
	metering.RecordEgress(c.id, len(res.Fn.Body))
	return res.Fn, nil
}

// cronLoop sends a CronReq every interval until ctx is cancelled —
// cancellation (by Close) is this Context's stand-in for the original
// implementation's weak-reference liveness check. The loop runs as a
// method on c and so keeps c reachable until ctx is cancelled.
func (c *Context) cronLoop(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, err := c.pool.Execute(ctx, c.isolateSetup(), c.host, isolate.Request{Kind: isolate.KindCron})
			if err != nil {
				vlog.WithContextID(c.id).Errorf("cron invocation failed", err)
			}
		}
	}
}
