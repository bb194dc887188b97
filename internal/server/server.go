// Package server implements the Server/Admin component: the sysadmin
// token set, the per-tenant setup/config table, the live context table,
// and the admin operations that gate access to them, grounded on §4.5
// and on the exact-match token-table shape of the teacher's
// pkg/manager/token.go (generalized from server-generated join tokens
// to externally supplied sysadmin/ctxadmin tokens).
package server

import (
	"context"
	"sync"
	"time"

	"github.com/voidmerge/voidmerge/internal/isolate"
	"github.com/voidmerge/voidmerge/internal/objmeta"
	"github.com/voidmerge/voidmerge/internal/objstore"
	"github.com/voidmerge/voidmerge/internal/supervisor"
	"github.com/voidmerge/voidmerge/internal/value"
	"github.com/voidmerge/voidmerge/internal/verror"
)

// tenant bundles a context's persisted setup/config with its own object
// store and live Context, if one is currently running. The store is
// opened as soon as the tenant entry exists (CtxSetupPut or LoadAll),
// independent of whether config/code has been pushed yet, since admin
// listing (ObjListGet) and storage metering both need to see a
// tenant's objects regardless of whether its code is currently live.
type tenant struct {
	setup  supervisor.CtxSetup
	config supervisor.CtxConfig
	store  *objstore.Store
	ctx    *supervisor.Context
}

// Server holds the sysadmin token set, the per-tenant setup/config
// table, and the live context table, each behind its own mutex per the
// shared-resource policy (rarely mutated, so a single RWMutex per table
// is sufficient; no fine-grained locking is warranted).
type Server struct {
	pool *isolate.Pool

	sysMu sync.RWMutex
	sys   supervisor.SysSetup

	tenMu   sync.RWMutex
	tenants map[string]*tenant

	// rootStore persists sysadmin setup and per-tenant setup/config
	// under sys_prefix="s"; per-tenant object data lives in a store
	// scoped to that tenant alone.
	rootStore *objstore.Store
	newStore  func(ctxID string) (*objstore.Store, error)
}

// New constructs a Server backed by rootStore (for sys_prefix="s"
// persistence) and a pool shared by every tenant's isolates. newStore
// opens (or reopens) the per-tenant object store for a given context id.
func New(pool *isolate.Pool, rootStore *objstore.Store, newStore func(ctxID string) (*objstore.Store, error)) *Server {
	return &Server{
		pool:      pool,
		tenants:   make(map[string]*tenant),
		rootStore: rootStore,
		newStore:  newStore,
	}
}

// SetSysAdmin replaces the sysadmin token set.
func (s *Server) SetSysAdmin(tokens []string) error {
	for _, t := range tokens {
		if t == "" {
			return verror.New(verror.InvalidArgument, "sysadmin token must not be empty")
		}
	}
	s.sysMu.Lock()
	defer s.sysMu.Unlock()
	s.sys = supervisor.SysSetup{AdminTokens: append([]string(nil), tokens...)}
	return nil
}

func (s *Server) isSysAdmin(token string) bool {
	s.sysMu.RLock()
	defer s.sysMu.RUnlock()
	for _, t := range s.sys.AdminTokens {
		if t == token {
			return true
		}
	}
	return false
}

func (s *Server) isCtxAdmin(ctxID, token string) bool {
	s.tenMu.RLock()
	defer s.tenMu.RUnlock()
	ten, ok := s.tenants[ctxID]
	if !ok {
		return false
	}
	for _, t := range ten.setup.AdminTokens {
		if t == token {
			return true
		}
	}
	for _, t := range ten.config.AdminTokens {
		if t == token {
			return true
		}
	}
	return false
}

func (s *Server) requireSysAdmin(token string) error {
	if !s.isSysAdmin(token) {
		return verror.New(verror.PermissionDenied, "sysadmin token required")
	}
	return nil
}

func (s *Server) requireAdmin(ctxID, token string) error {
	if s.isSysAdmin(token) || s.isCtxAdmin(ctxID, token) {
		return nil
	}
	return verror.New(verror.PermissionDenied, "sysadmin or ctxadmin token required")
}

// CtxSetupPut requires token to be a sysadmin token. It persists setup
// under sys_prefix="s" and (re)creates the context with its current
// config, if one exists.
func (s *Server) CtxSetupPut(token string, setup supervisor.CtxSetup) error {
	if err := s.requireSysAdmin(token); err != nil {
		return err
	}
	if err := s.persistSetup(setup); err != nil {
		return err
	}

	s.tenMu.Lock()
	defer s.tenMu.Unlock()
	ten, ok := s.tenants[setup.ID]
	if !ok {
		ten = &tenant{}
		s.tenants[setup.ID] = ten
	}
	ten.setup = setup
	return s.recreateLocked(setup.ID, ten)
}

// CtxConfigPut requires token to be a sysadmin or ctxadmin-of-this-ctx
// token. It persists config and (re)creates the context.
func (s *Server) CtxConfigPut(token string, config supervisor.CtxConfig) error {
	if err := s.requireAdmin(config.ID, token); err != nil {
		return err
	}
	if err := s.persistConfig(config); err != nil {
		return err
	}

	s.tenMu.Lock()
	defer s.tenMu.Unlock()
	ten, ok := s.tenants[config.ID]
	if !ok {
		ten = &tenant{}
		s.tenants[config.ID] = ten
	}
	ten.config = config
	return s.recreateLocked(config.ID, ten)
}

// recreateLocked ensures ten.store is open, then (re)builds ten.ctx
// from ten.setup/ten.config. Caller holds tenMu. A tenant with no code
// yet (config never set) has no live Context — fnReq against it
// returns NotFound until config is pushed — but its store is opened
// regardless, since ObjListGet and storage metering must see a
// tenant's objects even before any code is live.
func (s *Server) recreateLocked(ctxID string, ten *tenant) error {
	if ten.store == nil {
		store, err := s.newStore(ctxID)
		if err != nil {
			return verror.WithInfo("opening object store for context", err)
		}
		ten.store = store
	}

	if ten.config.Code == "" {
		return nil
	}
	if ten.ctx != nil {
		ten.ctx.Close()
		ten.ctx = nil
	}
	c, err := supervisor.New(ten.setup, ten.config, ten.store, s.pool)
	if err != nil {
		return verror.WithInfo("constructing context", err)
	}
	ten.ctx = c
	return nil
}

// ObjListGet requires ctxadmin authority for ctx and lists tenant
// objects out of that tenant's own object store — not rootStore, which
// holds only persisted CtxSetup/CtxConfig blobs under sys_prefix="s"
// and never receives a guest's objPut writes.
func (s *Server) ObjListGet(token, ctxID, prefix string, createdGt float64, limit int) ([]string, error) {
	if err := s.requireAdmin(ctxID, token); err != nil {
		return nil, err
	}
	s.tenMu.RLock()
	ten, ok := s.tenants[ctxID]
	s.tenMu.RUnlock()
	if !ok || ten.store == nil {
		return nil, verror.New(verror.NotFound, "context not found")
	}
	return ten.store.List(objmeta.SysPrefixContext+"/"+ctxID+"/"+prefix, createdGt, limit), nil
}

// MeterAll returns the current total visible-object byte count, by
// context, aggregated across every tenant's own object store — the
// source storage_gib's Snapshotter needs, since tenant data lives in
// each tenant's dedicated store, not rootStore.
func (s *Server) MeterAll() map[string]uint64 {
	s.tenMu.RLock()
	defer s.tenMu.RUnlock()
	out := make(map[string]uint64, len(s.tenants))
	for _, ten := range s.tenants {
		if ten.store == nil {
			continue
		}
		for ctxID, bytes := range ten.store.Meter() {
			out[ctxID] += bytes
		}
	}
	return out
}

// FnReq forwards req to the named context's live Context, returning
// NotFound if the context is absent or has no code configured yet.
func (s *Server) FnReq(ctx context.Context, ctxID string, req isolate.FnReq) (isolate.FnRes, error) {
	s.tenMu.RLock()
	ten, ok := s.tenants[ctxID]
	s.tenMu.RUnlock()
	if !ok || ten.ctx == nil {
		return isolate.FnRes{}, verror.New(verror.NotFound, "context not found")
	}
	return ten.ctx.HandleFn(ctx, req)
}

// HealthGet always reports ok; it never inspects internal state.
func (s *Server) HealthGet() bool { return true }

const (
	appPathSetup  = "setup"
	appPathConfig = "config"
)

func setupMeta(ctxID string) objmeta.Meta {
	return objmeta.Meta{SysPrefix: objmeta.SysPrefixSystem, Ctx: ctxID, AppPath: appPathSetup, CreatedSecs: nowSecs()}
}

func configMeta(ctxID string) objmeta.Meta {
	return objmeta.Meta{SysPrefix: objmeta.SysPrefixSystem, Ctx: ctxID, AppPath: appPathConfig, CreatedSecs: nowSecs()}
}

func nowSecs() float64 { return float64(time.Now().UnixNano()) / 1e9 }

func (s *Server) persistSetup(setup supervisor.CtxSetup) error {
	enc, err := value.Encode(setup.ToValue())
	if err != nil {
		return verror.Wrap(verror.Internal, "encoding ctx setup", err)
	}
	if _, err := s.rootStore.Put(setupMeta(setup.ID), enc); err != nil {
		return verror.WithInfo("persisting ctx setup", err)
	}
	return nil
}

func (s *Server) persistConfig(config supervisor.CtxConfig) error {
	enc, err := value.Encode(config.ToValue())
	if err != nil {
		return verror.Wrap(verror.Internal, "encoding ctx config", err)
	}
	if _, err := s.rootStore.Put(configMeta(config.ID), enc); err != nil {
		return verror.WithInfo("persisting ctx config", err)
	}
	return nil
}

// LoadAll rescans rootStore for every persisted setup/config under
// sys_prefix="s" and rebuilds the tenant table and live contexts — the
// server-level analogue of the object store's own on-disk rescan.
func (s *Server) LoadAll() error {
	metas := s.rootStore.List(objmeta.SysPrefixSystem, 0, 1<<30)

	s.tenMu.Lock()
	defer s.tenMu.Unlock()

	for _, metaStr := range metas {
		meta, err := objmeta.Parse(metaStr)
		if err != nil {
			continue
		}
		ten, ok := s.tenants[meta.Ctx]
		if !ok {
			ten = &tenant{}
			s.tenants[meta.Ctx] = ten
		}

		data, err := s.rootStore.Get(meta)
		if err != nil {
			continue
		}
		v, err := value.Decode(data)
		if err != nil {
			continue
		}

		switch meta.AppPath {
		case appPathSetup:
			if setup, err := supervisor.CtxSetupFromValue(meta.Ctx, v); err == nil {
				ten.setup = setup
			}
		case appPathConfig:
			if config, err := supervisor.CtxConfigFromValue(meta.Ctx, v); err == nil {
				ten.config = config
			}
		}
	}

	for ctxID, ten := range s.tenants {
		if err := s.recreateLocked(ctxID, ten); err != nil {
			return err
		}
	}
	return nil
}

