// Package supervisor implements the Context Supervisor: the object that
// binds one tenant's isolate-pool access and object-store handle
// together and runs its guest-declared cron schedule, grounded on
// §4.4 of the design and on the construction/teardown shape of the
// original implementation's context handling (the weak-reference cron
// self-termination is replaced here by ordinary context.Context
// cancellation, since Go has no equivalent of Rust's Weak<T>).
package supervisor

import (
	"time"

	"github.com/voidmerge/voidmerge/internal/value"
	"github.com/voidmerge/voidmerge/internal/verror"
)

// SysSetup is the process-wide singleton set of sysadmin tokens.
type SysSetup struct {
	AdminTokens []string
}

// CtxSetup is the sysadmin-controlled, per-tenant configuration:
// identity, admin tokens, and resource caps for one guest invocation.
type CtxSetup struct {
	ID           string
	AdminTokens  []string
	TimeoutSecs  float64
	HeapCapBytes uint64
}

// Timeout returns TimeoutSecs as a time.Duration, defaulting per the
// data model (10s) when unset.
func (s CtxSetup) Timeout() time.Duration {
	if s.TimeoutSecs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.TimeoutSecs * float64(time.Second))
}

// HeapCap returns the configured heap cap, defaulting to 32MiB when unset.
func (s CtxSetup) HeapCap() uint64 {
	if s.HeapCapBytes == 0 {
		return 32 * 1024 * 1024
	}
	return s.HeapCapBytes
}

// CtxConfig is the ctxadmin-controlled, per-tenant editable
// configuration: admin tokens and the guest source code.
type CtxConfig struct {
	ID          string
	AdminTokens []string
	Code        string
}

// MaxCronInterval bounds a guest-declared cron interval, per the design
// note "clamp to a sane maximum."
const MaxCronInterval = 24 * time.Hour

// ToValue encodes a CtxSetup as the canonical map shape persisted under
// sys_prefix="s" and accepted on the wire at PUT /ctx-setup.
func (s CtxSetup) ToValue() value.Value {
	return value.Map(map[string]value.Value{
		"id":           value.String(s.ID),
		"adminTokens":  stringsToValue(s.AdminTokens),
		"timeoutSecs":  value.Float(s.TimeoutSecs),
		"heapCapBytes": value.Float(float64(s.HeapCapBytes)),
	})
}

// CtxSetupFromValue decodes a CtxSetup from the canonical map shape
// ToValue produces. id is supplied by the caller (the URL/table key),
// not trusted from the wire payload.
func CtxSetupFromValue(id string, v value.Value) (CtxSetup, error) {
	m, ok := v.AsMap()
	if !ok {
		return CtxSetup{}, verror.New(verror.InvalidArgument, "ctx setup must be a map")
	}
	setup := CtxSetup{ID: id}
	if f, ok := m["timeoutSecs"]; ok {
		setup.TimeoutSecs, _ = f.AsFloat()
	}
	if f, ok := m["heapCapBytes"]; ok {
		n, _ := f.AsFloat()
		setup.HeapCapBytes = uint64(n)
	}
	if ts, ok := m["adminTokens"]; ok {
		setup.AdminTokens = stringsFromValue(ts)
	}
	return setup, nil
}

// ToValue encodes a CtxConfig as the canonical map shape persisted under
// sys_prefix="s" and accepted on the wire at PUT /{ctx}/_vm_/config.
func (c CtxConfig) ToValue() value.Value {
	return value.Map(map[string]value.Value{
		"id":          value.String(c.ID),
		"adminTokens": stringsToValue(c.AdminTokens),
		"code":        value.String(c.Code),
	})
}

// CtxConfigFromValue decodes a CtxConfig from the canonical map shape
// ToValue produces. id is supplied by the caller, not trusted from the
// wire payload.
func CtxConfigFromValue(id string, v value.Value) (CtxConfig, error) {
	m, ok := v.AsMap()
	if !ok {
		return CtxConfig{}, verror.New(verror.InvalidArgument, "ctx config must be a map")
	}
	config := CtxConfig{ID: id}
	if code, ok := m["code"]; ok {
		config.Code, _ = code.AsString()
	}
	if ts, ok := m["adminTokens"]; ok {
		config.AdminTokens = stringsFromValue(ts)
	}
	return config, nil
}

func stringsToValue(ss []string) value.Value {
	vs := make([]value.Value, len(ss))
	for i, s := range ss {
		vs[i] = value.String(s)
	}
	return value.Sequence(vs...)
}

func stringsFromValue(v value.Value) []string {
	seq, ok := v.AsSequence()
	if !ok {
		return nil
	}
	out := make([]string, 0, len(seq))
	for _, item := range seq {
		if s, ok := item.AsString(); ok {
			out = append(out, s)
		}
	}
	return out
}
