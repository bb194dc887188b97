// Package objmeta implements the six-field object metadata record and
// its string encoding, grounded on the original implementation's
// ObjMeta (obj.rs) but using raw URL-safe path segments rather than a
// base64-encoded ctx field, since every field is already constrained to
// the URL-safe alphabet by the path rules below.
package objmeta

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/voidmerge/voidmerge/internal/verror"
)

const (
	// SysPrefixSystem marks system-owned objects (sysadmin setup, per-ctx
	// setup/config).
	SysPrefixSystem = "s"
	// SysPrefixContext marks tenant-owned objects written through the
	// guest objPut/objGet/objList bridge calls.
	SysPrefixContext = "c"
)

// Meta is the six-field object record described by the data model:
// sys_prefix/ctx/app_path identify the object, created_secs orders
// replacement, expires_secs governs visibility, and
// recheck_interval_secs is opaque tenant data round-tripped unexamined.
type Meta struct {
	SysPrefix           string
	Ctx                 string
	AppPath             string
	CreatedSecs         float64
	ExpiresSecs         float64
	RecheckIntervalSecs float64
}

// Key returns the composite prefix key used by the in-memory index and
// by prefix-based listing: "sys_prefix/ctx/app_path".
func (m Meta) Key() string {
	return m.SysPrefix + "/" + m.Ctx + "/" + m.AppPath
}

// SameObject reports whether m and other are "equivalent for
// replacement" — their first three fields match.
func (m Meta) SameObject(other Meta) bool {
	return m.SysPrefix == other.SysPrefix && m.Ctx == other.Ctx && m.AppPath == other.AppPath
}

// isPathSafe reports whether s is non-empty and consists only of
// characters safe in a URL-path segment: alphanumerics, '-', '_', '.'.
func isPathSafe(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}

// Validate enforces the path rules: sys_prefix, ctx, and app_path must
// each be non-empty and URL-path-segment safe. app_path may contain '/'
// to express tenant hierarchy; each '/'-separated segment is checked
// independently.
func (m Meta) Validate() error {
	if !isPathSafe(m.SysPrefix) {
		return verror.New(verror.InvalidArgument, "sys_prefix must be a non-empty URL-safe segment")
	}
	if !isPathSafe(m.Ctx) {
		return verror.New(verror.InvalidArgument, "ctx must be a non-empty URL-safe segment")
	}
	if m.AppPath == "" {
		return verror.New(verror.InvalidArgument, "app_path must not be empty")
	}
	for _, seg := range strings.Split(m.AppPath, "/") {
		if !isPathSafe(seg) {
			return verror.New(verror.InvalidArgument, "app_path segments must be URL-safe")
		}
	}
	return nil
}

// Encode renders m as the canonical meta path string, e.g.
// "c/tenant-a/orders/2024-01/100/0/0" for app_path "orders/2024-01",
// created_secs 100 and zero expires/recheck.
func Encode(m Meta) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s/%s",
		m.SysPrefix, m.Ctx, m.AppPath,
		formatFloat(m.CreatedSecs), formatFloat(m.ExpiresSecs), formatFloat(m.RecheckIntervalSecs))
}

// Parse inverts Encode. Parse(Encode(m)) == m for any valid m.
func Parse(s string) (Meta, error) {
	parts := strings.Split(s, "/")
	if len(parts) < 6 {
		return Meta{}, verror.New(verror.InvalidArgument, "meta string has too few fields")
	}
	// app_path may itself contain '/', so the trailing three numeric
	// fields and the leading two prefix fields anchor the split; every
	// field in between belongs to app_path.
	sysPrefix := parts[0]
	ctx := parts[1]
	created, err := strconv.ParseFloat(parts[len(parts)-3], 64)
	if err != nil {
		return Meta{}, verror.Wrap(verror.InvalidArgument, "meta created_secs", err)
	}
	expires, err := strconv.ParseFloat(parts[len(parts)-2], 64)
	if err != nil {
		return Meta{}, verror.Wrap(verror.InvalidArgument, "meta expires_secs", err)
	}
	recheck, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil {
		return Meta{}, verror.Wrap(verror.InvalidArgument, "meta recheck_interval_secs", err)
	}
	appPath := strings.Join(parts[2:len(parts)-3], "/")

	m := Meta{
		SysPrefix:           sysPrefix,
		Ctx:                 ctx,
		AppPath:             appPath,
		CreatedSecs:         created,
		ExpiresSecs:         expires,
		RecheckIntervalSecs: recheck,
	}
	if err := m.Validate(); err != nil {
		return Meta{}, err
	}
	return m, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Expired reports whether m's expires_secs marks it as expired at the
// given wall-clock time (in epoch seconds). expires_secs == 0 means no
// expiry.
func (m Meta) Expired(nowSecs float64) bool {
	return m.ExpiresSecs != 0 && m.ExpiresSecs <= nowSecs
}
