// Package objstore implements the per-context object store: an
// in-memory replacement index (this file) plus a crash-safe on-disk
// backing (filestore.go), grounded respectively on the original
// implementation's memindex.rs and obj/obj_file.rs.
package objstore

import (
	"sort"
	"sync"

	"github.com/voidmerge/voidmerge/internal/objmeta"
)

// entry is what the index stores per composite key: the current
// visible meta plus wherever the caller's opaque info (a data path, for
// the file-backed store) lives.
type entry struct {
	meta objmeta.Meta
	info any
}

// Index is the in-memory replacement index described in the data
// model: a map from the composite prefix key to its current entry, plus
// an ordering over created_secs for range-scan listing. Go has no
// built-in ordered map, so the created_secs ordering is maintained as a
// sorted slice of distinct keys searched with sort.Search — the
// idiomatic stdlib substitute for the Rust BTreeMap<Order, HashSet<Pfx>>
// this is ported from, since no pack library provides an ordered map.
type Index struct {
	mu sync.RWMutex

	byKey map[string]entry          // composite key -> current entry
	byAge map[float64]map[string]struct{} // created_secs -> set of composite keys
	ages  []float64                 // sorted distinct created_secs present in byAge
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{
		byKey: make(map[string]entry),
		byAge: make(map[float64]map[string]struct{}),
	}
}

// PutResult reports what Put actually did.
type PutResult int

const (
	PutOK PutResult = iota
	PutDiscarded
)

// Put inserts meta/info if it should become the visible object for its
// (sys_prefix, ctx, app_path), applying put-back semantics: a put whose
// created_secs is less-or-equal to the current visible entry's is
// silently discarded. nowSecs is used only to discard already-expired
// writes immediately (no index state changes in that case).
func (ix *Index) Put(meta objmeta.Meta, info any, nowSecs float64) PutResult {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if meta.Expired(nowSecs) {
		return PutDiscarded
	}

	key := meta.Key()
	if old, ok := ix.byKey[key]; ok {
		if old.meta.CreatedSecs >= meta.CreatedSecs {
			return PutDiscarded
		}
		ix.removeAge(old.meta.CreatedSecs, key)
	}

	ix.byKey[key] = entry{meta: meta, info: info}
	ix.addAge(meta.CreatedSecs, key)
	return PutOK
}

// Get returns the info stored for meta's composite key, but only if
// meta is exactly the currently visible object (same created_secs too,
// matching the original's exact-meta lookup semantics) and not expired.
func (ix *Index) Get(meta objmeta.Meta, nowSecs float64) (any, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	e, ok := ix.byKey[meta.Key()]
	if !ok || e.meta.CreatedSecs != meta.CreatedSecs {
		return nil, false
	}
	if e.meta.Expired(nowSecs) {
		return nil, false
	}
	return e.info, true
}

// Entry is one row returned by List.
type Entry struct {
	Meta objmeta.Meta
	Info any
}

// List returns visible, unexpired entries whose composite key begins
// with prefix and whose created_secs > createdGt, ordered by
// created_secs ascending. Up to limit items are returned, but every
// item sharing the created_secs of the last returned item is included
// even past limit, so that a follow-up call with createdGt set to the
// last returned created_secs never skips a sibling.
func (ix *Index) List(prefix string, createdGt float64, limit int, nowSecs float64) []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	start := sort.Search(len(ix.ages), func(i int) bool { return ix.ages[i] > createdGt })

	var out []Entry
	var lastAge float64

	for i, age := range ix.ages[start:] {
		if i > 0 && len(out) >= limit && age != lastAge {
			break
		}
		keys := make([]string, 0, len(ix.byAge[age]))
		for k := range ix.byAge[age] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			e := ix.byKey[k]
			if e.meta.Expired(nowSecs) {
				continue
			}
			if len(k) < len(prefix) || k[:len(prefix)] != prefix {
				continue
			}
			out = append(out, Entry{Meta: e.meta, Info: e.info})
		}
		lastAge = age
	}
	return out
}

// Prune removes every entry whose expires_secs has passed. It returns
// the removed entries so the caller (the file-backed store) can reclaim
// their on-disk files best-effort.
func (ix *Index) Prune(nowSecs float64) []Entry {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var removed []Entry
	for key, e := range ix.byKey {
		if e.meta.Expired(nowSecs) {
			removed = append(removed, Entry{Meta: e.meta, Info: e.info})
			delete(ix.byKey, key)
			ix.removeAge(e.meta.CreatedSecs, key)
		}
	}
	return removed
}

// Meter sums the byte-length metric the caller associates with each
// visible entry via sizeOf, grouped by ctx. It backs the storage_gib
// metering gauge.
func (ix *Index) Meter(sizeOf func(info any) uint64) map[string]uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make(map[string]uint64)
	for _, e := range ix.byKey {
		out[e.meta.Ctx] += sizeOf(e.info)
	}
	return out
}

func (ix *Index) addAge(age float64, key string) {
	set, ok := ix.byAge[age]
	if !ok {
		set = make(map[string]struct{})
		ix.byAge[age] = set
		i := sort.SearchFloat64s(ix.ages, age)
		ix.ages = append(ix.ages, 0)
		copy(ix.ages[i+1:], ix.ages[i:])
		ix.ages[i] = age
	}
	set[key] = struct{}{}
}

func (ix *Index) removeAge(age float64, key string) {
	set, ok := ix.byAge[age]
	if !ok {
		return
	}
	delete(set, key)
	if len(set) == 0 {
		delete(ix.byAge, age)
		i := sort.SearchFloat64s(ix.ages, age)
		if i < len(ix.ages) && ix.ages[i] == age {
			ix.ages = append(ix.ages[:i], ix.ages[i+1:]...)
		}
	}
}
