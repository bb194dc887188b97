package objstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/voidmerge/voidmerge/internal/objmeta"
	"github.com/voidmerge/voidmerge/internal/verror"
	"github.com/voidmerge/voidmerge/internal/vlog"
)

// DefaultPruneInterval is how often the background prune task runs.
const DefaultPruneInterval = 10 * time.Second

// fileInfo is the Index entry payload for a file-backed store: the
// on-disk hash used to derive meta-<hash>/data-<hash> paths.
type fileInfo struct {
	hash string
	size uint64
}

// Store is the crash-safe, file-backed object store described in the
// data model: write-then-publish to a two-level sha256 fan-out
// directory tree, with no on-disk index — the in-memory Index is
// rebuilt by scanning the tree on Open. Grounded on the original
// implementation's obj/obj_file.rs.
type Store struct {
	root string
	ix   *Index

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Open rebuilds the in-memory index by rescanning root (creating it if
// absent) and starts the background prune task.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, verror.Wrap(verror.StorageError, "creating object store root", err)
	}

	s := &Store{
		root: root,
		ix:   NewIndex(),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if err := s.rescan(); err != nil {
		return nil, err
	}
	go s.pruneLoop(DefaultPruneInterval)
	return s, nil
}

// Close stops the background prune task. It does not touch on-disk state.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Store) pruneLoop(interval time.Duration) {
	defer close(s.done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			s.Prune(nowSecs())
		}
	}
}

// Prune drops expired entries from the index and best-effort removes
// their on-disk files. Reclaim failures are logged and swallowed, per
// the error-handling design's treatment of background-task failures.
func (s *Store) Prune(at float64) {
	for _, e := range s.ix.Prune(at) {
		fi, ok := e.Info.(fileInfo)
		if !ok {
			continue
		}
		metaPath, dataPath := s.fanoutPaths(fi.hash)
		if err := os.Remove(metaPath); err != nil && !os.IsNotExist(err) {
			vlog.Errorf("prune: removing meta file", err)
		}
		if err := os.Remove(dataPath); err != nil && !os.IsNotExist(err) {
			vlog.Errorf("prune: removing data file", err)
		}
	}
}

// fanoutPaths computes the two-level hex fan-out directory for hash and
// returns the meta/data file paths within it.
func (s *Store) fanoutPaths(hash string) (metaPath, dataPath string) {
	dir := filepath.Join(s.root, hash[0:2], hash[2:4])
	return filepath.Join(dir, "meta-"+hash), filepath.Join(dir, "data-"+hash)
}

func hashOf(metaStr string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(metaStr))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Put writes meta/data to disk (write-then-publish: both files are
// fully written before the in-memory index is updated) and reports
// whether it became the visible object or was discarded per the
// replacement rules in index.go.
func (s *Store) Put(meta objmeta.Meta, data []byte) (PutResult, error) {
	if err := meta.Validate(); err != nil {
		return PutDiscarded, err
	}

	metaStr := objmeta.Encode(meta)
	hash := hashOf(metaStr, data)
	metaPath, dataPath := s.fanoutPaths(hash)

	if err := os.MkdirAll(filepath.Dir(metaPath), 0o755); err != nil {
		return PutDiscarded, verror.Wrap(verror.StorageError, "creating fan-out dir", err)
	}
	if err := os.WriteFile(metaPath, []byte(metaStr), 0o644); err != nil {
		return PutDiscarded, verror.Wrap(verror.StorageError, "writing meta file", err)
	}
	if err := os.WriteFile(dataPath, data, 0o644); err != nil {
		return PutDiscarded, verror.Wrap(verror.StorageError, "writing data file", err)
	}

	result := s.ix.Put(meta, fileInfo{hash: hash, size: uint64(len(data))}, nowSecs())
	if result == PutDiscarded {
		// The object never became visible, so its files are removed —
		// unless they share their content hash with the visible object
		// (an identical meta/data re-put), whose files they are.
		if info, ok := s.ix.Get(meta, nowSecs()); !ok || info.(fileInfo).hash != hash {
			_ = os.Remove(metaPath)
			_ = os.Remove(dataPath)
		}
	}
	return result, nil
}

// Get performs an exact-meta lookup and returns the stored bytes.
func (s *Store) Get(meta objmeta.Meta) ([]byte, error) {
	info, ok := s.ix.Get(meta, nowSecs())
	if !ok {
		return nil, verror.New(verror.NotFound, "object not visible")
	}
	fi := info.(fileInfo)
	_, dataPath := s.fanoutPaths(fi.hash)
	data, err := os.ReadFile(dataPath)
	if err != nil {
		return nil, verror.Wrap(verror.StorageError, "reading data file", err)
	}
	return data, nil
}

// List returns the encoded meta strings of visible objects whose
// composite key begins with prefix, per the pagination contract in
// index.go.
func (s *Store) List(prefix string, createdGt float64, limit int) []string {
	entries := s.ix.List(prefix, createdGt, limit, nowSecs())
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = objmeta.Encode(e.Meta)
	}
	return out
}

// Meter reports total visible bytes per ctx, backing the storage_gib
// metering gauge.
func (s *Store) Meter() map[string]uint64 {
	return s.ix.Meter(func(info any) uint64 {
		return info.(fileInfo).size
	})
}

// rescan walks root, parsing every meta-<hash> file, validating it
// against its sibling data-<hash>, and rebuilding the in-memory index.
// Unparsable or expired entries are skipped and their files removed, so
// a restart never resurrects an expired object.
func (s *Store) rescan() error {
	now := nowSecs()
	return filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := filepath.Base(path)
		if len(name) < 5 || name[:5] != "meta-" {
			return nil
		}
		hash := name[5:]
		dataPath := filepath.Join(filepath.Dir(path), "data-"+hash)

		metaBytes, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		data, err := os.ReadFile(dataPath)
		if err != nil {
			vlog.Errorf("rescan: missing data sibling for meta file", err)
			_ = os.Remove(path)
			return nil
		}
		if hashOf(string(metaBytes), data) != hash {
			vlog.Error(fmt.Sprintf("rescan: hash mismatch for %s, discarding", path))
			_ = os.Remove(path)
			_ = os.Remove(dataPath)
			return nil
		}
		meta, err := objmeta.Parse(string(metaBytes))
		if err != nil {
			vlog.Errorf("rescan: unparsable meta file", err)
			_ = os.Remove(path)
			_ = os.Remove(dataPath)
			return nil
		}
		if meta.Expired(now) {
			_ = os.Remove(path)
			_ = os.Remove(dataPath)
			return nil
		}
		s.ix.Put(meta, fileInfo{hash: hash, size: uint64(len(data))}, now)
		return nil
	})
}

func nowSecs() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
