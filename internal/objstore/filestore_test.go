package objstore

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/voidmerge/voidmerge/internal/objmeta"
)

func TestPutGetRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	m := objmeta.Meta{SysPrefix: "c", Ctx: "tenant-a", AppPath: "bob", CreatedSecs: 100}
	res, err := s.Put(m, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, PutOK, res)

	got, err := s.Get(m)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestPutBackDiscardsSmallerCreatedSecs(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	m1 := objmeta.Meta{SysPrefix: "c", Ctx: "t", AppPath: "k", CreatedSecs: 200}
	m2 := objmeta.Meta{SysPrefix: "c", Ctx: "t", AppPath: "k", CreatedSecs: 100}

	_, err = s.Put(m1, []byte("newer"))
	require.NoError(t, err)
	res, err := s.Put(m2, []byte("older"))
	require.NoError(t, err)
	require.Equal(t, PutDiscarded, res)

	got, err := s.Get(m1)
	require.NoError(t, err)
	require.Equal(t, []byte("newer"), got)

	_, err = s.Get(m2)
	require.Error(t, err)
}

func TestExpiredObjectNotVisible(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	m := objmeta.Meta{SysPrefix: "c", Ctx: "t", AppPath: "k", CreatedSecs: 1, ExpiresSecs: 1}
	_, err = s.Put(m, []byte("x"))
	require.NoError(t, err)

	_, err = s.Get(m)
	require.Error(t, err)
}

func TestListPaginationIncludesAllTiesAtCursor(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	for _, path := range []string{"a", "b", "c"} {
		m := objmeta.Meta{SysPrefix: "c", Ctx: "t", AppPath: path, CreatedSecs: 50}
		_, err := s.Put(m, []byte(path))
		require.NoError(t, err)
	}
	m4 := objmeta.Meta{SysPrefix: "c", Ctx: "t", AppPath: "d", CreatedSecs: 60}
	_, err = s.Put(m4, []byte("d"))
	require.NoError(t, err)

	page := s.List("c/t", 0, 1)
	require.Len(t, page, 3, "all three ties at created_secs=50 must be included past limit=1")

	rest := s.List("c/t", 50, 10)
	require.Len(t, rest, 1)
}

func TestReopenRebuildsIndexFromDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	m := objmeta.Meta{SysPrefix: "c", Ctx: "t", AppPath: "k", CreatedSecs: 10}
	_, err = s.Put(m, []byte("persisted"))
	require.NoError(t, err)
	s.Close()

	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(m)
	require.NoError(t, err)
	require.Equal(t, []byte("persisted"), got)
}
