package value

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromJSONBuildsValueTree(t *testing.T) {
	v, err := FromJSON([]byte(`{"a": 1, "b": [true, null, "x"]}`))
	require.NoError(t, err)

	m, ok := v.AsMap()
	require.True(t, ok)

	f, ok := m["a"].AsFloat()
	require.True(t, ok)
	require.Equal(t, float64(1), f)

	seq, ok := m["b"].AsSequence()
	require.True(t, ok)
	require.Len(t, seq, 3)
	b, ok := seq[0].AsBool()
	require.True(t, ok)
	require.True(t, b)
	require.True(t, seq[1].IsUnit())
}

func TestFromHumanResolvesIncludeTags(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "code.js"), []byte("export default 1;"), 0o644))

	v, err := FromHuman(String("{{inc-str code.js}}"), dir)
	require.NoError(t, err)
	s, ok := v.AsString()
	require.True(t, ok)
	require.Equal(t, "export default 1;", s)

	v, err = FromHuman(String("{{inc-bin code.js}}"), dir)
	require.NoError(t, err)
	b, ok := v.AsBytes()
	require.True(t, ok)
	require.Equal(t, []byte("export default 1;"), b)
}

func TestFromHumanResolvesBase64Tags(t *testing.T) {
	// "hi" base64url-no-pad
	v, err := FromHuman(String("{{b64-str aGk}}"), "")
	require.NoError(t, err)
	s, ok := v.AsString()
	require.True(t, ok)
	require.Equal(t, "hi", s)

	v, err = FromHuman(String("{{b64-bin aGk}}"), "")
	require.NoError(t, err)
	b, ok := v.AsBytes()
	require.True(t, ok)
	require.Equal(t, []byte("hi"), b)
}

func TestFromHumanLeavesUntaggedStringsAlone(t *testing.T) {
	v, err := FromHuman(String("plain text"), "")
	require.NoError(t, err)
	s, ok := v.AsString()
	require.True(t, ok)
	require.Equal(t, "plain text", s)
}

func TestFromHumanRecursesIntoMapsAndSequences(t *testing.T) {
	in := Map(map[string]Value{
		"tokens": Sequence(String("{{b64-str aGk}}"), String("plain")),
	})
	out, err := FromHuman(in, "")
	require.NoError(t, err)

	m, ok := out.AsMap()
	require.True(t, ok)
	seq, ok := m["tokens"].AsSequence()
	require.True(t, ok)
	s0, _ := seq[0].AsString()
	require.Equal(t, "hi", s0)
	s1, _ := seq[1].AsString()
	require.Equal(t, "plain", s1)
}

func TestFromHumanMissingIncludeFileErrors(t *testing.T) {
	_, err := FromHuman(String("{{inc-str missing.js}}"), t.TempDir())
	require.Error(t, err)
}
