package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Value{
		Unit(),
		Bool(true),
		Bool(false),
		Float(3.5),
		String("hello"),
		Bytes([]byte{1, 2, 3}),
		Sequence(String("a"), Float(1), Bool(true)),
		Map(map[string]Value{
			"b": String("two"),
			"a": String("one"),
		}),
	}

	for _, v := range cases {
		enc, err := Encode(v)
		require.NoError(t, err)

		out, err := Decode(enc)
		require.NoError(t, err)
		require.Equal(t, v.Kind(), out.Kind())
	}
}

func TestEncodeIsDeterministicRegardlessOfMapInsertionOrder(t *testing.T) {
	v1 := Map(map[string]Value{"zebra": Unit(), "apple": Unit(), "mango": Unit()})
	v2 := Map(map[string]Value{"mango": Unit(), "zebra": Unit(), "apple": Unit()})

	enc1, err := Encode(v1)
	require.NoError(t, err)
	enc2, err := Encode(v2)
	require.NoError(t, err)

	require.Equal(t, enc1, enc2, "canonical encoding must sort map keys")
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	enc, err := Encode(String("x"))
	require.NoError(t, err)

	_, err = Decode(append(enc, 0xff))
	require.Error(t, err)
}
