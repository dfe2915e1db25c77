package params

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAny_Scalars(t *testing.T) {
	cases := []struct {
		in   any
		want Value
	}{
		{nil, Null{}},
		{"s", String("s")},
		{true, Bool(true)},
		{int(3), Int(3)},
		{int64(3), Int(3)},
		{uint64(3), Int(3)},
		{0.25, Float(0.25)},
		{json.Number("12"), Int(12)},
		{json.Number("0.5"), Float(0.5)},
	}
	for _, tc := range cases {
		got, err := FromAny(tc.in)
		require.NoError(t, err, "%v", tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestFromAny_Nested(t *testing.T) {
	got, err := FromAny(map[string]any{
		"list": []any{1, "two"},
		"map":  map[string]any{"k": false},
	})
	require.NoError(t, err)
	assert.Equal(t, Object{
		"list": Array{Int(1), String("two")},
		"map":  Object{"k": Bool(false)},
	}, got)
}

func TestFromAny_RejectsUnsupported(t *testing.T) {
	_, err := FromAny(struct{}{})
	assert.Error(t, err)

	_, err = FromAny(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestObject_JSONRoundTrip(t *testing.T) {
	orig := Object{
		"s":   String("v"),
		"i":   Int(42),
		"f":   Float(0.5),
		"b":   Bool(true),
		"n":   Null{},
		"arr": Array{Int(1), String("x")},
		"obj": Object{"inner": Int(7)},
	}

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var decoded Object
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, orig, decoded)
}

func TestObject_CloneIsolation(t *testing.T) {
	orig := Object{"nested": Object{"k": Int(1)}}
	cl := orig.Clone()
	cl["nested"].(Object)["k"] = Int(2)

	assert.Equal(t, Int(1), orig["nested"].(Object)["k"], "mutating a clone must not touch the original")
}

func TestObject_Equal(t *testing.T) {
	a := Object{"p": Int(1), "q": Float(2.0)}
	b := Object{"q": Int(2), "p": Int(1)}
	assert.True(t, a.Equal(b))

	c := Object{"p": Int(1), "q": Int(3)}
	assert.False(t, a.Equal(c))
}

func TestSortedKeys_UTF16Order(t *testing.T) {
	// U+1D400 (mathematical A) encodes as the surrogate pair D835 DC00,
	// so in UTF-16 code unit order it sorts BEFORE U+FF21 (fullwidth A).
	// Plain UTF-8 byte comparison would order these the other way.
	obj := Object{
		"\U0001d400": Int(1),
		"z":          Int(2),
		"Ａ":     Int(3),
		"a":          Int(4),
	}
	assert.Equal(t, []string{"a", "z", "\U0001d400", "Ａ"}, obj.SortedKeys())
}
