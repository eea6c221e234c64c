package adm

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObject(t *testing.T) {
	t.Run("keeps insertion order", func(t *testing.T) {
		o := ObjectOf("b", 1, "a", 2)
		o.Set("c", 3)
		o.Set("b", 4)

		assert.Equal(t, []string{"b", "a", "c"}, o.Keys())
		assert.Equal(t, 4, o.Value("b"))

		o.Delete("a")
		assert.Equal(t, []string{"b", "c"}, o.Keys())
		assert.False(t, o.Has("a"))
	})

	t.Run("nil object reads as empty", func(t *testing.T) {
		var o *Object

		assert.Zero(t, o.Len())
		assert.Nil(t, o.Value("x"))
		assert.False(t, o.Has("x"))
		assert.Nil(t, o.Keys())
		assert.NotNil(t, o.Clone())
		o.Delete("x")
	})

	t.Run("clone, without and merge", func(t *testing.T) {
		o := ObjectOf("a", 1, "b", 2)
		c := o.Clone().Set("z", 9)
		assert.False(t, o.Has("z"))

		w := o.Without("a")
		assert.Equal(t, []string{"b"}, w.Keys())
		assert.Equal(t, 2, o.Len())

		o.Merge(ObjectOf("b", 3, "d", 4))
		assert.Equal(t, []string{"a", "b", "d"}, o.Keys())
		assert.Equal(t, 3, o.Value("b"))
		assert.Equal(t, 3, c.Len())
	})

	t.Run("range stops early", func(t *testing.T) {
		o := ObjectOf("a", 1, "b", 2, "c", 3)
		var seen []string
		o.Range(func(k string, _ any) bool {
			seen = append(seen, k)
			return k != "b"
		})
		assert.Equal(t, []string{"a", "b"}, seen)
	})

	t.Run("ObjectOf panics on odd pairs", func(t *testing.T) {
		assert.Panics(t, func() { ObjectOf("a") })
		assert.Panics(t, func() { ObjectOf(1, 2) })
	})
}

func TestDecodeJSON(t *testing.T) {
	t.Run("objects keep key order and numbers are typed", func(t *testing.T) {
		v := mustDecode(t, `{"z":1,"a":{"y":2.5,"b":[1,"x",null,true]},"m":12345678901234}`)
		o := v.(*Object)

		assert.Equal(t, []string{"z", "a", "m"}, o.Keys())
		assert.Equal(t, int64(1), o.Value("z"))
		assert.Equal(t, int64(12345678901234), o.Value("m"))

		inner := o.Value("a").(*Object)
		assert.Equal(t, []string{"y", "b"}, inner.Keys())
		assert.Equal(t, 2.5, inner.Value("y"))
		assert.Equal(t, []any{int64(1), "x", nil, true}, inner.Value("b"))
	})

	t.Run("blank input is nil", func(t *testing.T) {
		v, err := DecodeJSON([]byte("  \n"))
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("invalid input is a parse error", func(t *testing.T) {
		for _, raw := range []string{`{"a":`, `{"a":1} {"b":2}`, `[1,]`} {
			_, err := DecodeJSON([]byte(raw))
			assert.True(t, errors.Is(err, ErrParse), raw)
		}
	})

	t.Run("ReadJSON reads from a stream", func(t *testing.T) {
		v, err := ReadJSON(strings.NewReader(`[{"a":1}]`))
		require.NoError(t, err)
		assert.Len(t, v, 1)
	})
}

func TestObjectJSON(t *testing.T) {
	t.Run("marshal keeps order", func(t *testing.T) {
		o := ObjectOf("z", int64(1), "a", ObjectOf("y", "x"), "l", []any{int64(1), nil})

		data, err := json.Marshal(o)
		require.NoError(t, err)
		assert.Equal(t, `{"z":1,"a":{"y":"x"},"l":[1,null]}`, string(data))
	})

	t.Run("unmarshal into object", func(t *testing.T) {
		var o Object
		require.NoError(t, json.Unmarshal([]byte(`{"b":1,"a":2}`), &o))
		assert.Equal(t, []string{"b", "a"}, o.Keys())

		assert.Error(t, json.Unmarshal([]byte(`[1]`), &o))
	})

	t.Run("nested in plain structs", func(t *testing.T) {
		var out struct {
			Data *Object `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(`{"data":{"k2":1,"k1":2}}`), &out))
		assert.Equal(t, []string{"k2", "k1"}, out.Data.Keys())
	})
}

func TestFromValueAndPlain(t *testing.T) {
	v := FromValue(map[string]any{
		"b": 1,
		"a": []any{map[string]any{"x": uint8(2)}},
		"c": []string{"p", "q"},
	})
	o := v.(*Object)

	assert.Equal(t, []string{"a", "b", "c"}, o.Keys())
	assert.Equal(t, int64(1), o.Value("b"))
	assert.Equal(t, []any{"p", "q"}, o.Value("c"))
	nested := o.Value("a").([]any)[0].(*Object)
	assert.Equal(t, int64(2), nested.Value("x"))

	plain := Plain(o)
	assert.Equal(t, map[string]any{
		"a": []any{map[string]any{"x": int64(2)}},
		"b": int64(1),
		"c": []any{"p", "q"},
	}, plain)
}

func TestToInt64(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int64
		ok   bool
	}{
		{"int", 7, 7, true},
		{"uint64 in range", uint64(math.MaxInt64), math.MaxInt64, true},
		{"uint64 overflow", uint64(math.MaxUint64), 0, false},
		{"whole float", 42.0, 42, true},
		{"fractional float", 4.5, 0, false},
		{"float overflow", 1e19, 0, false},
		{"float underflow", -1e19, 0, false},
		{"float32", float32(3), 3, true},
		{"json number", json.Number("12"), 12, true},
		{"string", "-3", -3, true},
		{"not a number", "x", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := toInt64(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
