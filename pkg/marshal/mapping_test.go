package marshal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMappingOrder(t *testing.T) {
	m := NewMapping(0)
	m.Set("b", 1)
	m.Set("a", "x")
	m.Set("b", 2)

	assert.Equal(t, []string{"b", "a"}, m.Keys())
	assert.Equal(t, 2, m.Len())
	v, ok := m.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.False(t, m.Has("c"))

	data, err := m.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"b":2,"a":"x"}`, string(data))

	var seen []string
	m.Range(func(key string, _ any) bool {
		seen = append(seen, key)
		return false
	})
	assert.Equal(t, []string{"b"}, seen)
}

func TestMappingNested(t *testing.T) {
	inner := NewMapping(1)
	inner.Set("z", nil)
	outer := &Mapping{}
	outer.Set("inner", inner)
	outer.Set("list", []*Mapping{inner})

	data, err := outer.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"inner":{"z":null},"list":[{"z":null}]}`, string(data))

	assert.Equal(t, map[string]any{
		"inner": map[string]any{"z": nil},
		"list":  []any{map[string]any{"z": nil}},
	}, outer.ToMap())

	var nilMapping *Mapping
	assert.Nil(t, nilMapping.ToMap())
	assert.Equal(t, 0, nilMapping.Len())
	data, err = nilMapping.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestMissing(t *testing.T) {
	a, b := NewMissing(), NewMissing()
	assert.True(t, a != b)
	assert.True(t, IsMissing(a))
	assert.False(t, IsMissing(nil))
	assert.False(t, IsMissing((*Missing)(nil)))
	data, err := a.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}
