package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeys(t *testing.T) {
	data, err := MarshalCanonical(map[string]any{"b": 1, "a": "x", "c": true})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":1,"c":true}`, string(data))
}

func TestMarshalCanonical_StructTags(t *testing.T) {
	type payload struct {
		Name   string `json:"name"`
		Amount int    `json:"amount"`
		Skip   string `json:"skip,omitempty"`
	}
	data, err := MarshalCanonical(payload{Name: "ash", Amount: 5})
	require.NoError(t, err)
	assert.Equal(t, `{"amount":5,"name":"ash"}`, string(data))
}

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	data, err := MarshalCanonical(map[string]any{"s": "<a&b>"})
	require.NoError(t, err)
	assert.Equal(t, `{"s":"<a&b>"}`, string(data))
}

func TestMarshalCanonical_NFC(t *testing.T) {
	// "e" + combining acute accent normalizes to the precomposed form.
	data, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(data))
}

func TestMarshalCanonical_LineSeparatorsLiteral(t *testing.T) {
	data, err := MarshalCanonical("a\u2028b")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(data))
}

func TestMarshalCanonical_RejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"x": 1.5})
	assert.Error(t, err)
}

func TestMarshalCanonical_NestedArrays(t *testing.T) {
	data, err := MarshalCanonical([]any{map[string]any{"z": 1, "y": []any{"q"}}, nil})
	require.NoError(t, err)
	assert.Equal(t, `[{"y":["q"],"z":1},null]`, string(data))
}

func TestHashCanonical_Stable(t *testing.T) {
	a, err := HashCanonical(map[string]any{"k": 1, "j": 2})
	require.NoError(t, err)
	b, err := HashCanonical(map[string]any{"j": 2, "k": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := HashCanonical(map[string]any{"j": 2, "k": 3})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
