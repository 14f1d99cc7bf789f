package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"string", `"hello"`, `"hello"`},
		{"int", `42`, `42`},
		{"negative int", `-100`, `-100`},
		{"bool", `true`, `true`},
		{"empty array", `[]`, `[]`},
		{"empty object", `{}`, `{}`},
		{"sorted keys", `{"zebra":1,"alpha":2,"beta":3}`, `{"alpha":2,"beta":3,"zebra":1}`},
		{"nested keys", `{"z":{"b":1,"a":2},"a":3}`, `{"a":3,"z":{"a":2,"b":1}}`},
		{"no html escape", `"<a&b>"`, `"<a&b>"`},
		{"whitespace dropped", "{ \"a\" : [ 1 , 2 ] }", `{"a":[1,2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Canonicalize([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestCanonicalizeRejectsFloatsAndNull(t *testing.T) {
	for _, input := range []string{`1.5`, `1e3`, `null`, `{"a":null}`, `[1,null]`} {
		_, err := Canonicalize([]byte(input))
		assert.Error(t, err, input)
	}
}

func TestCanonicalizeNFC(t *testing.T) {
	// "e" followed by a combining acute accent composes to U+00E9.
	result, err := Canonicalize([]byte(`"e\u0301"`))
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(result))
}

func TestCanonicalizeLineSeparators(t *testing.T) {
	result, err := Canonicalize([]byte(`"a\u2028b"`))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(result))

	// An escaped backslash followed by the text u2028 stays as is.
	result, err = Canonicalize([]byte(`"a\\u2028b"`))
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(result))
}

func TestCompareUTF16(t *testing.T) {
	// U+1F600 sorts after U+FF61 by code point but before it in UTF-16.
	assert.Negative(t, compareUTF16("\U0001F600", "\uFF61"))
	assert.Negative(t, compareUTF16("a", "ab"))
	assert.Zero(t, compareUTF16("x", "x"))
}

func TestMarshalCanonicalEntity(t *testing.T) {
	a := &Artist{
		Base: Base{Key: "k1", Links: NewSet("https://b", "https://a")},
		Name: Ptr("Björk"),
	}
	data, err := MarshalCanonical(a)
	require.NoError(t, err)
	assert.Equal(t, `{"key":"k1","links":["https://a","https://b"],"name":"Björk"}`, string(data))
}
