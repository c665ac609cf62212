package gojinn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseScalar(t *testing.T) {
	cases := []struct {
		in   string
		want Scalar
	}{
		{"true", true},
		{"false", false},
		{"null", nil},
		{"undefined", nil},
		{"", nil},
		{"42", float64(42)},
		{"3.14", 3.14},
		{"hello", "hello"},
		{"a%20b", "a b"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ParseScalar(c.in), "ParseScalar(%q)", c.in)
	}
}

func TestParseScalar_FailsOpenOnBadEscape(t *testing.T) {
	got := ParseScalar("%zz")
	assert.Equal(t, "%zz", got)
}

func TestParseQuery(t *testing.T) {
	got := ParseQuery("a=1&b=true&c=&=d&e=hello&a=2")
	want := Params{
		"a": float64(2), // duplicate keys: last wins
		"b": true,
		"e": "hello",
	}
	assert.Equal(t, want, got)
}

func TestParseQuery_Empty(t *testing.T) {
	assert.Equal(t, Params{}, ParseQuery(""))
}
