package gojinn

import (
	"net/url"
	"strconv"
	"strings"
)

// ParseScalar implements spec.md §4.1: coerce a raw query-string value into
// a typed scalar. It is total — every input maps to bool, nil, float64, or
// string — and fails open to the original string on decode error.
func ParseScalar(v string) Scalar {
	switch v {
	case "true":
		return true
	case "false":
		return false
	case "null", "undefined", "":
		return nil
	}

	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return n
	}

	decoded, err := url.QueryUnescape(v)
	if err != nil {
		return v
	}
	return decoded
}

// ParseQuery implements spec.md §4.1: split a raw query string on "&" then
// "=", skip pairs with an empty key or empty value, coerce each value with
// ParseScalar, last-key-wins on duplicates.
func ParseQuery(q string) Params {
	params := Params{}
	if q == "" {
		return params
	}

	for _, pair := range strings.Split(q, "&") {
		if pair == "" {
			continue
		}
		eq := strings.IndexByte(pair, '=')
		if eq < 0 {
			continue
		}
		key := pair[:eq]
		value := pair[eq+1:]
		if key == "" || value == "" {
			continue
		}

		decodedKey, err := url.QueryUnescape(key)
		if err != nil {
			decodedKey = key
		}
		params[decodedKey] = ParseScalar(value)
	}
	return params
}

// Stringify renders a response value back to its wire string form, the
// inverse direction ValueCoder is also responsible for (spec.md §4.1).
func Stringify(v Scalar) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case string:
		return t
	default:
		return ""
	}
}
