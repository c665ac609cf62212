package gojinn

import (
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"
)

var slashRun = regexp.MustCompile(`/+`)

// NormalizeURI implements spec.md §4.2/§8: collapse runs of "/", trim
// leading/trailing slashes, empty result becomes "/". Idempotent by
// construction — running it twice is a no-op once slashes are collapsed and
// trimmed.
func NormalizeURI(pathname string) string {
	collapsed := slashRun.ReplaceAllString(pathname, "/")
	trimmed := strings.Trim(collapsed, "/")
	if trimmed == "" {
		return "/"
	}
	return "/" + trimmed
}

// requestScheme recovers the origin scheme of an inbound request for cache
// namespacing (spec.md §8: namespace is the full "scheme://host" origin, not
// the bare Host header). Real requests arrive with no scheme on the request
// line, so we fall back from a reverse-proxy header to TLS state to whatever
// the router already parsed onto r.URL.
func requestScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	if r.URL.Scheme != "" {
		return r.URL.Scheme
	}
	return "http"
}

// ParseRequest implements spec.md §4.2: normalize an inbound *http.Request
// into a canonical RequestArgs. Body I/O is the only suspension point, and
// only happens for POST/PUT.
func ParseRequest(r *http.Request) (*RequestArgs, error) {
	pathname := r.URL.Path

	args := &RequestArgs{
		Method:       r.Method,
		Host:         requestScheme(r) + "://" + r.Host,
		Headers:      r.Header,
		Params:       ParseQuery(r.URL.RawQuery),
		HasExtension: strings.Contains(pathname, "."),
		URI:          NormalizeURI(pathname),
		URL: URLInfo{
			Path:     r.URL.Path,
			Pathname: pathname,
			Query:    r.URL.RawQuery,
		},
		Body: map[string]interface{}{},
	}

	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		if r.Body == nil {
			return args, nil
		}
		defer r.Body.Close()

		dec := json.NewDecoder(r.Body)
		var body map[string]interface{}
		if err := dec.Decode(&body); err != nil {
			if err == io.EOF {
				return args, nil
			}
			return nil, BadRequest("invalid JSON body", err)
		}
		args.Body = body
	}

	return args, nil
}
