package gojinn

import "strings"

const wildcardSegment = "*"

type compiledRoute struct {
	pattern    string
	segments   []string
	wildcards  int
	declOrder  int
	spec       *LambdaSpec
}

// Router resolves a normalized URI to a LambdaSpec using spec.md §4.3's
// longest-prefix, wildcard-capable matching. Routes are pre-compiled once at
// construction (spec.md §9's suggested upgrade over the source's
// generate-and-rank scan) instead of re-enumerating 2^n candidate patterns
// per request.
type Router struct {
	rootExact    *LambdaSpec // routes["/"]
	rootWildcard *LambdaSpec // routes["/*"]
	byLength     map[int][]*compiledRoute
}

// NewRouter compiles a RouteTable into a Router. Declaration order (table
// slice order) is preserved for the final tie-break in spec.md §4.3 step 3.
func NewRouter(table RouteTable) *Router {
	r := &Router{byLength: map[int][]*compiledRoute{}}

	for i, entry := range table {
		switch entry.Pattern {
		case "/":
			r.rootExact = entry.Spec
			continue
		case "/*":
			r.rootWildcard = entry.Spec
		}

		segs := splitSegments(entry.Pattern)
		if len(segs) == 0 {
			continue
		}
		wc := 0
		for _, s := range segs {
			if s == wildcardSegment {
				wc++
			}
		}
		r.byLength[len(segs)] = append(r.byLength[len(segs)], &compiledRoute{
			pattern:   entry.Pattern,
			segments:  segs,
			wildcards: wc,
			declOrder: i,
			spec:      entry.Spec,
		})
	}

	return r
}

func splitSegments(pattern string) []string {
	trimmed := strings.Trim(pattern, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func segmentsMatch(pattern, uri []string) bool {
	if len(pattern) != len(uri) {
		return false
	}
	for i, p := range pattern {
		if p != wildcardSegment && p != uri[i] {
			return false
		}
	}
	return true
}

// Resolve implements spec.md §4.3. A pattern matches when it matches a
// leading run of the URI's segments. Longer segment count wins; among equal
// length, fewer wildcards wins; ties broken by declaration order.
func (r *Router) Resolve(uri string) *LambdaSpec {
	segs := splitSegments(uri)

	if len(segs) == 0 {
		if r.rootExact != nil {
			return r.rootExact
		}
		return r.rootWildcard
	}

	for k := len(segs); k > 0; k-- {
		var best *compiledRoute
		for _, c := range r.byLength[k] {
			if !segmentsMatch(c.segments, segs[:k]) {
				continue
			}
			if best == nil || betterMatch(c, best) {
				best = c
			}
		}
		if best != nil {
			return best.spec
		}
	}
	return nil
}

// betterMatch implements the ranking of spec.md §4.3 step 3 for two
// candidates already known to be the same segment length: fewer wildcards
// wins, then earlier declaration wins.
func betterMatch(candidate, current *compiledRoute) bool {
	if candidate.wildcards != current.wildcards {
		return candidate.wildcards < current.wildcards
	}
	return candidate.declOrder < current.declOrder
}
