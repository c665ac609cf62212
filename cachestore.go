package gojinn

import "context"

// KeySpec identifies a cache entry: (namespace = request host, key =
// cachePrefix + computed key), per spec.md §3/§4.5. Lambda carries the
// originating lambda name purely for metrics labeling; it is not part of
// the store's key identity (cacheKey ignores it).
type KeySpec struct {
	Namespace string
	Key       string
	Lambda    string
}

// FillFunc produces the value to store when a key is absent or stale. Every
// FillFunc in this gateway ultimately calls through to Invoker.Invoke, per
// spec.md §4.5.
type FillFunc func(ctx context.Context) (interface{}, error)

// CacheStore is the external TTL/TTR key-value collaborator spec.md's
// GLOSSARY names: stale-while-revalidate get, plus the two CacheAdmin
// operations. Implementations must be safe for concurrent use (spec.md §5).
type CacheStore interface {
	// Get returns the cached value for spec if fresh or stale (refilling
	// asynchronously when stale), or calls fill synchronously and stores
	// the result when absent.
	Get(ctx context.Context, spec KeySpec, fill FillFunc) (interface{}, error)

	// MarkToRefresh makes subsequent Get calls for the named keys eligible
	// to trigger an asynchronous refill on next access (spec.md §5/§8.7).
	MarkToRefresh(ctx context.Context, namespace string, keys []string) (interface{}, error)

	// Unset evicts the named keys immediately and visibly (spec.md §5).
	Unset(ctx context.Context, namespace string, keys []string) (interface{}, error)
}

// cacheKey joins namespace and key the way every CacheStore backend keys its
// underlying storage.
func cacheKey(spec KeySpec) string {
	return spec.Namespace + "\x00" + spec.Key
}
