package gojinn

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrSnapshotUnsupported is the cause CacheAdmin reports (as a 400) when a
// snapshot is requested from a cache backend that does not implement
// Snapshotter, such as RedisCacheStore.
var ErrSnapshotUnsupported = errors.New("cache backend does not support snapshotting")

// cacheAdminRequest is the JSON body spec.md §4.8 describes: {operation,
// ...rest}, where rest becomes the CacheStore call's extra arguments.
type cacheAdminRequest struct {
	Operation string   `json:"operation"`
	Namespace string   `json:"namespace"`
	Keys      []string `json:"keys"`
}

// Snapshotter is an optional capability a CacheStore backend may implement
// (only JetStreamCacheStore does; RedisCacheStore relies on Redis's own
// persistence and does not need an application-level snapshot). CreateSnapshot
// backs the supplemented "snapshot" cache-admin operation SPEC_FULL.md adds
// beyond spec.md §4.8's markToRefresh/unset pair; RestoreSnapshot is not
// reachable through CacheAdmin.
type Snapshotter interface {
	CreateSnapshot() (string, error)
	RestoreSnapshot(archivePath string) error
}

// CacheAdmin implements spec.md §4.8: dispatch a POST /cache request to the
// configured CacheStore's markToRefresh/unset (or, when supported, the
// supplemented snapshot operation).
type CacheAdmin struct {
	store CacheStore
}

func NewCacheAdmin(store CacheStore) *CacheAdmin {
	return &CacheAdmin{store: store}
}

// Handle implements §4.8's body: {"[operation]": result} reply shape. args
// supplies the request host used as the CacheStore namespace.
func (a *CacheAdmin) Handle(ctx context.Context, args *RequestArgs, rawBody []byte) (map[string]interface{}, error) {
	if a.store == nil {
		return nil, NotFound("no cache driver configured")
	}

	var req cacheAdminRequest
	if len(rawBody) > 0 {
		if err := json.Unmarshal(rawBody, &req); err != nil {
			return nil, BadRequest("malformed cache-admin request body", err)
		}
	}
	if req.Operation == "" {
		req.Operation = "markToRefresh"
	}

	// spec.md:155 — the gateway injects namespace = request host only when
	// the client omitted it; an explicit body namespace wins.
	namespace := args.Host
	if req.Namespace != "" {
		namespace = req.Namespace
	}

	switch req.Operation {
	case "markToRefresh":
		result, err := a.store.MarkToRefresh(ctx, namespace, req.Keys)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{req.Operation: result}, nil
	case "unset":
		result, err := a.store.Unset(ctx, namespace, req.Keys)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{req.Operation: result}, nil
	case "snapshot":
		snapper, ok := a.store.(Snapshotter)
		if !ok {
			return nil, BadRequest(ErrSnapshotUnsupported.Error(), ErrSnapshotUnsupported)
		}
		path, err := snapper.CreateSnapshot()
		if err != nil {
			return nil, Internal("snapshot failed", err)
		}
		return map[string]interface{}{req.Operation: path}, nil
	default:
		return nil, BadRequest("unsupported cache-admin operation: "+req.Operation, nil)
	}
}
