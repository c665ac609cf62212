package gojinn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCacheStore struct {
	markedNamespace string
	markedKeys      []string
	unsetNamespace  string
	unsetKeys       []string
}

func (f *fakeCacheStore) Get(ctx context.Context, spec KeySpec, fill FillFunc) (interface{}, error) {
	return fill(ctx)
}

func (f *fakeCacheStore) MarkToRefresh(ctx context.Context, namespace string, keys []string) (interface{}, error) {
	f.markedNamespace = namespace
	f.markedKeys = keys
	return len(keys), nil
}

func (f *fakeCacheStore) Unset(ctx context.Context, namespace string, keys []string) (interface{}, error) {
	f.unsetNamespace = namespace
	f.unsetKeys = keys
	return len(keys), nil
}

func TestCacheAdmin_NoStoreConfigured(t *testing.T) {
	admin := NewCacheAdmin(nil)
	_, err := admin.Handle(context.Background(), &RequestArgs{Host: "example.com"}, nil)
	require.Error(t, err)
	gwErr := err.(*GatewayError)
	assert.Equal(t, 404, gwErr.StatusOrDefault())
}

func TestCacheAdmin_DefaultOperationIsMarkToRefresh(t *testing.T) {
	store := &fakeCacheStore{}
	admin := NewCacheAdmin(store)

	result, err := admin.Handle(context.Background(), &RequestArgs{Host: "example.com"}, []byte(`{"keys":["a","b"]}`))
	require.NoError(t, err)
	assert.Equal(t, "example.com", store.markedNamespace)
	assert.Equal(t, []string{"a", "b"}, store.markedKeys)
	assert.Equal(t, 2, result["markToRefresh"])
}

func TestCacheAdmin_ExplicitNamespaceOverridesRequestHost(t *testing.T) {
	store := &fakeCacheStore{}
	admin := NewCacheAdmin(store)

	result, err := admin.Handle(
		context.Background(),
		&RequestArgs{Host: "http://example.com"},
		[]byte(`{"namespace":"http://other-host","keys":["a"]}`),
	)
	require.NoError(t, err)
	assert.Equal(t, "http://other-host", store.markedNamespace, "explicit body namespace must win over the request host")
	assert.Equal(t, 1, result["markToRefresh"])
}

func TestCacheAdmin_OmittedNamespaceFallsBackToRequestHost(t *testing.T) {
	store := &fakeCacheStore{}
	admin := NewCacheAdmin(store)

	_, err := admin.Handle(
		context.Background(),
		&RequestArgs{Host: "http://example.com"},
		[]byte(`{"operation":"unset","keys":["a"]}`),
	)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com", store.unsetNamespace)
}

func TestCacheAdmin_Unset(t *testing.T) {
	store := &fakeCacheStore{}
	admin := NewCacheAdmin(store)

	result, err := admin.Handle(context.Background(), &RequestArgs{Host: "example.com"}, []byte(`{"operation":"unset","keys":["a"]}`))
	require.NoError(t, err)
	assert.Equal(t, "example.com", store.unsetNamespace)
	assert.Equal(t, []string{"a"}, store.unsetKeys)
	assert.Equal(t, 1, result["unset"])
}

func TestCacheAdmin_UnsupportedOperation(t *testing.T) {
	store := &fakeCacheStore{}
	admin := NewCacheAdmin(store)

	_, err := admin.Handle(context.Background(), &RequestArgs{Host: "example.com"}, []byte(`{"operation":"flushall"}`))
	require.Error(t, err)
	assert.Equal(t, 400, err.(*GatewayError).StatusOrDefault())
}

func TestCacheAdmin_SnapshotUnsupportedByBackend(t *testing.T) {
	store := &fakeCacheStore{}
	admin := NewCacheAdmin(store)

	_, err := admin.Handle(context.Background(), &RequestArgs{Host: "example.com"}, []byte(`{"operation":"snapshot"}`))
	require.Error(t, err)
	assert.Equal(t, 400, err.(*GatewayError).StatusOrDefault())
}

func TestCacheAdmin_MalformedBody(t *testing.T) {
	store := &fakeCacheStore{}
	admin := NewCacheAdmin(store)

	_, err := admin.Handle(context.Background(), &RequestArgs{Host: "example.com"}, []byte(`not-json`))
	require.Error(t, err)
	assert.Equal(t, 400, err.(*GatewayError).StatusOrDefault())
}
