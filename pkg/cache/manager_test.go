package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestNewManager_Panic(t *testing.T) {
	assert.Panics(t, func() { NewManager(nil, time.Minute) })
}

func TestNewManager_DefaultTTL(t *testing.T) {
	client, _ := setupTestRedis(t)

	assert.Equal(t, DefaultTTL, NewManager(client, 0).DefaultTTL())
	assert.Equal(t, time.Minute, NewManager(client, time.Minute).DefaultTTL())
}

func TestManager_SetAndGet(t *testing.T) {
	client, mr := setupTestRedis(t)
	manager := NewManager(client, time.Minute)
	ctx := context.Background()

	key := Key{Namespace: "tenant", Method: http.MethodGet, Endpoint: "/lists/"}
	entry := NewEntry(http.StatusOK, http.Header{"Content-Type": {"application/vnd.api+json"}}, []byte(`{"data":[]}`), time.Minute)

	require.NoError(t, manager.Set(ctx, key, entry))
	assert.True(t, mr.Exists(key.String()))
	assert.Greater(t, mr.TTL(key.String()), time.Duration(0))

	got, err := manager.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, entry.Body, got.Body)
	assert.Equal(t, http.StatusOK, got.StatusCode)
	assert.Equal(t, "application/vnd.api+json", got.Header.Get("Content-Type"))
}

func TestManager_GetMiss(t *testing.T) {
	client, _ := setupTestRedis(t)
	manager := NewManager(client, time.Minute)

	_, err := manager.Get(context.Background(), Key{Namespace: "tenant", Method: http.MethodGet, Endpoint: "/forms/"})
	assert.True(t, errors.Is(err, ErrCacheMiss))
}

func TestManager_SetExpiredIsNoop(t *testing.T) {
	client, mr := setupTestRedis(t)
	manager := NewManager(client, time.Minute)

	key := Key{Namespace: "tenant", Method: http.MethodGet, Endpoint: "/flows/"}
	entry := &Entry{Body: []byte(`{}`), Expires: time.Now().Add(-time.Second)}

	require.NoError(t, manager.Set(context.Background(), key, entry))
	assert.False(t, mr.Exists(key.String()))
}

func TestManager_SetNil(t *testing.T) {
	client, _ := setupTestRedis(t)
	manager := NewManager(client, time.Minute)

	assert.Error(t, manager.Set(context.Background(), Key{Endpoint: "/lists/"}, nil))
}

func TestManager_GetExpiredEntryIsDeleted(t *testing.T) {
	client, mr := setupTestRedis(t)
	manager := NewManager(client, time.Minute)

	key := Key{Namespace: "tenant", Method: http.MethodGet, Endpoint: "/campaigns/"}
	stale, err := json.Marshal(&Entry{Body: []byte(`{}`), Expires: time.Now().Add(-time.Minute)})
	require.NoError(t, err)
	require.NoError(t, mr.Set(key.String(), string(stale)))

	_, err = manager.Get(context.Background(), key)
	assert.True(t, errors.Is(err, ErrCacheMiss))
	assert.False(t, mr.Exists(key.String()))
}

func TestManager_GetInvalidEntry(t *testing.T) {
	client, mr := setupTestRedis(t)
	manager := NewManager(client, time.Minute)

	key := Key{Namespace: "tenant", Method: http.MethodGet, Endpoint: "/metrics/"}
	require.NoError(t, mr.Set(key.String(), "not json"))

	_, err := manager.Get(context.Background(), key)
	assert.True(t, errors.Is(err, ErrInvalidEntry))
}

func TestManager_Delete(t *testing.T) {
	client, mr := setupTestRedis(t)
	manager := NewManager(client, time.Minute)
	ctx := context.Background()

	key := Key{Namespace: "tenant", Method: http.MethodGet, Endpoint: "/lists/"}
	require.NoError(t, manager.Set(ctx, key, NewEntry(200, http.Header{}, []byte(`{}`), time.Minute)))
	require.NoError(t, manager.Delete(ctx, key))
	assert.False(t, mr.Exists(key.String()))
}

func TestManager_Purge(t *testing.T) {
	client, mr := setupTestRedis(t)
	manager := NewManager(client, time.Minute)
	ctx := context.Background()

	entry := NewEntry(http.StatusOK, nil, []byte(`{"data":[]}`), time.Minute)
	rejected := []Key{
		{Namespace: "a1b2", Method: http.MethodGet, Endpoint: "/metrics/"},
		{Namespace: "a1b2", Method: http.MethodGet, Endpoint: "/lists/"},
	}
	other := Key{Namespace: "a1b2c3", Method: http.MethodGet, Endpoint: "/metrics/"}
	for _, key := range append(rejected, other) {
		require.NoError(t, manager.Set(ctx, key, entry))
	}

	deleted, err := manager.Purge(ctx, "a1b2")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	for _, key := range rejected {
		assert.False(t, mr.Exists(key.String()), key.Endpoint)
	}
	assert.True(t, mr.Exists(other.String()), "a namespace sharing the prefix must survive")

	deleted, err = manager.Purge(ctx, "a1b2")
	require.NoError(t, err)
	assert.Zero(t, deleted)

	_, err = manager.Purge(ctx, "")
	assert.Error(t, err)
}
