//go:build integration

package database

import (
	"context"
	"os"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_RoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	store := NewRedisStore(client, quietLogger())
	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))

	key := "integration-" + t.Name()
	defer store.Delete(ctx, key)

	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, key, []byte("v")))
	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Contains(t, stats, "connected_clients")
}
