package schema

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	entries map[string][]byte
	ttls    map[string]time.Duration
	saves   int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *memoryCache) Load(_ context.Context, conn, variant string) ([]byte, bool, error) {
	value, ok := c.entries[conn+"/"+variant]
	return value, ok, nil
}

func (c *memoryCache) Save(_ context.Context, conn, variant string, value []byte, ttl time.Duration) error {
	c.entries[conn+"/"+variant] = value
	c.ttls[conn+"/"+variant] = ttl
	c.saves++
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, conn string) error {
	for key := range c.entries {
		if len(key) > len(conn) && key[:len(conn)+1] == conn+"/" {
			delete(c.entries, key)
		}
	}
	return nil
}

func TestServiceServesFromCache(t *testing.T) {
	db := openShop(t)
	cache := newMemoryCache()
	svc := NewService(cache, 10*time.Minute, nil)
	ctx := context.Background()

	first, err := svc.Metadata(ctx, "shop", db, BasicOptions(), true)
	require.NoError(t, err)
	assert.Equal(t, "shop.db", first.DatabaseName)
	assert.Equal(t, 1, cache.saves)
	assert.Equal(t, 10*time.Minute, cache.ttls["shop/basic"])

	require.NoError(t, db.SQL.Close())
	cached, err := svc.Metadata(ctx, "shop", db, BasicOptions(), true)
	require.NoError(t, err)
	assert.Equal(t, first.TotalTables, cached.TotalTables)
	assert.Equal(t, first.Tables["orders"].Columns, cached.Tables["orders"].Columns)
	assert.True(t, first.ExtractedAt.Equal(cached.ExtractedAt))
}

func TestServiceBypassesCacheAndRefreshesIt(t *testing.T) {
	db := openShop(t)
	cache := newMemoryCache()
	cache.entries["shop/full"] = []byte(`{"database_name":"stale"}`)
	svc := NewService(cache, 0, nil)

	metadata, err := svc.Metadata(context.Background(), "shop", db, FullOptions(2), false)
	require.NoError(t, err)
	assert.Equal(t, "shop.db", metadata.DatabaseName)
	assert.NotContains(t, string(cache.entries["shop/full"]), "stale")
	assert.Equal(t, DefaultCacheTTL, cache.ttls["shop/full"])
}

func TestServiceInvalidate(t *testing.T) {
	cache := newMemoryCache()
	cache.entries["shop/basic"] = []byte("{}")
	cache.entries["shop/full"] = []byte("{}")
	cache.entries["other/basic"] = []byte("{}")

	svc := NewService(cache, time.Hour, nil)
	require.NoError(t, svc.Invalidate(context.Background(), "shop"))
	assert.Len(t, cache.entries, 1)

	assert.NoError(t, NewService(nil, time.Hour, nil).Invalidate(context.Background(), "shop"))
}

type failingCache struct{ memoryCache }

func (failingCache) Load(context.Context, string, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk on fire")
}

func TestServiceFallsBackWhenCacheFails(t *testing.T) {
	db := openShop(t)
	svc := NewService(&failingCache{memoryCache: *newMemoryCache()}, time.Hour, nil)
	metadata, err := svc.Metadata(context.Background(), "shop", db, BasicOptions(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, metadata.TotalTables)
}
