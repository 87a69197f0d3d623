package kvstore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T, mr *miniredis.Miniredis, quota int64) Store {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, RedisConfig{Prefix: "test:", QuotaBytes: quota}, zap.NewNop())
}

func TestRedisStore_GetSetDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	store := newTestStore(t, mr, 0)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "gang-boyz-products", []byte(`[]`)))
	value, ok, err := store.Get(ctx, "gang-boyz-products")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[]`, string(value))
	assert.True(t, mr.Exists("test:gang-boyz-products"))

	require.NoError(t, store.Delete(ctx, "gang-boyz-products"))
	require.NoError(t, store.Delete(ctx, "gang-boyz-products"))
	_, ok, err = store.Get(ctx, "gang-boyz-products")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_QuotaRejectsWrite(t *testing.T) {
	mr := miniredis.RunT(t)
	store := newTestStore(t, mr, 10)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("12345")))
	// Replacing a key only counts its new size.
	require.NoError(t, store.Set(ctx, "a", []byte("1234567")))

	err := store.Set(ctx, "b", []byte("abcd"))
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	_, ok, err := store.Get(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok, "rejected write must not be persisted")
}

func TestRedisStore_WatchSkipsOwnWrites(t *testing.T) {
	mr := miniredis.RunT(t)
	writer := newTestStore(t, mr, 0)
	reader := newTestStore(t, mr, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	own, err := writer.Watch(ctx)
	require.NoError(t, err)
	other, err := reader.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, writer.Set(ctx, "gang-boyz-recommendations", []byte(`[]`)))

	select {
	case change := <-other:
		assert.Equal(t, "gang-boyz-recommendations", change.Key)
		assert.False(t, change.Deleted)
	case <-time.After(2 * time.Second):
		t.Fatal("other instance did not observe the change")
	}

	select {
	case change := <-own:
		t.Fatalf("writer observed its own change: %+v", change)
	case <-time.After(100 * time.Millisecond):
	}
}

// Feature: storefront-sync, Property: quota is never exceeded
func TestProperty_QuotaNeverExceeded(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("accepted writes keep the namespace within quota", prop.ForAll(
		func(sizes []int) bool {
			mr := miniredis.NewMiniRedis()
			if err := mr.Start(); err != nil {
				t.Fatalf("Failed to start miniredis: %v", err)
			}
			defer mr.Close()

			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			defer client.Close()

			const quota = 256
			store := NewRedisStore(client, RedisConfig{Prefix: "p:", QuotaBytes: quota}, zap.NewNop())
			ctx := context.Background()

			for i, size := range sizes {
				key := string(rune('a' + i%5))
				_ = store.Set(ctx, key, []byte(strings.Repeat("x", size)))
			}

			total := 0
			for _, k := range mr.Keys() {
				v, _ := mr.Get(k)
				total += len(v)
			}
			return total <= quota
		},
		gen.SliceOfN(12, gen.IntRange(0, 120)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
