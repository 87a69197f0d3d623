package service

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/kvstore"
	"storefront/internal/outbox"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPrefix = "t:"

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

// recordingQueue stands in for the outbox
type recordingQueue struct {
	mu  sync.Mutex
	ops []outbox.Operation
}

func (q *recordingQueue) Enqueue(op outbox.Operation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = append(q.ops, op)
}

func (q *recordingQueue) Ops() []outbox.Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]outbox.Operation(nil), q.ops...)
}

type fixture struct {
	mr       *miniredis.Miniredis
	store    kvstore.Store
	bus      *events.Bus
	queue    *recordingQueue
	resolver CatalogResolver
	catalog  *catalogService
	recs     *recommendationService
}

func newFixture(t *testing.T, quota int64) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := zap.NewNop()
	store := kvstore.NewRedisStore(client, kvstore.RedisConfig{Prefix: testPrefix, QuotaBytes: quota}, logger)
	bus := events.NewBus(logger)
	queue := &recordingQueue{}

	catalogRepo := cache.NewCatalogRepository(store, logger)
	recRepo := cache.NewRecommendationRepository(store, logger)
	resolver := NewCatalogResolver(catalogRepo, recRepo, logger)

	catalog := NewCatalogService(catalogRepo, resolver, bus, queue, logger).(*catalogService)
	catalog.now = func() time.Time { return fixedNow }
	recs := NewRecommendationService(recRepo, catalog, bus, queue, logger).(*recommendationService)
	recs.now = func() time.Time { return fixedNow }

	return &fixture{
		mr:       mr,
		store:    store,
		bus:      bus,
		queue:    queue,
		resolver: resolver,
		catalog:  catalog,
		recs:     recs,
	}
}

// seed writes raw JSON under a cache key
func (f *fixture) seed(t *testing.T, key, raw string) {
	t.Helper()
	require.NoError(t, f.mr.Set(testPrefix+key, raw))
}

func (f *fixture) raw(t *testing.T, key string) string {
	t.Helper()
	if !f.mr.Exists(testPrefix + key) {
		return ""
	}
	v, err := f.mr.Get(testPrefix + key)
	require.NoError(t, err)
	return v
}

func (f *fixture) published(signal events.Signal) bool {
	_, ok := f.bus.Last(signal)
	return ok
}

func (f *fixture) products(t *testing.T) []domain.Product {
	t.Helper()
	var products []domain.Product
	if raw := f.raw(t, cache.KeyTestProducts); raw != "" {
		require.NoError(t, json.Unmarshal([]byte(raw), &products))
	}
	return products
}

func validProduct(id string) *domain.Product {
	return &domain.Product{
		ID:    domain.ProductID(id),
		Name:  "Camiseta " + id,
		Color: "Preto",
		Price: 89.90,
	}
}
