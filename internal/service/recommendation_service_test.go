package service

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"sort"
	"strconv"
	"testing"
	"time"

	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/kvstore"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) storedRecommendations(t *testing.T) []domain.Recommendation {
	t.Helper()
	var recs []domain.Recommendation
	if raw := f.raw(t, cache.KeyRecommendations); raw != "" {
		require.NoError(t, json.Unmarshal([]byte(raw), &recs))
	}
	return recs
}

func TestRecommendationService_CreateGeneratesID(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	f.recs.rnd = rand.New(rand.NewPCG(1, 2))

	created, err := f.recs.Create(ctx, &domain.Recommendation{Name: "Boné Aba Reta", Price: 79.9, IsActive: true})
	require.NoError(t, err)

	assert.Regexp(t, `^REC-[0-9A-Z]+-[0-9A-Z]+$`, created.ID.String())
	ms, ok := domain.CreatedAtFromID(created.ID)
	require.True(t, ok)
	assert.Equal(t, fixedNow.UnixMilli(), ms)

	ev, ok := f.bus.Last(events.RecommendationsUpdated)
	require.True(t, ok)
	assert.Equal(t, "create", ev.Detail["action"])
	assert.False(t, f.published(events.ForceProductsReload))

	ops := f.queue.Ops()
	require.Len(t, ops, 1)
	assert.Equal(t, CollectionContent, ops[0].Collection)
	assert.Equal(t, RecommendationsContentID, ops[0].ID)

	var remote []domain.Recommendation
	require.NoError(t, json.Unmarshal(ops[0].Data, &remote))
	require.Len(t, remote, 1)
	assert.Equal(t, created.ID, remote[0].ID)
}

// Feature: storefront-sync, Property: the list keeps the 30 most recently created
func TestProperty_EvictionKeepsMostRecent(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	properties := gopter.NewProperties(nil)

	properties.Property("35 inserts in any order retain exactly the newest 30", prop.ForAll(
		func(seed uint64) bool {
			f.mr.FlushAll()
			rnd := rand.New(rand.NewPCG(seed, seed^0x5eed))

			order := rnd.Perm(35)
			want := make([]string, 0, 30)
			for _, i := range order {
				ms := base + int64(i)*60_000
				id := domain.NewRecommendationID(domain.RecommendationIDPrefix, time.UnixMilli(ms), rnd)
				if _, err := f.recs.Create(ctx, &domain.Recommendation{ID: id, Name: "r", IsActive: true}); err != nil {
					return false
				}
				if i >= 5 {
					want = append(want, id.String())
				}
			}

			stored := f.storedRecommendations(t)
			if len(stored) != domain.MaxRetainedRecommendations {
				return false
			}
			got := make([]string, 0, len(stored))
			for _, r := range stored {
				got = append(got, r.ID.String())
			}
			sort.Strings(got)
			sort.Strings(want)
			for i := range want {
				if got[i] != want[i] {
					return false
				}
			}
			return true
		},
		gen.UInt64(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRecommendationService_TargetingMirrorsIntoCatalog(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	existing := validProduct("CAM-10")
	existing.Color = "Off-white"
	existing.DestacarEmOfertas = true
	_, err := f.catalog.Create(ctx, existing)
	require.NoError(t, err)

	original := 149.9
	rec := &domain.Recommendation{
		ID:                     "cam-10",
		Name:                   "Camiseta Gang",
		Price:                  99.9,
		OriginalPrice:          &original,
		RecommendationCategory: "camisetas",
		IsActive:               true,
	}
	_, err = f.recs.Create(ctx, rec)
	require.NoError(t, err)

	products := f.products(t)
	require.Len(t, products, 1)
	p := products[0]
	assert.Equal(t, "Camiseta Gang", p.Name)
	assert.Equal(t, 99.9, p.Price)
	assert.Equal(t, "Off-white", p.Color)
	assert.True(t, p.DestacarEmOfertas)
	assert.True(t, p.DestacarEmRecomendacoes)
	assert.Equal(t, "camisetas", p.Category)

	// new product mirrors are appended
	_, err = f.recs.Create(ctx, &domain.Recommendation{ID: "BON-01", Name: "Boné", RecommendationSubcategory: "bones", IsActive: true})
	require.NoError(t, err)
	require.Len(t, f.products(t), 2)

	require.NoError(t, f.recs.Delete(ctx, "CAM-10"))
	products = f.products(t)
	assert.False(t, products[0].DestacarEmRecomendacoes)
	assert.True(t, products[0].DestacarEmOfertas)
}

func TestRecommendationService_Rail(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		_, err := f.recs.Create(ctx, &domain.Recommendation{Name: "standalone", IsActive: true})
		require.NoError(t, err)
	}
	_, err := f.recs.Create(ctx, &domain.Recommendation{ID: "OFF-1", Name: "inactive", IsActive: false})
	require.NoError(t, err)

	for _, id := range []string{"F1", "F2", "F3", "F4", "F5", "OFF-1"} {
		p := validProduct(id)
		p.DestacarEmRecomendacoes = true
		_, err := f.catalog.Create(ctx, p)
		require.NoError(t, err)
	}

	rail, err := f.recs.Rail(ctx)
	require.NoError(t, err)
	require.Len(t, rail, domain.MaxDisplayedRecommendations)

	for _, r := range rail[:8] {
		assert.Equal(t, "standalone", r.Name)
	}
	ids := []domain.ProductID{}
	for _, r := range rail[8:] {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []domain.ProductID{"F1", "F2", "F3", "F4"}, ids)
}

func TestRecommendationService_UpdateAndDelete(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	_, err := f.recs.Update(ctx, "REC-NOPE", &domain.Recommendation{Name: "x"})
	assert.ErrorIs(t, err, ErrRecommendationNotFound)

	created, err := f.recs.Create(ctx, &domain.Recommendation{Name: "v1", IsActive: true})
	require.NoError(t, err)

	updated, err := f.recs.Update(ctx, created.ID.String(), &domain.Recommendation{Name: "v2", IsActive: false})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.True(t, created.CreatedAt.Equal(updated.CreatedAt))

	stored := f.storedRecommendations(t)
	require.Len(t, stored, 1)
	assert.Equal(t, "v2", stored[0].Name)

	before := f.raw(t, cache.KeyRecommendations)
	opsBefore := len(f.queue.Ops())
	require.NoError(t, f.recs.Delete(ctx, "REC-UNKNOWN"))
	assert.Equal(t, before, f.raw(t, cache.KeyRecommendations))
	assert.Len(t, f.queue.Ops(), opsBefore)

	require.NoError(t, f.recs.Delete(ctx, created.ID))
	assert.Empty(t, f.storedRecommendations(t))
}

func TestRecommendationService_QuotaFailureSkipsRemote(t *testing.T) {
	f := newFixture(t, 32)
	ctx := context.Background()

	_, err := f.recs.Create(ctx, &domain.Recommendation{Name: "Jaqueta Corta-Vento", Price: 299, IsActive: true})
	assert.ErrorIs(t, err, kvstore.ErrQuotaExceeded)

	assert.Empty(t, f.queue.Ops())
	assert.False(t, f.published(events.RecommendationsUpdated))
}

func TestEvictOldest_AdminIDsUseCreatedAt(t *testing.T) {
	generated := domain.ProductID("REC-" + strconv.FormatInt(fixedNow.Add(-time.Hour).UnixMilli(), 36) + "-ABC12")
	recs := []domain.Recommendation{
		{ID: "CAM-AZUL-10", CreatedAt: fixedNow.Add(-48 * time.Hour)},
		{ID: generated},
		{ID: "BON-ABA-RETA-01", CreatedAt: fixedNow},
	}

	kept := evictOldest(recs, 2)
	require.Len(t, kept, 2)
	assert.Equal(t, domain.ProductID("BON-ABA-RETA-01"), kept[0].ID)
	assert.Equal(t, generated, kept[1].ID)
}
