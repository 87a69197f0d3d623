package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"testing"

	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/kvstore"
	"storefront/internal/outbox"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogResolver_CrossKeyResolution(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	f.seed(t, cache.KeyStandaloneProducts, `{"bermudas":[{"id":"BER-01","name":"Bermuda Cargo","price":120}]}`)

	p, err := f.resolver.Resolve(ctx, "ber-01")
	require.NoError(t, err)
	assert.Equal(t, "Bermuda Cargo", p.Name)
	assert.Equal(t, "bermudas", p.Category)

	_, err = f.resolver.Resolve(ctx, "missing")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestCatalogResolver_SourcePriority(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	f.seed(t, cache.KeyTestProducts, `[{"id":"A1","name":"admin"}]`)
	f.seed(t, cache.KeyProducts, `[{"id":"a1","name":"all"},{"id":"B2","name":"all"}]`)
	f.seed(t, cache.KeyStandaloneProducts, `[{"id":"B2","name":"standalone"},{"id":"C3","name":"standalone"}]`)
	f.seed(t, cache.KeyRecommendations, `[{"id":"C3","name":"rec"},{"id":"REC-1","name":"rec","isActive":true}]`)

	tests := []struct {
		id   string
		want string
	}{
		{"A1", "admin"},
		{"b2", "all"},
		{"C3", "standalone"},
		{"rec-1", "rec"},
	}
	for _, tt := range tests {
		p, err := f.resolver.Resolve(ctx, tt.id)
		require.NoError(t, err, tt.id)
		assert.Equal(t, tt.want, p.Name, tt.id)
	}

	rec, err := f.resolver.Resolve(ctx, "REC-1")
	require.NoError(t, err)
	assert.True(t, rec.DestacarEmRecomendacoes)

	merged, err := f.resolver.Products(ctx)
	require.NoError(t, err)
	require.Len(t, merged, 3)
	assert.Equal(t, "admin", merged[0].Name)
	assert.Equal(t, "all", merged[1].Name)
	assert.Equal(t, "standalone", merged[2].Name)
}

func TestCatalogResolver_MalformedSourcesAreSkipped(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	f.seed(t, cache.KeyTestProducts, `{not json`)
	f.seed(t, cache.KeyProducts, `"just a string"`)
	f.seed(t, cache.KeyStandaloneProducts, `[{"id":"X","name":"found"}]`)

	p, err := f.resolver.Resolve(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, "found", p.Name)
}

// Feature: storefront-sync, Property: numeric and string ids resolve to each other
func TestProperty_ResolverCoercesNumericIDs(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	properties := gopter.NewProperties(nil)

	properties.Property("number query finds string id and string query finds number id", prop.ForAll(
		func(n uint32) bool {
			f.mr.FlushAll()
			f.seed(t, cache.KeyTestProducts, fmt.Sprintf(`[{"id":"%d","name":"string"}]`, n))
			f.seed(t, cache.KeyProducts, fmt.Sprintf(`[{"id":%d,"name":"number"}]`, n+1))

			byNumber, err := f.resolver.Resolve(ctx, int(n))
			if err != nil || byNumber.Name != "string" {
				return false
			}
			byString, err := f.resolver.Resolve(ctx, strconv.FormatUint(uint64(n)+1, 10))
			return err == nil && byString.Name == "number"
		},
		gen.UInt32Range(0, 1<<30),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestCatalogService_CreateValidation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	tests := []struct {
		name    string
		product *domain.Product
		field   string
	}{
		{"missing id", &domain.Product{Name: "x", Color: "y", Price: 1}, "ID"},
		{"blank id", &domain.Product{ID: "   ", Name: "x", Color: "y", Price: 1}, "ID"},
		{"missing name", &domain.Product{ID: "A", Color: "y", Price: 1}, "Name"},
		{"missing color", &domain.Product{ID: "A", Name: "x", Price: 1}, "Color"},
		{"zero price", &domain.Product{ID: "A", Name: "x", Color: "y"}, "Price"},
		{"bad label", &domain.Product{ID: "A", Name: "x", Color: "y", Price: 1, LabelType: "novo"}, "LabelType"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.catalog.Create(ctx, tt.product)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.True(t, hasField(verr, tt.field), "fields: %+v", verr.Fields)
		})
	}

	assert.False(t, f.mr.Exists(testPrefix+cache.KeyTestProducts))
	assert.False(t, f.published(events.TestProductCreated))
	assert.Empty(t, f.queue.Ops())
}

func TestCatalogService_CreateCanonicalizesAndRejectsDuplicates(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	in := validProduct(" cam-01 ")
	in.SizeStock = map[string]int{"G": 5, "P": 2, "M": 0}
	in.Sizes = []string{"G", "P", "M"}

	created, err := f.catalog.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, domain.ProductID("CAM-01"), created.ID)
	assert.Equal(t, 7, created.Stock)
	assert.Equal(t, []string{"P", "M", "G"}, created.Sizes)
	assert.True(t, fixedNow.Equal(created.CreatedAt))

	_, err = f.catalog.Create(ctx, validProduct("Cam-01"))
	assert.ErrorIs(t, err, ErrDuplicateProduct)

	assert.Len(t, f.products(t), 1)

	ev, ok := f.bus.Last(events.TestProductCreated)
	require.True(t, ok)
	assert.Equal(t, "CAM-01", ev.Detail["id"])

	ops := f.queue.Ops()
	require.Len(t, ops, 1)
	assert.Equal(t, outbox.KindPut, ops[0].Kind)
	assert.Equal(t, CollectionProducts, ops[0].Collection)
	assert.Equal(t, "CAM-01", ops[0].ID)
}

func TestCatalogService_Update(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	_, err := f.catalog.Update(ctx, "nope", validProduct("nope"))
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = f.catalog.Create(ctx, validProduct("CAM-02"))
	require.NoError(t, err)

	edit := validProduct("ignored")
	edit.Name = "Camiseta Oversized"
	edit.DestacarEmAlta = true
	updated, err := f.catalog.Update(ctx, "cam-02", edit)
	require.NoError(t, err)
	assert.Equal(t, domain.ProductID("CAM-02"), updated.ID)
	assert.True(t, fixedNow.Equal(updated.CreatedAt))

	ev, ok := f.bus.Last(events.ForceProductsReload)
	require.True(t, ok)
	assert.Equal(t, "update", ev.Detail["action"])

	trending, err := f.catalog.Highlighted(ctx, domain.ViewEmAlta)
	require.NoError(t, err)
	require.Len(t, trending, 1)
	assert.Equal(t, "Camiseta Oversized", trending[0].Name)
}

// Feature: storefront-sync, Property: deleting an unknown id changes nothing
func TestProperty_DeleteUnknownProductIsIdempotent(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	properties := gopter.NewProperties(nil)

	properties.Property("collection bytes are unchanged and no error is raised", prop.ForAll(
		func(ids []string, missing string) bool {
			f.mr.FlushAll()
			products := make([]domain.Product, 0, len(ids))
			for i, id := range ids {
				products = append(products, domain.Product{ID: domain.ProductID(fmt.Sprintf("P%d-%s", i, id)), Name: id})
			}
			raw, _ := json.Marshal(products)
			f.seed(t, cache.KeyTestProducts, string(raw))
			before := f.raw(t, cache.KeyTestProducts)

			if err := f.catalog.Delete(ctx, "MISSING-"+missing); err != nil {
				return false
			}
			return f.raw(t, cache.KeyTestProducts) == before
		},
		gen.SliceOf(gen.Identifier()),
		gen.Identifier(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestCatalogService_Delete(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	for _, id := range []string{"A", "B"} {
		_, err := f.catalog.Create(ctx, validProduct(id))
		require.NoError(t, err)
	}

	require.NoError(t, f.catalog.Delete(ctx, "a"))
	products := f.products(t)
	require.Len(t, products, 1)
	assert.Equal(t, domain.ProductID("B"), products[0].ID)

	ops := f.queue.Ops()
	last := ops[len(ops)-1]
	assert.Equal(t, outbox.KindDelete, last.Kind)
	assert.Equal(t, "A", last.ID)
}

func TestCatalogService_BackupRestore(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	_, err := f.catalog.Restore(ctx)
	assert.ErrorIs(t, err, ErrNoBackup)

	for _, id := range []string{"A", "B"} {
		_, err := f.catalog.Create(ctx, validProduct(id))
		require.NoError(t, err)
	}
	n, err := f.catalog.Backup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, f.catalog.Delete(ctx, "A"))
	assert.Len(t, f.products(t), 1)

	n, err = f.catalog.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, f.products(t), 2)

	ops := f.queue.Ops()
	last := ops[len(ops)-2:]
	assert.Equal(t, outbox.KindPut, last[0].Kind)
	assert.Equal(t, "A", last[0].ID)
	assert.Equal(t, "B", last[1].ID)

	ev, ok := f.bus.Last(events.ForceProductsReload)
	require.True(t, ok)
	assert.Equal(t, "restore", ev.Detail["action"])
}

func TestCatalogService_ExportHasNoSideEffects(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	_, err := f.catalog.Create(ctx, validProduct("A"))
	require.NoError(t, err)
	before := f.raw(t, cache.KeyTestProducts)
	opsBefore := len(f.queue.Ops())

	name, data, err := f.catalog.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gang-boyz-products-2024-03-15.json", name)

	var exported []domain.Product
	require.NoError(t, json.Unmarshal(data, &exported))
	require.Len(t, exported, 1)
	assert.Equal(t, domain.ProductID("A"), exported[0].ID)

	assert.Equal(t, before, f.raw(t, cache.KeyTestProducts))
	assert.Len(t, f.queue.Ops(), opsBefore)
}

func TestCatalogService_QuotaFailureAbortsBroadcast(t *testing.T) {
	f := newFixture(t, 64)
	ctx := context.Background()

	_, err := f.catalog.Create(ctx, validProduct("TOO-BIG"))
	assert.ErrorIs(t, err, kvstore.ErrQuotaExceeded)

	assert.False(t, f.mr.Exists(testPrefix+cache.KeyTestProducts))
	assert.False(t, f.published(events.TestProductCreated))
	assert.Empty(t, f.queue.Ops())
}

func TestCatalogService_FoldLegacySources(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	f.seed(t, cache.KeyTestProducts, `[{"id":"X1","name":"admin"}]`)
	f.seed(t, cache.KeyProducts, `[{"id":"x1","name":"dup"},{"id":"p2","name":"all"}]`)
	f.seed(t, cache.KeyStandaloneProducts, `{"tees":[{"id":"P2","name":"dup"},{"id":7,"name":"numeric"}]}`)

	added, err := f.catalog.FoldLegacySources(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	products := f.products(t)
	require.Len(t, products, 3)
	assert.Equal(t, domain.ProductID("X1"), products[0].ID)
	assert.Equal(t, "admin", products[0].Name)
	assert.Equal(t, domain.ProductID("P2"), products[1].ID)
	assert.Equal(t, "all", products[1].Name)
	assert.Equal(t, domain.ProductID("7"), products[2].ID)
	assert.Equal(t, "tees", products[2].Category)

	again, err := f.catalog.FoldLegacySources(ctx)
	require.NoError(t, err)
	assert.Zero(t, again)

	// legacy keys stay readable
	p, err := f.resolver.Resolve(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "numeric", p.Name)
}

func TestCatalogService_CreateKeepsLegacyStringPrices(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	f.seed(t, cache.KeyTestProducts, `[{"id":"OLD-1","name":"Camiseta Antiga","color":"Preto","price":"49.90","stock":"2"}]`)

	_, err := f.catalog.Create(ctx, validProduct("NEW-1"))
	require.NoError(t, err)

	products := f.products(t)
	require.Len(t, products, 2)
	assert.Equal(t, domain.ProductID("OLD-1"), products[0].ID)
	assert.Equal(t, 49.90, products[0].Price)
	assert.Equal(t, 2, products[0].Stock)
	assert.Contains(t, f.raw(t, cache.KeyTestProducts), `"price":49.9`)
}
