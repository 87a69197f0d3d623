package cache

import (
	"context"
	"encoding/json"
	"sort"

	"storefront/internal/domain"
	"storefront/internal/kvstore"

	"go.uber.org/zap"
)

// CatalogRepository defines access to the product collections in the local cache
type CatalogRepository interface {
	// Products returns the canonical admin-managed collection.
	Products(ctx context.Context) ([]domain.Product, error)
	SaveProducts(ctx context.Context, products []domain.Product) error

	// AllProducts returns the denormalized "all products" cache.
	AllProducts(ctx context.Context) ([]domain.Product, error)
	// StandaloneProducts returns category products, flattened.
	StandaloneProducts(ctx context.Context) ([]domain.Product, error)

	Backup(ctx context.Context) ([]domain.Product, bool, error)
	SaveBackup(ctx context.Context, products []domain.Product) error

	Migrated(ctx context.Context) (bool, error)
	MarkMigrated(ctx context.Context) error
}

type catalogRepository struct {
	store  kvstore.Store
	logger *zap.Logger
}

// NewCatalogRepository creates a new instance of CatalogRepository
func NewCatalogRepository(store kvstore.Store, logger *zap.Logger) CatalogRepository {
	return &catalogRepository{store: store, logger: logger}
}

func (r *catalogRepository) list(ctx context.Context, key string) ([]domain.Product, error) {
	var products []domain.Product
	if _, err := readJSON(ctx, r.store, r.logger, key, &products); err != nil {
		return nil, err
	}
	if products == nil {
		products = []domain.Product{}
	}
	return products, nil
}

func (r *catalogRepository) save(ctx context.Context, key string, products []domain.Product) error {
	if products == nil {
		products = []domain.Product{}
	}
	return writeJSON(ctx, r.store, key, products)
}

func (r *catalogRepository) Products(ctx context.Context) ([]domain.Product, error) {
	return r.list(ctx, KeyTestProducts)
}

func (r *catalogRepository) SaveProducts(ctx context.Context, products []domain.Product) error {
	return r.save(ctx, KeyTestProducts, products)
}

func (r *catalogRepository) AllProducts(ctx context.Context) ([]domain.Product, error) {
	return r.list(ctx, KeyProducts)
}

// StandaloneProducts accepts either a flat array or an object keyed by
// category whose values are arrays.
func (r *catalogRepository) StandaloneProducts(ctx context.Context) ([]domain.Product, error) {
	var raw json.RawMessage
	ok, err := readJSON(ctx, r.store, r.logger, KeyStandaloneProducts, &raw)
	if err != nil || !ok {
		return []domain.Product{}, err
	}

	var flat []domain.Product
	if err := json.Unmarshal(raw, &flat); err == nil {
		if flat == nil {
			flat = []domain.Product{}
		}
		return flat, nil
	}

	var byCategory map[string][]domain.Product
	if err := json.Unmarshal(raw, &byCategory); err != nil {
		r.logger.Debug("Treating malformed standalone products as absent", zap.Error(err))
		return []domain.Product{}, nil
	}

	categories := make([]string, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	products := []domain.Product{}
	for _, category := range categories {
		for _, p := range byCategory[category] {
			if p.Category == "" {
				p.Category = category
			}
			products = append(products, p)
		}
	}
	return products, nil
}

func (r *catalogRepository) Backup(ctx context.Context) ([]domain.Product, bool, error) {
	var products []domain.Product
	ok, err := readJSON(ctx, r.store, r.logger, KeyProductsBackup, &products)
	if err != nil || !ok {
		return nil, false, err
	}
	if products == nil {
		products = []domain.Product{}
	}
	return products, true, nil
}

func (r *catalogRepository) SaveBackup(ctx context.Context, products []domain.Product) error {
	return r.save(ctx, KeyProductsBackup, products)
}

func (r *catalogRepository) Migrated(ctx context.Context) (bool, error) {
	var done bool
	if _, err := readJSON(ctx, r.store, r.logger, KeyCatalogMigrated, &done); err != nil {
		return false, err
	}
	return done, nil
}

func (r *catalogRepository) MarkMigrated(ctx context.Context) error {
	return writeJSON(ctx, r.store, KeyCatalogMigrated, true)
}
