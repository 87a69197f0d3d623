package service

import (
	"context"

	"storefront/internal/cache"
	"storefront/internal/domain"

	"go.uber.org/zap"
)

// CatalogResolver finds products regardless of which cache key they were
// written under.
type CatalogResolver interface {
	// Resolve searches the sources in priority order; the first match wins.
	Resolve(ctx context.Context, id any) (*domain.Product, error)
	// Products returns the product sources merged by id, higher priority first.
	Products(ctx context.Context) ([]domain.Product, error)
}

type source struct {
	name string
	load func(ctx context.Context) ([]domain.Product, error)
}

type catalogResolver struct {
	sources []source
	logger  *zap.Logger
}

// NewCatalogResolver creates a new instance of CatalogResolver
func NewCatalogResolver(catalog cache.CatalogRepository, recs cache.RecommendationRepository, logger *zap.Logger) CatalogResolver {
	return &catalogResolver{
		sources: []source{
			{name: cache.KeyTestProducts, load: catalog.Products},
			{name: cache.KeyProducts, load: catalog.AllProducts},
			{name: cache.KeyStandaloneProducts, load: catalog.StandaloneProducts},
			{name: cache.KeyRecommendations, load: func(ctx context.Context) ([]domain.Product, error) {
				list, err := recs.List(ctx)
				if err != nil {
					return nil, err
				}
				products := make([]domain.Product, 0, len(list))
				for i := range list {
					products = append(products, *list[i].ToProduct())
				}
				return products, nil
			}},
		},
		logger: logger,
	}
}

func (r *catalogResolver) Resolve(ctx context.Context, id any) (*domain.Product, error) {
	query := domain.IDFromAny(id)
	for _, src := range r.sources {
		products, err := src.load(ctx)
		if err != nil {
			r.logger.Warn("Skipping unreadable product source", zap.String("source", src.name), zap.Error(err))
			continue
		}
		for i := range products {
			if products[i].ID.Matches(query) {
				found := products[i]
				return &found, nil
			}
		}
	}
	return nil, ErrProductNotFound
}

// Products leaves out the recommendation source; recommendations are
// listed through their own lane.
func (r *catalogResolver) Products(ctx context.Context) ([]domain.Product, error) {
	seen := make(map[domain.ProductID]bool)
	merged := []domain.Product{}
	for _, src := range r.sources[:3] {
		products, err := src.load(ctx)
		if err != nil {
			r.logger.Warn("Skipping unreadable product source", zap.String("source", src.name), zap.Error(err))
			continue
		}
		for _, p := range products {
			key := p.ID.Canonical()
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, p)
		}
	}
	return merged, nil
}
