package cache

import (
	"context"

	"storefront/internal/domain"
	"storefront/internal/kvstore"

	"go.uber.org/zap"
)

// CategoryCache mirrors the remote category table for fast reads
type CategoryCache interface {
	List(ctx context.Context) ([]domain.Category, bool, error)
	Save(ctx context.Context, categories []domain.Category) error
}

type categoryCache struct {
	store  kvstore.Store
	logger *zap.Logger
}

// NewCategoryCache creates a new instance of CategoryCache
func NewCategoryCache(store kvstore.Store, logger *zap.Logger) CategoryCache {
	return &categoryCache{store: store, logger: logger}
}

func (c *categoryCache) List(ctx context.Context) ([]domain.Category, bool, error) {
	var categories []domain.Category
	ok, err := readJSON(ctx, c.store, c.logger, KeyCategories, &categories)
	if err != nil || !ok {
		return []domain.Category{}, false, err
	}
	if categories == nil {
		categories = []domain.Category{}
	}
	return categories, true, nil
}

func (c *categoryCache) Save(ctx context.Context, categories []domain.Category) error {
	if categories == nil {
		categories = []domain.Category{}
	}
	return writeJSON(ctx, c.store, KeyCategories, categories)
}
