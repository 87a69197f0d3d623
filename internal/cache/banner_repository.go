package cache

import (
	"context"
	"encoding/json"

	"storefront/internal/domain"
	"storefront/internal/kvstore"

	"go.uber.org/zap"
)

// BannerRepository defines access to one lane's banner array
type BannerRepository interface {
	List(ctx context.Context) ([]domain.Banner, error)
	Save(ctx context.Context, banners []domain.Banner) error
	// Raw returns the stored documents as generic JSON objects so that
	// partial remote records can be merged field by field.
	Raw(ctx context.Context) ([]map[string]json.RawMessage, error)
	SaveRaw(ctx context.Context, docs []map[string]json.RawMessage) error
}

type bannerRepository struct {
	store  kvstore.Store
	key    string
	logger *zap.Logger
}

// NewBannerRepository creates a BannerRepository for the given key
func NewBannerRepository(store kvstore.Store, key string, logger *zap.Logger) BannerRepository {
	return &bannerRepository{store: store, key: key, logger: logger}
}

func (r *bannerRepository) List(ctx context.Context) ([]domain.Banner, error) {
	var banners []domain.Banner
	if _, err := readJSON(ctx, r.store, r.logger, r.key, &banners); err != nil {
		return nil, err
	}
	if banners == nil {
		banners = []domain.Banner{}
	}
	return banners, nil
}

func (r *bannerRepository) Save(ctx context.Context, banners []domain.Banner) error {
	if banners == nil {
		banners = []domain.Banner{}
	}
	return writeJSON(ctx, r.store, r.key, banners)
}

func (r *bannerRepository) Raw(ctx context.Context) ([]map[string]json.RawMessage, error) {
	var docs []map[string]json.RawMessage
	if _, err := readJSON(ctx, r.store, r.logger, r.key, &docs); err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []map[string]json.RawMessage{}
	}
	return docs, nil
}

func (r *bannerRepository) SaveRaw(ctx context.Context, docs []map[string]json.RawMessage) error {
	if docs == nil {
		docs = []map[string]json.RawMessage{}
	}
	return writeJSON(ctx, r.store, r.key, docs)
}
