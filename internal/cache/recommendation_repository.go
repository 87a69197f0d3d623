package cache

import (
	"context"

	"storefront/internal/domain"
	"storefront/internal/kvstore"

	"go.uber.org/zap"
)

// RecommendationRepository defines access to the stored recommendation list
type RecommendationRepository interface {
	List(ctx context.Context) ([]domain.Recommendation, error)
	Save(ctx context.Context, recs []domain.Recommendation) error
}

type recommendationRepository struct {
	store  kvstore.Store
	logger *zap.Logger
}

// NewRecommendationRepository creates a new instance of RecommendationRepository
func NewRecommendationRepository(store kvstore.Store, logger *zap.Logger) RecommendationRepository {
	return &recommendationRepository{store: store, logger: logger}
}

// List returns an empty slice when the key is absent or malformed
func (r *recommendationRepository) List(ctx context.Context) ([]domain.Recommendation, error) {
	var recs []domain.Recommendation
	if _, err := readJSON(ctx, r.store, r.logger, KeyRecommendations, &recs); err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []domain.Recommendation{}
	}
	return recs, nil
}

func (r *recommendationRepository) Save(ctx context.Context, recs []domain.Recommendation) error {
	if recs == nil {
		recs = []domain.Recommendation{}
	}
	return writeJSON(ctx, r.store, KeyRecommendations, recs)
}
