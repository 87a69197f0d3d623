package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/events"

	"go.uber.org/zap"
)

// RecommendationService maintains the capped recommendation list
type RecommendationService interface {
	// List returns every retained recommendation, active or not.
	List(ctx context.Context) ([]domain.Recommendation, error)
	// Rail returns the displayed rail: active standalone recommendations
	// followed by flagged catalog products, at most 12 entries.
	Rail(ctx context.Context) ([]domain.Recommendation, error)

	Create(ctx context.Context, rec *domain.Recommendation) (*domain.Recommendation, error)
	Update(ctx context.Context, id any, rec *domain.Recommendation) (*domain.Recommendation, error)
	Delete(ctx context.Context, id any) error
}

type recommendationService struct {
	mu      sync.Mutex
	repo    cache.RecommendationRepository
	catalog CatalogService
	bus     Publisher
	queue   RemoteQueue
	logger  *zap.Logger
	now     func() time.Time
	rnd     *rand.Rand
}

// NewRecommendationService creates a new instance of RecommendationService
func NewRecommendationService(
	repo cache.RecommendationRepository,
	catalog CatalogService,
	bus Publisher,
	queue RemoteQueue,
	logger *zap.Logger,
) RecommendationService {
	return &recommendationService{
		repo:    repo,
		catalog: catalog,
		bus:     bus,
		queue:   queue,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *recommendationService) List(ctx context.Context) ([]domain.Recommendation, error) {
	return s.repo.List(ctx)
}

func (s *recommendationService) Rail(ctx context.Context) ([]domain.Recommendation, error) {
	recs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load recommendations: %w", err)
	}
	flagged, err := s.catalog.Highlighted(ctx, domain.ViewRecommendations)
	if err != nil {
		return nil, fmt.Errorf("failed to load flagged products: %w", err)
	}

	// Inactive recommendations also hide their own catalog mirror.
	seen := make(map[domain.ProductID]bool, len(recs)+len(flagged))
	rail := make([]domain.Recommendation, 0, domain.MaxDisplayedRecommendations)
	for _, rec := range recs {
		key := rec.ID.Canonical()
		seen[key] = true
		if rec.IsActive {
			rail = append(rail, rec)
		}
	}
	for i := range flagged {
		key := flagged[i].ID.Canonical()
		if seen[key] {
			continue
		}
		seen[key] = true
		rail = append(rail, domain.RecommendationFromProduct(&flagged[i]))
	}

	if len(rail) > domain.MaxDisplayedRecommendations {
		rail = rail[:domain.MaxDisplayedRecommendations]
	}
	return rail, nil
}

func (s *recommendationService) Create(ctx context.Context, rec *domain.Recommendation) (*domain.Recommendation, error) {
	if verr := validateStruct(rec); len(verr.Fields) > 0 {
		return nil, verr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load recommendations: %w", err)
	}

	r := *rec
	now := s.now().UTC()
	if r.ID.Canonical() == "" {
		r.ID = domain.NewRecommendationID(domain.RecommendationIDPrefix, now, s.rnd)
	} else {
		r.ID = r.ID.Canonical()
		if recommendationIndex(recs, r.ID) >= 0 {
			return nil, ErrDuplicateRecommendation
		}
	}
	r.CreatedAt = now

	recs = evictOldest(append(recs, r), domain.MaxRetainedRecommendations)

	if err := s.commit(ctx, recs, "create", r.ID); err != nil {
		return nil, err
	}
	if r.IsTargeted() {
		s.mirror(ctx, r)
	}
	return &r, nil
}

func (s *recommendationService) Update(ctx context.Context, id any, rec *domain.Recommendation) (*domain.Recommendation, error) {
	if verr := validateStruct(rec); len(verr.Fields) > 0 {
		return nil, verr
	}
	key := domain.IDFromAny(id).Canonical()

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load recommendations: %w", err)
	}
	idx := recommendationIndex(recs, key)
	if idx < 0 {
		return nil, ErrRecommendationNotFound
	}

	previous := recs[idx]
	r := *rec
	r.ID = previous.ID
	r.CreatedAt = previous.CreatedAt
	recs[idx] = r

	if err := s.commit(ctx, recs, "update", r.ID); err != nil {
		return nil, err
	}
	switch {
	case r.IsTargeted():
		s.mirror(ctx, r)
	case previous.IsTargeted():
		s.unmirror(ctx, r.ID)
	}
	return &r, nil
}

// Delete removes a recommendation and its catalog highlight; unknown ids
// are a no-op.
func (s *recommendationService) Delete(ctx context.Context, id any) error {
	key := domain.IDFromAny(id).Canonical()

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load recommendations: %w", err)
	}
	idx := recommendationIndex(recs, key)
	if idx < 0 {
		return nil
	}
	removed := recs[idx].ID
	recs = append(recs[:idx], recs[idx+1:]...)

	if err := s.commit(ctx, recs, "delete", removed); err != nil {
		return err
	}
	s.unmirror(ctx, removed)
	return nil
}

// commit persists locally, then queues the remote document and broadcasts.
// Nothing is queued or broadcast when the local write fails.
func (s *recommendationService) commit(ctx context.Context, recs []domain.Recommendation, action string, id domain.ProductID) error {
	if err := s.repo.Save(ctx, recs); err != nil {
		return fmt.Errorf("failed to save recommendations: %w", err)
	}

	if err := enqueuePut(s.queue, CollectionContent, RecommendationsContentID, recs); err != nil {
		s.logger.Warn("Failed to queue recommendations for remote sync", zap.Error(err))
	}

	s.bus.Publish(events.RecommendationsUpdated, map[string]any{
		"action": action,
		"id":     id.String(),
		"count":  len(recs),
	})
	return nil
}

// mirror failures are logged; the recommendation itself is already committed
func (s *recommendationService) mirror(ctx context.Context, rec domain.Recommendation) {
	if err := s.catalog.MirrorRecommendation(ctx, rec); err != nil {
		s.logger.Error("Failed to mirror recommendation into catalog", zap.String("id", rec.ID.String()), zap.Error(err))
	}
}

func (s *recommendationService) unmirror(ctx context.Context, id domain.ProductID) {
	if err := s.catalog.ClearRecommendationHighlight(ctx, id); err != nil {
		s.logger.Error("Failed to clear catalog highlight", zap.String("id", id.String()), zap.Error(err))
	}
}

func recommendationIndex(recs []domain.Recommendation, key domain.ProductID) int {
	for i := range recs {
		if recs[i].ID.Canonical() == key {
			return i
		}
	}
	return -1
}

// createdAtMillis prefers the timestamp embedded in the id. Records
// without one fall back to createdAt, then sort last.
func createdAtMillis(rec *domain.Recommendation) int64 {
	if ms, ok := domain.CreatedAtFromID(rec.ID); ok {
		return ms
	}
	if !rec.CreatedAt.IsZero() {
		return rec.CreatedAt.UnixMilli()
	}
	return 0
}

// evictOldest keeps the limit most recently created entries, newest first
func evictOldest(recs []domain.Recommendation, limit int) []domain.Recommendation {
	sort.SliceStable(recs, func(i, j int) bool {
		return createdAtMillis(&recs[i]) > createdAtMillis(&recs[j])
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}
