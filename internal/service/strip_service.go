package service

import (
	"context"
	"fmt"
	"sync"

	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/events"

	"go.uber.org/zap"
)

var stripSignals = map[string]events.Signal{
	cache.StripFamilyHome: events.BannerSettingsUpdated,
	cache.StripFamilyDemo: events.DemoBannerSettingsUpdated,
}

// StripService reads and upserts the announcement strip of each page family
type StripService interface {
	Get(ctx context.Context, family string) (domain.StripConfig, error)
	Upsert(ctx context.Context, family string, cfg domain.StripConfig) (domain.StripConfig, error)
}

type stripService struct {
	mu     sync.Mutex
	repo   cache.StripRepository
	bus    Publisher
	queue  RemoteQueue
	logger *zap.Logger
}

// NewStripService creates a new instance of StripService
func NewStripService(repo cache.StripRepository, bus Publisher, queue RemoteQueue, logger *zap.Logger) StripService {
	return &stripService{repo: repo, bus: bus, queue: queue, logger: logger}
}

// Get returns the defaults when the family was never configured
func (s *stripService) Get(ctx context.Context, family string) (domain.StripConfig, error) {
	if _, ok := stripSignals[family]; !ok {
		return domain.StripConfig{}, fmt.Errorf("%w: %s", ErrUnknownStripFamily, family)
	}
	cfg, _, err := s.repo.Get(ctx, family)
	if err != nil {
		return domain.StripConfig{}, fmt.Errorf("failed to load strip: %w", err)
	}
	return cfg, nil
}

func (s *stripService) Upsert(ctx context.Context, family string, cfg domain.StripConfig) (domain.StripConfig, error) {
	signal, ok := stripSignals[family]
	if !ok {
		return domain.StripConfig{}, fmt.Errorf("%w: %s", ErrUnknownStripFamily, family)
	}

	cfg.Family = family
	verr := validateStruct(cfg)
	if cfg.BackgroundColor != "" && !domain.IsHexColor(cfg.BackgroundColor) {
		verr.add("BackgroundColor", "Must be a hex color")
	}
	if err := verr.orNil(); err != nil {
		return domain.StripConfig{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Save(ctx, cfg); err != nil {
		return domain.StripConfig{}, fmt.Errorf("failed to save strip: %w", err)
	}

	s.bus.Publish(signal, map[string]any{"family": family})
	if err := enqueuePut(s.queue, CollectionStrips, family, cfg); err != nil {
		s.logger.Warn("Failed to queue strip for remote sync", zap.String("family", family), zap.Error(err))
	}
	return cfg, nil
}
