package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CategoryInput is the admin-editable part of a category
type CategoryInput struct {
	Name          string   `json:"name" validate:"required,max=100"`
	Subcategories []string `json:"subcategories" validate:"dive,required,max=100"`
}

// CategoryService manages categories. The remote table is authoritative;
// the local cache only mirrors it for reads.
type CategoryService interface {
	List(ctx context.Context) ([]domain.Category, error)
	Create(ctx context.Context, in CategoryInput) (*domain.Category, error)
	Update(ctx context.Context, id uuid.UUID, in CategoryInput) (*domain.Category, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// Refresh reloads the cache from the remote table.
	Refresh(ctx context.Context) ([]domain.Category, error)
}

type categoryService struct {
	mu      sync.Mutex
	repo    repository.CategoryRepository
	cache   cache.CategoryCache
	bus     Publisher
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewCategoryService creates a new instance of CategoryService
func NewCategoryService(
	repo repository.CategoryRepository,
	categoryCache cache.CategoryCache,
	bus Publisher,
	timeout time.Duration,
	logger *zap.Logger,
) CategoryService {
	return &categoryService{
		repo:    repo,
		cache:   categoryCache,
		bus:     bus,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// List serves from the cache and falls back to the remote table
func (s *categoryService) List(ctx context.Context) ([]domain.Category, error) {
	categories, ok, err := s.cache.List(ctx)
	if err != nil {
		s.logger.Warn("Category cache unreadable", zap.Error(err))
	}
	if ok {
		return categories, nil
	}
	return s.Refresh(ctx)
}

func (s *categoryService) Refresh(ctx context.Context) ([]domain.Category, error) {
	remoteCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.repo.List(remoteCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list categories: %v", ErrRemoteUnavailable, err)
	}
	categories := make([]domain.Category, 0, len(rows))
	for _, c := range rows {
		categories = append(categories, *c)
	}

	if err := s.cache.Save(ctx, categories); err != nil {
		s.logger.Warn("Failed to cache categories", zap.Error(err))
	}
	return categories, nil
}

func (s *categoryService) Create(ctx context.Context, in CategoryInput) (*domain.Category, error) {
	in = cleanCategoryInput(in)
	if verr := validateStruct(in); len(verr.Fields) > 0 {
		return nil, verr
	}

	now := s.now().UTC()
	category := &domain.Category{
		ID:            uuid.New(),
		Name:          in.Name,
		Slug:          Slugify(in.Name),
		Subcategories: in.Subcategories,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	remoteCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.repo.Create(remoteCtx, category); err != nil {
		return nil, categoryWriteError("create", err)
	}

	s.afterWrite(ctx, "create", category.ID)
	return category, nil
}

func (s *categoryService) Update(ctx context.Context, id uuid.UUID, in CategoryInput) (*domain.Category, error) {
	in = cleanCategoryInput(in)
	if verr := validateStruct(in); len(verr.Fields) > 0 {
		return nil, verr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	remoteCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	category, err := s.repo.FindByID(remoteCtx, id)
	if err != nil {
		return nil, categoryWriteError("find", err)
	}
	category.Name = in.Name
	category.Slug = Slugify(in.Name)
	category.Subcategories = in.Subcategories
	category.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(remoteCtx, category); err != nil {
		return nil, categoryWriteError("update", err)
	}

	s.afterWrite(ctx, "update", id)
	return category, nil
}

func (s *categoryService) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	remoteCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.repo.Delete(remoteCtx, id); err != nil {
		return categoryWriteError("delete", err)
	}

	s.afterWrite(ctx, "delete", id)
	return nil
}

// afterWrite refreshes the cache and broadcasts. The remote write already
// succeeded, so a refresh failure is only logged.
func (s *categoryService) afterWrite(ctx context.Context, action string, id uuid.UUID) {
	if _, err := s.Refresh(ctx); err != nil {
		s.logger.Warn("Failed to refresh category cache", zap.Error(err))
	}
	s.bus.Publish(events.CategoriesUpdated, map[string]any{"action": action, "id": id.String()})
}

// categoryWriteError keeps the repository sentinels and reports anything
// else as the remote store being unavailable.
func categoryWriteError(action string, err error) error {
	if errors.Is(err, repository.ErrCategoryNotFound) || errors.Is(err, repository.ErrCategoryAlreadyExists) {
		return fmt.Errorf("failed to %s category: %w", action, err)
	}
	return fmt.Errorf("%w: failed to %s category: %v", ErrRemoteUnavailable, action, err)
}

func cleanCategoryInput(in CategoryInput) CategoryInput {
	in.Name = strings.TrimSpace(in.Name)
	subs := make([]string, 0, len(in.Subcategories))
	seen := make(map[string]bool, len(in.Subcategories))
	for _, sub := range in.Subcategories {
		sub = strings.TrimSpace(sub)
		key := strings.ToLower(sub)
		if sub == "" || seen[key] {
			continue
		}
		seen[key] = true
		subs = append(subs, sub)
	}
	in.Subcategories = subs
	return in
}

// Slugify lowercases, strips accents and joins words with dashes
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, s)
	if err != nil {
		plain = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(plain) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
