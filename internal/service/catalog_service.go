package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/events"

	"go.uber.org/zap"
)

// CatalogService defines the product operations of the admin console
type CatalogService interface {
	List(ctx context.Context) ([]domain.Product, error)
	Get(ctx context.Context, id any) (*domain.Product, error)
	Highlighted(ctx context.Context, view domain.HighlightView) ([]domain.Product, error)

	Create(ctx context.Context, product *domain.Product) (*domain.Product, error)
	Update(ctx context.Context, id any, product *domain.Product) (*domain.Product, error)
	Delete(ctx context.Context, id any) error

	Backup(ctx context.Context) (int, error)
	Restore(ctx context.Context) (int, error)
	Export(ctx context.Context) (filename string, data []byte, err error)

	// FoldLegacySources copies products that only exist under the legacy
	// keys into the canonical collection. It runs once per cache.
	FoldLegacySources(ctx context.Context) (int, error)

	// MirrorRecommendation writes a targeted recommendation into the
	// catalog as a flagged product. It does not broadcast.
	MirrorRecommendation(ctx context.Context, rec domain.Recommendation) error
	// ClearRecommendationHighlight unflags a mirrored product, if any.
	ClearRecommendationHighlight(ctx context.Context, id domain.ProductID) error
}

type catalogService struct {
	mu       sync.Mutex
	repo     cache.CatalogRepository
	resolver CatalogResolver
	bus      Publisher
	queue    RemoteQueue
	logger   *zap.Logger
	now      func() time.Time
}

// NewCatalogService creates a new instance of CatalogService
func NewCatalogService(
	repo cache.CatalogRepository,
	resolver CatalogResolver,
	bus Publisher,
	queue RemoteQueue,
	logger *zap.Logger,
) CatalogService {
	return &catalogService{
		repo:     repo,
		resolver: resolver,
		bus:      bus,
		queue:    queue,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *catalogService) List(ctx context.Context) ([]domain.Product, error) {
	return s.resolver.Products(ctx)
}

func (s *catalogService) Get(ctx context.Context, id any) (*domain.Product, error) {
	return s.resolver.Resolve(ctx, id)
}

func (s *catalogService) Highlighted(ctx context.Context, view domain.HighlightView) ([]domain.Product, error) {
	products, err := s.resolver.Products(ctx)
	if err != nil {
		return nil, err
	}
	flagged := []domain.Product{}
	for i := range products {
		if products[i].HighlightedIn(view) {
			flagged = append(flagged, products[i])
		}
	}
	return flagged, nil
}

// Create appends a new product. The id is stored in canonical form and
// must not collide with an existing canonical id.
func (s *catalogService) Create(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	p := *product
	p.ID = p.ID.Canonical()
	if verr := validateProduct(&p); verr != nil {
		return nil, verr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	products, err := s.repo.Products(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	if indexOf(products, p.ID) >= 0 {
		return nil, ErrDuplicateProduct
	}

	now := s.now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	normalizeStock(&p)

	products = append(products, p)
	if err := s.repo.SaveProducts(ctx, products); err != nil {
		return nil, fmt.Errorf("failed to save products: %w", err)
	}

	s.syncProduct(&p)
	s.bus.Publish(events.TestProductCreated, map[string]any{"id": p.ID.String()})

	s.logger.Info("Product created", zap.String("id", p.ID.String()))
	return &p, nil
}

// Update replaces the stored record, keeping its id and creation time.
func (s *catalogService) Update(ctx context.Context, id any, product *domain.Product) (*domain.Product, error) {
	key := domain.IDFromAny(id).Canonical()

	s.mu.Lock()
	defer s.mu.Unlock()

	products, err := s.repo.Products(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	idx := indexOf(products, key)
	if idx < 0 {
		return nil, ErrProductNotFound
	}

	p := *product
	p.ID = products[idx].ID
	if verr := validateProduct(&p); verr != nil {
		return nil, verr
	}
	p.CreatedAt = products[idx].CreatedAt
	p.UpdatedAt = s.now().UTC()
	normalizeStock(&p)

	products[idx] = p
	if err := s.repo.SaveProducts(ctx, products); err != nil {
		return nil, fmt.Errorf("failed to save products: %w", err)
	}

	s.syncProduct(&p)
	s.bus.Publish(events.ForceProductsReload, map[string]any{"id": p.ID.String(), "action": "update"})
	return &p, nil
}

// Delete removes a product; unknown ids leave the collection untouched.
func (s *catalogService) Delete(ctx context.Context, id any) error {
	key := domain.IDFromAny(id).Canonical()

	s.mu.Lock()
	defer s.mu.Unlock()

	products, err := s.repo.Products(ctx)
	if err != nil {
		return fmt.Errorf("failed to load products: %w", err)
	}
	idx := indexOf(products, key)
	if idx < 0 {
		return nil
	}
	removed := products[idx].ID

	products = append(products[:idx], products[idx+1:]...)
	if err := s.repo.SaveProducts(ctx, products); err != nil {
		return fmt.Errorf("failed to save products: %w", err)
	}

	enqueueDelete(s.queue, CollectionProducts, removed.String())
	s.bus.Publish(events.ForceProductsReload, map[string]any{"id": removed.String(), "action": "delete"})
	return nil
}

// Backup overwrites any previous backup with the current collection
func (s *catalogService) Backup(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	products, err := s.repo.Products(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load products: %w", err)
	}
	if err := s.repo.SaveBackup(ctx, products); err != nil {
		return 0, fmt.Errorf("failed to save backup: %w", err)
	}
	return len(products), nil
}

func (s *catalogService) Restore(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	backup, ok, err := s.repo.Backup(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load backup: %w", err)
	}
	if !ok {
		return 0, ErrNoBackup
	}
	if err := s.repo.SaveProducts(ctx, backup); err != nil {
		return 0, fmt.Errorf("failed to restore products: %w", err)
	}
	for i := range backup {
		s.syncProduct(&backup[i])
	}

	s.bus.Publish(events.ForceProductsReload, map[string]any{"action": "restore", "count": len(backup)})
	return len(backup), nil
}

func (s *catalogService) Export(ctx context.Context) (string, []byte, error) {
	products, err := s.repo.Products(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load products: %w", err)
	}
	data, err := json.MarshalIndent(products, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode products: %w", err)
	}
	filename := fmt.Sprintf("gang-boyz-products-%s.json", s.now().UTC().Format("2006-01-02"))
	return filename, data, nil
}

func (s *catalogService) FoldLegacySources(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	done, err := s.repo.Migrated(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read migration marker: %w", err)
	}
	if done {
		return 0, nil
	}

	products, err := s.repo.Products(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load products: %w", err)
	}

	added := 0
	for _, load := range []func(context.Context) ([]domain.Product, error){
		s.repo.AllProducts,
		s.repo.StandaloneProducts,
	} {
		legacy, err := load(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to load legacy products: %w", err)
		}
		for _, p := range legacy {
			p.ID = p.ID.Canonical()
			if p.ID == "" || indexOf(products, p.ID) >= 0 {
				continue
			}
			products = append(products, p)
			added++
		}
	}

	if added > 0 {
		if err := s.repo.SaveProducts(ctx, products); err != nil {
			return 0, fmt.Errorf("failed to save folded products: %w", err)
		}
	}
	if err := s.repo.MarkMigrated(ctx); err != nil {
		return 0, fmt.Errorf("failed to write migration marker: %w", err)
	}

	if added > 0 {
		s.bus.Publish(events.ForceProductsReload, map[string]any{"action": "fold", "count": added})
	}
	s.logger.Info("Legacy product sources folded", zap.Int("added", added))
	return added, nil
}

// MirrorRecommendation merges by id: fields the recommendation owns win,
// everything else on an existing product is kept.
func (s *catalogService) MirrorRecommendation(ctx context.Context, rec domain.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	products, err := s.repo.Products(ctx)
	if err != nil {
		return fmt.Errorf("failed to load products: %w", err)
	}

	mirror := rec.ToProduct()
	mirror.ID = mirror.ID.Canonical()
	now := s.now().UTC()

	idx := indexOf(products, mirror.ID)
	if idx < 0 {
		mirror.CreatedAt = now
		mirror.UpdatedAt = now
		products = append(products, *mirror)
		idx = len(products) - 1
	} else {
		p := &products[idx]
		p.Name = mirror.Name
		p.Image = mirror.Image
		p.Price = mirror.Price
		p.OriginalPrice = mirror.OriginalPrice
		p.Sizes = mirror.Sizes
		p.SizeStock = mirror.SizeStock
		p.Stock = mirror.Stock
		if mirror.Category != "" {
			p.Category = mirror.Category
		}
		if mirror.Subcategory != "" {
			p.Subcategory = mirror.Subcategory
		}
		p.DestacarEmRecomendacoes = true
		p.UpdatedAt = now
	}

	if err := s.repo.SaveProducts(ctx, products); err != nil {
		return fmt.Errorf("failed to save products: %w", err)
	}
	s.syncProduct(&products[idx])
	return nil
}

func (s *catalogService) ClearRecommendationHighlight(ctx context.Context, id domain.ProductID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	products, err := s.repo.Products(ctx)
	if err != nil {
		return fmt.Errorf("failed to load products: %w", err)
	}
	idx := indexOf(products, id.Canonical())
	if idx < 0 || !products[idx].DestacarEmRecomendacoes {
		return nil
	}

	products[idx].DestacarEmRecomendacoes = false
	products[idx].UpdatedAt = s.now().UTC()
	if err := s.repo.SaveProducts(ctx, products); err != nil {
		return fmt.Errorf("failed to save products: %w", err)
	}
	s.syncProduct(&products[idx])
	return nil
}

// syncProduct queues the remote copy; an encoding failure only costs the copy
func (s *catalogService) syncProduct(p *domain.Product) {
	if err := enqueuePut(s.queue, CollectionProducts, p.ID.String(), p); err != nil {
		s.logger.Warn("Failed to queue product for remote sync", zap.String("id", p.ID.String()), zap.Error(err))
	}
}

func validateProduct(p *domain.Product) error {
	verr := validateStruct(p)
	if strings.TrimSpace(p.ID.String()) == "" && !hasField(verr, "ID") {
		verr.add("ID", "This field is required")
	}
	if !p.LabelType.Valid() {
		verr.add("LabelType", "Invalid value")
	}
	for size, qty := range p.SizeStock {
		if qty < 0 {
			verr.add("SizeStock", "Quantity for size "+size+" must not be negative")
		}
	}
	return verr.orNil()
}

func hasField(verr *ValidationError, field string) bool {
	for _, f := range verr.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// normalizeStock derives stock from per-size quantities when sizes are tracked
func normalizeStock(p *domain.Product) {
	if len(p.SizeStock) > 0 {
		p.Stock = domain.SumSizeStock(p.SizeStock)
	}
	if len(p.Sizes) > 0 {
		p.Sizes = append([]string(nil), p.Sizes...)
		domain.SortSizes(p.Sizes)
	}
}

// indexOf compares canonical ids; key must already be canonical
func indexOf(products []domain.Product, key domain.ProductID) int {
	for i := range products {
		if products[i].ID.Canonical() == key {
			return i
		}
	}
	return -1
}
