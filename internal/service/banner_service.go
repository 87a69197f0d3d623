package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/media"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Banner lanes
const (
	LaneHomepage = "homepage"
	LaneFooter   = "footer"
)

// Lane binds a banner cache key to its signal and remote collection
type Lane struct {
	Name       string
	Key        string
	Signal     events.Signal
	Collection string
	Defaults   func() []domain.Banner
}

// DefaultLanes returns the homepage and footer lanes
func DefaultLanes() []Lane {
	return []Lane{
		{
			Name:       LaneHomepage,
			Key:        cache.KeyHomepageBanners,
			Signal:     events.BannerUpdated,
			Collection: CollectionBanners,
			Defaults:   domain.DefaultHomepageBanners,
		},
		{
			Name:       LaneFooter,
			Key:        cache.KeyFooterBanner,
			Signal:     events.FooterBannerUpdated,
			Collection: CollectionFooterBanners,
			Defaults:   domain.DefaultFooterBanners,
		},
	}
}

// DocumentSource is the read side of the remote document store
type DocumentSource interface {
	List(ctx context.Context, collection string) ([]*domain.Document, error)
	Listen(ctx context.Context, collection string) (<-chan domain.DocumentChange, error)
}

// Media is a replacement creative for a banner slot
type Media struct {
	URL  string `json:"url" validate:"required"`
	MIME string `json:"mime" validate:"required"`
	Size int64  `json:"size" validate:"gte=0"`
}

// BannerService keeps each lane's banner slots in the local cache and
// reconciles them with the remote collection.
type BannerService interface {
	Lanes() []string
	EnsureSeeded(ctx context.Context, lane string) error
	List(ctx context.Context, lane string) ([]domain.Banner, error)

	// Reconcile merges the remote collection into the cache: remote
	// fields win, unknown slots are appended and nothing is removed.
	Reconcile(ctx context.Context, lane string) (bool, error)
	// Watch reconciles on every remote change until ctx is cancelled,
	// reopening the feed whenever it fails or closes.
	Watch(ctx context.Context, lane string) error

	ReplaceMedia(ctx context.Context, lane, id string, m Media) (*domain.Banner, error)
	SetCrop(ctx context.Context, lane, id string, crop domain.CropMetadata) (*domain.Banner, error)
	SetOverlay(ctx context.Context, lane, id string, overlay domain.OverlaySettings) (*domain.Banner, error)
	Delete(ctx context.Context, lane, id string) error
}

type bannerLane struct {
	Lane
	mu   sync.Mutex
	repo cache.BannerRepository
}

type bannerService struct {
	lanes   map[string]*bannerLane
	order   []string
	remote  DocumentSource
	bus     Publisher
	queue   RemoteQueue
	timeout time.Duration
	retry   time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewBannerService creates a BannerService over the given lanes
func NewBannerService(
	repoFor func(key string) cache.BannerRepository,
	remote DocumentSource,
	bus Publisher,
	queue RemoteQueue,
	timeout time.Duration,
	logger *zap.Logger,
	lanes ...Lane,
) BannerService {
	s := &bannerService{
		lanes:   make(map[string]*bannerLane, len(lanes)),
		remote:  remote,
		bus:     bus,
		queue:   queue,
		timeout: timeout,
		retry:   500 * time.Millisecond,
		logger:  logger,
		now:     time.Now,
	}
	for _, l := range lanes {
		s.lanes[l.Name] = &bannerLane{Lane: l, repo: repoFor(l.Key)}
		s.order = append(s.order, l.Name)
	}
	return s
}

func (s *bannerService) Lanes() []string {
	return append([]string(nil), s.order...)
}

func (s *bannerService) lane(name string) (*bannerLane, error) {
	l, ok := s.lanes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLane, name)
	}
	return l, nil
}

func (s *bannerService) EnsureSeeded(ctx context.Context, lane string) error {
	l, err := s.lane(lane)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = s.load(ctx, l)
	return err
}

func (s *bannerService) List(ctx context.Context, lane string) ([]domain.Banner, error) {
	l, err := s.lane(lane)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return s.load(ctx, l)
}

// load reads the lane and seeds the defaults when it is empty.
// Callers hold l.mu.
func (s *bannerService) load(ctx context.Context, l *bannerLane) ([]domain.Banner, error) {
	banners, err := l.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s banners: %w", l.Name, err)
	}
	if len(banners) > 0 {
		return banners, nil
	}

	banners = l.Defaults()
	if err := l.repo.Save(ctx, banners); err != nil {
		return nil, fmt.Errorf("failed to seed %s banners: %w", l.Name, err)
	}
	s.logger.Info("Seeded default banners", zap.String("lane", l.Name), zap.Int("count", len(banners)))
	return banners, nil
}

func (s *bannerService) Reconcile(ctx context.Context, lane string) (bool, error) {
	l, err := s.lane(lane)
	if err != nil {
		return false, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	docs, err := s.remote.List(fetchCtx, l.Collection)
	cancel()
	if err != nil {
		return false, fmt.Errorf("%w: failed to load %s: %v", ErrRemoteUnavailable, l.Collection, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := s.load(ctx, l); err != nil {
		return false, err
	}
	local, err := l.repo.Raw(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load %s banners: %w", l.Name, err)
	}

	merged, changed := mergeBanners(local, docs, s.logger)
	if !changed {
		return false, nil
	}
	if err := l.repo.SaveRaw(ctx, merged); err != nil {
		return false, fmt.Errorf("failed to save %s banners: %w", l.Name, err)
	}

	s.bus.Publish(l.Signal, map[string]any{"lane": l.Name, "source": "remote"})
	s.logger.Info("Banners reconciled from remote", zap.String("lane", l.Name))
	return true, nil
}

// mergeBanners applies remote documents onto the local slots field by
// field. Local slots the remote does not know about are kept.
func mergeBanners(local []map[string]json.RawMessage, docs []*domain.Document, logger *zap.Logger) ([]map[string]json.RawMessage, bool) {
	changed := false
	for _, doc := range docs {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(doc.Data, &fields); err != nil || fields == nil {
			logger.Debug("Skipping malformed remote banner", zap.String("id", doc.ID), zap.Error(err))
			continue
		}
		fields["id"], _ = json.Marshal(doc.ID)

		idx := slotIndex(local, doc.ID)
		if idx < 0 {
			local = append(local, fields)
			changed = true
			continue
		}
		for name, value := range fields {
			if !sameJSON(local[idx][name], value) {
				local[idx][name] = value
				changed = true
			}
		}
	}
	return local, changed
}

var jsonNull = json.RawMessage("null")

// bannerDocument is the remote shape of a slot. Cleared crop and overlay
// are written as null so other instances drop their copies on merge.
func bannerDocument(b domain.Banner) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	for _, field := range []string{"cropMetadata", "overlaySettings"} {
		if _, ok := doc[field]; !ok {
			doc[field] = jsonNull
		}
	}
	return doc, nil
}

func slotIndex(docs []map[string]json.RawMessage, id string) int {
	for i, d := range docs {
		var slot string
		if err := json.Unmarshal(d["id"], &slot); err == nil && slot == id {
			return i
		}
	}
	return -1
}

// sameJSON treats a missing field and an explicit null as equal.
func sameJSON(a, b json.RawMessage) bool {
	if a == nil {
		a = jsonNull
	}
	if b == nil {
		b = jsonNull
	}
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

// Watch keeps a feed open on the lane's collection. A failed or closed
// feed is reopened with backoff and the lane is reconciled on every
// reconnect.
func (s *bannerService) Watch(ctx context.Context, lane string) error {
	l, err := s.lane(lane)
	if err != nil {
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retry
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0
	retry := backoff.WithContext(policy, ctx)

	for {
		changes, err := s.remote.Listen(ctx, l.Collection)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("Failed to listen for remote banners", zap.String("lane", l.Name), zap.Error(err))
		} else {
			retry.Reset()
			s.logger.Info("Watching remote banners", zap.String("lane", l.Name), zap.String("collection", l.Collection))
			s.follow(ctx, l, changes)
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("Remote banner feed closed", zap.String("lane", l.Name))
		}

		wait := retry.NextBackOff()
		if wait == backoff.Stop {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// follow reconciles once and then on every change until the feed closes.
func (s *bannerService) follow(ctx context.Context, l *bannerLane, changes <-chan domain.DocumentChange) {
	if _, err := s.Reconcile(ctx, l.Name); err != nil && ctx.Err() == nil {
		s.logger.Warn("Initial banner reconcile failed", zap.String("lane", l.Name), zap.Error(err))
	}
	for change := range changes {
		if change.Deleted() {
			continue
		}
		if _, err := s.Reconcile(ctx, l.Name); err != nil && ctx.Err() == nil {
			s.logger.Warn("Banner reconcile failed", zap.String("lane", l.Name), zap.Error(err))
		}
	}
}

func (s *bannerService) ReplaceMedia(ctx context.Context, lane, id string, m Media) (*domain.Banner, error) {
	if verr := validateStruct(m); len(verr.Fields) > 0 {
		return nil, verr
	}
	kind, err := media.Classify(m.MIME, m.Size)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, lane, id, "media", func(b *domain.Banner) error {
		b.CurrentImage = m.URL
		b.MediaType = kind
		b.CropMetadata = nil
		return nil
	})
}

func (s *bannerService) SetCrop(ctx context.Context, lane, id string, crop domain.CropMetadata) (*domain.Banner, error) {
	return s.mutate(ctx, lane, id, "crop", func(b *domain.Banner) error {
		if crop.Ratio == 0 {
			crop.Ratio = b.AspectRatio
		}
		if crop.Src == "" {
			crop.Src = b.CurrentImage
		}
		if verr := validateCrop(crop); verr != nil {
			return verr
		}
		b.CropMetadata = &crop
		return nil
	})
}

func (s *bannerService) SetOverlay(ctx context.Context, lane, id string, overlay domain.OverlaySettings) (*domain.Banner, error) {
	if verr := validateOverlay(overlay); verr != nil {
		return nil, verr
	}
	return s.mutate(ctx, lane, id, "overlay", func(b *domain.Banner) error {
		b.OverlaySettings = &overlay
		return nil
	})
}

// mutate applies fn to one slot, persists, broadcasts and queues the
// remote copy. fn errors abort before anything is written.
func (s *bannerService) mutate(ctx context.Context, lane, id, action string, fn func(*domain.Banner) error) (*domain.Banner, error) {
	l, err := s.lane(lane)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	banners, err := s.load(ctx, l)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i := range banners {
		if banners[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrBannerNotFound
	}

	b := banners[idx]
	if err := fn(&b); err != nil {
		return nil, err
	}
	b.UpdatedAt = s.now().UTC()
	banners[idx] = b

	if err := l.repo.Save(ctx, banners); err != nil {
		return nil, fmt.Errorf("failed to save %s banners: %w", l.Name, err)
	}

	s.bus.Publish(l.Signal, map[string]any{"lane": l.Name, "id": id, "action": action})
	doc, err := bannerDocument(b)
	if err == nil {
		err = enqueuePut(s.queue, l.Collection, b.ID, doc)
	}
	if err != nil {
		s.logger.Warn("Failed to queue banner for remote sync", zap.String("id", b.ID), zap.Error(err))
	}
	return &b, nil
}

// Delete rejects hero slots before touching the cache. Unknown ids are a no-op.
func (s *bannerService) Delete(ctx context.Context, lane, id string) error {
	if domain.IsProtectedBanner(id) {
		return ErrProtectedBanner
	}
	l, err := s.lane(lane)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	banners, err := l.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load %s banners: %w", l.Name, err)
	}
	kept := banners[:0]
	for _, b := range banners {
		if b.ID != id {
			kept = append(kept, b)
		}
	}
	if len(kept) == len(banners) {
		return nil
	}

	if err := l.repo.Save(ctx, kept); err != nil {
		return fmt.Errorf("failed to save %s banners: %w", l.Name, err)
	}

	s.bus.Publish(l.Signal, map[string]any{"lane": l.Name, "id": id, "action": "delete"})
	enqueueDelete(s.queue, l.Collection, id)
	return nil
}

func validateCrop(crop domain.CropMetadata) error {
	verr := &ValidationError{}
	if !(crop.Ratio > 0) || math.IsInf(crop.Ratio, 0) {
		verr.add("ratio", "Value must be greater than 0")
	}
	if !(crop.Scale > 0 && crop.Scale <= 10) {
		verr.add("scale", "Value must be within (0, 10]")
	}
	if !(crop.TX >= -1 && crop.TX <= 1) {
		verr.add("tx", "Value must be within [-1, 1]")
	}
	if !(crop.TY >= -1 && crop.TY <= 1) {
		verr.add("ty", "Value must be within [-1, 1]")
	}
	return verr.orNil()
}

func validateOverlay(o domain.OverlaySettings) error {
	verr := &ValidationError{}
	if !o.Enabled {
		return nil
	}
	for i, c := range o.Colors {
		if !domain.IsHexColor(c) {
			verr.add(fmt.Sprintf("colors[%d]", i), "Must be a hex color")
		}
	}
	for i, op := range o.Opacities {
		if !(op >= 0 && op <= 1) {
			verr.add(fmt.Sprintf("opacities[%d]", i), "Value must be within [0, 1]")
		}
	}
	if !o.Direction.Valid() {
		verr.add("direction", "Invalid value")
	}
	return verr.orNil()
}
