package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/media"
	"storefront/internal/outbox"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeDocuments is an in-memory remote collection with a change feed
type fakeDocuments struct {
	mu        sync.Mutex
	docs      map[string][]*domain.Document
	err       error
	listenErr error
	listens   int
	changes   chan domain.DocumentChange
	drop      chan struct{}
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{
		docs:    make(map[string][]*domain.Document),
		changes: make(chan domain.DocumentChange, 8),
		drop:    make(chan struct{}),
	}
}

func (d *fakeDocuments) listenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listens
}

func (d *fakeDocuments) put(collection, id, data string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.docs[collection] = append(d.docs[collection], &domain.Document{Collection: collection, ID: id, Data: json.RawMessage(data)})
}

func (d *fakeDocuments) List(ctx context.Context, collection string) ([]*domain.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return append([]*domain.Document(nil), d.docs[collection]...), nil
}

// Listen fails once when listenErr is set. A send on drop closes the
// open feed.
func (d *fakeDocuments) Listen(ctx context.Context, collection string) (<-chan domain.DocumentChange, error) {
	d.mu.Lock()
	d.listens++
	err := d.listenErr
	d.listenErr = nil
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make(chan domain.DocumentChange)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.drop:
				return
			case c := <-d.changes:
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func newBannerFixture(t *testing.T) (*fixture, *bannerService, *fakeDocuments) {
	t.Helper()
	f := newFixture(t, 0)
	remote := newFakeDocuments()
	svc := NewBannerService(
		func(key string) cache.BannerRepository { return cache.NewBannerRepository(f.store, key, zap.NewNop()) },
		remote,
		f.bus,
		f.queue,
		time.Second,
		zap.NewNop(),
		DefaultLanes()...,
	).(*bannerService)
	svc.now = func() time.Time { return fixedNow }
	svc.retry = 5 * time.Millisecond
	return f, svc, remote
}

func TestBannerService_SeedsDefaults(t *testing.T) {
	f, svc, _ := newBannerFixture(t)
	ctx := context.Background()

	banners, err := svc.List(ctx, LaneHomepage)
	require.NoError(t, err)
	assert.Len(t, banners, len(domain.DefaultHomepageBanners()))
	assert.True(t, f.mr.Exists(testPrefix+cache.KeyHomepageBanners))

	footer, err := svc.List(ctx, LaneFooter)
	require.NoError(t, err)
	require.Len(t, footer, 1)
	assert.Equal(t, "footer-banner", footer[0].ID)

	_, err = svc.List(ctx, "sidebar")
	assert.ErrorIs(t, err, ErrUnknownLane)
}

func TestBannerService_ReconcileRemoteWins(t *testing.T) {
	f, svc, remote := newBannerFixture(t)
	ctx := context.Background()

	f.seed(t, cache.KeyHomepageBanners, `[{"id":"hero-banner-1","name":"Hero 1","currentImage":"A","mediaType":"image"},{"id":"local-only","currentImage":"L"}]`)
	remote.put(CollectionBanners, "hero-banner-1", `{"currentImage":"B"}`)

	changed, err := svc.Reconcile(ctx, LaneHomepage)
	require.NoError(t, err)
	assert.True(t, changed)

	banners, err := svc.List(ctx, LaneHomepage)
	require.NoError(t, err)
	require.Len(t, banners, 2)
	assert.Equal(t, "B", banners[0].CurrentImage)
	assert.Equal(t, "Hero 1", banners[0].Name)
	assert.Equal(t, "local-only", banners[1].ID)

	ev, ok := f.bus.Last(events.BannerUpdated)
	require.True(t, ok)
	assert.Equal(t, "remote", ev.Detail["source"])

	// same snapshot again is not a change
	before := f.raw(t, cache.KeyHomepageBanners)
	changed, err = svc.Reconcile(ctx, LaneHomepage)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, before, f.raw(t, cache.KeyHomepageBanners))
}

func TestBannerService_ReconcileAppendsUnknownSlots(t *testing.T) {
	f, svc, remote := newBannerFixture(t)
	ctx := context.Background()

	f.seed(t, cache.KeyHomepageBanners, `[{"id":"hero-banner-1","currentImage":"A"},{"id":"showcase-banner-1","currentImage":"S"}]`)
	remote.put(CollectionBanners, "promo-banner", `{"currentImage":"P","mediaType":"gif"}`)

	changed, err := svc.Reconcile(ctx, LaneHomepage)
	require.NoError(t, err)
	assert.True(t, changed)

	banners, err := svc.List(ctx, LaneHomepage)
	require.NoError(t, err)
	require.Len(t, banners, 3)
	assert.Equal(t, []string{"hero-banner-1", "showcase-banner-1", "promo-banner"},
		[]string{banners[0].ID, banners[1].ID, banners[2].ID})
	assert.Equal(t, domain.MediaGIF, banners[2].MediaType)
}

func TestBannerService_ReconcileRemoteFailureKeepsLocal(t *testing.T) {
	f, svc, remote := newBannerFixture(t)
	ctx := context.Background()

	_, err := svc.List(ctx, LaneHomepage)
	require.NoError(t, err)
	before := f.raw(t, cache.KeyHomepageBanners)

	remote.err = errors.New("connection refused")
	changed, err := svc.Reconcile(ctx, LaneHomepage)
	assert.ErrorIs(t, err, ErrRemoteUnavailable)
	assert.False(t, changed)
	assert.Equal(t, before, f.raw(t, cache.KeyHomepageBanners))
}

func TestBannerService_ProtectedSlotDeletion(t *testing.T) {
	f, svc, _ := newBannerFixture(t)
	ctx := context.Background()

	_, err := svc.List(ctx, LaneHomepage)
	require.NoError(t, err)
	before := f.raw(t, cache.KeyHomepageBanners)

	err = svc.Delete(ctx, LaneHomepage, "hero-banner-1")
	assert.ErrorIs(t, err, ErrProtectedBanner)
	assert.Equal(t, before, f.raw(t, cache.KeyHomepageBanners))
	assert.False(t, f.published(events.BannerUpdated))
	assert.Empty(t, f.queue.Ops())

	// unknown ids are a no-op
	require.NoError(t, svc.Delete(ctx, LaneHomepage, "nope"))
	assert.Equal(t, before, f.raw(t, cache.KeyHomepageBanners))

	require.NoError(t, svc.Delete(ctx, LaneHomepage, "showcase-banner-2"))
	banners, err := svc.List(ctx, LaneHomepage)
	require.NoError(t, err)
	assert.Len(t, banners, len(domain.DefaultHomepageBanners())-1)

	ops := f.queue.Ops()
	require.Len(t, ops, 1)
	assert.Equal(t, outbox.KindDelete, ops[0].Kind)
	assert.Equal(t, "showcase-banner-2", ops[0].ID)
}

func TestBannerService_ReplaceMediaClearsCrop(t *testing.T) {
	f, svc, _ := newBannerFixture(t)
	ctx := context.Background()

	cropped, err := svc.SetCrop(ctx, LaneHomepage, "hero-banner-2", domain.CropMetadata{Scale: 1.5, TX: 0.1, TY: -0.2})
	require.NoError(t, err)
	require.NotNil(t, cropped.CropMetadata)
	assert.InDelta(t, 16.0/9.0, cropped.CropMetadata.Ratio, 1e-9)
	assert.Equal(t, "/banner-hero-2.jpg", cropped.CropMetadata.Src)

	updated, err := svc.ReplaceMedia(ctx, LaneHomepage, "hero-banner-2", Media{URL: "https://cdn/x.mp4", MIME: "video/mp4", Size: 8 << 20})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/x.mp4", updated.CurrentImage)
	assert.Equal(t, domain.MediaVideo, updated.MediaType)
	assert.Nil(t, updated.CropMetadata)

	ev, ok := f.bus.Last(events.BannerUpdated)
	require.True(t, ok)
	assert.Equal(t, "media", ev.Detail["action"])

	ops := f.queue.Ops()
	require.Len(t, ops, 2)
	assert.Equal(t, CollectionBanners, ops[1].Collection)
	assert.Contains(t, string(ops[1].Data), `"cropMetadata":null`)
	assert.Contains(t, string(ops[1].Data), `"overlaySettings":null`)
}

func TestBannerService_ReconcileClearsCropDroppedRemotely(t *testing.T) {
	f, svc, remote := newBannerFixture(t)
	ctx := context.Background()

	_, err := svc.SetCrop(ctx, LaneHomepage, "hero-banner-2", domain.CropMetadata{Scale: 1.5, TX: 0.1, TY: -0.2})
	require.NoError(t, err)

	// another instance replaced the media and wrote its slot back
	remote.put(CollectionBanners, "hero-banner-2", `{"currentImage":"/new.mp4","mediaType":"video","cropMetadata":null,"overlaySettings":null}`)

	changed, err := svc.Reconcile(ctx, LaneHomepage)
	require.NoError(t, err)
	assert.True(t, changed)

	banners, err := svc.List(ctx, LaneHomepage)
	require.NoError(t, err)
	var slot *domain.Banner
	for i := range banners {
		if banners[i].ID == "hero-banner-2" {
			slot = &banners[i]
		}
	}
	require.NotNil(t, slot)
	assert.Equal(t, "/new.mp4", slot.CurrentImage)
	assert.Nil(t, slot.CropMetadata)
	assert.Contains(t, f.raw(t, cache.KeyHomepageBanners), `"cropMetadata":null`)

	changed, err = svc.Reconcile(ctx, LaneHomepage)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestBannerService_ReconcileMissingEqualsNull(t *testing.T) {
	_, svc, remote := newBannerFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureSeeded(ctx, LaneFooter))
	remote.put(CollectionFooterBanners, "footer-banner", `{"cropMetadata":null}`)

	changed, err := svc.Reconcile(ctx, LaneFooter)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestBannerService_ReplaceMediaValidatesBeforeWriting(t *testing.T) {
	f, svc, _ := newBannerFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		m    Media
		want error
	}{
		{"image too large", Media{URL: "u", MIME: "image/png", Size: media.MaxImageBytes + 1}, media.ErrMediaTooLarge},
		{"video too large", Media{URL: "u", MIME: "video/webm", Size: media.MaxVideoBytes + 1}, media.ErrMediaTooLarge},
		{"unsupported", Media{URL: "u", MIME: "application/pdf", Size: 10}, media.ErrUnsupportedMedia},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ReplaceMedia(ctx, LaneHomepage, "hero-banner-1", tt.m)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := svc.ReplaceMedia(ctx, LaneHomepage, "hero-banner-1", Media{MIME: "image/png"})
	assert.True(t, IsValidation(err))

	assert.False(t, f.mr.Exists(testPrefix+cache.KeyHomepageBanners))
	assert.Empty(t, f.queue.Ops())

	_, err = svc.ReplaceMedia(ctx, LaneFooter, "missing", Media{URL: "u", MIME: "image/png", Size: 1})
	assert.ErrorIs(t, err, ErrBannerNotFound)
}

func TestBannerService_OverlayAndCropValidation(t *testing.T) {
	_, svc, _ := newBannerFixture(t)
	ctx := context.Background()

	_, err := svc.SetOverlay(ctx, LaneFooter, "footer-banner", domain.OverlaySettings{
		Enabled:   true,
		Colors:    [3]string{"#000", "red", "#ffffff"},
		Opacities: [3]float64{0.2, 1.5, 0},
		Direction: "sideways",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 3)

	overlay := domain.OverlaySettings{
		Enabled:   true,
		Colors:    [3]string{"#000000", "#333333", "#ffffff"},
		Opacities: [3]float64{0.8, 0.4, 0},
		Direction: "to bottom right",
	}
	b, err := svc.SetOverlay(ctx, LaneFooter, "footer-banner", overlay)
	require.NoError(t, err)
	assert.Equal(t, &overlay, b.OverlaySettings)

	_, err = svc.SetCrop(ctx, LaneFooter, "footer-banner", domain.CropMetadata{Scale: 0, TX: 2})
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)
}

func TestBannerService_WatchReappliesRemoteChanges(t *testing.T) {
	f, svc, remote := newBannerFixture(t)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Watch(runCtx, LaneFooter) }()

	remote.put(CollectionFooterBanners, "footer-banner", `{"currentImage":"remote.jpg"}`)
	remote.changes <- domain.DocumentChange{Collection: CollectionFooterBanners, ID: "footer-banner", Op: "UPDATE"}

	require.Eventually(t, func() bool {
		banners, err := svc.List(context.Background(), LaneFooter)
		return err == nil && len(banners) == 1 && banners[0].CurrentImage == "remote.jpg"
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, f.published(events.FooterBannerUpdated))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestBannerService_WatchReconnectsAfterFeedLoss(t *testing.T) {
	_, svc, remote := newBannerFixture(t)
	remote.listenErr = errors.New("connection refused")

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Watch(runCtx, LaneFooter) }()

	require.Eventually(t, func() bool { return remote.listenCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	select {
	case remote.drop <- struct{}{}:
	case <-time.After(2 * time.Second):
		t.Fatal("feed was not open")
	}
	// written while the feed is down, no notification is delivered
	remote.put(CollectionFooterBanners, "footer-banner", `{"currentImage":"offline.jpg"}`)

	require.Eventually(t, func() bool {
		banners, err := svc.List(context.Background(), LaneFooter)
		return err == nil && remote.listenCount() >= 3 && banners[0].CurrentImage == "offline.jpg"
	}, 2*time.Second, 5*time.Millisecond)

	remote.put(CollectionFooterBanners, "footer-banner", `{"currentImage":"live.jpg"}`)
	remote.changes <- domain.DocumentChange{Collection: CollectionFooterBanners, ID: "footer-banner", Op: "UPDATE"}
	require.Eventually(t, func() bool {
		banners, err := svc.List(context.Background(), LaneFooter)
		return err == nil && banners[0].CurrentImage == "live.jpg"
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}
