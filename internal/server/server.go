package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/events"
	"storefront/internal/kvstore"
	"storefront/internal/media"
	"storefront/internal/metrics"
	custommiddleware "storefront/internal/middleware"
	"storefront/internal/outbox"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	db     database.Service
	redis  *redis.Client

	bus        *events.Bus
	outbox     *outbox.Outbox
	bridge     *events.Bridge
	catalog    service.CatalogService
	banners    service.BannerService
	categories service.CategoryService
}

func NewServer(cfg *config.Config, logger *zap.Logger, db database.Service, rdb *redis.Client) (*Server, error) {
	// Local cache and change feed
	store := kvstore.NewRedisStore(rdb, kvstore.RedisConfig{
		Prefix:     cfg.Cache.Prefix,
		QuotaBytes: cfg.Cache.QuotaBytes,
	}, logger)
	bus := events.NewBus(logger)

	// Remote store
	documents := repository.NewDocumentRepository(db.DB(), db.DSN(), logger)
	categoryRepo := repository.NewCategoryRepository(db.DB())
	box := outbox.New(documents, outbox.Config{
		Timeout:         cfg.Sync.RemoteTimeout,
		MaxElapsed:      cfg.Sync.MaxElapsed,
		InitialInterval: cfg.Sync.InitialInterval,
	}, logger)

	// Initialize services
	catalogRepo := cache.NewCatalogRepository(store, logger)
	recRepo := cache.NewRecommendationRepository(store, logger)
	resolver := service.NewCatalogResolver(catalogRepo, recRepo, logger)
	catalog := service.NewCatalogService(catalogRepo, resolver, bus, box, logger)
	recs := service.NewRecommendationService(recRepo, catalog, bus, box, logger)
	banners := service.NewBannerService(
		func(key string) cache.BannerRepository { return cache.NewBannerRepository(store, key, logger) },
		documents, bus, box, cfg.Sync.RemoteTimeout, logger, service.DefaultLanes()...,
	)
	strips := service.NewStripService(cache.NewStripRepository(store, logger), bus, box, logger)
	categories := service.NewCategoryService(categoryRepo, cache.NewCategoryCache(store, logger), bus, cfg.Sync.RemoteTimeout, logger)
	tokens := service.NewTokenService(cfg.JWT.Secret)

	uploader, err := newUploader(cfg.Media, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics.MustRegister(registry)

	// Create router
	router := chi.NewRouter()
	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(metrics.Middleware)
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.Server.IsDevelopment()))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := db.Health()
		status := http.StatusOK
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			health["redis"] = "down"
			status = http.StatusServiceUnavailable
		} else {
			health["redis"] = "up"
		}
		if health["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
		custommiddleware.RespondWithJSON(w, status, health)
	})
	router.Handle("/metrics", metrics.Handler(registry))

	if cfg.Media.CloudinaryURL == "" && strings.HasPrefix(cfg.Media.PublicBaseURL, "/") {
		base := strings.TrimRight(cfg.Media.PublicBaseURL, "/")
		router.Handle(base+"/*", http.StripPrefix(base+"/", http.FileServer(http.Dir(cfg.Media.UploadDir))))
	}

	admin := transport.AdminChain(
		custommiddleware.AuthMiddleware(tokens, logger),
		custommiddleware.RequireAdmin(logger),
	)
	uploadLimit := custommiddleware.RateLimitMiddleware(rdb, custommiddleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.Uploads,
		Window:            cfg.RateLimit.Window,
		KeyPrefix:         cfg.Cache.Prefix + "ratelimit:upload",
	}, logger)

	// Register routes
	transport.NewProductHandler(catalog, box, logger).RegisterRoutes(router, admin)
	transport.NewRecommendationHandler(recs, box, logger).RegisterRoutes(router, admin)
	transport.NewBannerHandler(banners, strips, box, logger).RegisterRoutes(router, admin)
	transport.NewCategoryHandler(categories, logger).RegisterRoutes(router, admin)
	transport.NewContentHandler(documents, bus, cfg.Sync.RemoteTimeout, logger).RegisterRoutes(router, admin)
	transport.NewUploadHandler(uploader, logger).RegisterRoutes(router, admin, uploadLimit)
	transport.NewEventHandler(bus, logger).RegisterRoutes(router)
	transport.NewSyncHandler(box).RegisterRoutes(router, admin)

	server := &Server{
		Server: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:           router,
			IdleTimeout:       time.Minute,
			ReadHeaderTimeout: 10 * time.Second,
			// no WriteTimeout: the event stream is long-lived
		},
		config:     cfg,
		logger:     logger,
		db:         db,
		redis:      rdb,
		bus:        bus,
		outbox:     box,
		bridge:     events.NewBridge(store, bus, cache.KeySignals(), logger),
		catalog:    catalog,
		banners:    banners,
		categories: categories,
	}

	return server, nil
}

func newUploader(cfg config.MediaConfig, logger *zap.Logger) (media.Uploader, error) {
	if cfg.CloudinaryURL != "" {
		return media.NewCloudinaryUploader(cfg.CloudinaryURL, "storefront", logger)
	}
	return media.NewLocalUploader(cfg.UploadDir, cfg.PublicBaseURL, logger)
}

// Prepare runs the one-shot startup work: legacy catalog sources are
// folded, every banner lane is seeded and the category cache is
// refreshed. A failed category refresh leaves the cached copy in place.
func (s *Server) Prepare(ctx context.Context) error {
	folded, err := s.catalog.FoldLegacySources(ctx)
	if err != nil {
		return fmt.Errorf("failed to fold legacy catalog sources: %w", err)
	}
	if folded > 0 {
		s.logger.Info("Legacy catalog sources folded", zap.Int("products", folded))
	}

	for _, lane := range s.banners.Lanes() {
		if err := s.banners.EnsureSeeded(ctx, lane); err != nil {
			return fmt.Errorf("failed to seed %s banners: %w", lane, err)
		}
	}

	if _, err := s.categories.Refresh(ctx); err != nil {
		s.logger.Warn("Category refresh skipped", zap.Error(err))
	}
	return nil
}

// RunWorkers runs the outbox, the cache change bridge and one remote
// watcher per banner lane until ctx is cancelled.
func (s *Server) RunWorkers(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ignoreCanceled(s.outbox.Run(ctx)) })
	g.Go(func() error { return ignoreCanceled(s.bridge.Run(ctx)) })
	for _, lane := range s.banners.Lanes() {
		g.Go(func() error {
			if err := s.banners.Watch(ctx, lane); err != nil && !errors.Is(err, context.Canceled) {
				// the storefront keeps serving the cache without live updates
				s.logger.Error("Banner watcher stopped", zap.String("lane", lane), zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if err := s.redis.Close(); err != nil {
		s.logger.Error("Failed to close redis client", zap.Error(err))
	}

	// Close database connection
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
