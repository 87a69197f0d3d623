package events

import (
	"context"
	"fmt"

	"storefront/internal/kvstore"

	"go.uber.org/zap"
)

// Bridge republishes cache writes made by other instances as local
// signals, the way a browser storage event reaches other tabs.
type Bridge struct {
	store   kvstore.Store
	bus     *Bus
	signals map[string]Signal
	logger  *zap.Logger
}

// NewBridge maps cache keys to the signal their views listen for
func NewBridge(store kvstore.Store, bus *Bus, signals map[string]Signal, logger *zap.Logger) *Bridge {
	return &Bridge{
		store:   store,
		bus:     bus,
		signals: signals,
		logger:  logger,
	}
}

// Run forwards changes until ctx is cancelled
func (b *Bridge) Run(ctx context.Context) error {
	changes, err := b.store.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch local cache: %w", err)
	}

	b.logger.Info("Cache change bridge started", zap.Int("keys", len(b.signals)))

	for change := range changes {
		signal, ok := b.signals[change.Key]
		if !ok {
			continue
		}
		b.bus.Publish(signal, map[string]any{
			"key":    change.Key,
			"origin": change.Origin,
			"remote": true,
		})
	}

	b.logger.Info("Cache change bridge stopped")
	return nil
}
