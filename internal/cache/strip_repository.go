package cache

import (
	"context"
	"fmt"
	"strconv"

	"storefront/internal/domain"
	"storefront/internal/kvstore"

	"go.uber.org/zap"
)

// Strip families.
const (
	StripFamilyHome = "home"
	StripFamilyDemo = "demo"
)

// StripRepository defines access to the per-family announcement strips
type StripRepository interface {
	Get(ctx context.Context, family string) (domain.StripConfig, bool, error)
	Save(ctx context.Context, cfg domain.StripConfig) error
}

type stripRepository struct {
	store  kvstore.Store
	logger *zap.Logger
}

// NewStripRepository creates a new instance of StripRepository
func NewStripRepository(store kvstore.Store, logger *zap.Logger) StripRepository {
	return &stripRepository{store: store, logger: logger}
}

// Get returns the stored config merged over defaults. The home family
// keeps one plain-text key per field; other families store one JSON object.
func (r *stripRepository) Get(ctx context.Context, family string) (domain.StripConfig, bool, error) {
	cfg := domain.DefaultStrip(family)
	if family != StripFamilyHome {
		ok, err := readJSON(ctx, r.store, r.logger, stripKey(family), &cfg)
		cfg.Family = family
		return cfg, ok, err
	}

	found := false
	read := func(key string) (string, error) {
		raw, ok, err := r.store.Get(ctx, key)
		if err != nil || !ok {
			return "", err
		}
		found = true
		return string(raw), nil
	}

	var err error
	var v string
	if v, err = read(KeyBannerText); err != nil {
		return cfg, false, err
	} else if v != "" {
		cfg.Text = v
	}
	if v, err = read(KeyBannerEmoji); err != nil {
		return cfg, false, err
	} else if v != "" {
		cfg.Emoji = v
	}
	if v, err = read(KeyBannerColor); err != nil {
		return cfg, false, err
	} else if v != "" {
		cfg.BackgroundColor = v
	}
	for key, dst := range map[string]*int{
		KeyBannerHeight:      &cfg.Height,
		KeyBannerSpeed:       &cfg.Speed,
		KeyBannerRepetitions: &cfg.Repetitions,
	} {
		if v, err = read(key); err != nil {
			return cfg, false, err
		}
		if n, convErr := strconv.Atoi(v); convErr == nil {
			*dst = n
		}
	}
	if v, err = read(KeyBannerActive); err != nil {
		return cfg, false, err
	}
	if b, convErr := strconv.ParseBool(v); convErr == nil {
		cfg.Active = b
	}

	return cfg, found, nil
}

func (r *stripRepository) Save(ctx context.Context, cfg domain.StripConfig) error {
	if cfg.Family != StripFamilyHome {
		return writeJSON(ctx, r.store, stripKey(cfg.Family), cfg)
	}

	fields := []struct {
		key   string
		value string
	}{
		{KeyBannerText, cfg.Text},
		{KeyBannerEmoji, cfg.Emoji},
		{KeyBannerColor, cfg.BackgroundColor},
		{KeyBannerHeight, strconv.Itoa(cfg.Height)},
		{KeyBannerSpeed, strconv.Itoa(cfg.Speed)},
		{KeyBannerRepetitions, strconv.Itoa(cfg.Repetitions)},
		{KeyBannerActive, strconv.FormatBool(cfg.Active)},
	}
	for _, f := range fields {
		if err := r.store.Set(ctx, f.key, []byte(f.value)); err != nil {
			return fmt.Errorf("failed to save strip field %s: %w", f.key, err)
		}
	}
	return nil
}

func stripKey(family string) string {
	if family == StripFamilyDemo {
		return KeyDemoBannerSettings
	}
	return family + "-banner-settings"
}
