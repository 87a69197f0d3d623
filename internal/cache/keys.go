// Package cache holds the typed repositories over the local key-value
// cache. Each repository owns its keys and serialization; nothing else
// in the service reads or writes cache keys by name.
package cache

import "storefront/internal/events"

// Local cache keys.
const (
	KeyTestProducts       = "gang-boyz-test-products"
	KeyProducts           = "gang-boyz-products"
	KeyStandaloneProducts = "gang-boyz-standalone-products"
	KeyRecommendations    = "gang-boyz-recommendations"
	KeyProductsBackup     = "gang-boyz-products-backup"
	KeyCatalogMigrated    = "gang-boyz-catalog-migrated"
	KeyHomepageBanners    = "gang-boyz-homepage-banners"
	KeyFooterBanner       = "gang-boyz-footer-banner"
	KeyCategories         = "gang-boyz-categories"
	KeyDemoBannerSettings = "demo-banner-settings"

	KeyBannerText        = "gang-boyz-banner-text"
	KeyBannerEmoji       = "gang-boyz-banner-emoji"
	KeyBannerColor       = "gang-boyz-banner-color"
	KeyBannerHeight      = "gang-boyz-banner-height"
	KeyBannerSpeed       = "gang-boyz-banner-speed"
	KeyBannerRepetitions = "gang-boyz-banner-repetitions"
	KeyBannerActive      = "gang-boyz-banner-active"
)

// KeySignals maps each key to the signal its views refresh on.
func KeySignals() map[string]events.Signal {
	return map[string]events.Signal{
		KeyTestProducts:       events.ForceProductsReload,
		KeyProducts:           events.ForceProductsReload,
		KeyStandaloneProducts: events.ForceProductsReload,
		KeyProductsBackup:     events.ForceProductsReload,
		KeyRecommendations:    events.RecommendationsUpdated,
		KeyHomepageBanners:    events.BannerUpdated,
		KeyFooterBanner:       events.FooterBannerUpdated,
		KeyCategories:         events.CategoriesUpdated,
		KeyDemoBannerSettings: events.DemoBannerSettingsUpdated,
		KeyBannerText:         events.BannerSettingsUpdated,
		KeyBannerEmoji:        events.BannerSettingsUpdated,
		KeyBannerColor:        events.BannerSettingsUpdated,
		KeyBannerHeight:       events.BannerSettingsUpdated,
		KeyBannerSpeed:        events.BannerSettingsUpdated,
		KeyBannerRepetitions:  events.BannerSettingsUpdated,
		KeyBannerActive:       events.BannerSettingsUpdated,
	}
}
