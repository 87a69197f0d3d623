package events

// Signal names a refresh broadcast that mounted views listen for.
type Signal string

const (
	TestProductCreated        Signal = "testProductCreated"
	ForceProductsReload       Signal = "forceProductsReload"
	RecommendationsUpdated    Signal = "recommendationsUpdated"
	BannerUpdated             Signal = "bannerUpdated"
	FooterBannerUpdated       Signal = "footerBannerUpdated"
	BannerSettingsUpdated     Signal = "bannerSettingsUpdated"
	DemoBannerSettingsUpdated Signal = "demoBannerSettingsUpdated"
	ShowcaseBannersUpdated    Signal = "showcaseBannersUpdated"
	DestaquesConfigUpdated    Signal = "destaquesConfigUpdated"
	EditableContentsUpdated   Signal = "editableContentsUpdated"
	CategoriesUpdated         Signal = "categoriesUpdated"
)

// AllSignals lists every known signal.
var AllSignals = []Signal{
	TestProductCreated,
	ForceProductsReload,
	RecommendationsUpdated,
	BannerUpdated,
	FooterBannerUpdated,
	BannerSettingsUpdated,
	DemoBannerSettingsUpdated,
	ShowcaseBannersUpdated,
	DestaquesConfigUpdated,
	EditableContentsUpdated,
	CategoriesUpdated,
}

// ParseSignal reports whether s is a known signal name.
func ParseSignal(s string) (Signal, bool) {
	for _, sig := range AllSignals {
		if string(sig) == s {
			return sig, true
		}
	}
	return "", false
}
