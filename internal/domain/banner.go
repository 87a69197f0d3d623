package domain

import (
	"regexp"
	"strings"
	"time"
)

// MediaType is the kind of creative a banner slot displays
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaGIF   MediaType = "gif"
)

// CropMetadata is a normalized affine transform applied at render time.
type CropMetadata struct {
	Src   string  `json:"src"`
	Ratio float64 `json:"ratio"`
	Scale float64 `json:"scale"`
	TX    float64 `json:"tx"`
	TY    float64 `json:"ty"`
}

// GradientDirection is one of the eight overlay directions.
type GradientDirection string

var gradientDirections = map[GradientDirection]bool{
	"to top": true, "to bottom": true, "to left": true, "to right": true,
	"to top left": true, "to top right": true, "to bottom left": true, "to bottom right": true,
}

// Valid reports whether d is one of the eight supported directions.
func (d GradientDirection) Valid() bool {
	return gradientDirections[d]
}

// OverlaySettings describes an optional three-stop gradient over the media.
type OverlaySettings struct {
	Enabled   bool              `json:"enabled"`
	Colors    [3]string         `json:"colors"`
	Opacities [3]float64        `json:"opacities"`
	Direction GradientDirection `json:"direction"`
}

var hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// IsHexColor reports whether s is #rgb or #rrggbb.
func IsHexColor(s string) bool {
	return hexColor.MatchString(s)
}

// Banner is a named creative slot bound to a fixed position
type Banner struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Position        string           `json:"position"`
	CurrentImage    string           `json:"currentImage"`
	MediaType       MediaType        `json:"mediaType"`
	AspectRatio     float64          `json:"aspectRatio,omitempty"`
	CropMetadata    *CropMetadata    `json:"cropMetadata,omitempty"`
	OverlaySettings *OverlaySettings `json:"overlaySettings,omitempty"`
	UpdatedAt       time.Time        `json:"updatedAt,omitempty"`
}

// HeroBannerPrefix marks slots that can never be deleted.
const HeroBannerPrefix = "hero-banner-"

// IsProtectedBanner reports whether a slot id is a protected hero slot.
func IsProtectedBanner(id string) bool {
	return strings.HasPrefix(id, HeroBannerPrefix)
}

// DefaultHomepageBanners are seeded when the local cache holds no banners.
func DefaultHomepageBanners() []Banner {
	return []Banner{
		{ID: "hero-banner-1", Name: "Hero 1", Position: "hero", CurrentImage: "/banner-hero.jpg", MediaType: MediaImage, AspectRatio: 16.0 / 9.0},
		{ID: "hero-banner-2", Name: "Hero 2", Position: "hero", CurrentImage: "/banner-hero-2.jpg", MediaType: MediaImage, AspectRatio: 16.0 / 9.0},
		{ID: "showcase-banner-1", Name: "Vitrine 1", Position: "showcase", CurrentImage: "/banner-showcase-1.jpg", MediaType: MediaImage, AspectRatio: 4.0 / 5.0},
		{ID: "showcase-banner-2", Name: "Vitrine 2", Position: "showcase", CurrentImage: "/banner-showcase-2.jpg", MediaType: MediaImage, AspectRatio: 4.0 / 5.0},
	}
}

// DefaultFooterBanners are seeded for the footer lane.
func DefaultFooterBanners() []Banner {
	return []Banner{
		{ID: "footer-banner", Name: "Footer", Position: "footer", CurrentImage: "/banner-footer.jpg", MediaType: MediaImage, AspectRatio: 21.0 / 9.0},
	}
}
