package domain

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

const (
	// RecommendationIDPrefix prefixes ids of standalone recommendations.
	RecommendationIDPrefix = "REC"

	// MaxRetainedRecommendations caps the stored list; oldest are evicted.
	MaxRetainedRecommendations = 30

	// MaxDisplayedRecommendations caps the rendered rail.
	MaxDisplayedRecommendations = 12
)

// Recommendation is a product-like record scoped to the recommendations rail
type Recommendation struct {
	ID                        ProductID      `json:"id"`
	Name                      string         `json:"name" validate:"required"`
	Price                     float64        `json:"price" validate:"gte=0"`
	OriginalPrice             *float64       `json:"originalPrice,omitempty"`
	Image                     string         `json:"image"`
	AvailableUnits            int            `json:"availableUnits"`
	AvailableSizes            []string       `json:"availableSizes,omitempty"`
	SizeQuantities            map[string]int `json:"sizeQuantities,omitempty"`
	RecommendationCategory    string         `json:"recommendationCategory,omitempty"`
	RecommendationSubcategory string         `json:"recommendationSubcategory,omitempty"`
	IsActive                  bool           `json:"isActive"`
	CreatedAt                 time.Time      `json:"createdAt,omitempty"`
}

// IsTargeted reports whether the recommendation carries category targeting.
func (r *Recommendation) IsTargeted() bool {
	return r.RecommendationCategory != "" || r.RecommendationSubcategory != ""
}

// NewRecommendationID builds PREFIX-<base36 millis>-<base36 random>, upper-cased.
func NewRecommendationID(prefix string, now time.Time, rnd *rand.Rand) ProductID {
	var suffix uint64
	if rnd != nil {
		suffix = rnd.Uint64N(36 * 36 * 36 * 36 * 36 * 36)
	} else {
		suffix = rand.Uint64N(36 * 36 * 36 * 36 * 36 * 36)
	}
	id := prefix + "-" + strconv.FormatInt(now.UnixMilli(), 36) + "-" + strconv.FormatUint(suffix, 36)
	return ProductID(strings.ToUpper(id))
}

// CreatedAtFromID parses the embedded base36 timestamp back to milliseconds.
// Only generated REC-<ts>-<rand> ids carry one; admin-chosen ids such as
// CAM-AZUL-10 report false.
func CreatedAtFromID(id ProductID) (int64, bool) {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(string(id))), "-")
	if len(parts) != 3 || parts[0] != RecommendationIDPrefix {
		return 0, false
	}
	ms, err := strconv.ParseInt(strings.ToLower(parts[1]), 36, 64)
	if err != nil || ms <= 0 {
		return 0, false
	}
	return ms, true
}

// ToProduct converts the record to the catalog shape used by the resolver.
func (r *Recommendation) ToProduct() *Product {
	sizes := append([]string(nil), r.AvailableSizes...)
	var sizeStock map[string]int
	if len(r.SizeQuantities) > 0 {
		sizeStock = make(map[string]int, len(r.SizeQuantities))
		for k, v := range r.SizeQuantities {
			sizeStock[k] = v
		}
	}
	return &Product{
		ID:                      r.ID,
		Name:                    r.Name,
		Image:                   r.Image,
		Category:                r.RecommendationCategory,
		Subcategory:             r.RecommendationSubcategory,
		Price:                   r.Price,
		OriginalPrice:           r.OriginalPrice,
		Sizes:                   sizes,
		SizeStock:               sizeStock,
		Stock:                   r.AvailableUnits,
		DestacarEmRecomendacoes: true,
		CreatedAt:               r.CreatedAt,
	}
}

// RecommendationFromProduct mirrors a flagged catalog product onto the rail.
func RecommendationFromProduct(p *Product) Recommendation {
	return Recommendation{
		ID:                        p.ID,
		Name:                      p.Name,
		Price:                     p.Price,
		OriginalPrice:             p.OriginalPrice,
		Image:                     p.Image,
		AvailableUnits:            p.TotalStock(),
		AvailableSizes:            append([]string(nil), p.Sizes...),
		SizeQuantities:            p.SizeStock,
		RecommendationCategory:    p.Category,
		RecommendationSubcategory: p.Subcategory,
		IsActive:                  true,
		CreatedAt:                 p.CreatedAt,
	}
}
