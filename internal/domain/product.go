package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ProductID is a catalog identifier. Historical records were written with
// numeric ids, so it decodes from either a JSON string or a JSON number.
type ProductID string

// UnmarshalJSON accepts "42" and 42 alike.
func (id *ProductID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ProductID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("product id must be a string or number: %w", err)
	}
	*id = ProductID(n.String())
	return nil
}

// Canonical is the trimmed, upper-cased form used for writes and uniqueness.
func (id ProductID) Canonical() ProductID {
	return ProductID(strings.ToUpper(strings.TrimSpace(string(id))))
}

func (id ProductID) String() string {
	return string(id)
}

// Matches reports whether two ids refer to the same product under the
// lookup rules: exact, case-insensitive, then numeric coercion.
func (id ProductID) Matches(other ProductID) bool {
	a := strings.TrimSpace(string(id))
	b := strings.TrimSpace(string(other))
	if a == "" || b == "" {
		return false
	}
	if a == b || strings.EqualFold(a, b) {
		return true
	}
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	return errA == nil && errB == nil && fa == fb
}

// IDFromAny normalizes a lookup key supplied as a string or a number.
func IDFromAny(v any) ProductID {
	switch t := v.(type) {
	case ProductID:
		return t
	case string:
		return ProductID(t)
	case json.Number:
		return ProductID(t.String())
	case int:
		return ProductID(strconv.Itoa(t))
	case int64:
		return ProductID(strconv.FormatInt(t, 10))
	case float64:
		return ProductID(strconv.FormatFloat(t, 'f', -1, 64))
	case fmt.Stringer:
		return ProductID(t.String())
	default:
		return ProductID(fmt.Sprint(v))
	}
}

// LabelType is the optional display tag of a product
type LabelType string

const (
	LabelPromocao      LabelType = "promocao"
	LabelEsgotado      LabelType = "esgotado"
	LabelPersonalizada LabelType = "personalizada"
)

// Valid reports whether the label type is one of the known tags or empty.
func (l LabelType) Valid() bool {
	switch l {
	case "", LabelPromocao, LabelEsgotado, LabelPersonalizada:
		return true
	}
	return false
}

// HighlightView names a storefront view that products can be flagged into.
type HighlightView string

const (
	ViewRecommendations HighlightView = "recomendacoes"
	ViewEmAlta          HighlightView = "em-alta"
	ViewOfertas         HighlightView = "ofertas"
	ViewLancamentos     HighlightView = "lancamentos"
)

// ParseHighlightView returns the view for a path segment.
func ParseHighlightView(s string) (HighlightView, bool) {
	switch HighlightView(strings.ToLower(s)) {
	case ViewRecommendations, "recommendations":
		return ViewRecommendations, true
	case ViewEmAlta:
		return ViewEmAlta, true
	case ViewOfertas:
		return ViewOfertas, true
	case ViewLancamentos:
		return ViewLancamentos, true
	}
	return "", false
}

// Product represents a catalog item as the admin console stores it
type Product struct {
	ID            ProductID      `json:"id" validate:"required"`
	Name          string         `json:"name" validate:"required"`
	Color         string         `json:"color" validate:"required"`
	Image         string         `json:"image"`
	Category      string         `json:"category,omitempty"`
	Subcategory   string         `json:"subcategory,omitempty"`
	Price         float64        `json:"price" validate:"gt=0"`
	OriginalPrice *float64       `json:"originalPrice,omitempty"`
	Sizes         []string       `json:"sizes,omitempty"`
	SizeStock     map[string]int `json:"sizeStock,omitempty"`
	Stock         int            `json:"stock"`
	Label         string         `json:"label,omitempty"`
	LabelType     LabelType      `json:"labelType,omitempty"`

	DestacarEmRecomendacoes bool `json:"destacarEmRecomendacoes,omitempty"`
	DestacarEmAlta          bool `json:"destacarEmAlta,omitempty"`
	DestacarEmOfertas       bool `json:"destacarEmOfertas,omitempty"`
	DestacarLancamentos     bool `json:"destacarLancamentos,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// IsPromotion reports whether the original price implies a discount.
func (p *Product) IsPromotion() bool {
	return p.OriginalPrice != nil && *p.OriginalPrice > p.Price
}

// DiscountPercent returns the rounded discount, or 0 when not on promotion.
func (p *Product) DiscountPercent() int {
	if !p.IsPromotion() {
		return 0
	}
	return DiscountPercent(p.Price, *p.OriginalPrice)
}

// DiscountPercent computes round((original-price)/original*100).
func DiscountPercent(price, original float64) int {
	if original <= 0 || original <= price {
		return 0
	}
	o := decimal.NewFromFloat(original)
	pct := o.Sub(decimal.NewFromFloat(price)).Div(o).Mul(decimal.NewFromInt(100)).Round(0)
	return int(pct.IntPart())
}

// TotalStock sums per-size quantities when sizes are tracked.
func (p *Product) TotalStock() int {
	if len(p.SizeStock) == 0 {
		return p.Stock
	}
	return SumSizeStock(p.SizeStock)
}

// SumSizeStock adds up non-negative quantities.
func SumSizeStock(sizeStock map[string]int) int {
	total := 0
	for _, qty := range sizeStock {
		if qty > 0 {
			total += qty
		}
	}
	return total
}

// HighlightedIn reports whether the product is flagged into the given view.
func (p *Product) HighlightedIn(view HighlightView) bool {
	switch view {
	case ViewRecommendations:
		return p.DestacarEmRecomendacoes
	case ViewEmAlta:
		return p.DestacarEmAlta
	case ViewOfertas:
		return p.DestacarEmOfertas
	case ViewLancamentos:
		return p.DestacarLancamentos
	}
	return false
}

var sizeOrder = map[string]int{"PP": 0, "P": 1, "M": 2, "G": 3, "GG": 4, "XG": 5, "XGG": 6}

// SortSizes orders size labels PP..XGG first, then the rest lexicographically.
func SortSizes(sizes []string) {
	sort.SliceStable(sizes, func(i, j int) bool {
		oi, iKnown := sizeOrder[strings.ToUpper(sizes[i])]
		oj, jKnown := sizeOrder[strings.ToUpper(sizes[j])]
		switch {
		case iKnown && jKnown:
			return oi < oj
		case iKnown:
			return true
		case jKnown:
			return false
		}
		return sizes[i] < sizes[j]
	})
}

// AvailableSizes lists the sizes whose selection flag is set,
// regardless of their quantity.
func AvailableSizes(selection map[string]bool) []string {
	sizes := make([]string, 0, len(selection))
	for size, selected := range selection {
		if selected {
			sizes = append(sizes, size)
		}
	}
	SortSizes(sizes)
	return sizes
}
