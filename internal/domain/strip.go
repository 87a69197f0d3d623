package domain

// StripConfig is the announcement strip shown on one page family.
// There is exactly one per family; it is only ever upserted.
type StripConfig struct {
	Family          string `json:"family"`
	Text            string `json:"text" validate:"max=280"`
	Emoji           string `json:"emoji"`
	BackgroundColor string `json:"backgroundColor"`
	Height          int    `json:"height" validate:"gte=0,lte=400"`
	Speed           int    `json:"speed" validate:"gte=0,lte=600"`
	Repetitions     int    `json:"repetitions" validate:"gte=1,lte=50"`
	Active          bool   `json:"active"`
}

// DefaultStrip is used when a family has never been configured.
func DefaultStrip(family string) StripConfig {
	return StripConfig{
		Family:          family,
		Text:            "FRETE GRÁTIS ACIMA DE R$ 199",
		Emoji:           "🔥",
		BackgroundColor: "#000000",
		Height:          40,
		Speed:           30,
		Repetitions:     8,
		Active:          true,
	}
}
