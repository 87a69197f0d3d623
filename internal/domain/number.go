package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// looseNumber decodes a JSON number or a numeric string. Older admin
// builds stored prices as form strings, some with a decimal comma.
type looseNumber float64

func (n *looseNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if data[0] != '"' {
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		*n = looseNumber(f)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return fmt.Errorf("not a number: %q", s)
	}
	*n = looseNumber(f)
	return nil
}

func (n looseNumber) int() int {
	return int(math.Round(float64(n)))
}

func looseFloatPtr(n *looseNumber) *float64 {
	if n == nil {
		return nil
	}
	f := float64(*n)
	return &f
}

func loosePtr(f *float64) *looseNumber {
	if f == nil {
		return nil
	}
	n := looseNumber(*f)
	return &n
}

// UnmarshalJSON accepts numeric strings for price, originalPrice and stock.
func (p *Product) UnmarshalJSON(data []byte) error {
	type plain Product
	aux := struct {
		*plain
		Price         looseNumber  `json:"price"`
		OriginalPrice *looseNumber `json:"originalPrice"`
		Stock         looseNumber  `json:"stock"`
	}{plain: (*plain)(p)}
	aux.Price = looseNumber(p.Price)
	aux.OriginalPrice = loosePtr(p.OriginalPrice)
	aux.Stock = looseNumber(p.Stock)

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.Price = float64(aux.Price)
	p.OriginalPrice = looseFloatPtr(aux.OriginalPrice)
	p.Stock = aux.Stock.int()
	return nil
}

// UnmarshalJSON accepts numeric strings for price, originalPrice and
// availableUnits.
func (r *Recommendation) UnmarshalJSON(data []byte) error {
	type plain Recommendation
	aux := struct {
		*plain
		Price          looseNumber  `json:"price"`
		OriginalPrice  *looseNumber `json:"originalPrice"`
		AvailableUnits looseNumber  `json:"availableUnits"`
	}{plain: (*plain)(r)}
	aux.Price = looseNumber(r.Price)
	aux.OriginalPrice = loosePtr(r.OriginalPrice)
	aux.AvailableUnits = looseNumber(r.AvailableUnits)

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Price = float64(aux.Price)
	r.OriginalPrice = looseFloatPtr(aux.OriginalPrice)
	r.AvailableUnits = aux.AvailableUnits.int()
	return nil
}
