package search

import (
	"math"
	"strconv"
	"strings"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/pkg/utils"
)

// PriceField is the metadata field holding an item's price.
const PriceField = "price"

// NotAvailable is displayed in place of a missing price.
const NotAvailable = "N/A"

// ParsePrice coerces a metadata value to a price. Numbers and numeric strings
// (thousands separators allowed) parse; anything else, and any non-finite result, is nil.
func ParsePrice(v models.Value) *float64 {
	var f float64
	switch v.Kind {
	case models.KindNumber:
		f = v.Num
	case models.KindString:
		s := strings.TrimSpace(strings.ReplaceAll(v.Str, ",", ""))
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// FormatPrice renders a price with the currency symbol: whole amounts without
// decimals ("₹120"), others rounded to two places ("₹99.5"). Nil renders as N/A.
func FormatPrice(price *float64, currency string) string {
	if price == nil {
		return NotAvailable
	}
	p := *price
	if p == math.Trunc(p) {
		return currency + strconv.FormatFloat(p, 'f', 0, 64)
	}
	return currency + strconv.FormatFloat(utils.Round(p, 2), 'f', -1, 64)
}
