// Package pricing turns catalog rows, a seeded price dump and resale data
// into one canonical price per asset.
package pricing

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"rbx-valuation-api/internal/model"
)

const (
	statusFree     = "Free"
	restrictionTag = "Collectible"
)

// currency markers stripped before parsing, longest first so "r$" wins over "$".
var currencyMarkers = []string{"robux", "руб", "rbx", "r$", "₽", "$"}

var thousandsDots = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)

// ParsePriceString parses a display price such as "R$ 1,250" or "1.250 руб".
func ParsePriceString(s string) (int64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, m := range currencyMarkers {
		s = strings.ReplaceAll(s, m, "")
	}
	s = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "", ",", "", "\t", "").Replace(s)
	if s == "" {
		return 0, false
	}
	if thousandsDots.MatchString(s) {
		s = strings.ReplaceAll(s, ".", "")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

// ParsePrice parses a raw JSON price: a number, a string or null.
func ParsePrice(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		return ParsePriceString(s)
	}

	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, false
	}
	return int64(f), true
}

// FromCatalog picks the price of a catalog row: price, then lowestPrice,
// lowestResalePrice, highestResalePrice. A Free item costs 0. Non-positive
// candidates count as absent.
func FromCatalog(row model.CatalogRow) (model.PriceInfo, bool) {
	if strings.EqualFold(row.PriceStatus, statusFree) {
		return model.PriceInfo{Value: 0, Source: model.PriceSourceCatalog}, true
	}
	for _, raw := range []json.RawMessage{row.Price, row.LowestPrice, row.LowestResalePrice, row.HighestResalePrice} {
		if v, ok := ParsePrice(raw); ok && v > 0 {
			return model.PriceInfo{Value: v, Source: model.PriceSourceCatalog}, true
		}
	}
	return model.MissingPrice(), false
}

// IsCollectible reports whether the row carries the exact Collectible restriction.
func IsCollectible(row model.CatalogRow) bool {
	for _, r := range row.ItemRestrictions {
		if r == restrictionTag {
			return true
		}
	}
	return false
}

// IsOffsale reports whether the item has no positive on-sale price and is not Free.
func IsOffsale(row model.CatalogRow) bool {
	if strings.EqualFold(row.PriceStatus, statusFree) {
		return false
	}
	v, ok := ParsePrice(row.Price)
	return !ok || v <= 0
}

// Detail normalises a catalog row.
func Detail(row model.CatalogRow) model.CatalogDetail {
	price, _ := FromCatalog(row)
	return model.CatalogDetail{
		Row:       row,
		Name:      strings.TrimSpace(row.Name),
		PriceInfo: price,
	}
}
