package model

import (
	"encoding/json"
)

// PriceSource tells which input produced a PriceInfo.
type PriceSource string

const (
	PriceSourceCatalog PriceSource = "catalog"
	PriceSourceCSV     PriceSource = "csv"
	PriceSourceResale  PriceSource = "resale"
	PriceSourceUnknown PriceSource = "unknown"
)

// PriceInfo is the canonical price of an asset in robux.
type PriceInfo struct {
	Value  int64       `json:"value"`
	Source PriceSource `json:"source"`
}

// MissingPrice returns the canonical "price missing" value.
func MissingPrice() PriceInfo {
	return PriceInfo{Value: 0, Source: PriceSourceUnknown}
}

// Missing reports whether p is the canonical "price missing" value.
func (p PriceInfo) Missing() bool {
	return p.Value == 0 && p.Source == PriceSourceUnknown
}

// AssetRef identifies an asset found in a user's inventory.
type AssetRef struct {
	AssetID     int64  `json:"assetId"`
	Name        string `json:"name"`
	AssetTypeID int    `json:"assetTypeId"`
}

// InventoryItem is a priced inventory entry.
type InventoryItem struct {
	AssetRef
	PriceInfo         PriceInfo `json:"priceInfo"`
	Collectible       bool      `json:"collectible"`
	CollectibleItemID string    `json:"collectibleItemId,omitempty"`
	Serial            *int64    `json:"serial,omitempty"`
	Offsale           bool      `json:"offsale,omitempty"`
}

// InventoryEntry is a raw inventory row before pricing.
type InventoryEntry struct {
	AssetRef
	CollectibleItemID string
	Serial            *int64
}

// UserInventory is a user's priced inventory grouped by category.
// Categories lists the category names in configured order.
type UserInventory struct {
	UserID     int64                      `json:"userId"`
	Categories []string                   `json:"categories"`
	ByCategory map[string][]InventoryItem `json:"byCategory"`
}

// Items returns every item in category order.
func (u *UserInventory) Items() []InventoryItem {
	var items []InventoryItem
	for _, name := range u.Categories {
		items = append(items, u.ByCategory[name]...)
	}
	return items
}

// TotalValue sums the price of every item.
func (u *UserInventory) TotalValue() int64 {
	var total int64
	for _, it := range u.Items() {
		total += it.PriceInfo.Value
	}
	return total
}

// CollectibleRAP pairs a collectible with its recent average price.
type CollectibleRAP struct {
	Asset InventoryItem `json:"asset"`
	RAP   int64         `json:"rap"`
}

// CatalogRow is one row of the catalog items/details response.
// Price fields stay raw because the upstream sends numbers, strings or null.
type CatalogRow struct {
	ID                 int64           `json:"id"`
	ItemType           string          `json:"itemType,omitempty"`
	Name               string          `json:"name"`
	AssetType          int             `json:"assetType,omitempty"`
	Price              json.RawMessage `json:"price,omitempty"`
	LowestPrice        json.RawMessage `json:"lowestPrice,omitempty"`
	LowestResalePrice  json.RawMessage `json:"lowestResalePrice,omitempty"`
	HighestResalePrice json.RawMessage `json:"highestResalePrice,omitempty"`
	PriceStatus        string          `json:"priceStatus,omitempty"`
	ItemRestrictions   []string        `json:"itemRestrictions"`
	CollectibleItemID  string          `json:"collectibleItemId,omitempty"`
}

// CatalogDetail is a normalised catalog row.
type CatalogDetail struct {
	Row       CatalogRow
	Name      string
	PriceInfo PriceInfo
}
