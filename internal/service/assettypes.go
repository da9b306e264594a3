package service

import "fmt"

// AssetType is an inventory bucket walked for every user.
type AssetType struct {
	ID       int    `json:"id"`
	Category string `json:"category"`
}

var knownAssetTypes = []AssetType{
	{ID: 8, Category: "Hats"},
	{ID: 41, Category: "Hair Accessories"},
	{ID: 42, Category: "Face Accessories"},
	{ID: 43, Category: "Neck Accessories"},
	{ID: 44, Category: "Shoulder Accessories"},
	{ID: 45, Category: "Front Accessories"},
	{ID: 46, Category: "Back Accessories"},
	{ID: 47, Category: "Waist Accessories"},
	{ID: 18, Category: "Faces"},
	{ID: 19, Category: "Gear"},
	{ID: 17, Category: "Heads"},
	{ID: 2, Category: "T-Shirts"},
	{ID: 11, Category: "Shirts"},
	{ID: 12, Category: "Pants"},
	{ID: 61, Category: "Emotes"},
}

// DefaultAssetTypes returns the buckets walked when none are configured.
func DefaultAssetTypes() []AssetType {
	out := make([]AssetType, len(knownAssetTypes))
	copy(out, knownAssetTypes)
	return out
}

// AssetTypesFromIDs maps configured ids to buckets, keeping order. Unknown
// ids get a generic category name. An empty list yields the defaults.
func AssetTypesFromIDs(ids []int) []AssetType {
	if len(ids) == 0 {
		return DefaultAssetTypes()
	}

	byID := make(map[int]string, len(knownAssetTypes))
	for _, t := range knownAssetTypes {
		byID[t.ID] = t.Category
	}

	seen := make(map[int]bool, len(ids))
	out := make([]AssetType, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		name, ok := byID[id]
		if !ok {
			name = fmt.Sprintf("Type %d", id)
		}
		out = append(out, AssetType{ID: id, Category: name})
	}
	return out
}
