package pricing

import (
	"context"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"rbx-valuation-api/internal/model"
)

// ResaleLookup returns the lowest resale price of an asset.
type ResaleLookup interface {
	LowestResalePrice(ctx context.Context, assetID int64) (int64, bool, error)
}

// Input is one inventory entry plus its catalog detail, if any.
type Input struct {
	Entry  model.InventoryEntry
	Detail *model.CatalogDetail
}

// Resolver merges catalog, seed and resale data. Resolution order: catalog,
// seed, resale, then the missing price.
type Resolver struct {
	seed        *Seed
	resale      ResaleLookup
	concurrency int
}

// NewResolver creates a resolver. seed and resale may be nil.
func NewResolver(seed *Seed, resale ResaleLookup, concurrency int) *Resolver {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Resolver{seed: seed, resale: resale, concurrency: concurrency}
}

// Seed returns the seed used for fallback prices.
func (r *Resolver) Seed() *Seed {
	return r.seed
}

// Resolve prices a single entry. Resale lookup failures resolve to a missing price.
func (r *Resolver) Resolve(ctx context.Context, in Input) model.InventoryItem {
	entry := in.Entry
	item := model.InventoryItem{
		AssetRef:          entry.AssetRef,
		PriceInfo:         model.MissingPrice(),
		CollectibleItemID: entry.CollectibleItemID,
		Serial:            entry.Serial,
	}

	var betterName string
	priced := false

	if d := in.Detail; d != nil {
		item.Collectible = IsCollectible(d.Row)
		item.Offsale = IsOffsale(d.Row)
		if item.CollectibleItemID == "" {
			item.CollectibleItemID = d.Row.CollectibleItemID
		}
		if item.AssetTypeID == 0 {
			item.AssetTypeID = d.Row.AssetType
		}
		betterName = d.Name
		if price, ok := FromCatalog(d.Row); ok {
			item.PriceInfo = price
			priced = true
		}
	}

	if !priced || betterName == "" {
		if row, ok := r.seed.Lookup(entry.AssetID, entry.Name); ok {
			if !priced {
				item.PriceInfo = model.PriceInfo{Value: row.Price, Source: model.PriceSourceCSV}
				priced = true
			}
			if betterName == "" {
				betterName = row.Name
			}
		}
	}

	if !priced && r.resale != nil {
		if v, ok, err := r.resale.LowestResalePrice(ctx, entry.AssetID); err == nil && ok && v > 0 {
			item.PriceInfo = model.PriceInfo{Value: v, Source: model.PriceSourceResale}
		}
	}

	if placeholderName(entry.Name, entry.AssetID) && betterName != "" {
		item.Name = betterName
	}
	return item
}

// ResolveAll resolves every input with bounded concurrency. Output order
// matches input order.
func (r *Resolver) ResolveAll(ctx context.Context, inputs []Input) ([]model.InventoryItem, error) {
	out := make([]model.InventoryItem, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range inputs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = r.Resolve(gctx, inputs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// placeholderName reports whether an inventory-supplied name carries no information.
func placeholderName(name string, id int64) bool {
	name = strings.TrimSpace(name)
	if name == "" || name == strconv.FormatInt(id, 10) {
		return true
	}
	_, err := strconv.ParseInt(name, 10, 64)
	return err == nil
}
