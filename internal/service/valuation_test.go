package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rbx-valuation-api/internal/cache"
	"rbx-valuation-api/internal/model"
	"rbx-valuation-api/internal/pricing"
	"rbx-valuation-api/internal/roblox"
	"rbx-valuation-api/internal/secret"
)

var hats = AssetType{ID: 8, Category: "Hats"}
var faces = AssetType{ID: 18, Category: "Faces"}

func newTestVault(t *testing.T) *secret.Vault {
	t.Helper()
	key, err := secret.GenerateKey()
	require.NoError(t, err)
	v, err := secret.NewVault(key)
	require.NoError(t, err)
	return v
}

func newTestService(t *testing.T, up Upstream, seed *pricing.Seed, types ...AssetType) *ValuationService {
	t.Helper()
	disk, err := cache.NewDiskCache(t.TempDir(), 0)
	require.NoError(t, err)

	cfg := DefaultValuationConfig()
	if len(types) > 0 {
		cfg.AssetTypes = types
	}
	return NewValuationService(up, cache.NewTTLCache(disk, nil), seed, newTestVault(t), cfg, nil)
}

func entry(id int64, name string, typeID int) model.InventoryEntry {
	return model.InventoryEntry{AssetRef: model.AssetRef{AssetID: id, Name: name, AssetTypeID: typeID}}
}

func TestEmptyInventoryIsCached(t *testing.T) {
	up := newFakeUpstream()
	up.profiles[1] = &model.PublicProfile{ID: 1, Name: "alice", DisplayName: "alice"}
	s := newTestService(t, up, nil, hats, faces)
	ctx := context.Background()

	profile, err := s.FetchPublicProfile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Name)

	for i := 0; i < 2; i++ {
		inv, err := s.FetchPublicInventory(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"Hats", "Faces"}, inv.Categories)

		raw, err := json.Marshal(inv.ByCategory)
		require.NoError(t, err)
		assert.JSONEq(t, `{"Hats":[],"Faces":[]}`, string(raw))
	}

	// one call per asset type for the first request only
	assert.Equal(t, int32(2), up.inventoryCalls.Load())
	assert.Zero(t, up.detailsCalls.Load())

	_, err = s.FetchPublicProfile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), up.profileCalls.Load())
}

func TestCatalogPriceWins(t *testing.T) {
	up := newFakeUpstream()
	up.inventory[8] = []model.InventoryEntry{entry(111, "Red Hat", 8), entry(222, "Blue", 8)}
	up.details[111] = model.CatalogRow{ID: 111, Name: "Red Hat", Price: json.RawMessage(`500`), ItemRestrictions: []string{"Collectible"}}
	up.details[222] = model.CatalogRow{ID: 222, Name: "Blue", LowestPrice: json.RawMessage(`300`), ItemRestrictions: []string{}}
	s := newTestService(t, up, nil, hats)

	inv, err := s.FetchPublicInventory(context.Background(), 7)
	require.NoError(t, err)

	items := inv.ByCategory["Hats"]
	require.Len(t, items, 2)
	assert.Equal(t, int64(111), items[0].AssetID)
	assert.Equal(t, model.PriceInfo{Value: 500, Source: model.PriceSourceCatalog}, items[0].PriceInfo)
	assert.True(t, items[0].Collectible)
	assert.Equal(t, model.PriceInfo{Value: 300, Source: model.PriceSourceCatalog}, items[1].PriceInfo)
	assert.False(t, items[1].Collectible)
	assert.Equal(t, int64(800), inv.TotalValue())
}

func TestCSVFallback(t *testing.T) {
	seed, err := pricing.ReadSeed(strings.NewReader("333,Green Hat,750,Collectible\n"))
	require.NoError(t, err)

	up := newFakeUpstream()
	up.inventory[8] = []model.InventoryEntry{entry(333, "", 8)}
	s := newTestService(t, up, seed, hats)

	inv, err := s.FetchPublicInventory(context.Background(), 7)
	require.NoError(t, err)

	items := inv.ByCategory["Hats"]
	require.Len(t, items, 1)
	assert.Equal(t, model.PriceInfo{Value: 750, Source: model.PriceSourceCSV}, items[0].PriceInfo)
	assert.Equal(t, "Green Hat", items[0].Name)
	assert.Zero(t, up.resaleCalls.Load())
}

func TestResaleFallbackIsCached(t *testing.T) {
	up := newFakeUpstream()
	up.inventory[8] = []model.InventoryEntry{entry(5, "Dominus", 8), entry(6, "Plain", 8)}
	up.resale[5] = &roblox.ResaleData{AssetID: 5, RAP: 1000, Lowest: 900}
	s := newTestService(t, up, nil, hats)
	ctx := context.Background()

	inv, err := s.FetchPublicInventory(ctx, 7)
	require.NoError(t, err)
	items := inv.ByCategory["Hats"]
	assert.Equal(t, model.PriceInfo{Value: 900, Source: model.PriceSourceResale}, items[0].PriceInfo)
	assert.True(t, items[1].PriceInfo.Missing())

	calls := up.resaleCalls.Load()
	for _, id := range []int64{5, 6} {
		_, _, err := s.LowestResalePrice(ctx, id)
		require.NoError(t, err)
	}
	assert.Equal(t, calls, up.resaleCalls.Load(), "negative and positive resale results are cached")
}

func TestInventoryDoesNotTakeResaleLocks(t *testing.T) {
	up := newFakeUpstream()
	up.inventory[8] = []model.InventoryEntry{entry(5, "Dominus", 8)}
	up.resale[5] = &roblox.ResaleData{AssetID: 5, RAP: 1000, Lowest: 900}
	s := newTestService(t, up, nil, hats)

	unlock, err := s.locks.Lock(context.Background(), resaleKey(5))
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	inv, err := s.FetchPublicInventory(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, model.PriceInfo{Value: 900, Source: model.PriceSourceResale}, inv.ByCategory["Hats"][0].PriceInfo)
}

func TestConcurrentCallersShareOneFetch(t *testing.T) {
	up := newFakeUpstream()
	up.inventory[8] = []model.InventoryEntry{entry(1, "One", 8)}
	up.inventoryWait = 30 * time.Millisecond
	s := newTestService(t, up, nil, hats)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv, err := s.FetchPublicInventory(context.Background(), 9)
			if assert.NoError(t, err) {
				assert.Len(t, inv.ByCategory["Hats"], 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), up.inventoryCalls.Load())
	assert.Equal(t, int32(1), up.detailsCalls.Load())
}

func TestAuthenticatedInventoryNeverFillsPublicKey(t *testing.T) {
	up := newFakeUpstream()
	up.inventory[8] = []model.InventoryEntry{entry(1, "One", 8)}
	s := newTestService(t, up, nil, hats)
	ctx := context.Background()

	_, err := s.FetchInventory(ctx, 1, "COOKIE-A")
	require.NoError(t, err)
	_, err = s.FetchInventory(ctx, 1, "COOKIE-A")
	require.NoError(t, err)
	assert.Equal(t, int32(1), up.inventoryCalls.Load())

	var cached model.UserInventory
	ok, err := s.cache.GetJSON(ctx, "pub:inv:v2:1", &cached)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.FetchPublicInventory(ctx, 1)
	require.NoError(t, err)
	_, err = s.FetchInventory(ctx, 1, "COOKIE-B")
	require.NoError(t, err)

	assert.Equal(t, []string{"COOKIE-A", "", "COOKIE-B"}, up.cookies())
	assert.NotEqual(t, inventoryKey(1, "COOKIE-A"), inventoryKey(1, "COOKIE-B"))
	assert.NotContains(t, inventoryKey(1, "COOKIE-A"), "COOKIE")
}

func TestInventoryJoinIsDeterministic(t *testing.T) {
	up := newFakeUpstream()
	up.inventory[8] = []model.InventoryEntry{entry(1, "One", 8), entry(2, "Two", 8)}
	up.inventory[18] = []model.InventoryEntry{entry(3, "Three", 18), entry(1, "One again", 18)}
	up.details[1] = model.CatalogRow{ID: 1, Name: "One", Price: json.RawMessage(`10`)}
	up.details[3] = model.CatalogRow{ID: 3, Name: "Three", LowestResalePrice: json.RawMessage(`"R$ 30"`), ItemRestrictions: []string{"Collectible"}}

	var outputs [][]byte
	for i := 0; i < 3; i++ {
		s := newTestService(t, up, nil, hats, faces)
		inv, err := s.FetchPublicInventory(context.Background(), 4)
		require.NoError(t, err)
		raw, err := json.Marshal(inv)
		require.NoError(t, err)
		outputs = append(outputs, raw)
	}
	assert.Equal(t, outputs[0], outputs[1])
	assert.Equal(t, outputs[1], outputs[2])

	var inv model.UserInventory
	require.NoError(t, json.Unmarshal(outputs[0], &inv))
	assert.Len(t, inv.ByCategory["Hats"], 2)
	require.Len(t, inv.ByCategory["Faces"], 1, "asset 1 stays in the first bucket")
	assert.Equal(t, int64(3), inv.ByCategory["Faces"][0].AssetID)
}

func TestPartialInventoryIsNotCached(t *testing.T) {
	up := newFakeUpstream()
	up.inventory[8] = []model.InventoryEntry{entry(1, "One", 8)}
	up.inventoryErr[18] = roblox.ErrRetriesExhausted
	s := newTestService(t, up, nil, hats, faces)
	ctx := context.Background()

	inv, err := s.FetchPublicInventory(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, inv.ByCategory["Hats"], 1)
	assert.Empty(t, inv.ByCategory["Faces"])

	_, err = s.FetchPublicInventory(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(4), up.inventoryCalls.Load())
}

func TestPartialDetailsAreNotCached(t *testing.T) {
	up := newFakeUpstream()
	up.inventory[8] = []model.InventoryEntry{entry(1, "One", 8)}
	up.detailsFailed = 1
	s := newTestService(t, up, nil, hats)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := s.FetchPublicInventory(ctx, 1)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), up.detailsCalls.Load())
}

func TestPrivateInventory(t *testing.T) {
	up := newFakeUpstream()
	up.inventoryErr[8] = roblox.ErrAuthRequired
	up.inventoryErr[18] = roblox.ErrAuthRequired
	s := newTestService(t, up, nil, hats, faces)

	_, err := s.FetchPublicInventory(context.Background(), 1)
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestCollectiblesAndOffsale(t *testing.T) {
	up := newFakeUpstream()
	up.inventory[8] = []model.InventoryEntry{entry(1, "Valk", 8), entry(2, "Shop Hat", 8), entry(3, "Old Hat", 8)}
	up.details[1] = model.CatalogRow{ID: 1, LowestResalePrice: json.RawMessage(`5000`), ItemRestrictions: []string{"Collectible"}}
	up.details[2] = model.CatalogRow{ID: 2, Price: json.RawMessage(`80`), ItemRestrictions: []string{"Collectible"}}
	up.details[3] = model.CatalogRow{ID: 3, Price: json.RawMessage(`null`), ItemRestrictions: []string{"Limited"}}
	up.resale[1] = &roblox.ResaleData{AssetID: 1, RAP: 4800, Lowest: 5000}
	s := newTestService(t, up, nil, hats)
	ctx := context.Background()

	raps, err := s.CollectiblesWithRAP(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, raps, 2)
	assert.Equal(t, int64(1), raps[0].Asset.AssetID)
	assert.Equal(t, int64(4800), raps[0].RAP)
	assert.Equal(t, int64(2), raps[1].Asset.AssetID)
	assert.Zero(t, raps[1].RAP)

	offsale, err := s.OffsaleCollectibles(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, offsale, 1)
	assert.Equal(t, int64(1), offsale[0].AssetID)
}

func TestQuantizePerPage(t *testing.T) {
	tests := map[int]int{-5: 10, 0: 10, 1: 10, 10: 10, 11: 25, 25: 25, 26: 50, 51: 100, 100: 100, 500: 100}
	for in, want := range tests {
		assert.Equal(t, want, QuantizePerPage(in), in)
	}
}

func TestAssetTypesFromIDs(t *testing.T) {
	types := AssetTypesFromIDs([]int{18, 8, 18, 999})
	assert.Equal(t, []AssetType{
		{ID: 18, Category: "Faces"},
		{ID: 8, Category: "Hats"},
		{ID: 999, Category: "Type 999"},
	}, types)

	assert.Equal(t, DefaultAssetTypes(), AssetTypesFromIDs(nil))
}
