package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"rbx-valuation-api/internal/model"
	"rbx-valuation-api/internal/pricing"
	"rbx-valuation-api/internal/roblox"
)

// fakeUpstream serves canned responses and counts calls per endpoint.
type fakeUpstream struct {
	mu sync.Mutex

	profiles      map[int64]*model.PublicProfile
	inventory     map[int][]model.InventoryEntry
	inventoryErr  map[int]error
	inventoryWait time.Duration
	details       map[int64]model.CatalogRow
	detailsFailed int
	resale        map[int64]*roblox.ResaleData
	pages         map[string]*roblox.TransactionPage
	txErr         error

	profileCalls   atomic.Int32
	inventoryCalls atomic.Int32
	detailsCalls   atomic.Int32
	resaleCalls    atomic.Int32
	txCalls        atomic.Int32

	inventoryCookies []string
	txCursors        []string
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		profiles:     map[int64]*model.PublicProfile{},
		inventory:    map[int][]model.InventoryEntry{},
		inventoryErr: map[int]error{},
		details:      map[int64]model.CatalogRow{},
		resale:       map[int64]*roblox.ResaleData{},
		pages:        map[string]*roblox.TransactionPage{},
	}
}

func (f *fakeUpstream) FetchProfile(ctx context.Context, userID int64) (*model.PublicProfile, error) {
	f.profileCalls.Add(1)
	p, ok := f.profiles[userID]
	if !ok {
		return nil, roblox.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeUpstream) FetchInventory(ctx context.Context, userID int64, assetType int, cookie string) ([]model.InventoryEntry, error) {
	f.inventoryCalls.Add(1)
	f.mu.Lock()
	f.inventoryCookies = append(f.inventoryCookies, cookie)
	f.mu.Unlock()

	if f.inventoryWait > 0 {
		time.Sleep(f.inventoryWait)
	}
	if err := f.inventoryErr[assetType]; err != nil {
		return nil, err
	}
	return append([]model.InventoryEntry(nil), f.inventory[assetType]...), nil
}

func (f *fakeUpstream) FetchDetails(ctx context.Context, ids []int64) (*roblox.DetailsResult, error) {
	f.detailsCalls.Add(1)
	res := &roblox.DetailsResult{ByID: map[int64]model.CatalogDetail{}}
	res.Stats.Batches = 1
	res.Stats.Failed = f.detailsFailed
	for _, id := range ids {
		row, ok := f.details[id]
		if !ok {
			continue
		}
		d := pricing.Detail(row)
		res.Rows = append(res.Rows, d)
		res.ByID[id] = d
	}
	return res, nil
}

func (f *fakeUpstream) FetchResale(ctx context.Context, assetID int64) (*roblox.ResaleData, error) {
	f.resaleCalls.Add(1)
	r, ok := f.resale[assetID]
	if !ok {
		return nil, &roblox.StatusError{Code: 400, Endpoint: "resale"}
	}
	cp := *r
	return &cp, nil
}

func (f *fakeUpstream) FetchTransactions(ctx context.Context, userID int64, cookie string, limit int, cursor string) (*roblox.TransactionPage, error) {
	f.txCalls.Add(1)
	f.mu.Lock()
	f.txCursors = append(f.txCursors, cursor)
	f.mu.Unlock()

	if f.txErr != nil {
		return nil, f.txErr
	}
	p, ok := f.pages[cursor]
	if !ok {
		return &roblox.TransactionPage{}, nil
	}
	return p, nil
}

func (f *fakeUpstream) cursors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.txCursors...)
}

func (f *fakeUpstream) cookies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.inventoryCookies...)
}
