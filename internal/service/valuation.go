package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rbx-valuation-api/internal/cache"
	"rbx-valuation-api/internal/model"
	"rbx-valuation-api/internal/pricing"
	"rbx-valuation-api/internal/roblox"
	"rbx-valuation-api/internal/secret"
)

// ErrAuthRequired is returned when credentials are missing or rejected.
var ErrAuthRequired = roblox.ErrAuthRequired

// AuthRequired is the error value reported in RevenuePage.Error.
const AuthRequired = "auth_required"

// Upstream is the subset of the upstream client the orchestrator uses.
type Upstream interface {
	FetchProfile(ctx context.Context, userID int64) (*model.PublicProfile, error)
	FetchInventory(ctx context.Context, userID int64, assetType int, cookie string) ([]model.InventoryEntry, error)
	FetchDetails(ctx context.Context, ids []int64) (*roblox.DetailsResult, error)
	FetchResale(ctx context.Context, assetID int64) (*roblox.ResaleData, error)
	FetchTransactions(ctx context.Context, userID int64, cookie string, limit int, cursor string) (*roblox.TransactionPage, error)
}

var _ Upstream = (*roblox.Client)(nil)

// ValuationConfig holds the orchestrator settings.
type ValuationConfig struct {
	AssetTypes         []AssetType
	ProfileTTL         time.Duration
	InventoryTTL       time.Duration
	ResaleTTL          time.Duration
	CursorTTL          time.Duration
	ResolveConcurrency int
}

// DefaultValuationConfig returns the settings used when nothing is configured.
func DefaultValuationConfig() ValuationConfig {
	return ValuationConfig{
		AssetTypes:         DefaultAssetTypes(),
		ProfileTTL:         1800 * time.Second,
		InventoryTTL:       900 * time.Second,
		ResaleTTL:          3600 * time.Second,
		CursorTTL:          3600 * time.Second,
		ResolveConcurrency: 8,
	}
}

// ValuationService produces priced, categorised inventories. Every entry
// point funnels through a per-key lock on its cache key so concurrent
// callers cause one upstream fan-out.
type ValuationService struct {
	upstream Upstream
	cache    *cache.TTLCache
	locks    *cache.KeyLock
	resolver *pricing.Resolver
	vault    *secret.Vault
	cfg      ValuationConfig
	log      *zap.Logger
}

// NewValuationService creates the orchestrator. seed and vault may be nil.
func NewValuationService(upstream Upstream, c *cache.TTLCache, seed *pricing.Seed, vault *secret.Vault, cfg ValuationConfig, logger *zap.Logger) *ValuationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.AssetTypes) == 0 {
		cfg.AssetTypes = DefaultAssetTypes()
	}
	if cfg.ResolveConcurrency <= 0 {
		cfg.ResolveConcurrency = 8
	}

	s := &ValuationService{
		upstream: upstream,
		cache:    c,
		locks:    cache.NewKeyLock(),
		vault:    vault,
		cfg:      cfg,
		log:      logger.Named("valuation"),
	}
	s.resolver = pricing.NewResolver(seed, nestedResale{s}, cfg.ResolveConcurrency)
	return s
}

// AssetTypes returns the configured buckets.
func (s *ValuationService) AssetTypes() []AssetType {
	return s.cfg.AssetTypes
}

// loadThrough serves key from the cache, or fetches it under the key lock.
// fetch reports whether its result may be cached. fetch must not take another
// key lock; nested lookups go through loadUnlocked.
func loadThrough[T any](ctx context.Context, s *ValuationService, key string, ttl time.Duration, fetch func(context.Context) (T, bool, error)) (T, error) {
	var out T
	if s.cachedJSON(ctx, key, &out) {
		return out, nil
	}

	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		return out, err
	}
	defer unlock()

	return loadUnlocked(ctx, s, key, ttl, fetch)
}

// loadUnlocked is loadThrough without the key lock. Concurrent misses may
// fetch twice; the last write wins.
func loadUnlocked[T any](ctx context.Context, s *ValuationService, key string, ttl time.Duration, fetch func(context.Context) (T, bool, error)) (T, error) {
	var out T
	if s.cachedJSON(ctx, key, &out) {
		return out, nil
	}

	out, cacheable, err := fetch(ctx)
	if err != nil {
		return out, err
	}
	if cacheable {
		if err := s.cache.SetJSON(ctx, key, out, ttl); err != nil {
			s.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return out, nil
}

func (s *ValuationService) cachedJSON(ctx context.Context, key string, dst any) bool {
	ok, err := s.cache.GetJSON(ctx, key, dst)
	if err != nil {
		s.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}

// FetchPublicProfile returns a user's public profile.
func (s *ValuationService) FetchPublicProfile(ctx context.Context, userID int64) (*model.PublicProfile, error) {
	key := "pub:profile:" + strconv.FormatInt(userID, 10)
	return loadThrough(ctx, s, key, s.cfg.ProfileTTL, func(ctx context.Context) (*model.PublicProfile, bool, error) {
		p, err := s.upstream.FetchProfile(ctx, userID)
		if err != nil {
			return nil, false, err
		}
		return p, true, nil
	})
}

// FetchPublicInventory returns a user's public inventory, priced and grouped.
func (s *ValuationService) FetchPublicInventory(ctx context.Context, userID int64) (*model.UserInventory, error) {
	return s.FetchInventory(ctx, userID, "")
}

// FetchInventory returns a user's inventory. With a cookie the result is
// cached under a key bound to that cookie, never under the public key.
func (s *ValuationService) FetchInventory(ctx context.Context, userID int64, cookie string) (*model.UserInventory, error) {
	return loadThrough(ctx, s, inventoryKey(userID, cookie), s.cfg.InventoryTTL, func(ctx context.Context) (*model.UserInventory, bool, error) {
		return s.buildInventory(ctx, userID, cookie)
	})
}

func inventoryKey(userID int64, cookie string) string {
	uid := strconv.FormatInt(userID, 10)
	if cookie == "" {
		return "pub:inv:v2:" + uid
	}
	return "auth:inv:" + uid + ":" + fingerprint(cookie)
}

func fingerprint(cookie string) string {
	sum := sha256.Sum256([]byte(cookie))
	return hex.EncodeToString(sum[:])[:16]
}

// buildInventory walks every bucket, looks up catalog details for the union
// of asset ids and resolves prices. The result is cacheable only when no
// bucket or details batch failed transiently.
func (s *ValuationService) buildInventory(ctx context.Context, userID int64, cookie string) (*model.UserInventory, bool, error) {
	types := s.cfg.AssetTypes
	buckets := make([][]model.InventoryEntry, len(types))
	errs := make([]error, len(types))

	var g errgroup.Group
	for i, t := range types {
		i, t := i, t
		g.Go(func() error {
			buckets[i], errs[i] = s.upstream.FetchInventory(ctx, userID, t.ID, cookie)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var authFailed, transient int
	var firstErr error
	for i, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, roblox.ErrAuthRequired) {
			authFailed++
			continue
		}
		transient++
		if firstErr == nil {
			firstErr = err
		}
		s.log.Warn("inventory bucket failed",
			zap.Int64("user_id", userID),
			zap.Int("asset_type", types[i].ID),
			zap.Error(err),
		)
	}
	if authFailed == len(types) {
		return nil, false, ErrAuthRequired
	}
	if authFailed+transient == len(types) {
		return nil, false, fmt.Errorf("failed to fetch inventory: %w", firstErr)
	}

	type slot struct {
		category string
		entry    model.InventoryEntry
	}
	var (
		slots []slot
		ids   []int64
		seen  = make(map[int64]struct{})
	)
	for i, t := range types {
		for _, e := range buckets[i] {
			if _, dup := seen[e.AssetID]; dup {
				continue
			}
			seen[e.AssetID] = struct{}{}
			slots = append(slots, slot{category: t.Category, entry: e})
			ids = append(ids, e.AssetID)
		}
	}

	cacheable := transient == 0
	details := map[int64]model.CatalogDetail{}
	if len(ids) > 0 {
		res, err := s.upstream.FetchDetails(ctx, ids)
		if err != nil {
			return nil, false, err
		}
		details = res.ByID
		if res.Stats.Failed > 0 {
			cacheable = false
		}
	}

	inputs := make([]pricing.Input, len(slots))
	for i, sl := range slots {
		inputs[i] = pricing.Input{Entry: sl.entry}
		if d, ok := details[sl.entry.AssetID]; ok {
			d := d
			inputs[i].Detail = &d
		}
	}
	items, err := s.resolver.ResolveAll(ctx, inputs)
	if err != nil {
		return nil, false, err
	}

	inv := &model.UserInventory{
		UserID:     userID,
		ByCategory: make(map[string][]model.InventoryItem, len(types)),
	}
	for _, t := range types {
		if _, ok := inv.ByCategory[t.Category]; ok {
			continue
		}
		inv.Categories = append(inv.Categories, t.Category)
		inv.ByCategory[t.Category] = []model.InventoryItem{}
	}
	for i, sl := range slots {
		inv.ByCategory[sl.category] = append(inv.ByCategory[sl.category], items[i])
	}

	s.log.Debug("inventory built",
		zap.Int64("user_id", userID),
		zap.Int("items", len(items)),
		zap.Bool("authenticated", cookie != ""),
		zap.Bool("cached", cacheable),
	)
	return inv, cacheable, nil
}

func resaleKey(assetID int64) string {
	return "pub:resale:" + strconv.FormatInt(assetID, 10)
}

func (s *ValuationService) fetchResale(assetID int64) func(context.Context) (*roblox.ResaleData, bool, error) {
	return func(ctx context.Context) (*roblox.ResaleData, bool, error) {
		r, err := s.upstream.FetchResale(ctx, assetID)
		if err != nil {
			var se *roblox.StatusError
			if errors.Is(err, roblox.ErrNotFound) || errors.As(err, &se) {
				return &roblox.ResaleData{AssetID: assetID}, true, nil
			}
			return nil, false, err
		}
		return r, true, nil
	}
}

// Resale returns cached resale data. Assets without resale data yield a
// zero summary, which is cached too.
func (s *ValuationService) Resale(ctx context.Context, assetID int64) (*roblox.ResaleData, error) {
	return loadThrough(ctx, s, resaleKey(assetID), s.cfg.ResaleTTL, s.fetchResale(assetID))
}

// LowestResalePrice implements pricing.ResaleLookup.
func (s *ValuationService) LowestResalePrice(ctx context.Context, assetID int64) (int64, bool, error) {
	return lowest(s.Resale(ctx, assetID))
}

func lowest(r *roblox.ResaleData, err error) (int64, bool, error) {
	if err != nil {
		return 0, false, err
	}
	return r.Lowest, r.Lowest > 0, nil
}

// nestedResale serves the resolver while an inventory key lock is held.
// It reads and fills the resale cache without taking resale key locks.
type nestedResale struct {
	s *ValuationService
}

func (n nestedResale) LowestResalePrice(ctx context.Context, assetID int64) (int64, bool, error) {
	return lowest(loadUnlocked(ctx, n.s, resaleKey(assetID), n.s.cfg.ResaleTTL, n.s.fetchResale(assetID)))
}

var (
	_ pricing.ResaleLookup = (*ValuationService)(nil)
	_ pricing.ResaleLookup = nestedResale{}
)

// CollectiblesWithRAP returns the user's collectibles with their recent
// average price. Resale failures yield a zero RAP.
func (s *ValuationService) CollectiblesWithRAP(ctx context.Context, userID int64, cookie string) ([]model.CollectibleRAP, error) {
	inv, err := s.FetchInventory(ctx, userID, cookie)
	if err != nil {
		return nil, err
	}

	var collectibles []model.InventoryItem
	for _, it := range inv.Items() {
		if it.Collectible {
			collectibles = append(collectibles, it)
		}
	}

	out := make([]model.CollectibleRAP, len(collectibles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ResolveConcurrency)
	for i, it := range collectibles {
		i, it := i, it
		g.Go(func() error {
			out[i] = model.CollectibleRAP{Asset: it}
			r, err := s.Resale(gctx, it.AssetID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.log.Debug("resale lookup failed", zap.Int64("asset_id", it.AssetID), zap.Error(err))
				return nil
			}
			out[i].RAP = r.RAP
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// OffsaleCollectibles returns the user's collectibles that are no longer on sale.
func (s *ValuationService) OffsaleCollectibles(ctx context.Context, userID int64, cookie string) ([]model.InventoryItem, error) {
	inv, err := s.FetchInventory(ctx, userID, cookie)
	if err != nil {
		return nil, err
	}

	out := []model.InventoryItem{}
	for _, it := range inv.Items() {
		if it.Collectible && it.Offsale {
			out = append(out, it)
		}
	}
	return out, nil
}
