package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"rbx-valuation-api/internal/cache"
	"rbx-valuation-api/internal/config"
	"rbx-valuation-api/internal/handler"
	"rbx-valuation-api/internal/logger"
	"rbx-valuation-api/internal/middleware"
	"rbx-valuation-api/internal/pricing"
	"rbx-valuation-api/internal/repository"
	"rbx-valuation-api/internal/roblox"
	"rbx-valuation-api/internal/router"
	"rbx-valuation-api/internal/secret"
	"rbx-valuation-api/internal/service"
)

func main() {
	cfg := config.MustLoad()

	log := logger.Must(cfg.App)
	defer log.Sync()
	log.Info("starting", zap.String("env", cfg.App.Environment), zap.String("speed", cfg.Speed))

	up, err := roblox.NewFromConfig(cfg, log)
	if err != nil {
		log.Fatal("failed to init upstream client", zap.Error(err))
	}
	defer up.Registry.CloseAll()

	// Persistent cache tier, selected by config
	var (
		store     cache.Store
		disk      *cache.DiskCache
		checks    []handler.ReadyCheck
		cacheSize func() int64
	)
	switch cfg.Cache.Type {
	case "redis":
		redisStore, err := cache.NewRedisStore(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			MaxAge:   cfg.Cache.MaxTTL(),
		})
		if err != nil {
			log.Fatal("failed to initialize Redis cache", zap.Error(err))
		}
		defer redisStore.Close()
		store = redisStore
		checks = append(checks, handler.ReadyCheck{Name: "redis", Check: redisStore.Ping})
		log.Info("Redis cache initialized", zap.String("addr", cfg.Cache.RedisAddress()))
	default: // disk
		disk, err = cache.NewDiskCache(cfg.Cache.Dir, cfg.Cache.MaxBytes())
		if err != nil {
			log.Fatal("failed to initialize disk cache", zap.Error(err))
		}
		store = disk
		cacheSize = disk.Size
		log.Info("disk cache initialized", zap.String("dir", cfg.Cache.Dir), zap.Int("max_mb", cfg.Cache.MaxMB))
	}

	mem := cache.NewMemoryCache(0)
	defer mem.Close()
	ttlCache := cache.NewTTLCache(store, mem)

	// Account store, selected by config
	var kv repository.KV
	switch cfg.AccountDB.Type {
	case "mysql":
		kv, err = repository.NewMySQLKV(cfg.AccountDB.MySQLDSN(), log)
	case "postgres", "postgresql":
		kv, err = repository.NewPostgresKV(cfg.AccountDB.PostgresDSN(), log)
	default: // sqlite
		kv, err = repository.NewSQLiteKV(cfg.AccountDB.Path, log)
	}
	if err != nil {
		log.Fatal("failed to initialize account store", zap.String("type", cfg.AccountDB.Type), zap.Error(err))
	}
	defer kv.Close()
	checks = append(checks, handler.ReadyCheck{Name: "account_db", Check: kv.Ping})
	log.Info("account store initialized", zap.String("driver", kv.Driver()))

	vault, err := secret.NewVault(cfg.Secret.FernetKey)
	if err != nil {
		log.Fatal("invalid FERNET_KEY", zap.Error(err))
	}
	if !vault.Enabled() {
		log.Warn("FERNET_KEY not set; linked cookies and revenue are unavailable")
	}

	seed, err := pricing.LoadSeed(cfg.Crawler.CSVPath)
	if err != nil {
		log.Warn("failed to load price seed", zap.String("path", cfg.Crawler.CSVPath), zap.Error(err))
		seed = pricing.NewSeed()
	}
	log.Info("price seed loaded", zap.Int("entries", seed.Len()))

	valuationCfg := service.ValuationConfig{
		AssetTypes:         service.AssetTypesFromIDs(cfg.Inventory.AssetTypes),
		ProfileTTL:         cfg.Cache.ProfileTTL.Duration(),
		InventoryTTL:       cfg.Cache.InventoryTTL.Duration(),
		ResaleTTL:          cfg.Cache.ResaleTTL.Duration(),
		CursorTTL:          cfg.Cache.RevenueCursorTTL.Duration(),
		ResolveConcurrency: cfg.Catalog.Concurrency * 2,
	}
	valuationService := service.NewValuationService(up.Client, ttlCache, seed, vault, valuationCfg, log)
	accountService := service.NewAccountService(repository.NewAccountStore(kv), vault, valuationService, log)

	var pruneCache func() (int, error)
	if disk != nil {
		cleanup := service.NewCleanupScheduler(disk, service.CleanupConfig{
			MaxAge: cfg.Cache.MaxTTL(),
		}, log)
		cleanup.Start()
		defer cleanup.Stop()
		pruneCache = cleanup.RunNow
	}

	r := router.New(router.Config{
		Handler:          handler.New(cfg.App.Name, cfg.App.Version, checks...),
		ValuationHandler: handler.NewValuationHandler(valuationService, accountService, log),
		AccountHandler:   handler.NewAccountHandler(accountService, log),
		AdminHandler: handler.NewAdminHandler(handler.AdminConfig{
			CacheType:   cfg.Cache.Type,
			CacheBytes:  cacheSize,
			Proxies:     up.Proxies.Len,
			Clients:     up.Registry.Len,
			CSRFTokens:  up.Client.CSRF().Len,
			AccountDB:   kv.Driver(),
			PruneCache:  pruneCache,
			SeedEntries: seed.Len(),
		}),
		AuthMiddleware: middleware.NewAuthMiddleware(middleware.AuthConfig{
			APIKeys: cfg.App.APIKeys,
		}),
		Logger: log,
	})
	if len(cfg.App.APIKeys) == 0 {
		log.Warn("API_KEYS not set; the API is unauthenticated")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("server listening", zap.String("addr", cfg.Server.Address()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	}
	log.Info("server stopped")
}
