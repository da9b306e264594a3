package handler

import (
	"net/http"
	"runtime"
	"time"

	"rbx-valuation-api/pkg/apierror"
	"rbx-valuation-api/pkg/response"
)

// AdminConfig wires the counters reported by the admin endpoints. Nil funcs
// are reported as not configured.
type AdminConfig struct {
	CacheType   string
	CacheBytes  func() int64
	Proxies     func() int
	Clients     func() int
	CSRFTokens  func() int
	AccountDB   string
	PruneCache  func() (int, error)
	SeedEntries int
}

// AdminHandler serves operational stats.
type AdminHandler struct {
	cfg       AdminConfig
	startTime time.Time
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(cfg AdminConfig) *AdminHandler {
	return &AdminHandler{cfg: cfg, startTime: time.Now()}
}

func count(f func() int) any {
	if f == nil {
		return "not_configured"
	}
	return f()
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]any)

	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["account_db"] = h.cfg.AccountDB

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]any{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	cacheStats := map[string]any{"type": h.cfg.CacheType}
	if h.cfg.CacheBytes != nil {
		cacheStats["size_bytes"] = h.cfg.CacheBytes()
	}
	stats["cache"] = cacheStats

	stats["upstream"] = map[string]any{
		"proxies":     count(h.cfg.Proxies),
		"clients":     count(h.cfg.Clients),
		"csrf_tokens": count(h.cfg.CSRFTokens),
	}
	stats["seed_entries"] = h.cfg.SeedEntries

	stats["runtime"] = map[string]any{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// PruneCache handles POST /api/v1/admin/cache/prune
func (h *AdminHandler) PruneCache(w http.ResponseWriter, r *http.Request) {
	if h.cfg.PruneCache == nil {
		response.Error(w, apierror.NotFound("Cache pruning is only available for the disk cache"))
		return
	}
	removed, err := h.cfg.PruneCache()
	if err != nil {
		response.Error(w, apierror.InternalError(err.Error()))
		return
	}
	response.OK(w, map[string]int{"removed": removed})
}
