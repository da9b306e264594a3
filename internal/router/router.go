package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"rbx-valuation-api/internal/handler"
	"rbx-valuation-api/internal/middleware"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler          *handler.Handler
	ValuationHandler *handler.ValuationHandler
	AccountHandler   *handler.AccountHandler
	AdminHandler     *handler.AdminHandler
	AuthMiddleware   func(http.Handler) http.Handler
	Logger           *zap.Logger
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.NewRecovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.NewLogging(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key", handler.BotUserHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
		r.Get("/api/v1/health", cfg.Handler.Health)
		r.Get("/api/v1/ready", cfg.Handler.Ready)
	}

	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		r.Route("/api/v1", func(r chi.Router) {
			if cfg.ValuationHandler != nil {
				r.Route("/users/{user_id}", func(r chi.Router) {
					r.Get("/profile", cfg.ValuationHandler.GetProfile)
					r.Get("/inventory", cfg.ValuationHandler.GetInventory)
					r.Get("/collectibles", cfg.ValuationHandler.GetCollectibles)
					r.Get("/offsale", cfg.ValuationHandler.GetOffsale)
					r.Get("/revenue", cfg.ValuationHandler.GetRevenue)
				})
			}

			if cfg.AccountHandler != nil {
				r.Route("/accounts/{bot_user_id}", func(r chi.Router) {
					r.Get("/", cfg.AccountHandler.List)
					r.Post("/link", cfg.AccountHandler.Link)
					r.Get("/events", cfg.AccountHandler.Events)
					r.Delete("/{user_id}", cfg.AccountHandler.Unlink)
				})
			}

			if cfg.AdminHandler != nil {
				r.Route("/admin", func(r chi.Router) {
					r.Get("/stats", cfg.AdminHandler.GetStats)
					r.Post("/cache/prune", cfg.AdminHandler.PruneCache)
				})
			}
		})
	})

	return r
}
