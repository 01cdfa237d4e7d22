package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/cartsync/internal/service"
	"github.com/utafrali/cartsync/pkg/health"
	"github.com/utafrali/cartsync/pkg/middleware"
)

// RouterOptions configures the control API guards.
type RouterOptions struct {
	// JWTSecret enables bearer-token login when non-empty.
	JWTSecret string
	// RateRPS and RateBurst bound /api/v1 traffic; RateRPS <= 0 disables it.
	RateRPS   float64
	RateBurst int
}

// NewRouter creates a chi router with the control API, health and metrics routes.
func NewRouter(
	cartService *service.CartService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	opts RouterOptions,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.Metrics())
	r.Use(middleware.Tracing())
	r.Use(middleware.RequestLogging(logger))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	cartHandler := NewCartHandler(cartService, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateRPS, opts.RateBurst))
		r.Use(ContentTypeJSON)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.DeleteCart)
			r.Post("/refresh", cartHandler.Refresh)
			r.Post("/clear", cartHandler.Clear)

			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{lineItemId}", cartHandler.UpdateQuantity)
			r.Delete("/items/{lineItemId}", cartHandler.RemoveItem)
			r.Delete("/variants/{variantId}", cartHandler.RemoveVariant)
		})

		r.Route("/session", func(r chi.Router) {
			if opts.JWTSecret != "" {
				r.With(middleware.BearerUser([]byte(opts.JWTSecret), logger)).Post("/login", cartHandler.Login)
			} else {
				r.Post("/login", cartHandler.Login)
			}
			r.Post("/logout", cartHandler.Logout)
		})
	})

	return r
}
