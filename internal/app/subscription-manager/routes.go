// Package subscriptionmanager собирает HTTP API подписок: маршруты, middleware и сервер.
package subscriptionmanager

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/subscription-manager/internal/config"
	"github.com/magabrotheeeer/subscription-manager/internal/http/handlers/subscription/create"
	"github.com/magabrotheeeer/subscription-manager/internal/http/handlers/subscription/health"
	"github.com/magabrotheeeer/subscription-manager/internal/http/handlers/subscription/read"
	"github.com/magabrotheeeer/subscription-manager/internal/http/handlers/subscription/remove"
	"github.com/magabrotheeeer/subscription-manager/internal/http/handlers/subscription/renew"
	"github.com/magabrotheeeer/subscription-manager/internal/http/middlewarectx"
	subservice "github.com/magabrotheeeer/subscription-manager/internal/services/subscription"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config,
	subscriptionService *subservice.Service, checker health.Checker) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			MaxAge:         300,
		}),
	)

	r.Group(func(r chi.Router) {
		r.Use(middlewarectx.RateLimitMiddleware(logger, cfg.RPS, cfg.Burst))
		r.Use(middleware.Timeout(requestTimeout(cfg.TimeoutHTTP)))

		createHandler := create.New(logger, subscriptionService)
		r.Post("/subscriptions", createHandler.ServeHTTP)
		r.Post("/subscriptions/", createHandler.ServeHTTP)
		r.Get("/subscriptions/{id}", read.New(logger, subscriptionService).ServeHTTP)
		r.Put("/subscriptions/{id}/renew", renew.New(logger, subscriptionService).ServeHTTP)
		r.Delete("/subscriptions/{id}", remove.New(logger, subscriptionService).ServeHTTP)
	})

	r.Get("/health", health.New(logger, checker).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}

func requestTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}
