package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/FulfillmentGo/internal/service"
	"github.com/utafrali/FulfillmentGo/pkg/health"
	"github.com/utafrali/FulfillmentGo/pkg/middleware"
)

// NewRouter creates a chi router with all fulfillment service routes registered.
func NewRouter(
	orderService *service.OrderService,
	stockService *service.StockService,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("fulfillment"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	orderHandler := NewOrderHandler(orderService, logger)
	stockHandler := NewStockHandler(stockService, logger)

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/", orderHandler.CreateOrder)
		r.Get("/", orderHandler.ListOrders)
		r.Get("/{id}", orderHandler.GetOrder)
	})

	r.Route("/api/v1/stock", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Get("/availability", stockHandler.GetAvailability)
	})

	return r
}
