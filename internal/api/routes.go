package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/georgeshao/fleetctx/internal/audit"
	"github.com/georgeshao/fleetctx/internal/dispatcher"
	"github.com/georgeshao/fleetctx/internal/storage"
)

// SetupRoutes mounts the HTTP surface. A nil gatherer leaves /metrics off.
func SetupRoutes(app *fiber.App, store storage.Store, d *dispatcher.Dispatcher, log audit.Log, gatherer prometheus.Gatherer) {
	h := NewHandler(store, d, log)

	v1 := app.Group("/v1")

	v1.Get("/catalog", h.ListOperations)
	v1.Post("/ops/:name", h.InvokeOperation)
	v1.Post("/ask", h.Ask)
	v1.Get("/audit", h.ListAudit)

	app.Get("/health", h.Health)

	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}
