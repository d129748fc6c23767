// Package httptransport assembles the HTTP surface: middleware stack, domain
// handlers, health probes, and the metrics endpoint.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"paperroom/pkg/platform/middleware/request"

	"paperroom/internal/platform/health"
	provisioningHandler "paperroom/internal/provisioning/handler"
)

// NewRouter wires all endpoints with the standard middleware stack.
func NewRouter(
	provisioning *provisioningHandler.Handler,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(request.Logger(logger))
	// Provisioning waits on provider readiness polls and migration retries;
	// the request timeout has to outlive the slowest legitimate run.
	r.Use(request.Timeout(10 * time.Minute))

	provisioning.Register(r)
	healthHandler.Register(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
