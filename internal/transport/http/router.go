package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dErrors "rotrust/pkg/domain-errors"
	"rotrust/pkg/platform/httputil"
	"rotrust/pkg/platform/middleware/metadata"
	"rotrust/pkg/platform/middleware/request"
	"rotrust/pkg/platform/middleware/requesttime"
)

// ReadinessCheck reports whether the ledger backend can serve requests.
type ReadinessCheck func(ctx context.Context) error

// NewRouter wires the middleware chain, the ledger routes, and the
// operational endpoints.
func NewRouter(h *Handler, logger *slog.Logger, gatherer prometheus.Gatherer, ready ReadinessCheck) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(logger))
	r.Use(request.Recovery(logger))
	r.Use(requesttime.Middleware)
	r.Use(request.Invoker)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				logger.WarnContext(ctx, "readiness check failed", "error", err)
				httputil.WriteJSON(w, http.StatusServiceUnavailable, httputil.ErrorResponse{
					Error:            dErrors.CodeInternal,
					ErrorDescription: "ledger backend unavailable",
				})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	h.Register(r)
	return r
}
