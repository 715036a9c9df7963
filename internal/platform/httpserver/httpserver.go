// Package httpserver builds the node's HTTP server.
package httpserver

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"rotrust/internal/platform/config"
)

// New builds an HTTP server for handler. Requests are traced with the global
// tracer provider; with no exporter configured the spans are dropped.
func New(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           otelhttp.NewHandler(handler, "rotrust.http"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
}
