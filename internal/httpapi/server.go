// Package httpapi is the HTTP surface described in spec.md §6: /set,
// /get, /replicate, /health, /status, plus the ambient /get_all and
// /metrics endpoints of SPEC_FULL.md §4.7 and §9.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/isparth/kvnode/internal/metrics"
	"github.com/isparth/kvnode/internal/replication"
	"github.com/isparth/kvnode/internal/store"
	"github.com/isparth/kvnode/internal/types"
)

// Node bundles the per-node dependencies the HTTP handlers need.
type Node struct {
	Role        types.Role
	Store       *store.Store
	Replicator  *replication.Replicator // nil on followers
	WriteQuorum int                     // 0 on followers
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// NewRouter builds the node's HTTP handler.
func NewRouter(n *Node) http.Handler {
	if n.Logger == nil {
		n.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(n.Logger))

	r.Post("/set", n.handleSet)
	r.Get("/get", n.handleGet)
	r.Post("/get", n.handleGet)
	r.Post("/replicate", n.handleReplicate)
	r.Get("/health", n.handleHealth)
	r.Get("/status", n.handleStatus)
	r.Get("/get_all", n.handleGetAll)

	if n.Metrics != nil {
		r.Handle("/metrics", n.Metrics.Handler())
	}

	return r
}

// requestLogger is a chi middleware that logs each request through the
// node's structured logger instead of chi's default writer, so every
// line in a process's output shares one format.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method, "path", r.URL.Path,
				"status", ww.Status(), "duration_ms", float64(time.Since(start))/float64(time.Millisecond),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}
