package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hamed0406/searchcaps/internal/capability"
	apimw "github.com/hamed0406/searchcaps/internal/httpapi/middleware"
)

type Server struct {
	Logger   *zap.Logger
	Registry *capability.Registry
	Gatherer prometheus.Gatherer // nil disables /metrics
}

func NewServer(l *zap.Logger, reg *capability.Registry, g prometheus.Gatherer) *Server {
	return &Server{Logger: l, Registry: reg, Gatherer: g}
}

// Router wires the public routes. keys empty = open API; rpm <= 0 disables
// rate limiting; no allowedOrigins = any origin.
func (s *Server) Router(keys []string, allowedOrigins []string, rpm, burst int) http.Handler {
	r := chi.NewRouter()

	if len(allowedOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "X-API-Key"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(pr chi.Router) {
		pr.Use(apimw.RateLimit(rpm, burst))
		pr.Use(apimw.RequireKey(keys))
		pr.Get("/api/capabilities", s.handleCollect)
		pr.Get("/api/capabilities/{namespace}", s.handleNamespace)
	})

	return r
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	snap := s.Registry.Collect(r.Context())
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleNamespace(w http.ResponseWriter, r *http.Request) {
	ns := chi.URLParam(r, "namespace")
	src, ok := s.Registry.Lookup(ns)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown namespace"})
		return
	}
	caps, err := src.Capabilities(r.Context())
	if err != nil {
		s.Logger.Warn("capability_source_failed", zap.String("namespace", ns), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"namespace": ns, "capabilities": caps})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
