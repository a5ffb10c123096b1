package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"codegw/internal/gateway"
	"codegw/internal/proxy"
	"codegw/internal/registry"
)

// Deps are the collaborators the HTTP layer routes between.
type Deps struct {
	Gateway *gateway.Gateway
	Proxy   *proxy.Proxy
	Models  *registry.DB
	Log     zerolog.Logger
	// MaxBodyBytes caps JSON request bodies; 0 means the 1 MiB default.
	MaxBodyBytes int64
	// CORSOrigins enables CORS for the given origins when non-empty.
	CORSOrigins []string
}

type server struct {
	gw     *gateway.Gateway
	proxy  *proxy.Proxy
	models *registry.DB
	log    zerolog.Logger

	maxBodyBytes int64
}

// NewMux builds the gateway's HTTP handler. Paths are fixed: IDE
// plugins discover everything else through /coding_assistant_caps.json.
func NewMux(d Deps) http.Handler {
	s := &server{
		gw:           d.Gateway,
		proxy:        d.Proxy,
		models:       d.Models,
		log:          d.Log,
		maxBodyBytes: d.MaxBodyBytes,
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = 1 << 20
	}

	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: d.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		}))
	}
	r.Use(MetricsMiddleware)
	r.Use(RequestLogger(d.Log))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	// API for the LSP server
	r.Get("/coding_assistant_caps.json", s.handleCaps)
	r.Post("/v1/completions", s.handleCompletions)

	// API for direct FIM and chat usage
	r.Get("/v1/login", s.handleLogin)
	r.Get("/v1/secret-key-activate", s.handleSecretKeyActivate)
	r.Post("/v1/chat", s.handleChat)

	r.Get("/v1/models", s.handleModels)
	r.Post("/v1/chat/completions", s.handleChatCompletions)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}
