package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cinnamona/bakery/internal/auth"
	"github.com/cinnamona/bakery/internal/catalog"
	"github.com/cinnamona/bakery/internal/storage"
)

// Deps holds everything the HTTP handlers need.
type Deps struct {
	Store          *storage.Store
	Issuer         *auth.Issuer
	Credentials    auth.Credentials
	UploadDir      string
	MaxUploadBytes int64
	WhatsAppNumber string
	StaticDir      string
	AllowedOrigins []string
	Logger         *slog.Logger
	// Now replaces the wall clock for upload names and invoice numbers.
	Now func() time.Time
}

// NewHandler builds the full HTTP handler: the /api routes, health and
// metrics endpoints, uploaded images and the optional static site.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = defaultMaxUploadBytes
	}
	if len(deps.AllowedOrigins) == 0 {
		deps.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(instrument)

	health := newHealth(deps)
	r.Get("/live", health.LiveEndpoint)
	r.Get("/ready", health.ReadyEndpoint)
	r.Handle("/metrics", promhttp.Handler())

	gate := RequireAuth(deps.Issuer)
	r.Route("/api", func(r chi.Router) {
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			httpError(w, http.StatusNotFound, "API endpoint not found")
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			httpError(w, http.StatusMethodNotAllowed, "Method not allowed")
		})

		r.Get("/health", handleHealth(deps))
		r.Post("/auth/login", handleLogin(deps))
		r.With(gate).Get("/auth/me", handleMe)

		r.Get("/settings", handleGetSettings(deps))
		r.With(gate).Put("/settings", handlePutSettings(deps))
		r.With(gate).Post("/upload", handleUpload(deps))
		r.Post("/contact", handleContact(deps))

		public := map[string]http.HandlerFunc{
			catalog.OrdersCollection: handlePlaceOrder(deps),
		}
		for _, s := range catalog.Collections() {
			mountCollection(r, deps, s, gate, public[s.Collection])
		}
	})

	mountFiles(r, deps)
	return r
}
