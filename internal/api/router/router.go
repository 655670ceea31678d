package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/contractor-relay/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/contractor-relay/internal/http/middleware"
	"github.com/wolfman30/contractor-relay/pkg/logging"
)

// HealthChecker reports whether a backing service is reachable.
type HealthChecker func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Webhook            *handlers.WebhookHandler
	WebhookLimiter     *httpmiddleware.IPLimiter
	Admin              *handlers.AdminRelayHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	// HealthChecks are probed by /health; any failure reports 503.
	HealthChecks map[string]HealthChecker
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(logger))

	// Public endpoints (webhook, health, metrics)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthChecks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Webhook != nil {
			hook := public
			if cfg.WebhookLimiter != nil {
				hook = public.With(cfg.WebhookLimiter.Handler(logger))
			}
			hook.Post("/webhook/whatsapp", cfg.Webhook.Handle)
		}
	})

	// Admin routes, JSON only, behind an HS256 bearer token.
	if cfg.Admin != nil && cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, logger))
			cfg.Admin.RegisterRoutes(admin)
		})
	}

	return r
}

func healthHandler(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		resp := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				resp["status"] = "degraded"
				resp[name] = err.Error()
				continue
			}
			resp[name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
