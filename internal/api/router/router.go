package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/runcall/platform/internal/availability"
	"github.com/runcall/platform/internal/bookings"
	"github.com/runcall/platform/internal/google"
	httpmiddleware "github.com/runcall/platform/internal/http/middleware"
	"github.com/runcall/platform/internal/payments"
	"github.com/runcall/platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	SlotsHandler       *availability.Handler
	BookingsHandler    *bookings.Handler
	StripeWebhook      *payments.StripeWebhookHandler
	GoogleOAuth        *google.OAuthHandler
	MetricsHandler     http.Handler
	AdminAuthSecret    string
	CORSAllowedOrigins []string
	// PublicRateLimit is requests/sec per IP on the public surface;
	// zero disables limiting.
	PublicRateLimit float64
	PublicBurst     int
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		if cfg.PublicRateLimit > 0 {
			public.Use(httpmiddleware.RateLimit(cfg.PublicRateLimit, cfg.PublicBurst))
		}

		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})

		if cfg.SlotsHandler != nil {
			public.Get("/experts/{expertID}/slots", cfg.SlotsHandler.GetSlots)
		}
		if cfg.BookingsHandler != nil {
			public.Post("/bookings", cfg.BookingsHandler.CreateHold)
			public.Get("/bookings/{bookingID}", cfg.BookingsHandler.GetBooking)
			public.Post("/bookings/{bookingID}/checkout", cfg.BookingsHandler.CreateCheckout)
			public.Post("/bookings/{bookingID}/cancel", cfg.BookingsHandler.CancelBooking)
		}
		if cfg.GoogleOAuth != nil {
			public.Mount("/google", cfg.GoogleOAuth.Routes())
		}
	})

	// Webhooks skip the per-IP limiter: Stripe retries from shared IPs.
	if cfg.StripeWebhook != nil {
		r.Post("/webhooks/stripe", cfg.StripeWebhook.Handle)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Operator endpoints (JWT protected)
	if cfg.BookingsHandler != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Post("/bookings/{bookingID}/confirm", cfg.BookingsHandler.AdminConfirm)
			admin.Post("/bookings/expire", cfg.BookingsHandler.AdminExpire)
		})
	}

	return r
}
