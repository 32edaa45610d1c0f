package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/salespilot/internal/otp"
	"github.com/frahmantamala/salespilot/internal/payment"
	"github.com/frahmantamala/salespilot/internal/transport/middleware"
	"github.com/frahmantamala/salespilot/internal/transport/swagger"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

// Handlers groups everything the router mounts. A nil handler leaves its
// routes unregistered.
type Handlers struct {
	Health *HealthHandler
	Stripe *payment.StripeHandler
	PayPal *payment.PayPalHandler
	PayU   *payment.PayUHandler
	OTP    *otp.Handler
	// AllowedOrigins feeds the CORS middleware; empty allows none.
	AllowedOrigins []string
	// OpenAPIPath is the file served at /openapi.yml.
	OpenAPIPath string
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, logger *slog.Logger) {
	// Apply global middleware
	router.Use(middleware.CORS(h.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	if h.OpenAPIPath != "" {
		router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, h.OpenAPIPath)
		})
		router.Handle("/swagger/*", swagger.Handler())
	}

	router.Route("/api", func(r chi.Router) {
		if h.Health != nil {
			r.Get("/health", h.Health.healthCheckHandler)
			r.Get("/ping", h.Health.pingHandler)
		}

		if h.Stripe != nil {
			r.Route("/stripe", func(sr chi.Router) {
				sr.Post("/create-session", h.Stripe.CreateSession)
				sr.Get("/success", h.Stripe.Success)
				sr.Post("/webhook", h.Stripe.Webhook)
			})
		}

		if h.PayPal != nil {
			r.Route("/paypal", func(pr chi.Router) {
				pr.Post("/create-order", h.PayPal.CreateOrder)
				pr.Get("/success", h.PayPal.SuccessRedirect)
				pr.Post("/success", h.PayPal.Confirm)
			})
		}

		if h.PayU != nil {
			r.Route("/payu", func(ur chi.Router) {
				ur.Post("/create", h.PayU.Create)
				ur.Get("/convert", h.PayU.Convert)
				// PayU posts the form back; some bank flows come back as GET
				ur.Post("/success", h.PayU.Success)
				ur.Get("/success", h.PayU.Success)
				ur.Post("/failure", h.PayU.Failure)
				ur.Get("/failure", h.PayU.Failure)
			})
		}

		if h.OTP != nil {
			r.Route("/otp", func(or chi.Router) {
				or.Post("/send", h.OTP.Send)
				or.Post("/verify", h.OTP.Verify)
			})
		}
	})
}
