package rest_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/salespilot/internal/fx"
	"github.com/frahmantamala/salespilot/internal/otp"
	"github.com/frahmantamala/salespilot/internal/payment"
	"github.com/frahmantamala/salespilot/internal/transport/rest"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error { return p.err }

func newTestRouter(pingErr error) *chi.Mux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	urls := payment.URLs{Public: "https://salespilot.example.com"}

	service := payment.NewService(payment.UnconfiguredStore{}, nil, logger)
	converter := fx.NewConverter(nil, nil, fx.Options{}, logger)
	payu := payment.NewPayUVerifier("merchantKey", "merchantSalt")
	otpService := otp.NewService(nil, nil, nil, otp.Options{BCryptCost: bcrypt.MinCost}, logger)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, rest.Handlers{
		Health: rest.NewHealthHandler(map[string]rest.Pinger{
			"payment_store":  stubPinger{err: pingErr},
			"payment_events": payment.NewEventHandler(logger),
		}),
		Stripe:         payment.NewStripeHandler(service, nil, "", urls, logger),
		PayPal:         payment.NewPayPalHandler(service, nil, urls, logger),
		PayU:           payment.NewPayUHandler(service, payu, converter, "https://test.payu.in/_payment", urls, logger),
		OTP:            otp.NewHandler(otpService, logger),
		AllowedOrigins: []string{"https://salespilot.example.com"},
	}, logger)
	return router
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

var _ = Describe("Router", func() {
	Describe("health", func() {
		It("answers ping", func() {
			rec := serve(newTestRouter(nil), httptest.NewRequest(http.MethodGet, "/api/ping", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("OK"))
		})

		It("reports 503 when the payment store is unreachable", func() {
			rec := serve(newTestRouter(errors.New("connection refused")), httptest.NewRequest(http.MethodGet, "/api/health", nil))
			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))

			var body rest.HealthResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Status).To(Equal(rest.HealthUnhealthy))
			Expect(body.Components["payment_store"].Message).To(Equal("connection refused"))
		})

		It("reports healthy components with reconciliation counts", func() {
			rec := serve(newTestRouter(nil), httptest.NewRequest(http.MethodGet, "/api/health", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))

			var body rest.HealthResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Components["payment_events"].Status).To(Equal(rest.HealthHealthy))
			Expect(body.Components["payment_events"].Details).To(HaveKeyWithValue("recorded", BeNumerically("==", 0)))
			Expect(body.Components["payment_events"].Details).To(HaveKeyWithValue("rejected", BeNumerically("==", 0)))
		})
	})

	Describe("unconfigured gateways", func() {
		It("returns a configuration error for stripe checkout", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/stripe/create-session", strings.NewReader(`{"amount":29,"planName":"Pro"}`))
			req.Header.Set("Content-Type", "application/json")
			rec := serve(newTestRouter(nil), req)

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(rec.Body.String()).To(ContainSubstring("GATEWAY_NOT_CONFIGURED"))
		})

		It("redirects the paypal return to the failure page", func() {
			rec := serve(newTestRouter(nil), httptest.NewRequest(http.MethodGet, "/api/paypal/success?token=ORDER1&PayerID=P1", nil))

			Expect(rec.Code).To(Equal(http.StatusFound))
			Expect(rec.Header().Get("Location")).To(Equal("/payment/failed?error=config"))
		})

		It("rejects stripe webhooks without a secret", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(`{}`))
			req.Header.Set("Stripe-Signature", "t=1,v1=abc")
			rec := serve(newTestRouter(nil), req)

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("payu", func() {
		It("redirects a verified callback to the success page even when nothing could be stored", func() {
			verifier := payment.NewPayUVerifier("merchantKey", "merchantSalt")
			fields := map[string]string{
				"txnid":       "ABC123",
				"amount":      "2564.76",
				"productinfo": "Pro",
				"firstname":   "Asha",
				"email":       "asha@example.com",
				"status":      "success",
			}
			fields["hash"] = verifier.ResponseHash(fields)

			form := url.Values{}
			for k, v := range fields {
				form.Set(k, v)
			}
			req := httptest.NewRequest(http.MethodPost, "/api/payu/success", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := serve(newTestRouter(nil), req)

			Expect(rec.Code).To(Equal(http.StatusFound))
			Expect(rec.Header().Get("Location")).To(Equal("/payment/success?txnid=ABC123&status=success&verified=true"))
		})

		It("funnels GET failure callbacks into the same handler", func() {
			rec := serve(newTestRouter(nil), httptest.NewRequest(http.MethodGet, "/api/payu/failure?txnid=T1&status=failure&hash=deadbeef", nil))

			Expect(rec.Code).To(Equal(http.StatusFound))
			Expect(rec.Header().Get("Location")).To(Equal("/payment/failed?txnid=T1&status=failure&verified=false"))
		})

		It("converts with the fallback rate when no source is configured", func() {
			rec := serve(newTestRouter(nil), httptest.NewRequest(http.MethodGet, "/api/payu/convert?amount=10", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))

			var body payment.ConversionResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Source).To(Equal(fx.SourceFallback))
			Expect(body.Rate).To(Equal(88.44))
			Expect(body.AmountINR).To(BeNumerically("~", 884.4, 1e-9))
		})
	})

	Describe("otp", func() {
		It("issues a code", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/otp/send", strings.NewReader(`{"email":"lead@example.com"}`))
			req.Header.Set("Content-Type", "application/json")
			rec := serve(newTestRouter(nil), req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"sent":true`))
		})
	})

	Describe("CORS", func() {
		It("answers preflight requests from the site", func() {
			req := httptest.NewRequest(http.MethodOptions, "/api/otp/send", nil)
			req.Header.Set("Origin", "https://salespilot.example.com")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rec := serve(newTestRouter(nil), req)

			Expect(rec.Code).To(BeNumerically("<", 300))
			Expect(rec.Header().Get("Access-Control-Allow-Methods")).To(ContainSubstring(http.MethodPost))
			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("https://salespilot.example.com"))
		})

		It("does not allow unknown origins", func() {
			req := httptest.NewRequest(http.MethodOptions, "/api/otp/send", nil)
			req.Header.Set("Origin", "https://evil.example.net")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rec := serve(newTestRouter(nil), req)

			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(BeEmpty())
			Expect(rec.Header().Get("Access-Control-Allow-Methods")).To(BeEmpty())
		})
	})
})
