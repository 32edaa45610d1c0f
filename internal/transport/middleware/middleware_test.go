package middleware_test

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/salespilot/internal/transport/middleware"
)

type countingBody struct {
	r *bytes.Reader
	n int
}

func (c *countingBody) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func (c *countingBody) Close() error { return nil }

var _ = Describe("LoggingMiddleware", func() {
	var (
		logs   *bytes.Buffer
		logger *slog.Logger
		seen   []byte
		next   http.Handler
	)

	BeforeEach(func() {
		logs = &bytes.Buffer{}
		logger = slog.New(slog.NewTextHandler(logs, nil))
		seen = nil
		next = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
		})
	})

	It("masks PayU hash and key in form bodies but hands the body on intact", func() {
		body := "txnid=ABC123&key=merchantKey&hash=deadbeefcafe&status=success"
		req := httptest.NewRequest(http.MethodPost, "/api/payu/success", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		middleware.LoggingMiddleware(logger)(next).ServeHTTP(httptest.NewRecorder(), req)

		Expect(string(seen)).To(Equal(body))
		Expect(logs.String()).To(ContainSubstring("ABC123"))
		Expect(logs.String()).NotTo(ContainSubstring("deadbeefcafe"))
		Expect(logs.String()).NotTo(ContainSubstring("merchantKey"))
	})

	It("masks the Stripe signature header", func() {
		req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(`{"id":"evt_1"}`))
		req.Header.Set("Stripe-Signature", "t=1,v1=secretsig")

		middleware.LoggingMiddleware(logger)(next).ServeHTTP(httptest.NewRecorder(), req)

		Expect(string(seen)).To(Equal(`{"id":"evt_1"}`))
		Expect(logs.String()).NotTo(ContainSubstring("secretsig"))
	})

	It("masks OTP codes in JSON bodies", func() {
		req := httptest.NewRequest(http.MethodPost, "/api/otp/verify", strings.NewReader(`{"email":"a@b.co","code":"493817"}`))
		req.Header.Set("Content-Type", "application/json")

		middleware.LoggingMiddleware(logger)(next).ServeHTTP(httptest.NewRecorder(), req)

		Expect(logs.String()).NotTo(ContainSubstring("493817"))
	})

	It("masks payer contact details", func() {
		body := `{"data":{"object":{"customer_details":{"email":"buyer@example.com","phone":"+919999999999"},"amount_total":2900}}}`
		req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		middleware.LoggingMiddleware(logger)(next).ServeHTTP(httptest.NewRecorder(), req)

		Expect(string(seen)).To(Equal(body))
		Expect(logs.String()).To(ContainSubstring("2900"))
		Expect(logs.String()).NotTo(ContainSubstring("buyer@example.com"))
		Expect(logs.String()).NotTo(ContainSubstring("9999999999"))
	})

	It("reads only a bounded prefix before the handler runs", func() {
		payload := bytes.Repeat([]byte("a"), 1<<20)
		counted := &countingBody{r: bytes.NewReader(payload)}
		req := httptest.NewRequest(http.MethodPost, "/api/payu/success", nil)
		req.Body = counted

		readBefore := -1
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			readBefore = counted.n
			seen, _ = io.ReadAll(r.Body)
		})
		middleware.LoggingMiddleware(logger)(handler).ServeHTTP(httptest.NewRecorder(), req)

		Expect(readBefore).To(BeNumerically("<=", 8<<10+1))
		Expect(seen).To(Equal(payload))
		Expect(logs.String()).To(ContainSubstring("OMITTED"))
	})

	It("leaves the body for handlers that cap its size", func() {
		req := httptest.NewRequest(http.MethodPost, "/api/otp/send", bytes.NewReader(bytes.Repeat([]byte("b"), 64<<10)))

		var readErr error
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, readErr = io.ReadAll(http.MaxBytesReader(w, r.Body, 16<<10))
		})
		middleware.LoggingMiddleware(logger)(handler).ServeHTTP(httptest.NewRecorder(), req)

		var tooLarge *http.MaxBytesError
		Expect(errors.As(readErr, &tooLarge)).To(BeTrue())
	})

	It("masks the PayPal token in redirect queries", func() {
		req := httptest.NewRequest(http.MethodGet, "/api/paypal/success?token=ORDERTOKEN9&PayerID=P1", nil)

		middleware.LoggingMiddleware(logger)(next).ServeHTTP(httptest.NewRecorder(), req)

		Expect(logs.String()).NotTo(ContainSubstring("ORDERTOKEN9"))
		Expect(logs.String()).To(ContainSubstring("PayerID=P1"))
	})
})

var _ = Describe("RecoveryMiddleware", func() {
	It("turns a panic into a 500 without leaking the panic value", func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		h := middleware.RecoveryMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("store exploded")
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ping", nil))

		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		Expect(rec.Body.String()).To(ContainSubstring("INTERNAL_ERROR"))
		Expect(rec.Body.String()).NotTo(ContainSubstring("store exploded"))
	})
})

var _ = Describe("CORS", func() {
	It("lets gateway callbacks without an Origin through untouched", func() {
		called := false
		h := middleware.CORS(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/payu/success", nil))

		Expect(called).To(BeTrue())
		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(BeEmpty())
	})

	It("allows any origin with a wildcard", func() {
		h := middleware.CORS([]string{"*"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

		req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
		req.Header.Set("Origin", "https://partner.example.org")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
	})

	It("matches configured origins with or without a trailing slash", func() {
		h := middleware.CORS([]string{"https://salespilot.example.com/"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

		req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
		req.Header.Set("Origin", "https://salespilot.example.com")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("https://salespilot.example.com"))
	})
})
