package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v80"

	"github.com/frahmantamala/salespilot/internal/core/datamodel/payment"
	paymentgatewaytypes "github.com/frahmantamala/salespilot/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/salespilot/internal/fx"
	paymentPkg "github.com/frahmantamala/salespilot/internal/payment"
)

const webhookSecret = "whsec_test_secret"

var testURLs = paymentPkg.URLs{Public: "https://shop.example.com"}

type fixedConverter struct {
	rate decimal.Decimal
}

func (c fixedConverter) USDToINR(_ context.Context, amount float64) (*fx.Conversion, error) {
	if amount <= 0 {
		return nil, fx.ErrInvalidAmount
	}
	return &fx.Conversion{
		Rate:      c.rate,
		AmountINR: c.rate.Mul(decimal.NewFromFloat(amount)),
		Source:    fx.SourceFallback,
	}, nil
}

func jsonRequest(method, target string, body interface{}) *http.Request {
	b, err := json.Marshal(body)
	Expect(err).ToNot(HaveOccurred())
	req := httptest.NewRequest(method, target, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func formRequest(target string, fields map[string]string) *http.Request {
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func decodeBody(rec *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	Expect(json.Unmarshal(rec.Body.Bytes(), &out)).To(Succeed())
	return out
}

var _ = Describe("StripeHandler", func() {
	var (
		store    *memoryStore
		sessions *fakeSessions
		handler  *paymentPkg.StripeHandler
		recorder *httptest.ResponseRecorder
	)

	BeforeEach(func() {
		store = newMemoryStore()
		sessions = &fakeSessions{sessions: map[string]*stripe.CheckoutSession{}}
		service := paymentPkg.NewService(store, nil, discardLogger())
		handler = paymentPkg.NewStripeHandler(service, sessions, webhookSecret, testURLs, discardLogger())
		recorder = httptest.NewRecorder()
	})

	Describe("Webhook", func() {
		It("should record a correctly signed checkout.session.completed", func() {
			payload := checkoutCompletedEvent("cs_test_1")
			req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(payload))
			req.Header.Set("Stripe-Signature", stripeSignature(webhookSecret, payload, time.Now()))

			handler.Webhook(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(decodeBody(recorder)).To(HaveKeyWithValue("received", true))

			rec, err := store.Get(context.Background(), "cs_test_1")
			Expect(err).ToNot(HaveOccurred())
			Expect(rec.Status).To(Equal(payment.StatusCompleted))
			Expect(*rec.Amount).To(Equal(29.0))
			Expect(rec.Source).To(Equal(payment.SourceStripeWebhook))
			Expect(store.writes).To(ConsistOf(paymentPkg.WriteOptions{DocID: "cs_test_1", Merge: true}))
		})

		It("should reject a tampered payload without writing", func() {
			payload := checkoutCompletedEvent("cs_test_1")
			signature := stripeSignature(webhookSecret, payload, time.Now())
			tampered := bytes.Replace(payload, []byte("2900"), []byte("1"), 1)

			req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(tampered))
			req.Header.Set("Stripe-Signature", signature)
			handler.Webhook(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
			Expect(store.writeCount()).To(Equal(0))
		})

		It("should reject a delivery without a signature header", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(checkoutCompletedEvent("cs_1")))
			handler.Webhook(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})

		It("should answer 500 when the write fails so Stripe retries", func() {
			store.writeErr = errors.New("backend down")
			payload := checkoutCompletedEvent("cs_test_1")
			req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(payload))
			req.Header.Set("Stripe-Signature", stripeSignature(webhookSecret, payload, time.Now()))

			handler.Webhook(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusInternalServerError))
		})

		It("should acknowledge event types it does not reconcile", func() {
			payload := []byte(`{"id":"evt_2","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`)
			req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(payload))
			req.Header.Set("Stripe-Signature", stripeSignature(webhookSecret, payload, time.Now()))

			handler.Webhook(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(store.writeCount()).To(Equal(0))
		})

		Context("when a checkout sends both session and payment intent events", func() {
			deliver := func(payload []byte) {
				recorder = httptest.NewRecorder()
				req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(payload))
				req.Header.Set("Stripe-Signature", stripeSignature(webhookSecret, payload, time.Now()))
				handler.Webhook(recorder, req)
			}

			It("should keep a single document keyed by the session id", func() {
				sessions.byIntent = map[string]string{"pi_test_1": "cs_test_1"}

				deliver(checkoutCompletedEvent("cs_test_1"))
				Expect(recorder.Code).To(Equal(http.StatusOK))
				deliver(paymentIntentSucceededEvent("pi_test_1"))
				Expect(recorder.Code).To(Equal(http.StatusOK))

				Expect(store.writes).To(ConsistOf(
					paymentPkg.WriteOptions{DocID: "cs_test_1", Merge: true},
					paymentPkg.WriteOptions{DocID: "cs_test_1", Merge: true},
				))
				_, err := store.Get(context.Background(), "pi_test_1")
				Expect(err).To(MatchError(paymentPkg.ErrNotFound))

				rec, err := store.Get(context.Background(), "cs_test_1")
				Expect(err).ToNot(HaveOccurred())
				Expect(*rec.SessionID).To(Equal("cs_test_1"))
				Expect(*rec.TransactionID).To(Equal("pi_test_1"))
				Expect(rec.Status).To(Equal(payment.StatusCompleted))
			})

			It("should acknowledge the intent without writing when no session is found", func() {
				deliver(paymentIntentSucceededEvent("pi_unknown"))

				Expect(recorder.Code).To(Equal(http.StatusOK))
				Expect(store.writeCount()).To(Equal(0))
			})

			It("should ask Stripe to retry when the session lookup fails", func() {
				sessions.findErr = errors.New("stripe unavailable")
				deliver(paymentIntentSucceededEvent("pi_test_1"))

				Expect(recorder.Code).To(BeNumerically(">=", 500))
				Expect(store.writeCount()).To(Equal(0))
			})
		})

		It("should answer 500 without a webhook secret", func() {
			service := paymentPkg.NewService(store, nil, discardLogger())
			unconfigured := paymentPkg.NewStripeHandler(service, sessions, "", testURLs, discardLogger())
			req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader([]byte("{}")))

			unconfigured.Webhook(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("Success", func() {
		It("should redirect a paid session to the success page", func() {
			sessions.sessions["cs_paid"] = &stripe.CheckoutSession{
				ID:            "cs_paid",
				AmountTotal:   4900,
				Currency:      stripe.CurrencyUSD,
				PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
				PaymentIntent: &stripe.PaymentIntent{ID: "pi_paid"},
				Metadata:      map[string]string{"planName": "Team"},
			}
			req := httptest.NewRequest(http.MethodGet, "/api/stripe/success?session_id=cs_paid", nil)

			handler.Success(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusFound))
			Expect(recorder.Header().Get("Location")).To(Equal("/payment/success?amount=49.00&currency=USD&plan=Team&payment_id=pi_paid"))
			Expect(store.writes).To(ConsistOf(paymentPkg.WriteOptions{DocID: "cs_paid"}))
		})

		It("should send an unpaid session to the failure page without writing", func() {
			sessions.sessions["cs_unpaid"] = &stripe.CheckoutSession{ID: "cs_unpaid", PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid}
			req := httptest.NewRequest(http.MethodGet, "/api/stripe/success?session_id=cs_unpaid", nil)

			handler.Success(recorder, req)

			Expect(recorder.Header().Get("Location")).To(Equal("/payment/failed?error=payment_incomplete&status=unpaid"))
			Expect(store.writeCount()).To(Equal(0))
		})

		It("should reject a missing session id", func() {
			handler.Success(recorder, httptest.NewRequest(http.MethodGet, "/api/stripe/success", nil))
			Expect(recorder.Header().Get("Location")).To(Equal("/payment/failed?error=missing_session_id"))
		})
	})

	Describe("CreateSession", func() {
		It("should create a checkout session carrying the plan context", func() {
			req := jsonRequest(http.MethodPost, "/api/stripe/create-session", map[string]interface{}{
				"amount": 29.99, "planName": "Pro", "segment": "smb", "billingCycle": "monthly", "email": "a@b.co",
			})

			handler.CreateSession(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(decodeBody(recorder)).To(HaveKeyWithValue("sessionId", "cs_test_new"))
			params := sessions.created
			Expect(params).ToNot(BeNil())
			Expect(*params.LineItems[0].PriceData.UnitAmount).To(Equal(int64(2999)))
			Expect(*params.LineItems[0].PriceData.Currency).To(Equal("usd"))
			Expect(*params.SuccessURL).To(Equal("https://shop.example.com/api/stripe/success?session_id={CHECKOUT_SESSION_ID}"))
			Expect(params.Metadata).To(HaveKeyWithValue("planName", "Pro"))
			Expect(params.PaymentIntentData.Metadata).To(HaveKeyWithValue("segment", "smb"))
		})

		It("should reject a non-positive amount", func() {
			req := jsonRequest(http.MethodPost, "/api/stripe/create-session", map[string]interface{}{"amount": -5, "planName": "Pro"})
			handler.CreateSession(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})

		It("should answer 500 when Stripe is not configured", func() {
			service := paymentPkg.NewService(store, nil, discardLogger())
			unconfigured := paymentPkg.NewStripeHandler(service, nil, webhookSecret, testURLs, discardLogger())
			req := jsonRequest(http.MethodPost, "/api/stripe/create-session", map[string]interface{}{"amount": 10, "planName": "Pro"})

			unconfigured.CreateSession(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusInternalServerError))
		})
	})
})

var _ = Describe("PayPalHandler", func() {
	var (
		store    *memoryStore
		orders   *fakeOrders
		handler  *paymentPkg.PayPalHandler
		recorder *httptest.ResponseRecorder
	)

	BeforeEach(func() {
		store = newMemoryStore()
		orders = &fakeOrders{}
		service := paymentPkg.NewService(store, nil, discardLogger())
		handler = paymentPkg.NewPayPalHandler(service, orders, testURLs, discardLogger())
		recorder = httptest.NewRecorder()
	})

	Describe("SuccessRedirect", func() {
		It("should capture the order and redirect to the success page", func() {
			orders.order = &paymentgatewaytypes.Order{ID: "O-1", Status: paymentgatewaytypes.OrderStatusApproved}
			orders.captured = capturedOrder("O-1", "CAP-1", "29.00", "smb|monthly|Pro")
			req := httptest.NewRequest(http.MethodGet, "/api/paypal/success?token=O-1&PayerID=PAYER1", nil)

			handler.SuccessRedirect(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusFound))
			Expect(recorder.Header().Get("Location")).To(Equal("/payment/success?amount=29.00&currency=USD&plan=Pro&payment_id=CAP-1"))
			Expect(orders.captureCalls).To(Equal(1))

			rec, err := store.Get(context.Background(), "O-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(rec.Status).To(Equal(payment.StatusCompleted))
			Expect(rec.Metadata).To(HaveKeyWithValue("payerId", "PAYER1"))
		})

		It("should still write a pending record when PayPal is unreachable", func() {
			orders.getErr = errors.New("timeout")
			orders.captureErr = errors.New("timeout")
			req := httptest.NewRequest(http.MethodGet, "/api/paypal/success?token=O-2", nil)

			handler.SuccessRedirect(recorder, req)

			Expect(recorder.Header().Get("Location")).To(Equal("/payment/failed?error=payment_pending&status=pending"))
			rec, err := store.Get(context.Background(), "O-2")
			Expect(err).ToNot(HaveOccurred())
			Expect(rec.Status).To(Equal(payment.StatusPending))
		})

		It("should not capture an order that is already completed", func() {
			orders.order = capturedOrder("O-3", "CAP-3", "10.00", "")
			req := httptest.NewRequest(http.MethodGet, "/api/paypal/success?token=O-3", nil)

			handler.SuccessRedirect(recorder, req)

			Expect(orders.captureCalls).To(Equal(0))
			Expect(recorder.Header().Get("Location")).To(HavePrefix("/payment/success?"))
		})

		It("should reject a missing token", func() {
			handler.SuccessRedirect(recorder, httptest.NewRequest(http.MethodGet, "/api/paypal/success", nil))
			Expect(recorder.Header().Get("Location")).To(Equal("/payment/failed?error=missing_token"))
		})
	})

	Describe("Confirm", func() {
		It("should merge the client confirmation without capturing", func() {
			orders.order = capturedOrder("O-4", "CAP-4", "99.00", "")
			req := jsonRequest(http.MethodPost, "/api/paypal/success", map[string]string{
				"orderID": "O-4", "planName": "Scale", "segment": "enterprise", "billingCycle": "yearly",
			})

			handler.Confirm(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(decodeBody(recorder)).To(HaveKeyWithValue("success", true))
			Expect(orders.captureCalls).To(Equal(0))
			Expect(store.writes).To(ConsistOf(paymentPkg.WriteOptions{DocID: "O-4", Merge: true}))

			rec, _ := store.Get(context.Background(), "O-4")
			Expect(*rec.PlanName).To(Equal("Scale"))
			Expect(rec.Source).To(Equal(payment.SourcePayPalClientConfirm))
		})

		It("should reject a body without an order id", func() {
			handler.Confirm(recorder, jsonRequest(http.MethodPost, "/api/paypal/success", map[string]string{}))
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("CreateOrder", func() {
		It("should pack the plan context into custom_id", func() {
			req := jsonRequest(http.MethodPost, "/api/paypal/create-order", map[string]interface{}{
				"amount": 29, "planName": "Pro", "segment": "smb", "billingCycle": "monthly",
			})

			handler.CreateOrder(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))
			body := decodeBody(recorder)
			Expect(body).To(HaveKeyWithValue("orderId", "ORDER-NEW"))
			Expect(body).To(HaveKeyWithValue("approveUrl", "https://www.sandbox.paypal.com/checkoutnow?token=ORDER-NEW"))
			Expect(orders.created.PurchaseUnits[0].CustomID).To(Equal("smb|monthly|Pro"))
			Expect(orders.created.PurchaseUnits[0].Amount.Value).To(Equal("29.00"))
			Expect(orders.created.ApplicationContext.ReturnURL).To(Equal("https://shop.example.com/api/paypal/success"))
		})
	})
})

var _ = Describe("PayUHandler", func() {
	var (
		store    *memoryStore
		verifier *paymentPkg.PayUVerifier
		handler  *paymentPkg.PayUHandler
		recorder *httptest.ResponseRecorder
	)

	BeforeEach(func() {
		store = newMemoryStore()
		verifier = paymentPkg.NewPayUVerifier("gtKFFx", "eCwWELxi")
		service := paymentPkg.NewService(store, nil, discardLogger())
		converter := fixedConverter{rate: decimal.RequireFromString("88.44")}
		handler = paymentPkg.NewPayUHandler(service, verifier, converter, "https://test.payu.in/_payment", testURLs, discardLogger())
		recorder = httptest.NewRecorder()
	})

	Describe("Success", func() {
		It("should redirect a verified payment with the stored document id", func() {
			handler.Success(recorder, formRequest("/api/payu/success", payuCallback(verifier, "success")))

			Expect(recorder.Code).To(Equal(http.StatusFound))
			Expect(recorder.Header().Get("Location")).To(Equal("/payment/success?txnid=ABC123&status=success&verified=true&payment_doc_id=ABC123"))

			rec, err := store.Get(context.Background(), "ABC123")
			Expect(err).ToNot(HaveOccurred())
			Expect(rec.RawPayload).ToNot(HaveKey("hash"))
			Expect(rec.Source).To(Equal(payment.SourcePayUSuccessRedirect))
		})

		It("should accept the callback as a query string", func() {
			form := url.Values{}
			for k, v := range payuCallback(verifier, "success") {
				form.Set(k, v)
			}
			req := httptest.NewRequest(http.MethodGet, "/api/payu/success?"+form.Encode(), nil)

			handler.Success(recorder, req)
			Expect(recorder.Header().Get("Location")).To(HavePrefix("/payment/success?txnid=ABC123"))
		})

		It("should still redirect to success when the write fails", func() {
			store.writeErr = errors.New("unavailable")
			handler.Success(recorder, formRequest("/api/payu/success", payuCallback(verifier, "success")))

			Expect(recorder.Header().Get("Location")).To(Equal("/payment/success?txnid=ABC123&status=success&verified=true"))
		})

		It("should send a tampered callback to the failure page without writing", func() {
			fields := payuCallback(verifier, "success")
			fields["amount"] = "1.00"

			handler.Success(recorder, formRequest("/api/payu/success", fields))

			Expect(recorder.Header().Get("Location")).To(Equal("/payment/failed?txnid=ABC123&status=success&verified=false"))
			Expect(store.writeCount()).To(Equal(0))
		})
	})

	Describe("Failure", func() {
		It("should redirect a signed failure to the failure page", func() {
			handler.Failure(recorder, formRequest("/api/payu/failure", payuCallback(verifier, "failure")))

			Expect(recorder.Header().Get("Location")).To(Equal("/payment/failed?txnid=ABC123&status=failure&verified=false"))
			Expect(store.writeCount()).To(Equal(0))
		})

		It("should flag missing credentials", func() {
			service := paymentPkg.NewService(store, nil, discardLogger())
			unconfigured := paymentPkg.NewPayUHandler(service, paymentPkg.NewPayUVerifier("", ""), nil, "", testURLs, discardLogger())

			unconfigured.Failure(recorder, formRequest("/api/payu/failure", map[string]string{"txnid": "T9", "status": "failure"}))
			Expect(recorder.Header().Get("Location")).To(Equal("/payment/failed?txnid=T9&status=failure&verified=false&error=config"))
		})
	})

	Describe("Create", func() {
		It("should convert USD and sign the form", func() {
			req := jsonRequest(http.MethodPost, "/api/payu/create", map[string]interface{}{
				"amount": 29, "currency": "USD", "planName": "Pro", "segment": "smb", "billingCycle": "monthly",
				"email": "asha@example.com", "firstName": "Asha",
			})

			handler.Create(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))
			var body paymentPkg.PayUCheckoutResponse
			Expect(json.Unmarshal(recorder.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Action).To(Equal("https://test.payu.in/_payment"))
			Expect(body.Params).To(HaveKeyWithValue("amount", "2564.76"))
			Expect(body.Params).To(HaveKeyWithValue("udf1", "smb"))
			Expect(body.Params).To(HaveKeyWithValue("surl", "https://shop.example.com/api/payu/success"))
			Expect(len(body.Params["txnid"])).To(BeNumerically("<=", 25))
			Expect(body.Conversion).ToNot(BeNil())
			Expect(body.Conversion.Rate).To(Equal(88.44))

			signed := paymentPkg.PayURequest{
				TxnID:       body.Params["txnid"],
				Amount:      body.Params["amount"],
				ProductInfo: body.Params["productinfo"],
				FirstName:   body.Params["firstname"],
				Email:       body.Params["email"],
				UDF:         [5]string{body.Params["udf1"], body.Params["udf2"], body.Params["udf3"]},
			}
			Expect(body.Params["hash"]).To(Equal(verifier.RequestHash(signed)))
		})

		It("should pass INR amounts through unconverted", func() {
			req := jsonRequest(http.MethodPost, "/api/payu/create", map[string]interface{}{
				"amount": 1999, "currency": "INR", "planName": "Pro", "email": "asha@example.com", "firstName": "Asha",
			})

			handler.Create(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))
			var body paymentPkg.PayUCheckoutResponse
			Expect(json.Unmarshal(recorder.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Params).To(HaveKeyWithValue("amount", "1999.00"))
			Expect(body.Conversion).To(BeNil())
		})

		It("should reject a missing email", func() {
			req := jsonRequest(http.MethodPost, "/api/payu/create", map[string]interface{}{"amount": 10, "planName": "Pro", "firstName": "A"})
			handler.Create(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Convert", func() {
		It("should quote the INR amount", func() {
			handler.Convert(recorder, httptest.NewRequest(http.MethodGet, "/api/payu/convert?amount=10", nil))

			Expect(recorder.Code).To(Equal(http.StatusOK))
			body := decodeBody(recorder)
			Expect(body).To(HaveKeyWithValue("amountInr", 884.4))
			Expect(body).To(HaveKeyWithValue("source", fx.SourceFallback))
		})

		It("should reject a non-numeric amount", func() {
			handler.Convert(recorder, httptest.NewRequest(http.MethodGet, "/api/payu/convert?amount=ten", nil))
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})
	})
})
