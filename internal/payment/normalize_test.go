package payment_test

import (
	"encoding/json"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stripe/stripe-go/v80"

	"github.com/frahmantamala/salespilot/internal/core/datamodel/payment"
	paymentgatewaytypes "github.com/frahmantamala/salespilot/internal/core/datamodel/paymentgateway"
	paymentPkg "github.com/frahmantamala/salespilot/internal/payment"
)

var _ = Describe("Normalizers", func() {
	Describe("NormalizeStripeSession", func() {
		It("should map a paid session to a completed record", func() {
			sess := &stripe.CheckoutSession{
				ID:            "cs_test_1",
				AmountTotal:   2900,
				Currency:      stripe.CurrencyUSD,
				PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
				Status:        stripe.CheckoutSessionStatusComplete,
				PaymentIntent: &stripe.PaymentIntent{ID: "pi_1"},
				CustomerDetails: &stripe.CheckoutSessionCustomerDetails{
					Email: "Buyer@Example.com",
				},
				Metadata: map[string]string{"planName": "Pro", "segment": "smb", "billingCycle": "monthly"},
			}

			rec := paymentPkg.NormalizeStripeSession(sess, payment.SourceStripeWebhook)
			Expect(rec.Gateway).To(Equal(payment.GatewayStripe))
			Expect(rec.Status).To(Equal(payment.StatusCompleted))
			Expect(*rec.Amount).To(Equal(29.0))
			Expect(rec.Currency).To(Equal("USD"))
			Expect(*rec.SessionID).To(Equal("cs_test_1"))
			Expect(*rec.TransactionID).To(Equal("pi_1"))
			Expect(*rec.UserEmail).To(Equal("buyer@example.com"))
			Expect(*rec.PlanName).To(Equal("Pro"))
			Expect(rec.Metadata).To(HaveKeyWithValue("paymentStatus", "paid"))
			Expect(rec.RawPayload).To(HaveKeyWithValue("id", "cs_test_1"))
		})

		It("should keep an unpaid session's payment status", func() {
			sess := &stripe.CheckoutSession{ID: "cs_2", PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid}
			rec := paymentPkg.NormalizeStripeSession(sess, payment.SourceStripeSuccessRedirect)
			Expect(rec.Status).To(Equal("unpaid"))
			Expect(rec.UserEmail).To(BeNil())
		})
	})

	Describe("NormalizePayPalOrder", func() {
		It("should prefer the capture over the order details", func() {
			order := &paymentgatewaytypes.Order{
				ID:     "O-1",
				Status: paymentgatewaytypes.OrderStatusApproved,
				PurchaseUnits: []paymentgatewaytypes.PurchaseUnit{{
					CustomID: "smb|monthly|Pro",
					Amount:   &paymentgatewaytypes.Money{CurrencyCode: "USD", Value: "29.00"},
				}},
			}
			captured := capturedOrder("O-1", "CAP-1", "29.00", "smb|monthly|Pro")

			rec := paymentPkg.NormalizePayPalOrder("O-1", order, captured, paymentPkg.CheckoutContext{}, payment.SourcePayPalSuccessRedirect)
			Expect(rec.Status).To(Equal(payment.StatusCompleted))
			Expect(*rec.TransactionID).To(Equal("CAP-1"))
			Expect(*rec.Amount).To(Equal(29.0))
			Expect(*rec.Segment).To(Equal("smb"))
			Expect(*rec.BillingCycle).To(Equal("monthly"))
			Expect(*rec.PlanName).To(Equal("Pro"))
			Expect(*rec.UserEmail).To(Equal("buyer@example.com"))
			Expect(rec.Metadata).To(HaveKeyWithValue("orderStatus", "APPROVED"))
			Expect(rec.Metadata).To(HaveKeyWithValue("captureStatus", "COMPLETED"))
		})

		It("should fall back to a pending record when PayPal answered nothing", func() {
			rec := paymentPkg.NormalizePayPalOrder("O-2", nil, nil, paymentPkg.CheckoutContext{PlanName: "Team"}, payment.SourcePayPalSuccessRedirect)
			Expect(rec.Status).To(Equal(payment.StatusPending))
			Expect(*rec.OrderID).To(Equal("O-2"))
			Expect(rec.Amount).To(BeNil())
			Expect(rec.Currency).To(Equal("USD"))
			Expect(*rec.PlanName).To(Equal("Team"))
		})
	})

	Describe("NormalizePayU", func() {
		It("should read plan context from the udf fields and drop the hash", func() {
			fields := map[string]string{
				"txnid":  "T1",
				"amount": "100.50",
				"status": "SUCCESS",
				"udf1":   "enterprise",
				"udf2":   "yearly",
				"udf3":   "Scale",
				"email":  "X@Y.in",
				"hash":   "deadbeef",
			}
			rec := paymentPkg.NormalizePayU(fields, payment.SourcePayUSuccessRedirect)
			Expect(rec.Status).To(Equal("success"))
			Expect(*rec.TxnID).To(Equal("T1"))
			Expect(*rec.Amount).To(Equal(100.5))
			Expect(*rec.Segment).To(Equal("enterprise"))
			Expect(*rec.BillingCycle).To(Equal("yearly"))
			Expect(*rec.PlanName).To(Equal("Scale"))
			Expect(*rec.UserEmail).To(Equal("x@y.in"))
			Expect(rec.RawPayload).ToNot(HaveKey("hash"))
			Expect(rec.RawPayload).To(HaveKeyWithValue("txnid", "T1"))
		})

		It("should use productinfo when udf3 is empty", func() {
			rec := paymentPkg.NormalizePayU(map[string]string{"productinfo": "Starter"}, payment.SourcePayUFailureRedirect)
			Expect(*rec.PlanName).To(Equal("Starter"))
			Expect(rec.Status).To(Equal(payment.StatusPending))
		})
	})

	Describe("CoerceAmount", func() {
		DescribeTable("coercion",
			func(in interface{}, want *float64) {
				got := paymentPkg.CoerceAmount(in)
				if want == nil {
					Expect(got).To(BeNil())
					return
				}
				Expect(got).ToNot(BeNil())
				Expect(*got).To(Equal(*want))
			},
			Entry("float", 12.5, floatPtr(12.5)),
			Entry("int", 7, floatPtr(7)),
			Entry("numeric string", " 19.99 ", floatPtr(19.99)),
			Entry("json number", json.Number("3"), floatPtr(3)),
			Entry("empty string", "", nil),
			Entry("garbage", "abc", nil),
			Entry("NaN", math.NaN(), nil),
			Entry("infinity", math.Inf(1), nil),
			Entry("nil", nil, nil),
			Entry("unsupported type", []int{1}, nil),
		)
	})

	Describe("SanitizePayload", func() {
		It("should deep copy into plain JSON values", func() {
			out := paymentPkg.SanitizePayload(map[string]interface{}{"n": 1, "nested": map[string]int{"a": 2}})
			Expect(out).To(HaveKeyWithValue("n", 1.0))
			Expect(out["nested"]).To(Equal(map[string]any{"a": 2.0}))
		})

		It("should return nil for values JSON cannot encode", func() {
			Expect(paymentPkg.SanitizePayload(map[string]interface{}{"ch": make(chan int)})).To(BeNil())
			Expect(paymentPkg.SanitizePayload("not an object")).To(BeNil())
		})

		It("should give an empty metadata map instead of nil", func() {
			Expect(paymentPkg.SanitizeMetadata(func() {})).To(Equal(map[string]any{}))
		})
	})

	Describe("CheckoutContext", func() {
		It("should round-trip through the PayPal custom_id", func() {
			c := paymentPkg.CheckoutContext{Segment: "smb", BillingCycle: "monthly", PlanName: "Pro | Annual"}
			parsed := paymentPkg.ParsePayPalCustomID(c.PayPalCustomID())
			Expect(parsed.Segment).To(Equal("smb"))
			Expect(parsed.BillingCycle).To(Equal("monthly"))
			Expect(parsed.PlanName).To(Equal("Pro | Annual"))
		})

		It("should cap the custom_id at 127 bytes", func() {
			c := paymentPkg.CheckoutContext{PlanName: string(make([]byte, 300))}
			Expect(len(c.PayPalCustomID())).To(Equal(127))
		})
	})
})
