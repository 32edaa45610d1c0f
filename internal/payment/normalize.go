package payment

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v80"

	"github.com/frahmantamala/salespilot/internal/core/datamodel/payment"
	paymentgatewaytypes "github.com/frahmantamala/salespilot/internal/core/datamodel/paymentgateway"
)

// CheckoutContext is the plan context a checkout was started with. It travels
// through gateway metadata (Stripe metadata, PayPal custom_id, PayU udf fields).
type CheckoutContext struct {
	PlanName     string
	Segment      string
	BillingCycle string
	Email        string
}

// PayPalCustomID packs the context into PayPal's 127 byte custom_id.
func (c CheckoutContext) PayPalCustomID() string {
	id := strings.Join([]string{c.Segment, c.BillingCycle, c.PlanName}, "|")
	if len(id) > 127 {
		id = id[:127]
	}
	return id
}

// ParsePayPalCustomID is the inverse of PayPalCustomID. Missing parts stay empty.
func ParsePayPalCustomID(customID string) CheckoutContext {
	parts := strings.SplitN(customID, "|", 3)
	var c CheckoutContext
	if len(parts) > 0 {
		c.Segment = parts[0]
	}
	if len(parts) > 1 {
		c.BillingCycle = parts[1]
	}
	if len(parts) > 2 {
		c.PlanName = parts[2]
	}
	return c
}

func (c CheckoutContext) metadata() map[string]string {
	md := map[string]string{}
	if c.PlanName != "" {
		md["planName"] = c.PlanName
	}
	if c.Segment != "" {
		md["segment"] = c.Segment
	}
	if c.BillingCycle != "" {
		md["billingCycle"] = c.BillingCycle
	}
	return md
}

func (c CheckoutContext) fill(rec *payment.Record) {
	if rec.PlanName == nil {
		rec.PlanName = optional(c.PlanName)
	}
	if rec.Segment == nil {
		rec.Segment = optional(c.Segment)
	}
	if rec.BillingCycle == nil {
		rec.BillingCycle = optional(c.BillingCycle)
	}
	if rec.UserEmail == nil {
		rec.UserEmail = lowerOptional(c.Email)
	}
}

// NormalizeStripeSession maps a Checkout Session to a record keyed by session id.
func NormalizeStripeSession(sess *stripe.CheckoutSession, source string) *payment.Record {
	md := sess.Metadata
	rec := &payment.Record{
		Gateway:      payment.GatewayStripe,
		SessionID:    optional(sess.ID),
		Amount:       minorUnits(sess.AmountTotal),
		Currency:     NormalizeCurrency(string(sess.Currency), "USD"),
		Segment:      optional(md["segment"]),
		BillingCycle: optional(md["billingCycle"]),
		PlanName:     optional(md["planName"]),
		Status:       stripeSessionStatus(sess),
		Source:       source,
	}
	if sess.PaymentIntent != nil {
		rec.TransactionID = optional(sess.PaymentIntent.ID)
	}
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		rec.UserEmail = lowerOptional(sess.CustomerDetails.Email)
	} else {
		rec.UserEmail = lowerOptional(sess.CustomerEmail)
	}

	metadata := SanitizeMetadata(md)
	putNonEmpty(metadata, "paymentStatus", string(sess.PaymentStatus))
	putNonEmpty(metadata, "sessionStatus", string(sess.Status))
	putNonEmpty(metadata, "mode", string(sess.Mode))
	rec.Metadata = metadata
	rec.RawPayload = SanitizePayload(sess)
	return rec
}

// NormalizeStripePaymentIntent maps a PaymentIntent to a record keyed by intent id.
func NormalizeStripePaymentIntent(pi *stripe.PaymentIntent, source string) *payment.Record {
	md := pi.Metadata
	status := strings.ToLower(string(pi.Status))
	if pi.Status == stripe.PaymentIntentStatusSucceeded {
		status = payment.StatusCompleted
	}
	if status == "" {
		status = payment.StatusPending
	}
	rec := &payment.Record{
		Gateway:       payment.GatewayStripe,
		TransactionID: optional(pi.ID),
		Amount:        minorUnits(pi.Amount),
		Currency:      NormalizeCurrency(string(pi.Currency), "USD"),
		Segment:       optional(md["segment"]),
		BillingCycle:  optional(md["billingCycle"]),
		PlanName:      optional(md["planName"]),
		Status:        status,
		UserEmail:     lowerOptional(pi.ReceiptEmail),
		Source:        source,
	}
	metadata := SanitizeMetadata(md)
	if pi.LastPaymentError != nil {
		putNonEmpty(metadata, "lastPaymentError", pi.LastPaymentError.Msg)
	}
	rec.Metadata = metadata
	rec.RawPayload = SanitizePayload(pi)
	return rec
}

// NormalizePayPalOrder prefers the capture answer over the order details; a
// nil pair yields a pending record that still carries the order id.
func NormalizePayPalOrder(orderID string, order, captured *paymentgatewaytypes.Order, checkout CheckoutContext, source string) *payment.Record {
	rec := &payment.Record{
		Gateway:  payment.GatewayPayPal,
		OrderID:  optional(orderID),
		Currency: "USD",
		Status:   payment.StatusPending,
		Source:   source,
	}

	latest := captured
	if latest == nil {
		latest = order
	}

	var customID string
	if latest != nil {
		if latest.Status != "" {
			rec.Status = strings.ToLower(latest.Status)
		}
		if c := latest.FirstCapture(); c != nil {
			rec.TransactionID = optional(c.ID)
			if c.Amount != nil {
				rec.Amount = CoerceAmount(c.Amount.Value)
				rec.Currency = NormalizeCurrency(c.Amount.CurrencyCode, "USD")
			}
		}
		if len(latest.PurchaseUnits) > 0 {
			pu := latest.PurchaseUnits[0]
			customID = pu.CustomID
			if rec.Amount == nil && pu.Amount != nil {
				rec.Amount = CoerceAmount(pu.Amount.Value)
				rec.Currency = NormalizeCurrency(pu.Amount.CurrencyCode, "USD")
			}
		}
		if latest.Payer != nil && checkout.Email == "" {
			checkout.Email = latest.Payer.EmailAddress
		}
	}
	if customID == "" && order != nil && len(order.PurchaseUnits) > 0 {
		customID = order.PurchaseUnits[0].CustomID
	}

	fromCustomID := ParsePayPalCustomID(customID)
	if checkout.PlanName == "" {
		checkout.PlanName = fromCustomID.PlanName
	}
	if checkout.Segment == "" {
		checkout.Segment = fromCustomID.Segment
	}
	if checkout.BillingCycle == "" {
		checkout.BillingCycle = fromCustomID.BillingCycle
	}
	checkout.fill(rec)

	metadata := SanitizeMetadata(checkout.metadata())
	putNonEmpty(metadata, "customId", customID)
	if order != nil {
		putNonEmpty(metadata, "orderStatus", order.Status)
	}
	if captured != nil {
		putNonEmpty(metadata, "captureStatus", captured.Status)
	}
	rec.Metadata = metadata
	rec.RawPayload = SanitizePayload(map[string]interface{}{
		"order":   order,
		"capture": captured,
	})
	return rec
}

// payuMetadataFields are copied into metadata when present.
var payuMetadataFields = []string{
	"productinfo", "firstname", "phone", "mode", "bank_ref_num", "bankcode",
	"unmappedstatus", "error", "error_Message", "udf4", "udf5", "additionalCharges",
}

// NormalizePayU maps a PayU callback form to a record keyed by txnid.
// udf1..udf3 carry segment, billing cycle and plan name.
func NormalizePayU(fields map[string]string, source string) *payment.Record {
	planName := fields["udf3"]
	if planName == "" {
		planName = fields["productinfo"]
	}
	status := strings.ToLower(strings.TrimSpace(fields["status"]))
	if status == "" {
		status = payment.StatusPending
	}
	rec := &payment.Record{
		Gateway:       payment.GatewayPayU,
		TxnID:         optional(fields["txnid"]),
		TransactionID: optional(fields["mihpayid"]),
		Amount:        CoerceAmount(fields["amount"]),
		Currency:      NormalizeCurrency(fields["currency"], "INR"),
		Segment:       optional(fields["udf1"]),
		BillingCycle:  optional(fields["udf2"]),
		PlanName:      optional(planName),
		Status:        status,
		UserEmail:     lowerOptional(fields["email"]),
		Source:        source,
	}

	metadata := map[string]any{}
	for _, k := range payuMetadataFields {
		putNonEmpty(metadata, k, fields[k])
	}
	rec.Metadata = metadata

	raw := make(map[string]string, len(fields))
	for k, v := range fields {
		if k == "hash" {
			continue
		}
		raw[k] = v
	}
	rec.RawPayload = SanitizePayload(raw)
	return rec
}

// CoerceAmount returns a finite number or nil. It never panics.
func CoerceAmount(v interface{}) *float64 {
	var f float64
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	case *float64:
		if t == nil {
			return nil
		}
		f = *t
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func NormalizeCurrency(code, fallback string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return fallback
	}
	return code
}

// SanitizePayload deep-copies v through a JSON round trip. Anything that does
// not encode to a JSON object yields nil.
func SanitizePayload(v interface{}) (out map[string]any) {
	defer func() {
		if recover() != nil {
			out = nil
		}
	}()
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

// SanitizeMetadata is SanitizePayload with an empty object instead of nil.
func SanitizeMetadata(v interface{}) map[string]any {
	out := SanitizePayload(v)
	if out == nil {
		return map[string]any{}
	}
	return out
}

func stripeSessionStatus(sess *stripe.CheckoutSession) string {
	if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		return payment.StatusCompleted
	}
	if sess.PaymentStatus != "" {
		return strings.ToLower(string(sess.PaymentStatus))
	}
	if sess.Status != "" {
		return strings.ToLower(string(sess.Status))
	}
	return payment.StatusPending
}

func minorUnits(v int64) *float64 {
	f := float64(v) / 100
	return &f
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func lowerOptional(s string) *string {
	return optional(strings.ToLower(s))
}

func putNonEmpty(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}
