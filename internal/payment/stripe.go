package payment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"

	"github.com/frahmantamala/salespilot/internal"
	"github.com/frahmantamala/salespilot/internal/core/datamodel/payment"
)

// StripeSessions is the part of the Stripe API the checkout flow uses.
type StripeSessions interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error)
	// FindCheckoutSessionByPaymentIntent returns nil without error when no
	// session created the intent.
	FindCheckoutSessionByPaymentIntent(ctx context.Context, paymentIntentID string) (*stripe.CheckoutSession, error)
}

// StripeWebhookVerifier checks the Stripe-Signature header against the raw
// body and decodes the events we reconcile. Payment intents started by our
// checkout sessions are folded into the session's document.
type StripeWebhookVerifier struct {
	secret    string
	tolerance time.Duration
	sessions  StripeSessions
}

func NewStripeWebhookVerifier(secret string) *StripeWebhookVerifier {
	return &StripeWebhookVerifier{secret: secret, tolerance: webhook.DefaultTolerance}
}

// WithSessions enables the session lookup for payment intent events.
func (v *StripeWebhookVerifier) WithSessions(sessions StripeSessions) *StripeWebhookVerifier {
	v.sessions = sessions
	return v
}

func (v *StripeWebhookVerifier) Gateway() payment.Gateway {
	return payment.GatewayStripe
}

func (v *StripeWebhookVerifier) Verify(ctx context.Context, cb *Callback) (*VerificationResult, error) {
	if v == nil || v.secret == "" {
		return nil, ErrGatewayNotConfigured
	}

	event, err := webhook.ConstructEventWithOptions(cb.Body, cb.Header.Get("Stripe-Signature"), v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return &VerificationResult{Reason: err.Error()}, nil
	}

	result := &VerificationResult{Verified: true, EventType: string(event.Type)}
	source := cb.Source
	if source == "" {
		source = payment.SourceStripeWebhook
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			result.Reason = "undecodable checkout session: " + err.Error()
			return result, nil
		}
		result.Record = NormalizeStripeSession(&sess, source)
		if event.Type == stripe.EventTypeCheckoutSessionAsyncPaymentFailed {
			result.Record.Status = payment.StatusFailed
		}
		result.DocID = sess.ID
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			result.Reason = "undecodable payment intent: " + err.Error()
			return result, nil
		}
		rec := NormalizeStripePaymentIntent(&pi, source)
		if event.Type == stripe.EventTypePaymentIntentPaymentFailed {
			rec.Status = payment.StatusFailed
		}
		result.DocID = pi.ID

		if pi.Metadata["planName"] != "" {
			sessionID, err := v.checkoutSessionID(ctx, pi.ID)
			if err != nil {
				return nil, err
			}
			if sessionID == "" {
				// the checkout.session events carry this payment
				result.Reason = "checkout payment intent without a known session"
				return result, nil
			}
			rec.SessionID = optional(sessionID)
			result.DocID = sessionID
		}
		result.Record = rec
	default:
		result.Reason = "ignored event type"
		return result, nil
	}

	result.Status = result.Record.Status
	return result, nil
}

func (v *StripeWebhookVerifier) checkoutSessionID(ctx context.Context, paymentIntentID string) (string, error) {
	if v.sessions == nil {
		return "", nil
	}
	sess, err := v.sessions.FindCheckoutSessionByPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return "", internal.NewExternalError("checkout session lookup failed", internal.ErrCodeGatewayUnavailable, err)
	}
	if sess == nil {
		return "", nil
	}
	return sess.ID, nil
}

// StripeSessionVerifier authenticates the success redirect by fetching the
// session from Stripe; the query string itself is never trusted.
type StripeSessionVerifier struct {
	sessions StripeSessions
}

func NewStripeSessionVerifier(sessions StripeSessions) *StripeSessionVerifier {
	return &StripeSessionVerifier{sessions: sessions}
}

func (v *StripeSessionVerifier) Gateway() payment.Gateway {
	return payment.GatewayStripe
}

func (v *StripeSessionVerifier) Verify(ctx context.Context, cb *Callback) (*VerificationResult, error) {
	if v == nil || v.sessions == nil {
		return nil, ErrGatewayNotConfigured
	}

	sessionID := cb.Field("session_id")
	if sessionID == "" {
		return &VerificationResult{Reason: "missing_session_id"}, nil
	}

	sess, err := v.sessions.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return &VerificationResult{Reason: "session_lookup_failed", DocID: sessionID}, nil
	}

	source := cb.Source
	if source == "" {
		source = payment.SourceStripeSuccessRedirect
	}
	rec := NormalizeStripeSession(sess, source)
	result := &VerificationResult{
		Verified: sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Status:   rec.Status,
		Record:   rec,
		DocID:    sess.ID,
	}
	if !result.Verified {
		result.Reason = "payment_incomplete"
	}
	return result, nil
}
