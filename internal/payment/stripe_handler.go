package payment

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v80"

	"github.com/frahmantamala/salespilot/internal"
	"github.com/frahmantamala/salespilot/internal/core/datamodel/payment"
	"github.com/frahmantamala/salespilot/internal/transport"
)

type StripeHandler struct {
	*transport.BaseHandler
	service  ServiceAPI
	sessions StripeSessions
	webhook  *StripeWebhookVerifier
	urls     URLs
}

// NewStripeHandler wires the checkout and webhook endpoints. sessions may be
// nil when no secret key is configured; webhookSecret may be empty.
func NewStripeHandler(service ServiceAPI, sessions StripeSessions, webhookSecret string, urls URLs, logger *slog.Logger) *StripeHandler {
	return &StripeHandler{
		BaseHandler: transport.NewBaseHandler(logger),
		service:     service,
		sessions:    sessions,
		webhook:     NewStripeWebhookVerifier(webhookSecret).WithSessions(sessions),
		urls:        urls,
	}
}

// CreateSession handles POST /api/stripe/create-session.
func (h *StripeHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		h.HandleError(w, ErrGatewayNotConfigured)
		return
	}

	var req CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.HandleError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.HandleError(w, err)
		return
	}

	checkout := req.Context()
	currency := strings.ToLower(NormalizeCurrency(req.Currency, "USD"))
	unitAmount := decimal.NewFromFloat(req.Amount).Shift(2).Round(0).IntPart()
	metadata := checkout.metadata()

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(unitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(checkout.PlanName),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
		SuccessURL: stripe.String(h.urls.public("/api/stripe/success?session_id={CHECKOUT_SESSION_ID}")),
		CancelURL:  stripe.String(h.urls.public(FailedPagePath + "?error=cancelled")),
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if checkout.Email != "" {
		params.CustomerEmail = stripe.String(checkout.Email)
	}

	sess, err := h.sessions.CreateCheckoutSession(r.Context(), params)
	if err != nil {
		h.HandleError(w, internal.NewExternalError("failed to create stripe checkout session", internal.ErrCodeGatewayUnavailable, err))
		return
	}

	h.Logger.Info("stripe checkout session created", "session_id", sess.ID, "plan", checkout.PlanName)
	h.WriteJSON(w, http.StatusOK, StripeSessionResponse{URL: sess.URL, SessionID: sess.ID})
}

// Success handles GET /api/stripe/success?session_id=...
func (h *StripeHandler) Success(w http.ResponseWriter, r *http.Request) {
	ctx := internal.ContextWithSource(r.Context(), payment.SourceStripeSuccessRedirect)
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		h.Redirect(w, r, pageURL(h.urls.Pages, FailedPagePath, param("error", "missing_session_id")))
		return
	}

	cb := &Callback{
		Fields: map[string]string{"session_id": sessionID},
		Source: payment.SourceStripeSuccessRedirect,
	}
	outcome, err := h.service.Reconcile(ctx, NewStripeSessionVerifier(h.sessions), cb, ReconcileOptions{})
	if err != nil {
		h.Redirect(w, r, pageURL(h.urls.Pages, FailedPagePath, param("error", "config")))
		return
	}

	result := outcome.Result
	if !result.Verified {
		h.Redirect(w, r, pageURL(h.urls.Pages, FailedPagePath,
			param("error", result.Reason),
			param("status", result.Status)))
		return
	}

	rec := result.Record
	paymentID := deref(rec.TransactionID)
	if paymentID == "" {
		paymentID = sessionID
	}
	h.Redirect(w, r, pageURL(h.urls.Pages, SuccessPagePath,
		param("amount", formatAmount(rec.Amount)),
		param("currency", rec.Currency),
		param("plan", deref(rec.PlanName)),
		param("payment_id", paymentID)))
}

// Webhook handles POST /api/stripe/webhook. The raw body is verified before
// anything is decoded.
func (h *StripeHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	ctx := internal.ContextWithSource(r.Context(), payment.SourceStripeWebhook)

	body, err := readBody(w, r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	cb := &Callback{Body: body, Header: r.Header, Source: payment.SourceStripeWebhook}
	outcome, err := h.service.Reconcile(ctx, h.webhook, cb, ReconcileOptions{Merge: true})
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if !outcome.Result.Verified {
		h.HandleError(w, ErrInvalidSignature)
		return
	}

	if outcome.PersistErr != nil {
		if _, ok := internal.IsAppError(outcome.PersistErr); ok {
			h.HandleError(w, outcome.PersistErr)
			return
		}
		h.HandleError(w, ErrPersistenceFailed.WithCause(outcome.PersistErr))
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"received": true,
		"type":     outcome.Result.EventType,
	})
}
