package payment

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/salespilot/internal"
	"github.com/frahmantamala/salespilot/internal/core/datamodel/payment"
	paymentgatewaytypes "github.com/frahmantamala/salespilot/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/salespilot/internal/transport"
)

type PayPalHandler struct {
	*transport.BaseHandler
	service ServiceAPI
	orders  PayPalOrders
	urls    URLs
}

// NewPayPalHandler wires the PayPal endpoints. orders is nil when no client
// credentials are configured.
func NewPayPalHandler(service ServiceAPI, orders PayPalOrders, urls URLs, logger *slog.Logger) *PayPalHandler {
	return &PayPalHandler{
		BaseHandler: transport.NewBaseHandler(logger),
		service:     service,
		orders:      orders,
		urls:        urls,
	}
}

func (h *PayPalHandler) verifier() *PayPalVerifier {
	if h.orders == nil {
		return nil
	}
	return NewPayPalVerifier(h.orders, h.Logger)
}

// CreateOrder handles POST /api/paypal/create-order.
func (h *PayPalHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
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
	orderReq := &paymentgatewaytypes.CreateOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []paymentgatewaytypes.PurchaseUnit{{
			Description: checkout.PlanName,
			CustomID:    checkout.PayPalCustomID(),
			Amount: &paymentgatewaytypes.Money{
				CurrencyCode: NormalizeCurrency(req.Currency, "USD"),
				Value:        decimal.NewFromFloat(req.Amount).StringFixed(2),
			},
		}},
		ApplicationContext: &paymentgatewaytypes.ApplicationContext{
			ReturnURL:    h.urls.public("/api/paypal/success"),
			CancelURL:    h.urls.public(FailedPagePath + "?error=cancelled"),
			UserAction:   "PAY_NOW",
			ShippingPref: "NO_SHIPPING",
		},
	}
	if err := orderReq.Validate(); err != nil {
		h.HandleError(w, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed))
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), orderReq)
	if err != nil {
		h.HandleError(w, internal.NewExternalError("failed to create paypal order", internal.ErrCodeGatewayUnavailable, err))
		return
	}

	h.Logger.Info("paypal order created", "order_id", order.ID, "plan", checkout.PlanName)
	h.WriteJSON(w, http.StatusOK, PayPalOrderResponse{OrderID: order.ID, ApproveURL: order.ApproveURL()})
}

// SuccessRedirect handles GET /api/paypal/success?token=...&PayerID=...
// The record is written whatever the capture outcome.
func (h *PayPalHandler) SuccessRedirect(w http.ResponseWriter, r *http.Request) {
	ctx := internal.ContextWithSource(r.Context(), payment.SourcePayPalSuccessRedirect)
	query := r.URL.Query()
	token := query.Get("token")
	if token == "" {
		h.Redirect(w, r, pageURL(h.urls.Pages, FailedPagePath, param("error", "missing_token")))
		return
	}

	cb := &Callback{
		Fields: map[string]string{
			"token":   token,
			"PayerID": query.Get("PayerID"),
		},
		Source: payment.SourcePayPalSuccessRedirect,
	}
	outcome, err := h.service.Reconcile(ctx, h.verifier(), cb, ReconcileOptions{PersistUnverified: true})
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
		paymentID = token
	}
	h.Redirect(w, r, pageURL(h.urls.Pages, SuccessPagePath,
		param("amount", formatAmount(rec.Amount)),
		param("currency", rec.Currency),
		param("plan", deref(rec.PlanName)),
		param("payment_id", paymentID)))
}

// Confirm handles POST /api/paypal/success. The browser already captured the
// order through the JS SDK, so only the order details are fetched.
func (h *PayPalHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	ctx := internal.ContextWithSource(r.Context(), payment.SourcePayPalClientConfirm)

	var req PayPalConfirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.HandleError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.HandleError(w, err)
		return
	}

	cb := &Callback{
		Fields: map[string]string{
			"orderID":      strings.TrimSpace(req.ID()),
			"PayerID":      req.PayerID,
			"planName":     req.PlanName,
			"segment":      req.Segment,
			"billingCycle": req.BillingCycle,
			"email":        req.Email,
			"capture":      "false",
		},
		Source: payment.SourcePayPalClientConfirm,
	}
	outcome, err := h.service.Reconcile(ctx, h.verifier(), cb, ReconcileOptions{Merge: true, PersistUnverified: true})
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, PayPalConfirmResponse{
		Success:   true,
		Status:    outcome.Result.Status,
		Persisted: outcome.Persisted,
	})
}
