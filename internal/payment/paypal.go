package payment

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/salespilot/internal/core/datamodel/payment"
	paymentgatewaytypes "github.com/frahmantamala/salespilot/internal/core/datamodel/paymentgateway"
)

// PayPalOrders is the part of the Orders v2 API the checkout flow uses.
type PayPalOrders interface {
	CreateOrder(ctx context.Context, req *paymentgatewaytypes.CreateOrderRequest) (*paymentgatewaytypes.Order, error)
	GetOrder(ctx context.Context, orderID string) (*paymentgatewaytypes.Order, error)
	CaptureOrder(ctx context.Context, orderID string) (*paymentgatewaytypes.Order, error)
}

// PayPalVerifier has no signature to check. It trusts the server-to-server
// order and capture answers and never rejects: a record is always produced,
// pending when both calls failed. Verified means the capture completed.
type PayPalVerifier struct {
	orders PayPalOrders
	logger *slog.Logger
}

func NewPayPalVerifier(orders PayPalOrders, logger *slog.Logger) *PayPalVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &PayPalVerifier{orders: orders, logger: logger}
}

func (v *PayPalVerifier) Gateway() payment.Gateway {
	return payment.GatewayPayPal
}

// Verify reads the order id from "token" (redirect) or "orderID" (client
// confirmation). Set field "capture" to "false" to skip the capture call.
func (v *PayPalVerifier) Verify(ctx context.Context, cb *Callback) (*VerificationResult, error) {
	if v == nil || v.orders == nil {
		return nil, ErrGatewayNotConfigured
	}

	orderID := cb.Field("token")
	if orderID == "" {
		orderID = cb.Field("orderID")
	}
	if orderID == "" {
		return &VerificationResult{Reason: "missing_token"}, nil
	}

	order, err := v.orders.GetOrder(ctx, orderID)
	if err != nil {
		v.logger.Warn("paypal order lookup failed", "order_id", orderID, "error", err)
		order = nil
	}

	var captured *paymentgatewaytypes.Order
	if cb.Field("capture") != "false" && (order == nil || order.Status != paymentgatewaytypes.OrderStatusCompleted) {
		captured, err = v.orders.CaptureOrder(ctx, orderID)
		if err != nil {
			v.logger.Warn("paypal capture failed", "order_id", orderID, "error", err)
			captured = nil
		}
	}

	source := cb.Source
	if source == "" {
		source = payment.SourcePayPalSuccessRedirect
	}
	checkout := CheckoutContext{
		PlanName:     cb.Field("planName"),
		Segment:      cb.Field("segment"),
		BillingCycle: cb.Field("billingCycle"),
		Email:        cb.Field("email"),
	}
	rec := NormalizePayPalOrder(orderID, order, captured, checkout, source)
	if payerID := cb.Field("PayerID"); payerID != "" {
		rec.Metadata["payerId"] = payerID
	}

	result := &VerificationResult{
		Verified: rec.Status == payment.StatusCompleted,
		Status:   rec.Status,
		Record:   rec,
		DocID:    orderID,
	}
	if !result.Verified {
		result.Reason = "payment_" + rec.Status
	}
	return result, nil
}
