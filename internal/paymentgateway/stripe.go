package paymentgateway

import (
	"context"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
)

// StripeClient wraps the Checkout Sessions API of a per-key stripe client.
type StripeClient struct {
	api *client.API
}

// NewStripeClient uses the default Stripe backends when backends is nil.
func NewStripeClient(secretKey string, backends *stripe.Backends) *StripeClient {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &StripeClient{api: api}
}

func (c *StripeClient) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	params.Context = ctx
	return c.api.CheckoutSessions.New(params)
}

// GetCheckoutSession fetches a session with its payment intent expanded.
func (c *StripeClient) GetCheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")
	return c.api.CheckoutSessions.Get(sessionID, params)
}

// FindCheckoutSessionByPaymentIntent lists sessions filtered by payment
// intent; a checkout creates at most one.
func (c *StripeClient) FindCheckoutSessionByPaymentIntent(ctx context.Context, paymentIntentID string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionListParams{PaymentIntent: stripe.String(paymentIntentID)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := c.api.CheckoutSessions.List(params)
	if iter.Next() {
		return iter.CheckoutSession(), nil
	}
	return nil, iter.Err()
}
