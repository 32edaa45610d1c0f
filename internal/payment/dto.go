package payment

import (
	"strings"

	errors "github.com/frahmantamala/salespilot/internal"
	"github.com/frahmantamala/salespilot/internal/core/common/validation"
)

// CheckoutRequest starts a checkout on any gateway. Amount is in major
// units of Currency.
type CheckoutRequest struct {
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
	PlanName     string  `json:"planName"`
	Segment      string  `json:"segment"`
	BillingCycle string  `json:"billingCycle"`
	Email        string  `json:"email"`
	FirstName    string  `json:"firstName"`
	Phone        string  `json:"phone"`
}

func (r *CheckoutRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("amount", r.Amount).Required().Positive(errors.ErrCodeInvalidAmount)
	validator.Field("planName", r.PlanName).Required().MaxLength(120)
	validator.Field("currency", r.Currency).MaxLength(3)
	validator.Field("email", r.Email).Email()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

func (r *CheckoutRequest) Context() CheckoutContext {
	return CheckoutContext{
		PlanName:     strings.TrimSpace(r.PlanName),
		Segment:      strings.TrimSpace(r.Segment),
		BillingCycle: strings.TrimSpace(r.BillingCycle),
		Email:        strings.ToLower(strings.TrimSpace(r.Email)),
	}
}

type StripeSessionResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

type PayPalOrderResponse struct {
	OrderID    string `json:"orderId"`
	ApproveURL string `json:"approveUrl"`
}

// PayPalConfirmRequest is posted by the browser after the buyer approved
// the order in the PayPal popup. Both id spellings are accepted.
type PayPalConfirmRequest struct {
	OrderID      string `json:"orderID"`
	OrderIDAlt   string `json:"orderId"`
	PayerID      string `json:"payerID"`
	PlanName     string `json:"planName"`
	Segment      string `json:"segment"`
	BillingCycle string `json:"billingCycle"`
	Email        string `json:"email"`
}

func (r *PayPalConfirmRequest) ID() string {
	if r.OrderID != "" {
		return r.OrderID
	}
	return r.OrderIDAlt
}

func (r *PayPalConfirmRequest) Validate() error {
	validator := validation.NewValidator()
	validator.Field("orderID", r.ID()).Required()
	validator.Field("email", r.Email).Email()
	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type PayPalConfirmResponse struct {
	Success   bool   `json:"success"`
	Status    string `json:"status,omitempty"`
	Persisted bool   `json:"persisted"`
}

// PayUCheckoutRequest adds the contact fields PayU's hosted page requires.
type PayUCheckoutRequest struct {
	CheckoutRequest
}

func (r *PayUCheckoutRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("amount", r.Amount).Required().Positive(errors.ErrCodeInvalidAmount)
	validator.Field("planName", r.PlanName).Required().MaxLength(100)
	validator.Field("currency", r.Currency).OneOf(errors.ErrCodeInvalidCurrency, "USD", "INR")
	validator.Field("email", r.Email).Required().Email()
	validator.Field("firstName", r.FirstName).Required().MaxLength(60)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type ConversionResponse struct {
	AmountINR float64 `json:"amountInr"`
	Rate      float64 `json:"rate"`
	Source    string  `json:"source"`
}

type PayUCheckoutResponse struct {
	Action     string              `json:"action"`
	Params     map[string]string   `json:"params"`
	Conversion *ConversionResponse `json:"conversion,omitempty"`
}
