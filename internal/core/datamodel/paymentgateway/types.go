package paymentgateway

import (
	"errors"
	"strings"
)

// PayPal Orders v2 status values.
const (
	OrderStatusCreated   = "CREATED"
	OrderStatusApproved  = "APPROVED"
	OrderStatusCompleted = "COMPLETED"
)

type Money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type Capture struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount *Money `json:"amount,omitempty"`
}

type Payments struct {
	Captures []Capture `json:"captures,omitempty"`
}

type PurchaseUnit struct {
	ReferenceID string    `json:"reference_id,omitempty"`
	Description string    `json:"description,omitempty"`
	CustomID    string    `json:"custom_id,omitempty"`
	Amount      *Money    `json:"amount,omitempty"`
	Payments    *Payments `json:"payments,omitempty"`
}

type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

type Payer struct {
	PayerID      string `json:"payer_id,omitempty"`
	EmailAddress string `json:"email_address,omitempty"`
}

type Order struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	Intent        string         `json:"intent,omitempty"`
	PurchaseUnits []PurchaseUnit `json:"purchase_units,omitempty"`
	Payer         *Payer         `json:"payer,omitempty"`
	Links         []Link         `json:"links,omitempty"`
}

// ApproveURL returns the buyer approval link of a freshly created order.
func (o *Order) ApproveURL() string {
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

// FirstCapture returns the first capture of the first purchase unit, or nil.
func (o *Order) FirstCapture() *Capture {
	if o == nil {
		return nil
	}
	for _, pu := range o.PurchaseUnits {
		if pu.Payments != nil && len(pu.Payments.Captures) > 0 {
			return &pu.Payments.Captures[0]
		}
	}
	return nil
}

type CreateOrderRequest struct {
	Intent             string              `json:"intent"`
	PurchaseUnits      []PurchaseUnit      `json:"purchase_units"`
	ApplicationContext *ApplicationContext `json:"application_context,omitempty"`
}

type ApplicationContext struct {
	ReturnURL    string `json:"return_url"`
	CancelURL    string `json:"cancel_url"`
	BrandName    string `json:"brand_name,omitempty"`
	UserAction   string `json:"user_action,omitempty"`
	ShippingPref string `json:"shipping_preference,omitempty"`
}

func (r *CreateOrderRequest) Validate() error {
	if len(r.PurchaseUnits) == 0 {
		return errors.New("at least one purchase unit is required")
	}
	for _, pu := range r.PurchaseUnits {
		if pu.Amount == nil || pu.Amount.Value == "" {
			return errors.New("purchase unit amount is required")
		}
		if strings.TrimSpace(pu.Amount.CurrencyCode) == "" {
			return errors.New("purchase unit currency is required")
		}
		if len(pu.CustomID) > 127 {
			return errors.New("custom_id must not exceed 127 characters")
		}
	}
	return nil
}
