package payment

import (
	"time"
)

type Gateway string

const (
	GatewayStripe Gateway = "stripe"
	GatewayPayPal Gateway = "paypal"
	GatewayPayU   Gateway = "payu"
)

const (
	StatusCompleted = "completed"
	StatusPending   = "pending"
	StatusSuccess   = "success"
	StatusFailed    = "failed"
)

// Provenance tags stored in Record.Source.
const (
	SourceStripeWebhook         = "stripe_webhook"
	SourceStripeSuccessRedirect = "stripe_success_redirect"
	SourcePayPalSuccessRedirect = "paypal_success_redirect"
	SourcePayPalClientConfirm   = "paypal_client_confirmation"
	SourcePayUSuccessRedirect   = "payu_success_redirect"
	SourcePayUFailureRedirect   = "payu_failure_redirect"
)

// Record is the canonical payment document. One document per gateway
// identifier; documents are upserted, never deleted.
type Record struct {
	ID            string         `json:"id" firestore:"-" gorm:"column:id;primaryKey"`
	Gateway       Gateway        `json:"gateway" firestore:"gateway" gorm:"column:gateway;not null;index"`
	OrderID       *string        `json:"orderId,omitempty" firestore:"orderId,omitempty" gorm:"column:order_id;index"`
	SessionID     *string        `json:"sessionId,omitempty" firestore:"sessionId,omitempty" gorm:"column:session_id;index"`
	TransactionID *string        `json:"transactionId,omitempty" firestore:"transactionId,omitempty" gorm:"column:transaction_id"`
	TxnID         *string        `json:"txnid,omitempty" firestore:"txnid,omitempty" gorm:"column:txnid;index"`
	Amount        *float64       `json:"amount" firestore:"amount" gorm:"column:amount"`
	Currency      string         `json:"currency" firestore:"currency" gorm:"column:currency"`
	Segment       *string        `json:"segment,omitempty" firestore:"segment,omitempty" gorm:"column:segment"`
	BillingCycle  *string        `json:"billingCycle,omitempty" firestore:"billingCycle,omitempty" gorm:"column:billing_cycle"`
	PlanName      *string        `json:"planName,omitempty" firestore:"planName,omitempty" gorm:"column:plan_name"`
	Status        string         `json:"status" firestore:"status" gorm:"column:status"`
	UserEmail     *string        `json:"userEmail" firestore:"userEmail" gorm:"column:user_email;index"`
	Source        string         `json:"source" firestore:"source" gorm:"column:source"`
	Metadata      map[string]any `json:"metadata" firestore:"metadata" gorm:"column:metadata;serializer:json"`
	RawPayload    map[string]any `json:"rawPayload" firestore:"rawPayload" gorm:"column:raw_payload;serializer:json"`
	CreatedAt     time.Time      `json:"createdAt" firestore:"createdAt" gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt     time.Time      `json:"updatedAt" firestore:"updatedAt" gorm:"column:updated_at;autoUpdateTime:false"`
}

func (Record) TableName() string {
	return "payment_records"
}

// MergeFrom overlays every field set on src onto r. Metadata and raw payload
// keys are unioned with src winning. CreatedAt is kept unless r has none.
func (r *Record) MergeFrom(src *Record) {
	if src == nil {
		return
	}
	if src.Gateway != "" {
		r.Gateway = src.Gateway
	}
	mergeString(&r.OrderID, src.OrderID)
	mergeString(&r.SessionID, src.SessionID)
	mergeString(&r.TransactionID, src.TransactionID)
	mergeString(&r.TxnID, src.TxnID)
	if src.Amount != nil {
		v := *src.Amount
		r.Amount = &v
	}
	if src.Currency != "" {
		r.Currency = src.Currency
	}
	mergeString(&r.Segment, src.Segment)
	mergeString(&r.BillingCycle, src.BillingCycle)
	mergeString(&r.PlanName, src.PlanName)
	if src.Status != "" {
		r.Status = src.Status
	}
	mergeString(&r.UserEmail, src.UserEmail)
	if src.Source != "" {
		r.Source = src.Source
	}
	r.Metadata = mergeMap(r.Metadata, src.Metadata)
	r.RawPayload = mergeMap(r.RawPayload, src.RawPayload)
	if r.CreatedAt.IsZero() {
		r.CreatedAt = src.CreatedAt
	}
	if !src.UpdatedAt.IsZero() {
		r.UpdatedAt = src.UpdatedAt
	}
}

// Fields returns the document as a flat field map, omitting unset fields.
// Timestamps are left to the store.
func (r *Record) Fields() map[string]any {
	fields := map[string]any{}
	if r.Gateway != "" {
		fields["gateway"] = string(r.Gateway)
	}
	putString(fields, "orderId", r.OrderID)
	putString(fields, "sessionId", r.SessionID)
	putString(fields, "transactionId", r.TransactionID)
	putString(fields, "txnid", r.TxnID)
	if r.Amount != nil {
		fields["amount"] = *r.Amount
	}
	if r.Currency != "" {
		fields["currency"] = r.Currency
	}
	putString(fields, "segment", r.Segment)
	putString(fields, "billingCycle", r.BillingCycle)
	putString(fields, "planName", r.PlanName)
	if r.Status != "" {
		fields["status"] = r.Status
	}
	putString(fields, "userEmail", r.UserEmail)
	if r.Source != "" {
		fields["source"] = r.Source
	}
	if r.Metadata != nil {
		fields["metadata"] = r.Metadata
	}
	if r.RawPayload != nil {
		fields["rawPayload"] = r.RawPayload
	}
	return fields
}

func mergeString(dst **string, src *string) {
	if src == nil {
		return
	}
	v := *src
	*dst = &v
}

func mergeMap(dst, src map[string]any) map[string]any {
	if src == nil {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func putString(fields map[string]any, key string, v *string) {
	if v != nil {
		fields[key] = *v
	}
}
