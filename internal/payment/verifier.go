package payment

import (
	"context"
	"net/http"

	"github.com/frahmantamala/salespilot/internal"
	"github.com/frahmantamala/salespilot/internal/core/datamodel/payment"
)

var (
	ErrGatewayNotConfigured = internal.NewConfigurationError("payment gateway is not configured", internal.ErrCodeGatewayNotConfigured)
	ErrInvalidSignature     = internal.NewVerificationError("signature verification failed", internal.ErrCodeInvalidSignature)
)

// Callback is what a gateway sent us: form or query fields, the raw body
// and headers. Each verifier reads the parts it needs.
type Callback struct {
	Fields map[string]string
	Body   []byte
	Header http.Header
	// Source is the provenance tag stamped on the derived record.
	Source string
}

func (c *Callback) Field(name string) string {
	if c == nil || c.Fields == nil {
		return ""
	}
	return c.Fields[name]
}

// VerificationResult carries the verdict plus the canonical fields derived
// from the gateway's answer. Record may be set even when Verified is false.
type VerificationResult struct {
	Verified bool
	Status   string
	Record   *payment.Record
	Reason   string
	// DocID is the key the record should be written under.
	DocID string
	// EventType is set for webhook deliveries.
	EventType string
}

// Verifier authenticates one gateway's callbacks. Errors are reserved for
// configuration problems; a forged or failed payment is a result with
// Verified false.
type Verifier interface {
	Gateway() payment.Gateway
	Verify(ctx context.Context, cb *Callback) (*VerificationResult, error)
}
