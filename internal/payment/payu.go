package payment

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/frahmantamala/salespilot/internal/core/datamodel/payment"
)

// PayURequest is the hosted-checkout form PayU expects. Amount is the
// formatted rupee amount exactly as posted.
type PayURequest struct {
	TxnID       string
	Amount      string
	ProductInfo string
	FirstName   string
	Email       string
	Phone       string
	UDF         [5]string
	SURL        string
	FURL        string
}

// PayUVerifier signs outgoing checkout forms and verifies callback hashes.
type PayUVerifier struct {
	key  string
	salt string
}

func NewPayUVerifier(key, salt string) *PayUVerifier {
	return &PayUVerifier{key: key, salt: salt}
}

func (v *PayUVerifier) Gateway() payment.Gateway {
	return payment.GatewayPayU
}

func (v *PayUVerifier) Key() string {
	return v.key
}

func (v *PayUVerifier) configured() bool {
	return v != nil && v.key != "" && v.salt != ""
}

// RequestHash signs
// key|txnid|amount|productinfo|firstname|email|udf1|udf2|udf3|udf4|udf5||||||salt.
func (v *PayUVerifier) RequestHash(req PayURequest) string {
	parts := []string{
		v.key, req.TxnID, req.Amount, req.ProductInfo, req.FirstName, req.Email,
		req.UDF[0], req.UDF[1], req.UDF[2], req.UDF[3], req.UDF[4],
		"", "", "", "", "",
		v.salt,
	}
	return sha512Hex(strings.Join(parts, "|"))
}

// ResponseHash computes the reverse hash PayU attaches to its callbacks:
// [additionalCharges|]salt|status||||||udf5|udf4|udf3|udf2|udf1|email|firstname|productinfo|amount|txnid|key.
func (v *PayUVerifier) ResponseHash(fields map[string]string) string {
	parts := make([]string, 0, 19)
	if charges := fields["additionalCharges"]; charges != "" {
		parts = append(parts, charges)
	}
	parts = append(parts,
		v.salt, fields["status"],
		"", "", "", "", "",
		fields["udf5"], fields["udf4"], fields["udf3"], fields["udf2"], fields["udf1"],
		fields["email"], fields["firstname"], fields["productinfo"], fields["amount"], fields["txnid"],
		v.key,
	)
	return sha512Hex(strings.Join(parts, "|"))
}

// Fields returns the form PayU's hosted checkout is posted with, hash included.
func (v *PayUVerifier) Fields(req PayURequest) map[string]string {
	return map[string]string{
		"key":         v.key,
		"txnid":       req.TxnID,
		"amount":      req.Amount,
		"productinfo": req.ProductInfo,
		"firstname":   req.FirstName,
		"email":       req.Email,
		"phone":       req.Phone,
		"udf1":        req.UDF[0],
		"udf2":        req.UDF[1],
		"udf3":        req.UDF[2],
		"udf4":        req.UDF[3],
		"udf5":        req.UDF[4],
		"surl":        req.SURL,
		"furl":        req.FURL,
		"hash":        v.RequestHash(req),
	}
}

// Verify succeeds only for status "success" with a matching reverse hash.
func (v *PayUVerifier) Verify(_ context.Context, cb *Callback) (*VerificationResult, error) {
	if !v.configured() {
		return nil, ErrGatewayNotConfigured
	}

	status := strings.ToLower(strings.TrimSpace(cb.Field("status")))
	result := &VerificationResult{
		Status: status,
		DocID:  cb.Field("txnid"),
	}

	expected := v.ResponseHash(cb.Fields)
	received := strings.ToLower(strings.TrimSpace(cb.Field("hash")))
	hashOK := received != "" && subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1

	switch {
	case !hashOK:
		result.Reason = "hash mismatch"
	case status != payment.StatusSuccess:
		result.Reason = fmt.Sprintf("status %q", status)
	default:
		result.Verified = true
	}

	source := cb.Source
	if source == "" {
		source = payment.SourcePayUSuccessRedirect
	}
	result.Record = NormalizePayU(cb.Fields, source)
	return result, nil
}

func sha512Hex(s string) string {
	sum := sha512.Sum512([]byte(s))
	return hex.EncodeToString(sum[:])
}
