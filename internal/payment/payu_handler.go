package payment

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/salespilot/internal"
	"github.com/frahmantamala/salespilot/internal/core/datamodel/payment"
	"github.com/frahmantamala/salespilot/internal/transport"
)

type PayUHandler struct {
	*transport.BaseHandler
	service   ServiceAPI
	verifier  *PayUVerifier
	converter Converter
	actionURL string
	urls      URLs
}

// NewPayUHandler wires the PayU endpoints. An empty key or salt leaves the
// gateway unconfigured; callbacks then fail closed.
func NewPayUHandler(service ServiceAPI, verifier *PayUVerifier, converter Converter, actionURL string, urls URLs, logger *slog.Logger) *PayUHandler {
	return &PayUHandler{
		BaseHandler: transport.NewBaseHandler(logger),
		service:     service,
		verifier:    verifier,
		converter:   converter,
		actionURL:   actionURL,
		urls:        urls,
	}
}

// NewTxnID returns a PayU transaction id; PayU caps them at 25 characters.
func NewTxnID() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "SP" + id[:20]
}

// Create handles POST /api/payu/create. USD amounts are converted to INR
// before signing.
func (h *PayUHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.verifier.configured() {
		h.HandleError(w, ErrGatewayNotConfigured)
		return
	}

	var req PayUCheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.HandleError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.HandleError(w, err)
		return
	}

	resp := PayUCheckoutResponse{Action: h.actionURL}
	amountINR := decimal.NewFromFloat(req.Amount)
	if NormalizeCurrency(req.Currency, "USD") == "USD" {
		conv, err := h.converter.USDToINR(r.Context(), req.Amount)
		if err != nil {
			h.HandleError(w, err)
			return
		}
		amountINR = conv.AmountINR
		resp.Conversion = &ConversionResponse{
			AmountINR: conv.AmountINRFloat(),
			Rate:      conv.RateFloat(),
			Source:    conv.Source,
		}
	}

	checkout := req.Context()
	payuReq := PayURequest{
		TxnID:       NewTxnID(),
		Amount:      amountINR.StringFixed(2),
		ProductInfo: checkout.PlanName,
		FirstName:   strings.TrimSpace(req.FirstName),
		Email:       checkout.Email,
		Phone:       strings.TrimSpace(req.Phone),
		UDF:         [5]string{checkout.Segment, checkout.BillingCycle, checkout.PlanName},
		SURL:        h.urls.public("/api/payu/success"),
		FURL:        h.urls.public("/api/payu/failure"),
	}
	resp.Params = h.verifier.Fields(payuReq)

	h.Logger.Info("payu checkout prepared", "txnid", payuReq.TxnID, "amount", payuReq.Amount, "plan", checkout.PlanName)
	h.WriteJSON(w, http.StatusOK, resp)
}

// Success handles POST and GET /api/payu/success.
func (h *PayUHandler) Success(w http.ResponseWriter, r *http.Request) {
	h.callback(w, r, payment.SourcePayUSuccessRedirect)
}

// Failure handles POST and GET /api/payu/failure. PayU may still post a
// success status here, so it goes through the same verification.
func (h *PayUHandler) Failure(w http.ResponseWriter, r *http.Request) {
	h.callback(w, r, payment.SourcePayUFailureRedirect)
}

func (h *PayUHandler) callback(w http.ResponseWriter, r *http.Request, source string) {
	ctx := internal.ContextWithSource(r.Context(), source)

	fields, err := formFields(r)
	if err != nil {
		h.Logger.Warn("unreadable payu callback", "error", err)
		fields = map[string]string{}
	}
	txnID := fields["txnid"]
	status := fields["status"]

	cb := &Callback{Fields: fields, Source: source}
	outcome, err := h.service.Reconcile(ctx, h.verifier, cb, ReconcileOptions{})
	if err != nil {
		h.Redirect(w, r, pageURL(h.urls.Pages, FailedPagePath,
			param("txnid", txnID),
			param("status", status),
			param("verified", "false"),
			param("error", "config")))
		return
	}

	if !outcome.Result.Verified {
		h.Redirect(w, r, pageURL(h.urls.Pages, FailedPagePath,
			param("txnid", txnID),
			param("status", status),
			param("verified", "false")))
		return
	}

	docID := ""
	if outcome.Persisted {
		docID = outcome.DocID
	}
	h.Redirect(w, r, pageURL(h.urls.Pages, SuccessPagePath,
		param("txnid", txnID),
		param("status", status),
		param("verified", "true"),
		param("payment_doc_id", docID)))
}

// Convert handles GET /api/payu/convert?amount=<usd>.
func (h *PayUHandler) Convert(w http.ResponseWriter, r *http.Request) {
	amount, err := strconv.ParseFloat(strings.TrimSpace(r.URL.Query().Get("amount")), 64)
	if err != nil {
		h.HandleError(w, internal.NewValidationFieldError("amount", "amount must be a number", internal.ErrCodeInvalidAmount))
		return
	}

	conv, err := h.converter.USDToINR(r.Context(), amount)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ConversionResponse{
		AmountINR: conv.AmountINRFloat(),
		Rate:      conv.RateFloat(),
		Source:    conv.Source,
	})
}
