package otp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/salespilot/internal"
	"github.com/frahmantamala/salespilot/internal/transport"
)

type ServiceAPI interface {
	Send(ctx context.Context, email string) (*Issued, error)
	Verify(ctx context.Context, email, code string) error
}

type SendRequest struct {
	Email string `json:"email"`
}

type SendResponse struct {
	Sent bool `json:"sent"`
	// ExpiresIn is in seconds.
	ExpiresIn int `json:"expiresIn"`
}

type VerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type VerifyResponse struct {
	Verified bool `json:"verified"`
}

type Handler struct {
	*transport.BaseHandler
	service ServiceAPI
}

func NewHandler(service ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger),
		service:     service,
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<14)).Decode(dst); err != nil {
		h.HandleError(w, internal.NewValidationError("request body must be valid JSON", internal.ErrCodeInvalidBody))
		return false
	}
	return true
}

// Send handles POST /api/otp/send.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if !h.decode(w, r, &req) {
		return
	}

	issued, err := h.service.Send(r.Context(), req.Email)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, SendResponse{Sent: true, ExpiresIn: int(issued.ExpiresIn.Seconds())})
}

// Verify handles POST /api/otp/verify.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.Verify(r.Context(), req.Email, req.Code); err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, VerifyResponse{Verified: true})
}
