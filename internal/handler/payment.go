package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/httpx"
	"github.com/nephi-asha/kishkumen/internal/security/payment"
)

// PaymentHandler receives payment-provider callbacks.
type PaymentHandler struct {
	verifier *payment.Verifier
	logger   *slog.Logger
}

func NewPaymentHandler(verifier *payment.Verifier, logger *slog.Logger) *PaymentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentHandler{verifier: verifier, logger: logger}
}

type callbackRequest struct {
	Payload   map[string]any `json:"payload"`
	Signature string         `json:"sha512"`
}

type callbackResponse struct {
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
	Amount  any    `json:"amount,omitempty"`
}

// Callback handles POST /api/payments/callback. The signature covers the
// payload serialized with sorted keys.
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, h.logger, apperr.BadRequest("invalid request body"))
		return
	}
	if len(req.Payload) == 0 || req.Signature == "" {
		writeError(w, r, h.logger, apperr.BadRequest("payload and sha512 are required"))
		return
	}

	if !h.verifier.Verify(req.Payload, req.Signature) {
		h.logger.Warn("payment callback signature mismatch",
			slog.String("request_id", httpx.RequestIDFrom(r.Context())),
		)
		writeError(w, r, h.logger, apperr.Forbidden("signature validation failed"))
		return
	}

	status := fmt.Sprint(req.Payload["status"])
	h.logger.Info("payment callback verified",
		slog.String("order_id", fmt.Sprint(req.Payload["orderId"])),
		slog.String("transaction_id", fmt.Sprint(req.Payload["transactionId"])),
		slog.String("status", status),
	)

	switch status {
	case "SUCCESS":
		httpx.JSON(w, http.StatusOK, callbackResponse{Message: "payment processed successfully", Amount: req.Payload["amount"]})
	case "FAILED":
		httpx.JSON(w, http.StatusOK, callbackResponse{Message: "payment not received"})
	default:
		httpx.JSON(w, http.StatusAccepted, callbackResponse{Message: "payment status pending", Status: status})
	}
}
