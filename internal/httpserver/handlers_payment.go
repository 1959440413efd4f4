package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/meuev/server/internal/errors"
	"github.com/meuev/server/internal/logger"
	"github.com/meuev/server/internal/reconcile"
	"github.com/meuev/server/pkg/responders"
)

type pixChargeRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type cardChargeRequest struct {
	Token           string `json:"token"`
	Email           string `json:"email"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	PaymentMethodID string `json:"payment_method_id"`
	Installments    int    `json:"installments"`
}

// createPixCharge initiates a PIX charge and returns the QR artifacts the
// payer needs to complete it.
func (h *handlers) createPixCharge(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	start := time.Now()

	var req pixChargeRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		log.Warn().
			Err(err).
			Msg("payment.pix.invalid_body")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField, err.Error())
		return
	}

	charge, err := h.engine.CreatePixCharge(r.Context(), reconcile.PixRequest{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if h.metrics != nil {
		h.metrics.ObserveCreate("pix", time.Since(start), err)
	}
	if err != nil {
		log.Error().
			Err(err).
			Msg("payment.pix.failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeProcessorError, "failed to create PIX charge")
		return
	}

	responders.JSON(w, http.StatusOK, charge)
}

// createCardCharge executes a tokenized card charge. The card token comes
// from the processor's client-side SDK; the raw card never reaches us.
func (h *handlers) createCardCharge(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	start := time.Now()

	var req cardChargeRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		log.Warn().
			Err(err).
			Msg("payment.card.invalid_body")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField, err.Error())
		return
	}
	if req.Token == "" {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingField, "token is required")
		return
	}
	if req.PaymentMethodID == "" {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingField, "payment_method_id is required")
		return
	}

	charge, err := h.engine.CreateCardCharge(r.Context(), reconcile.CardRequest{
		Token:           req.Token,
		Email:           req.Email,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		PaymentMethodID: req.PaymentMethodID,
		Installments:    req.Installments,
	})
	if h.metrics != nil {
		h.metrics.ObserveCreate("card", time.Since(start), err)
	}
	if err != nil {
		log.Error().
			Err(err).
			Msg("payment.card.failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeProcessorError, "failed to create card charge")
		return
	}

	responders.JSON(w, http.StatusOK, charge)
}

// publicKey serves the processor's public key for the client-side SDK.
func (h *handlers) publicKey(w http.ResponseWriter, r *http.Request) {
	if h.cfg.MercadoPago.PublicKey == "" {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeConfigError, "public key not configured")
		return
	}
	responders.JSON(w, http.StatusOK, map[string]string{
		"public_key": h.cfg.MercadoPago.PublicKey,
	})
}

// paymentStatus polls by processor payment id.
func (h *handlers) paymentStatus(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")

	result, err := h.engine.StatusByPaymentID(r.Context(), paymentID)
	if err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "status lookup failed")
		return
	}

	if !result.Found {
		responders.JSON(w, http.StatusOK, statusResponse{
			Status:    result.Status,
			PaymentID: paymentID,
		})
		return
	}

	responders.JSON(w, http.StatusOK, statusResponse{
		Status:            result.Status,
		PaymentID:         result.PaymentID,
		ExternalReference: result.ExternalReference,
	})
}
