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

type createCheckoutRequest struct {
	ReturnURL string `json:"return_url"`
}

// statusResponse is the common shape of all poll answers. Absent fields are
// omitted; "not_found" answers carry only the status and the polled key.
type statusResponse struct {
	Status            string `json:"status"`
	PaymentID         string `json:"payment_id,omitempty"`
	PreferenceID      string `json:"preference_id,omitempty"`
	ExternalReference string `json:"external_reference,omitempty"`
	Source            string `json:"source,omitempty"`
}

// createCheckout opens a redirect checkout at the processor.
func (h *handlers) createCheckout(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	start := time.Now()

	var req createCheckoutRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		log.Warn().
			Err(err).
			Msg("checkout.create.invalid_body")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField, err.Error())
		return
	}

	session, err := h.engine.CreateCheckout(r.Context(), reconcile.CheckoutRequest{
		ReturnURL: req.ReturnURL,
		Origin:    r.Header.Get("Origin"),
		Referer:   r.Header.Get("Referer"),
	})
	if h.metrics != nil {
		h.metrics.ObserveCreate("checkout", time.Since(start), err)
	}
	if err != nil {
		log.Error().
			Err(err).
			Msg("checkout.create.failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeProcessorError, "failed to create checkout")
		return
	}

	responders.JSON(w, http.StatusOK, session)
}

// checkoutStatus is the legacy poll keyed by preference id: answered from
// the store alone, always HTTP 200, with a not_found body on a miss.
func (h *handlers) checkoutStatus(w http.ResponseWriter, r *http.Request) {
	preferenceID := chi.URLParam(r, "preferenceID")

	result, err := h.engine.StatusByPreferenceID(r.Context(), preferenceID)
	if err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "status lookup failed")
		return
	}

	if !result.Found {
		responders.JSON(w, http.StatusOK, statusResponse{
			Status:       result.Status,
			PreferenceID: preferenceID,
		})
		return
	}

	responders.JSON(w, http.StatusOK, statusResponse{
		Status:            result.Status,
		PaymentID:         result.PaymentID,
		PreferenceID:      preferenceID,
		ExternalReference: result.ExternalReference,
	})
}

// checkoutVerify polls by correlation token. The source field tells the
// client whether the answer came from the local store or a processor search,
// so it can tune its polling cadence.
func (h *handlers) checkoutVerify(w http.ResponseWriter, r *http.Request) {
	externalRef := chi.URLParam(r, "externalRef")

	result, err := h.engine.VerifyByReference(r.Context(), externalRef)
	if err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "verification failed")
		return
	}

	if !result.Found {
		responders.JSON(w, http.StatusOK, statusResponse{Status: result.Status})
		return
	}

	responders.JSON(w, http.StatusOK, statusResponse{
		Status:            result.Status,
		PaymentID:         result.PaymentID,
		PreferenceID:      result.PreferenceID,
		ExternalReference: externalRef,
		Source:            result.Source,
	})
}
