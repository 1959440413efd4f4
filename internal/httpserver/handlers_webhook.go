package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/meuev/server/internal/logger"
	"github.com/meuev/server/internal/reconcile"
)

// webhookNotification is the processor's delivery payload. The payment id
// arrives as a JSON number in some delivery modes and a string in others.
type webhookNotification struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Data  struct {
		ID flexibleID `json:"id"`
	} `json:"data"`
}

// flexibleID unmarshals a JSON string or number into its textual form.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) >= 2 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

// handleWebhook receives processor notifications. It answers with bare
// status codes and no body: the audience is the processor's delivery retry
// logic, and anything but a clean 200 triggers redelivery. Malformed or
// irrelevant payloads are therefore acknowledged, not rejected.
func (h *handlers) handleWebhook(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	start := time.Now()

	var note webhookNotification
	if err := decodeJSON(r.Body, &note); err != nil {
		log.Warn().
			Err(err).
			Msg("webhook.invalid_body")
		w.WriteHeader(http.StatusOK)
		return
	}

	eventType := note.Type
	if eventType == "" {
		eventType = note.Topic
	}
	paymentID := string(note.Data.ID)

	// Some delivery modes put the notification in the query string instead.
	query := r.URL.Query()
	if eventType == "" {
		eventType = query.Get("type")
		if eventType == "" {
			eventType = query.Get("topic")
		}
	}
	if paymentID == "" {
		paymentID = query.Get("data.id")
		if paymentID == "" {
			paymentID = query.Get("id")
		}
	}

	err := h.engine.HandleNotification(r.Context(), eventType, paymentID)
	if h.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failed"
		}
		h.metrics.ObserveWebhook(normalizeEventType(eventType), outcome, time.Since(start))
	}
	if err != nil {
		log.Error().
			Err(err).
			Str("payment_id", paymentID).
			Msg("webhook.failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// normalizeEventType keeps the metric label space bounded.
func normalizeEventType(eventType string) string {
	if eventType == reconcile.EventTypePayment {
		return eventType
	}
	return "other"
}
