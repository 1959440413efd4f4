package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meuev/server/internal/logger"
	"github.com/meuev/server/internal/processor"
	"github.com/meuev/server/internal/records"
)

// EventTypePayment is the only notification type the engine acts on.
const EventTypePayment = "payment"

// HandleNotification applies a processor webhook. The notification is only a
// hint: the status is always re-fetched by payment id, which also defangs
// forged payloads carrying a fabricated status. Unknown event types are
// acknowledged and ignored.
//
// A returned error means an unexpected internal fault; the handler maps it
// to a non-2xx status so the processor re-delivers. Everything else,
// including "we have no record of this payment", acknowledges cleanly.
func (s *Service) HandleNotification(ctx context.Context, eventType, paymentID string) error {
	log := logger.FromContext(ctx)

	if eventType != EventTypePayment {
		log.Debug().
			Str("event_type", eventType).
			Msg("webhook.ignored")
		return nil
	}
	if paymentID == "" {
		log.Warn().Msg("webhook.missing_payment_id")
		return nil
	}

	payment, err := callProcessor(ctx, s, "get_payment", func(ctx context.Context) (*processor.Payment, error) {
		return s.processor.GetPayment(ctx, paymentID)
	})
	if err != nil {
		if errors.Is(err, processor.ErrPaymentNotFound) {
			// The processor notified us about a payment it then claimed not
			// to know. Nothing to reconcile; acknowledging stops redelivery.
			log.Warn().
				Str("payment_id", paymentID).
				Msg("webhook.payment_unknown_at_processor")
			return nil
		}
		return fmt.Errorf("fetch payment %s: %w", paymentID, err)
	}

	log.Info().
		Str("payment_id", payment.ID).
		Str("status", payment.Status).
		Str("external_reference", payment.ExternalReference).
		Msg("webhook.payment")

	now := time.Now()
	if err := s.upsertMerged(ctx, payment.ID, payment, now); err != nil {
		return err
	}
	s.recordTransition(payment.Status)

	// The redirect flow stored its record under a preference id; bring that
	// twin up to date too so a scan by correlation token sees the latest
	// transition no matter which key it lands on.
	siblingKey := payment.PreferenceID()
	if siblingKey == "" && payment.ExternalReference != "" {
		if key, _, err := s.store.FindByExternalReference(ctx, payment.ExternalReference); err == nil {
			siblingKey = key
		}
	}
	if siblingKey != "" && siblingKey != payment.ID {
		if err := s.upsertMerged(ctx, siblingKey, payment, now); err != nil {
			return err
		}
		log.Info().
			Str("preference_id", siblingKey).
			Str("status", payment.Status).
			Msg("webhook.preference_updated")
	}

	return nil
}

// upsertMerged writes the processor's view of a payment into the record at
// key, preserving fields the update does not carry. New status, payment id,
// and timestamp override; the correlation token is assigned once and kept.
//
// The get-then-put pair is not atomic; a concurrent writer between the two
// calls loses (see the Service doc).
func (s *Service) upsertMerged(ctx context.Context, key string, payment *processor.Payment, now time.Time) error {
	record, err := s.store.Get(ctx, key)
	switch {
	case err == nil:
		// merge onto the existing record
	case errors.Is(err, records.ErrNotFound):
		record = records.PaymentRecord{
			ExternalReference: payment.ExternalReference,
			CreatedAt:         now,
		}
	default:
		return fmt.Errorf("load record %s: %w", key, err)
	}

	record.Status = payment.Status
	if payment.ID != "" {
		record.PaymentID = payment.ID
	}
	if record.ExternalReference == "" {
		record.ExternalReference = payment.ExternalReference
	}
	record.UpdatedAt = now

	if err := s.store.Put(ctx, key, record); err != nil {
		return fmt.Errorf("store record %s: %w", key, err)
	}
	return nil
}
