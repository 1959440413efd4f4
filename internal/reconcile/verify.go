package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/meuev/server/internal/logger"
	"github.com/meuev/server/internal/processor"
	"github.com/meuev/server/internal/records"
)

// StatusResult answers a poll. Found is false only when neither the store
// nor the processor knows the payment, in which case Status is "not_found".
// Source names which side produced the answer so clients can tune their
// polling cadence.
type StatusResult struct {
	Found             bool
	Status            string
	PaymentID         string
	PreferenceID      string
	ExternalReference string
	Source            string
}

func notFoundResult() StatusResult {
	return StatusResult{Status: StatusNotFound}
}

// StatusByPaymentID polls by processor payment id. A stored record is
// authoritative; on a miss the processor is queried once and the result
// backfilled. Processor failures, including "no such payment", degrade to
// not_found rather than an error.
func (s *Service) StatusByPaymentID(ctx context.Context, paymentID string) (StatusResult, error) {
	log := logger.FromContext(ctx)

	record, err := s.store.Get(ctx, paymentID)
	if err == nil {
		s.observePoll("payment_id", SourceCache)
		return StatusResult{
			Found:             true,
			Status:            record.Status,
			PaymentID:         paymentID,
			ExternalReference: record.ExternalReference,
			Source:            SourceCache,
		}, nil
	}
	if !errors.Is(err, records.ErrNotFound) {
		return StatusResult{}, err
	}

	payment, err := callProcessor(ctx, s, "get_payment", func(ctx context.Context) (*processor.Payment, error) {
		return s.processor.GetPayment(ctx, paymentID)
	})
	if err != nil {
		if !errors.Is(err, processor.ErrPaymentNotFound) {
			log.Warn().
				Err(err).
				Str("payment_id", paymentID).
				Msg("poll.processor_lookup_failed")
		}
		s.observePoll("payment_id", StatusNotFound)
		return notFoundResult(), nil
	}

	if err := s.upsertMerged(ctx, payment.ID, payment, time.Now()); err != nil {
		return StatusResult{}, err
	}
	s.recordTransition(payment.Status)
	s.observePoll("payment_id", SourceProcessor)

	return StatusResult{
		Found:             true,
		Status:            payment.Status,
		PaymentID:         payment.ID,
		ExternalReference: payment.ExternalReference,
		Source:            SourceProcessor,
	}, nil
}

// StatusByPreferenceID is the legacy poll keyed by preference id: a pure
// store lookup, no processor fallback.
func (s *Service) StatusByPreferenceID(ctx context.Context, preferenceID string) (StatusResult, error) {
	record, err := s.store.Get(ctx, preferenceID)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			s.observePoll("preference_id", StatusNotFound)
			return notFoundResult(), nil
		}
		return StatusResult{}, err
	}

	s.observePoll("preference_id", SourceCache)
	return StatusResult{
		Found:             true,
		Status:            record.Status,
		PaymentID:         record.PaymentID,
		PreferenceID:      preferenceID,
		ExternalReference: record.ExternalReference,
		Source:            SourceCache,
	}, nil
}

// VerifyByReference polls by correlation token. A conclusive cached status
// is trusted outright; a miss or a still-pending record triggers a reverse
// search at the processor (most recent payment first), whose answer is
// backfilled into every key reachable by the token. When the processor has
// nothing, whatever the store held is returned.
func (s *Service) VerifyByReference(ctx context.Context, reference string) (StatusResult, error) {
	log := logger.FromContext(ctx)

	cachedKey, cached, err := s.store.FindByExternalReference(ctx, reference)
	haveCached := err == nil
	if err != nil && !errors.Is(err, records.ErrNotFound) {
		return StatusResult{}, err
	}

	if haveCached && cached.Conclusive() {
		s.observePoll("reference", SourceCache)
		return cachedResult(cachedKey, cached), nil
	}

	payments, err := callProcessor(ctx, s, "search_payments", func(ctx context.Context) ([]processor.Payment, error) {
		return s.processor.SearchPayments(ctx, reference)
	})
	if err != nil || len(payments) == 0 {
		if err != nil {
			log.Warn().
				Err(err).
				Str("external_reference", reference).
				Msg("verify.processor_search_failed")
		}
		if haveCached {
			s.observePoll("reference", SourceCache)
			return cachedResult(cachedKey, cached), nil
		}
		s.observePoll("reference", StatusNotFound)
		return notFoundResult(), nil
	}

	latest := payments[0]
	if latest.ExternalReference == "" {
		latest.ExternalReference = reference
	}

	now := time.Now()
	if err := s.upsertMerged(ctx, latest.ID, &latest, now); err != nil {
		return StatusResult{}, err
	}
	if haveCached && cachedKey != latest.ID {
		if err := s.upsertMerged(ctx, cachedKey, &latest, now); err != nil {
			return StatusResult{}, err
		}
	}
	s.recordTransition(latest.Status)
	s.observePoll("reference", SourceProcessor)

	result := StatusResult{
		Found:             true,
		Status:            latest.Status,
		PaymentID:         latest.ID,
		ExternalReference: reference,
		Source:            SourceProcessor,
	}
	if haveCached && cachedKey != latest.ID {
		result.PreferenceID = cachedKey
	}
	return result, nil
}

// cachedResult shapes a store hit found by token scan. When the record's key
// differs from its payment id, the key is the preference id.
func cachedResult(key string, record records.PaymentRecord) StatusResult {
	result := StatusResult{
		Found:             true,
		Status:            record.Status,
		PaymentID:         record.PaymentID,
		ExternalReference: record.ExternalReference,
		Source:            SourceCache,
	}
	if key != record.PaymentID {
		result.PreferenceID = key
	}
	return result
}

func (s *Service) observePoll(kind, source string) {
	if s.metrics != nil {
		s.metrics.ObservePoll(kind, source)
	}
}
