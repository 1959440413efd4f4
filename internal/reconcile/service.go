// Package reconcile implements the payment status reconciliation engine: it
// creates local lifecycle records for checkouts and charges, applies
// processor-originated webhook updates, and answers client polls with a
// processor fallback when the local state is missing or inconclusive.
package reconcile

import (
	"context"
	"time"

	"github.com/meuev/server/internal/config"
	"github.com/meuev/server/internal/metrics"
	"github.com/meuev/server/internal/processor"
	"github.com/meuev/server/internal/records"
)

// Source identifies which side answered a poll.
const (
	SourceCache     = "cache"
	SourceProcessor = "processor"
)

// StatusNotFound is the typed status returned when neither the store nor the
// processor knows the payment. A missing record is an expected outcome, not
// an error.
const StatusNotFound = "not_found"

// Service is the reconciliation engine. It owns every mutation of the record
// store; handlers never touch the store directly.
//
// The store's atomicity is per-call only. The read-merge-write sequences in
// the webhook and backfill paths can interleave with a concurrent writer and
// the later write wins, regardless of which carried the fresher processor
// status. Callers must treat the store as eventually consistent by last
// writer; serializing writers per key would be the hardening for that.
type Service struct {
	cfg       config.CheckoutConfig
	store     records.Store
	processor processor.Client
	metrics   *metrics.Metrics
}

// NewService wires the engine.
func NewService(cfg config.CheckoutConfig, store records.Store, client processor.Client, collector *metrics.Metrics) *Service {
	return &Service{
		cfg:       cfg,
		store:     store,
		processor: client,
		metrics:   collector,
	}
}

// Store exposes the underlying record store, primarily for tests.
func (s *Service) Store() records.Store {
	return s.store
}

// callProcessor runs one outbound call with duration metrics.
func callProcessor[T any](ctx context.Context, s *Service, operation string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	result, err := fn(ctx)
	if s.metrics != nil {
		s.metrics.ObserveProcessorCall(operation, time.Since(start), err)
	}
	return result, err
}

// recordTransition counts a status value newly written to the store.
func (s *Service) recordTransition(status string) {
	if s.metrics != nil {
		s.metrics.ObserveStatusTransition(status)
	}
}
