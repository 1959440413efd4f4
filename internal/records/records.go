package records

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested payment record is missing from the store.
var ErrNotFound = errors.New("records: not found")

// PaymentRecord tracks the locally known lifecycle state of one checkout or
// charge attempt. Status carries the processor's vocabulary verbatim
// (pending, approved, rejected, in_process, refunded, ...) and is never
// interpreted beyond equality checks; "pending" alone is treated as
// inconclusive by the reconciliation engine.
type PaymentRecord struct {
	Status            string    `json:"status"`
	ExternalReference string    `json:"external_reference"`
	PaymentID         string    `json:"payment_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// StatusPending is the only status value with engine-level meaning: the
// payment is not yet conclusive and worth re-querying at the processor.
const StatusPending = "pending"

// Conclusive reports whether the record's status no longer warrants a
// processor round trip.
func (r PaymentRecord) Conclusive() bool {
	return r.Status != "" && r.Status != StatusPending
}

// Store captures the persistence requirements for payment lifecycle state.
//
// Keys are processor-issued identifiers: a preference id for redirect
// checkouts, a payment id for direct charges. The same logical payment may
// therefore live under two keys; the reconciliation engine is responsible
// for keeping both in step.
//
// Operations are atomic with respect to each other, but the store provides
// no cross-operation transactions: a read-then-write sequence can interleave
// with a concurrent writer and the later Put wins.
type Store interface {
	// Put unconditionally upserts the record at key.
	Put(ctx context.Context, key string, record PaymentRecord) error

	// Get returns the record at key, or ErrNotFound.
	Get(ctx context.Context, key string) (PaymentRecord, error)

	// FindByExternalReference scans all records and returns the first whose
	// ExternalReference matches, in insertion order. Callers must not rely
	// on this scan for recency when two keys share a reference; it exists to
	// join a payment id back to the preference-keyed record.
	FindByExternalReference(ctx context.Context, ref string) (key string, record PaymentRecord, err error)

	Close() error
}
