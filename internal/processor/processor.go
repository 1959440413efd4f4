package processor

import (
	"context"
	"errors"
	"fmt"
)

// ErrPaymentNotFound is returned when the processor has no payment for the
// requested identifier. Callers treat this as an expected outcome, not a fault.
var ErrPaymentNotFound = errors.New("processor: payment not found")

// Client abstracts the external payment processor. The reconciliation engine
// depends only on this interface; the Mercado Pago implementation lives in
// this package, fakes live next to the engine's tests.
type Client interface {
	// CreatePreference opens a redirect (hosted) checkout session and returns
	// its id and the URL the payer should be sent to.
	CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error)

	// CreateCharge executes or initiates an immediate charge (PIX, tokenized
	// card). Some methods settle synchronously, so the returned status may
	// already be conclusive.
	CreateCharge(ctx context.Context, req ChargeRequest) (*Payment, error)

	// GetPayment fetches the authoritative state of a single payment.
	// Returns ErrPaymentNotFound when the processor does not know the id.
	GetPayment(ctx context.Context, id string) (*Payment, error)

	// SearchPayments returns payments matching the external reference,
	// most recent first. An empty slice is not an error.
	SearchPayments(ctx context.Context, externalReference string) ([]Payment, error)
}

// Item describes a single purchasable line in a redirect checkout.
type Item struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

// BackURLs are the redirect targets the processor sends the payer to after
// the hosted checkout concludes.
type BackURLs struct {
	Success string `json:"success"`
	Pending string `json:"pending"`
	Failure string `json:"failure"`
}

// PreferenceRequest captures everything needed to open a hosted checkout.
type PreferenceRequest struct {
	Items               []Item
	BackURLs            BackURLs
	AutoReturn          string
	StatementDescriptor string
	ExternalReference   string
	NotificationURL     string
	MaxInstallments     int
}

// Preference is the processor's handle on a hosted checkout session.
type Preference struct {
	ID        string
	InitPoint string
}

// Payer identifies the paying customer on a direct charge.
type Payer struct {
	Email     string
	FirstName string
	LastName  string
}

// ChargeRequest captures a direct charge (PIX or tokenized card).
type ChargeRequest struct {
	Amount            float64
	Description       string
	PaymentMethodID   string // "pix", or a card brand id when Token is set
	Token             string // card token from the client-side SDK, empty for PIX
	Installments      int
	Payer             Payer
	ExternalReference string
	NotificationURL   string
}

// Payment is the processor's view of a charge at a point in time.
type Payment struct {
	ID                string
	Status            string
	StatusDetail      string
	ExternalReference string
	Amount            float64
	Metadata          map[string]any

	// PIX / ticket artifacts, present only when the method produces them.
	QRCode       string
	QRCodeBase64 string
	TicketURL    string
}

// PreferenceID extracts the preference id the processor echoed back through
// payment metadata, if any.
func (p *Payment) PreferenceID() string {
	if p.Metadata == nil {
		return ""
	}
	if v, ok := p.Metadata["preference_id"].(string); ok {
		return v
	}
	return ""
}

// APIError carries a non-2xx processor response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("processor: api status %d: %s", e.StatusCode, e.Message)
}
