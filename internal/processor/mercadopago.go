package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/meuev/server/internal/circuitbreaker"
)

// DefaultBaseURL is the production Mercado Pago API endpoint.
const DefaultBaseURL = "https://api.mercadopago.com"

// MercadoPagoConfig configures the REST client.
type MercadoPagoConfig struct {
	AccessToken string
	BaseURL     string        // defaults to DefaultBaseURL
	Timeout     time.Duration // per-request timeout, defaults to 15s
}

// MercadoPago is the Client implementation backed by the Mercado Pago REST
// API. All calls run inside the shared circuit breaker; none are retried
// automatically (retry responsibility sits with the caller end to end).
type MercadoPago struct {
	cfg      MercadoPagoConfig
	http     *http.Client
	breakers *circuitbreaker.Manager
}

// NewMercadoPago constructs the REST client. A nil breaker manager disables
// circuit breaking (calls pass straight through).
func NewMercadoPago(cfg MercadoPagoConfig, breakers *circuitbreaker.Manager) *MercadoPago {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if breakers == nil {
		breakers = circuitbreaker.NewManager(circuitbreaker.Config{Enabled: false})
	}
	return &MercadoPago{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		breakers: breakers,
	}
}

// Wire representations. Mercado Pago serializes payment ids as numbers, so
// they are decoded through json.Number and normalized to strings.

type preferenceWire struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

type paymentWire struct {
	ID                 json.Number    `json:"id"`
	Status             string         `json:"status"`
	StatusDetail       string         `json:"status_detail"`
	ExternalReference  string         `json:"external_reference"`
	TransactionAmount  float64        `json:"transaction_amount"`
	Metadata           map[string]any `json:"metadata"`
	PointOfInteraction *struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
			TicketURL    string `json:"ticket_url"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

func (w *paymentWire) toPayment() *Payment {
	p := &Payment{
		ID:                w.ID.String(),
		Status:            w.Status,
		StatusDetail:      w.StatusDetail,
		ExternalReference: w.ExternalReference,
		Amount:            w.TransactionAmount,
		Metadata:          w.Metadata,
	}
	if w.PointOfInteraction != nil {
		p.QRCode = w.PointOfInteraction.TransactionData.QRCode
		p.QRCodeBase64 = w.PointOfInteraction.TransactionData.QRCodeBase64
		p.TicketURL = w.PointOfInteraction.TransactionData.TicketURL
	}
	return p
}

// CreatePreference opens a Checkout Pro session.
func (c *MercadoPago) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	body := map[string]any{
		"items":                req.Items,
		"back_urls":            req.BackURLs,
		"external_reference":   req.ExternalReference,
		"notification_url":     req.NotificationURL,
		"statement_descriptor": req.StatementDescriptor,
	}
	if req.AutoReturn != "" {
		body["auto_return"] = req.AutoReturn
	}
	if req.MaxInstallments > 0 {
		body["payment_methods"] = map[string]any{
			"excluded_payment_types": []any{},
			"installments":           req.MaxInstallments,
		}
	}

	var wire preferenceWire
	if err := c.do(ctx, http.MethodPost, "/checkout/preferences", body, &wire); err != nil {
		return nil, fmt.Errorf("create preference: %w", err)
	}
	return &Preference{ID: wire.ID, InitPoint: wire.InitPoint}, nil
}

// CreateCharge executes a direct charge (PIX or tokenized card).
func (c *MercadoPago) CreateCharge(ctx context.Context, req ChargeRequest) (*Payment, error) {
	payer := map[string]any{"email": req.Payer.Email}
	if req.Payer.FirstName != "" {
		payer["first_name"] = req.Payer.FirstName
	}
	if req.Payer.LastName != "" {
		payer["last_name"] = req.Payer.LastName
	}

	body := map[string]any{
		"transaction_amount": req.Amount,
		"description":        req.Description,
		"payment_method_id":  req.PaymentMethodID,
		"payer":              payer,
		"external_reference": req.ExternalReference,
		"notification_url":   req.NotificationURL,
	}
	if req.Token != "" {
		body["token"] = req.Token
	}
	if req.Installments > 0 {
		body["installments"] = req.Installments
	}

	var wire paymentWire
	if err := c.do(ctx, http.MethodPost, "/v1/payments", body, &wire); err != nil {
		return nil, fmt.Errorf("create charge: %w", err)
	}
	return wire.toPayment(), nil
}

// GetPayment fetches a single payment by id.
func (c *MercadoPago) GetPayment(ctx context.Context, id string) (*Payment, error) {
	var wire paymentWire
	err := c.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(id), nil, &wire)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment %s: %w", id, err)
	}
	return wire.toPayment(), nil
}

// SearchPayments looks up payments by external reference, most recent first.
func (c *MercadoPago) SearchPayments(ctx context.Context, externalReference string) ([]Payment, error) {
	q := url.Values{}
	q.Set("external_reference", externalReference)
	q.Set("sort", "date_created")
	q.Set("criteria", "desc")

	var wire struct {
		Results []paymentWire `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/payments/search?"+q.Encode(), nil, &wire); err != nil {
		return nil, fmt.Errorf("search payments: %w", err)
	}

	payments := make([]Payment, 0, len(wire.Results))
	for i := range wire.Results {
		payments = append(payments, *wire.Results[i].toPayment())
	}
	return payments, nil
}

// do performs one API round trip inside the circuit breaker and decodes the
// JSON response into out.
func (c *MercadoPago) do(ctx context.Context, method, path string, body any, out any) error {
	_, err := c.breakers.Execute(circuitbreaker.ServiceMercadoPago, func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, body, out)
	})
	return err
}

func (c *MercadoPago) roundTrip(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		// Mercado Pago requires a unique idempotency key on write calls.
		req.Header.Set("X-Idempotency-Key", uuid.NewString())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: apiMessage(raw)}
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// apiMessage pulls the human-readable message out of an error body, falling
// back to the raw payload.
func apiMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if len(raw) > 256 {
		raw = raw[:256]
	}
	return string(raw)
}
