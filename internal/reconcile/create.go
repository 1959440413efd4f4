package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meuev/server/internal/logger"
	"github.com/meuev/server/internal/processor"
	"github.com/meuev/server/internal/records"
)

// CheckoutRequest carries the inputs of a redirect checkout creation. Origin
// and Referer come from the request headers and participate in the return
// URL fallback chain.
type CheckoutRequest struct {
	ReturnURL string
	Origin    string
	Referer   string
}

// CheckoutSession is the result of a successful redirect checkout creation.
type CheckoutSession struct {
	CheckoutURL       string `json:"checkout_url"`
	PreferenceID      string `json:"preference_id"`
	ExternalReference string `json:"external_reference"`
}

// PixRequest carries the payer fields of a direct PIX charge.
type PixRequest struct {
	Email     string
	FirstName string
	LastName  string
}

// PixCharge is the result of a PIX charge creation, including the artifacts
// the payer needs to complete it.
type PixCharge struct {
	PaymentID         string  `json:"payment_id"`
	Status            string  `json:"status"`
	QRCode            string  `json:"qr_code"`
	QRCodeBase64      string  `json:"qr_code_base64"`
	TicketURL         string  `json:"ticket_url"`
	Amount            float64 `json:"amount"`
	ExternalReference string  `json:"external_reference"`
}

// CardRequest carries a tokenized card charge.
type CardRequest struct {
	Token           string
	Email           string
	FirstName       string
	LastName        string
	PaymentMethodID string
	Installments    int
}

// CardCharge is the result of a card charge creation. Card charges settle
// synchronously, so Status may already be conclusive.
type CardCharge struct {
	PaymentID         string `json:"payment_id"`
	Status            string `json:"status"`
	StatusDetail      string `json:"status_detail"`
	ExternalReference string `json:"external_reference"`
}

// CreateCheckout opens a hosted checkout at the processor and records the
// new payment as pending under the returned preference id.
func (s *Service) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	log := logger.FromContext(ctx)

	reference := s.newReference()
	returnURL := s.resolveReturnURL(req)

	log.Info().
		Str("external_reference", reference).
		Str("return_url", returnURL).
		Msg("checkout.create")

	pref, err := callProcessor(ctx, s, "create_preference", func(ctx context.Context) (*processor.Preference, error) {
		return s.processor.CreatePreference(ctx, processor.PreferenceRequest{
			Items: []processor.Item{{
				Title:      s.cfg.ItemTitle,
				Quantity:   1,
				UnitPrice:  s.cfg.UnitPrice,
				CurrencyID: s.cfg.CurrencyID,
			}},
			BackURLs: processor.BackURLs{
				Success: backURL(returnURL, "success", reference),
				Pending: backURL(returnURL, "pending", reference),
				Failure: backURL(returnURL, "failure", reference),
			},
			AutoReturn:          "approved",
			StatementDescriptor: s.cfg.StatementDescriptor,
			ExternalReference:   reference,
			NotificationURL:     s.cfg.NotificationURL(),
			MaxInstallments:     s.cfg.MaxInstallments,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout: %w", err)
	}

	now := time.Now()
	if err := s.store.Put(ctx, pref.ID, records.PaymentRecord{
		Status:            records.StatusPending,
		ExternalReference: reference,
		CreatedAt:         now,
		UpdatedAt:         now,
	}); err != nil {
		return nil, fmt.Errorf("store checkout record: %w", err)
	}
	s.recordTransition(records.StatusPending)

	log.Info().
		Str("preference_id", pref.ID).
		Str("external_reference", reference).
		Msg("checkout.created")

	return &CheckoutSession{
		CheckoutURL:       pref.InitPoint,
		PreferenceID:      pref.ID,
		ExternalReference: reference,
	}, nil
}

// CreatePixCharge initiates a PIX charge and records the payment under the
// processor's payment id with whatever status came back synchronously.
func (s *Service) CreatePixCharge(ctx context.Context, req PixRequest) (*PixCharge, error) {
	payment, reference, err := s.createCharge(ctx, "create_pix_charge", processor.ChargeRequest{
		Amount:          s.cfg.UnitPrice,
		Description:     s.cfg.ItemTitle,
		PaymentMethodID: "pix",
		Payer:           defaultPayer(req.Email, req.FirstName, req.LastName),
	})
	if err != nil {
		return nil, err
	}

	return &PixCharge{
		PaymentID:         payment.ID,
		Status:            payment.Status,
		QRCode:            payment.QRCode,
		QRCodeBase64:      payment.QRCodeBase64,
		TicketURL:         payment.TicketURL,
		Amount:            s.cfg.UnitPrice,
		ExternalReference: reference,
	}, nil
}

// CreateCardCharge executes a tokenized card charge.
func (s *Service) CreateCardCharge(ctx context.Context, req CardRequest) (*CardCharge, error) {
	installments := req.Installments
	if installments <= 0 {
		installments = 1
	}

	payment, reference, err := s.createCharge(ctx, "create_card_charge", processor.ChargeRequest{
		Amount:          s.cfg.UnitPrice,
		Description:     s.cfg.ItemTitle,
		PaymentMethodID: req.PaymentMethodID,
		Token:           req.Token,
		Installments:    installments,
		Payer:           defaultPayer(req.Email, req.FirstName, req.LastName),
	})
	if err != nil {
		return nil, err
	}

	return &CardCharge{
		PaymentID:         payment.ID,
		Status:            payment.Status,
		StatusDetail:      payment.StatusDetail,
		ExternalReference: reference,
	}, nil
}

// createCharge runs the shared direct-charge path: generate a reference,
// call the processor, store the record keyed by the returned payment id.
func (s *Service) createCharge(ctx context.Context, operation string, req processor.ChargeRequest) (*processor.Payment, string, error) {
	log := logger.FromContext(ctx)

	reference := s.newReference()
	req.ExternalReference = reference
	req.NotificationURL = s.cfg.NotificationURL()

	log.Info().
		Str("external_reference", reference).
		Str("payment_method", req.PaymentMethodID).
		Str("payer_email", logger.RedactEmail(req.Payer.Email)).
		Msg("charge.create")

	payment, err := callProcessor(ctx, s, operation, func(ctx context.Context) (*processor.Payment, error) {
		return s.processor.CreateCharge(ctx, req)
	})
	if err != nil {
		return nil, "", fmt.Errorf("create charge: %w", err)
	}

	now := time.Now()
	if err := s.store.Put(ctx, payment.ID, records.PaymentRecord{
		Status:            payment.Status,
		ExternalReference: reference,
		PaymentID:         payment.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}); err != nil {
		return nil, "", fmt.Errorf("store charge record: %w", err)
	}
	s.recordTransition(payment.Status)

	log.Info().
		Str("payment_id", payment.ID).
		Str("status", payment.Status).
		Msg("charge.created")

	return payment, reference, nil
}

// resolveReturnURL applies the return URL precedence chain: explicit request
// field, configured frontend URL, Origin header, Referer origin, hardcoded
// fallback.
func (s *Service) resolveReturnURL(req CheckoutRequest) string {
	if req.ReturnURL != "" {
		return req.ReturnURL
	}
	if s.cfg.FrontendURL != "" {
		return s.cfg.FrontendURL
	}
	if req.Origin != "" {
		return req.Origin
	}
	if req.Referer != "" {
		return strings.SplitN(req.Referer, "?", 2)[0]
	}
	return s.cfg.FallbackURL
}

func backURL(base, outcome, reference string) string {
	return fmt.Sprintf("%s?payment=%s&ref=%s", base, outcome, reference)
}

func defaultPayer(email, firstName, lastName string) processor.Payer {
	if email == "" {
		email = "cliente@meuev.com"
	}
	if firstName == "" {
		firstName = "Cliente"
	}
	return processor.Payer{Email: email, FirstName: firstName, LastName: lastName}
}
