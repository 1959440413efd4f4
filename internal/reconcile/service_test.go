package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/meuev/server/internal/config"
	"github.com/meuev/server/internal/processor"
	"github.com/meuev/server/internal/records"
)

// fakeProcessor is a scriptable processor.Client that counts calls.
type fakeProcessor struct {
	preference *processor.Preference
	payment    *processor.Payment
	search     []processor.Payment

	preferenceErr error
	chargeErr     error
	getErr        error
	searchErr     error

	preferenceCalls int
	chargeCalls     int
	getCalls        int
	searchCalls     int

	lastPreferenceReq processor.PreferenceRequest
	lastChargeReq     processor.ChargeRequest
}

func (f *fakeProcessor) CreatePreference(_ context.Context, req processor.PreferenceRequest) (*processor.Preference, error) {
	f.preferenceCalls++
	f.lastPreferenceReq = req
	if f.preferenceErr != nil {
		return nil, f.preferenceErr
	}
	return f.preference, nil
}

func (f *fakeProcessor) CreateCharge(_ context.Context, req processor.ChargeRequest) (*processor.Payment, error) {
	f.chargeCalls++
	f.lastChargeReq = req
	if f.chargeErr != nil {
		return nil, f.chargeErr
	}
	// Echo the reference like the real processor does.
	p := *f.payment
	if p.ExternalReference == "" {
		p.ExternalReference = req.ExternalReference
	}
	return &p, nil
}

func (f *fakeProcessor) GetPayment(_ context.Context, _ string) (*processor.Payment, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.payment, nil
}

func (f *fakeProcessor) SearchPayments(_ context.Context, _ string) ([]processor.Payment, error) {
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.search, nil
}

func testConfig() config.CheckoutConfig {
	return config.CheckoutConfig{
		ItemTitle:           "MeuEV - Relatório Completo Premium",
		UnitPrice:           1.99,
		CurrencyID:          "BRL",
		StatementDescriptor: "MEUEV",
		ReferencePrefix:     "MEUEV",
		FrontendURL:         "https://app.example.com",
		FallbackURL:         "https://fallback.example.com",
		BackendURL:          "https://backend.example.com",
		MaxInstallments:     1,
	}
}

func newTestService(client processor.Client) (*Service, *records.MemoryStore) {
	store := records.NewMemoryStore()
	return NewService(testConfig(), store, client, nil), store
}

func TestCreateCheckoutStoresPendingRecord(t *testing.T) {
	fake := &fakeProcessor{
		preference: &processor.Preference{ID: "pref-1", InitPoint: "https://mp.example/init"},
	}
	svc, store := newTestService(fake)

	session, err := svc.CreateCheckout(context.Background(), CheckoutRequest{})
	if err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}

	if session.CheckoutURL != "https://mp.example/init" {
		t.Errorf("checkout URL = %q", session.CheckoutURL)
	}
	if session.PreferenceID != "pref-1" {
		t.Errorf("preference id = %q", session.PreferenceID)
	}
	if !strings.HasPrefix(session.ExternalReference, "MEUEV-") {
		t.Errorf("reference %q missing prefix", session.ExternalReference)
	}

	record, err := store.Get(context.Background(), "pref-1")
	if err != nil {
		t.Fatalf("record not stored: %v", err)
	}
	if record.Status != records.StatusPending {
		t.Errorf("status = %q, want pending", record.Status)
	}
	if record.ExternalReference != session.ExternalReference {
		t.Errorf("stored reference = %q, want %q", record.ExternalReference, session.ExternalReference)
	}
}

func TestCreateCheckoutReferencesAreUnique(t *testing.T) {
	fake := &fakeProcessor{preference: &processor.Preference{ID: "pref", InitPoint: "u"}}
	svc, _ := newTestService(fake)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		session, err := svc.CreateCheckout(context.Background(), CheckoutRequest{})
		if err != nil {
			t.Fatalf("CreateCheckout: %v", err)
		}
		if seen[session.ExternalReference] {
			t.Fatalf("duplicate reference %q", session.ExternalReference)
		}
		seen[session.ExternalReference] = true
	}
}

func TestCreateCheckoutWiresPreferenceRequest(t *testing.T) {
	fake := &fakeProcessor{preference: &processor.Preference{ID: "pref-1", InitPoint: "u"}}
	svc, _ := newTestService(fake)

	session, err := svc.CreateCheckout(context.Background(), CheckoutRequest{ReturnURL: "https://custom.example"})
	if err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}

	req := fake.lastPreferenceReq
	if req.ExternalReference != session.ExternalReference {
		t.Errorf("external reference not forwarded")
	}
	wantSuccess := "https://custom.example?payment=success&ref=" + session.ExternalReference
	if req.BackURLs.Success != wantSuccess {
		t.Errorf("success back URL = %q, want %q", req.BackURLs.Success, wantSuccess)
	}
	if req.AutoReturn != "approved" {
		t.Errorf("auto_return = %q", req.AutoReturn)
	}
	if req.NotificationURL != "https://backend.example.com/webhook" {
		t.Errorf("notification URL = %q", req.NotificationURL)
	}
	if len(req.Items) != 1 || req.Items[0].UnitPrice != 1.99 || req.Items[0].CurrencyID != "BRL" {
		t.Errorf("items = %+v", req.Items)
	}
}

func TestCreateCheckoutProcessorFailure(t *testing.T) {
	fake := &fakeProcessor{preferenceErr: errors.New("boom")}
	svc, store := newTestService(fake)

	if _, err := svc.CreateCheckout(context.Background(), CheckoutRequest{}); err == nil {
		t.Fatal("expected error")
	}
	if store.Len() != 0 {
		t.Errorf("no record should be stored on failure, got %d", store.Len())
	}
}

func TestResolveReturnURLPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		frontend string
		req      CheckoutRequest
		want     string
	}{
		{"explicit field wins", "https://cfg.example", CheckoutRequest{ReturnURL: "https://req.example"}, "https://req.example"},
		{"config frontend", "https://cfg.example", CheckoutRequest{Origin: "https://origin.example"}, "https://cfg.example"},
		{"origin header", "", CheckoutRequest{Origin: "https://origin.example"}, "https://origin.example"},
		{"referer stripped of query", "", CheckoutRequest{Referer: "https://ref.example/page?x=1"}, "https://ref.example/page"},
		{"hardcoded fallback", "", CheckoutRequest{}, "https://fallback.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.FrontendURL = tt.frontend
			svc := NewService(cfg, records.NewMemoryStore(), &fakeProcessor{}, nil)
			if got := svc.resolveReturnURL(tt.req); got != tt.want {
				t.Errorf("resolveReturnURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCreatePixChargeStoresSynchronousStatus(t *testing.T) {
	fake := &fakeProcessor{
		payment: &processor.Payment{
			ID:           "777",
			Status:       records.StatusPending,
			QRCode:       "qr-data",
			QRCodeBase64: "cXItZGF0YQ==",
			TicketURL:    "https://mp.example/ticket",
		},
	}
	svc, store := newTestService(fake)

	charge, err := svc.CreatePixCharge(context.Background(), PixRequest{Email: "ana@example.com"})
	if err != nil {
		t.Fatalf("CreatePixCharge: %v", err)
	}
	if charge.PaymentID != "777" || charge.QRCode != "qr-data" {
		t.Errorf("charge = %+v", charge)
	}
	if fake.lastChargeReq.PaymentMethodID != "pix" {
		t.Errorf("payment method = %q", fake.lastChargeReq.PaymentMethodID)
	}

	record, err := store.Get(context.Background(), "777")
	if err != nil {
		t.Fatalf("record not stored: %v", err)
	}
	if record.PaymentID != "777" || record.Status != records.StatusPending {
		t.Errorf("record = %+v", record)
	}
	if record.ExternalReference != charge.ExternalReference {
		t.Errorf("reference mismatch: %q vs %q", record.ExternalReference, charge.ExternalReference)
	}
}

func TestCreateCardChargeDefaultsInstallments(t *testing.T) {
	fake := &fakeProcessor{
		payment: &processor.Payment{ID: "888", Status: "approved", StatusDetail: "accredited"},
	}
	svc, _ := newTestService(fake)

	charge, err := svc.CreateCardCharge(context.Background(), CardRequest{
		Token:           "tok_abc",
		PaymentMethodID: "visa",
	})
	if err != nil {
		t.Fatalf("CreateCardCharge: %v", err)
	}
	if charge.Status != "approved" || charge.StatusDetail != "accredited" {
		t.Errorf("charge = %+v", charge)
	}
	if fake.lastChargeReq.Installments != 1 {
		t.Errorf("installments = %d, want 1", fake.lastChargeReq.Installments)
	}
	if fake.lastChargeReq.Token != "tok_abc" {
		t.Errorf("token = %q", fake.lastChargeReq.Token)
	}
}

func TestHandleNotificationIgnoresOtherEventTypes(t *testing.T) {
	fake := &fakeProcessor{}
	svc, _ := newTestService(fake)

	if err := svc.HandleNotification(context.Background(), "merchant_order", "123"); err != nil {
		t.Fatalf("HandleNotification: %v", err)
	}
	if fake.getCalls != 0 {
		t.Errorf("processor queried for ignored event type")
	}
}

func TestHandleNotificationUpsertsByPaymentID(t *testing.T) {
	fake := &fakeProcessor{
		payment: &processor.Payment{ID: "555", Status: "approved", ExternalReference: "MEUEV-1-a"},
	}
	svc, store := newTestService(fake)

	if err := svc.HandleNotification(context.Background(), EventTypePayment, "555"); err != nil {
		t.Fatalf("HandleNotification: %v", err)
	}

	record, err := store.Get(context.Background(), "555")
	if err != nil {
		t.Fatalf("record not stored: %v", err)
	}
	if record.Status != "approved" || record.PaymentID != "555" || record.ExternalReference != "MEUEV-1-a" {
		t.Errorf("record = %+v", record)
	}
}

func TestHandleNotificationIsIdempotent(t *testing.T) {
	fake := &fakeProcessor{
		payment: &processor.Payment{ID: "555", Status: "approved", ExternalReference: "MEUEV-1-a"},
	}
	svc, store := newTestService(fake)

	for i := 0; i < 2; i++ {
		if err := svc.HandleNotification(context.Background(), EventTypePayment, "555"); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}

	if store.Len() != 1 {
		t.Errorf("store has %d records, want 1", store.Len())
	}
	record, _ := store.Get(context.Background(), "555")
	if record.Status != "approved" {
		t.Errorf("status = %q", record.Status)
	}
}

func TestHandleNotificationUpdatesPreferenceTwin(t *testing.T) {
	fake := &fakeProcessor{
		preference: &processor.Preference{ID: "pref-9", InitPoint: "u"},
	}
	svc, store := newTestService(fake)

	session, err := svc.CreateCheckout(context.Background(), CheckoutRequest{})
	if err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}

	// Webhook reports the payment executed against that preference, joined
	// only by the correlation token.
	fake.payment = &processor.Payment{
		ID:                "9001",
		Status:            "approved",
		ExternalReference: session.ExternalReference,
	}
	if err := svc.HandleNotification(context.Background(), EventTypePayment, "9001"); err != nil {
		t.Fatalf("HandleNotification: %v", err)
	}

	prefRecord, err := store.Get(context.Background(), "pref-9")
	if err != nil {
		t.Fatalf("preference record lost: %v", err)
	}
	if prefRecord.Status != "approved" {
		t.Errorf("preference record status = %q, want approved", prefRecord.Status)
	}
	if prefRecord.PaymentID != "9001" {
		t.Errorf("preference record payment id = %q", prefRecord.PaymentID)
	}
	if prefRecord.ExternalReference != session.ExternalReference {
		t.Errorf("reference mutated to %q", prefRecord.ExternalReference)
	}

	payRecord, err := store.Get(context.Background(), "9001")
	if err != nil {
		t.Fatalf("payment record missing: %v", err)
	}
	if payRecord.Status != "approved" {
		t.Errorf("payment record status = %q", payRecord.Status)
	}
}

func TestHandleNotificationUsesMetadataPreferenceID(t *testing.T) {
	fake := &fakeProcessor{
		payment: &processor.Payment{
			ID:                "42",
			Status:            "rejected",
			ExternalReference: "MEUEV-2-b",
			Metadata:          map[string]any{"preference_id": "pref-meta"},
		},
	}
	svc, store := newTestService(fake)

	// Seed the preference record the metadata points at.
	if err := store.Put(context.Background(), "pref-meta", records.PaymentRecord{
		Status:            records.StatusPending,
		ExternalReference: "MEUEV-2-b",
	}); err != nil {
		t.Fatal(err)
	}

	if err := svc.HandleNotification(context.Background(), EventTypePayment, "42"); err != nil {
		t.Fatalf("HandleNotification: %v", err)
	}

	record, _ := store.Get(context.Background(), "pref-meta")
	if record.Status != "rejected" || record.PaymentID != "42" {
		t.Errorf("record = %+v", record)
	}
}

func TestHandleNotificationUnknownPaymentAcknowledges(t *testing.T) {
	fake := &fakeProcessor{getErr: processor.ErrPaymentNotFound}
	svc, _ := newTestService(fake)

	if err := svc.HandleNotification(context.Background(), EventTypePayment, "nope"); err != nil {
		t.Fatalf("unknown payment must not error: %v", err)
	}
}

func TestHandleNotificationProcessorFaultPropagates(t *testing.T) {
	fake := &fakeProcessor{getErr: errors.New("mp down")}
	svc, _ := newTestService(fake)

	if err := svc.HandleNotification(context.Background(), EventTypePayment, "555"); err == nil {
		t.Fatal("expected error so delivery is retried")
	}
}

func TestStatusByPaymentIDServedFromCache(t *testing.T) {
	fake := &fakeProcessor{}
	svc, store := newTestService(fake)

	if err := store.Put(context.Background(), "321", records.PaymentRecord{
		Status:            "approved",
		PaymentID:         "321",
		ExternalReference: "MEUEV-3-c",
	}); err != nil {
		t.Fatal(err)
	}

	result, err := svc.StatusByPaymentID(context.Background(), "321")
	if err != nil {
		t.Fatalf("StatusByPaymentID: %v", err)
	}
	if !result.Found || result.Status != "approved" || result.Source != SourceCache {
		t.Errorf("result = %+v", result)
	}
	if fake.getCalls != 0 {
		t.Errorf("processor called on cache hit")
	}
}

func TestStatusByPaymentIDBackfillsOnMiss(t *testing.T) {
	fake := &fakeProcessor{
		payment: &processor.Payment{ID: "654", Status: "in_process", ExternalReference: "MEUEV-4-d"},
	}
	svc, store := newTestService(fake)

	result, err := svc.StatusByPaymentID(context.Background(), "654")
	if err != nil {
		t.Fatalf("StatusByPaymentID: %v", err)
	}
	if !result.Found || result.Status != "in_process" || result.Source != SourceProcessor {
		t.Errorf("result = %+v", result)
	}

	record, err := store.Get(context.Background(), "654")
	if err != nil {
		t.Fatalf("backfill missing: %v", err)
	}
	if record.Status != "in_process" {
		t.Errorf("record = %+v", record)
	}
}

func TestStatusByPaymentIDProcessorFailureIsNotFound(t *testing.T) {
	for _, getErr := range []error{processor.ErrPaymentNotFound, errors.New("mp down")} {
		fake := &fakeProcessor{getErr: getErr}
		svc, _ := newTestService(fake)

		result, err := svc.StatusByPaymentID(context.Background(), "654")
		if err != nil {
			t.Fatalf("lookup must not propagate processor errors: %v", err)
		}
		if result.Found || result.Status != StatusNotFound {
			t.Errorf("result = %+v", result)
		}
	}
}

func TestStatusByPreferenceIDMissIsNotFound(t *testing.T) {
	svc, _ := newTestService(&fakeProcessor{})

	result, err := svc.StatusByPreferenceID(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("StatusByPreferenceID: %v", err)
	}
	if result.Found || result.Status != StatusNotFound {
		t.Errorf("result = %+v", result)
	}
}

func TestVerifyByReferenceConclusiveCacheHit(t *testing.T) {
	fake := &fakeProcessor{}
	svc, store := newTestService(fake)

	if err := store.Put(context.Background(), "pref-7", records.PaymentRecord{
		Status:            "approved",
		PaymentID:         "700",
		ExternalReference: "MEUEV-5-e",
	}); err != nil {
		t.Fatal(err)
	}

	result, err := svc.VerifyByReference(context.Background(), "MEUEV-5-e")
	if err != nil {
		t.Fatalf("VerifyByReference: %v", err)
	}
	if result.Status != "approved" || result.Source != SourceCache {
		t.Errorf("result = %+v", result)
	}
	if result.PreferenceID != "pref-7" || result.PaymentID != "700" {
		t.Errorf("result = %+v", result)
	}
	if fake.searchCalls != 0 {
		t.Errorf("processor searched despite conclusive cache hit")
	}
}

func TestVerifyByReferenceMissSearchesOnceAndBackfills(t *testing.T) {
	fake := &fakeProcessor{
		search: []processor.Payment{{ID: "900", Status: "approved", ExternalReference: "MEUEV-6-f"}},
	}
	svc, store := newTestService(fake)

	result, err := svc.VerifyByReference(context.Background(), "MEUEV-6-f")
	if err != nil {
		t.Fatalf("VerifyByReference: %v", err)
	}
	if result.Status != "approved" || result.Source != SourceProcessor {
		t.Errorf("result = %+v", result)
	}
	if fake.searchCalls != 1 {
		t.Errorf("search calls = %d, want 1", fake.searchCalls)
	}

	key, record, err := store.FindByExternalReference(context.Background(), "MEUEV-6-f")
	if err != nil {
		t.Fatalf("backfill not reachable by token: %v", err)
	}
	if key != "900" || record.Status != "approved" {
		t.Errorf("key=%q record=%+v", key, record)
	}
}

func TestVerifyByReferencePendingNeverShortCircuits(t *testing.T) {
	fake := &fakeProcessor{
		search: []processor.Payment{{ID: "901", Status: "approved", ExternalReference: "MEUEV-7-g"}},
	}
	svc, store := newTestService(fake)

	if err := store.Put(context.Background(), "pref-8", records.PaymentRecord{
		Status:            records.StatusPending,
		ExternalReference: "MEUEV-7-g",
	}); err != nil {
		t.Fatal(err)
	}

	result, err := svc.VerifyByReference(context.Background(), "MEUEV-7-g")
	if err != nil {
		t.Fatalf("VerifyByReference: %v", err)
	}
	if fake.searchCalls != 1 {
		t.Errorf("pending record must trigger a search, calls = %d", fake.searchCalls)
	}
	if result.Status != "approved" || result.Source != SourceProcessor {
		t.Errorf("result = %+v", result)
	}

	// Both the preference-keyed record and the payment-keyed record carry
	// the fresher status.
	prefRecord, _ := store.Get(context.Background(), "pref-8")
	if prefRecord.Status != "approved" {
		t.Errorf("preference record = %+v", prefRecord)
	}
	payRecord, err := store.Get(context.Background(), "901")
	if err != nil || payRecord.Status != "approved" {
		t.Errorf("payment record = %+v, err = %v", payRecord, err)
	}
}

func TestVerifyByReferenceSearchFailureFallsBackToStale(t *testing.T) {
	fake := &fakeProcessor{searchErr: errors.New("mp down")}
	svc, store := newTestService(fake)

	if err := store.Put(context.Background(), "pref-10", records.PaymentRecord{
		Status:            records.StatusPending,
		ExternalReference: "MEUEV-8-h",
	}); err != nil {
		t.Fatal(err)
	}

	result, err := svc.VerifyByReference(context.Background(), "MEUEV-8-h")
	if err != nil {
		t.Fatalf("VerifyByReference: %v", err)
	}
	if result.Status != records.StatusPending || result.Source != SourceCache {
		t.Errorf("result = %+v", result)
	}
}

func TestVerifyByReferenceNothingAnywhere(t *testing.T) {
	fake := &fakeProcessor{search: nil}
	svc, _ := newTestService(fake)

	result, err := svc.VerifyByReference(context.Background(), "MEUEV-9-i")
	if err != nil {
		t.Fatalf("VerifyByReference: %v", err)
	}
	if result.Found || result.Status != StatusNotFound {
		t.Errorf("result = %+v", result)
	}
}

func TestPixEndToEndReconciliation(t *testing.T) {
	ctx := context.Background()
	fake := &fakeProcessor{
		payment: &processor.Payment{ID: "31337", Status: records.StatusPending, QRCode: "qr"},
	}
	svc, store := newTestService(fake)

	charge, err := svc.CreatePixCharge(ctx, PixRequest{Email: "ana@example.com"})
	if err != nil {
		t.Fatalf("CreatePixCharge: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("store has %d records, want 1", store.Len())
	}
	if !strings.HasPrefix(charge.ExternalReference, "MEUEV-") {
		t.Fatalf("reference = %q", charge.ExternalReference)
	}

	// The payer pays; the processor notifies.
	fake.payment = &processor.Payment{
		ID:                "31337",
		Status:            "approved",
		ExternalReference: charge.ExternalReference,
	}
	if err := svc.HandleNotification(ctx, EventTypePayment, "31337"); err != nil {
		t.Fatalf("HandleNotification: %v", err)
	}

	byID, err := svc.StatusByPaymentID(ctx, "31337")
	if err != nil {
		t.Fatalf("StatusByPaymentID: %v", err)
	}
	if byID.Status != "approved" || byID.Source != SourceCache {
		t.Errorf("poll by id = %+v", byID)
	}

	searchesBefore := fake.searchCalls
	byRef, err := svc.VerifyByReference(ctx, charge.ExternalReference)
	if err != nil {
		t.Fatalf("VerifyByReference: %v", err)
	}
	if byRef.Status != "approved" || byRef.Source != SourceCache {
		t.Errorf("poll by reference = %+v", byRef)
	}
	if fake.searchCalls != searchesBefore {
		t.Errorf("conclusive status must be served without a processor search")
	}
}
