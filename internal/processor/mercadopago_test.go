package processor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *MercadoPago {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewMercadoPago(MercadoPagoConfig{
		AccessToken: "TEST-token",
		BaseURL:     srv.URL,
	}, nil)
}

func TestCreatePreference(t *testing.T) {
	var gotAuth, gotIdemKey string
	var gotBody map[string]any

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/checkout/preferences" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotIdemKey = r.Header.Get("X-Idempotency-Key")
		json.NewDecoder(r.Body).Decode(&gotBody)

		json.NewEncoder(w).Encode(map[string]any{
			"id":         "pref-123",
			"init_point": "https://mp.example/init",
		})
	})

	pref, err := client.CreatePreference(context.Background(), PreferenceRequest{
		Items:             []Item{{Title: "item", Quantity: 1, UnitPrice: 1.99, CurrencyID: "BRL"}},
		ExternalReference: "MEUEV-1-a",
		AutoReturn:        "approved",
		MaxInstallments:   1,
	})
	if err != nil {
		t.Fatalf("CreatePreference: %v", err)
	}
	if pref.ID != "pref-123" || pref.InitPoint != "https://mp.example/init" {
		t.Errorf("preference = %+v", pref)
	}
	if gotAuth != "Bearer TEST-token" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotIdemKey == "" {
		t.Error("write call missing X-Idempotency-Key")
	}
	if gotBody["external_reference"] != "MEUEV-1-a" {
		t.Errorf("body external_reference = %v", gotBody["external_reference"])
	}
	if gotBody["auto_return"] != "approved" {
		t.Errorf("body auto_return = %v", gotBody["auto_return"])
	}
}

func TestCreateChargeNumericPaymentID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payments" {
			t.Errorf("path = %s", r.URL.Path)
		}
		// Payment ids are numbers on the wire.
		w.Write([]byte(`{
			"id": 123456789012345,
			"status": "pending",
			"external_reference": "MEUEV-2-b",
			"point_of_interaction": {
				"transaction_data": {
					"qr_code": "qr-data",
					"qr_code_base64": "cXI=",
					"ticket_url": "https://mp.example/ticket"
				}
			}
		}`))
	})

	payment, err := client.CreateCharge(context.Background(), ChargeRequest{
		Amount:          1.99,
		PaymentMethodID: "pix",
		Payer:           Payer{Email: "ana@example.com"},
	})
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}
	if payment.ID != "123456789012345" {
		t.Errorf("id = %q, numeric id must survive as a string", payment.ID)
	}
	if payment.QRCode != "qr-data" || payment.TicketURL != "https://mp.example/ticket" {
		t.Errorf("payment = %+v", payment)
	}
}

func TestGetPaymentNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Payment not found"}`))
	})

	_, err := client.GetPayment(context.Background(), "999")
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Errorf("err = %v, want ErrPaymentNotFound", err)
	}
}

func TestGetPaymentAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"internal error"}`))
	})

	_, err := client.GetPayment(context.Background(), "999")
	if err == nil || errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("err = %v, want API error", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError in chain", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError || apiErr.Message != "internal error" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestSearchPayments(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payments/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"results":[
			{"id": 2, "status": "approved", "external_reference": "MEUEV-3-c"},
			{"id": 1, "status": "rejected", "external_reference": "MEUEV-3-c"}
		]}`))
	})

	payments, err := client.SearchPayments(context.Background(), "MEUEV-3-c")
	if err != nil {
		t.Fatalf("SearchPayments: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("len = %d", len(payments))
	}
	if payments[0].ID != "2" || payments[0].Status != "approved" {
		t.Errorf("first result = %+v, want the most recent payment", payments[0])
	}

	query, err := url.ParseQuery(gotQuery)
	if err != nil {
		t.Fatal(err)
	}
	if query.Get("external_reference") != "MEUEV-3-c" {
		t.Errorf("external_reference = %q", query.Get("external_reference"))
	}
	if query.Get("sort") != "date_created" || query.Get("criteria") != "desc" {
		t.Errorf("sort params = %q", gotQuery)
	}
}

func TestPreferenceIDFromMetadata(t *testing.T) {
	p := &Payment{Metadata: map[string]any{"preference_id": "pref-1"}}
	if got := p.PreferenceID(); got != "pref-1" {
		t.Errorf("PreferenceID = %q", got)
	}
	empty := &Payment{}
	if got := empty.PreferenceID(); got != "" {
		t.Errorf("PreferenceID on empty metadata = %q", got)
	}
}
