package records

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStorePutGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	now := time.Now()
	want := PaymentRecord{
		Status:            StatusPending,
		ExternalReference: "MEUEV-1-a",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := store.Put(ctx, "pref-1", want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, "pref-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestMemoryStoreGetMiss(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStorePutOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Put(ctx, "k", PaymentRecord{Status: StatusPending}); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, "k", PaymentRecord{Status: "approved"}); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "approved" {
		t.Errorf("status = %q, want approved", got.Status)
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
}

func TestFindByExternalReferenceFirstInsertedWins(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	// Two keys sharing a token: the preference record inserted at checkout
	// time and the payment record inserted by a later webhook.
	if err := store.Put(ctx, "pref-1", PaymentRecord{Status: StatusPending, ExternalReference: "tok"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, "pay-9", PaymentRecord{Status: "approved", ExternalReference: "tok"}); err != nil {
		t.Fatal(err)
	}

	key, record, err := store.FindByExternalReference(ctx, "tok")
	if err != nil {
		t.Fatalf("FindByExternalReference: %v", err)
	}
	if key != "pref-1" {
		t.Errorf("key = %q, want pref-1 (first inserted)", key)
	}
	if record.Status != StatusPending {
		t.Errorf("record = %+v", record)
	}

	// Overwriting the first record must not change its scan position.
	if err := store.Put(ctx, "pref-1", PaymentRecord{Status: "approved", ExternalReference: "tok"}); err != nil {
		t.Fatal(err)
	}
	key, _, err = store.FindByExternalReference(ctx, "tok")
	if err != nil {
		t.Fatal(err)
	}
	if key != "pref-1" {
		t.Errorf("key after overwrite = %q, want pref-1", key)
	}
}

func TestFindByExternalReferenceMiss(t *testing.T) {
	store := NewMemoryStore()

	_, _, err := store.FindByExternalReference(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestConclusive(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"", false},
		{StatusPending, false},
		{"approved", true},
		{"rejected", true},
		{"in_process", true},
	}
	for _, tt := range tests {
		r := PaymentRecord{Status: tt.status}
		if got := r.Conclusive(); got != tt.want {
			t.Errorf("Conclusive(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
