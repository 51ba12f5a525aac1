package memory_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	hookline "github.com/hookline/hookline"
	"github.com/hookline/hookline/catalog"
	"github.com/hookline/hookline/delivery"
	"github.com/hookline/hookline/dlq"
	"github.com/hookline/hookline/event"
	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/internal/entity"
	"github.com/hookline/hookline/registration"
	"github.com/hookline/hookline/store/memory"
)

func ctx() context.Context { return context.Background() }

func newRegistration(owner string, events ...string) *registration.Registration {
	return &registration.Registration{
		Entity:  entity.New(),
		ID:      id.NewRegistrationID(),
		OwnerID: owner,
		URL:     "https://example.com/webhook",
		Secret:  "whsec_test",
		Events:  events,
		Active:  true,
		RetryPolicy: registration.RetryPolicy{
			MaxAttempts:  3,
			Backoff:      registration.BackoffExponential,
			InitialDelay: time.Second,
		},
	}
}

func newDelivery(regID id.ID, due time.Time) *delivery.Delivery {
	return &delivery.Delivery{
		Entity:         entity.New(),
		ID:             id.NewDeliveryID(),
		EventID:        id.NewEventID(),
		RegistrationID: regID,
		EventType:      "order.created",
		Payload:        json.RawMessage(`{}`),
		Status:         delivery.StatusPending,
		MaxAttempts:    3,
		Backoff:        registration.BackoffExponential,
		InitialDelay:   time.Second,
		NextRetryAt:    &due,
	}
}

func TestEventTypeUpsert(t *testing.T) {
	s := memory.New()

	first := &catalog.EventType{
		Entity:     entity.New(),
		ID:         id.NewEventTypeID(),
		Definition: catalog.Definition{Name: "order.created", Description: "v1"},
	}
	if err := s.RegisterType(ctx(), first); err != nil {
		t.Fatal(err)
	}

	second := &catalog.EventType{
		Entity:     entity.New(),
		ID:         id.NewEventTypeID(),
		Definition: catalog.Definition{Name: "order.created", Description: "v2"},
	}
	if err := s.RegisterType(ctx(), second); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetType(ctx(), "order.created")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != first.ID {
		t.Fatal("upsert should keep the original ID")
	}
	if got.Definition.Description != "v2" {
		t.Fatalf("description not updated: %q", got.Definition.Description)
	}
}

func TestGetRegistration_OwnerScope(t *testing.T) {
	s := memory.New()
	reg := newRegistration("owner-1", "order.*")
	if err := s.CreateRegistration(ctx(), reg); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetRegistration(ctx(), reg.ID, "owner-1"); err != nil {
		t.Fatal(err)
	}
	// Empty owner is system access.
	if _, err := s.GetRegistration(ctx(), reg.ID, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetRegistration(ctx(), reg.ID, "owner-2"); !errors.Is(err, hookline.ErrRegistrationNotFound) {
		t.Fatalf("expected not-found for wrong owner, got %v", err)
	}
}

func TestGetRegistration_ReturnsCopy(t *testing.T) {
	s := memory.New()
	reg := newRegistration("owner-1", "order.*")
	if err := s.CreateRegistration(ctx(), reg); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetRegistration(ctx(), reg.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	got.URL = "https://changed.example.com/hook"
	got.Active = false
	got.Secret = ""

	again, err := s.GetRegistration(ctx(), reg.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if again.URL != reg.URL {
		t.Fatal("mutating a fetched registration must not reach the store")
	}
	if !again.Active {
		t.Fatal("stored registration should still be active")
	}
	if again.Secret != reg.Secret {
		t.Fatal("stored secret must survive caller mutation")
	}
}

func TestGetType_ReturnsCopy(t *testing.T) {
	s := memory.New()
	et := &catalog.EventType{
		Entity:     entity.New(),
		ID:         id.NewEventTypeID(),
		Definition: catalog.Definition{Name: "order.created", Description: "v1"},
	}
	if err := s.RegisterType(ctx(), et); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetType(ctx(), "order.created")
	if err != nil {
		t.Fatal(err)
	}
	got.Definition.Description = "mutated"
	got.IsDeprecated = true

	again, err := s.GetType(ctx(), "order.created")
	if err != nil {
		t.Fatal(err)
	}
	if again.Definition.Description != "v1" || again.IsDeprecated {
		t.Fatal("mutating a fetched event type must not reach the store")
	}
}

func TestResolve(t *testing.T) {
	s := memory.New()

	exact := newRegistration("owner-1", "order.created")
	wildcard := newRegistration("owner-1", "order.*")
	unrelated := newRegistration("owner-1", "user.created")
	inactive := newRegistration("owner-1", "order.created")
	inactive.Active = false
	otherOwner := newRegistration("owner-2", "order.created")

	for _, r := range []*registration.Registration{exact, wildcard, unrelated, inactive, otherOwner} {
		if err := s.CreateRegistration(ctx(), r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Resolve(ctx(), "owner-1", "order.created")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches (exact + wildcard), got %d", len(got))
	}
}

func TestCreateEvent_IdempotencyKey(t *testing.T) {
	s := memory.New()

	first := &event.Event{
		Entity:         entity.New(),
		ID:             id.NewEventID(),
		Type:           "order.created",
		OwnerID:        "owner-1",
		Data:           json.RawMessage(`{}`),
		IdempotencyKey: "key-1",
	}
	if err := s.CreateEvent(ctx(), first); err != nil {
		t.Fatal(err)
	}

	dup := &event.Event{
		Entity:         entity.New(),
		ID:             id.NewEventID(),
		Type:           "order.created",
		OwnerID:        "owner-1",
		Data:           json.RawMessage(`{}`),
		IdempotencyKey: "key-1",
	}
	if err := s.CreateEvent(ctx(), dup); !errors.Is(err, hookline.ErrDuplicateIdempotencyKey) {
		t.Fatalf("expected ErrDuplicateIdempotencyKey, got %v", err)
	}

	// Events without a key never conflict.
	for range 2 {
		evt := &event.Event{Entity: entity.New(), ID: id.NewEventID(), Type: "order.created", OwnerID: "owner-1"}
		if err := s.CreateEvent(ctx(), evt); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDequeueDue_ClaimsWithLease(t *testing.T) {
	s := memory.New()
	now := time.Now().UTC()

	reg := newRegistration("owner-1", "order.*")
	if err := s.CreateRegistration(ctx(), reg); err != nil {
		t.Fatal(err)
	}

	due := newDelivery(reg.ID, now.Add(-time.Second))
	future := newDelivery(reg.ID, now.Add(time.Hour))
	terminal := newDelivery(reg.ID, now.Add(-time.Second))
	terminal.Status = delivery.StatusSuccess

	for _, d := range []*delivery.Delivery{due, future, terminal} {
		if err := s.CreateDelivery(ctx(), d); err != nil {
			t.Fatal(err)
		}
	}

	batch, err := s.DequeueDue(ctx(), now, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 {
		t.Fatalf("expected 1 due delivery, got %d", len(batch))
	}
	if batch[0].ID != due.ID {
		t.Fatal("wrong delivery claimed")
	}

	// The claim pushes NextRetryAt forward: a second dequeue sees nothing.
	batch, err = s.DequeueDue(ctx(), now, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 0 {
		t.Fatalf("expected claim to hide the delivery, got %d", len(batch))
	}

	// Once the lease expires, the delivery becomes claimable again.
	batch, err = s.DequeueDue(ctx(), now.Add(delivery.ClaimLease+time.Second), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 {
		t.Fatalf("expected lease expiry to release the delivery, got %d", len(batch))
	}
}

func TestDequeueDue_SoonestFirstAndLimit(t *testing.T) {
	s := memory.New()
	now := time.Now().UTC()

	reg := newRegistration("owner-1", "order.*")
	older := newDelivery(reg.ID, now.Add(-2*time.Hour))
	newer := newDelivery(reg.ID, now.Add(-time.Hour))
	for _, d := range []*delivery.Delivery{newer, older} {
		if err := s.CreateDelivery(ctx(), d); err != nil {
			t.Fatal(err)
		}
	}

	batch, err := s.DequeueDue(ctx(), now, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 || batch[0].ID != older.ID {
		t.Fatal("expected the soonest-due delivery first")
	}
}

func TestUpdateDelivery(t *testing.T) {
	s := memory.New()
	now := time.Now().UTC()

	d := newDelivery(id.NewRegistrationID(), now)
	if err := s.CreateDelivery(ctx(), d); err != nil {
		t.Fatal(err)
	}

	d.Status = delivery.StatusSuccess
	d.Attempts = 1
	d.NextRetryAt = nil
	if err := s.UpdateDelivery(ctx(), d); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetDelivery(ctx(), d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != delivery.StatusSuccess || got.Attempts != 1 {
		t.Fatalf("update not applied: %+v", got)
	}

	missing := newDelivery(id.NewRegistrationID(), now)
	if err := s.UpdateDelivery(ctx(), missing); !errors.Is(err, hookline.ErrDeliveryNotFound) {
		t.Fatalf("expected ErrDeliveryNotFound, got %v", err)
	}
}

func TestListByRegistration_StatusFilter(t *testing.T) {
	s := memory.New()
	now := time.Now().UTC()
	regID := id.NewRegistrationID()

	ok := newDelivery(regID, now)
	ok.Status = delivery.StatusSuccess
	failed := newDelivery(regID, now)
	failed.Status = delivery.StatusFailed
	for _, d := range []*delivery.Delivery{ok, failed} {
		if err := s.CreateDelivery(ctx(), d); err != nil {
			t.Fatal(err)
		}
	}

	status := delivery.StatusFailed
	got, err := s.ListByRegistration(ctx(), regID, delivery.ListOpts{Status: &status})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != failed.ID {
		t.Fatalf("status filter: got %d results", len(got))
	}
}

func TestDLQReplayKeepsEntry(t *testing.T) {
	s := memory.New()

	entry := &dlq.Entry{
		Entity:         entity.New(),
		ID:             id.NewDLQID(),
		DeliveryID:     id.NewDeliveryID(),
		EventID:        id.NewEventID(),
		RegistrationID: id.NewRegistrationID(),
		EventType:      "order.created",
		OwnerID:        "owner-1",
		Payload:        json.RawMessage(`{}`),
		MaxAttempts:    3,
		Backoff:        registration.BackoffExponential,
		InitialDelay:   time.Second,
		FailedAt:       time.Now().UTC(),
	}
	if err := s.Push(ctx(), entry); err != nil {
		t.Fatal(err)
	}

	if err := s.Replay(ctx(), entry.ID); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetDLQ(ctx(), entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ReplayedAt == nil {
		t.Fatal("replay should mark the entry")
	}

	count, _ := s.CountDLQ(ctx())
	if count != 1 {
		t.Fatal("replay should keep the entry as history")
	}

	pending, _ := s.CountPending(ctx())
	if pending != 1 {
		t.Fatalf("expected 1 replay delivery pending, got %d", pending)
	}
}

func TestListDLQ_Filters(t *testing.T) {
	s := memory.New()
	now := time.Now().UTC()
	regID := id.NewRegistrationID()

	mine := &dlq.Entry{
		Entity: entity.New(), ID: id.NewDLQID(),
		DeliveryID: id.NewDeliveryID(), EventID: id.NewEventID(), RegistrationID: regID,
		OwnerID: "owner-1", FailedAt: now,
	}
	other := &dlq.Entry{
		Entity: entity.New(), ID: id.NewDLQID(),
		DeliveryID: id.NewDeliveryID(), EventID: id.NewEventID(), RegistrationID: id.NewRegistrationID(),
		OwnerID: "owner-2", FailedAt: now,
	}
	old := &dlq.Entry{
		Entity: entity.New(), ID: id.NewDLQID(),
		DeliveryID: id.NewDeliveryID(), EventID: id.NewEventID(), RegistrationID: regID,
		OwnerID: "owner-1", FailedAt: now.Add(-48 * time.Hour),
	}
	for _, e := range []*dlq.Entry{mine, other, old} {
		if err := s.Push(ctx(), e); err != nil {
			t.Fatal(err)
		}
	}

	byOwner, err := s.ListDLQ(ctx(), dlq.ListOpts{OwnerID: "owner-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byOwner) != 2 {
		t.Fatalf("owner filter: expected 2, got %d", len(byOwner))
	}

	from := now.Add(-time.Hour)
	recent, err := s.ListDLQ(ctx(), dlq.ListOpts{OwnerID: "owner-1", From: &from})
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].ID != mine.ID {
		t.Fatalf("time filter: expected only the recent entry, got %d", len(recent))
	}

	byReg, err := s.ListDLQ(ctx(), dlq.ListOpts{RegistrationID: &regID})
	if err != nil {
		t.Fatal(err)
	}
	if len(byReg) != 2 {
		t.Fatalf("registration filter: expected 2, got %d", len(byReg))
	}
}

func TestPagination(t *testing.T) {
	s := memory.New()

	for range 5 {
		reg := newRegistration("owner-1", "order.*")
		if err := s.CreateRegistration(ctx(), reg); err != nil {
			t.Fatal(err)
		}
		time.Sleep(time.Millisecond) // distinct CreatedAt ordering
	}

	page, err := s.ListRegistrations(ctx(), "owner-1", registration.ListOpts{Offset: 2, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}

	beyond, err := s.ListRegistrations(ctx(), "owner-1", registration.ListOpts{Offset: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(beyond) != 0 {
		t.Fatalf("expected empty page past the end, got %d", len(beyond))
	}
}

func TestClose(t *testing.T) {
	s := memory.New()
	if err := s.Ping(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); !errors.Is(err, hookline.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
}
