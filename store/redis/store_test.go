package redis_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	hookline "github.com/hookline/hookline"
	"github.com/hookline/hookline/catalog"
	"github.com/hookline/hookline/delivery"
	"github.com/hookline/hookline/dlq"
	"github.com/hookline/hookline/event"
	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/internal/entity"
	"github.com/hookline/hookline/registration"
	redisstore "github.com/hookline/hookline/store/redis"
)

func newStore(t *testing.T) *redisstore.Store {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return redisstore.New(rdb)
}

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

func TestEventTypeRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	et := &catalog.EventType{
		Entity: entity.New(),
		ID:     id.NewEventTypeID(),
		Definition: catalog.Definition{
			Name:   "order.created",
			Group:  "order",
			Schema: json.RawMessage(`{"type":"object"}`),
		},
	}
	if err := s.RegisterType(ctx, et); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetType(ctx, "order.created")
	if err != nil {
		t.Fatal(err)
	}
	if got.Definition.Name != "order.created" || got.Definition.Group != "order" {
		t.Fatalf("round trip mismatch: %+v", got.Definition)
	}

	// Upsert by name keeps identity.
	update := &catalog.EventType{
		Entity:     entity.New(),
		ID:         id.NewEventTypeID(),
		Definition: catalog.Definition{Name: "order.created", Description: "v2"},
	}
	if err := s.RegisterType(ctx, update); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetType(ctx, "order.created")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != et.ID {
		t.Fatal("upsert should keep the original ID")
	}
	if got.Definition.Description != "v2" {
		t.Fatalf("description: got %q", got.Definition.Description)
	}

	if _, err := s.GetType(ctx, "missing.type"); !errors.Is(err, hookline.ErrEventTypeNotFound) {
		t.Fatalf("expected ErrEventTypeNotFound, got %v", err)
	}
}

func TestRegistrationRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	reg := newRegistration("owner-1", "order.*")
	reg.Headers = map[string]string{"X-Custom": "v"}
	if err := s.CreateRegistration(ctx, reg); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetRegistration(ctx, reg.ID, "owner-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != reg.URL || got.Secret != reg.Secret {
		t.Fatal("round trip mismatch")
	}
	if got.RetryPolicy != reg.RetryPolicy {
		t.Fatalf("policy mismatch: %+v", got.RetryPolicy)
	}
	if got.Headers["X-Custom"] != "v" {
		t.Fatal("headers lost")
	}

	if _, err := s.GetRegistration(ctx, reg.ID, "owner-2"); !errors.Is(err, hookline.ErrRegistrationNotFound) {
		t.Fatalf("expected not-found for wrong owner, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	matching := newRegistration("owner-1", "order.*")
	inactive := newRegistration("owner-1", "order.created")
	inactive.Active = false
	other := newRegistration("owner-2", "order.created")

	for _, r := range []*registration.Registration{matching, inactive, other} {
		if err := s.CreateRegistration(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Resolve(ctx, "owner-1", "order.created")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != matching.ID {
		t.Fatalf("expected only the active matching registration, got %d", len(got))
	}
}

func TestCreateEvent_IdempotencyKey(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	evt := &event.Event{
		Entity:         entity.New(),
		ID:             id.NewEventID(),
		Type:           "order.created",
		OwnerID:        "owner-1",
		Data:           json.RawMessage(`{}`),
		IdempotencyKey: "key-1",
	}
	if err := s.CreateEvent(ctx, evt); err != nil {
		t.Fatal(err)
	}

	dup := &event.Event{
		Entity:         entity.New(),
		ID:             id.NewEventID(),
		Type:           "order.created",
		OwnerID:        "owner-1",
		IdempotencyKey: "key-1",
	}
	if err := s.CreateEvent(ctx, dup); !errors.Is(err, hookline.ErrDuplicateIdempotencyKey) {
		t.Fatalf("expected ErrDuplicateIdempotencyKey, got %v", err)
	}
}

func TestDequeueDue_ClaimsWithLease(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	due := newDelivery(id.NewRegistrationID(), now.Add(-time.Second))
	future := newDelivery(id.NewRegistrationID(), now.Add(time.Hour))
	for _, d := range []*delivery.Delivery{due, future} {
		if err := s.CreateDelivery(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	batch, err := s.DequeueDue(ctx, now, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 || batch[0].ID != due.ID {
		t.Fatalf("expected 1 due delivery, got %d", len(batch))
	}

	// The Lua claim rescored the member; a second scan sees nothing.
	batch, err = s.DequeueDue(ctx, now, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 0 {
		t.Fatalf("expected claim to hide the delivery, got %d", len(batch))
	}

	// After the lease expires the delivery is claimable again.
	batch, err = s.DequeueDue(ctx, now.Add(delivery.ClaimLease+time.Second), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 {
		t.Fatalf("expected lease expiry to release the delivery, got %d", len(batch))
	}
}

func TestUpdateDelivery_TerminalLeavesDueIndex(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	d := newDelivery(id.NewRegistrationID(), now.Add(-time.Second))
	if err := s.CreateDelivery(ctx, d); err != nil {
		t.Fatal(err)
	}

	d.Status = delivery.StatusSuccess
	d.Attempts = 1
	d.NextRetryAt = nil
	if err := s.UpdateDelivery(ctx, d); err != nil {
		t.Fatal(err)
	}

	// Terminal deliveries are removed from the due index.
	batch, err := s.DequeueDue(ctx, now.Add(time.Hour), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 0 {
		t.Fatalf("terminal delivery should not be claimable, got %d", len(batch))
	}

	got, err := s.GetDelivery(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != delivery.StatusSuccess {
		t.Fatalf("status: got %q", got.Status)
	}

	pending, err := s.CountPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pending != 0 {
		t.Fatalf("expected 0 pending, got %d", pending)
	}
}

func TestListByEventAndRegistration(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	regID := id.NewRegistrationID()
	evtID := id.NewEventID()

	first := newDelivery(regID, now)
	first.EventID = evtID
	second := newDelivery(regID, now)
	for _, d := range []*delivery.Delivery{first, second} {
		if err := s.CreateDelivery(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	byEvent, err := s.ListByEvent(ctx, evtID)
	if err != nil {
		t.Fatal(err)
	}
	if len(byEvent) != 1 || byEvent[0].ID != first.ID {
		t.Fatalf("by event: got %d", len(byEvent))
	}

	byReg, err := s.ListByRegistration(ctx, regID, delivery.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(byReg) != 2 {
		t.Fatalf("by registration: got %d", len(byReg))
	}
}

func TestDLQReplay(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

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
	if err := s.Push(ctx, entry); err != nil {
		t.Fatal(err)
	}

	if err := s.Replay(ctx, entry.ID); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetDLQ(ctx, entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ReplayedAt == nil {
		t.Fatal("replay should mark the entry")
	}

	count, err := s.CountDLQ(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatal("replay should keep the entry")
	}

	pending, err := s.CountPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pending != 1 {
		t.Fatalf("expected 1 replay delivery pending, got %d", pending)
	}

	// Bulk replay skips already-replayed entries.
	replayed, err := s.ReplayBulk(ctx, time.Now().UTC().Add(-time.Hour), time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if replayed != 0 {
		t.Fatalf("expected 0 bulk replays, got %d", replayed)
	}
}

func TestDLQPurge(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	old := &dlq.Entry{
		Entity: entity.New(), ID: id.NewDLQID(),
		DeliveryID: id.NewDeliveryID(), EventID: id.NewEventID(), RegistrationID: id.NewRegistrationID(),
		OwnerID: "owner-1", FailedAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	fresh := &dlq.Entry{
		Entity: entity.New(), ID: id.NewDLQID(),
		DeliveryID: id.NewDeliveryID(), EventID: id.NewEventID(), RegistrationID: id.NewRegistrationID(),
		OwnerID: "owner-1", FailedAt: time.Now().UTC(),
	}
	for _, e := range []*dlq.Entry{old, fresh} {
		if err := s.Push(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	purged, err := s.Purge(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged, got %d", purged)
	}

	count, _ := s.CountDLQ(ctx)
	if count != 1 {
		t.Fatalf("expected 1 remaining, got %d", count)
	}
}
