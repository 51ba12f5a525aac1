package bunstore_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	hookline "github.com/hookline/hookline"
	"github.com/hookline/hookline/catalog"
	"github.com/hookline/hookline/delivery"
	"github.com/hookline/hookline/dlq"
	"github.com/hookline/hookline/event"
	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/internal/entity"
	"github.com/hookline/hookline/registration"
	"github.com/hookline/hookline/store/bunstore"
)

func newStore(t *testing.T) *bunstore.Store {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// An in-memory sqlite database exists per connection; pin the pool
	// to one so every query sees the same schema.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	s := bunstore.New(db)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
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
		Timeout: 30 * time.Second,
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

func TestMigrate_Idempotent(t *testing.T) {
	s := newStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestRegisterType_UpsertRevives(t *testing.T) {
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

	if err := s.DeleteType(ctx, "order.created"); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetType(ctx, "order.created")
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsDeprecated {
		t.Fatal("delete should deprecate the type")
	}

	// Re-registering revives the type and keeps its identity.
	revived := &catalog.EventType{
		Entity:     entity.New(),
		ID:         id.NewEventTypeID(),
		Definition: catalog.Definition{Name: "order.created", Description: "v2"},
	}
	if err := s.RegisterType(ctx, revived); err != nil {
		t.Fatal(err)
	}

	got, err = s.GetType(ctx, "order.created")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != et.ID {
		t.Fatal("upsert should keep the original ID")
	}
	if got.IsDeprecated || got.DeprecatedAt != nil {
		t.Fatal("re-registering should clear deprecation")
	}
	if got.Definition.Description != "v2" {
		t.Fatalf("description: got %q", got.Definition.Description)
	}
}

func TestListTypes_ExcludesDeprecated(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, name := range []string{"order.created", "order.updated", "user.created"} {
		et := &catalog.EventType{
			Entity:     entity.New(),
			ID:         id.NewEventTypeID(),
			Definition: catalog.Definition{Name: name, Group: name[:len(name)-8]},
		}
		if err := s.RegisterType(ctx, et); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.DeleteType(ctx, "order.updated"); err != nil {
		t.Fatal(err)
	}

	types, err := s.ListTypes(ctx, catalog.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(types) != 2 {
		t.Fatalf("expected 2 live types, got %d", len(types))
	}

	all, err := s.ListTypes(ctx, catalog.ListOpts{IncludeDeprecated: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 with deprecated, got %d", len(all))
	}
}

func TestRegistrationRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	reg := newRegistration("owner-1", "order.*", "user.deleted")
	reg.Headers = map[string]string{"X-Custom": "v"}
	reg.RateLimit = 5
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
	if got.RetryPolicy != reg.RetryPolicy || got.Timeout != reg.Timeout {
		t.Fatalf("policy mismatch: %+v", got.RetryPolicy)
	}
	if len(got.Events) != 2 || got.Events[0] != "order.*" {
		t.Fatalf("events: got %v", got.Events)
	}
	if got.Headers["X-Custom"] != "v" || got.RateLimit != 5 {
		t.Fatal("headers or rate limit lost")
	}

	// Wrong owner is indistinguishable from a missing ID.
	if _, err := s.GetRegistration(ctx, reg.ID, "owner-2"); !errors.Is(err, hookline.ErrRegistrationNotFound) {
		t.Fatalf("expected not-found for wrong owner, got %v", err)
	}

	// Engine access skips the scope check.
	if _, err := s.GetRegistration(ctx, reg.ID, ""); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateRegistration_Missing(t *testing.T) {
	s := newStore(t)

	ghost := newRegistration("owner-1", "order.*")
	err := s.UpdateRegistration(context.Background(), ghost)
	if !errors.Is(err, hookline.ErrRegistrationNotFound) {
		t.Fatalf("expected ErrRegistrationNotFound, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	matching := newRegistration("owner-1", "order.*")
	exact := newRegistration("owner-1", "order.created")
	inactive := newRegistration("owner-1", "order.created")
	inactive.Active = false
	unrelated := newRegistration("owner-1", "user.*")
	other := newRegistration("owner-2", "order.created")

	for _, r := range []*registration.Registration{matching, exact, inactive, unrelated, other} {
		if err := s.CreateRegistration(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Resolve(ctx, "owner-1", "order.created")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matching registrations, got %d", len(got))
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

	// Keyless events never collide; the partial index only covers non-empty keys.
	for range 2 {
		keyless := &event.Event{
			Entity:  entity.New(),
			ID:      id.NewEventID(),
			Type:    "order.created",
			OwnerID: "owner-1",
		}
		if err := s.CreateEvent(ctx, keyless); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDequeueDue_OptimisticClaim(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	due := newDelivery(id.NewRegistrationID(), now.Add(-time.Second))
	future := newDelivery(id.NewRegistrationID(), now.Add(time.Hour))
	if err := s.CreateDeliveryBatch(ctx, []*delivery.Delivery{due, future}); err != nil {
		t.Fatal(err)
	}

	batch, err := s.DequeueDue(ctx, now, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 || batch[0].ID != due.ID {
		t.Fatalf("expected 1 due delivery, got %d", len(batch))
	}

	// The guarded update pushed next_retry_at past the lease; a second
	// scan at the same instant claims nothing.
	batch, err = s.DequeueDue(ctx, now, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 0 {
		t.Fatalf("expected claim to hide the delivery, got %d", len(batch))
	}

	// After the lease expires the delivery becomes claimable again.
	batch, err = s.DequeueDue(ctx, now.Add(delivery.ClaimLease+time.Second), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 {
		t.Fatalf("expected lease expiry to release the delivery, got %d", len(batch))
	}
}

func TestDequeueDue_SoonestFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	later := newDelivery(id.NewRegistrationID(), now.Add(-time.Second))
	sooner := newDelivery(id.NewRegistrationID(), now.Add(-time.Minute))
	for _, d := range []*delivery.Delivery{later, sooner} {
		if err := s.CreateDelivery(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	batch, err := s.DequeueDue(ctx, now, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 || batch[0].ID != sooner.ID {
		t.Fatal("expected the soonest-due delivery first")
	}
}

func TestUpdateDelivery(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	d := newDelivery(id.NewRegistrationID(), now)
	if err := s.CreateDelivery(ctx, d); err != nil {
		t.Fatal(err)
	}

	d.Status = delivery.StatusSuccess
	d.Attempts = 2
	d.ResponseCode = 200
	d.ResponseBody = "ok"
	d.NextRetryAt = nil
	completed := now.Add(time.Second)
	d.CompletedAt = &completed
	if err := s.UpdateDelivery(ctx, d); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetDelivery(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != delivery.StatusSuccess || got.Attempts != 2 || got.ResponseCode != 200 {
		t.Fatalf("update lost fields: %+v", got)
	}
	if got.NextRetryAt != nil {
		t.Fatal("terminal delivery should have no next retry")
	}
	if got.CompletedAt == nil {
		t.Fatal("expected CompletedAt")
	}

	ghost := newDelivery(id.NewRegistrationID(), now)
	if err := s.UpdateDelivery(ctx, ghost); !errors.Is(err, hookline.ErrDeliveryNotFound) {
		t.Fatalf("expected ErrDeliveryNotFound, got %v", err)
	}
}

func TestListByRegistration_StatusFilter(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	regID := id.NewRegistrationID()

	ok := newDelivery(regID, now)
	ok.Status = delivery.StatusSuccess
	pending := newDelivery(regID, now)
	for _, d := range []*delivery.Delivery{ok, pending} {
		if err := s.CreateDelivery(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	status := delivery.StatusSuccess
	got, err := s.ListByRegistration(ctx, regID, delivery.ListOpts{Status: &status})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != ok.ID {
		t.Fatalf("status filter: got %d", len(got))
	}

	all, err := s.ListByRegistration(ctx, regID, delivery.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2, got %d", len(all))
	}
}

func TestDLQReplay_KeepsEntry(t *testing.T) {
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
		URL:            "https://example.com/webhook",
		Payload:        json.RawMessage(`{"a":1}`),
		Attempts:       3,
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
	count, _ := s.CountDLQ(ctx)
	if count != 1 {
		t.Fatal("replay should keep the entry as audit history")
	}

	replays, err := s.ListByRegistration(ctx, entry.RegistrationID, delivery.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(replays) != 1 {
		t.Fatalf("expected 1 replay delivery, got %d", len(replays))
	}
	replay := replays[0]
	if replay.Attempts != 0 || replay.Status != delivery.StatusPending {
		t.Fatalf("replay should restart fresh: %+v", replay)
	}
	if replay.MaxAttempts != 3 || replay.Backoff != registration.BackoffExponential {
		t.Fatal("replay should carry the policy snapshot")
	}

	// Already-replayed entries are skipped by bulk replay.
	replayed, err := s.ReplayBulk(ctx, entry.FailedAt.Add(-time.Hour), entry.FailedAt.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if replayed != 0 {
		t.Fatalf("expected 0 bulk replays, got %d", replayed)
	}
}

func TestDLQListAndPurge(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mine := &dlq.Entry{
		Entity: entity.New(), ID: id.NewDLQID(),
		DeliveryID: id.NewDeliveryID(), EventID: id.NewEventID(), RegistrationID: id.NewRegistrationID(),
		OwnerID: "owner-1", FailedAt: now.Add(-48 * time.Hour),
	}
	theirs := &dlq.Entry{
		Entity: entity.New(), ID: id.NewDLQID(),
		DeliveryID: id.NewDeliveryID(), EventID: id.NewEventID(), RegistrationID: id.NewRegistrationID(),
		OwnerID: "owner-2", FailedAt: now,
	}
	for _, e := range []*dlq.Entry{mine, theirs} {
		if err := s.Push(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := s.ListDLQ(ctx, dlq.ListOpts{OwnerID: "owner-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].ID != mine.ID {
		t.Fatalf("owner filter: got %d", len(entries))
	}

	byReg, err := s.ListDLQ(ctx, dlq.ListOpts{RegistrationID: &theirs.RegistrationID})
	if err != nil {
		t.Fatal(err)
	}
	if len(byReg) != 1 || byReg[0].ID != theirs.ID {
		t.Fatalf("registration filter: got %d", len(byReg))
	}

	purged, err := s.Purge(ctx, now.Add(-24*time.Hour))
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

	if _, err := s.GetDLQ(ctx, mine.ID); !errors.Is(err, hookline.ErrDLQNotFound) {
		t.Fatalf("expected ErrDLQNotFound after purge, got %v", err)
	}
}
