package hookline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hookline/hookline/catalog"
	"github.com/hookline/hookline/delivery"
	"github.com/hookline/hookline/dlq"
	"github.com/hookline/hookline/event"
	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/internal/entity"
	"github.com/hookline/hookline/registration"
	"github.com/hookline/hookline/store"
)

// wireServices initializes the internal services after options have been applied.
func (s *Service) wireServices() {
	s.catalog = catalog.NewCatalog(s.store, catalog.Config{
		CacheTTL: s.config.CacheTTL,
	}, s.logger)

	s.validator = catalog.NewValidator()

	s.registrationSvc = registration.NewService(s.store, registration.Defaults{
		RetryPolicy: s.config.DefaultRetryPolicy,
		Timeout:     s.config.DefaultTimeout,
	}, s.logger)

	s.dlqSvc = dlq.NewService(s.store, s.logger)

	s.engine = delivery.NewEngine(s.store, s.dlqSvc, delivery.EngineConfig{
		Concurrency:    s.config.Concurrency,
		TickInterval:   s.config.TickInterval,
		BatchSize:      s.config.BatchSize,
		DefaultTimeout: s.config.DefaultTimeout,
		MaxBackoff:     s.config.MaxBackoff,
		RetryWindow:    s.config.RetryWindow,
		Metrics:        s.metrics,
		Tracer:         s.tracer,
	}, s.logger)
}

// Start begins the retry loop that re-arms due deliveries.
func (s *Service) Start(ctx context.Context) {
	s.engine.Start(ctx)
}

// Stop gracefully shuts down the retry loop and waits for in-flight attempts.
func (s *Service) Stop(ctx context.Context) {
	s.engine.Stop(ctx)
}

// RegisterEventType registers a webhook event type definition in the catalog.
func (s *Service) RegisterEventType(ctx context.Context, def catalog.Definition, opts ...catalog.RegisterOption) (*catalog.EventType, error) {
	return s.catalog.RegisterType(ctx, def, opts...)
}

// TriggerOption configures a triggered event.
type TriggerOption func(*event.Event)

// WithIdempotencyKey dedups trigger calls: a second trigger with the same key
// is a no-op success.
func WithIdempotencyKey(key string) TriggerOption {
	return func(evt *event.Event) {
		evt.IdempotencyKey = key
	}
}

// TriggerEvent validates and persists an event, fans out one delivery per
// matching active registration, and runs all first attempts concurrently.
//
// The critical path:
//  1. Look up the event type in the catalog (reject unknown types).
//  2. Reject deprecated event types.
//  3. Validate the payload against the JSON Schema (if configured).
//  4. Persist the event (idempotency key dedup is handled here).
//  5. Resolve active matching registrations for this owner + event type.
//  6. Create one pending delivery per registration, snapshotting each
//     registration's retry policy.
//  7. Attempt all deliveries concurrently and wait for them to settle.
//
// Per-endpoint failures never surface to the caller: once the fan-out has
// settled, TriggerEvent returns the event and a nil error regardless of
// individual delivery outcomes. Outcomes live in the ledger.
func (s *Service) TriggerEvent(ctx context.Context, ownerID, eventType string, payload any, opts ...TriggerOption) (*event.Event, error) {
	et, err := s.catalog.GetType(ctx, eventType)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrEventTypeNotFound, eventType)
	}

	if et.IsDeprecated {
		return nil, fmt.Errorf("%w: %s", ErrEventTypeDeprecated, eventType)
	}

	data, err := marshalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("hookline: marshal payload: %w", err)
	}

	if len(et.Definition.Schema) > 0 {
		if validateErr := s.validator.Validate(et.Definition.Schema, payload); validateErr != nil {
			return nil, fmt.Errorf("%w: %s", ErrPayloadValidationFailed, validateErr.Error())
		}
	}

	evt := &event.Event{
		Entity:  entity.New(),
		ID:      id.NewEventID(),
		Type:    eventType,
		OwnerID: ownerID,
		Data:    data,
	}
	for _, opt := range opts {
		opt(evt)
	}

	// Persist the event. Idempotency key conflicts return a no-op success.
	if createErr := s.store.CreateEvent(ctx, evt); createErr != nil {
		if errors.Is(createErr, ErrDuplicateIdempotencyKey) {
			return evt, nil // idempotent: already processed
		}
		return nil, fmt.Errorf("hookline: persist event: %w", createErr)
	}

	regs, err := s.store.Resolve(ctx, ownerID, eventType)
	if err != nil {
		return nil, fmt.Errorf("hookline: resolve registrations: %w", err)
	}

	if len(regs) == 0 {
		return evt, nil // no matching registrations, nothing to deliver
	}

	// Fan out: one delivery per registration, each snapshotting the
	// registration's retry policy at schedule time. Deliveries are created
	// pre-claimed (NextRetryAt pushed by the lease) so the retry loop stays
	// out of the way of the immediate attempts below; a crash before the
	// attempt completes leaves the lease to expire and the loop to recover.
	now := time.Now().UTC()
	claimed := now.Add(delivery.ClaimLease)
	deliveries := make([]*delivery.Delivery, 0, len(regs))
	for _, reg := range regs {
		d := &delivery.Delivery{
			Entity:         entity.New(),
			ID:             id.NewDeliveryID(),
			EventID:        evt.ID,
			RegistrationID: reg.ID,
			EventType:      eventType,
			Payload:        data,
			Status:         delivery.StatusPending,
			MaxAttempts:    reg.RetryPolicy.MaxAttempts,
			Backoff:        reg.RetryPolicy.Backoff,
			InitialDelay:   reg.RetryPolicy.InitialDelay,
			NextRetryAt:    &claimed,
		}
		deliveries = append(deliveries, d)
	}

	if err := s.store.CreateDeliveryBatch(ctx, deliveries); err != nil {
		return nil, fmt.Errorf("hookline: create deliveries: %w", err)
	}

	if s.metrics != nil {
		s.metrics.EventsTotal.Inc()
		s.metrics.PendingDeliveries.Add(float64(len(deliveries)))
	}

	s.logger.DebugContext(ctx, "event triggered",
		"event_id", evt.ID,
		"type", eventType,
		"registrations", len(regs),
	)

	// Run all first attempts concurrently and wait for them to settle. A
	// slow or failing endpoint delays the join but never fails the trigger.
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.config.FanoutConcurrency)
	for _, d := range deliveries {
		wg.Add(1)
		sem <- struct{}{}
		go func(del *delivery.Delivery) {
			defer wg.Done()
			defer func() { <-sem }()
			s.engine.Deliver(ctx, del)
		}(d)
	}
	wg.Wait()

	return evt, nil
}

// ScheduleDelivery creates a single pending delivery to one registration
// whose first attempt happens after delay, picked up by the retry loop's
// due-scan. The registration's retry policy is snapshotted at creation.
func (s *Service) ScheduleDelivery(ctx context.Context, regID id.ID, eventType string, payload any, delay time.Duration) (*delivery.Delivery, error) {
	et, err := s.catalog.GetType(ctx, eventType)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrEventTypeNotFound, eventType)
	}
	if et.IsDeprecated {
		return nil, fmt.Errorf("%w: %s", ErrEventTypeDeprecated, eventType)
	}

	reg, err := s.store.GetRegistration(ctx, regID, "")
	if err != nil {
		return nil, err
	}

	data, err := marshalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("hookline: marshal payload: %w", err)
	}

	if len(et.Definition.Schema) > 0 {
		if validateErr := s.validator.Validate(et.Definition.Schema, payload); validateErr != nil {
			return nil, fmt.Errorf("%w: %s", ErrPayloadValidationFailed, validateErr.Error())
		}
	}

	evt := &event.Event{
		Entity:  entity.New(),
		ID:      id.NewEventID(),
		Type:    eventType,
		OwnerID: reg.OwnerID,
		Data:    data,
	}
	if createErr := s.store.CreateEvent(ctx, evt); createErr != nil {
		return nil, fmt.Errorf("hookline: persist event: %w", createErr)
	}

	due := time.Now().UTC().Add(delay)
	d := &delivery.Delivery{
		Entity:         entity.New(),
		ID:             id.NewDeliveryID(),
		EventID:        evt.ID,
		RegistrationID: reg.ID,
		EventType:      eventType,
		Payload:        data,
		Status:         delivery.StatusPending,
		MaxAttempts:    reg.RetryPolicy.MaxAttempts,
		Backoff:        reg.RetryPolicy.Backoff,
		InitialDelay:   reg.RetryPolicy.InitialDelay,
		NextRetryAt:    &due,
	}
	if err := s.store.CreateDelivery(ctx, d); err != nil {
		return nil, fmt.Errorf("hookline: create delivery: %w", err)
	}

	if s.metrics != nil {
		s.metrics.EventsTotal.Inc()
		s.metrics.PendingDeliveries.Inc()
	}

	s.logger.DebugContext(ctx, "delivery scheduled",
		"delivery_id", d.ID,
		"registration_id", reg.ID,
		"due_at", due,
	)

	return d, nil
}

// RetryDelivery forces an immediate attempt of a non-terminal delivery,
// regardless of its NextRetryAt. Terminal deliveries cannot be re-armed:
// permanently failed deliveries are replayed through the DLQ instead.
func (s *Service) RetryDelivery(ctx context.Context, delID id.ID) error {
	d, err := s.store.GetDelivery(ctx, delID)
	if err != nil {
		return err
	}
	if d.Status.Terminal() {
		return fmt.Errorf("hookline: delivery %s is %s and cannot be retried", delID, d.Status)
	}

	s.engine.Deliver(ctx, d)
	return nil
}

// GetDelivery returns a delivery by ID.
func (s *Service) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	return s.store.GetDelivery(ctx, delID)
}

// ListDeliveries returns delivery history for a registration, newest-first.
func (s *Service) ListDeliveries(ctx context.Context, regID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	return s.store.ListByRegistration(ctx, regID, opts)
}

// ListDeliveriesByEvent returns all deliveries fanned out from one event.
func (s *Service) ListDeliveriesByEvent(ctx context.Context, evtID id.ID) ([]*delivery.Delivery, error) {
	return s.store.ListByEvent(ctx, evtID)
}

// Registrations returns the registration management service.
func (s *Service) Registrations() *registration.Service {
	return s.registrationSvc
}

// Catalog returns the event type catalog.
func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// DLQ returns the dead letter queue service.
func (s *Service) DLQ() *dlq.Service {
	return s.dlqSvc
}

// Store returns the underlying store.
func (s *Service) Store() store.Store {
	return s.store
}

// marshalPayload serializes the trigger payload exactly once. Raw JSON
// passes through untouched so retries reuse byte-identical bodies.
func marshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	default:
		return json.Marshal(payload)
	}
}
