// Package dlq holds the dead letter queue of permanently failed deliveries.
package dlq

import (
	"context"
	"log/slog"
	"time"

	"github.com/hookline/hookline/delivery"
	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/internal/entity"
	"github.com/hookline/hookline/registration"
)

// Service manages the dead letter queue.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new DLQ service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// PushFailed creates a DLQ entry from a terminally failed delivery.
// Implements delivery.DLQPusher. reg may be nil when the registration was
// deleted before the delivery exhausted its attempts.
func (svc *Service) PushFailed(ctx context.Context, d *delivery.Delivery, reg *registration.Registration) error {
	entry := &Entry{
		Entity:         entity.New(),
		ID:             id.NewDLQID(),
		DeliveryID:     d.ID,
		EventID:        d.EventID,
		RegistrationID: d.RegistrationID,
		EventType:      d.EventType,
		Payload:        d.Payload,
		Error:          d.ErrorMessage,
		ResponseCode:   d.ResponseCode,
		Attempts:       d.Attempts,
		MaxAttempts:    d.MaxAttempts,
		Backoff:        d.Backoff,
		InitialDelay:   d.InitialDelay,
		FailedAt:       time.Now().UTC(),
	}
	if reg != nil {
		entry.OwnerID = reg.OwnerID
		entry.URL = reg.URL
	}

	return svc.store.Push(ctx, entry)
}

// List returns DLQ entries matching the given options.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Entry, error) {
	return svc.store.ListDLQ(ctx, opts)
}

// Get returns a DLQ entry by ID.
func (svc *Service) Get(ctx context.Context, dlqID id.ID) (*Entry, error) {
	return svc.store.GetDLQ(ctx, dlqID)
}

// Replay re-enqueues a single DLQ entry for redelivery.
func (svc *Service) Replay(ctx context.Context, dlqID id.ID) error {
	return svc.store.Replay(ctx, dlqID)
}

// ReplayBulk re-enqueues all DLQ entries within a time range.
func (svc *Service) ReplayBulk(ctx context.Context, from, to time.Time) (int64, error) {
	return svc.store.ReplayBulk(ctx, from, to)
}

// Purge removes old DLQ entries.
func (svc *Service) Purge(ctx context.Context, before time.Time) (int64, error) {
	return svc.store.Purge(ctx, before)
}

// Count returns the total number of DLQ entries.
func (svc *Service) Count(ctx context.Context) (int64, error) {
	return svc.store.CountDLQ(ctx)
}

// NewReplayDelivery builds the fresh pending delivery a replay enqueues.
// The policy snapshot carries over from the entry; the attempt counter
// starts from zero. Store implementations share this to keep replay
// semantics identical across backends.
func NewReplayDelivery(e *Entry, now time.Time) *delivery.Delivery {
	return &delivery.Delivery{
		Entity:         entity.New(),
		ID:             id.NewDeliveryID(),
		RegistrationID: e.RegistrationID,
		EventID:        e.EventID,
		EventType:      e.EventType,
		Payload:        e.Payload,
		Status:         delivery.StatusPending,
		Attempts:       0,
		MaxAttempts:    e.MaxAttempts,
		Backoff:        e.Backoff,
		InitialDelay:   e.InitialDelay,
		NextRetryAt:    &now,
	}
}
