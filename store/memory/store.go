// Package memory provides an in-memory Store implementation for unit testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hookline/hookline"
	"github.com/hookline/hookline/catalog"
	"github.com/hookline/hookline/delivery"
	"github.com/hookline/hookline/dlq"
	"github.com/hookline/hookline/event"
	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/registration"
	hookstore "github.com/hookline/hookline/store"
)

// compile-time interface check.
var _ hookstore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store for testing.
type Store struct {
	mu sync.RWMutex

	eventTypes      map[string]*catalog.EventType          // keyed by name
	registrations   map[string]*registration.Registration  // keyed by ID string
	events          map[string]*event.Event                // keyed by ID string
	eventsByIdemKey map[string]*event.Event                // keyed by idempotency key
	deliveries      map[string]*delivery.Delivery          // keyed by ID string
	dlqEntries      map[string]*dlq.Entry                  // keyed by ID string

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		eventTypes:      make(map[string]*catalog.EventType),
		registrations:   make(map[string]*registration.Registration),
		events:          make(map[string]*event.Event),
		eventsByIdemKey: make(map[string]*event.Event),
		deliveries:      make(map[string]*delivery.Delivery),
		dlqEntries:      make(map[string]*dlq.Entry),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the in-memory store.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return hookline.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// catalog.Store
// ──────────────────────────────────────────────────

// RegisterType creates or updates an event type definition (upsert by name).
func (s *Store) RegisterType(_ context.Context, et *catalog.EventType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.eventTypes[et.Definition.Name]; ok {
		existing.Definition = et.Definition
		existing.UpdatedAt = time.Now().UTC()
		existing.Metadata = et.Metadata
		et.ID = existing.ID
		return nil
	}

	s.eventTypes[et.Definition.Name] = et
	return nil
}

// copyEventType returns a shallow copy of the event type.
func copyEventType(et *catalog.EventType) *catalog.EventType {
	cp := *et
	return &cp
}

// GetType returns an event type by name.
func (s *Store) GetType(_ context.Context, name string) (*catalog.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	et, ok := s.eventTypes[name]
	if !ok {
		return nil, hookline.ErrEventTypeNotFound
	}
	return copyEventType(et), nil
}

// ListTypes returns all registered event types, optionally filtered.
func (s *Store) ListTypes(_ context.Context, opts catalog.ListOpts) ([]*catalog.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*catalog.EventType, 0, len(s.eventTypes))
	for _, et := range s.eventTypes {
		if !opts.IncludeDeprecated && et.IsDeprecated {
			continue
		}
		if opts.Group != "" && et.Definition.Group != opts.Group {
			continue
		}
		result = append(result, copyEventType(et))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Definition.Name < result[j].Definition.Name
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// DeleteType soft-deletes (deprecates) an event type.
func (s *Store) DeleteType(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	et, ok := s.eventTypes[name]
	if !ok {
		return hookline.ErrEventTypeNotFound
	}

	now := time.Now().UTC()
	et.IsDeprecated = true
	et.DeprecatedAt = &now
	et.UpdatedAt = now
	return nil
}

// ──────────────────────────────────────────────────
// registration.Store
// ──────────────────────────────────────────────────

// CreateRegistration persists a new registration.
func (s *Store) CreateRegistration(_ context.Context, r *registration.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registrations[r.ID.String()] = r
	return nil
}

// copyRegistration returns a shallow copy of the registration. Reads hand
// out copies so callers can mutate without racing the engine's workers.
func copyRegistration(r *registration.Registration) *registration.Registration {
	cp := *r
	return &cp
}

// GetRegistration returns a registration by ID, scoped to ownerID. An owner
// mismatch is indistinguishable from a missing registration.
func (s *Store) GetRegistration(_ context.Context, regID id.ID, ownerID string) (*registration.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.registrations[regID.String()]
	if !ok {
		return nil, hookline.ErrRegistrationNotFound
	}
	if ownerID != "" && r.OwnerID != ownerID {
		return nil, hookline.ErrRegistrationNotFound
	}
	return copyRegistration(r), nil
}

// UpdateRegistration modifies an existing registration.
func (s *Store) UpdateRegistration(_ context.Context, r *registration.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.registrations[r.ID.String()]; !ok {
		return hookline.ErrRegistrationNotFound
	}
	r.UpdatedAt = time.Now().UTC()
	s.registrations[r.ID.String()] = copyRegistration(r)
	return nil
}

// DeleteRegistration removes a registration. Its deliveries remain.
func (s *Store) DeleteRegistration(_ context.Context, regID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.registrations[regID.String()]; !ok {
		return hookline.ErrRegistrationNotFound
	}
	delete(s.registrations, regID.String())
	return nil
}

// ListRegistrations returns registrations for an owner, optionally filtered.
func (s *Store) ListRegistrations(_ context.Context, ownerID string, opts registration.ListOpts) ([]*registration.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*registration.Registration, 0, len(s.registrations))
	for _, r := range s.registrations {
		if r.OwnerID != ownerID {
			continue
		}
		if opts.Active != nil && r.Active != *opts.Active {
			continue
		}
		result = append(result, copyRegistration(r))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// Resolve finds all active registrations subscribed to an event type for an owner.
func (s *Store) Resolve(_ context.Context, ownerID, eventType string) ([]*registration.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*registration.Registration
	for _, r := range s.registrations {
		if r.OwnerID != ownerID || !r.Active {
			continue
		}
		if r.Subscribes(eventType, catalog.Match) {
			result = append(result, copyRegistration(r))
		}
	}
	return result, nil
}

// SetActive enables or disables a registration.
func (s *Store) SetActive(_ context.Context, regID id.ID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.registrations[regID.String()]
	if !ok {
		return hookline.ErrRegistrationNotFound
	}
	r.Active = active
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// ──────────────────────────────────────────────────
// event.Store
// ──────────────────────────────────────────────────

// CreateEvent persists an event. Returns ErrDuplicateIdempotencyKey on conflict.
func (s *Store) CreateEvent(_ context.Context, evt *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if evt.IdempotencyKey != "" {
		if _, ok := s.eventsByIdemKey[evt.IdempotencyKey]; ok {
			return hookline.ErrDuplicateIdempotencyKey
		}
		s.eventsByIdemKey[evt.IdempotencyKey] = evt
	}

	s.events[evt.ID.String()] = evt
	return nil
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(_ context.Context, evtID id.ID) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evt, ok := s.events[evtID.String()]
	if !ok {
		return nil, hookline.ErrEventNotFound
	}
	return evt, nil
}

// ListEvents returns events, optionally filtered.
func (s *Store) ListEvents(_ context.Context, opts event.ListOpts) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*event.Event, 0, len(s.events))
	for _, evt := range s.events {
		if !matchEventOpts(evt, opts) {
			continue
		}
		result = append(result, evt)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// ListEventsByOwner returns events for a specific owner.
func (s *Store) ListEventsByOwner(_ context.Context, ownerID string, opts event.ListOpts) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*event.Event, 0, len(s.events))
	for _, evt := range s.events {
		if evt.OwnerID != ownerID {
			continue
		}
		if !matchEventOpts(evt, opts) {
			continue
		}
		result = append(result, evt)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

// CreateDelivery appends a pending delivery to the ledger.
func (s *Store) CreateDelivery(_ context.Context, d *delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deliveries[d.ID.String()] = d
	return nil
}

// CreateDeliveryBatch appends multiple deliveries atomically.
func (s *Store) CreateDeliveryBatch(_ context.Context, ds []*delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range ds {
		s.deliveries[d.ID.String()] = d
	}
	return nil
}

// copyDelivery returns a shallow copy of the delivery.
func copyDelivery(d *delivery.Delivery) *delivery.Delivery {
	cp := *d
	return &cp
}

// DequeueDue claims non-terminal deliveries due at now, soonest-first.
// Claimed records have their NextRetryAt pushed forward by ClaimLease so
// concurrent dequeuers skip them; a crashed worker's claim simply expires.
// Returns copies so callers can mutate without holding a lock.
func (s *Store) DequeueDue(_ context.Context, now time.Time, limit int) ([]*delivery.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]*delivery.Delivery, 0, len(s.deliveries))
	for _, d := range s.deliveries {
		if d.Status.Terminal() {
			continue
		}
		if d.NextRetryAt == nil || d.NextRetryAt.After(now) {
			continue
		}
		candidates = append(candidates, d)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].NextRetryAt.Before(*candidates[j].NextRetryAt)
	})

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	result := make([]*delivery.Delivery, 0, len(candidates))
	for _, d := range candidates {
		result = append(result, copyDelivery(d))
		lease := now.Add(delivery.ClaimLease)
		d.NextRetryAt = &lease
	}

	return result, nil
}

// UpdateDelivery overwrites a delivery's mutable fields by ID (last-writer-wins).
func (s *Store) UpdateDelivery(_ context.Context, d *delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deliveries[d.ID.String()]; !ok {
		return hookline.ErrDeliveryNotFound
	}
	d.UpdatedAt = time.Now().UTC()
	s.deliveries[d.ID.String()] = copyDelivery(d)
	return nil
}

// GetDelivery returns a copy of the delivery by ID.
func (s *Store) GetDelivery(_ context.Context, delID id.ID) (*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deliveries[delID.String()]
	if !ok {
		return nil, hookline.ErrDeliveryNotFound
	}
	return copyDelivery(d), nil
}

// ListByRegistration returns delivery history for a registration, newest-first.
func (s *Store) ListByRegistration(_ context.Context, regID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*delivery.Delivery, 0, len(s.deliveries))
	for _, d := range s.deliveries {
		if d.RegistrationID.String() != regID.String() {
			continue
		}
		if opts.Status != nil && d.Status != *opts.Status {
			continue
		}
		result = append(result, copyDelivery(d))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// ListByEvent returns all deliveries fanned out from one event.
func (s *Store) ListByEvent(_ context.Context, evtID id.ID) ([]*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*delivery.Delivery
	for _, d := range s.deliveries {
		if d.EventID.String() != evtID.String() {
			continue
		}
		result = append(result, copyDelivery(d))
	}
	return result, nil
}

// CountPending returns the number of non-terminal deliveries.
func (s *Store) CountPending(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, d := range s.deliveries {
		if !d.Status.Terminal() {
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// dlq.Store
// ──────────────────────────────────────────────────

// Push records a permanently failed delivery in the DLQ.
func (s *Store) Push(_ context.Context, entry *dlq.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dlqEntries[entry.ID.String()] = entry
	return nil
}

// ListDLQ returns DLQ entries, optionally filtered.
func (s *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*dlq.Entry, 0, len(s.dlqEntries))
	for _, e := range s.dlqEntries {
		if opts.OwnerID != "" && e.OwnerID != opts.OwnerID {
			continue
		}
		if opts.RegistrationID != nil && e.RegistrationID.String() != opts.RegistrationID.String() {
			continue
		}
		if opts.From != nil && e.FailedAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && e.FailedAt.After(*opts.To) {
			continue
		}
		result = append(result, e)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].FailedAt.After(result[j].FailedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// GetDLQ returns a DLQ entry by ID.
func (s *Store) GetDLQ(_ context.Context, dlqID id.ID) (*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.dlqEntries[dlqID.String()]
	if !ok {
		return nil, hookline.ErrDLQNotFound
	}
	return e, nil
}

// Replay marks a DLQ entry replayed and enqueues a fresh pending delivery
// carrying the entry's policy snapshot.
func (s *Store) Replay(_ context.Context, dlqID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.dlqEntries[dlqID.String()]
	if !ok {
		return hookline.ErrDLQNotFound
	}

	now := time.Now().UTC()
	e.ReplayedAt = &now

	d := dlq.NewReplayDelivery(e, now)
	s.deliveries[d.ID.String()] = d
	return nil
}

// ReplayBulk replays all unreplayed DLQ entries in a time window.
func (s *Store) ReplayBulk(_ context.Context, from, to time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var count int64

	for _, e := range s.dlqEntries {
		if e.FailedAt.Before(from) || e.FailedAt.After(to) {
			continue
		}
		if e.ReplayedAt != nil {
			continue
		}

		e.ReplayedAt = &now
		d := dlq.NewReplayDelivery(e, now)
		s.deliveries[d.ID.String()] = d
		count++
	}
	return count, nil
}

// Purge deletes DLQ entries older than a threshold.
func (s *Store) Purge(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for k, e := range s.dlqEntries {
		if e.FailedAt.Before(before) {
			delete(s.dlqEntries, k)
			count++
		}
	}
	return count, nil
}

// CountDLQ returns the total number of DLQ entries.
func (s *Store) CountDLQ(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.dlqEntries)), nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func matchEventOpts(evt *event.Event, opts event.ListOpts) bool {
	if opts.Type != "" && evt.Type != opts.Type {
		return false
	}
	if opts.From != nil && evt.CreatedAt.Before(*opts.From) {
		return false
	}
	if opts.To != nil && evt.CreatedAt.After(*opts.To) {
		return false
	}
	return true
}

func applyPagination[T any](items []*T, offset, limit int) []*T {
	if offset > 0 && offset < len(items) {
		items = items[offset:]
	} else if offset >= len(items) && offset > 0 {
		return nil
	}

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}
