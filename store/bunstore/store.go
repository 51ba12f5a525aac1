// Package bunstore implements the Hookline store on any SQL database
// supported by bun. The caller owns the bun.DB and picks the dialect;
// the DDL sticks to what Postgres and SQLite both accept.
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	hookline "github.com/hookline/hookline"
	"github.com/hookline/hookline/catalog"
	"github.com/hookline/hookline/delivery"
	"github.com/hookline/hookline/dlq"
	"github.com/hookline/hookline/event"
	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/registration"
	hookstore "github.com/hookline/hookline/store"
)

// Store is a SQL-backed hookline store.
type Store struct {
	db *bun.DB
}

var _ hookstore.Store = (*Store)(nil)

// New creates a store on an existing bun.DB.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying bun.DB for callers that need raw access.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent; the DDL is kept
// portable across the Postgres and SQLite dialects.
func (s *Store) Migrate(ctx context.Context) error {
	models := []any{
		(*eventTypeModel)(nil),
		(*registrationModel)(nil),
		(*eventModel)(nil),
		(*deliveryModel)(nil),
		(*dlqEntryModel)(nil),
	}
	for _, m := range models {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("%w: create table: %v", hookline.ErrMigrationFailed, err)
		}
	}

	indexes := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_hookline_event_types_name ON hookline_event_types (name)`,
		`CREATE INDEX IF NOT EXISTS idx_hookline_registrations_owner ON hookline_registrations (owner_id, active)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_hookline_events_idem ON hookline_events (idempotency_key) WHERE idempotency_key <> ''`,
		`CREATE INDEX IF NOT EXISTS idx_hookline_events_owner ON hookline_events (owner_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_hookline_deliveries_due ON hookline_deliveries (status, next_retry_at)`,
		`CREATE INDEX IF NOT EXISTS idx_hookline_deliveries_reg ON hookline_deliveries (registration_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_hookline_deliveries_event ON hookline_deliveries (event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_hookline_dlq_failed ON hookline_dlq (failed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_hookline_dlq_owner ON hookline_dlq (owner_id, failed_at)`,
	}
	for _, ddl := range indexes {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("%w: create index: %v", hookline.ErrMigrationFailed, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func now() time.Time {
	return time.Now().UTC()
}

// ==================== Catalog Store ====================

// RegisterType creates or updates an event type definition (upsert by name).
// Re-registering a deprecated type revives it.
func (s *Store) RegisterType(ctx context.Context, et *catalog.EventType) error {
	m, err := toEventTypeModel(et)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().
		Model(m).
		On("CONFLICT (name) DO UPDATE").
		Set("description = EXCLUDED.description").
		Set("group_name = EXCLUDED.group_name").
		Set("schema = EXCLUDED.schema").
		Set("schema_version = EXCLUDED.schema_version").
		Set("version = EXCLUDED.version").
		Set("example = EXCLUDED.example").
		Set("metadata = EXCLUDED.metadata").
		Set("is_deprecated = ?", false).
		Set("deprecated_at = NULL").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("hookline/bun: register type: %w", err)
	}
	return nil
}

// GetType returns an event type by name.
func (s *Store) GetType(ctx context.Context, name string) (*catalog.EventType, error) {
	m := new(eventTypeModel)
	err := s.db.NewSelect().Model(m).Where("name = ?", name).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, hookline.ErrEventTypeNotFound
		}
		return nil, fmt.Errorf("hookline/bun: get type: %w", err)
	}
	return fromEventTypeModel(m)
}

// ListTypes returns registered event types, optionally filtered.
func (s *Store) ListTypes(ctx context.Context, opts catalog.ListOpts) ([]*catalog.EventType, error) {
	var models []eventTypeModel
	q := s.db.NewSelect().Model(&models).Order("name ASC")
	if opts.Group != "" {
		q = q.Where("group_name = ?", opts.Group)
	}
	if !opts.IncludeDeprecated {
		q = q.Where("is_deprecated = ?", false)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("hookline/bun: list types: %w", err)
	}

	result := make([]*catalog.EventType, 0, len(models))
	for i := range models {
		et, err := fromEventTypeModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, et)
	}
	return result, nil
}

// DeleteType soft-deletes (deprecates) an event type.
func (s *Store) DeleteType(ctx context.Context, name string) error {
	ts := now()
	res, err := s.db.NewUpdate().
		Model((*eventTypeModel)(nil)).
		Set("is_deprecated = ?", true).
		Set("deprecated_at = ?", ts).
		Set("updated_at = ?", ts).
		Where("name = ?", name).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("hookline/bun: delete type: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("hookline/bun: delete type: %w", err)
	}
	if rows == 0 {
		return hookline.ErrEventTypeNotFound
	}
	return nil
}

// ==================== Registration Store ====================

// CreateRegistration persists a new registration.
func (s *Store) CreateRegistration(ctx context.Context, r *registration.Registration) error {
	m, err := toRegistrationModel(r)
	if err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("hookline/bun: create registration: %w", err)
	}
	return nil
}

// GetRegistration returns a registration by ID, scoped to ownerID. An empty
// ownerID skips the scope check (engine access).
func (s *Store) GetRegistration(ctx context.Context, regID id.ID, ownerID string) (*registration.Registration, error) {
	m := new(registrationModel)
	q := s.db.NewSelect().Model(m).Where("id = ?", regID.String())
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, hookline.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("hookline/bun: get registration: %w", err)
	}
	return fromRegistrationModel(m)
}

// UpdateRegistration overwrites an existing registration.
func (s *Store) UpdateRegistration(ctx context.Context, r *registration.Registration) error {
	m, err := toRegistrationModel(r)
	if err != nil {
		return err
	}
	m.UpdatedAt = now()

	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("hookline/bun: update registration: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("hookline/bun: update registration: %w", err)
	}
	if rows == 0 {
		return hookline.ErrRegistrationNotFound
	}
	return nil
}

// DeleteRegistration removes a registration. Its deliveries remain.
func (s *Store) DeleteRegistration(ctx context.Context, regID id.ID) error {
	res, err := s.db.NewDelete().
		Model((*registrationModel)(nil)).
		Where("id = ?", regID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("hookline/bun: delete registration: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("hookline/bun: delete registration: %w", err)
	}
	if rows == 0 {
		return hookline.ErrRegistrationNotFound
	}
	return nil
}

// ListRegistrations returns registrations for an owner, optionally filtered.
func (s *Store) ListRegistrations(ctx context.Context, ownerID string, opts registration.ListOpts) ([]*registration.Registration, error) {
	var models []registrationModel
	q := s.db.NewSelect().
		Model(&models).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC")
	if opts.Active != nil {
		q = q.Where("active = ?", *opts.Active)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("hookline/bun: list registrations: %w", err)
	}
	return fromRegistrationModels(models)
}

// Resolve finds all active registrations subscribed to an event type for an
// owner. Subscription patterns are glob-matched in memory: the candidate set
// is already narrowed to the owner's active registrations by the index.
func (s *Store) Resolve(ctx context.Context, ownerID, eventType string) ([]*registration.Registration, error) {
	var models []registrationModel
	err := s.db.NewSelect().
		Model(&models).
		Where("owner_id = ?", ownerID).
		Where("active = ?", true).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("hookline/bun: resolve registrations: %w", err)
	}

	var result []*registration.Registration
	for i := range models {
		r, convErr := fromRegistrationModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		if r.Subscribes(eventType, catalog.Match) {
			result = append(result, r)
		}
	}
	return result, nil
}

// SetActive enables or disables a registration.
func (s *Store) SetActive(ctx context.Context, regID id.ID, active bool) error {
	res, err := s.db.NewUpdate().
		Model((*registrationModel)(nil)).
		Set("active = ?", active).
		Set("updated_at = ?", now()).
		Where("id = ?", regID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("hookline/bun: set active: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("hookline/bun: set active: %w", err)
	}
	if rows == 0 {
		return hookline.ErrRegistrationNotFound
	}
	return nil
}

func fromRegistrationModels(models []registrationModel) ([]*registration.Registration, error) {
	result := make([]*registration.Registration, 0, len(models))
	for i := range models {
		r, err := fromRegistrationModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, nil
}

// ==================== Event Store ====================

// CreateEvent persists an event. The partial unique index on idempotency_key
// turns a duplicate key into the idempotency sentinel via DO NOTHING plus a
// zero rows-affected check.
func (s *Store) CreateEvent(ctx context.Context, evt *event.Event) error {
	res, err := s.db.NewInsert().
		Model(toEventModel(evt)).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("hookline/bun: create event: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("hookline/bun: create event: %w", err)
	}
	if rows == 0 {
		return hookline.ErrDuplicateIdempotencyKey
	}
	return nil
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	m := new(eventModel)
	if err := s.db.NewSelect().Model(m).Where("id = ?", evtID.String()).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, hookline.ErrEventNotFound
		}
		return nil, fmt.Errorf("hookline/bun: get event: %w", err)
	}
	return fromEventModel(m)
}

// ListEvents returns events, optionally filtered.
func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	return s.listEvents(ctx, "", opts)
}

// ListEventsByOwner returns events for a specific owner.
func (s *Store) ListEventsByOwner(ctx context.Context, ownerID string, opts event.ListOpts) ([]*event.Event, error) {
	return s.listEvents(ctx, ownerID, opts)
}

func (s *Store) listEvents(ctx context.Context, ownerID string, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel
	q := s.db.NewSelect().Model(&models).Order("created_at DESC")
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	if opts.Type != "" {
		q = q.Where("type = ?", opts.Type)
	}
	if opts.From != nil {
		q = q.Where("created_at >= ?", *opts.From)
	}
	if opts.To != nil {
		q = q.Where("created_at <= ?", *opts.To)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("hookline/bun: list events: %w", err)
	}

	result := make([]*event.Event, 0, len(models))
	for i := range models {
		evt, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, evt)
	}
	return result, nil
}

// ==================== Delivery Store ====================

// CreateDelivery appends a pending delivery to the ledger.
func (s *Store) CreateDelivery(ctx context.Context, d *delivery.Delivery) error {
	if _, err := s.db.NewInsert().Model(toDeliveryModel(d)).Exec(ctx); err != nil {
		return fmt.Errorf("hookline/bun: create delivery: %w", err)
	}
	return nil
}

// CreateDeliveryBatch appends multiple deliveries in one insert (fan-out).
func (s *Store) CreateDeliveryBatch(ctx context.Context, ds []*delivery.Delivery) error {
	if len(ds) == 0 {
		return nil
	}
	models := make([]*deliveryModel, len(ds))
	for i, d := range ds {
		models[i] = toDeliveryModel(d)
	}
	if _, err := s.db.NewInsert().Model(&models).Exec(ctx); err != nil {
		return fmt.Errorf("hookline/bun: create delivery batch: %w", err)
	}
	return nil
}

// DequeueDue claims non-terminal deliveries due at dueAt, soonest-first.
// Claiming is an optimistic per-row update guarded by the previous
// next_retry_at, which keeps the query portable across dialects: a row
// another dispatcher claimed first simply fails the guard and is skipped.
func (s *Store) DequeueDue(ctx context.Context, dueAt time.Time, limit int) ([]*delivery.Delivery, error) {
	var candidates []deliveryModel
	err := s.db.NewSelect().
		Model(&candidates).
		Where("status IN (?)", bun.In([]string{string(delivery.StatusPending), string(delivery.StatusRetrying)})).
		Where("next_retry_at IS NOT NULL").
		Where("next_retry_at <= ?", dueAt).
		Order("next_retry_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("hookline/bun: dequeue due: %w", err)
	}

	claimed := dueAt.Add(delivery.ClaimLease)
	result := make([]*delivery.Delivery, 0, len(candidates))
	for i := range candidates {
		m := &candidates[i]
		res, claimErr := s.db.NewUpdate().
			Model((*deliveryModel)(nil)).
			Set("next_retry_at = ?", claimed).
			Set("updated_at = ?", now()).
			Where("id = ?", m.ID).
			Where("next_retry_at = ?", m.NextRetryAt).
			Exec(ctx)
		if claimErr != nil {
			return nil, fmt.Errorf("hookline/bun: dequeue claim: %w", claimErr)
		}
		rows, rowsErr := res.RowsAffected()
		if rowsErr != nil {
			return nil, fmt.Errorf("hookline/bun: dequeue claim: %w", rowsErr)
		}
		if rows == 0 {
			continue
		}

		d, convErr := fromDeliveryModel(m)
		if convErr != nil {
			return nil, convErr
		}
		result = append(result, d)
	}
	return result, nil
}

// UpdateDelivery overwrites a delivery's mutable fields by ID (last-writer-wins).
func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	m.UpdatedAt = now()

	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("hookline/bun: update delivery: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("hookline/bun: update delivery: %w", err)
	}
	if rows == 0 {
		return hookline.ErrDeliveryNotFound
	}
	return nil
}

// GetDelivery returns a delivery by ID.
func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	m := new(deliveryModel)
	if err := s.db.NewSelect().Model(m).Where("id = ?", delID.String()).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, hookline.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("hookline/bun: get delivery: %w", err)
	}
	return fromDeliveryModel(m)
}

// ListByRegistration returns delivery history for a registration, newest-first.
func (s *Store) ListByRegistration(ctx context.Context, regID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	q := s.db.NewSelect().
		Model(&models).
		Where("registration_id = ?", regID.String()).
		Order("created_at DESC")
	if opts.Status != nil {
		q = q.Where("status = ?", string(*opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("hookline/bun: list by registration: %w", err)
	}
	return fromDeliveryModels(models)
}

// ListByEvent returns all deliveries fanned out from one event.
func (s *Store) ListByEvent(ctx context.Context, evtID id.ID) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	err := s.db.NewSelect().
		Model(&models).
		Where("event_id = ?", evtID.String()).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("hookline/bun: list by event: %w", err)
	}
	return fromDeliveryModels(models)
}

// CountPending returns the number of non-terminal deliveries.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	count, err := s.db.NewSelect().
		Model((*deliveryModel)(nil)).
		Where("status IN (?)", bun.In([]string{string(delivery.StatusPending), string(delivery.StatusRetrying)})).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("hookline/bun: count pending: %w", err)
	}
	return int64(count), nil
}

func fromDeliveryModels(models []deliveryModel) ([]*delivery.Delivery, error) {
	result := make([]*delivery.Delivery, 0, len(models))
	for i := range models {
		d, err := fromDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, nil
}

// ==================== DLQ Store ====================

// Push records a permanently failed delivery in the DLQ.
func (s *Store) Push(ctx context.Context, entry *dlq.Entry) error {
	if _, err := s.db.NewInsert().Model(toDLQEntryModel(entry)).Exec(ctx); err != nil {
		return fmt.Errorf("hookline/bun: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns DLQ entries, optionally filtered, newest-first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	var models []dlqEntryModel
	q := s.db.NewSelect().Model(&models).Order("failed_at DESC")
	if opts.OwnerID != "" {
		q = q.Where("owner_id = ?", opts.OwnerID)
	}
	if opts.RegistrationID != nil {
		q = q.Where("registration_id = ?", opts.RegistrationID.String())
	}
	if opts.From != nil {
		q = q.Where("failed_at >= ?", *opts.From)
	}
	if opts.To != nil {
		q = q.Where("failed_at <= ?", *opts.To)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("hookline/bun: list dlq: %w", err)
	}

	result := make([]*dlq.Entry, 0, len(models))
	for i := range models {
		entry, err := fromDLQEntryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, nil
}

// GetDLQ returns a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, dlqID id.ID) (*dlq.Entry, error) {
	m := new(dlqEntryModel)
	if err := s.db.NewSelect().Model(m).Where("id = ?", dlqID.String()).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, hookline.ErrDLQNotFound
		}
		return nil, fmt.Errorf("hookline/bun: get dlq: %w", err)
	}
	return fromDLQEntryModel(m)
}

// Replay enqueues a fresh pending delivery from a DLQ entry and marks the
// entry replayed. The entry stays in the DLQ as audit history.
func (s *Store) Replay(ctx context.Context, dlqID id.ID) error {
	entry, err := s.GetDLQ(ctx, dlqID)
	if err != nil {
		return err
	}

	replayedAt := now()
	if err := s.CreateDelivery(ctx, dlq.NewReplayDelivery(entry, replayedAt)); err != nil {
		return err
	}
	return s.markReplayed(ctx, dlqID.String(), replayedAt)
}

// ReplayBulk replays all unreplayed DLQ entries in a time window.
func (s *Store) ReplayBulk(ctx context.Context, from, to time.Time) (int64, error) {
	var models []dlqEntryModel
	err := s.db.NewSelect().
		Model(&models).
		Where("failed_at >= ?", from).
		Where("failed_at <= ?", to).
		Where("replayed_at IS NULL").
		Order("failed_at ASC").
		Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("hookline/bun: replay bulk list: %w", err)
	}

	var count int64
	for i := range models {
		entry, convErr := fromDLQEntryModel(&models[i])
		if convErr != nil {
			return count, convErr
		}

		replayedAt := now()
		if createErr := s.CreateDelivery(ctx, dlq.NewReplayDelivery(entry, replayedAt)); createErr != nil {
			return count, createErr
		}
		if markErr := s.markReplayed(ctx, models[i].ID, replayedAt); markErr != nil {
			return count, markErr
		}
		count++
	}
	return count, nil
}

// Purge deletes DLQ entries older than a threshold.
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*dlqEntryModel)(nil)).
		Where("failed_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("hookline/bun: purge: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("hookline/bun: purge: %w", err)
	}
	return rows, nil
}

// CountDLQ returns the total number of DLQ entries.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.db.NewSelect().Model((*dlqEntryModel)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("hookline/bun: count dlq: %w", err)
	}
	return int64(count), nil
}

func (s *Store) markReplayed(ctx context.Context, dlqID string, replayedAt time.Time) error {
	_, err := s.db.NewUpdate().
		Model((*dlqEntryModel)(nil)).
		Set("replayed_at = ?", replayedAt).
		Set("updated_at = ?", replayedAt).
		Where("id = ?", dlqID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("hookline/bun: replay mark: %w", err)
	}
	return nil
}
