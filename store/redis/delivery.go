package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	hookline "github.com/hookline/hookline"
	"github.com/hookline/hookline/delivery"
	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/internal/entity"
	"github.com/hookline/hookline/registration"
)

// deliveryModel is the JSON representation stored in Redis.
type deliveryModel struct {
	ID             string          `json:"id"`
	RegistrationID string          `json:"registration_id"`
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Status         string          `json:"status"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	Backoff        string          `json:"backoff"`
	InitialDelay   time.Duration   `json:"initial_delay"`
	LastAttemptAt  *time.Time      `json:"last_attempt_at,omitempty"`
	NextRetryAt    *time.Time      `json:"next_retry_at,omitempty"`
	ResponseCode   int             `json:"response_code,omitempty"`
	ResponseBody   string          `json:"response_body,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	LastLatencyMs  int             `json:"last_latency_ms,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toDeliveryModel(d *delivery.Delivery) *deliveryModel {
	return &deliveryModel{
		ID:             d.ID.String(),
		RegistrationID: d.RegistrationID.String(),
		EventID:        d.EventID.String(),
		EventType:      d.EventType,
		Payload:        d.Payload,
		Status:         string(d.Status),
		Attempts:       d.Attempts,
		MaxAttempts:    d.MaxAttempts,
		Backoff:        string(d.Backoff),
		InitialDelay:   d.InitialDelay,
		LastAttemptAt:  d.LastAttemptAt,
		NextRetryAt:    d.NextRetryAt,
		ResponseCode:   d.ResponseCode,
		ResponseBody:   d.ResponseBody,
		ErrorMessage:   d.ErrorMessage,
		LastLatencyMs:  d.LastLatencyMs,
		CompletedAt:    d.CompletedAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func fromDeliveryModel(m *deliveryModel) (*delivery.Delivery, error) {
	delID, err := id.ParseDeliveryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.ID, err)
	}
	regID, err := id.ParseRegistrationID(m.RegistrationID)
	if err != nil {
		return nil, fmt.Errorf("parse registration ID %q: %w", m.RegistrationID, err)
	}
	evtID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	return &delivery.Delivery{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             delID,
		RegistrationID: regID,
		EventID:        evtID,
		EventType:      m.EventType,
		Payload:        m.Payload,
		Status:         delivery.Status(m.Status),
		Attempts:       m.Attempts,
		MaxAttempts:    m.MaxAttempts,
		Backoff:        registration.Backoff(m.Backoff),
		InitialDelay:   m.InitialDelay,
		LastAttemptAt:  m.LastAttemptAt,
		NextRetryAt:    m.NextRetryAt,
		ResponseCode:   m.ResponseCode,
		ResponseBody:   m.ResponseBody,
		ErrorMessage:   m.ErrorMessage,
		LastLatencyMs:  m.LastLatencyMs,
		CompletedAt:    m.CompletedAt,
	}, nil
}

// claimScript atomically claims due deliveries from the due sorted set by
// pushing their scores forward by the claim lease. Claimed members stay in
// the set: the attempt's final update either removes them (terminal) or
// rescores them (retry); a crashed worker's claim simply expires.
// KEYS[1] = hl:z:del:due
// ARGV[1] = current unix timestamp (score threshold)
// ARGV[2] = limit
// ARGV[3] = claim lease in seconds
var claimScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
if #ids == 0 then return {} end
local claimed = tonumber(ARGV[1]) + tonumber(ARGV[3])
for i, id in ipairs(ids) do
    redis.call('ZADD', KEYS[1], claimed, id)
end
return ids
`)

func (s *Store) CreateDelivery(ctx context.Context, d *delivery.Delivery) error {
	return s.CreateDeliveryBatch(ctx, []*delivery.Delivery{d})
}

func (s *Store) CreateDeliveryBatch(ctx context.Context, ds []*delivery.Delivery) error {
	if len(ds) == 0 {
		return nil
	}

	pipe := s.rdb.Pipeline()
	for _, d := range ds {
		m := toDeliveryModel(d)
		raw, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("hookline/redis: create delivery marshal: %w", err)
		}
		pipe.Set(ctx, entityKey(prefixDelivery, m.ID), raw, 0)
		if m.NextRetryAt != nil {
			pipe.ZAdd(ctx, zDeliveryDue, goredis.Z{Score: scoreFromTime(*m.NextRetryAt), Member: m.ID})
		}
		pipe.ZAdd(ctx, zDeliveryReg+m.RegistrationID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
		pipe.ZAdd(ctx, zDeliveryEvt+m.EventID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hookline/redis: create deliveries: %w", err)
	}
	return nil
}

func (s *Store) DequeueDue(ctx context.Context, dueAt time.Time, limit int) ([]*delivery.Delivery, error) {
	nowScore := fmt.Sprintf("%f", scoreFromTime(dueAt))
	leaseSecs := fmt.Sprintf("%f", delivery.ClaimLease.Seconds())

	ids, err := claimScript.Run(ctx, s.rdb, []string{zDeliveryDue}, nowScore, limit, leaseSecs).StringSlice()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("hookline/redis: claim script: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	deliveries := make([]*delivery.Delivery, 0, len(ids))
	for _, entryID := range ids {
		var m deliveryModel
		if err := s.getEntity(ctx, entityKey(prefixDelivery, entryID), &m); err != nil {
			if isRedisNil(err) {
				// Orphaned index member; drop it.
				s.rdb.ZRem(ctx, zDeliveryDue, entryID)
				continue
			}
			return nil, fmt.Errorf("hookline/redis: claim get: %w", err)
		}

		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}

	return deliveries, nil
}

func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	m.UpdatedAt = now()

	if err := s.setEntity(ctx, entityKey(prefixDelivery, m.ID), m); err != nil {
		return fmt.Errorf("hookline/redis: update delivery: %w", err)
	}

	// Keep the due index in step: terminal deliveries leave the set,
	// re-armed ones get their new due time.
	if d.Status.Terminal() || d.NextRetryAt == nil {
		s.rdb.ZRem(ctx, zDeliveryDue, m.ID)
	} else {
		s.rdb.ZAdd(ctx, zDeliveryDue, goredis.Z{Score: scoreFromTime(*d.NextRetryAt), Member: m.ID})
	}
	return nil
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	var m deliveryModel
	if err := s.getEntity(ctx, entityKey(prefixDelivery, delID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, hookline.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("hookline/redis: get delivery: %w", err)
	}
	return fromDeliveryModel(&m)
}

func (s *Store) ListByRegistration(ctx context.Context, regID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	ids, err := s.rdb.ZRange(ctx, zDeliveryReg+regID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("hookline/redis: list by registration: %w", err)
	}

	result := make([]*delivery.Delivery, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- { // reverse for DESC order
		var m deliveryModel
		if err := s.getEntity(ctx, entityKey(prefixDelivery, ids[i]), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if opts.Status != nil && delivery.Status(m.Status) != *opts.Status {
			continue
		}
		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListByEvent(ctx context.Context, evtID id.ID) ([]*delivery.Delivery, error) {
	ids, err := s.rdb.ZRange(ctx, zDeliveryEvt+evtID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("hookline/redis: list by event: %w", err)
	}

	result := make([]*delivery.Delivery, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- { // reverse for DESC order
		var m deliveryModel
		if err := s.getEntity(ctx, entityKey(prefixDelivery, ids[i]), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}

	return result, nil
}

func (s *Store) CountPending(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, zDeliveryDue).Result()
	if err != nil {
		return 0, fmt.Errorf("hookline/redis: count pending: %w", err)
	}
	return count, nil
}
