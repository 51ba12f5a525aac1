package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"

	hookline "github.com/hookline/hookline"
	"github.com/hookline/hookline/dlq"
	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/internal/entity"
	"github.com/hookline/hookline/registration"
)

// dlqEntryModel is the JSON representation stored in Redis.
type dlqEntryModel struct {
	ID             string          `json:"id"`
	DeliveryID     string          `json:"delivery_id"`
	EventID        string          `json:"event_id"`
	RegistrationID string          `json:"registration_id"`
	OwnerID        string          `json:"owner_id"`
	EventType      string          `json:"event_type"`
	URL            string          `json:"url"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Error          string          `json:"error"`
	ResponseCode   int             `json:"response_code,omitempty"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	Backoff        string          `json:"backoff"`
	InitialDelay   time.Duration   `json:"initial_delay"`
	ReplayedAt     *time.Time      `json:"replayed_at,omitempty"`
	FailedAt       time.Time       `json:"failed_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toDLQEntryModel(e *dlq.Entry) *dlqEntryModel {
	return &dlqEntryModel{
		ID:             e.ID.String(),
		DeliveryID:     e.DeliveryID.String(),
		EventID:        e.EventID.String(),
		RegistrationID: e.RegistrationID.String(),
		OwnerID:        e.OwnerID,
		EventType:      e.EventType,
		URL:            e.URL,
		Payload:        e.Payload,
		Error:          e.Error,
		ResponseCode:   e.ResponseCode,
		Attempts:       e.Attempts,
		MaxAttempts:    e.MaxAttempts,
		Backoff:        string(e.Backoff),
		InitialDelay:   e.InitialDelay,
		ReplayedAt:     e.ReplayedAt,
		FailedAt:       e.FailedAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func fromDLQEntryModel(m *dlqEntryModel) (*dlq.Entry, error) {
	dlqID, err := id.ParseDLQID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse DLQ ID %q: %w", m.ID, err)
	}
	delID, err := id.ParseDeliveryID(m.DeliveryID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.DeliveryID, err)
	}
	evtID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	regID, err := id.ParseRegistrationID(m.RegistrationID)
	if err != nil {
		return nil, fmt.Errorf("parse registration ID %q: %w", m.RegistrationID, err)
	}
	return &dlq.Entry{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             dlqID,
		DeliveryID:     delID,
		EventID:        evtID,
		RegistrationID: regID,
		OwnerID:        m.OwnerID,
		EventType:      m.EventType,
		URL:            m.URL,
		Payload:        m.Payload,
		Error:          m.Error,
		ResponseCode:   m.ResponseCode,
		Attempts:       m.Attempts,
		MaxAttempts:    m.MaxAttempts,
		Backoff:        registration.Backoff(m.Backoff),
		InitialDelay:   m.InitialDelay,
		ReplayedAt:     m.ReplayedAt,
		FailedAt:       m.FailedAt,
	}, nil
}

func (s *Store) Push(ctx context.Context, entry *dlq.Entry) error {
	m := toDLQEntryModel(entry)

	if err := s.setEntity(ctx, entityKey(prefixDLQ, m.ID), m); err != nil {
		return fmt.Errorf("hookline/redis: push dlq: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zDLQAll, goredis.Z{Score: scoreFromTime(m.FailedAt), Member: m.ID})
	if m.OwnerID != "" {
		pipe.ZAdd(ctx, zDLQOwner+m.OwnerID, goredis.Z{Score: scoreFromTime(m.FailedAt), Member: m.ID})
	}
	pipe.ZAdd(ctx, zDLQReg+m.RegistrationID, goredis.Z{Score: scoreFromTime(m.FailedAt), Member: m.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hookline/redis: push dlq indexes: %w", err)
	}
	return nil
}

func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	zKey := zDLQAll
	if opts.OwnerID != "" {
		zKey = zDLQOwner + opts.OwnerID
	}
	if opts.RegistrationID != nil {
		zKey = zDLQReg + opts.RegistrationID.String()
	}

	minScore := math.Inf(-1)
	maxScore := math.Inf(1)
	if opts.From != nil {
		minScore = scoreFromTime(*opts.From)
	}
	if opts.To != nil {
		maxScore = scoreFromTime(*opts.To)
	}

	ids, err := s.zRangeByScoreIDs(ctx, zKey, minScore, maxScore)
	if err != nil {
		return nil, fmt.Errorf("hookline/redis: list dlq: %w", err)
	}

	result := make([]*dlq.Entry, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- { // reverse for DESC order
		var m dlqEntryModel
		if err := s.getEntity(ctx, entityKey(prefixDLQ, ids[i]), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		entry, err := fromDLQEntryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) GetDLQ(ctx context.Context, dlqID id.ID) (*dlq.Entry, error) {
	var m dlqEntryModel
	if err := s.getEntity(ctx, entityKey(prefixDLQ, dlqID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, hookline.ErrDLQNotFound
		}
		return nil, fmt.Errorf("hookline/redis: get dlq: %w", err)
	}
	return fromDLQEntryModel(&m)
}

func (s *Store) Replay(ctx context.Context, dlqID id.ID) error {
	entry, err := s.GetDLQ(ctx, dlqID)
	if err != nil {
		return err
	}

	replayedAt := now()
	d := dlq.NewReplayDelivery(entry, replayedAt)
	if createErr := s.CreateDelivery(ctx, d); createErr != nil {
		return createErr
	}

	// The entry stays in the DLQ as audit history, marked replayed.
	entry.ReplayedAt = &replayedAt
	m := toDLQEntryModel(entry)
	m.UpdatedAt = replayedAt
	if err := s.setEntity(ctx, entityKey(prefixDLQ, m.ID), m); err != nil {
		return fmt.Errorf("hookline/redis: replay mark: %w", err)
	}
	return nil
}

func (s *Store) ReplayBulk(ctx context.Context, from, to time.Time) (int64, error) {
	ids, err := s.zRangeByScoreIDs(ctx, zDLQAll, scoreFromTime(from), scoreFromTime(to))
	if err != nil {
		return 0, fmt.Errorf("hookline/redis: replay bulk list: %w", err)
	}

	var count int64
	for _, entryID := range ids {
		var m dlqEntryModel
		if err := s.getEntity(ctx, entityKey(prefixDLQ, entryID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return count, err
		}
		if m.ReplayedAt != nil {
			continue
		}

		entry, err := fromDLQEntryModel(&m)
		if err != nil {
			return count, err
		}

		replayedAt := now()
		d := dlq.NewReplayDelivery(entry, replayedAt)
		if createErr := s.CreateDelivery(ctx, d); createErr != nil {
			return count, createErr
		}

		m.ReplayedAt = &replayedAt
		m.UpdatedAt = replayedAt
		if err := s.setEntity(ctx, entityKey(prefixDLQ, entryID), &m); err != nil {
			return count, fmt.Errorf("hookline/redis: replay bulk mark: %w", err)
		}
		count++
	}

	return count, nil
}

func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	ids, err := s.zRangeByScoreIDs(ctx, zDLQAll, math.Inf(-1), scoreFromTime(before))
	if err != nil {
		return 0, fmt.Errorf("hookline/redis: purge list: %w", err)
	}

	var count int64
	for _, entryID := range ids {
		var m dlqEntryModel
		if err := s.getEntity(ctx, entityKey(prefixDLQ, entryID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return count, err
		}

		pipe := s.rdb.Pipeline()
		pipe.Del(ctx, entityKey(prefixDLQ, entryID))
		pipe.ZRem(ctx, zDLQAll, entryID)
		if m.OwnerID != "" {
			pipe.ZRem(ctx, zDLQOwner+m.OwnerID, entryID)
		}
		pipe.ZRem(ctx, zDLQReg+m.RegistrationID, entryID)
		if _, err := pipe.Exec(ctx); err != nil {
			return count, fmt.Errorf("hookline/redis: purge delete: %w", err)
		}
		count++
	}

	return count, nil
}

func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, zDLQAll).Result()
	if err != nil {
		return 0, fmt.Errorf("hookline/redis: count dlq: %w", err)
	}
	return count, nil
}
