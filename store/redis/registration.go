package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	hookline "github.com/hookline/hookline"
	"github.com/hookline/hookline/catalog"
	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/internal/entity"
	"github.com/hookline/hookline/registration"
)

// registrationModel is the JSON representation stored in Redis. The secret is
// stored here and redacted by the service layer on reads.
type registrationModel struct {
	ID           string            `json:"id"`
	OwnerID      string            `json:"owner_id"`
	URL          string            `json:"url"`
	Description  string            `json:"description,omitempty"`
	Secret       string            `json:"secret"`
	Events       []string          `json:"events"`
	Headers      map[string]string `json:"headers,omitempty"`
	Active       bool              `json:"active"`
	MaxAttempts  int               `json:"max_attempts"`
	Backoff      string            `json:"backoff"`
	InitialDelay time.Duration     `json:"initial_delay"`
	Timeout      time.Duration     `json:"timeout"`
	RateLimit    int               `json:"rate_limit"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func toRegistrationModel(r *registration.Registration) *registrationModel {
	return &registrationModel{
		ID:           r.ID.String(),
		OwnerID:      r.OwnerID,
		URL:          r.URL,
		Description:  r.Description,
		Secret:       r.Secret,
		Events:       r.Events,
		Headers:      r.Headers,
		Active:       r.Active,
		MaxAttempts:  r.RetryPolicy.MaxAttempts,
		Backoff:      string(r.RetryPolicy.Backoff),
		InitialDelay: r.RetryPolicy.InitialDelay,
		Timeout:      r.Timeout,
		RateLimit:    r.RateLimit,
		Metadata:     r.Metadata,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func fromRegistrationModel(m *registrationModel) (*registration.Registration, error) {
	regID, err := id.ParseRegistrationID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse registration ID %q: %w", m.ID, err)
	}
	return &registration.Registration{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          regID,
		OwnerID:     m.OwnerID,
		URL:         m.URL,
		Description: m.Description,
		Secret:      m.Secret,
		Events:      m.Events,
		Headers:     m.Headers,
		Active:      m.Active,
		RetryPolicy: registration.RetryPolicy{
			MaxAttempts:  m.MaxAttempts,
			Backoff:      registration.Backoff(m.Backoff),
			InitialDelay: m.InitialDelay,
		},
		Timeout:   m.Timeout,
		RateLimit: m.RateLimit,
		Metadata:  m.Metadata,
	}, nil
}

func (s *Store) CreateRegistration(ctx context.Context, r *registration.Registration) error {
	m := toRegistrationModel(r)
	key := entityKey(prefixRegistration, m.ID)

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("hookline/redis: create registration: %w", err)
	}

	if err := s.rdb.ZAdd(ctx, zRegOwner+m.OwnerID, goredis.Z{
		Score:  scoreFromTime(m.CreatedAt),
		Member: m.ID,
	}).Err(); err != nil {
		return fmt.Errorf("hookline/redis: create registration index: %w", err)
	}
	return nil
}

func (s *Store) GetRegistration(ctx context.Context, regID id.ID, ownerID string) (*registration.Registration, error) {
	var m registrationModel
	if err := s.getEntity(ctx, entityKey(prefixRegistration, regID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, hookline.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("hookline/redis: get registration: %w", err)
	}
	if ownerID != "" && m.OwnerID != ownerID {
		return nil, hookline.ErrRegistrationNotFound
	}
	return fromRegistrationModel(&m)
}

func (s *Store) UpdateRegistration(ctx context.Context, r *registration.Registration) error {
	key := entityKey(prefixRegistration, r.ID.String())

	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("hookline/redis: update registration exists: %w", err)
	}
	if exists == 0 {
		return hookline.ErrRegistrationNotFound
	}

	m := toRegistrationModel(r)
	m.UpdatedAt = now()
	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("hookline/redis: update registration: %w", err)
	}
	return nil
}

func (s *Store) DeleteRegistration(ctx context.Context, regID id.ID) error {
	var m registrationModel
	if err := s.getEntity(ctx, entityKey(prefixRegistration, regID.String()), &m); err != nil {
		if isRedisNil(err) {
			return hookline.ErrRegistrationNotFound
		}
		return fmt.Errorf("hookline/redis: delete registration get: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, entityKey(prefixRegistration, m.ID))
	pipe.ZRem(ctx, zRegOwner+m.OwnerID, m.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hookline/redis: delete registration: %w", err)
	}
	return nil
}

func (s *Store) ListRegistrations(ctx context.Context, ownerID string, opts registration.ListOpts) ([]*registration.Registration, error) {
	ids, err := s.rdb.ZRange(ctx, zRegOwner+ownerID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("hookline/redis: list registrations: %w", err)
	}

	result := make([]*registration.Registration, 0, len(ids))
	for _, entryID := range ids {
		var m registrationModel
		if err := s.getEntity(ctx, entityKey(prefixRegistration, entryID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if opts.Active != nil && m.Active != *opts.Active {
			continue
		}
		r, err := fromRegistrationModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) Resolve(ctx context.Context, ownerID, eventType string) ([]*registration.Registration, error) {
	ids, err := s.rdb.ZRange(ctx, zRegOwner+ownerID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("hookline/redis: resolve registrations: %w", err)
	}

	var result []*registration.Registration
	for _, entryID := range ids {
		var m registrationModel
		if err := s.getEntity(ctx, entityKey(prefixRegistration, entryID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if !m.Active {
			continue
		}
		r, err := fromRegistrationModel(&m)
		if err != nil {
			return nil, err
		}
		if r.Subscribes(eventType, catalog.Match) {
			result = append(result, r)
		}
	}
	return result, nil
}

func (s *Store) SetActive(ctx context.Context, regID id.ID, active bool) error {
	key := entityKey(prefixRegistration, regID.String())

	var m registrationModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isRedisNil(err) {
			return hookline.ErrRegistrationNotFound
		}
		return fmt.Errorf("hookline/redis: set active get: %w", err)
	}

	m.Active = active
	m.UpdatedAt = now()
	if err := s.setEntity(ctx, key, &m); err != nil {
		return fmt.Errorf("hookline/redis: set active: %w", err)
	}
	return nil
}
