package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/hookline/hookline/catalog"
	"github.com/hookline/hookline/delivery"
	"github.com/hookline/hookline/dlq"
	"github.com/hookline/hookline/event"
	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/internal/entity"
	"github.com/hookline/hookline/registration"
)

// Slices and maps are stored as JSON text columns so the same models work on
// both the Postgres and SQLite dialects.

type eventTypeModel struct {
	bun.BaseModel `bun:"table:hookline_event_types"`

	ID            string     `bun:"id,pk"`
	Name          string     `bun:"name,notnull"`
	Description   string     `bun:"description"`
	GroupName     string     `bun:"group_name"`
	Schema        []byte     `bun:"schema"`
	SchemaVersion string     `bun:"schema_version"`
	Version       string     `bun:"version"`
	Example       []byte     `bun:"example"`
	IsDeprecated  bool       `bun:"is_deprecated,notnull,default:false"`
	DeprecatedAt  *time.Time `bun:"deprecated_at"`
	Metadata      string     `bun:"metadata"`
	CreatedAt     time.Time  `bun:"created_at,notnull"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull"`
}

func toEventTypeModel(et *catalog.EventType) (*eventTypeModel, error) {
	metadata, err := encodeJSONMap(et.Metadata)
	if err != nil {
		return nil, err
	}
	return &eventTypeModel{
		ID:            et.ID.String(),
		Name:          et.Definition.Name,
		Description:   et.Definition.Description,
		GroupName:     et.Definition.Group,
		Schema:        et.Definition.Schema,
		SchemaVersion: et.Definition.SchemaVersion,
		Version:       et.Definition.Version,
		Example:       et.Definition.Example,
		IsDeprecated:  et.IsDeprecated,
		DeprecatedAt:  et.DeprecatedAt,
		Metadata:      metadata,
		CreatedAt:     et.CreatedAt,
		UpdatedAt:     et.UpdatedAt,
	}, nil
}

func fromEventTypeModel(m *eventTypeModel) (*catalog.EventType, error) {
	etID, err := id.ParseEventTypeID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event type ID %q: %w", m.ID, err)
	}
	metadata, err := decodeJSONMap(m.Metadata)
	if err != nil {
		return nil, err
	}
	return &catalog.EventType{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID: etID,
		Definition: catalog.Definition{
			Name:          m.Name,
			Description:   m.Description,
			Group:         m.GroupName,
			Schema:        m.Schema,
			SchemaVersion: m.SchemaVersion,
			Version:       m.Version,
			Example:       m.Example,
		},
		IsDeprecated: m.IsDeprecated,
		DeprecatedAt: m.DeprecatedAt,
		Metadata:     metadata,
	}, nil
}

type registrationModel struct {
	bun.BaseModel `bun:"table:hookline_registrations"`

	ID           string    `bun:"id,pk"`
	OwnerID      string    `bun:"owner_id,notnull"`
	URL          string    `bun:"url,notnull"`
	Description  string    `bun:"description"`
	Secret       string    `bun:"secret,notnull"`
	Events       string    `bun:"events,notnull"`
	Headers      string    `bun:"headers"`
	Active       bool      `bun:"active,notnull,default:true"`
	MaxAttempts  int       `bun:"max_attempts,notnull"`
	Backoff      string    `bun:"backoff,notnull"`
	InitialDelay int64     `bun:"initial_delay_ns,notnull"`
	Timeout      int64     `bun:"timeout_ns"`
	RateLimit    int       `bun:"rate_limit"`
	Metadata     string    `bun:"metadata"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
	UpdatedAt    time.Time `bun:"updated_at,notnull"`
}

func toRegistrationModel(r *registration.Registration) (*registrationModel, error) {
	events, err := encodeJSONSlice(r.Events)
	if err != nil {
		return nil, err
	}
	headers, err := encodeJSONMap(r.Headers)
	if err != nil {
		return nil, err
	}
	metadata, err := encodeJSONMap(r.Metadata)
	if err != nil {
		return nil, err
	}
	return &registrationModel{
		ID:           r.ID.String(),
		OwnerID:      r.OwnerID,
		URL:          r.URL,
		Description:  r.Description,
		Secret:       r.Secret,
		Events:       events,
		Headers:      headers,
		Active:       r.Active,
		MaxAttempts:  r.RetryPolicy.MaxAttempts,
		Backoff:      string(r.RetryPolicy.Backoff),
		InitialDelay: int64(r.RetryPolicy.InitialDelay),
		Timeout:      int64(r.Timeout),
		RateLimit:    r.RateLimit,
		Metadata:     metadata,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

func fromRegistrationModel(m *registrationModel) (*registration.Registration, error) {
	regID, err := id.ParseRegistrationID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse registration ID %q: %w", m.ID, err)
	}
	events, err := decodeJSONSlice(m.Events)
	if err != nil {
		return nil, err
	}
	headers, err := decodeJSONMap(m.Headers)
	if err != nil {
		return nil, err
	}
	metadata, err := decodeJSONMap(m.Metadata)
	if err != nil {
		return nil, err
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
		Events:      events,
		Headers:     headers,
		Active:      m.Active,
		RetryPolicy: registration.RetryPolicy{
			MaxAttempts:  m.MaxAttempts,
			Backoff:      registration.Backoff(m.Backoff),
			InitialDelay: time.Duration(m.InitialDelay),
		},
		Timeout:   time.Duration(m.Timeout),
		RateLimit: m.RateLimit,
		Metadata:  metadata,
	}, nil
}

type eventModel struct {
	bun.BaseModel `bun:"table:hookline_events"`

	ID             string    `bun:"id,pk"`
	Type           string    `bun:"type,notnull"`
	OwnerID        string    `bun:"owner_id,notnull"`
	Data           []byte    `bun:"data"`
	IdempotencyKey string    `bun:"idempotency_key"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
	UpdatedAt      time.Time `bun:"updated_at,notnull"`
}

func toEventModel(evt *event.Event) *eventModel {
	return &eventModel{
		ID:             evt.ID.String(),
		Type:           evt.Type,
		OwnerID:        evt.OwnerID,
		Data:           evt.Data,
		IdempotencyKey: evt.IdempotencyKey,
		CreatedAt:      evt.CreatedAt,
		UpdatedAt:      evt.UpdatedAt,
	}
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	evtID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.ID, err)
	}
	return &event.Event{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             evtID,
		Type:           m.Type,
		OwnerID:        m.OwnerID,
		Data:           json.RawMessage(m.Data),
		IdempotencyKey: m.IdempotencyKey,
	}, nil
}

type deliveryModel struct {
	bun.BaseModel `bun:"table:hookline_deliveries"`

	ID             string     `bun:"id,pk"`
	RegistrationID string     `bun:"registration_id,notnull"`
	EventID        string     `bun:"event_id,notnull"`
	EventType      string     `bun:"event_type,notnull"`
	Payload        []byte     `bun:"payload"`
	Status         string     `bun:"status,notnull"`
	Attempts       int        `bun:"attempts,notnull,default:0"`
	MaxAttempts    int        `bun:"max_attempts,notnull"`
	Backoff        string     `bun:"backoff,notnull"`
	InitialDelay   int64      `bun:"initial_delay_ns,notnull"`
	LastAttemptAt  *time.Time `bun:"last_attempt_at"`
	NextRetryAt    *time.Time `bun:"next_retry_at"`
	ResponseCode   int        `bun:"response_code"`
	ResponseBody   string     `bun:"response_body"`
	ErrorMessage   string     `bun:"error_message"`
	LastLatencyMs  int        `bun:"last_latency_ms"`
	CompletedAt    *time.Time `bun:"completed_at"`
	CreatedAt      time.Time  `bun:"created_at,notnull"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull"`
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
		InitialDelay:   int64(d.InitialDelay),
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
		Payload:        json.RawMessage(m.Payload),
		Status:         delivery.Status(m.Status),
		Attempts:       m.Attempts,
		MaxAttempts:    m.MaxAttempts,
		Backoff:        registration.Backoff(m.Backoff),
		InitialDelay:   time.Duration(m.InitialDelay),
		LastAttemptAt:  m.LastAttemptAt,
		NextRetryAt:    m.NextRetryAt,
		ResponseCode:   m.ResponseCode,
		ResponseBody:   m.ResponseBody,
		ErrorMessage:   m.ErrorMessage,
		LastLatencyMs:  m.LastLatencyMs,
		CompletedAt:    m.CompletedAt,
	}, nil
}

type dlqEntryModel struct {
	bun.BaseModel `bun:"table:hookline_dlq"`

	ID             string     `bun:"id,pk"`
	DeliveryID     string     `bun:"delivery_id,notnull"`
	EventID        string     `bun:"event_id,notnull"`
	RegistrationID string     `bun:"registration_id,notnull"`
	OwnerID        string     `bun:"owner_id"`
	EventType      string     `bun:"event_type,notnull"`
	URL            string     `bun:"url"`
	Payload        []byte     `bun:"payload"`
	Error          string     `bun:"error"`
	ResponseCode   int        `bun:"response_code"`
	Attempts       int        `bun:"attempts,notnull"`
	MaxAttempts    int        `bun:"max_attempts,notnull"`
	Backoff        string     `bun:"backoff,notnull"`
	InitialDelay   int64      `bun:"initial_delay_ns,notnull"`
	ReplayedAt     *time.Time `bun:"replayed_at"`
	FailedAt       time.Time  `bun:"failed_at,notnull"`
	CreatedAt      time.Time  `bun:"created_at,notnull"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull"`
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
		InitialDelay:   int64(e.InitialDelay),
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
		Payload:        json.RawMessage(m.Payload),
		Error:          m.Error,
		ResponseCode:   m.ResponseCode,
		Attempts:       m.Attempts,
		MaxAttempts:    m.MaxAttempts,
		Backoff:        registration.Backoff(m.Backoff),
		InitialDelay:   time.Duration(m.InitialDelay),
		ReplayedAt:     m.ReplayedAt,
		FailedAt:       m.FailedAt,
	}, nil
}

func encodeJSONSlice(v []string) (string, error) {
	if len(v) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode string slice: %w", err)
	}
	return string(raw), nil
}

func decodeJSONSlice(s string) ([]string, error) {
	if s == "" || s == "[]" {
		return nil, nil
	}
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("decode string slice: %w", err)
	}
	return v, nil
}

func encodeJSONMap(v map[string]string) (string, error) {
	if len(v) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode string map: %w", err)
	}
	return string(raw), nil
}

func decodeJSONMap(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	var v map[string]string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("decode string map: %w", err)
	}
	return v, nil
}
