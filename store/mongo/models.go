package mongo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hookline/hookline/catalog"
	"github.com/hookline/hookline/delivery"
	"github.com/hookline/hookline/dlq"
	"github.com/hookline/hookline/event"
	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/internal/entity"
	"github.com/hookline/hookline/registration"
)

// eventTypeModel is the BSON document for a catalog event type. The TypeID
// string doubles as the document _id.
type eventTypeModel struct {
	ID            string            `bson:"_id"`
	Name          string            `bson:"name"`
	Description   string            `bson:"description,omitempty"`
	GroupName     string            `bson:"group_name,omitempty"`
	Schema        []byte            `bson:"schema,omitempty"`
	SchemaVersion string            `bson:"schema_version,omitempty"`
	Version       string            `bson:"version,omitempty"`
	Example       []byte            `bson:"example,omitempty"`
	IsDeprecated  bool              `bson:"is_deprecated"`
	DeprecatedAt  *time.Time        `bson:"deprecated_at,omitempty"`
	Metadata      map[string]string `bson:"metadata,omitempty"`
	CreatedAt     time.Time         `bson:"created_at"`
	UpdatedAt     time.Time         `bson:"updated_at"`
}

func toEventTypeModel(et *catalog.EventType) *eventTypeModel {
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
		Metadata:      et.Metadata,
		CreatedAt:     et.CreatedAt,
		UpdatedAt:     et.UpdatedAt,
	}
}

func fromEventTypeModel(m *eventTypeModel) (*catalog.EventType, error) {
	etID, err := id.ParseEventTypeID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event type ID %q: %w", m.ID, err)
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
		Metadata:     m.Metadata,
	}, nil
}

type registrationModel struct {
	ID           string            `bson:"_id"`
	OwnerID      string            `bson:"owner_id"`
	URL          string            `bson:"url"`
	Description  string            `bson:"description,omitempty"`
	Secret       string            `bson:"secret"`
	Events       []string          `bson:"events"`
	Headers      map[string]string `bson:"headers,omitempty"`
	Active       bool              `bson:"active"`
	MaxAttempts  int               `bson:"max_attempts"`
	Backoff      string            `bson:"backoff"`
	InitialDelay int64             `bson:"initial_delay_ns"`
	Timeout      int64             `bson:"timeout_ns"`
	RateLimit    int               `bson:"rate_limit,omitempty"`
	Metadata     map[string]string `bson:"metadata,omitempty"`
	CreatedAt    time.Time         `bson:"created_at"`
	UpdatedAt    time.Time         `bson:"updated_at"`
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
		InitialDelay: int64(r.RetryPolicy.InitialDelay),
		Timeout:      int64(r.Timeout),
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
			InitialDelay: time.Duration(m.InitialDelay),
		},
		Timeout:   time.Duration(m.Timeout),
		RateLimit: m.RateLimit,
		Metadata:  m.Metadata,
	}, nil
}

type eventModel struct {
	ID             string    `bson:"_id"`
	Type           string    `bson:"type"`
	OwnerID        string    `bson:"owner_id"`
	Data           []byte    `bson:"data,omitempty"`
	IdempotencyKey string    `bson:"idempotency_key,omitempty"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
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
	ID             string     `bson:"_id"`
	RegistrationID string     `bson:"registration_id"`
	EventID        string     `bson:"event_id"`
	EventType      string     `bson:"event_type"`
	Payload        []byte     `bson:"payload,omitempty"`
	Status         string     `bson:"status"`
	Attempts       int        `bson:"attempts"`
	MaxAttempts    int        `bson:"max_attempts"`
	Backoff        string     `bson:"backoff"`
	InitialDelay   int64      `bson:"initial_delay_ns"`
	LastAttemptAt  *time.Time `bson:"last_attempt_at,omitempty"`
	NextRetryAt    *time.Time `bson:"next_retry_at,omitempty"`
	ResponseCode   int        `bson:"response_code,omitempty"`
	ResponseBody   string     `bson:"response_body,omitempty"`
	ErrorMessage   string     `bson:"error_message,omitempty"`
	LastLatencyMs  int        `bson:"last_latency_ms,omitempty"`
	CompletedAt    *time.Time `bson:"completed_at,omitempty"`
	CreatedAt      time.Time  `bson:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at"`
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
	ID             string     `bson:"_id"`
	DeliveryID     string     `bson:"delivery_id"`
	EventID        string     `bson:"event_id"`
	RegistrationID string     `bson:"registration_id"`
	OwnerID        string     `bson:"owner_id,omitempty"`
	EventType      string     `bson:"event_type"`
	URL            string     `bson:"url,omitempty"`
	Payload        []byte     `bson:"payload,omitempty"`
	Error          string     `bson:"error,omitempty"`
	ResponseCode   int        `bson:"response_code,omitempty"`
	Attempts       int        `bson:"attempts"`
	MaxAttempts    int        `bson:"max_attempts"`
	Backoff        string     `bson:"backoff"`
	InitialDelay   int64      `bson:"initial_delay_ns"`
	ReplayedAt     *time.Time `bson:"replayed_at,omitempty"`
	FailedAt       time.Time  `bson:"failed_at"`
	CreatedAt      time.Time  `bson:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at"`
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
