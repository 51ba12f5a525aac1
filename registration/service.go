package registration

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/internal/entity"
	"github.com/hookline/hookline/signature"
)

// Defaults are applied to registrations created without explicit values.
type Defaults struct {
	RetryPolicy RetryPolicy
	Timeout     time.Duration
}

// Service provides owner-scoped registration management.
type Service struct {
	store    Store
	defaults Defaults
	logger   *slog.Logger
}

// NewService creates a new registration service.
func NewService(store Store, defaults Defaults, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		defaults: defaults,
		logger:   logger,
	}
}

// Create registers a new webhook endpoint. The returned registration is the
// only place the generated signing secret is ever exposed.
func (svc *Service) Create(ctx context.Context, in Input) (*Registration, error) {
	if in.OwnerID == "" {
		return nil, &ValidationError{Field: "owner_id", Message: "required"}
	}

	if err := validateURL(in.URL); err != nil {
		return nil, err
	}

	if len(in.Events) == 0 {
		return nil, &ValidationError{Field: "events", Message: "at least one event type required"}
	}

	policy := svc.defaults.RetryPolicy
	if in.RetryPolicy != nil {
		policy = *in.RetryPolicy
	}
	if !policy.Valid() {
		return nil, &ValidationError{Field: "retry_policy", Message: "max_attempts must be ≥ 1, initial_delay positive, backoff linear or exponential"}
	}

	timeout := svc.defaults.Timeout
	if in.Timeout > 0 {
		timeout = in.Timeout
	}

	r := &Registration{
		Entity:      entity.New(),
		ID:          id.NewRegistrationID(),
		OwnerID:     in.OwnerID,
		URL:         in.URL,
		Description: in.Description,
		Secret:      signature.GenerateSecret(),
		Events:      in.Events,
		Headers:     in.Headers,
		Active:      true,
		RetryPolicy: policy,
		Timeout:     timeout,
		RateLimit:   in.RateLimit,
		Metadata:    in.Metadata,
	}

	if err := svc.store.CreateRegistration(ctx, r); err != nil {
		return nil, err
	}

	return r, nil
}

// Get returns a registration by ID, scoped to the owner. The secret is
// redacted; a registration belonging to another owner is indistinguishable
// from a missing one.
func (svc *Service) Get(ctx context.Context, regID id.ID, ownerID string) (*Registration, error) {
	r, err := svc.store.GetRegistration(ctx, regID, ownerID)
	if err != nil {
		return nil, err
	}
	return r.Redacted(), nil
}

// List returns the owner's registrations, secrets redacted.
func (svc *Service) List(ctx context.Context, ownerID string, opts ListOpts) ([]*Registration, error) {
	regs, err := svc.store.ListRegistrations(ctx, ownerID, opts)
	if err != nil {
		return nil, err
	}
	out := make([]*Registration, len(regs))
	for i, r := range regs {
		out[i] = r.Redacted()
	}
	return out, nil
}

// ListActiveByEvent returns the owner's active registrations subscribed to
// the given event type, secrets redacted.
func (svc *Service) ListActiveByEvent(ctx context.Context, ownerID, eventType string) ([]*Registration, error) {
	regs, err := svc.store.Resolve(ctx, ownerID, eventType)
	if err != nil {
		return nil, err
	}
	out := make([]*Registration, len(regs))
	for i, r := range regs {
		out[i] = r.Redacted()
	}
	return out, nil
}

// Update applies a partial update to the mutable fields. The secret is not
// reachable through this path.
func (svc *Service) Update(ctx context.Context, regID id.ID, ownerID string, upd Update) (*Registration, error) {
	r, err := svc.store.GetRegistration(ctx, regID, ownerID)
	if err != nil {
		return nil, err
	}

	if upd.URL != nil {
		if err := validateURL(*upd.URL); err != nil {
			return nil, err
		}
		r.URL = *upd.URL
	}
	if upd.Description != nil {
		r.Description = *upd.Description
	}
	if upd.Events != nil {
		if len(upd.Events) == 0 {
			return nil, &ValidationError{Field: "events", Message: "at least one event type required"}
		}
		r.Events = upd.Events
	}
	if upd.Headers != nil {
		r.Headers = upd.Headers
	}
	if upd.Active != nil {
		r.Active = *upd.Active
	}
	if upd.RetryPolicy != nil {
		if !upd.RetryPolicy.Valid() {
			return nil, &ValidationError{Field: "retry_policy", Message: "max_attempts must be ≥ 1, initial_delay positive, backoff linear or exponential"}
		}
		r.RetryPolicy = *upd.RetryPolicy
	}
	if upd.Timeout != nil {
		if *upd.Timeout <= 0 {
			return nil, &ValidationError{Field: "timeout", Message: "must be positive"}
		}
		r.Timeout = *upd.Timeout
	}
	if upd.RateLimit != nil {
		if *upd.RateLimit < 0 {
			return nil, &ValidationError{Field: "rate_limit", Message: "must be ≥ 0"}
		}
		r.RateLimit = *upd.RateLimit
	}
	if upd.Metadata != nil {
		r.Metadata = upd.Metadata
	}

	if err := svc.store.UpdateRegistration(ctx, r); err != nil {
		return nil, err
	}

	return r.Redacted(), nil
}

// Delete removes a registration. Delivery history is kept.
func (svc *Service) Delete(ctx context.Context, regID id.ID, ownerID string) error {
	r, err := svc.store.GetRegistration(ctx, regID, ownerID)
	if err != nil {
		return err
	}
	return svc.store.DeleteRegistration(ctx, r.ID)
}

// SetActive enables or disables a registration.
func (svc *Service) SetActive(ctx context.Context, regID id.ID, ownerID string, active bool) error {
	r, err := svc.store.GetRegistration(ctx, regID, ownerID)
	if err != nil {
		return err
	}
	return svc.store.SetActive(ctx, r.ID, active)
}

// RotateSecret generates a new signing secret for a registration and returns
// it. As with Create, this response is the only exposure of the new secret.
func (svc *Service) RotateSecret(ctx context.Context, regID id.ID, ownerID string) (string, error) {
	r, err := svc.store.GetRegistration(ctx, regID, ownerID)
	if err != nil {
		return "", err
	}

	r.Secret = signature.GenerateSecret()
	if err := svc.store.UpdateRegistration(ctx, r); err != nil {
		return "", err
	}

	return r.Secret, nil
}

// validateURL requires an absolute http(s) URI.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &ValidationError{Field: "url", Message: "must be an absolute http(s) URL"}
	}
	return nil
}

// ValidationError indicates invalid registration input. It is returned
// synchronously; invalid registrations are never queued.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "registration validation: " + e.Field + ": " + e.Message
}
