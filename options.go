package hookline

import (
	"log/slog"
	"time"

	"github.com/hookline/hookline/catalog"
	"github.com/hookline/hookline/delivery"
	"github.com/hookline/hookline/dlq"
	"github.com/hookline/hookline/observability"
	"github.com/hookline/hookline/registration"
	"github.com/hookline/hookline/store"
)

// Service is the root webhook dispatcher.
type Service struct {
	config          Config
	store           store.Store
	catalog         *catalog.Catalog
	validator       *catalog.Validator
	registrationSvc *registration.Service
	engine          *delivery.Engine
	dlqSvc          *dlq.Service
	metrics         *observability.Metrics
	tracer          *observability.Tracer
	logger          *slog.Logger
}

// Option configures a Service instance.
type Option func(*Service) error

// New creates a new Service with the given options.
func New(opts ...Option) (*Service, error) {
	s := &Service{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.store == nil {
		return nil, ErrNoStore
	}
	// A non-positive pool size would leave the worker semaphores unbuffered
	// and block sends forever; clamp to a single worker.
	if s.config.Concurrency < 1 {
		s.config.Concurrency = 1
	}
	if s.config.FanoutConcurrency < 1 {
		s.config.FanoutConcurrency = 1
	}
	s.wireServices()
	return s, nil
}

// WithStore sets the persistence backend for the Service instance.
func WithStore(st store.Store) Option {
	return func(s *Service) error {
		s.store = st
		return nil
	}
}

// WithLogger sets the structured logger for the Service instance.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		s.logger = logger
		return nil
	}
}

// WithConcurrency sets the number of retry-loop delivery worker goroutines.
func WithConcurrency(n int) Option {
	return func(s *Service) error {
		s.config.Concurrency = n
		return nil
	}
}

// WithFanoutConcurrency bounds the concurrent first attempts of a single
// trigger fan-out.
func WithFanoutConcurrency(n int) Option {
	return func(s *Service) error {
		s.config.FanoutConcurrency = n
		return nil
	}
}

// WithTickInterval sets how often the retry loop scans for due deliveries.
func WithTickInterval(d time.Duration) Option {
	return func(s *Service) error {
		s.config.TickInterval = d
		return nil
	}
}

// WithBatchSize sets the maximum number of deliveries claimed per tick.
func WithBatchSize(n int) Option {
	return func(s *Service) error {
		s.config.BatchSize = n
		return nil
	}
}

// WithDefaultTimeout sets the per-attempt HTTP timeout applied when a
// registration does not set its own.
func WithDefaultTimeout(d time.Duration) Option {
	return func(s *Service) error {
		s.config.DefaultTimeout = d
		return nil
	}
}

// WithDefaultRetryPolicy sets the policy applied to registrations created
// without one.
func WithDefaultRetryPolicy(p registration.RetryPolicy) Option {
	return func(s *Service) error {
		s.config.DefaultRetryPolicy = p
		return nil
	}
}

// WithRetryWindow sets how long after creation a delivery may still be retried.
func WithRetryWindow(d time.Duration) Option {
	return func(s *Service) error {
		s.config.RetryWindow = d
		return nil
	}
}

// WithMaxBackoff caps the exponential backoff delay between attempts.
func WithMaxBackoff(d time.Duration) Option {
	return func(s *Service) error {
		s.config.MaxBackoff = d
		return nil
	}
}

// WithShutdownTimeout sets the maximum time to wait for in-flight deliveries
// on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Service) error {
		s.config.ShutdownTimeout = d
		return nil
	}
}

// WithCacheTTL sets the TTL for the catalog's in-memory event type cache.
func WithCacheTTL(d time.Duration) Option {
	return func(s *Service) error {
		s.config.CacheTTL = d
		return nil
	}
}

// WithMetrics wires Prometheus metric instruments into the dispatcher.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) error {
		s.metrics = m
		return nil
	}
}

// WithTracer wires OpenTelemetry tracing into the delivery engine.
func WithTracer(t *observability.Tracer) Option {
	return func(s *Service) error {
		s.tracer = t
		return nil
	}
}
