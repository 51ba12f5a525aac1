package delivery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/observability"
	"github.com/hookline/hookline/ratelimit"
	"github.com/hookline/hookline/registration"
)

// EngineStore is the interface the engine needs for delivery operations.
type EngineStore interface {
	DequeueDue(ctx context.Context, now time.Time, limit int) ([]*Delivery, error)
	UpdateDelivery(ctx context.Context, d *Delivery) error
	GetRegistration(ctx context.Context, regID id.ID, ownerID string) (*registration.Registration, error)
}

// DLQPusher records terminally failed deliveries in the dead letter queue.
// reg may be nil when the owning registration no longer exists.
type DLQPusher interface {
	PushFailed(ctx context.Context, d *Delivery, reg *registration.Registration) error
}

// EngineConfig holds engine configuration.
type EngineConfig struct {
	Concurrency    int
	TickInterval   time.Duration
	BatchSize      int
	DefaultTimeout time.Duration
	MaxBackoff     time.Duration
	RetryWindow    time.Duration
	Metrics        *observability.Metrics
	Tracer         *observability.Tracer
}

// Engine owns all time-based and concurrent behavior: the retry loop that
// re-arms due deliveries, and the bounded worker pool that runs attempts.
type Engine struct {
	store   EngineStore
	sender  *Sender
	retrier *Retrier
	dlq     DLQPusher
	limiter *ratelimit.Limiter
	config  EngineConfig
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a delivery engine.
func NewEngine(store EngineStore, dlq DLQPusher, cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		sender:  NewSender(cfg.DefaultTimeout),
		retrier: NewRetrier(cfg.MaxBackoff, cfg.RetryWindow),
		dlq:     dlq,
		limiter: ratelimit.New(),
		config:  cfg,
		logger:  logger,
	}
}

// Start begins the retry loop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.retryLoop(ctx)
	}()
}

// Stop cancels the retry loop and waits for in-flight attempts to complete
// or hit their timeout.
func (e *Engine) Stop(_ context.Context) {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// retryLoop periodically claims due deliveries and dispatches them to a
// bounded pool of workers. A slow endpoint never blocks the tick: every
// eligible delivery runs as an independent goroutine behind the semaphore.
func (e *Engine) retryLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, e.config.Concurrency)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch, err := e.store.DequeueDue(ctx, time.Now().UTC(), e.config.BatchSize)
			if err != nil {
				e.logger.ErrorContext(ctx, "dequeue due deliveries failed", "error", err)
				continue
			}

			for _, d := range batch {
				select {
				case <-ctx.Done():
					return
				case sem <- struct{}{}:
				}

				e.wg.Add(1)
				go func(del *Delivery) {
					defer e.wg.Done()
					defer func() { <-sem }()
					e.Deliver(ctx, del)
				}(d)
			}
		}
	}
}

// Deliver runs one attempt for the delivery and writes the outcome back to
// the ledger. It never returns an error to the caller: attempt failures are
// visible only through the ledger, so a producer-triggered fan-out cannot
// be failed by a single bad endpoint.
func (e *Engine) Deliver(ctx context.Context, d *Delivery) {
	var span trace.Span
	if e.config.Tracer != nil {
		ctx, span = e.config.Tracer.StartAttemptSpan(ctx, d.ID.String(), d.EventType, d.RegistrationID.String())
	}

	reg, err := e.store.GetRegistration(ctx, d.RegistrationID, "")
	if err != nil {
		if !errors.Is(err, registration.ErrNotFound) {
			// Transient store error. Leave the delivery untouched so the
			// claim lease expires and the next due-scan picks it up again.
			e.logger.ErrorContext(ctx, "get registration failed",
				"delivery_id", d.ID, "error", err)
			if span != nil {
				span.End()
			}
			return
		}

		// The registration was deleted mid-flight. The delivery is kept as
		// immutable history but can never be attempted again.
		now := time.Now().UTC()
		d.Status = StatusFailed
		d.ErrorMessage = "registration no longer exists"
		d.NextRetryAt = nil
		d.CompletedAt = &now
		if e.config.Metrics != nil {
			e.config.Metrics.PendingDeliveries.Dec()
		}
		e.finish(ctx, d, span)
		return
	}

	now := time.Now().UTC()
	if e.retrier.Expired(d, now) {
		e.exhaust(ctx, d, reg, now)
		e.finish(ctx, d, span)
		return
	}

	if reg.RateLimit > 0 {
		if waitErr := e.limiter.Wait(ctx, reg.ID.String(), reg.RateLimit); waitErr != nil {
			// Shutdown while queued behind the limiter; leave the delivery due.
			if span != nil {
				span.End()
			}
			return
		}
	}

	attemptAt := time.Now().UTC()
	d.Attempts++
	d.LastAttemptAt = &attemptAt

	result := e.sender.Send(ctx, reg, d)

	d.ResponseCode = result.StatusCode
	d.ResponseBody = result.Response
	d.ErrorMessage = result.Error
	d.LastLatencyMs = result.LatencyMs

	latencySeconds := float64(result.LatencyMs) / 1000.0

	switch e.retrier.Decide(result, d, attemptAt) {
	case Delivered:
		completedAt := time.Now().UTC()
		d.Status = StatusSuccess
		d.NextRetryAt = nil
		d.CompletedAt = &completedAt
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("success", latencySeconds)
			e.config.Metrics.PendingDeliveries.Dec()
		}
		e.logger.DebugContext(ctx, "delivered",
			"delivery_id", d.ID, "status", result.StatusCode, "latency_ms", result.LatencyMs)

	case Retry:
		retryAt := attemptAt.Add(e.retrier.NextDelay(d))
		d.Status = StatusRetrying
		d.NextRetryAt = &retryAt
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("retrying", latencySeconds)
		}
		e.logger.DebugContext(ctx, "retry scheduled",
			"delivery_id", d.ID, "attempt", d.Attempts, "next_retry_at", retryAt)

	case Exhausted:
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("failed", latencySeconds)
		}
		e.exhaust(ctx, d, reg, time.Now().UTC())
	}

	e.finish(ctx, d, span)
}

// exhaust marks the delivery terminally failed and pushes it to the DLQ.
func (e *Engine) exhaust(ctx context.Context, d *Delivery, reg *registration.Registration, now time.Time) {
	d.Status = StatusFailed
	d.NextRetryAt = nil
	d.CompletedAt = &now

	if e.dlq != nil {
		if dlqErr := e.dlq.PushFailed(ctx, d, reg); dlqErr != nil {
			e.logger.ErrorContext(ctx, "push to DLQ failed",
				"delivery_id", d.ID, "error", dlqErr)
		}
	}
	if e.config.Metrics != nil {
		e.config.Metrics.PendingDeliveries.Dec()
		e.config.Metrics.DLQSize.Inc()
	}
	e.logger.WarnContext(ctx, "delivery failed permanently",
		"delivery_id", d.ID, "attempts", d.Attempts, "status", d.ResponseCode, "error", d.ErrorMessage)
}

// finish ends the span and persists the delivery. Updates are
// last-writer-wins keyed by delivery ID.
func (e *Engine) finish(ctx context.Context, d *Delivery, span trace.Span) {
	if span != nil {
		e.config.Tracer.EndAttemptSpan(span, d.ResponseCode, d.LastLatencyMs, d.ErrorMessage)
	}

	if updateErr := e.store.UpdateDelivery(ctx, d); updateErr != nil {
		e.logger.ErrorContext(ctx, "update delivery failed",
			"delivery_id", d.ID, "error", updateErr)
	}
}
