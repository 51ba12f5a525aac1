package hookline

import (
	"time"

	"github.com/hookline/hookline/registration"
)

// Config holds the configuration for a Service instance.
type Config struct {
	// Concurrency is the number of retry-loop delivery worker goroutines.
	Concurrency int

	// FanoutConcurrency bounds the concurrent first attempts of a single
	// TriggerEvent fan-out.
	FanoutConcurrency int

	// TickInterval is how often the retry loop scans the ledger for due
	// deliveries.
	TickInterval time.Duration

	// BatchSize is the maximum number of deliveries claimed per tick.
	BatchSize int

	// DefaultTimeout is the per-attempt HTTP timeout applied when a
	// registration does not set its own.
	DefaultTimeout time.Duration

	// DefaultRetryPolicy is applied to registrations created without a policy.
	DefaultRetryPolicy registration.RetryPolicy

	// RetryWindow is how long after creation a delivery may still be retried.
	// Deliveries older than this fail permanently on their next due scan.
	RetryWindow time.Duration

	// MaxBackoff caps the exponential backoff delay between attempts.
	MaxBackoff time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight deliveries on shutdown.
	ShutdownTimeout time.Duration

	// CacheTTL is the TTL for the catalog's in-memory event type cache.
	// Zero means cached entries never expire.
	CacheTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       10,
		FanoutConcurrency: 10,
		TickInterval:      30 * time.Second,
		BatchSize:         50,
		DefaultTimeout:    30 * time.Second,
		DefaultRetryPolicy: registration.RetryPolicy{
			MaxAttempts:  3,
			Backoff:      registration.BackoffExponential,
			InitialDelay: 1 * time.Second,
		},
		RetryWindow:     24 * time.Hour,
		MaxBackoff:      60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		CacheTTL:        30 * time.Second,
	}
}
