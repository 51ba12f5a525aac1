// Package hookline provides a composable outbound webhook dispatcher for Go.
//
// Hookline is a library — not a service. Import it into your application to
// get owner-scoped webhook registrations, dynamic event type definitions,
// signed at-least-once delivery with per-registration retry policies, and a
// replayable dead letter queue.
//
// Key features:
//   - Registrations with per-endpoint retry policy, timeout, and rate limit
//   - Dynamic, persisted event type definitions with JSON Schema validation
//   - Composable store pattern with multiple backends (Bun/Postgres/SQLite, Redis, Mongo, Memory)
//   - HMAC-SHA256 signature on every delivery
//   - Exponential or linear backoff retries with a dead letter queue
//
// Quick start:
//
//	svc, err := hookline.New(
//	    hookline.WithStore(memoryStore),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	svc.RegisterEventType(ctx, catalog.Definition{
//	    Name:    "invoice.created",
//	    Version: "2025-01-01",
//	})
//
//	svc.TriggerEvent(ctx, "acct_123", "invoice.created",
//	    map[string]any{"invoice_id": "inv_01h..."})
package hookline
