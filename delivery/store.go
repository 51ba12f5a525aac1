package delivery

import (
	"context"
	"time"

	"github.com/hookline/hookline/id"
)

// ClaimLease is how long a dequeued delivery stays invisible to subsequent
// DequeueDue calls. Stores claim due deliveries by pushing NextRetryAt
// forward by this lease; the attempt's final update overwrites it, and a
// crashed worker's claim simply expires.
const ClaimLease = 2 * time.Minute

// Store is the delivery ledger: the append/update history of delivery
// attempts. Updates are last-writer-wins keyed strictly by delivery ID;
// deliveries are independent units of work and need no cross-record locking.
type Store interface {
	// CreateDelivery appends a pending delivery to the ledger.
	CreateDelivery(ctx context.Context, d *Delivery) error

	// CreateDeliveryBatch appends multiple deliveries atomically (fan-out).
	CreateDeliveryBatch(ctx context.Context, ds []*Delivery) error

	// UpdateDelivery overwrites a delivery's mutable fields by ID.
	UpdateDelivery(ctx context.Context, d *Delivery) error

	// GetDelivery returns a delivery by ID.
	GetDelivery(ctx context.Context, delID id.ID) (*Delivery, error)

	// DequeueDue claims non-terminal deliveries whose NextRetryAt ≤ now,
	// ordered soonest-first, applying ClaimLease to each claimed record.
	DequeueDue(ctx context.Context, now time.Time, limit int) ([]*Delivery, error)

	// ListByRegistration returns delivery history for a registration,
	// newest-first.
	ListByRegistration(ctx context.Context, regID id.ID, opts ListOpts) ([]*Delivery, error)

	// ListByEvent returns all deliveries fanned out from one event.
	ListByEvent(ctx context.Context, evtID id.ID) ([]*Delivery, error)

	// CountPending returns the number of non-terminal deliveries.
	CountPending(ctx context.Context) (int64, error)
}
