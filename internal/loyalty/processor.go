package loyalty

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// EventType tags an inbound order-lifecycle notification.
type EventType string

const (
	EventOrderCreated      EventType = "OrderCreated"
	EventOrderStateChanged EventType = "OrderStateChanged"
)

// Event is a decoded order-lifecycle notification. Decoding and transport
// live outside the engine; by the time an Event reaches Process it is known
// to carry an order id.
type Event struct {
	Type EventType
	// OrderID identifies the order the event is about.
	OrderID string
	// NewStateKey is the key of the state the order transitioned to. Only
	// meaningful for EventOrderStateChanged.
	NewStateKey string
}

// Key identifies the event for duplicate suppression: one logical point
// application per (order, event type).
func (e Event) Key() string {
	return e.OrderID + "/" + string(e.Type)
}

// Status classifies the outcome of processing one event.
type Status string

const (
	// StatusApplied means the delta was computed and the balance written
	// (or found already correct).
	StatusApplied Status = "applied"
	// StatusSkipped means a gate short-circuited processing as a no-op.
	StatusSkipped Status = "skipped"
	// StatusFailed means processing hit an error; the event is safe to
	// redeliver.
	StatusFailed Status = "failed"
)

// Outcome reports what processing an event did, for diagnostics and for
// transport-level duplicate suppression.
type Outcome struct {
	Status     Status
	Reason     string
	Delta      Delta
	NewBalance int64
}

func skipped(reason string) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason}
}

// DefaultWriteAttempts bounds the optimistic-concurrency retry loop on the
// balance write.
const DefaultWriteAttempts = 5

// Processor drives one event through the pipeline: classify, load rates,
// compute the point delta, reconcile and persist the balance. It holds no
// state across invocations; every external read happens fresh per event.
type Processor struct {
	orders    OrderReader
	payments  PaymentReader
	discounts DiscountReader
	customers interface {
		CustomerReader
		CustomerWriter
	}
	tables        TableLoader
	keys          Keys
	writeAttempts int
}

// ProcessorConfig collects the processor's dependencies.
type ProcessorConfig struct {
	Orders    OrderReader
	Payments  PaymentReader
	Discounts DiscountReader
	Customers interface {
		CustomerReader
		CustomerWriter
	}
	Tables TableLoader
	Keys   Keys
	// WriteAttempts bounds the balance-write retry loop. Zero means
	// DefaultWriteAttempts.
	WriteAttempts int
}

// NewProcessor creates a Processor from its dependencies.
func NewProcessor(cfg ProcessorConfig) *Processor {
	attempts := cfg.WriteAttempts
	if attempts <= 0 {
		attempts = DefaultWriteAttempts
	}
	return &Processor{
		orders:        cfg.Orders,
		payments:      cfg.Payments,
		discounts:     cfg.Discounts,
		customers:     cfg.Customers,
		tables:        cfg.Tables,
		keys:          cfg.Keys,
		writeAttempts: attempts,
	}
}

// classify maps the event type (and, for state changes, the new state key)
// to a processing direction. The second return is false when the event is
// not loyalty-relevant at all.
func (p *Processor) classify(ev Event) (Direction, bool) {
	switch ev.Type {
	case EventOrderCreated:
		return DirectionForward, true
	case EventOrderStateChanged:
		if ev.NewStateKey == p.keys.CancelledStateKey {
			return DirectionReversal, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// Process handles one order-lifecycle event end to end. Gates short-circuit
// with a Skipped outcome and a nil error; genuine failures (platform reads,
// exhausted write retries) return a Failed outcome alongside the error so
// the caller can have the event redelivered.
func (p *Processor) Process(ctx context.Context, ev Event) (Outcome, error) {
	lg := zctx.From(ctx).With(
		zap.String("order_id", ev.OrderID),
		zap.String("event_type", string(ev.Type)),
	)
	ctx = zctx.Base(ctx, lg)

	dir, relevant := p.classify(ev)
	if !relevant {
		lg.Debug("Event not loyalty-relevant")
		return skipped("event type not loyalty-relevant"), nil
	}

	order, err := p.orders.OrderByID(ctx, ev.OrderID)
	if err != nil {
		return Outcome{Status: StatusFailed}, errors.Wrapf(err, "fetch order %s", ev.OrderID)
	}
	if order.CustomerID == "" {
		lg.Info("Anonymous order, no loyalty identity")
		return skipped("order has no customer"), nil
	}

	table, err := p.tables.Load(ctx)
	if err != nil {
		return Outcome{Status: StatusFailed}, errors.Wrap(err, "load conversion table")
	}
	if table.Empty() {
		lg.Warn("Conversion table empty or malformed, skipping event")
		return skipped("empty conversion table"), nil
	}

	delta := Delta{
		Earned:   p.earnedPoints(ctx, order, table),
		Deducted: p.redeemedPoints(ctx, order, table),
	}

	newBalance, err := p.applyDelta(ctx, order.CustomerID, delta, dir)
	if err != nil {
		return Outcome{Status: StatusFailed, Delta: delta}, err
	}

	lg.Info("Balance reconciled",
		zap.Int64("earned", delta.Earned),
		zap.Int64("deducted", delta.Deducted),
		zap.Int64("new_balance", newBalance),
	)
	return Outcome{Status: StatusApplied, Delta: delta, NewBalance: newBalance}, nil
}

// applyDelta runs the bounded optimistic-concurrency loop: read the customer,
// reconcile against its current balance and version, write, and on a version
// conflict re-read and try again. The delta itself does not depend on the
// customer, so only the reconciliation is recomputed per attempt.
func (p *Processor) applyDelta(ctx context.Context, customerID string, delta Delta, dir Direction) (int64, error) {
	lg := zctx.From(ctx)

	for attempt := 1; attempt <= p.writeAttempts; attempt++ {
		customer, err := p.customers.CustomerByID(ctx, customerID)
		if err != nil {
			return 0, errors.Wrapf(err, "fetch customer %s", customerID)
		}

		newBalance, actions := reconcile(customer, delta, dir, p.keys)
		if len(actions) == 0 {
			return newBalance, nil
		}

		err = p.customers.UpdateCustomer(ctx, customer.ID, customer.Version, actions)
		if err == nil {
			return newBalance, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return 0, errors.Wrapf(err, "update customer %s", customerID)
		}

		lg.Warn("Balance write lost version race, retrying with fresh read",
			zap.String("customer_id", customerID),
			zap.Int("attempt", attempt),
		)
	}
	return 0, errors.Wrapf(ErrConcurrencyExhausted, "customer %s after %d attempts", customerID, p.writeAttempts)
}
