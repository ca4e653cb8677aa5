package loyalty

import (
	"context"

	"github.com/go-faster/errors"
)

// Sentinel errors shared across the port boundary.
var (
	// ErrNotFound is returned by readers when the requested entity does not
	// exist on the platform.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned by CustomerWriter when the supplied
	// version token has gone stale between read and write.
	ErrVersionConflict = errors.New("customer version conflict")
	// ErrConcurrencyExhausted is returned by the processor when the balance
	// write kept losing the optimistic-concurrency race. The event is safe
	// to redeliver.
	ErrConcurrencyExhausted = errors.New("balance write retries exhausted")
)

// OrderReader fetches the order projection the engine works on.
type OrderReader interface {
	OrderByID(ctx context.Context, id string) (*OrderSnapshot, error)
}

// PaymentReader fetches the planned amount of a payment.
type PaymentReader interface {
	PaymentAmount(ctx context.Context, id string) (Money, error)
}

// DiscountReader fetches the raw custom fields of a cart-level discount.
// Implementations return ErrNotFound for ids with no addressable entity.
type DiscountReader interface {
	DiscountCustomFields(ctx context.Context, id string) (map[string]any, error)
}

// Customer is the loyalty-relevant projection of a customer entity: the
// optimistic-concurrency version token, the key of the attached custom type
// (empty when none or unresolvable), and the raw custom field values.
type Customer struct {
	ID            string
	Version       int64
	CustomTypeKey string
	Fields        map[string]any
}

// CustomerUpdateAction is one entry of the ordered action list sent with a
// customer update. The two variants mirror the platform's update actions.
type CustomerUpdateAction interface {
	isCustomerUpdateAction()
}

// SetCustomTypeAction attaches the loyalty custom type to the customer,
// replacing whatever type was attached before.
type SetCustomTypeAction struct {
	TypeKey string
}

func (SetCustomTypeAction) isCustomerUpdateAction() {}

// SetCustomFieldAction sets a single custom field on the customer.
type SetCustomFieldAction struct {
	Name  string
	Value int64
}

func (SetCustomFieldAction) isCustomerUpdateAction() {}

// CustomerReader fetches the customer projection, including the version
// token required for a conditional write.
type CustomerReader interface {
	CustomerByID(ctx context.Context, id string) (*Customer, error)
}

// CustomerWriter applies an ordered list of update actions to a customer,
// conditioned on the version token. A stale version yields
// ErrVersionConflict; the caller re-reads and retries.
type CustomerWriter interface {
	UpdateCustomer(ctx context.Context, id string, version int64, actions []CustomerUpdateAction) error
}

// TableLoader reads the conversion table from external configuration
// storage. Implementations load fresh on every call; the engine never caches
// rates across events.
type TableLoader interface {
	Load(ctx context.Context) (Table, error)
}
