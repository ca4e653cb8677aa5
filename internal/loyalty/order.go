package loyalty

// Money is a currency amount in minor units.
type Money struct {
	CentAmount   int64
	CurrencyCode string
}

// Discount reference type ids as exposed by the platform.
const (
	RefTypeCartDiscount   = "cart-discount"
	RefTypeDirectDiscount = "direct-discount"
)

// DiscountRef is a typed reference to a discount entity.
type DiscountRef struct {
	TypeID string
	ID     string
}

// IncludedDiscount is one portion of the order's discount-on-total breakdown:
// the referenced discount and the amount it discounted from the order total.
type IncludedDiscount struct {
	Ref    DiscountRef
	Amount Money
}

// Discount value type ids. Only absolute values carry a deductible amount;
// the conversion table has no meaning for a percentage.
const (
	ValueTypeAbsolute = "absolute"
)

// DiscountValue is the value of a direct discount. Absolute values carry one
// Money entry per currency.
type DiscountValue struct {
	Type  string
	Money []Money
}

// DirectDiscount is a discount applied directly to the order, outside any
// cart-discount entity. Some direct discounts have no addressable entity
// behind their id.
type DirectDiscount struct {
	ID    string
	Value DiscountValue
}

// PaymentRef is a reference to a payment attached to the order.
type PaymentRef struct {
	ID string
}

// OrderSnapshot is the read-only projection of an order at event-processing
// time. It is fetched fresh per event and never cached; the platform remains
// the system of record.
type OrderSnapshot struct {
	ID                string
	CustomerID        string // empty for anonymous orders
	CartID            string
	Payments          []PaymentRef
	DirectDiscounts   []DirectDiscount
	IncludedDiscounts []IncludedDiscount
}

// DiscountDescriptor is the canonical view of a cart-level discount's
// loyalty-relevant custom fields, after synonym field spellings have been
// collapsed (see DescriptorFromFields).
type DiscountDescriptor struct {
	ID              string
	PointRedemption bool
	CartID          string
}

// qualifies reports whether the discount is a point redemption scoped to the
// given cart. Both cart ids must be present and equal: a redemption flag from
// a different cart's discount must never leak onto this order.
func (d DiscountDescriptor) qualifies(cartID string) bool {
	return d.PointRedemption && d.CartID != "" && cartID != "" && d.CartID == cartID
}

// DescriptorFromFields normalizes a discount's raw custom fields into a
// DiscountDescriptor, accepting every field spelling listed in keys. The
// first spelling carrying a value of the right type wins.
func DescriptorFromFields(id string, fields map[string]any, keys Keys) DiscountDescriptor {
	d := DiscountDescriptor{ID: id}
	for _, name := range keys.RedemptionFlagFields {
		if v, ok := fields[name].(bool); ok {
			d.PointRedemption = v
			break
		}
	}
	for _, name := range keys.CartRefFields {
		if id := cartIDFromField(fields[name]); id != "" {
			d.CartID = id
			break
		}
	}
	return d
}

// cartIDFromField extracts a cart id from a custom field value. The field is
// stored either as a plain id string or as a reference object with an "id"
// member, depending on how the discount was created.
func cartIDFromField(v any) string {
	switch f := v.(type) {
	case string:
		return f
	case map[string]any:
		if id, ok := f["id"].(string); ok {
			return id
		}
	}
	return ""
}
