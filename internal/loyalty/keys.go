package loyalty

// Keys bundles every platform-side identifier the engine depends on: the
// custom-object coordinates of the conversion table, the customer custom type
// and field that hold the balance, the discount custom-field spellings, and
// the order state that triggers a reversal. It is passed explicitly into the
// components that need it instead of living in package-level constants, so a
// single process can serve projects with different conventions.
type Keys struct {
	// RateContainer and RateKey address the custom object holding the
	// currency-to-point conversion rates.
	RateContainer string
	RateKey       string

	// CustomerTypeKey is the key of the custom type that must be attached to
	// a customer before the balance field can be written.
	CustomerTypeKey string
	// BalanceField is the customer custom field holding available points.
	BalanceField string

	// RedemptionFlagFields lists the accepted spellings of the boolean
	// discount custom field marking a point redemption. The misspelled
	// variant is historical and must keep working.
	RedemptionFlagFields []string
	// CartRefFields lists the accepted spellings of the discount custom
	// field holding the cart id the redemption is scoped to.
	CartRefFields []string

	// CancelledStateKey is the order state key that classifies an
	// OrderStateChanged event as a cancellation.
	CancelledStateKey string
}

// DefaultKeys returns the conventional identifiers used by existing projects.
func DefaultKeys() Keys {
	return Keys{
		RateContainer:        "loyalty",
		RateKey:              "point-conversion-rates",
		CustomerTypeKey:      "loyalty-customer",
		BalanceField:         "availablePoints",
		RedemptionFlagFields: []string{"isPointRedemption", "isPointRedemtion"},
		CartRefFields:        []string{"referenceCart", "referenceCartId"},
		CancelledStateKey:    "cancelled",
	}
}
