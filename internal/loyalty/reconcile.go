package loyalty

import "math"

// Delta is the computed point change for one event. The net effect on the
// balance is Earned - Deducted for a forward event, inverted for a reversal.
type Delta struct {
	Earned   int64
	Deducted int64
}

// Direction tells the reconciler whether to apply or undo a delta.
type Direction int

const (
	// DirectionForward applies the delta: an order was created.
	DirectionForward Direction = iota
	// DirectionReversal undoes a prior forward application: the order was
	// cancelled.
	DirectionReversal
)

// availablePoints reads the customer's current balance from its custom
// fields. Absent or non-numeric values default to 0; fractional stored
// values are floored, never rounded or rejected. JSON decoding delivers
// numbers as float64, but integer types are accepted for direct callers.
func availablePoints(c *Customer, keys Keys) int64 {
	switch v := c.Fields[keys.BalanceField].(type) {
	case float64:
		return int64(math.Floor(v))
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

// reconcile combines the customer's current balance with the delta and
// produces the new balance plus the update actions required to persist it.
//
// The zero floor is a hard invariant: the balance is never represented as
// negative, even when the algebra would produce one (a redemption larger
// than everything earned, or a reversal whose forward application never
// landed). No actions are emitted when the write would be a no-op.
func reconcile(c *Customer, d Delta, dir Direction, keys Keys) (int64, []CustomerUpdateAction) {
	current := availablePoints(c, keys)

	var next int64
	switch dir {
	case DirectionReversal:
		next = current - d.Earned + d.Deducted
	default:
		next = current + d.Earned - d.Deducted
	}
	if next < 0 {
		next = 0
	}

	typeAttached := c.CustomTypeKey == keys.CustomerTypeKey
	_, fieldPresent := c.Fields[keys.BalanceField]
	if typeAttached && fieldPresent && next == current {
		return next, nil
	}

	var actions []CustomerUpdateAction
	if !typeAttached {
		actions = append(actions, SetCustomTypeAction{TypeKey: keys.CustomerTypeKey})
	}
	actions = append(actions, SetCustomFieldAction{Name: keys.BalanceField, Value: next})
	return next, actions
}
