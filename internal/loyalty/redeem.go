package loyalty

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// discountSource is one candidate redemption found through either discovery
// path, carrying the discount id to resolve and the amounts to convert if it
// qualifies.
type discountSource struct {
	id      string
	amounts []Money
}

// redeemedPoints computes the points consumed by redemption discounts on the
// order. Two discovery paths exist because the platform exposes discount
// accounting differently depending on API version: the included-discounts
// breakdown of the order total (primary) and the order's direct discounts
// (fallback). Exactly one path contributes per call; the fallback only
// substitutes when the primary yields no candidates, never supplements it.
// Double-counting one redemption seen through both representations would
// otherwise be possible.
func (p *Processor) redeemedPoints(ctx context.Context, order *OrderSnapshot, table Table) int64 {
	sources := includedSources(order)
	if len(order.IncludedDiscounts) == 0 {
		sources = directSources(order)
	}

	lg := zctx.From(ctx)

	var total int64
	for _, src := range sources {
		fields, err := p.discounts.DiscountCustomFields(ctx, src.id)
		if err != nil {
			// Unresolvable discounts contribute nothing; they must not block
			// unrelated redemptions from being counted.
			lg.Debug("Discount unresolvable, contributes no deduction",
				zap.String("discount_id", src.id),
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
			continue
		}
		desc := DescriptorFromFields(src.id, fields, p.keys)
		if !desc.qualifies(order.CartID) {
			continue
		}
		for _, m := range src.amounts {
			total += table.Points(m.CentAmount, m.CurrencyCode)
		}
	}
	return total
}

// includedSources extracts redemption candidates from the order's
// discount-on-total breakdown. Only cart-discount and direct-discount
// references are considered.
func includedSources(order *OrderSnapshot) []discountSource {
	var sources []discountSource
	for _, inc := range order.IncludedDiscounts {
		if inc.Ref.ID == "" {
			continue
		}
		if inc.Ref.TypeID != RefTypeCartDiscount && inc.Ref.TypeID != RefTypeDirectDiscount {
			continue
		}
		sources = append(sources, discountSource{
			id:      inc.Ref.ID,
			amounts: []Money{inc.Amount},
		})
	}
	return sources
}

// directSources extracts redemption candidates from the order's direct
// discounts. Only absolute values with a positive amount are candidates; a
// percentage has no well-defined point equivalent.
func directSources(order *OrderSnapshot) []discountSource {
	var sources []discountSource
	for _, dd := range order.DirectDiscounts {
		if dd.ID == "" || dd.Value.Type != ValueTypeAbsolute {
			continue
		}
		var amounts []Money
		for _, m := range dd.Value.Money {
			if m.CentAmount > 0 {
				amounts = append(amounts, m)
			}
		}
		if len(amounts) == 0 {
			continue
		}
		sources = append(sources, discountSource{id: dd.ID, amounts: amounts})
	}
	return sources
}
