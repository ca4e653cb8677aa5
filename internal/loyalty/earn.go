package loyalty

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// earnedPoints converts the monetary total of the order's payments into
// points. Payment references are deduplicated by id; a payment that cannot
// be fetched is logged and contributes 0, so one unreachable payment does
// not abort accounting for the rest of the order.
func (p *Processor) earnedPoints(ctx context.Context, order *OrderSnapshot, table Table) int64 {
	lg := zctx.From(ctx)

	seen := make(map[string]struct{}, len(order.Payments))
	var total int64
	for _, ref := range order.Payments {
		if ref.ID == "" {
			continue
		}
		if _, dup := seen[ref.ID]; dup {
			continue
		}
		seen[ref.ID] = struct{}{}

		amount, err := p.payments.PaymentAmount(ctx, ref.ID)
		if err != nil {
			lg.Warn("Payment unavailable, contributes no points",
				zap.String("payment_id", ref.ID),
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
			continue
		}
		total += table.Points(amount.CentAmount, amount.CurrencyCode)
	}
	return total
}
