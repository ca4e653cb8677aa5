package platform

import (
	"context"

	"github.com/meridianlabs/loyalty-engine/internal/loyalty"
)

// PaymentAmount fetches the planned amount of a payment.
func (c *Client) PaymentAmount(ctx context.Context, id string) (loyalty.Money, error) {
	var dto struct {
		AmountPlanned moneyDTO `json:"amountPlanned"`
	}
	if err := c.get(ctx, "/payments/"+id, &dto); err != nil {
		return loyalty.Money{}, err
	}
	return dto.AmountPlanned.toDomain(), nil
}
