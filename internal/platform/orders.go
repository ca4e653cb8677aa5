package platform

import (
	"context"

	"github.com/meridianlabs/loyalty-engine/internal/loyalty"
)

type orderDTO struct {
	ID          string  `json:"id"`
	CustomerID  string  `json:"customerId"`
	Cart        *refDTO `json:"cart"`
	PaymentInfo *struct {
		Payments []refDTO `json:"payments"`
	} `json:"paymentInfo"`
	DirectDiscounts      []directDiscountDTO `json:"directDiscounts"`
	DiscountOnTotalPrice *struct {
		IncludedDiscounts []includedDiscountDTO `json:"includedDiscounts"`
	} `json:"discountOnTotalPrice"`
}

type directDiscountDTO struct {
	ID    string `json:"id"`
	Value struct {
		Type  string     `json:"type"`
		Money []moneyDTO `json:"money"`
	} `json:"value"`
}

type includedDiscountDTO struct {
	Discount         refDTO   `json:"discount"`
	DiscountedAmount moneyDTO `json:"discountedAmount"`
}

// OrderByID fetches the order and projects it onto the engine's snapshot.
func (c *Client) OrderByID(ctx context.Context, id string) (*loyalty.OrderSnapshot, error) {
	var dto orderDTO
	if err := c.get(ctx, "/orders/"+id, &dto); err != nil {
		return nil, err
	}

	snap := &loyalty.OrderSnapshot{
		ID:         dto.ID,
		CustomerID: dto.CustomerID,
	}
	if dto.Cart != nil {
		snap.CartID = dto.Cart.ID
	}
	if dto.PaymentInfo != nil {
		snap.Payments = make([]loyalty.PaymentRef, 0, len(dto.PaymentInfo.Payments))
		for _, p := range dto.PaymentInfo.Payments {
			snap.Payments = append(snap.Payments, loyalty.PaymentRef{ID: p.ID})
		}
	}
	for _, dd := range dto.DirectDiscounts {
		d := loyalty.DirectDiscount{
			ID:    dd.ID,
			Value: loyalty.DiscountValue{Type: dd.Value.Type},
		}
		for _, m := range dd.Value.Money {
			d.Value.Money = append(d.Value.Money, m.toDomain())
		}
		snap.DirectDiscounts = append(snap.DirectDiscounts, d)
	}
	if dto.DiscountOnTotalPrice != nil {
		for _, inc := range dto.DiscountOnTotalPrice.IncludedDiscounts {
			snap.IncludedDiscounts = append(snap.IncludedDiscounts, loyalty.IncludedDiscount{
				Ref:    loyalty.DiscountRef{TypeID: inc.Discount.TypeID, ID: inc.Discount.ID},
				Amount: inc.DiscountedAmount.toDomain(),
			})
		}
	}
	return snap, nil
}
