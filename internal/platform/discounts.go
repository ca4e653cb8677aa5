package platform

import (
	"context"
)

// DiscountCustomFields fetches the raw custom fields of a cart-level
// discount. Direct discounts without an addressable entity yield
// loyalty.ErrNotFound, which the calculators swallow.
func (c *Client) DiscountCustomFields(ctx context.Context, id string) (map[string]any, error) {
	var dto struct {
		ID     string `json:"id"`
		Custom *struct {
			Fields map[string]any `json:"fields"`
		} `json:"custom"`
	}
	if err := c.get(ctx, "/cart-discounts/"+id, &dto); err != nil {
		return nil, err
	}
	if dto.Custom == nil || dto.Custom.Fields == nil {
		return map[string]any{}, nil
	}
	return dto.Custom.Fields, nil
}
