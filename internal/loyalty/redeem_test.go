package loyalty

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func redemptionFields(cartID string) map[string]any {
	return map[string]any{
		"isPointRedemption": true,
		"referenceCart":     cartID,
	}
}

func TestRedeemedPoints(t *testing.T) {
	table := usdTable()

	tests := []struct {
		name   string
		order  *OrderSnapshot
		fields map[string]map[string]any
		want   int64
	}{
		{
			name: "included cart-discount redemption",
			order: &OrderSnapshot{
				ID: "order-1", CartID: "cart-1",
				IncludedDiscounts: []IncludedDiscount{{
					Ref:    DiscountRef{TypeID: RefTypeCartDiscount, ID: "d1"},
					Amount: Money{CentAmount: 200, CurrencyCode: "USD"},
				}},
			},
			fields: map[string]map[string]any{"d1": redemptionFields("cart-1")},
			want:   2,
		},
		{
			name: "included direct-discount reference also resolves",
			order: &OrderSnapshot{
				ID: "order-1", CartID: "cart-1",
				IncludedDiscounts: []IncludedDiscount{{
					Ref:    DiscountRef{TypeID: RefTypeDirectDiscount, ID: "d1"},
					Amount: Money{CentAmount: 350, CurrencyCode: "USD"},
				}},
			},
			fields: map[string]map[string]any{"d1": redemptionFields("cart-1")},
			want:   3,
		},
		{
			name: "other reference types are ignored",
			order: &OrderSnapshot{
				ID: "order-1", CartID: "cart-1",
				IncludedDiscounts: []IncludedDiscount{{
					Ref:    DiscountRef{TypeID: "product-discount", ID: "d1"},
					Amount: Money{CentAmount: 200, CurrencyCode: "USD"},
				}},
			},
			fields: map[string]map[string]any{"d1": redemptionFields("cart-1")},
			want:   0,
		},
		{
			name: "unresolvable portion does not block the others",
			order: &OrderSnapshot{
				ID: "order-1", CartID: "cart-1",
				IncludedDiscounts: []IncludedDiscount{
					{
						Ref:    DiscountRef{TypeID: RefTypeCartDiscount, ID: "gone"},
						Amount: Money{CentAmount: 900, CurrencyCode: "USD"},
					},
					{
						Ref:    DiscountRef{TypeID: RefTypeCartDiscount, ID: "d1"},
						Amount: Money{CentAmount: 200, CurrencyCode: "USD"},
					},
				},
			},
			fields: map[string]map[string]any{"d1": redemptionFields("cart-1")},
			want:   2,
		},
		{
			name: "fallback resolves direct discounts when no breakdown exists",
			order: &OrderSnapshot{
				ID: "order-1", CartID: "cart-1",
				DirectDiscounts: []DirectDiscount{{
					ID: "d1",
					Value: DiscountValue{
						Type:  ValueTypeAbsolute,
						Money: []Money{{CentAmount: 300, CurrencyCode: "USD"}},
					},
				}},
			},
			fields: map[string]map[string]any{"d1": redemptionFields("cart-1")},
			want:   3,
		},
		{
			name: "fallback skips percentage values",
			order: &OrderSnapshot{
				ID: "order-1", CartID: "cart-1",
				DirectDiscounts: []DirectDiscount{{
					ID:    "d1",
					Value: DiscountValue{Type: "relative"},
				}},
			},
			fields: map[string]map[string]any{"d1": redemptionFields("cart-1")},
			want:   0,
		},
		{
			name: "fallback skips non-positive amounts",
			order: &OrderSnapshot{
				ID: "order-1", CartID: "cart-1",
				DirectDiscounts: []DirectDiscount{{
					ID: "d1",
					Value: DiscountValue{
						Type:  ValueTypeAbsolute,
						Money: []Money{{CentAmount: 0, CurrencyCode: "USD"}},
					},
				}},
			},
			fields: map[string]map[string]any{"d1": redemptionFields("cart-1")},
			want:   0,
		},
		{
			name: "fallback silently skips unresolvable ids",
			order: &OrderSnapshot{
				ID: "order-1", CartID: "cart-1",
				DirectDiscounts: []DirectDiscount{{
					ID: "ephemeral",
					Value: DiscountValue{
						Type:  ValueTypeAbsolute,
						Money: []Money{{CentAmount: 300, CurrencyCode: "USD"}},
					},
				}},
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.discounts.fields = tt.fields

			got := f.processor().redeemedPoints(context.Background(), tt.order, table)
			assert.Equal(t, tt.want, got)
		})
	}
}

// When both representations of the same redemption are present, only the
// included-discounts breakdown counts. The two paths are given different
// amounts so a double-count or a wrong-path pick would be visible.
func TestRedeemedPoints_PrimaryPathWins(t *testing.T) {
	f := newFixture()
	f.discounts.fields = map[string]map[string]any{
		"d1": redemptionFields("cart-1"),
		"d2": redemptionFields("cart-1"),
	}

	order := &OrderSnapshot{
		ID: "order-1", CartID: "cart-1",
		IncludedDiscounts: []IncludedDiscount{{
			Ref:    DiscountRef{TypeID: RefTypeCartDiscount, ID: "d1"},
			Amount: Money{CentAmount: 200, CurrencyCode: "USD"},
		}},
		DirectDiscounts: []DirectDiscount{{
			ID: "d2",
			Value: DiscountValue{
				Type:  ValueTypeAbsolute,
				Money: []Money{{CentAmount: 700, CurrencyCode: "USD"}},
			},
		}},
	}

	got := f.processor().redeemedPoints(context.Background(), order, usdTable())
	assert.Equal(t, int64(2), got)
}
