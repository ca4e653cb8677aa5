package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/loyalty-engine/internal/loyalty"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    loyalty.Event
		wantErr bool
	}{
		{
			name:    "order created with resource reference",
			payload: `{"notificationType":"Message","type":"OrderCreated","resource":{"typeId":"order","id":"o1"}}`,
			want:    loyalty.Event{Type: loyalty.EventOrderCreated, OrderID: "o1"},
		},
		{
			name:    "order id from embedded order object",
			payload: `{"type":"OrderCreated","order":{"id":"o2","totalPrice":{"centAmount":100}}}`,
			want:    loyalty.Event{Type: loyalty.EventOrderCreated, OrderID: "o2"},
		},
		{
			name:    "resource reference wins over embedded order",
			payload: `{"type":"OrderCreated","resource":{"id":"o1"},"order":{"id":"o2"}}`,
			want:    loyalty.Event{Type: loyalty.EventOrderCreated, OrderID: "o1"},
		},
		{
			name:    "state change with string state",
			payload: `{"type":"OrderStateChanged","resource":{"id":"o1"},"orderState":"cancelled"}`,
			want:    loyalty.Event{Type: loyalty.EventOrderStateChanged, OrderID: "o1", NewStateKey: "cancelled"},
		},
		{
			name:    "state change with keyed state object",
			payload: `{"type":"OrderStateChanged","resource":{"id":"o1"},"orderState":{"typeId":"state","key":"cancelled"}}`,
			want:    loyalty.Event{Type: loyalty.EventOrderStateChanged, OrderID: "o1", NewStateKey: "cancelled"},
		},
		{
			name:    "unknown members are tolerated",
			payload: `{"type":"OrderCreated","resource":{"id":"o1"},"projectKey":"p","version":3,"createdAt":"2026-01-01T00:00:00Z"}`,
			want:    loyalty.Event{Type: loyalty.EventOrderCreated, OrderID: "o1"},
		},
		{
			name:    "missing order id",
			payload: `{"type":"OrderCreated"}`,
			wantErr: true,
		},
		{
			name:    "missing type",
			payload: `{"resource":{"id":"o1"}}`,
			wantErr: true,
		},
		{
			name:    "not json",
			payload: `order created!`,
			wantErr: true,
		},
		{
			name:    "json but not an object",
			payload: `["OrderCreated"]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeEvent([]byte(tt.payload))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
